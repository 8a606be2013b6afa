package backend

import (
	"errors"
	"testing"
	"time"

	"github.com/mprlab/classgate/internal/platform"
)

func TestMintAndVerifyAccessToken(t *testing.T) {
	t.Parallel()

	configuration := testServerConfig()
	user := platform.User{Username: "casey", Email: "casey@example.com", Role: platform.RoleTeacher}

	token, expiresAt, mintErr := MintAccessToken(user, configuration)
	if mintErr != nil {
		t.Fatalf("unexpected mint error: %v", mintErr)
	}
	if time.Until(expiresAt) <= 0 {
		t.Fatalf("expected future expiry, got %v", expiresAt)
	}

	claims, verifyErr := VerifyAccessToken(token, configuration)
	if verifyErr != nil {
		t.Fatalf("unexpected verify error: %v", verifyErr)
	}
	if claims.Username != "casey" || claims.Email != "casey@example.com" || claims.Role != "Teachers" {
		t.Fatalf("unexpected claims: %+v", claims)
	}
}

func TestRefreshTokenCannotPassAsAccessToken(t *testing.T) {
	t.Parallel()

	configuration := testServerConfig()
	user := platform.User{Username: "casey", Email: "casey@example.com", Role: platform.RoleStudent}

	refreshToken, _, mintErr := MintRefreshToken(user, configuration)
	if mintErr != nil {
		t.Fatalf("unexpected mint error: %v", mintErr)
	}
	if _, err := VerifyAccessToken(refreshToken, configuration); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("expected ErrTokenInvalid for cross-secret verification, got %v", err)
	}
	if _, err := VerifyRefreshToken(refreshToken, configuration); err != nil {
		t.Fatalf("expected refresh verification to succeed, got %v", err)
	}
}

func TestVerifyRejectsExpiredToken(t *testing.T) {
	t.Parallel()

	configuration := testServerConfig()
	configuration.AccessTTL = -time.Minute
	user := platform.User{Username: "casey", Email: "casey@example.com", Role: platform.RoleTeacher}

	token, _, mintErr := MintAccessToken(user, configuration)
	if mintErr != nil {
		t.Fatalf("unexpected mint error: %v", mintErr)
	}
	if _, err := VerifyAccessToken(token, configuration); !errors.Is(err, ErrTokenExpired) {
		t.Fatalf("expected ErrTokenExpired, got %v", err)
	}
}

func TestVerifyRejectsWrongIssuer(t *testing.T) {
	t.Parallel()

	configuration := testServerConfig()
	user := platform.User{Username: "casey", Email: "casey@example.com", Role: platform.RoleTeacher}

	token, _, mintErr := MintAccessToken(user, configuration)
	if mintErr != nil {
		t.Fatalf("unexpected mint error: %v", mintErr)
	}

	other := configuration
	other.Issuer = "someone-else"
	if _, err := VerifyAccessToken(token, other); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("expected ErrTokenInvalid for issuer mismatch, got %v", err)
	}
}

func TestHashRefreshTokenIsStable(t *testing.T) {
	t.Parallel()

	first := HashRefreshToken("refresh-1")
	second := HashRefreshToken("refresh-1")
	if first != second {
		t.Fatalf("expected deterministic hash, got %q and %q", first, second)
	}
	if HashRefreshToken("refresh-2") == first {
		t.Fatalf("expected distinct hashes for distinct tokens")
	}
}
