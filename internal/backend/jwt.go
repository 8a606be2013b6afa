package backend

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/mprlab/classgate/internal/platform"
)

var (
	// ErrTokenInvalid indicates a token failed signature or claim checks.
	ErrTokenInvalid = errors.New("backend.token_invalid")
	// ErrTokenExpired indicates a structurally valid but expired token.
	ErrTokenExpired = errors.New("backend.token_expired")
)

// SessionClaims are embedded in both access and refresh tokens.
type SessionClaims struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Role     string `json:"role"`
	jwt.RegisteredClaims
}

// MintAccessToken creates a signed HS256 access token for the user.
func MintAccessToken(user platform.User, configuration ServerConfig) (string, time.Time, error) {
	return mintToken(user, configuration.Issuer, configuration.AccessSigningKey, configuration.AccessTTL)
}

// MintRefreshToken creates a signed HS256 refresh token for the user.
func MintRefreshToken(user platform.User, configuration ServerConfig) (string, time.Time, error) {
	return mintToken(user, configuration.Issuer, configuration.RefreshSigningKey, configuration.RefreshTTL)
}

func mintToken(user platform.User, issuer string, signingKey []byte, ttl time.Duration) (string, time.Time, error) {
	issuedAt := time.Now().UTC()
	expiresAt := issuedAt.Add(ttl)
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, SessionClaims{
		Username: user.Username,
		Email:    user.Email,
		Role:     string(user.Role),
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   user.Username,
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			NotBefore: jwt.NewNumericDate(issuedAt.Add(-30 * time.Second)),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	})
	signed, err := token.SignedString(signingKey)
	return signed, expiresAt, err
}

// VerifyAccessToken parses and validates an access token.
func VerifyAccessToken(tokenString string, configuration ServerConfig) (*SessionClaims, error) {
	return verifyToken(tokenString, configuration.Issuer, configuration.AccessSigningKey)
}

// VerifyRefreshToken parses and validates a refresh token.
func VerifyRefreshToken(tokenString string, configuration ServerConfig) (*SessionClaims, error) {
	return verifyToken(tokenString, configuration.Issuer, configuration.RefreshSigningKey)
}

func verifyToken(tokenString string, issuer string, signingKey []byte) (*SessionClaims, error) {
	parsedToken, parseErr := jwt.ParseWithClaims(tokenString, &SessionClaims{}, func(parsed *jwt.Token) (interface{}, error) {
		return signingKey, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if parseErr != nil {
		if errors.Is(parseErr, jwt.ErrTokenExpired) {
			return nil, fmt.Errorf("backend.verify_token: %w", ErrTokenExpired)
		}
		return nil, fmt.Errorf("backend.verify_token: %w", ErrTokenInvalid)
	}
	if parsedToken == nil || !parsedToken.Valid {
		return nil, fmt.Errorf("backend.verify_token: %w", ErrTokenInvalid)
	}
	claims, ok := parsedToken.Claims.(*SessionClaims)
	if !ok || claims.Issuer != issuer {
		return nil, fmt.Errorf("backend.verify_token: %w", ErrTokenInvalid)
	}
	return claims, nil
}
