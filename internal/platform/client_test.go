package platform

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/mprlab/classgate/internal/tokenstore"
)

func newTestClient(t *testing.T, baseURL string, tokens tokenstore.Store) *Client {
	t.Helper()
	client, err := NewClient(ClientConfig{BaseURL: baseURL, Tokens: tokens})
	if err != nil {
		t.Fatalf("failed to build client: %v", err)
	}
	return client
}

func seedCredentials(t *testing.T, tokens tokenstore.Store, access string, refresh string) {
	t.Helper()
	if err := tokens.SetCredentials(context.Background(), tokenstore.Credentials{
		AccessToken:  access,
		RefreshToken: refresh,
	}); err != nil {
		t.Fatalf("failed to seed credentials: %v", err)
	}
}

func writeJSON(t *testing.T, writer http.ResponseWriter, status int, payload any) {
	t.Helper()
	writer.Header().Set("Content-Type", "application/json")
	writer.WriteHeader(status)
	if err := json.NewEncoder(writer).Encode(payload); err != nil {
		t.Errorf("failed to encode response: %v", err)
	}
}

func TestCurrentUserRetriesOnceAfterRefresh(t *testing.T) {
	var refreshCalls atomic.Int64

	mux := http.NewServeMux()
	mux.HandleFunc("/auth/refresh", func(writer http.ResponseWriter, request *http.Request) {
		refreshCalls.Add(1)
		if request.Header.Get(RefreshTokenHeader) != "valid-refresh-xyz" {
			writeJSON(t, writer, http.StatusUnauthorized, map[string]string{"detail": "Invalid credentials"})
			return
		}
		writeJSON(t, writer, http.StatusOK, map[string]string{"access_token": "abc123"})
	})
	mux.HandleFunc("/auth/me", func(writer http.ResponseWriter, request *http.Request) {
		if request.Header.Get("Authorization") != "Bearer abc123" {
			writeJSON(t, writer, http.StatusUnauthorized, map[string]string{"detail": "Not authenticated"})
			return
		}
		writeJSON(t, writer, http.StatusOK, map[string]string{
			"username": "casey",
			"email":    "casey@example.com",
			"role":     "Teachers",
		})
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	tokens := tokenstore.NewMemoryStore()
	seedCredentials(t, tokens, "stale-access", "valid-refresh-xyz")
	client := newTestClient(t, server.URL, tokens)

	user, err := client.CurrentUser(context.Background())
	if err != nil {
		t.Fatalf("expected profile after refresh retry, got %v", err)
	}
	if user.Username != "casey" || user.Role != RoleTeacher {
		t.Fatalf("unexpected user: %+v", user)
	}
	if got := refreshCalls.Load(); got != 1 {
		t.Fatalf("expected exactly 1 refresh call, got %d", got)
	}

	pair, credErr := tokens.Credentials(context.Background())
	if credErr != nil {
		t.Fatalf("unexpected credentials error: %v", credErr)
	}
	if pair.AccessToken != "abc123" {
		t.Fatalf("expected refreshed access token stored, got %q", pair.AccessToken)
	}
	if pair.RefreshToken != "valid-refresh-xyz" {
		t.Fatalf("expected refresh token unchanged, got %q", pair.RefreshToken)
	}
}

func TestSecondUnauthorizedStopsWithoutSecondRefresh(t *testing.T) {
	var refreshCalls atomic.Int64

	mux := http.NewServeMux()
	mux.HandleFunc("/auth/refresh", func(writer http.ResponseWriter, request *http.Request) {
		refreshCalls.Add(1)
		writeJSON(t, writer, http.StatusOK, map[string]string{"access_token": "fresh-but-rejected"})
	})
	mux.HandleFunc("/auth/me", func(writer http.ResponseWriter, request *http.Request) {
		writeJSON(t, writer, http.StatusUnauthorized, map[string]string{"detail": "Not authenticated"})
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	tokens := tokenstore.NewMemoryStore()
	seedCredentials(t, tokens, "stale-access", "refresh-token")
	client := newTestClient(t, server.URL, tokens)

	_, err := client.CurrentUser(context.Background())
	if err == nil || !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized after retried 401, got %v", err)
	}
	if got := refreshCalls.Load(); got != 1 {
		t.Fatalf("expected exactly 1 refresh call, got %d", got)
	}
}

func TestRefreshWithoutStoredTokenFailsFast(t *testing.T) {
	var refreshCalls atomic.Int64

	mux := http.NewServeMux()
	mux.HandleFunc("/auth/refresh", func(writer http.ResponseWriter, request *http.Request) {
		refreshCalls.Add(1)
		writeJSON(t, writer, http.StatusOK, map[string]string{"access_token": "should-not-happen"})
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	tokens := tokenstore.NewMemoryStore()
	client := newTestClient(t, server.URL, tokens)

	err := client.RefreshSession(context.Background())
	if err == nil || !errors.Is(err, ErrMissingRefreshToken) {
		t.Fatalf("expected ErrMissingRefreshToken, got %v", err)
	}
	if got := refreshCalls.Load(); got != 0 {
		t.Fatalf("expected no network refresh call, got %d", got)
	}
}

func TestConcurrentUnauthorizedRequestsShareOneRefresh(t *testing.T) {
	const concurrentCallers = 8

	var refreshCalls atomic.Int64
	var staleResponses atomic.Int64
	allStaleServed := make(chan struct{})

	mux := http.NewServeMux()
	mux.HandleFunc("/auth/refresh", func(writer http.ResponseWriter, request *http.Request) {
		refreshCalls.Add(1)
		// Hold the exchange open so every caller contends for the same
		// in-flight refresh rather than starting its own.
		time.Sleep(200 * time.Millisecond)
		writeJSON(t, writer, http.StatusOK, map[string]string{"access_token": "abc123"})
	})
	mux.HandleFunc("/auth/me", func(writer http.ResponseWriter, request *http.Request) {
		if request.Header.Get("Authorization") != "Bearer abc123" {
			// Release the 401s together once every caller has arrived.
			if staleResponses.Add(1) == concurrentCallers {
				close(allStaleServed)
			}
			select {
			case <-allStaleServed:
			case <-time.After(5 * time.Second):
				t.Error("timed out waiting for concurrent callers")
			}
			writeJSON(t, writer, http.StatusUnauthorized, map[string]string{"detail": "Not authenticated"})
			return
		}
		writeJSON(t, writer, http.StatusOK, map[string]string{
			"username": "casey",
			"email":    "casey@example.com",
			"role":     "Students",
		})
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	tokens := tokenstore.NewMemoryStore()
	seedCredentials(t, tokens, "stale-access", "valid-refresh-xyz")
	client := newTestClient(t, server.URL, tokens)

	var waitGroup sync.WaitGroup
	failures := make(chan error, concurrentCallers)
	for caller := 0; caller < concurrentCallers; caller++ {
		waitGroup.Add(1)
		go func() {
			defer waitGroup.Done()
			if _, err := client.CurrentUser(context.Background()); err != nil {
				failures <- err
			}
		}()
	}
	waitGroup.Wait()
	close(failures)
	for err := range failures {
		t.Fatalf("unexpected caller error: %v", err)
	}

	if got := refreshCalls.Load(); got != 1 {
		t.Fatalf("expected 1 coalesced refresh call, got %d", got)
	}
}

func TestLoginStoresCredentialPair(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/users/login", func(writer http.ResponseWriter, request *http.Request) {
		var inbound map[string]string
		if err := json.NewDecoder(request.Body).Decode(&inbound); err != nil {
			t.Errorf("failed to decode login body: %v", err)
		}
		if inbound["username"] != "casey" || inbound["password"] != "hunter2" {
			writeJSON(t, writer, http.StatusUnauthorized, map[string]string{"detail": "Invalid password"})
			return
		}
		writeJSON(t, writer, http.StatusOK, map[string]any{
			"access_token":  "access-1",
			"refresh_token": "refresh-1",
			"user": map[string]string{
				"username": "casey",
				"email":    "casey@example.com",
				"role":     "Teachers",
			},
		})
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	tokens := tokenstore.NewMemoryStore()
	client := newTestClient(t, server.URL, tokens)

	user, err := client.Login(context.Background(), "casey", "hunter2")
	if err != nil {
		t.Fatalf("unexpected login error: %v", err)
	}
	if user.Role != RoleTeacher {
		t.Fatalf("unexpected role: %v", user.Role)
	}
	pair, credErr := tokens.Credentials(context.Background())
	if credErr != nil {
		t.Fatalf("expected stored credentials, got %v", credErr)
	}
	if pair.AccessToken != "access-1" || pair.RefreshToken != "refresh-1" {
		t.Fatalf("unexpected stored pair: %+v", pair)
	}
}

func TestLoginRejectionCarriesServerDetail(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/users/login", func(writer http.ResponseWriter, request *http.Request) {
		writeJSON(t, writer, http.StatusNotFound, map[string]string{"detail": "User not found"})
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	tokens := tokenstore.NewMemoryStore()
	client := newTestClient(t, server.URL, tokens)

	_, err := client.Login(context.Background(), "ghost", "whatever")
	if err == nil || !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
	if detail := Detail(err); detail != "User not found" {
		t.Fatalf("expected server detail, got %q", detail)
	}
	if _, credErr := tokens.Credentials(context.Background()); !errors.Is(credErr, tokenstore.ErrNoCredentials) {
		t.Fatalf("expected no credentials stored after rejection, got %v", credErr)
	}
}

func TestUploadDuplicateNameSurfacesSentinel(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/files/upload", func(writer http.ResponseWriter, request *http.Request) {
		if request.URL.Query().Get("username") != "casey" {
			writeJSON(t, writer, http.StatusBadRequest, map[string]string{"detail": "username is required"})
			return
		}
		if _, _, err := request.FormFile(UploadFieldName); err != nil {
			writeJSON(t, writer, http.StatusBadRequest, map[string]string{"detail": "file_uploaded_in is required"})
			return
		}
		writeJSON(t, writer, http.StatusBadRequest, map[string]string{"detail": "File name already exists. Please rename your file and try again."})
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	tokens := tokenstore.NewMemoryStore()
	seedCredentials(t, tokens, "access-1", "refresh-1")
	client := newTestClient(t, server.URL, tokens)

	err := client.Upload(context.Background(), "casey", "rubric.csv", strings.NewReader("a,b\nc,d"))
	if err == nil || !errors.Is(err, ErrDuplicateFileName) {
		t.Fatalf("expected ErrDuplicateFileName, got %v", err)
	}
}

func TestLogoutSendsRefreshTokenHeader(t *testing.T) {
	receivedHeader := make(chan string, 1)
	mux := http.NewServeMux()
	mux.HandleFunc("/users/logout", func(writer http.ResponseWriter, request *http.Request) {
		receivedHeader <- request.Header.Get(RefreshTokenHeader)
		writer.WriteHeader(http.StatusNoContent)
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	tokens := tokenstore.NewMemoryStore()
	seedCredentials(t, tokens, "access-1", "refresh-1")
	client := newTestClient(t, server.URL, tokens)

	if err := client.Logout(context.Background()); err != nil {
		t.Fatalf("unexpected logout error: %v", err)
	}
	if header := <-receivedHeader; header != "refresh-1" {
		t.Fatalf("expected refresh token header, got %q", header)
	}
}

func TestUnreachableServerReportsNetworkError(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	baseURL := server.URL
	server.Close()

	tokens := tokenstore.NewMemoryStore()
	seedCredentials(t, tokens, "access-1", "refresh-1")
	client := newTestClient(t, baseURL, tokens)

	_, err := client.CurrentUser(context.Background())
	if err == nil || !errors.Is(err, ErrNetwork) {
		t.Fatalf("expected ErrNetwork, got %v", err)
	}
}

func TestNewClientValidatesConfiguration(t *testing.T) {
	t.Parallel()

	if _, err := NewClient(ClientConfig{Tokens: tokenstore.NewMemoryStore()}); err == nil {
		t.Fatalf("expected error for empty base URL")
	}
	if _, err := NewClient(ClientConfig{BaseURL: "http://localhost"}); err == nil {
		t.Fatalf("expected error for nil token store")
	}
}
