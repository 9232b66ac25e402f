package iam

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap/zaptest"

	"github.com/Maryam-Bagia/StudyNest/internal/core/domain"
	"github.com/Maryam-Bagia/StudyNest/internal/infra/config"
	"github.com/Maryam-Bagia/StudyNest/internal/repository"
	"github.com/Maryam-Bagia/StudyNest/internal/repository/memory"
)

var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type recordedCall struct {
	path          string
	authorization string
	body          map[string]any
}

type fakeIAM struct {
	mu       sync.Mutex
	calls    []recordedCall
	handlers map[string]http.HandlerFunc
}

func newFakeIAM(t *testing.T) (*fakeIAM, *httptest.Server) {
	t.Helper()

	fake := &fakeIAM{handlers: make(map[string]http.HandlerFunc)}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body := map[string]any{}
		_ = json.NewDecoder(r.Body).Decode(&body)

		fake.mu.Lock()
		fake.calls = append(fake.calls, recordedCall{
			path:          r.URL.Path,
			authorization: r.Header.Get("Authorization"),
			body:          body,
		})
		handler, ok := fake.handlers[r.URL.Path]
		fake.mu.Unlock()

		if !ok {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
			return
		}
		handler(w, r)
	}))
	t.Cleanup(server.Close)
	return fake, server
}

func (f *fakeIAM) handle(path string, handler http.HandlerFunc) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handlers[path] = handler
}

func (f *fakeIAM) recorded() []recordedCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]recordedCall, len(f.calls))
	copy(out, f.calls)
	return out
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func signedToken(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return token
}

func loginHandler(token string) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"access_token":  token,
			"refresh_token": "refresh-1",
			"token_type":    "Bearer",
			"expires_in":    900,
			"user":          map[string]string{"id": "U1", "username": "maryam", "email": "maryam@example.com"},
			"session":       map[string]any{"id": "session-1"},
		})
	}
}

func newTestClient(t *testing.T, baseURL string, validateRemote bool) (*Client, *memory.StateStore) {
	t.Helper()
	store := memory.NewStateStore()
	cfg := config.IAMSettings{
		BaseURL:        baseURL,
		Timeout:        2 * time.Second,
		ValidateRemote: validateRemote,
		DeviceLabel:    "Study tablet",
	}
	client := NewClient(cfg, "tablet-1", store, zaptest.NewLogger(t)).
		WithClock(func() time.Time { return testNow })
	return client, store
}

func TestClient_VerifyCredentialsRemembersSession(t *testing.T) {
	fake, server := newFakeIAM(t)
	expiresAt := testNow.Add(10 * time.Minute)
	token := signedToken(t, jwt.MapClaims{"uid": "U1", "exp": expiresAt.Unix()})
	fake.handle(loginPath, loginHandler(token))

	client, store := newTestClient(t, server.URL, false)

	identity, err := client.VerifyCredentials(context.Background(), "maryam@example.com", "pw")
	if err != nil {
		t.Fatalf("VerifyCredentials returned error: %v", err)
	}
	if identity.ID != "U1" || identity.Username != "maryam" {
		t.Fatalf("unexpected identity %+v", identity)
	}

	calls := fake.recorded()
	if len(calls) != 1 {
		t.Fatalf("expected one call, got %d", len(calls))
	}
	if calls[0].body["identifier"] != "maryam@example.com" || calls[0].body["device_id"] != "tablet-1" {
		t.Fatalf("unexpected login body %v", calls[0].body)
	}
	if calls[0].body["device_label"] != "Study tablet" {
		t.Fatalf("expected device label to be sent, got %v", calls[0].body["device_label"])
	}

	creds, err := store.LoadCredentials(context.Background())
	if err != nil {
		t.Fatalf("expected credentials to be remembered: %v", err)
	}
	if creds.AccessToken != token || creds.SessionID != "session-1" {
		t.Fatalf("unexpected credentials %+v", creds)
	}
	if !creds.ExpiresAt.Equal(expiresAt.Truncate(time.Second)) {
		t.Fatalf("expected expiry from token %v, got %v", expiresAt, creds.ExpiresAt)
	}
}

func TestClient_VerifyCredentialsRejected(t *testing.T) {
	fake, server := newFakeIAM(t)
	fake.handle(loginPath, func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid credentials"})
	})

	client, store := newTestClient(t, server.URL, false)

	_, err := client.VerifyCredentials(context.Background(), "maryam@example.com", "wrong")
	var backendErr *domain.BackendError
	if !errors.As(err, &backendErr) {
		t.Fatalf("expected BackendError, got %v", err)
	}
	if backendErr.Message != "invalid credentials" || backendErr.Op != domain.OpLogin {
		t.Fatalf("unexpected backend error %+v", backendErr)
	}
	if _, err := store.LoadCredentials(context.Background()); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected nothing remembered, got %v", err)
	}
}

func TestClient_CreateAccountRegistersThenSignsIn(t *testing.T) {
	fake, server := newFakeIAM(t)
	fake.handle(registerPath, func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusCreated, map[string]any{
			"user":                  map[string]string{"id": "U1", "username": "maryam", "email": "maryam@example.com"},
			"requires_verification": false,
		})
	})
	fake.handle(loginPath, loginHandler("opaque-token"))

	client, store := newTestClient(t, server.URL, false)

	identity, err := client.CreateAccount(context.Background(), "maryam@example.com", "pw")
	if err != nil {
		t.Fatalf("CreateAccount returned error: %v", err)
	}
	if identity.ID != "U1" {
		t.Fatalf("unexpected identity %+v", identity)
	}

	calls := fake.recorded()
	if len(calls) != 2 || calls[0].path != registerPath || calls[1].path != loginPath {
		t.Fatalf("expected register then login, got %+v", calls)
	}
	if calls[0].body["username"] != "maryam" || calls[0].body["email"] != "maryam@example.com" {
		t.Fatalf("unexpected register body %v", calls[0].body)
	}

	creds, err := store.LoadCredentials(context.Background())
	if err != nil {
		t.Fatalf("expected credentials to be remembered: %v", err)
	}
	if want := testNow.Add(900 * time.Second); !creds.ExpiresAt.Equal(want) {
		t.Fatalf("expected expiry from expires_in %v, got %v", want, creds.ExpiresAt)
	}
}

func TestClient_CreateAccountConflict(t *testing.T) {
	fake, server := newFakeIAM(t)
	fake.handle(registerPath, func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusConflict, map[string]string{"error": "email already registered"})
	})

	client, _ := newTestClient(t, server.URL, false)

	_, err := client.CreateAccount(context.Background(), "maryam@example.com", "pw")
	var backendErr *domain.BackendError
	if !errors.As(err, &backendErr) || backendErr.Message != "email already registered" {
		t.Fatalf("expected verbatim conflict message, got %v", err)
	}
	if backendErr.Op != domain.OpSignup {
		t.Fatalf("expected signup op, got %s", backendErr.Op)
	}
}

func TestClient_Timeout(t *testing.T) {
	fake, server := newFakeIAM(t)
	release := make(chan struct{})
	t.Cleanup(func() { close(release) })
	fake.handle(loginPath, func(w http.ResponseWriter, _ *http.Request) {
		<-release
	})

	client, _ := newTestClient(t, server.URL, false)
	client.WithHTTPClient(&http.Client{Timeout: 50 * time.Millisecond})

	_, err := client.VerifyCredentials(context.Background(), "maryam@example.com", "pw")
	var backendErr *domain.BackendError
	if !errors.As(err, &backendErr) || backendErr.Message != "timeout" {
		t.Fatalf("expected timeout BackendError, got %v", err)
	}
	if !errors.Is(err, domain.ErrTimeout) {
		t.Fatalf("expected ErrTimeout in chain, got %v", err)
	}
}

func TestClient_Unavailable(t *testing.T) {
	_, server := newFakeIAM(t)
	url := server.URL
	server.Close()

	client, _ := newTestClient(t, url, false)

	_, err := client.VerifyCredentials(context.Background(), "maryam@example.com", "pw")
	var backendErr *domain.BackendError
	if !errors.As(err, &backendErr) || backendErr.Message != "identity service unavailable" {
		t.Fatalf("expected unavailable BackendError, got %v", err)
	}
}

func TestClient_ClearSession(t *testing.T) {
	fake, server := newFakeIAM(t)
	fake.handle(logoutPath, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	client, store := newTestClient(t, server.URL, false)
	ctx := context.Background()
	if err := store.SaveCredentials(ctx, domain.Credentials{Identity: domain.Identity{ID: "U1"}, AccessToken: "access"}); err != nil {
		t.Fatalf("SaveCredentials: %v", err)
	}

	if err := client.ClearSession(ctx); err != nil {
		t.Fatalf("ClearSession returned error: %v", err)
	}

	calls := fake.recorded()
	if len(calls) != 1 || calls[0].authorization != "Bearer access" {
		t.Fatalf("expected bearer logout call, got %+v", calls)
	}
	if _, err := store.LoadCredentials(ctx); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected credentials to be forgotten, got %v", err)
	}
}

func TestClient_ClearSessionToleratesExpiredToken(t *testing.T) {
	fake, server := newFakeIAM(t)
	fake.handle(logoutPath, func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "token expired"})
	})

	client, store := newTestClient(t, server.URL, false)
	ctx := context.Background()
	_ = store.SaveCredentials(ctx, domain.Credentials{Identity: domain.Identity{ID: "U1"}, AccessToken: "old"})

	if err := client.ClearSession(ctx); err != nil {
		t.Fatalf("ClearSession returned error: %v", err)
	}
	if _, err := store.LoadCredentials(ctx); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected credentials to be forgotten, got %v", err)
	}
}

func TestClient_ClearSessionWithoutCredentials(t *testing.T) {
	fake, server := newFakeIAM(t)
	client, _ := newTestClient(t, server.URL, false)

	if err := client.ClearSession(context.Background()); err != nil {
		t.Fatalf("ClearSession returned error: %v", err)
	}
	if calls := fake.recorded(); len(calls) != 0 {
		t.Fatalf("expected no remote call, got %+v", calls)
	}
}

func TestClient_CurrentIdentity(t *testing.T) {
	ctx := context.Background()

	t.Run("nothing remembered", func(t *testing.T) {
		_, server := newFakeIAM(t)
		client, _ := newTestClient(t, server.URL, false)
		if _, err := client.CurrentIdentity(ctx); !errors.Is(err, domain.ErrNoSession) {
			t.Fatalf("expected ErrNoSession, got %v", err)
		}
	})

	t.Run("expired", func(t *testing.T) {
		_, server := newFakeIAM(t)
		client, store := newTestClient(t, server.URL, false)
		_ = store.SaveCredentials(ctx, domain.Credentials{
			Identity:  domain.Identity{ID: "U1"},
			ExpiresAt: testNow.Add(-time.Second),
		})
		if _, err := client.CurrentIdentity(ctx); !errors.Is(err, domain.ErrNoSession) {
			t.Fatalf("expected ErrNoSession, got %v", err)
		}
		if _, err := store.LoadCredentials(ctx); !errors.Is(err, repository.ErrNotFound) {
			t.Fatalf("expected expired credentials to be forgotten, got %v", err)
		}
	})

	t.Run("local only", func(t *testing.T) {
		fake, server := newFakeIAM(t)
		client, store := newTestClient(t, server.URL, false)
		_ = store.SaveCredentials(ctx, domain.Credentials{
			Identity:  domain.Identity{ID: "U1"},
			SessionID: "session-1",
			ExpiresAt: testNow.Add(time.Hour),
		})
		identity, err := client.CurrentIdentity(ctx)
		if err != nil || identity.ID != "U1" {
			t.Fatalf("expected U1, got %+v, %v", identity, err)
		}
		if calls := fake.recorded(); len(calls) != 0 {
			t.Fatalf("expected no remote validation, got %+v", calls)
		}
	})

	t.Run("remote valid", func(t *testing.T) {
		fake, server := newFakeIAM(t)
		fake.handle(validatePath, func(w http.ResponseWriter, _ *http.Request) {
			writeJSON(w, http.StatusOK, map[string]any{"valid": true, "session": map[string]any{"id": "session-1"}})
		})
		client, store := newTestClient(t, server.URL, true)
		_ = store.SaveCredentials(ctx, domain.Credentials{
			Identity:    domain.Identity{ID: "U1"},
			SessionID:   "session-1",
			AccessToken: "access",
		})
		identity, err := client.CurrentIdentity(ctx)
		if err != nil || identity.ID != "U1" {
			t.Fatalf("expected U1, got %+v, %v", identity, err)
		}
		calls := fake.recorded()
		if len(calls) != 1 || calls[0].body["session_id"] != "session-1" {
			t.Fatalf("expected validate call, got %+v", calls)
		}
	})

	t.Run("remote revoked", func(t *testing.T) {
		fake, server := newFakeIAM(t)
		fake.handle(validatePath, func(w http.ResponseWriter, _ *http.Request) {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "session revoked"})
		})
		client, store := newTestClient(t, server.URL, true)
		_ = store.SaveCredentials(ctx, domain.Credentials{
			Identity:    domain.Identity{ID: "U1"},
			SessionID:   "session-1",
			AccessToken: "access",
		})
		if _, err := client.CurrentIdentity(ctx); !errors.Is(err, domain.ErrNoSession) {
			t.Fatalf("expected ErrNoSession, got %v", err)
		}
		if _, err := store.LoadCredentials(ctx); !errors.Is(err, repository.ErrNotFound) {
			t.Fatalf("expected revoked credentials to be forgotten, got %v", err)
		}
	})
}

func TestTokenClaims(t *testing.T) {
	exp := testNow.Add(time.Hour)
	token := signedToken(t, jwt.MapClaims{"sub": "U9", "exp": exp.Unix()})

	userID, expiresAt, ok := tokenClaims(token)
	if !ok || userID != "U9" || !expiresAt.Equal(exp.Truncate(time.Second)) {
		t.Fatalf("unexpected claims %q %v %v", userID, expiresAt, ok)
	}

	if _, _, ok := tokenClaims("not-a-jwt"); ok {
		t.Fatalf("expected opaque token to be ignored")
	}
}

func TestUsernameFor(t *testing.T) {
	if got := usernameFor("maryam@example.com"); got != "maryam" {
		t.Fatalf("expected local part, got %q", got)
	}
	if got := usernameFor("maryam"); got != "maryam" {
		t.Fatalf("expected identifier unchanged, got %q", got)
	}
}
