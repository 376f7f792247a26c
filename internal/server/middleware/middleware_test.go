package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/tapfile/tapfile/internal/config"
	"github.com/tapfile/tapfile/internal/logging"
	"github.com/tapfile/tapfile/internal/model"
	"github.com/tapfile/tapfile/internal/service"
)

func ok(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) }

func newAuth(t *testing.T) (*service.AuthService, *config.Store) {
	t.Helper()
	store, err := config.NewStore("")
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return service.NewAuthService(store, "middleware-test-secret", slog.New(slog.NewTextHandler(io.Discard, nil))), store
}

func issueKey(t *testing.T, auth *service.AuthService, store *config.Store) (string, *model.APIKey) {
	t.Helper()
	ctx := context.Background()
	admin := &model.Admin{Email: "owner@example.com", PasswordHash: "x", IsActive: true}
	if err := store.CreateAdmin(ctx, admin); err != nil {
		t.Fatalf("CreateAdmin: %v", err)
	}
	project := &model.Project{Slug: "acme", Name: "Acme", OwnerID: admin.ID}
	if err := store.CreateProject(ctx, project); err != nil {
		t.Fatalf("CreateProject: %v", err)
	}
	raw, key, err := auth.IssueAPIKey(ctx, project.ID, nil, "test", 0)
	if err != nil {
		t.Fatalf("IssueAPIKey: %v", err)
	}
	return raw, key
}

func errorMessage(t *testing.T, rr *httptest.ResponseRecorder) string {
	t.Helper()
	var body model.ErrorResponse
	if err := json.NewDecoder(rr.Body).Decode(&body); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	if body.Success {
		t.Error("error envelope must have success=false")
	}
	return body.Error
}

// ---------------------------------------------------------------------------
// RequestID
// ---------------------------------------------------------------------------

func TestRequestIDGeneratesUUID(t *testing.T) {
	handler := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if logging.RequestID(r.Context()) == "" {
			t.Error("expected request ID in context")
		}
		w.WriteHeader(http.StatusOK)
	}))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest("GET", "/test", nil))

	if id := rr.Header().Get(RequestIDHeader); len(id) != 36 {
		t.Errorf("expected UUID-length request ID, got %q", id)
	}
}

func TestRequestIDPreservesClientID(t *testing.T) {
	const clientID = "my-custom-trace-id-123"

	handler := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := logging.RequestID(r.Context()); got != clientID {
			t.Errorf("context ID = %q, want %q", got, clientID)
		}
	}))

	req := httptest.NewRequest("GET", "/test", nil)
	req.Header.Set(RequestIDHeader, clientID)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if got := rr.Header().Get(RequestIDHeader); got != clientID {
		t.Errorf("response X-Request-ID = %q, want %q", got, clientID)
	}
}

func TestLoggerIncludesRequestID(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	handler := RequestID(Logger(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
		w.Write([]byte("short and stout"))
	})))

	req := httptest.NewRequest("GET", "/pot", nil)
	req.Header.Set(RequestIDHeader, "trace-1")
	handler.ServeHTTP(httptest.NewRecorder(), req)

	line := buf.String()
	for _, want := range []string{"request_id=trace-1", "status=418", "path=/pot", "bytes=15", "level=WARN"} {
		if !strings.Contains(line, want) {
			t.Errorf("log line missing %q: %s", want, line)
		}
	}
}

// ---------------------------------------------------------------------------
// API key authentication
// ---------------------------------------------------------------------------

func TestRequireAPIKey(t *testing.T) {
	auth, store := newAuth(t)
	raw, key := issueKey(t, auth, store)

	var seen *service.APIKeyPrincipal
	handler := RequireAPIKey(auth)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetAPIKey(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	tests := []struct {
		name   string
		header string
		value  string
		want   int
	}{
		{"bearer", "Authorization", "Bearer " + raw, http.StatusOK},
		{"lowercase bearer", "Authorization", "bearer " + raw, http.StatusOK},
		{"x-api-key", APIKeyHeader, raw, http.StatusOK},
		{"missing", "", "", http.StatusUnauthorized},
		{"unknown key", "Authorization", "Bearer tap_nope", http.StatusUnauthorized},
		{"basic auth", "Authorization", "Basic dXNlcjpwYXNz", http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			seen = nil
			req := httptest.NewRequest("GET", "/api/v1/acme/x", nil)
			if tt.header != "" {
				req.Header.Set(tt.header, tt.value)
			}
			rr := httptest.NewRecorder()
			handler.ServeHTTP(rr, req)

			if rr.Code != tt.want {
				t.Fatalf("status = %d, want %d", rr.Code, tt.want)
			}
			if tt.want == http.StatusOK {
				if seen == nil || seen.KeyID != key.ID {
					t.Errorf("principal = %+v, want key %d", seen, key.ID)
				}
			} else if errorMessage(t, rr) == "" {
				t.Error("expected an error message")
			}
		})
	}
}

func TestRequireAPIKeyRejectsRevoked(t *testing.T) {
	auth, store := newAuth(t)
	raw, key := issueKey(t, auth, store)
	if err := store.RevokeAPIKey(context.Background(), key.ID); err != nil {
		t.Fatalf("RevokeAPIKey: %v", err)
	}

	handler := RequireAPIKey(auth)(http.HandlerFunc(ok))
	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set(APIKeyHeader, raw)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rr.Code)
	}
	if msg := errorMessage(t, rr); !strings.Contains(msg, "revoked") {
		t.Errorf("message = %q", msg)
	}
}

// ---------------------------------------------------------------------------
// Admin authentication
// ---------------------------------------------------------------------------

func TestRequireAdmin(t *testing.T) {
	auth, _ := newAuth(t)
	ctx := context.Background()

	valid, _ := auth.IssueJWT(ctx, &model.Admin{ID: 1, Email: "a@b.c"}, time.Hour)
	expired, _ := auth.IssueJWT(ctx, &model.Admin{ID: 1, Email: "a@b.c"}, -time.Hour)

	handler := RequireAdmin(auth)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if p := GetAdmin(r.Context()); p == nil || p.AdminID != 1 {
			t.Errorf("principal = %+v", p)
		}
		w.WriteHeader(http.StatusOK)
	}))

	tests := []struct {
		name  string
		token string
		want  int
	}{
		{"valid", valid, http.StatusOK},
		{"expired", expired, http.StatusUnauthorized},
		{"garbage", "not.a.jwt", http.StatusUnauthorized},
		{"missing", "", http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/api/v1/system/project", nil)
			if tt.token != "" {
				req.Header.Set("Authorization", "Bearer "+tt.token)
			}
			rr := httptest.NewRecorder()
			handler.ServeHTTP(rr, req)
			if rr.Code != tt.want {
				t.Errorf("status = %d, want %d", rr.Code, tt.want)
			}
		})
	}
}

func TestRequireSuperAdmin(t *testing.T) {
	handler := RequireSuperAdmin()(http.HandlerFunc(ok))

	tests := []struct {
		name string
		p    *service.JWTPrincipal
		want int
	}{
		{"super admin", &service.JWTPrincipal{AdminID: 1, IsSuperAdmin: true}, http.StatusOK},
		{"plain admin", &service.JWTPrincipal{AdminID: 2}, http.StatusForbidden},
		{"anonymous", nil, http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("POST", "/api/v1/system/admin", nil)
			if tt.p != nil {
				req = req.WithContext(WithAdmin(req.Context(), tt.p))
			}
			rr := httptest.NewRecorder()
			handler.ServeHTTP(rr, req)
			if rr.Code != tt.want {
				t.Errorf("status = %d, want %d", rr.Code, tt.want)
			}
		})
	}
}

func TestPrincipalsAbsentFromBareContext(t *testing.T) {
	if GetAPIKey(context.Background()) != nil {
		t.Error("expected nil API key principal")
	}
	if GetAdmin(context.Background()) != nil {
		t.Error("expected nil admin principal")
	}
}

// ---------------------------------------------------------------------------
// Rate limiting
// ---------------------------------------------------------------------------

func TestRateLimitByAPIKey(t *testing.T) {
	handler := RateLimitByAPIKey(2)(http.HandlerFunc(ok))

	send := func(keyID int64) int {
		req := httptest.NewRequest("GET", "/", nil)
		req = req.WithContext(WithAPIKey(req.Context(), &service.APIKeyPrincipal{KeyID: keyID, ProjectID: 1}))
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)
		return rr.Code
	}

	for i := 0; i < 2; i++ {
		if code := send(1); code != http.StatusOK {
			t.Fatalf("request %d: status = %d", i+1, code)
		}
	}
	if code := send(1); code != http.StatusTooManyRequests {
		t.Errorf("third request: status = %d, want 429", code)
	}
	if code := send(2); code != http.StatusOK {
		t.Errorf("other key should have its own budget, got %d", code)
	}
}

func TestRateLimitByIPEnvelope(t *testing.T) {
	handler := RateLimitByIP(1)(http.HandlerFunc(ok))

	var last *httptest.ResponseRecorder
	for i := 0; i < 2; i++ {
		req := httptest.NewRequest("GET", "/", nil)
		req.RemoteAddr = "192.0.2.7:4321"
		last = httptest.NewRecorder()
		handler.ServeHTTP(last, req)
	}
	if last.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", last.Code)
	}
	if msg := errorMessage(t, last); msg == "" {
		t.Error("expected an error message")
	}
}

func TestRateLimitDisabled(t *testing.T) {
	handler := RateLimitByIP(0)(http.HandlerFunc(ok))
	for i := 0; i < 50; i++ {
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, httptest.NewRequest("GET", "/", nil))
		if rr.Code != http.StatusOK {
			t.Fatalf("request %d limited with limiter disabled", i+1)
		}
	}
}
