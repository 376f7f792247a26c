package service

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/tapfile/tapfile/internal/config"
	"github.com/tapfile/tapfile/internal/model"
)

func newTestAuth(t *testing.T) (*AuthService, *config.Store) {
	t.Helper()
	store, err := config.NewStore("")
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	auth := NewAuthService(store, "test-secret-key-for-jwt", discardLogger())
	return auth, store
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// lastLoginFails is a store whose login timestamp updates always fail.
type lastLoginFails struct {
	*config.Store
}

func (lastLoginFails) UpdateAdminLastLogin(context.Context, int64) error {
	return errors.New("database is locked")
}

func seedAdmin(t *testing.T, store *config.Store, email, password string, active bool) *model.Admin {
	t.Helper()
	hash, err := HashPassword(password)
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	admin := &model.Admin{Email: email, PasswordHash: hash, IsActive: active}
	if err := store.CreateAdmin(context.Background(), admin); err != nil {
		t.Fatalf("CreateAdmin: %v", err)
	}
	return admin
}

// ---------------------------------------------------------------------------
// Admin sessions
// ---------------------------------------------------------------------------

func TestJWTRoundTrip(t *testing.T) {
	auth, _ := newTestAuth(t)
	ctx := context.Background()

	admin := &model.Admin{ID: 42, Email: "admin@example.com", IsSuperAdmin: true}
	token, err := auth.IssueJWT(ctx, admin, time.Hour)
	if err != nil {
		t.Fatalf("IssueJWT: %v", err)
	}
	if token == "" {
		t.Fatal("expected non-empty token")
	}

	principal, err := auth.ValidateJWT(ctx, token)
	if err != nil {
		t.Fatalf("ValidateJWT: %v", err)
	}
	if principal.AdminID != 42 {
		t.Errorf("AdminID: got %d, want 42", principal.AdminID)
	}
	if principal.Email != "admin@example.com" {
		t.Errorf("Email: got %q, want %q", principal.Email, "admin@example.com")
	}
	if !principal.IsSuperAdmin {
		t.Error("expected super admin claim to survive the round trip")
	}
	if principal.TokenID == "" {
		t.Error("expected a token id")
	}
}

func TestJWTExpired(t *testing.T) {
	auth, _ := newTestAuth(t)
	ctx := context.Background()

	token, err := auth.IssueJWT(ctx, &model.Admin{ID: 1, Email: "test@test.com"}, -time.Hour)
	if err != nil {
		t.Fatalf("IssueJWT: %v", err)
	}

	if _, err := auth.ValidateJWT(ctx, token); !errors.Is(err, ErrTokenExpired) {
		t.Fatalf("expected ErrTokenExpired, got %v", err)
	}
}

func TestJWTInvalidToken(t *testing.T) {
	auth, _ := newTestAuth(t)
	ctx := context.Background()

	if _, err := auth.ValidateJWT(ctx, "garbage.token.here"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}

	other := NewAuthService(nil, "a-different-secret", discardLogger())
	token, _ := other.IssueJWT(ctx, &model.Admin{ID: 1}, time.Hour)
	if _, err := auth.ValidateJWT(ctx, token); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected token signed with another secret to fail, got %v", err)
	}
}

func TestRevokeJWT(t *testing.T) {
	auth, _ := newTestAuth(t)
	ctx := context.Background()

	token, _ := auth.IssueJWT(ctx, &model.Admin{ID: 7, Email: "a@b.c"}, time.Hour)
	p, err := auth.ValidateJWT(ctx, token)
	if err != nil {
		t.Fatalf("ValidateJWT: %v", err)
	}

	auth.RevokeJWT(p)
	if _, err := auth.ValidateJWT(ctx, token); !errors.Is(err, ErrTokenRevoked) {
		t.Fatalf("expected ErrTokenRevoked, got %v", err)
	}

	// Other sessions of the same admin stay valid.
	second, _ := auth.IssueJWT(ctx, &model.Admin{ID: 7, Email: "a@b.c"}, time.Hour)
	if _, err := auth.ValidateJWT(ctx, second); err != nil {
		t.Fatalf("second session should be valid: %v", err)
	}
}

func TestLogin(t *testing.T) {
	auth, store := newTestAuth(t)
	ctx := context.Background()

	seedAdmin(t, store, "ops@example.com", "correct-horse", true)
	seedAdmin(t, store, "gone@example.com", "correct-horse", false)

	token, admin, err := auth.Login(ctx, "ops@example.com", "correct-horse", time.Hour)
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if token == "" || admin.Email != "ops@example.com" {
		t.Fatalf("unexpected login result: %q %+v", token, admin)
	}

	got, err := store.GetAdmin(ctx, admin.ID)
	if err != nil {
		t.Fatalf("GetAdmin: %v", err)
	}
	if got.LastLoginAt == nil {
		t.Error("expected last login to be recorded")
	}

	tests := []struct {
		email, password string
		want            error
	}{
		{"ops@example.com", "wrong-password", ErrInvalidCredentials},
		{"nobody@example.com", "correct-horse", ErrInvalidCredentials},
		{"gone@example.com", "correct-horse", ErrAdminInactive},
	}
	for _, tt := range tests {
		if _, _, err := auth.Login(ctx, tt.email, tt.password, time.Hour); !errors.Is(err, tt.want) {
			t.Errorf("Login(%s) error = %v, want %v", tt.email, err, tt.want)
		}
	}
}

func TestLoginLogsFailedLastLogin(t *testing.T) {
	_, store := newTestAuth(t)
	seedAdmin(t, store, "ops@example.com", "correct-horse", true)

	var buf bytes.Buffer
	auth := NewAuthService(lastLoginFails{store}, "test-secret-key-for-jwt", slog.New(slog.NewTextHandler(&buf, nil)))

	token, _, err := auth.Login(context.Background(), "ops@example.com", "correct-horse", time.Hour)
	if err != nil || token == "" {
		t.Fatalf("Login should succeed when the timestamp update fails: %q, %v", token, err)
	}
	out := buf.String()
	if !strings.Contains(out, "level=WARN") || !strings.Contains(out, "database is locked") {
		t.Errorf("expected a warning with the cause, got %q", out)
	}
}

func TestHashPassword(t *testing.T) {
	if _, err := HashPassword("short"); err == nil {
		t.Error("expected short password to be rejected")
	}
	hash, err := HashPassword("long-enough-password")
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	if !CheckPassword(hash, "long-enough-password") {
		t.Error("expected password to match its hash")
	}
	if CheckPassword(hash, "other-password") {
		t.Error("expected wrong password not to match")
	}
}

// ---------------------------------------------------------------------------
// API keys
// ---------------------------------------------------------------------------

func TestGenerateAPIKey(t *testing.T) {
	gen, err := GenerateAPIKey()
	if err != nil {
		t.Fatalf("GenerateAPIKey: %v", err)
	}
	if !strings.HasPrefix(gen.Raw, KeyPrefix) || len(gen.Raw) != len(KeyPrefix)+64 {
		t.Errorf("unexpected raw key %q", gen.Raw)
	}
	if gen.Prefix != gen.Raw[:12] {
		t.Errorf("Prefix = %q, want %q", gen.Prefix, gen.Raw[:12])
	}
	if gen.Hash != config.HashAPIKey(gen.Raw) {
		t.Error("Hash does not match the raw key")
	}

	other, _ := GenerateAPIKey()
	if other.Raw == gen.Raw {
		t.Error("two generated keys must differ")
	}
}

func TestAPIKeyValidation(t *testing.T) {
	auth, store := newTestAuth(t)
	ctx := context.Background()

	owner := seedAdmin(t, store, "owner@example.com", "correct-horse", true)
	project := &model.Project{Slug: "acme", Name: "Acme", OwnerID: owner.ID}
	if err := store.CreateProject(ctx, project); err != nil {
		t.Fatalf("CreateProject: %v", err)
	}

	raw, key, err := auth.IssueAPIKey(ctx, project.ID, nil, "ci", 0)
	if err != nil {
		t.Fatalf("IssueAPIKey: %v", err)
	}
	if key.RequestLimitPerMonth != model.DefaultMonthlyRequestLimit {
		t.Errorf("expected default limit, got %d", key.RequestLimitPerMonth)
	}

	p, err := auth.ValidateAPIKey(ctx, raw)
	if err != nil {
		t.Fatalf("ValidateAPIKey: %v", err)
	}
	if p.KeyID != key.ID || p.ProjectID != project.ID {
		t.Errorf("unexpected principal %+v", p)
	}
	if !p.CanRead(project.ID, "any-dataset") {
		t.Error("project-wide key should read any dataset in its project")
	}
	if p.CanRead(project.ID+1, "any-dataset") {
		t.Error("key must not read another project")
	}

	if _, err := auth.ValidateAPIKey(ctx, "tap_not-a-real-key"); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("expected ErrInvalidCredentials, got %v", err)
	}
	if _, err := auth.ValidateAPIKey(ctx, ""); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("expected ErrInvalidCredentials for empty key, got %v", err)
	}
}

func TestAPIKeyRevoked(t *testing.T) {
	auth, store := newTestAuth(t)
	ctx := context.Background()

	owner := seedAdmin(t, store, "owner@example.com", "correct-horse", true)
	project := &model.Project{Slug: "acme", Name: "Acme", OwnerID: owner.ID}
	if err := store.CreateProject(ctx, project); err != nil {
		t.Fatalf("CreateProject: %v", err)
	}
	raw, key, err := auth.IssueAPIKey(ctx, project.ID, nil, "", 10)
	if err != nil {
		t.Fatalf("IssueAPIKey: %v", err)
	}
	if err := store.RevokeAPIKey(ctx, key.ID); err != nil {
		t.Fatalf("RevokeAPIKey: %v", err)
	}

	if _, err := auth.ValidateAPIKey(ctx, raw); !errors.Is(err, ErrKeyRevoked) {
		t.Fatalf("expected ErrKeyRevoked, got %v", err)
	}
}

func TestDatasetScopedPrincipal(t *testing.T) {
	ds := "0190a1b2-dataset"
	p := &APIKeyPrincipal{KeyID: 1, ProjectID: 3, DatasetID: &ds}
	if !p.CanRead(3, ds) {
		t.Error("scoped key should read its dataset")
	}
	if p.CanRead(3, "other") {
		t.Error("scoped key must not read another dataset")
	}
}
