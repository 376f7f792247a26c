package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/tapfile/tapfile/internal/config"
	"github.com/tapfile/tapfile/internal/model"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrTokenExpired       = errors.New("token expired")
	ErrTokenRevoked       = errors.New("token revoked")
	ErrKeyRevoked         = errors.New("api key revoked")
	ErrAdminInactive      = errors.New("admin account is disabled")
)

// APIKeyPrincipal is the identity resolved from a dataset API key.
type APIKeyPrincipal struct {
	KeyID     int64
	ProjectID int64
	// DatasetID narrows the key to one dataset when set.
	DatasetID *string
}

// CanRead reports whether the key may read datasetID in projectID.
func (p *APIKeyPrincipal) CanRead(projectID int64, datasetID string) bool {
	if p.ProjectID != projectID {
		return false
	}
	return p.DatasetID == nil || *p.DatasetID == datasetID
}

// JWTPrincipal is the identity resolved from an admin session token.
type JWTPrincipal struct {
	AdminID      int64
	Email        string
	IsSuperAdmin bool
	TokenID      string
	ExpiresAt    time.Time
}

// CredentialStore is the part of the metadata store AuthService uses.
type CredentialStore interface {
	GetAPIKeyByHash(ctx context.Context, hash string) (*model.APIKey, error)
	CreateAPIKey(ctx context.Context, key *model.APIKey) error
	GetAdminByEmail(ctx context.Context, email string) (*model.Admin, error)
	UpdateAdminLastLogin(ctx context.Context, id int64) error
}

// AuthService validates API keys and admin sessions.
type AuthService struct {
	store     CredentialStore
	jwtSecret []byte
	logger    *slog.Logger

	mu      sync.Mutex
	revoked map[string]time.Time // token id -> expiry
}

func NewAuthService(store CredentialStore, jwtSecret string, logger *slog.Logger) *AuthService {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuthService{
		store:     store,
		jwtSecret: []byte(jwtSecret),
		logger:    logger,
		revoked:   make(map[string]time.Time),
	}
}

// ValidateAPIKey checks the provided raw API key against stored key hashes.
func (s *AuthService) ValidateAPIKey(ctx context.Context, rawKey string) (*APIKeyPrincipal, error) {
	if rawKey == "" {
		return nil, ErrInvalidCredentials
	}

	key, err := s.store.GetAPIKeyByHash(ctx, config.HashAPIKey(rawKey))
	if err != nil {
		if errors.Is(err, config.ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("look up api key: %w", err)
	}

	if !key.IsActive {
		return nil, ErrKeyRevoked
	}

	return &APIKeyPrincipal{
		KeyID:     key.ID,
		ProjectID: key.ProjectID,
		DatasetID: key.DatasetID,
	}, nil
}

// Login checks an admin's email and password and issues a session token.
func (s *AuthService) Login(ctx context.Context, email, password string, ttl time.Duration) (string, *model.Admin, error) {
	admin, err := s.store.GetAdminByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, config.ErrNotFound) {
			return "", nil, ErrInvalidCredentials
		}
		return "", nil, err
	}
	if !CheckPassword(admin.PasswordHash, password) {
		return "", nil, ErrInvalidCredentials
	}
	if !admin.IsActive {
		return "", nil, ErrAdminInactive
	}

	token, err := s.IssueJWT(ctx, admin, ttl)
	if err != nil {
		return "", nil, err
	}

	// A failed timestamp update does not block login.
	if err := s.store.UpdateAdminLastLogin(ctx, admin.ID); err != nil {
		s.logger.Warn("failed to record admin login", "admin_id", admin.ID, "error", err)
	}

	return token, admin, nil
}

// ValidateJWT verifies a JWT bearer token and returns the associated admin identity.
func (s *AuthService) ValidateJWT(_ context.Context, tokenStr string) (*JWTPrincipal, error) {
	claims := &jwtClaims{}

	token, err := jwt.ParseWithClaims(tokenStr, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return s.jwtSecret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrInvalidCredentials
	}
	if !token.Valid {
		return nil, ErrInvalidCredentials
	}
	if s.isRevoked(claims.ID) {
		return nil, ErrTokenRevoked
	}

	p := &JWTPrincipal{
		AdminID:      claims.AdminID,
		Email:        claims.Email,
		IsSuperAdmin: claims.SuperAdmin,
		TokenID:      claims.ID,
	}
	if claims.ExpiresAt != nil {
		p.ExpiresAt = claims.ExpiresAt.Time
	}
	return p, nil
}

// IssueJWT creates a new signed JWT token for the given admin.
func (s *AuthService) IssueJWT(_ context.Context, admin *model.Admin, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := jwtClaims{
		AdminID:    admin.ID,
		Email:      admin.Email,
		SuperAdmin: admin.IsSuperAdmin,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			Issuer:    "tapfile",
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.jwtSecret)
}

// RevokeJWT invalidates a session until its natural expiry. Revocations are
// kept in memory and do not survive a restart.
func (s *AuthService) RevokeJWT(p *JWTPrincipal) {
	if p == nil || p.TokenID == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	for id, exp := range s.revoked {
		if exp.Before(now) {
			delete(s.revoked, id)
		}
	}
	s.revoked[p.TokenID] = p.ExpiresAt
}

func (s *AuthService) isRevoked(id string) bool {
	if id == "" {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.revoked[id]
	return ok
}

type jwtClaims struct {
	AdminID    int64  `json:"admin_id"`
	Email      string `json:"email"`
	SuperAdmin bool   `json:"super_admin,omitempty"`
	jwt.RegisteredClaims
}

// HashPassword returns the bcrypt hash of a password.
func HashPassword(password string) (string, error) {
	if len(password) < 8 {
		return "", errors.New("password must be at least 8 characters")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}

// CheckPassword reports whether password matches a bcrypt hash.
func CheckPassword(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}
