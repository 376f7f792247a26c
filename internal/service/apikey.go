package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"

	"github.com/tapfile/tapfile/internal/config"
	"github.com/tapfile/tapfile/internal/model"
)

// KeyPrefix starts every raw API key.
const KeyPrefix = "tap_"

// displayPrefixLen is how much of a raw key is stored for identification:
// "tap_" plus the first 8 hex characters.
const displayPrefixLen = len(KeyPrefix) + 8

// GeneratedKey is a fresh API key. Raw is shown to the caller once; only
// Hash and Prefix are stored.
type GeneratedKey struct {
	Raw    string
	Prefix string
	Hash   string
}

// GenerateAPIKey returns a new random key: "tap_" followed by 64 hex
// characters.
func GenerateAPIKey() (GeneratedKey, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return GeneratedKey{}, fmt.Errorf("generate api key: %w", err)
	}
	raw := KeyPrefix + hex.EncodeToString(b)
	return GeneratedKey{
		Raw:    raw,
		Prefix: raw[:displayPrefixLen],
		Hash:   config.HashAPIKey(raw),
	}, nil
}

// NewAPIKeyRecord builds the stored record for a generated key.
func NewAPIKeyRecord(gen GeneratedKey, projectID int64, datasetID *string, label string, monthlyLimit int64) *model.APIKey {
	return &model.APIKey{
		ProjectID:            projectID,
		DatasetID:            datasetID,
		KeyHash:              gen.Hash,
		KeyPrefix:            gen.Prefix,
		Label:                label,
		RequestLimitPerMonth: monthlyLimit,
		IsActive:             true,
	}
}

// IssueAPIKey generates and stores a key. The raw key is returned once.
func (s *AuthService) IssueAPIKey(ctx context.Context, projectID int64, datasetID *string, label string, monthlyLimit int64) (string, *model.APIKey, error) {
	gen, err := GenerateAPIKey()
	if err != nil {
		return "", nil, err
	}
	key := NewAPIKeyRecord(gen, projectID, datasetID, label, monthlyLimit)
	if err := s.store.CreateAPIKey(ctx, key); err != nil {
		return "", nil, err
	}
	return gen.Raw, key, nil
}
