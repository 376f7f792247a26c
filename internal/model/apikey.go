package model

import "time"

// DefaultMonthlyRequestLimit is the request ceiling given to keys issued
// without an explicit limit.
const DefaultMonthlyRequestLimit = 10000

// APIKey is a bearer credential scoped to one project, optionally narrowed to
// a single dataset. The raw key is never stored; only a SHA-256 hash and a
// short prefix for identification are persisted.
type APIKey struct {
	ID                   int64      `json:"id" db:"id"`
	ProjectID            int64      `json:"project_id" db:"project_id"`
	DatasetID            *string    `json:"dataset_id,omitempty" db:"dataset_id"`
	KeyHash              string     `json:"-" db:"key_hash"`            // SHA-256 hash, never expose
	KeyPrefix            string     `json:"key_prefix" db:"key_prefix"` // First 12 chars for identification
	Label                string     `json:"label" db:"label"`
	RequestCount         int64      `json:"request_count" db:"request_count"`
	RequestLimitPerMonth int64      `json:"request_limit_per_month" db:"request_limit_per_month"`
	Period               string     `json:"period" db:"period"` // UTC month the count applies to, "2006-01"
	IsActive             bool       `json:"is_active" db:"is_active"`
	LastUsedAt           *time.Time `json:"last_used_at,omitempty" db:"last_used_at"`
	CreatedAt            time.Time  `json:"created_at" db:"created_at"`
}

// PeriodOf returns the quota period containing t.
func PeriodOf(t time.Time) string {
	return t.UTC().Format("2006-01")
}

// Remaining returns how many requests are left in the current period.
func (k *APIKey) Remaining() int64 {
	if n := k.RequestLimitPerMonth - k.RequestCount; n > 0 {
		return n
	}
	return 0
}

// UsageLog is one served (or rejected) query request charged to an API key.
type UsageLog struct {
	ID             int64     `json:"id" db:"id"`
	APIKeyID       int64     `json:"api_key_id" db:"api_key_id"`
	ProjectID      int64     `json:"project_id" db:"project_id"`
	DatasetID      string    `json:"dataset_id" db:"dataset_id"`
	Endpoint       string    `json:"endpoint" db:"endpoint"`
	StatusCode     int       `json:"status_code" db:"status_code"`
	ResponseTimeMs float64   `json:"response_time_ms" db:"response_time_ms"`
	QueryParams    string    `json:"query_params" db:"query_params"` // JSON object
	CreatedAt      time.Time `json:"created_at" db:"created_at"`
}
