package config

import (
	"fmt"
	"time"
)

// Settings is the effective tapfile configuration, assembled from defaults,
// tapfile.yaml, TAPFILE_* environment variables and flags.
type Settings struct {
	DataDir    string                       `yaml:"data_dir" mapstructure:"data_dir"`
	Server     ServerSettings               `yaml:"server" mapstructure:"server"`
	Auth       AuthSettings                 `yaml:"auth" mapstructure:"auth"`
	Warehouses map[string]WarehouseSettings `yaml:"warehouses" mapstructure:"warehouses"`
	Blob       BlobSettings                 `yaml:"blob" mapstructure:"blob"`
	Limits     LimitSettings                `yaml:"limits" mapstructure:"limits"`
	RateLimit  RateLimitSettings            `yaml:"rate_limit" mapstructure:"rate_limit"`
	Log        LogSettings                  `yaml:"log" mapstructure:"log"`
}

// ServerSettings controls the HTTP server behavior.
type ServerSettings struct {
	Host            string   `yaml:"host" mapstructure:"host"`
	Port            int      `yaml:"port" mapstructure:"port"`
	CORSOrigins     []string `yaml:"cors_origins" mapstructure:"cors_origins"`
	ShutdownTimeout string   `yaml:"shutdown_timeout" mapstructure:"shutdown_timeout"`
}

// AuthSettings controls admin session tokens.
type AuthSettings struct {
	JWTSecret string `yaml:"jwt_secret" mapstructure:"jwt_secret"`
	JWTTTL    string `yaml:"jwt_ttl" mapstructure:"jwt_ttl"`
}

// WarehouseSettings names a row warehouse. A project picks one by name at
// creation; "default" must always exist.
type WarehouseSettings struct {
	Driver string `yaml:"driver" mapstructure:"driver"`
	DSN    string `yaml:"dsn" mapstructure:"dsn"`
}

// BlobSettings selects where original uploads are archived.
type BlobSettings struct {
	Driver    string `yaml:"driver" mapstructure:"driver"` // local, s3 or minio
	Dir       string `yaml:"dir" mapstructure:"dir"`
	Bucket    string `yaml:"bucket" mapstructure:"bucket"`
	Endpoint  string `yaml:"endpoint" mapstructure:"endpoint"`
	Region    string `yaml:"region" mapstructure:"region"`
	AccessKey string `yaml:"access_key" mapstructure:"access_key"`
	SecretKey string `yaml:"secret_key" mapstructure:"secret_key"`
	UseSSL    bool   `yaml:"use_ssl" mapstructure:"use_ssl"`
	Compress  bool   `yaml:"compress" mapstructure:"compress"`
}

// LimitSettings holds the capacity ceilings enforced before any side effect.
type LimitSettings struct {
	MaxFileBytes          int64 `yaml:"max_file_bytes" mapstructure:"max_file_bytes"`
	MaxRows               int   `yaml:"max_rows" mapstructure:"max_rows"`
	MaxDatasetsPerProject int   `yaml:"max_datasets_per_project" mapstructure:"max_datasets_per_project"`
	MaxProjectsPerOwner   int   `yaml:"max_projects_per_owner" mapstructure:"max_projects_per_owner"`
	MonthlyRequests       int64 `yaml:"monthly_requests" mapstructure:"monthly_requests"`
	BatchSize             int   `yaml:"batch_size" mapstructure:"batch_size"`
	ConcurrentIngests     int64 `yaml:"concurrent_ingests" mapstructure:"concurrent_ingests"`
}

// RateLimitSettings controls burst throttling in front of the query route.
// Zero disables a limiter.
type RateLimitSettings struct {
	PerKeyPerMinute int `yaml:"per_key_per_minute" mapstructure:"per_key_per_minute"`
	PerIPPerMinute  int `yaml:"per_ip_per_minute" mapstructure:"per_ip_per_minute"`
}

// LogSettings controls log output.
type LogSettings struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// DefaultSettings returns Settings pre-filled with working defaults: a SQLite
// warehouse and local blob storage under the data directory.
func DefaultSettings() *Settings {
	return &Settings{
		Server: ServerSettings{
			Host:            "0.0.0.0",
			Port:            8080,
			CORSOrigins:     []string{"*"},
			ShutdownTimeout: "30s",
		},
		Auth: AuthSettings{
			JWTTTL: "24h",
		},
		Warehouses: map[string]WarehouseSettings{
			"default": {Driver: "sqlite"},
		},
		Blob: BlobSettings{
			Driver:   "local",
			Region:   "us-east-1",
			Compress: true,
		},
		Limits: LimitSettings{
			MaxFileBytes:          50 << 20,
			MaxRows:               1_000_000,
			MaxDatasetsPerProject: 100,
			MaxProjectsPerOwner:   20,
			MonthlyRequests:       10000,
			BatchSize:             500,
			ConcurrentIngests:     4,
		},
		RateLimit: RateLimitSettings{
			PerKeyPerMinute: 600,
			PerIPPerMinute:  1200,
		},
		Log: LogSettings{
			Level:  "info",
			Format: "text",
		},
	}
}

// Validate reports the first setting that cannot work.
func (s *Settings) Validate() error {
	if _, ok := s.Warehouses["default"]; !ok {
		return fmt.Errorf("warehouses.default is required")
	}
	for name, w := range s.Warehouses {
		switch w.Driver {
		case "sqlite", "postgres", "mysql":
		default:
			return fmt.Errorf("warehouses.%s: unsupported driver %q", name, w.Driver)
		}
		if w.Driver != "sqlite" && w.DSN == "" {
			return fmt.Errorf("warehouses.%s: dsn is required for %s", name, w.Driver)
		}
	}

	switch s.Blob.Driver {
	case "local":
	case "s3", "minio":
		if s.Blob.Bucket == "" {
			return fmt.Errorf("blob.bucket is required for the %s driver", s.Blob.Driver)
		}
		if s.Blob.Driver == "minio" && s.Blob.Endpoint == "" {
			return fmt.Errorf("blob.endpoint is required for the minio driver")
		}
	default:
		return fmt.Errorf("blob: unsupported driver %q", s.Blob.Driver)
	}

	if s.Limits.BatchSize <= 0 {
		return fmt.Errorf("limits.batch_size must be positive")
	}
	if s.Limits.ConcurrentIngests <= 0 {
		return fmt.Errorf("limits.concurrent_ingests must be positive")
	}
	if _, err := time.ParseDuration(s.Server.ShutdownTimeout); err != nil {
		return fmt.Errorf("server.shutdown_timeout: %w", err)
	}
	if _, err := time.ParseDuration(s.Auth.JWTTTL); err != nil {
		return fmt.Errorf("auth.jwt_ttl: %w", err)
	}
	return nil
}

// ShutdownTimeout returns the parsed server shutdown timeout.
func (s *Settings) ShutdownTimeout() time.Duration {
	return parseDurationOr(s.Server.ShutdownTimeout, 30*time.Second)
}

// JWTTTL returns the parsed admin session lifetime.
func (s *Settings) JWTTTL() time.Duration {
	return parseDurationOr(s.Auth.JWTTTL, 24*time.Hour)
}

func parseDurationOr(v string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}
