package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/tapfile/tapfile/internal/config"
)

var (
	cfgFile    string
	appVersion string // set in Execute, reported by serve and mcp
)

// Execute creates the root command tree and runs it.
func Execute(version, commit, date string) error {
	appVersion = version
	rootCmd := newRootCmd(version, commit, date)
	return rootCmd.Execute()
}

func newRootCmd(version, commit, date string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tapfile",
		Short: "Turn CSV files into metered query APIs",
		Long: `tapfile: Turn CSV files into metered query APIs.

Upload a CSV file and tapfile infers its schema, stores the rows in a SQL
warehouse and serves them over a paginated, filterable HTTP endpoint guarded
by per-dataset API keys with monthly quotas. Every dataset also gets an
OpenAPI document and is reachable from AI agents through the MCP server.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./tapfile.yaml)")
	cmd.PersistentFlags().String("data-dir", "", "data directory for the metadata store (default: ~/.tapfile)")
	cmd.PersistentFlags().String("log-level", "info", "log level: debug, info, warn or error")

	viper.BindPFlag("data_dir", cmd.PersistentFlags().Lookup("data-dir"))
	viper.BindPFlag("log.level", cmd.PersistentFlags().Lookup("log-level"))

	cobra.OnInitialize(initConfig)

	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newVersionCmd(version, commit, date))
	cmd.AddCommand(newAdminCmd())
	cmd.AddCommand(newProjectCmd())
	cmd.AddCommand(newDatasetCmd())
	cmd.AddCommand(newKeyCmd())
	cmd.AddCommand(newUsageCmd())
	cmd.AddCommand(newOpenAPICmd())
	cmd.AddCommand(newMCPCmd())
	cmd.AddCommand(newConfigCmd())

	return cmd
}

func initConfig() {
	godotenv.Load() // .env is optional

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("tapfile")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
		viper.AddConfigPath("$HOME/.tapfile")
	}

	viper.SetEnvPrefix("TAPFILE")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()
	setDefaults(viper.GetViper())
	viper.ReadInConfig() // Ignore error - config file is optional
}

// setDefaults registers every settings key with its default. Env overrides
// only apply to keys viper knows about.
func setDefaults(v *viper.Viper) {
	d := config.DefaultSettings()

	v.SetDefault("data_dir", "")

	v.SetDefault("server.host", d.Server.Host)
	v.SetDefault("server.port", d.Server.Port)
	v.SetDefault("server.cors_origins", d.Server.CORSOrigins)
	v.SetDefault("server.shutdown_timeout", d.Server.ShutdownTimeout)

	v.SetDefault("auth.jwt_secret", d.Auth.JWTSecret)
	v.SetDefault("auth.jwt_ttl", d.Auth.JWTTTL)

	for name, w := range d.Warehouses {
		v.SetDefault("warehouses."+name+".driver", w.Driver)
		v.SetDefault("warehouses."+name+".dsn", w.DSN)
	}

	v.SetDefault("blob.driver", d.Blob.Driver)
	v.SetDefault("blob.dir", d.Blob.Dir)
	v.SetDefault("blob.bucket", d.Blob.Bucket)
	v.SetDefault("blob.endpoint", d.Blob.Endpoint)
	v.SetDefault("blob.region", d.Blob.Region)
	v.SetDefault("blob.access_key", d.Blob.AccessKey)
	v.SetDefault("blob.secret_key", d.Blob.SecretKey)
	v.SetDefault("blob.use_ssl", d.Blob.UseSSL)
	v.SetDefault("blob.compress", d.Blob.Compress)

	v.SetDefault("limits.max_file_bytes", d.Limits.MaxFileBytes)
	v.SetDefault("limits.max_rows", d.Limits.MaxRows)
	v.SetDefault("limits.max_datasets_per_project", d.Limits.MaxDatasetsPerProject)
	v.SetDefault("limits.max_projects_per_owner", d.Limits.MaxProjectsPerOwner)
	v.SetDefault("limits.monthly_requests", d.Limits.MonthlyRequests)
	v.SetDefault("limits.batch_size", d.Limits.BatchSize)
	v.SetDefault("limits.concurrent_ingests", d.Limits.ConcurrentIngests)

	v.SetDefault("rate_limit.per_key_per_minute", d.RateLimit.PerKeyPerMinute)
	v.SetDefault("rate_limit.per_ip_per_minute", d.RateLimit.PerIPPerMinute)

	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)
}

// loadSettings decodes the effective settings from v and validates them.
// Defaults come from setDefaults, so s starts empty.
func loadSettings(v *viper.Viper) (*config.Settings, error) {
	s := &config.Settings{}
	if err := v.Unmarshal(s); err != nil {
		return nil, fmt.Errorf("decode settings: %w", err)
	}
	if s.DataDir == "" {
		s.DataDir = defaultDataDir()
	}
	if err := s.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return s, nil
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".tapfile"
	}
	return filepath.Join(home, ".tapfile")
}
