package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/nyaruka/phonenumbers"
	"github.com/spf13/viper"
)

// Config holds all application configuration. It is built once by Load and
// passed to constructors; nothing reads it through a global.
type Config struct {
	App       AppConfig
	Epicor    EpicorConfig
	HubSpot   HubSpotConfig
	Sync      SyncConfig
	AWS       AWSConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Log       LogConfig
	HTTP      HTTPConfig
	Telemetry TelemetryConfig
}

// AppConfig holds application-specific settings
type AppConfig struct {
	Name string
	Env  string // development, staging, production
	Port string
}

// EpicorConfig holds the ERP OData connection settings
type EpicorConfig struct {
	BaseURL            string
	Company            string
	Username           string
	Password           string
	APIKey             string
	Timeout            time.Duration
	InsecureSkipVerify bool
}

// HubSpotConfig holds the CRM connection settings
type HubSpotConfig struct {
	APIKey            string
	BaseURL           string
	QuotesPipelineID  string
	OrdersPipelineID  string
	RateLimitInterval time.Duration // minimum spacing between requests
	Timeout           time.Duration
}

// SyncConfig holds sync behaviour settings
type SyncConfig struct {
	BatchSize           int
	MaxRetries          int
	Customers           bool
	Quotes              bool
	Orders              bool
	SalesRepMappingFile string
	PhoneRegion         string // region for phone numbers without a country code
	OutputDir           string
	CheckpointFile      string
	Interval            time.Duration // server schedule, 0 disables it
	RunTimeout          time.Duration
}

// AWSConfig holds the S3 settings used for run artifacts. An empty bucket
// keeps artifacts on local disk.
type AWSConfig struct {
	Region         string
	S3Bucket       string
	Endpoint       string
	AccessKey      string
	SecretKey      string
	UsePathStyle   bool
	ArtifactPrefix string
}

// DatabaseConfig holds the run history store settings
type DatabaseConfig struct {
	Driver          string // sqlite, postgres
	Path            string // sqlite file
	Host            string
	Port            int
	User            string
	Password        string
	DBName          string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime int // in minutes
}

// RedisConfig holds Redis connection settings for the distributed run lock
type RedisConfig struct {
	Enabled  bool
	Host     string
	Port     int
	Password string
	DB       int
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string // debug, info, warn, error
	Format string // json, console
	Output string // stdout, stderr, or file path
}

// HTTPConfig holds the status server settings
type HTTPConfig struct {
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
	MaxBodySize  int64 // bytes
}

// TelemetryConfig holds OpenTelemetry configuration
type TelemetryConfig struct {
	Enabled           bool
	CollectorEndpoint string  // OTEL Collector gRPC endpoint
	SamplingRatio     float64 // 0.0-1.0
	ServiceName       string
	Insecure          bool // development only
	DBTraceEnabled    bool
	DBLogFullSQL      bool
	DBSlowQueryThresh time.Duration
}

// Load loads configuration from .env, config.toml and environment variables.
// Priority (highest to lowest):
// 1. Environment variables with CRMSYNC_ prefix (e.g., CRMSYNC_HUBSPOT_API_KEY)
// 2. .env file in the working directory
// 3. config.toml
// 4. Built-in defaults
func Load() (*Config, error) {
	return LoadFrom("")
}

// LoadFrom is Load with an explicit config file. An empty path searches the
// default locations.
func LoadFrom(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("error reading .env file: %w", err)
	}

	v := viper.New()
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("toml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/app")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	v.SetEnvPrefix("CRMSYNC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// toggles default to on, so they need viper defaults rather than zero checks
	v.SetDefault("sync.customers", true)
	v.SetDefault("sync.quotes", true)
	v.SetDefault("sync.orders", true)

	cfg := &Config{
		App: AppConfig{
			Name: v.GetString("app.name"),
			Env:  v.GetString("app.env"),
			Port: v.GetString("app.port"),
		},
		Epicor: EpicorConfig{
			BaseURL:            v.GetString("epicor.base_url"),
			Company:            v.GetString("epicor.company"),
			Username:           v.GetString("epicor.username"),
			Password:           v.GetString("epicor.password"),
			APIKey:             v.GetString("epicor.api_key"),
			Timeout:            v.GetDuration("epicor.timeout"),
			InsecureSkipVerify: v.GetBool("epicor.insecure_skip_verify"),
		},
		HubSpot: HubSpotConfig{
			APIKey:            v.GetString("hubspot.api_key"),
			BaseURL:           v.GetString("hubspot.base_url"),
			QuotesPipelineID:  v.GetString("hubspot.quotes_pipeline_id"),
			OrdersPipelineID:  v.GetString("hubspot.orders_pipeline_id"),
			RateLimitInterval: v.GetDuration("hubspot.rate_limit_interval"),
			Timeout:           v.GetDuration("hubspot.timeout"),
		},
		Sync: SyncConfig{
			BatchSize:           v.GetInt("sync.batch_size"),
			MaxRetries:          v.GetInt("sync.max_retries"),
			Customers:           v.GetBool("sync.customers"),
			Quotes:              v.GetBool("sync.quotes"),
			Orders:              v.GetBool("sync.orders"),
			SalesRepMappingFile: v.GetString("sync.sales_rep_mapping_file"),
			PhoneRegion:         strings.ToUpper(strings.TrimSpace(v.GetString("sync.phone_region"))),
			OutputDir:           v.GetString("sync.output_dir"),
			CheckpointFile:      v.GetString("sync.checkpoint_file"),
			Interval:            v.GetDuration("sync.interval"),
			RunTimeout:          v.GetDuration("sync.run_timeout"),
		},
		AWS: AWSConfig{
			Region:         v.GetString("aws.region"),
			S3Bucket:       v.GetString("aws.s3_bucket"),
			Endpoint:       v.GetString("aws.endpoint"),
			AccessKey:      v.GetString("aws.access_key"),
			SecretKey:      v.GetString("aws.secret_key"),
			UsePathStyle:   v.GetBool("aws.use_path_style"),
			ArtifactPrefix: v.GetString("aws.artifact_prefix"),
		},
		Database: DatabaseConfig{
			Driver:          v.GetString("database.driver"),
			Path:            v.GetString("database.path"),
			Host:            v.GetString("database.host"),
			Port:            v.GetInt("database.port"),
			User:            v.GetString("database.user"),
			Password:        v.GetString("database.password"),
			DBName:          v.GetString("database.dbname"),
			SSLMode:         v.GetString("database.sslmode"),
			MaxOpenConns:    v.GetInt("database.max_open_conns"),
			MaxIdleConns:    v.GetInt("database.max_idle_conns"),
			ConnMaxLifetime: v.GetInt("database.conn_max_lifetime"),
		},
		Redis: RedisConfig{
			Enabled:  v.GetBool("redis.enabled"),
			Host:     v.GetString("redis.host"),
			Port:     v.GetInt("redis.port"),
			Password: v.GetString("redis.password"),
			DB:       v.GetInt("redis.db"),
		},
		Log: LogConfig{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
			Output: v.GetString("log.output"),
		},
		HTTP: HTTPConfig{
			ReadTimeout:  v.GetDuration("http.read_timeout"),
			WriteTimeout: v.GetDuration("http.write_timeout"),
			IdleTimeout:  v.GetDuration("http.idle_timeout"),
			MaxBodySize:  v.GetInt64("http.max_body_size"),
		},
		Telemetry: TelemetryConfig{
			Enabled:           v.GetBool("telemetry.enabled"),
			CollectorEndpoint: v.GetString("telemetry.collector_endpoint"),
			SamplingRatio:     v.GetFloat64("telemetry.sampling_ratio"),
			ServiceName:       v.GetString("telemetry.service_name"),
			Insecure:          v.GetBool("telemetry.insecure"),
			DBTraceEnabled:    v.GetBool("telemetry.db_trace_enabled"),
			DBLogFullSQL:      v.GetBool("telemetry.db_log_full_sql"),
			DBSlowQueryThresh: v.GetDuration("telemetry.db_slow_query_threshold"),
		},
	}

	applyDefaults(cfg)

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// applyDefaults sets default values for any empty config fields
func applyDefaults(cfg *Config) {
	if cfg.App.Name == "" {
		cfg.App.Name = "crmsync"
	}
	if cfg.App.Env == "" {
		cfg.App.Env = "development"
	}
	if cfg.App.Port == "" {
		cfg.App.Port = "8080"
	}
	if cfg.Epicor.Timeout == 0 {
		cfg.Epicor.Timeout = 60 * time.Second
	}
	if cfg.HubSpot.BaseURL == "" {
		cfg.HubSpot.BaseURL = "https://api.hubapi.com"
	}
	if cfg.HubSpot.RateLimitInterval == 0 {
		cfg.HubSpot.RateLimitInterval = 110 * time.Millisecond
	}
	if cfg.HubSpot.Timeout == 0 {
		cfg.HubSpot.Timeout = 30 * time.Second
	}
	if cfg.Sync.BatchSize == 0 {
		cfg.Sync.BatchSize = 100
	}
	if cfg.Sync.MaxRetries == 0 {
		cfg.Sync.MaxRetries = 3
	}
	if cfg.Sync.SalesRepMappingFile == "" {
		cfg.Sync.SalesRepMappingFile = "config/sales_rep_mapping.json"
	}
	if cfg.Sync.PhoneRegion == "" {
		cfg.Sync.PhoneRegion = "US"
	}
	if cfg.Sync.OutputDir == "" {
		cfg.Sync.OutputDir = "."
	}
	if cfg.Sync.CheckpointFile == "" {
		cfg.Sync.CheckpointFile = "migration_checkpoint.json"
	}
	if cfg.Sync.Interval == 0 {
		cfg.Sync.Interval = time.Hour
	}
	if cfg.Sync.RunTimeout == 0 {
		cfg.Sync.RunTimeout = 4 * time.Hour
	}
	if cfg.AWS.Region == "" {
		cfg.AWS.Region = "us-east-1"
	}
	if cfg.AWS.ArtifactPrefix == "" {
		cfg.AWS.ArtifactPrefix = "crmsync"
	}
	if cfg.Database.Driver == "" {
		cfg.Database.Driver = "sqlite"
	}
	if cfg.Database.Path == "" {
		cfg.Database.Path = "crmsync.db"
	}
	if cfg.Database.Host == "" {
		cfg.Database.Host = "localhost"
	}
	if cfg.Database.Port == 0 {
		cfg.Database.Port = 5432
	}
	if cfg.Database.User == "" {
		cfg.Database.User = "postgres"
	}
	if cfg.Database.DBName == "" {
		cfg.Database.DBName = "crmsync"
	}
	if cfg.Database.SSLMode == "" {
		cfg.Database.SSLMode = "disable"
	}
	if cfg.Database.MaxOpenConns == 0 {
		cfg.Database.MaxOpenConns = 10
	}
	if cfg.Database.MaxIdleConns == 0 {
		cfg.Database.MaxIdleConns = 2
	}
	if cfg.Database.ConnMaxLifetime == 0 {
		cfg.Database.ConnMaxLifetime = 60
	}
	if cfg.Redis.Host == "" {
		cfg.Redis.Host = "localhost"
	}
	if cfg.Redis.Port == 0 {
		cfg.Redis.Port = 6379
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "console"
	}
	if cfg.Log.Output == "" {
		cfg.Log.Output = "stdout"
	}
	if cfg.HTTP.ReadTimeout == 0 {
		cfg.HTTP.ReadTimeout = 15 * time.Second
	}
	if cfg.HTTP.WriteTimeout == 0 {
		cfg.HTTP.WriteTimeout = 15 * time.Second
	}
	if cfg.HTTP.IdleTimeout == 0 {
		cfg.HTTP.IdleTimeout = 60 * time.Second
	}
	if cfg.HTTP.MaxBodySize <= 0 {
		cfg.HTTP.MaxBodySize = 1 << 20
	}
	if cfg.Telemetry.CollectorEndpoint == "" {
		cfg.Telemetry.CollectorEndpoint = "localhost:4317"
	}
	if cfg.Telemetry.SamplingRatio == 0 {
		cfg.Telemetry.SamplingRatio = 1.0
	}
	if cfg.Telemetry.ServiceName == "" {
		cfg.Telemetry.ServiceName = "crmsync"
	}
	if cfg.Telemetry.DBSlowQueryThresh == 0 {
		cfg.Telemetry.DBSlowQueryThresh = 200 * time.Millisecond
	}
}

// validate performs validation on the configuration
func (c *Config) validate() error {
	switch c.App.Env {
	case "development", "staging", "production":
	default:
		return fmt.Errorf("app.env must be development, staging or production, got %q", c.App.Env)
	}

	if c.Sync.BatchSize < 1 || c.Sync.BatchSize > 1000 {
		return fmt.Errorf("sync.batch_size must be between 1 and 1000, got %d", c.Sync.BatchSize)
	}
	if c.Sync.MaxRetries < 1 || c.Sync.MaxRetries > 10 {
		return fmt.Errorf("sync.max_retries must be between 1 and 10, got %d", c.Sync.MaxRetries)
	}
	if c.Sync.Interval < 0 {
		return fmt.Errorf("sync.interval cannot be negative")
	}
	if !phonenumbers.GetSupportedRegions()[c.Sync.PhoneRegion] {
		return fmt.Errorf("sync.phone_region must be a supported region code, got %q", c.Sync.PhoneRegion)
	}

	switch c.Database.Driver {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("database.driver must be sqlite or postgres, got %q", c.Database.Driver)
	}
	if c.Database.MaxIdleConns > c.Database.MaxOpenConns {
		return fmt.Errorf("database.max_idle_conns (%d) cannot exceed database.max_open_conns (%d)",
			c.Database.MaxIdleConns, c.Database.MaxOpenConns)
	}

	if c.App.Env == "production" {
		if c.Epicor.InsecureSkipVerify {
			return fmt.Errorf("epicor.insecure_skip_verify must be false in production")
		}
		if c.Telemetry.DBLogFullSQL {
			return fmt.Errorf("telemetry.db_log_full_sql must be false in production to prevent sensitive data exposure in traces")
		}
	}

	if c.Telemetry.SamplingRatio < 0.0 || c.Telemetry.SamplingRatio > 1.0 {
		return fmt.Errorf("telemetry.sampling_ratio must be between 0.0 and 1.0, got %f", c.Telemetry.SamplingRatio)
	}

	return nil
}

// ValidateForSync checks the settings every command that talks to Epicor and
// HubSpot needs. Load does not require them so that status commands work
// without credentials.
func (c *Config) ValidateForSync() error {
	var missing []string
	if c.Epicor.BaseURL == "" {
		missing = append(missing, "epicor.base_url")
	}
	if c.Epicor.Company == "" {
		missing = append(missing, "epicor.company")
	}
	if c.Epicor.APIKey == "" && (c.Epicor.Username == "" || c.Epicor.Password == "") {
		missing = append(missing, "epicor.api_key or epicor.username/password")
	}
	if c.HubSpot.APIKey == "" {
		missing = append(missing, "hubspot.api_key")
	}
	if c.HubSpot.QuotesPipelineID == "" {
		missing = append(missing, "hubspot.quotes_pipeline_id")
	}
	if c.HubSpot.OrdersPipelineID == "" {
		missing = append(missing, "hubspot.orders_pipeline_id")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required configuration: %s", strings.Join(missing, ", "))
	}
	if _, err := url.ParseRequestURI(c.Epicor.BaseURL); err != nil {
		return fmt.Errorf("epicor.base_url is not a valid URL: %w", err)
	}
	return nil
}

// IsProduction returns true in the production environment
func (c *Config) IsProduction() bool {
	return c.App.Env == "production"
}

// DSN returns the postgres connection string with properly escaped values
func (d *DatabaseConfig) DSN() string {
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(d.User, d.Password),
		Host:   fmt.Sprintf("%s:%d", d.Host, d.Port),
		Path:   d.DBName,
	}
	q := u.Query()
	q.Set("sslmode", d.SSLMode)
	u.RawQuery = q.Encode()
	return u.String()
}

// Addr returns the Redis host:port
func (r *RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}
