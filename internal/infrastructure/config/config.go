package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	App          AppConfig
	Database     DatabaseConfig
	Redis        RedisConfig
	JWT          JWTConfig
	Log          LogConfig
	HTTP         HTTPConfig
	Telemetry    TelemetryConfig
	WaafiPay     WaafiPayConfig
	Offline      OfflineConfig
	Subscription SubscriptionConfig
	Sweeper      SweeperConfig
	Notification NotificationConfig
	Storage      StorageConfig
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string // debug, info, warn, error
	Format string // json, console
	Output string // stdout, stderr, or file path
}

// AppConfig holds application-specific settings
type AppConfig struct {
	Name string
	Env  string
	Port string
}

// DatabaseConfig holds database connection settings
type DatabaseConfig struct {
	Host            string
	Port            int
	User            string
	Password        string
	DBName          string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime int // in minutes
	ConnMaxIdleTime int // in minutes
}

// RedisConfig holds Redis connection settings
type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

// JWTConfig holds access-token validation settings. Tokens are issued by the
// identity service; this service only verifies them.
type JWTConfig struct {
	Secret string
	Issuer string
}

// HTTPConfig holds HTTP server configuration
type HTTPConfig struct {
	ReadTimeout      time.Duration
	WriteTimeout     time.Duration
	IdleTimeout      time.Duration
	MaxHeaderBytes   int
	MaxBodySize      int64
	CORSAllowOrigins []string
	CORSAllowMethods []string
	CORSAllowHeaders []string
	TrustedProxies   []string
	Docs             DocsConfig
}

// DocsConfig controls the /swagger API documentation endpoint
type DocsConfig struct {
	Enabled     bool
	RequireAuth bool     // demand a valid access token
	AllowedIPs  []string // IPs or CIDRs; empty allows every client
}

// TelemetryConfig holds OpenTelemetry configuration
type TelemetryConfig struct {
	Enabled           bool    // Whether to enable OpenTelemetry
	CollectorEndpoint string  // OTEL Collector endpoint (e.g., "localhost:4317")
	SamplingRatio     float64 // Sampling ratio (0.0-1.0, 1.0 = 100%)
	ServiceName       string  // Service name for traces
	Insecure          bool    // Use insecure (non-TLS) connection (development only)
	// Database tracing options
	DBTraceEnabled    bool          // Enable database query tracing (otelgorm)
	DBLogFullSQL      bool          // Log full SQL statements (dev only)
	DBSlowQueryThresh time.Duration // Slow query threshold for warnings
	MetricsInterval   time.Duration // Export interval for OTLP metrics
	Profiling         ProfilingConfig
}

// ProfilingConfig holds Pyroscope continuous profiling settings
type ProfilingConfig struct {
	Enabled           bool
	ServerAddress     string   // e.g. "http://pyroscope:4040"
	BasicAuthUser     string   // Grafana Cloud only
	BasicAuthPassword string   // Grafana Cloud only
	ProfileTypes      []string // cpu, alloc_objects, alloc_space, inuse_objects, inuse_space, goroutines, mutex, block
	SpanProfiles      bool     // link CPU samples to trace spans; needs telemetry.enabled
}

// WaafiPayConfig holds mobile wallet gateway credentials. The gateway is
// considered configured only when all three credentials are set.
type WaafiPayConfig struct {
	MerchantUID   string
	APIUserID     string
	APIKey        string
	BaseURL       string
	Timeout       time.Duration
	Currency      string
	WebhookSecret string // optional; enables X-Waafi-Signature verification
}

// Configured reports whether the gateway credentials are complete
func (w *WaafiPayConfig) Configured() bool {
	return w.MerchantUID != "" && w.APIUserID != "" && w.APIKey != ""
}

// OfflineConfig holds bank-transfer payment settings
type OfflineConfig struct {
	Enabled          bool
	BankInstructions string
	RateLimit        int
	RateLimitWindow  time.Duration
	ProofURLTTL      time.Duration
}

// SubscriptionConfig holds ledger settings
type SubscriptionConfig struct {
	TrialLength   time.Duration
	WarningWindow time.Duration
}

// SweeperConfig holds expiry sweeper scheduling settings
type SweeperConfig struct {
	Enabled    bool
	Interval   time.Duration
	RunAtHour  int // UTC hour of the first run; -1 runs immediately
	BatchSize  int
	JobTimeout time.Duration
}

// NotificationConfig holds outbox relay and sender settings
type NotificationConfig struct {
	RelayEnabled     bool
	PollInterval     time.Duration
	BatchSize        int
	MaxRetries       int
	CleanupRetention time.Duration
	Sender           string // log, postmark
	PostmarkToken    string
	FromAddress      string
}

// StorageConfig holds S3-compatible storage for proof-of-payment files
type StorageConfig struct {
	Bucket          string
	Region          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	UsePathStyle    bool
}

// Configured reports whether proof storage is available
func (s *StorageConfig) Configured() bool {
	return s.Bucket != ""
}

// Load loads configuration from TOML file and environment variables
// Priority (highest to lowest):
// 1. Environment variables with BIZBOOK_ prefix (e.g., BIZBOOK_WAAFIPAY_API_KEY)
// 2. config.toml
// 3. Built-in defaults
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("toml")
	v.AddConfigPath(".")
	v.AddConfigPath("/app")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found is OK, we'll use defaults and env vars
	}

	v.SetEnvPrefix("BIZBOOK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	v.SetDefault("sweeper.run_at_hour", 2)
	v.SetDefault("offline.enabled", true)
	v.SetDefault("http.docs.enabled", true)

	cfg := &Config{
		App: AppConfig{
			Name: v.GetString("app.name"),
			Env:  v.GetString("app.env"),
			Port: v.GetString("app.port"),
		},
		Database: DatabaseConfig{
			Host:            v.GetString("database.host"),
			Port:            v.GetInt("database.port"),
			User:            v.GetString("database.user"),
			Password:        v.GetString("database.password"),
			DBName:          v.GetString("database.dbname"),
			SSLMode:         v.GetString("database.sslmode"),
			MaxOpenConns:    v.GetInt("database.max_open_conns"),
			MaxIdleConns:    v.GetInt("database.max_idle_conns"),
			ConnMaxLifetime: v.GetInt("database.conn_max_lifetime"),
			ConnMaxIdleTime: v.GetInt("database.conn_max_idle_time"),
		},
		Redis: RedisConfig{
			Host:     v.GetString("redis.host"),
			Port:     v.GetInt("redis.port"),
			Password: v.GetString("redis.password"),
			DB:       v.GetInt("redis.db"),
		},
		JWT: JWTConfig{
			Secret: v.GetString("jwt.secret"),
			Issuer: v.GetString("jwt.issuer"),
		},
		Log: LogConfig{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
			Output: v.GetString("log.output"),
		},
		HTTP: HTTPConfig{
			ReadTimeout:      v.GetDuration("http.read_timeout"),
			WriteTimeout:     v.GetDuration("http.write_timeout"),
			IdleTimeout:      v.GetDuration("http.idle_timeout"),
			MaxHeaderBytes:   v.GetInt("http.max_header_bytes"),
			MaxBodySize:      v.GetInt64("http.max_body_size"),
			CORSAllowOrigins: v.GetStringSlice("http.cors_allow_origins"),
			CORSAllowMethods: v.GetStringSlice("http.cors_allow_methods"),
			CORSAllowHeaders: v.GetStringSlice("http.cors_allow_headers"),
			TrustedProxies:   v.GetStringSlice("http.trusted_proxies"),
			Docs: DocsConfig{
				Enabled:     v.GetBool("http.docs.enabled"),
				RequireAuth: v.GetBool("http.docs.require_auth"),
				AllowedIPs:  v.GetStringSlice("http.docs.allowed_ips"),
			},
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
			MetricsInterval:   v.GetDuration("telemetry.metrics_interval"),
			Profiling: ProfilingConfig{
				Enabled:           v.GetBool("telemetry.profiling.enabled"),
				ServerAddress:     v.GetString("telemetry.profiling.server_address"),
				BasicAuthUser:     v.GetString("telemetry.profiling.basic_auth_user"),
				BasicAuthPassword: v.GetString("telemetry.profiling.basic_auth_password"),
				ProfileTypes:      v.GetStringSlice("telemetry.profiling.profile_types"),
				SpanProfiles:      v.GetBool("telemetry.profiling.span_profiles"),
			},
		},
		WaafiPay: WaafiPayConfig{
			MerchantUID:   v.GetString("waafipay.merchant_uid"),
			APIUserID:     v.GetString("waafipay.api_user_id"),
			APIKey:        v.GetString("waafipay.api_key"),
			BaseURL:       v.GetString("waafipay.base_url"),
			Timeout:       v.GetDuration("waafipay.timeout"),
			Currency:      v.GetString("waafipay.currency"),
			WebhookSecret: v.GetString("waafipay.webhook_secret"),
		},
		Offline: OfflineConfig{
			Enabled:          v.GetBool("offline.enabled"),
			BankInstructions: v.GetString("offline.bank_instructions"),
			RateLimit:        v.GetInt("offline.rate_limit"),
			RateLimitWindow:  v.GetDuration("offline.rate_limit_window"),
			ProofURLTTL:      v.GetDuration("offline.proof_url_ttl"),
		},
		Subscription: SubscriptionConfig{
			TrialLength:   v.GetDuration("subscription.trial_length"),
			WarningWindow: v.GetDuration("subscription.warning_window"),
		},
		Sweeper: SweeperConfig{
			Enabled:    v.GetBool("sweeper.enabled"),
			Interval:   v.GetDuration("sweeper.interval"),
			RunAtHour:  v.GetInt("sweeper.run_at_hour"),
			BatchSize:  v.GetInt("sweeper.batch_size"),
			JobTimeout: v.GetDuration("sweeper.job_timeout"),
		},
		Notification: NotificationConfig{
			RelayEnabled:     v.GetBool("notification.relay_enabled"),
			PollInterval:     v.GetDuration("notification.poll_interval"),
			BatchSize:        v.GetInt("notification.batch_size"),
			MaxRetries:       v.GetInt("notification.max_retries"),
			CleanupRetention: v.GetDuration("notification.cleanup_retention"),
			Sender:           v.GetString("notification.sender"),
			PostmarkToken:    v.GetString("notification.postmark_token"),
			FromAddress:      v.GetString("notification.from_address"),
		},
		Storage: StorageConfig{
			Bucket:          v.GetString("storage.bucket"),
			Region:          v.GetString("storage.region"),
			Endpoint:        v.GetString("storage.endpoint"),
			AccessKeyID:     v.GetString("storage.access_key_id"),
			SecretAccessKey: v.GetString("storage.secret_access_key"),
			UsePathStyle:    v.GetBool("storage.use_path_style"),
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
		cfg.App.Name = "bizbook-billing"
	}
	if cfg.App.Env == "" {
		cfg.App.Env = "development"
	}
	if cfg.App.Port == "" {
		cfg.App.Port = "8080"
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
		cfg.Database.DBName = "bizbook"
	}
	if cfg.Database.SSLMode == "" {
		cfg.Database.SSLMode = "disable"
	}
	if cfg.Database.MaxOpenConns == 0 {
		cfg.Database.MaxOpenConns = 25
	}
	if cfg.Database.MaxIdleConns == 0 {
		cfg.Database.MaxIdleConns = 5
	}
	if cfg.Database.ConnMaxLifetime == 0 {
		cfg.Database.ConnMaxLifetime = 60
	}
	if cfg.Database.ConnMaxIdleTime == 0 {
		cfg.Database.ConnMaxIdleTime = 30
	}
	if cfg.Redis.Host == "" {
		cfg.Redis.Host = "localhost"
	}
	if cfg.Redis.Port == 0 {
		cfg.Redis.Port = 6379
	}
	if cfg.JWT.Issuer == "" {
		cfg.JWT.Issuer = "bizbook"
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
	// Gateway charges block for up to the waafipay timeout
	if cfg.HTTP.WriteTimeout == 0 {
		cfg.HTTP.WriteTimeout = 45 * time.Second
	}
	if cfg.HTTP.IdleTimeout == 0 {
		cfg.HTTP.IdleTimeout = 60 * time.Second
	}
	if cfg.HTTP.MaxHeaderBytes == 0 {
		cfg.HTTP.MaxHeaderBytes = 1 << 20 // 1MB
	}
	if cfg.HTTP.MaxBodySize == 0 {
		cfg.HTTP.MaxBodySize = 1 << 20 // 1MB
	}
	if len(cfg.HTTP.CORSAllowMethods) == 0 {
		cfg.HTTP.CORSAllowMethods = []string{"GET", "POST", "OPTIONS"}
	}
	if len(cfg.HTTP.CORSAllowHeaders) == 0 {
		cfg.HTTP.CORSAllowHeaders = []string{"Content-Type", "Authorization", "X-Request-ID"}
	}
	if cfg.Telemetry.CollectorEndpoint == "" {
		cfg.Telemetry.CollectorEndpoint = "localhost:4317"
	}
	if cfg.Telemetry.SamplingRatio == 0 {
		cfg.Telemetry.SamplingRatio = 1.0
	}
	if cfg.Telemetry.ServiceName == "" {
		cfg.Telemetry.ServiceName = "bizbook-billing"
	}
	if cfg.Telemetry.DBSlowQueryThresh == 0 {
		cfg.Telemetry.DBSlowQueryThresh = 200 * time.Millisecond
	}
	if cfg.Telemetry.MetricsInterval == 0 {
		cfg.Telemetry.MetricsInterval = 30 * time.Second
	}
	if len(cfg.Telemetry.Profiling.ProfileTypes) == 0 {
		cfg.Telemetry.Profiling.ProfileTypes = []string{"cpu", "alloc_objects", "alloc_space", "inuse_objects", "inuse_space", "goroutines"}
	}
	if cfg.WaafiPay.BaseURL == "" {
		cfg.WaafiPay.BaseURL = "https://api.waafipay.net/asm"
	}
	if cfg.WaafiPay.Timeout == 0 {
		cfg.WaafiPay.Timeout = 30 * time.Second
	}
	if cfg.WaafiPay.Currency == "" {
		cfg.WaafiPay.Currency = "USD"
	}
	if cfg.Offline.RateLimit == 0 {
		cfg.Offline.RateLimit = 10
	}
	if cfg.Offline.RateLimitWindow == 0 {
		cfg.Offline.RateLimitWindow = time.Minute
	}
	if cfg.Offline.ProofURLTTL == 0 {
		cfg.Offline.ProofURLTTL = 15 * time.Minute
	}
	if cfg.Subscription.TrialLength == 0 {
		cfg.Subscription.TrialLength = 14 * 24 * time.Hour
	}
	if cfg.Subscription.WarningWindow == 0 {
		cfg.Subscription.WarningWindow = 3 * 24 * time.Hour
	}
	if cfg.Sweeper.Interval == 0 {
		cfg.Sweeper.Interval = 24 * time.Hour
	}
	if cfg.Sweeper.BatchSize == 0 {
		cfg.Sweeper.BatchSize = 100
	}
	if cfg.Sweeper.JobTimeout == 0 {
		cfg.Sweeper.JobTimeout = 30 * time.Minute
	}
	if cfg.Notification.PollInterval == 0 {
		cfg.Notification.PollInterval = 5 * time.Second
	}
	if cfg.Notification.BatchSize == 0 {
		cfg.Notification.BatchSize = 50
	}
	if cfg.Notification.MaxRetries == 0 {
		cfg.Notification.MaxRetries = 5
	}
	if cfg.Notification.CleanupRetention == 0 {
		cfg.Notification.CleanupRetention = 168 * time.Hour
	}
	if cfg.Notification.Sender == "" {
		cfg.Notification.Sender = "log"
	}
	if cfg.Storage.Region == "" {
		cfg.Storage.Region = "us-east-1"
	}
}

// validate performs validation on the configuration
func (c *Config) validate() error {
	if c.Database.MaxOpenConns <= 0 {
		return fmt.Errorf("database.max_open_conns must be positive")
	}
	if c.Database.MaxIdleConns < 0 {
		return fmt.Errorf("database.max_idle_conns cannot be negative")
	}
	if c.Database.MaxIdleConns > c.Database.MaxOpenConns {
		return fmt.Errorf("database.max_idle_conns (%d) cannot exceed database.max_open_conns (%d)",
			c.Database.MaxIdleConns, c.Database.MaxOpenConns)
	}
	if c.Telemetry.SamplingRatio < 0.0 || c.Telemetry.SamplingRatio > 1.0 {
		return fmt.Errorf("telemetry.sampling_ratio must be between 0.0 and 1.0, got %f", c.Telemetry.SamplingRatio)
	}
	if c.Telemetry.Profiling.Enabled && c.Telemetry.Profiling.ServerAddress == "" {
		return fmt.Errorf("telemetry.profiling.server_address is required when profiling is enabled")
	}
	if c.Sweeper.RunAtHour < -1 || c.Sweeper.RunAtHour > 23 {
		return fmt.Errorf("sweeper.run_at_hour must be between -1 and 23, got %d", c.Sweeper.RunAtHour)
	}
	switch c.Notification.Sender {
	case "log":
	case "postmark":
		if c.Notification.PostmarkToken == "" || c.Notification.FromAddress == "" {
			return fmt.Errorf("notification.postmark_token and notification.from_address are required for the postmark sender")
		}
	default:
		return fmt.Errorf("notification.sender must be log or postmark, got %q", c.Notification.Sender)
	}

	if c.App.Env == "production" {
		if len(c.JWT.Secret) < 32 {
			return fmt.Errorf("jwt.secret must be at least 32 characters in production")
		}
		if c.Database.Password == "" {
			return fmt.Errorf("database.password is required in production")
		}
		if c.Database.SSLMode == "disable" {
			return fmt.Errorf("database.sslmode cannot be 'disable' in production")
		}
		for _, origin := range c.HTTP.CORSAllowOrigins {
			if origin == "*" {
				return fmt.Errorf("cors_allow_origins cannot be '*' in production (use specific origins)")
			}
		}
		if c.HTTP.Docs.Enabled && !c.HTTP.Docs.RequireAuth && len(c.HTTP.Docs.AllowedIPs) == 0 {
			return fmt.Errorf("http.docs must be disabled, require authentication, or be restricted by IP in production")
		}
		if c.Telemetry.DBLogFullSQL {
			return fmt.Errorf("telemetry.db_log_full_sql must be false in production to prevent sensitive data exposure in traces")
		}
	}

	return nil
}

// DSN returns the database connection string with properly escaped values
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

// Addr returns host:port for the Redis client
func (r *RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}
