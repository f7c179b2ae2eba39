package config

import "time"

// Config represents the complete configuration structure
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Database   DatabaseConfig   `yaml:"database"`
	Uploads    UploadsConfig    `yaml:"uploads"`
	Auth       AuthConfig       `yaml:"auth"`
	Store      StoreConfig      `yaml:"store"`
	RateLimit  RateLimitConfig  `yaml:"rate_limit"`
	CORS       CORSConfig       `yaml:"cors"`
	Mail       MailConfig       `yaml:"mail"`
	Logging    LoggingConfig    `yaml:"logging"`
	Metrics    MetricsConfig    `yaml:"metrics"`
	Tracing    TracingConfig    `yaml:"tracing"`
	Moderation ModerationConfig `yaml:"moderation"`
	Reconcile  ReconcileConfig  `yaml:"reconcile"`
}

// ServerConfig represents HTTP server configuration
type ServerConfig struct {
	Address         string        `yaml:"address"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	MaxHeaderBytes  int           `yaml:"max_header_bytes"`
	// MaxUploadBytes bounds the size of a multipart request body
	MaxUploadBytes int64  `yaml:"max_upload_bytes"`
	Mode           string `yaml:"mode"` // gin mode: debug, release, test
}

// DatabaseConfig represents relational store configuration
type DatabaseConfig struct {
	Driver          string        `yaml:"driver"` // postgres, memory
	DSN             string        `yaml:"dsn"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
	MigrationPath   string        `yaml:"migration_path"`
	AutoMigrate     bool          `yaml:"auto_migrate"`
}

// UploadsConfig represents file store configuration
type UploadsConfig struct {
	Dir string `yaml:"dir"`
	// BaseURL is prepended to stored paths in responses
	BaseURL           string `yaml:"base_url"`
	MaxImageDimension int    `yaml:"max_image_dimension"`
	JPEGQuality       int    `yaml:"jpeg_quality"`
}

// AuthConfig represents bearer token configuration
type AuthConfig struct {
	AccessSecret  string        `yaml:"access_secret"`
	RefreshSecret string        `yaml:"refresh_secret"`
	AccessTTL     time.Duration `yaml:"access_ttl"`
	RefreshTTL    time.Duration `yaml:"refresh_ttl"`
	Issuer        string        `yaml:"issuer"`
	BcryptCost    int           `yaml:"bcrypt_cost"`
	ResetTokenTTL time.Duration `yaml:"reset_token_ttl"`
	// BootstrapAdmin is created at startup when no admin has its email
	BootstrapAdmin BootstrapAdminConfig `yaml:"bootstrap_admin"`
}

// BootstrapAdminConfig represents the initial moderator account
type BootstrapAdminConfig struct {
	Email    string `yaml:"email"`
	Password string `yaml:"password"`
	Name     string `yaml:"name"`
}

// StoreConfig represents atomic key-value store configuration
type StoreConfig struct {
	Type      string      `yaml:"type"` // memory, redis
	Redis     RedisConfig `yaml:"redis"`
	KeyPrefix string      `yaml:"key_prefix"`
}

// RedisConfig represents Redis configuration
type RedisConfig struct {
	Address      string        `yaml:"address"`
	Password     string        `yaml:"password"`
	DB           int           `yaml:"db"`
	PoolSize     int           `yaml:"pool_size"`
	DialTimeout  time.Duration `yaml:"dial_timeout"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

// RateLimitConfig represents rate limiting of credential endpoints
type RateLimitConfig struct {
	Enabled     bool          `yaml:"enabled"`
	MaxRequests int           `yaml:"max_requests"`
	WindowSize  time.Duration `yaml:"window_size"`
}

// CORSConfig represents CORS configuration
type CORSConfig struct {
	Enabled          bool          `yaml:"enabled"`
	AllowedOrigins   []string      `yaml:"allowed_origins"`
	AllowedMethods   []string      `yaml:"allowed_methods"`
	AllowedHeaders   []string      `yaml:"allowed_headers"`
	ExposedHeaders   []string      `yaml:"exposed_headers"`
	AllowCredentials bool          `yaml:"allow_credentials"`
	MaxAge           time.Duration `yaml:"max_age"`
}

// MailConfig represents outgoing mail configuration
type MailConfig struct {
	Driver string     `yaml:"driver"` // log, smtp
	From   string     `yaml:"from"`
	SMTP   SMTPConfig `yaml:"smtp"`
	// ClientURL is the frontend base URL used in activation and reset links
	ClientURL string `yaml:"client_url"`
	// QueueSize bounds pending asynchronous sends
	QueueSize int `yaml:"queue_size"`
}

// SMTPConfig represents SMTP server configuration
type SMTPConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// LoggingConfig represents logging configuration
type LoggingConfig struct {
	Level     string          `yaml:"level"`
	Format    string          `yaml:"format"`
	AccessLog AccessLogConfig `yaml:"access_log"`
}

// AccessLogConfig represents access log configuration
type AccessLogConfig struct {
	Enabled   bool     `yaml:"enabled"`
	SkipPaths []string `yaml:"skip_paths"`
}

// MetricsConfig represents metrics configuration
type MetricsConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Path      string `yaml:"path"`
	Namespace string `yaml:"namespace"`
}

// TracingConfig represents tracing configuration
type TracingConfig struct {
	Enabled bool         `yaml:"enabled"`
	Jaeger  JaegerConfig `yaml:"jaeger"`
}

// JaegerConfig represents Jaeger configuration
type JaegerConfig struct {
	Endpoint    string  `yaml:"endpoint"`
	ServiceName string  `yaml:"service_name"`
	SampleRate  float64 `yaml:"sample_rate"`
}

// ModerationConfig represents portfolio moderation policy
type ModerationConfig struct {
	// Cooldown blocks edits of approved portfolios modified more recently
	Cooldown        time.Duration `yaml:"cooldown"`
	RequireDocument bool          `yaml:"require_document"`
}

// ReconcileConfig represents the file journal reconciler
type ReconcileConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Interval time.Duration `yaml:"interval"`
	// Grace is the minimum age of a journal row before it is reconciled
	Grace time.Duration `yaml:"grace"`
}
