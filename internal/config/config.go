package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Redis     RedisConfig     `yaml:"redis"`
	Logging   LoggingConfig   `yaml:"logging"`
	Engine    EngineConfig    `yaml:"engine"`
	Policy    PolicyConfig    `yaml:"policy"`
	Templates TemplatesConfig `yaml:"templates"`
	SES       SESConfig       `yaml:"ses"`
	Tracking  TrackingConfig  `yaml:"tracking"`
	News      NewsConfig      `yaml:"news"`
	Worker    WorkerConfig    `yaml:"worker"`
	Archive   ArchiveConfig   `yaml:"archive"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port int    `yaml:"port"`
	Host string `yaml:"host"`

	// AllowedOrigins feeds the CORS middleware of the command API.
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// GetHost returns the server host, with ECS detection
func (c ServerConfig) GetHost() string {
	// On ECS/container, listen on all interfaces
	if os.Getenv("ECS_CONTAINER_METADATA_URI") != "" || os.Getenv("AWS_EXECUTION_ENV") != "" {
		return "0.0.0.0"
	}
	if host := os.Getenv("SERVER_HOST"); host != "" {
		return host
	}
	return c.Host
}

// DatabaseConfig holds the PostgreSQL connection settings. An empty URL
// selects the in-memory store.
type DatabaseConfig struct {
	URL             string `yaml:"url"`
	MaxOpenConns    int    `yaml:"max_open_conns"`
	MaxIdleConns    int    `yaml:"max_idle_conns"`
	ConnMaxLifetime int    `yaml:"conn_max_lifetime_minutes"`
}

// RedisConfig holds the Redis settings used for distributed locks. An
// empty URL keeps locks in-process.
type RedisConfig struct {
	URL            string `yaml:"url"`
	LockTTLSeconds int    `yaml:"lock_ttl_seconds"`
}

// LockTTL returns the lock lease as a duration
func (c RedisConfig) LockTTL() time.Duration {
	return time.Duration(c.LockTTLSeconds) * time.Second
}

// LoggingConfig controls the structured logger.
type LoggingConfig struct {
	Level     string `yaml:"level"`
	RedactPII bool   `yaml:"redact_pii"`
}

// EngineConfig holds the lifecycle knobs of the outreach pipeline.
type EngineConfig struct {
	BounceThreshold       int   `yaml:"bounce_threshold"`
	Cadence               []int `yaml:"cadence"` // day offsets from the initial send
	DefaultPriority       int   `yaml:"default_priority"`
	SendTimeoutSeconds    int   `yaml:"send_timeout_seconds"`
	ResolveTimeoutSeconds int   `yaml:"resolve_timeout_seconds"`
	SendRetries           int   `yaml:"send_retries"`
	RetryBaseDelayMillis  int   `yaml:"retry_base_delay_millis"`
	MaxDailySends         int   `yaml:"max_daily_sends"` // 0 disables the cap
	FollowUpPageSize      int   `yaml:"followup_page_size"`
	FollowUpConcurrency   int   `yaml:"followup_concurrency"`
	BatchSize             int   `yaml:"batch_size"`   // contacts drafted per batch
	AutoApprove           bool  `yaml:"auto_approve"` // approve batch drafts without review
}

// SendTimeout returns the per-attempt send budget
func (c EngineConfig) SendTimeout() time.Duration {
	return time.Duration(c.SendTimeoutSeconds) * time.Second
}

// ResolveTimeout returns the template resolution budget
func (c EngineConfig) ResolveTimeout() time.Duration {
	return time.Duration(c.ResolveTimeoutSeconds) * time.Second
}

// RetryBaseDelay returns the first backoff step for transient sends
func (c EngineConfig) RetryBaseDelay() time.Duration {
	return time.Duration(c.RetryBaseDelayMillis) * time.Millisecond
}

// SignalTypePolicy describes how a promoted signal of one type becomes a
// contact, and which headline keywords identify the type.
type SignalTypePolicy struct {
	Tier         string   `yaml:"tier"`
	Priority     int      `yaml:"priority"`
	IndustryCode string   `yaml:"industry_code"`
	Keywords     []string `yaml:"keywords"`
}

// PolicyConfig holds the data-driven classification tables.
type PolicyConfig struct {
	DefaultTier  string                      `yaml:"default_tier"`
	IndustryTier map[string]string           `yaml:"industry_tier"`
	SignalTypes  map[string]SignalTypePolicy `yaml:"signal_types"`

	// BlockKeywords drops feed items before classification.
	BlockKeywords []string `yaml:"block_keywords"`
}

// TemplatesConfig points at the YAML template catalog.
type TemplatesConfig struct {
	Path string `yaml:"path"`
}

// SESConfig holds AWS SES API configuration
type SESConfig struct {
	Region           string `yaml:"region"`
	AccessKey        string `yaml:"access_key"`
	SecretKey        string `yaml:"secret_key"`
	FromEmail        string `yaml:"from_email"`
	FromName         string `yaml:"from_name"`
	ConfigurationSet string `yaml:"configuration_set"`
	Enabled          bool   `yaml:"enabled"` // false selects the dry-run adapter
}

// TrackingConfig holds the open-pixel settings.
type TrackingConfig struct {
	BaseURL  string `yaml:"base_url"`
	QueueURL string `yaml:"queue_url"` // SQS queue; empty records opens inline
	Region   string `yaml:"region"`
}

// NewsSource is one RSS/Atom feed polled for signals.
type NewsSource struct {
	Name string `yaml:"name"`
	URL  string `yaml:"url"`
	City string `yaml:"city"`
}

// BedrockConfig selects the optional LLM signal classifier.
type BedrockConfig struct {
	Enabled bool   `yaml:"enabled"`
	Region  string `yaml:"region"`
	ModelID string `yaml:"model_id"`
}

// NewsConfig holds the news scanner configuration
type NewsConfig struct {
	Sources         []NewsSource  `yaml:"sources"`
	IntervalMinutes int           `yaml:"interval_minutes"`
	AutoPromote     bool          `yaml:"auto_promote"`
	Bedrock         BedrockConfig `yaml:"bedrock"`
}

// Interval returns the polling interval as a duration
func (c NewsConfig) Interval() time.Duration {
	return time.Duration(c.IntervalMinutes) * time.Minute
}

// WorkerConfig holds background worker configuration
type WorkerConfig struct {
	SweepIntervalSeconds     int    `yaml:"sweep_interval_seconds"`
	StatsHourUTC             int    `yaml:"stats_hour_utc"`
	SweepLockTTLSeconds      int    `yaml:"sweep_lock_ttl_seconds"`
	BatchSendIntervalSeconds int    `yaml:"batch_send_interval_seconds"`
	InstanceID               string `yaml:"instance_id"`
}

// SweepInterval returns the follow-up sweep period
func (c WorkerConfig) SweepInterval() time.Duration {
	return time.Duration(c.SweepIntervalSeconds) * time.Second
}

// BatchSendInterval returns how often approved bundles are delivered
func (c WorkerConfig) BatchSendInterval() time.Duration {
	return time.Duration(c.BatchSendIntervalSeconds) * time.Second
}

// ArchiveConfig holds the S3 daily stats archive settings.
type ArchiveConfig struct {
	Enabled bool   `yaml:"enabled"`
	Bucket  string `yaml:"bucket"`
	Prefix  string `yaml:"prefix"`
	Region  string `yaml:"region"`
}

// Load reads and parses the configuration file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	return &cfg, nil
}

func (cfg *Config) applyDefaults() {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if len(cfg.Server.AllowedOrigins) == 0 {
		cfg.Server.AllowedOrigins = []string{"http://localhost:*"}
	}
	if cfg.Database.MaxOpenConns == 0 {
		cfg.Database.MaxOpenConns = 10
	}
	if cfg.Database.MaxIdleConns == 0 {
		cfg.Database.MaxIdleConns = 5
	}
	if cfg.Database.ConnMaxLifetime == 0 {
		cfg.Database.ConnMaxLifetime = 5
	}
	if cfg.Redis.LockTTLSeconds == 0 {
		cfg.Redis.LockTTLSeconds = 30
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}

	// Engine defaults
	if cfg.Engine.BounceThreshold == 0 {
		cfg.Engine.BounceThreshold = 3
	}
	if len(cfg.Engine.Cadence) == 0 {
		cfg.Engine.Cadence = []int{5, 10, 17, 25, 35}
	}
	if cfg.Engine.DefaultPriority == 0 {
		cfg.Engine.DefaultPriority = 50
	}
	if cfg.Engine.SendTimeoutSeconds == 0 {
		cfg.Engine.SendTimeoutSeconds = 30
	}
	if cfg.Engine.ResolveTimeoutSeconds == 0 {
		cfg.Engine.ResolveTimeoutSeconds = 5
	}
	if cfg.Engine.SendRetries == 0 {
		cfg.Engine.SendRetries = 3
	}
	if cfg.Engine.RetryBaseDelayMillis == 0 {
		cfg.Engine.RetryBaseDelayMillis = 1000
	}
	if cfg.Engine.FollowUpPageSize == 0 {
		cfg.Engine.FollowUpPageSize = 100
	}
	if cfg.Engine.FollowUpConcurrency == 0 {
		cfg.Engine.FollowUpConcurrency = 4
	}
	if cfg.Engine.BatchSize == 0 {
		cfg.Engine.BatchSize = 50
	}

	if cfg.Policy.DefaultTier == "" {
		cfg.Policy.DefaultTier = "C"
	}
	if cfg.Templates.Path == "" {
		cfg.Templates.Path = "config/templates.yaml"
	}
	if cfg.SES.Region == "" {
		cfg.SES.Region = "us-west-2"
	}
	if cfg.Tracking.BaseURL == "" {
		cfg.Tracking.BaseURL = "http://localhost:8080"
	}
	if cfg.Tracking.Region == "" {
		cfg.Tracking.Region = cfg.SES.Region
	}
	if cfg.News.IntervalMinutes == 0 {
		cfg.News.IntervalMinutes = 60
	}
	if cfg.News.Bedrock.Region == "" {
		cfg.News.Bedrock.Region = "us-east-1"
	}
	if cfg.News.Bedrock.ModelID == "" {
		cfg.News.Bedrock.ModelID = "anthropic.claude-3-haiku-20240307-v1:0"
	}
	if cfg.Worker.SweepIntervalSeconds == 0 {
		cfg.Worker.SweepIntervalSeconds = 300
	}
	if cfg.Worker.StatsHourUTC == 0 {
		cfg.Worker.StatsHourUTC = 2
	}
	if cfg.Worker.SweepLockTTLSeconds == 0 {
		cfg.Worker.SweepLockTTLSeconds = 600
	}
	if cfg.Worker.BatchSendIntervalSeconds == 0 {
		cfg.Worker.BatchSendIntervalSeconds = 300
	}
	if cfg.Archive.Prefix == "" {
		cfg.Archive.Prefix = "daily-stats/"
	}
	if cfg.Archive.Region == "" {
		cfg.Archive.Region = cfg.SES.Region
	}
}

// LoadFromEnv loads configuration with environment variable overrides.
// It automatically loads a .env file (if present) before reading env vars,
// so secrets can live in .env locally and in real env vars on ECS.
func LoadFromEnv(path string) (*Config, error) {
	// Load .env file if it exists (no error if missing)
	_ = godotenv.Load()

	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}

	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.Database.URL = v
	}
	if v := os.Getenv("REDIS_URL"); v != "" {
		cfg.Redis.URL = v
	}
	if v := os.Getenv("PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("AWS_SES_ACCESS_KEY"); v != "" {
		cfg.SES.AccessKey = v
	}
	if v := os.Getenv("AWS_SES_SECRET_KEY"); v != "" {
		cfg.SES.SecretKey = v
	}
	if v := os.Getenv("AWS_SES_REGION"); v != "" {
		cfg.SES.Region = v
	}
	if v := os.Getenv("AWS_SES_FROM_EMAIL"); v != "" {
		cfg.SES.FromEmail = v
	}
	if v := os.Getenv("SQS_TRACKING_QUEUE_URL"); v != "" {
		cfg.Tracking.QueueURL = v
	}
	if v := os.Getenv("TRACKING_BASE_URL"); v != "" {
		cfg.Tracking.BaseURL = v
	}
	if v := os.Getenv("STATS_ARCHIVE_BUCKET"); v != "" {
		cfg.Archive.Bucket = v
		cfg.Archive.Enabled = true
	}

	return cfg, nil
}
