package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"github.com/spf13/viper"

	"github.com/linkedin-autoposter/internal/schedule"
)

// Scheduler modes
const (
	ModeTimes    = "times"
	ModeInterval = "interval"
)

// Generator providers
const (
	ProviderAnthropic = "anthropic"
	ProviderGemini    = "gemini"
)

// Config represents the application configuration
type Config struct {
	Database  DatabaseConfig  `mapstructure:"database"`
	Redis     RedisConfig     `mapstructure:"redis"`
	LinkedIn  LinkedInConfig  `mapstructure:"linkedin"`
	Generator GeneratorConfig `mapstructure:"generator"`
	Anthropic AnthropicConfig `mapstructure:"anthropic"`
	Gemini    GeminiConfig    `mapstructure:"gemini"`
	Content   ContentConfig   `mapstructure:"content"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Retry     RetryConfig     `mapstructure:"retry"`
	Backoff   BackoffConfig   `mapstructure:"backoff"`
	Outreach  OutreachConfig  `mapstructure:"outreach"`
	Responder ResponderConfig `mapstructure:"responder"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Tracker   TrackerConfig   `mapstructure:"tracker"`
	Media     MediaConfig     `mapstructure:"media"`
	Health    HealthConfig    `mapstructure:"health"`
}

// DatabaseConfig holds the activity store settings
type DatabaseConfig struct {
	Driver string `mapstructure:"driver"` // only sqlite is supported
	DSN    string `mapstructure:"dsn"`
}

// RedisConfig holds the processed-comment store settings. Empty Addr keeps the store in memory.
type RedisConfig struct {
	Addr      string        `mapstructure:"addr"`
	Password  string        `mapstructure:"password"`
	DB        int           `mapstructure:"db"`
	KeyPrefix string        `mapstructure:"key_prefix"`
	TTL       time.Duration `mapstructure:"ttl"`
}

// LinkedInConfig holds LinkedIn API settings
type LinkedInConfig struct {
	APIBaseURL   string `mapstructure:"api_base_url"`
	APIVersion   string `mapstructure:"api_version"`
	ClientID     string `mapstructure:"client_id"`
	ClientSecret string `mapstructure:"client_secret"`
	TokenURL     string `mapstructure:"token_url"`
	// Token injection from environment (headless deployment)
	AccessToken    string        `mapstructure:"access_token"`
	RefreshToken   string        `mapstructure:"refresh_token"`
	TokenExpiresAt string        `mapstructure:"token_expires_at"` // RFC3339
	Visibility     string        `mapstructure:"visibility"`       // PUBLIC or CONNECTIONS
	Timeout        time.Duration `mapstructure:"timeout"`
}

// GeneratorConfig picks the text generation provider
type GeneratorConfig struct {
	Provider string `mapstructure:"provider"` // anthropic or gemini
}

// AnthropicConfig holds Claude API settings
type AnthropicConfig struct {
	APIKey      string  `mapstructure:"api_key"`
	BaseURL     string  `mapstructure:"base_url"`
	Model       string  `mapstructure:"model"`
	MaxTokens   int     `mapstructure:"max_tokens"`
	Temperature float64 `mapstructure:"temperature"`
}

// GeminiConfig holds Gemini REST settings
type GeminiConfig struct {
	APIKey  string        `mapstructure:"api_key"`
	BaseURL string        `mapstructure:"base_url"`
	Model   string        `mapstructure:"model"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// ContentConfig drives prompt construction and the topic catalog
type ContentConfig struct {
	Tone       string   `mapstructure:"tone"`   // professional, casual, enthusiastic...
	Length     string   `mapstructure:"length"` // short, medium, long
	Topics     []string `mapstructure:"topics"`
	BrandVoice string   `mapstructure:"brand_voice"`
	Hashtags   int      `mapstructure:"hashtags"`
}

// SchedulerConfig holds publishing loop settings
type SchedulerConfig struct {
	Mode               string        `mapstructure:"mode"`             // times or interval
	PostingSchedule    []string      `mapstructure:"posting_schedule"` // HH:MM entries for times mode
	MinIntervalMinutes int           `mapstructure:"min_interval_minutes"`
	MaxIntervalMinutes int           `mapstructure:"max_interval_minutes"`
	TickInterval       time.Duration `mapstructure:"tick_interval"`
	AdaptationCron     string        `mapstructure:"adaptation_cron"`
	AdaptationEnabled  bool          `mapstructure:"adaptation_enabled"`
}

// RetryConfig holds the publish cycle retry policy
type RetryConfig struct {
	MaxRetries       int           `mapstructure:"max_retries"`
	RetryDelay       time.Duration `mapstructure:"retry_delay"`
	AbortOnAuthError bool          `mapstructure:"abort_on_auth_error"`
}

// BackoffConfig holds the loop-level backoff after tick failures
type BackoffConfig struct {
	Base                 time.Duration `mapstructure:"base"`
	Cap                  time.Duration `mapstructure:"cap"`
	MaxConsecutiveErrors int           `mapstructure:"max_consecutive_errors"`
}

// OutreachConfig holds connection outreach limits tuned by the weekly review
type OutreachConfig struct {
	DailyConnectionLimit int     `mapstructure:"daily_connection_limit"`
	LimitStep            int     `mapstructure:"limit_step"`
	LimitFloor           int     `mapstructure:"limit_floor"`
	AcceptanceThreshold  float64 `mapstructure:"acceptance_threshold"`
}

// ResponderConfig holds the comment responder settings
type ResponderConfig struct {
	Enabled          bool          `mapstructure:"enabled"`
	PollInterval     time.Duration `mapstructure:"poll_interval"`
	LookbackHours    int           `mapstructure:"lookback_hours"`
	MaxPosts         int           `mapstructure:"max_posts"`
	MaxRepliesPerRun int           `mapstructure:"max_replies_per_run"`
	// Random pause between two replies
	MinDelay time.Duration `mapstructure:"min_delay"`
	MaxDelay time.Duration `mapstructure:"max_delay"`
}

// RateLimitConfig holds client-side rate limits
type RateLimitConfig struct {
	LinkedInRequestsPerDay     int `mapstructure:"linkedin_requests_per_day"`
	GeneratorRequestsPerMinute int `mapstructure:"generator_requests_per_minute"`
}

// LoggingConfig holds logging settings
type LoggingConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Format string `mapstructure:"format"` // json or console
	Output string `mapstructure:"output"` // stdout or file path
}

// TrackerConfig holds Google Sheets activity mirror settings
type TrackerConfig struct {
	Enabled            bool   `mapstructure:"enabled"`
	SpreadsheetID      string `mapstructure:"spreadsheet_id"`
	SheetName          string `mapstructure:"sheet_name"`
	CredentialsFile    string `mapstructure:"credentials_file"`
	ServiceAccountJSON string `mapstructure:"service_account_json"`
}

// MediaConfig holds image settings
type MediaConfig struct {
	Enabled        bool   `mapstructure:"enabled"`
	UnsplashAPIKey string `mapstructure:"unsplash_api_key"`
	UnsplashURL    string `mapstructure:"unsplash_url"`
}

// HealthConfig holds the daemon's health and metrics listener
type HealthConfig struct {
	Port int `mapstructure:"port"`
}

// ConfigurationError reports an invalid configuration value. It is fatal before the loop starts.
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("invalid configuration: %s %s", e.Field, e.Reason)
}

// IsConfigurationError reports whether err is a ConfigurationError
func IsConfigurationError(err error) bool {
	var ce *ConfigurationError
	return errors.As(err, &ce)
}

func invalid(field, format string, args ...any) error {
	return &ConfigurationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// Load loads configuration from file and environment variables
func Load(configPath string) (*Config, error) {
	// Load .env file if present (ignore errors if not found)
	_ = godotenv.Load()
	_ = godotenv.Load(".env.local")

	v := viper.New()
	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")

		home, err := os.UserHomeDir()
		if err == nil {
			v.AddConfigPath(filepath.Join(home, ".linkedin-autoposter"))
		}
	}

	v.SetEnvPrefix("AUTOPOSTER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	bindEnv(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	config.normalize()
	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

// bindEnv binds keys without defaults, plus the plain variable names the scripts used to read
func bindEnv(v *viper.Viper) {
	_ = v.BindEnv("linkedin.access_token", "AUTOPOSTER_LINKEDIN_ACCESS_TOKEN", "LINKEDIN_ACCESS_TOKEN")
	_ = v.BindEnv("linkedin.refresh_token", "AUTOPOSTER_LINKEDIN_REFRESH_TOKEN", "LINKEDIN_REFRESH_TOKEN")
	_ = v.BindEnv("linkedin.token_expires_at", "AUTOPOSTER_LINKEDIN_TOKEN_EXPIRES_AT")
	_ = v.BindEnv("linkedin.client_id", "AUTOPOSTER_LINKEDIN_CLIENT_ID", "LINKEDIN_CLIENT_ID")
	_ = v.BindEnv("linkedin.client_secret", "AUTOPOSTER_LINKEDIN_CLIENT_SECRET", "LINKEDIN_CLIENT_SECRET")
	_ = v.BindEnv("anthropic.api_key", "AUTOPOSTER_ANTHROPIC_API_KEY", "ANTHROPIC_API_KEY")
	_ = v.BindEnv("gemini.api_key", "AUTOPOSTER_GEMINI_API_KEY", "GEMINI_API_KEY")
	_ = v.BindEnv("redis.addr", "AUTOPOSTER_REDIS_ADDR")
	_ = v.BindEnv("redis.password", "AUTOPOSTER_REDIS_PASSWORD")
	_ = v.BindEnv("tracker.spreadsheet_id", "AUTOPOSTER_TRACKER_SPREADSHEET_ID")
	_ = v.BindEnv("tracker.credentials_file", "AUTOPOSTER_TRACKER_CREDENTIALS_FILE")
	_ = v.BindEnv("tracker.service_account_json", "AUTOPOSTER_TRACKER_SERVICE_ACCOUNT_JSON")
	_ = v.BindEnv("media.unsplash_api_key", "AUTOPOSTER_MEDIA_UNSPLASH_API_KEY", "UNSPLASH_ACCESS_KEY")
	_ = v.BindEnv("health.port", "AUTOPOSTER_HEALTH_PORT", "PORT")
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.dsn", "./data/autoposter.db")

	v.SetDefault("redis.key_prefix", "autoposter")
	v.SetDefault("redis.ttl", 30*24*time.Hour)

	v.SetDefault("linkedin.api_base_url", "https://api.linkedin.com/v2")
	v.SetDefault("linkedin.api_version", "202401")
	v.SetDefault("linkedin.token_url", "https://www.linkedin.com/oauth/v2/accessToken")
	v.SetDefault("linkedin.visibility", "PUBLIC")
	v.SetDefault("linkedin.timeout", 30*time.Second)

	v.SetDefault("generator.provider", ProviderGemini)

	v.SetDefault("anthropic.model", "claude-sonnet-4-20250514")
	v.SetDefault("anthropic.max_tokens", 1024)
	v.SetDefault("anthropic.temperature", 0.7)

	v.SetDefault("gemini.base_url", "https://generativelanguage.googleapis.com")
	v.SetDefault("gemini.model", "gemini-2.0-flash")
	v.SetDefault("gemini.timeout", 60*time.Second)

	v.SetDefault("content.tone", "professional")
	v.SetDefault("content.length", "medium")
	v.SetDefault("content.topics", []string{"AI", "Technology", "Business"})
	v.SetDefault("content.brand_voice", "Insightful and practical. Share concrete takeaways for professionals.")
	v.SetDefault("content.hashtags", 3)

	v.SetDefault("scheduler.mode", ModeTimes)
	v.SetDefault("scheduler.posting_schedule", []string{"09:00", "12:00", "15:00"})
	v.SetDefault("scheduler.min_interval_minutes", 30)
	v.SetDefault("scheduler.max_interval_minutes", 180)
	v.SetDefault("scheduler.tick_interval", 60*time.Second)
	v.SetDefault("scheduler.adaptation_cron", "0 9 * * 1") // Monday 09:00
	v.SetDefault("scheduler.adaptation_enabled", true)

	v.SetDefault("retry.max_retries", 3)
	v.SetDefault("retry.retry_delay", 300*time.Second)
	v.SetDefault("retry.abort_on_auth_error", false)

	v.SetDefault("backoff.base", 300*time.Second)
	v.SetDefault("backoff.cap", time.Hour)
	v.SetDefault("backoff.max_consecutive_errors", 5)

	v.SetDefault("outreach.daily_connection_limit", 20)
	v.SetDefault("outreach.limit_step", 5)
	v.SetDefault("outreach.limit_floor", 5)
	v.SetDefault("outreach.acceptance_threshold", 0.3)

	v.SetDefault("responder.enabled", false)
	v.SetDefault("responder.poll_interval", 5*time.Minute)
	v.SetDefault("responder.lookback_hours", 24)
	v.SetDefault("responder.max_posts", 10)
	v.SetDefault("responder.max_replies_per_run", 10)
	v.SetDefault("responder.min_delay", 60*time.Second)
	v.SetDefault("responder.max_delay", 180*time.Second)

	v.SetDefault("rate_limit.linkedin_requests_per_day", 100)
	v.SetDefault("rate_limit.generator_requests_per_minute", 10)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")
	v.SetDefault("logging.output", "stdout")

	v.SetDefault("tracker.enabled", false)
	v.SetDefault("tracker.sheet_name", "Activity")

	v.SetDefault("media.enabled", false)
	v.SetDefault("media.unsplash_url", "https://api.unsplash.com")

	v.SetDefault("health.port", 10000)
}

// normalize trims list entries that came from comma-separated env values
func (c *Config) normalize() {
	c.Content.Topics = trimAll(c.Content.Topics)
	c.Scheduler.PostingSchedule = trimAll(c.Scheduler.PostingSchedule)
	c.Scheduler.Mode = strings.ToLower(strings.TrimSpace(c.Scheduler.Mode))
	c.Generator.Provider = strings.ToLower(strings.TrimSpace(c.Generator.Provider))
}

func trimAll(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

// Validate checks structural configuration. Credentials are checked by RequireCredentials.
func (c *Config) Validate() error {
	if len(c.Content.Topics) == 0 {
		return invalid("content.topics", "must not be empty")
	}

	switch c.Scheduler.Mode {
	case ModeTimes:
		if len(c.Scheduler.PostingSchedule) == 0 {
			return invalid("scheduler.posting_schedule", "must not be empty in %s mode", ModeTimes)
		}
		for _, entry := range c.Scheduler.PostingSchedule {
			if _, err := schedule.ParseTime(entry); err != nil {
				return invalid("scheduler.posting_schedule", "has invalid time %q: use HH:MM format", entry)
			}
		}
		if c.Scheduler.TickInterval <= 0 {
			return invalid("scheduler.tick_interval", "must be positive")
		}
	case ModeInterval:
		if c.Scheduler.MinIntervalMinutes <= 0 {
			return invalid("scheduler.min_interval_minutes", "must be positive")
		}
		if c.Scheduler.MinIntervalMinutes > c.Scheduler.MaxIntervalMinutes {
			return invalid("scheduler.max_interval_minutes", "must be >= min_interval_minutes")
		}
	default:
		return invalid("scheduler.mode", "must be %q or %q, got %q", ModeTimes, ModeInterval, c.Scheduler.Mode)
	}

	if c.Scheduler.AdaptationCron != "" {
		if _, err := cron.ParseStandard(c.Scheduler.AdaptationCron); err != nil {
			return invalid("scheduler.adaptation_cron", "is not a valid cron expression: %v", err)
		}
	}

	if c.Retry.MaxRetries < 1 {
		return invalid("retry.max_retries", "must be at least 1")
	}
	if c.Retry.RetryDelay < 0 {
		return invalid("retry.retry_delay", "must not be negative")
	}

	if c.Backoff.Base <= 0 || c.Backoff.Cap < c.Backoff.Base {
		return invalid("backoff", "requires 0 < base <= cap")
	}
	if c.Backoff.MaxConsecutiveErrors < 1 {
		return invalid("backoff.max_consecutive_errors", "must be at least 1")
	}

	if c.Outreach.DailyConnectionLimit < 0 || c.Outreach.DailyConnectionLimit > 100 {
		return invalid("outreach.daily_connection_limit", "must be between 0 and 100")
	}
	if c.Outreach.LimitStep < 0 || c.Outreach.LimitFloor < 0 {
		return invalid("outreach", "limit_step and limit_floor must not be negative")
	}

	if c.Responder.PollInterval < 30*time.Second || c.Responder.PollInterval > time.Hour {
		return invalid("responder.poll_interval", "must be between 30s and 1h")
	}
	if c.Responder.MinDelay < 30*time.Second {
		return invalid("responder.min_delay", "must be at least 30s")
	}
	if c.Responder.MaxDelay < c.Responder.MinDelay {
		return invalid("responder.max_delay", "must be >= min_delay")
	}

	switch c.Generator.Provider {
	case ProviderAnthropic, ProviderGemini:
	default:
		return invalid("generator.provider", "must be %q or %q, got %q", ProviderAnthropic, ProviderGemini, c.Generator.Provider)
	}

	if c.Database.Driver != "sqlite" {
		return invalid("database.driver", "unsupported driver %q", c.Database.Driver)
	}

	if c.Tracker.Enabled && c.Tracker.SpreadsheetID == "" {
		return invalid("tracker.spreadsheet_id", "is required when the tracker is enabled")
	}

	return nil
}

// RequireCredentials checks the secrets needed to generate and publish posts
func (c *Config) RequireCredentials() error {
	switch c.Generator.Provider {
	case ProviderAnthropic:
		if c.Anthropic.APIKey == "" {
			return invalid("anthropic.api_key", "is required")
		}
	case ProviderGemini:
		if c.Gemini.APIKey == "" {
			return invalid("gemini.api_key", "is required")
		}
	}
	if c.LinkedIn.AccessToken == "" {
		return invalid("linkedin.access_token", "is required")
	}
	return nil
}

// TokenExpiry parses linkedin.token_expires_at. A blank value means unknown expiry.
func (c *LinkedInConfig) TokenExpiry() (time.Time, error) {
	if c.TokenExpiresAt == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339, c.TokenExpiresAt)
	if err != nil {
		return time.Time{}, invalid("linkedin.token_expires_at", "must be RFC3339: %v", err)
	}
	return t, nil
}

// Entries returns the parsed posting schedule
func (c *SchedulerConfig) Entries() ([]schedule.Entry, error) {
	return schedule.ParseTimes(c.PostingSchedule)
}
