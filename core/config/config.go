package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// AppConfig holds process-wide settings.
type AppConfig struct {
	Name        string `yaml:"name" envconfig:"APP_NAME"`
	Environment string `yaml:"environment" envconfig:"APP_ENV"`
}

// HTTPConfig controls the HTTP listener used by the WhatsApp webhook and admin API.
type HTTPConfig struct {
	Listen              string `yaml:"listen" envconfig:"HTTP_LISTEN"`
	Port                int    `yaml:"port" envconfig:"PORT"`
	ReadTimeoutSeconds  int    `yaml:"read_timeout_seconds"`
	WriteTimeoutSeconds int    `yaml:"write_timeout_seconds"`
}

// WhatsAppConfig holds WhatsApp Cloud API credentials.
type WhatsAppConfig struct {
	Enabled       bool   `yaml:"enabled" envconfig:"WHATSAPP_ENABLED"`
	Token         string `yaml:"token" envconfig:"WHATSAPP_TOKEN"`
	PhoneNumberID string `yaml:"phone_number_id" envconfig:"WHATSAPP_PHONE_NUMBER_ID"`
	VerifyToken   string `yaml:"verify_token" envconfig:"VERIFY_TOKEN"`
	AppSecret     string `yaml:"app_secret" envconfig:"WHATSAPP_APP_SECRET"`
	APIBaseURL    string `yaml:"api_base_url" envconfig:"WHATSAPP_API_BASE_URL"`
}

// TelegramConfig holds Telegram bot related settings.
type TelegramConfig struct {
	Enabled bool   `yaml:"enabled" envconfig:"TELEGRAM_ENABLED"`
	Token   string `yaml:"token" envconfig:"BOT_TOKEN"`
	RunMode string `yaml:"run_mode" envconfig:"TELEGRAM_RUN_MODE"`
	// LongPollTimeoutSeconds defines long polling timeout; 0 -> default
	LongPollTimeoutSeconds int           `yaml:"longpoll_timeout_seconds" envconfig:"TELEGRAM_LONGPOLL_TIMEOUT_SECONDS"`
	Webhook                WebhookConfig `yaml:"webhook"`
}

// WebhookConfig specifies Telegram webhook settings.
type WebhookConfig struct {
	URL    string `yaml:"url" envconfig:"TELEGRAM_WEBHOOK_URL"`
	Listen string `yaml:"listen" envconfig:"TELEGRAM_WEBHOOK_LISTEN"`
	Port   int    `yaml:"port" envconfig:"TELEGRAM_WEBHOOK_PORT"`
}

// DatabaseConfig holds database connection settings.
// Driver "sqlite" uses Path; "postgres" uses the host/credential fields.
type DatabaseConfig struct {
	Driver         string `yaml:"driver" envconfig:"DB_DRIVER"`
	Host           string `yaml:"host" envconfig:"DB_HOST"`
	Port           string `yaml:"port" envconfig:"DB_PORT"`
	User           string `yaml:"user" envconfig:"DB_USER"`
	Password       string `yaml:"password" envconfig:"DB_PASSWORD"`
	Name           string `yaml:"name" envconfig:"DB_NAME"`
	SSLMode        string `yaml:"sslmode" envconfig:"DB_SSLMODE"`
	Path           string `yaml:"path" envconfig:"DB_PATH"`
	MaxConnections int    `yaml:"max_connections" envconfig:"DB_MAX_CONNECTIONS"`
}

// RedisConfig enables distributed per-identity locks when Addr is set.
type RedisConfig struct {
	Addr           string `yaml:"addr" envconfig:"REDIS_ADDR"`
	Password       string `yaml:"password" envconfig:"REDIS_PASSWORD"`
	DB             int    `yaml:"db" envconfig:"REDIS_DB"`
	LockTTLSeconds int    `yaml:"lock_ttl_seconds" envconfig:"REDIS_LOCK_TTL_SECONDS"`
}

// AdminConfig names the identity that is provisioned as administrator.
type AdminConfig struct {
	Phone string `yaml:"phone" envconfig:"ADMIN_PHONE"`
}

// AIConfig configures the chat-completion collaborator.
type AIConfig struct {
	APIKey         string  `yaml:"api_key" envconfig:"DEEPSEEK_API_KEY"`
	BaseURL        string  `yaml:"base_url" envconfig:"DEEPSEEK_BASE_URL"`
	Model          string  `yaml:"model" envconfig:"DEEPSEEK_MODEL"`
	MaxTokens      int     `yaml:"max_tokens"`
	Temperature    float64 `yaml:"temperature"`
	TimeoutSeconds int     `yaml:"timeout_seconds"`
}

// BroadcastConfig bounds the admin broadcast fan-out.
type BroadcastConfig struct {
	Concurrency int `yaml:"concurrency" envconfig:"BROADCAST_CONCURRENCY"`
}

// SessionsConfig controls the stale form sweeper.
type SessionsConfig struct {
	FormTTLMinutes int    `yaml:"form_ttl_minutes" envconfig:"SESSION_FORM_TTL_MINUTES"`
	SweepSchedule  string `yaml:"sweep_schedule" envconfig:"SESSION_SWEEP_SCHEDULE"`
}

// SecurityConfig holds password hashing and admin API token settings.
// An empty JWTSecret disables the admin API.
type SecurityConfig struct {
	JWTSecret       string `yaml:"jwt_secret" envconfig:"JWT_SECRET"`
	JWTIssuer       string `yaml:"jwt_issuer" envconfig:"JWT_ISSUER"`
	TokenTTLMinutes int    `yaml:"token_ttl_minutes" envconfig:"JWT_TTL_MINUTES"`
	BcryptCost      int    `yaml:"bcrypt_cost" envconfig:"BCRYPT_COST"`
}

// LoggingConfig defines logging related configuration.
type LoggingConfig struct {
	Level     string `yaml:"level" envconfig:"LOG_LEVEL"`
	Format    string `yaml:"format" envconfig:"LOG_FORMAT"`
	KeysOrder string `yaml:"keys_order"`
	Dir       string `yaml:"dir"`
	File      string `yaml:"file"`
	// Profile indicates environment profile such as "debug" or "prod".
	Profile string `yaml:"profile"`
	// DebugSample keeps N of M high-volume debug events, e.g. "1/50"; "0" disables sampling.
	DebugSample string `yaml:"debug_sample" envconfig:"LOG_DEBUG_SAMPLE"`
}

// RateLimitConfig holds settings for per-user rate limiting on Telegram.
type RateLimitConfig struct {
	IntervalMS int `yaml:"interval_ms" envconfig:"RATE_LIMIT_INTERVAL_MS"`
}

const (
	// RunModeWebhook selects webhook mode for Telegram updates.
	RunModeWebhook = "webhook"
	// RunModeLongpoll selects long-polling mode for Telegram updates.
	RunModeLongpoll = "longpoll"

	// DriverPostgres selects the lib/pq backed Postgres store.
	DriverPostgres = "postgres"
	// DriverSQLite selects the embedded sqlite store.
	DriverSQLite = "sqlite"
)

// Config aggregates the service configuration.
type Config struct {
	App       AppConfig       `yaml:"app"`
	HTTP      HTTPConfig      `yaml:"http"`
	WhatsApp  WhatsAppConfig  `yaml:"whatsapp"`
	Telegram  TelegramConfig  `yaml:"telegram"`
	Database  DatabaseConfig  `yaml:"database"`
	Redis     RedisConfig     `yaml:"redis"`
	Admin     AdminConfig     `yaml:"admin"`
	AI        AIConfig        `yaml:"ai"`
	Broadcast BroadcastConfig `yaml:"broadcast"`
	Sessions  SessionsConfig  `yaml:"sessions"`
	Security  SecurityConfig  `yaml:"security"`
	Logging   LoggingConfig   `yaml:"logging"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
}

// Load reads configuration from a YAML file and environment variables.
// An empty path skips the file and relies on the environment alone.
func Load(path string) (*Config, error) {
	var cfg Config

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse YAML config: %w", err)
		}
	}
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process env: %w", err)
	}

	if err := Normalize(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Normalize performs validation of required configuration fields and adjusts defaults.
func Normalize(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("nil config")
	}

	if strings.TrimSpace(cfg.App.Name) == "" {
		cfg.App.Name = "vtubot"
	}
	cfg.App.Environment = strings.ToLower(strings.TrimSpace(cfg.App.Environment))
	if cfg.App.Environment == "" {
		cfg.App.Environment = "development"
	}

	if cfg.HTTP.Port == 0 {
		cfg.HTTP.Port = 3000
	}
	if cfg.HTTP.Port < 0 {
		return fmt.Errorf("http.port must be > 0")
	}
	if cfg.HTTP.ReadTimeoutSeconds <= 0 {
		cfg.HTTP.ReadTimeoutSeconds = 10
	}
	if cfg.HTTP.WriteTimeoutSeconds <= 0 {
		cfg.HTTP.WriteTimeoutSeconds = 30
	}

	cfg.Admin.Phone = digitsOnly(cfg.Admin.Phone)
	if cfg.Admin.Phone == "" {
		return fmt.Errorf("admin.phone is required")
	}

	if !cfg.WhatsApp.Enabled && !cfg.Telegram.Enabled {
		return fmt.Errorf("at least one channel must be enabled (whatsapp.enabled or telegram.enabled)")
	}
	if err := normalizeWhatsApp(&cfg.WhatsApp); err != nil {
		return err
	}
	if err := normalizeTelegram(&cfg.Telegram); err != nil {
		return err
	}
	if err := normalizeDatabase(&cfg.Database); err != nil {
		return err
	}

	if cfg.Redis.LockTTLSeconds <= 0 {
		cfg.Redis.LockTTLSeconds = 30
	}

	if strings.TrimSpace(cfg.AI.APIKey) == "" {
		return fmt.Errorf("ai.api_key is required")
	}
	if cfg.AI.BaseURL == "" {
		cfg.AI.BaseURL = "https://api.deepseek.com"
	}
	cfg.AI.BaseURL = strings.TrimRight(cfg.AI.BaseURL, "/")
	if cfg.AI.Model == "" {
		cfg.AI.Model = "deepseek-chat"
	}
	if cfg.AI.MaxTokens <= 0 {
		cfg.AI.MaxTokens = 300
	}
	if cfg.AI.Temperature <= 0 {
		cfg.AI.Temperature = 0.7
	}
	if cfg.AI.TimeoutSeconds <= 0 {
		cfg.AI.TimeoutSeconds = 30
	}

	if cfg.Broadcast.Concurrency <= 0 {
		cfg.Broadcast.Concurrency = 4
	}

	if cfg.Sessions.FormTTLMinutes < 0 {
		return fmt.Errorf("sessions.form_ttl_minutes must be >= 0")
	}
	if cfg.Sessions.FormTTLMinutes == 0 {
		cfg.Sessions.FormTTLMinutes = 24 * 60
	}
	if strings.TrimSpace(cfg.Sessions.SweepSchedule) == "" {
		cfg.Sessions.SweepSchedule = "0 */15 * * * *"
	}

	if cfg.Security.JWTIssuer == "" {
		cfg.Security.JWTIssuer = cfg.App.Name
	}
	if cfg.Security.TokenTTLMinutes <= 0 {
		cfg.Security.TokenTTLMinutes = 60
	}
	if cfg.Security.BcryptCost == 0 {
		cfg.Security.BcryptCost = 10
	}
	if cfg.Security.BcryptCost < 4 || cfg.Security.BcryptCost > 31 {
		return fmt.Errorf("security.bcrypt_cost must be within 4..31")
	}

	if cfg.RateLimit.IntervalMS < 0 {
		return fmt.Errorf("rate_limit.interval_ms must be >= 0")
	}
	return nil
}

func normalizeWhatsApp(wa *WhatsAppConfig) error {
	if !wa.Enabled {
		return nil
	}
	switch {
	case strings.TrimSpace(wa.Token) == "":
		return fmt.Errorf("whatsapp.token is required when whatsapp is enabled")
	case strings.TrimSpace(wa.PhoneNumberID) == "":
		return fmt.Errorf("whatsapp.phone_number_id is required when whatsapp is enabled")
	case strings.TrimSpace(wa.VerifyToken) == "":
		return fmt.Errorf("whatsapp.verify_token is required when whatsapp is enabled")
	case strings.TrimSpace(wa.AppSecret) == "":
		return fmt.Errorf("whatsapp.app_secret is required when whatsapp is enabled")
	}
	if wa.APIBaseURL == "" {
		wa.APIBaseURL = "https://graph.facebook.com/v20.0"
	}
	wa.APIBaseURL = strings.TrimRight(wa.APIBaseURL, "/")
	return nil
}

func normalizeTelegram(tg *TelegramConfig) error {
	if !tg.Enabled {
		return nil
	}
	if tg.Token == "" {
		return fmt.Errorf("telegram token is required when telegram is enabled")
	}

	rm := strings.ToLower(strings.TrimSpace(tg.RunMode))
	if rm == "" {
		rm = RunModeLongpoll
	}
	if rm == "polling" { // accept alias
		rm = RunModeLongpoll
	}
	switch rm {
	case RunModeWebhook:
		if strings.TrimSpace(tg.Webhook.URL) == "" {
			return fmt.Errorf("telegram.webhook.url is required when telegram.run_mode is 'webhook'")
		}
		if strings.TrimSpace(tg.Webhook.Listen) == "" {
			return fmt.Errorf("telegram.webhook.listen is required when telegram.run_mode is 'webhook'")
		}
		if tg.Webhook.Port <= 0 {
			return fmt.Errorf("telegram.webhook.port must be > 0 when telegram.run_mode is 'webhook'")
		}
	case RunModeLongpoll:
		if tg.LongPollTimeoutSeconds < 0 {
			return fmt.Errorf("telegram.longpoll_timeout_seconds must be >= 0")
		}
	default:
		return fmt.Errorf("invalid telegram.run_mode %q; allowed: webhook, longpoll", tg.RunMode)
	}
	tg.RunMode = rm
	return nil
}

func normalizeDatabase(db *DatabaseConfig) error {
	driver := strings.ToLower(strings.TrimSpace(db.Driver))
	if driver == "" {
		// No server configured: fall back to a local sqlite file.
		driver = DriverPostgres
		if strings.TrimSpace(db.Host) == "" {
			driver = DriverSQLite
		}
	}
	switch driver {
	case DriverPostgres:
		if strings.TrimSpace(db.Host) == "" || strings.TrimSpace(db.Name) == "" {
			return fmt.Errorf("database.host and database.name are required for the postgres driver")
		}
		if db.Port == "" {
			db.Port = "5432"
		}
		if db.SSLMode == "" {
			db.SSLMode = "disable"
		}
	case DriverSQLite:
		if strings.TrimSpace(db.Path) == "" {
			db.Path = "vtubot.db"
		}
	default:
		return fmt.Errorf("invalid database.driver %q; allowed: postgres, sqlite", db.Driver)
	}
	db.Driver = driver
	if db.MaxConnections <= 0 {
		db.MaxConnections = 10
	}
	return nil
}

// Address returns the host:port pair for the HTTP server to bind to.
func (c HTTPConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Listen, c.Port)
}

// FormTTL returns how long a form may sit untouched before the sweeper resets it.
func (c SessionsConfig) FormTTL() time.Duration {
	return time.Duration(c.FormTTLMinutes) * time.Minute
}

// LockTTL returns the lease duration of a distributed identity lock.
func (c RedisConfig) LockTTL() time.Duration {
	return time.Duration(c.LockTTLSeconds) * time.Second
}

// TokenTTL returns the lifetime of issued admin API tokens.
func (c SecurityConfig) TokenTTL() time.Duration {
	return time.Duration(c.TokenTTLMinutes) * time.Minute
}

func digitsOnly(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
