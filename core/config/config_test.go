package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	return &Config{
		Admin:    AdminConfig{Phone: "+234 801 234 5678"},
		WhatsApp: WhatsAppConfig{Enabled: true, Token: "t", PhoneNumberID: "42", VerifyToken: "v", AppSecret: "s"},
		AI:       AIConfig{APIKey: "k"},
	}
}

func TestNormalizeDefaults(t *testing.T) {
	cfg := validConfig()
	require.NoError(t, Normalize(cfg))

	assert.Equal(t, "2348012345678", cfg.Admin.Phone)
	assert.Equal(t, 3000, cfg.HTTP.Port)
	assert.Equal(t, ":3000", cfg.HTTP.Address())
	assert.Equal(t, "https://graph.facebook.com/v20.0", cfg.WhatsApp.APIBaseURL)
	assert.Equal(t, DriverSQLite, cfg.Database.Driver)
	assert.Equal(t, "vtubot.db", cfg.Database.Path)
	assert.Equal(t, "https://api.deepseek.com", cfg.AI.BaseURL)
	assert.Equal(t, "deepseek-chat", cfg.AI.Model)
	assert.Equal(t, 300, cfg.AI.MaxTokens)
	assert.InDelta(t, 0.7, cfg.AI.Temperature, 1e-9)
	assert.Equal(t, 4, cfg.Broadcast.Concurrency)
	assert.Equal(t, "0 */15 * * * *", cfg.Sessions.SweepSchedule)
	assert.Equal(t, 10, cfg.Security.BcryptCost)
	assert.Equal(t, "vtubot", cfg.Security.JWTIssuer)
}

func TestNormalizePostgresWhenHostSet(t *testing.T) {
	cfg := validConfig()
	cfg.Database = DatabaseConfig{Host: "db", Name: "vtu"}
	require.NoError(t, Normalize(cfg))
	assert.Equal(t, DriverPostgres, cfg.Database.Driver)
	assert.Equal(t, "5432", cfg.Database.Port)
	assert.Equal(t, "disable", cfg.Database.SSLMode)
}

func TestNormalizeErrors(t *testing.T) {
	cases := map[string]func(*Config){
		"missing admin phone": func(c *Config) { c.Admin.Phone = "n/a" },
		"no channel":          func(c *Config) { c.WhatsApp.Enabled = false },
		"missing app secret":  func(c *Config) { c.WhatsApp.AppSecret = "" },
		"telegram no token":   func(c *Config) { c.Telegram.Enabled = true },
		"bad run mode": func(c *Config) {
			c.Telegram = TelegramConfig{Enabled: true, Token: "x", RunMode: "carrier-pigeon"}
		},
		"webhook without url": func(c *Config) {
			c.Telegram = TelegramConfig{Enabled: true, Token: "x", RunMode: RunModeWebhook}
		},
		"bad driver":       func(c *Config) { c.Database.Driver = "mysql" },
		"postgres no name": func(c *Config) { c.Database = DatabaseConfig{Driver: DriverPostgres, Host: "db"} },
		"missing ai key":   func(c *Config) { c.AI.APIKey = " " },
		"bcrypt too low":   func(c *Config) { c.Security.BcryptCost = 2 },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := validConfig()
			mutate(cfg)
			assert.Error(t, Normalize(cfg))
		})
	}
}

func TestNormalizeTelegramPollingAlias(t *testing.T) {
	cfg := validConfig()
	cfg.Telegram = TelegramConfig{Enabled: true, Token: "x", RunMode: "Polling"}
	require.NoError(t, Normalize(cfg))
	assert.Equal(t, RunModeLongpoll, cfg.Telegram.RunMode)
}

func TestLoadYAMLWithEnvOverlay(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yaml := `
admin:
  phone: "2348000000000"
whatsapp:
  enabled: true
  token: yaml-token
  phone_number_id: "123"
  verify_token: verify
  app_secret: secret
ai:
  api_key: key
broadcast:
  concurrency: 8
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o600))
	t.Setenv("WHATSAPP_TOKEN", "env-token")
	t.Setenv("PORT", "8081")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "env-token", cfg.WhatsApp.Token)
	assert.Equal(t, 8081, cfg.HTTP.Port)
	assert.Equal(t, 8, cfg.Broadcast.Concurrency)
	assert.Equal(t, "2348000000000", cfg.Admin.Phone)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}
