package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`
	Bot      BotConfig      `yaml:"bot"`
	Portal   PortalConfig   `yaml:"portal"`
	OpenAI   OpenAIConfig   `yaml:"openai"`
	Polling  PollingConfig  `yaml:"polling"`
	Sheets   SheetsConfig   `yaml:"sheets"`
	Access   AccessConfig   `yaml:"access"`
}

// ServerConfig holds HTTP server settings (health + webhook surface).
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// DatabaseConfig holds PostgreSQL connection settings.
type DatabaseConfig struct {
	URL          string `yaml:"url"`
	MaxOpenConns int    `yaml:"max_open_conns"`
	MaxIdleConns int    `yaml:"max_idle_conns"`
}

// RedisConfig holds the Redis connection for advisory caches and quotas.
// Redis is optional; when the URL is empty the in-memory fallbacks are used.
type RedisConfig struct {
	URL string `yaml:"url"`
}

// BotConfig holds the chat collaborator credentials.
type BotConfig struct {
	Token          string `yaml:"token"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

// PortalConfig holds zakupki.gov.ru client settings.
type PortalConfig struct {
	BaseURL           string `yaml:"base_url"`
	ProxyURL          string `yaml:"proxy_url"`
	TimeoutSeconds    int    `yaml:"timeout_seconds"`
	MaxConcurrent     int    `yaml:"max_concurrent"`
	MinRequestGapMS   int    `yaml:"min_request_gap_ms"`
	InsecureTLS       bool   `yaml:"insecure_tls"`
}

// OpenAIConfig holds the LLM collaborator settings.
type OpenAIConfig struct {
	APIKey         string `yaml:"api_key"`
	Model          string `yaml:"model"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

// PollingConfig holds monitoring loop settings.
type PollingConfig struct {
	IntervalSeconds   int `yaml:"interval_seconds"`
	MaxTendersPerPoll int `yaml:"max_tenders_per_poll"`
	Workers           int `yaml:"workers"`
}

// SheetsConfig holds the spreadsheet collaborator settings. Export is
// best-effort and disabled when the spreadsheet id is empty.
type SheetsConfig struct {
	SpreadsheetID  string `yaml:"spreadsheet_id"`
	APIToken       string `yaml:"api_token"`
	SheetName      string `yaml:"sheet_name"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

// AccessConfig gates the chat front-end (consumed by the external bot layer;
// the webhook handler validates against it too).
type AccessConfig struct {
	AdminUserID  int64   `yaml:"admin_user_id"`
	AllowedUsers []int64 `yaml:"allowed_users"`
	WebhookToken string  `yaml:"webhook_token"`
}

// Load reads and parses the configuration file
func Load(path string) (*Config, error) {
	var cfg Config
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, err
		}
	}

	// Set defaults
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.Host == "" {
		cfg.Server.Host = "0.0.0.0"
	}
	if cfg.Database.MaxOpenConns == 0 {
		cfg.Database.MaxOpenConns = 25
	}
	if cfg.Database.MaxIdleConns == 0 {
		cfg.Database.MaxIdleConns = 5
	}
	if cfg.Bot.TimeoutSeconds == 0 {
		cfg.Bot.TimeoutSeconds = 10
	}
	if cfg.Portal.BaseURL == "" {
		cfg.Portal.BaseURL = "https://zakupki.gov.ru"
	}
	if cfg.Portal.TimeoutSeconds == 0 {
		cfg.Portal.TimeoutSeconds = 30
	}
	if cfg.Portal.MaxConcurrent == 0 {
		cfg.Portal.MaxConcurrent = 8
	}
	if cfg.Portal.MinRequestGapMS == 0 {
		cfg.Portal.MinRequestGapMS = 2000
	}
	if cfg.OpenAI.Model == "" {
		cfg.OpenAI.Model = "gpt-4o-mini"
	}
	if cfg.OpenAI.TimeoutSeconds == 0 {
		cfg.OpenAI.TimeoutSeconds = 20
	}
	if cfg.Polling.IntervalSeconds == 0 {
		cfg.Polling.IntervalSeconds = 300
	}
	if cfg.Polling.MaxTendersPerPoll == 0 {
		cfg.Polling.MaxTendersPerPoll = 100
	}
	if cfg.Polling.Workers == 0 {
		cfg.Polling.Workers = 10
	}
	// Sheets.SheetName stays empty by default; the exporter then names sheets
	// by week.
	if cfg.Sheets.TimeoutSeconds == 0 {
		cfg.Sheets.TimeoutSeconds = 15
	}

	return &cfg, nil
}

// LoadFromEnv loads configuration with environment variable overrides.
// It loads a .env file (if present) before reading env vars, so secrets can
// live in .env locally and in real env vars on the host.
func LoadFromEnv(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}

	if v := os.Getenv("SERVER_HOST"); v != "" {
		cfg.Server.Host = v
	}
	if v := os.Getenv("SERVER_PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = p
		}
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.Database.URL = v
	}
	if v := os.Getenv("REDIS_URL"); v != "" {
		cfg.Redis.URL = v
	}
	if v := os.Getenv("BOT_TOKEN"); v != "" {
		cfg.Bot.Token = v
	}
	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		cfg.OpenAI.APIKey = v
	}
	if v := os.Getenv("OPENAI_MODEL"); v != "" {
		cfg.OpenAI.Model = v
	}
	if v := os.Getenv("PROXY_URL"); v != "" {
		cfg.Portal.ProxyURL = v
	}
	if v := os.Getenv("POLL_INTERVAL_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Polling.IntervalSeconds = n
		}
	}
	if v := os.Getenv("MAX_TENDERS_PER_POLL"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Polling.MaxTendersPerPoll = n
		}
	}
	if v := os.Getenv("ADMIN_USER_ID"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.Access.AdminUserID = n
		}
	}
	if v := os.Getenv("ALLOWED_USERS"); v != "" {
		cfg.Access.AllowedUsers = cfg.Access.AllowedUsers[:0]
		for _, part := range strings.Split(v, ",") {
			if n, err := strconv.ParseInt(strings.TrimSpace(part), 10, 64); err == nil {
				cfg.Access.AllowedUsers = append(cfg.Access.AllowedUsers, n)
			}
		}
	}
	if v := os.Getenv("PAYMENT_WEBHOOK_TOKEN"); v != "" {
		cfg.Access.WebhookToken = v
	}
	if v := os.Getenv("SHEETS_SPREADSHEET_ID"); v != "" {
		cfg.Sheets.SpreadsheetID = v
	}
	if v := os.Getenv("SHEETS_API_TOKEN"); v != "" {
		cfg.Sheets.APIToken = v
	}

	return cfg, nil
}

// Validate checks that the settings required to function are present.
// Missing required settings are fatal at startup.
func (c *Config) Validate() error {
	var missing []string
	if c.Bot.Token == "" {
		missing = append(missing, "BOT_TOKEN")
	}
	if c.Database.URL == "" {
		missing = append(missing, "DATABASE_URL")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required configuration: %s", strings.Join(missing, ", "))
	}
	return nil
}

// PollInterval returns the monitoring period as a duration.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.Polling.IntervalSeconds) * time.Second
}
