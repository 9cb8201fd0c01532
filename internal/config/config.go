package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

var knownWeakSecrets = []string{
	"change-me", "dev-secret-change-me", "secret", "admin", "password",
}

type Config struct {
	SlackPort             int    `env:"SLACK_PORT" envDefault:"4005"`
	APIPort               int    `env:"API_PORT" envDefault:"4006"`
	AppEnv                string `env:"APP_ENV" envDefault:"development"`
	DatabaseURL           string `env:"DATABASE_URL,required"`
	RedisURL              string `env:"REDIS_URL,required"`
	SlackSigningSecret    string `env:"SLACK_SIGNING_SECRET"`
	SlackClientID         string `env:"SLACK_CLIENT_ID"`
	SlackClientSecret     string `env:"SLACK_CLIENT_SECRET"`
	SlackStateSecret      string `env:"SLACK_STATE_SECRET"`
	SlackBotToken         string `env:"SLACK_BOT_TOKEN"`
	SlackScopes           string `env:"SLACK_SCOPES" envDefault:"commands,chat:write,users:read,im:write,files:write"`
	SlackRedirectURL      string `env:"SLACK_REDIRECT_URL"`
	PublicBaseURL         string `env:"PUBLIC_BASE_URL" envDefault:""`
	EncryptionKey         string `env:"ENCRYPTION_KEY"`
	LogLevel              string `env:"LOG_LEVEL" envDefault:"info"`
	QRCacheTTLSeconds     int    `env:"QR_CACHE_TTL_SECONDS" envDefault:"3600"`
	ActionDedupTTLSeconds int    `env:"ACTION_DEDUP_TTL_SECONDS" envDefault:"600"`
	MetricsNamespace      string `env:"METRICS_NAMESPACE" envDefault:"tipbot"`
}

func (c *Config) IsProduction() bool {
	return c.AppEnv == "production"
}

func (c *Config) QRCacheTTL() time.Duration {
	return time.Duration(c.QRCacheTTLSeconds) * time.Second
}

func (c *Config) ActionDedupTTL() time.Duration {
	return time.Duration(c.ActionDedupTTLSeconds) * time.Second
}

func (c *Config) SlackAddr() string {
	return fmt.Sprintf(":%d", c.SlackPort)
}

func (c *Config) APIAddr() string {
	return fmt.Sprintf(":%d", c.APIPort)
}

// TipImageURL builds the externally fetchable QR image link for userID.
// It returns "" when no public base URL is configured.
func (c *Config) TipImageURL(userID string) string {
	if c.PublicBaseURL == "" {
		return ""
	}
	return strings.TrimRight(c.PublicBaseURL, "/") + "/api/tip/" + userID
}

func (c *Config) OAuthEnabled() bool {
	return c.SlackClientID != "" && c.SlackClientSecret != ""
}

func (c *Config) Validate() error {
	if c.SlackPort == c.APIPort {
		return fmt.Errorf("SLACK_PORT and API_PORT must differ")
	}

	if c.EncryptionKey != "" && len(c.EncryptionKey) != 64 {
		return fmt.Errorf("ENCRYPTION_KEY must be 64 hex characters (generate with: openssl rand -hex 32)")
	}

	if c.OAuthEnabled() {
		if err := validateSecret("SLACK_STATE_SECRET", c.SlackStateSecret, c.IsProduction()); err != nil {
			return err
		}
	}

	if c.IsProduction() {
		if c.SlackSigningSecret == "" {
			return fmt.Errorf("SLACK_SIGNING_SECRET is required in production")
		}
		if !c.OAuthEnabled() && c.SlackBotToken == "" {
			log.Warn().Msg("neither SLACK_CLIENT_ID/SECRET nor SLACK_BOT_TOKEN set: the bot cannot call Slack")
		}
		if strings.HasPrefix(c.RedisURL, "redis://") {
			log.Warn().Msg("REDIS_URL uses redis:// (not TLS) in production: consider using rediss://")
		}
		if c.EncryptionKey == "" {
			log.Warn().Msg("ENCRYPTION_KEY is empty in production: bot tokens will not be encrypted at rest")
		}
		if c.PublicBaseURL == "" {
			log.Warn().Msg("PUBLIC_BASE_URL is empty: QR codes will be uploaded as files instead of linked")
		}
	}

	return nil
}

func validateSecret(name, value string, strict bool) error {
	if value == "" {
		return fmt.Errorf("%s is required when Slack OAuth is enabled", name)
	}
	if !strict {
		return nil
	}
	if len(value) < 32 {
		return fmt.Errorf("%s must be at least 32 characters in production (generate with: openssl rand -base64 32)", name)
	}
	for _, weak := range knownWeakSecrets {
		if value == weak {
			return fmt.Errorf("%s is a known weak default; set a strong secret in production", name)
		}
	}
	return nil
}

// Load reads configuration from the environment. Outside production a local
// .env file is loaded first; variables already set in the environment win.
func Load() (*Config, error) {
	if os.Getenv("APP_ENV") != "production" {
		_ = godotenv.Load()
	}

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return &cfg, nil
}
