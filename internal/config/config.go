// Package config loads and validates all runtime configuration for the
// gateway from environment variables (preferred for containers), optionally
// layered over a .env file. Environment variables always take precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
	"github.com/subosito/gotenv"
)

// Config is the top-level configuration container, covering the
// environment variables named in SPEC_FULL.md §6.
type Config struct {
	Port int

	APIURL    string
	UIURL     string
	OriginURL string

	Redis RedisConfig

	// DatabaseURL is the Postgres DSN backing the relational store (§10.5).
	DatabaseURL string

	// ClickHouseDSN, when non-empty, enables the optional analytics dual-write
	// sink in StatsCalculator (§10.5). Empty disables it.
	ClickHouseDSN string

	AuthSecret   string
	CookieDomain string

	RunMigrations bool

	CreditBatchSize     int
	CreditBatchInterval time.Duration

	BackfillDurationSeconds int

	NodeEnv string

	TimeoutMS int

	LogLevel  string
	LogFormat string

	// FallbackCredentials are the gateway's own provider API keys, used in
	// credits-mode when the calling organization has no providerKey of its
	// own configured (§4.C failure semantics).
	FallbackCredentials map[string]string
}

// RedisConfig holds Redis connection configuration.
type RedisConfig struct {
	Host     string
	Port     int
	Password string
}

// Addr returns "host:port" suitable for redis.Options.Addr.
func (r RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

// Load reads configuration from the environment (and .env, if present).
func Load() (*Config, error) {
	if err := loadDotEnv(".env"); err != nil {
		return nil, err
	}

	v := viper.New()
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetDefault("PORT", 4002)
	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("RUN_MIGRATIONS", false)
	v.SetDefault("CREDIT_BATCH_SIZE", 200)
	v.SetDefault("CREDIT_BATCH_INTERVAL", "5s")
	v.SetDefault("BACKFILL_DURATION_SECONDS", 300)
	v.SetDefault("NODE_ENV", "development")
	v.SetDefault("TIMEOUT_MS", 5000)
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	cfg := &Config{
		Port:      v.GetInt("PORT"),
		APIURL:    v.GetString("API_URL"),
		UIURL:     v.GetString("UI_URL"),
		OriginURL: v.GetString("ORIGIN_URL"),

		Redis: RedisConfig{
			Host:     v.GetString("REDIS_HOST"),
			Port:     v.GetInt("REDIS_PORT"),
			Password: v.GetString("REDIS_PASSWORD"),
		},

		DatabaseURL:   v.GetString("DATABASE_URL"),
		ClickHouseDSN: v.GetString("CLICKHOUSE_DSN"),

		AuthSecret:   v.GetString("AUTH_SECRET"),
		CookieDomain: v.GetString("COOKIE_DOMAIN"),

		RunMigrations: v.GetBool("RUN_MIGRATIONS"),

		CreditBatchSize:     v.GetInt("CREDIT_BATCH_SIZE"),
		CreditBatchInterval: v.GetDuration("CREDIT_BATCH_INTERVAL"),

		BackfillDurationSeconds: v.GetInt("BACKFILL_DURATION_SECONDS"),

		NodeEnv: strings.ToLower(v.GetString("NODE_ENV")),

		TimeoutMS: v.GetInt("TIMEOUT_MS"),

		LogLevel:  strings.ToLower(v.GetString("LOG_LEVEL")),
		LogFormat: strings.ToLower(v.GetString("LOG_FORMAT")),

		FallbackCredentials: map[string]string{
			"openai":     v.GetString("OPENAI_API_KEY"),
			"anthropic":  v.GetString("ANTHROPIC_API_KEY"),
			"gemini":     v.GetString("GOOGLE_API_KEY"),
			"mistral":    v.GetString("MISTRAL_API_KEY"),
			"xai":        v.GetString("XAI_API_KEY"),
			"groq":       v.GetString("GROQ_API_KEY"),
			"deepseek":   v.GetString("DEEPSEEK_API_KEY"),
			"perplexity": v.GetString("PERPLEXITY_API_KEY"),
			"zai":        v.GetString("ZAI_API_KEY"),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("config: DATABASE_URL is required")
	}
	if c.Redis.Host == "" {
		return fmt.Errorf("config: REDIS_HOST is required")
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("config: invalid LOG_LEVEL %q; must be one of: debug, info, warn, error", c.LogLevel)
	}
	if c.CreditBatchSize < 1 {
		return fmt.Errorf("config: CREDIT_BATCH_SIZE must be ≥ 1, got %d", c.CreditBatchSize)
	}
	if c.CreditBatchInterval <= 0 {
		return fmt.Errorf("config: CREDIT_BATCH_INTERVAL must be a positive duration")
	}
	if c.BackfillDurationSeconds < 1 {
		return fmt.Errorf("config: BACKFILL_DURATION_SECONDS must be ≥ 1, got %d", c.BackfillDurationSeconds)
	}
	return nil
}

// IsProduction reports whether NODE_ENV is "production". Its only effect is
// the usage worker's 120-tick auto-topup cadence; the gateway fetches no
// images, and the queue pull count is the same in every environment.
func (c *Config) IsProduction() bool {
	return c.NodeEnv == "production"
}

func loadDotEnv(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("config: failed to stat %s: %w", path, err)
	}
	if info.IsDir() {
		return fmt.Errorf("config: %s is a directory, expected a file", path)
	}
	if err := gotenv.Load(path); err != nil {
		return fmt.Errorf("config: failed to load %s: %w", path, err)
	}
	return nil
}
