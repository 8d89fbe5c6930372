// Package config reads the environment (and an optional .env file) into the
// typed settings used by the server, the migrate command and the seeder.
package config

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/joho/godotenv"
	v "github.com/spf13/viper"
)

var validLogLevels = []string{"debug", "info", "warn", "error"}

type Config struct {
	Environment string
	LogLevel    string
	Port        int
	DatabaseURL string

	AllowedOrigins string
	AdminToken     string
	PublicBaseURL  string

	EarlyAccessBatch int
	ReconcileEvery   time.Duration
	ExportEvery      time.Duration

	LLM LLMConfig
	R2  R2Config
}

type LLMConfig struct {
	BaseURL string
	APIKey  string
	Model   string
	Timeout time.Duration
}

type R2Config struct {
	AccountID       string
	AccessKeyID     string
	AccessKeySecret string
	Bucket          string
}

// Enabled reports whether enough R2 credentials are present to upload exports.
func (r R2Config) Enabled() bool {
	return r.AccountID != "" && r.AccessKeyID != "" && r.AccessKeySecret != "" && r.Bucket != ""
}

func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

// Load reads the configuration. A missing .env file is not an error; the
// process environment is used as is.
func Load() (*Config, error) {
	_ = godotenv.Load()

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetDefault("app_env", "development")
	v.SetDefault("log_level", "info")
	v.SetDefault("http_port", 5200)
	v.SetDefault("allowed_origins", "http://localhost:3000")
	v.SetDefault("public_base_url", "https://bithrah.com")
	v.SetDefault("early_access_batch", 1)
	v.SetDefault("ledger_reconcile_interval", time.Hour)
	v.SetDefault("export_interval", 24*time.Hour)
	v.SetDefault("llm_base_url", "https://api.openai.com/v1")
	v.SetDefault("llm_model", "gpt-4o-mini")
	v.SetDefault("llm_timeout", 60*time.Second)

	cfg := &Config{
		Environment:      v.GetString("app_env"),
		LogLevel:         strings.ToLower(v.GetString("log_level")),
		Port:             v.GetInt("http_port"),
		DatabaseURL:      v.GetString("database_url"),
		AllowedOrigins:   v.GetString("allowed_origins"),
		AdminToken:       v.GetString("admin_token"),
		PublicBaseURL:    strings.TrimRight(v.GetString("public_base_url"), "/"),
		EarlyAccessBatch: v.GetInt("early_access_batch"),
		ReconcileEvery:   v.GetDuration("ledger_reconcile_interval"),
		ExportEvery:      v.GetDuration("export_interval"),
		LLM: LLMConfig{
			BaseURL: strings.TrimRight(v.GetString("llm_base_url"), "/"),
			APIKey:  v.GetString("llm_api_key"),
			Model:   v.GetString("llm_model"),
			Timeout: v.GetDuration("llm_timeout"),
		},
		R2: R2Config{
			AccountID:       v.GetString("cloudflare_account_id"),
			AccessKeyID:     v.GetString("r2_access_key_id"),
			AccessKeySecret: v.GetString("r2_access_key_secret"),
			Bucket:          v.GetString("r2_bucket_name"),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.DatabaseURL == "" {
		return errors.New("DATABASE_URL environment variable not set")
	}
	if c.AdminToken == "" {
		return errors.New("ADMIN_TOKEN environment variable not set")
	}
	if !slices.Contains(validLogLevels, c.LogLevel) {
		return fmt.Errorf("invalid log level %q", c.LogLevel)
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}
	if c.EarlyAccessBatch < 1 {
		return errors.New("EARLY_ACCESS_BATCH must be at least 1")
	}
	if c.ReconcileEvery <= 0 || c.ExportEvery <= 0 {
		return errors.New("job intervals must be positive")
	}
	return nil
}
