// Package config loads service settings from an optional YAML file with
// environment overrides.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"wavepick/internal/opt"
)

type Server struct {
	Port                string  `yaml:"port"`
	DatabaseURL         string  `yaml:"databaseUrl"`
	Migrate             bool    `yaml:"migrate"`
	RedisURL            string  `yaml:"redisUrl"`
	RateRPS             float64 `yaml:"rateRps"`
	RateBurst           int     `yaml:"rateBurst"`
	MaxWorkers          int     `yaml:"maxWorkers"`
	WebhookMaxAttempts  int     `yaml:"webhookMaxAttempts"`
	LogLevel            string  `yaml:"logLevel"`
	DefaultTimeBudgetMs int     `yaml:"defaultTimeBudgetMs"`
	MaxTimeBudgetMs     int     `yaml:"maxTimeBudgetMs"`
}

type Config struct {
	Solver opt.Config `yaml:"solver"`
	Server Server     `yaml:"server"`
}

func Default() Config {
	return Config{
		Solver: opt.DefaultConfig(),
		Server: Server{
			Port:                "8080",
			Migrate:             true,
			RateRPS:             0,
			RateBurst:           20,
			WebhookMaxAttempts:  10,
			LogLevel:            "info",
			DefaultTimeBudgetMs: 2000,
			MaxTimeBudgetMs:     300000,
		},
	}
}

// Load reads path (or WAVE_CONFIG when path is empty) over the defaults,
// then applies environment overrides. A missing path is not an error.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		path = os.Getenv("WAVE_CONFIG")
	}
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	if err := applyEnv(&cfg); err != nil {
		return cfg, err
	}
	if err := cfg.Solver.Validate(); err != nil {
		return cfg, err
	}
	if cfg.Server.MaxTimeBudgetMs > 0 && cfg.Server.DefaultTimeBudgetMs > cfg.Server.MaxTimeBudgetMs {
		return cfg, fmt.Errorf("defaultTimeBudgetMs %d exceeds maxTimeBudgetMs %d", cfg.Server.DefaultTimeBudgetMs, cfg.Server.MaxTimeBudgetMs)
	}
	return cfg, nil
}

func applyEnv(cfg *Config) error {
	s := &cfg.Server
	if v := os.Getenv("PORT"); v != "" {
		s.Port = v
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		s.DatabaseURL = v
	}
	if v := os.Getenv("DB_MIGRATE"); v != "" {
		s.Migrate = v != "false"
	}
	if v := os.Getenv("REDIS_URL"); v != "" {
		s.RedisURL = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		s.LogLevel = strings.ToLower(v)
	}
	if err := envFloat("RATE_RPS", &s.RateRPS); err != nil {
		return err
	}
	for _, e := range []struct {
		key string
		dst *int
	}{
		{"RATE_BURST", &s.RateBurst},
		{"MAX_WORKERS", &s.MaxWorkers},
		{"WEBHOOK_MAX_ATTEMPTS", &s.WebhookMaxAttempts},
		{"DEFAULT_TIME_BUDGET_MS", &s.DefaultTimeBudgetMs},
		{"MAX_TIME_BUDGET_MS", &s.MaxTimeBudgetMs},
	} {
		if err := envInt(e.key, e.dst); err != nil {
			return err
		}
	}
	return nil
}

func envInt(key string, dst *int) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = n
	return nil
}

func envFloat(key string, dst *float64) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = f
	return nil
}
