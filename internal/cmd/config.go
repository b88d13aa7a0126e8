package main

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the optional YAML config file. Everything in it has a default;
// env vars override the file for the connection-level settings.
type Config struct {
	Server struct {
		Port      string `yaml:"port"`
		PublicURL string `yaml:"public_url"`
	} `yaml:"server"`

	Store struct {
		// Backend is "memory" or "postgres".
		Backend string `yaml:"backend"`
	} `yaml:"store"`

	NATS struct {
		URL string `yaml:"url"`
	} `yaml:"nats"`

	Scheduler struct {
		Workers int `yaml:"workers"`
	} `yaml:"scheduler"`

	Janitor struct {
		Interval           time.Duration `yaml:"interval"`
		CompletedRetention time.Duration `yaml:"completed_retention"`
		UnverifiedGrace    time.Duration `yaml:"unverified_grace"`
		LobbyTTL           time.Duration `yaml:"lobby_ttl"`
	} `yaml:"janitor"`
}

func defaultConfig() *Config {
	cfg := &Config{}
	cfg.Server.Port = "8080"
	cfg.Server.PublicURL = "http://localhost:8080"
	cfg.Store.Backend = "memory"
	cfg.NATS.URL = "nats://localhost:4222"
	cfg.Scheduler.Workers = 8
	return cfg
}

func loadConfig(path string) (*Config, error) {
	cfg := defaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	// Env vars win over the file.
	cfg.Server.Port = getEnv("PORT", cfg.Server.Port)
	cfg.Server.PublicURL = getEnv("PUBLIC_URL", cfg.Server.PublicURL)
	cfg.Store.Backend = getEnv("STORE_BACKEND", cfg.Store.Backend)
	cfg.NATS.URL = getEnv("NATS_URL", cfg.NATS.URL)
	cfg.Scheduler.Workers = getEnvAsInt("SCHEDULER_WORKERS", cfg.Scheduler.Workers)

	if cfg.Store.Backend != "memory" && cfg.Store.Backend != "postgres" {
		return nil, fmt.Errorf("unknown store backend %q", cfg.Store.Backend)
	}
	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}
