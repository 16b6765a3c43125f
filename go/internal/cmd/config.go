package main

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the service configuration: a yaml file with env-var
// overrides for the deployment-specific values.
type Config struct {
	Server struct {
		Port string `yaml:"port"`
	} `yaml:"server"`

	Session struct {
		MaxSessions        int `yaml:"max_sessions"`
		IdleTTLMinutes     int `yaml:"idle_ttl_minutes"`
		SweepMinutes       int `yaml:"sweep_minutes"`
		SnapshotTTLMinutes int `yaml:"snapshot_ttl_minutes"`
	} `yaml:"session"`

	Countdown struct {
		MinSeconds int `yaml:"min_seconds"`
		MaxSeconds int `yaml:"max_seconds"`
	} `yaml:"countdown"`

	Token struct {
		TTLHours     int `yaml:"ttl_hours"`
		SweepMinutes int `yaml:"sweep_minutes"`
	} `yaml:"token"`

	NATS struct {
		Enabled bool   `yaml:"enabled"`
		URL     string `yaml:"url"`
		Bucket  string `yaml:"bucket"`
	} `yaml:"nats"`

	Postgres struct {
		Enabled bool   `yaml:"enabled"`
		DSN     string `yaml:"dsn"`
	} `yaml:"postgres"`

	Jira struct {
		Enabled bool `yaml:"enabled"`
	} `yaml:"jira"`
}

func defaultConfig() *Config {
	var config Config
	config.Server.Port = "8080"
	config.Session.MaxSessions = 500
	config.Session.IdleTTLMinutes = 120
	config.Session.SweepMinutes = 5
	config.Session.SnapshotTTLMinutes = 24 * 60
	config.Countdown.MinSeconds = 10
	config.Countdown.MaxSeconds = 300
	config.Token.TTLHours = 24
	config.Token.SweepMinutes = 30
	config.NATS.URL = "nats://localhost:4222"
	config.NATS.Bucket = "SESSION_SNAPSHOTS"
	config.Jira.Enabled = true
	return &config
}

func loadConfig(path string) (*Config, error) {
	config := defaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	config.Server.Port = getEnv("PORT", config.Server.Port)
	config.NATS.URL = getEnv("NATS_URL", config.NATS.URL)
	if os.Getenv("NATS_URL") != "" {
		config.NATS.Enabled = true
	}
	config.Postgres.DSN = getEnv("POSTGRES_DSN", config.Postgres.DSN)
	if os.Getenv("POSTGRES_DSN") != "" {
		config.Postgres.Enabled = true
	}
	config.Session.MaxSessions = getEnvAsInt("MAX_SESSIONS", config.Session.MaxSessions)
	config.Session.IdleTTLMinutes = getEnvAsInt("SESSION_IDLE_TTL_MINUTES", config.Session.IdleTTLMinutes)
	config.Token.TTLHours = getEnvAsInt("TOKEN_TTL_HOURS", config.Token.TTLHours)

	return config, nil
}

func (c *Config) idleTTL() time.Duration {
	return time.Duration(c.Session.IdleTTLMinutes) * time.Minute
}

func (c *Config) sweepInterval() time.Duration {
	return time.Duration(c.Session.SweepMinutes) * time.Minute
}

func (c *Config) snapshotTTL() time.Duration {
	return time.Duration(c.Session.SnapshotTTLMinutes) * time.Minute
}

func (c *Config) tokenTTL() time.Duration {
	return time.Duration(c.Token.TTLHours) * time.Hour
}

func (c *Config) tokenSweepInterval() time.Duration {
	return time.Duration(c.Token.SweepMinutes) * time.Minute
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
