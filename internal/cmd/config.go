package main

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the service configuration, loaded from YAML with env
// overrides for deployment-specific values.
type Config struct {
	Snapshot struct {
		Backend          string `yaml:"backend"` // "file" or "postgres"
		Dir              string `yaml:"dir"`
		StalenessSeconds int    `yaml:"staleness_seconds"`
	} `yaml:"snapshot"`

	Fallback struct {
		Endpoint       string `yaml:"endpoint"`
		WindowSeconds  int    `yaml:"window_seconds"`
		TimeoutSeconds int    `yaml:"timeout_seconds"`
	} `yaml:"fallback"`

	Timers struct {
		WarningSeconds       int `yaml:"warning_seconds"`
		ActionTimeoutSeconds int `yaml:"action_timeout_seconds"`
	} `yaml:"timers"`

	MatchState struct {
		BaseURL        string `yaml:"base_url"`
		TimeoutSeconds int    `yaml:"timeout_seconds"`
	} `yaml:"match_state"`

	NATS struct {
		URL      string `yaml:"url"`
		Stream   string `yaml:"stream"`
		Consumer string `yaml:"consumer"`
		Subject  string `yaml:"subject"`
	} `yaml:"nats"`

	// Database is only consulted when the snapshot backend is postgres.
	Database struct {
		Host     string `yaml:"host"`
		Port     int    `yaml:"port"`
		User     string `yaml:"user"`
		Password string `yaml:"password"`
		Name     string `yaml:"name"`
		SSLMode  string `yaml:"sslmode"`
	} `yaml:"database"`
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

func loadConfig(path string) (*Config, error) {
	var config Config

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// No config file: run on defaults and env.
	} else if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	applyDefaults(&config)
	applyEnvOverrides(&config)
	return &config, nil
}

func applyDefaults(c *Config) {
	if c.Snapshot.Backend == "" {
		c.Snapshot.Backend = "file"
	}
	if c.Snapshot.Dir == "" {
		c.Snapshot.Dir = "data/snapshots"
	}
	if c.Snapshot.StalenessSeconds <= 0 {
		c.Snapshot.StalenessSeconds = 60
	}
	if c.Fallback.WindowSeconds <= 0 {
		c.Fallback.WindowSeconds = 30
	}
	if c.Fallback.TimeoutSeconds <= 0 {
		c.Fallback.TimeoutSeconds = 10
	}
	if c.Timers.WarningSeconds <= 0 {
		c.Timers.WarningSeconds = 30
	}
	if c.Timers.ActionTimeoutSeconds <= 0 {
		c.Timers.ActionTimeoutSeconds = 10
	}
	if c.MatchState.TimeoutSeconds <= 0 {
		c.MatchState.TimeoutSeconds = 10
	}
	if c.NATS.Stream == "" {
		c.NATS.Stream = "BRACKET_EVENTS"
	}
	if c.NATS.Consumer == "" {
		c.NATS.Consumer = "courtcast-display"
	}
	if c.NATS.Subject == "" {
		c.NATS.Subject = "bracket.events.>"
	}
	if c.Database.Host == "" {
		c.Database.Host = "localhost"
	}
	if c.Database.Port <= 0 {
		c.Database.Port = 5432
	}
	if c.Database.User == "" {
		c.Database.User = "postgres"
	}
	if c.Database.Password == "" {
		c.Database.Password = "postgres"
	}
	if c.Database.Name == "" {
		c.Database.Name = "courtcast"
	}
	if c.Database.SSLMode == "" {
		c.Database.SSLMode = "disable"
	}
}

func applyEnvOverrides(c *Config) {
	c.Snapshot.Backend = getEnv("SNAPSHOT_BACKEND", c.Snapshot.Backend)
	c.Snapshot.Dir = getEnv("SNAPSHOT_DIR", c.Snapshot.Dir)
	c.Snapshot.StalenessSeconds = getEnvAsInt("SNAPSHOT_STALENESS_SECONDS", c.Snapshot.StalenessSeconds)
	c.Fallback.Endpoint = getEnv("FALLBACK_ENDPOINT", c.Fallback.Endpoint)
	c.Fallback.WindowSeconds = getEnvAsInt("FALLBACK_WINDOW_SECONDS", c.Fallback.WindowSeconds)
	c.MatchState.BaseURL = getEnv("MATCH_STATE_URL", c.MatchState.BaseURL)
	c.NATS.URL = getEnv("NATS_URL", c.NATS.URL)
	c.Database.Host = getEnv("DB_HOST", c.Database.Host)
	c.Database.Port = getEnvAsInt("DB_PORT", c.Database.Port)
	c.Database.User = getEnv("DB_USER", c.Database.User)
	c.Database.Password = getEnv("DB_PASSWORD", c.Database.Password)
	c.Database.Name = getEnv("DB_NAME", c.Database.Name)
	c.Database.SSLMode = getEnv("DB_SSLMODE", c.Database.SSLMode)
}

func (c *Config) stalenessThreshold() time.Duration {
	return time.Duration(c.Snapshot.StalenessSeconds) * time.Second
}

func (c *Config) fallbackWindow() time.Duration {
	return time.Duration(c.Fallback.WindowSeconds) * time.Second
}

func (c *Config) fallbackTimeout() time.Duration {
	return time.Duration(c.Fallback.TimeoutSeconds) * time.Second
}

func (c *Config) databaseDSN() string {
	d := c.Database
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.Name, d.SSLMode,
	)
}
