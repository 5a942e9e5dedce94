// Package config provides YAML configuration loading for the engine binaries.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the engine configuration shared by the worker and API binaries.
type Config struct {
	LogLevel    string `yaml:"log_level"`
	DatabaseURL string `yaml:"database_url"`

	Queue  QueueConfig  `yaml:"queue"`
	Worker WorkerConfig `yaml:"worker"`
	API    APIConfig    `yaml:"api"`
}

// QueueConfig selects and configures the action-job queue backend.
type QueueConfig struct {
	// Provider is one of gochannel, kafka, redis.
	Provider string   `yaml:"provider"`
	Topic    string   `yaml:"topic"`
	Brokers  []string `yaml:"brokers"`
	RedisURL string   `yaml:"redis_url"`
}

type WorkerConfig struct {
	Count                int           `yaml:"count"`
	ActionTimeout        time.Duration `yaml:"action_timeout"`
	RetryMaxAttempts     int           `yaml:"retry_max_attempts"`
	RetryInitialDelay    time.Duration `yaml:"retry_initial_delay"`
	RetryMaxDelay        time.Duration `yaml:"retry_max_delay"`
	RetryDelayMultiplier float64       `yaml:"retry_delay_multiplier"`
}

type APIConfig struct {
	Port int `yaml:"port"`
}

// Default returns the configuration used when no file is present.
func Default() Config {
	return Config{
		LogLevel:    "info",
		DatabaseURL: "file://./data",
		Queue: QueueConfig{
			Provider: "gochannel",
			Topic:    "storeflow.action.jobs",
		},
		Worker: WorkerConfig{
			Count:                4,
			ActionTimeout:        30 * time.Second,
			RetryMaxAttempts:     3,
			RetryInitialDelay:    1 * time.Second,
			RetryMaxDelay:        30 * time.Second,
			RetryDelayMultiplier: 2.0,
		},
		API: APIConfig{
			Port: 9091,
		},
	}
}

// Load reads the configuration from a YAML file, filling unset fields with
// defaults.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	config := Default()

	err = yaml.Unmarshal(data, &config)
	if err != nil {
		return Config{}, fmt.Errorf("failed to parse YAML config: %w", err)
	}

	config.applyDefaults()

	return config, nil
}

// LoadOrDefault attempts to load configuration from path, falling back to
// defaults when the file doesn't exist.
func LoadOrDefault(path string) Config {
	config, err := Load(path)
	if err != nil {
		return Default()
	}

	return config
}

func (c *Config) applyDefaults() {
	defaults := Default()

	if c.LogLevel == "" {
		c.LogLevel = defaults.LogLevel
	}

	if c.DatabaseURL == "" {
		c.DatabaseURL = defaults.DatabaseURL
	}

	if c.Queue.Provider == "" {
		c.Queue.Provider = defaults.Queue.Provider
	}

	if c.Queue.Topic == "" {
		c.Queue.Topic = defaults.Queue.Topic
	}

	if c.Worker.Count <= 0 {
		c.Worker.Count = defaults.Worker.Count
	}

	if c.Worker.ActionTimeout <= 0 {
		c.Worker.ActionTimeout = defaults.Worker.ActionTimeout
	}

	if c.Worker.RetryMaxAttempts <= 0 {
		c.Worker.RetryMaxAttempts = defaults.Worker.RetryMaxAttempts
	}

	if c.Worker.RetryInitialDelay <= 0 {
		c.Worker.RetryInitialDelay = defaults.Worker.RetryInitialDelay
	}

	if c.Worker.RetryMaxDelay <= 0 {
		c.Worker.RetryMaxDelay = defaults.Worker.RetryMaxDelay
	}

	if c.Worker.RetryDelayMultiplier <= 0 {
		c.Worker.RetryDelayMultiplier = defaults.Worker.RetryDelayMultiplier
	}

	if c.API.Port <= 0 {
		c.API.Port = defaults.API.Port
	}
}

// Validate checks configuration combinations that cannot work.
func (c *Config) Validate() error {
	switch c.Queue.Provider {
	case "gochannel", "kafka":
	case "redis":
		if c.Queue.RedisURL == "" {
			return fmt.Errorf("queue provider %q requires redis_url", c.Queue.Provider)
		}
	default:
		return fmt.Errorf("unsupported queue provider: %s", c.Queue.Provider)
	}

	return nil
}
