// Package config provides configuration management for CloudSpy
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Providers ProvidersConfig `yaml:"providers"`
	AWS       AWSConfig       `yaml:"aws"`
	Log       LogConfig       `yaml:"log"`
	Anomaly   AnomalyConfig   `yaml:"anomaly"`
}

// ServerConfig configures the HTTP listener
type ServerConfig struct {
	Addr           string        `yaml:"addr"`
	AllowedOrigins []string      `yaml:"allowed_origins"`
	ReadTimeout    time.Duration `yaml:"read_timeout"`
	WriteTimeout   time.Duration `yaml:"write_timeout"`
}

// ProvidersConfig bounds upstream billing calls
type ProvidersConfig struct {
	CallTimeout time.Duration `yaml:"call_timeout"`
}

// AWSConfig holds AWS-specific configuration
type AWSConfig struct {
	Region          string `yaml:"region"`
	RoleSessionName string `yaml:"role_session_name"`
}

// LogConfig configures the zap logger
type LogConfig struct {
	Level       string `yaml:"level"`
	Development bool   `yaml:"development"`
}

// AnomalyConfig configures anomaly detection
type AnomalyConfig struct {
	Sensitivity string   `yaml:"sensitivity"` // low, medium, high
	RecentDays  int      `yaml:"recent_days"`
	MinSpend    *float64 `yaml:"min_spend"` // nil means 1; 0 checks every service
}

// Default returns a configuration with every default applied.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// Load loads configuration from a YAML file. A .env file in the working
// directory is loaded first so its variables can be expanded. An empty path
// yields the defaults.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	if path == "" {
		return Default(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// Expand environment variables
	data = []byte(os.ExpandEnv(string(data)))

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Server.Addr == "" {
		c.Server.Addr = ":9090"
	}
	if len(c.Server.AllowedOrigins) == 0 {
		c.Server.AllowedOrigins = []string{"http://localhost:3000", "http://frontend:3000"}
	}
	if c.Server.ReadTimeout == 0 {
		c.Server.ReadTimeout = 30 * time.Second
	}
	if c.Server.WriteTimeout == 0 {
		c.Server.WriteTimeout = 90 * time.Second
	}
	if c.Providers.CallTimeout == 0 {
		c.Providers.CallTimeout = 60 * time.Second
	}
	if c.AWS.Region == "" {
		c.AWS.Region = "us-east-1"
	}
	if c.AWS.RoleSessionName == "" {
		c.AWS.RoleSessionName = "CloudSpyCostSession"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Anomaly.Sensitivity == "" {
		c.Anomaly.Sensitivity = "medium"
	}
	if c.Anomaly.RecentDays == 0 {
		c.Anomaly.RecentDays = 7
	}
	if c.Anomaly.MinSpend == nil {
		minSpend := 1.0
		c.Anomaly.MinSpend = &minSpend
	}
}

func (c *Config) validate() error {
	switch c.Anomaly.Sensitivity {
	case "low", "medium", "high":
	default:
		return fmt.Errorf("invalid anomaly.sensitivity %q: must be low, medium or high", c.Anomaly.Sensitivity)
	}
	if c.Anomaly.MinSpend != nil && *c.Anomaly.MinSpend < 0 {
		return fmt.Errorf("invalid anomaly.min_spend %v: must not be negative", *c.Anomaly.MinSpend)
	}
	return nil
}
