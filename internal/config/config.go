// internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"gainslog/internal/models"
	"gainslog/internal/reconcile"
	"gainslog/internal/storage"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "GAINSLOG_"

// Config is the complete gainslog configuration.
type Config struct {
	Server     ServerConfig        `yaml:"server"`
	Storage    StorageConfig       `yaml:"storage"`
	Estimation EstimationConfig    `yaml:"estimation"`
	Policy     PolicyConfig        `yaml:"policy"`
	Targets    models.DailyTargets `yaml:"targets"`
	Log        LogConfig           `yaml:"log"`
}

type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// StorageConfig selects the persistence backend.
type StorageConfig struct {
	// Driver is "sqlite" or "postgres".
	Driver string `yaml:"driver"`
	// DSN is a file path for sqlite and a connection string for postgres.
	DSN string `yaml:"dsn"`
}

// EstimationConfig locates the nutrition estimation service.
type EstimationConfig struct {
	BaseURL   string        `yaml:"base_url"`
	APIKey    string        `yaml:"api_key"`
	TextPath  string        `yaml:"text_path"`
	ImagePath string        `yaml:"image_path"`
	Timeout   time.Duration `yaml:"timeout"`
}

type PolicyConfig struct {
	// LowConfidenceThreshold is the confidence below which an incomplete
	// edit is re-estimated.
	LowConfidenceThreshold int `yaml:"low_confidence_threshold"`
}

type LogConfig struct {
	// Level is debug, info, warn or error.
	Level string `yaml:"level"`
	// Format is text or json.
	Format string `yaml:"format"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: 8011,
		},
		Storage: StorageConfig{
			Driver: storage.DriverSQLite,
			DSN:    "gainslog.db",
		},
		Estimation: EstimationConfig{
			BaseURL:   "http://localhost:8080",
			TextPath:  "/estimate/text",
			ImagePath: "/estimate/image",
			Timeout:   60 * time.Second,
		},
		Policy: PolicyConfig{
			LowConfidenceThreshold: reconcile.DefaultLowConfidenceThreshold,
		},
		Targets: models.DailyTargets{
			Calories: 2000,
			Protein:  150,
			Carbs:    200,
			Fat:      70,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535")
	}
	switch c.Storage.Driver {
	case storage.DriverSQLite, storage.DriverPostgres:
	default:
		return fmt.Errorf("storage.driver must be %q or %q", storage.DriverSQLite, storage.DriverPostgres)
	}
	if c.Storage.DSN == "" {
		return fmt.Errorf("storage.dsn is required")
	}
	if c.Estimation.BaseURL == "" {
		return fmt.Errorf("estimation.base_url is required")
	}
	if c.Estimation.Timeout <= 0 {
		return fmt.Errorf("estimation.timeout must be positive")
	}
	if t := c.Policy.LowConfidenceThreshold; t < 0 || t > 100 {
		return fmt.Errorf("policy.low_confidence_threshold must be between 0 and 100")
	}
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level must be one of debug, info, warn, error")
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("log.format must be text or json")
	}
	return nil
}

// LoadFromFile loads configuration from a YAML file on top of the defaults.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultConfig()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return config, nil
}

// Load builds the configuration: defaults, then the YAML file at path (if
// path is not empty), then GAINSLOG_* environment variables. A .env file in
// the working directory is loaded first when present.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	config := DefaultConfig()
	if path != "" {
		var err error
		if config, err = LoadFromFile(path); err != nil {
			return nil, err
		}
	}

	if err := config.ApplyEnv(os.Getenv); err != nil {
		return nil, err
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return config, nil
}

// ApplyEnv overrides fields from environment variables looked up with getenv.
func (c *Config) ApplyEnv(getenv func(string) string) error {
	str := func(name string, dst *string) {
		if v := getenv(EnvPrefix + name); v != "" {
			*dst = v
		}
	}
	str("HOST", &c.Server.Host)
	str("STORAGE_DRIVER", &c.Storage.Driver)
	str("DSN", &c.Storage.DSN)
	str("ESTIMATION_URL", &c.Estimation.BaseURL)
	str("ESTIMATION_API_KEY", &c.Estimation.APIKey)
	str("LOG_LEVEL", &c.Log.Level)
	str("LOG_FORMAT", &c.Log.Format)

	if v := getenv(EnvPrefix + "PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid %sPORT: %w", EnvPrefix, err)
		}
		c.Server.Port = port
	}
	if v := getenv(EnvPrefix + "ESTIMATION_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid %sESTIMATION_TIMEOUT: %w", EnvPrefix, err)
		}
		c.Estimation.Timeout = d
	}
	if v := getenv(EnvPrefix + "LOW_CONFIDENCE_THRESHOLD"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid %sLOW_CONFIDENCE_THRESHOLD: %w", EnvPrefix, err)
		}
		c.Policy.LowConfidenceThreshold = n
	}
	return nil
}

// Addr is the server listen address.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}
