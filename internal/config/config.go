// Package config loads the application YAML, the JSON strategies file, and
// broker credentials from the environment. Environment references in the
// YAML (${VAR}) are expanded before parsing; unknown YAML keys are
// rejected.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/bingolead-stack/levelbot/internal/broker"
)

// Config is the top-level application configuration.
type Config struct {
	Environment string        `yaml:"environment"`
	LogLevel    string        `yaml:"log_level"` // debug | info | warn | error
	Server      ServerConfig  `yaml:"server"`
	Broker      BrokerConfig  `yaml:"broker"`
	Storage     StorageConfig `yaml:"storage"`
	Feed        FeedConfig    `yaml:"feed"`
	// StrategiesFile points at the JSON strategies array.
	StrategiesFile string `yaml:"strategies_file"`
}

// ServerConfig configures the HTTP ingest surface.
type ServerConfig struct {
	Addr string `yaml:"addr"`
}

// BrokerConfig configures the Tradovate connection. Credentials come from
// the environment, not this file.
type BrokerConfig struct {
	APIURL string `yaml:"api_url"`
	Symbol string `yaml:"symbol"`
	Paper  bool   `yaml:"paper"`
	// TokenRefreshInterval is a duration string ("30m", "1h").
	TokenRefreshInterval string `yaml:"token_refresh_interval"`
}

// StorageConfig configures state persistence.
type StorageConfig struct {
	Path string `yaml:"path"`
}

// FeedConfig configures the optional websocket market-data source.
type FeedConfig struct {
	Enabled bool   `yaml:"enabled"`
	URL     string `yaml:"url"`
	// BarInterval is a duration string ("1m", "30s").
	BarInterval string `yaml:"bar_interval"`
}

// Load reads and validates the YAML configuration at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	expanded := os.ExpandEnv(string(data))

	var cfg Config
	dec := yaml.NewDecoder(bytes.NewReader([]byte(expanded)))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the configuration for required fields and applies
// defaults.
func (c *Config) Validate() error {
	if c.Environment == "" {
		c.Environment = "development"
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.Server.Addr == "" {
		c.Server.Addr = ":8080"
	}
	if c.StrategiesFile == "" {
		return errors.New("strategies_file is required")
	}
	if c.Storage.Path == "" {
		return errors.New("storage.path is required")
	}
	if !c.Broker.Paper {
		if c.Broker.APIURL == "" {
			return errors.New("broker.api_url is required for live trading")
		}
		if c.Broker.Symbol == "" {
			return errors.New("broker.symbol is required for live trading")
		}
	}
	if c.Broker.TokenRefreshInterval != "" {
		if _, err := time.ParseDuration(c.Broker.TokenRefreshInterval); err != nil {
			return fmt.Errorf("invalid broker.token_refresh_interval: %w", err)
		}
	}
	if c.Feed.Enabled {
		if c.Feed.URL == "" {
			return errors.New("feed.url is required when the feed is enabled")
		}
		if c.Feed.BarInterval != "" {
			if _, err := time.ParseDuration(c.Feed.BarInterval); err != nil {
				return fmt.Errorf("invalid feed.bar_interval: %w", err)
			}
		}
	}
	return nil
}

// GetTokenRefreshInterval returns the parsed refresh interval, falling back
// to the broker default.
func (c *Config) GetTokenRefreshInterval() time.Duration {
	d, err := time.ParseDuration(c.Broker.TokenRefreshInterval)
	if err != nil || d <= 0 {
		return broker.DefaultRefreshInterval
	}
	return d
}

// GetBarInterval returns the parsed feed bar width, defaulting to a minute.
func (c *Config) GetBarInterval() time.Duration {
	d, err := time.ParseDuration(c.Feed.BarInterval)
	if err != nil || d <= 0 {
		return time.Minute
	}
	return d
}

// Credentials holds broker credentials plus the default trade direction,
// all sourced from the environment.
type Credentials struct {
	Broker broker.Credentials
	// IsLongOnly is the default direction for strategies that omit
	// is_trading_long in the strategies file.
	IsLongOnly bool
}

// LoadCredentials reads broker credentials from the environment. A .env
// file in the working directory is merged in first when present; real
// environment variables win.
func LoadCredentials() (*Credentials, error) {
	// Ignore a missing .env; it is a development convenience.
	_ = godotenv.Load()

	creds := broker.Credentials{
		Username: os.Getenv("TRADOVATE_USERNAME"),
		Password: os.Getenv("TRADOVATE_PASSWORD"),
		ClientID: os.Getenv("TRADOVATE_CLIENT_ID"),
		CID:      os.Getenv("TRADOVATE_CID"),
		Secret:   os.Getenv("TRADOVATE_SECRET"),
	}

	isLong := true
	if raw := strings.TrimSpace(os.Getenv("IS_LONG_ONLY_TRADE")); raw != "" {
		parsed, err := strconv.ParseBool(raw)
		if err != nil {
			return nil, fmt.Errorf("parsing IS_LONG_ONLY_TRADE %q: %w", raw, err)
		}
		isLong = parsed
	}

	return &Credentials{Broker: creds, IsLongOnly: isLong}, nil
}

// ValidateLive checks that every credential needed for live trading is
// present. Paper mode skips this.
func (c *Credentials) ValidateLive() error {
	required := []struct {
		name  string
		value string
	}{
		{"TRADOVATE_USERNAME", c.Broker.Username},
		{"TRADOVATE_PASSWORD", c.Broker.Password},
		{"TRADOVATE_CLIENT_ID", c.Broker.ClientID},
		{"TRADOVATE_CID", c.Broker.CID},
		{"TRADOVATE_SECRET", c.Broker.Secret},
	}
	var missing []string
	for _, r := range required {
		if r.value == "" {
			missing = append(missing, r.name)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing broker credentials: %s", strings.Join(missing, ", "))
	}
	return nil
}
