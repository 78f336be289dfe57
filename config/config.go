// config/config.go

// Package config loads configuration for the example programs. The SDK
// itself is configured through constructors; this is only for the
// binaries under cmd/.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/viper"

	"github.com/yodablocks/grvt-sdk/auth"
)

// MakerConfig tunes the market maker example.
type MakerConfig struct {
	Spread      string        `mapstructure:"spread"`       // full spread in quote currency
	QuoteSize   string        `mapstructure:"quote_size"`   // size per side
	MaxPosition string        `mapstructure:"max_position"` // net position limit
	QuoteTTL    time.Duration `mapstructure:"quote_ttl"`    // order expiry
}

// LatencyConfig tunes the latency benchmark.
type LatencyConfig struct {
	Samples    int    `mapstructure:"samples"`
	LimitPrice string `mapstructure:"limit_price"`
}

// Config is the full configuration for the example programs. Values come
// from a YAML file and GRVT_* environment variables; env wins.
type Config struct {
	APIKey            string        `mapstructure:"api_key"`
	PrivateKey        string        `mapstructure:"private_key"`
	SubAccountID      int64         `mapstructure:"sub_account_id"`
	Environment       string        `mapstructure:"environment"`
	Instrument        string        `mapstructure:"instrument"`
	InstrumentHash    string        `mapstructure:"instrument_hash"`
	VerifyingContract string        `mapstructure:"verifying_contract"`
	LogLevel          string        `mapstructure:"log_level"`
	Maker             MakerConfig   `mapstructure:"maker"`
	Latency           LatencyConfig `mapstructure:"latency"`
}

// Load reads path (YAML) and applies GRVT_* environment overrides. A
// missing file is not an error: a fully env-driven setup is valid.
func Load(path string) (*Config, error) {
	v := viper.New()

	// Every key needs a default so the env override is visible to
	// Unmarshal even without a config file.
	v.SetDefault("api_key", "")
	v.SetDefault("private_key", "")
	v.SetDefault("sub_account_id", 0)
	v.SetDefault("environment", "testnet")
	v.SetDefault("instrument", "BTC_USDT_Perp")
	v.SetDefault("instrument_hash", "")
	v.SetDefault("verifying_contract", "0x0000000000000000000000000000000000000000")
	v.SetDefault("log_level", "info")
	v.SetDefault("maker.spread", "10.0")
	v.SetDefault("maker.quote_size", "0.001")
	v.SetDefault("maker.max_position", "0.01")
	v.SetDefault("maker.quote_ttl", "30s")
	v.SetDefault("latency.samples", 20)
	v.SetDefault("latency.limit_price", "1.0")

	v.SetEnvPrefix("GRVT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			if !errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("read config %s: %w", path, err)
			}
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return cfg, nil
}

// Env parses the configured environment name.
func (c *Config) Env() (auth.Environment, error) {
	return auth.ParseEnvironment(c.Environment)
}

// ZerologLevel parses the configured log level, defaulting to info.
func (c *Config) ZerologLevel() zerolog.Level {
	lvl, err := zerolog.ParseLevel(c.LogLevel)
	if err != nil || lvl == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return lvl
}

// ValidateTrading checks the fields every trading binary needs.
func (c *Config) ValidateTrading() error {
	if c.APIKey == "" {
		return errors.New("api_key is required")
	}
	if c.PrivateKey == "" {
		return errors.New("private_key is required")
	}
	if c.SubAccountID <= 0 {
		return errors.New("sub_account_id must be positive")
	}
	if c.InstrumentHash == "" {
		return errors.New("instrument_hash is required")
	}
	if _, err := c.Env(); err != nil {
		return err
	}
	return nil
}
