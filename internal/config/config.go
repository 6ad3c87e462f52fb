package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"

	"github.com/quantfold/backtestd/internal/core"
)

type Config struct {
	Server     Server                    `mapstructure:"server"`
	History    History                   `mapstructure:"history"`
	Backtest   Backtest                  `mapstructure:"backtest"`
	Archive    Archive                   `mapstructure:"archive"`
	Strategies map[string]StrategyConfig `mapstructure:"strategies"`
	LLM        LLM                       `mapstructure:"llm"`
	Metrics    Metrics                   `mapstructure:"metrics"`
}

type Server struct {
	Host   string `mapstructure:"host"`
	Port   int    `mapstructure:"port"`
	APIKey string `mapstructure:"api_key"`
}

// History selects and configures the market data provider.
type History struct {
	Provider  string `mapstructure:"provider"`   // "yahoo" or "alpaca"
	CachePath string `mapstructure:"cache_path"` // sqlite bar cache, empty disables
	Alpaca    Alpaca `mapstructure:"alpaca"`
}

type Alpaca struct {
	APIKey    string `mapstructure:"api_key"`
	APISecret string `mapstructure:"api_secret"`
	Feed      string `mapstructure:"feed"`
}

type Backtest struct {
	MaxRuns         int     `mapstructure:"max_runs"`
	DefaultStrategy string  `mapstructure:"default_strategy"`
	Commission      float64 `mapstructure:"commission"`
	Slippage        float64 `mapstructure:"slippage"`
}

type Archive struct {
	Enabled bool   `mapstructure:"enabled"`
	Type    string `mapstructure:"type"` // "localfs" or "s3"
	Path    string `mapstructure:"path"` // for localfs
	S3      S3     `mapstructure:"s3"`
}

type S3 struct {
	Bucket    string `mapstructure:"bucket"`
	Endpoint  string `mapstructure:"endpoint"`
	Region    string `mapstructure:"region"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	Prefix    string `mapstructure:"prefix"`
}

type StrategyConfig struct {
	Enabled bool           `mapstructure:"enabled"`
	Params  map[string]any `mapstructure:"params"`
}

type LLM struct {
	Provider string `mapstructure:"provider"`
	Claude   Claude `mapstructure:"claude"`
	OpenAI   OpenAI `mapstructure:"openai"`
}

type Claude struct {
	APIKey string `mapstructure:"api_key"`
	Model  string `mapstructure:"model"`
}

type OpenAI struct {
	APIKey string `mapstructure:"api_key"`
	Model  string `mapstructure:"model"`
}

type Metrics struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

// Load reads configuration from file.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)

	// Support environment variable overrides
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	// Expand ${VAR} references in string values
	for _, key := range v.AllKeys() {
		val := v.GetString(key)
		if strings.HasPrefix(val, "${") && strings.HasSuffix(val, "}") {
			envKey := strings.TrimSuffix(strings.TrimPrefix(val, "${"), "}")
			v.Set(key, os.Getenv(envKey))
		}
	}

	cfg := Defaults()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	return cfg, nil
}

// Defaults returns a config with sensible defaults.
func Defaults() *Config {
	return &Config{
		Server: Server{
			Host: "0.0.0.0",
			Port: 8080,
		},
		History: History{
			Provider: "yahoo",
		},
		Backtest: Backtest{
			MaxRuns:         100,
			DefaultStrategy: "momentum",
			Commission:      0.001,
			Slippage:        0.0005,
		},
		Archive: Archive{
			Type: "localfs",
			Path: "data/archive",
		},
		Metrics: Metrics{
			Enabled: true,
			Path:    "/metrics",
		},
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("port must be between 1 and 65535, got %d", c.Server.Port))
	}

	switch c.History.Provider {
	case "yahoo":
	case "alpaca":
		if c.History.Alpaca.APIKey == "" || c.History.Alpaca.APISecret == "" {
			return core.WrapError(core.ErrConfigMissing,
				fmt.Errorf("alpaca api_key and api_secret required when provider is alpaca"))
		}
	default:
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("unknown history provider %q", c.History.Provider))
	}

	if c.Backtest.MaxRuns < 1 {
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("max_runs must be positive, got %d", c.Backtest.MaxRuns))
	}
	if c.Backtest.Commission < 0 || c.Backtest.Commission >= 1 {
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("commission must be in [0, 1), got %f", c.Backtest.Commission))
	}
	if c.Backtest.Slippage < 0 || c.Backtest.Slippage >= 1 {
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("slippage must be in [0, 1), got %f", c.Backtest.Slippage))
	}

	if c.Archive.Enabled {
		switch c.Archive.Type {
		case "localfs":
			if c.Archive.Path == "" {
				return core.WrapError(core.ErrConfigMissing,
					fmt.Errorf("archive path required for localfs"))
			}
		case "s3":
			if c.Archive.S3.Bucket == "" {
				return core.WrapError(core.ErrConfigMissing,
					fmt.Errorf("s3 bucket required when archive type is s3"))
			}
		default:
			return core.WrapError(core.ErrConfigInvalid,
				fmt.Errorf("unknown archive type %q", c.Archive.Type))
		}
	}

	if c.LLM.Provider != "" {
		switch c.LLM.Provider {
		case "claude":
			if c.LLM.Claude.APIKey == "" {
				return core.WrapError(core.ErrConfigMissing,
					fmt.Errorf("claude api_key required when provider is claude"))
			}
		case "openai":
			if c.LLM.OpenAI.APIKey == "" {
				return core.WrapError(core.ErrConfigMissing,
					fmt.Errorf("openai api_key required when provider is openai"))
			}
		default:
			return core.WrapError(core.ErrConfigInvalid,
				fmt.Errorf("unknown llm provider %q", c.LLM.Provider))
		}
	}

	return nil
}
