// Package config resolves runtime settings from defaults, an optional config
// file, CHOREWHEEL_* environment variables and bound command-line flags.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Port          string        `mapstructure:"port"`
	DBPath        string        `mapstructure:"db_path"`
	LogLevel      string        `mapstructure:"log_level"`
	LogFormat     string        `mapstructure:"log_format"`
	SweepInterval time.Duration `mapstructure:"sweep_interval"`
	CatalogPath   string        `mapstructure:"catalog_path"`
}

// New returns a viper instance with defaults and environment lookup set up.
// Callers bind flags to it before calling Load.
func New() *viper.Viper {
	v := viper.New()
	v.SetDefault("port", "8080")
	v.SetDefault("db_path", "chorewheel.db")
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "text")
	v.SetDefault("sweep_interval", 5*time.Minute)
	v.SetDefault("catalog_path", "")

	v.SetEnvPrefix("chorewheel")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads file when non-empty, then unmarshals v.
func Load(v *viper.Viper, file string) (*Config, error) {
	if file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if cfg.SweepInterval <= 0 {
		return nil, fmt.Errorf("sweep_interval must be positive, got %s", cfg.SweepInterval)
	}
	switch cfg.LogFormat {
	case "text", "json":
	default:
		return nil, fmt.Errorf("log_format must be text or json, got %q", cfg.LogFormat)
	}
	return &cfg, nil
}

func (c *Config) Addr() string {
	return ":" + c.Port
}
