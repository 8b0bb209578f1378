// Package config loads previewer settings from defaults, an optional YAML
// file, a .env file and T2I_* environment variables, in increasing priority.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/bitop-dev/t2i/internal/crossorigin"
	"github.com/bitop-dev/t2i/internal/hfapi"
)

const EnvPrefix = "T2I"

type Config struct {
	BaseURL      string `mapstructure:"base_url"`
	ModelPageURL string `mapstructure:"model_page_url"`
	StatusURL    string `mapstructure:"status_url"`

	// Token is the default credential used when none has been persisted.
	Token string `mapstructure:"token"`

	CheckURL      string        `mapstructure:"check_url"`
	CheckInterval time.Duration `mapstructure:"check_interval"`

	MaxRetries     int           `mapstructure:"max_retries"`
	BaseDelay      time.Duration `mapstructure:"base_delay"`
	MaxDelay       time.Duration `mapstructure:"max_delay"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`

	StorePath   string `mapstructure:"store_path"`
	CatalogFile string `mapstructure:"catalog_file"`

	// Origin is where the previewer is served from; it selects the
	// environment hint.
	Origin string `mapstructure:"origin"`

	LogLevel    string `mapstructure:"log_level"`
	LogFormat   string `mapstructure:"log_format"`
	MetricsAddr string `mapstructure:"metrics_addr"`
}

func Default() Config {
	return Config{
		BaseURL:        hfapi.DefaultBaseURL,
		ModelPageURL:   hfapi.DefaultModelPageURL,
		StatusURL:      hfapi.DefaultStatusURL,
		CheckURL:       crossorigin.DefaultCheckURL,
		CheckInterval:  crossorigin.DefaultInterval,
		MaxRetries:     3,
		BaseDelay:      time.Second,
		MaxDelay:       30 * time.Second,
		RequestTimeout: 120 * time.Second,
		LogLevel:       "info",
		LogFormat:      "console",
	}
}

// Load reads path (may be empty) and the environment. A .env file in the
// working directory is loaded first if present; it never overrides variables
// already set.
func Load(path string) (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("config: .env: %w", err)
	}

	v := viper.New()
	def := Default()
	v.SetDefault("base_url", def.BaseURL)
	v.SetDefault("model_page_url", def.ModelPageURL)
	v.SetDefault("status_url", def.StatusURL)
	v.SetDefault("token", "")
	v.SetDefault("check_url", def.CheckURL)
	v.SetDefault("check_interval", def.CheckInterval)
	v.SetDefault("max_retries", def.MaxRetries)
	v.SetDefault("base_delay", def.BaseDelay)
	v.SetDefault("max_delay", def.MaxDelay)
	v.SetDefault("request_timeout", def.RequestTimeout)
	v.SetDefault("store_path", "")
	v.SetDefault("catalog_file", "")
	v.SetDefault("origin", "")
	v.SetDefault("log_level", def.LogLevel)
	v.SetDefault("log_format", def.LogFormat)
	v.SetDefault("metrics_addr", "")

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	// HF_TOKEN is the name the hub tooling uses.
	if err := v.BindEnv("token", EnvPrefix+"_TOKEN", "HF_TOKEN"); err != nil {
		return Config{}, fmt.Errorf("config: %w", err)
	}

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("config: read %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("config: unmarshal: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	switch {
	case c.BaseURL == "":
		return errors.New("config: base_url is empty")
	case c.MaxRetries < 0:
		return fmt.Errorf("config: max_retries must be >= 0, got %d", c.MaxRetries)
	case c.BaseDelay < 0 || c.MaxDelay < 0:
		return errors.New("config: retry delays must not be negative")
	case c.CheckInterval <= 0:
		return fmt.Errorf("config: check_interval must be positive, got %s", c.CheckInterval)
	case c.RequestTimeout <= 0:
		return fmt.Errorf("config: request_timeout must be positive, got %s", c.RequestTimeout)
	}
	switch strings.ToLower(c.LogFormat) {
	case "console", "json":
	default:
		return fmt.Errorf("config: log_format must be console or json, got %q", c.LogFormat)
	}
	return nil
}
