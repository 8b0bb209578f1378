package hfapi

import (
	"net/http"
	"strings"
)

const ProviderName = "huggingface"

const (
	DefaultBaseURL      = "https://api-inference.huggingface.co"
	DefaultModelPageURL = "https://huggingface.co"
	DefaultStatusURL    = "https://status.huggingface.co/"
	BrowseModelsURL     = "https://huggingface.co/models?pipeline_tag=text-to-image&sort=downloads"

	defaultMaxBodyBytes = 32 << 20
)

type Config struct {
	BaseURL      string
	ModelPageURL string
	Headers      map[string]string
	HTTPClient   *http.Client

	// MaxBodyBytes bounds how much of a response body is read.
	MaxBodyBytes int64
}

func normalizeConfig(cfg Config) Config {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.ModelPageURL == "" {
		cfg.ModelPageURL = DefaultModelPageURL
	}
	cfg.ModelPageURL = strings.TrimRight(cfg.ModelPageURL, "/")
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = http.DefaultClient
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = defaultMaxBodyBytes
	}
	return cfg
}
