package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v2"
)

const (
	defaultReqMgrURL    = "https://cmsweb.cern.ch"
	defaultTestbedURL   = "https://cmsweb-testbed.cern.ch"
	defaultACDCURL      = "https://cmsweb.cern.ch/couchdb"
	defaultACDCDatabase = "acdcserver"
	defaultSiteCacheTTL = 10 * time.Minute
)

// Load reads configuration from a YAML file.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg AppConfig
	// Expand environment variables in the YAML content
	expandedData := os.ExpandEnv(string(data))
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	applyDefaults(&cfg)
	return &cfg, nil
}

// Default returns the configuration used when no file is given.
func Default() *AppConfig {
	var cfg AppConfig
	applyDefaults(&cfg)
	return &cfg
}

func applyDefaults(cfg *AppConfig) {
	if cfg.ReqMgr.URL == "" {
		cfg.ReqMgr.URL = defaultReqMgrURL
	}
	if cfg.ReqMgr.TestbedURL == "" {
		cfg.ReqMgr.TestbedURL = defaultTestbedURL
	}
	if cfg.ACDC.URL == "" {
		cfg.ACDC.URL = defaultACDCURL
	}
	if cfg.ACDC.Database == "" {
		cfg.ACDC.Database = defaultACDCDatabase
	}
	if cfg.Sites.CacheTTL == 0 {
		cfg.Sites.CacheTTL = defaultSiteCacheTTL
	}

	// A grid proxy carries both certificate and key.
	if cfg.Auth.CertFile == "" {
		cfg.Auth.CertFile = os.Getenv("X509_USER_PROXY")
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
}
