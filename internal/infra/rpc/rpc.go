// Package rpc is the HTTP/JSON transport shared by every remote service client.
//
// A Client adds the concerns the service clients should not repeat:
//   - X509 client-certificate authentication
//   - request throttling per client
//   - retry with exponential backoff for transient failures
//   - call metrics
//
// # Usage
//
//	client, err := rpc.NewClient("reqmgr", rpc.Config{Timeout: time.Minute}, rpc.AuthConfig{
//	    CertFile: os.Getenv("X509_USER_PROXY"),
//	})
//	var out map[string]any
//	err = client.GetJSON(ctx, "https://cmsweb.cern.ch/reqmgr2/data/request?name=wf", &out)
package rpc

import "time"

// Config holds transport settings for one remote service.
type Config struct {
	Timeout time.Duration `yaml:"timeout"`
	// RateLimit is the sustained request rate per second. Zero disables throttling.
	RateLimit float64     `yaml:"rate_limit"`
	Burst     int         `yaml:"burst"`
	Retry     RetryConfig `yaml:"retry"`
}

// AuthConfig points at the client certificate used for every call.
// A grid proxy holds certificate and key in the same file.
type AuthConfig struct {
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
	CAFile   string `yaml:"ca_file"`
}

// RetryConfig defines retry behavior.
type RetryConfig struct {
	MaxAttempts     int           `yaml:"max_attempts"`
	InitialDelay    time.Duration `yaml:"initial_delay"`
	MaxDelay        time.Duration `yaml:"max_delay"`
	BackoffMultiple float64       `yaml:"backoff_multiple"`
}

// DefaultRetryConfig provides sensible defaults.
var DefaultRetryConfig = RetryConfig{
	MaxAttempts:     3,
	InitialDelay:    500 * time.Millisecond,
	MaxDelay:        10 * time.Second,
	BackoffMultiple: 2.0,
}

// DefaultConfig is used for zero fields of a Config.
var DefaultConfig = Config{
	Timeout:   60 * time.Second,
	RateLimit: 5,
	Burst:     5,
	Retry:     DefaultRetryConfig,
}

func (c Config) withDefaults() Config {
	if c.Timeout <= 0 {
		c.Timeout = DefaultConfig.Timeout
	}
	if c.Burst <= 0 {
		c.Burst = DefaultConfig.Burst
	}
	if c.Retry.MaxAttempts <= 0 {
		c.Retry.MaxAttempts = DefaultRetryConfig.MaxAttempts
	}
	if c.Retry.InitialDelay <= 0 {
		c.Retry.InitialDelay = DefaultRetryConfig.InitialDelay
	}
	if c.Retry.MaxDelay <= 0 {
		c.Retry.MaxDelay = DefaultRetryConfig.MaxDelay
	}
	if c.Retry.BackoffMultiple < 1 {
		c.Retry.BackoffMultiple = DefaultRetryConfig.BackoffMultiple
	}
	return c
}
