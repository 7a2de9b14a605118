package config

import (
	redisclient "github.com/vietddude/autoacdc/internal/infra/redis"
	"github.com/vietddude/autoacdc/internal/infra/reqmgr"
	"github.com/vietddude/autoacdc/internal/infra/rpc"
	"github.com/vietddude/autoacdc/internal/infra/sitedb"
	"github.com/vietddude/autoacdc/internal/infra/storage/postgres"
)

// AppConfig represents the top-level configuration.
type AppConfig struct {
	ReqMgr   reqmgr.Config      `yaml:"reqmgr"`
	ACDC     reqmgr.ACDCConfig  `yaml:"acdc"`
	Sites    sitedb.Config      `yaml:"sites"`
	Auth     rpc.AuthConfig     `yaml:"auth"`
	Redis    redisclient.Config `yaml:"redis"`
	Database postgres.Config    `yaml:"database"`
	Logging  LoggingConfig      `yaml:"logging"`
	Metrics  MetricsConfig      `yaml:"metrics"`
	Defaults DefaultsConfig     `yaml:"defaults"`

	// Exceptions maps a descriptor key to the substring that marks a workflow
	// for exception handling.
	Exceptions map[string]string `yaml:"exceptions"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, text
}

// MetricsConfig holds the node exporter textfile path. Empty disables the export.
type MetricsConfig struct {
	Textfile string `yaml:"textfile"`
}

// DefaultsConfig holds option values used when a command leaves them unset.
// Empty values leave the choice to the recovery workflow itself.
type DefaultsConfig struct {
	Team     string `yaml:"team"`
	Activity string `yaml:"activity"`
}
