// Package enforcer implements the privileged daemon that owns the host
// packet filter, together with the client used to reach it over its local
// socket.
package enforcer

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/lowdata/blockd/internal/pf"
)

// Defaults for the enforcer daemon configuration.
const (
	DefaultSocketPath      = "/var/run/blockd/enforcer.sock"
	DefaultRulesPath       = "/etc/blockd/pf.rules"
	DefaultConfigPath      = "/etc/blockd/config.yaml"
	DefaultSocketGroup     = "blockd"
	DefaultShutdownTimeout = 5 * time.Second
)

// Config holds the enforcer daemon configuration.
type Config struct {
	// SocketPath is the Unix socket the daemon listens on.
	SocketPath string `yaml:"socket_path"`
	// RulesPath is where the generated packet filter rules file is written.
	RulesPath string `yaml:"rules_path"`
	// Anchor is the pf anchor all directives load into.
	Anchor string `yaml:"anchor"`
	// PfctlPath overrides the pfctl binary location. Empty means PATH lookup.
	PfctlPath string `yaml:"pfctl_path"`
	// SocketGroup is the group granted access to mutating endpoints.
	SocketGroup string `yaml:"socket_group"`
	// ShutdownTimeout bounds graceful shutdown on exit. Set in code, not
	// from the config file.
	ShutdownTimeout time.Duration `yaml:"-"`
	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"log_level"`
}

// ApplyDefaults fills in default values for unset fields.
func (c *Config) ApplyDefaults() {
	if c.SocketPath == "" {
		c.SocketPath = DefaultSocketPath
	}
	if c.RulesPath == "" {
		c.RulesPath = DefaultRulesPath
	}
	if c.Anchor == "" {
		c.Anchor = pf.DefaultAnchor
	}
	if c.SocketGroup == "" {
		c.SocketGroup = DefaultSocketGroup
	}
	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = DefaultShutdownTimeout
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
}

// Validate checks the configuration for correctness.
func (c *Config) Validate() error {
	if c.SocketPath == "" {
		return fmt.Errorf("enforcer: config: socket_path is required")
	}
	if c.RulesPath == "" {
		return fmt.Errorf("enforcer: config: rules_path is required")
	}
	if c.Anchor == "" {
		return fmt.Errorf("enforcer: config: anchor is required")
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("enforcer: config: invalid log_level %q", c.LogLevel)
	}
	return nil
}

// LoadConfig reads the daemon configuration from a YAML file. A missing file
// is not an error: the daemon runs on defaults until an install writes one.
func LoadConfig(path string) (Config, error) {
	var cfg Config
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.ApplyDefaults()
			return cfg, nil
		}
		return Config{}, fmt.Errorf("enforcer: config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("enforcer: config: parse %s: %w", path, err)
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
