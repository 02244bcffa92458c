package install

import (
	"errors"
	"time"
)

// InstallConfig holds the paths and names used when registering the enforcer
// daemon.
type InstallConfig struct {
	// BinaryPath is the path the blockd binary is installed to.
	// Default: /usr/local/bin/blockd
	BinaryPath string

	// ConfigDir is the daemon configuration directory.
	// Default: /etc/blockd
	ConfigDir string

	// RunDir is the runtime directory holding the daemon socket.
	// Default: /var/run/blockd
	RunDir string

	// ServiceName is the systemd service name.
	// Default: blockd
	ServiceName string

	// UnitFilePath is the path for the systemd unit file.
	// Default: /etc/systemd/system/blockd.service
	UnitFilePath string

	// Label is the launchd service label.
	// Default: com.lowdata.blockd
	Label string

	// PlistPath is the path for the launchd daemon plist.
	// Default: /Library/LaunchDaemons/com.lowdata.blockd.plist
	PlistPath string

	// SocketGroup is the group granted access to the daemon socket.
	// Default: blockd
	SocketGroup string
}

// Defaults for InstallConfig fields.
const (
	DefaultBinaryPath   = "/usr/local/bin/blockd"
	DefaultConfigDir    = "/etc/blockd"
	DefaultRunDir       = "/var/run/blockd"
	DefaultServiceName  = "blockd"
	DefaultUnitFilePath = "/etc/systemd/system/blockd.service"
	DefaultLabel        = "com.lowdata.blockd"
	DefaultPlistPath    = "/Library/LaunchDaemons/com.lowdata.blockd.plist"
	DefaultSocketGroup  = "blockd"
)

// ApplyDefaults sets default values for zero-valued fields.
func (c *InstallConfig) ApplyDefaults() {
	if c.BinaryPath == "" {
		c.BinaryPath = DefaultBinaryPath
	}
	if c.ConfigDir == "" {
		c.ConfigDir = DefaultConfigDir
	}
	if c.RunDir == "" {
		c.RunDir = DefaultRunDir
	}
	if c.ServiceName == "" {
		c.ServiceName = DefaultServiceName
	}
	if c.UnitFilePath == "" {
		c.UnitFilePath = DefaultUnitFilePath
	}
	if c.Label == "" {
		c.Label = DefaultLabel
	}
	if c.PlistPath == "" {
		c.PlistPath = DefaultPlistPath
	}
	if c.SocketGroup == "" {
		c.SocketGroup = DefaultSocketGroup
	}
}

// Validate checks that required fields are set.
func (c *InstallConfig) Validate() error {
	if c.BinaryPath == "" {
		return errors.New("install: config: BinaryPath is required")
	}
	if c.ConfigDir == "" {
		return errors.New("install: config: ConfigDir is required")
	}
	if c.RunDir == "" {
		return errors.New("install: config: RunDir is required")
	}
	if c.ServiceName == "" {
		return errors.New("install: config: ServiceName is required")
	}
	if c.UnitFilePath == "" {
		return errors.New("install: config: UnitFilePath is required")
	}
	if c.Label == "" {
		return errors.New("install: config: Label is required")
	}
	if c.PlistPath == "" {
		return errors.New("install: config: PlistPath is required")
	}
	return nil
}

// DefaultPollInterval is how often the manager refreshes the installation
// status.
const DefaultPollInterval = 30 * time.Second

// Config holds the Manager settings.
type Config struct {
	// PollInterval is the fixed interval between status probes in Run.
	PollInterval time.Duration
}

// ApplyDefaults sets default values for zero-valued fields.
func (c *Config) ApplyDefaults() {
	if c.PollInterval <= 0 {
		c.PollInterval = DefaultPollInterval
	}
}
