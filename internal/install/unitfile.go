package install

import (
	"fmt"
	"path/filepath"
)

// GenerateUnitFile produces a complete systemd unit file for the enforcer
// daemon. It calls cfg.ApplyDefaults() to fill in zero-valued fields before
// generating the output.
func GenerateUnitFile(cfg InstallConfig) string {
	cfg.ApplyDefaults()

	configPath := filepath.Join(cfg.ConfigDir, "config.yaml")

	return fmt.Sprintf(`[Unit]
Description=blockd network rule enforcer
After=network-online.target
Wants=network-online.target
StartLimitBurst=5
StartLimitIntervalSec=60

[Service]
Type=simple
ExecStart=%s enforcer --config %s
Restart=always
RestartSec=5s
LimitNOFILE=65536
AmbientCapabilities=CAP_NET_ADMIN
CapabilityBoundingSet=CAP_NET_ADMIN
ProtectSystem=full
ProtectHome=true
ReadWritePaths=%s %s

[Install]
WantedBy=multi-user.target
`, cfg.BinaryPath, configPath, cfg.ConfigDir, cfg.RunDir)
}
