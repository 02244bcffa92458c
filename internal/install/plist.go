package install

import (
	"fmt"
	"path/filepath"
)

const launchdPlistTemplate = `<?xml version="1.0" encoding="UTF-8"?>
<!DOCTYPE plist PUBLIC "-//Apple//DTD PLIST 1.0//EN" "http://www.apple.com/DTDs/PropertyList-1.0.dtd">
<plist version="1.0">
<dict>
    <key>Label</key>
    <string>%s</string>
    <key>ProgramArguments</key>
    <array>
        <string>%s</string>
        <string>enforcer</string>
        <string>--config</string>
        <string>%s</string>
    </array>
    <key>RunAtLoad</key>
    <true/>
    <key>KeepAlive</key>
    <dict>
        <key>SuccessfulExit</key>
        <false/>
    </dict>
    <key>StandardOutPath</key>
    <string>/var/log/blockd.log</string>
    <key>StandardErrorPath</key>
    <string>/var/log/blockd.err</string>
</dict>
</plist>
`

// GenerateLaunchdPlist produces the launchd daemon plist for the enforcer.
// It calls cfg.ApplyDefaults() to fill in zero-valued fields before
// generating the output.
func GenerateLaunchdPlist(cfg InstallConfig) string {
	cfg.ApplyDefaults()

	configPath := filepath.Join(cfg.ConfigDir, "config.yaml")
	return fmt.Sprintf(launchdPlistTemplate, cfg.Label, cfg.BinaryPath, configPath)
}
