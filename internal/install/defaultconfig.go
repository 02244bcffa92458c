package install

import (
	"fmt"
	"path/filepath"

	"github.com/lowdata/blockd/internal/pf"
)

// GenerateDefaultConfig produces the default config.yaml written for the
// enforcer daemon on first install. Existing configs are never overwritten.
func GenerateDefaultConfig(cfg InstallConfig) string {
	cfg.ApplyDefaults()

	return fmt.Sprintf(`# blockd enforcer configuration
# See documentation for all available options.

socket_path: %s
rules_path: %s
anchor: %s
socket_group: %s
log_level: info
`,
		filepath.Join(cfg.RunDir, "enforcer.sock"),
		filepath.Join(cfg.ConfigDir, "pf.rules"),
		pf.DefaultAnchor,
		cfg.SocketGroup,
	)
}
