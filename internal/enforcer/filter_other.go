//go:build !linux

package enforcer

import (
	"log/slog"

	"github.com/lowdata/blockd/internal/pf"
)

// newPlatformFilter selects the native filter backend. Off Linux the packet
// filter is pf, driven through pfctl.
func newPlatformFilter(cfg Config, _ *slog.Logger) Filter {
	return NewPFFilter(pf.NewExecControl(cfg.PfctlPath), cfg.Anchor, cfg.RulesPath)
}
