package enforcer

import (
	"context"

	"github.com/lowdata/blockd/internal/pf"
	"github.com/lowdata/blockd/internal/rule"
)

// Filter applies the translated rule set to the host packet filter. The
// directive file on disk is always the source of truth; Reload runs after
// the file was written.
type Filter interface {
	// Reload activates the rule set. rules is the typed set the directive
	// file was rendered from: pf-based filters reload the file through
	// pfctl, table-based filters program the rules directly.
	Reload(ctx context.Context, rules []rule.Rule) error
	// Flush removes every rule previously applied. Flushing when nothing
	// was ever applied succeeds.
	Flush(ctx context.Context) error
}

// PFFilter enforces rules through the pf packet filter. Reload points pfctl
// at the rules file inside the managed anchor and makes sure filtering is
// enabled.
type PFFilter struct {
	control   pf.Control
	anchor    string
	rulesPath string
}

// NewPFFilter returns a Filter backed by the given pfctl control.
func NewPFFilter(control pf.Control, anchor, rulesPath string) *PFFilter {
	return &PFFilter{control: control, anchor: anchor, rulesPath: rulesPath}
}

func (f *PFFilter) Reload(ctx context.Context, _ []rule.Rule) error {
	if err := f.control.LoadAnchor(ctx, f.anchor, f.rulesPath); err != nil {
		return err
	}
	return f.control.EnableFiltering(ctx)
}

func (f *PFFilter) Flush(ctx context.Context) error {
	return f.control.FlushAnchor(ctx, f.anchor)
}
