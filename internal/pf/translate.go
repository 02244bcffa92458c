// Package pf translates blocking rules into pf packet filter directives and
// drives the pfctl control tool.
package pf

import (
	"fmt"

	"github.com/lowdata/blockd/internal/rule"
)

// Translator converts rules into pf directives. The zero value is usable and
// resolves application ports through rule.KnownPorts.
type Translator struct {
	// Known resolves advisory ports for application rules. Nil means
	// rule.KnownPorts.
	Known rule.PortLookup
}

// Translate converts the rules into pf directives in rule order. It is a
// pure function of its input: no filesystem or pfctl interaction, identical
// input yields identical output. Rules that expand to nothing contribute
// nothing; application rules additionally contribute comment directives
// naming the application so the generated file stays auditable.
func (t Translator) Translate(rules []rule.Rule) []string {
	known := t.Known
	if known == nil {
		known = rule.KnownPorts
	}

	var out []string
	for _, r := range rules {
		specs := rule.Expand(r, known)
		if r.Kind == rule.KindApplication {
			out = append(out, fmt.Sprintf("# application %s (%s)", r.App.BundleID, appDisplayName(r)))
			if len(specs) == 0 {
				out = append(out, fmt.Sprintf("# no ports known for %s, nothing blocked", r.App.BundleID))
				continue
			}
		}
		for _, s := range specs {
			out = append(out, Directive(s))
		}
	}
	return out
}

// Directive renders a single block spec as a pf directive.
func Directive(s rule.BlockSpec) string {
	port := fmt.Sprintf("%d", s.From)
	if s.To != s.From {
		port = fmt.Sprintf("%d:%d", s.From, s.To)
	}
	return fmt.Sprintf("block drop out proto %s from any to any port %s", s.Proto, port)
}

func appDisplayName(r rule.Rule) string {
	if r.App.DisplayName != "" {
		return r.App.DisplayName
	}
	return r.Name
}
