package rule

import (
	"fmt"

	"github.com/google/uuid"
)

// Dict is the flat wire form of a rule crossing the privileged channel. The
// type field selects the variant; only the fields belonging to that variant
// are populated.
type Dict struct {
	Type        string        `json:"type"`
	Number      int           `json:"number,omitempty"`
	Start       int           `json:"start,omitempty"`
	End         int           `json:"end,omitempty"`
	Transport   Transport     `json:"transport,omitempty"`
	Name        string        `json:"name,omitempty"`
	Ports       []ServicePort `json:"ports,omitempty"`
	BundleID    string        `json:"bundleId,omitempty"`
	DisplayName string        `json:"displayName,omitempty"`
}

// Dict converts the rule to its wire form. Controller-side metadata such as
// id, enabled and timestamps deliberately stays behind: the enforcer only
// receives what it needs to build packet filter directives.
func (r Rule) Dict() Dict {
	switch r.Kind {
	case KindPort:
		return Dict{Type: string(KindPort), Number: r.Port.Number, Transport: r.Port.Transport}
	case KindPortRange:
		return Dict{Type: string(KindPortRange), Start: r.Range.Start, End: r.Range.End, Transport: r.Range.Transport}
	case KindService:
		return Dict{Type: string(KindService), Name: r.Service.Name, Ports: append([]ServicePort(nil), r.Service.Ports...)}
	case KindApplication:
		return Dict{Type: string(KindApplication), BundleID: r.App.BundleID, DisplayName: r.App.DisplayName}
	}
	return Dict{}
}

// FromDict reconstructs a rule from its wire form and validates it. The
// result carries a fresh id and no controller metadata; it exists so the
// enforcer can reuse rule validation and expansion.
func FromDict(d Dict) (Rule, error) {
	r := Rule{ID: uuid.NewString(), Kind: Kind(d.Type)}
	switch r.Kind {
	case KindPort:
		r.Port = &PortRule{Number: d.Number, Transport: d.Transport}
	case KindPortRange:
		r.Range = &PortRangeRule{Start: d.Start, End: d.End, Transport: d.Transport}
	case KindService:
		r.Service = &ServiceRule{Name: d.Name, Ports: append([]ServicePort(nil), d.Ports...)}
	case KindApplication:
		r.App = &ApplicationRule{BundleID: d.BundleID, DisplayName: d.DisplayName}
	default:
		return Rule{}, fmt.Errorf("rule: unknown wire type %q", d.Type)
	}
	r.Name = d.Name
	if err := r.Validate(); err != nil {
		return Rule{}, err
	}
	return r, nil
}

// Dicts converts a slice of rules to wire form, preserving order.
func Dicts(rules []Rule) []Dict {
	out := make([]Dict, 0, len(rules))
	for _, r := range rules {
		out = append(out, r.Dict())
	}
	return out
}

// FromDicts reconstructs rules from wire form, preserving order. The first
// invalid entry aborts the conversion.
func FromDicts(dicts []Dict) ([]Rule, error) {
	out := make([]Rule, 0, len(dicts))
	for i, d := range dicts {
		r, err := FromDict(d)
		if err != nil {
			return nil, fmt.Errorf("rule: entry %d: %w", i, err)
		}
		out = append(out, r)
	}
	return out, nil
}
