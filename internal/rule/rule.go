// Package rule defines the network blocking rule model shared by the
// controller and the privileged enforcer daemon.
package rule

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Transport selects which layer-4 protocols a rule covers.
type Transport string

const (
	TCP  Transport = "tcp"
	UDP  Transport = "udp"
	Both Transport = "both"
)

// Valid reports whether t is one of the defined transports.
func (t Transport) Valid() bool {
	switch t {
	case TCP, UDP, Both:
		return true
	}
	return false
}

// Protocols returns the concrete protocol names covered by t, tcp before udp.
func (t Transport) Protocols() []string {
	switch t {
	case TCP:
		return []string{"tcp"}
	case UDP:
		return []string{"udp"}
	case Both:
		return []string{"tcp", "udp"}
	}
	return nil
}

// Kind discriminates the rule variants.
type Kind string

const (
	KindPort        Kind = "port"
	KindPortRange   Kind = "portRange"
	KindService     Kind = "service"
	KindApplication Kind = "application"
)

// PortRule blocks outbound traffic to a single destination port.
type PortRule struct {
	Number    int       `json:"number"`
	Transport Transport `json:"transport"`
}

// PortRangeRule blocks outbound traffic to an inclusive destination port range.
type PortRangeRule struct {
	Start     int       `json:"start"`
	End       int       `json:"end"`
	Transport Transport `json:"transport"`
}

// ServicePort is one port a named service uses.
type ServicePort struct {
	Port      int       `json:"port"`
	Transport Transport `json:"transport"`
}

// ServiceRule blocks the port list of a named service.
type ServiceRule struct {
	Name  string        `json:"name"`
	Ports []ServicePort `json:"ports"`
}

// ApplicationRule blocks an application identified by its bundle identifier.
// Enforcement is port-based: the rule only blocks ports known to be used by
// the application, it never attributes individual sockets to processes.
type ApplicationRule struct {
	BundleID    string `json:"bundleId"`
	DisplayName string `json:"displayName"`
}

// Rule is a single blocking rule. Exactly one of the variant pointers is
// non-nil, matching Kind. ID is unique within a rule set and immutable for
// the lifetime of the rule.
type Rule struct {
	ID          string           `json:"id"`
	Name        string           `json:"name"`
	Kind        Kind             `json:"kind"`
	Port        *PortRule        `json:"port,omitempty"`
	Range       *PortRangeRule   `json:"range,omitempty"`
	Service     *ServiceRule     `json:"service,omitempty"`
	App         *ApplicationRule `json:"app,omitempty"`
	Enabled     bool             `json:"enabled"`
	UserAdded   bool             `json:"userAdded"`
	Description string           `json:"description,omitempty"`
	CreatedAt   time.Time        `json:"createdAt"`
}

// NewPort returns a user-added rule blocking a single port.
func NewPort(name string, number int, transport Transport) Rule {
	r := newUserRule(name, KindPort)
	r.Port = &PortRule{Number: number, Transport: transport}
	return r
}

// NewPortRange returns a user-added rule blocking an inclusive port range.
func NewPortRange(name string, start, end int, transport Transport) Rule {
	r := newUserRule(name, KindPortRange)
	r.Range = &PortRangeRule{Start: start, End: end, Transport: transport}
	return r
}

// NewService returns a user-added rule blocking a named service's ports.
func NewService(name string, ports []ServicePort) Rule {
	r := newUserRule(name, KindService)
	r.Service = &ServiceRule{Name: name, Ports: ports}
	return r
}

// NewApplication returns a user-added rule blocking an application's known
// ports.
func NewApplication(name, bundleID, displayName string) Rule {
	r := newUserRule(name, KindApplication)
	r.App = &ApplicationRule{BundleID: bundleID, DisplayName: displayName}
	return r
}

func newUserRule(name string, kind Kind) Rule {
	return Rule{
		ID:        uuid.NewString(),
		Name:      name,
		Kind:      kind,
		Enabled:   true,
		UserAdded: true,
		CreatedAt: time.Now().UTC(),
	}
}

// Validate checks the rule for semantic correctness: the kind must match
// exactly one populated variant and all variant fields must be in range.
func (r Rule) Validate() error {
	if r.ID == "" {
		return fmt.Errorf("rule: missing id")
	}
	if n := r.variantCount(); n != 1 {
		return fmt.Errorf("rule %s: expected exactly one variant, got %d", r.ID, n)
	}
	switch r.Kind {
	case KindPort:
		if r.Port == nil {
			return fmt.Errorf("rule %s: kind %q without port variant", r.ID, r.Kind)
		}
		if err := validPort(r.Port.Number); err != nil {
			return fmt.Errorf("rule %s: %w", r.ID, err)
		}
		if !r.Port.Transport.Valid() {
			return fmt.Errorf("rule %s: invalid transport %q", r.ID, r.Port.Transport)
		}
	case KindPortRange:
		if r.Range == nil {
			return fmt.Errorf("rule %s: kind %q without range variant", r.ID, r.Kind)
		}
		if err := validPort(r.Range.Start); err != nil {
			return fmt.Errorf("rule %s: range start: %w", r.ID, err)
		}
		if err := validPort(r.Range.End); err != nil {
			return fmt.Errorf("rule %s: range end: %w", r.ID, err)
		}
		if r.Range.Start > r.Range.End {
			return fmt.Errorf("rule %s: range start %d exceeds end %d", r.ID, r.Range.Start, r.Range.End)
		}
		if !r.Range.Transport.Valid() {
			return fmt.Errorf("rule %s: invalid transport %q", r.ID, r.Range.Transport)
		}
	case KindService:
		if r.Service == nil {
			return fmt.Errorf("rule %s: kind %q without service variant", r.ID, r.Kind)
		}
		if r.Service.Name == "" {
			return fmt.Errorf("rule %s: service name is empty", r.ID)
		}
		if len(r.Service.Ports) == 0 {
			return fmt.Errorf("rule %s: service %q has no ports", r.ID, r.Service.Name)
		}
		for _, p := range r.Service.Ports {
			if err := validPort(p.Port); err != nil {
				return fmt.Errorf("rule %s: service %q: %w", r.ID, r.Service.Name, err)
			}
			if !p.Transport.Valid() {
				return fmt.Errorf("rule %s: service %q: invalid transport %q", r.ID, r.Service.Name, p.Transport)
			}
		}
	case KindApplication:
		if r.App == nil {
			return fmt.Errorf("rule %s: kind %q without app variant", r.ID, r.Kind)
		}
		if r.App.BundleID == "" {
			return fmt.Errorf("rule %s: application bundle id is empty", r.ID)
		}
	default:
		return fmt.Errorf("rule %s: unknown kind %q", r.ID, r.Kind)
	}
	return nil
}

func (r Rule) variantCount() int {
	n := 0
	if r.Port != nil {
		n++
	}
	if r.Range != nil {
		n++
	}
	if r.Service != nil {
		n++
	}
	if r.App != nil {
		n++
	}
	return n
}

func validPort(p int) error {
	if p < 1 || p > 65535 {
		return fmt.Errorf("port %d out of range 1-65535", p)
	}
	return nil
}

// Clone returns a deep copy of the rule. Mutating the copy never affects the
// original, including the service port slice.
func (r Rule) Clone() Rule {
	out := r
	if r.Port != nil {
		p := *r.Port
		out.Port = &p
	}
	if r.Range != nil {
		rg := *r.Range
		out.Range = &rg
	}
	if r.Service != nil {
		s := *r.Service
		s.Ports = append([]ServicePort(nil), r.Service.Ports...)
		out.Service = &s
	}
	if r.App != nil {
		a := *r.App
		out.App = &a
	}
	return out
}

// BlockSpec is a normalized block instruction: one concrete protocol and an
// inclusive destination port range. A single port has From == To.
type BlockSpec struct {
	Proto string
	From  int
	To    int
}

// PortLookup resolves the advisory port list for an application bundle
// identifier. A nil or empty result means no ports are known.
type PortLookup func(bundleID string) []ServicePort

// Expand normalizes a rule into its ordered block specs. The order is
// deterministic: declaration order of ports, tcp before udp for transports
// covering both. Application rules resolve their ports through known; a rule
// with no known ports expands to nothing.
func Expand(r Rule, known PortLookup) []BlockSpec {
	var out []BlockSpec
	switch r.Kind {
	case KindPort:
		for _, proto := range r.Port.Transport.Protocols() {
			out = append(out, BlockSpec{Proto: proto, From: r.Port.Number, To: r.Port.Number})
		}
	case KindPortRange:
		for _, proto := range r.Range.Transport.Protocols() {
			out = append(out, BlockSpec{Proto: proto, From: r.Range.Start, To: r.Range.End})
		}
	case KindService:
		for _, p := range r.Service.Ports {
			for _, proto := range p.Transport.Protocols() {
				out = append(out, BlockSpec{Proto: proto, From: p.Port, To: p.Port})
			}
		}
	case KindApplication:
		if known == nil {
			return nil
		}
		for _, p := range known(r.App.BundleID) {
			for _, proto := range p.Transport.Protocols() {
				out = append(out, BlockSpec{Proto: proto, From: p.Port, To: p.Port})
			}
		}
	}
	return out
}
