package rule

import (
	"strings"
	"testing"
)

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		rule    Rule
		wantErr string
	}{
		{
			name: "valid port",
			rule: NewPort("deny https alt", 8443, TCP),
		},
		{
			name: "valid range",
			rule: NewPortRange("ftp", 20, 21, TCP),
		},
		{
			name: "valid service",
			rule: NewService("smb", []ServicePort{{Port: 445, Transport: TCP}}),
		},
		{
			name: "valid application",
			rule: NewApplication("Dropbox", "com.dropbox.Dropbox", "Dropbox"),
		},
		{
			name:    "missing id",
			rule:    Rule{Kind: KindPort, Port: &PortRule{Number: 80, Transport: TCP}},
			wantErr: "missing id",
		},
		{
			name:    "no variant",
			rule:    Rule{ID: "x", Kind: KindPort},
			wantErr: "exactly one variant",
		},
		{
			name: "two variants",
			rule: Rule{
				ID:   "x",
				Kind: KindPort,
				Port: &PortRule{Number: 80, Transport: TCP},
				App:  &ApplicationRule{BundleID: "com.example"},
			},
			wantErr: "exactly one variant",
		},
		{
			name:    "kind variant mismatch",
			rule:    Rule{ID: "x", Kind: KindPort, Range: &PortRangeRule{Start: 1, End: 2, Transport: TCP}},
			wantErr: "without port variant",
		},
		{
			name:    "port zero",
			rule:    NewPort("bad", 0, TCP),
			wantErr: "out of range",
		},
		{
			name:    "port too large",
			rule:    NewPort("bad", 70000, UDP),
			wantErr: "out of range",
		},
		{
			name:    "port bad transport",
			rule:    NewPort("bad", 80, Transport("icmp")),
			wantErr: "invalid transport",
		},
		{
			name:    "range inverted",
			rule:    NewPortRange("bad", 21, 20, TCP),
			wantErr: "exceeds end",
		},
		{
			name:    "range start out of bounds",
			rule:    NewPortRange("bad", 0, 20, TCP),
			wantErr: "range start",
		},
		{
			name:    "service empty ports",
			rule:    NewService("empty", nil),
			wantErr: "no ports",
		},
		{
			name:    "service bad port",
			rule:    NewService("bad", []ServicePort{{Port: -1, Transport: TCP}}),
			wantErr: "out of range",
		},
		{
			name:    "application empty bundle id",
			rule:    NewApplication("bad", "", "Nameless"),
			wantErr: "bundle id is empty",
		},
		{
			name:    "unknown kind",
			rule:    Rule{ID: "x", Kind: Kind("firewall"), Port: &PortRule{Number: 80, Transport: TCP}},
			wantErr: "unknown kind",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.rule.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("Validate() = %v, want nil", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("Validate() = nil, want error containing %q", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("Validate() = %v, want error containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestConstructorsPopulateMetadata(t *testing.T) {
	a := NewPort("a", 80, TCP)
	b := NewPort("b", 81, TCP)

	if a.ID == "" || b.ID == "" {
		t.Fatalf("constructor left id empty: %q, %q", a.ID, b.ID)
	}
	if a.ID == b.ID {
		t.Fatalf("constructors produced duplicate id %q", a.ID)
	}
	if !a.UserAdded {
		t.Error("constructor rule not marked user-added")
	}
	if !a.Enabled {
		t.Error("constructor rule not enabled by default")
	}
	if a.CreatedAt.IsZero() {
		t.Error("constructor left CreatedAt zero")
	}
}

func TestExpand(t *testing.T) {
	tests := []struct {
		name string
		rule Rule
		want []BlockSpec
	}{
		{
			name: "single port tcp",
			rule: NewPort("smtp", 25, TCP),
			want: []BlockSpec{{Proto: "tcp", From: 25, To: 25}},
		},
		{
			name: "single port both is tcp then udp",
			rule: NewPort("dns", 53, Both),
			want: []BlockSpec{
				{Proto: "tcp", From: 53, To: 53},
				{Proto: "udp", From: 53, To: 53},
			},
		},
		{
			name: "range udp",
			rule: NewPortRange("mdns", 5350, 5353, UDP),
			want: []BlockSpec{{Proto: "udp", From: 5350, To: 5353}},
		},
		{
			name: "service preserves declaration order",
			rule: NewService("smb", []ServicePort{
				{Port: 445, Transport: TCP},
				{Port: 139, Transport: TCP},
				{Port: 137, Transport: UDP},
			}),
			want: []BlockSpec{
				{Proto: "tcp", From: 445, To: 445},
				{Proto: "tcp", From: 139, To: 139},
				{Proto: "udp", From: 137, To: 137},
			},
		},
		{
			name: "service port with both expands in place",
			rule: NewService("sync", []ServicePort{{Port: 17500, Transport: Both}}),
			want: []BlockSpec{
				{Proto: "tcp", From: 17500, To: 17500},
				{Proto: "udp", From: 17500, To: 17500},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Expand(tt.rule, KnownPorts)
			assertSpecs(t, got, tt.want)
		})
	}
}

func TestExpandApplication(t *testing.T) {
	lookup := func(bundleID string) []ServicePort {
		if bundleID != "com.example.sync" {
			return nil
		}
		return []ServicePort{{Port: 9000, Transport: Both}}
	}

	r := NewApplication("Sync", "com.example.sync", "Sync")
	got := Expand(r, lookup)
	want := []BlockSpec{
		{Proto: "tcp", From: 9000, To: 9000},
		{Proto: "udp", From: 9000, To: 9000},
	}
	assertSpecs(t, got, want)

	unknown := NewApplication("Mystery", "com.example.mystery", "Mystery")
	if got := Expand(unknown, lookup); len(got) != 0 {
		t.Fatalf("Expand(unknown app) = %v, want empty", got)
	}
	if got := Expand(r, nil); len(got) != 0 {
		t.Fatalf("Expand with nil lookup = %v, want empty", got)
	}
}

func TestExpandDeterministic(t *testing.T) {
	r := NewService("smb", []ServicePort{
		{Port: 445, Transport: Both},
		{Port: 139, Transport: TCP},
	})

	first := Expand(r, KnownPorts)
	for i := 0; i < 10; i++ {
		assertSpecs(t, Expand(r, KnownPorts), first)
	}
}

func TestClone(t *testing.T) {
	orig := NewService("smb", []ServicePort{{Port: 445, Transport: TCP}})
	clone := orig.Clone()

	clone.Service.Ports[0].Port = 9999
	clone.Service.Name = "changed"

	if orig.Service.Ports[0].Port != 445 {
		t.Error("mutating clone port leaked into original")
	}
	if orig.Service.Name != "smb" {
		t.Error("mutating clone name leaked into original")
	}
}

func TestDefaults(t *testing.T) {
	defaults := Defaults()
	if len(defaults) == 0 {
		t.Fatal("Defaults() returned no rules")
	}

	seen := map[string]bool{}
	for _, r := range defaults {
		if err := r.Validate(); err != nil {
			t.Errorf("default rule %q invalid: %v", r.Name, err)
		}
		if r.Enabled {
			t.Errorf("default rule %q ships enabled", r.Name)
		}
		if r.UserAdded {
			t.Errorf("default rule %q marked user-added", r.Name)
		}
		if seen[r.ID] {
			t.Errorf("duplicate default id %q", r.ID)
		}
		seen[r.ID] = true
	}
}

func assertSpecs(t *testing.T, got, want []BlockSpec) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("got %d specs %v, want %d specs %v", len(got), got, len(want), want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("spec[%d] = %+v, want %+v", i, got[i], want[i])
		}
	}
}
