package rule

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestDictRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		rule Rule
	}{
		{name: "port", rule: NewPort("smtp", 25, TCP)},
		{name: "range", rule: NewPortRange("ftp", 20, 21, Both)},
		{name: "service", rule: NewService("smb", []ServicePort{{Port: 445, Transport: TCP}, {Port: 139, Transport: TCP}})},
		{name: "application", rule: NewApplication("Dropbox", "com.dropbox.Dropbox", "Dropbox")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			back, err := FromDict(tt.rule.Dict())
			if err != nil {
				t.Fatalf("FromDict() error: %v", err)
			}
			assertSpecs(t, Expand(back, KnownPorts), Expand(tt.rule, KnownPorts))
		})
	}
}

func TestDictOmitsControllerMetadata(t *testing.T) {
	r := NewPort("smtp", 25, TCP)
	r.Description = "user note"

	data, err := json.Marshal(r.Dict())
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	for _, field := range []string{"id", "enabled", "userAdded", "createdAt", "description"} {
		if strings.Contains(string(data), field) {
			t.Errorf("wire form leaks %q: %s", field, data)
		}
	}
}

func TestFromDictRejectsInvalid(t *testing.T) {
	tests := []struct {
		name    string
		dict    Dict
		wantErr string
	}{
		{
			name:    "unknown type",
			dict:    Dict{Type: "firewall"},
			wantErr: "unknown wire type",
		},
		{
			name:    "port out of range",
			dict:    Dict{Type: "port", Number: 0, Transport: TCP},
			wantErr: "out of range",
		},
		{
			name:    "inverted range",
			dict:    Dict{Type: "portRange", Start: 21, End: 20, Transport: TCP},
			wantErr: "exceeds end",
		},
		{
			name:    "service without ports",
			dict:    Dict{Type: "service", Name: "smb"},
			wantErr: "no ports",
		},
		{
			name:    "application without bundle id",
			dict:    Dict{Type: "application", DisplayName: "Nameless"},
			wantErr: "bundle id is empty",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := FromDict(tt.dict)
			if err == nil {
				t.Fatalf("FromDict() = nil error, want %q", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("FromDict() = %v, want error containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestFromDictsReportsEntryIndex(t *testing.T) {
	dicts := []Dict{
		{Type: "port", Number: 80, Transport: TCP},
		{Type: "port", Number: 0, Transport: TCP},
	}

	_, err := FromDicts(dicts)
	if err == nil {
		t.Fatal("FromDicts() = nil error, want entry error")
	}
	if !strings.Contains(err.Error(), "entry 1") {
		t.Fatalf("FromDicts() = %v, want error naming entry 1", err)
	}
}

func TestDictsPreservesOrder(t *testing.T) {
	rules := []Rule{
		NewPort("first", 1000, TCP),
		NewPort("second", 2000, UDP),
	}

	dicts := Dicts(rules)
	if len(dicts) != 2 {
		t.Fatalf("Dicts() returned %d entries, want 2", len(dicts))
	}
	if dicts[0].Number != 1000 || dicts[1].Number != 2000 {
		t.Fatalf("Dicts() reordered entries: %+v", dicts)
	}
}
