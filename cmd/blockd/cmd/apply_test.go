package cmd

import (
	"strings"
	"testing"
)

func TestApplyCommand_FailsWhenEnforcerMissing(t *testing.T) {
	// apply is the manual retry surface, so unlike enable and disable it
	// returns the cycle error instead of reporting it and exiting zero.
	_, err := runBlockd(t, "--data-dir", t.TempDir(), "apply")
	if err == nil {
		t.Fatal("expected apply to fail without an installed enforcer")
	}
	if !strings.Contains(err.Error(), "blockd apply") {
		t.Errorf("error = %q, want blockd apply prefix", err)
	}
}
