package install

import (
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
)

// --- Mock launchctl ---

type mockLaunchctl struct {
	isAvailable bool
	listErr     error
	loadErr     error

	loadCalls   []string
	unloadCalls []string
	listCalls   []string
}

func (m *mockLaunchctl) available() bool { return m.isAvailable }

func (m *mockLaunchctl) load(plistPath string) error {
	m.loadCalls = append(m.loadCalls, plistPath)
	return m.loadErr
}

func (m *mockLaunchctl) unload(plistPath string) error {
	m.unloadCalls = append(m.unloadCalls, plistPath)
	return nil
}

func (m *mockLaunchctl) list(label string) error {
	m.listCalls = append(m.listCalls, label)
	return m.listErr
}

func newTestLaunchdManager(t *testing.T, ctl *mockLaunchctl, root *mockRootChecker) (*LaunchdManager, InstallConfig) {
	t.Helper()
	cfg, _ := testInstallConfig(t)
	return newLaunchdManager(cfg, ctl, root, testLogger()), cfg
}

// realExitError produces a genuine *exec.ExitError, the error launchctl
// list returns for an unloaded service.
func realExitError(t *testing.T) error {
	t.Helper()
	err := exec.Command("sh", "-c", "exit 1").Run()
	var exitErr *exec.ExitError
	if !errors.As(err, &exitErr) {
		t.Fatalf("expected exit error, got %v", err)
	}
	return err
}

// --- Register tests ---

func TestLaunchdRegister_RejectsNonRoot(t *testing.T) {
	ctl := &mockLaunchctl{isAvailable: true}
	m, cfg := newTestLaunchdManager(t, ctl, &mockRootChecker{isRoot: false})

	if err := m.Register(); err == nil {
		t.Fatal("Register() = nil, want error for non-root")
	}
	if _, err := os.Stat(cfg.PlistPath); !os.IsNotExist(err) {
		t.Error("non-root register wrote the plist")
	}
}

func TestLaunchdRegister_WritesPlistAndLoads(t *testing.T) {
	ctl := &mockLaunchctl{isAvailable: true, listErr: realExitError(t)}
	m, cfg := newTestLaunchdManager(t, ctl, &mockRootChecker{isRoot: true})

	if err := m.Register(); err != nil {
		t.Fatalf("Register() error: %v", err)
	}

	data, err := os.ReadFile(cfg.PlistPath)
	if err != nil {
		t.Fatalf("plist not written: %v", err)
	}
	if !strings.Contains(string(data), cfg.Label) {
		t.Errorf("plist missing label %q:\n%s", cfg.Label, data)
	}

	if len(ctl.loadCalls) != 1 || ctl.loadCalls[0] != cfg.PlistPath {
		t.Errorf("load calls = %v, want [%s]", ctl.loadCalls, cfg.PlistPath)
	}
	if len(ctl.unloadCalls) != 0 {
		t.Errorf("unload called for unloaded service: %v", ctl.unloadCalls)
	}
}

func TestLaunchdRegister_ReloadsWhenAlreadyLoaded(t *testing.T) {
	ctl := &mockLaunchctl{isAvailable: true} // list succeeds: loaded
	m, cfg := newTestLaunchdManager(t, ctl, &mockRootChecker{isRoot: true})

	if err := m.Register(); err != nil {
		t.Fatalf("Register() error: %v", err)
	}

	if len(ctl.unloadCalls) != 1 || ctl.unloadCalls[0] != cfg.PlistPath {
		t.Errorf("unload calls = %v, want one for %s", ctl.unloadCalls, cfg.PlistPath)
	}
	if len(ctl.loadCalls) != 1 {
		t.Errorf("load calls = %v, want one", ctl.loadCalls)
	}
}

func TestLaunchdRegister_LoadFailure(t *testing.T) {
	ctl := &mockLaunchctl{
		isAvailable: true,
		listErr:     realExitError(t),
		loadErr:     errors.New("operation not permitted"),
	}
	m, _ := newTestLaunchdManager(t, ctl, &mockRootChecker{isRoot: true})

	err := m.Register()
	if err == nil || !strings.Contains(err.Error(), "load service") {
		t.Fatalf("Register() = %v, want load error", err)
	}
}

// --- Unregister tests ---

func TestLaunchdUnregister_UnloadsAndRemovesPlist(t *testing.T) {
	ctl := &mockLaunchctl{isAvailable: true}
	m, cfg := newTestLaunchdManager(t, ctl, &mockRootChecker{isRoot: true})

	if err := m.Register(); err != nil {
		t.Fatalf("Register() error: %v", err)
	}
	if err := m.Unregister(); err != nil {
		t.Fatalf("Unregister() error: %v", err)
	}

	if len(ctl.unloadCalls) == 0 {
		t.Error("unload not called")
	}
	if _, err := os.Stat(cfg.PlistPath); !os.IsNotExist(err) {
		t.Error("plist still present after unregister")
	}
}

func TestLaunchdUnregister_IdempotentWhenNotRegistered(t *testing.T) {
	ctl := &mockLaunchctl{isAvailable: true}
	m, _ := newTestLaunchdManager(t, ctl, &mockRootChecker{isRoot: true})

	if err := m.Unregister(); err != nil {
		t.Fatalf("Unregister() on clean system = %v, want nil", err)
	}
	if len(ctl.unloadCalls) != 0 {
		t.Errorf("unload called for unregistered service: %v", ctl.unloadCalls)
	}
}

// --- State tests ---

func TestLaunchdState_NotInstalledWithoutPlist(t *testing.T) {
	ctl := &mockLaunchctl{isAvailable: true}
	m, _ := newTestLaunchdManager(t, ctl, &mockRootChecker{isRoot: true})

	got, err := m.State()
	if err != nil {
		t.Fatalf("State() error: %v", err)
	}
	if got != StateNotInstalled {
		t.Errorf("State() = %q, want %q", got, StateNotInstalled)
	}
	if len(ctl.listCalls) != 0 {
		t.Errorf("launchctl list called without a plist: %v", ctl.listCalls)
	}
}

func TestLaunchdState_EnabledWhenLoaded(t *testing.T) {
	ctl := &mockLaunchctl{isAvailable: true}
	m, cfg := newTestLaunchdManager(t, ctl, &mockRootChecker{isRoot: true})
	writePlist(t, cfg)

	got, err := m.State()
	if err != nil {
		t.Fatalf("State() error: %v", err)
	}
	if got != StateEnabled {
		t.Errorf("State() = %q, want %q", got, StateEnabled)
	}
}

func TestLaunchdState_RequiresApprovalWhenNotLoaded(t *testing.T) {
	ctl := &mockLaunchctl{isAvailable: true, listErr: realExitError(t)}
	m, cfg := newTestLaunchdManager(t, ctl, &mockRootChecker{isRoot: true})
	writePlist(t, cfg)

	got, err := m.State()
	if err != nil {
		t.Fatalf("State() error: %v", err)
	}
	if got != StateRequiresApproval {
		t.Errorf("State() = %q, want %q", got, StateRequiresApproval)
	}
}

func TestLaunchdState_NotFoundWhenLaunchctlFails(t *testing.T) {
	ctl := &mockLaunchctl{isAvailable: true, listErr: errors.New("launchctl: command not found")}
	m, cfg := newTestLaunchdManager(t, ctl, &mockRootChecker{isRoot: true})
	writePlist(t, cfg)

	got, err := m.State()
	if got != StateNotFound {
		t.Errorf("State() = %q, want %q", got, StateNotFound)
	}
	if err == nil {
		t.Error("State() error = nil, want diagnostic error")
	}
}

func writePlist(t *testing.T, cfg InstallConfig) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(cfg.PlistPath), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(cfg.PlistPath, []byte(GenerateLaunchdPlist(cfg)), 0o644); err != nil {
		t.Fatalf("write plist: %v", err)
	}
}
