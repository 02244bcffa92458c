package install

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// launchctl abstracts the launchctl binary for testability.
type launchctl interface {
	available() bool
	load(plistPath string) error
	unload(plistPath string) error
	// list asks launchd whether the label is loaded. A non-nil error of
	// type *exec.ExitError means launchd answered "not loaded"; any other
	// error means launchctl itself could not be run.
	list(label string) error
}

// execLaunchctl implements launchctl using os/exec.
type execLaunchctl struct{}

func (execLaunchctl) available() bool {
	_, err := exec.LookPath("launchctl")
	return err == nil
}

func (execLaunchctl) load(plistPath string) error {
	return runLaunchctl("load", "-w", plistPath)
}

func (execLaunchctl) unload(plistPath string) error {
	return runLaunchctl("unload", "-w", plistPath)
}

func (execLaunchctl) list(label string) error {
	return exec.Command("launchctl", "list", label).Run()
}

func runLaunchctl(args ...string) error {
	output, err := exec.Command("launchctl", args...).CombinedOutput()
	if err != nil {
		return fmt.Errorf("install: launchctl %s: %s: %w", args[0], strings.TrimSpace(string(output)), err)
	}
	return nil
}

// LaunchdManager registers the enforcer daemon as a launchd system daemon.
type LaunchdManager struct {
	cfg    InstallConfig
	ctl    launchctl
	root   RootChecker
	logger *slog.Logger
}

// NewLaunchdManager creates a LaunchdManager with defaults applied.
func NewLaunchdManager(cfg InstallConfig, logger *slog.Logger) *LaunchdManager {
	return newLaunchdManager(cfg, execLaunchctl{}, OSRootChecker{}, logger)
}

func newLaunchdManager(cfg InstallConfig, ctl launchctl, root RootChecker, logger *slog.Logger) *LaunchdManager {
	cfg.ApplyDefaults()
	return &LaunchdManager{
		cfg:    cfg,
		ctl:    ctl,
		root:   root,
		logger: logger.With("component", "install"),
	}
}

func (m *LaunchdManager) Available() bool {
	return m.ctl.available()
}

// Register installs the enforcer daemon: directories, binary, default
// config, plist, then load. Registering an already registered service
// reconfirms every step and succeeds.
func (m *LaunchdManager) Register() error {
	// 1. Check root
	if !m.root.IsRoot() {
		return errors.New("install: registering the enforcer requires root privileges")
	}

	// 2. Check launchd
	if !m.ctl.available() {
		return errors.New("install: launchctl is not available")
	}

	// 3. Create directories
	for _, dir := range []string{m.cfg.ConfigDir, m.cfg.RunDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("install: create directory %s: %w", dir, err)
		}
	}

	// 4. Copy binary
	if err := copyBinary(m.cfg.BinaryPath, m.logger); err != nil {
		return err
	}

	// 5. Write default config if absent
	if err := writeDefaultConfig(m.cfg, m.logger); err != nil {
		return err
	}

	// 6. Write plist
	plistContent := GenerateLaunchdPlist(m.cfg)
	if err := os.MkdirAll(filepath.Dir(m.cfg.PlistPath), 0o755); err != nil {
		return fmt.Errorf("install: create plist directory: %w", err)
	}
	if err := os.WriteFile(m.cfg.PlistPath, []byte(plistContent), 0o644); err != nil {
		return fmt.Errorf("install: write plist: %w", err)
	}
	m.logger.Info("plist written", "path", m.cfg.PlistPath)

	// 7. Load. Reload for an already loaded service: unload first,
	// ignoring errors, so a plist change takes effect.
	if err := m.ctl.list(m.cfg.Label); err == nil {
		if err := m.ctl.unload(m.cfg.PlistPath); err != nil {
			m.logger.Info("unload before reload", "error", err)
		}
	}
	if err := m.ctl.load(m.cfg.PlistPath); err != nil {
		return fmt.Errorf("install: load service: %w", err)
	}

	m.logger.Info("enforcer registered", "label", m.cfg.Label)
	return nil
}

// Unregister unloads the daemon and removes the plist. A service that was
// never registered is a successful no-op.
func (m *LaunchdManager) Unregister() error {
	// 1. Check root
	if !m.root.IsRoot() {
		return errors.New("install: unregistering the enforcer requires root privileges")
	}

	// 2. Check if registered
	if _, err := os.Stat(m.cfg.PlistPath); errors.Is(err, os.ErrNotExist) {
		m.logger.Info("enforcer is not registered, nothing to do")
		return nil
	}

	// 3. Unload, ignoring errors since the service may not be loaded
	if err := m.ctl.unload(m.cfg.PlistPath); err != nil {
		m.logger.Info("unload service", "error", err)
	}

	// 4. Remove plist
	if err := os.Remove(m.cfg.PlistPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("install: remove plist: %w", err)
	}

	m.logger.Info("enforcer unregistered", "label", m.cfg.Label)
	return nil
}

// State maps the plist presence and `launchctl list` onto the registration
// states.
func (m *LaunchdManager) State() (RegistrationState, error) {
	if _, err := os.Stat(m.cfg.PlistPath); errors.Is(err, os.ErrNotExist) {
		return StateNotInstalled, nil
	} else if err != nil {
		return StateNotFound, fmt.Errorf("install: stat plist: %w", err)
	}

	err := m.ctl.list(m.cfg.Label)
	if err == nil {
		return StateEnabled, nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		// launchd answered: the plist exists but the service is not
		// loaded, typically pending an administrator's approval.
		return StateRequiresApproval, nil
	}
	// launchctl itself could not resolve the service.
	return StateNotFound, fmt.Errorf("install: launchctl list: %w", err)
}
