package install

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// systemctl abstracts the systemctl binary for testability.
type systemctl interface {
	available() bool
	daemonReload() error
	enable(service string) error
	disable(service string) error
	start(service string) error
	stop(service string) error
	// isEnabled returns the raw `systemctl is-enabled` output word. The
	// command exits non-zero for most states, so the word matters more
	// than the error.
	isEnabled(service string) (string, error)
}

// execSystemctl implements systemctl using os/exec.
type execSystemctl struct{}

func (execSystemctl) available() bool {
	_, err := exec.LookPath("systemctl")
	return err == nil
}

func (execSystemctl) daemonReload() error { return runSystemctl("daemon-reload") }

func (execSystemctl) enable(service string) error { return runSystemctl("enable", service) }

func (execSystemctl) disable(service string) error { return runSystemctl("disable", service) }

func (execSystemctl) start(service string) error { return runSystemctl("start", service) }

func (execSystemctl) stop(service string) error { return runSystemctl("stop", service) }

func (execSystemctl) isEnabled(service string) (string, error) {
	out, err := exec.Command("systemctl", "is-enabled", service).Output()
	return strings.TrimSpace(string(out)), err
}

func runSystemctl(args ...string) error {
	output, err := exec.Command("systemctl", args...).CombinedOutput()
	if err != nil {
		return fmt.Errorf("install: systemctl %s: %s: %w", args[0], strings.TrimSpace(string(output)), err)
	}
	return nil
}

// SystemdManager registers the enforcer daemon as a systemd system service.
type SystemdManager struct {
	cfg    InstallConfig
	ctl    systemctl
	root   RootChecker
	logger *slog.Logger
}

// NewSystemdManager creates a SystemdManager with defaults applied.
func NewSystemdManager(cfg InstallConfig, logger *slog.Logger) *SystemdManager {
	return newSystemdManager(cfg, execSystemctl{}, OSRootChecker{}, logger)
}

func newSystemdManager(cfg InstallConfig, ctl systemctl, root RootChecker, logger *slog.Logger) *SystemdManager {
	cfg.ApplyDefaults()
	return &SystemdManager{
		cfg:    cfg,
		ctl:    ctl,
		root:   root,
		logger: logger.With("component", "install"),
	}
}

func (m *SystemdManager) Available() bool {
	return m.ctl.available()
}

// Register installs the enforcer daemon: directories, binary, default
// config, unit file, then enable and start. Registering an already
// registered service reconfirms every step and succeeds.
func (m *SystemdManager) Register() error {
	// 1. Check root
	if !m.root.IsRoot() {
		return errors.New("install: registering the enforcer requires root privileges")
	}

	// 2. Check systemd
	if !m.ctl.available() {
		return errors.New("install: systemd is not available")
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

	// 6. Write unit file
	unitContent := GenerateUnitFile(m.cfg)
	if err := os.MkdirAll(filepath.Dir(m.cfg.UnitFilePath), 0o755); err != nil {
		return fmt.Errorf("install: create unit file directory: %w", err)
	}
	if err := os.WriteFile(m.cfg.UnitFilePath, []byte(unitContent), 0o644); err != nil {
		return fmt.Errorf("install: write unit file: %w", err)
	}
	m.logger.Info("unit file written", "path", m.cfg.UnitFilePath)

	// 7. Daemon reload
	if err := m.ctl.daemonReload(); err != nil {
		return fmt.Errorf("install: daemon-reload: %w", err)
	}

	// 8. Enable and start
	if err := m.ctl.enable(m.cfg.ServiceName); err != nil {
		return fmt.Errorf("install: enable service: %w", err)
	}
	if err := m.ctl.start(m.cfg.ServiceName); err != nil {
		return fmt.Errorf("install: start service: %w", err)
	}

	m.logger.Info("enforcer registered", "service", m.cfg.ServiceName)
	return nil
}

// Unregister stops and removes the enforcer service. A service that was
// never registered is a successful no-op.
func (m *SystemdManager) Unregister() error {
	// 1. Check root
	if !m.root.IsRoot() {
		return errors.New("install: unregistering the enforcer requires root privileges")
	}

	// 2. Check if registered
	if _, err := os.Stat(m.cfg.UnitFilePath); errors.Is(err, os.ErrNotExist) {
		m.logger.Info("enforcer is not registered, nothing to do")
		return nil
	}

	// 3. Stop service, ignoring errors since it may not be running
	if err := m.ctl.stop(m.cfg.ServiceName); err != nil {
		m.logger.Info("stop service", "error", err)
	}

	// 4. Disable service
	if err := m.ctl.disable(m.cfg.ServiceName); err != nil {
		m.logger.Info("disable service", "error", err)
	}

	// 5. Remove unit file
	if err := os.Remove(m.cfg.UnitFilePath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("install: remove unit file: %w", err)
	}

	// 6. Daemon reload
	if err := m.ctl.daemonReload(); err != nil {
		return fmt.Errorf("install: daemon-reload: %w", err)
	}

	m.logger.Info("enforcer unregistered", "service", m.cfg.ServiceName)
	return nil
}

// State maps the unit file presence and `systemctl is-enabled` output onto
// the registration states.
func (m *SystemdManager) State() (RegistrationState, error) {
	if _, err := os.Stat(m.cfg.UnitFilePath); errors.Is(err, os.ErrNotExist) {
		return StateNotInstalled, nil
	} else if err != nil {
		return StateNotFound, fmt.Errorf("install: stat unit file: %w", err)
	}

	// is-enabled exits non-zero for every state except enabled, so the
	// printed word is authoritative and the error is not.
	word, _ := m.ctl.isEnabled(m.cfg.ServiceName)
	switch word {
	case "enabled", "enabled-runtime":
		return StateEnabled, nil
	case "disabled", "static", "linked", "masked":
		return StateRequiresApproval, nil
	case "":
		// Unit file on disk but systemd does not know the service.
		return StateNotFound, nil
	default:
		return StateNotFound, fmt.Errorf("install: unexpected is-enabled state %q", word)
	}
}

// copyBinary installs the running executable at dstPath. If the process is
// already running from dstPath the copy is skipped.
func copyBinary(dstPath string, logger *slog.Logger) error {
	srcPath, err := os.Executable()
	if err != nil {
		return fmt.Errorf("install: resolve executable path: %w", err)
	}
	srcPath, err = filepath.EvalSymlinks(srcPath)
	if err != nil {
		return fmt.Errorf("install: resolve symlinks: %w", err)
	}

	if srcPath == dstPath {
		logger.Info("binary already at install path, skipping copy", "path", dstPath)
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(dstPath), 0o755); err != nil {
		return fmt.Errorf("install: create binary directory: %w", err)
	}

	src, err := os.Open(srcPath)
	if err != nil {
		return fmt.Errorf("install: open source binary: %w", err)
	}
	defer src.Close()

	dst, err := os.OpenFile(dstPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o755)
	if err != nil {
		return fmt.Errorf("install: create destination binary: %w", err)
	}
	defer dst.Close()

	if _, err := io.Copy(dst, src); err != nil {
		return fmt.Errorf("install: copy binary: %w", err)
	}

	logger.Info("binary installed", "src", srcPath, "dst", dstPath)
	return nil
}

// writeDefaultConfig writes the daemon config if none exists yet. An
// existing config is preserved.
func writeDefaultConfig(cfg InstallConfig, logger *slog.Logger) error {
	configPath := filepath.Join(cfg.ConfigDir, "config.yaml")
	if _, err := os.Stat(configPath); err == nil {
		logger.Info("existing config preserved", "path", configPath)
		return nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("install: stat config: %w", err)
	}

	content := GenerateDefaultConfig(cfg)
	if err := os.WriteFile(configPath, []byte(content), 0o644); err != nil {
		return fmt.Errorf("install: write config: %w", err)
	}
	logger.Info("default config written", "path", configPath)
	return nil
}
