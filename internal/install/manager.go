package install

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"
)

// Status is one snapshot of the installation state machine.
type Status struct {
	// Registration is the service manager's view of the daemon.
	Registration RegistrationState
	// Responsive reports whether the daemon answered the version probe.
	// Only meaningful when Registration is StateEnabled.
	Responsive bool
	// Version is the daemon's reported version when responsive.
	Version string
	// Err carries an advisory diagnostic: a failed probe or state query.
	// It never downgrades Registration on its own.
	Err string
	// CheckedAt is when this snapshot was taken.
	CheckedAt time.Time
}

// Installed reports whether the snapshot shows a registered and enabled
// daemon.
func (s Status) Installed() bool {
	return s.Registration == StateEnabled
}

// VersionProber asks the daemon for its version. Implementations bound the
// call internally so a hung daemon cannot stall the status loop.
type VersionProber interface {
	Version(ctx context.Context) (string, error)
}

// StatusFunc receives status snapshots. Callbacks run on the probing
// goroutine and must return promptly.
type StatusFunc func(Status)

// Manager tracks the enforcer daemon's installation status and delegates
// registration to a ServiceManager.
type Manager struct {
	cfg    Config
	sm     ServiceManager
	prober VersionProber
	logger *slog.Logger

	mu   sync.Mutex
	last *Status
	subs []StatusFunc
}

// NewManager creates a new Manager. Config defaults are applied
// automatically.
func NewManager(cfg Config, sm ServiceManager, prober VersionProber, logger *slog.Logger) *Manager {
	cfg.ApplyDefaults()
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		cfg:    cfg,
		sm:     sm,
		prober: prober,
		logger: logger.With("component", "install"),
	}
}

// OnStatus registers a callback invoked with every snapshot Probe produces.
// OnStatus must be called before Run; it is not safe for concurrent use.
func (m *Manager) OnStatus(fn StatusFunc) {
	m.subs = append(m.subs, fn)
}

// Probe takes one status snapshot: registration state first, then, only for
// an enabled registration, a bounded version probe. A failed probe marks the
// daemon unresponsive but never changes the registration state.
func (m *Manager) Probe(ctx context.Context) Status {
	st := Status{CheckedAt: time.Now().UTC()}

	reg, err := m.sm.State()
	st.Registration = reg
	if err != nil {
		st.Err = err.Error()
	}

	if st.Registration == StateEnabled && m.prober != nil {
		version, err := m.prober.Version(ctx)
		if err != nil {
			st.Err = fmt.Sprintf("version probe: %v", err)
		} else {
			st.Responsive = true
			st.Version = version
		}
	}

	m.mu.Lock()
	m.last = &st
	subs := m.subs
	m.mu.Unlock()

	for i, fn := range subs {
		if err := m.safePublish(fn, st); err != nil {
			m.logger.Error("status callback failed", "callback_index", i, "error", err)
		}
	}

	return st
}

// safePublish calls a status callback with panic recovery.
func (m *Manager) safePublish(fn StatusFunc, st Status) (err error) {
	defer func() {
		if v := recover(); v != nil {
			err = fmt.Errorf("callback panicked: %v\n%s", v, debug.Stack())
		}
	}()
	fn(st)
	return nil
}

// Last returns the most recent snapshot, if any.
func (m *Manager) Last() (Status, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.last == nil {
		return Status{}, false
	}
	return *m.last, true
}

// Installed reports whether the daemon is registered and enabled. Before the
// first probe it queries the service manager directly; a probe failure
// counts as not installed.
func (m *Manager) Installed() bool {
	m.mu.Lock()
	last := m.last
	m.mu.Unlock()

	if last != nil {
		return last.Installed()
	}
	reg, err := m.sm.State()
	return err == nil && reg == StateEnabled
}

// Install registers the daemon and refreshes the snapshot. Installing when
// already registered reconfirms the registration and succeeds.
func (m *Manager) Install(ctx context.Context) error {
	if err := m.sm.Register(); err != nil {
		return err
	}
	m.Probe(ctx)
	return nil
}

// Uninstall unregisters the daemon and refreshes the snapshot.
// Uninstalling when not registered succeeds.
func (m *Manager) Uninstall(ctx context.Context) error {
	if err := m.sm.Unregister(); err != nil {
		return err
	}
	m.Probe(ctx)
	return nil
}

// Run polls the installation status on a fixed interval, publishing every
// snapshot to the registered callbacks. The first probe runs immediately.
// It blocks until ctx is cancelled.
func (m *Manager) Run(ctx context.Context) error {
	m.logger.Info("status polling started", "interval", m.cfg.PollInterval)

	m.Probe(ctx)

	ticker := time.NewTicker(m.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			m.logger.Info("status polling stopped")
			return ctx.Err()
		case <-ticker.C:
			m.Probe(ctx)
		}
	}
}
