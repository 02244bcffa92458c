package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"

	"github.com/lowdata/blockd/internal/controller"
	"github.com/lowdata/blockd/internal/enforcer"
	"github.com/lowdata/blockd/internal/install"
	"github.com/lowdata/blockd/internal/store"
)

// setupLogger builds the stderr logger every command hands down the stack.
func setupLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}

// enforcerSocketPath returns the configured or default enforcer socket path.
func enforcerSocketPath() string {
	if socketPath != "" {
		return socketPath
	}
	return enforcer.DefaultSocketPath
}

// statePath returns the configured or default controller state database path.
func statePath() (string, error) {
	if dataDir != "" {
		return filepath.Join(dataDir, "state.db"), nil
	}
	return store.DefaultPath()
}

// newServiceManager picks the service manager for the host OS.
func newServiceManager(logger *slog.Logger) install.ServiceManager {
	if runtime.GOOS == "darwin" {
		return install.NewLaunchdManager(install.InstallConfig{}, logger)
	}
	return install.NewSystemdManager(install.InstallConfig{}, logger)
}

// newInstallManager wires the service manager and the version prober into
// an installation manager.
func newInstallManager(logger *slog.Logger) *install.Manager {
	prober := enforcer.NewClient(enforcer.ClientConfig{SocketPath: enforcerSocketPath()}, nil, logger)
	return install.NewManager(install.Config{}, newServiceManager(logger), prober, logger)
}

// openController builds the full controller stack: state store, install
// manager and enforcer client. The returned cleanup drains in-flight
// enforcement cycles and closes the store.
func openController(ctx context.Context, logger *slog.Logger) (*controller.Controller, func(), error) {
	path, err := statePath()
	if err != nil {
		return nil, nil, fmt.Errorf("resolve state path: %w", err)
	}
	st, err := store.Open(path)
	if err != nil {
		return nil, nil, err
	}

	mgr := newInstallManager(logger)
	client := enforcer.NewClient(enforcer.ClientConfig{SocketPath: enforcerSocketPath()}, mgr.Installed, logger)

	ctrl, err := controller.New(ctx, st, client, logger)
	if err != nil {
		st.Close()
		return nil, nil, err
	}
	cleanup := func() {
		ctrl.Close()
		st.Close()
	}
	return ctrl, cleanup, nil
}
