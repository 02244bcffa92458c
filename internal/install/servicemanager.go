// Package install registers the enforcer daemon with the OS service manager
// and tracks its installation status over time.
package install

import "os"

// RegistrationState describes the enforcer daemon's registration with the
// OS service manager.
type RegistrationState string

const (
	// StateNotInstalled means the service was never registered.
	StateNotInstalled RegistrationState = "notInstalled"
	// StateRequiresApproval means the service definition is registered but
	// the daemon is not enabled, typically waiting on an administrator.
	StateRequiresApproval RegistrationState = "requiresApproval"
	// StateEnabled means the service is registered and enabled.
	StateEnabled RegistrationState = "enabled"
	// StateNotFound means the registration is dangling: the service
	// definition exists but the service manager cannot resolve it.
	StateNotFound RegistrationState = "notFound"
)

// ServiceManager abstracts the OS service manager (systemd or launchd).
// All methods that modify state must be idempotent: repeating an operation
// that is already applied returns nil.
type ServiceManager interface {
	// Available reports whether this service manager is usable on the host.
	Available() bool

	// Register installs the service definition and enables the daemon.
	Register() error

	// Unregister stops the daemon and removes the service definition.
	// Unregistering a service that was never registered returns nil.
	Unregister() error

	// State reports the current registration state.
	State() (RegistrationState, error)
}

// RootChecker abstracts privilege checking for testability.
type RootChecker interface {
	// IsRoot returns true if the current process has root privileges.
	IsRoot() bool
}

// OSRootChecker implements RootChecker using the real process UID.
type OSRootChecker struct{}

func (OSRootChecker) IsRoot() bool {
	return os.Getuid() == 0
}
