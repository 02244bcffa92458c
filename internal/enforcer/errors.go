package enforcer

import (
	"errors"
	"fmt"
)

// Sentinel errors returned by Client calls. Match with errors.Is.
var (
	// ErrNotInstalled means the call was refused locally because the
	// daemon is not installed, so connecting would only produce noise.
	ErrNotInstalled = errors.New("enforcer daemon is not installed")
	// ErrTimeout means the call did not complete within its deadline.
	ErrTimeout = errors.New("enforcer call timed out")
	// ErrConnection means the daemon socket could not be reached.
	ErrConnection = errors.New("enforcer connection failed")
)

// RemoteError is a failure reported by the daemon itself. Message carries
// the daemon's diagnostic verbatim, including any pfctl output.
type RemoteError struct {
	Op      string
	Message string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("enforcer: %s: %s", e.Op, e.Message)
}

// CallError wraps a transport-level failure with its taxonomy class, so
// callers can match errors.Is(err, ErrTimeout) while the underlying cause
// stays inspectable.
type CallError struct {
	Op    string
	Class error
	Err   error
}

func (e *CallError) Error() string {
	return fmt.Sprintf("enforcer: %s: %v", e.Op, e.Err)
}

func (e *CallError) Is(target error) bool { return target == e.Class }

func (e *CallError) Unwrap() error { return e.Err }
