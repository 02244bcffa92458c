package pf

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
)

// DefaultAnchor is the pf anchor blockd manages. Keeping every directive
// inside one anchor means loads and flushes never touch rules owned by the
// system or by other tools.
const DefaultAnchor = "com.lowdata.blockd"

// Control abstracts the pfctl binary so the enforcer can be tested without
// touching the host packet filter.
type Control interface {
	// LoadAnchor replaces the anchor's rules with the contents of the file
	// at path.
	LoadAnchor(ctx context.Context, anchor, path string) error
	// FlushAnchor removes all rules from the anchor. Flushing an anchor
	// that holds no rules succeeds.
	FlushAnchor(ctx context.Context, anchor string) error
	// EnableFiltering turns the packet filter on. Enabling an already
	// enabled filter succeeds.
	EnableFiltering(ctx context.Context) error
}

// ToolError reports a pfctl invocation that failed. Output carries the
// combined stdout and stderr verbatim so the exact diagnostic reaches the
// caller.
type ToolError struct {
	Args   []string
	Output string
	Err    error
}

func (e *ToolError) Error() string {
	msg := strings.TrimSpace(e.Output)
	if msg == "" {
		msg = e.Err.Error()
	}
	return fmt.Sprintf("pf: pfctl %s: %s", strings.Join(e.Args, " "), msg)
}

func (e *ToolError) Unwrap() error { return e.Err }

// ExecControl drives pfctl through os/exec.
type ExecControl struct {
	path string
}

// NewExecControl returns a Control invoking the pfctl binary at path. An
// empty path means "pfctl" resolved through PATH.
func NewExecControl(path string) *ExecControl {
	if path == "" {
		path = "pfctl"
	}
	return &ExecControl{path: path}
}

// Available reports whether the pfctl binary can be resolved.
func (c *ExecControl) Available() bool {
	_, err := exec.LookPath(c.path)
	return err == nil
}

func (c *ExecControl) LoadAnchor(ctx context.Context, anchor, path string) error {
	return c.run(ctx, "-a", anchor, "-f", path)
}

func (c *ExecControl) FlushAnchor(ctx context.Context, anchor string) error {
	return c.run(ctx, "-a", anchor, "-F", "all")
}

func (c *ExecControl) EnableFiltering(ctx context.Context) error {
	err := c.run(ctx, "-e")
	if err == nil {
		return nil
	}
	// pfctl -e exits non-zero when pf is already running, which is the
	// state we want.
	var terr *ToolError
	if errors.As(err, &terr) && strings.Contains(terr.Output, "already enabled") {
		return nil
	}
	return err
}

func (c *ExecControl) run(ctx context.Context, args ...string) error {
	out, err := exec.CommandContext(ctx, c.path, args...).CombinedOutput()
	if err != nil {
		return &ToolError{Args: args, Output: string(out), Err: err}
	}
	return nil
}
