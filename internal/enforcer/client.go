package enforcer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/lowdata/blockd/internal/rule"
)

// Client call timeout defaults.
const (
	DefaultCallTimeout  = 10 * time.Second
	DefaultProbeTimeout = 3 * time.Second
)

// maxErrorBody is the maximum number of bytes read from an error response
// body.
const maxErrorBody = 4096

// ClientConfig holds the settings for the enforcer client.
type ClientConfig struct {
	// SocketPath is the daemon's Unix socket.
	SocketPath string
	// CallTimeout bounds rule mutation calls.
	CallTimeout time.Duration
	// ProbeTimeout bounds the version probe.
	ProbeTimeout time.Duration
}

// ApplyDefaults fills in default values for unset fields.
func (c *ClientConfig) ApplyDefaults() {
	if c.SocketPath == "" {
		c.SocketPath = DefaultSocketPath
	}
	if c.CallTimeout <= 0 {
		c.CallTimeout = DefaultCallTimeout
	}
	if c.ProbeTimeout <= 0 {
		c.ProbeTimeout = DefaultProbeTimeout
	}
}

// InstalledFunc reports whether the enforcer daemon is currently installed.
// The client refuses mutation calls while it returns false so callers get
// ErrNotInstalled instead of a connection error with a misleading cause.
type InstalledFunc func() bool

// Client talks to the enforcer daemon over its Unix socket. Calls do not
// retry; a failed call closes idle connections so the next call dials fresh.
type Client struct {
	cfg       ClientConfig
	installed InstalledFunc
	httpc     *http.Client
	logger    *slog.Logger
}

// NewClient creates a new Client. installed may be nil, in which case calls
// are never refused locally.
func NewClient(cfg ClientConfig, installed InstalledFunc, logger *slog.Logger) *Client {
	cfg.ApplyDefaults()
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		cfg:       cfg,
		installed: installed,
		httpc:     newSocketClient(cfg.SocketPath),
		logger:    logger.With("component", "enforcer-client"),
	}
}

// newSocketClient creates an HTTP client that connects via Unix socket.
func newSocketClient(socketPath string) *http.Client {
	return &http.Client{
		Transport: &http.Transport{
			DialContext: func(ctx context.Context, _, _ string) (net.Conn, error) {
				var d net.Dialer
				return d.DialContext(ctx, "unix", socketPath)
			},
		},
	}
}

// socketURL returns a URL for the given path on the Unix socket.
func socketURL(path string) string {
	return "http://localhost" + path
}

// Version probes the daemon and returns its reported version. The probe uses
// its own short-lived transport so a wedged pooled connection can never make
// a healthy daemon look dead, and is bounded by ProbeTimeout.
func (c *Client) Version(ctx context.Context) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.ProbeTimeout)
	defer cancel()

	probe := newSocketClient(c.cfg.SocketPath)
	defer probe.CloseIdleConnections()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, socketURL(routeVersion), nil)
	if err != nil {
		return "", fmt.Errorf("enforcer: build version request: %w", err)
	}
	resp, err := probe.Do(req)
	if err != nil {
		return "", classify("getVersion", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", remoteError("getVersion", resp)
	}
	var vr VersionResponse
	if err := json.NewDecoder(resp.Body).Decode(&vr); err != nil {
		return "", fmt.Errorf("enforcer: decode version response: %w", err)
	}
	return vr.Version, nil
}

// Apply replaces the daemon's active rule set with the given wire rules.
func (c *Client) Apply(ctx context.Context, rules []rule.Dict) error {
	if c.installed != nil && !c.installed() {
		return ErrNotInstalled
	}

	body, err := json.Marshal(ApplyRequest{Rules: rules})
	if err != nil {
		return fmt.Errorf("enforcer: encode apply request: %w", err)
	}
	return c.mutate(ctx, "applyRules", http.MethodPut, body)
}

// RemoveAll removes every rule the daemon has applied.
func (c *Client) RemoveAll(ctx context.Context) error {
	if c.installed != nil && !c.installed() {
		return ErrNotInstalled
	}
	return c.mutate(ctx, "removeAll", http.MethodDelete, nil)
}

func (c *Client) mutate(ctx context.Context, op, method string, body []byte) error {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.CallTimeout)
	defer cancel()

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, socketURL(routeRules), reader)
	if err != nil {
		return fmt.Errorf("enforcer: build %s request: %w", op, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		// Drop any pooled connection so the next call dials fresh. The
		// daemon may have restarted under us.
		c.httpc.CloseIdleConnections()
		return classify(op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return remoteError(op, resp)
	}
	io.Copy(io.Discard, resp.Body)
	return nil
}

// classify wraps a transport-level failure into the error taxonomy.
func classify(op string, err error) error {
	class := ErrConnection
	var nerr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &nerr) && nerr.Timeout()) {
		class = ErrTimeout
	}
	return &CallError{Op: op, Class: class, Err: err}
}

// remoteError converts a non-200 response into a RemoteError carrying the
// daemon's diagnostic verbatim.
func remoteError(op string, resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))

	// The daemon reports failures as JSON with an error field; fall back
	// to the raw body for anything else.
	var payload struct {
		Error string `json:"error"`
	}
	msg := string(bytes.TrimSpace(body))
	if err := json.Unmarshal(body, &payload); err == nil && payload.Error != "" {
		msg = payload.Error
	}
	if msg == "" {
		msg = fmt.Sprintf("HTTP %d", resp.StatusCode)
	}
	return &RemoteError{Op: op, Message: msg}
}
