package enforcer

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/lowdata/blockd/internal/pf"
	"github.com/lowdata/blockd/internal/rule"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// testDaemon serves the real handler over a Unix socket without the peer
// credential wrap, which is exercised separately.
type testDaemon struct {
	socketPath string
	rulesPath  string
	filter     *fakeFilter
	server     *http.Server
}

func startTestDaemon(t *testing.T, dir string) *testDaemon {
	t.Helper()
	d := &testDaemon{
		socketPath: filepath.Join(dir, "enforcer.sock"),
		rulesPath:  filepath.Join(dir, "pf.rules"),
		filter:     &fakeFilter{},
	}
	d.start(t)
	return d
}

func (d *testDaemon) start(t *testing.T) {
	t.Helper()
	os.Remove(d.socketPath)
	ln, err := net.Listen("unix", d.socketPath)
	if err != nil {
		t.Fatalf("listen unix: %v", err)
	}

	handler := NewHandler("9.9.9", d.rulesPath, pf.Translator{}, d.filter, testLogger())
	d.server = &http.Server{Handler: handler.Mux()}
	go d.server.Serve(ln)

	t.Cleanup(func() { d.stop() })
}

func (d *testDaemon) stop() {
	if d.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		d.server.Shutdown(ctx)
		d.server = nil
	}
	os.Remove(d.socketPath)
}

func newTestClient(t *testing.T, socketPath string, installed bool) *Client {
	t.Helper()
	c := NewClient(ClientConfig{
		SocketPath:   socketPath,
		CallTimeout:  2 * time.Second,
		ProbeTimeout: time.Second,
	}, func() bool { return installed }, testLogger())
	t.Cleanup(func() { c.httpc.CloseIdleConnections() })
	return c
}

func TestClientVersion(t *testing.T) {
	d := startTestDaemon(t, t.TempDir())
	c := newTestClient(t, d.socketPath, true)

	v, err := c.Version(context.Background())
	if err != nil {
		t.Fatalf("Version() error: %v", err)
	}
	if v != "9.9.9" {
		t.Fatalf("Version() = %q, want 9.9.9", v)
	}
}

func TestClientApplyEndToEnd(t *testing.T) {
	d := startTestDaemon(t, t.TempDir())
	c := newTestClient(t, d.socketPath, true)

	rules := []rule.Dict{rule.NewPort("smb", 445, rule.TCP).Dict()}
	if err := c.Apply(context.Background(), rules); err != nil {
		t.Fatalf("Apply() error: %v", err)
	}

	if d.filter.reloadCalls != 1 {
		t.Fatalf("reload calls = %d, want 1", d.filter.reloadCalls)
	}
	if _, err := os.Stat(d.rulesPath); err != nil {
		t.Fatalf("rules file not written: %v", err)
	}

	if err := c.RemoveAll(context.Background()); err != nil {
		t.Fatalf("RemoveAll() error: %v", err)
	}
	if d.filter.flushCalls != 1 {
		t.Fatalf("flush calls = %d, want 1", d.filter.flushCalls)
	}
	if _, err := os.Stat(d.rulesPath); !os.IsNotExist(err) {
		t.Fatal("rules file still present after RemoveAll")
	}
}

func TestClientRefusesWhenNotInstalled(t *testing.T) {
	// Point at a socket that does not exist: the refusal must happen
	// before any connection attempt.
	c := newTestClient(t, filepath.Join(t.TempDir(), "missing.sock"), false)

	if err := c.Apply(context.Background(), nil); !errors.Is(err, ErrNotInstalled) {
		t.Fatalf("Apply() = %v, want ErrNotInstalled", err)
	}
	if err := c.RemoveAll(context.Background()); !errors.Is(err, ErrNotInstalled) {
		t.Fatalf("RemoveAll() = %v, want ErrNotInstalled", err)
	}
}

func TestClientConnectionError(t *testing.T) {
	c := newTestClient(t, filepath.Join(t.TempDir(), "missing.sock"), true)

	err := c.Apply(context.Background(), nil)
	if !errors.Is(err, ErrConnection) {
		t.Fatalf("Apply() = %v, want ErrConnection", err)
	}
	var cerr *CallError
	if !errors.As(err, &cerr) || cerr.Op != "applyRules" {
		t.Fatalf("Apply() = %v, want CallError for applyRules", err)
	}
}

func TestClientRemoteError(t *testing.T) {
	d := startTestDaemon(t, t.TempDir())
	d.filter.reloadErr = errors.New("pfctl: rules file: syntax error")
	c := newTestClient(t, d.socketPath, true)

	err := c.Apply(context.Background(), []rule.Dict{rule.NewPort("smb", 445, rule.TCP).Dict()})
	var rerr *RemoteError
	if !errors.As(err, &rerr) {
		t.Fatalf("Apply() = %v, want RemoteError", err)
	}
	if rerr.Op != "applyRules" {
		t.Errorf("Op = %q, want applyRules", rerr.Op)
	}
	if rerr.Message != "pfctl: rules file: syntax error" {
		t.Errorf("Message = %q, want daemon diagnostic verbatim", rerr.Message)
	}
}

func TestClientVersionTimeout(t *testing.T) {
	dir := t.TempDir()
	socketPath := filepath.Join(dir, "slow.sock")
	ln, err := net.Listen("unix", socketPath)
	if err != nil {
		t.Fatalf("listen unix: %v", err)
	}

	slow := &http.Server{Handler: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(5 * time.Second):
		}
	})}
	go slow.Serve(ln)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		slow.Shutdown(ctx)
		slow.Close()
	})

	c := NewClient(ClientConfig{
		SocketPath:   socketPath,
		ProbeTimeout: 50 * time.Millisecond,
	}, nil, testLogger())

	start := time.Now()
	_, err = c.Version(context.Background())
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("Version() = %v, want ErrTimeout", err)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Fatalf("probe took %v, want bounded by probe timeout", elapsed)
	}
}

func TestClientReconnectsAfterDaemonRestart(t *testing.T) {
	dir := t.TempDir()
	d := startTestDaemon(t, dir)
	c := newTestClient(t, d.socketPath, true)

	if err := c.RemoveAll(context.Background()); err != nil {
		t.Fatalf("first call: %v", err)
	}

	d.stop()
	if err := c.RemoveAll(context.Background()); err == nil {
		t.Fatal("call against stopped daemon succeeded")
	}

	d.start(t)
	if err := c.RemoveAll(context.Background()); err != nil {
		t.Fatalf("call after restart: %v", err)
	}
}

func TestClientConfigDefaults(t *testing.T) {
	var cfg ClientConfig
	cfg.ApplyDefaults()

	if cfg.SocketPath != DefaultSocketPath {
		t.Errorf("SocketPath = %q, want %q", cfg.SocketPath, DefaultSocketPath)
	}
	if cfg.CallTimeout != DefaultCallTimeout {
		t.Errorf("CallTimeout = %v, want %v", cfg.CallTimeout, DefaultCallTimeout)
	}
	if cfg.ProbeTimeout != DefaultProbeTimeout {
		t.Errorf("ProbeTimeout = %v, want %v", cfg.ProbeTimeout, DefaultProbeTimeout)
	}
}
