package enforcer

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"sync"

	"github.com/lowdata/blockd/internal/pf"
)

// Server is the privileged enforcer daemon. It serves the rule enforcement
// API over a Unix socket and owns the host packet filter for the lifetime of
// the process.
type Server struct {
	cfg     Config
	version string
	filter  Filter
	logger  *slog.Logger
}

// NewServer creates a new Server. Config defaults are applied automatically;
// a nil filter selects the platform backend (pfctl, or nftables on Linux).
func NewServer(cfg Config, version string, filter Filter, logger *slog.Logger) *Server {
	cfg.ApplyDefaults()
	if logger == nil {
		logger = slog.Default()
	}
	lg := logger.With("component", "enforcer")
	if filter == nil {
		filter = newPlatformFilter(cfg, lg)
	}
	return &Server{
		cfg:     cfg,
		version: version,
		filter:  filter,
		logger:  lg,
	}
}

// Start initializes and runs the daemon. It blocks until ctx is cancelled.
// The process must run as root: both the packet filter and the socket
// ownership require it.
func (s *Server) Start(ctx context.Context) error {
	if err := s.cfg.Validate(); err != nil {
		return err
	}
	if os.Geteuid() != 0 {
		return fmt.Errorf("enforcer: must run as root, running as uid %d", os.Geteuid())
	}

	handler := NewHandler(s.version, s.cfg.RulesPath, pf.Translator{}, s.filter, s.logger)
	mux := handler.Mux()
	wrapped := s.wrapMutationAuth(mux)

	// Remove stale socket.
	os.Remove(s.cfg.SocketPath)

	if dir := filepath.Dir(s.cfg.SocketPath); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("enforcer: create socket dir: %w", err)
		}
	}

	ln, err := net.Listen("unix", s.cfg.SocketPath)
	if err != nil {
		return fmt.Errorf("enforcer: listen unix %s: %w", s.cfg.SocketPath, err)
	}

	applySocketPermissions(s.cfg.SocketPath, s.cfg.SocketGroup, s.logger)

	httpServer := &http.Server{
		Handler:     wrapped,
		ConnContext: connContextWithPeerCred(s.logger),
	}

	s.logger.Info("enforcer started",
		"socket", s.cfg.SocketPath,
		"rules_path", s.cfg.RulesPath,
		"anchor", s.cfg.Anchor,
		"version", s.version,
	)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := httpServer.Serve(ln); err != http.ErrServerClosed {
			s.logger.Error("serve error", "error", err)
		}
	}()

	<-ctx.Done()

	s.logger.Info("enforcer shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()
	httpServer.Shutdown(shutdownCtx)

	os.Remove(s.cfg.SocketPath)
	wg.Wait()

	s.logger.Info("enforcer stopped")

	return ctx.Err()
}

// wrapMutationAuth gates the rule mutation routes behind peer credential
// checks. The version route stays open so unprivileged status probes work.
func (s *Server) wrapMutationAuth(next http.Handler) http.Handler {
	auth := MutationAuthMiddleware(OSGroupChecker{}, contextPeerCredGetter{}, s.cfg.SocketGroup, s.logger)
	protected := auth(next)

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == routeRules {
			protected.ServeHTTP(w, r)
			return
		}
		next.ServeHTTP(w, r)
	})
}
