package cmd

import (
	"fmt"
	"io"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/lowdata/blockd/internal/controller"
	"github.com/lowdata/blockd/internal/install"
	"github.com/lowdata/blockd/internal/rule"
)

var (
	statusWatch    bool
	statusInterval time.Duration
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show enforcement status",
	Long: "Show the enforcer daemon's registration and liveness, and the controller's\n" +
		"enforcement state. With --watch, refresh continuously until interrupted.",
	RunE: runStatus,
}

func init() {
	statusCmd.Flags().BoolVar(&statusWatch, "watch", false, "refresh continuously until interrupted")
	statusCmd.Flags().DurationVar(&statusInterval, "interval", 5*time.Second, "refresh interval with --watch")
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, _ []string) error {
	logger := setupLogger(logLevel)

	ctrl, cleanup, err := openController(cmd.Context(), logger)
	if err != nil {
		return fmt.Errorf("blockd status: %w", err)
	}
	defer cleanup()

	mgr := newInstallManager(logger)
	w := cmd.OutOrStdout()

	if !statusWatch {
		printStatus(w, mgr.Probe(cmd.Context()), ctrl.Snapshot(), countEnabled(ctrl.Rules()))
		return nil
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	ticker := time.NewTicker(statusInterval)
	defer ticker.Stop()
	for {
		printStatus(w, mgr.Probe(ctx), ctrl.Snapshot(), countEnabled(ctrl.Rules()))
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			fmt.Fprintln(w)
		}
	}
}

func printStatus(w io.Writer, st install.Status, snap controller.Snapshot, enabledRules int) {
	fmt.Fprintf(w, "Registration: %s\n", st.Registration)
	fmt.Fprintf(w, "Daemon:       %s\n", daemonStatus(st))
	fmt.Fprintf(w, "Enforcement:  %s\n", enforcementStatus(snap))
	fmt.Fprintf(w, "Rules:        %d total, %d enabled\n", snap.RuleCount, enabledRules)
	if snap.LastError != "" {
		fmt.Fprintf(w, "Last error:   %s\n", snap.LastError)
	}
	if st.Err != "" {
		fmt.Fprintf(w, "Probe:        %s\n", st.Err)
	}
}

func daemonStatus(st install.Status) string {
	if st.Registration != install.StateEnabled {
		return "not running"
	}
	if st.Responsive {
		return fmt.Sprintf("responsive (version %s)", st.Version)
	}
	return "unresponsive"
}

func enforcementStatus(snap controller.Snapshot) string {
	switch {
	case snap.Enforcing:
		return "on"
	case snap.Enabled && snap.Trusted:
		return "suspended (trusted network)"
	default:
		return "off"
	}
}

func countEnabled(rules []rule.Rule) int {
	n := 0
	for _, r := range rules {
		if r.Enabled {
			n++
		}
	}
	return n
}
