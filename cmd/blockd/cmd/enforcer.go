package cmd

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/lowdata/blockd/internal/enforcer"
)

var enforcerConfigPath string

var enforcerCmd = &cobra.Command{
	Use:   "enforcer",
	Short: "Run the privileged enforcer daemon",
	Long: "Run the privileged enforcer daemon. It listens on a local Unix socket for\n" +
		"rule sets from the controller and applies them through the system packet\n" +
		"filter. Must run as root; normally started by the service manager, not by hand.",
	RunE: runEnforcer,
}

func init() {
	enforcerCmd.Flags().StringVar(&enforcerConfigPath, "config", enforcer.DefaultConfigPath, "enforcer config file path")
	rootCmd.AddCommand(enforcerCmd)
}

func runEnforcer(cmd *cobra.Command, _ []string) error {
	// 1. Parse config. A missing file runs on defaults so the daemon comes
	// up before any install wrote one.
	cfg, err := enforcer.LoadConfig(enforcerConfigPath)
	if err != nil {
		return fmt.Errorf("blockd enforcer: %w", err)
	}

	// Apply CLI flag overrides.
	if socketPath != "" {
		cfg.SocketPath = socketPath
	}
	if cmd.Flags().Changed("log-level") {
		cfg.LogLevel = logLevel
	}

	// 2. Set up structured logger.
	logger := setupLogger(cfg.LogLevel)

	logger.Info("starting blockd enforcer",
		"version", buildVersion,
		"socket", cfg.SocketPath,
	)

	// 3. Run until signalled. The platform packet filter backend is chosen
	// by the server.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	srv := enforcer.NewServer(cfg, buildVersion, nil, logger)
	if err := srv.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("blockd enforcer: %w", err)
	}

	logger.Info("blockd enforcer stopped")
	return nil
}
