package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/lowdata/blockd/internal/install"
)

var purge bool

var uninstallCmd = &cobra.Command{
	Use:   "uninstall",
	Short: "Unregister the enforcer daemon",
	Long: "Stop the privileged enforcer daemon and remove its service registration.\n" +
		"Requires root. Uninstalling a daemon that was never installed succeeds.",
	RunE: runUninstallCmd,
}

func init() {
	uninstallCmd.Flags().BoolVar(&purge, "purge", false, "also remove the daemon config and runtime directories")
	rootCmd.AddCommand(uninstallCmd)
}

func runUninstallCmd(cmd *cobra.Command, _ []string) error {
	logger := setupLogger(logLevel)
	mgr := newInstallManager(logger)

	if err := mgr.Uninstall(cmd.Context()); err != nil {
		return fmt.Errorf("blockd uninstall: %w", err)
	}

	if purge {
		cfg := install.InstallConfig{}
		cfg.ApplyDefaults()
		for _, dir := range []string{cfg.ConfigDir, cfg.RunDir} {
			if err := os.RemoveAll(dir); err != nil {
				return fmt.Errorf("blockd uninstall: purge %s: %w", dir, err)
			}
			logger.Info("removed", "dir", dir)
		}
	}

	fmt.Fprintln(cmd.OutOrStdout(), "enforcer uninstalled")
	return nil
}
