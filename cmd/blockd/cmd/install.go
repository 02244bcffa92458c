package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var installCmd = &cobra.Command{
	Use:   "install",
	Short: "Register the enforcer daemon with the service manager",
	Long: "Register the privileged enforcer daemon with the OS service manager\n" +
		"(launchd or systemd) and start it. Requires root. Installing an already\n" +
		"registered daemon reconfirms the registration.",
	RunE: runInstallCmd,
}

func init() {
	rootCmd.AddCommand(installCmd)
}

func runInstallCmd(cmd *cobra.Command, _ []string) error {
	logger := setupLogger(logLevel)
	mgr := newInstallManager(logger)

	if err := mgr.Install(cmd.Context()); err != nil {
		return fmt.Errorf("blockd install: %w", err)
	}

	w := cmd.OutOrStdout()
	fmt.Fprintln(w, "enforcer installed")
	st, ok := mgr.Last()
	if ok {
		fmt.Fprintf(w, "Registration: %s\n", st.Registration)
		fmt.Fprintf(w, "Daemon:       %s\n", daemonStatus(st))
	}
	return nil
}
