package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var trustCmd = &cobra.Command{
	Use:   "trust on|off",
	Short: "Record whether the current network is trusted",
	Long: "Record the trusted-network signal. On a trusted network enforcement is\n" +
		"suspended without touching the rule set or the global switch; leaving the\n" +
		"trusted network restores it.",
	Args: cobra.ExactArgs(1),
	RunE: runTrust,
}

func init() {
	rootCmd.AddCommand(trustCmd)
}

func runTrust(cmd *cobra.Command, args []string) error {
	var trusted bool
	switch args[0] {
	case "on":
		trusted = true
	case "off":
		trusted = false
	default:
		return fmt.Errorf("blockd trust: argument must be \"on\" or \"off\", got %q", args[0])
	}

	logger := setupLogger(logLevel)
	ctrl, cleanup, err := openController(cmd.Context(), logger)
	if err != nil {
		return fmt.Errorf("blockd trust: %w", err)
	}
	defer cleanup()

	if err := ctrl.SetTrusted(cmd.Context(), trusted); err != nil {
		return fmt.Errorf("blockd trust: %w", err)
	}
	if trusted {
		fmt.Fprintln(cmd.OutOrStdout(), "network marked trusted, enforcement suspended")
	} else {
		fmt.Fprintln(cmd.OutOrStdout(), "network marked untrusted")
	}
	reportCycle(cmd.OutOrStdout(), ctrl)
	return nil
}
