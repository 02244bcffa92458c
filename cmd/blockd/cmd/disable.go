package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var disableCmd = &cobra.Command{
	Use:   "disable",
	Short: "Turn enforcement off",
	Long: "Turn global enforcement off and remove all rules from the packet filter.\n" +
		"The rule set itself is kept and reapplied on the next enable.",
	RunE: runDisable,
}

func init() {
	rootCmd.AddCommand(disableCmd)
}

func runDisable(cmd *cobra.Command, _ []string) error {
	logger := setupLogger(logLevel)

	ctrl, cleanup, err := openController(cmd.Context(), logger)
	if err != nil {
		return fmt.Errorf("blockd disable: %w", err)
	}
	defer cleanup()

	if err := ctrl.SetEnabled(cmd.Context(), false); err != nil {
		return fmt.Errorf("blockd disable: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), "enforcement disabled")
	reportCycle(cmd.OutOrStdout(), ctrl)
	return nil
}
