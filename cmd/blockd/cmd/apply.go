package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var applyCmd = &cobra.Command{
	Use:   "apply",
	Short: "Push the current enforcement state now",
	Long: "Force one enforcement cycle reflecting the current state: a full apply\n" +
		"when enforcement is on, a removal when it is off. This is the manual retry\n" +
		"after a failed cycle; blockd never retries on its own.",
	RunE: runApply,
}

func init() {
	rootCmd.AddCommand(applyCmd)
}

func runApply(cmd *cobra.Command, _ []string) error {
	logger := setupLogger(logLevel)

	ctrl, cleanup, err := openController(cmd.Context(), logger)
	if err != nil {
		return fmt.Errorf("blockd apply: %w", err)
	}
	defer cleanup()

	ctrl.Apply()
	ctrl.Close()

	if errText := ctrl.LastError(); errText != "" {
		return fmt.Errorf("blockd apply: %s", errText)
	}
	if ctrl.Snapshot().Enforcing {
		fmt.Fprintln(cmd.OutOrStdout(), "rules applied")
	} else {
		fmt.Fprintln(cmd.OutOrStdout(), "rules removed, enforcement is off")
	}
	return nil
}
