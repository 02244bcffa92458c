package cmd

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/lowdata/blockd/internal/controller"
)

var enableCmd = &cobra.Command{
	Use:   "enable",
	Short: "Turn enforcement on",
	Long: "Turn global enforcement on and push the enabled rules to the packet\n" +
		"filter. The switch persists across restarts.",
	RunE: runEnable,
}

func init() {
	rootCmd.AddCommand(enableCmd)
}

func runEnable(cmd *cobra.Command, _ []string) error {
	logger := setupLogger(logLevel)

	ctrl, cleanup, err := openController(cmd.Context(), logger)
	if err != nil {
		return fmt.Errorf("blockd enable: %w", err)
	}
	defer cleanup()

	if err := ctrl.SetEnabled(cmd.Context(), true); err != nil {
		return fmt.Errorf("blockd enable: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), "enforcement enabled")
	reportCycle(cmd.OutOrStdout(), ctrl)
	return nil
}

// reportCycle drains the enforcement cycle a mutation triggered and prints
// its outcome when it failed. The mutation itself already persisted, so a
// failed cycle is reported rather than returned.
func reportCycle(w io.Writer, ctrl *controller.Controller) {
	ctrl.Close()
	if errText := ctrl.LastError(); errText != "" {
		fmt.Fprintf(w, "enforcement error: %s\n", errText)
	}
}
