// Package cmd implements the blockd CLI commands.
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var (
	socketPath string
	dataDir    string
	logLevel   string
)

// Build info set from main.
var (
	buildVersion = "dev"
	buildCommit  = "none"
	buildDate    = "unknown"
)

// SetVersionInfo sets the version info from build-time ldflags.
func SetVersionInfo(version, commit, date string) {
	buildVersion = version
	buildCommit = commit
	buildDate = date
	rootCmd.Version = buildVersion
	rootCmd.SetVersionTemplate(fmt.Sprintf("blockd version {{.Version}}\ncommit: %s\nbuilt: %s\n", buildCommit, buildDate))
}

var rootCmd = &cobra.Command{
	Use:   "blockd",
	Short: "blockd blocks unwanted outbound network traffic",
	Long: "blockd lets you define network-blocking rules by port, port range, service\n" +
		"or application, and enforces them through the system packet filter. Rules are\n" +
		"applied by a small privileged daemon (blockd enforcer) reachable over a local\n" +
		"socket; every other command is the unprivileged controller surface.",
	// No Run function, so the bare command prints help.
}

func init() {
	rootCmd.PersistentFlags().StringVar(&socketPath, "socket", "", "enforcer socket path (overrides default)")
	rootCmd.PersistentFlags().StringVar(&dataDir, "data-dir", "", "controller state directory (overrides default)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")

	rootCmd.Version = buildVersion
	rootCmd.SetVersionTemplate(fmt.Sprintf("blockd version {{.Version}}\ncommit: %s\nbuilt: %s\n", buildCommit, buildDate))
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}
