package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "tgcommands",
	Short: "Telegram command router with reply and button tracking",
	Long:  "Routes Telegram commands to handlers and tracks replies and button presses tied to the messages those handlers send.",
}

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
