// Command suggestbot relays anonymous suggestions to a moderator and publishes approved ones.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := rootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func rootCommand() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:           "suggestbot",
		Short:         "Anonymous suggestion relay bot for Telegram",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config.yaml (overrides CONFIG_PATH)")

	run := runCommand(&configPath)
	root.AddCommand(run, migrateCommand(&configPath), versionCommand())
	root.RunE = run.RunE
	return root
}
