package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"text/tabwriter"

	"tgcommands/pkg/command"
	"tgcommands/pkg/gateway"

	"github.com/spf13/cobra"
)

var commandsJSON bool

var commandsCmd = &cobra.Command{
	Use:   "commands",
	Short: "List the registered bot commands",
	RunE: func(cmd *cobra.Command, args []string) error {
		_ = args

		cfg, err := loadConfigOrDefault()
		if err != nil {
			return err
		}

		quiet := slog.New(slog.NewTextHandler(io.Discard, nil))
		asker, err := newAsker(cfg.Assistant, quiet)
		if err != nil {
			return err
		}

		router, err := gateway.NewRouter(cfg.Router, nil, asker, quiet)
		if err != nil {
			return err
		}

		return printCommands(cmd.OutOrStdout(), router.Registry().Commands(), commandsJSON)
	},
}

func init() {
	rootCmd.AddCommand(commandsCmd)
	commandsCmd.Flags().BoolVar(&commandsJSON, "json", false, "print commands as JSON")
}

func printCommands(w io.Writer, commands []command.Descriptor, asJSON bool) error {
	if asJSON {
		encoder := json.NewEncoder(w)
		encoder.SetIndent("", "  ")
		return encoder.Encode(commands)
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	for _, desc := range commands {
		name := "/" + desc.Name
		if desc.Debug {
			name += " (debug)"
		}
		if _, err := fmt.Fprintf(tw, "%s\t%s\n", name, desc.Description); err != nil {
			return err
		}
	}
	return tw.Flush()
}
