package cmd

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"tgcommands/pkg/assistant"
	"tgcommands/pkg/bus"
	"tgcommands/pkg/config"
	"tgcommands/pkg/gateway"
	"tgcommands/pkg/handlers"
	"tgcommands/pkg/logger"
	"tgcommands/pkg/ui/console"

	"github.com/spf13/cobra"
)

var consoleLogFile string

var consoleCmd = &cobra.Command{
	Use:   "console",
	Short: "Chat with the bot locally in the terminal",
	Long:  "Runs the command router against a local terminal chat. Type /commands, reply with plain text, and press buttons with !data.",
	RunE: func(cmd *cobra.Command, args []string) error {
		_ = args

		cfg, err := loadConfigOrDefault()
		if err != nil {
			return err
		}

		logOutput, closeLog, err := openLogOutput(consoleLogFile)
		if err != nil {
			return err
		}
		defer closeLog()

		appLogger, err := logger.NewWithWriter(cfg.Logging, logOutput)
		if err != nil {
			return fmt.Errorf("initialize logger: %w", err)
		}
		slog.SetDefault(appLogger)

		asker, err := newAsker(cfg.Assistant, appLogger)
		if err != nil {
			return err
		}

		events := bus.NewMessageBusSize(cfg.Router.InboundQueueSize())
		defer events.Close()

		router, err := gateway.NewRouter(cfg.Router, events, asker, appLogger)
		if err != nil {
			return err
		}

		return console.Run(cmd.Context(), router, events)
	},
}

func init() {
	rootCmd.AddCommand(consoleCmd)
	consoleCmd.Flags().StringVar(&consoleLogFile, "log-file", "", "write logs to this file instead of discarding them")
}

// loadConfigOrDefault falls back to an empty config when no config.json
// exists, so local commands work without setup.
func loadConfigOrDefault() (*config.Config, error) {
	cfg, err := config.LoadConfig()
	if errors.Is(err, config.ErrConfigNotFound) {
		return &config.Config{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

// newAsker returns a nil interface, not a typed nil, when no assistant is
// configured.
func newAsker(cfg config.AssistantConfig, log *slog.Logger) (handlers.Asker, error) {
	asst, err := assistant.New(cfg, log)
	if err != nil {
		return nil, fmt.Errorf("initialize assistant: %w", err)
	}
	if asst == nil {
		return nil, nil
	}
	return asst, nil
}

func openLogOutput(path string) (io.Writer, func(), error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return io.Discard, func() {}, nil
	}

	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("open log file: %w", err)
	}
	return file, func() { _ = file.Close() }, nil
}
