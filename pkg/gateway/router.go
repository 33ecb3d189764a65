package gateway

import (
	"fmt"
	"log/slog"

	"tgcommands/pkg/command"
	"tgcommands/pkg/config"
	"tgcommands/pkg/handlers"
)

// NewRouter builds a router with every built-in command registered and the
// routing toggle taken from config. asker may be nil, which leaves /ask out.
func NewRouter(cfg config.RouterConfig, events command.EventPublisher, asker handlers.Asker, log *slog.Logger) (*command.Router, error) {
	registry := command.NewRegistry(log)
	registry.SetEnabled(cfg.RoutingEnabled())

	router := command.NewRouter(registry, command.NewTracker(), events, log)
	if err := handlers.Register(router, asker); err != nil {
		return nil, fmt.Errorf("register commands: %w", err)
	}

	return router, nil
}
