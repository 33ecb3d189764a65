package channel

import (
	"context"

	"tgcommands/pkg/bus"
)

// Handler accepts one inbound update from an adapter. It must return quickly;
// routing happens elsewhere.
type Handler func(context.Context, bus.Update) error

// Adapter bridges one external transport (for example Telegram) into the router.
type Adapter interface {
	Name() string
	Run(context.Context, Handler) error
}
