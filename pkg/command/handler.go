package command

import (
	"context"

	"tgcommands/pkg/bus"
)

// Descriptor describes one registered command.
type Descriptor struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Debug       bool   `json:"debug,omitempty"`
}

// Handler executes a parsed command. A returned error is reported as a
// command failure; the boolean is the handler's own outcome.
type Handler interface {
	Execute(ctx context.Context, t bus.Transport, msg bus.Message, args []string) (bool, error)
}

type HandlerFunc func(ctx context.Context, t bus.Transport, msg bus.Message, args []string) (bool, error)

func (f HandlerFunc) Execute(ctx context.Context, t bus.Transport, msg bus.Message, args []string) (bool, error) {
	return f(ctx, t, msg, args)
}

// ReplyWaiter handles the free-text reply to a message it is waiting on.
type ReplyWaiter interface {
	ID() string
	OnReply(ctx context.Context, t bus.Transport, msg bus.Message) (bool, error)
}

// CallbackWaiter handles a button press on a message it is waiting on.
type CallbackWaiter interface {
	OnCallback(ctx context.Context, t bus.Transport, cb bus.CallbackEvent) (bool, error)
}

type CallbackFunc func(ctx context.Context, t bus.Transport, cb bus.CallbackEvent) (bool, error)

func (f CallbackFunc) OnCallback(ctx context.Context, t bus.Transport, cb bus.CallbackEvent) (bool, error) {
	return f(ctx, t, cb)
}
