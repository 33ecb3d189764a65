package console

import (
	"context"
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"

	"tgcommands/pkg/bus"
	"tgcommands/pkg/command"
)

const eventBuffer = 16

// Run opens the console chat against router. Router notifications published
// on events are shown inline; events may be nil.
func Run(ctx context.Context, router *command.Router, events *bus.MessageBus) error {
	transport := NewTransport(nil)
	program := tea.NewProgram(newModel(ctx, NewSession(router, transport)), tea.WithAltScreen(), tea.WithContext(ctx))
	transport.emit = program.Send

	if events != nil {
		unsubscribe := events.Listen(ctx, eventBuffer, func(event bus.Event) {
			program.Send(noticeMsg{text: describeEvent(event)})
		})
		defer unsubscribe()
	}

	if _, err := program.Run(); err != nil {
		return fmt.Errorf("run console: %w", err)
	}
	return nil
}

func describeEvent(event bus.Event) string {
	var b strings.Builder
	b.WriteString(string(event.Type))
	if event.Command != "" {
		b.WriteString(" /")
		b.WriteString(event.Command)
	}
	if data := event.Payload[bus.PayloadData]; data != "" {
		b.WriteString(" data=")
		b.WriteString(data)
	}
	if event.Error != "" {
		b.WriteString(": ")
		b.WriteString(event.Error)
	}
	return b.String()
}
