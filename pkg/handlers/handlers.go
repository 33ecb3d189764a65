// Package handlers holds the built-in bot commands and the waiters they
// register on the router.
package handlers

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"tgcommands/pkg/bus"
	"tgcommands/pkg/command"
)

// Asker answers free-text questions. *assistant.Assistant implements it.
type Asker interface {
	Ask(ctx context.Context, conversation string, prompt string) (string, error)
}

const ratePrefix = "rate:"

type registration struct {
	desc    command.Descriptor
	handler command.Handler
}

// Register adds every built-in command to the router's registry. /ask is only
// registered when asker is non-nil.
func Register(router *command.Router, asker Asker) error {
	registry := router.Registry()

	entries := []registration{
		{command.Descriptor{Name: "start", Description: "Say hello"}, command.HandlerFunc(start)},
		{command.Descriptor{Name: "help", Description: "List available commands"}, helpCommand{registry: registry}},
		{command.Descriptor{Name: "echo", Description: "Repeat the arguments back"}, command.HandlerFunc(echo)},
		{command.Descriptor{Name: "rate", Description: "Rate the bot with a button press"}, rateCommand{router: router}},
		{command.Descriptor{Name: "routing", Description: "Turn command routing on or off", Debug: true}, routingCommand{registry: registry}},
		{command.Descriptor{Name: "pending", Description: "Show pending reply and button waiters", Debug: true}, pendingCommand{tracker: router.Tracker()}},
	}
	if asker != nil {
		entries = append(entries, registration{command.Descriptor{Name: "ask", Description: "Ask the assistant a question"}, &askCommand{router: router, asker: asker}})
	}

	var errs []error
	for _, entry := range entries {
		if err := registry.Register(entry.desc, entry.handler); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

func reply(ctx context.Context, t bus.Transport, msg bus.Message, text string) (bus.Message, error) {
	sent, err := t.Send(ctx, bus.OutboundMessage{ChatID: msg.ChatID, Text: text, ReplyToMessageID: msg.MessageID})
	if err != nil {
		return bus.Message{}, fmt.Errorf("send reply: %w", err)
	}
	return sent, nil
}

// start greets the user. Deep links arrive as /start_<payload>.
func start(ctx context.Context, t bus.Transport, msg bus.Message, args []string) (bool, error) {
	text := "Welcome! Send /help to see what I can do."
	if len(args) > 0 {
		text = fmt.Sprintf("Welcome! You came in through %q.", strings.Join(args, "_"))
	}

	if _, err := reply(ctx, t, msg, text); err != nil {
		return false, err
	}
	return true, nil
}

func echo(ctx context.Context, t bus.Transport, msg bus.Message, args []string) (bool, error) {
	if len(args) == 0 {
		_, err := reply(ctx, t, msg, "Usage: /echo <text>")
		return false, err
	}

	if _, err := reply(ctx, t, msg, strings.Join(args, " ")); err != nil {
		return false, err
	}
	return true, nil
}

type helpCommand struct {
	registry *command.Registry
}

func (h helpCommand) Execute(ctx context.Context, t bus.Transport, msg bus.Message, _ []string) (bool, error) {
	if _, err := reply(ctx, t, msg, HelpText(h.registry.Commands())); err != nil {
		return false, err
	}
	return true, nil
}

// HelpText renders the non-debug commands one per line.
func HelpText(commands []command.Descriptor) string {
	var b strings.Builder
	b.WriteString("Available commands:")
	for _, desc := range commands {
		if desc.Debug {
			continue
		}
		b.WriteString("\n/")
		b.WriteString(desc.Name)
		if desc.Description != "" {
			b.WriteString(" - ")
			b.WriteString(desc.Description)
		}
	}
	return b.String()
}

// askCommand answers inline arguments directly, or asks for the question with
// a force-reply prompt and waits for the reply to it.
type askCommand struct {
	router *command.Router
	asker  Asker
}

func (c *askCommand) ID() string { return "ask" }

func (c *askCommand) Execute(ctx context.Context, t bus.Transport, msg bus.Message, args []string) (bool, error) {
	if len(args) > 0 {
		return c.answer(ctx, t, msg, strings.Join(args, " "))
	}

	sent, err := t.Send(ctx, bus.OutboundMessage{
		ChatID:           msg.ChatID,
		Text:             "What would you like to ask?",
		ReplyToMessageID: msg.MessageID,
		ForceReply:       true,
	})
	if err != nil {
		return false, fmt.Errorf("send question prompt: %w", err)
	}

	c.router.ExpectReply(c, sent)
	return true, nil
}

func (c *askCommand) OnReply(ctx context.Context, t bus.Transport, msg bus.Message) (bool, error) {
	return c.answer(ctx, t, msg, msg.Text)
}

func (c *askCommand) answer(ctx context.Context, t bus.Transport, msg bus.Message, question string) (bool, error) {
	conversation := fmt.Sprintf("%s:%d", msg.Channel, msg.ChatID)
	answer, err := c.asker.Ask(ctx, conversation, question)
	if err != nil {
		return false, fmt.Errorf("ask assistant: %w", err)
	}

	if _, err := reply(ctx, t, msg, answer); err != nil {
		return false, err
	}
	return true, nil
}

type rateCommand struct {
	router *command.Router
}

func (c rateCommand) Execute(ctx context.Context, t bus.Transport, msg bus.Message, _ []string) (bool, error) {
	row := make([]bus.Button, 0, 5)
	for score := 1; score <= 5; score++ {
		row = append(row, bus.Button{Text: strconv.Itoa(score), Data: ratePrefix + strconv.Itoa(score)})
	}

	sent, err := t.Send(ctx, bus.OutboundMessage{
		ChatID:  msg.ChatID,
		Text:    "How would you rate this bot?",
		Buttons: [][]bus.Button{row},
	})
	if err != nil {
		return false, fmt.Errorf("send rating keyboard: %w", err)
	}

	c.router.ExpectCallback(command.CallbackFunc(onRating), sent)
	return true, nil
}

func onRating(ctx context.Context, t bus.Transport, cb bus.CallbackEvent) (bool, error) {
	score, err := parseRating(cb.Data)
	if err != nil {
		return false, err
	}

	if err := t.AnswerCallback(ctx, cb.ID, fmt.Sprintf("Thanks for the %d!", score)); err != nil {
		return false, err
	}
	if _, err := t.Send(ctx, bus.OutboundMessage{
		ChatID:           cb.Message.ChatID,
		Text:             fmt.Sprintf("You rated the bot %d/5.", score),
		ReplyToMessageID: cb.Message.MessageID,
	}); err != nil {
		return false, fmt.Errorf("send rating confirmation: %w", err)
	}
	return true, nil
}

func parseRating(data string) (int, error) {
	raw, ok := strings.CutPrefix(data, ratePrefix)
	if !ok {
		return 0, fmt.Errorf("unexpected rating data %q", data)
	}

	score, err := strconv.Atoi(raw)
	if err != nil || score < 1 || score > 5 {
		return 0, fmt.Errorf("invalid rating %q", raw)
	}
	return score, nil
}

type routingCommand struct {
	registry *command.Registry
}

func (c routingCommand) Execute(ctx context.Context, t bus.Transport, msg bus.Message, args []string) (bool, error) {
	if len(args) > 0 {
		switch strings.ToLower(args[0]) {
		case "on":
			c.registry.SetEnabled(true)
		case "off":
			c.registry.SetEnabled(false)
		default:
			_, err := reply(ctx, t, msg, "Usage: /routing on|off")
			return false, err
		}
	}

	state := "off"
	if c.registry.Enabled() {
		state = "on"
	}
	if _, err := reply(ctx, t, msg, "Routing is "+state+"."); err != nil {
		return false, err
	}
	return true, nil
}

type pendingCommand struct {
	tracker *command.Tracker
}

func (c pendingCommand) Execute(ctx context.Context, t bus.Transport, msg bus.Message, _ []string) (bool, error) {
	if _, err := reply(ctx, t, msg, fmt.Sprintf("Pending correlations: %d", c.tracker.Len())); err != nil {
		return false, err
	}
	return true, nil
}
