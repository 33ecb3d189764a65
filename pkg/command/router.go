package command

import (
	"context"
	"log/slog"
	"strconv"
	"strings"

	"tgcommands/pkg/bus"
)

// EventPublisher receives router notifications. Implementations must not
// block; *bus.MessageBus drops events for slow subscribers.
type EventPublisher interface {
	PublishEvent(ctx context.Context, event bus.Event) bool
}

// Router dispatches inbound messages and callbacks to registered handlers and
// tracked waiters. Handler errors and panics never escape the router.
type Router struct {
	registry *Registry
	tracker  *Tracker
	events   EventPublisher
	log      *slog.Logger
}

func NewRouter(registry *Registry, tracker *Tracker, events EventPublisher, log *slog.Logger) *Router {
	if log == nil {
		log = slog.Default()
	}
	if registry == nil {
		registry = NewRegistry(log)
	}
	if tracker == nil {
		tracker = NewTracker()
	}

	return &Router{
		registry: registry,
		tracker:  tracker,
		events:   events,
		log:      log.With("component", "command.router"),
	}
}

func (r *Router) Registry() *Registry { return r.registry }

func (r *Router) Tracker() *Tracker { return r.tracker }

// ExpectReply makes w receive the next reply to sent.
func (r *Router) ExpectReply(w ReplyWaiter, sent bus.Message) {
	r.tracker.ExpectReply(w, sent.ChatID, sent.MessageID)
	r.log.Debug("Expecting reply", "chat_id", sent.ChatID, "message_id", sent.MessageID, "waiter_id", w.ID())
}

// ExpectCallback makes w receive the next button press on sent.
func (r *Router) ExpectCallback(w CallbackWaiter, sent bus.Message) {
	r.tracker.ExpectCallback(w, sent.ChatID, sent.MessageID)
	r.log.Debug("Expecting callback", "chat_id", sent.ChatID, "message_id", sent.MessageID)
}

// Process routes one update to ProcessMessage or ProcessCallback.
func (r *Router) Process(ctx context.Context, update bus.Update) bool {
	switch {
	case update.Message != nil:
		return r.ProcessMessage(ctx, update.Transport, *update.Message)
	case update.Callback != nil:
		return r.ProcessCallback(ctx, update.Transport, *update.Callback)
	default:
		return false
	}
}

// ProcessMessage treats "/..." text as a command and anything else as a
// candidate reply to a tracked message.
func (r *Router) ProcessMessage(ctx context.Context, t bus.Transport, msg bus.Message) bool {
	if msg.Text == "" {
		return false
	}

	if !IsCommand(msg.Text) {
		return r.processReply(ctx, t, msg)
	}

	return r.processCommand(ctx, t, msg)
}

func (r *Router) processReply(ctx context.Context, t bus.Transport, msg bus.Message) bool {
	if msg.ReplyTo == nil {
		return false
	}

	waiter, ok := r.tracker.ConsumeReply(msg.ChatID, msg.ReplyTo.MessageID)
	if !ok {
		return false
	}

	handled, err := safeCall(func() (bool, error) {
		return waiter.OnReply(ctx, t, msg)
	})
	if err != nil {
		r.log.Error("Failed to process reply", "chat_id", msg.ChatID, "message_id", msg.ReplyTo.MessageID, "waiter_id", waiter.ID(), "error", err)
		r.publish(ctx, bus.Event{
			Type:    bus.EventReplyFailed,
			Channel: msg.Channel,
			ChatID:  msg.ChatID,
			Payload: map[string]string{bus.PayloadMessageID: strconv.Itoa(msg.ReplyTo.MessageID)},
			Err:     err,
		})
		return false
	}

	return handled
}

func (r *Router) processCommand(ctx context.Context, t bus.Transport, msg bus.Message) bool {
	params := Parse(msg.Text)

	if !r.registry.Enabled() && !r.registry.IsDebug(params.Name) {
		r.log.Debug("Dropping command while routing is disabled", "command", params.Name, "chat_id", msg.ChatID)
		return false
	}

	handler, ok := r.registry.Lookup(params.Name)
	if !ok {
		r.log.Debug("Command not found", "command", params.Name, "chat_id", msg.ChatID)
		r.publish(ctx, commandEvent(bus.EventCommandNotFound, msg, params, nil))
		return false
	}

	handled, err := safeCall(func() (bool, error) {
		return handler.Execute(ctx, t, msg, params.Arguments)
	})
	if err != nil {
		r.log.Error("Command failed", "command", params.Name, "chat_id", msg.ChatID, "error", err)
		r.publish(ctx, commandEvent(bus.EventCommandFailed, msg, params, err))
		return false
	}

	return handled
}

// ProcessCallback delivers a button press to the callback waiter tracked for
// the message it was pressed on.
func (r *Router) ProcessCallback(ctx context.Context, t bus.Transport, cb bus.CallbackEvent) bool {
	if cb.Message == nil {
		return false
	}

	chatID, messageID := cb.Message.ChatID, cb.Message.MessageID
	waiter, ok := r.tracker.ConsumeCallback(chatID, messageID)
	if !ok {
		r.publish(ctx, callbackEvent(bus.EventCallbackNotFound, cb, nil))
		return false
	}

	handled, err := safeCall(func() (bool, error) {
		return waiter.OnCallback(ctx, t, cb)
	})
	if err != nil {
		r.log.Error("Failed to process callback", "chat_id", chatID, "message_id", messageID, "error", err)
		r.publish(ctx, callbackEvent(bus.EventCallbackFailed, cb, err))
		return false
	}

	return handled
}

func (r *Router) publish(ctx context.Context, event bus.Event) {
	if r.events == nil {
		return
	}
	if !r.events.PublishEvent(ctx, event) {
		r.log.Debug("Notification not delivered", "type", event.Type)
	}
}

func commandEvent(eventType bus.EventType, msg bus.Message, params Parameters, err error) bus.Event {
	return bus.Event{
		Type:      eventType,
		Channel:   msg.Channel,
		ChatID:    msg.ChatID,
		Command:   params.Name,
		Arguments: params.Arguments,
		Payload: map[string]string{
			bus.PayloadCommand:   params.Name,
			bus.PayloadArguments: strings.Join(params.Arguments, " "),
			bus.PayloadMessageID: strconv.Itoa(msg.MessageID),
		},
		Err: err,
	}
}

func callbackEvent(eventType bus.EventType, cb bus.CallbackEvent, err error) bus.Event {
	return bus.Event{
		Type:    eventType,
		Channel: cb.Message.Channel,
		ChatID:  cb.Message.ChatID,
		Payload: map[string]string{
			bus.PayloadMessageID: strconv.Itoa(cb.Message.MessageID),
			bus.PayloadData:      cb.Data,
		},
		Err: err,
	}
}

// safeCall runs fn and turns a panic into a *PanicError.
func safeCall(fn func() (bool, error)) (handled bool, err error) {
	defer func() {
		if recovered := recover(); recovered != nil {
			handled, err = false, &PanicError{Value: recovered}
		}
	}()

	return fn()
}
