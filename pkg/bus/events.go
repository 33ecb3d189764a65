package bus

import (
	"context"
	"sync"
	"time"
)

type EventType string

const (
	EventCommandNotFound  EventType = "command_not_found"
	EventCommandFailed    EventType = "command_failed"
	EventReplyFailed      EventType = "reply_failed"
	EventCallbackNotFound EventType = "callback_not_found"
	EventCallbackFailed   EventType = "callback_failed"
)

// Payload keys used by router notifications.
const (
	PayloadCommand   = "command"
	PayloadArguments = "arguments"
	PayloadMessageID = "message_id"
	PayloadData      = "data"
)

type Event struct {
	Type      EventType         `json:"type"`
	At        time.Time         `json:"at"`
	Channel   string            `json:"channel,omitempty"`
	ChatID    int64             `json:"chat_id,omitempty"`
	Command   string            `json:"command,omitempty"`
	Arguments []string          `json:"arguments,omitempty"`
	Payload   map[string]string `json:"payload,omitempty"`
	Error     string            `json:"error,omitempty"`
	Err       error             `json:"-"`
}

// PublishEvent delivers event to every subscriber without blocking. Subscribers
// whose buffer is full miss the event.
func (mb *MessageBus) PublishEvent(ctx context.Context, event Event) bool {
	if ctx == nil {
		ctx = context.Background()
	}

	if event.At.IsZero() {
		event.At = time.Now().UTC()
	}
	if event.Err != nil && event.Error == "" {
		event.Error = event.Err.Error()
	}

	select {
	case <-ctx.Done():
		return false
	case <-mb.done:
		return false
	default:
	}

	mb.mu.RLock()
	defer mb.mu.RUnlock()

	for _, ch := range mb.eventSubscribers {
		select {
		case ch <- event:
		default:
			// Drop instead of blocking the router on slow subscribers.
		}
	}

	return true
}

func (mb *MessageBus) SubscribeEvents(ctx context.Context, buffer int) (<-chan Event, func()) {
	if ctx == nil {
		ctx = context.Background()
	}
	if buffer <= 0 {
		buffer = defaultBufferSize
	}

	ch := make(chan Event, buffer)

	mb.mu.Lock()
	select {
	case <-mb.done:
		mb.mu.Unlock()
		close(ch)
		return ch, func() {}
	default:
	}

	id := mb.nextEventSubscriberID
	mb.nextEventSubscriberID++
	mb.eventSubscribers[id] = ch
	mb.mu.Unlock()

	var once sync.Once
	unsubscribe := func() {
		once.Do(func() {
			mb.mu.Lock()
			if eventCh, ok := mb.eventSubscribers[id]; ok {
				delete(mb.eventSubscribers, id)
				close(eventCh)
			}
			mb.mu.Unlock()
		})
	}

	go func() {
		select {
		case <-ctx.Done():
			unsubscribe()
		case <-mb.done:
			unsubscribe()
		}
	}()

	return ch, unsubscribe
}

// Listen runs fn for every event on its own goroutine until ctx ends or the
// bus closes. fn never runs on the publisher's goroutine.
func (mb *MessageBus) Listen(ctx context.Context, buffer int, fn func(Event)) func() {
	events, unsubscribe := mb.SubscribeEvents(ctx, buffer)
	go func() {
		for event := range events {
			fn(event)
		}
	}()

	return unsubscribe
}
