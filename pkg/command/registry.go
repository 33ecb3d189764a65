package command

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
)

type registeredCommand struct {
	descriptor Descriptor
	handler    Handler
}

// Registry maps command names to handlers and reply-waiter ids to waiters.
// It is filled at startup and only read while routing.
type Registry struct {
	log     *slog.Logger
	enabled atomic.Bool

	mu       sync.RWMutex
	commands map[string]registeredCommand
	waiters  map[string]ReplyWaiter
}

func NewRegistry(log *slog.Logger) *Registry {
	if log == nil {
		log = slog.Default()
	}

	r := &Registry{
		log:      log.With("component", "command.registry"),
		commands: make(map[string]registeredCommand),
		waiters:  make(map[string]ReplyWaiter),
	}
	r.enabled.Store(true)

	return r
}

// Register adds a command. A name that is already taken is logged and the
// later registration discarded. Handlers that also implement ReplyWaiter are
// registered as reply waiters under their ID.
func (r *Registry) Register(desc Descriptor, handler Handler) error {
	if handler == nil {
		return ErrNilHandler
	}

	desc.Name = strings.ToLower(strings.TrimSpace(desc.Name))
	if desc.Name == "" {
		return ErrEmptyCommandName
	}

	r.mu.Lock()
	if _, exists := r.commands[desc.Name]; exists {
		r.mu.Unlock()
		r.log.Warn("Skipping command: name already registered", "command", desc.Name)
		return fmt.Errorf("%w: %s", ErrDuplicateCommand, desc.Name)
	}
	r.commands[desc.Name] = registeredCommand{descriptor: desc, handler: handler}
	r.mu.Unlock()

	if waiter, ok := handler.(ReplyWaiter); ok {
		if err := r.RegisterReplyWaiter(waiter); err != nil {
			r.log.Warn("Command registered without its reply waiter", "command", desc.Name, "error", err)
		}
	}

	r.log.Info("Added command", "command", desc.Name, "debug", desc.Debug)
	return nil
}

// RegisterReplyWaiter adds a reply waiter under its ID; duplicates are
// logged and discarded.
func (r *Registry) RegisterReplyWaiter(waiter ReplyWaiter) error {
	if waiter == nil {
		return ErrNilHandler
	}

	id := waiter.ID()
	if strings.TrimSpace(id) == "" {
		return ErrEmptyWaiterID
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.waiters[id]; exists {
		r.log.Warn("Skipping reply waiter: id already registered", "waiter_id", id)
		return fmt.Errorf("%w: %s", ErrDuplicateReplyWaiter, id)
	}
	r.waiters[id] = waiter

	return nil
}

func (r *Registry) Lookup(name string) (Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	cmd, ok := r.commands[strings.ToLower(name)]
	if !ok {
		return nil, false
	}
	return cmd.handler, true
}

func (r *Registry) ReplyWaiter(id string) (ReplyWaiter, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	waiter, ok := r.waiters[id]
	return waiter, ok
}

// IsDebug reports whether name is a registered debug-only command.
func (r *Registry) IsDebug(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	cmd, ok := r.commands[strings.ToLower(name)]
	return ok && cmd.descriptor.Debug
}

// Commands returns all registered descriptors sorted by name.
func (r *Registry) Commands() []Descriptor {
	r.mu.RLock()
	descriptors := make([]Descriptor, 0, len(r.commands))
	for _, cmd := range r.commands {
		descriptors = append(descriptors, cmd.descriptor)
	}
	r.mu.RUnlock()

	sort.Slice(descriptors, func(i, j int) bool {
		return descriptors[i].Name < descriptors[j].Name
	})

	return descriptors
}

// Enabled reports whether non-debug commands are routed.
func (r *Registry) Enabled() bool {
	return r.enabled.Load()
}

func (r *Registry) SetEnabled(enabled bool) {
	if r.enabled.Swap(enabled) != enabled {
		r.log.Info("Command routing toggled", "enabled", enabled)
	}
}
