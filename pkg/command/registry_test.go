package command

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tgcommands/pkg/bus"
)

type askCommand struct {
	id string
}

func (c askCommand) Execute(context.Context, bus.Transport, bus.Message, []string) (bool, error) {
	return true, nil
}

func (c askCommand) ID() string { return c.id }

func (c askCommand) OnReply(context.Context, bus.Transport, bus.Message) (bool, error) {
	return true, nil
}

func okHandler() Handler {
	return HandlerFunc(func(context.Context, bus.Transport, bus.Message, []string) (bool, error) {
		return true, nil
	})
}

func TestRegistryRejectsDuplicateNames(t *testing.T) {
	t.Parallel()

	reg := NewRegistry(nil)
	require.NoError(t, reg.Register(Descriptor{Name: "Start", Description: "first"}, okHandler()))

	err := reg.Register(Descriptor{Name: "start", Description: "second"}, okHandler())
	require.ErrorIs(t, err, ErrDuplicateCommand)

	cmds := reg.Commands()
	require.Len(t, cmds, 1)
	assert.Equal(t, "first", cmds[0].Description)
	assert.Equal(t, "start", cmds[0].Name)
}

func TestRegistryValidatesInput(t *testing.T) {
	t.Parallel()

	reg := NewRegistry(nil)
	assert.ErrorIs(t, reg.Register(Descriptor{Name: "  "}, okHandler()), ErrEmptyCommandName)
	assert.ErrorIs(t, reg.Register(Descriptor{Name: "x"}, nil), ErrNilHandler)
	assert.ErrorIs(t, reg.RegisterReplyWaiter(askCommand{}), ErrEmptyWaiterID)
}

func TestRegistryLookupIsCaseInsensitive(t *testing.T) {
	t.Parallel()

	reg := NewRegistry(nil)
	require.NoError(t, reg.Register(Descriptor{Name: "echo"}, okHandler()))

	_, ok := reg.Lookup("ECHO")
	assert.True(t, ok)
	_, ok = reg.Lookup("nosuch")
	assert.False(t, ok)
}

func TestRegistryAutoRegistersReplyWaiters(t *testing.T) {
	t.Parallel()

	reg := NewRegistry(nil)
	require.NoError(t, reg.Register(Descriptor{Name: "ask"}, askCommand{id: "ask.question"}))

	waiter, ok := reg.ReplyWaiter("ask.question")
	require.True(t, ok)
	assert.Equal(t, "ask.question", waiter.ID())

	// A second command reusing the waiter id keeps its command but not the waiter.
	require.NoError(t, reg.Register(Descriptor{Name: "ask2"}, askCommand{id: "ask.question"}))
	_, ok = reg.Lookup("ask2")
	assert.True(t, ok)
	assert.ErrorIs(t, reg.RegisterReplyWaiter(askCommand{id: "ask.question"}), ErrDuplicateReplyWaiter)
}

func TestRegistryDebugAndEnabled(t *testing.T) {
	t.Parallel()

	reg := NewRegistry(nil)
	require.NoError(t, reg.Register(Descriptor{Name: "routing", Debug: true}, okHandler()))
	require.NoError(t, reg.Register(Descriptor{Name: "help"}, okHandler()))

	assert.True(t, reg.IsDebug("routing"))
	assert.False(t, reg.IsDebug("help"))
	assert.False(t, reg.IsDebug("nosuch"))

	assert.True(t, reg.Enabled())
	reg.SetEnabled(false)
	assert.False(t, reg.Enabled())
}

func TestRegistryCommandsSorted(t *testing.T) {
	t.Parallel()

	reg := NewRegistry(nil)
	for _, name := range []string{"start", "echo", "help"} {
		require.NoError(t, reg.Register(Descriptor{Name: name}, okHandler()))
	}

	names := make([]string, 0, 3)
	for _, desc := range reg.Commands() {
		names = append(names, desc.Name)
	}
	assert.Equal(t, []string{"echo", "help", "start"}, names)
}
