package handlers

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tgcommands/pkg/bus"
	"tgcommands/pkg/command"
)

type fakeTransport struct {
	mu       sync.Mutex
	nextID   int
	sent     []bus.OutboundMessage
	answered []string
}

func (f *fakeTransport) Send(_ context.Context, msg bus.OutboundMessage) (bus.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	f.sent = append(f.sent, msg)
	return bus.Message{Channel: "test", ChatID: msg.ChatID, MessageID: 100 + f.nextID, Text: msg.Text}, nil
}

func (f *fakeTransport) AnswerCallback(_ context.Context, _ string, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.answered = append(f.answered, text)
	return nil
}

func (f *fakeTransport) last() bus.OutboundMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sent[len(f.sent)-1]
}

type fakeAsker struct {
	conversations []string
	err           error
}

func (f *fakeAsker) Ask(_ context.Context, conversation string, prompt string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.conversations = append(f.conversations, conversation)
	return "answer to " + prompt, nil
}

func newRouter(t *testing.T, asker Asker) *command.Router {
	t.Helper()

	router := command.NewRouter(command.NewRegistry(nil), command.NewTracker(), nil, nil)
	require.NoError(t, Register(router, asker))
	return router
}

func text(messageID int, body string) bus.Message {
	return bus.Message{Channel: "test", ChatID: 7, MessageID: messageID, Text: body}
}

func TestRegisterSkipsAskWithoutAssistant(t *testing.T) {
	t.Parallel()

	router := newRouter(t, nil)
	_, ok := router.Registry().Lookup("ask")
	assert.False(t, ok)

	router = newRouter(t, &fakeAsker{})
	_, ok = router.Registry().Lookup("ask")
	assert.True(t, ok)
	_, ok = router.Registry().ReplyWaiter("ask")
	assert.True(t, ok, "ask should be registered as a reply waiter")
}

func TestRegisterTwiceReportsDuplicates(t *testing.T) {
	t.Parallel()

	router := newRouter(t, nil)
	err := Register(router, nil)
	assert.ErrorIs(t, err, command.ErrDuplicateCommand)
}

func TestStartEchoesDeepLinkPayload(t *testing.T) {
	t.Parallel()

	router := newRouter(t, nil)
	transport := &fakeTransport{}

	require.True(t, router.ProcessMessage(context.Background(), transport, text(1, "/start_ref_42")))
	assert.Contains(t, transport.last().Text, `"ref_42"`)
	assert.Equal(t, 1, transport.last().ReplyToMessageID)

	require.True(t, router.ProcessMessage(context.Background(), transport, text(2, "/start")))
	assert.Contains(t, transport.last().Text, "/help")
}

func TestEcho(t *testing.T) {
	t.Parallel()

	router := newRouter(t, nil)
	transport := &fakeTransport{}

	require.True(t, router.ProcessMessage(context.Background(), transport, text(1, "/echo hello world")))
	assert.Equal(t, "hello world", transport.last().Text)

	assert.False(t, router.ProcessMessage(context.Background(), transport, text(2, "/echo")))
	assert.True(t, strings.HasPrefix(transport.last().Text, "Usage"))
}

func TestHelpListsOnlyPublicCommands(t *testing.T) {
	t.Parallel()

	router := newRouter(t, &fakeAsker{})
	transport := &fakeTransport{}

	require.True(t, router.ProcessMessage(context.Background(), transport, text(1, "/help")))
	help := transport.last().Text
	assert.Contains(t, help, "/ask - Ask the assistant a question")
	assert.Contains(t, help, "/echo")
	assert.NotContains(t, help, "/routing")
	assert.NotContains(t, help, "/pending")
}

func TestAskWaitsForReply(t *testing.T) {
	t.Parallel()

	asker := &fakeAsker{}
	router := newRouter(t, asker)
	transport := &fakeTransport{}
	ctx := context.Background()

	require.True(t, router.ProcessMessage(ctx, transport, text(1, "/ask")))
	prompt := transport.last()
	assert.True(t, prompt.ForceReply)
	assert.Equal(t, 1, router.Tracker().Len())

	question := text(2, "why is the sky blue")
	question.ReplyTo = &bus.Message{ChatID: 7, MessageID: 101}
	require.True(t, router.ProcessMessage(ctx, transport, question))
	assert.Equal(t, "answer to why is the sky blue", transport.last().Text)
	assert.Equal(t, []string{"test:7"}, asker.conversations)
	assert.Equal(t, 0, router.Tracker().Len())

	assert.False(t, router.ProcessMessage(ctx, transport, question), "reply waiter fires once")
}

func TestAskInlineQuestion(t *testing.T) {
	t.Parallel()

	router := newRouter(t, &fakeAsker{})
	transport := &fakeTransport{}

	require.True(t, router.ProcessMessage(context.Background(), transport, text(1, "/ask what time is it")))
	assert.Equal(t, "answer to what time is it", transport.last().Text)
	assert.Equal(t, 0, router.Tracker().Len())
}

func TestAskFailureIsReported(t *testing.T) {
	t.Parallel()

	events := &recordingPublisher{}
	router := command.NewRouter(command.NewRegistry(nil), command.NewTracker(), events, nil)
	require.NoError(t, Register(router, &fakeAsker{err: errors.New("offline")}))

	assert.False(t, router.ProcessMessage(context.Background(), &fakeTransport{}, text(1, "/ask hi")))
	require.Len(t, events.events, 1)
	assert.Equal(t, bus.EventCommandFailed, events.events[0].Type)
	assert.Contains(t, events.events[0].Error, "offline")
}

func TestRateHandlesButtonPress(t *testing.T) {
	t.Parallel()

	router := newRouter(t, nil)
	transport := &fakeTransport{}
	ctx := context.Background()

	require.True(t, router.ProcessMessage(ctx, transport, text(1, "/rate")))
	keyboard := transport.last()
	require.Len(t, keyboard.Buttons, 1)
	require.Len(t, keyboard.Buttons[0], 5)
	assert.Equal(t, "rate:4", keyboard.Buttons[0][3].Data)

	press := bus.CallbackEvent{ID: "cb1", Data: "rate:4", Message: &bus.Message{Channel: "test", ChatID: 7, MessageID: 101}}
	require.True(t, router.ProcessCallback(ctx, transport, press))
	assert.Equal(t, []string{"Thanks for the 4!"}, transport.answered)
	assert.Equal(t, "You rated the bot 4/5.", transport.last().Text)

	assert.False(t, router.ProcessCallback(ctx, transport, press), "callback waiter fires once")
}

func TestParseRating(t *testing.T) {
	t.Parallel()

	score, err := parseRating("rate:5")
	require.NoError(t, err)
	assert.Equal(t, 5, score)

	for _, data := range []string{"rate:0", "rate:6", "rate:x", "vote:3"} {
		_, err := parseRating(data)
		assert.Error(t, err, data)
	}
}

func TestRoutingToggle(t *testing.T) {
	t.Parallel()

	router := newRouter(t, nil)
	transport := &fakeTransport{}
	ctx := context.Background()

	require.True(t, router.ProcessMessage(ctx, transport, text(1, "/routing off")))
	assert.False(t, router.Registry().Enabled())
	assert.Equal(t, "Routing is off.", transport.last().Text)

	assert.False(t, router.ProcessMessage(ctx, transport, text(2, "/echo ignored")))

	require.True(t, router.ProcessMessage(ctx, transport, text(3, "/pending")))
	assert.Equal(t, "Pending correlations: 0", transport.last().Text)

	require.True(t, router.ProcessMessage(ctx, transport, text(4, "/routing on")))
	assert.True(t, router.Registry().Enabled())
	require.True(t, router.ProcessMessage(ctx, transport, text(5, "/echo back")))
	assert.Equal(t, "back", transport.last().Text)
}

type recordingPublisher struct {
	events []bus.Event
}

func (p *recordingPublisher) PublishEvent(_ context.Context, event bus.Event) bool {
	if event.Err != nil {
		event.Error = event.Err.Error()
	}
	p.events = append(p.events, event)
	return true
}
