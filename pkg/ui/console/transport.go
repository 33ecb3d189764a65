package console

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	tea "github.com/charmbracelet/bubbletea"

	"tgcommands/pkg/bus"
	"tgcommands/pkg/command"
)

const (
	channelName = "console"

	// ChatID is the single chat the console simulates.
	ChatID int64 = 1
	userID int64 = 1
)

// botMessageMsg carries a message the bot sent into the UI.
type botMessageMsg struct {
	message    bus.Message
	forceReply bool
	buttons    [][]bus.Button
}

// noticeMsg is a callback answer or router notification shown inline.
type noticeMsg struct {
	text string
}

// Transport is the bus.Transport for the local console. Every sent message
// gets the next message id in the one simulated chat.
type Transport struct {
	emit func(tea.Msg)

	mu           sync.Mutex
	nextID       int
	lastBot      *bus.Message
	lastPrompt   *bus.Message
	lastKeyboard *botMessageMsg
}

// NewTransport builds a transport that forwards bot output to emit, usually
// (*tea.Program).Send.
func NewTransport(emit func(tea.Msg)) *Transport {
	if emit == nil {
		emit = func(tea.Msg) {}
	}
	return &Transport{emit: emit}
}

func (t *Transport) Send(_ context.Context, out bus.OutboundMessage) (bus.Message, error) {
	if out.ChatID != ChatID {
		return bus.Message{}, fmt.Errorf("unknown console chat %d", out.ChatID)
	}

	t.mu.Lock()
	sent := bus.Message{Channel: channelName, ChatID: ChatID, MessageID: t.allocateIDLocked(), Text: out.Text}
	msg := botMessageMsg{message: sent, forceReply: out.ForceReply, buttons: out.Buttons}
	t.lastBot = &sent
	if out.ForceReply {
		t.lastPrompt = &sent
	}
	if len(out.Buttons) > 0 {
		t.lastKeyboard = &msg
	}
	t.mu.Unlock()

	t.emit(msg)
	return sent, nil
}

func (t *Transport) AnswerCallback(_ context.Context, _ string, text string) error {
	if strings.TrimSpace(text) != "" {
		t.emit(noticeMsg{text: text})
	}
	return nil
}

func (t *Transport) allocateIDLocked() int {
	t.nextID++
	return t.nextID
}

// Session turns console input into router calls.
//
//	/cmd args   a command
//	!data       press the button carrying data on the latest keyboard
//	anything    a reply to the latest force-reply prompt, else the latest bot message
type Session struct {
	router    *command.Router
	transport *Transport
}

func NewSession(router *command.Router, transport *Transport) *Session {
	return &Session{router: router, transport: transport}
}

func (s *Session) Submit(ctx context.Context, input string) (bool, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return false, errors.New("empty input")
	}

	if data, ok := strings.CutPrefix(input, "!"); ok {
		cb, err := s.press(data)
		if err != nil {
			return false, err
		}
		return s.router.ProcessCallback(ctx, s.transport, cb), nil
	}

	return s.router.ProcessMessage(ctx, s.transport, s.userMessage(input)), nil
}

func (s *Session) userMessage(text string) bus.Message {
	t := s.transport
	t.mu.Lock()
	defer t.mu.Unlock()

	msg := bus.Message{Channel: channelName, ChatID: ChatID, MessageID: t.allocateIDLocked(), SenderID: userID, Text: text}
	if command.IsCommand(text) {
		return msg
	}

	target := t.lastPrompt
	if target == nil {
		target = t.lastBot
	}
	if target != nil {
		replyTo := *target
		msg.ReplyTo = &replyTo
	}
	t.lastPrompt = nil

	return msg
}

func (s *Session) press(data string) (bus.CallbackEvent, error) {
	data = strings.TrimSpace(data)

	t := s.transport
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.lastKeyboard == nil {
		return bus.CallbackEvent{}, errors.New("no keyboard to press")
	}

	for _, row := range t.lastKeyboard.buttons {
		for _, button := range row {
			if button.Data == data || strings.EqualFold(button.Text, data) {
				origin := t.lastKeyboard.message
				return bus.CallbackEvent{
					ID:       fmt.Sprintf("console-%d", t.allocateIDLocked()),
					Data:     button.Data,
					SenderID: userID,
					Message:  &origin,
				}, nil
			}
		}
	}

	return bus.CallbackEvent{}, fmt.Errorf("no button %q on the latest keyboard", data)
}
