package bus

import "context"

// Message is a transport-neutral inbound or sent chat message.
type Message struct {
	Channel   string   `json:"channel,omitempty"`
	ChatID    int64    `json:"chat_id"`
	MessageID int      `json:"message_id"`
	SenderID  int64    `json:"sender_id,omitempty"`
	Text      string   `json:"text,omitempty"`
	ReplyTo   *Message `json:"reply_to,omitempty"`
}

// CallbackEvent is a button press tied to an earlier message.
type CallbackEvent struct {
	ID       string   `json:"id"`
	Data     string   `json:"data,omitempty"`
	SenderID int64    `json:"sender_id,omitempty"`
	Message  *Message `json:"message,omitempty"`
}

// Button is one inline keyboard button; Data is echoed back in CallbackEvent.Data.
type Button struct {
	Text string `json:"text"`
	Data string `json:"data"`
}

type OutboundMessage struct {
	ChatID           int64      `json:"chat_id"`
	Text             string     `json:"text"`
	ReplyToMessageID int        `json:"reply_to_message_id,omitempty"`
	ForceReply       bool       `json:"force_reply,omitempty"`
	Buttons          [][]Button `json:"buttons,omitempty"`
}

// Transport is the handle a handler uses to talk back to the chat platform.
type Transport interface {
	Send(ctx context.Context, msg OutboundMessage) (Message, error)
	AnswerCallback(ctx context.Context, callbackID string, text string) error
}

// Update is one inbound event together with the transport it arrived on.
// Exactly one of Message and Callback is set.
type Update struct {
	Channel   string         `json:"channel"`
	Transport Transport      `json:"-"`
	Message   *Message       `json:"message,omitempty"`
	Callback  *CallbackEvent `json:"callback,omitempty"`
}

// ChatID returns the chat the update belongs to, or 0 when unknown.
func (u Update) ChatID() int64 {
	switch {
	case u.Message != nil:
		return u.Message.ChatID
	case u.Callback != nil && u.Callback.Message != nil:
		return u.Callback.Message.ChatID
	default:
		return 0
	}
}
