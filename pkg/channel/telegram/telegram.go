package telegram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"tgcommands/pkg/bus"
	"tgcommands/pkg/channel"
	"tgcommands/pkg/config"

	"github.com/mymmrac/telego"
	tu "github.com/mymmrac/telego/telegoutil"
)

const channelName = "telegram"
const messagePreviewLimit = 240

// botAPI is the subset of *telego.Bot the transport needs.
type botAPI interface {
	SendMessage(ctx context.Context, params *telego.SendMessageParams) (*telego.Message, error)
	AnswerCallbackQuery(ctx context.Context, params *telego.AnswerCallbackQueryParams) error
}

// Adapter turns Telegram updates into bus updates.
type Adapter struct {
	cfg       config.TelegramConfig
	allowFrom map[string]struct{}
	log       *slog.Logger
}

// NewAdapter validates Telegram configuration and constructs an adapter instance.
func NewAdapter(cfg config.TelegramConfig, log *slog.Logger) (*Adapter, error) {
	token := strings.TrimSpace(cfg.Token)
	if token == "" {
		return nil, errors.New("channels.telegram.token is required")
	}

	if log == nil {
		log = slog.Default()
	}

	return &Adapter{
		cfg:       cfg,
		allowFrom: allowFromSet(cfg.AllowFrom),
		log:       log.With("component", "channel.telegram"),
	}, nil
}

// Name returns the channel identifier used in bus updates and logs.
func (a *Adapter) Name() string {
	return channelName
}

// Run starts Telegram long polling and hands every message and callback query
// to handler.
func (a *Adapter) Run(ctx context.Context, handler channel.Handler) error {
	if handler == nil {
		return errors.New("handler is required")
	}

	bot, err := telego.NewBot(strings.TrimSpace(a.cfg.Token))
	if err != nil {
		return fmt.Errorf("initialize telegram bot: %w", err)
	}

	updates, err := bot.UpdatesViaLongPolling(ctx, nil)
	if err != nil {
		return fmt.Errorf("start long polling: %w", err)
	}

	transport := &Transport{bot: bot, log: a.log}
	a.log.Info("Telegram channel started")

	for {
		select {
		case <-ctx.Done():
			return nil
		case update, ok := <-updates:
			if !ok {
				if err := ctx.Err(); err != nil {
					return nil
				}
				return errors.New("telegram updates channel closed")
			}

			inbound, ok := a.convert(update)
			if !ok {
				continue
			}
			inbound.Transport = transport

			if err := handler(ctx, inbound); err != nil {
				a.log.Error("Failed to enqueue update", "update_id", update.UpdateID, "error", err)
			}
		}
	}
}

// convert maps one telego update to a bus update, dropping anything the
// router does not handle or that comes from a sender outside allow_from.
func (a *Adapter) convert(update telego.Update) (bus.Update, bool) {
	switch {
	case update.Message != nil:
		message := update.Message
		if message.From == nil {
			a.log.Debug("Ignoring message without sender")
			return bus.Update{}, false
		}
		if strings.TrimSpace(message.Text) == "" {
			return bus.Update{}, false
		}
		if !a.senderAllowed(strconv.FormatInt(message.From.ID, 10)) {
			a.log.Debug("Ignoring message from unauthorized sender", "sender_id", message.From.ID)
			return bus.Update{}, false
		}

		msg := toMessage(message)
		a.log.Info("Received message", "chat_id", msg.ChatID, "message_id", msg.MessageID, "content", previewText(msg.Text))
		return bus.Update{Channel: channelName, Message: &msg}, true

	case update.CallbackQuery != nil:
		query := update.CallbackQuery
		if !a.senderAllowed(strconv.FormatInt(query.From.ID, 10)) {
			a.log.Debug("Ignoring callback from unauthorized sender", "sender_id", query.From.ID)
			return bus.Update{}, false
		}

		cb := toCallback(query)
		a.log.Info("Received callback", "callback_id", cb.ID, "data", previewText(cb.Data))
		return bus.Update{Channel: channelName, Callback: &cb}, true

	default:
		return bus.Update{}, false
	}
}

// toMessage converts a telego message and the message it replies to.
func toMessage(message *telego.Message) bus.Message {
	msg := bus.Message{
		Channel:   channelName,
		ChatID:    message.Chat.ID,
		MessageID: message.MessageID,
		Text:      message.Text,
	}
	if message.From != nil {
		msg.SenderID = message.From.ID
	}
	if message.ReplyToMessage != nil {
		replyTo := bus.Message{
			Channel:   channelName,
			ChatID:    message.ReplyToMessage.Chat.ID,
			MessageID: message.ReplyToMessage.MessageID,
			Text:      message.ReplyToMessage.Text,
		}
		msg.ReplyTo = &replyTo
	}

	return msg
}

// toCallback converts a callback query. Inaccessible messages still carry the
// chat and message id the router correlates on.
func toCallback(query *telego.CallbackQuery) bus.CallbackEvent {
	cb := bus.CallbackEvent{
		ID:       query.ID,
		Data:     query.Data,
		SenderID: query.From.ID,
	}
	if query.Message != nil {
		msg := bus.Message{
			Channel:   channelName,
			ChatID:    query.Message.GetChat().ID,
			MessageID: query.Message.GetMessageID(),
		}
		if accessible, ok := query.Message.(*telego.Message); ok {
			msg.Text = accessible.Text
		}
		cb.Message = &msg
	}

	return cb
}

// Transport sends router output through the Telegram Bot API.
type Transport struct {
	bot botAPI
	log *slog.Logger
}

func (t *Transport) Send(ctx context.Context, out bus.OutboundMessage) (bus.Message, error) {
	params := tu.Message(tu.ID(out.ChatID), out.Text)
	if out.ReplyToMessageID > 0 {
		params.ReplyParameters = &telego.ReplyParameters{MessageID: out.ReplyToMessageID}
	}
	if markup := replyMarkup(out); markup != nil {
		params.ReplyMarkup = markup
	}

	t.log.Info("Sending message", "chat_id", out.ChatID, "content", previewText(out.Text))
	sent, err := t.bot.SendMessage(ctx, params)
	if err != nil {
		return bus.Message{}, fmt.Errorf("send telegram message: %w", err)
	}

	return toMessage(sent), nil
}

func (t *Transport) AnswerCallback(ctx context.Context, callbackID string, text string) error {
	params := &telego.AnswerCallbackQueryParams{CallbackQueryID: callbackID, Text: text}
	if err := t.bot.AnswerCallbackQuery(ctx, params); err != nil {
		return fmt.Errorf("answer callback query: %w", err)
	}
	return nil
}

// replyMarkup builds force-reply or inline keyboard markup; force reply wins
// when both are requested.
func replyMarkup(out bus.OutboundMessage) telego.ReplyMarkup {
	if out.ForceReply {
		return &telego.ForceReply{ForceReply: true}
	}
	if len(out.Buttons) == 0 {
		return nil
	}

	rows := make([][]telego.InlineKeyboardButton, 0, len(out.Buttons))
	for _, row := range out.Buttons {
		buttons := make([]telego.InlineKeyboardButton, 0, len(row))
		for _, button := range row {
			buttons = append(buttons, telego.InlineKeyboardButton{Text: button.Text, CallbackData: button.Data})
		}
		rows = append(rows, buttons)
	}

	return &telego.InlineKeyboardMarkup{InlineKeyboard: rows}
}

// senderAllowed checks whether a sender is permitted by allow_from config.
//
// When no allow list is configured, all senders are accepted.
func (a *Adapter) senderAllowed(senderID string) bool {
	if len(a.allowFrom) == 0 {
		return true
	}

	_, ok := a.allowFrom[strings.TrimSpace(senderID)]
	return ok
}

// allowFromSet normalizes allow_from values into a lookup set.
func allowFromSet(allowFrom []string) map[string]struct{} {
	if len(allowFrom) == 0 {
		return nil
	}

	allowed := make(map[string]struct{}, len(allowFrom))
	for _, value := range allowFrom {
		trimmed := strings.TrimSpace(value)
		if trimmed == "" {
			continue
		}
		allowed[trimmed] = struct{}{}
	}

	if len(allowed) == 0 {
		return nil
	}

	return allowed
}

// previewText returns a bounded log-safe preview of message text.
func previewText(text string) string {
	trimmed := strings.TrimSpace(text)
	if len(trimmed) <= messagePreviewLimit {
		return trimmed
	}

	return trimmed[:messagePreviewLimit] + "..."
}
