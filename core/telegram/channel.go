package telegram

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/m3rciful/kitwatch/core/conversation"
	"github.com/m3rciful/kitwatch/core/notify"
	"github.com/m3rciful/kitwatch/core/telegram/keyboard"
	"github.com/m3rciful/kitwatch/core/telegram/middleware"
	"github.com/m3rciful/kitwatch/core/telegram/sender"

	tele "gopkg.in/telebot.v4"
)

// botAPI is the part of *tele.Bot the channel needs.
type botAPI interface {
	Send(to tele.Recipient, what interface{}, opts ...interface{}) (*tele.Message, error)
	Edit(msg tele.Editable, what interface{}, opts ...interface{}) (*tele.Message, error)
	Respond(c *tele.Callback, resp ...*tele.CallbackResponse) error
}

// Channel delivers conversation output and reminders through the Bot API.
// Outbound calls run on the sender dispatcher so transient failures are retried.
type Channel struct {
	bot        botAPI
	dispatcher *sender.Dispatcher
}

var (
	_ conversation.Channel = (*Channel)(nil)
	_ notify.Notifier      = (*Channel)(nil)
)

// NewChannel wraps bot. A nil dispatcher runs calls inline without retries.
func NewChannel(bot botAPI, dispatcher *sender.Dispatcher) *Channel {
	return &Channel{bot: bot, dispatcher: dispatcher}
}

// Send posts msg to chatID.
func (ch *Channel) Send(ctx context.Context, chatID int64, msg conversation.Message) (conversation.MessageRef, error) {
	var sent *tele.Message
	err := ch.do(ctx, "send", "sendMessage", func() error {
		m, err := ch.bot.Send(tele.ChatID(chatID), msg.Text, sendOptions(msg)...)
		sent = m
		return err
	})
	if err != nil {
		return conversation.MessageRef{}, err
	}
	middleware.RecordMessage(ctx, len(msg.Actions) > 0)
	ref := conversation.MessageRef{ChatID: chatID}
	if sent != nil {
		ref.MessageID = strconv.Itoa(sent.ID)
	}
	return ref, nil
}

// Edit replaces the text and buttons of a message sent earlier. Telegram
// rejects edits that change nothing; those count as success.
func (ch *Channel) Edit(ctx context.Context, ref conversation.MessageRef, msg conversation.Message) error {
	if ref.IsZero() {
		return errors.New("telegram: edit without message reference")
	}
	target := tele.StoredMessage{MessageID: ref.MessageID, ChatID: ref.ChatID}
	err := ch.do(ctx, "edit", "editMessageText", func() error {
		_, err := ch.bot.Edit(target, msg.Text, sendOptions(msg)...)
		return err
	})
	if err != nil && !errors.Is(err, tele.ErrMessageNotModified) {
		return err
	}
	middleware.RecordMessage(ctx, len(msg.Actions) > 0)
	return nil
}

// Ack answers a button press. It is not queued: Telegram expects the answer
// quickly and a lost ack only leaves a spinner on the client.
func (ch *Channel) Ack(_ context.Context, callbackID, text string) error {
	if callbackID == "" {
		return nil
	}
	return ch.bot.Respond(&tele.Callback{ID: callbackID}, &tele.CallbackResponse{Text: text})
}

// Forward sends msg to an administrative destination: a numeric chat id or a
// public @channel username.
func (ch *Channel) Forward(ctx context.Context, destination string, msg conversation.Message) error {
	to, err := parseDestination(destination)
	if err != nil {
		return err
	}
	return ch.do(ctx, "forward", "sendMessage", func() error {
		_, err := ch.bot.Send(to, msg.Text, sendOptions(msg)...)
		return err
	})
}

// Notify sends a reminder to a user's private chat.
func (ch *Channel) Notify(ctx context.Context, userID int64, text string) error {
	return ch.do(ctx, "notify", "sendMessage", func() error {
		_, err := ch.bot.Send(tele.ChatID(userID), text)
		return err
	})
}

func (ch *Channel) do(ctx context.Context, action, endpoint string, run func() error) error {
	if ch.dispatcher == nil {
		return run()
	}
	return ch.dispatcher.Do(ctx, action, endpoint, run)
}

func sendOptions(msg conversation.Message) []interface{} {
	opts := []interface{}{tele.NoPreview}
	if markup := markupFor(msg.Actions); markup != nil {
		opts = append(opts, markup)
	}
	return opts
}

func markupFor(actions [][]conversation.Action) *tele.ReplyMarkup {
	if len(actions) == 0 {
		return nil
	}
	rows := make([][]keyboard.InlineBtn, 0, len(actions))
	for _, row := range actions {
		btns := make([]keyboard.InlineBtn, 0, len(row))
		for _, a := range row {
			btns = append(btns, keyboard.InlineBtn{Text: a.Label, Unique: a.Key, Data: a.Payload})
		}
		rows = append(rows, btns)
	}
	return keyboard.InlineButtonsRows(rows...)
}

// destination is a channel username recipient.
type destination string

func (d destination) Recipient() string { return string(d) }

func parseDestination(raw string) (tele.Recipient, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, errors.New("telegram: empty forward destination")
	}
	if id, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return tele.ChatID(id), nil
	}
	if strings.HasPrefix(raw, "@") && len(raw) > 1 {
		return destination(raw), nil
	}
	return nil, fmt.Errorf("telegram: invalid forward destination %q", raw)
}
