// Package handlers binds Telegram commands and buttons to the conversation engine.
package handlers

import (
	"context"
	"errors"
	"log/slog"
	"strconv"

	"github.com/m3rciful/kitwatch/core/conversation"
	"github.com/m3rciful/kitwatch/core/logger"
	tg "github.com/m3rciful/kitwatch/core/telegram"
	"github.com/m3rciful/kitwatch/core/telegram/callbacks"
	"github.com/m3rciful/kitwatch/core/telegram/commands"
	tghelpers "github.com/m3rciful/kitwatch/core/telegram/helpers"

	tele "gopkg.in/telebot.v4"
)

// Engine is the conversation surface the handlers drive.
type Engine interface {
	InProgress(userID int64) bool
	Start(ctx context.Context, ev conversation.Event) error
	BeginSearch(ctx context.Context, ev conversation.Event) error
	BeginSupport(ctx context.Context, ev conversation.Event) error
	BeginAdmin(ctx context.Context, ev conversation.Event) error
	Cancel(ctx context.Context, ev conversation.Event) error
	Favorite(ctx context.Context, ev conversation.Event) error
	Favorites(ctx context.Context, ev conversation.Event) error
	Handle(ctx context.Context, ev conversation.Event) error
}

// Handlers adapts telebot updates into engine events.
type Handlers struct {
	engine Engine
}

// New returns handlers driving engine.
func New(engine Engine) *Handlers {
	return &Handlers{engine: engine}
}

// Register adds every command and callback to reg.
func (h *Handlers) Register(reg *tg.Registry) error {
	reg.RegisterCommand("/start", commands.Command{
		Handler:     h.wrap(h.engine.Start),
		Description: "Show the main menu",
	})
	reg.RegisterCommand("/favorites", commands.Command{
		Handler:     h.wrap(h.engine.Favorites),
		Description: "List devices you follow",
	})
	reg.RegisterCommand("/manage", commands.Command{
		Handler:     h.wrap(h.engine.BeginAdmin),
		Description: "Administration",
		Hidden:      true,
		Aliases:     []string{"manage_routers"},
	})
	reg.RegisterCommand("/cancel", commands.Command{
		Handler:     h.wrap(h.engine.Cancel),
		Description: "Cancel the current action",
	})

	bindings := []struct {
		key string
		fn  func(context.Context, conversation.Event) error
	}{
		{conversation.KeyStartSearch, h.engine.BeginSearch},
		{conversation.KeyStartSupport, h.engine.BeginSupport},
		{conversation.KeyFavorite, h.engine.Favorite},
		{conversation.KeyAdmin, h.engine.Handle},
		{conversation.KeyPick, h.engine.Handle},
	}
	for _, b := range bindings {
		if err := reg.RegisterCallback(b.key, h.wrap(b.fn)); err != nil {
			return err
		}
	}
	reg.SetCallbackNotFound(h.wrap(h.engine.Handle))
	return nil
}

// InProgress reports whether the sender has an active workflow.
func (h *Handlers) InProgress(userID int64) bool {
	return h.engine.InProgress(userID)
}

// Handle feeds a typed message into the sender's workflow.
func (h *Handlers) Handle(c tele.Context) error {
	return h.wrap(h.engine.Handle)(c)
}

func (h *Handlers) wrap(fn func(context.Context, conversation.Event) error) tele.HandlerFunc {
	return func(c tele.Context) error {
		ctx := tghelpers.BuildContext(c)
		err := fn(ctx, EventFrom(c))
		if errors.Is(err, conversation.ErrNoTransition) {
			logger.LogEvent(ctx, logger.FSM, slog.LevelDebug, "fsm.no_transition",
				slog.String("status", "skip"),
				logger.Err(err),
			)
			return nil
		}
		return err
	}
}

// EventFrom reduces a telebot update to a conversation event.
func EventFrom(c tele.Context) conversation.Event {
	var ev conversation.Event
	if u := c.Sender(); u != nil {
		ev.UserID = u.ID
		ev.Username = u.Username
	}
	if chat := c.Chat(); chat != nil {
		ev.ChatID = chat.ID
	} else {
		// Inline-mode callbacks carry no chat; private chat ids equal user ids.
		ev.ChatID = ev.UserID
	}

	cb := c.Callback()
	if cb == nil {
		ev.Text = c.Text()
		return ev
	}
	ev.Key, ev.Payload = callbacks.Parse(cb)
	ev.CallbackID = cb.ID
	switch {
	case cb.Message != nil && cb.Message.Chat != nil:
		ev.Origin = conversation.MessageRef{
			ChatID:    cb.Message.Chat.ID,
			MessageID: strconv.Itoa(cb.Message.ID),
		}
	case cb.MessageID != "":
		ev.Origin = conversation.MessageRef{MessageID: cb.MessageID}
	}
	return ev
}
