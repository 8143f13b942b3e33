package handlers

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/kitwatch/core/conversation"
	tg "github.com/m3rciful/kitwatch/core/telegram"
)

type call struct {
	op string
	ev conversation.Event
}

type fakeEngine struct {
	calls     []call
	active    map[int64]bool
	handleErr error
}

func (f *fakeEngine) record(op string) func(context.Context, conversation.Event) error {
	return func(_ context.Context, ev conversation.Event) error {
		f.calls = append(f.calls, call{op: op, ev: ev})
		if op == "handle" {
			return f.handleErr
		}
		return nil
	}
}

func (f *fakeEngine) InProgress(userID int64) bool { return f.active[userID] }
func (f *fakeEngine) Start(ctx context.Context, ev conversation.Event) error {
	return f.record("start")(ctx, ev)
}
func (f *fakeEngine) BeginSearch(ctx context.Context, ev conversation.Event) error {
	return f.record("search")(ctx, ev)
}
func (f *fakeEngine) BeginSupport(ctx context.Context, ev conversation.Event) error {
	return f.record("support")(ctx, ev)
}
func (f *fakeEngine) BeginAdmin(ctx context.Context, ev conversation.Event) error {
	return f.record("admin")(ctx, ev)
}
func (f *fakeEngine) Cancel(ctx context.Context, ev conversation.Event) error {
	return f.record("cancel")(ctx, ev)
}
func (f *fakeEngine) Favorite(ctx context.Context, ev conversation.Event) error {
	return f.record("favorite")(ctx, ev)
}
func (f *fakeEngine) Favorites(ctx context.Context, ev conversation.Event) error {
	return f.record("favorites")(ctx, ev)
}
func (f *fakeEngine) Handle(ctx context.Context, ev conversation.Event) error {
	return f.record("handle")(ctx, ev)
}

func offlineBot(t *testing.T) *tele.Bot {
	t.Helper()
	bot, err := tele.NewBot(tele.Settings{Offline: true})
	require.NoError(t, err)
	return bot
}

func TestRegisterBindsEverything(t *testing.T) {
	eng := &fakeEngine{}
	reg := tg.NewRegistry()
	require.NoError(t, New(eng).Register(reg))

	for _, name := range []string{"/start", "/favorites", "/manage", "/cancel"} {
		_, _, ok := reg.LookupCommand(name)
		assert.True(t, ok, name)
	}
	_, _, ok := reg.LookupCommand("/manage_routers")
	assert.True(t, ok)
	assert.Equal(t, 5, reg.CallbackCount())
	for _, key := range []string{"admin", "fav", "pick", "start_search", "start_support"} {
		_, found := reg.GetCallback(key)
		assert.True(t, found, key)
	}

	visible := reg.ListCommands(true)
	for _, cmd := range visible {
		assert.NotEqual(t, "/manage", cmd.Text)
	}

	// A second registration collides with the first.
	assert.Error(t, New(eng).Register(reg))
}

func TestCallbacksReachEngine(t *testing.T) {
	eng := &fakeEngine{}
	reg := tg.NewRegistry()
	require.NoError(t, New(eng).Register(reg))
	bot := offlineBot(t)

	cases := []struct {
		key string
		op  string
	}{
		{conversation.KeyStartSearch, "search"},
		{conversation.KeyStartSupport, "support"},
		{conversation.KeyFavorite, "favorite"},
		{conversation.KeyAdmin, "handle"},
		{conversation.KeyPick, "handle"},
	}
	for i, tc := range cases {
		h, ok := reg.GetCallback(tc.key)
		require.True(t, ok, tc.key)
		c := bot.NewContext(tele.Update{ID: i, Callback: &tele.Callback{
			ID:     fmt.Sprintf("cb-%d", i),
			Sender: &tele.User{ID: 5},
			Unique: tc.key,
			Data:   "KIT-1",
		}})
		require.NoError(t, h(c))
		last := eng.calls[len(eng.calls)-1]
		assert.Equal(t, tc.op, last.op)
		assert.Equal(t, tc.key, last.ev.Key)
		assert.Equal(t, "KIT-1", last.ev.Payload)
	}
}

func TestNoTransitionIsSwallowed(t *testing.T) {
	eng := &fakeEngine{handleErr: fmt.Errorf("%w: stale", conversation.ErrNoTransition)}
	h := New(eng)
	bot := offlineBot(t)

	c := bot.NewContext(tele.Update{Message: &tele.Message{
		Sender: &tele.User{ID: 5},
		Chat:   &tele.Chat{ID: 5},
		Text:   "hello",
	}})
	assert.NoError(t, h.Handle(c))

	eng.handleErr = errors.New("store down")
	assert.EqualError(t, h.Handle(c), "store down")
}

func TestEventFromMessage(t *testing.T) {
	bot := offlineBot(t)
	c := bot.NewContext(tele.Update{Message: &tele.Message{
		Sender: &tele.User{ID: 7, Username: "alice"},
		Chat:   &tele.Chat{ID: 70},
		Text:   "kit-1",
	}})

	ev := EventFrom(c)
	assert.Equal(t, int64(7), ev.UserID)
	assert.Equal(t, int64(70), ev.ChatID)
	assert.Equal(t, "alice", ev.Username)
	assert.Equal(t, "kit-1", ev.Text)
	assert.False(t, ev.IsCallback())
	assert.True(t, ev.Origin.IsZero())
}

func TestEventFromCallback(t *testing.T) {
	bot := offlineBot(t)
	c := bot.NewContext(tele.Update{Callback: &tele.Callback{
		ID:     "cb-1",
		Sender: &tele.User{ID: 7},
		Data:   "\fadmin|list",
		Message: &tele.Message{
			ID:   33,
			Chat: &tele.Chat{ID: 70},
		},
	}})

	ev := EventFrom(c)
	assert.Equal(t, "admin", ev.Key)
	assert.Equal(t, "list", ev.Payload)
	assert.Equal(t, "cb-1", ev.CallbackID)
	assert.Equal(t, int64(70), ev.ChatID)
	assert.Equal(t, conversation.MessageRef{ChatID: 70, MessageID: "33"}, ev.Origin)
}

func TestEventFromInlineCallback(t *testing.T) {
	bot := offlineBot(t)
	c := bot.NewContext(tele.Update{Callback: &tele.Callback{
		ID:        "cb-2",
		Sender:    &tele.User{ID: 7},
		MessageID: "inline-9",
		Unique:    "fav",
		Data:      "KIT-2",
	}})

	ev := EventFrom(c)
	assert.Equal(t, int64(7), ev.ChatID)
	assert.Equal(t, conversation.MessageRef{MessageID: "inline-9"}, ev.Origin)
	assert.Equal(t, "fav", ev.Key)
}
