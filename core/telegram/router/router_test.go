package router

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tele "gopkg.in/telebot.v4"

	tg "github.com/m3rciful/kitwatch/core/telegram"
	"github.com/m3rciful/kitwatch/core/telegram/commands"
)

type fakeFSM struct {
	active bool
	texts  []string
}

func (f *fakeFSM) InProgress(int64) bool { return f.active }

func (f *fakeFSM) Handle(c tele.Context) error {
	f.texts = append(f.texts, c.Text())
	return nil
}

func offlineBot(t *testing.T) *tele.Bot {
	t.Helper()
	bot, err := tele.NewBot(tele.Settings{Offline: true})
	require.NoError(t, err)
	return bot
}

func textContext(t *testing.T, text string) tele.Context {
	t.Helper()
	user := &tele.User{ID: 7}
	return offlineBot(t).NewContext(tele.Update{
		ID: 1,
		Message: &tele.Message{
			Text:   text,
			Sender: user,
			Chat:   &tele.Chat{ID: 7},
		},
	})
}

func registryWithCancel(calls *[]string) *tg.Registry {
	reg := tg.NewRegistry()
	reg.RegisterCommand("/cancel", commands.Command{
		Description: "cancel",
		Aliases:     []string{"stop"},
		Handler: func(c tele.Context) error {
			*calls = append(*calls, c.Text())
			return nil
		},
	})
	return reg
}

func textHandler(t *testing.T, fsm FSM, reg *tg.Registry) tele.HandlerFunc {
	t.Helper()
	routes := TextRoutes(fsm, reg)
	require.Len(t, routes, 1)
	assert.Equal(t, tele.OnText, routes[0].Endpoint)
	return routes[0].Handler
}

func TestTextRoutesCommandWinsOverConversation(t *testing.T) {
	var calls []string
	fsm := &fakeFSM{active: true}
	h := textHandler(t, fsm, registryWithCancel(&calls))

	require.NoError(t, h(textContext(t, "/cancel@kitwatch_bot")))
	require.NoError(t, h(textContext(t, "/stop")))

	assert.Equal(t, []string{"/cancel@kitwatch_bot", "/stop"}, calls)
	assert.Empty(t, fsm.texts)
}

func TestTextRoutesUnknownCommandIsNotWorkflowInput(t *testing.T) {
	var calls []string
	fsm := &fakeFSM{active: true}
	h := textHandler(t, fsm, registryWithCancel(&calls))

	for _, text := range []string{"/help", "/help@kitwatch_bot extra", "  /unknown  "} {
		require.NoError(t, h(textContext(t, text)))
	}
	assert.Empty(t, fsm.texts)
	assert.Empty(t, calls)

	fsm = &fakeFSM{active: true}
	require.NoError(t, textHandler(t, fsm, nil)(textContext(t, "/help")))
	assert.Empty(t, fsm.texts)
}

func TestTextRoutesConversationThenFallback(t *testing.T) {
	var calls, fallback []string
	reg := registryWithCancel(&calls)
	reg.SetTextFallback(func(c tele.Context) error {
		fallback = append(fallback, c.Text())
		return nil
	})

	active := &fakeFSM{active: true}
	require.NoError(t, textHandler(t, active, reg)(textContext(t, "kit-1")))
	assert.Equal(t, []string{"kit-1"}, active.texts)
	assert.Empty(t, fallback)

	idle := &fakeFSM{}
	require.NoError(t, textHandler(t, idle, reg)(textContext(t, "hello")))
	assert.Empty(t, idle.texts)
	assert.Equal(t, []string{"hello"}, fallback)
}

func TestTextRoutesIgnoresTextOutsideConversation(t *testing.T) {
	fsm := &fakeFSM{}
	require.NoError(t, textHandler(t, fsm, tg.NewRegistry())(textContext(t, "hello")))
	assert.Empty(t, fsm.texts)
}

func TestCommandRoutesBindsAliases(t *testing.T) {
	var calls []string
	routes := CommandRoutes(registryWithCancel(&calls))

	endpoints := make([]string, 0, len(routes))
	for _, r := range routes {
		endpoints = append(endpoints, r.Endpoint.(string))
	}
	assert.Equal(t, []string{"/cancel", "/stop"}, endpoints)

	require.NoError(t, routes[1].Handler(textContext(t, "/stop")))
	assert.Equal(t, []string{"/stop"}, calls)
	assert.Nil(t, CommandRoutes(nil))
}

func callbackContext(t *testing.T, data string) tele.Context {
	t.Helper()
	user := &tele.User{ID: 7}
	return offlineBot(t).NewContext(tele.Update{
		ID:       2,
		Callback: &tele.Callback{ID: "cb-1", Data: data, Sender: user},
	})
}

func TestCallbackRouteDispatchesByKey(t *testing.T) {
	reg := tg.NewRegistry()
	var got []string
	require.NoError(t, reg.RegisterCallback("pick", func(c tele.Context) error {
		got = append(got, "pick")
		return nil
	}))
	boom := errors.New("boom")
	reg.SetCallbackNotFound(func(c tele.Context) error {
		got = append(got, "fallback")
		return boom
	})

	route := CallbackRoute(reg)
	assert.Equal(t, tele.OnCallback, route.Endpoint)

	require.NoError(t, route.Handler(callbackContext(t, "\fpick|KIT-1")))
	assert.ErrorIs(t, route.Handler(callbackContext(t, "\fgone|KIT-1")), boom)
	assert.Equal(t, []string{"pick", "fallback"}, got)
}

func TestDeriveErrorCode(t *testing.T) {
	assert.Equal(t, "", deriveErrorCode(nil))
	assert.Equal(t, "TG_403", deriveErrorCode(tele.ErrBlockedByUser))
	assert.Equal(t, "ERRORSTRING", deriveErrorCode(errors.New("plain")))
}

func TestNormalizeHandlerName(t *testing.T) {
	assert.Equal(t, "unknown", normalizeHandlerName("  "))
	assert.Equal(t, "manage_routers", normalizeHandlerName("/Manage Routers"))
}
