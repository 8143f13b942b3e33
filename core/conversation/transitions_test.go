package conversation

import (
	"bytes"
	"context"
	"fmt"
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/m3rciful/kitwatch/core/records"
	"github.com/m3rciful/kitwatch/core/state"
)

func TestTransitionTableCoversEveryState(t *testing.T) {
	h := newHarness(t, defaultConfig())
	table := h.engine.transitions()
	require.NoError(t, table.validate())

	for _, st := range state.All() {
		if st == state.Idle {
			assert.Empty(t, table[st])
			continue
		}
		assert.NotEmpty(t, table[st], st.String())
	}
}

func TestTransitionTableValidation(t *testing.T) {
	noop := func(context.Context, Event, *state.Session) (state.State, error) { return state.Idle, nil }

	missing := transitionTable{state.AdminMenu: {inputMenu: noop}}
	assert.ErrorContains(t, missing.validate(), "has no transitions")

	full := transitionTable{}
	for _, st := range state.All() {
		if st != state.Idle {
			full[st] = map[input]step{inputText: noop}
		}
	}
	require.NoError(t, full.validate())

	full[state.Idle] = map[input]step{inputText: noop}
	assert.ErrorContains(t, full.validate(), "idle")
	delete(full, state.Idle)

	full[state.AdminMenu] = map[input]step{inputMenu: nil}
	assert.ErrorContains(t, full.validate(), "nil handler")
}

func TestClassify(t *testing.T) {
	assert.Equal(t, inputText, classify(Event{Text: "hi"}))
	assert.Equal(t, inputMenu, classify(Event{Key: KeyAdmin, Payload: MenuList, CallbackID: "1"}))
	assert.Equal(t, inputBack, classify(Event{Key: KeyAdmin, Payload: MenuBack, CallbackID: "1"}))
	assert.Equal(t, inputPick, classify(Event{Key: KeyPick, Payload: "KIT-1", CallbackID: "1"}))
	assert.Equal(t, inputUnknown, classify(Event{Key: KeyFavorite, CallbackID: "1"}))
	assert.Equal(t, inputUnknown, classify(Event{CallbackID: "1"}))
}

func dump(msg Message) []byte {
	var b bytes.Buffer
	b.WriteString(msg.Text)
	b.WriteString("\n")
	for _, row := range msg.Actions {
		for i, a := range row {
			if i > 0 {
				b.WriteString(" ")
			}
			fmt.Fprintf(&b, "[%s -> %s:%s]", a.Label, a.Key, a.Payload)
		}
		b.WriteString("\n")
	}
	return b.Bytes()
}

func TestRenderedAdminScreens(t *testing.T) {
	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)

	list := []records.Record{
		{ID: "KIT-1", Status: "active", RenewalDate: "2030-01-01", FavoritedBy: []records.UserID{1, 2}},
		{ID: "KIT-2"},
		{ID: "KIT-3", Status: "expired", RenewalDate: "2029-12-31", FavoritedBy: []records.UserID{7}},
	}
	g.Assert(t, "admin_list", dump(listMessage(list)))
	g.Assert(t, "admin_list_empty", dump(listMessage(nil)))
	g.Assert(t, "admin_menu", dump(menuMessage(textMenuWelcome)))
	g.Assert(t, "delete_choices", dump(choiceMessage(textChooseDelete, []string{"KIT-1", "KIT-2"})))
}
