package conversation

import (
	"context"
	"errors"
	"path/filepath"
	"strconv"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/m3rciful/kitwatch/core/records"
	"github.com/m3rciful/kitwatch/core/state"
)

type sent struct {
	ChatID int64
	Msg    Message
}

type fakeChannel struct {
	mu         sync.Mutex
	sends      []sent
	edits      []Message
	acks       []string
	forwards   []Message
	forwardErr error
	nextID     int
}

func (f *fakeChannel) Send(_ context.Context, chatID int64, msg Message) (MessageRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sends = append(f.sends, sent{ChatID: chatID, Msg: msg})
	f.nextID++
	return MessageRef{ChatID: chatID, MessageID: strconv.Itoa(f.nextID)}, nil
}

func (f *fakeChannel) Edit(_ context.Context, _ MessageRef, msg Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.edits = append(f.edits, msg)
	return nil
}

func (f *fakeChannel) Ack(_ context.Context, _ string, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.acks = append(f.acks, text)
	return nil
}

func (f *fakeChannel) Forward(_ context.Context, _ string, msg Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.forwardErr != nil {
		return f.forwardErr
	}
	f.forwards = append(f.forwards, msg)
	return nil
}

func (f *fakeChannel) lastText() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.sends) == 0 {
		return ""
	}
	return f.sends[len(f.sends)-1].Msg.Text
}

func (f *fakeChannel) lastEdit() Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.edits) == 0 {
		return Message{}
	}
	return f.edits[len(f.edits)-1]
}

const (
	adminID  int64 = 100
	userID   int64 = 42
	password       = "s3cret"
)

type harness struct {
	engine  *Engine
	channel *fakeChannel
	store   *records.Store
}

func newHarness(t *testing.T, cfg Config) *harness {
	t.Helper()
	store := records.NewStore(records.NewFileBackend(filepath.Join(t.TempDir(), "database.json")))
	ch := &fakeChannel{}
	engine, err := New(store, ch, state.NewMemoryManager(), cfg)
	require.NoError(t, err)
	return &harness{engine: engine, channel: ch, store: store}
}

func defaultConfig() Config {
	return Config{AdminPassword: password, AdminDestination: "-100500"}
}

func text(user int64, s string) Event {
	return Event{UserID: user, ChatID: user, Text: s}
}

func press(user int64, key, payload string) Event {
	return Event{
		UserID:     user,
		ChatID:     user,
		Key:        key,
		Payload:    payload,
		CallbackID: "cb-" + key + "-" + payload,
		Origin:     MessageRef{ChatID: user, MessageID: "77"},
	}
}

func (h *harness) state(user int64) state.State {
	sess, _ := h.engine.sessions.Get(user)
	return sess.State
}

func (h *harness) login(t *testing.T) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, h.engine.BeginAdmin(ctx, text(adminID, "/manage")))
	require.NoError(t, h.engine.Handle(ctx, text(adminID, password)))
	require.Equal(t, state.AdminMenu, h.state(adminID))
}

func TestSearchFlow(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, defaultConfig())
	require.NoError(t, h.store.Put(ctx, records.Record{ID: "KIT-1", Status: "active", RenewalDate: "2030-01-01"}))

	require.NoError(t, h.engine.BeginSearch(ctx, press(userID, KeyStartSearch, "")))
	assert.Equal(t, state.AwaitingSearchID, h.state(userID))
	assert.Equal(t, textSearchPrompt, h.channel.lastEdit().Text)

	require.NoError(t, h.engine.Handle(ctx, text(userID, "kit-404")))
	assert.Equal(t, state.AwaitingSearchID, h.state(userID))
	assert.Equal(t, textSearchNotFound, h.channel.lastText())

	require.NoError(t, h.engine.Handle(ctx, text(userID, " kit-1 ")))
	assert.False(t, h.engine.InProgress(userID))
	assert.Zero(t, h.engine.sessions.Len())

	last := h.channel.sends[len(h.channel.sends)-1].Msg
	assert.Contains(t, last.Text, "KIT-1")
	assert.Contains(t, last.Text, "2030-01-01")
	require.Len(t, last.Actions, 1)
	assert.Equal(t, Action{Label: "⭐ Add to favorites", Key: KeyFavorite, Payload: "KIT-1"}, last.Actions[0][0])
}

func TestCancelFromEveryState(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, defaultConfig())
	for _, st := range state.All() {
		if st == state.Idle {
			continue
		}
		h.engine.sessions.Begin(userID, st)
		require.NoError(t, h.engine.Cancel(ctx, text(userID, "/cancel")))
		assert.False(t, h.engine.InProgress(userID), st.String())
		assert.Equal(t, textCancelled, h.channel.lastText())
	}
	assert.Zero(t, h.engine.sessions.Len())
}

func TestSupportFlow(t *testing.T) {
	ctx := context.Background()

	t.Run("forwarded", func(t *testing.T) {
		h := newHarness(t, defaultConfig())
		require.NoError(t, h.engine.BeginSupport(ctx, press(userID, KeyStartSupport, "")))
		ev := text(userID, "router KIT-1 is offline")
		ev.Username = "alice"
		require.NoError(t, h.engine.Handle(ctx, ev))

		require.Len(t, h.channel.forwards, 1)
		assert.Contains(t, h.channel.forwards[0].Text, "From: @alice (ID: 42)")
		assert.Contains(t, h.channel.forwards[0].Text, "router KIT-1 is offline")
		assert.Equal(t, textSupportSent, h.channel.lastText())
		assert.False(t, h.engine.InProgress(userID))
	})

	t.Run("unavailable", func(t *testing.T) {
		h := newHarness(t, Config{AdminPassword: password})
		require.NoError(t, h.engine.BeginSupport(ctx, press(userID, KeyStartSupport, "")))
		require.NoError(t, h.engine.Handle(ctx, text(userID, "help")))
		assert.Empty(t, h.channel.forwards)
		assert.Equal(t, textSupportUnavailable, h.channel.lastText())
		assert.False(t, h.engine.InProgress(userID))
	})

	t.Run("forward fails", func(t *testing.T) {
		h := newHarness(t, defaultConfig())
		h.channel.forwardErr = errors.New("chat not found")
		require.NoError(t, h.engine.BeginSupport(ctx, press(userID, KeyStartSupport, "")))
		require.NoError(t, h.engine.Handle(ctx, text(userID, "help")))
		assert.Equal(t, textSupportFailed, h.channel.lastText())
		assert.False(t, h.engine.InProgress(userID))
	})
}

func TestWrongPasswordEndsSession(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, defaultConfig())
	require.NoError(t, h.engine.BeginAdmin(ctx, text(adminID, "/manage")))
	require.NoError(t, h.engine.Handle(ctx, text(adminID, "guess")))
	assert.Equal(t, textWrongPassword, h.channel.lastText())
	assert.False(t, h.engine.InProgress(adminID))

	// No retry: the next text is not treated as a password.
	err := h.engine.Handle(ctx, text(adminID, password))
	assert.ErrorIs(t, err, ErrNoTransition)
}

func TestPasswordComparedExactly(t *testing.T) {
	ctx := context.Background()
	for _, attempt := range []string{" " + password, password + "\n", "S3CRET"} {
		h := newHarness(t, defaultConfig())
		require.NoError(t, h.engine.BeginAdmin(ctx, text(adminID, "/manage")))
		require.NoError(t, h.engine.Handle(ctx, text(adminID, attempt)))
		assert.Equal(t, textWrongPassword, h.channel.lastText(), "%q", attempt)
		assert.False(t, h.engine.InProgress(adminID))
	}
}

func TestEmptyPasswordRejectsEverything(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, Config{})
	require.NoError(t, h.engine.BeginAdmin(ctx, text(adminID, "/manage")))
	require.NoError(t, h.engine.Handle(ctx, text(adminID, "")))
	assert.Equal(t, textWrongPassword, h.channel.lastText())
}

func TestAddFlow(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, defaultConfig())
	h.login(t)

	require.NoError(t, h.engine.Handle(ctx, press(adminID, KeyAdmin, MenuAdd)))
	assert.Equal(t, state.AwaitingNewID, h.state(adminID))
	require.NoError(t, h.engine.Handle(ctx, text(adminID, "kit-9")))
	assert.Equal(t, state.AwaitingNewDate, h.state(adminID))
	require.NoError(t, h.engine.Handle(ctx, text(adminID, "2030-01-01")))
	assert.Equal(t, state.AwaitingNewStatus, h.state(adminID))
	require.NoError(t, h.engine.Handle(ctx, text(adminID, "active")))
	assert.False(t, h.engine.InProgress(adminID))
	assert.Equal(t, textAdded("KIT-9"), h.channel.lastText())

	rs, err := h.store.Load(ctx)
	require.NoError(t, err)
	require.Len(t, rs, 1)
	rec := rs["KIT-9"]
	assert.Equal(t, "2030-01-01", rec.RenewalDate)
	assert.Equal(t, "active", rec.Status)
	assert.Empty(t, rec.FavoritedBy)
}

func TestEditFlow(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, defaultConfig())
	require.NoError(t, h.store.Put(ctx, records.Record{ID: "KIT-9", Status: "active", RenewalDate: "2030-01-01", FavoritedBy: []records.UserID{7, 8}}))
	h.login(t)

	require.NoError(t, h.engine.Handle(ctx, press(adminID, KeyAdmin, MenuEdit)))
	assert.Equal(t, state.AdminEditMenu, h.state(adminID))
	require.NoError(t, h.engine.Handle(ctx, press(adminID, KeyPick, "KIT-9")))
	assert.Equal(t, state.AwaitingEditDate, h.state(adminID))
	require.NoError(t, h.engine.Handle(ctx, text(adminID, "2030-02-02")))
	require.NoError(t, h.engine.Handle(ctx, text(adminID, "suspended")))
	assert.False(t, h.engine.InProgress(adminID))
	assert.Equal(t, textUpdated("KIT-9"), h.channel.lastText())

	got, err := h.store.Get(ctx, "KIT-9")
	require.NoError(t, err)
	assert.Equal(t, records.Record{ID: "KIT-9", Status: "suspended", RenewalDate: "2030-02-02", FavoritedBy: []records.UserID{7, 8}}, got)
}

func TestEditVanishedTarget(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, defaultConfig())
	require.NoError(t, h.store.Put(ctx, records.Record{ID: "KIT-9"}))
	h.login(t)

	require.NoError(t, h.engine.Handle(ctx, press(adminID, KeyAdmin, MenuEdit)))
	require.NoError(t, h.engine.Handle(ctx, press(adminID, KeyPick, "KIT-9")))
	require.NoError(t, h.engine.Handle(ctx, text(adminID, "2030-02-02")))
	_, err := h.store.Delete(ctx, "KIT-9")
	require.NoError(t, err)

	require.NoError(t, h.engine.Handle(ctx, text(adminID, "suspended")))
	assert.Equal(t, textNotFound("KIT-9"), h.channel.lastText())
	assert.False(t, h.engine.InProgress(adminID))

	rs, err := h.store.Load(ctx)
	require.NoError(t, err)
	assert.Empty(t, rs)
}

func TestDeleteFlow(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, defaultConfig())
	require.NoError(t, h.store.Put(ctx, records.Record{ID: "KIT-1"}))
	require.NoError(t, h.store.Put(ctx, records.Record{ID: "KIT-2"}))
	h.login(t)

	require.NoError(t, h.engine.Handle(ctx, press(adminID, KeyAdmin, MenuDelete)))
	assert.Equal(t, state.AdminDeleteMenu, h.state(adminID))
	assert.Len(t, h.channel.lastEdit().Actions, 3)

	require.NoError(t, h.engine.Handle(ctx, press(adminID, KeyPick, "KIT-1")))
	assert.Equal(t, state.AdminMenu, h.state(adminID))
	assert.Equal(t, textDeleted("KIT-1"), h.channel.lastEdit().Text)

	rs, err := h.store.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"KIT-2"}, rs.IDs())
}

func TestEmptyStoreMenus(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, defaultConfig())
	h.login(t)

	for _, action := range []string{MenuDelete, MenuEdit} {
		require.NoError(t, h.engine.Handle(ctx, press(adminID, KeyAdmin, action)))
		assert.Equal(t, state.AdminMenu, h.state(adminID))
		assert.Equal(t, textNoRecords, h.channel.lastEdit().Text)
		assert.Equal(t, [][]Action{backRow()}, h.channel.lastEdit().Actions)
	}

	require.NoError(t, h.engine.Handle(ctx, press(adminID, KeyAdmin, MenuBack)))
	assert.Equal(t, state.AdminMenu, h.state(adminID))
	assert.Equal(t, textMenu, h.channel.lastEdit().Text)
}

func TestMenuListBackAndExit(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, defaultConfig())
	require.NoError(t, h.store.Put(ctx, records.Record{ID: "KIT-1", Status: "active"}))
	h.login(t)

	require.NoError(t, h.engine.Handle(ctx, press(adminID, KeyAdmin, MenuList)))
	assert.Equal(t, state.AdminMenu, h.state(adminID))
	assert.Contains(t, h.channel.lastEdit().Text, "KIT-1 | Status: active")

	require.NoError(t, h.engine.Handle(ctx, press(adminID, KeyAdmin, MenuEdit)))
	require.NoError(t, h.engine.Handle(ctx, press(adminID, KeyAdmin, MenuBack)))
	assert.Equal(t, state.AdminMenu, h.state(adminID))

	require.NoError(t, h.engine.Handle(ctx, press(adminID, KeyAdmin, MenuExit)))
	assert.False(t, h.engine.InProgress(adminID))
	assert.Equal(t, textMenuExit, h.channel.lastEdit().Text)
}

func TestStaleButtonIsAcknowledged(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, defaultConfig())
	h.login(t)
	require.NoError(t, h.engine.Handle(ctx, press(adminID, KeyAdmin, MenuAdd)))

	err := h.engine.Handle(ctx, press(adminID, KeyAdmin, MenuList))
	assert.ErrorIs(t, err, ErrNoTransition)
	assert.Equal(t, textExpired, h.channel.acks[len(h.channel.acks)-1])
	assert.Equal(t, state.AwaitingNewID, h.state(adminID))
}

func TestNewEntryPointOverwritesSession(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, defaultConfig())
	h.login(t)
	require.NoError(t, h.engine.Handle(ctx, press(adminID, KeyAdmin, MenuAdd)))
	require.NoError(t, h.engine.Handle(ctx, text(adminID, "KIT-1")))

	require.NoError(t, h.engine.BeginSearch(ctx, press(adminID, KeyStartSearch, "")))
	sess, ok := h.engine.sessions.Get(adminID)
	require.True(t, ok)
	assert.Equal(t, state.AwaitingSearchID, sess.State)
	assert.Empty(t, sess.Scratch.PendingID)
}

func TestFavoriteIsStateless(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, defaultConfig())
	require.NoError(t, h.store.Put(ctx, records.Record{ID: "KIT-1", RenewalDate: "2030-01-01"}))
	require.NoError(t, h.engine.BeginSupport(ctx, press(userID, KeyStartSupport, "")))

	require.NoError(t, h.engine.Favorite(ctx, press(userID, KeyFavorite, "KIT-1")))
	assert.Equal(t, "✅ Device KIT-1 added to favorites!", h.channel.lastEdit().Text)
	require.NoError(t, h.engine.Favorite(ctx, press(userID, KeyFavorite, "KIT-1")))
	assert.Equal(t, "ℹ️ Device KIT-1 is already in your favorites.", h.channel.lastEdit().Text)
	assert.Equal(t, state.AwaitingSupportMessage, h.state(userID))

	require.NoError(t, h.engine.Favorites(ctx, text(userID, "/favorites")))
	assert.Equal(t, "⭐ Your favorite devices:\n\n- KIT-1 (expires: 2030-01-01)", h.channel.lastText())

	require.NoError(t, h.engine.Favorites(ctx, text(7, "/favorites")))
	assert.Equal(t, textNoFavorites, h.channel.lastText())
}

func TestConcurrentFavoritesFromTwoUsers(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, defaultConfig())
	require.NoError(t, h.store.Put(ctx, records.Record{ID: "KIT-1"}))

	var wg sync.WaitGroup
	for _, u := range []int64{1, 2} {
		wg.Add(1)
		go func(u int64) {
			defer wg.Done()
			assert.NoError(t, h.engine.Favorite(ctx, press(u, KeyFavorite, "KIT-1")))
		}(u)
	}
	wg.Wait()

	rec, err := h.store.Get(ctx, "KIT-1")
	require.NoError(t, err)
	assert.ElementsMatch(t, []records.UserID{1, 2}, rec.FavoritedBy)
}

func TestTextWithoutSessionHasNoTransition(t *testing.T) {
	h := newHarness(t, defaultConfig())
	err := h.engine.Handle(context.Background(), text(userID, "hello"))
	assert.ErrorIs(t, err, ErrNoTransition)
	assert.Empty(t, h.channel.sends)
}

func TestUserLocksAreReleased(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, defaultConfig())
	require.NoError(t, h.engine.Start(ctx, text(userID, "/start")))
	require.NoError(t, h.engine.BeginSearch(ctx, press(userID, KeyStartSearch, "")))
	_ = h.engine.Handle(ctx, text(userID, "x"))
	assert.Zero(t, h.engine.locks.size())

	welcome := h.channel.sends[0].Msg
	assert.Equal(t, KeyStartSearch, welcome.Actions[0][0].Key)
	assert.Equal(t, KeyStartSupport, welcome.Actions[1][0].Key)
}
