// Package conversation turns inbound chat events into the search, support and
// admin workflows. An Engine owns the session registry and talks to the record
// store and the chat channel it was constructed with.
package conversation

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"

	"github.com/m3rciful/kitwatch/core/logger"
	"github.com/m3rciful/kitwatch/core/records"
	"github.com/m3rciful/kitwatch/core/state"
)

// ErrNoTransition is returned when the input does not apply to the user's
// current state, for example a button of an outdated menu.
var ErrNoTransition = errors.New("conversation: no transition")

// Config carries the operator secrets the engine compares against.
type Config struct {
	// AdminPassword gates the admin menu. Empty rejects every attempt.
	AdminPassword string
	// AdminDestination receives support messages. Empty disables support.
	AdminDestination string
}

// Engine is the per-user conversation state machine.
type Engine struct {
	store    *records.Store
	channel  Channel
	sessions state.Manager
	cfg      Config
	table    transitionTable
	locks    *userLocks
}

// New wires an engine. It fails if the transition table leaves a non-idle
// state without any handler.
func New(store *records.Store, channel Channel, sessions state.Manager, cfg Config) (*Engine, error) {
	if store == nil || channel == nil || sessions == nil {
		return nil, errors.New("conversation: store, channel and sessions are required")
	}
	e := &Engine{
		store:    store,
		channel:  channel,
		sessions: sessions,
		cfg:      cfg,
		locks:    newUserLocks(),
	}
	e.table = e.transitions()
	if err := e.table.validate(); err != nil {
		return nil, err
	}
	return e, nil
}

// InProgress reports whether typed text from userID belongs to a workflow.
func (e *Engine) InProgress(userID int64) bool { return e.sessions.InProgress(userID) }

// Start greets the user with the search and support buttons.
func (e *Engine) Start(ctx context.Context, ev Event) error {
	_, err := e.channel.Send(ctx, ev.ChatID, welcomeMessage())
	return err
}

// BeginSearch opens the search workflow.
func (e *Engine) BeginSearch(ctx context.Context, ev Event) error {
	return e.begin(ctx, ev, state.AwaitingSearchID, Message{Text: textSearchPrompt})
}

// BeginSupport opens the support workflow.
func (e *Engine) BeginSupport(ctx context.Context, ev Event) error {
	return e.begin(ctx, ev, state.AwaitingSupportMessage, Message{Text: textSupportPrompt})
}

// BeginAdmin asks for the admin password.
func (e *Engine) BeginAdmin(ctx context.Context, ev Event) error {
	return e.begin(ctx, ev, state.AwaitingAdminPassword, Message{Text: textPasswordPrompt})
}

func (e *Engine) begin(ctx context.Context, ev Event, st state.State, prompt Message) error {
	unlock := e.locks.lock(ev.UserID)
	defer unlock()

	e.sessions.Begin(ev.UserID, st)
	e.logTransition(ctx, ev, state.Idle, st, "entry")
	e.ack(ctx, ev, "")
	return e.reply(ctx, ev, prompt)
}

// Cancel ends any workflow of the user.
func (e *Engine) Cancel(ctx context.Context, ev Event) error {
	unlock := e.locks.lock(ev.UserID)
	defer unlock()

	prev, _ := e.sessions.Get(ev.UserID)
	e.sessions.Clear(ev.UserID)
	e.logTransition(ctx, ev, prev.State, state.Idle, "cancel")
	_, err := e.channel.Send(ctx, ev.ChatID, Message{Text: textCancelled})
	return err
}

// Favorite subscribes the user to reminders for the record in ev.Payload.
// It does not touch the session.
func (e *Engine) Favorite(ctx context.Context, ev Event) error {
	id := records.NormalizeID(ev.Payload)
	if id == "" {
		e.ack(ctx, ev, textExpired)
		return fmt.Errorf("%w: favorite without id", ErrNoTransition)
	}
	res, err := e.store.AddFavorite(ctx, id, records.UserID(ev.UserID))
	if err != nil {
		e.ack(ctx, ev, textInternalError)
		return fmt.Errorf("conversation: favorite %s: %w", id, err)
	}
	e.ack(ctx, ev, "")
	return e.reply(ctx, ev, favoriteMessage(id, res))
}

// Favorites lists the records the user favorited.
func (e *Engine) Favorites(ctx context.Context, ev Event) error {
	list, err := e.store.FavoritesOf(ctx, records.UserID(ev.UserID))
	if err != nil {
		return fmt.Errorf("conversation: favorites: %w", err)
	}
	_, err = e.channel.Send(ctx, ev.ChatID, favoritesMessage(list))
	return err
}

// Handle feeds a typed message or a button press into the user's workflow.
func (e *Engine) Handle(ctx context.Context, ev Event) error {
	unlock := e.locks.lock(ev.UserID)
	defer unlock()

	sess, _ := e.sessions.Get(ev.UserID)
	in := classify(ev)
	step, ok := e.table.lookup(sess.State, in)
	if !ok {
		e.ack(ctx, ev, textExpired)
		return fmt.Errorf("%w: %s in %s", ErrNoTransition, in, sess.State)
	}

	from := sess.State
	next, err := step(ctx, ev, &sess)
	if err != nil {
		e.ack(ctx, ev, textInternalError)
		e.sessions.Clear(ev.UserID)
		e.logTransition(ctx, ev, from, state.Idle, in.String())
		if sendErr := e.reply(ctx, ev, Message{Text: textInternalError}); sendErr != nil {
			err = errors.Join(err, sendErr)
		}
		return err
	}
	e.ack(ctx, ev, "")

	if next == state.Idle {
		e.sessions.Clear(ev.UserID)
	} else {
		sess.State = next
		e.sessions.Put(ev.UserID, sess)
	}
	e.logTransition(ctx, ev, from, next, in.String())
	return nil
}

func (e *Engine) passwordMatches(text string) bool {
	want := e.cfg.AdminPassword
	if want == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(text), []byte(want)) == 1
}

// reply edits the message a button belongs to, otherwise sends a new message.
func (e *Engine) reply(ctx context.Context, ev Event, msg Message) error {
	if !ev.Origin.IsZero() {
		return e.channel.Edit(ctx, ev.Origin, msg)
	}
	_, err := e.channel.Send(ctx, ev.ChatID, msg)
	return err
}

func (e *Engine) ack(ctx context.Context, ev Event, text string) {
	if ev.CallbackID == "" {
		return
	}
	if err := e.channel.Ack(ctx, ev.CallbackID, text); err != nil {
		logger.LogEvent(ctx, logger.FSM, slog.LevelWarn, "fsm.ack",
			slog.String("status", "fail"),
			logger.Err(err),
		)
	}
}

func (e *Engine) logTransition(ctx context.Context, ev Event, from, to state.State, input string) {
	logger.LogEvent(ctx, logger.FSM, slog.LevelDebug, "fsm.transition",
		slog.String("status", "ok"),
		slog.Int64("user_id", ev.UserID),
		slog.String("state", from.String()),
		slog.String("next_state", to.String()),
		slog.String("input", input),
	)
}
