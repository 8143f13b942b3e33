package conversation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/m3rciful/kitwatch/core/logger"
	"github.com/m3rciful/kitwatch/core/records"
	"github.com/m3rciful/kitwatch/core/state"
)

func (e *Engine) send(ctx context.Context, ev Event, text string) error {
	_, err := e.channel.Send(ctx, ev.ChatID, Message{Text: text})
	return err
}

func (e *Engine) onSearchID(ctx context.Context, ev Event, _ *state.Session) (state.State, error) {
	id := records.NormalizeID(ev.Text)
	rec, err := e.store.Get(ctx, id)
	if errors.Is(err, records.ErrNotFound) {
		return state.AwaitingSearchID, e.send(ctx, ev, textSearchNotFound)
	}
	if err != nil {
		return state.Idle, err
	}
	_, err = e.channel.Send(ctx, ev.ChatID, recordSummary(rec))
	return state.Idle, err
}

func (e *Engine) onSupportMessage(ctx context.Context, ev Event, _ *state.Session) (state.State, error) {
	dest := strings.TrimSpace(e.cfg.AdminDestination)
	if dest == "" {
		return state.Idle, e.send(ctx, ev, textSupportUnavailable)
	}
	if err := e.channel.Forward(ctx, dest, supportForward(ev, ev.Text)); err != nil {
		logger.LogEvent(ctx, logger.FSM, slog.LevelError, "fsm.support.forward",
			slog.String("status", "fail"),
			slog.String("recipient", dest),
			logger.Err(err),
		)
		return state.Idle, e.send(ctx, ev, textSupportFailed)
	}
	return state.Idle, e.send(ctx, ev, textSupportSent)
}

func (e *Engine) onPassword(ctx context.Context, ev Event, _ *state.Session) (state.State, error) {
	if !e.passwordMatches(ev.Text) {
		logger.LogEvent(ctx, logger.FSM, slog.LevelWarn, "fsm.admin.login",
			slog.String("status", "fail"),
			slog.String("outcome", "rejected"),
		)
		return state.Idle, e.send(ctx, ev, textWrongPassword)
	}
	logger.LogEvent(ctx, logger.FSM, slog.LevelInfo, "fsm.admin.login",
		slog.String("status", "ok"),
		slog.String("outcome", "ok"),
	)
	_, err := e.channel.Send(ctx, ev.ChatID, menuMessage(textMenuWelcome))
	return state.AdminMenu, err
}

func (e *Engine) onMenu(ctx context.Context, ev Event, _ *state.Session) (state.State, error) {
	switch ev.Payload {
	case MenuAdd:
		return state.AwaitingNewID, e.reply(ctx, ev, Message{Text: textAddPrompt})
	case MenuDelete:
		return e.showChoices(ctx, ev, textChooseDelete, state.AdminDeleteMenu)
	case MenuEdit:
		return e.showChoices(ctx, ev, textChooseEdit, state.AdminEditMenu)
	case MenuList:
		list, err := e.store.List(ctx)
		if err != nil {
			return state.Idle, err
		}
		return state.AdminMenu, e.reply(ctx, ev, listMessage(list))
	case MenuExit:
		return state.Idle, e.reply(ctx, ev, Message{Text: textMenuExit})
	default:
		// Unknown menu payloads redisplay the menu.
		return state.AdminMenu, e.reply(ctx, ev, menuMessage(textMenu))
	}
}

func (e *Engine) onBack(ctx context.Context, ev Event, _ *state.Session) (state.State, error) {
	return state.AdminMenu, e.reply(ctx, ev, menuMessage(textMenu))
}

func (e *Engine) showChoices(ctx context.Context, ev Event, text string, next state.State) (state.State, error) {
	rs, err := e.store.Load(ctx)
	if err != nil {
		return state.Idle, err
	}
	if len(rs) == 0 {
		return state.AdminMenu, e.reply(ctx, ev, Message{Text: textNoRecords, Actions: [][]Action{backRow()}})
	}
	return next, e.reply(ctx, ev, choiceMessage(text, rs.IDs()))
}

func (e *Engine) onNewID(ctx context.Context, ev Event, sess *state.Session) (state.State, error) {
	sess.Scratch.PendingID = records.NormalizeID(ev.Text)
	return state.AwaitingNewDate, e.send(ctx, ev, textNewDatePrompt)
}

func (e *Engine) onNewDate(ctx context.Context, ev Event, sess *state.Session) (state.State, error) {
	sess.Scratch.PendingDate = strings.TrimSpace(ev.Text)
	return state.AwaitingNewStatus, e.send(ctx, ev, textNewStatus)
}

func (e *Engine) onNewStatus(ctx context.Context, ev Event, sess *state.Session) (state.State, error) {
	sess.Scratch.PendingStatus = strings.TrimSpace(ev.Text)
	rec := records.Record{
		ID:          sess.Scratch.PendingID,
		Status:      sess.Scratch.PendingStatus,
		RenewalDate: sess.Scratch.PendingDate,
		FavoritedBy: []records.UserID{},
	}
	if err := e.store.Put(ctx, rec); err != nil {
		return state.Idle, fmt.Errorf("conversation: add %s: %w", rec.ID, err)
	}
	logger.LogEvent(ctx, logger.FSM, slog.LevelInfo, "fsm.admin.add",
		slog.String("status", "ok"),
		slog.String("record_id", rec.ID),
	)
	return state.Idle, e.send(ctx, ev, textAdded(rec.ID))
}

func (e *Engine) onDeletePick(ctx context.Context, ev Event, _ *state.Session) (state.State, error) {
	id := ev.Payload
	found, err := e.store.Delete(ctx, id)
	if err != nil {
		return state.Idle, fmt.Errorf("conversation: delete %s: %w", id, err)
	}
	text := textDeleted(id)
	if !found {
		text = textNotFound(id)
	}
	logger.LogEvent(ctx, logger.FSM, slog.LevelInfo, "fsm.admin.delete",
		slog.String("status", "ok"),
		slog.String("record_id", id),
		slog.Bool("found", found),
	)
	return state.AdminMenu, e.reply(ctx, ev, menuMessage(text))
}

func (e *Engine) onEditPick(ctx context.Context, ev Event, sess *state.Session) (state.State, error) {
	sess.Scratch.EditTargetID = ev.Payload
	return state.AwaitingEditDate, e.reply(ctx, ev, Message{Text: textEditDate})
}

func (e *Engine) onEditDate(ctx context.Context, ev Event, sess *state.Session) (state.State, error) {
	sess.Scratch.EditNewDate = strings.TrimSpace(ev.Text)
	return state.AwaitingEditStatus, e.send(ctx, ev, textEditStatus)
}

func (e *Engine) onEditStatus(ctx context.Context, ev Event, sess *state.Session) (state.State, error) {
	id := sess.Scratch.EditTargetID
	err := e.store.UpdateRecord(ctx, id, sess.Scratch.EditNewDate, strings.TrimSpace(ev.Text))
	if errors.Is(err, records.ErrNotFound) {
		return state.Idle, e.send(ctx, ev, textNotFound(id))
	}
	if err != nil {
		return state.Idle, fmt.Errorf("conversation: edit %s: %w", id, err)
	}
	logger.LogEvent(ctx, logger.FSM, slog.LevelInfo, "fsm.admin.edit",
		slog.String("status", "ok"),
		slog.String("record_id", id),
	)
	return state.Idle, e.send(ctx, ev, textUpdated(id))
}
