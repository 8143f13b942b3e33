package conversation

import (
	"context"
	"fmt"

	"github.com/m3rciful/kitwatch/core/state"
)

// input is the kind of event a transition consumes.
type input int

const (
	inputUnknown input = iota
	inputText
	inputMenu
	inputBack
	inputPick
)

func (in input) String() string {
	switch in {
	case inputText:
		return "text"
	case inputMenu:
		return "menu"
	case inputBack:
		return "back"
	case inputPick:
		return "pick"
	default:
		return "unknown"
	}
}

func classify(ev Event) input {
	switch ev.Key {
	case "":
		if ev.IsCallback() {
			return inputUnknown
		}
		return inputText
	case KeyAdmin:
		if ev.Payload == MenuBack {
			return inputBack
		}
		return inputMenu
	case KeyPick:
		return inputPick
	default:
		return inputUnknown
	}
}

// step handles one input. It may edit sess.Scratch and returns the next
// state; state.Idle ends the workflow and destroys the session.
type step func(ctx context.Context, ev Event, sess *state.Session) (state.State, error)

type transitionTable map[state.State]map[input]step

func (t transitionTable) lookup(st state.State, in input) (step, bool) {
	fn, ok := t[st][in]
	return fn, ok && fn != nil
}

// validate checks that every non-idle state accepts some input and that idle
// accepts none.
func (t transitionTable) validate() error {
	for _, st := range state.All() {
		steps := t[st]
		if st == state.Idle {
			if len(steps) != 0 {
				return fmt.Errorf("conversation: idle state must not have transitions")
			}
			continue
		}
		if len(steps) == 0 {
			return fmt.Errorf("conversation: state %s has no transitions", st)
		}
		for in, fn := range steps {
			if fn == nil {
				return fmt.Errorf("conversation: nil handler for %s in %s", in, st)
			}
		}
	}
	for st := range t {
		if !st.Valid() {
			return fmt.Errorf("conversation: undeclared state %d", int(st))
		}
	}
	return nil
}

func (e *Engine) transitions() transitionTable {
	return transitionTable{
		state.AwaitingSearchID:       {inputText: e.onSearchID},
		state.AwaitingSupportMessage: {inputText: e.onSupportMessage},
		state.AwaitingAdminPassword:  {inputText: e.onPassword},
		state.AdminMenu:              {inputMenu: e.onMenu, inputBack: e.onBack},
		state.AwaitingNewID:          {inputText: e.onNewID},
		state.AwaitingNewDate:        {inputText: e.onNewDate},
		state.AwaitingNewStatus:      {inputText: e.onNewStatus},
		state.AdminDeleteMenu:        {inputPick: e.onDeletePick, inputBack: e.onBack},
		state.AdminEditMenu:          {inputPick: e.onEditPick, inputBack: e.onBack},
		state.AwaitingEditDate:       {inputText: e.onEditDate},
		state.AwaitingEditStatus:     {inputText: e.onEditStatus},
	}
}
