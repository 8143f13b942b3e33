package state

import "time"

// State is a conversation step.
type State int

const (
	Idle State = iota
	AwaitingSearchID
	AwaitingSupportMessage
	AwaitingAdminPassword
	AdminMenu
	AwaitingNewID
	AwaitingNewDate
	AwaitingNewStatus
	AdminDeleteMenu
	AdminEditMenu
	AwaitingEditDate
	AwaitingEditStatus

	stateCount
)

var stateNames = [stateCount]string{
	Idle:                   "idle",
	AwaitingSearchID:       "awaiting_search_id",
	AwaitingSupportMessage: "awaiting_support_message",
	AwaitingAdminPassword:  "awaiting_admin_password",
	AdminMenu:              "admin_menu",
	AwaitingNewID:          "awaiting_new_id",
	AwaitingNewDate:        "awaiting_new_date",
	AwaitingNewStatus:      "awaiting_new_status",
	AdminDeleteMenu:        "admin_delete_menu",
	AdminEditMenu:          "admin_edit_menu",
	AwaitingEditDate:       "awaiting_edit_date",
	AwaitingEditStatus:     "awaiting_edit_status",
}

func (s State) String() string {
	if s < 0 || s >= stateCount {
		return "unknown"
	}
	return stateNames[s]
}

// Valid reports whether s is a declared state.
func (s State) Valid() bool { return s >= 0 && s < stateCount }

// All returns every declared state in declaration order.
func All() []State {
	out := make([]State, 0, stateCount)
	for s := Idle; s < stateCount; s++ {
		out = append(out, s)
	}
	return out
}

// Scratch collects values entered during multi-step admin flows.
type Scratch struct {
	PendingID     string
	PendingDate   string
	PendingStatus string
	EditTargetID  string
	EditNewDate   string
}

// Session is the conversation context of one user.
type Session struct {
	State   State
	Scratch Scratch
	Touched time.Time
}

// Manager stores sessions keyed by user id.
type Manager interface {
	// Get returns a copy of the live session. Expired sessions are dropped and reported absent.
	Get(userID int64) (Session, bool)
	// Begin replaces any session of userID with a fresh one in st.
	Begin(userID int64, st State)
	// Put stores sess as the live session of userID and refreshes its TTL.
	Put(userID int64, sess Session)
	// Clear destroys the session.
	Clear(userID int64)
	// InProgress reports whether userID has a live non-idle session.
	InProgress(userID int64) bool
	// Sweep evicts expired sessions and returns how many were dropped.
	Sweep() int
	// Len counts stored sessions, expired or not.
	Len() int
}
