package conversation

import "context"

// Action is a labeled button attached to a message. Key selects the handler
// and Payload carries its argument.
type Action struct {
	Label   string
	Key     string
	Payload string
}

// Message is outbound text with optional rows of actions.
type Message struct {
	Text    string
	Actions [][]Action
}

// MessageRef points at a message previously delivered to a chat.
type MessageRef struct {
	ChatID    int64
	MessageID string
}

// IsZero reports whether ref points nowhere.
func (r MessageRef) IsZero() bool { return r.MessageID == "" }

// Channel is the chat transport the engine talks through.
type Channel interface {
	Send(ctx context.Context, chatID int64, msg Message) (MessageRef, error)
	Edit(ctx context.Context, ref MessageRef, msg Message) error
	Ack(ctx context.Context, callbackID, text string) error
	Forward(ctx context.Context, destination string, msg Message) error
}

// Action keys understood by the engine.
const (
	KeyStartSearch  = "start_search"
	KeyStartSupport = "start_support"
	KeyFavorite     = "fav"
	KeyAdmin        = "admin"
	KeyPick         = "pick"
)

// Admin menu payloads carried by KeyAdmin actions.
const (
	MenuAdd    = "add"
	MenuDelete = "delete"
	MenuEdit   = "edit"
	MenuList   = "list"
	MenuBack   = "back"
	MenuExit   = "exit"
)

// Event is one inbound update reduced to what the engine needs.
type Event struct {
	UserID   int64
	ChatID   int64
	Username string

	// Text is set for typed messages.
	Text string

	// Key, Payload and CallbackID are set for button presses; Origin is the
	// message the button belongs to.
	Key        string
	Payload    string
	CallbackID string
	Origin     MessageRef
}

// IsCallback reports whether the event is a button press.
func (ev Event) IsCallback() bool { return ev.CallbackID != "" || ev.Key != "" }
