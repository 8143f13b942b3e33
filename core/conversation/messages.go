package conversation

import (
	"fmt"
	"strings"

	"github.com/m3rciful/kitwatch/core/records"
)

const (
	textWelcome = "👋 Welcome to the subscription check bot!\n\n" +
		"📡 What does this bot do? It shows the status and renewal date of your device subscription.\n\n" +
		"🛠 How to use it: press \"🔍 Find device\" and send the device ID.\n" +
		"Example: KIT-12345"

	textSearchPrompt   = "Please send the ID of your device."
	textSearchNotFound = "❌ Please check the device ID and try again:"

	textSupportPrompt      = "Write your request and we will look at it shortly. Please include the device ID."
	textSupportSent        = "✅ Your message was sent to the administrator. Thank you!"
	textSupportFailed      = "An error occurred while sending your message. Please try again later."
	textSupportUnavailable = "Sorry, support is temporarily unavailable."

	textPasswordPrompt = "🔐 This area is protected. Please enter the password:"
	textWrongPassword  = "❌ Wrong password."
	textMenuWelcome    = "✅ Password accepted. Choose an action:"
	textMenu           = "Choose an action:"
	textMenuExit       = "You left the admin menu."

	textAddPrompt     = "➕ Add a new device\n\nSend the device ID (example: KIT-55555)"
	textNewDatePrompt = "Now send the renewal date (example: 2025-12-31)"
	textNewStatus     = "Finally, send the device status (example: active)"

	textNoRecords     = "No devices yet."
	textChooseDelete  = "🗑️ Choose a device to delete:"
	textChooseEdit    = "✏️ Choose a device to edit:"
	textEmptyStore    = "The database is empty."
	textEditDate      = "Now send the new renewal date (example: 2026-01-15)"
	textEditStatus    = "Now send the new device status (example: inactive)"
	textCancelled     = "Action cancelled."
	textExpired       = "Action expired."
	textInternalError = "Something went wrong. Please try again later."
	textNoFavorites   = "Your favorites list is empty."

	notAvailable = "N/A"
)

func orNA(s string) string {
	if strings.TrimSpace(s) == "" {
		return notAvailable
	}
	return s
}

func welcomeMessage() Message {
	return Message{
		Text: textWelcome,
		Actions: [][]Action{
			{{Label: "🔍 Find device", Key: KeyStartSearch}},
			{{Label: "💬 Technical support", Key: KeyStartSupport}},
		},
	}
}

func backRow() []Action {
	return []Action{{Label: "🔙 Back", Key: KeyAdmin, Payload: MenuBack}}
}

func menuMessage(text string) Message {
	return Message{
		Text: text,
		Actions: [][]Action{
			{{Label: "➕ Add device", Key: KeyAdmin, Payload: MenuAdd}},
			{{Label: "🗑️ Delete device", Key: KeyAdmin, Payload: MenuDelete}},
			{{Label: "✏️ Edit device", Key: KeyAdmin, Payload: MenuEdit}},
			{{Label: "📋 Show all devices", Key: KeyAdmin, Payload: MenuList}},
			{{Label: "❌ Exit", Key: KeyAdmin, Payload: MenuExit}},
		},
	}
}

// recordSummary is the search result with a favorite button.
func recordSummary(rec records.Record) Message {
	return Message{
		Text: fmt.Sprintf("🛰️ Device: %s\n\nStatus: %s\nRenewal date: %s",
			rec.ID, orNA(rec.Status), orNA(rec.RenewalDate)),
		Actions: [][]Action{
			{{Label: "⭐ Add to favorites", Key: KeyFavorite, Payload: rec.ID}},
		},
	}
}

// choiceMessage lists record ids as buttons followed by a back button.
func choiceMessage(text string, ids []string) Message {
	rows := make([][]Action, 0, len(ids)+1)
	for _, id := range ids {
		rows = append(rows, []Action{{Label: id, Key: KeyPick, Payload: id}})
	}
	rows = append(rows, backRow())
	return Message{Text: text, Actions: rows}
}

// listMessage renders the whole store for the admin.
func listMessage(list []records.Record) Message {
	if len(list) == 0 {
		return Message{Text: textEmptyStore, Actions: [][]Action{backRow()}}
	}
	var b strings.Builder
	b.WriteString("All devices:\n")
	for _, rec := range list {
		fmt.Fprintf(&b, "\n- %s | Status: %s | Renewal: %s | Favorites: %d",
			rec.ID, orNA(rec.Status), orNA(rec.RenewalDate), len(rec.FavoritedBy))
	}
	return Message{Text: b.String(), Actions: [][]Action{backRow()}}
}

func favoritesMessage(list []records.Record) Message {
	if len(list) == 0 {
		return Message{Text: textNoFavorites}
	}
	var b strings.Builder
	b.WriteString("⭐ Your favorite devices:\n")
	for _, rec := range list {
		fmt.Fprintf(&b, "\n- %s (expires: %s)", rec.ID, orNA(rec.RenewalDate))
	}
	return Message{Text: b.String()}
}

func supportForward(ev Event, text string) Message {
	from := fmt.Sprintf("ID: %d", ev.UserID)
	if ev.Username != "" {
		from = fmt.Sprintf("@%s (ID: %d)", ev.Username, ev.UserID)
	}
	return Message{Text: "✉️ New support message\n" +
		"--------------------------\n" +
		"From: " + from + "\n" +
		"--------------------------\n" +
		"Message:\n" + text}
}

func favoriteMessage(id string, res records.FavoriteResult) Message {
	if res == records.FavoriteExists {
		return Message{Text: fmt.Sprintf("ℹ️ Device %s is already in your favorites.", id)}
	}
	return Message{Text: fmt.Sprintf("✅ Device %s added to favorites!", id)}
}

func textAdded(id string) string    { return fmt.Sprintf("✅ Device %s added.", id) }
func textDeleted(id string) string  { return fmt.Sprintf("✅ Device %s deleted.", id) }
func textUpdated(id string) string  { return fmt.Sprintf("✅ Device %s updated.", id) }
func textNotFound(id string) string { return fmt.Sprintf("❌ Device %s not found.", id) }
