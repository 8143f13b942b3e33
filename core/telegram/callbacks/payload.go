// Package callbacks decodes inline button data produced by telebot.
package callbacks

import (
	"strings"

	tele "gopkg.in/telebot.v4"
)

// Parse returns the button key and payload of cb.
//
// Telebot strips the "\f<unique>|" prefix and fills cb.Unique when it routes to
// an endpoint registered for that unique; a generic OnCallback handler sees the
// raw encoding in cb.Data instead. Both forms are accepted.
func Parse(cb *tele.Callback) (key, payload string) {
	if cb == nil {
		return "", ""
	}
	if cb.Unique != "" {
		return cb.Unique, cb.Data
	}
	raw := strings.TrimPrefix(cb.Data, "\f")
	if raw == cb.Data {
		// Data without the telebot marker carries no key.
		return "", raw
	}
	key, payload, _ = strings.Cut(raw, "|")
	return strings.TrimSpace(key), payload
}
