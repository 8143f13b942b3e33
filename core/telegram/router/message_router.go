package router

import (
	"log/slog"
	"strings"
	"time"

	"github.com/m3rciful/kitwatch/core/logger"
	tg "github.com/m3rciful/kitwatch/core/telegram"

	tele "gopkg.in/telebot.v4"
)

// FSM is the conversation side of text routing.
type FSM interface {
	InProgress(userID int64) bool
	Handle(c tele.Context) error
}

// TextRoutes routes plain text: slash commands first, then an active
// conversation, then the registry fallback. Unregistered commands are dropped.
func TextRoutes(fsm FSM, reg *tg.Registry) []tg.Route {
	handler := func(c tele.Context) error {
		start := time.Now()
		text := strings.TrimSpace(c.Text())

		// Commands reach OnText when they carry a @botname suffix, an alias that
		// was not bound as an endpoint, or no registration at all. None of them
		// is workflow input.
		if strings.HasPrefix(text, "/") {
			name, _, _ := strings.Cut(strings.Fields(text)[0], "@")
			if reg != nil {
				if key, cmd, ok := reg.LookupCommand(name); ok {
					return handleWithSummary(c, normalizeHandlerName(key), start, func() error {
						return cmd.Handler(c)
					})
				}
			}
			logHandlerSummary(c, "unknown_command", start, "skip", nil,
				slog.String("reason", "unknown_command"),
				slog.String("payload", logger.SanitizeLimit(name, 64)),
			)
			return nil
		}

		if fsm != nil && c.Sender() != nil && fsm.InProgress(c.Sender().ID) {
			return handleWithSummary(c, "fsm", start, func() error {
				return fsm.Handle(c)
			})
		}

		if reg != nil {
			if fb := reg.TextFallback(); fb != nil {
				return handleWithSummary(c, "fallback", start, func() error {
					return fb(c)
				})
			}
		}

		logHandlerSummary(c, "unknown_text", start, "skip", nil)
		return nil
	}

	return []tg.Route{{Endpoint: tele.OnText, Handler: handler}}
}
