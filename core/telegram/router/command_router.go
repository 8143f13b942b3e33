package router

import (
	"context"
	"log/slog"
	"time"

	"github.com/m3rciful/kitwatch/core/logger"
	tg "github.com/m3rciful/kitwatch/core/telegram"

	tele "gopkg.in/telebot.v4"
)

// CommandRoutes binds every registered command and its aliases to a route that
// logs a handler summary.
func CommandRoutes(reg *tg.Registry) []tg.Route {
	if reg == nil {
		return nil
	}

	bindings := reg.Bindings()
	routes := make([]tg.Route, 0, len(bindings))
	for _, b := range bindings {
		def := b.Command
		handlerName := normalizeHandlerName(b.Name)
		h := func(c tele.Context) error {
			return handleWithSummary(c, handlerName, time.Now(), func() error {
				return def.Handler(c)
			})
		}
		routes = append(routes, tg.Route{Endpoint: b.Name, Handler: h})
		for _, alias := range def.Aliases {
			routes = append(routes, tg.Route{Endpoint: "/" + alias, Handler: h})
		}
	}

	logger.LogEvent(context.Background(), logger.TWire, slog.LevelInfo, "tg.wire.complete",
		slog.Int("commands", len(bindings)),
		slog.Int("callbacks", reg.CallbackCount()),
	)
	return routes
}
