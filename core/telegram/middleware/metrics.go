package middleware

import (
	"context"
	"sync/atomic"

	tghelpers "github.com/m3rciful/kitwatch/core/telegram/helpers"

	tele "gopkg.in/telebot.v4"
)

// Counters tracks how many messages an update produced and whether any of
// them carried a keyboard.
type Counters struct {
	messages atomic.Int32
	kb       atomic.Bool
}

type countersKey struct{}

// WithCounters returns ctx carrying a fresh Counters.
func WithCounters(ctx context.Context) (context.Context, *Counters) {
	c := &Counters{}
	return context.WithValue(ctx, countersKey{}, c), c
}

// CountersFrom returns the Counters stored in ctx, if any.
func CountersFrom(ctx context.Context) *Counters {
	if ctx == nil {
		return nil
	}
	c, _ := ctx.Value(countersKey{}).(*Counters)
	return c
}

// RecordMessage counts one outbound message against the update in ctx.
func RecordMessage(ctx context.Context, withKeyboard bool) {
	c := CountersFrom(ctx)
	if c == nil {
		return
	}
	c.messages.Add(1)
	if withKeyboard {
		c.kb.Store(true)
	}
}

// Snapshot returns the message count and keyboard flag.
func (c *Counters) Snapshot() (int, bool) {
	if c == nil {
		return 0, false
	}
	return int(c.messages.Load()), c.kb.Load()
}

// MessageMetricsMiddleware attaches Counters to the update context.
func MessageMetricsMiddleware(next tele.HandlerFunc) tele.HandlerFunc {
	return func(c tele.Context) error {
		ctx, _ := WithCounters(tghelpers.BuildContext(c))
		tghelpers.StoreContext(c, ctx)
		return next(c)
	}
}

// GetCounters reads the counters of the update carried by c.
func GetCounters(c tele.Context) (int, bool) {
	ctx, ok := tghelpers.ContextFrom(c)
	if !ok {
		return 0, false
	}
	return CountersFrom(ctx).Snapshot()
}
