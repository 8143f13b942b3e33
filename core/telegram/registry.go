package telegram

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/m3rciful/kitwatch/core/logger"
	"github.com/m3rciful/kitwatch/core/telegram/commands"

	tele "gopkg.in/telebot.v4"
)

// Registry holds the slash commands and button handlers of the bot. Entries
// are added while wiring; lookups happen concurrently from update goroutines.
type Registry struct {
	mu        sync.RWMutex
	commands  map[string]commands.Command
	aliases   map[string]string
	callbacks map[string]tele.HandlerFunc

	callbackNotFound tele.HandlerFunc
	textFallback     tele.HandlerFunc
}

// CommandBinding is one registered command under its canonical "/name".
type CommandBinding struct {
	Name    string
	Command commands.Command
}

// NewRegistry creates an empty Registry. Unknown buttons are answered with a
// short notice until SetCallbackNotFound replaces it.
func NewRegistry() *Registry {
	return &Registry{
		commands:  make(map[string]commands.Command),
		aliases:   make(map[string]string),
		callbacks: make(map[string]tele.HandlerFunc),
		callbackNotFound: func(c tele.Context) error {
			return c.Respond(&tele.CallbackResponse{Text: "Unsupported action"})
		},
	}
}

func slashed(name string) string {
	if strings.HasPrefix(name, "/") {
		return name
	}
	return "/" + name
}

func skipRegistration(event, name, reason string) {
	logger.LogEvent(context.Background(), logger.TWire, slog.LevelWarn, event,
		slog.String("status", "skip"),
		slog.String("name", name),
		slog.String("reason", reason),
	)
}

// RegisterCommand adds cmd under name, which must start with "/". Invalid or
// colliding registrations are logged and ignored.
func (r *Registry) RegisterCommand(name string, cmd commands.Command) {
	switch {
	case cmd.Handler == nil || cmd.Description == "":
		skipRegistration("register.command.skip", name, "invalid")
		return
	case !strings.HasPrefix(name, "/") || len(name) < 2:
		skipRegistration("register.command.skip", name, "no_slash_prefix")
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, taken := r.commands[name]; taken {
		skipRegistration("register.command.duplicate", name, "duplicate")
		return
	}
	if _, taken := r.aliases[name]; taken {
		skipRegistration("register.command.duplicate", name, "alias_taken")
		return
	}
	r.commands[name] = cmd
	for _, alias := range cmd.Aliases {
		alias = slashed(alias)
		if _, taken := r.commands[alias]; taken {
			skipRegistration("register.alias.skip", alias, "command_taken")
			continue
		}
		r.aliases[alias] = name
	}
}

// LookupCommand resolves a command name or alias, with or without the slash,
// to its canonical name.
func (r *Registry) LookupCommand(name string) (string, commands.Command, bool) {
	name = slashed(name)
	r.mu.RLock()
	defer r.mu.RUnlock()
	if canonical, ok := r.aliases[name]; ok {
		name = canonical
	}
	cmd, ok := r.commands[name]
	if !ok {
		return "", commands.Command{}, false
	}
	return name, cmd, true
}

// Bindings lists the registered commands sorted by name.
func (r *Registry) Bindings() []CommandBinding {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]CommandBinding, 0, len(r.commands))
	for name, cmd := range r.commands {
		out = append(out, CommandBinding{Name: name, Command: cmd})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// ListCommands returns the Telegram menu entries, optionally without hidden commands.
func (r *Registry) ListCommands(visibleOnly bool) []tele.Command {
	var list []tele.Command
	for _, b := range r.Bindings() {
		if visibleOnly && b.Command.Hidden {
			continue
		}
		list = append(list, tele.Command{Text: b.Name, Description: b.Command.Description})
	}
	return list
}

// RegisterCallback maps a button key to handler. Keys are unique.
func (r *Registry) RegisterCallback(key string, handler tele.HandlerFunc) error {
	if key == "" || handler == nil {
		skipRegistration("register.callback.skip", key, "invalid")
		return fmt.Errorf("telegram: invalid callback registration %q", key)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, taken := r.callbacks[key]; taken {
		skipRegistration("register.callback.duplicate", key, "duplicate")
		return fmt.Errorf("telegram: callback already registered: %s", key)
	}
	r.callbacks[key] = handler
	return nil
}

// GetCallback returns the handler of a button key.
func (r *Registry) GetCallback(key string) (tele.HandlerFunc, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.callbacks[key]
	return h, ok
}

// CallbackCount reports how many button keys are registered.
func (r *Registry) CallbackCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.callbacks)
}

// SetCallbackNotFound replaces the handler for unknown button keys; nil is ignored.
func (r *Registry) SetCallbackNotFound(h tele.HandlerFunc) {
	if h == nil {
		return
	}
	r.mu.Lock()
	r.callbackNotFound = h
	r.mu.Unlock()
}

// CallbackNotFound returns the handler for unknown button keys.
func (r *Registry) CallbackNotFound() tele.HandlerFunc {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.callbackNotFound
}

// SetTextFallback sets the handler for text that no command or conversation takes.
func (r *Registry) SetTextFallback(h tele.HandlerFunc) {
	r.mu.Lock()
	r.textFallback = h
	r.mu.Unlock()
}

// TextFallback returns the handler for unclaimed text, or nil.
func (r *Registry) TextFallback() tele.HandlerFunc {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.textFallback
}

// commandSetter is the part of *tele.Bot that publishes the command menu.
type commandSetter interface {
	SetCommands(opts ...interface{}) error
}

// InitBotCommands publishes the visible commands to the Telegram command menu.
// Failure is logged; the bot works without a menu.
func InitBotCommands(ctx context.Context, bot commandSetter, reg *Registry) {
	list := reg.ListCommands(true)
	if err := bot.SetCommands(list); err != nil {
		logger.LogEvent(ctx, logger.TWire, slog.LevelError, "register.commands.set_failed",
			slog.String("status", "fail"),
			logger.Err(err),
		)
		return
	}
	logger.LogEvent(ctx, logger.TWire, slog.LevelInfo, "register.commands.set",
		slog.String("status", "ok"),
		slog.Int("commands", len(list)),
	)
}
