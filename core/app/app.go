// Package app assembles the bot process from configuration: record store,
// conversation engine, Telegram transport, reminder scheduler and HTTP API.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/kitwatch/core/bootstrap"
	"github.com/m3rciful/kitwatch/core/buildinfo"
	coreconfig "github.com/m3rciful/kitwatch/core/config"
	"github.com/m3rciful/kitwatch/core/conversation"
	"github.com/m3rciful/kitwatch/core/httpapi"
	"github.com/m3rciful/kitwatch/core/logger"
	"github.com/m3rciful/kitwatch/core/notify"
	"github.com/m3rciful/kitwatch/core/state"
	tg "github.com/m3rciful/kitwatch/core/telegram"
	"github.com/m3rciful/kitwatch/core/telegram/handlers"
	"github.com/m3rciful/kitwatch/core/telegram/router"
	"github.com/m3rciful/kitwatch/core/telegram/sender"
)

const shutdownTimeout = 10 * time.Second

// App is a fully wired bot process.
type App struct {
	cfg        *coreconfig.Config
	infra      *bootstrap.Result
	bot        *tele.Bot
	dispatcher *sender.Dispatcher
	channel    *tg.Channel
	sessions   state.Manager
	engine     *conversation.Engine
	handlers   *handlers.Handlers
	registry   *tg.Registry
	scheduler  *notify.Scheduler
	http       *httpapi.Server
}

// New wires every component around bot and the bootstrapped store.
func New(cfg *coreconfig.Config, infra *bootstrap.Result, bot *tele.Bot) (*App, error) {
	if cfg == nil || infra == nil || infra.Store == nil || bot == nil {
		return nil, errors.New("app: config, store and bot are required")
	}

	a := &App{cfg: cfg, infra: infra, bot: bot}
	a.dispatcher = NewDispatcher(cfg)
	a.channel = tg.NewChannel(bot, a.dispatcher)
	a.sessions = state.NewMemoryManager(state.WithTTL(cfg.Session.TTL))

	engine, err := conversation.New(infra.Store, a.channel, a.sessions, conversation.Config{
		AdminPassword:    cfg.Bot.AdminPassword,
		AdminDestination: cfg.Bot.AdminChatID,
	})
	if err != nil {
		return nil, fmt.Errorf("app: conversation engine: %w", err)
	}
	a.engine = engine

	a.registry = tg.NewRegistry()
	a.handlers = handlers.New(engine)
	if err := a.handlers.Register(a.registry); err != nil {
		return nil, fmt.Errorf("app: register handlers: %w", err)
	}

	a.scheduler, err = NewScheduler(cfg, infra, a.channel, a.sessions)
	if err != nil {
		return nil, err
	}

	a.http = httpapi.NewServer(cfg.HTTPAddr(), httpapi.NewRouter(a.scheduler, httpapi.Options{
		Secret:  cfg.Bot.TriggerSecret,
		Version: buildinfo.Version,
	}))
	return a, nil
}

// NewDispatcher builds the outbound dispatcher from the sender settings.
func NewDispatcher(cfg *coreconfig.Config) *sender.Dispatcher {
	return sender.NewDispatcher(sender.Options{
		QueueSize:    cfg.Sender.QueueSize,
		Workers:      cfg.Sender.Workers,
		MaxRetries:   cfg.Sender.MaxRetries,
		RetryBackoff: cfg.Sender.RetryBackoff,
	})
}

// NewScheduler builds the reminder scheduler. sessions may be nil when no
// conversation runs in the process.
func NewScheduler(cfg *coreconfig.Config, infra *bootstrap.Result, notifier notify.Notifier, sessions state.Manager) (*notify.Scheduler, error) {
	scanner := notify.NewScanner(infra.Store, notifier, notify.Options{
		LeadDays: cfg.Scan.LeadDays,
		Location: cfg.Location(),
	})
	opts := notify.SchedulerOptions{
		Spec:     cfg.Scan.Schedule,
		Location: cfg.Location(),
	}
	if sessions != nil {
		opts.Sessions = sessions
	}
	s, err := notify.NewScheduler(scanner, opts)
	if err != nil {
		return nil, fmt.Errorf("app: scheduler: %w", err)
	}
	return s, nil
}

// TelegramRunOptions describes how the Telegram runtime drives the app.
func (a *App) TelegramRunOptions() (tg.RunOptions, error) {
	routes := router.CommandRoutes(a.registry)
	routes = append(routes, router.CallbackRoute(a.registry))
	routes = append(routes, router.TextRoutes(a.handlers, a.registry)...)

	return tg.RunOptions{
		Config:      a.cfg,
		Bot:         a.bot,
		Registry:    a.registry,
		Dispatcher:  a.dispatcher,
		Middlewares: tg.DefaultMiddlewares(a.cfg, nil),
		Routes:      routes,
		OnStart:     a.onStart,
		OnStop:      a.onStop,
	}, nil
}

func (a *App) onStart(ctx context.Context, _ tg.Runtime) error {
	if err := a.http.Start(ctx); err != nil {
		return fmt.Errorf("app: http listen: %w", err)
	}
	a.scheduler.Start(ctx)
	if a.cfg.Scan.OnStart {
		if err := a.scheduler.Trigger(); err != nil {
			logger.LogEvent(ctx, logger.App, slog.LevelWarn, "scan.on_start",
				slog.String("status", "skip"),
				logger.Err(err),
			)
		}
	}
	return nil
}

func (a *App) onStop(ctx context.Context, _ tg.Runtime) error {
	ctx, cancel := context.WithTimeout(ctx, shutdownTimeout)
	defer cancel()

	var errs []error
	if err := a.http.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("http shutdown: %w", err))
	}
	a.scheduler.Stop()
	if err := a.infra.Close(); err != nil {
		errs = append(errs, fmt.Errorf("store close: %w", err))
	}
	return errors.Join(errs...)
}
