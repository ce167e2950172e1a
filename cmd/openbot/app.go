package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/jdelaire/openbot/adapters/discord"
	"github.com/jdelaire/openbot/adapters/telegram"
	"github.com/jdelaire/openbot/adapters/webchat"
	"github.com/jdelaire/openbot/commands"
	"github.com/jdelaire/openbot/core"
	"github.com/jdelaire/openbot/core/chat"
	"github.com/jdelaire/openbot/core/command"
	"github.com/jdelaire/openbot/core/configwatch"
	"github.com/jdelaire/openbot/core/policy"
	"github.com/jdelaire/openbot/core/ratelimit"
	"github.com/jdelaire/openbot/core/session"
	"github.com/jdelaire/openbot/internal/accessdb"
	"github.com/jdelaire/openbot/internal/config"
	"github.com/jdelaire/openbot/internal/janitor"
)

const watchInterval = 2 * time.Second

var errNoAdapters = errors.New("no adapters enabled (set telegram.enabled, discord.enabled or webchat.enabled)")

// accessStore is an access-control backend the whole bot can share.
type accessStore interface {
	core.AccessControl
	command.AllowLister
	commands.AccessAdmin
}

type app struct {
	logger     *slog.Logger
	adapters   *core.Registry
	receivers  []chat.Receiver
	dispatcher *core.Dispatcher
	server     *core.Server
	watcher    *configwatch.Watcher
	janitor    *janitor.Janitor
	closers    []io.Closer
}

// adapterFactory builds one adapter around the dispatch handler.
type adapterFactory func(handler chat.Handler) (chat.Adapter, error)

func newApp(ctx context.Context, cfg config.Config, secrets config.Secrets, logger *slog.Logger) (*app, error) {
	a := &app{logger: logger, adapters: core.NewRegistry()}

	access, err := a.openAccess(ctx, cfg.Access)
	if err != nil {
		return nil, err
	}

	sessions := session.New(logger.With("component", "sessions"))
	limiter := ratelimit.New(cfg.RateLimit)
	registry := command.NewRegistry(command.Options{
		Allow:            access,
		TrustedPlatforms: cfg.TrustedPlatforms,
		CooldownHorizon:  cfg.CooldownHorizon,
	}, logger.With("component", "commands"))

	if err := registry.Register(command.Help(registry)); err != nil {
		a.Close()
		return nil, err
	}
	if err := registry.Register(command.Status()); err != nil {
		a.Close()
		return nil, err
	}
	if err := commands.Register(registry, commands.Deps{Sessions: sessions, Access: access, TTL: cfg.SessionTTL}); err != nil {
		a.Close()
		return nil, fmt.Errorf("register commands: %w", err)
	}

	triggers := core.NewTriggerTable()
	if cfg.CommandsFile != "" {
		reloader := core.NewReloader(registry, triggers, logger.With("component", "reload"))
		reloader.Reload(cfg.CommandsFile)
		a.watcher = configwatch.New(watchInterval, logger.With("component", "configwatch"))
		a.watcher.Watch(cfg.CommandsFile, reloader.Reload)
	}

	a.dispatcher = core.NewDispatcher(core.Deps{
		Adapters: a.adapters,
		Sessions: sessions,
		Commands: registry,
		Limiter:  limiter,
		Access:   access,
		Dedup:    policy.NewDedup(),
		Triggers: triggers,
		Owners:   cfg.Owners,
		Prefixes: cfg.Prefixes,
	}, logger.With("component", "dispatcher"))

	for _, build := range adapterFactories(cfg, secrets, logger) {
		adapter, err := build(a.dispatcher.Enqueue)
		if err != nil {
			a.Close()
			return nil, err
		}
		if err := a.adapters.Register(adapter); err != nil {
			a.Close()
			return nil, err
		}
		if r, ok := adapter.(chat.Receiver); ok {
			a.receivers = append(a.receivers, r)
		}
	}
	if a.adapters.Len() == 0 {
		a.Close()
		return nil, errNoAdapters
	}

	a.server = core.NewServer(cfg.Socket, a.adapters, logger.With("component", "notify"))

	a.janitor, err = janitor.New(cfg.JanitorSchedule, []janitor.Task{
		{Name: "cooldowns", Run: registry.PurgeCooldowns},
		{Name: "rate_limits", Run: limiter.Sweep},
		{Name: "sessions", Run: sessions.Sweep},
	}, logger.With("component", "janitor"))
	if err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

// openAccess picks the SQLite store when a path is configured and the
// in-memory policy otherwise, then seeds it from the config lists.
func (a *app) openAccess(ctx context.Context, cfg config.AccessConfig) (accessStore, error) {
	var store accessStore
	if cfg.DB != "" {
		db, err := accessdb.Open(cfg.DB)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, db)
		store = db
	} else {
		store = policy.New()
	}

	if err := seedAccess(ctx, store, cfg); err != nil {
		a.Close()
		return nil, err
	}
	return store, nil
}

func seedAccess(ctx context.Context, store commands.AccessAdmin, cfg config.AccessConfig) error {
	for _, b := range cfg.Banned {
		if err := store.Ban(ctx, b.Platform, b.ID); err != nil {
			return fmt.Errorf("seed ban %s:%s: %w", b.Platform, b.ID, err)
		}
	}
	for _, c := range cfg.BlacklistedChats {
		if err := store.Blacklist(ctx, c.Platform, c.ID, true); err != nil {
			return fmt.Errorf("seed blacklist %s:%s: %w", c.Platform, c.ID, err)
		}
	}
	return nil
}

func adapterFactories(cfg config.Config, secrets config.Secrets, logger *slog.Logger) []adapterFactory {
	var out []adapterFactory
	if cfg.Telegram.Enabled {
		out = append(out, func(h chat.Handler) (chat.Adapter, error) {
			return telegram.New(secrets.TelegramToken, h, logger.With("platform", "telegram")).
				WithBaseURL(cfg.Telegram.BaseURL).
				WithPollTimeout(cfg.Telegram.PollTimeout), nil
		})
	}
	if cfg.Discord.Enabled {
		out = append(out, func(h chat.Handler) (chat.Adapter, error) {
			bot, err := discord.New(secrets.DiscordToken, h, logger.With("platform", "discord"))
			if err != nil {
				return nil, fmt.Errorf("discord: %w", err)
			}
			return bot, nil
		})
	}
	if cfg.Webchat.Enabled {
		out = append(out, func(h chat.Handler) (chat.Adapter, error) {
			return webchat.New(cfg.Webchat.Listen, cfg.Webchat.Admins, h, logger.With("platform", "webchat")), nil
		})
	}
	return out
}

// Run starts every receiver and background service and blocks until ctx is
// cancelled or a receiver fails. The dispatcher lanes have exited by the
// time it returns.
func (a *app) Run(ctx context.Context) error {
	if err := a.server.Start(ctx); err != nil {
		return err
	}
	defer a.server.Shutdown()

	g, gctx := errgroup.WithContext(ctx)
	for _, r := range a.receivers {
		g.Go(func() error { return r.Start(gctx) })
	}
	if a.watcher != nil {
		g.Go(func() error {
			a.watcher.Run(gctx)
			return nil
		})
	}
	g.Go(func() error {
		a.janitor.Run(gctx)
		return nil
	})

	a.logger.Info("openbot running", "platforms", a.adapters.Platforms())
	err := g.Wait()

	a.dispatcher.Shutdown()
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	a.logger.Info("openbot stopped")
	return nil
}

func (a *app) Close() {
	for _, c := range a.closers {
		if err := c.Close(); err != nil {
			a.logger.Warn("close failed", "error", err)
		}
	}
	a.closers = nil
}
