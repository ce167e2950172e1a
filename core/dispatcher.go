package core

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/jdelaire/openbot/core/chat"
	"github.com/jdelaire/openbot/core/command"
	"github.com/jdelaire/openbot/core/policy"
	"github.com/jdelaire/openbot/core/ratelimit"
	"github.com/jdelaire/openbot/core/session"
)

// AccessControl answers ban and blacklist lookups.
type AccessControl interface {
	IsBanned(ctx context.Context, platform, userID string) (bool, error)
	IsChatBlacklisted(ctx context.Context, platform, chatID string) (bool, error)
}

// GenericHandler receives every message that is not consumed by a session
// and passes access control.
type GenericHandler func(ctx context.Context, c *chat.Context) error

// Deps are the services a Dispatcher borrows for each message.
type Deps struct {
	Adapters *Registry
	Sessions *session.Store
	Commands *command.Registry
	Limiter  *ratelimit.Limiter
	// Access may be nil, in which case nobody is banned.
	Access AccessControl
	// Dedup may be nil.
	Dedup    *policy.Dedup
	Triggers *TriggerTable
	// Owners lists owner identities per platform.
	Owners   map[string][]string
	Prefixes []string
}

type namedHandler struct {
	name string
	fn   GenericHandler
}

// Dispatcher runs the per-message pipeline: session continuation, access
// control, generic handlers, trigger rewriting, rate limiting and command
// execution. It keeps no state of its own beyond the handler list and the
// per-chat lanes.
type Dispatcher struct {
	deps   Deps
	logger *slog.Logger

	mu       sync.RWMutex
	handlers []namedHandler

	lanes *lanes
}

// NewDispatcher creates a Dispatcher.
func NewDispatcher(deps Deps, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	if len(deps.Prefixes) == 0 {
		deps.Prefixes = DefaultPrefixes
	}
	d := &Dispatcher{
		deps:   deps,
		logger: logger,
	}
	d.lanes = newLanes(d.Handle, logger)
	return d
}

// AddHandler registers a generic handler. Handlers run in registration
// order, each isolated from the others' failures.
func (d *Dispatcher) AddHandler(name string, fn GenericHandler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handlers = append(d.handlers, namedHandler{name: name, fn: fn})
}

// Enqueue schedules msg on its chat's lane. Messages of one chat are
// handled in the order they were enqueued; different chats run
// concurrently. Adapters use Enqueue as their chat.Handler.
func (d *Dispatcher) Enqueue(ctx context.Context, msg chat.Message) {
	d.lanes.push(ctx, msg)
}

// Shutdown stops accepting messages and waits for queued ones to finish.
func (d *Dispatcher) Shutdown() {
	d.lanes.shutdown()
}

// Handle processes one message synchronously.
func (d *Dispatcher) Handle(ctx context.Context, msg chat.Message) {
	adapter, err := d.deps.Adapters.Get(msg.Platform)
	if err != nil {
		d.logger.Error("no adapter for message", "platform", msg.Platform, "error", err)
		return
	}

	log := d.logger.With(
		"dispatch_id", uuid.NewString(),
		"platform", msg.Platform,
		"chat_id", msg.ChatID,
		"user_id", msg.SenderID,
	)

	if d.deps.Dedup != nil {
		// Message ids are only unique within a chat on some platforms.
		id := msg.AnchorID
		if id != "" {
			id = msg.ChatID + "/" + id
		}
		if err := d.deps.Dedup.Admit(msg.Platform, id, msg.Timestamp); err != nil {
			log.Debug("message dropped", "error", err)
			return
		}
	}

	if !msg.IsOwner && chat.ContainsID(d.deps.Owners[msg.Platform], msg.SenderID) {
		msg.IsOwner = true
	}
	c := chat.NewContext(&msg, adapter)

	// 1. Open dialogs take precedence over everything else.
	if d.deps.Sessions != nil {
		handled, err := d.deps.Sessions.Resolve(ctx, c)
		if err != nil {
			log.Error("session handler failed", "error", err)
		}
		if handled {
			return
		}
	}

	// 2. Access control.
	if d.blocked(ctx, log, &msg) {
		return
	}

	// 3. Generic handlers.
	d.runHandlers(ctx, log, c)

	// 4. Command parsing and trigger rewriting.
	if msg.Command == "" {
		msg.Command, msg.Args, msg.ArgText = parseCommand(msg.Text, d.deps.Prefixes)
	}
	if d.deps.Triggers.Rewrite(&msg) {
		log.Debug("trigger rewrote message", "command", msg.Command)
	}

	// 5. Rate limit and execute.
	if msg.Command == "" || d.deps.Commands == nil {
		return
	}
	def := d.deps.Commands.Lookup(msg.Command)
	if def == nil {
		log.Debug("unknown command", "command", msg.Command)
		return
	}

	if def.AdminOnly && msg.IsGroup && !msg.IsAdmin {
		d.resolveAdmin(ctx, log, c)
	}

	if d.deps.Limiter != nil {
		decision := d.deps.Limiter.Check(msg.SenderID, msg.Platform)
		if !decision.Allowed {
			log.Debug("rate limited", "command", def.Name, "reason", decision.Reason, "reset_in", decision.ResetIn)
			if _, err := c.Reply(ctx, throttleText(decision)); err != nil {
				log.Error("failed to send throttle notice", "error", err)
			}
			return
		}
	}

	outcome := d.deps.Commands.Execute(ctx, c)
	log.Debug("command dispatched", "command", def.Name, "outcome", outcome.String())
}

func (d *Dispatcher) blocked(ctx context.Context, log *slog.Logger, msg *chat.Message) bool {
	if d.deps.Access == nil || msg.IsOwner {
		return false
	}
	banned, err := d.deps.Access.IsBanned(ctx, msg.Platform, msg.SenderID)
	if err != nil {
		log.Error("ban lookup failed", "error", err)
	}
	if banned {
		log.Debug("message from banned user dropped")
		return true
	}
	blacklisted, err := d.deps.Access.IsChatBlacklisted(ctx, msg.Platform, msg.ChatID)
	if err != nil {
		log.Error("blacklist lookup failed", "error", err)
	}
	if blacklisted {
		log.Debug("message in blacklisted chat dropped")
		return true
	}
	return false
}

func (d *Dispatcher) runHandlers(ctx context.Context, log *slog.Logger, c *chat.Context) {
	d.mu.RLock()
	handlers := append([]namedHandler(nil), d.handlers...)
	d.mu.RUnlock()

	for _, h := range handlers {
		if err := chat.Protect(func() error { return h.fn(ctx, c) }); err != nil {
			log.Error("generic handler failed", "handler", h.name, "error", err)
		}
	}
}

// resolveAdmin fills IsAdmin for an admin-only command in a group. Owners
// are treated as admins for this dispatch only.
func (d *Dispatcher) resolveAdmin(ctx context.Context, log *slog.Logger, c *chat.Context) {
	msg := c.Msg
	if msg.IsOwner {
		msg.IsAdmin = true
		return
	}
	admin, err := c.Adapter.IsGroupAdmin(ctx, msg.ChatID, msg.SenderID)
	if err != nil {
		log.Warn("admin lookup failed", "error", err)
		return
	}
	msg.IsAdmin = admin
}

func throttleText(d ratelimit.Decision) string {
	secs := int(d.ResetIn.Seconds() + 0.999)
	if d.Reason == ratelimit.ReasonBlocked {
		return fmt.Sprintf("You are sending commands too fast and are blocked for %ds.", secs)
	}
	return fmt.Sprintf("Slow down! Try again in %ds.", secs)
}
