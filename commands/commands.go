// Package commands holds the interactive bot commands. Each one is a plain
// command.Definition; the dialogs among them are built on session.Store.
package commands

import (
	"context"
	"strings"
	"time"

	"github.com/jdelaire/openbot/core/chat"
	"github.com/jdelaire/openbot/core/command"
	"github.com/jdelaire/openbot/core/session"
)

// DefaultTTL is how long a prompt waits for its answer.
const DefaultTTL = 2 * time.Minute

// AccessAdmin edits the access-control lists. Both policy.Policy and
// accessdb.DB implement it.
type AccessAdmin interface {
	Ban(ctx context.Context, platform, userID string) error
	Unban(ctx context.Context, platform, userID string) error
	Blacklist(ctx context.Context, platform, chatID string, on bool) error
	AllowUser(ctx context.Context, name, userID string) error
	AllowChat(ctx context.Context, name, chatID string) error
}

// Deps are the services the commands need.
type Deps struct {
	Sessions *session.Store
	Ratings  *Ratings
	// Access may be nil, in which case the owner commands are not registered.
	Access AccessAdmin
	// TTL defaults to DefaultTTL.
	TTL time.Duration
}

// Register adds every command in this package to reg.
func Register(reg *command.Registry, deps Deps) error {
	if deps.TTL <= 0 {
		deps.TTL = DefaultTTL
	}
	if deps.Ratings == nil {
		deps.Ratings = NewRatings()
	}

	defs := []*command.Definition{
		Rate(deps.Sessions, deps.Ratings, deps.TTL),
		Guess(deps.Sessions, deps.TTL, nil),
	}
	if deps.Access != nil {
		defs = append(defs,
			Ban(deps.Sessions, deps.Access, deps.TTL),
			Unban(deps.Access),
			Blacklist(deps.Sessions, deps.Access, deps.TTL),
			Allow(deps.Access, reg.Lookup),
		)
	}
	for _, def := range defs {
		if err := reg.Register(def); err != nil {
			return err
		}
	}
	return nil
}

// replyTo returns the sender of the message c quotes, if any.
func replyTo(c *chat.Context) string {
	if c.Msg.Quoted != nil {
		return c.Msg.Quoted.SenderID
	}
	return ""
}

func isYes(text string) bool {
	switch strings.ToLower(strings.TrimSpace(text)) {
	case "y", "yes", "ok", "confirm":
		return true
	}
	return false
}

func isNo(text string) bool {
	switch strings.ToLower(strings.TrimSpace(text)) {
	case "n", "no", "cancel":
		return true
	}
	return false
}

func yesOrNo(msg *chat.Message) bool {
	return isYes(msg.Text) || isNo(msg.Text)
}
