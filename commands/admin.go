package commands

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jdelaire/openbot/core/chat"
	"github.com/jdelaire/openbot/core/command"
	"github.com/jdelaire/openbot/core/session"
)

// target resolves the user an owner command acts on: the first argument,
// else the sender of the quoted message.
func target(c *chat.Context) string {
	if len(c.Msg.Args) > 0 {
		return c.Msg.Args[0]
	}
	return replyTo(c)
}

// confirm asks the sender to answer yes or no, then runs apply on yes.
func confirm(ctx context.Context, c *chat.Context, sessions *session.Store, ttl time.Duration, kind, question string, apply func(context.Context) (string, error)) error {
	promptID, err := c.Reply(ctx, question+" Reply yes or no.")
	if err != nil {
		return fmt.Errorf("send confirmation: %w", err)
	}
	_, err = sessions.Open(c.Msg.ChatID, promptID, session.Options{
		Type:  kind,
		Owner: c.Msg.SenderID,
		Match: yesOrNo,
		TTL:   ttl,
		OnResolve: func(ctx context.Context, c *chat.Context, _ *session.Session) (session.Result, error) {
			if isNo(c.Msg.Text) {
				_, err := c.Reply(ctx, "Cancelled.")
				return session.Done, err
			}
			text, err := apply(ctx)
			if err != nil {
				return session.Done, err
			}
			_, err = c.Reply(ctx, text)
			return session.Done, err
		},
	})
	if err != nil {
		return fmt.Errorf("open %s session: %w", kind, err)
	}
	return nil
}

// Ban bans a user on the current platform after confirmation.
func Ban(sessions *session.Store, access AccessAdmin, ttl time.Duration) *command.Definition {
	return &command.Definition{
		Name:        "ban",
		Description: "Ban a user from using the bot",
		Usage:       "/ban <user> (or reply to their message)",
		Category:    "admin",
		OwnerOnly:   true,
		Handler: func(ctx context.Context, c *chat.Context) error {
			user := target(c)
			if user == "" {
				_, err := c.Reply(ctx, "Usage: /ban <user>")
				return err
			}
			platform := c.Msg.Platform
			return confirm(ctx, c, sessions, ttl, "ban", fmt.Sprintf("Ban %s on %s?", user, platform),
				func(ctx context.Context) (string, error) {
					if err := access.Ban(ctx, platform, user); err != nil {
						return "", fmt.Errorf("ban %s: %w", user, err)
					}
					return fmt.Sprintf("%s is banned.", user), nil
				})
		},
	}
}

// Unban lifts a ban immediately.
func Unban(access AccessAdmin) *command.Definition {
	return &command.Definition{
		Name:        "unban",
		Description: "Lift a ban",
		Usage:       "/unban <user>",
		Category:    "admin",
		OwnerOnly:   true,
		Handler: func(ctx context.Context, c *chat.Context) error {
			user := target(c)
			if user == "" {
				_, err := c.Reply(ctx, "Usage: /unban <user>")
				return err
			}
			if err := access.Unban(ctx, c.Msg.Platform, user); err != nil {
				return fmt.Errorf("unban %s: %w", user, err)
			}
			_, err := c.Replyf(ctx, "%s is no longer banned.", user)
			return err
		},
	}
}

// Blacklist mutes or unmutes the current chat. Muting asks for
// confirmation because the bot stops answering there.
func Blacklist(sessions *session.Store, access AccessAdmin, ttl time.Duration) *command.Definition {
	return &command.Definition{
		Name:        "blacklist",
		Aliases:     []string{"mute"},
		Description: "Stop or resume answering in this chat",
		Usage:       "/blacklist [on|off]",
		Category:    "admin",
		OwnerOnly:   true,
		Handler: func(ctx context.Context, c *chat.Context) error {
			platform, chatID := c.Msg.Platform, c.Msg.ChatID
			mode := "on"
			if len(c.Msg.Args) > 0 {
				mode = strings.ToLower(c.Msg.Args[0])
			}
			switch mode {
			case "off":
				if err := access.Blacklist(ctx, platform, chatID, false); err != nil {
					return fmt.Errorf("unblacklist %s: %w", chatID, err)
				}
				_, err := c.Reply(ctx, "This chat is no longer blacklisted.")
				return err
			case "on":
				return confirm(ctx, c, sessions, ttl, "blacklist", "Stop answering everyone but owners in this chat?",
					func(ctx context.Context) (string, error) {
						if err := access.Blacklist(ctx, platform, chatID, true); err != nil {
							return "", fmt.Errorf("blacklist %s: %w", chatID, err)
						}
						return "This chat is blacklisted.", nil
					})
			default:
				_, err := c.Reply(ctx, "Usage: /blacklist [on|off]")
				return err
			}
		},
	}
}

// Allow adds a user or a chat to a command's allow-list. Once a command
// has an allow-list, only listed users and chats may run it. Aliases are
// resolved through lookup so the list is stored under the primary name.
func Allow(access AccessAdmin, lookup func(name string) *command.Definition) *command.Definition {
	const usage = "Usage: /allow <command> user <id> | /allow <command> chat [id]"
	return &command.Definition{
		Name:        "allow",
		Description: "Restrict a command to listed users or chats",
		Usage:       "/allow <command> user <id> | chat [id]",
		Category:    "admin",
		OwnerOnly:   true,
		Handler: func(ctx context.Context, c *chat.Context) error {
			args := c.Msg.Args
			if len(args) < 2 {
				_, err := c.Reply(ctx, usage)
				return err
			}
			requested := strings.ToLower(strings.TrimLeft(args[0], "/!."))
			def := lookup(requested)
			if def == nil {
				_, err := c.Replyf(ctx, "Unknown command /%s.", requested)
				return err
			}
			name := def.Name

			switch strings.ToLower(args[1]) {
			case "user":
				user := replyTo(c)
				if len(args) > 2 {
					user = args[2]
				}
				if user == "" {
					_, err := c.Reply(ctx, usage)
					return err
				}
				if err := access.AllowUser(ctx, name, user); err != nil {
					return fmt.Errorf("allow user %s for %s: %w", user, name, err)
				}
				_, err := c.Replyf(ctx, "%s may now use /%s.", user, name)
				return err
			case "chat":
				chatID := c.Msg.ChatID
				if len(args) > 2 {
					chatID = args[2]
				}
				if err := access.AllowChat(ctx, name, chatID); err != nil {
					return fmt.Errorf("allow chat %s for %s: %w", chatID, name, err)
				}
				_, err := c.Replyf(ctx, "/%s is now allowed in chat %s.", name, chatID)
				return err
			default:
				_, err := c.Reply(ctx, usage)
				return err
			}
		},
	}
}
