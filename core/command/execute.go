package command

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/jdelaire/openbot/core/chat"
)

const (
	emojiProcessing = "⏳"
	emojiSuccess    = "✅"
	emojiFailure    = "❌"
)

// Execute runs the command named by c.Msg.Command: authorization, then
// cooldown, then the handler. Handler failures are logged and reported to
// the user; they never propagate.
func (r *Registry) Execute(ctx context.Context, c *chat.Context) Outcome {
	msg := c.Msg
	if msg.Command == "" {
		return NotFound
	}
	def := r.Lookup(msg.Command)
	if def == nil {
		return NotFound
	}

	// Unauthorized probes get no reply so command existence is not revealed.
	if !r.allowed(ctx, def, msg) {
		r.logger.Debug("command not allowed", "command", def.Name, "platform", msg.Platform, "chat_id", msg.ChatID, "user_id", msg.SenderID)
		return Denied
	}

	if !msg.IsOwner {
		switch {
		case def.OwnerOnly:
			r.logger.Debug("owner-only command denied", "command", def.Name, "user_id", msg.SenderID)
			return Denied
		case def.AdminOnly && !msg.IsAdmin:
			r.reply(ctx, c, fmt.Sprintf("Only group admins can use /%s.", def.Name))
			return Rejected
		case def.GroupOnly && !msg.IsGroup:
			r.reply(ctx, c, fmt.Sprintf("/%s can only be used in groups.", def.Name))
			return Rejected
		}
	}

	cooldown := def.Cooldown
	if msg.IsOwner {
		cooldown = 0
	}
	if wait := r.takeCooldown(def, msg.SenderID, cooldown); wait > 0 {
		r.reply(ctx, c, fmt.Sprintf("Please wait %ds before using /%s again.", ceilSeconds(wait), def.Name))
		return CoolingDown
	}

	if err := c.Indicate(ctx, emojiProcessing, fmt.Sprintf("Processing /%s…", def.Name)); err != nil {
		r.logger.Debug("processing indicator failed", "command", def.Name, "error", err)
	}

	start := r.now()
	err := chat.Protect(func() error { return def.Handler(ctx, c) })
	if err != nil {
		r.logger.Error("command failed",
			"command", def.Name,
			"platform", msg.Platform,
			"chat_id", msg.ChatID,
			"user_id", msg.SenderID,
			"error", err,
		)
		if ierr := c.Indicate(ctx, emojiFailure, ""); ierr != nil {
			r.logger.Debug("failure indicator failed", "command", def.Name, "error", ierr)
		}
		r.reply(ctx, c, fmt.Sprintf("Something went wrong while running /%s.", def.Name))
		return Failed
	}

	if ierr := c.Indicate(ctx, emojiSuccess, ""); ierr != nil {
		r.logger.Debug("success indicator failed", "command", def.Name, "error", ierr)
	}
	r.logger.Info("command executed", "command", def.Name, "platform", msg.Platform, "chat_id", msg.ChatID, "duration", r.now().Sub(start))
	return Succeeded
}

func (r *Registry) allowed(ctx context.Context, def *Definition, msg *chat.Message) bool {
	if msg.IsOwner || msg.IsFromMe || r.trusted[msg.Platform] {
		return true
	}

	list := AllowList{Users: def.AllowUsers, Chats: def.AllowChats}
	if r.allow != nil {
		ext, err := r.allow.CommandAllowList(ctx, def.Name)
		if err != nil {
			// Only the command's own lists apply.
			r.logger.Warn("allow-list lookup failed", "command", def.Name, "error", err)
		} else {
			list.Users = append(append([]string(nil), list.Users...), ext.Users...)
			list.Chats = append(append([]string(nil), list.Chats...), ext.Chats...)
		}
	}
	if list.Empty() {
		return true
	}
	return chat.ContainsID(list.Users, msg.SenderID) || chat.ContainsID(list.Chats, msg.ChatID)
}

func (r *Registry) reply(ctx context.Context, c *chat.Context, text string) {
	if _, err := c.Reply(ctx, text); err != nil {
		r.logger.Error("failed to send reply", "chat_id", c.Msg.ChatID, "error", err)
	}
}

func ceilSeconds(d time.Duration) int {
	return int(math.Ceil(d.Seconds()))
}
