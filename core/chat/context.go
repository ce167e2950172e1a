package chat

import (
	"context"
	"fmt"
)

// Context binds a triggering message to the adapter it arrived on.
// Handlers use it to reply without knowing which platform they serve.
type Context struct {
	Msg     *Message
	Adapter Adapter
}

// NewContext creates a Context for msg.
func NewContext(msg *Message, adapter Adapter) *Context {
	return &Context{Msg: msg, Adapter: adapter}
}

// Reply sends text threaded under the triggering message.
func (c *Context) Reply(ctx context.Context, text string) (string, error) {
	return c.Adapter.SendText(ctx, c.Msg.ChatID, text, SendOptions{ReplyTo: c.Msg.AnchorID})
}

// Replyf is Reply with fmt.Sprintf formatting.
func (c *Context) Replyf(ctx context.Context, format string, args ...any) (string, error) {
	return c.Reply(ctx, fmt.Sprintf(format, args...))
}

// Send sends text to the triggering chat without threading.
func (c *Context) Send(ctx context.Context, text string) (string, error) {
	return c.Adapter.SendText(ctx, c.Msg.ChatID, text, SendOptions{})
}

// React adds an emoji reaction to the triggering message.
func (c *Context) React(ctx context.Context, emoji string) error {
	return c.Adapter.SendReaction(ctx, c.Msg.ChatID, c.Msg.AnchorID, emoji)
}

// SendMedia sends media threaded under the triggering message.
func (c *Context) SendMedia(ctx context.Context, media Media) (string, error) {
	return c.Adapter.SendMedia(ctx, c.Msg.ChatID, media, SendOptions{ReplyTo: c.Msg.AnchorID})
}

// Indicate reacts with emoji and, if the reaction fails, falls back to
// sending fallback as text. An empty fallback skips the text. Errors are
// returned for logging only; callers must not abort on them.
func (c *Context) Indicate(ctx context.Context, emoji, fallback string) error {
	err := c.React(ctx, emoji)
	if err == nil {
		return nil
	}
	if fallback == "" {
		return err
	}
	if _, sendErr := c.Reply(ctx, fallback); sendErr != nil {
		return fmt.Errorf("reaction: %w; fallback text: %v", err, sendErr)
	}
	return err
}
