package chat

import (
	"context"
	"time"
)

// Message is a normalized inbound chat message produced by an adapter.
// The Dispatcher may rewrite Command, Args and Quoted before the command
// registry sees it.
type Message struct {
	Platform   string
	ChatID     string
	SenderID   string
	SenderName string
	Text       string

	// Command is the parsed command name without prefix, lowercased.
	Command string
	// Args are the whitespace-separated words after the command.
	Args []string
	// ArgText is the raw remainder after the command.
	ArgText string

	IsGroup  bool
	IsOwner  bool
	IsAdmin  bool
	IsFromMe bool

	// QuotedID is the id of the message this one replies to, when the
	// platform exposes it directly.
	QuotedID string
	Quoted   *Quoted
	Media    *Media

	// AnchorID is this message's own id.
	AnchorID  string
	Timestamp time.Time
}

// Quoted is an adapter-supplied reference to a replied-to message.
type Quoted struct {
	ID       string
	SenderID string
	Text     string
}

// Media describes an attachment, either inbound or outbound.
type Media struct {
	// Kind is one of "photo", "video", "audio", "document", "sticker",
	// "animation" or "voice".
	Kind string
	// ID is a stable fingerprint of the content, used by trigger bindings.
	ID string
	// FileID is the platform handle for resending the attachment, when it
	// differs from ID.
	FileID  string
	URL     string
	Caption string
}

// ReplyAnchor returns the id of the message being replied to, or "".
func (m *Message) ReplyAnchor() string {
	if m.QuotedID != "" {
		return m.QuotedID
	}
	if m.Quoted != nil {
		return m.Quoted.ID
	}
	return ""
}

// Handler processes an inbound message.
type Handler func(ctx context.Context, msg Message)
