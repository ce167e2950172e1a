package chat

import "context"

// SendOptions tunes an outbound message.
type SendOptions struct {
	// ReplyTo threads the outbound message under an existing message id.
	ReplyTo string
}

// Adapter bridges a chat platform to the normalized message model.
// Send methods return the platform id of the sent message so callers can
// anchor follow-up sessions to it.
type Adapter interface {
	Platform() string
	SendText(ctx context.Context, chatID, text string, opts SendOptions) (string, error)
	SendReaction(ctx context.Context, chatID, messageID, emoji string) error
	SendMedia(ctx context.Context, chatID string, media Media, opts SendOptions) (string, error)
	IsGroupAdmin(ctx context.Context, chatID, userID string) (bool, error)
}

// Receiver pulls inbound messages from a platform. Start blocks until ctx
// is cancelled.
type Receiver interface {
	Start(ctx context.Context) error
}
