package telegram

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/jdelaire/openbot/core/chat"
)

// Start long-polls for updates until ctx is cancelled.
func (b *Bot) Start(ctx context.Context) error {
	b.logger.Info("telegram receiver started")
	for {
		if ctx.Err() != nil {
			b.logger.Info("telegram receiver stopped")
			return nil
		}

		updates, err := b.poll(ctx)
		if err != nil {
			if ctx.Err() != nil {
				b.logger.Info("telegram receiver stopped")
				return nil
			}
			b.logger.Error("telegram poll failed", "error", err)
			select {
			case <-time.After(errorBackoff):
			case <-ctx.Done():
				return nil
			}
			continue
		}

		for _, u := range updates {
			b.offset = u.UpdateID + 1
			if u.Message == nil {
				continue
			}
			msg, ok := toMessage(u.Message)
			if !ok {
				continue
			}
			b.handler(ctx, msg)
		}
	}
}

func (b *Bot) poll(ctx context.Context) ([]update, error) {
	ctx, cancel := context.WithTimeout(ctx, b.pollTimeout+callTimeout)
	defer cancel()

	var updates []update
	err := b.call(ctx, "getUpdates", struct {
		Offset         int64    `json:"offset"`
		Timeout        int      `json:"timeout"`
		AllowedUpdates []string `json:"allowed_updates"`
	}{b.offset, int(b.pollTimeout / time.Second), []string{"message"}}, &updates)
	if err != nil {
		return nil, fmt.Errorf("get updates: %w", err)
	}
	return updates, nil
}

func idString(id int64) string { return strconv.FormatInt(id, 10) }

// toMessage converts a Telegram message. Messages with neither text nor a
// recognised attachment, and messages from bots, are skipped.
func toMessage(m *message) (chat.Message, bool) {
	if m.From == nil || m.From.IsBot {
		return chat.Message{}, false
	}

	msg := chat.Message{
		Platform:   platform,
		ChatID:     idString(m.Chat.ID),
		SenderID:   idString(m.From.ID),
		SenderName: displayName(m.From),
		Text:       m.Text,
		IsGroup:    m.Chat.Type == "group" || m.Chat.Type == "supergroup",
		AnchorID:   idString(m.MessageID),
		Timestamp:  time.Unix(m.Date, 0),
		Media:      media(m),
	}
	if msg.Text == "" && msg.Media != nil {
		msg.Text = msg.Media.Caption
	}
	if msg.Text == "" && msg.Media == nil {
		return chat.Message{}, false
	}

	if r := m.ReplyToMessage; r != nil {
		msg.QuotedID = idString(r.MessageID)
		q := &chat.Quoted{ID: msg.QuotedID, Text: r.Text}
		if r.From != nil {
			q.SenderID = idString(r.From.ID)
		}
		if q.Text == "" {
			q.Text = r.Caption
		}
		msg.Quoted = q
	}
	return msg, true
}

func displayName(u *user) string {
	if u.Username != "" {
		return u.Username
	}
	return u.FirstName
}

// media fingerprints attachments by file_unique_id, which stays stable
// across bots and re-uploads, unlike file_id.
func media(m *message) *chat.Media {
	var kind string
	var f *file
	switch {
	case m.Sticker != nil:
		kind, f = "sticker", m.Sticker
	case len(m.Photo) > 0:
		kind, f = "photo", &m.Photo[len(m.Photo)-1]
	case m.Animation != nil:
		kind, f = "animation", m.Animation
	case m.Document != nil:
		kind, f = "document", m.Document
	case m.Voice != nil:
		kind, f = "voice", m.Voice
	default:
		return nil
	}
	return &chat.Media{Kind: kind, ID: f.FileUniqueID, FileID: f.FileID, Caption: m.Caption}
}
