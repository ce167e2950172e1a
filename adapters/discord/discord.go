// Package discord connects the bot to Discord through a discordgo gateway
// session.
package discord

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/bwmarrin/discordgo"

	"github.com/jdelaire/openbot/core/chat"
)

const platform = "discord"

// adminPermissions are the channel permissions that make a member a group
// admin for admin-only commands.
const adminPermissions = discordgo.PermissionAdministrator | discordgo.PermissionManageMessages

// api is the subset of *discordgo.Session the adapter sends through.
type api interface {
	ChannelMessageSendComplex(channelID string, data *discordgo.MessageSend, options ...discordgo.RequestOption) (*discordgo.Message, error)
	MessageReactionAdd(channelID, messageID, emojiID string, options ...discordgo.RequestOption) error
	UserChannelPermissions(userID, channelID string, fetchOptions ...discordgo.RequestOption) (int64, error)
}

// Bot is a Discord adapter. It implements chat.Adapter and chat.Receiver.
type Bot struct {
	session *discordgo.Session
	api     api
	handler chat.Handler
	logger  *slog.Logger
	selfID  string
}

// New creates a Discord bot authenticated with token.
func New(token string, handler chat.Handler, logger *slog.Logger) (*Bot, error) {
	session, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("create discord session: %w", err)
	}
	session.Identify.Intents = discordgo.IntentGuildMessages |
		discordgo.IntentDirectMessages |
		discordgo.IntentMessageContent

	return &Bot{
		session: session,
		api:     session,
		handler: handler,
		logger:  logger,
	}, nil
}

func (b *Bot) Platform() string { return platform }

// Start opens the gateway and blocks until ctx is cancelled.
func (b *Bot) Start(ctx context.Context) error {
	remove := b.session.AddHandler(func(s *discordgo.Session, m *discordgo.MessageCreate) {
		msg, ok := toMessage(m, b.selfID)
		if !ok {
			return
		}
		b.handler(ctx, msg)
	})
	defer remove()

	if err := b.session.Open(); err != nil {
		return fmt.Errorf("open discord session: %w", err)
	}
	if u := b.session.State.User; u != nil {
		b.selfID = u.ID
		b.logger.Info("discord connected", "username", u.Username, "user_id", u.ID)
	}

	<-ctx.Done()
	if err := b.session.Close(); err != nil {
		return fmt.Errorf("close discord session: %w", err)
	}
	b.logger.Info("discord stopped")
	return nil
}

func reference(channelID string, opts chat.SendOptions) *discordgo.MessageReference {
	if opts.ReplyTo == "" {
		return nil
	}
	return &discordgo.MessageReference{MessageID: opts.ReplyTo, ChannelID: channelID}
}

func (b *Bot) send(ctx context.Context, channelID string, data *discordgo.MessageSend) (string, error) {
	m, err := b.api.ChannelMessageSendComplex(channelID, data, discordgo.WithContext(ctx))
	if err != nil {
		return "", fmt.Errorf("discord send: %w", err)
	}
	return m.ID, nil
}

func (b *Bot) SendText(ctx context.Context, chatID, text string, opts chat.SendOptions) (string, error) {
	return b.send(ctx, chatID, &discordgo.MessageSend{
		Content:   text,
		Reference: reference(chatID, opts),
	})
}

func (b *Bot) SendReaction(ctx context.Context, chatID, messageID, emoji string) error {
	if err := b.api.MessageReactionAdd(chatID, messageID, emoji, discordgo.WithContext(ctx)); err != nil {
		return fmt.Errorf("discord reaction: %w", err)
	}
	return nil
}

func (b *Bot) SendMedia(ctx context.Context, chatID string, media chat.Media, opts chat.SendOptions) (string, error) {
	data := &discordgo.MessageSend{
		Content:   media.Caption,
		Reference: reference(chatID, opts),
	}
	switch {
	case media.Kind == "sticker" && media.ID != "":
		data.StickerIDs = []string{media.ID}
	case media.Kind == "photo" && media.URL != "":
		data.Embeds = []*discordgo.MessageEmbed{{Image: &discordgo.MessageEmbedImage{URL: media.URL}}}
	case media.URL != "":
		// Discord unfurls bare links to files.
		if data.Content != "" {
			data.Content += "\n"
		}
		data.Content += media.URL
	default:
		return "", fmt.Errorf("discord cannot send %s without a url", media.Kind)
	}
	return b.send(ctx, chatID, data)
}

func (b *Bot) IsGroupAdmin(ctx context.Context, chatID, userID string) (bool, error) {
	perms, err := b.api.UserChannelPermissions(userID, chatID, discordgo.WithContext(ctx))
	if err != nil {
		return false, fmt.Errorf("discord permissions: %w", err)
	}
	return perms&adminPermissions != 0, nil
}

// toMessage converts a gateway event. The bot's own messages and other
// bots are skipped.
func toMessage(m *discordgo.MessageCreate, selfID string) (chat.Message, bool) {
	if m == nil || m.Message == nil || m.Author == nil || m.Author.Bot || m.Author.ID == selfID {
		return chat.Message{}, false
	}

	msg := chat.Message{
		Platform:   platform,
		ChatID:     m.ChannelID,
		SenderID:   m.Author.ID,
		SenderName: m.Author.Username,
		Text:       m.Content,
		IsGroup:    m.GuildID != "",
		AnchorID:   m.ID,
		Timestamp:  m.Timestamp,
		Media:      media(m.Message),
	}
	if msg.Text == "" && msg.Media == nil {
		return chat.Message{}, false
	}

	if ref := m.MessageReference; ref != nil && ref.MessageID != "" {
		msg.QuotedID = ref.MessageID
		q := &chat.Quoted{ID: ref.MessageID}
		if r := m.ReferencedMessage; r != nil {
			q.Text = r.Content
			if r.Author != nil {
				q.SenderID = r.Author.ID
			}
		}
		msg.Quoted = q
	}
	return msg, true
}

func media(m *discordgo.Message) *chat.Media {
	if len(m.StickerItems) > 0 {
		s := m.StickerItems[0]
		return &chat.Media{Kind: "sticker", ID: s.ID, Caption: s.Name}
	}
	if len(m.Attachments) > 0 {
		a := m.Attachments[0]
		kind := "document"
		if a.Width > 0 && a.Height > 0 {
			kind = "photo"
		}
		return &chat.Media{Kind: kind, ID: a.ID, URL: a.URL, Caption: a.Filename}
	}
	return nil
}
