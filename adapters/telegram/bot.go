// Package telegram connects the bot to the Telegram Bot API over plain
// HTTP: long-polling getUpdates for inbound messages and JSON method calls
// for everything outbound.
package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/jdelaire/openbot/core/chat"
)

const (
	defaultBaseURL = "https://api.telegram.org"
	platform       = "telegram"
	callTimeout    = 15 * time.Second
	errorBackoff   = 5 * time.Second
)

// Bot is a Telegram adapter. It implements chat.Adapter and chat.Receiver.
type Bot struct {
	token       string
	handler     chat.Handler
	logger      *slog.Logger
	client      *http.Client
	baseURL     string
	pollTimeout time.Duration
	offset      int64
}

// New creates a Telegram bot that delivers inbound messages to handler.
func New(token string, handler chat.Handler, logger *slog.Logger) *Bot {
	return &Bot{
		token:       token,
		handler:     handler,
		logger:      logger,
		client:      &http.Client{},
		baseURL:     defaultBaseURL,
		pollTimeout: 30 * time.Second,
	}
}

// WithBaseURL overrides the Bot API base URL, e.g. for a local Bot API
// server or tests.
func (b *Bot) WithBaseURL(url string) *Bot {
	if url != "" {
		b.baseURL = url
	}
	return b
}

// WithPollTimeout sets the getUpdates long-poll timeout.
func (b *Bot) WithPollTimeout(d time.Duration) *Bot {
	if d >= 0 {
		b.pollTimeout = d
	}
	return b
}

func (b *Bot) Platform() string { return platform }

// call invokes a Bot API method with a JSON body and decodes the result
// into out when out is non-nil.
func (b *Bot) call(ctx context.Context, method string, params any, out any) error {
	body, err := json.Marshal(params)
	if err != nil {
		return fmt.Errorf("encode %s: %w", method, err)
	}

	endpoint := fmt.Sprintf("%s/bot%s/%s", b.baseURL, b.token, method)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create %s request: %w", method, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := b.client.Do(req)
	if err != nil {
		return fmt.Errorf("telegram %s: %w", method, err)
	}
	defer resp.Body.Close()

	var apiResp apiResponse
	if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
		return fmt.Errorf("decode %s response (status %d): %w", method, resp.StatusCode, err)
	}
	if !apiResp.OK {
		return fmt.Errorf("telegram %s error %d: %s", method, apiResp.ErrorCode, apiResp.Description)
	}
	if out != nil {
		if err := json.Unmarshal(apiResp.Result, out); err != nil {
			return fmt.Errorf("decode %s result: %w", method, err)
		}
	}
	return nil
}

func withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, callTimeout)
}

func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid telegram id %q", s)
	}
	return id, nil
}

type replyParameters struct {
	MessageID                int64 `json:"message_id"`
	AllowSendingWithoutReply bool  `json:"allow_sending_without_reply"`
}

func replyTo(opts chat.SendOptions) (*replyParameters, error) {
	if opts.ReplyTo == "" {
		return nil, nil
	}
	id, err := parseID(opts.ReplyTo)
	if err != nil {
		return nil, err
	}
	return &replyParameters{MessageID: id, AllowSendingWithoutReply: true}, nil
}

func (b *Bot) SendText(ctx context.Context, chatID, text string, opts chat.SendOptions) (string, error) {
	reply, err := replyTo(opts)
	if err != nil {
		return "", err
	}
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	var sent message
	err = b.call(ctx, "sendMessage", struct {
		ChatID string           `json:"chat_id"`
		Text   string           `json:"text"`
		Reply  *replyParameters `json:"reply_parameters,omitempty"`
	}{chatID, text, reply}, &sent)
	if err != nil {
		return "", err
	}
	return strconv.FormatInt(sent.MessageID, 10), nil
}

type reactionType struct {
	Type  string `json:"type"`
	Emoji string `json:"emoji"`
}

func (b *Bot) SendReaction(ctx context.Context, chatID, messageID, emoji string) error {
	id, err := parseID(messageID)
	if err != nil {
		return err
	}
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	return b.call(ctx, "setMessageReaction", struct {
		ChatID    string         `json:"chat_id"`
		MessageID int64          `json:"message_id"`
		Reaction  []reactionType `json:"reaction"`
	}{chatID, id, []reactionType{{Type: "emoji", Emoji: emoji}}}, nil)
}

// mediaMethods maps a media kind to its send method and file field.
var mediaMethods = map[string][2]string{
	"photo":     {"sendPhoto", "photo"},
	"sticker":   {"sendSticker", "sticker"},
	"document":  {"sendDocument", "document"},
	"animation": {"sendAnimation", "animation"},
	"voice":     {"sendVoice", "voice"},
	"video":     {"sendVideo", "video"},
	"audio":     {"sendAudio", "audio"},
}

func (b *Bot) SendMedia(ctx context.Context, chatID string, media chat.Media, opts chat.SendOptions) (string, error) {
	m, ok := mediaMethods[media.Kind]
	if !ok {
		return "", fmt.Errorf("telegram cannot send media kind %q", media.Kind)
	}
	ref := media.URL
	if ref == "" {
		ref = media.FileID
	}
	if ref == "" {
		ref = media.ID
	}
	if ref == "" {
		return "", fmt.Errorf("media needs a url or file id")
	}
	reply, err := replyTo(opts)
	if err != nil {
		return "", err
	}

	params := map[string]any{"chat_id": chatID, m[1]: ref}
	if media.Caption != "" && media.Kind != "sticker" {
		params["caption"] = media.Caption
	}
	if reply != nil {
		params["reply_parameters"] = reply
	}

	ctx, cancel := withTimeout(ctx)
	defer cancel()

	var sent message
	if err := b.call(ctx, m[0], params, &sent); err != nil {
		return "", err
	}
	return strconv.FormatInt(sent.MessageID, 10), nil
}

func (b *Bot) IsGroupAdmin(ctx context.Context, chatID, userID string) (bool, error) {
	uid, err := parseID(userID)
	if err != nil {
		return false, err
	}
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	var member chatMember
	err = b.call(ctx, "getChatMember", struct {
		ChatID string `json:"chat_id"`
		UserID int64  `json:"user_id"`
	}{chatID, uid}, &member)
	if err != nil {
		return false, err
	}
	return member.Status == "creator" || member.Status == "administrator", nil
}
