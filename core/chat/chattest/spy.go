// Package chattest provides a recording chat.Adapter for tests.
package chattest

import (
	"context"
	"errors"
	"strconv"
	"sync"

	"github.com/jdelaire/openbot/core/chat"
)

// Sent is one recorded outbound call.
type Sent struct {
	Kind      string // "text", "reaction", "media"
	ChatID    string
	MessageID string
	Text      string
	Emoji     string
	ReplyTo   string
	Media     chat.Media
}

// ErrReactionsDisabled is returned by SendReaction when FailReactions is set.
var ErrReactionsDisabled = errors.New("reactions disabled")

// Adapter records every outbound call.
type Adapter struct {
	Name          string
	FailReactions bool
	Admins        map[string]bool

	mu   sync.Mutex
	sent []Sent
	seq  int
}

// New returns a spy adapter for platform.
func New(platform string) *Adapter {
	return &Adapter{Name: platform, Admins: make(map[string]bool)}
}

func (a *Adapter) Platform() string { return a.Name }

func (a *Adapter) SendText(_ context.Context, chatID, text string, opts chat.SendOptions) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.seq++
	id := "out-" + strconv.Itoa(a.seq)
	a.sent = append(a.sent, Sent{Kind: "text", ChatID: chatID, MessageID: id, Text: text, ReplyTo: opts.ReplyTo})
	return id, nil
}

func (a *Adapter) SendReaction(_ context.Context, chatID, messageID, emoji string) error {
	if a.FailReactions {
		return ErrReactionsDisabled
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.sent = append(a.sent, Sent{Kind: "reaction", ChatID: chatID, MessageID: messageID, Emoji: emoji})
	return nil
}

func (a *Adapter) SendMedia(_ context.Context, chatID string, media chat.Media, opts chat.SendOptions) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.seq++
	id := "out-" + strconv.Itoa(a.seq)
	a.sent = append(a.sent, Sent{Kind: "media", ChatID: chatID, MessageID: id, Media: media, ReplyTo: opts.ReplyTo})
	return id, nil
}

func (a *Adapter) IsGroupAdmin(_ context.Context, _, userID string) (bool, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.Admins[userID], nil
}

// All returns a copy of every recorded call.
func (a *Adapter) All() []Sent {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]Sent, len(a.sent))
	copy(out, a.sent)
	return out
}

// Texts returns the text of every recorded text message.
func (a *Adapter) Texts() []string {
	var out []string
	for _, s := range a.All() {
		if s.Kind == "text" {
			out = append(out, s.Text)
		}
	}
	return out
}

// LastText returns the most recent text message, or "".
func (a *Adapter) LastText() string {
	texts := a.Texts()
	if len(texts) == 0 {
		return ""
	}
	return texts[len(texts)-1]
}

// Reactions returns every recorded reaction emoji.
func (a *Adapter) Reactions() []string {
	var out []string
	for _, s := range a.All() {
		if s.Kind == "reaction" {
			out = append(out, s.Emoji)
		}
	}
	return out
}

// Count returns the number of recorded calls.
func (a *Adapter) Count() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.sent)
}

// Reset forgets all recorded calls.
func (a *Adapter) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.sent = nil
}
