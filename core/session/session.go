// Package session tracks interactive dialogs that are waiting for a
// follow-up message.
//
// A session is keyed by (chat id, anchor id), where the anchor is usually the
// id of the prompt the bot sent. A reply quoting the anchor resolves the
// session directly; unquoted messages fall back to the most recently opened
// compatible session in the chat, then to global sessions.
package session

import (
	"context"
	"errors"
	"time"

	"github.com/jdelaire/openbot/core/chat"
)

var (
	ErrInvalidTTL = errors.New("session ttl must be positive")
	ErrNoHandler  = errors.New("session requires a resolve handler")
	ErrNoKey      = errors.New("session requires a chat id and an anchor id")
	ErrTooMany    = errors.New("too many open sessions")
)

// Result is what a resolve handler reports back to the store.
type Result int

const (
	// Done completes the dialog. The session is removed.
	Done Result = iota
	// Continue consumes the message and keeps the session open.
	Continue
	// Pass declines the message. On the fallback path the store keeps
	// searching; on the anchor path the message still counts as consumed.
	Pass
)

// State is the lifecycle state of a session.
type State int

const (
	Open State = iota
	Resolved
	Expired
	Replaced
	Closed
)

func (s State) String() string {
	switch s {
	case Open:
		return "open"
	case Resolved:
		return "resolved"
	case Expired:
		return "expired"
	case Replaced:
		return "replaced"
	case Closed:
		return "closed"
	}
	return "unknown"
}

// MatchFunc decides whether msg continues the dialog.
type MatchFunc func(msg *chat.Message) bool

// ResolveFunc handles a message that continues the dialog.
type ResolveFunc func(ctx context.Context, c *chat.Context, s *Session) (Result, error)

// Options configure a new session.
type Options struct {
	// Type is a free-form tag used in logs, e.g. "rate" or "confirm".
	Type string
	// Owner restricts the session to one sender. Empty accepts anyone.
	Owner string
	// Data is an opaque payload for the handler.
	Data      any
	Match     MatchFunc
	OnResolve ResolveFunc
	TTL       time.Duration
}

type key struct {
	chat   string
	anchor string
}

// Session is an open expectation that a later message continues a dialog.
// Fields other than Data must not be modified.
type Session struct {
	Type      string
	Owner     string
	Data      any
	ChatID    string
	AnchorID  string
	CreatedAt time.Time
	ExpiresAt time.Time

	key       key
	seq       uint64
	match     MatchFunc
	onResolve ResolveFunc
	stop      func() bool
	state     State
	store     *Store
}

// Global reports whether the session was opened with OpenGlobal.
func (s *Session) Global() bool { return s.key.chat == globalChat }

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.store.mu.Lock()
	defer s.store.mu.Unlock()
	return s.state
}

// Close removes the session if it is still open.
func (s *Session) Close() bool {
	s.store.mu.Lock()
	defer s.store.mu.Unlock()
	return s.store.finishLocked(s, Closed)
}

func (s *Session) ownedBy(senderID string) bool {
	return s.Owner == "" || chat.SameID(s.Owner, senderID)
}

func (s *Session) matches(msg *chat.Message) (bool, error) {
	if s.match == nil {
		return true, nil
	}
	var ok bool
	err := chat.Protect(func() error {
		ok = s.match(msg)
		return nil
	})
	return ok, err
}
