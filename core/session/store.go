package session

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/jdelaire/openbot/core/chat"
)

const (
	globalChat  = "\x00global"
	maxSessions = 10000
)

// Store owns all open sessions and their expiry timers.
type Store struct {
	mu     sync.Mutex
	items  map[key]*Session
	seq    uint64
	logger *slog.Logger

	now       func() time.Time
	afterFunc func(d time.Duration, f func()) (stop func() bool)
}

// New creates an empty session store.
func New(logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		items:  make(map[key]*Session),
		logger: logger,
		now:    time.Now,
		afterFunc: func(d time.Duration, f func()) func() bool {
			return time.AfterFunc(d, f).Stop
		},
	}
}

// Open registers a session anchored to a message in a chat. An existing
// session at the same key is cancelled and replaced.
func (st *Store) Open(chatID, anchorID string, opts Options) (*Session, error) {
	if chatID == "" || anchorID == "" {
		return nil, ErrNoKey
	}
	return st.open(key{chat: chatID, anchor: anchorID}, opts)
}

// OpenGlobal registers a chat-independent session consulted as a fallback
// for every chat.
func (st *Store) OpenGlobal(id string, opts Options) (*Session, error) {
	if id == "" {
		return nil, ErrNoKey
	}
	return st.open(key{chat: globalChat, anchor: id}, opts)
}

func (st *Store) open(k key, opts Options) (*Session, error) {
	if opts.TTL <= 0 {
		return nil, ErrInvalidTTL
	}
	if opts.OnResolve == nil {
		return nil, ErrNoHandler
	}

	st.mu.Lock()
	defer st.mu.Unlock()

	now := st.now()
	old := st.items[k]
	if old == nil && len(st.items) >= maxSessions {
		st.sweepLocked(now)
		if len(st.items) >= maxSessions {
			return nil, ErrTooMany
		}
	}
	if old != nil {
		st.finishLocked(old, Replaced)
		st.logger.Debug("session replaced", "type", old.Type, "chat_id", old.ChatID, "anchor_id", old.AnchorID)
	}

	st.seq++
	s := &Session{
		Type:      opts.Type,
		Owner:     opts.Owner,
		Data:      opts.Data,
		AnchorID:  k.anchor,
		CreatedAt: now,
		ExpiresAt: now.Add(opts.TTL),
		key:       k,
		seq:       st.seq,
		match:     opts.Match,
		onResolve: opts.OnResolve,
		state:     Open,
		store:     st,
	}
	if k.chat != globalChat {
		s.ChatID = k.chat
	}
	st.items[k] = s
	s.stop = st.afterFunc(opts.TTL, func() { st.expire(s) })

	st.logger.Debug("session opened", "type", s.Type, "chat_id", s.ChatID, "anchor_id", s.AnchorID, "ttl", opts.TTL)
	return s, nil
}

// Resolve offers msg to the open sessions of its chat. It reports whether
// the message was consumed. A handler error is returned with handled=true;
// the session is removed when it was matched by reply anchor and kept when
// it was matched by fallback.
func (st *Store) Resolve(ctx context.Context, c *chat.Context) (bool, error) {
	msg := c.Msg

	if anchor := msg.ReplyAnchor(); anchor != "" {
		if s := st.lookupLive(key{chat: msg.ChatID, anchor: anchor}); s != nil {
			return st.resolveAnchored(ctx, c, s)
		}
	}
	return st.resolveFallback(ctx, c)
}

func (st *Store) resolveAnchored(ctx context.Context, c *chat.Context, s *Session) (bool, error) {
	msg := c.Msg
	if !s.ownedBy(msg.SenderID) {
		return false, nil
	}

	ok, err := s.matches(msg)
	if err != nil {
		st.logger.Warn("session match failed", "type", s.Type, "chat_id", s.ChatID, "error", err)
		return true, nil
	}
	if !ok {
		// Stray chat noise in an open dialog: consumed, state unchanged.
		return true, nil
	}

	// Removed before the handler runs so a concurrent message cannot
	// consume it twice, and so the handler may reopen at the same key.
	st.mu.Lock()
	claimed := st.finishLocked(s, Resolved)
	st.mu.Unlock()
	if !claimed {
		return false, nil
	}

	_, err = st.invoke(ctx, c, s)
	return true, err
}

func (st *Store) resolveFallback(ctx context.Context, c *chat.Context) (bool, error) {
	msg := c.Msg
	for _, s := range st.candidates(msg.ChatID) {
		if !s.ownedBy(msg.SenderID) {
			continue
		}
		ok, err := s.matches(msg)
		if err != nil {
			st.logger.Warn("session match failed", "type", s.Type, "chat_id", s.ChatID, "error", err)
			continue
		}
		if !ok || !st.isLive(s) {
			continue
		}

		res, err := st.invoke(ctx, c, s)
		if err != nil {
			return true, err
		}
		switch res {
		case Pass:
			continue
		case Done:
			st.mu.Lock()
			st.finishLocked(s, Resolved)
			st.mu.Unlock()
		}
		return true, nil
	}
	return false, nil
}

func (st *Store) invoke(ctx context.Context, c *chat.Context, s *Session) (Result, error) {
	var res Result
	err := chat.Protect(func() error {
		var err error
		res, err = s.onResolve(ctx, c, s)
		return err
	})
	if err != nil {
		return res, fmt.Errorf("session %q: %w", s.Type, err)
	}
	return res, nil
}

// candidates returns live sessions of chatID plus all global sessions,
// most recently created first. Ties break on insertion order.
func (st *Store) candidates(chatID string) []*Session {
	st.mu.Lock()
	defer st.mu.Unlock()

	now := st.now()
	var out []*Session
	for k, s := range st.items {
		if k.chat != chatID && k.chat != globalChat {
			continue
		}
		if st.liveLocked(s, now) {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].seq > out[j].seq
	})
	return out
}

func (st *Store) lookupLive(k key) *Session {
	st.mu.Lock()
	defer st.mu.Unlock()
	s := st.items[k]
	if s == nil || !st.liveLocked(s, st.now()) {
		return nil
	}
	return s
}

func (st *Store) isLive(s *Session) bool {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.items[s.key] == s && st.liveLocked(s, st.now())
}

// liveLocked reports whether s is open and unexpired, expiring it if its
// deadline passed before the timer fired. Must be called with mu held.
func (st *Store) liveLocked(s *Session, now time.Time) bool {
	if s.state != Open {
		return false
	}
	if !now.Before(s.ExpiresAt) {
		st.finishLocked(s, Expired)
		return false
	}
	return true
}

// finishLocked is the single deletion path. It reports whether s was open.
// Must be called with mu held.
func (st *Store) finishLocked(s *Session, state State) bool {
	if s.state != Open {
		return false
	}
	s.state = state
	if st.items[s.key] == s {
		delete(st.items, s.key)
	}
	if s.stop != nil {
		s.stop()
	}
	return true
}

func (st *Store) expire(s *Session) {
	st.mu.Lock()
	defer st.mu.Unlock()
	if st.finishLocked(s, Expired) {
		st.logger.Debug("session expired", "type", s.Type, "chat_id", s.ChatID, "anchor_id", s.AnchorID)
	}
}

// Lookup returns the live session at (chatID, anchorID).
func (st *Store) Lookup(chatID, anchorID string) (*Session, bool) {
	s := st.lookupLive(key{chat: chatID, anchor: anchorID})
	return s, s != nil
}

// LookupGlobal returns the live global session registered under id.
func (st *Store) LookupGlobal(id string) (*Session, bool) {
	s := st.lookupLive(key{chat: globalChat, anchor: id})
	return s, s != nil
}

// Close removes the session at (chatID, anchorID) if one is open.
func (st *Store) Close(chatID, anchorID string) bool {
	st.mu.Lock()
	defer st.mu.Unlock()
	s := st.items[key{chat: chatID, anchor: anchorID}]
	if s == nil {
		return false
	}
	return st.finishLocked(s, Closed)
}

// Len returns the number of live sessions.
func (st *Store) Len() int {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.sweepLocked(st.now())
	return len(st.items)
}

// Sweep removes sessions whose deadline has passed and returns how many
// were removed. Timers normally do this; Sweep catches any that were missed.
func (st *Store) Sweep() int {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.sweepLocked(st.now())
}

func (st *Store) sweepLocked(now time.Time) int {
	n := 0
	for _, s := range st.items {
		if !st.liveLocked(s, now) {
			n++
		}
	}
	return n
}
