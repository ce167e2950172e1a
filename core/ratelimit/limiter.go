package ratelimit

import (
	"sync"
	"time"
)

const (
	defaultWindow     = time.Minute
	defaultMax        = 10
	defaultStrikes    = 3
	defaultBlock      = 5 * time.Minute
	defaultTableLimit = 10000
)

// Rejection reasons.
const (
	ReasonLimit   = "limit"
	ReasonBlocked = "blocked"
)

// Config tunes a Limiter. Zero fields take defaults.
type Config struct {
	Window time.Duration
	Max    int
	// Strikes is the number of rejections that escalate to a block.
	Strikes int
	Block   time.Duration
	// TableLimit bounds the number of tracked users before strike counters
	// are cleared in bulk.
	TableLimit int
}

func (c Config) withDefaults() Config {
	if c.Window <= 0 {
		c.Window = defaultWindow
	}
	if c.Max <= 0 {
		c.Max = defaultMax
	}
	if c.Strikes <= 0 {
		c.Strikes = defaultStrikes
	}
	if c.Block <= 0 {
		c.Block = defaultBlock
	}
	if c.TableLimit <= 0 {
		c.TableLimit = defaultTableLimit
	}
	return c
}

// Decision is the outcome of a Check.
type Decision struct {
	Allowed   bool
	Remaining int
	ResetIn   time.Duration
	// Reason is empty when allowed, otherwise ReasonLimit or ReasonBlocked.
	Reason string
}

type window struct {
	hits         []time.Time
	strikes      int
	blockedUntil time.Time
}

type userKey struct {
	platform string
	user     string
}

// Limiter caps total command volume per (platform, user) over a sliding
// window. Repeated rejections escalate to a temporary block.
type Limiter struct {
	mu      sync.Mutex
	cfg     Config
	windows map[userKey]*window
	now     func() time.Time
}

// New creates a rate limiter.
func New(cfg Config) *Limiter {
	return &Limiter{
		cfg:     cfg.withDefaults(),
		windows: make(map[userKey]*window),
		now:     time.Now,
	}
}

// Check records an attempt by userID on platform and reports whether it is
// allowed.
func (l *Limiter) Check(userID, platform string) Decision {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	k := userKey{platform: platform, user: userID}
	w := l.windows[k]
	if w == nil {
		if len(l.windows) >= l.cfg.TableLimit {
			l.compactLocked(now)
		}
		w = &window{}
		l.windows[k] = w
	}

	// A live block supersedes the window entirely.
	if !w.blockedUntil.IsZero() {
		if now.Before(w.blockedUntil) {
			return Decision{ResetIn: w.blockedUntil.Sub(now), Reason: ReasonBlocked}
		}
		w.blockedUntil = time.Time{}
	}

	w.hits = pruneBefore(w.hits, now.Add(-l.cfg.Window))

	if len(w.hits) >= l.cfg.Max {
		w.strikes++
		if w.strikes >= l.cfg.Strikes {
			w.strikes = 0
			w.blockedUntil = now.Add(l.cfg.Block)
			return Decision{ResetIn: l.cfg.Block, Reason: ReasonBlocked}
		}
		return Decision{ResetIn: w.hits[0].Add(l.cfg.Window).Sub(now), Reason: ReasonLimit}
	}

	w.hits = append(w.hits, now)
	return Decision{
		Allowed:   true,
		Remaining: l.cfg.Max - len(w.hits),
		ResetIn:   w.hits[0].Add(l.cfg.Window).Sub(now),
	}
}

// Reset clears all state for a user.
func (l *Limiter) Reset(userID, platform string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.windows, userKey{platform: platform, user: userID})
}

// Sweep drops users with no live hits and no live block, and returns how
// many were dropped.
func (l *Limiter) Sweep() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.sweepLocked(l.now())
}

func (l *Limiter) sweepLocked(now time.Time) int {
	cutoff := now.Add(-l.cfg.Window)
	n := 0
	for k, w := range l.windows {
		w.hits = pruneBefore(w.hits, cutoff)
		if len(w.hits) == 0 && !now.Before(w.blockedUntil) {
			delete(l.windows, k)
			n++
		}
	}
	return n
}

// compactLocked runs when the table is full: idle users are dropped and
// every strike counter is cleared. Must be called with mu held.
func (l *Limiter) compactLocked(now time.Time) {
	l.sweepLocked(now)
	for _, w := range l.windows {
		w.strikes = 0
	}
}

// pruneBefore removes timestamps not after cutoff, in place.
func pruneBefore(hits []time.Time, cutoff time.Time) []time.Time {
	fresh := hits[:0]
	for _, t := range hits {
		if t.After(cutoff) {
			fresh = append(fresh, t)
		}
	}
	return fresh
}
