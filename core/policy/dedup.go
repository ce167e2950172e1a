package policy

import (
	"fmt"
	"sync"
	"time"
)

const (
	freshnessWindow = 5 * time.Minute
	maxSeenIDs      = 10000
	pruneCount      = 1000
)

// Dedup drops stale and redelivered messages.
type Dedup struct {
	mu        sync.Mutex
	seen      map[string]bool
	seenOrder []string
	now       func() time.Time
}

// NewDedup creates a Dedup.
func NewDedup() *Dedup {
	return &Dedup{
		seen: make(map[string]bool),
		now:  time.Now,
	}
}

// Admit checks whether a message should be processed. Messages without an
// id or timestamp skip the respective check.
func (d *Dedup) Admit(platform, messageID string, timestamp time.Time) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !timestamp.IsZero() {
		if age := d.now().Sub(timestamp); age > freshnessWindow {
			return fmt.Errorf("stale message: %v old", age.Truncate(time.Second))
		}
	}
	if messageID == "" {
		return nil
	}

	key := platform + "\x00" + messageID
	if d.seen[key] {
		return fmt.Errorf("duplicate message: %s", messageID)
	}

	// Prune oldest entries if at capacity.
	if len(d.seen) >= maxSeenIDs {
		n := pruneCount
		if n > len(d.seenOrder) {
			n = len(d.seenOrder)
		}
		for _, k := range d.seenOrder[:n] {
			delete(d.seen, k)
		}
		d.seenOrder = d.seenOrder[n:]
	}

	d.seen[key] = true
	d.seenOrder = append(d.seenOrder, key)
	return nil
}
