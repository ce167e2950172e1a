// Package configwatch polls files and reports changes so they can be
// reloaded without a restart.
package configwatch

import (
	"context"
	"log/slog"
	"os"
	"sync"
	"time"
)

// missingPolls is how many consecutive polls a file must be absent before
// its removal is reported. Editors that save by rename leave the path
// briefly empty.
const missingPolls = 3

// Watcher polls files for changes in modification time or size.
type Watcher struct {
	interval time.Duration
	logger   *slog.Logger

	mu      sync.Mutex
	entries []*entry
}

type fingerprint struct {
	modTime time.Time
	size    int64
}

func (f fingerprint) missing() bool { return f.modTime.IsZero() }

type entry struct {
	path    string
	seen    fingerprint
	absent  int
	removed bool
	cb      func(path string)
}

// New creates a Watcher that polls at the given interval.
func New(interval time.Duration, logger *slog.Logger) *Watcher {
	return &Watcher{
		interval: interval,
		logger:   logger,
	}
}

// Watch registers cb for path. cb runs when the file is created, modified,
// or removed. The file does not need to exist yet.
func (w *Watcher) Watch(path string, cb func(path string)) {
	w.mu.Lock()
	defer w.mu.Unlock()

	fp := stat(path)
	w.entries = append(w.entries, &entry{
		path:    path,
		seen:    fp,
		removed: fp.missing(),
		cb:      cb,
	})
}

// Run polls until ctx is cancelled.
func (w *Watcher) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.poll()
		}
	}
}

func (w *Watcher) poll() {
	var fire []*entry

	w.mu.Lock()
	for _, e := range w.entries {
		current := stat(e.path)

		if current.missing() {
			if e.removed {
				continue
			}
			e.absent++
			if e.absent < missingPolls {
				continue
			}
			e.removed = true
			e.seen = current
			w.logger.Info("watched file removed", "path", e.path)
			fire = append(fire, e)
			continue
		}

		e.absent = 0
		if !e.removed && current == e.seen {
			continue
		}
		e.removed = false
		e.seen = current
		w.logger.Info("watched file changed", "path", e.path)
		fire = append(fire, e)
	}
	w.mu.Unlock()

	for _, e := range fire {
		e.cb(e.path)
	}
}

func stat(path string) fingerprint {
	info, err := os.Stat(path)
	if err != nil {
		return fingerprint{}
	}
	return fingerprint{modTime: info.ModTime(), size: info.Size()}
}
