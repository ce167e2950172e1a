// Package janitor runs periodic maintenance on a cron schedule.
package janitor

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/adhocore/gronx"
)

// Task is one maintenance step. It returns the number of entries removed.
type Task struct {
	Name string
	Run  func() int
}

// Janitor runs its tasks on every tick of a cron expression.
type Janitor struct {
	expr   string
	tasks  []Task
	logger *slog.Logger
	now    func() time.Time
}

// New validates expr and creates a Janitor.
func New(expr string, tasks []Task, logger *slog.Logger) (*Janitor, error) {
	if !gronx.New().IsValid(expr) {
		return nil, fmt.Errorf("invalid janitor schedule %q", expr)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Janitor{
		expr:   expr,
		tasks:  tasks,
		logger: logger,
		now:    time.Now,
	}, nil
}

// Run sleeps until each tick and sweeps, until ctx is cancelled.
func (j *Janitor) Run(ctx context.Context) {
	for {
		wait, err := j.untilNext()
		if err != nil {
			j.logger.Error("janitor schedule failed", "schedule", j.expr, "error", err)
			return
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}

		j.Sweep()
	}
}

func (j *Janitor) untilNext() (time.Duration, error) {
	now := j.now()
	next, err := gronx.NextTickAfter(j.expr, now, false)
	if err != nil {
		return 0, err
	}
	return next.Sub(now), nil
}

// Sweep runs every task once. A panicking task is logged and skipped.
func (j *Janitor) Sweep() map[string]int {
	removed := make(map[string]int, len(j.tasks))
	for _, t := range j.tasks {
		n, err := run(t)
		if err != nil {
			j.logger.Error("janitor task failed", "task", t.Name, "error", err)
			continue
		}
		removed[t.Name] = n
		if n > 0 {
			j.logger.Debug("janitor swept", "task", t.Name, "removed", n)
		}
	}
	return removed
}

func run(t Task) (n int, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return t.Run(), nil
}
