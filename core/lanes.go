package core

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/jdelaire/openbot/core/chat"
)

const (
	laneBuffer  = 64
	laneIdleTTL = time.Minute
)

type laneJob struct {
	ctx context.Context
	msg chat.Message
}

type lane struct {
	jobs    chan laneJob
	pending int
}

// lanes serializes messages per (platform, chat) and runs different chats
// in parallel. A lane's goroutine exits after laneIdleTTL without work.
type lanes struct {
	handle func(context.Context, chat.Message)
	logger *slog.Logger
	idle   time.Duration

	mu     sync.Mutex
	byChat map[string]*lane
	closed bool
	stop   chan struct{}
	wg     sync.WaitGroup
}

func newLanes(handle func(context.Context, chat.Message), logger *slog.Logger) *lanes {
	return &lanes{
		handle: handle,
		logger: logger,
		idle:   laneIdleTTL,
		byChat: make(map[string]*lane),
		stop:   make(chan struct{}),
	}
}

func (l *lanes) push(ctx context.Context, msg chat.Message) {
	key := msg.Platform + "\x00" + msg.ChatID

	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		l.logger.Warn("dispatcher stopped, message dropped", "platform", msg.Platform, "chat_id", msg.ChatID)
		return
	}
	ln := l.byChat[key]
	if ln == nil {
		ln = &lane{jobs: make(chan laneJob, laneBuffer)}
		l.byChat[key] = ln
		l.wg.Add(1)
		go l.run(key, ln)
	}
	// Counted under the lock so the worker cannot retire with a push in flight.
	ln.pending++
	l.mu.Unlock()

	ln.jobs <- laneJob{ctx: ctx, msg: msg}
}

func (l *lanes) run(key string, ln *lane) {
	defer l.wg.Done()

	timer := time.NewTimer(l.idle)
	defer timer.Stop()

	for {
		select {
		case job := <-ln.jobs:
			l.process(job)
			l.mu.Lock()
			ln.pending--
			l.mu.Unlock()

			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
			timer.Reset(l.idle)

		case <-timer.C:
			l.mu.Lock()
			if ln.pending == 0 {
				delete(l.byChat, key)
				l.mu.Unlock()
				return
			}
			l.mu.Unlock()
			timer.Reset(l.idle)

		case <-l.stop:
			for {
				select {
				case job := <-ln.jobs:
					l.process(job)
				default:
					return
				}
			}
		}
	}
}

func (l *lanes) process(job laneJob) {
	defer func() {
		if r := recover(); r != nil {
			l.logger.Error("dispatch panicked", "platform", job.msg.Platform, "chat_id", job.msg.ChatID, "panic", r)
		}
	}()
	if job.ctx.Err() != nil {
		return
	}
	l.handle(job.ctx, job.msg)
}

// shutdown stops accepting messages, lets every lane finish its buffered
// work and waits for the lanes to exit.
func (l *lanes) shutdown() {
	l.mu.Lock()
	if !l.closed {
		l.closed = true
		close(l.stop)
	}
	l.mu.Unlock()
	l.wg.Wait()
}
