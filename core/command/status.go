package command

import (
	"context"
	"runtime"
	"time"

	"github.com/jdelaire/openbot/core/chat"
)

var startTime = time.Now()

// Status returns a command reporting uptime, Go version and goroutine
// count.
func Status() *Definition {
	return &Definition{
		Name:        "status",
		Aliases:     []string{"ping"},
		Description: "Show bot status",
		Category:    "general",
		Cooldown:    5 * time.Second,
		Handler: func(ctx context.Context, c *chat.Context) error {
			uptime := time.Since(startTime).Truncate(time.Second)
			_, err := c.Replyf(ctx, "Status: OK\nUptime: %s\nGo: %s\nGoroutines: %d",
				uptime, runtime.Version(), runtime.NumGoroutine())
			return err
		},
	}
}
