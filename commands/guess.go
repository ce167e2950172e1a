package commands

import (
	"context"
	"fmt"
	"math/rand/v2"
	"strconv"
	"strings"
	"time"

	"github.com/jdelaire/openbot/core/chat"
	"github.com/jdelaire/openbot/core/command"
	"github.com/jdelaire/openbot/core/session"
)

const guessMax = 100

type game struct {
	target int
	tries  int
}

func isNumber(msg *chat.Message) bool {
	_, err := strconv.Atoi(strings.TrimSpace(msg.Text))
	return err == nil
}

// Guess starts a number guessing game. Anyone in the chat may guess by
// sending a number; replying to the bot's last hint also works. pick
// returns the secret in [1, n]; nil uses math/rand.
func Guess(sessions *session.Store, ttl time.Duration, pick func(n int) int) *command.Definition {
	if pick == nil {
		pick = func(n int) int { return rand.IntN(n) + 1 }
	}

	var resolve session.ResolveFunc
	resolve = func(ctx context.Context, c *chat.Context, s *session.Session) (session.Result, error) {
		g := s.Data.(*game)
		n, _ := strconv.Atoi(strings.TrimSpace(c.Msg.Text))
		g.tries++

		if n == g.target {
			_, err := c.Replyf(ctx, "🎉 %d is right! Found in %d %s.", n, g.tries, plural(g.tries, "try", "tries"))
			return session.Done, err
		}

		hint := "📈 Higher!"
		if n > g.target {
			hint = "📉 Lower!"
		}
		hintID, err := c.Reply(ctx, hint)
		if err != nil {
			return session.Continue, err
		}

		// A reply to the hint claims the session, so the game moves to the
		// new hint to stay reachable by reply.
		if s.State() != session.Open {
			if _, err := sessions.Open(c.Msg.ChatID, hintID, session.Options{
				Type:      "guess",
				Data:      g,
				Match:     isNumber,
				TTL:       ttl,
				OnResolve: resolve,
			}); err != nil {
				return session.Done, fmt.Errorf("continue guess session: %w", err)
			}
		}
		return session.Continue, nil
	}

	return &command.Definition{
		Name:        "guess",
		Description: "Guess the number between 1 and 100",
		Category:    "fun",
		Cooldown:    10 * time.Second,
		Handler: func(ctx context.Context, c *chat.Context) error {
			promptID, err := c.Replyf(ctx, "I'm thinking of a number between 1 and %d. Send your guesses!", guessMax)
			if err != nil {
				return fmt.Errorf("send prompt: %w", err)
			}
			_, err = sessions.Open(c.Msg.ChatID, promptID, session.Options{
				Type:      "guess",
				Data:      &game{target: pick(guessMax)},
				Match:     isNumber,
				TTL:       ttl,
				OnResolve: resolve,
			})
			if err != nil {
				return fmt.Errorf("open guess session: %w", err)
			}
			return nil
		},
	}
}
