package commands

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/jdelaire/openbot/core/chat"
	"github.com/jdelaire/openbot/core/command"
	"github.com/jdelaire/openbot/core/session"
)

// Ratings accumulates scores per subject.
type Ratings struct {
	mu     sync.Mutex
	scores map[string][]int
}

// NewRatings creates an empty tally.
func NewRatings() *Ratings {
	return &Ratings{scores: make(map[string][]int)}
}

// Record adds a score and returns the new average and count.
func (r *Ratings) Record(subject string, score int) (float64, int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := strings.ToLower(subject)
	r.scores[key] = append(r.scores[key], score)
	return average(r.scores[key]), len(r.scores[key])
}

// Average returns the average score and count for subject.
func (r *Ratings) Average(subject string) (float64, int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := r.scores[strings.ToLower(subject)]
	return average(s), len(s)
}

func average(s []int) float64 {
	if len(s) == 0 {
		return 0
	}
	sum := 0
	for _, v := range s {
		sum += v
	}
	return float64(sum) / float64(len(s))
}

// score parses a rating between 1 and 5.
func score(text string) (int, bool) {
	n, err := strconv.Atoi(strings.TrimSpace(text))
	if err != nil || n < 1 || n > 5 {
		return 0, false
	}
	return n, true
}

func isScore(msg *chat.Message) bool {
	_, ok := score(msg.Text)
	return ok
}

// Rate asks the sender for a 1–5 score by reply. Only the sender may
// answer; replies that are not a score are ignored until the prompt expires.
func Rate(sessions *session.Store, ratings *Ratings, ttl time.Duration) *command.Definition {
	return &command.Definition{
		Name:        "rate",
		Description: "Rate something from 1 to 5",
		Usage:       "/rate <subject>",
		Category:    "fun",
		Cooldown:    5 * time.Second,
		Handler: func(ctx context.Context, c *chat.Context) error {
			subject := c.Msg.ArgText
			if subject == "" {
				subject = "the bot"
			}

			promptID, err := c.Replyf(ctx, "How would you rate %s? Reply to this message with 1–5.", subject)
			if err != nil {
				return fmt.Errorf("send prompt: %w", err)
			}

			_, err = sessions.Open(c.Msg.ChatID, promptID, session.Options{
				Type:  "rate",
				Owner: c.Msg.SenderID,
				Data:  subject,
				Match: isScore,
				TTL:   ttl,
				OnResolve: func(ctx context.Context, c *chat.Context, s *session.Session) (session.Result, error) {
					n, _ := score(c.Msg.Text)
					subject := s.Data.(string)
					avg, count := ratings.Record(subject, n)
					_, err := c.Replyf(ctx, "Thanks! You rated %s %d/5. Average: %.1f from %d %s.",
						subject, n, avg, count, plural(count, "rating", "ratings"))
					return session.Done, err
				},
			})
			if err != nil {
				return fmt.Errorf("open rate session: %w", err)
			}
			return nil
		},
	}
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}
