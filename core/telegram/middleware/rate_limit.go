package middleware

import (
	"log/slog"
	"sync"
	"time"

	tele "gopkg.in/telebot.v4"

	"github.com/membo/vtubot/core/logger"
)

// RateLimitOptions configures RateLimit.
type RateLimitOptions struct {
	Interval  time.Duration
	OnLimited tele.HandlerFunc
	// Now is used by tests; nil means time.Now.
	Now func() time.Time
}

// RateLimit drops messages that arrive from the same user within Interval of
// the previous accepted one. A zero interval disables the check.
func RateLimit(opts RateLimitOptions) tele.MiddlewareFunc {
	var (
		mu       sync.Mutex
		lastSeen = make(map[int64]time.Time)
	)
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return func(next tele.HandlerFunc) tele.HandlerFunc {
		return func(c tele.Context) error {
			user := c.Sender()
			if user == nil || opts.Interval <= 0 {
				return next(c)
			}

			t := now()
			mu.Lock()
			if last, ok := lastSeen[user.ID]; ok && t.Sub(last) < opts.Interval {
				mu.Unlock()
				logger.LogEvent(ContextFrom(c), logger.TG, slog.LevelWarn, "tg.rate_limit",
					slog.String("status", "rejected"),
					slog.Int64("user_id", user.ID),
				)
				if opts.OnLimited != nil {
					return opts.OnLimited(c)
				}
				return nil
			}
			lastSeen[user.ID] = t
			mu.Unlock()
			return next(c)
		}
	}
}
