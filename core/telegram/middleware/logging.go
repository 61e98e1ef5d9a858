package middleware

import (
	"context"
	"log/slog"
	"time"

	"github.com/segmentio/ksuid"
	tele "gopkg.in/telebot.v4"

	"github.com/membo/vtubot/core/logger"
)

// Channel tags turns that arrive over Telegram.
const Channel = "telegram"

const maxUsernameLog = 32

// Logging assigns a request id, stores the logging context on the update and
// writes one line per handled update. Message text is never logged since it
// carries passwords during login.
func Logging(next tele.HandlerFunc) tele.HandlerFunc {
	return func(c tele.Context) error {
		start := time.Now()
		upd := c.Update()

		ctx := logger.WithRID(context.Background(), ksuid.New().String())
		ctx = logger.WithChannel(ctx, Channel)
		ctx = logger.WithLogger(ctx, logger.TG)
		StoreContext(c, ctx)

		err := next(c)

		level := slog.LevelDebug
		if err != nil {
			level = slog.LevelError
		}
		attrs := []slog.Attr{
			slog.String("status", logger.Status(err)),
			slog.Int("update_id", upd.ID),
			slog.Duration("duration", logger.Took(start)),
		}
		if user := c.Sender(); user != nil {
			attrs = append(attrs, slog.Int64("user_id", user.ID))
			if user.Username != "" {
				attrs = append(attrs, slog.String("username", logger.SanitizeLimit(user.Username, maxUsernameLog)))
			}
		}
		if err != nil {
			attrs = append(attrs, slog.String("err", err.Error()))
		}
		// Handlers may have enriched the stored context with the identity.
		logger.LogEvent(ContextFrom(c), logger.TG, level, "update.handled", attrs...)
		return err
	}
}
