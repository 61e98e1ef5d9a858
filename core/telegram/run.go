package telegram

import (
	"context"
	"log/slog"

	tele "gopkg.in/telebot.v4"

	"github.com/membo/vtubot/core/logger"
)

var botCommands = []tele.Command{
	{Text: "start", Description: "Link your phone number"},
}

// Run polls for updates until ctx is done.
func (b *Bot) Run(ctx context.Context) error {
	switch p := b.bot.Poller.(type) {
	case *tele.Webhook:
		logger.TG.Info("webhook mode",
			slog.String("event", "mode"),
			slog.String("mode", "webhook"),
			slog.String("listen", p.Listen),
			slog.String("public_url", p.Endpoint.PublicURL),
		)
	default:
		logger.TG.Info("polling mode",
			slog.String("event", "mode"),
			slog.String("mode", "polling"),
			slog.Duration("timeout", longPollTimeout(b.cfg)),
		)
		// A webhook left over from an earlier deployment blocks getUpdates.
		err := b.bot.RemoveWebhook(false)
		logger.TG.Log(ctx, levelFor(err), "delete webhook",
			slog.String("event", "delete_webhook"),
			slog.String("status", logger.Status(err)),
		)
	}

	if err := b.bot.SetCommands(botCommands); err != nil {
		logger.TG.Warn("set commands failed",
			slog.String("event", "set_commands"),
			slog.String("status", "fail"),
			slog.String("err", err.Error()),
		)
	}

	done := make(chan struct{})
	go func() {
		b.bot.Start()
		close(done)
	}()

	select {
	case <-ctx.Done():
		b.bot.Stop()
		<-done
	case <-done:
	}
	logger.TG.Info("telegram stopped", slog.String("event", "tg.stop"))
	return nil
}
