package telegram

import (
	"fmt"
	"strings"
	"time"

	tele "gopkg.in/telebot.v4"

	"github.com/membo/vtubot/core/config"
)

const defaultLongPollTimeout = 10 * time.Second

// BuildPoller returns a webhook poller in webhook mode and a long poller otherwise.
func BuildPoller(cfg config.TelegramConfig) tele.Poller {
	if strings.EqualFold(strings.TrimSpace(cfg.RunMode), config.RunModeWebhook) {
		return &tele.Webhook{
			Listen:   fmt.Sprintf("%s:%d", cfg.Webhook.Listen, cfg.Webhook.Port),
			Endpoint: &tele.WebhookEndpoint{PublicURL: cfg.Webhook.URL},
		}
	}
	return &tele.LongPoller{Timeout: longPollTimeout(cfg)}
}

func longPollTimeout(cfg config.TelegramConfig) time.Duration {
	if cfg.LongPollTimeoutSeconds > 0 {
		return time.Duration(cfg.LongPollTimeoutSeconds) * time.Second
	}
	return defaultLongPollTimeout
}
