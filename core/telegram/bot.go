// Package telegram serves the conversation over a Telegram bot. A chat is
// bound to a phone number once its user shares their own contact; from then
// on the phone number is the session identity, exactly as on WhatsApp.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	tele "gopkg.in/telebot.v4"

	"github.com/membo/vtubot/core/config"
	"github.com/membo/vtubot/core/flow"
	"github.com/membo/vtubot/core/logger"
	"github.com/membo/vtubot/core/replies"
	"github.com/membo/vtubot/core/telegram/middleware"
	"github.com/membo/vtubot/core/users"
)

// Turner runs one conversation turn.
type Turner interface {
	Handle(ctx context.Context, in flow.Inbound) (string, error)
}

// LinkStore persists phone bindings.
type LinkStore interface {
	Save(ctx context.Context, phone string, tgUserID, chatID int64) error
	ByUser(ctx context.Context, tgUserID int64) (*Link, error)
	ByPhone(ctx context.Context, phone string) (*Link, error)
}

// Options configures New.
type Options struct {
	Config    config.TelegramConfig
	RateLimit time.Duration
	Client    *http.Client
	// URL overrides the Bot API base URL.
	URL string
	// Offline skips the getMe call on construction.
	Offline bool
}

// Bot owns the telebot instance and its handlers.
type Bot struct {
	bot    *tele.Bot
	cfg    config.TelegramConfig
	links  LinkStore
	turner Turner
}

// New builds the bot and registers its middleware and handlers. It does not start polling.
func New(opts Options, links LinkStore, turner Turner) (*Bot, error) {
	b := &Bot{cfg: opts.Config, links: links, turner: turner}

	tb, err := tele.NewBot(tele.Settings{
		Token:   opts.Config.Token,
		URL:     opts.URL,
		Poller:  BuildPoller(opts.Config),
		Client:  opts.Client,
		Offline: opts.Offline,
		OnError: onError,
	})
	if err != nil {
		return nil, fmt.Errorf("telegram: bot initialization failed: %w", err)
	}
	b.bot = tb

	tb.Use(
		middleware.Logging,
		middleware.Recover,
		middleware.RateLimit(middleware.RateLimitOptions{
			Interval: opts.RateLimit,
			OnLimited: func(c tele.Context) error {
				return c.Send(replies.SlowDown)
			},
		}),
	)
	tb.Handle("/start", b.onStart)
	tb.Handle(tele.OnContact, b.onContact)
	tb.Handle(tele.OnText, b.onText)
	return b, nil
}

func (b *Bot) onStart(c tele.Context) error {
	handlerContext(c, "start")
	return c.Send(replies.ShareContact, contactKeyboard())
}

// onContact binds the chat to the shared phone number. Only the sender's own
// contact is accepted.
func (b *Bot) onContact(c tele.Context) error {
	ctx := handlerContext(c, "contact")
	sender := c.Sender()
	msg := c.Message()
	if sender == nil || msg == nil || msg.Contact == nil || msg.Contact.UserID != sender.ID {
		return c.Send(replies.ForeignContact, contactKeyboard())
	}
	phone := users.NormalizePhone(msg.Contact.PhoneNumber)
	if phone == "" {
		return c.Send(replies.ForeignContact, contactKeyboard())
	}

	chatID := sender.ID
	if chat := c.Chat(); chat != nil {
		chatID = chat.ID
	}
	ctx = logger.WithIdentity(ctx, phone)
	middleware.StoreContext(c, ctx)

	err := b.links.Save(ctx, phone, sender.ID, chatID)
	logger.LogEvent(ctx, logger.TG, levelFor(err), "tg.link",
		slog.String("status", logger.Status(err)),
		slog.Int64("user_id", sender.ID),
	)
	if err != nil {
		return err
	}
	return c.Send(replies.ContactLinked(phone), &tele.ReplyMarkup{RemoveKeyboard: true})
}

func (b *Bot) onText(c tele.Context) error {
	ctx := handlerContext(c, "text")
	sender := c.Sender()
	if sender == nil {
		return nil
	}

	link, err := b.links.ByUser(ctx, sender.ID)
	if errors.Is(err, ErrNotLinked) {
		return c.Send(replies.ShareContact, contactKeyboard())
	}
	if err != nil {
		return err
	}

	ctx = logger.WithIdentity(ctx, link.PhoneNumber)
	middleware.StoreContext(c, ctx)

	reply, err := b.turner.Handle(ctx, flow.Inbound{
		Identity: link.PhoneNumber,
		Text:     c.Text(),
		Channel:  middleware.Channel,
	})
	if err != nil {
		return err
	}
	if reply == "" {
		return nil
	}
	return c.Send(reply)
}

// handlerContext tags the update context with the handler name so the
// update.handled line and everything below it carry it.
func handlerContext(c tele.Context, name string) context.Context {
	ctx := logger.WithHandler(middleware.ContextFrom(c), name)
	middleware.StoreContext(c, ctx)
	return ctx
}

func contactKeyboard() *tele.ReplyMarkup {
	markup := &tele.ReplyMarkup{ResizeKeyboard: true, OneTimeKeyboard: true}
	markup.Reply(markup.Row(markup.Contact(replies.ShareContactButton)))
	return markup
}

// onError only reports poller failures; handler errors are logged by middleware.Logging.
func onError(err error, c tele.Context) {
	if c != nil {
		return
	}
	logger.TG.Warn("telegram poller error",
		slog.String("event", "tg.poll"),
		slog.String("status", "fail"),
		slog.String("err", err.Error()),
	)
}

func levelFor(err error) slog.Level {
	if err != nil {
		return slog.LevelError
	}
	return slog.LevelInfo
}
