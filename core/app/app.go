// Package app wires stores, transports and jobs into a runnable service.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/membo/vtubot/core/auth"
	"github.com/membo/vtubot/core/bootstrap"
	"github.com/membo/vtubot/core/broadcast"
	"github.com/membo/vtubot/core/chat"
	"github.com/membo/vtubot/core/config"
	"github.com/membo/vtubot/core/flow"
	"github.com/membo/vtubot/core/httpapi"
	"github.com/membo/vtubot/core/jobs"
	"github.com/membo/vtubot/core/logger"
	"github.com/membo/vtubot/core/messaging"
	"github.com/membo/vtubot/core/netutil"
	"github.com/membo/vtubot/core/security"
	"github.com/membo/vtubot/core/session"
	"github.com/membo/vtubot/core/telegram"
	"github.com/membo/vtubot/core/users"
	"github.com/membo/vtubot/core/wallet"
	"github.com/membo/vtubot/core/whatsapp"
)

const (
	webhookPath       = "/webhook"
	sendMaxRetries    = 2
	sendRetryBackoff  = time.Second
	telegramClientTimeout = time.Minute
)

// App holds the long-running components.
type App struct {
	cfg       *config.Config
	users     *users.Store
	sessions  *session.Store
	auth      *auth.Flow
	engine    *flow.Engine
	server    *httpapi.Server
	telegram  *telegram.Bot
	scheduler *jobs.Scheduler
}

// stats serves the admin API totals from both stores.
type stats struct {
	*users.Store
	*wallet.Ledger
}

// engineRef lets transports built before the engine reach it once it exists.
type engineRef struct {
	*flow.Engine
}

// New builds every component on top of the bootstrapped infrastructure.
func New(cfg *config.Config, infra *bootstrap.Result) (*App, error) {
	a := &App{
		cfg:      cfg,
		users:    users.NewStore(infra.DB),
		sessions: session.NewStore(infra.DB),
	}
	ledger := wallet.NewLedger(infra.DB)
	a.auth = auth.NewFlow(a.sessions, a.users, auth.NewBcryptHasher(cfg.Security.BcryptCost), cfg.Admin.Phone)

	ref := &engineRef{}
	retry := messaging.RetryOptions{MaxRetries: sendMaxRetries, RetryBackoff: sendRetryBackoff}

	var senders messaging.Chain
	if cfg.Telegram.Enabled {
		bot, err := telegram.New(telegram.Options{
			Config:    cfg.Telegram,
			RateLimit: time.Duration(cfg.RateLimit.IntervalMS) * time.Millisecond,
			Client:    netutil.NewHTTPClient(telegramClientTimeout),
		}, telegram.NewLinks(infra.DB), ref)
		if err != nil {
			return nil, err
		}
		a.telegram = bot
		senders = append(senders, bot)
	}
	var waSender messaging.Sender
	if cfg.WhatsApp.Enabled {
		waSender = messaging.NewRetrying(messaging.NewWhatsApp(cfg.WhatsApp, nil), retry)
		senders = append(senders, waSender)
	}

	// Turns and the form sweeper share one locker.
	var locker session.Locker = session.NewMemoryLocker()
	if infra.Redis != nil {
		locker = session.NewRedisLocker(infra.Redis, cfg.Redis.LockTTL())
	}

	a.engine = flow.New(flow.Deps{
		Sessions:  a.sessions,
		Users:     a.users,
		Ledger:    ledger,
		Auth:      a.auth,
		Chat:      chat.NewDeepSeek(cfg.AI, nil),
		Broadcast: broadcast.New(a.users, messaging.NewRetrying(senders, retry), cfg.Broadcast.Concurrency),
		Locker:    locker,
	})
	ref.Engine = a.engine

	a.server = httpapi.NewServer(cfg)
	if cfg.WhatsApp.Enabled {
		whatsapp.NewWebhook(a.engine, waSender, cfg.WhatsApp.VerifyToken, cfg.WhatsApp.AppSecret).
			Register(a.server.Router(), webhookPath)
	}
	var tokens *security.Tokens
	if cfg.Security.JWTSecret != "" {
		tokens = security.NewTokens(cfg.Security.JWTSecret, cfg.Security.JWTIssuer, cfg.Security.TokenTTL())
	}
	httpapi.NewAPI(healthChecks(infra), stats{Store: a.users, Ledger: ledger}, tokens).Register(a.server.Router())

	a.scheduler = jobs.NewScheduler()
	if err := a.scheduler.AddFormSweeper(cfg.Sessions.SweepSchedule, a.sessions, locker, cfg.Sessions.FormTTL()); err != nil {
		return nil, err
	}
	return a, nil
}

func healthChecks(infra *bootstrap.Result) map[string]httpapi.Check {
	checks := map[string]httpapi.Check{
		"database": func(ctx context.Context) error { return infra.DB.PingContext(ctx) },
	}
	if infra.Redis != nil {
		checks["redis"] = func(ctx context.Context) error { return infra.Redis.Ping(ctx).Err() }
	}
	return checks
}

// Seeders returns the data loaders run before serving.
func (a *App) Seeders() []bootstrap.Seeder {
	return []bootstrap.Seeder{ProvisionAdmin(a.sessions, a.auth, a.cfg.Admin.Phone)}
}

// ProvisionAdmin ensures the administrator account exists with an open session.
func ProvisionAdmin(sessions *session.Store, authFlow *auth.Flow, phone string) bootstrap.Seeder {
	return bootstrap.SeederFunc(func(ctx context.Context) error {
		if _, err := sessions.GetOrCreate(ctx, phone); err != nil {
			return fmt.Errorf("app: admin session: %w", err)
		}
		if _, err := authFlow.ProvisionAdmin(ctx, phone); err != nil {
			return fmt.Errorf("app: provision admin: %w", err)
		}
		return nil
	})
}

// Run serves every enabled transport and the scheduler until ctx is done or one of them fails.
func (a *App) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return a.server.Run(gctx) })
	g.Go(func() error { return a.scheduler.Run(gctx) })
	if a.telegram != nil {
		g.Go(func() error { return a.telegram.Run(gctx) })
	}

	logger.L.Info("app ready",
		slog.String("event", "ready"),
		slog.Bool("whatsapp", a.cfg.WhatsApp.Enabled),
		slog.Bool("telegram", a.cfg.Telegram.Enabled),
	)
	err := g.Wait()
	logger.L.Info("app stopped",
		slog.String("event", "shutdown"),
		slog.String("status", logger.Status(err)),
	)
	return err
}

// Main bootstraps infrastructure, seeds, and runs the service until ctx is done.
func Main(ctx context.Context, cfg *config.Config) error {
	infra, err := bootstrap.Run(ctx, bootstrap.Options{Config: cfg})
	if err != nil {
		return err
	}
	defer func() {
		if cerr := infra.Close(); cerr != nil {
			logger.L.Warn("close infrastructure failed",
				slog.String("event", "shutdown"),
				slog.String("status", "fail"),
				slog.String("err", cerr.Error()),
			)
		}
	}()

	a, err := New(cfg, infra)
	if err != nil {
		return err
	}
	if err := bootstrap.RunSeeders(ctx, a.Seeders()...); err != nil {
		return err
	}
	return a.Run(ctx)
}
