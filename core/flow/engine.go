// Package flow routes one inbound message through the conversation state machine.
package flow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/membo/vtubot/core/broadcast"
	"github.com/membo/vtubot/core/chat"
	"github.com/membo/vtubot/core/logger"
	"github.com/membo/vtubot/core/replies"
	"github.com/membo/vtubot/core/session"
	"github.com/membo/vtubot/core/users"
	"github.com/membo/vtubot/core/wallet"
)

// Inbound is one message received from a transport.
type Inbound struct {
	Identity string
	Text     string
	Channel  string
}

// Sessions is the session store as seen by the router.
type Sessions interface {
	GetOrCreate(ctx context.Context, identity string) (*session.Session, error)
	Get(ctx context.Context, identity string) (*session.Session, error)
	SetState(ctx context.Context, identity string, state session.State, form session.Form) error
	Logout(ctx context.Context, identity string) error
}

// Users is the read side of the user store.
type Users interface {
	FindByID(ctx context.Context, id string) (*users.User, error)
	FindByPhone(ctx context.Context, phone string) (*users.User, error)
	Count(ctx context.Context) (int64, error)
}

// Ledger is the wallet as seen by the router.
type Ledger interface {
	Debit(ctx context.Context, userID string, amount decimal.Decimal, p wallet.Purchase) (wallet.Transaction, error)
	Credit(ctx context.Context, userID string, amount decimal.Decimal) error
	CountTransactions(ctx context.Context) (int64, error)
	SumSuccessful(ctx context.Context) (decimal.Decimal, error)
}

// Authenticator runs the anonymous half of the conversation.
type Authenticator interface {
	IsAdminIdentity(identity string) bool
	ProvisionAdmin(ctx context.Context, identity string) (*users.User, error)
	Handle(ctx context.Context, sess *session.Session, msg string) (string, error)
}

// Broadcaster fans a text out to every user.
type Broadcaster interface {
	Send(ctx context.Context, text string) (broadcast.Summary, error)
}

// Deps are the collaborators of an Engine. A nil Locker selects an in-process one.
type Deps struct {
	Sessions  Sessions
	Users     Users
	Ledger    Ledger
	Auth      Authenticator
	Chat      chat.Completer
	Broadcast Broadcaster
	Locker    session.Locker
}

// Engine turns inbound messages into replies.
type Engine struct {
	sessions  Sessions
	users     Users
	ledger    Ledger
	auth      Authenticator
	chat      chat.Completer
	broadcast Broadcaster
	locker    session.Locker
}

// New builds an Engine.
func New(d Deps) *Engine {
	if d.Locker == nil {
		d.Locker = session.NewMemoryLocker()
	}
	return &Engine{
		sessions:  d.Sessions,
		users:     d.Users,
		ledger:    d.Ledger,
		auth:      d.Auth,
		chat:      d.Chat,
		broadcast: d.Broadcast,
		locker:    d.Locker,
	}
}

// Handle runs one turn for in and returns the reply. An empty reply with a nil
// error means there is nothing to send.
func (e *Engine) Handle(ctx context.Context, in Inbound) (string, error) {
	identity := users.NormalizePhone(in.Identity)
	if identity == "" {
		return "", nil
	}
	ctx = logger.WithIdentity(ctx, identity)
	if in.Channel != "" {
		ctx = logger.WithChannel(ctx, in.Channel)
	}

	unlock, err := e.locker.Lock(ctx, identity)
	if err != nil {
		return "", fmt.Errorf("flow: lock: %w", err)
	}
	defer unlock()

	start := time.Now()
	reply, state, err := e.turn(ctx, identity, strings.TrimSpace(in.Text))
	level := slog.LevelDebug
	if err != nil {
		level = slog.LevelError
	}
	logger.LogEvent(ctx, logger.Flow, level, "turn",
		slog.String("status", logger.Status(err)),
		slog.String("state", string(state)),
		slog.Duration("duration", logger.Took(start)),
		slog.String("err", errString(err)),
	)
	return reply, err
}

func (e *Engine) turn(ctx context.Context, identity, msg string) (string, session.State, error) {
	sess, err := e.sessions.GetOrCreate(ctx, identity)
	if err != nil {
		return "", "", err
	}

	if !sess.LoggedIn && e.auth.IsAdminIdentity(identity) {
		if _, err := e.auth.ProvisionAdmin(ctx, identity); err != nil {
			return "", sess.State, err
		}
		if sess, err = e.sessions.Get(ctx, identity); err != nil {
			return "", "", err
		}
	}

	switch strings.ToLower(msg) {
	case "logout":
		return replies.LoggedOut, sess.State, e.sessions.Logout(ctx, identity)
	case "menu":
		if !sess.LoggedIn {
			return replies.RegisterOrLogin, sess.State, e.sessions.SetState(ctx, identity, session.StateIdle, session.Blank{})
		}
		return replies.MenuFor(sess.Role), sess.State, e.sessions.SetState(ctx, identity, session.MenuFor(sess.Role), session.Blank{})
	}

	if !sess.LoggedIn {
		reply, err := e.auth.Handle(ctx, sess, msg)
		return reply, sess.State, err
	}

	u, err := e.users.FindByID(ctx, sess.UserID)
	if errors.Is(err, users.ErrNotFound) {
		return e.sessionError(ctx, sess)
	}
	if err != nil {
		return "", sess.State, err
	}

	var reply string
	if sess.Role == users.RoleAdmin {
		reply, err = e.handleAdmin(ctx, sess, msg)
	} else {
		reply, err = e.handleUser(ctx, sess, u, msg)
	}
	return reply, sess.State, err
}

func (e *Engine) sessionError(ctx context.Context, sess *session.Session) (string, session.State, error) {
	logger.Flow.WarnContext(ctx, "session user missing",
		slog.String("event", "session.orphaned"),
		slog.String("user_id", sess.UserID),
	)
	return replies.SessionError, sess.State, e.sessions.Logout(ctx, sess.Identity)
}

// home returns identity to the menu of its role with a blank form.
func (e *Engine) home(ctx context.Context, sess *session.Session) error {
	return e.sessions.SetState(ctx, sess.Identity, session.MenuFor(sess.Role), session.Blank{})
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
