// Package auth runs registration and login for anonymous sessions.
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/membo/vtubot/core/logger"
	"github.com/membo/vtubot/core/replies"
	"github.com/membo/vtubot/core/session"
	"github.com/membo/vtubot/core/users"
)

const (
	minFullNameLen = 2
	minPasswordLen = 6
	// bcrypt refuses longer input.
	maxPasswordLen = 72
)

// SessionStore is the part of the session store the flow writes to.
type SessionStore interface {
	SetState(ctx context.Context, identity string, state session.State, form session.Form) error
	SetLoggedIn(ctx context.Context, identity, userID string, role users.Role) error
}

// UserStore is the part of the user store the flow reads and writes.
type UserStore interface {
	Create(ctx context.Context, u *users.User) error
	FindByEmail(ctx context.Context, email string) (*users.User, error)
	FindByPhone(ctx context.Context, phone string) (*users.User, error)
}

// Flow is the anonymous half of the conversation.
type Flow struct {
	sessions   SessionStore
	users      UserStore
	hasher     Hasher
	adminPhone string

	dummyOnce sync.Once
	dummyHash string
}

// NewFlow builds a Flow. adminPhone is compared against normalised identities.
func NewFlow(sessions SessionStore, userStore UserStore, hasher Hasher, adminPhone string) *Flow {
	return &Flow{
		sessions:   sessions,
		users:      userStore,
		hasher:     hasher,
		adminPhone: users.NormalizePhone(adminPhone),
	}
}

// IsAdminIdentity reports whether identity is the configured administrator phone.
func (f *Flow) IsAdminIdentity(identity string) bool {
	return f.adminPhone != "" && users.NormalizePhone(identity) == f.adminPhone
}

// ProvisionAdmin loads or creates the administrator account of identity and logs
// the session in with the admin role.
func (f *Flow) ProvisionAdmin(ctx context.Context, identity string) (*users.User, error) {
	u, err := f.users.FindByPhone(ctx, identity)
	if errors.Is(err, users.ErrNotFound) {
		u, err = f.createAdmin(ctx, identity)
	}
	if err != nil {
		return nil, err
	}
	if err := f.sessions.SetLoggedIn(ctx, identity, u.ID, users.RoleAdmin); err != nil {
		return nil, err
	}
	logger.Auth.InfoContext(ctx, "admin session opened",
		slog.String("event", "admin.login"),
		slog.String("status", "ok"),
		slog.String("user_id", u.ID),
	)
	return u, nil
}

func (f *Flow) createAdmin(ctx context.Context, identity string) (*users.User, error) {
	// Nobody knows this password; the admin only ever signs in by phone.
	secret, err := randomSecret()
	if err != nil {
		return nil, err
	}
	hash, err := f.hasher.Hash(secret)
	if err != nil {
		return nil, err
	}
	u := &users.User{
		FullName:     "Admin",
		Email:        fmt.Sprintf("admin_%s@local", identity),
		PasswordHash: hash,
		PhoneNumber:  identity,
		Role:         users.RoleAdmin,
	}
	err = f.users.Create(ctx, u)
	if errors.Is(err, users.ErrPhoneTaken) {
		// Lost a race with a concurrent first contact.
		return f.users.FindByPhone(ctx, identity)
	}
	if err != nil {
		return nil, fmt.Errorf("auth: provision admin: %w", err)
	}
	logger.Auth.InfoContext(ctx, "admin provisioned",
		slog.String("event", "admin.provisioned"),
		slog.String("status", "ok"),
		slog.String("user_id", u.ID),
	)
	return u, nil
}

// Handle advances an anonymous session by one message and returns the reply.
func (f *Flow) Handle(ctx context.Context, sess *session.Session, msg string) (string, error) {
	msg = strings.TrimSpace(msg)
	id := sess.Identity

	switch strings.ToLower(msg) {
	case "register":
		return replies.AskFullName, f.sessions.SetState(ctx, id, session.StateRegisterFullName, session.Blank{})
	case "login":
		return replies.AskEmail, f.sessions.SetState(ctx, id, session.StateLoginEmail, session.Blank{})
	}

	switch sess.State {
	case session.StateRegisterFullName:
		if utf8.RuneCountInString(msg) < minFullNameLen {
			return replies.FullNameTooShort, nil
		}
		return replies.AskEmail, f.sessions.SetState(ctx, id, session.StateRegisterEmail, session.Registration{FullName: msg})

	case session.StateRegisterEmail:
		return f.registerEmail(ctx, sess, msg)

	case session.StateRegisterPassword:
		return f.registerPassword(ctx, sess, msg)

	case session.StateLoginEmail:
		email := users.NormalizeEmail(msg)
		if !strings.Contains(email, "@") {
			return replies.InvalidEmail, nil
		}
		return replies.AskPassword, f.sessions.SetState(ctx, id, session.StateLoginPassword, session.Login{Email: email})

	case session.StateLoginPassword:
		return f.loginPassword(ctx, sess, msg)
	}
	return replies.RegisterOrLogin, nil
}

func (f *Flow) registerEmail(ctx context.Context, sess *session.Session, msg string) (string, error) {
	email := users.NormalizeEmail(msg)
	if !strings.Contains(email, "@") {
		return replies.InvalidEmail, nil
	}
	_, err := f.users.FindByEmail(ctx, email)
	switch {
	case err == nil:
		return replies.EmailExists, f.sessions.SetState(ctx, sess.Identity, session.StateIdle, session.Blank{})
	case !errors.Is(err, users.ErrNotFound):
		return "", err
	}
	form, _ := sess.Form.(session.Registration)
	form.Email = email
	return replies.AskPassword, f.sessions.SetState(ctx, sess.Identity, session.StateRegisterPassword, form)
}

func (f *Flow) registerPassword(ctx context.Context, sess *session.Session, password string) (string, error) {
	if utf8.RuneCountInString(password) < minPasswordLen {
		return replies.PasswordTooShort, nil
	}
	if len(password) > maxPasswordLen {
		return replies.PasswordTooLong, nil
	}
	form, _ := sess.Form.(session.Registration)
	if form.FullName == "" || form.Email == "" {
		return replies.RegisterOrLogin, f.sessions.SetState(ctx, sess.Identity, session.StateIdle, session.Blank{})
	}

	_, err := f.users.FindByPhone(ctx, sess.Identity)
	switch {
	case err == nil:
		return replies.PhoneRegistered, f.sessions.SetState(ctx, sess.Identity, session.StateIdle, session.Blank{})
	case !errors.Is(err, users.ErrNotFound):
		return "", err
	}

	hash, err := f.hasher.Hash(password)
	if err != nil {
		return "", err
	}
	u := &users.User{
		FullName:     form.FullName,
		Email:        form.Email,
		PasswordHash: hash,
		PhoneNumber:  sess.Identity,
		Role:         users.RoleUser,
	}
	switch err := f.users.Create(ctx, u); {
	case errors.Is(err, users.ErrPhoneTaken):
		return replies.PhoneRegistered, f.sessions.SetState(ctx, sess.Identity, session.StateIdle, session.Blank{})
	case errors.Is(err, users.ErrEmailTaken):
		return replies.EmailExists, f.sessions.SetState(ctx, sess.Identity, session.StateIdle, session.Blank{})
	case err != nil:
		return "", err
	}

	if err := f.sessions.SetLoggedIn(ctx, sess.Identity, u.ID, u.Role); err != nil {
		return "", err
	}
	logger.Auth.InfoContext(ctx, "user registered",
		slog.String("event", "register"),
		slog.String("status", "ok"),
		slog.String("user_id", u.ID),
	)
	return replies.UserMenu, nil
}

func (f *Flow) loginPassword(ctx context.Context, sess *session.Session, password string) (string, error) {
	form, _ := sess.Form.(session.Login)
	u, err := f.users.FindByEmail(ctx, form.Email)
	if err != nil && !errors.Is(err, users.ErrNotFound) {
		return "", err
	}
	if u == nil {
		// Burn the same time as a real comparison so unknown emails are not observable.
		f.hasher.Compare(f.fakeHash(), password)
	}
	if u == nil || !f.hasher.Compare(u.PasswordHash, password) {
		logger.Auth.InfoContext(ctx, "login rejected",
			slog.String("event", "login"),
			slog.String("status", "rejected"),
		)
		return replies.BadCredentials, f.sessions.SetState(ctx, sess.Identity, session.StateIdle, session.Blank{})
	}

	if err := f.sessions.SetLoggedIn(ctx, sess.Identity, u.ID, u.Role); err != nil {
		return "", err
	}
	logger.Auth.InfoContext(ctx, "user logged in",
		slog.String("event", "login"),
		slog.String("status", "ok"),
		slog.String("user_id", u.ID),
		slog.String("role", string(u.Role)),
	)
	return replies.MenuFor(u.Role), nil
}

func (f *Flow) fakeHash() string {
	f.dummyOnce.Do(func() {
		secret, err := randomSecret()
		if err == nil {
			f.dummyHash, _ = f.hasher.Hash(secret)
		}
	})
	return f.dummyHash
}
