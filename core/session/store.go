// Package session persists the per-identity conversation position.
package session

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/membo/vtubot/core/users"
)

var (
	ErrNotFound     = errors.New("session: not found")
	ErrInvalidState = errors.New("session: invalid state")
)

// Session is the conversation record of one identity.
type Session struct {
	Identity  string
	State     State
	Form      Form
	LoggedIn  bool
	UserID    string
	Role      users.Role
	UpdatedAt time.Time
}

type row struct {
	PhoneNumber string         `db:"phone_number"`
	State       string         `db:"state"`
	TempData    string         `db:"temp_data"`
	LoggedIn    bool           `db:"is_logged_in"`
	UserID      sql.NullString `db:"user_id"`
	Role        string         `db:"role"`
	UpdatedAt   time.Time      `db:"updated_at"`
}

func (r row) toSession() (*Session, error) {
	st := State(r.State)
	if !st.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidState, r.State)
	}
	form, err := decodeForm(st, r.TempData)
	if err != nil {
		return nil, err
	}
	return &Session{
		Identity:  r.PhoneNumber,
		State:     st,
		Form:      form,
		LoggedIn:  r.LoggedIn,
		UserID:    r.UserID.String,
		Role:      users.Role(r.Role),
		UpdatedAt: r.UpdatedAt,
	}, nil
}

// Store keeps sessions in the sessions table.
type Store struct {
	db  *sqlx.DB
	now func() time.Time
}

// NewStore returns a session store bound to db.
func NewStore(db *sqlx.DB) *Store {
	return &Store{db: db, now: time.Now}
}

// GetOrCreate returns the session of identity, creating an idle one on first contact.
// Concurrent callers for the same identity share one row.
func (s *Store) GetOrCreate(ctx context.Context, identity string) (*Session, error) {
	insert := s.db.Rebind(`INSERT INTO sessions (phone_number, state, temp_data, is_logged_in, role, updated_at)
		VALUES (?, ?, '{}', ?, '', ?)
		ON CONFLICT (phone_number) DO NOTHING`)
	if _, err := s.db.ExecContext(ctx, insert, identity, string(StateIdle), false, s.now().UTC()); err != nil {
		return nil, fmt.Errorf("session: create: %w", err)
	}
	return s.Get(ctx, identity)
}

// Get loads the session of identity.
func (s *Store) Get(ctx context.Context, identity string) (*Session, error) {
	var r row
	query := s.db.Rebind(`SELECT phone_number, state, temp_data, is_logged_in, user_id, role, updated_at
		FROM sessions WHERE phone_number = ?`)
	if err := s.db.GetContext(ctx, &r, query, identity); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("session: get: %w", err)
	}
	return r.toSession()
}

// SetState moves identity to state. A nil form keeps the stored scratch data,
// any other form replaces it wholesale.
func (s *Store) SetState(ctx context.Context, identity string, state State, form Form) error {
	if !state.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidState, state)
	}
	var (
		res sql.Result
		err error
	)
	if form == nil {
		query := s.db.Rebind(`UPDATE sessions SET state = ?, updated_at = ? WHERE phone_number = ?`)
		res, err = s.db.ExecContext(ctx, query, string(state), s.now().UTC(), identity)
	} else {
		if err := checkForm(state, form); err != nil {
			return err
		}
		raw, encErr := encodeForm(form)
		if encErr != nil {
			return encErr
		}
		query := s.db.Rebind(`UPDATE sessions SET state = ?, temp_data = ?, updated_at = ? WHERE phone_number = ?`)
		res, err = s.db.ExecContext(ctx, query, string(state), raw, s.now().UTC(), identity)
	}
	if err != nil {
		return fmt.Errorf("session: set state: %w", err)
	}
	return expectOne(res)
}

// SetLoggedIn binds identity to userID and lands it on the menu of role with a blank form.
func (s *Store) SetLoggedIn(ctx context.Context, identity, userID string, role users.Role) error {
	if userID == "" {
		return fmt.Errorf("session: login without user id")
	}
	if !role.Valid() {
		return fmt.Errorf("session: login with invalid role %q", role)
	}
	query := s.db.Rebind(`UPDATE sessions
		SET is_logged_in = ?, user_id = ?, role = ?, state = ?, temp_data = '{}', updated_at = ?
		WHERE phone_number = ?`)
	res, err := s.db.ExecContext(ctx, query, true, userID, string(role), string(MenuFor(role)), s.now().UTC(), identity)
	if err != nil {
		return fmt.Errorf("session: set logged in: %w", err)
	}
	return expectOne(res)
}

// Logout resets identity to an idle, anonymous session.
func (s *Store) Logout(ctx context.Context, identity string) error {
	query := s.db.Rebind(`UPDATE sessions
		SET is_logged_in = ?, user_id = NULL, role = '', state = ?, temp_data = '{}', updated_at = ?
		WHERE phone_number = ?`)
	res, err := s.db.ExecContext(ctx, query, false, string(StateIdle), s.now().UTC(), identity)
	if err != nil {
		return fmt.Errorf("session: logout: %w", err)
	}
	return expectOne(res)
}

// Stale lists identities whose session has sat inside a form since before.
func (s *Store) Stale(ctx context.Context, before time.Time) ([]string, error) {
	query := s.db.Rebind(`SELECT phone_number FROM sessions
		WHERE state NOT IN (?, ?, ?) AND updated_at < ?
		ORDER BY updated_at`)
	var ids []string
	err := s.db.SelectContext(ctx, &ids, query,
		string(StateIdle), string(StateMenu), string(StateAdminMenu), before.UTC())
	if err != nil {
		return nil, fmt.Errorf("session: list stale: %w", err)
	}
	return ids, nil
}

// ResetStale returns identity to its home state if it is still inside a form
// untouched since before. It reports false when a newer turn got there first.
// Callers hold the identity's Locker.
func (s *Store) ResetStale(ctx context.Context, identity string, before time.Time) (bool, error) {
	query := s.db.Rebind(`UPDATE sessions
		SET state = CASE
				WHEN is_logged_in AND role = ? THEN ?
				WHEN is_logged_in THEN ?
				ELSE ?
			END,
			temp_data = '{}',
			updated_at = ?
		WHERE phone_number = ? AND state NOT IN (?, ?, ?) AND updated_at < ?`)
	res, err := s.db.ExecContext(ctx, query,
		string(users.RoleAdmin), string(StateAdminMenu), string(StateMenu), string(StateIdle),
		s.now().UTC(),
		identity,
		string(StateIdle), string(StateMenu), string(StateAdminMenu), before.UTC(),
	)
	if err != nil {
		return false, fmt.Errorf("session: reset stale: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("session: reset stale: %w", err)
	}
	return n > 0, nil
}

func expectOne(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("session: rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
