package users

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

var (
	ErrNotFound   = errors.New("users: not found")
	ErrEmailTaken = errors.New("users: email already registered")
	ErrPhoneTaken = errors.New("users: phone number already registered")
)

const userColumns = `id, full_name, email, password_hash, phone_number, wallet_balance, role, created_at`

// Store persists users through sqlx.
type Store struct {
	db  *sqlx.DB
	now func() time.Time
}

// NewStore returns a user store bound to db.
func NewStore(db *sqlx.DB) *Store {
	return &Store{db: db, now: time.Now}
}

// Create inserts u, filling ID and CreatedAt when empty.
// Duplicate email or phone numbers yield ErrEmailTaken / ErrPhoneTaken.
func (s *Store) Create(ctx context.Context, u *User) error {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = s.now().UTC()
	}
	if u.Role == "" {
		u.Role = RoleUser
	}
	query := s.db.Rebind(`INSERT INTO users (` + userColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	_, err := s.db.ExecContext(ctx, query,
		u.ID, u.FullName, u.Email, u.PasswordHash, u.PhoneNumber, u.WalletBalance, string(u.Role), u.CreatedAt,
	)
	if err != nil {
		if mapped := uniqueViolation(err); mapped != nil {
			return mapped
		}
		return fmt.Errorf("users: create: %w", err)
	}
	return nil
}

// FindByID loads a user by primary key.
func (s *Store) FindByID(ctx context.Context, id string) (*User, error) {
	return s.findOne(ctx, "id", id)
}

// FindByEmail loads a user by normalised email.
func (s *Store) FindByEmail(ctx context.Context, email string) (*User, error) {
	return s.findOne(ctx, "email", NormalizeEmail(email))
}

// FindByPhone loads a user by normalised phone number.
func (s *Store) FindByPhone(ctx context.Context, phone string) (*User, error) {
	return s.findOne(ctx, "phone_number", NormalizePhone(phone))
}

func (s *Store) findOne(ctx context.Context, column, value string) (*User, error) {
	var u User
	query := s.db.Rebind(`SELECT ` + userColumns + ` FROM users WHERE ` + column + ` = ?`)
	if err := s.db.GetContext(ctx, &u, query, value); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("users: find by %s: %w", column, err)
	}
	return &u, nil
}

// Count returns the number of registered users.
func (s *Store) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM users`); err != nil {
		return 0, fmt.Errorf("users: count: %w", err)
	}
	return n, nil
}

// ListPhones returns every user's phone number in registration order.
func (s *Store) ListPhones(ctx context.Context) ([]string, error) {
	var phones []string
	err := s.db.SelectContext(ctx, &phones,
		`SELECT phone_number FROM users WHERE phone_number <> '' ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("users: list phones: %w", err)
	}
	return phones, nil
}

// uniqueViolation maps driver specific unique constraint errors on users.
func uniqueViolation(err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == "23505" {
		switch pqErr.Constraint {
		case "users_email_key":
			return ErrEmailTaken
		case "users_phone_number_key":
			return ErrPhoneTaken
		}
		return nil
	}
	var liteErr *sqlite.Error
	// Primary result code lives in the low byte whether or not extended codes are on.
	if errors.As(err, &liteErr) && liteErr.Code()&0xff == sqlite3.SQLITE_CONSTRAINT {
		msg := liteErr.Error()
		switch {
		case strings.Contains(msg, "UNIQUE constraint failed: users.email"):
			return ErrEmailTaken
		case strings.Contains(msg, "UNIQUE constraint failed: users.phone_number"):
			return ErrPhoneTaken
		}
	}
	return nil
}
