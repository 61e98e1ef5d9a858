package telegram

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
)

// ErrNotLinked is returned when a Telegram user or phone has no binding.
var ErrNotLinked = errors.New("telegram: not linked")

// Link binds a Telegram account to the phone number used as session identity.
type Link struct {
	PhoneNumber string    `db:"phone_number"`
	TGUserID    int64     `db:"tg_user_id"`
	ChatID      int64     `db:"chat_id"`
	LinkedAt    time.Time `db:"linked_at"`
}

// Links persists phone bindings in telegram_links.
type Links struct {
	db  *sqlx.DB
	now func() time.Time
}

// NewLinks returns a link store bound to db.
func NewLinks(db *sqlx.DB) *Links {
	return &Links{db: db, now: time.Now}
}

// Save binds phone to the Telegram user. Any earlier binding of either side is replaced.
func (l *Links) Save(ctx context.Context, phone string, tgUserID, chatID int64) (err error) {
	tx, err := l.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("telegram: begin link: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	del := tx.Rebind(`DELETE FROM telegram_links WHERE phone_number = ? OR tg_user_id = ?`)
	if _, err = tx.ExecContext(ctx, del, phone, tgUserID); err != nil {
		return fmt.Errorf("telegram: clear link: %w", err)
	}
	ins := tx.Rebind(`INSERT INTO telegram_links (phone_number, tg_user_id, chat_id, linked_at) VALUES (?, ?, ?, ?)`)
	if _, err = tx.ExecContext(ctx, ins, phone, tgUserID, chatID, l.now().UTC()); err != nil {
		return fmt.Errorf("telegram: insert link: %w", err)
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("telegram: commit link: %w", err)
	}
	return nil
}

// ByUser returns the binding of a Telegram user.
func (l *Links) ByUser(ctx context.Context, tgUserID int64) (*Link, error) {
	return l.find(ctx, "tg_user_id", tgUserID)
}

// ByPhone returns the binding of a phone number.
func (l *Links) ByPhone(ctx context.Context, phone string) (*Link, error) {
	return l.find(ctx, "phone_number", phone)
}

func (l *Links) find(ctx context.Context, column string, value any) (*Link, error) {
	var link Link
	query := l.db.Rebind(`SELECT phone_number, tg_user_id, chat_id, linked_at FROM telegram_links WHERE ` + column + ` = ?`)
	if err := l.db.GetContext(ctx, &link, query, value); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotLinked
		}
		return nil, fmt.Errorf("telegram: find link by %s: %w", column, err)
	}
	return &link, nil
}
