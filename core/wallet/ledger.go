// Package wallet moves money in and out of user balances.
package wallet

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"github.com/membo/vtubot/core/catalog"
	"github.com/membo/vtubot/core/logger"
)

var (
	ErrInsufficientFunds = errors.New("wallet: insufficient funds")
	ErrUserNotFound      = errors.New("wallet: user not found")
	ErrInvalidAmount     = errors.New("wallet: amount must be positive")
)

// TxType is the kind of purchase recorded in the ledger.
type TxType string

const (
	TxAirtime TxType = "AIRTIME"
	TxData    TxType = "DATA"
)

// TxStatus is the outcome of a purchase.
type TxStatus string

const (
	StatusSuccess TxStatus = "SUCCESS"
	StatusFailed  TxStatus = "FAILED"
)

// Purchase describes what a debit pays for.
type Purchase struct {
	Type      TxType
	Network   catalog.Network
	Recipient string
}

// Transaction is an append-only ledger entry.
type Transaction struct {
	ID          string          `db:"id"`
	UserID      string          `db:"user_id"`
	Type        TxType          `db:"type"`
	Network     string          `db:"network"`
	PhoneNumber string          `db:"phone_number"`
	Amount      decimal.Decimal `db:"amount"`
	Status      TxStatus        `db:"status"`
	CreatedAt   time.Time       `db:"created_at"`
}

// Ledger performs atomic balance mutations.
type Ledger struct {
	db  *sqlx.DB
	now func() time.Time
}

// NewLedger returns a ledger bound to db.
func NewLedger(db *sqlx.DB) *Ledger {
	return &Ledger{db: db, now: time.Now}
}

// Debit takes amount from the user's balance and records a SUCCESS transaction
// in one database transaction. The balance check is part of the update, so two
// concurrent debits can never overdraw the wallet.
func (l *Ledger) Debit(ctx context.Context, userID string, amount decimal.Decimal, p Purchase) (Transaction, error) {
	if !amount.IsPositive() {
		return Transaction{}, ErrInvalidAmount
	}
	if p.Type != TxAirtime && p.Type != TxData {
		return Transaction{}, fmt.Errorf("wallet: unknown purchase type %q", p.Type)
	}

	start := time.Now()
	tx, err := l.db.BeginTxx(ctx, nil)
	if err != nil {
		return Transaction{}, fmt.Errorf("wallet: begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx,
		tx.Rebind(`UPDATE users SET wallet_balance = ROUND(wallet_balance - ?, 2) WHERE id = ? AND wallet_balance >= ?`),
		amount, userID, amount,
	)
	if err != nil {
		return Transaction{}, fmt.Errorf("wallet: debit: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return Transaction{}, fmt.Errorf("wallet: debit: %w", err)
	}
	if n == 0 {
		var exists int
		err := tx.GetContext(ctx, &exists, tx.Rebind(`SELECT COUNT(*) FROM users WHERE id = ?`), userID)
		if err != nil {
			return Transaction{}, fmt.Errorf("wallet: debit lookup: %w", err)
		}
		if exists == 0 {
			return Transaction{}, ErrUserNotFound
		}
		logger.Ledger.Info("debit rejected",
			slog.String("event", "wallet.debit"),
			slog.String("status", "rejected"),
			slog.String("user_id", userID),
			slog.String("amount", amount.String()),
		)
		return Transaction{}, ErrInsufficientFunds
	}

	t := Transaction{
		ID:          uuid.NewString(),
		UserID:      userID,
		Type:        p.Type,
		Network:     string(p.Network),
		PhoneNumber: p.Recipient,
		Amount:      amount,
		Status:      StatusSuccess,
		CreatedAt:   l.now().UTC(),
	}
	_, err = tx.ExecContext(ctx,
		tx.Rebind(`INSERT INTO transactions (id, user_id, type, network, phone_number, amount, status, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`),
		t.ID, t.UserID, string(t.Type), t.Network, t.PhoneNumber, t.Amount, string(t.Status), t.CreatedAt,
	)
	if err != nil {
		return Transaction{}, fmt.Errorf("wallet: record transaction: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return Transaction{}, fmt.Errorf("wallet: commit: %w", err)
	}

	logger.Ledger.Info("debit committed",
		slog.String("event", "wallet.debit"),
		slog.String("status", "ok"),
		slog.String("user_id", userID),
		slog.String("tx_id", t.ID),
		slog.String("op", string(t.Type)),
		slog.String("network", t.Network),
		slog.String("recipient", t.PhoneNumber),
		slog.String("amount", amount.String()),
		slog.Duration("duration", logger.Took(start)),
	)
	return t, nil
}

// Credit adds amount to the user's balance. Credits are not logged as transactions.
func (l *Ledger) Credit(ctx context.Context, userID string, amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return ErrInvalidAmount
	}
	res, err := l.db.ExecContext(ctx,
		l.db.Rebind(`UPDATE users SET wallet_balance = ROUND(wallet_balance + ?, 2) WHERE id = ?`),
		amount, userID,
	)
	if err != nil {
		return fmt.Errorf("wallet: credit: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("wallet: credit: %w", err)
	}
	if n == 0 {
		return ErrUserNotFound
	}
	logger.Ledger.Info("credit committed",
		slog.String("event", "wallet.credit"),
		slog.String("status", "ok"),
		slog.String("user_id", userID),
		slog.String("amount", amount.String()),
	)
	return nil
}

// Balance returns the current balance of a user.
func (l *Ledger) Balance(ctx context.Context, userID string) (decimal.Decimal, error) {
	var bal decimal.Decimal
	err := l.db.GetContext(ctx, &bal, l.db.Rebind(`SELECT wallet_balance FROM users WHERE id = ?`), userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return decimal.Zero, ErrUserNotFound
		}
		return decimal.Zero, fmt.Errorf("wallet: balance: %w", err)
	}
	return bal, nil
}

// CountTransactions returns the number of ledger entries.
func (l *Ledger) CountTransactions(ctx context.Context) (int64, error) {
	var n int64
	if err := l.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM transactions`); err != nil {
		return 0, fmt.Errorf("wallet: count transactions: %w", err)
	}
	return n, nil
}

// SumSuccessful returns the total amount of SUCCESS transactions.
func (l *Ledger) SumSuccessful(ctx context.Context) (decimal.Decimal, error) {
	var sum decimal.Decimal
	err := l.db.GetContext(ctx, &sum,
		l.db.Rebind(`SELECT ROUND(COALESCE(SUM(amount), 0), 2) FROM transactions WHERE status = ?`),
		string(StatusSuccess),
	)
	if err != nil {
		return decimal.Zero, fmt.Errorf("wallet: sum transactions: %w", err)
	}
	return sum, nil
}

// TransactionsFor lists a user's ledger entries, newest first.
func (l *Ledger) TransactionsFor(ctx context.Context, userID string) ([]Transaction, error) {
	var txs []Transaction
	err := l.db.SelectContext(ctx, &txs,
		l.db.Rebind(`SELECT id, user_id, type, network, phone_number, amount, status, created_at
			FROM transactions WHERE user_id = ? ORDER BY created_at DESC, id`),
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("wallet: list transactions: %w", err)
	}
	return txs, nil
}
