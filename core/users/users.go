// Package users stores wallet account holders.
package users

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Role distinguishes ordinary users from administrators.
type Role string

const (
	RoleUser  Role = "USER"
	RoleAdmin Role = "ADMIN"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAdmin
}

// User is a registered wallet holder.
type User struct {
	ID            string          `db:"id"`
	FullName      string          `db:"full_name"`
	Email         string          `db:"email"`
	PasswordHash  string          `db:"password_hash"`
	PhoneNumber   string          `db:"phone_number"`
	WalletBalance decimal.Decimal `db:"wallet_balance"`
	Role          Role            `db:"role"`
	CreatedAt     time.Time       `db:"created_at"`
}

// NormalizePhone strips everything but ASCII digits.
func NormalizePhone(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// NormalizeEmail trims and lower-cases an email address.
func NormalizeEmail(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
