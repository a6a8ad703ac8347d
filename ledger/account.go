// Package ledger is the durable, authoritative store of account balances.
package ledger

import (
	"errors"

	"github.com/shopspring/decimal"
)

var (
	ErrAccountNotFound = errors.New("account not found")
	ErrAccountExists   = errors.New("account already exists")
	// ErrConflict is returned when a guarded update finds a balance other than the one it was computed from.
	ErrConflict        = errors.New("balance changed concurrently")
	ErrNegativeBalance = errors.New("balance cannot be negative")
)

// Account is the ledger copy of a token holder's balance.
type Account struct {
	Identity string
	TokenUID string
	Balance  decimal.Decimal
}

// Sale is a debit recorded by a checkout.
type Sale struct {
	ID       string
	TokenUID string
	Identity string
	Amount   decimal.Decimal
}
