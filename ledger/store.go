package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/log"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/status-im/mifare-balance-go/types"
)

var logger = log.New("package", "mifare-balance/ledger")

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// Store implements the account and sale operations on a DB.
type Store struct {
	db *DB
}

func NewStore(db *DB) *Store {
	return &Store{db: db}
}

// FindAccount returns the account registered for an identity.
func (s *Store) FindAccount(ctx context.Context, identity string) (*Account, error) {
	return s.findAccount(ctx, s.db, "identity", identity)
}

// FindAccountByToken returns the account bound to a token UID.
func (s *Store) FindAccountByToken(ctx context.Context, tokenUID string) (*Account, error) {
	return s.findAccount(ctx, s.db, "token_uid", tokenUID)
}

func (s *Store) findAccount(ctx context.Context, q querier, column, value string) (*Account, error) {
	query := s.db.rebind("SELECT identity, COALESCE(token_uid, ''), balance FROM accounts WHERE " + column + " = ?")

	var (
		a       Account
		balance decimal.Decimal
	)
	err := q.QueryRowContext(ctx, query, value).Scan(&a.Identity, &a.TokenUID, &balance)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s %s", ErrAccountNotFound, column, value)
	}
	if err != nil {
		return nil, fmt.Errorf("find account by %s: %w", column, err)
	}

	a.Balance = balance
	return &a, nil
}

// CreateAccount registers a new account. The identity is normalized to its
// on-card form and stored back into a.
func (s *Store) CreateAccount(ctx context.Context, a *Account) error {
	identity, err := types.NormalizeIdentity(a.Identity)
	if err != nil {
		return err
	}
	a.Identity = identity
	if a.Balance.IsNegative() {
		return ErrNegativeBalance
	}

	if _, err := s.findAccount(ctx, s.db, "identity", a.Identity); err == nil {
		return fmt.Errorf("%w: %s", ErrAccountExists, a.Identity)
	} else if !errors.Is(err, ErrAccountNotFound) {
		return err
	}

	var tokenUID interface{}
	if a.TokenUID != "" {
		tokenUID = a.TokenUID
	}

	_, err = s.db.ExecContext(ctx,
		s.db.rebind("INSERT INTO accounts (identity, token_uid, balance) VALUES (?, ?, ?)"),
		a.Identity, tokenUID, a.Balance.StringFixed(2))
	if err != nil {
		return fmt.Errorf("create account %s: %w", a.Identity, err)
	}

	return nil
}

// UpdateBalance overwrites the balance of an account.
func (s *Store) UpdateBalance(ctx context.Context, identity string, balance decimal.Decimal) error {
	return s.updateBalance(ctx, s.db, identity, balance)
}

func (s *Store) updateBalance(ctx context.Context, q querier, identity string, balance decimal.Decimal) error {
	if balance.IsNegative() {
		return ErrNegativeBalance
	}

	res, err := q.ExecContext(ctx,
		s.db.rebind("UPDATE accounts SET balance = ?, updated_at = CURRENT_TIMESTAMP WHERE identity = ?"),
		balance.StringFixed(2), identity)
	if err != nil {
		return fmt.Errorf("update balance of %s: %w", identity, err)
	}

	return expectRow(res, fmt.Errorf("%w: identity %s", ErrAccountNotFound, identity))
}

// DeleteAccount removes an account.
func (s *Store) DeleteAccount(ctx context.Context, identity string) error {
	res, err := s.db.ExecContext(ctx, s.db.rebind("DELETE FROM accounts WHERE identity = ?"), identity)
	if err != nil {
		return fmt.Errorf("delete account %s: %w", identity, err)
	}

	return expectRow(res, fmt.Errorf("%w: identity %s", ErrAccountNotFound, identity))
}

// RecordSale appends a sale and returns its id.
func (s *Store) RecordSale(ctx context.Context, tokenUID, identity string, amount decimal.Decimal) (string, error) {
	return s.recordSale(ctx, s.db, tokenUID, identity, amount)
}

func (s *Store) recordSale(ctx context.Context, q querier, tokenUID, identity string, amount decimal.Decimal) (string, error) {
	id := uuid.New().String()
	_, err := q.ExecContext(ctx,
		s.db.rebind("INSERT INTO sales (id, token_uid, identity, amount) VALUES (?, ?, ?, ?)"),
		id, tokenUID, identity, amount.StringFixed(2))
	if err != nil {
		return "", fmt.Errorf("record sale for %s: %w", identity, err)
	}

	return id, nil
}

// Sales lists the sales recorded for an identity, oldest first.
func (s *Store) Sales(ctx context.Context, identity string) ([]Sale, error) {
	rows, err := s.db.QueryContext(ctx,
		s.db.rebind("SELECT id, token_uid, identity, amount FROM sales WHERE identity = ? ORDER BY created_at, id"),
		identity)
	if err != nil {
		return nil, fmt.Errorf("list sales of %s: %w", identity, err)
	}
	defer rows.Close()

	var sales []Sale
	for rows.Next() {
		var sale Sale
		if err := rows.Scan(&sale.ID, &sale.TokenUID, &sale.Identity, &sale.Amount); err != nil {
			return nil, fmt.Errorf("scan sale: %w", err)
		}
		sales = append(sales, sale)
	}

	return sales, rows.Err()
}

// Debit subtracts price from the account of identity and records the sale in
// one transaction. The update only applies if the stored balance still equals
// balance.
func (s *Store) Debit(ctx context.Context, identity, tokenUID string, balance, price decimal.Decimal) (*Account, error) {
	next := balance.Sub(price)
	if next.IsNegative() {
		return nil, ErrNegativeBalance
	}

	var updated *Account
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if err := s.compareAndSet(ctx, tx, identity, balance, next); err != nil {
			return err
		}

		saleID, err := s.recordSale(ctx, tx, tokenUID, identity, price)
		if err != nil {
			return err
		}

		updated, err = s.findAccount(ctx, tx, "identity", identity)
		if err != nil {
			return err
		}

		logger.Debug("debit committed", "identity", identity, "price", price.StringFixed(2), "balance", next.StringFixed(2), "sale", saleID)
		return nil
	})
	if err != nil {
		return nil, err
	}

	return updated, nil
}

// Transfer deletes sender and credits its whole balance to receiver in one
// transaction. Both balances must still equal the values carried by the
// arguments.
func (s *Store) Transfer(ctx context.Context, sender, receiver *Account) (*Account, error) {
	combined := sender.Balance.Add(receiver.Balance)

	var updated *Account
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			s.db.rebind("DELETE FROM accounts WHERE identity = ? AND balance = ?"),
			sender.Identity, sender.Balance.StringFixed(2))
		if err != nil {
			return fmt.Errorf("delete sender %s: %w", sender.Identity, err)
		}
		if err := expectRow(res, fmt.Errorf("%w: sender %s", ErrConflict, sender.Identity)); err != nil {
			return err
		}

		if err := s.compareAndSet(ctx, tx, receiver.Identity, receiver.Balance, combined); err != nil {
			return err
		}

		updated, err = s.findAccount(ctx, tx, "identity", receiver.Identity)
		return err
	})
	if err != nil {
		return nil, err
	}

	logger.Debug("transfer committed", "sender", sender.Identity, "receiver", receiver.Identity, "balance", combined.StringFixed(2))
	return updated, nil
}

func (s *Store) compareAndSet(ctx context.Context, q querier, identity string, old, next decimal.Decimal) error {
	res, err := q.ExecContext(ctx,
		s.db.rebind("UPDATE accounts SET balance = ?, updated_at = CURRENT_TIMESTAMP WHERE identity = ? AND balance = ?"),
		next.StringFixed(2), identity, old.StringFixed(2))
	if err != nil {
		return fmt.Errorf("update balance of %s: %w", identity, err)
	}

	return expectRow(res, fmt.Errorf("%w: %s", ErrConflict, identity))
}

func (s *Store) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin ledger transaction: %w", err)
	}

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			logger.Error("rollback failed", "error", rbErr)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit ledger transaction: %w", err)
	}

	return nil
}

func expectRow(res sql.Result, notFound error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return notFound
	}

	return nil
}
