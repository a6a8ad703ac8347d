package ledger

import (
	"context"
	"net/url"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestStore(t *testing.T) *Store {
	t.Helper()

	dsn := "file:" + url.PathEscape(t.Name()) + "?mode=memory&cache=shared"
	db, err := Open(context.Background(), DialectSQLite, dsn)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	require.NoError(t, RunMigrations(db))
	return NewStore(db)
}

func seed(t *testing.T, s *Store, identity, uid, balance string) {
	t.Helper()
	require.NoError(t, s.CreateAccount(context.Background(), &Account{
		Identity: identity,
		TokenUID: uid,
		Balance:  decimal.RequireFromString(balance),
	}))
}

func TestRunMigrationsIdempotent(t *testing.T) {
	s := setupTestStore(t)
	assert.NoError(t, RunMigrations(s.db))
}

func TestFindAccount(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	seed(t, s, "A1234567", "04a1b2c3", "12.50")

	a, err := s.FindAccount(ctx, "A1234567")
	require.NoError(t, err)
	assert.Equal(t, "04a1b2c3", a.TokenUID)
	assert.Equal(t, "12.50", a.Balance.StringFixed(2))

	a, err = s.FindAccountByToken(ctx, "04a1b2c3")
	require.NoError(t, err)
	assert.Equal(t, "A1234567", a.Identity)

	_, err = s.FindAccount(ctx, "B1234567")
	assert.ErrorIs(t, err, ErrAccountNotFound)

	_, err = s.FindAccountByToken(ctx, "ffffffff")
	assert.ErrorIs(t, err, ErrAccountNotFound)
}

func TestCreateAccount(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	seed(t, s, "A1234567", "", "0")

	err := s.CreateAccount(ctx, &Account{Identity: "A1234567"})
	assert.ErrorIs(t, err, ErrAccountExists)

	err = s.CreateAccount(ctx, &Account{Identity: "short"})
	assert.Error(t, err)

	err = s.CreateAccount(ctx, &Account{Identity: "C1234567", Balance: decimal.NewFromInt(-1)})
	assert.ErrorIs(t, err, ErrNegativeBalance)

	a, err := s.FindAccount(ctx, "A1234567")
	require.NoError(t, err)
	assert.Equal(t, "", a.TokenUID)
	assert.True(t, a.Balance.IsZero())
}

func TestCreateAccountNormalizesIdentity(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	a := &Account{Identity: " a1234567 ", TokenUID: "01", Balance: decimal.NewFromInt(3)}
	require.NoError(t, s.CreateAccount(ctx, a))
	assert.Equal(t, "A1234567", a.Identity)

	found, err := s.FindAccountByToken(ctx, "01")
	require.NoError(t, err)
	assert.Equal(t, "A1234567", found.Identity)

	err = s.CreateAccount(ctx, &Account{Identity: "A1234567"})
	assert.ErrorIs(t, err, ErrAccountExists)
}

func TestUpdateAndDeleteAccount(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	seed(t, s, "A1234567", "01", "10.00")

	require.NoError(t, s.UpdateBalance(ctx, "A1234567", decimal.RequireFromString("4")))
	a, err := s.FindAccount(ctx, "A1234567")
	require.NoError(t, err)
	assert.Equal(t, "4.00", a.Balance.StringFixed(2))

	assert.ErrorIs(t, s.UpdateBalance(ctx, "Z1234567", decimal.Zero), ErrAccountNotFound)
	assert.ErrorIs(t, s.UpdateBalance(ctx, "A1234567", decimal.NewFromInt(-1)), ErrNegativeBalance)

	require.NoError(t, s.DeleteAccount(ctx, "A1234567"))
	assert.ErrorIs(t, s.DeleteAccount(ctx, "A1234567"), ErrAccountNotFound)
}

func TestDebit(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	seed(t, s, "A1234567", "01", "10.00")

	a, err := s.Debit(ctx, "A1234567", "01", decimal.RequireFromString("10"), decimal.RequireFromString("3"))
	require.NoError(t, err)
	assert.Equal(t, "7.00", a.Balance.StringFixed(2))

	sales, err := s.Sales(ctx, "A1234567")
	require.NoError(t, err)
	require.Len(t, sales, 1)
	assert.Equal(t, "3.00", sales[0].Amount.StringFixed(2))
	assert.Equal(t, "01", sales[0].TokenUID)
	assert.Len(t, sales[0].ID, 36)
}

func TestDebitConflictLeavesLedgerUntouched(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	seed(t, s, "A1234567", "01", "10.00")

	_, err := s.Debit(ctx, "A1234567", "01", decimal.RequireFromString("9"), decimal.RequireFromString("3"))
	assert.ErrorIs(t, err, ErrConflict)

	_, err = s.Debit(ctx, "A1234567", "01", decimal.RequireFromString("10"), decimal.RequireFromString("11"))
	assert.ErrorIs(t, err, ErrNegativeBalance)

	a, err := s.FindAccount(ctx, "A1234567")
	require.NoError(t, err)
	assert.Equal(t, "10.00", a.Balance.StringFixed(2))

	sales, err := s.Sales(ctx, "A1234567")
	require.NoError(t, err)
	assert.Empty(t, sales)
}

func TestTransfer(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	seed(t, s, "A1234567", "01", "20.00")
	seed(t, s, "B1234567", "02", "30.00")

	sender, err := s.FindAccount(ctx, "A1234567")
	require.NoError(t, err)
	receiver, err := s.FindAccount(ctx, "B1234567")
	require.NoError(t, err)

	updated, err := s.Transfer(ctx, sender, receiver)
	require.NoError(t, err)
	assert.Equal(t, "50.00", updated.Balance.StringFixed(2))

	_, err = s.FindAccount(ctx, "A1234567")
	assert.ErrorIs(t, err, ErrAccountNotFound)
}

func TestTransferConflictRollsBack(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	seed(t, s, "A1234567", "01", "20.00")
	seed(t, s, "B1234567", "02", "30.00")

	sender, err := s.FindAccount(ctx, "A1234567")
	require.NoError(t, err)
	receiver, err := s.FindAccount(ctx, "B1234567")
	require.NoError(t, err)
	receiver.Balance = decimal.RequireFromString("31")

	_, err = s.Transfer(ctx, sender, receiver)
	assert.ErrorIs(t, err, ErrConflict)

	a, err := s.FindAccount(ctx, "A1234567")
	require.NoError(t, err)
	assert.Equal(t, "20.00", a.Balance.StringFixed(2))
}

func TestRebind(t *testing.T) {
	pg := &DB{dialect: DialectPostgres}
	assert.Equal(t, "UPDATE a SET b = $1 WHERE c = $2", pg.rebind("UPDATE a SET b = ? WHERE c = ?"))

	lite := &DB{dialect: DialectSQLite}
	assert.Equal(t, "SELECT ?", lite.rebind("SELECT ?"))
}

func TestParseDialect(t *testing.T) {
	d, err := ParseDialect("SQLite")
	require.NoError(t, err)
	assert.Equal(t, DialectSQLite, d)

	_, err = ParseDialect("mysql")
	assert.Error(t, err)
}
