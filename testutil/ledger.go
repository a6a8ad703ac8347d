package testutil

import (
	"context"
	"net/url"
	"os"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/status-im/mifare-balance-go/ledger"
	"github.com/stretchr/testify/require"
)

// NewLedger returns a migrated in-memory sqlite ledger private to the test.
func NewLedger(t *testing.T) *ledger.Store {
	t.Helper()

	dsn := "file:" + url.PathEscape(t.Name()) + "?mode=memory&cache=shared"
	return openLedger(t, ledger.DialectSQLite, dsn)
}

// TestPostgresDSN returns the DSN of the postgres ledger used by integration
// tests, empty when none is configured.
func TestPostgresDSN() string {
	return os.Getenv("TEST_POSTGRES_DSN")
}

// NewPostgresLedger returns a migrated postgres ledger, skipping the test when
// TEST_POSTGRES_DSN is not set. Tables are emptied on cleanup.
func NewPostgresLedger(t *testing.T) *ledger.Store {
	t.Helper()

	dsn := TestPostgresDSN()
	if dsn == "" {
		t.Skip("TEST_POSTGRES_DSN not set")
	}

	return openLedger(t, ledger.DialectPostgres, dsn)
}

func openLedger(t *testing.T, dialect ledger.Dialect, dsn string) *ledger.Store {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	db, err := ledger.Open(ctx, dialect, dsn)
	if err != nil && dialect == ledger.DialectPostgres {
		t.Skipf("test postgres not available: %v", err)
	}
	require.NoError(t, err)

	require.NoError(t, ledger.RunMigrations(db))
	t.Cleanup(func() {
		if dialect == ledger.DialectPostgres {
			_, _ = db.ExecContext(context.Background(), "TRUNCATE sales, accounts")
		}
		db.Close()
	})

	return ledger.NewStore(db)
}

// SeedAccount registers an account bound to tokenUID.
func SeedAccount(t *testing.T, s *ledger.Store, identity, tokenUID, balance string) {
	t.Helper()

	require.NoError(t, s.CreateAccount(context.Background(), &ledger.Account{
		Identity: identity,
		TokenUID: tokenUID,
		Balance:  decimal.RequireFromString(balance),
	}))
}

// AccountBalance returns the ledger balance of identity formatted with two decimals.
func AccountBalance(t *testing.T, s *ledger.Store, identity string) string {
	t.Helper()

	a, err := s.FindAccount(context.Background(), identity)
	require.NoError(t, err)

	return a.Balance.StringFixed(2)
}
