// Package config loads the configuration of the operator tool from environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/status-im/mifare-balance-go/ledger"
)

const prefix = "MIFARE_BALANCE_"

// Config holds the configuration loaded from environment variables.
type Config struct {
	DBDriver     ledger.Dialect
	DBDSN        string
	Reader       string
	TokenTimeout time.Duration
	LogLevel     string
	MetricsFile  string
	FastFormat   bool
}

// Load reads the configuration and validates it.
// Optional variables with defaults: MIFARE_BALANCE_DB_DRIVER (sqlite),
// MIFARE_BALANCE_DB_DSN (mifare-balance.db), MIFARE_BALANCE_READER (any reader),
// MIFARE_BALANCE_TOKEN_TIMEOUT (30s), MIFARE_BALANCE_LOG_LEVEL (info),
// MIFARE_BALANCE_METRICS_FILE (none), MIFARE_BALANCE_FAST_FORMAT (false).
func Load() (*Config, error) {
	cfg := &Config{
		DBDriver:     ledger.DialectSQLite,
		DBDSN:        "mifare-balance.db",
		TokenTimeout: 30 * time.Second,
		LogLevel:     "info",
	}

	if v, ok := lookup("DB_DRIVER"); ok {
		driver, err := ledger.ParseDialect(v)
		if err != nil {
			return nil, fmt.Errorf("%sDB_DRIVER: %w", prefix, err)
		}
		cfg.DBDriver = driver
	}

	if v, ok := lookup("DB_DSN"); ok {
		if v == "" {
			return nil, fmt.Errorf("%sDB_DSN must not be empty", prefix)
		}
		cfg.DBDSN = v
	}

	if v, ok := lookup("READER"); ok {
		cfg.Reader = v
	}

	if v, ok := lookup("TOKEN_TIMEOUT"); ok {
		timeout, err := time.ParseDuration(v)
		if err != nil {
			return nil, fmt.Errorf("%sTOKEN_TIMEOUT has invalid duration %q: %w", prefix, v, err)
		}
		if timeout < 0 {
			return nil, fmt.Errorf("%sTOKEN_TIMEOUT must not be negative, got %s", prefix, timeout)
		}
		cfg.TokenTimeout = timeout
	}

	if v, ok := lookup("LOG_LEVEL"); ok && v != "" {
		cfg.LogLevel = v
	}

	if v, ok := lookup("METRICS_FILE"); ok {
		cfg.MetricsFile = v
	}

	if v, ok := lookup("FAST_FORMAT"); ok {
		fast, err := strconv.ParseBool(v)
		if err != nil {
			return nil, fmt.Errorf("%sFAST_FORMAT has invalid boolean %q: %w", prefix, v, err)
		}
		cfg.FastFormat = fast
	}

	return cfg, nil
}

func lookup(name string) (string, bool) {
	return os.LookupEnv(prefix + name)
}
