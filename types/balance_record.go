package types

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

const (
	IdentityLength      = 8
	BalanceLength       = 5
	BalanceRecordLength = IdentityLength + BalanceLength
)

var (
	ErrInvalidIdentity  = errors.New("identity must be 8 printable ASCII characters")
	ErrMalformedBalance = errors.New("balance is not in DD.DD format")
	ErrBalanceWidth     = errors.New("balance does not fit in 5 characters")
)

// MaxBalance is the largest balance a record can carry.
var MaxBalance = decimal.New(9999, -2)

// BalanceRecord is the identity and balance stored in the token application.
type BalanceRecord struct {
	Identity string
	Balance  decimal.Decimal
}

// ParseBalanceRecord decodes an 8 bytes identity followed by a 5 bytes DD.DD balance.
// Bytes after the first 13 are ignored.
func ParseBalanceRecord(payload []byte) (*BalanceRecord, error) {
	if len(payload) < BalanceRecordLength {
		return nil, fmt.Errorf("%w: balance record needs %d bytes, got %d", ErrTruncated, BalanceRecordLength, len(payload))
	}

	identity := string(payload[:IdentityLength])
	if err := ValidateIdentity(identity); err != nil {
		return nil, err
	}

	balance, err := ParseBalance(string(payload[IdentityLength:BalanceRecordLength]))
	if err != nil {
		return nil, err
	}

	return &BalanceRecord{
		Identity: identity,
		Balance:  balance,
	}, nil
}

// Serialize encodes the record into its 13 bytes on-card form.
func (r *BalanceRecord) Serialize() ([]byte, error) {
	if err := ValidateIdentity(r.Identity); err != nil {
		return nil, err
	}

	balance, err := FormatBalance(r.Balance)
	if err != nil {
		return nil, err
	}

	data := make([]byte, 0, BalanceRecordLength)
	data = append(data, r.Identity...)
	data = append(data, balance...)

	return data, nil
}

func (r *BalanceRecord) String() string {
	balance, err := FormatBalance(r.Balance)
	if err != nil {
		balance = r.Balance.String()
	}

	return r.Identity + " " + balance
}

// ParseBalance parses a DD.DD balance string.
func ParseBalance(s string) (decimal.Decimal, error) {
	if !isBalanceFormat(s) {
		return decimal.Decimal{}, fmt.Errorf("%w: %q", ErrMalformedBalance, s)
	}

	return decimal.NewFromString(s)
}

// FormatBalance formats d with two decimals, left padding a single leading digit with a zero.
// Values needing any other width are rejected.
func FormatBalance(d decimal.Decimal) (string, error) {
	s := d.StringFixed(2)
	switch len(s) {
	case BalanceLength - 1:
		s = "0" + s
	case BalanceLength:
	default:
		return "", fmt.Errorf("%w: %s", ErrBalanceWidth, s)
	}

	if !isBalanceFormat(s) {
		return "", fmt.Errorf("%w: %s", ErrMalformedBalance, s)
	}

	return s, nil
}

func isBalanceFormat(s string) bool {
	if len(s) != BalanceLength {
		return false
	}

	for i := 0; i < len(s); i++ {
		if i == 2 {
			if s[i] != '.' {
				return false
			}
			continue
		}

		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}

	return true
}
