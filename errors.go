package balance

import (
	"context"
	"errors"
	"fmt"

	"github.com/status-im/mifare-balance-go/types"
)

var (
	// ErrIOFailure marks transport failures. They end the whole run.
	ErrIOFailure    = errors.New("token i/o failure")
	ErrAuthRejected = types.ErrAuthRejected
	ErrKeyNotFound  = errors.New("no candidate key grants full trailer permission")

	ErrNoToken          = errors.New("no token present")
	ErrIncompleteFormat = errors.New("token only partially formatted")
	ErrUnsupportedTag   = errors.New("unsupported tag type")

	ErrNoApplication    = errors.New("no payment application")
	ErrEmptyApplication = errors.New("payment application is empty")
	ErrUnsupportedTLV   = errors.New("unsupported tlv")
	ErrTruncated        = types.ErrTruncated

	ErrUnknownAccount    = errors.New("no ledger account for token")
	ErrIdentityMismatch  = errors.New("token identity does not match the ledger")
	ErrBalanceMismatch   = errors.New("token balance does not match the ledger")
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrLimitExceeded     = errors.New("combined balance exceeds the token limit")
	ErrInvalidAmount     = errors.New("invalid amount")
	ErrCancelled         = errors.New("cancelled by operator")
)

// IOError is a transport failure during op.
type IOError struct {
	Op  string
	Err error
}

func ioFailure(op string, err error) error {
	var ioErr *IOError
	if errors.As(err, &ioErr) {
		return err
	}

	return &IOError{Op: op, Err: err}
}

func (e *IOError) Error() string {
	return fmt.Sprintf("%s: %s: %v", ErrIOFailure, e.Op, e.Err)
}

func (e *IOError) Unwrap() error {
	return e.Err
}

func (e *IOError) Is(target error) bool {
	return target == ErrIOFailure
}

// KeyNotFoundError reports the sector for which key recovery failed.
type KeyNotFoundError struct {
	Sector types.Sector
}

func (e *KeyNotFoundError) Error() string {
	return fmt.Sprintf("%s: sector %s", ErrKeyNotFound, e.Sector)
}

func (e *KeyNotFoundError) Is(target error) bool {
	return target == ErrKeyNotFound
}

// PartialCommitError reports a token and ledger left out of step by a failure
// past the point of no return. Ledger describes the state the ledger was left
// in; it is never reverted.
type PartialCommitError struct {
	Operation Operation
	TokenUID  string
	Identity  string
	Ledger    string
	Err       error
}

func (e *PartialCommitError) Error() string {
	return fmt.Sprintf("partial commit of %s on token %s (%s): ledger %s: %v", e.Operation, e.TokenUID, e.Identity, e.Ledger, e.Err)
}

func (e *PartialCommitError) Unwrap() error {
	return e.Err
}

// Disposition tells a batch what to do after an error.
type Disposition int

const (
	// Continue with the next token; the error was local to the operation.
	Continue Disposition = iota
	// SkipSector leaves the sector unusable but the token may still be processed.
	SkipSector
	// SkipToken abandons the current token.
	SkipToken
	// Fatal ends the run.
	Fatal
)

func (d Disposition) String() string {
	switch d {
	case Continue:
		return "continue"
	case SkipSector:
		return "skip-sector"
	case SkipToken:
		return "skip-token"
	case Fatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// Classify maps an error to its disposition.
func Classify(err error) Disposition {
	switch {
	case err == nil:
		return Continue
	case errors.Is(err, ErrIOFailure):
		return Fatal
	case errors.Is(err, ErrKeyNotFound) && !errors.Is(err, ErrIncompleteFormat):
		return SkipSector
	case errors.Is(err, ErrIncompleteFormat),
		errors.Is(err, ErrUnsupportedTag),
		errors.Is(err, ErrNoToken),
		errors.Is(err, ErrNoApplication),
		errors.Is(err, ErrEmptyApplication),
		errors.Is(err, ErrUnsupportedTLV),
		errors.Is(err, ErrTruncated),
		errors.Is(err, types.ErrInvalidIdentity),
		errors.Is(err, types.ErrMalformedBalance),
		errors.Is(err, context.DeadlineExceeded):
		return SkipToken
	default:
		return Continue
	}
}
