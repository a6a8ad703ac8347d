package balance

import (
	"errors"

	"github.com/ethereum/go-ethereum/log"
)

// State is a step of the per-token transaction.
type State int

const (
	StateIdle State = iota
	StateTokenPresent
	StateAuthenticated
	StateDirectoryLoaded
	StateRecordDecoded
	StateValidated
	StateLedgerCommitted
	StateTokenCommitted
	StateDone
	StateAborted
)

var stateNames = [...]string{
	StateIdle:            "idle",
	StateTokenPresent:    "token-present",
	StateAuthenticated:   "authenticated",
	StateDirectoryLoaded: "directory-loaded",
	StateRecordDecoded:   "record-decoded",
	StateValidated:       "validated",
	StateLedgerCommitted: "ledger-committed",
	StateTokenCommitted:  "token-committed",
	StateDone:            "done",
	StateAborted:         "aborted",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "unknown"
	}

	return stateNames[s]
}

// Terminal reports whether no transition leaves s.
func (s State) Terminal() bool {
	return s == StateDone || s == StateAborted
}

// advance moves the result forward to next. Steps may be skipped but never
// revisited, and terminal states are absorbing.
func (r *Result) advance(next State) {
	if r.State.Terminal() || next <= r.State {
		return
	}

	r.State = next
	r.Trace = append(r.Trace, next)
}

// abort moves the result to StateAborted and returns err.
func (r *Result) abort(log log.Logger, err error) error {
	if r.State.Terminal() {
		return err
	}

	r.AbortedAt = r.State
	r.State = StateAborted
	r.Trace = append(r.Trace, StateAborted)
	r.Outcome = OutcomeAborted
	r.Err = err

	var partial *PartialCommitError
	switch {
	case errors.As(err, &partial):
		log.Error("token and ledger diverged", "state", r.AbortedAt, "ledger", partial.Ledger, "error", err)
	case Classify(err) == Fatal:
		log.Error("operation failed", "state", r.AbortedAt, "error", err)
	default:
		log.Warn("operation aborted", "state", r.AbortedAt, "error", err)
	}

	return err
}
