package balance

import (
	"errors"

	"github.com/status-im/mifare-balance-go/types"
)

// KeyObserver is notified of the outcome of each key recovery.
type KeyObserver func(sector types.Sector, kp types.KeyPair, err error)

// Candidates returns the candidate keys in the order they are tried: each
// well known key as key A, then as key B.
func Candidates() []types.KeyPair {
	candidates := make([]types.KeyPair, 0, 2*len(types.WellKnownKeys))
	for _, k := range types.WellKnownKeys {
		candidates = append(candidates,
			types.KeyPair{Key: k, Type: types.KeyA},
			types.KeyPair{Key: k, Type: types.KeyB},
		)
	}

	return candidates
}

// RecoverKey finds the first candidate key that authenticates the sector and
// may rewrite its whole trailer. On success the token stays connected and
// authenticated to the sector.
func RecoverKey(t Token, sector types.Sector) (types.KeyPair, error) {
	return RecoverKeyFrom(t, sector, Candidates())
}

// RecoverKeyFrom is RecoverKey over an explicit candidate list.
func RecoverKeyFrom(t Token, sector types.Sector, candidates []types.KeyPair) (types.KeyPair, error) {
	trailer := types.SectorLastBlock(sector)

	disconnect(t)

	for _, kp := range candidates {
		if err := t.Connect(); err != nil {
			return types.KeyPair{}, ioFailure("connect", err)
		}

		err := t.Authenticate(trailer, kp.Key, kp.Type)
		if isAuthRejected(err) {
			logger.Debug("candidate rejected", "uid", t.UID(), "sector", sector, "key", kp)
			disconnect(t)
			continue
		}
		if err != nil {
			return types.KeyPair{}, ioFailure("authenticate", err)
		}

		data, err := readBlock(t, trailer)
		if err != nil {
			return types.KeyPair{}, err
		}

		tr, err := types.ParseTrailer(data)
		if err != nil {
			logger.Debug("unreadable trailer", "uid", t.UID(), "sector", sector, "key", kp, "error", err)
			disconnect(t)
			continue
		}

		if tr.HasFullPermission(kp.Type) {
			logger.Debug("sector key recovered", "uid", t.UID(), "sector", sector, "key", kp)
			return kp, nil
		}

		logger.Debug("candidate lacks trailer permission", "uid", t.UID(), "sector", sector, "key", kp)
		disconnect(t)
	}

	return types.KeyPair{}, &KeyNotFoundError{Sector: sector}
}

func disconnect(t Token) {
	if err := t.Disconnect(); err != nil {
		logger.Debug("disconnect failed", "uid", t.UID(), "error", err)
	}
}

func isAuthRejected(err error) bool {
	return err != nil && errors.Is(err, ErrAuthRejected)
}
