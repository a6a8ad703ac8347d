package balance

import (
	"errors"
	"fmt"

	"github.com/status-im/mifare-balance-go/types"
)

// ProgressFunc is called after each sector of a format, done counting from 1.
type ProgressFunc func(sector types.Sector, done, total int)

// FormatOptions tunes FormatToken.
type FormatOptions struct {
	// Fast formats the directory sectors only, leaving the application data unreachable.
	Fast     bool
	Progress ProgressFunc
	OnKey    KeyObserver
}

// FormatSector zeroes the data blocks of sector and restores the transport
// trailer, using kp recovered for the sector.
// The manufacturer block is never written.
func FormatSector(t Token, sector types.Sector, kp types.KeyPair) error {
	trailer := types.SectorLastBlock(sector)
	if err := authenticate(t, trailer, kp); err != nil {
		if isAuthRejected(err) {
			return &KeyNotFoundError{Sector: sector}
		}
		return err
	}

	zero := make([]byte, types.BlockSize)
	for _, b := range types.SectorDataBlocks(sector) {
		if types.IsManufacturerBlock(b) {
			continue
		}

		if err := writeBlock(t, b, zero); err != nil {
			return err
		}
	}

	return writeBlock(t, trailer, types.DefaultTrailer().Serialize())
}

// FormatToken restores every sector of the token to the transport
// configuration. A sector without a usable key stops the format with
// ErrIncompleteFormat; sectors already formatted stay formatted.
func FormatToken(t Token, opts FormatOptions) error {
	sectors, err := formatSectors(t.Type(), opts.Fast)
	if err != nil {
		return err
	}

	defer disconnect(t)

	for i, s := range sectors {
		kp, err := RecoverKey(t, s)
		if opts.OnKey != nil {
			opts.OnKey(s, kp, err)
		}
		if err == nil {
			err = FormatSector(t, s, kp)
		}

		if errors.Is(err, ErrKeyNotFound) {
			return fmt.Errorf("%w: %d of %d sectors: %w", ErrIncompleteFormat, i, len(sectors), err)
		}
		if err != nil {
			return err
		}

		logger.Debug("sector formatted", "uid", t.UID(), "sector", s)
		if opts.Progress != nil {
			opts.Progress(s, i+1, len(sectors))
		}
	}

	return nil
}

func formatSectors(tt types.TagType, fast bool) ([]types.Sector, error) {
	n := tt.SectorCount()
	if n == 0 {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedTag, tt)
	}

	if fast {
		if tt == types.TagClassic4K {
			return []types.Sector{types.MADSector, types.MAD2Sector}, nil
		}
		return []types.Sector{types.MADSector}, nil
	}

	sectors := make([]types.Sector, n)
	for i := range sectors {
		sectors[i] = types.Sector(i)
	}

	return sectors, nil
}
