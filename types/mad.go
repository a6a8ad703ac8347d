package types

import (
	"encoding/hex"
	"errors"
	"fmt"
)

var (
	ErrNoMAD          = errors.New("no application directory")
	ErrInvalidMAD     = errors.New("application directory CRC mismatch")
	ErrMADVersion     = errors.New("unsupported application directory version")
	ErrNoFreeSector   = errors.New("no free sector for the application")
	ErrSectorNotInMAD = errors.New("sector not addressable by the application directory")
)

// AID is an application identifier as stored in the directory: application code, function cluster.
type AID [2]byte

var (
	AIDFree           = AID{0x00, 0x00}
	AIDDefect         = AID{0x01, 0x00}
	AIDReserved       = AID{0x02, 0x00}
	AIDAdditionalInfo = AID{0x03, 0x00}
	AIDCardHolder     = AID{0x04, 0x00}
	AIDNotApplicable  = AID{0x05, 0x00}
	// NFCForumAID marks the sectors holding the NDEF application.
	NFCForumAID = AID{0x03, 0xE1}
)

func (a AID) String() string {
	return hex.EncodeToString(a[:])
}

const (
	MADSector  = Sector(0)
	MAD2Sector = Sector(16)

	madDA = 0x80
	madMA = 0x40

	// mad1Size covers sector 0 blocks 1 and 2, mad2Size sector 16 blocks 0 to 2.
	mad1Size = 2 * BlockSize
	mad2Size = 3 * BlockSize

	mad1Entries = 15
	mad2Entries = 23
)

// MAD is the MIFARE application directory, mapping each sector to an application.
type MAD struct {
	Version int
	Info    byte
	Info2   byte
	entries []AID
}

// NewMAD returns an empty directory sized for the tag: version 1 for 1k, 2 for 4k.
func NewMAD(t TagType) (*MAD, error) {
	switch t {
	case TagClassic1K:
		return &MAD{Version: 1, entries: make([]AID, 1+mad1Entries)}, nil
	case TagClassic4K:
		return &MAD{Version: 2, entries: make([]AID, 1+mad1Entries+1+mad2Entries)}, nil
	default:
		return nil, fmt.Errorf("no application directory for %s", t)
	}
}

// MADCRC computes the directory CRC-8 (polynomial 0x1D, preset 0xC7).
func MADCRC(data []byte) byte {
	crc := byte(0xC7)
	for _, b := range data {
		crc ^= b
		for i := 0; i < 8; i++ {
			if crc&0x80 != 0 {
				crc = crc<<1 ^ 0x1D
			} else {
				crc <<= 1
			}
		}
	}

	return crc
}

// MADVersion extracts the directory version from the general purpose byte of sector 0.
// It returns ErrNoMAD when the DA bit is not set.
func MADVersion(gpb byte) (int, error) {
	if gpb&madDA == 0 {
		return 0, ErrNoMAD
	}

	switch v := int(gpb & 0x03); v {
	case 1, 2:
		return v, nil
	default:
		return 0, ErrMADVersion
	}
}

// ParseMAD decodes the directory from sector 0 blocks 1-2 and, for version 2, sector 16 blocks 0-2.
func ParseMAD(gpb byte, sector0 []byte, sector16 []byte) (*MAD, error) {
	version, err := MADVersion(gpb)
	if err != nil {
		return nil, err
	}

	if len(sector0) != mad1Size {
		return nil, fmt.Errorf("directory sector 0 must be %d bytes, got %d", mad1Size, len(sector0))
	}

	if MADCRC(sector0[1:]) != sector0[0] {
		return nil, ErrInvalidMAD
	}

	m := &MAD{
		Version: version,
		Info:    sector0[1],
		entries: make([]AID, 1, 1+mad1Entries+1+mad2Entries),
	}
	m.entries = append(m.entries, parseAIDs(sector0[2:])...)

	if version == 1 {
		return m, nil
	}

	if len(sector16) != mad2Size {
		return nil, fmt.Errorf("directory sector 16 must be %d bytes, got %d", mad2Size, len(sector16))
	}

	if MADCRC(sector16[1:]) != sector16[0] {
		return nil, ErrInvalidMAD
	}

	m.Info2 = sector16[1]
	m.entries = append(m.entries, AID{})
	m.entries = append(m.entries, parseAIDs(sector16[2:])...)

	return m, nil
}

func parseAIDs(data []byte) []AID {
	aids := make([]AID, 0, len(data)/2)
	for i := 0; i+1 < len(data); i += 2 {
		aids = append(aids, AID{data[i], data[i+1]})
	}

	return aids
}

// GPB returns the general purpose byte of the directory sector trailers.
func (m *MAD) GPB() byte {
	return madDA | madMA | byte(m.Version)
}

// SectorCount returns the number of sectors covered by the directory, directory sectors included.
func (m *MAD) SectorCount() int {
	return len(m.entries)
}

// Application returns the AID allocated to sector s.
func (m *MAD) Application(s Sector) (AID, error) {
	if !m.addressable(s) {
		return AID{}, ErrSectorNotInMAD
	}

	return m.entries[s], nil
}

// SetApplication allocates sector s to aid.
func (m *MAD) SetApplication(s Sector, aid AID) error {
	if !m.addressable(s) {
		return ErrSectorNotInMAD
	}

	m.entries[s] = aid

	return nil
}

// ApplicationSectors returns the sectors allocated to aid, in ascending order.
func (m *MAD) ApplicationSectors(aid AID) []Sector {
	var sectors []Sector
	for i, a := range m.entries {
		s := Sector(i)
		if m.addressable(s) && a == aid {
			sectors = append(sectors, s)
		}
	}

	return sectors
}

// Allocate assigns the first free sectors to aid until size data bytes fit.
func (m *MAD) Allocate(aid AID, size int) ([]Sector, error) {
	var sectors []Sector
	capacity := 0
	for i, a := range m.entries {
		s := Sector(i)
		if capacity >= size {
			break
		}

		if !m.addressable(s) || a != AIDFree {
			continue
		}

		sectors = append(sectors, s)
		capacity += (SectorBlockCount(s) - 1) * BlockSize
	}

	if capacity < size {
		return nil, ErrNoFreeSector
	}

	for _, s := range sectors {
		m.entries[s] = aid
	}

	return sectors, nil
}

// Sector0 serializes blocks 1 and 2 of sector 0, CRC included.
func (m *MAD) Sector0() []byte {
	data := make([]byte, 0, mad1Size)
	data = append(data, 0, m.Info)
	for s := Sector(1); s <= mad1Entries; s++ {
		data = append(data, m.entries[s][:]...)
	}
	data[0] = MADCRC(data[1:])

	return data
}

// Sector16 serializes blocks 0 to 2 of sector 16, CRC included. It returns nil for version 1.
func (m *MAD) Sector16() []byte {
	if m.Version != 2 {
		return nil
	}

	data := make([]byte, 0, mad2Size)
	data = append(data, 0, m.Info2)
	for s := MAD2Sector + 1; int(s) < len(m.entries); s++ {
		data = append(data, m.entries[s][:]...)
	}
	data[0] = MADCRC(data[1:])

	return data
}

// DirectorySectors returns the sectors holding the directory itself.
func (m *MAD) DirectorySectors() []Sector {
	if m.Version == 2 {
		return []Sector{MADSector, MAD2Sector}
	}

	return []Sector{MADSector}
}

func (m *MAD) addressable(s Sector) bool {
	return s != MADSector && s != MAD2Sector && int(s) < len(m.entries)
}
