package types

import (
	"encoding/hex"
	"fmt"
)

// KeySize is the size in bytes of a MIFARE Classic sector key.
const KeySize = 6

type Key [KeySize]byte

var (
	// DefaultKey is the factory key of blank cards.
	DefaultKey = Key{0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF}
	// MADKeyA is the public key A of the application directory sectors.
	MADKeyA = Key{0xA0, 0xA1, 0xA2, 0xA3, 0xA4, 0xA5}
	// NFCForumKey is the public key A and the write key B of NFC Forum sectors.
	NFCForumKey = Key{0xD3, 0xF7, 0xD3, 0xF7, 0xD3, 0xF7}
	ZeroKey     = Key{0x00, 0x00, 0x00, 0x00, 0x00, 0x00}
)

// WellKnownKeys lists the published default keys tried during key recovery, in order.
var WellKnownKeys = []Key{
	DefaultKey,
	NFCForumKey,
	MADKeyA,
	{0xB0, 0xB1, 0xB2, 0xB3, 0xB4, 0xB5},
	{0x4D, 0x3A, 0x99, 0xC3, 0x51, 0xDD},
	{0x1A, 0x98, 0x2C, 0x7E, 0x45, 0x9A},
	{0xAA, 0xBB, 0xCC, 0xDD, 0xEE, 0xFF},
	ZeroKey,
}

// ParseKey parses a 12 characters hex string into a Key.
func ParseKey(s string) (Key, error) {
	var k Key
	if len(s) != KeySize*2 {
		return k, fmt.Errorf("key must be %d hex characters, got %d", KeySize*2, len(s))
	}

	if _, err := hex.Decode(k[:], []byte(s)); err != nil {
		return k, err
	}

	return k, nil
}

func (k Key) String() string {
	return hex.EncodeToString(k[:])
}

type KeyType uint8

const (
	KeyA KeyType = iota
	KeyB
)

func (t KeyType) String() string {
	switch t {
	case KeyA:
		return "A"
	case KeyB:
		return "B"
	default:
		return fmt.Sprintf("KeyType(%d)", uint8(t))
	}
}

// KeyPair is a key together with the slot (A or B) it authenticates as.
type KeyPair struct {
	Key  Key
	Type KeyType
}

func (p KeyPair) String() string {
	return fmt.Sprintf("%s/%s", p.Key, p.Type)
}
