package types

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidAccessBits = errors.New("access bits and their inverted copy differ")
	ErrInvalidTrailer    = errors.New("trailer block must be 16 bytes")
)

// AccessCondition packs the C1 C2 C3 bits of a block group as C1<<2 | C2<<1 | C3.
type AccessCondition uint8

const (
	dataGroups   = 3
	trailerGroup = 3
)

// AccessBits holds the access conditions of the three data block groups and of the trailer.
type AccessBits [4]AccessCondition

var (
	// TransportAccessBits is the configuration of blank cards: FF 07 80.
	TransportAccessBits = AccessBits{0, 0, 0, 1}
	// MADAccessBits lets key A read and key B write the directory: 78 77 88.
	MADAccessBits = AccessBits{4, 4, 4, 3}
	// NFCForumAccessBits lets both keys read/write data and key B manage the trailer: 7F 07 88.
	NFCForumAccessBits = AccessBits{0, 0, 0, 3}
)

const (
	TransportGPB = 0x69
	NFCForumGPB  = 0x40
)

// ParseAccessBits decodes the 3 access bytes of a trailer block.
func ParseAccessBits(raw []byte) (AccessBits, error) {
	var a AccessBits
	if len(raw) < 3 {
		return a, ErrInvalidAccessBits
	}

	c1 := raw[1] >> 4
	c2 := raw[2] & 0x0F
	c3 := raw[2] >> 4

	if ^raw[0]&0x0F != c1 || (^raw[0]>>4)&0x0F != c2 || ^raw[1]&0x0F != c3 {
		return a, ErrInvalidAccessBits
	}

	for i := range a {
		a[i] = AccessCondition((c1>>i)&1<<2 | (c2>>i)&1<<1 | (c3>>i)&1)
	}

	return a, nil
}

// Bytes encodes the access conditions into the 3 access bytes of a trailer block.
func (a AccessBits) Bytes() [3]byte {
	var c1, c2, c3 byte
	for i, c := range a {
		c1 |= byte(c>>2&1) << i
		c2 |= byte(c>>1&1) << i
		c3 |= byte(c&1) << i
	}

	return [3]byte{
		(^c2&0x0F)<<4 | ^c1&0x0F,
		c1<<4 | ^c3&0x0F,
		c3<<4 | c2,
	}
}

const (
	byA  = 1 << KeyA
	byB  = 1 << KeyB
	byAB = byA | byB
)

type TrailerOperation int

const (
	ReadKeyA TrailerOperation = iota
	WriteKeyA
	ReadAccessBits
	WriteAccessBits
	ReadKeyB
	WriteKeyB
)

// trailerPermissions is indexed by access condition, then by TrailerOperation.
var trailerPermissions = [8][6]uint8{
	{0, byA, byA, 0, byA, byA},
	{0, byA, byA, byA, byA, byA},
	{0, 0, byA, 0, byA, 0},
	{0, byB, byAB, byB, 0, byB},
	{0, byB, byAB, 0, 0, byB},
	{0, 0, byAB, byB, 0, 0},
	{0, 0, byAB, 0, 0, 0},
	{0, 0, byAB, 0, 0, 0},
}

type DataOperation int

const (
	ReadData DataOperation = iota
	WriteData
	IncrementData
	DecrementData
)

// dataPermissions is indexed by access condition, then by DataOperation.
var dataPermissions = [8][4]uint8{
	{byAB, byAB, byAB, byAB},
	{byAB, 0, 0, byAB},
	{byAB, 0, 0, 0},
	{byB, byB, 0, 0},
	{byAB, byB, 0, 0},
	{byB, 0, 0, 0},
	{byAB, byB, byB, byAB},
	{0, 0, 0, 0},
}

// TrailerPermits reports whether a key of type kt may perform op on the trailer block.
func (a AccessBits) TrailerPermits(op TrailerOperation, kt KeyType) bool {
	return trailerPermissions[a[trailerGroup]&7][op]&(1<<kt) != 0
}

// DataPermits reports whether a key of type kt may perform op on block b.
func (a AccessBits) DataPermits(b Block, op DataOperation, kt KeyType) bool {
	return dataPermissions[a[dataGroup(b)]&7][op]&(1<<kt) != 0
}

// dataGroup maps a block to its access group. Large sectors group data blocks by 5.
func dataGroup(b Block) int {
	s := BlockSector(b)
	offset := int(b) - int(SectorFirstBlock(s))
	if SectorBlockCount(s) == smallSectorSize {
		return offset
	}

	g := offset / 5
	if g >= dataGroups {
		return trailerGroup
	}

	return g
}

// Trailer is the last block of a sector, holding the sector keys and access conditions.
type Trailer struct {
	KeyA   Key
	Access AccessBits
	GPB    byte
	KeyB   Key
}

// ParseTrailer decodes a raw trailer block.
// Cards return key A (and key B when it is not readable) as zeros.
func ParseTrailer(data []byte) (*Trailer, error) {
	if len(data) != BlockSize {
		return nil, ErrInvalidTrailer
	}

	access, err := ParseAccessBits(data[6:9])
	if err != nil {
		return nil, err
	}

	t := &Trailer{
		Access: access,
		GPB:    data[9],
	}
	copy(t.KeyA[:], data[0:6])
	copy(t.KeyB[:], data[10:16])

	return t, nil
}

// Serialize returns the 16 bytes of the trailer block.
func (t *Trailer) Serialize() []byte {
	data := make([]byte, 0, BlockSize)
	access := t.Access.Bytes()
	data = append(data, t.KeyA[:]...)
	data = append(data, access[:]...)
	data = append(data, t.GPB)
	data = append(data, t.KeyB[:]...)

	return data
}

// HasFullPermission reports whether kt can rewrite key A, the access bits and key B.
func (t *Trailer) HasFullPermission(kt KeyType) bool {
	return t.Access.TrailerPermits(WriteKeyA, kt) &&
		t.Access.TrailerPermits(WriteAccessBits, kt) &&
		t.Access.TrailerPermits(WriteKeyB, kt)
}

func (t *Trailer) String() string {
	access := t.Access.Bytes()
	return fmt.Sprintf("%s %x %02x %s", t.KeyA, access, t.GPB, t.KeyB)
}

// DefaultTrailer returns the trailer written by a format: default keys, transport access bits.
func DefaultTrailer() *Trailer {
	return &Trailer{
		KeyA:   DefaultKey,
		Access: TransportAccessBits,
		GPB:    TransportGPB,
		KeyB:   DefaultKey,
	}
}
