package types

import (
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func hexMustDecode(str string) []byte {
	out, _ := hex.DecodeString(str)
	return out
}

func TestAccessBitsBytes(t *testing.T) {
	scenarios := []struct {
		name     string
		access   AccessBits
		expected string
	}{
		{"transport", TransportAccessBits, "ff0780"},
		{"mad", MADAccessBits, "787788"},
		{"nfc forum", NFCForumAccessBits, "7f0788"},
	}

	for _, s := range scenarios {
		t.Run(s.name, func(t *testing.T) {
			raw := s.access.Bytes()
			assert.Equal(t, s.expected, hex.EncodeToString(raw[:]))

			parsed, err := ParseAccessBits(raw[:])
			require.NoError(t, err)
			assert.Equal(t, s.access, parsed)
		})
	}
}

func TestParseAccessBitsInvalid(t *testing.T) {
	_, err := ParseAccessBits(hexMustDecode("ff0781"))
	assert.Equal(t, ErrInvalidAccessBits, err)

	_, err = ParseAccessBits(hexMustDecode("ff07"))
	assert.Equal(t, ErrInvalidAccessBits, err)
}

func TestTrailerPermissions(t *testing.T) {
	transport := DefaultTrailer()
	assert.True(t, transport.HasFullPermission(KeyA))
	// key B is readable under the transport condition, so it grants nothing
	assert.False(t, transport.HasFullPermission(KeyB))

	nfc := &Trailer{KeyA: NFCForumKey, Access: NFCForumAccessBits, GPB: NFCForumGPB, KeyB: NFCForumKey}
	assert.False(t, nfc.HasFullPermission(KeyA))
	assert.True(t, nfc.HasFullPermission(KeyB))
	assert.True(t, nfc.Access.TrailerPermits(ReadAccessBits, KeyA))

	mad := &Trailer{KeyA: MADKeyA, Access: MADAccessBits, GPB: 0xC1, KeyB: NFCForumKey}
	assert.False(t, mad.HasFullPermission(KeyA))
	assert.True(t, mad.HasFullPermission(KeyB))
	assert.True(t, mad.Access.DataPermits(1, ReadData, KeyA))
	assert.False(t, mad.Access.DataPermits(1, WriteData, KeyA))
	assert.True(t, mad.Access.DataPermits(1, WriteData, KeyB))
}

func TestDataPermitsLargeSector(t *testing.T) {
	access := AccessBits{0, 2, 7, 1}
	first := SectorFirstBlock(32)

	assert.True(t, access.DataPermits(first, WriteData, KeyA))
	assert.True(t, access.DataPermits(first+4, WriteData, KeyA))
	assert.False(t, access.DataPermits(first+5, WriteData, KeyA))
	assert.True(t, access.DataPermits(first+5, ReadData, KeyA))
	assert.False(t, access.DataPermits(first+10, ReadData, KeyB))
}

func TestParseTrailer(t *testing.T) {
	raw := hexMustDecode("000000000000ff078069ffffffffffff")

	trailer, err := ParseTrailer(raw)
	require.NoError(t, err)
	assert.Equal(t, ZeroKey, trailer.KeyA)
	assert.Equal(t, DefaultKey, trailer.KeyB)
	assert.Equal(t, TransportAccessBits, trailer.Access)
	assert.Equal(t, byte(0x69), trailer.GPB)

	assert.Equal(t, hexMustDecode("ffffffffffffff078069ffffffffffff"), DefaultTrailer().Serialize())

	_, err = ParseTrailer(raw[:15])
	assert.Equal(t, ErrInvalidTrailer, err)
}

func TestSectorGeometry(t *testing.T) {
	assert.Equal(t, Block(0), SectorFirstBlock(0))
	assert.Equal(t, Block(3), SectorLastBlock(0))
	assert.Equal(t, Block(63), SectorLastBlock(15))
	assert.Equal(t, Block(128), SectorFirstBlock(32))
	assert.Equal(t, Block(143), SectorLastBlock(32))
	assert.Equal(t, Block(255), SectorLastBlock(39))
	assert.Equal(t, Sector(39), BlockSector(250))
	assert.Equal(t, Sector(31), BlockSector(127))
	assert.Equal(t, []Block{4, 5, 6}, SectorDataBlocks(1))
	assert.Len(t, SectorDataBlocks(33), 15)
	assert.True(t, IsTrailer(7))
	assert.False(t, IsTrailer(8))
	assert.Equal(t, 16, TagClassic1K.SectorCount())
	assert.Equal(t, 40, TagClassic4K.SectorCount())
}
