package types

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMADCRC(t *testing.T) {
	data := append([]byte{0x01}, bytes.Repeat([]byte{0x03, 0xE1}, 15)...)
	assert.Equal(t, byte(0x14), MADCRC(data))
}

func TestParseMADv1(t *testing.T) {
	sector0 := append([]byte{0x14, 0x01}, bytes.Repeat([]byte{0x03, 0xE1}, 15)...)

	mad, err := ParseMAD(0xC1, sector0, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, mad.Version)
	assert.Equal(t, 16, mad.SectorCount())

	sectors := mad.ApplicationSectors(NFCForumAID)
	require.Len(t, sectors, 15)
	assert.Equal(t, Sector(1), sectors[0])
	assert.Equal(t, Sector(15), sectors[14])
	assert.Equal(t, sector0, mad.Sector0())
}

func TestParseMADErrors(t *testing.T) {
	sector0 := append([]byte{0x14, 0x01}, bytes.Repeat([]byte{0x03, 0xE1}, 15)...)

	_, err := ParseMAD(0x69, sector0, nil)
	assert.Equal(t, ErrNoMAD, err)

	_, err = ParseMAD(0xC3, sector0, nil)
	assert.Equal(t, ErrMADVersion, err)

	corrupted := append([]byte{}, sector0...)
	corrupted[5] = 0x00
	_, err = ParseMAD(0xC1, corrupted, nil)
	assert.Equal(t, ErrInvalidMAD, err)

	_, err = ParseMAD(0xC2, sector0, make([]byte, 10))
	assert.Error(t, err)
}

func TestMADv2RoundTrip(t *testing.T) {
	mad, err := NewMAD(TagClassic4K)
	require.NoError(t, err)
	assert.Equal(t, byte(0xC2), mad.GPB())

	sectors, err := mad.Allocate(NFCForumAID, 16)
	require.NoError(t, err)
	assert.Equal(t, []Sector{1}, sectors)
	require.NoError(t, mad.SetApplication(39, AIDCardHolder))

	parsed, err := ParseMAD(mad.GPB(), mad.Sector0(), mad.Sector16())
	require.NoError(t, err)
	assert.Equal(t, []Sector{1}, parsed.ApplicationSectors(NFCForumAID))
	assert.Equal(t, []Sector{39}, parsed.ApplicationSectors(AIDCardHolder))
	assert.Equal(t, []Sector{MADSector, MAD2Sector}, parsed.DirectorySectors())
}

func TestMADAllocate(t *testing.T) {
	mad, err := NewMAD(TagClassic1K)
	require.NoError(t, err)
	assert.Nil(t, mad.Sector16())

	sectors, err := mad.Allocate(NFCForumAID, 100)
	require.NoError(t, err)
	assert.Equal(t, []Sector{1, 2, 3}, sectors)

	assert.Equal(t, ErrSectorNotInMAD, mad.SetApplication(MADSector, NFCForumAID))
	assert.Equal(t, ErrSectorNotInMAD, mad.SetApplication(16, NFCForumAID))

	_, err = mad.Allocate(AIDCardHolder, 16*48)
	assert.Equal(t, ErrNoFreeSector, err)
	assert.Empty(t, mad.ApplicationSectors(AIDCardHolder))
}
