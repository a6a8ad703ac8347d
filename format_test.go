package balance

import (
	"testing"

	"github.com/status-im/mifare-balance-go/testutil"
	"github.com/status-im/mifare-balance-go/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatToken(t *testing.T) {
	for _, tt := range []types.TagType{types.TagClassic1K, types.TagClassic4K} {
		t.Run(tt.String(), func(t *testing.T) {
			tok := testutil.NewToken("04a1b2c3", tt)
			require.NoError(t, tok.Personalize("A1234567", "10.00"))
			manufacturer := tok.Block(0)

			var done []int
			err := FormatToken(tok, FormatOptions{
				Progress: func(s types.Sector, n, total int) {
					assert.Equal(t, tt.SectorCount(), total)
					done = append(done, n)
				},
			})
			require.NoError(t, err)

			assert.True(t, tok.IsBlank())
			assert.Len(t, done, tt.SectorCount())
			assert.Equal(t, tt.SectorCount(), done[len(done)-1])
			assert.Equal(t, manufacturer, tok.Block(0))
			assert.False(t, tok.Connected())
		})
	}
}

func TestFormatTokenFast(t *testing.T) {
	tok := testutil.NewToken("04a1b2c3", types.TagClassic4K)
	require.NoError(t, tok.Personalize("A1234567", "10.00"))

	var sectors []types.Sector
	err := FormatToken(tok, FormatOptions{
		Fast:     true,
		Progress: func(s types.Sector, _, _ int) { sectors = append(sectors, s) },
	})
	require.NoError(t, err)
	assert.Equal(t, []types.Sector{types.MADSector, types.MAD2Sector}, sectors)

	require.NoError(t, tok.Connect())
	_, err = ReadDirectory(tok)
	assert.ErrorIs(t, err, types.ErrNoMAD)
	assert.ErrorIs(t, err, ErrNoApplication)
}

func TestFormatTokenIncomplete(t *testing.T) {
	unknown := types.Key{0x01, 0x02, 0x03, 0x04, 0x05, 0x06}
	tok := testutil.NewToken("04a1b2c3", types.TagClassic1K)
	require.NoError(t, tok.Personalize("A1234567", "10.00"))
	tok.SetTrailer(5, &types.Trailer{KeyA: unknown, Access: types.TransportAccessBits, GPB: types.TransportGPB, KeyB: unknown})

	err := FormatToken(tok, FormatOptions{})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrIncompleteFormat)
	assert.ErrorIs(t, err, ErrKeyNotFound)
	assert.Equal(t, SkipToken, Classify(err))

	// sectors before the failing one stay formatted
	assert.Equal(t, *types.DefaultTrailer(), *tok.Trailer(1))
	assert.Equal(t, unknown, tok.Trailer(5).KeyA)
}

func TestFormatTokenWriteFailure(t *testing.T) {
	tok := testutil.NewToken("04a1b2c3", types.TagClassic1K)
	tok.FailWrite[types.SectorFirstBlock(2)] = testutil.ErrInjected

	err := FormatToken(tok, FormatOptions{})
	assert.ErrorIs(t, err, ErrIOFailure)
	assert.Equal(t, Fatal, Classify(err))
}

func TestFormatTokenUnsupported(t *testing.T) {
	tok := testutil.NewToken("04a1b2c3", types.TagUnknown)
	err := FormatToken(tok, FormatOptions{})
	assert.ErrorIs(t, err, ErrUnsupportedTag)
}

func TestFormatSectorRejectedKey(t *testing.T) {
	tok := testutil.NewToken("04a1b2c3", types.TagClassic1K)
	require.NoError(t, tok.Connect())

	err := FormatSector(tok, 3, types.KeyPair{Key: types.ZeroKey, Type: types.KeyA})
	var notFound *KeyNotFoundError
	require.ErrorAs(t, err, &notFound)
	assert.Equal(t, types.Sector(3), notFound.Sector)
}
