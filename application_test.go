package balance

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/status-im/mifare-balance-go/testutil"
	"github.com/status-im/mifare-balance-go/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func connectedToken(t *testing.T, tt types.TagType) *testutil.Token {
	t.Helper()

	tok := testutil.NewToken("04a1b2c3", tt)
	require.NoError(t, tok.Connect())
	return tok
}

func TestReadBalanceRecord(t *testing.T) {
	for _, tt := range []types.TagType{types.TagClassic1K, types.TagClassic4K} {
		t.Run(tt.String(), func(t *testing.T) {
			tok := connectedToken(t, tt)
			require.NoError(t, tok.Personalize("A1234567", "12.50"))

			record, err := ReadBalanceRecord(tok)
			require.NoError(t, err)
			assert.Equal(t, "A1234567", record.Identity)
			assert.Equal(t, "12.50", record.Balance.StringFixed(2))
		})
	}
}

func TestReadDirectory(t *testing.T) {
	tok := connectedToken(t, types.TagClassic4K)
	require.NoError(t, tok.Personalize("A1234567", "12.50"))

	mad, err := ReadDirectory(tok)
	require.NoError(t, err)
	assert.Equal(t, 2, mad.Version)
	assert.Equal(t, []types.Sector{1}, mad.ApplicationSectors(types.NFCForumAID))
}

func TestReadDirectoryErrors(t *testing.T) {
	tok := connectedToken(t, types.TagClassic1K)
	_, err := ReadDirectory(tok)
	assert.ErrorIs(t, err, ErrNoApplication)
	assert.ErrorIs(t, err, types.ErrNoMAD)
	assert.True(t, tok.Connected())

	require.NoError(t, tok.Personalize("A1234567", "12.50"))
	block := tok.Block(1)
	block[5] ^= 0xFF
	tok.SetBlock(1, block)

	_, err = ReadDirectory(tok)
	assert.ErrorIs(t, err, ErrNoApplication)
	assert.ErrorIs(t, err, types.ErrInvalidMAD)
	assert.Equal(t, SkipToken, Classify(err))
}

func TestReadBalanceRecordTLVDispatch(t *testing.T) {
	valid := hexMustDecode("030d413132333435363731322e3530fe")

	tests := []struct {
		name   string
		stream []byte
		err    error
	}{
		{"null before valid", append([]byte{0x00}, valid...), ErrEmptyApplication},
		{"terminator before valid", append([]byte{0xFE}, valid...), ErrUnsupportedTLV},
		{"proprietary", hexMustDecode("fd020102fe"), ErrUnsupportedTLV},
		{"lock control", hexMustDecode("0103a00c34fe"), ErrUnsupportedTLV},
		{"short payload", hexMustDecode("0305413132333435fe"), ErrTruncated},
		{"tlv longer than data", hexMustDecode("03ff0100"), ErrTruncated},
		{"malformed balance", hexMustDecode("030d413132333435363731322c3530fe"), types.ErrMalformedBalance},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			tok := connectedToken(t, types.TagClassic1K)
			require.NoError(t, tok.WriteApplication(tc.stream))

			_, err := ReadBalanceRecord(tok)
			assert.ErrorIs(t, err, tc.err)
			assert.Equal(t, SkipToken, Classify(err))
		})
	}
}

func TestReadApplicationNotInDirectory(t *testing.T) {
	tok := connectedToken(t, types.TagClassic1K)
	require.NoError(t, tok.Personalize("A1234567", "12.50"))

	mad, err := ReadDirectory(tok)
	require.NoError(t, err)

	_, err = ReadApplication(tok, mad, types.AIDCardHolder, ApplicationReadKey)
	assert.ErrorIs(t, err, ErrNoApplication)
}

func TestReadBalanceRecordIOFailure(t *testing.T) {
	tok := connectedToken(t, types.TagClassic1K)
	require.NoError(t, tok.Personalize("A1234567", "12.50"))
	tok.FailRead[4] = testutil.ErrInjected

	_, err := ReadBalanceRecord(tok)
	assert.ErrorIs(t, err, ErrIOFailure)
}

func TestWriteBalanceRecordProvisionsBlankToken(t *testing.T) {
	for _, tt := range []types.TagType{types.TagClassic1K, types.TagClassic4K} {
		t.Run(tt.String(), func(t *testing.T) {
			tok := connectedToken(t, tt)
			record := &types.BalanceRecord{Identity: "A1234567", Balance: decimal.RequireFromString("4")}

			var recovered []types.Sector
			err := WriteBalanceRecord(tok, record, func(s types.Sector, _ types.KeyPair, err error) {
				require.NoError(t, err)
				recovered = append(recovered, s)
			})
			require.NoError(t, err)
			assert.Contains(t, recovered, types.MADSector)

			stored, err := tok.ReadRecord()
			require.NoError(t, err)
			assert.Equal(t, "A1234567", stored.Identity)
			assert.Equal(t, "4.00", stored.Balance.StringFixed(2))
			assert.Equal(t, hexMustDecode("030d4131323334353637"+"30342e3030fe"), tok.Block(4))

			assert.Equal(t, types.NFCForumKey, tok.Trailer(1).KeyA)
			assert.Equal(t, types.MADKeyA, tok.Trailer(types.MADSector).KeyA)

			read, err := ReadBalanceRecord(tok)
			require.NoError(t, err)
			assert.Equal(t, record.Balance.String(), read.Balance.String())
		})
	}
}

func TestWriteBalanceRecordOverwrites(t *testing.T) {
	tok := connectedToken(t, types.TagClassic1K)
	require.NoError(t, tok.Personalize("A1234567", "10.00"))

	record := &types.BalanceRecord{Identity: "A1234567", Balance: decimal.RequireFromString("7")}
	require.NoError(t, WriteBalanceRecord(tok, record, nil))

	stored, err := tok.ReadRecord()
	require.NoError(t, err)
	assert.Equal(t, "7.00", stored.Balance.StringFixed(2))
	assert.Equal(t, "07.00", string(tok.Block(4)[10:15]))
}

func TestWriteBalanceRecordRejectsWideBalance(t *testing.T) {
	tok := connectedToken(t, types.TagClassic1K)
	record := &types.BalanceRecord{Identity: "A1234567", Balance: decimal.RequireFromString("100")}

	err := WriteBalanceRecord(tok, record, nil)
	assert.ErrorIs(t, err, types.ErrBalanceWidth)
	assert.Zero(t, tok.Writes)
}
