package pcsc

import (
	"encoding/hex"
	"errors"
	"testing"

	"github.com/ebfe/scard"
	"github.com/status-im/mifare-balance-go/apdu"
	"github.com/status-im/mifare-balance-go/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func hexMustDecode(str string) []byte {
	out, _ := hex.DecodeString(str)
	return out
}

// fakeCard answers raw commands from a table keyed by their hex encoding.
type fakeCard struct {
	responses    map[string]string
	sent         []string
	disconnected int
}

func (c *fakeCard) Transmit(cmd []byte) ([]byte, error) {
	key := hex.EncodeToString(cmd)
	c.sent = append(c.sent, key)

	resp, ok := c.responses[key]
	if !ok {
		return nil, errors.New("reader error")
	}

	return hexMustDecode(resp), nil
}

func (c *fakeCard) Disconnect(scard.Disposition) error {
	c.disconnected++
	return nil
}

func TestCommands(t *testing.T) {
	tests := []struct {
		cmd  *apdu.Command
		want string
	}{
		{NewCommandGetUID(), "ffca000000"},
		{NewCommandLoadKey(0, types.NFCForumKey), "ff82000006d3f7d3f7d3f7"},
		{NewCommandGeneralAuthenticate(7, types.KeyA, 0), "ff860000050100076000"},
		{NewCommandGeneralAuthenticate(7, types.KeyB, 0), "ff860000050100076100"},
		{NewCommandReadBinary(4), "ffb0000410"},
		{NewCommandUpdateBinary(4, make([]byte, 16)), "ffd6000410" + "00000000000000000000000000000000"},
	}

	for _, tc := range tests {
		raw, err := tc.cmd.Serialize()
		require.NoError(t, err)
		assert.Equal(t, tc.want, hex.EncodeToString(raw))
	}
}

func TestTagTypeFromATR(t *testing.T) {
	assert.Equal(t, types.TagClassic1K, TagTypeFromATR(hexMustDecode("3b8f8001804f0ca000000306030001000000006a")))
	assert.Equal(t, types.TagClassic4K, TagTypeFromATR(hexMustDecode("3b8f8001804f0ca0000003060300020000000069")))
	assert.Equal(t, types.TagUnknown, TagTypeFromATR(hexMustDecode("3b8f8001804f0ca0000003060300260000000049")))
	assert.Equal(t, types.TagUnknown, TagTypeFromATR(hexMustDecode("3b8a80010031c173c840000090009b")))
	assert.Equal(t, types.TagUnknown, TagTypeFromATR(hexMustDecode("a00000030603")))
}

func newFakeTag(card *fakeCard) *Tag {
	return NewTag("04a1b2c3", types.TagClassic1K, func() (Card, error) { return card, nil })
}

func TestTagAuthenticate(t *testing.T) {
	card := &fakeCard{responses: map[string]string{
		"ff82000006ffffffffffff": "9000",
		"ff860000050100076000":   "9000",
		"ff82000006d3f7d3f7d3f7": "9000",
		"ff860000050100076100":   "6300",
		"ff860000050100036000":   "6982",
		"ff82000006a0a1a2a3a4a5": "9000",
		"ff860000050100036100":   "6a81",
	}}
	tag := newFakeTag(card)

	assert.ErrorIs(t, tag.Authenticate(7, types.DefaultKey, types.KeyA), ErrNotConnected)

	require.NoError(t, tag.Connect())
	require.NoError(t, tag.Authenticate(7, types.DefaultKey, types.KeyA))

	err := tag.Authenticate(7, types.NFCForumKey, types.KeyB)
	assert.ErrorIs(t, err, types.ErrAuthRejected)

	err = tag.Authenticate(3, types.MADKeyA, types.KeyA)
	assert.ErrorIs(t, err, types.ErrAuthRejected)

	err = tag.Authenticate(3, types.MADKeyA, types.KeyB)
	require.Error(t, err)
	assert.NotErrorIs(t, err, types.ErrAuthRejected)
	var badResp *apdu.ErrBadResponse
	assert.ErrorAs(t, err, &badResp)

	require.NoError(t, tag.Disconnect())
	assert.Equal(t, 1, card.disconnected)
	require.NoError(t, tag.Disconnect())
	assert.Equal(t, 1, card.disconnected)
}

func TestTagReadWrite(t *testing.T) {
	block := "030d413132333435363731322e3530fe"
	card := &fakeCard{responses: map[string]string{
		"ffb0000410":         block + "9000",
		"ffb0000510":         "00009000",
		"ffd6000410" + block: "9000",
		"ffd6000510" + block: "6581",
	}}
	tag := newFakeTag(card)
	require.NoError(t, tag.Connect())

	data, err := tag.ReadBlock(4)
	require.NoError(t, err)
	assert.Equal(t, hexMustDecode(block), data)

	_, err = tag.ReadBlock(5)
	assert.ErrorIs(t, err, ErrBlockSize)

	_, err = tag.ReadBlock(6)
	assert.Error(t, err)

	require.NoError(t, tag.WriteBlock(4, hexMustDecode(block)))
	assert.Error(t, tag.WriteBlock(5, hexMustDecode(block)))
	assert.ErrorIs(t, tag.WriteBlock(4, []byte{0x01}), ErrBlockSize)
}

func TestCommandSetGetUID(t *testing.T) {
	card := &fakeCard{responses: map[string]string{"ffca000000": "04a1b2c39000"}}
	uid, err := NewCommandSet(NewNormalChannel(card)).GetUID()
	require.NoError(t, err)
	assert.Equal(t, hexMustDecode("04a1b2c3"), uid)
}
