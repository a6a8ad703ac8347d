package testutil

import (
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/status-im/mifare-balance-go/types"
)

// WriteApplication lays out a directory allocating the NFC Forum application
// and writes stream into it, with the public keys of the NFC Forum mapping.
func (t *Token) WriteApplication(stream []byte) error {
	mad, err := types.NewMAD(t.tagType)
	if err != nil {
		return err
	}

	sectors, err := mad.Allocate(types.NFCForumAID, len(stream))
	if err != nil {
		return err
	}

	remaining := stream
	for _, s := range sectors {
		for _, b := range types.SectorDataBlocks(s) {
			n := 0
			if len(remaining) > 0 {
				n = min(len(remaining), types.BlockSize)
			}
			t.SetBlock(b, remaining[:n])
			remaining = remaining[n:]
		}

		t.SetTrailer(s, &types.Trailer{
			KeyA:   types.NFCForumKey,
			Access: types.NFCForumAccessBits,
			GPB:    types.NFCForumGPB,
			KeyB:   types.NFCForumKey,
		})
	}

	t.SetBlock(1, mad.Sector0()[:types.BlockSize])
	t.SetBlock(2, mad.Sector0()[types.BlockSize:])
	if sector16 := mad.Sector16(); sector16 != nil {
		first := types.SectorFirstBlock(types.MAD2Sector)
		for i := 0; i < 3; i++ {
			t.SetBlock(first+types.Block(i), sector16[i*types.BlockSize:(i+1)*types.BlockSize])
		}
	}

	for _, s := range mad.DirectorySectors() {
		t.SetTrailer(s, &types.Trailer{
			KeyA:   types.MADKeyA,
			Access: types.MADAccessBits,
			GPB:    mad.GPB(),
			KeyB:   types.NFCForumKey,
		})
	}

	return nil
}

// Personalize writes a balance record for identity and balance.
func (t *Token) Personalize(identity, balance string) error {
	record := &types.BalanceRecord{Identity: identity, Balance: decimal.RequireFromString(balance)}
	payload, err := record.Serialize()
	if err != nil {
		return fmt.Errorf("personalize %s: %w", t.uid, err)
	}

	stream, err := types.NDEFMessageStream(payload)
	if err != nil {
		return err
	}

	return t.WriteApplication(stream)
}

// ReadRecord decodes the balance record stored in the first application
// sector, bypassing keys.
func (t *Token) ReadRecord() (*types.BalanceRecord, error) {
	var data []byte
	for _, b := range types.SectorDataBlocks(1) {
		data = append(data, t.blocks[b]...)
	}

	tlv, err := types.ParseTLV(data)
	if err != nil {
		return nil, err
	}

	if tlv.Type != types.TLVNDEFMessage {
		return nil, fmt.Errorf("first tlv is %s", tlv.Type)
	}

	return types.ParseBalanceRecord(tlv.Value)
}
