package pcsc

import (
	"github.com/status-im/mifare-balance-go/apdu"
	"github.com/status-im/mifare-balance-go/types"
)

// Pseudo-APDUs of the PC/SC part 3 storage card interface, handled by the reader itself.
const (
	ClaPCSC = 0xFF

	InsGetData             = 0xCA
	InsLoadKey             = 0x82
	InsGeneralAuthenticate = 0x86
	InsReadBinary          = 0xB0
	InsUpdateBinary        = 0xD6

	P1GetDataUID        = 0x00
	P1LoadKeyVolatile   = 0x00
	AuthenticateVersion = 0x01
	KeyTypeMifareA      = 0x60
	KeyTypeMifareB      = 0x61

	// VolatileKeySlot is the reader key slot used for every authentication.
	VolatileKeySlot = 0x00
)

func NewCommandGetUID() *apdu.Command {
	cmd := apdu.NewCommand(
		ClaPCSC,
		InsGetData,
		P1GetDataUID,
		0,
		nil,
	)
	cmd.SetLe(0)

	return cmd
}

func NewCommandLoadKey(slot uint8, key types.Key) *apdu.Command {
	return apdu.NewCommand(
		ClaPCSC,
		InsLoadKey,
		P1LoadKeyVolatile,
		slot,
		key[:],
	)
}

func NewCommandGeneralAuthenticate(block types.Block, keyType types.KeyType, slot uint8) *apdu.Command {
	kt := uint8(KeyTypeMifareA)
	if keyType == types.KeyB {
		kt = KeyTypeMifareB
	}

	return apdu.NewCommand(
		ClaPCSC,
		InsGeneralAuthenticate,
		0,
		0,
		[]byte{AuthenticateVersion, 0x00, uint8(block), kt, slot},
	)
}

func NewCommandReadBinary(block types.Block) *apdu.Command {
	cmd := apdu.NewCommand(
		ClaPCSC,
		InsReadBinary,
		0,
		uint8(block),
		nil,
	)
	cmd.SetLe(types.BlockSize)

	return cmd
}

func NewCommandUpdateBinary(block types.Block, data []byte) *apdu.Command {
	return apdu.NewCommand(
		ClaPCSC,
		InsUpdateBinary,
		0,
		uint8(block),
		data,
	)
}
