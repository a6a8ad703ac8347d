package pcsc

import (
	"errors"
	"fmt"

	"github.com/status-im/mifare-balance-go/apdu"
	"github.com/status-im/mifare-balance-go/types"
)

var ErrBlockSize = fmt.Errorf("block data must be %d bytes", types.BlockSize)

// authRejections are the status words readers return when the card refuses a key.
var authRejections = []uint16{
	apdu.SwNoInformation,
	apdu.SwSecurityStatusNotSatisfied,
	apdu.SwAuthenticationMethodBlocked,
	apdu.SwKeyNotFound,
}

// CommandSet drives a MIFARE Classic tag through the storage card commands of a PC/SC reader.
type CommandSet struct {
	c Channel
}

func NewCommandSet(c Channel) *CommandSet {
	return &CommandSet{
		c: c,
	}
}

func (cs *CommandSet) GetUID() ([]byte, error) {
	cmd := NewCommandGetUID()
	resp, err := cs.c.Send(cmd)
	if err = cs.checkOK(resp, err); err != nil {
		return nil, err
	}

	return resp.Data, nil
}

func (cs *CommandSet) LoadKey(slot uint8, key types.Key) error {
	cmd := NewCommandLoadKey(slot, key)
	resp, err := cs.c.Send(cmd)
	return cs.checkOK(resp, err)
}

// Authenticate authenticates the sector of block with the key loaded in slot.
// A refused key returns an error wrapping types.ErrAuthRejected.
func (cs *CommandSet) Authenticate(block types.Block, keyType types.KeyType, slot uint8) error {
	cmd := NewCommandGeneralAuthenticate(block, keyType, slot)
	resp, err := cs.c.Send(cmd)
	if err != nil {
		return err
	}

	for _, sw := range authRejections {
		if resp.Sw == sw {
			return fmt.Errorf("block %d key %s: %w", block, keyType, types.ErrAuthRejected)
		}
	}

	return cs.checkOK(resp, nil)
}

func (cs *CommandSet) ReadBinary(block types.Block) ([]byte, error) {
	cmd := NewCommandReadBinary(block)
	resp, err := cs.c.Send(cmd)
	if err = cs.checkOK(resp, err); err != nil {
		return nil, err
	}

	if len(resp.Data) != types.BlockSize {
		return nil, ErrBlockSize
	}

	return resp.Data, nil
}

func (cs *CommandSet) UpdateBinary(block types.Block, data []byte) error {
	if len(data) != types.BlockSize {
		return ErrBlockSize
	}

	cmd := NewCommandUpdateBinary(block, data)
	resp, err := cs.c.Send(cmd)
	return cs.checkOK(resp, err)
}

func (cs *CommandSet) checkOK(resp *apdu.Response, err error, allowedResponses ...uint16) error {
	if err != nil {
		return err
	}

	if resp == nil {
		return errors.New("no response")
	}

	if len(allowedResponses) == 0 {
		allowedResponses = []uint16{apdu.SwOK}
	}

	for _, code := range allowedResponses {
		if code == resp.Sw {
			return nil
		}
	}

	return apdu.NewErrBadResponse(resp.Sw, "unexpected response")
}
