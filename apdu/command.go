package apdu

import (
	"bytes"
	"errors"
)

// ErrDataTooLong is returned when a command payload doesn't fit a short APDU.
var ErrDataTooLong = errors.New("command data longer than 255 bytes")

// Command struct represent the data sent as an APDU command with CLA, Ins, P1, P2, Lc, Data, and Le.
type Command struct {
	Cla        uint8
	Ins        uint8
	P1         uint8
	P2         uint8
	Data       []byte
	le         uint8
	requiresLe bool
}

// NewCommand returns a new apdu Command.
func NewCommand(cla, ins, p1, p2 uint8, data []byte) *Command {
	return &Command{
		Cla:  cla,
		Ins:  ins,
		P1:   p1,
		P2:   p2,
		Data: data,
	}
}

// SetLe sets the expected response length.
// A value of 0 asks the card for the maximum available length.
func (c *Command) SetLe(le uint8) {
	c.requiresLe = true
	c.le = le
}

// Le returns if Le is set and its value.
func (c *Command) Le() (bool, uint8) {
	return c.requiresLe, c.le
}

// Serialize serializes the command into a raw bytes sequence.
func (c *Command) Serialize() ([]byte, error) {
	if len(c.Data) > 255 {
		return nil, ErrDataTooLong
	}

	buf := bytes.NewBuffer(make([]byte, 0, 5+len(c.Data)+1))
	buf.Write([]byte{c.Cla, c.Ins, c.P1, c.P2})

	if len(c.Data) > 0 {
		buf.WriteByte(uint8(len(c.Data)))
		buf.Write(c.Data)
	}

	if c.requiresLe {
		buf.WriteByte(c.le)
	}

	return buf.Bytes(), nil
}
