package pcsc

import (
	"github.com/ethereum/go-ethereum/log"
	"github.com/status-im/mifare-balance-go/apdu"
)

var logger = log.New("package", "mifare-balance/pcsc")

// Transmitter defines an interface with one method to transmit raw commands and receive raw responses.
type Transmitter interface {
	Transmit([]byte) ([]byte, error)
}

// Channel is an interface with a Send method to send apdu commands and receive apdu responses.
type Channel interface {
	Send(*apdu.Command) (*apdu.Response, error)
}

// NormalChannel sends commands as they are, without any session wrapping.
type NormalChannel struct {
	t Transmitter
}

func NewNormalChannel(t Transmitter) *NormalChannel {
	return &NormalChannel{t}
}

func (c *NormalChannel) Send(cmd *apdu.Command) (*apdu.Response, error) {
	rawCmd, err := cmd.Serialize()
	if err != nil {
		return nil, err
	}

	logger.Trace("apdu command", "ins", cmd.Ins, "p1", cmd.P1, "p2", cmd.P2, "lc", len(cmd.Data))
	rawResp, err := c.t.Transmit(rawCmd)
	if err != nil {
		return nil, err
	}

	resp, err := apdu.ParseResponse(rawResp)
	if err != nil {
		return nil, err
	}

	logger.Trace("apdu response", "sw", resp.Sw, "len", len(resp.Data))

	return resp, nil
}
