// Package balance reads, validates and commits the stored-value record held on
// MIFARE Classic tokens, keeping it reconciled with the ledger.
package balance

import (
	"context"

	"github.com/ethereum/go-ethereum/log"
	"github.com/status-im/mifare-balance-go/types"
)

var logger = log.New("package", "mifare-balance")

// Token is a connection to one MIFARE Classic token.
// Authenticate fails with an error wrapping ErrAuthRejected when the tag
// refuses the key; any other failure of these methods is an I/O failure.
// After a rejected authentication the tag must be reconnected before it
// accepts another command.
type Token interface {
	UID() string
	Type() types.TagType
	Connect() error
	Disconnect() error
	Authenticate(block types.Block, key types.Key, keyType types.KeyType) error
	ReadBlock(block types.Block) ([]byte, error)
	WriteBlock(block types.Block, data []byte) error
}

// Enumerator lists the tokens currently presented to the readers.
type Enumerator interface {
	Tokens(ctx context.Context) ([]Token, error)
}

// authenticate authenticates block with kp. A rejected key leaves the token
// reconnected, ready for the next attempt.
func authenticate(t Token, block types.Block, kp types.KeyPair) error {
	err := t.Authenticate(block, kp.Key, kp.Type)
	if err == nil {
		return nil
	}

	if !isAuthRejected(err) {
		return ioFailure("authenticate", err)
	}

	if err := reconnect(t); err != nil {
		return err
	}

	return err
}

func reconnect(t Token) error {
	disconnect(t)

	if err := t.Connect(); err != nil {
		return ioFailure("connect", err)
	}

	return nil
}

func readBlock(t Token, block types.Block) ([]byte, error) {
	data, err := t.ReadBlock(block)
	if err != nil {
		return nil, ioFailure("read block "+block.String(), err)
	}

	if len(data) != types.BlockSize {
		return nil, ioFailure("read block "+block.String(), types.ErrTruncated)
	}

	return data, nil
}

func writeBlock(t Token, block types.Block, data []byte) error {
	if err := t.WriteBlock(block, data); err != nil {
		return ioFailure("write block "+block.String(), err)
	}

	return nil
}
