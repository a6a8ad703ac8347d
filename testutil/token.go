// Package testutil provides an in-memory MIFARE Classic token and ledger
// helpers for tests.
package testutil

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/status-im/mifare-balance-go/types"
)

var (
	// ErrInjected is returned by operations set to fail.
	ErrInjected     = errors.New("injected i/o failure")
	ErrNotConnected = errors.New("token not connected")
	ErrHalted       = errors.New("token halted after a rejected authentication")
	ErrNotPermitted = errors.New("operation not permitted by the access bits")
	ErrNotAuth      = errors.New("sector not authenticated")
)

// Token simulates a MIFARE Classic 1k or 4k token behind a reader.
// Authentication is checked against the stored trailer keys and reads and
// writes against its access bits; trailer reads return key A as zeros.
type Token struct {
	uid     string
	tagType types.TagType
	blocks  [][]byte

	connected  bool
	halted     bool
	authSector int
	authType   types.KeyType

	// Connects counts successful connections.
	Connects int
	// Writes counts successful block writes.
	Writes int
	// WritesLeft, when not negative, is the number of writes accepted before
	// every further write fails, as if the token was pulled away.
	WritesLeft int

	FailConnect error
	FailAuth    map[types.Sector]error
	FailRead    map[types.Block]error
	FailWrite   map[types.Block]error
}

// NewToken returns a blank token: every sector in the transport configuration
// with default keys and zeroed data.
func NewToken(uid string, tt types.TagType) *Token {
	t := &Token{
		uid:        uid,
		tagType:    tt,
		authSector: -1,
		WritesLeft: -1,
		FailAuth:   map[types.Sector]error{},
		FailRead:   map[types.Block]error{},
		FailWrite:  map[types.Block]error{},
	}

	sectors := tt.SectorCount()
	if sectors == 0 {
		return t
	}

	last := types.SectorLastBlock(types.Sector(sectors - 1))
	t.blocks = make([][]byte, int(last)+1)
	for i := range t.blocks {
		t.blocks[i] = make([]byte, types.BlockSize)
	}

	copy(t.blocks[0], []byte(uid))
	for s := 0; s < sectors; s++ {
		t.SetTrailer(types.Sector(s), types.DefaultTrailer())
	}

	return t
}

func (t *Token) UID() string {
	return t.uid
}

func (t *Token) Type() types.TagType {
	return t.tagType
}

func (t *Token) Connect() error {
	if t.FailConnect != nil {
		return t.FailConnect
	}

	t.connected = true
	t.halted = false
	t.authSector = -1
	t.Connects++

	return nil
}

func (t *Token) Disconnect() error {
	t.connected = false
	t.halted = false
	t.authSector = -1

	return nil
}

// Connected reports whether the token holds an open connection.
func (t *Token) Connected() bool {
	return t.connected
}

func (t *Token) Authenticate(block types.Block, key types.Key, keyType types.KeyType) error {
	if err := t.ready(); err != nil {
		return err
	}

	if int(block) >= len(t.blocks) {
		return fmt.Errorf("block %s out of range", block)
	}

	sector := types.BlockSector(block)
	if err := t.FailAuth[sector]; err != nil {
		return err
	}

	tr := t.trailer(sector)
	expected := tr.KeyA
	if keyType == types.KeyB {
		expected = tr.KeyB
	}

	if key != expected {
		t.halted = true
		t.authSector = -1
		return fmt.Errorf("%w: sector %s key %s", types.ErrAuthRejected, sector, keyType)
	}

	t.authSector = int(sector)
	t.authType = keyType

	return nil
}

func (t *Token) ReadBlock(block types.Block) ([]byte, error) {
	if err := t.authorized(block); err != nil {
		return nil, err
	}

	if err := t.FailRead[block]; err != nil {
		return nil, err
	}

	data := bytes.Clone(t.blocks[block])
	if !types.IsTrailer(block) {
		if !t.trailer(types.BlockSector(block)).Access.DataPermits(block, types.ReadData, t.authType) {
			return nil, ErrNotPermitted
		}
		return data, nil
	}

	tr := t.trailer(types.BlockSector(block))
	copy(data[0:6], types.ZeroKey[:])
	if !tr.Access.TrailerPermits(types.ReadKeyB, t.authType) {
		copy(data[10:16], types.ZeroKey[:])
	}

	return data, nil
}

func (t *Token) WriteBlock(block types.Block, data []byte) error {
	if err := t.authorized(block); err != nil {
		return err
	}

	if err := t.FailWrite[block]; err != nil {
		return err
	}

	if t.WritesLeft == 0 {
		return ErrInjected
	}

	if len(data) != types.BlockSize {
		return fmt.Errorf("write of %d bytes", len(data))
	}

	if types.IsManufacturerBlock(block) {
		return ErrNotPermitted
	}

	tr := t.trailer(types.BlockSector(block))
	if types.IsTrailer(block) {
		if _, err := types.ParseTrailer(data); err != nil {
			return err
		}
		if !tr.HasFullPermission(t.authType) {
			return ErrNotPermitted
		}
	} else if !tr.Access.DataPermits(block, types.WriteData, t.authType) {
		return ErrNotPermitted
	}

	copy(t.blocks[block], data)
	t.Writes++
	if t.WritesLeft > 0 {
		t.WritesLeft--
	}

	return nil
}

func (t *Token) ready() error {
	if !t.connected {
		return ErrNotConnected
	}

	if t.halted {
		return ErrHalted
	}

	return nil
}

func (t *Token) authorized(block types.Block) error {
	if err := t.ready(); err != nil {
		return err
	}

	if int(block) >= len(t.blocks) {
		return fmt.Errorf("block %s out of range", block)
	}

	if t.authSector != int(types.BlockSector(block)) {
		return ErrNotAuth
	}

	return nil
}

func (t *Token) trailer(s types.Sector) *types.Trailer {
	tr, err := types.ParseTrailer(t.blocks[types.SectorLastBlock(s)])
	if err != nil {
		panic(fmt.Sprintf("corrupt trailer in sector %s: %v", s, err))
	}

	return tr
}

// SetTrailer overwrites the trailer of sector, bypassing access checks.
func (t *Token) SetTrailer(s types.Sector, tr *types.Trailer) {
	copy(t.blocks[types.SectorLastBlock(s)], tr.Serialize())
}

// Trailer returns the stored trailer of sector, keys included.
func (t *Token) Trailer(s types.Sector) *types.Trailer {
	return t.trailer(s)
}

// SetBlock overwrites a block, bypassing access checks.
func (t *Token) SetBlock(b types.Block, data []byte) {
	block := make([]byte, types.BlockSize)
	copy(block, data)
	t.blocks[b] = block
}

// Block returns a copy of the stored block.
func (t *Token) Block(b types.Block) []byte {
	return bytes.Clone(t.blocks[b])
}

// IsBlank reports whether every sector is in the transport configuration
// with zeroed data blocks.
func (t *Token) IsBlank() bool {
	zero := make([]byte, types.BlockSize)
	for s := 0; s < t.tagType.SectorCount(); s++ {
		sector := types.Sector(s)
		if *t.trailer(sector) != *types.DefaultTrailer() {
			return false
		}

		for _, b := range types.SectorDataBlocks(sector) {
			if !types.IsManufacturerBlock(b) && !bytes.Equal(t.blocks[b], zero) {
				return false
			}
		}
	}

	return true
}
