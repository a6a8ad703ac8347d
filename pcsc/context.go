package pcsc

import (
	"bytes"
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/ebfe/scard"
	balance "github.com/status-im/mifare-balance-go"
	"github.com/status-im/mifare-balance-go/types"
)

var ErrNotConnected = errors.New("tag not connected")

// rid is the registered application provider identifier of PC/SC part 3 storage card ATRs.
var rid = []byte{0xA0, 0x00, 0x00, 0x03, 0x06}

// Card is a connected PC/SC card handle.
type Card interface {
	Transmitter
	Disconnect(d scard.Disposition) error
}

// DialFunc opens a new connection to a tag.
type DialFunc func() (Card, error)

// Context lists the MIFARE Classic tags presented to the PC/SC readers.
type Context struct {
	ctx    *scard.Context
	filter string
}

// EstablishContext opens a PC/SC context. When filter is not empty only
// readers whose name contains it are used.
func EstablishContext(filter string) (*Context, error) {
	ctx, err := scard.EstablishContext()
	if err != nil {
		return nil, fmt.Errorf("establish pc/sc context: %w", err)
	}

	return &Context{ctx: ctx, filter: filter}, nil
}

func (c *Context) Release() error {
	return c.ctx.Release()
}

// Tokens returns one Tag per reader holding a card. Readers without a card are skipped.
func (c *Context) Tokens(ctx context.Context) ([]balance.Token, error) {
	readers, err := c.ctx.ListReaders()
	if errors.Is(err, scard.ErrNoReadersAvailable) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("list readers: %w", err)
	}

	var tokens []balance.Token
	for _, reader := range readers {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		if c.filter != "" && !strings.Contains(reader, c.filter) {
			continue
		}

		tag, err := c.probe(reader)
		if errors.Is(err, scard.ErrNoSmartcard) || errors.Is(err, scard.ErrRemovedCard) {
			logger.Debug("no card in reader", "reader", reader)
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("reader %s: %w", reader, err)
		}

		logger.Debug("tag found", "reader", reader, "uid", tag.UID(), "type", tag.Type())
		tokens = append(tokens, tag)
	}

	return tokens, nil
}

func (c *Context) probe(reader string) (*Tag, error) {
	card, err := c.ctx.Connect(reader, scard.ShareShared, scard.ProtocolAny)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := card.Disconnect(scard.LeaveCard); err != nil {
			logger.Debug("error disconnecting card", "reader", reader, "error", err)
		}
	}()

	status, err := card.Status()
	if err != nil {
		return nil, fmt.Errorf("card status: %w", err)
	}

	uid, err := NewCommandSet(NewNormalChannel(card)).GetUID()
	if err != nil {
		return nil, fmt.Errorf("get uid: %w", err)
	}

	dial := func() (Card, error) {
		return c.ctx.Connect(reader, scard.ShareShared, scard.ProtocolAny)
	}

	return NewTag(hex.EncodeToString(uid), TagTypeFromATR(status.Atr), dial), nil
}

// TagTypeFromATR reads the card name of a PC/SC part 3 storage card ATR.
func TagTypeFromATR(atr []byte) types.TagType {
	i := bytes.Index(atr, rid)
	if i < 0 || len(atr) < i+len(rid)+3 {
		return types.TagUnknown
	}

	// the RID is followed by the card standard byte and the 2 bytes card name
	name := atr[i+len(rid)+1 : i+len(rid)+3]
	switch {
	case name[0] == 0x00 && name[1] == 0x01:
		return types.TagClassic1K
	case name[0] == 0x00 && name[1] == 0x02:
		return types.TagClassic4K
	default:
		return types.TagUnknown
	}
}

// Tag is a MIFARE Classic tag reached through a PC/SC reader.
type Tag struct {
	uid     string
	tagType types.TagType
	dial    DialFunc

	card Card
	cs   *CommandSet
}

func NewTag(uid string, tagType types.TagType, dial DialFunc) *Tag {
	return &Tag{
		uid:     uid,
		tagType: tagType,
		dial:    dial,
	}
}

func (t *Tag) UID() string {
	return t.uid
}

func (t *Tag) Type() types.TagType {
	return t.tagType
}

func (t *Tag) Connect() error {
	if t.card != nil {
		return nil
	}

	card, err := t.dial()
	if err != nil {
		return fmt.Errorf("connect %s: %w", t.uid, err)
	}

	t.card = card
	t.cs = NewCommandSet(NewNormalChannel(card))

	return nil
}

// Disconnect resets the card, dropping any authenticated session.
func (t *Tag) Disconnect() error {
	if t.card == nil {
		return nil
	}

	card := t.card
	t.card = nil
	t.cs = nil

	return card.Disconnect(scard.ResetCard)
}

func (t *Tag) Authenticate(block types.Block, key types.Key, keyType types.KeyType) error {
	if t.cs == nil {
		return ErrNotConnected
	}

	if err := t.cs.LoadKey(VolatileKeySlot, key); err != nil {
		return err
	}

	return t.cs.Authenticate(block, keyType, VolatileKeySlot)
}

func (t *Tag) ReadBlock(block types.Block) ([]byte, error) {
	if t.cs == nil {
		return nil, ErrNotConnected
	}

	return t.cs.ReadBinary(block)
}

func (t *Tag) WriteBlock(block types.Block, data []byte) error {
	if t.cs == nil {
		return ErrNotConnected
	}

	return t.cs.UpdateBinary(block, data)
}
