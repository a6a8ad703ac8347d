package types

import (
	"errors"
	"fmt"
)

// ErrTruncated is returned when a buffer ends before the structure it encodes.
var ErrTruncated = errors.New("truncated data")

// ErrTLVTooLong is returned when a value exceeds the 3-byte length format.
var ErrTLVTooLong = errors.New("tlv value longer than 0xfffe bytes")

type TLVType uint8

const (
	TLVNull        TLVType = 0x00
	TLVNDEFMessage TLVType = 0x03
	TLVProprietary TLVType = 0xFD
	TLVTerminator  TLVType = 0xFE

	tlvExtendedLength = 0xFF
	tlvMaxLength      = 0xFFFE
)

func (t TLVType) String() string {
	switch t {
	case TLVNull:
		return "NULL TLV"
	case TLVNDEFMessage:
		return "NDEF Message TLV"
	case TLVProprietary:
		return "Proprietary TLV"
	case TLVTerminator:
		return "Terminator TLV"
	default:
		return fmt.Sprintf("invalid TLV 0x%02x", uint8(t))
	}
}

// TLV is a tag-length-value block of an NFC Forum application.
type TLV struct {
	Type  TLVType
	Value []byte
}

// ParseTLV decodes the first TLV block of data. Null and Terminator blocks carry no length.
// The length is one byte, or 0xFF followed by a 2 bytes big endian length.
func ParseTLV(data []byte) (*TLV, error) {
	if len(data) == 0 {
		return nil, ErrTruncated
	}

	t := &TLV{Type: TLVType(data[0])}
	if t.Type == TLVNull || t.Type == TLVTerminator {
		return t, nil
	}

	if len(data) < 2 {
		return nil, ErrTruncated
	}

	length := int(data[1])
	offset := 2
	if length == tlvExtendedLength {
		if len(data) < 4 {
			return nil, ErrTruncated
		}

		length = int(data[2])<<8 | int(data[3])
		offset = 4
	}

	if len(data) < offset+length {
		return nil, fmt.Errorf("%w: tlv length %d, %d bytes available", ErrTruncated, length, len(data)-offset)
	}

	t.Value = make([]byte, length)
	copy(t.Value, data[offset:offset+length])

	return t, nil
}

// Serialize encodes the block, using the 3-byte length format from 0xFF bytes up.
func (t *TLV) Serialize() ([]byte, error) {
	if t.Type == TLVNull || t.Type == TLVTerminator {
		return []byte{byte(t.Type)}, nil
	}

	if len(t.Value) > tlvMaxLength {
		return nil, ErrTLVTooLong
	}

	data := make([]byte, 0, 4+len(t.Value))
	data = append(data, byte(t.Type))
	if len(t.Value) < tlvExtendedLength {
		data = append(data, byte(len(t.Value)))
	} else {
		data = append(data, tlvExtendedLength, byte(len(t.Value)>>8), byte(len(t.Value)))
	}

	return append(data, t.Value...), nil
}

// NDEFMessageStream returns an NDEF Message TLV wrapping value followed by a Terminator TLV.
func NDEFMessageStream(value []byte) ([]byte, error) {
	msg := &TLV{Type: TLVNDEFMessage, Value: value}
	data, err := msg.Serialize()
	if err != nil {
		return nil, err
	}

	return append(data, byte(TLVTerminator)), nil
}
