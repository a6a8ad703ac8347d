package apdu

import (
	"encoding/binary"
	"errors"
	"fmt"
)

const (
	SwOK                          = 0x9000
	SwNoInformation               = 0x6300
	SwWrongLength                 = 0x6700
	SwSecurityStatusNotSatisfied  = 0x6982
	SwAuthenticationMethodBlocked = 0x6983
	SwKeyNotFound                 = 0x6988
	SwFunctionNotSupported        = 0x6A81
	SwWrongP1P2                   = 0x6B00
)

// ErrBadRawResponse is returned when a raw response is shorter than the status word.
var ErrBadRawResponse = errors.New("response data must be at least 2 bytes")

// ErrBadResponse defines an error containing the returned Sw and a description.
type ErrBadResponse struct {
	message string
	Sw      uint16
}

// NewErrBadResponse returns a ErrBadResponse with the specified sw and message values.
func NewErrBadResponse(sw uint16, message string) *ErrBadResponse {
	return &ErrBadResponse{
		message: message,
		Sw:      sw,
	}
}

// Error implements the error interface.
func (e *ErrBadResponse) Error() string {
	return fmt.Sprintf("bad response %x: %s", e.Sw, e.message)
}

// Response represents a struct containing the response Data and the status word.
type Response struct {
	Data []byte
	Sw   uint16
}

// ParseResponse parses a raw response and returns a Response.
func ParseResponse(data []byte) (*Response, error) {
	if len(data) < 2 {
		return nil, ErrBadRawResponse
	}

	swIndex := len(data) - 2
	sw := binary.BigEndian.Uint16(data[swIndex:])

	return &Response{
		Data: data[:swIndex],
		Sw:   sw,
	}, nil
}

// IsOK returns true if the response Sw is 0x9000.
func (r *Response) IsOK() bool {
	return r.Sw == SwOK
}
