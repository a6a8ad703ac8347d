package types

import "errors"

// BlockSize is the size in bytes of a MIFARE Classic block.
const BlockSize = 16

// ErrAuthRejected is returned by token transports when the card refuses a key.
// Any other transport error is an I/O failure.
var ErrAuthRejected = errors.New("authentication rejected")
