// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package pace

import (
	"errors"
	"fmt"
)

// ErrorKind classifies request-scoped protocol failures
type ErrorKind int

const (
	// KindFraming indicates a frame that does not start with SOI or is too short to parse
	KindFraming ErrorKind = iota
	// KindChecksum indicates an LCHKSUM or CHKSUM mismatch
	KindChecksum
	// KindProtocol indicates the BMS answered with an error RTN
	KindProtocol
	// KindDecode indicates an INFO payload that could not be interpreted
	KindDecode
)

// String returns a human-readable name for the error kind
func (k ErrorKind) String() string {
	switch k {
	case KindFraming:
		return "framing"
	case KindChecksum:
		return "checksum"
	case KindProtocol:
		return "protocol"
	case KindDecode:
		return "decode"
	default:
		return fmt.Sprintf("ErrorKind(%d)", int(k))
	}
}

// Sentinel causes, matchable with errors.Is
var (
	ErrEmptyInput     = errors.New("empty input")
	ErrBadSOI         = errors.New("bad SOI")
	ErrLengthChecksum = errors.New("LCHKSUM mismatch")
	ErrChecksum       = errors.New("CHKSUM mismatch")
	ErrShortFrame     = errors.New("frame too short")
	ErrRTN            = errors.New("RTN error")
	ErrOverrun        = errors.New("offset overrun")
	ErrInvalidHex     = errors.New("malformed hex")
	ErrDivideByZero   = errors.New("division by zero")
	ErrCellCount      = errors.New("cell count mismatch")
	ErrShortPayload   = errors.New("payload too short")
	ErrUnknownCommand = errors.New("unknown command")
)

// Error is the request-scoped failure returned by every codec and decoder function
type Error struct {
	Kind   ErrorKind
	Field  string // offending field for decode errors
	Detail string
	Err    error
}

// Error implements the error interface
func (e *Error) Error() string {
	msg := e.Kind.String() + " error"
	if e.Field != "" {
		msg += " in " + e.Field
	}
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	if e.Err != nil && (e.Detail == "" || e.Detail != e.Err.Error()) {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying cause
func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf reports the kind of a pace error anywhere in err's chain
func KindOf(err error) (ErrorKind, bool) {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind, true
	}
	return 0, false
}

func framingError(cause error, detail string) *Error {
	return &Error{Kind: KindFraming, Detail: detail, Err: cause}
}

func checksumError(cause error, detail string) *Error {
	return &Error{Kind: KindChecksum, Detail: detail, Err: cause}
}

func decodeError(field string, cause error, detail string) *Error {
	return &Error{Kind: KindDecode, Field: field, Detail: detail, Err: cause}
}
