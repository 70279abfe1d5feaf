// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package pace

import "time"

// Command identifies one request type. All fields are ASCII hex text.
type Command struct {
	Name string // human-readable label, not sent on the wire
	Ver  string
	Adr  string
	CID1 string
	CID2 string
	Info string

	// LenID overrides the computed 3-digit LENID when non-empty
	LenID string
}

// Response is a validated response frame
type Response struct {
	Ver       string
	Adr       string
	CID1      string
	RTN       string
	LenID     int
	Info      []byte
	Checksum  string
	Timestamp time.Time
}

// RTNKnown reports whether the RTN is one of the codes in the protocol table.
// Unknown codes are accepted as success; callers may want to log them.
func (r *Response) RTNKnown() bool {
	_, ok := rtnMessages[r.RTN]
	return ok || r.RTN == RTNOk
}

var rtnMessages = map[string]string{
	RTNUndefined:        "RTN Error 01: Undefined RTN error",
	RTNChecksumError:    "RTN Error 02: CHKSUM error",
	RTNLengthChecksum:   "RTN Error 03: LCHKSUM error",
	RTNCID2Undefined:    "RTN Error 04: CID2 undefined",
	RTNUndefinedError05: "RTN Error 05: Undefined error",
	RTNUndefinedError06: "RTN Error 06: Undefined error",
	RTNOperationOrWrite: "RTN Error 09: Operation or write error",
}

// RTNError returns the protocol error for an RTN code, or nil when the code
// signals success or is not in the table.
func RTNError(rtn string) error {
	msg, ok := rtnMessages[rtn]
	if !ok {
		return nil
	}
	return &Error{Kind: KindProtocol, Field: "RTN", Detail: msg, Err: ErrRTN}
}
