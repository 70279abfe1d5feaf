// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package pace implements the ASCII-hex framed request/response protocol spoken
// by PACE-style battery management systems.
//
// A frame is laid out as
//
//	SOI VER ADR CID1 CID2|RTN LCHKSUM LENID INFO CHKSUM EOI
//
// where every field between SOI and EOI is uppercase ASCII hex. The package
// provides request encoding, response validation and INFO extraction, and the
// decoders that turn INFO payloads into typed pack records. It performs no I/O.
package pace

// Protocol framing bytes
const (
	SOI = 0x7E
	EOI = 0x0D
)

// Field offsets within a response frame (in ASCII characters)
const (
	offsetVER     = 1
	offsetADR     = 3
	offsetCID1    = 5
	offsetRTN     = 7
	offsetLCHKSUM = 9
	offsetLENID   = 10
	offsetINFO    = 13

	lenidSize  = 3
	chksumSize = 4

	// CHKSUM (4) + EOI (1)
	trailerSize = chksumSize + 1

	// MaxInfoLength is the largest INFO length a 3-digit LENID can describe
	MaxInfoLength = 0xFFF
)

// Default header values
const (
	DefaultVersion = "25"
	DefaultAddress = "01"
	CID1Battery    = "46"
)

// Command codes (CID2)
const (
	CID2PackNumber      = "90"
	CID2PackAnalogData  = "42"
	CID2SoftwareVersion = "C1"
	CID2SerialNumber    = "C2"
	CID2PackCapacity    = "A6"
	CID2WarnInfo        = "44"
)

// InfoAllPacks selects every pack on the bus for analog and warning requests.
const InfoAllPacks = "FF"

// AllPacks is the PackAnalogData selector for every pack
const AllPacks uint8 = 0xFF

// Return codes (RTN)
const (
	RTNOk               = "00"
	RTNUndefined        = "01"
	RTNChecksumError    = "02"
	RTNLengthChecksum   = "03"
	RTNCID2Undefined    = "04"
	RTNUndefinedError05 = "05"
	RTNUndefinedError06 = "06"
	RTNOperationOrWrite = "09"
)

// Analog decoding constants
const (
	kelvinOffset   = 2730 // deci-Kelvin at 0 °C
	currentSignBit = 32768
	currentWrap    = 65536
)
