// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package pace

import (
	"fmt"
	"time"
)

// DecodeResponse validates a raw response frame and extracts its INFO field.
//
// A frame is accepted only if SOI, RTN, LCHKSUM and CHKSUM all validate.
// RTN codes outside the protocol table are treated as success; see
// Response.RTNKnown.
func DecodeResponse(raw []byte) (*Response, error) {
	if len(raw) == 0 || raw[0] != SOI {
		return nil, framingError(ErrBadSOI, "bad SOI")
	}
	if len(raw) < offsetINFO {
		return nil, framingError(ErrShortFrame, fmt.Sprintf("%d bytes, header needs %d", len(raw), offsetINFO))
	}

	resp := &Response{
		Ver:       string(raw[offsetVER:offsetADR]),
		Adr:       string(raw[offsetADR:offsetCID1]),
		CID1:      string(raw[offsetCID1:offsetRTN]),
		RTN:       string(raw[offsetRTN:offsetLCHKSUM]),
		Timestamp: time.Now(),
	}

	if err := RTNError(resp.RTN); err != nil {
		return nil, err
	}

	lenidChars := raw[offsetLENID : offsetLENID+lenidSize]
	lenid, err := parseHex(lenidChars)
	if err != nil {
		return nil, framingError(ErrInvalidHex, fmt.Sprintf("LENID %q", lenidChars))
	}
	resp.LenID = lenid

	// LCHKSUM is compared as a raw character against the computed digit
	calcLCHKSUM, err := CalcLengthChecksum(lenidChars)
	if err != nil {
		return nil, err
	}
	if raw[offsetLCHKSUM] != calcLCHKSUM {
		return nil, checksumError(ErrLengthChecksum,
			fmt.Sprintf("LCHKSUM received %q does not match calculated %q", raw[offsetLCHKSUM], calcLCHKSUM))
	}

	infoEnd := offsetINFO + lenid
	if infoEnd+chksumSize > len(raw) {
		return nil, framingError(ErrShortFrame,
			fmt.Sprintf("LENID %d needs %d bytes, got %d", lenid, infoEnd+trailerSize, len(raw)))
	}

	resp.Info = append([]byte(nil), raw[offsetINFO:infoEnd]...)
	resp.Checksum = string(raw[infoEnd : infoEnd+chksumSize])

	calcCHKSUM, err := CalcChecksum(raw[:len(raw)-trailerSize])
	if err != nil {
		return nil, err
	}
	if resp.Checksum != calcCHKSUM {
		return nil, checksumError(ErrChecksum,
			fmt.Sprintf("received %s, calculated %s", resp.Checksum, calcCHKSUM))
	}

	return resp, nil
}

// parseHex parses ASCII hex characters into an integer
func parseHex(chars []byte) (int, error) {
	if len(chars) == 0 {
		return 0, ErrInvalidHex
	}
	v := 0
	for _, c := range chars {
		d, ok := hexDigit(c)
		if !ok {
			return 0, ErrInvalidHex
		}
		v = v<<4 | d
	}
	return v, nil
}

// DecodeInfo decodes an INFO payload according to the CID2 of the request
// that produced it
func DecodeInfo(cid2 string, info []byte) (Record, error) {
	switch cid2 {
	case CID2PackNumber:
		return DecodePackNumber(info)
	case CID2PackAnalogData:
		return DecodeAnalog(info)
	case CID2SoftwareVersion:
		return DecodeVersion(info)
	case CID2SerialNumber:
		return DecodeSerials(info)
	case CID2PackCapacity:
		return DecodeCapacity(info)
	case CID2WarnInfo:
		return DecodeWarnings(info)
	default:
		return nil, decodeError("CID2", ErrUnknownCommand, cid2)
	}
}
