// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package pace

import "fmt"

// CalcChecksum computes the frame CHKSUM: the 16-bit ones'-complement-plus-one
// of the sum of every byte from index 1 onward. Index 0 (SOI) is never counted.
// The result is uppercase hex with no fixed width, so a zero sum yields "10000".
func CalcChecksum(data []byte) (string, error) {
	if len(data) == 0 {
		return "", checksumError(ErrEmptyInput, "cannot compute CHKSUM")
	}

	var sum uint32
	for _, b := range data[1:] {
		sum += uint32(b)
	}
	sum %= 65536

	complement := ^uint16(sum)
	return fmt.Sprintf("%X", uint32(complement)+1), nil
}

// CalcLengthChecksum computes the LCHKSUM digit for the given LENID characters:
// the 4-bit ones'-complement-plus-one of the digit sum, wrapped to 0 above 15.
func CalcLengthChecksum(lenid []byte) (byte, error) {
	if len(lenid) == 0 {
		return 0, checksumError(ErrEmptyInput, "cannot compute LCHKSUM")
	}

	sum := 0
	for _, c := range lenid {
		v, ok := hexDigit(c)
		if !ok {
			return 0, checksumError(ErrInvalidHex, fmt.Sprintf("LENID character %q", c))
		}
		sum += v
	}
	sum %= 16

	lchksum := int(^uint8(sum)&0x0F) + 1
	if lchksum > 15 {
		lchksum = 0
	}
	return hexUpper[lchksum], nil
}

const hexUpper = "0123456789ABCDEF"

func hexDigit(c byte) (int, bool) {
	switch {
	case c >= '0' && c <= '9':
		return int(c - '0'), true
	case c >= 'A' && c <= 'F':
		return int(c-'A') + 10, true
	case c >= 'a' && c <= 'f':
		return int(c-'a') + 10, true
	}
	return 0, false
}
