// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package pace

import (
	"encoding/hex"
	"fmt"
	"strings"
)

// Serial number windows within a SerialNumber INFO payload (hex characters)
const (
	bmsSerialStart  = 0
	bmsSerialEnd    = 30
	packSerialStart = 40
	packSerialEnd   = 68
)

// DecodeVersion decodes a SoftwareVersion INFO payload into the version text
func DecodeVersion(info []byte) (Identity, error) {
	s, err := hexText(info, "software version")
	if err != nil {
		return Identity{}, err
	}
	return Identity{Version: s}, nil
}

// DecodeSerials decodes a SerialNumber INFO payload. Both serials have their
// space padding removed.
func DecodeSerials(info []byte) (Identity, error) {
	if len(info) < packSerialEnd {
		return Identity{}, decodeError("pack serial", ErrShortPayload,
			fmt.Sprintf("need %d characters, got %d", packSerialEnd, len(info)))
	}
	bms, err := hexText(info[bmsSerialStart:bmsSerialEnd], "bms serial")
	if err != nil {
		return Identity{}, err
	}
	pack, err := hexText(info[packSerialStart:packSerialEnd], "pack serial")
	if err != nil {
		return Identity{}, err
	}
	return Identity{
		BMSSerial:  strings.ReplaceAll(bms, " ", ""),
		PackSerial: strings.ReplaceAll(pack, " ", ""),
	}, nil
}

// DecodePackNumber decodes a PackNumber INFO payload
func DecodePackNumber(info []byte) (PackCount, error) {
	n, err := parseHex(info)
	if err != nil {
		return PackCount{}, decodeError("pack number", err, fmt.Sprintf("%q", info))
	}
	return PackCount{Packs: n}, nil
}

// hexText decodes hex-encoded ASCII text
func hexText(chars []byte, field string) (string, error) {
	b, err := hex.DecodeString(string(chars))
	if err != nil {
		return "", decodeError(field, ErrInvalidHex, err.Error())
	}
	return string(b), nil
}
