package pace

import (
	"fmt"
	"strings"
)

// EncodeRequest builds the wire frame for a command:
// SOI VER ADR CID1 CID2 LCHKSUM LENID INFO CHKSUM EOI.
func EncodeRequest(cmd Command) ([]byte, error) {
	if len(cmd.Info) > MaxInfoLength {
		return nil, fmt.Errorf("INFO too large: %d characters (max %d)", len(cmd.Info), MaxInfoLength)
	}

	lenid := cmd.LenID
	if lenid == "" {
		lenid = fmt.Sprintf("%03X", len(cmd.Info))
	}

	// LCHKSUM is fixed at '0' for an empty INFO
	lchksum := byte('0')
	if lenid != "000" {
		var err error
		lchksum, err = CalcLengthChecksum([]byte(lenid))
		if err != nil {
			return nil, fmt.Errorf("failed to calculate LCHKSUM: %w", err)
		}
	}

	var b strings.Builder
	b.Grow(offsetINFO + len(cmd.Info) + trailerSize)
	b.WriteByte(SOI)
	b.WriteString(cmd.Ver)
	b.WriteString(cmd.Adr)
	b.WriteString(cmd.CID1)
	b.WriteString(cmd.CID2)
	b.WriteByte(lchksum)
	b.WriteString(lenid)
	b.WriteString(cmd.Info)

	frame := []byte(b.String())

	chksum, err := CalcChecksum(frame)
	if err != nil {
		return nil, fmt.Errorf("failed to calculate CHKSUM: %w", err)
	}

	frame = append(frame, chksum...)
	frame = append(frame, EOI)
	return frame, nil
}

// MustEncodeRequest encodes a command and panics on error.
// Intended for fixed command tables and tests.
func MustEncodeRequest(cmd Command) []byte {
	frame, err := EncodeRequest(cmd)
	if err != nil {
		panic(fmt.Sprintf("pace: encode error: %v", err))
	}
	return frame
}
