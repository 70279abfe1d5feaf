// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package pace

import (
	"errors"
	"strings"
	"testing"
)

// ============================================================
// Test Helpers
// ============================================================

// buildResponse creates a valid response frame carrying info with the given RTN
func buildResponse(t *testing.T, rtn, info string) []byte {
	t.Helper()
	frame, err := EncodeRequest(Command{Ver: "25", Adr: "01", CID1: CID1Battery, CID2: rtn, Info: info})
	if err != nil {
		t.Fatalf("EncodeRequest: %v", err)
	}
	return frame
}

// ============================================================
// Checksum Tests
// ============================================================

func TestCalcChecksum_KnownValues(t *testing.T) {
	tests := []struct {
		name     string
		data     string
		expected string
	}{
		{name: "reference buffer", data: "2530314336", expected: "FE34"},
		{name: "pylontech request prefix", data: "~20024642E00202", expected: "FD33"},
		{name: "analog request", data: "~25014642E002FF", expected: "FD05"},
		{name: "pack number request", data: "~250146900000", expected: "FDA5"},
		{name: "only SOI counted as excluded", data: "~", expected: "10000"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := CalcChecksum([]byte(tt.data))
			if err != nil {
				t.Fatalf("CalcChecksum error: %v", err)
			}
			if got != tt.expected {
				t.Errorf("CHKSUM mismatch: expected %s, got %s", tt.expected, got)
			}
		})
	}
}

func TestCalcChecksum_Empty(t *testing.T) {
	_, err := CalcChecksum(nil)
	if err == nil {
		t.Fatal("Expected error for empty input")
	}
	if !errors.Is(err, ErrEmptyInput) {
		t.Errorf("Expected ErrEmptyInput, got %v", err)
	}
}

func TestCalcChecksum_Deterministic(t *testing.T) {
	data := []byte("~25014642E002FF")
	a, _ := CalcChecksum(data)
	b, _ := CalcChecksum(data)
	if a != b {
		t.Errorf("CHKSUM should be deterministic: %s != %s", a, b)
	}
}

func TestCalcLengthChecksum(t *testing.T) {
	tests := []struct {
		lenid    string
		expected byte
	}{
		{"002", 'E'},
		{"010", 'F'},
		{"FFF", '3'},
		{"02E", '0'}, // digit sum 16, wraps
		{"000", '0'}, // digit sum 0, wraps
		{"00F", '1'}, // digit sum 15
	}

	for _, tt := range tests {
		t.Run(tt.lenid, func(t *testing.T) {
			got, err := CalcLengthChecksum([]byte(tt.lenid))
			if err != nil {
				t.Fatalf("CalcLengthChecksum error: %v", err)
			}
			if got != tt.expected {
				t.Errorf("LCHKSUM mismatch for %s: expected %c, got %c", tt.lenid, tt.expected, got)
			}
		})
	}
}

func TestCalcLengthChecksum_InvalidHex(t *testing.T) {
	if _, err := CalcLengthChecksum([]byte("0G2")); err == nil {
		t.Error("Expected error for non-hex LENID")
	}
	if _, err := CalcLengthChecksum(nil); err == nil {
		t.Error("Expected error for empty LENID")
	}
}

// ============================================================
// Encoder Tests
// ============================================================

func TestEncodeRequest_KnownFrames(t *testing.T) {
	tests := []struct {
		name     string
		cmd      Command
		expected string
	}{
		{name: "analog all packs", cmd: DefaultHeader.PackAnalogData(0xFF), expected: "~25014642E002FFFD05\r"},
		{name: "pack number", cmd: DefaultHeader.PackNumber(), expected: "~250146900000FDA5\r"},
		{
			name:     "pylontech header",
			cmd:      Command{Ver: "20", Adr: "02", CID1: "46", CID2: "42", Info: "02"},
			expected: "~20024642E00202FD33\r",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			frame, err := EncodeRequest(tt.cmd)
			if err != nil {
				t.Fatalf("EncodeRequest error: %v", err)
			}
			if string(frame) != tt.expected {
				t.Errorf("Frame mismatch:\nexpected %q\ngot      %q", tt.expected, frame)
			}
		})
	}
}

func TestEncodeRequest_LenIDOverride(t *testing.T) {
	cmd := DefaultHeader.PackCapacity()
	cmd.LenID = "002"
	frame, err := EncodeRequest(cmd)
	if err != nil {
		t.Fatalf("EncodeRequest error: %v", err)
	}
	if got := string(frame[offsetLCHKSUM:offsetINFO]); got != "E002" {
		t.Errorf("Expected length field E002, got %s", got)
	}
}

func TestEncodeRequest_InfoTooLarge(t *testing.T) {
	cmd := DefaultHeader.PackNumber()
	cmd.Info = strings.Repeat("0", MaxInfoLength+1)
	if _, err := EncodeRequest(cmd); err == nil {
		t.Error("Expected error for oversized INFO")
	}
}

func TestMustEncodeRequest_Panic(t *testing.T) {
	defer func() {
		if r := recover(); r == nil {
			t.Error("Expected panic for oversized INFO")
		}
	}()
	MustEncodeRequest(Command{Info: strings.Repeat("0", MaxInfoLength+1)})
}

func TestHeader_Defaults(t *testing.T) {
	cmd := Header{}.WarnInfo()
	if cmd.Ver != DefaultVersion || cmd.Adr != DefaultAddress {
		t.Errorf("Expected default VER/ADR, got %s/%s", cmd.Ver, cmd.Adr)
	}
	if cmd.CID2 != CID2WarnInfo || cmd.Info != InfoAllPacks {
		t.Errorf("Unexpected WarnInfo command %+v", cmd)
	}

	cmd = Header{Ver: "20", Adr: "02"}.PackAnalogData(1)
	if cmd.Ver != "20" || cmd.Adr != "02" || cmd.Info != "01" {
		t.Errorf("Header override not applied: %+v", cmd)
	}
}

// ============================================================
// Decoder Tests
// ============================================================

func TestDecodeResponse_RoundTrip(t *testing.T) {
	infos := []string{
		"",
		"FF",
		"0001020E740E88010BA400641D4C000A03001400010019",
		strings.Repeat("AB", 499) + "C",
	}

	for _, info := range infos {
		frame := buildResponse(t, RTNOk, info)
		resp, err := DecodeResponse(frame)
		if err != nil {
			t.Fatalf("DecodeResponse(%q) error: %v", frame, err)
		}
		if string(resp.Info) != info {
			t.Errorf("INFO mismatch: expected %q, got %q", info, resp.Info)
		}
		if resp.LenID != len(info) {
			t.Errorf("LENID mismatch: expected %d, got %d", len(info), resp.LenID)
		}
		if !resp.RTNKnown() {
			t.Error("RTN 00 should be known")
		}
	}
}

func TestDecodeResponse_Header(t *testing.T) {
	resp, err := DecodeResponse([]byte("~20024642E00202FD33\r"))
	if err != nil {
		t.Fatalf("DecodeResponse error: %v", err)
	}
	if resp.Ver != "20" || resp.Adr != "02" || resp.CID1 != "46" || resp.RTN != "42" {
		t.Errorf("Unexpected header %+v", resp)
	}
	if string(resp.Info) != "02" || resp.Checksum != "FD33" {
		t.Errorf("Unexpected INFO/CHKSUM %q/%s", resp.Info, resp.Checksum)
	}
}

func TestDecodeResponse_BadSOI(t *testing.T) {
	frame := buildResponse(t, RTNOk, "FF")
	frame[0] = '!'
	_, err := DecodeResponse(frame)
	if kind, ok := KindOf(err); !ok || kind != KindFraming {
		t.Errorf("Expected framing error, got %v", err)
	}
	if !errors.Is(err, ErrBadSOI) {
		t.Errorf("Expected ErrBadSOI, got %v", err)
	}
}

func TestDecodeResponse_Empty(t *testing.T) {
	_, err := DecodeResponse(nil)
	if kind, ok := KindOf(err); !ok || kind != KindFraming {
		t.Errorf("Expected framing error, got %v", err)
	}
}

func TestDecodeResponse_ChecksumFlip(t *testing.T) {
	frame := buildResponse(t, RTNOk, "0001020E740E88010BA400641D4C000A03001400010019")
	chkStart := len(frame) - trailerSize

	for i := chkStart; i < chkStart+chksumSize; i++ {
		corrupt := append([]byte(nil), frame...)
		if corrupt[i] == '0' {
			corrupt[i] = '1'
		} else {
			corrupt[i] = '0'
		}
		_, err := DecodeResponse(corrupt)
		if kind, ok := KindOf(err); !ok || kind != KindChecksum {
			t.Errorf("Flipping CHKSUM byte %d: expected checksum error, got %v", i, err)
		}
		if !errors.Is(err, ErrChecksum) {
			t.Errorf("Flipping CHKSUM byte %d: expected ErrChecksum, got %v", i, err)
		}
	}
}

func TestDecodeResponse_LengthChecksumMismatch(t *testing.T) {
	frame := buildResponse(t, RTNOk, "FF")
	frame[offsetLCHKSUM] = '7'
	_, err := DecodeResponse(frame)
	if !errors.Is(err, ErrLengthChecksum) {
		t.Errorf("Expected ErrLengthChecksum, got %v", err)
	}
}

func TestDecodeResponse_RTNErrors(t *testing.T) {
	for rtn, msg := range rtnMessages {
		t.Run(rtn, func(t *testing.T) {
			_, err := DecodeResponse(buildResponse(t, rtn, ""))
			if kind, ok := KindOf(err); !ok || kind != KindProtocol {
				t.Fatalf("Expected protocol error, got %v", err)
			}
			if !strings.Contains(err.Error(), msg) {
				t.Errorf("Expected %q in %q", msg, err.Error())
			}
		})
	}
}

func TestDecodeResponse_UnknownRTN(t *testing.T) {
	resp, err := DecodeResponse(buildResponse(t, "07", "FF"))
	if err != nil {
		t.Fatalf("Unknown RTN should not fail decode: %v", err)
	}
	if resp.RTNKnown() {
		t.Error("RTN 07 should be reported as unknown")
	}
}

func TestDecodeResponse_Truncated(t *testing.T) {
	frame := buildResponse(t, RTNOk, "0001020E740E88")
	for n := 1; n < len(frame); n++ {
		if _, err := DecodeResponse(frame[:n]); err == nil {
			t.Errorf("Expected error for frame truncated to %d bytes", n)
		}
	}
}

func TestDecodeResponse_BadLenID(t *testing.T) {
	frame := []byte("~250146000ZZZ0000\r")
	_, err := DecodeResponse(frame)
	if kind, ok := KindOf(err); !ok || kind != KindFraming {
		t.Errorf("Expected framing error, got %v", err)
	}
}

// ============================================================
// Formatter Tests
// ============================================================

func TestFormatFrame(t *testing.T) {
	out := FormatFrame([]byte("~25014642E002FFFD05\r"))
	for _, want := range []string{"VER:", "25", "PACK_ANALOG_DATA", "LENID:   002 (2)", "INFO:", "FF", "CHKSUM:", "FD05", `\r`} {
		if !strings.Contains(out, want) {
			t.Errorf("Expected %q in formatted frame:\n%s", want, out)
		}
	}
}

func TestFormatFrame_Short(t *testing.T) {
	// Must not panic on any prefix
	frame := []byte("~25014642E002FFFD05\r")
	for n := 0; n <= len(frame); n++ {
		_ = FormatFrame(frame[:n])
	}
}

func TestCommandName(t *testing.T) {
	if CommandName(CID2WarnInfo) != "WARN_INFO" {
		t.Errorf("Unexpected name %s", CommandName(CID2WarnInfo))
	}
	if CommandName("ZZ") != "UNKNOWN" {
		t.Errorf("Unexpected name for unknown CID2")
	}
}
