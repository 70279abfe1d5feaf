// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package pace

import "fmt"

// fieldReader walks an INFO payload one fixed-width hex field at a time.
// Every read names its field so a failure points at what was being decoded.
type fieldReader struct {
	info []byte
	pos  int
}

func newFieldReader(info []byte, start int) *fieldReader {
	return &fieldReader{info: info, pos: start}
}

// read consumes width characters and parses them as hex
func (r *fieldReader) read(field string, width int) (int, error) {
	if r.pos+width > len(r.info) {
		return 0, decodeError(field, ErrOverrun,
			fmt.Sprintf("need %d characters at offset %d, %d left", width, r.pos, r.left()))
	}
	chars := r.info[r.pos : r.pos+width]
	v, err := parseHex(chars)
	if err != nil {
		return 0, decodeError(field, ErrInvalidHex, fmt.Sprintf("%q at offset %d", chars, r.pos))
	}
	r.pos += width
	return v, nil
}

func (r *fieldReader) u8(field string) (int, error) {
	return r.read(field, 2)
}

func (r *fieldReader) u16(field string) (int, error) {
	return r.read(field, 4)
}

// peekByte parses the next (up to) two characters without consuming them.
// ok is false when nothing parseable is left.
func (r *fieldReader) peekByte() (int, bool) {
	if r.pos >= len(r.info) {
		return 0, false
	}
	end := min(r.pos+2, len(r.info))
	v, err := parseHex(r.info[r.pos:end])
	if err != nil {
		return 0, false
	}
	return v, true
}

// skip advances past filler bytes. Skipping past the end is not an error;
// the next read reports the overrun.
func (r *fieldReader) skip(width int) {
	r.pos += width
}

func (r *fieldReader) more() bool {
	return r.pos < len(r.info)
}

func (r *fieldReader) left() int {
	if r.pos >= len(r.info) {
		return 0
	}
	return len(r.info) - r.pos
}
