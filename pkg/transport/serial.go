// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package transport

import (
	"context"
	"fmt"
	"time"

	"go.bug.st/serial"
)

// serialPort is the subset of serial.Port used by Serial
type serialPort interface {
	Read(p []byte) (int, error)
	Write(p []byte) (int, error)
	ResetInputBuffer() error
	SetReadTimeout(t time.Duration) error
	Close() error
}

// Serial is a local serial port link (8N1)
type Serial struct {
	device string
	baud   int
	opts   Options

	port serialPort
	open func(device string, mode *serial.Mode) (serialPort, error)
}

// NewSerial creates a serial transport. The port is opened by Connect.
func NewSerial(device string, baud int, opts Options) *Serial {
	if baud <= 0 {
		baud = DefaultBaudRate
	}
	return &Serial{
		device: device,
		baud:   baud,
		opts:   opts.withDefaults(DefaultSerialReadTimeout),
		open: func(device string, mode *serial.Mode) (serialPort, error) {
			return serial.Open(device, mode)
		},
	}
}

// Connect opens the serial port
func (s *Serial) Connect(ctx context.Context) error {
	if s.port != nil {
		_ = s.port.Close()
		s.port = nil
	}
	if err := ctx.Err(); err != nil {
		return s.fail("connect", err)
	}

	mode := &serial.Mode{
		BaudRate: s.baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	port, err := s.open(s.device, mode)
	if err != nil {
		return s.fail("connect", fmt.Errorf("failed to open serial port: %w", err))
	}
	if err := port.SetReadTimeout(s.opts.ReadTimeout); err != nil {
		_ = port.Close()
		return s.fail("connect", fmt.Errorf("failed to set read timeout: %w", err))
	}
	s.port = port
	return nil
}

// Send discards stale input, writes the frame and waits for the settle delay
func (s *Serial) Send(ctx context.Context, frame []byte) error {
	if s.port == nil {
		return s.fail("send", ErrNotConnected)
	}
	if err := s.port.ResetInputBuffer(); err != nil {
		return s.fail("send", err)
	}
	if _, err := s.port.Write(frame); err != nil {
		return s.fail("send", err)
	}
	if err := settle(ctx, s.opts.SettleDelay); err != nil {
		return s.fail("send", err)
	}
	return nil
}

// Receive reads until CR or LF, or until a read times out. A timeout with
// nothing read is an error; a timeout after a partial line returns what
// arrived so frame validation can report it.
func (s *Serial) Receive(ctx context.Context) ([]byte, error) {
	if s.port == nil {
		return nil, s.fail("receive", ErrNotConnected)
	}

	var line []byte
	chunk := make([]byte, 64)
	for len(line) < maxFrameSize {
		if err := ctx.Err(); err != nil {
			return nil, s.fail("receive", err)
		}
		n, err := s.port.Read(chunk)
		if err != nil {
			return nil, s.fail("receive", err)
		}
		if n == 0 {
			break
		}
		for i, c := range chunk[:n] {
			if c == '\r' || c == '\n' {
				return append(line, chunk[:i+1]...), nil
			}
		}
		line = append(line, chunk[:n]...)
	}

	if len(line) == 0 {
		return nil, s.fail("receive", ErrNoData)
	}
	return line, nil
}

// Close closes the serial port
func (s *Serial) Close() error {
	if s.port == nil {
		return nil
	}
	err := s.port.Close()
	s.port = nil
	return err
}

func (s *Serial) String() string {
	return fmt.Sprintf("Serial: %s @ %d baud", s.device, s.baud)
}

func (s *Serial) fail(op string, err error) error {
	return &Error{Op: op, Addr: s.device, Err: err}
}
