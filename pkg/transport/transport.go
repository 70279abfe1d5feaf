// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package transport provides the half-duplex byte links a BMS is reached
// over: a local serial port, a raw TCP socket to a serial server, or a
// WebSocket serial bridge.
//
// Every I/O failure is returned as *Error so callers can tell link failures
// apart from protocol failures in the bytes that were received.
package transport

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// Transport is a connected request/response byte link
type Transport interface {
	// Connect opens the link. Calling Connect on an open link reopens it.
	Connect(ctx context.Context) error
	// Send writes one request frame and waits for the settle delay
	Send(ctx context.Context, frame []byte) error
	// Receive returns one response frame, including its terminator
	Receive(ctx context.Context) ([]byte, error)
	Close() error
	// String describes the link for logs, e.g. "Serial: /dev/ttyUSB0 @ 9600 baud"
	String() string
}

// Sentinel causes, matchable with errors.Is
var (
	ErrNotConnected = errors.New("not connected")
	ErrNoData       = errors.New("no data received")
)

// Error is a connect, send or receive failure on a link
type Error struct {
	Op   string // "connect", "send" or "receive"
	Addr string
	Err  error
}

// Error implements the error interface
func (e *Error) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Addr, e.Err)
}

// Unwrap returns the underlying cause
func (e *Error) Unwrap() error {
	return e.Err
}

// IsTransportError reports whether err is a link failure
func IsTransportError(err error) bool {
	var te *Error
	return errors.As(err, &te)
}

// Default timings
const (
	DefaultSettleDelay       = 250 * time.Millisecond
	DefaultSerialReadTimeout = 1 * time.Second
	DefaultSocketTimeout     = 2 * time.Second
	DefaultBaudRate          = 9600

	// maxFrameSize bounds a single receive
	maxFrameSize = 4096
)

// Options tune a transport. The zero value is completed by withDefaults.
type Options struct {
	// SettleDelay is waited after every send before a response is read.
	// Negative disables it.
	SettleDelay time.Duration
	ReadTimeout time.Duration
	DialTimeout time.Duration

	// DebugLevel enables multi-frame diagnostics at 1 and above
	DebugLevel int
	Logger     *zap.Logger
}

func (o Options) withDefaults(readTimeout time.Duration) Options {
	if o.SettleDelay == 0 {
		o.SettleDelay = DefaultSettleDelay
	}
	if o.ReadTimeout <= 0 {
		o.ReadTimeout = readTimeout
	}
	if o.DialTimeout <= 0 {
		o.DialTimeout = DefaultSocketTimeout
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	return o
}

// settle waits for the settle delay or until ctx is done
func settle(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
