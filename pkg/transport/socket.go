// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package transport

import (
	"context"
	"fmt"
	"net"
	"time"
)

// Socket is a raw TCP link to a serial server
type Socket struct {
	addr string
	opts Options
	sel  *frameSelector

	conn net.Conn
}

// NewSocket creates a TCP transport for host:port. The connection is made
// by Connect.
func NewSocket(host string, port int, opts Options) *Socket {
	opts = opts.withDefaults(DefaultSocketTimeout)
	return &Socket{
		addr: net.JoinHostPort(host, fmt.Sprint(port)),
		opts: opts,
		sel:  newFrameSelector(opts),
	}
}

// Connect dials the serial server
func (s *Socket) Connect(ctx context.Context) error {
	if s.conn != nil {
		_ = s.conn.Close()
		s.conn = nil
	}
	d := net.Dialer{Timeout: s.opts.DialTimeout}
	conn, err := d.DialContext(ctx, "tcp", s.addr)
	if err != nil {
		return s.fail("connect", err)
	}
	s.conn = conn
	return nil
}

// Send writes the frame and waits for the settle delay
func (s *Socket) Send(ctx context.Context, frame []byte) error {
	if s.conn == nil {
		return s.fail("send", ErrNotConnected)
	}
	if err := s.conn.SetWriteDeadline(time.Now().Add(s.opts.ReadTimeout)); err != nil {
		return s.fail("send", err)
	}
	if _, err := s.conn.Write(frame); err != nil {
		return s.fail("send", err)
	}
	if err := settle(ctx, s.opts.SettleDelay); err != nil {
		return s.fail("send", err)
	}
	return nil
}

// Receive reads one buffer from the socket and selects the response frame
// from it
func (s *Socket) Receive(ctx context.Context) ([]byte, error) {
	if s.conn == nil {
		return nil, s.fail("receive", ErrNotConnected)
	}

	deadline := time.Now().Add(s.opts.ReadTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := s.conn.SetReadDeadline(deadline); err != nil {
		return nil, s.fail("receive", err)
	}

	buf := make([]byte, maxFrameSize)
	n, err := s.conn.Read(buf)
	if err != nil {
		return nil, s.fail("receive", err)
	}
	if n == 0 {
		return nil, s.fail("receive", ErrNoData)
	}
	return s.sel.selectFrame(buf[:n]), nil
}

// Close closes the connection
func (s *Socket) Close() error {
	if s.conn == nil {
		return nil
	}
	err := s.conn.Close()
	s.conn = nil
	return err
}

func (s *Socket) String() string {
	return "TCP: " + s.addr
}

func (s *Socket) fail(op string, err error) error {
	return &Error{Op: op, Addr: s.addr, Err: err}
}
