// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package transport

import (
	"context"
	"crypto/tls"
	"encoding/base64"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/gorilla/websocket"
)

// WebSocket is a link to a serial-over-WebSocket bridge. Requests are sent
// as binary messages; responses may arrive as binary or text messages.
type WebSocket struct {
	url           string
	username      string
	password      string
	skipSSLVerify bool
	opts          Options
	sel           *frameSelector

	conn *websocket.Conn
}

// NewWebSocket creates a WebSocket transport with optional HTTP Basic auth.
// The URL must use ws:// or wss://.
func NewWebSocket(wsURL, username, password string, skipSSLVerify bool, opts Options) (*WebSocket, error) {
	u, err := url.Parse(wsURL)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
	}
	switch u.Scheme {
	case "ws", "wss":
		// OK
	default:
		return nil, fmt.Errorf("unsupported URL scheme: %s (use ws:// or wss://)", u.Scheme)
	}

	opts = opts.withDefaults(DefaultSocketTimeout)
	return &WebSocket{
		url:           wsURL,
		username:      username,
		password:      password,
		skipSSLVerify: skipSSLVerify,
		opts:          opts,
		sel:           newFrameSelector(opts),
	}, nil
}

// Connect performs the WebSocket handshake
func (w *WebSocket) Connect(ctx context.Context) error {
	if w.conn != nil {
		_ = w.conn.Close()
		w.conn = nil
	}

	dialer := websocket.Dialer{
		HandshakeTimeout: w.opts.DialTimeout,
	}
	if w.skipSSLVerify {
		dialer.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	}

	headers := http.Header{}
	if w.username != "" && w.password != "" {
		credentials := base64.StdEncoding.EncodeToString([]byte(w.username + ":" + w.password))
		headers.Set("Authorization", "Basic "+credentials)
	}

	conn, resp, err := dialer.DialContext(ctx, w.url, headers)
	if err != nil {
		if resp != nil {
			return w.fail("connect", fmt.Errorf("handshake failed (HTTP %d): %w", resp.StatusCode, err))
		}
		return w.fail("connect", err)
	}
	w.conn = conn
	return nil
}

// Send writes the frame as one binary message and waits for the settle delay
func (w *WebSocket) Send(ctx context.Context, frame []byte) error {
	if w.conn == nil {
		return w.fail("send", ErrNotConnected)
	}
	if err := w.conn.SetWriteDeadline(time.Now().Add(w.opts.ReadTimeout)); err != nil {
		return w.fail("send", err)
	}
	if err := w.conn.WriteMessage(websocket.BinaryMessage, frame); err != nil {
		return w.fail("send", err)
	}
	if err := settle(ctx, w.opts.SettleDelay); err != nil {
		return w.fail("send", err)
	}
	return nil
}

// Receive reads the next data message and selects the response frame from it
func (w *WebSocket) Receive(ctx context.Context) ([]byte, error) {
	if w.conn == nil {
		return nil, w.fail("receive", ErrNotConnected)
	}

	deadline := time.Now().Add(w.opts.ReadTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := w.conn.SetReadDeadline(deadline); err != nil {
		return nil, w.fail("receive", err)
	}

	for {
		messageType, data, err := w.conn.ReadMessage()
		if err != nil {
			return nil, w.fail("receive", err)
		}
		if messageType != websocket.BinaryMessage && messageType != websocket.TextMessage {
			continue
		}
		if len(data) == 0 {
			continue
		}
		return w.sel.selectFrame(data), nil
	}
}

// Close sends a close message and closes the connection
func (w *WebSocket) Close() error {
	if w.conn == nil {
		return nil
	}
	_ = w.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	err := w.conn.Close()
	w.conn = nil
	return err
}

func (w *WebSocket) String() string {
	return "WebSocket: " + w.url
}

func (w *WebSocket) fail(op string, err error) error {
	return &Error{Op: op, Addr: w.url, Err: err}
}
