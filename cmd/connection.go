// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"syscall"

	"go.uber.org/zap"
	"golang.org/x/term"

	"github.com/Thermoquad/bmsbridge/internal/config"
	"github.com/Thermoquad/bmsbridge/pkg/transport"
)

// GetPassword retrieves a password from envVar or prompts the user
func GetPassword(envVar, prompt string) (string, error) {
	// First check environment variable
	if pw := os.Getenv(envVar); pw != "" {
		return pw, nil
	}

	// Prompt user for password (hide input)
	fmt.Fprint(os.Stderr, prompt)

	// Read password without echo
	passwordBytes, err := term.ReadPassword(int(syscall.Stdin))
	if err != nil {
		// Fallback to regular input if terminal functions fail
		reader := bufio.NewReader(os.Stdin)
		password, err := reader.ReadString('\n')
		if err != nil {
			return "", fmt.Errorf("failed to read password: %v", err)
		}
		fmt.Fprintln(os.Stderr) // newline after password
		return strings.TrimSpace(password), nil
	}

	fmt.Fprintln(os.Stderr) // newline after password
	return string(passwordBytes), nil
}

// OpenTransport builds the transport selected by the configuration. The
// link is not connected until the session connects it.
func OpenTransport(c *config.Config, logger *zap.Logger) (transport.Transport, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}

	opts := transport.Options{DebugLevel: c.DebugOutput, Logger: logger.Named("transport")}

	switch c.ConnectionType {
	case config.ConnectionSerial:
		return transport.NewSerial(c.BMSSerial, c.BMSBaud, opts), nil

	case config.ConnectionIP:
		return transport.NewSocket(c.BMSIP, c.BMSPort, opts), nil

	case config.ConnectionWebSocket:
		password := ""
		if c.BMSUsername != "" {
			var err error
			password, err = GetPassword("BMS_WS_PASSWORD", "Password: ")
			if err != nil {
				return nil, err
			}
		}
		return transport.NewWebSocket(c.BMSURL, c.BMSUsername, password, c.BMSNoSSLVerify, opts)

	default:
		return nil, fmt.Errorf("unknown connection type %q", c.ConnectionType)
	}
}

// mqttPassword prompts for the broker password when a user is set without
// one and stdin is a terminal
func mqttPassword(c *config.Config) error {
	if c.MQTT.User == "" || c.MQTT.Password != "" || !term.IsTerminal(int(syscall.Stdin)) {
		return nil
	}
	pw, err := GetPassword("BMS_MQTT_PASSWORD", "MQTT password: ")
	if err != nil {
		return err
	}
	c.MQTT.Password = pw
	return nil
}
