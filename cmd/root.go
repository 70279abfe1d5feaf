// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Thermoquad/bmsbridge/internal/config"
	"github.com/Thermoquad/bmsbridge/internal/logging"
	"github.com/Thermoquad/bmsbridge/pkg/pace"
)

var (
	configPath string

	// Serial connection flags
	portName string
	baudRate int

	// TCP connection flags
	tcpHost string
	tcpPort int

	// WebSocket connection flags
	wsURL         string
	wsUsername    string
	wsNoSSLVerify bool

	// Protocol flags
	bmsAddress string
	debugLevel int

	// Set by PersistentPreRunE
	cfg    *config.Config
	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "bmsbridge",
	Short: "PACE BMS to MQTT bridge",
	Long: `bmsbridge - Poll a PACE-protocol battery management system and publish its telemetry.

Reads cell voltages, temperatures, capacities and warning/protection state from
the BMS and republishes them to MQTT, Redis and Prometheus.

Connection modes:
  Serial:    --port /dev/ttyUSB0 [--baud 9600]
  TCP:       --host 192.168.1.50 --tcp-port 5000
  WebSocket: --url ws://host/path [--username user]

Settings are read from --config, /data/options.json or ./config.yaml, then from
BMS_-prefixed environment variables; flags override both.

For WebSocket authentication, the password is read from the BMS_WS_PASSWORD
environment variable, or prompted interactively if not set. The --password
flag is intentionally not provided to avoid leaking credentials in shell history.`,
	Version:           "1.0.0",
	SilenceUsage:      true,
	PersistentPreRunE: setup,
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Config file (YAML, JSON or TOML)")

	// Serial connection flags
	rootCmd.PersistentFlags().StringVarP(&portName, "port", "p", "", "Serial port device")
	rootCmd.PersistentFlags().IntVarP(&baudRate, "baud", "b", 9600, "Baud rate (serial only)")

	// TCP connection flags
	rootCmd.PersistentFlags().StringVar(&tcpHost, "host", "", "Serial server host (TCP)")
	rootCmd.PersistentFlags().IntVar(&tcpPort, "tcp-port", 5000, "Serial server port (TCP)")

	// WebSocket connection flags
	rootCmd.PersistentFlags().StringVarP(&wsURL, "url", "u", "", "WebSocket URL (ws:// or wss://)")
	rootCmd.PersistentFlags().StringVar(&wsUsername, "username", "", "Username for HTTP Basic auth")
	rootCmd.PersistentFlags().BoolVar(&wsNoSSLVerify, "no-ssl-verify", false, "Skip TLS certificate verification (wss:// only)")

	rootCmd.PersistentFlags().StringVarP(&bmsAddress, "address", "a", "", "BMS address (ADR, two hex digits)")
	rootCmd.PersistentFlags().IntVarP(&debugLevel, "debug", "d", 0, "Protocol trace level (0-3)")
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

// setup loads the configuration, applies flag overrides and builds the logger
func setup(cmd *cobra.Command, args []string) error {
	loaded, err := config.Load(configPath)
	if err != nil {
		return err
	}
	applyFlags(cmd, loaded)
	cfg = loaded

	logger, err = logging.New(cfg.Logging, cfg.DebugOutput)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	if cfg.Source != "" {
		logger.Debug("configuration loaded", zap.String("file", cfg.Source))
	}
	return nil
}

// applyFlags overrides configuration with explicitly set flags. A
// connection flag also selects its connection type.
func applyFlags(cmd *cobra.Command, c *config.Config) {
	flags := cmd.Flags()
	if flags.Changed("port") {
		c.ConnectionType = config.ConnectionSerial
		c.BMSSerial = portName
	}
	if flags.Changed("baud") {
		c.BMSBaud = baudRate
	}
	if flags.Changed("host") {
		c.ConnectionType = config.ConnectionIP
		c.BMSIP = tcpHost
	}
	if flags.Changed("tcp-port") {
		c.BMSPort = tcpPort
	}
	if flags.Changed("url") {
		c.ConnectionType = config.ConnectionWebSocket
		c.BMSURL = wsURL
	}
	if flags.Changed("username") {
		c.BMSUsername = wsUsername
	}
	if flags.Changed("no-ssl-verify") {
		c.BMSNoSSLVerify = wsNoSSLVerify
	}
	if flags.Changed("address") {
		c.BMSAddress = strings.ToUpper(bmsAddress)
	}
	if flags.Changed("debug") {
		c.DebugOutput = debugLevel
	}
}

// header returns the VER/ADR pair for requests
func header(c *config.Config) pace.Header {
	return pace.Header{Ver: strings.ToUpper(c.BMSVersion), Adr: strings.ToUpper(c.BMSAddress)}
}
