// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad
//
// bmsbridge - PACE BMS telemetry bridge
//
// Polls a PACE-protocol battery management system over serial, TCP or
// WebSocket and republishes pack telemetry to MQTT, Redis and Prometheus.

package main

import (
	"os"

	"github.com/Thermoquad/bmsbridge/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
