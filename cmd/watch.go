// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"errors"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/Thermoquad/bmsbridge/internal/session"
	"github.com/Thermoquad/bmsbridge/internal/sink"
)

var watchPublish bool

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Live dashboard of pack telemetry",
	Long: `Poll the BMS and show a live dashboard of every pack.

The dashboard shows the link state, request statistics, per-pack voltage,
current, SOC, cell spread, temperatures and warnings, plus recent warnings
and errors from the session.

By default nothing is published; with --publish the configured MQTT and
Redis sinks also receive the telemetry.

Press 'c' to toggle cell voltages and 'q' to quit.`,
	RunE: runWatch,
}

func init() {
	watchCmd.Flags().BoolVar(&watchPublish, "publish", false, "Also publish to the configured MQTT/Redis sinks")
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	// The terminal belongs to the dashboard; log entries go to the event pane
	events := newEventLog(zapcore.InfoLevel, 200)
	tuiLogger := zap.New(events)

	tr, err := OpenTransport(cfg, tuiLogger)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	memory := sink.NewMemory()
	sinks := sink.Multi{memory}
	if watchPublish {
		if err := mqttPassword(cfg); err != nil {
			return err
		}
		if cfg.MQTT.Enabled() {
			mq := sink.NewMQTT(sink.MQTTOptions{
				Host:      cfg.MQTT.Host,
				Port:      cfg.MQTT.Port,
				User:      cfg.MQTT.User,
				Password:  cfg.MQTT.Password,
				BaseTopic: cfg.MQTT.BaseTopic,
				Logger:    tuiLogger.Named("mqtt"),
			})
			if err := mq.Connect(ctx); err != nil {
				return err
			}
			defer mq.Close()
			sinks = append(sinks, mq)
		}
		if cfg.Redis.Enabled {
			rd, err := sink.NewRedis(cfg.Redis)
			if err != nil {
				return err
			}
			defer rd.Close()
			sinks = append(sinks, rd)
		}
	}

	sess := session.New(tr, sinks, session.Options{
		Header:         header(cfg),
		ScanInterval:   cfg.ScanPeriod(),
		ReconnectDelay: cfg.ReconnectPeriod(),
		DebugLevel:     cfg.DebugOutput,
		Logger:         tuiLogger.Named("session"),
	})

	p := tea.NewProgram(newWatchModel(tr.String(), cfg.ScanPeriod(), sess, memory, events))

	done := make(chan error, 1)
	go func() {
		err := sess.Run(ctx)
		done <- err
		if err != nil {
			p.Quit()
		}
	}()

	events.add(zapcore.InfoLevel, fmt.Sprintf("Polling %s every %s", tr.String(), cfg.ScanPeriod()))
	_, tuiErr := p.Run()

	cancel()
	runErr := <-done

	if errors.Is(runErr, session.ErrIdentityRequired) {
		return fmt.Errorf("bridge stopped: %w", runErr)
	}
	if tuiErr != nil {
		return fmt.Errorf("dashboard: %w", tuiErr)
	}
	return runErr
}
