// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/Thermoquad/bmsbridge/internal/httpapi"
	"github.com/Thermoquad/bmsbridge/internal/metrics"
	"github.com/Thermoquad/bmsbridge/internal/session"
	"github.com/Thermoquad/bmsbridge/internal/sink"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Poll the BMS and publish telemetry",
	Long: `Connect to the BMS and poll it continuously.

Every scan interval the bridge requests analog data for all packs, the pack
capacity and the warning state, and publishes every decoded value to the
configured sinks (MQTT, Redis, Prometheus). Link failures are retried after
the reconnect delay. SIGINT or SIGTERM publishes offline and exits.

The BMS and pack serial numbers are read once at startup; the bridge exits
with an error if they cannot be read.`,
	RunE: runBridge,
}

func init() {
	rootCmd.AddCommand(runCmd)
}

func runBridge(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	tr, err := OpenTransport(cfg, logger)
	if err != nil {
		return err
	}
	if err := mqttPassword(cfg); err != nil {
		return err
	}

	reg := metrics.NewRegistry()
	sessionMetrics := metrics.NewSessionMetrics(reg)

	memory := sink.NewMemory()
	sinks := sink.Multi{memory}
	if cfg.Metrics.Enable {
		sinks = append(sinks, sink.NewPrometheus(reg))
	}

	if cfg.MQTT.Enabled() {
		mq := sink.NewMQTT(sink.MQTTOptions{
			Host:      cfg.MQTT.Host,
			Port:      cfg.MQTT.Port,
			User:      cfg.MQTT.User,
			Password:  cfg.MQTT.Password,
			BaseTopic: cfg.MQTT.BaseTopic,
			Logger:    logger.Named("mqtt"),
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

	if !cfg.MQTT.Enabled() && !cfg.Redis.Enabled {
		logger.Warn("no MQTT broker or Redis configured; telemetry is only logged")
		sinks = append(sinks, sink.NewLog(logger, zapcore.InfoLevel))
	}

	sess := session.New(tr, sinks, session.Options{
		Header:         header(cfg),
		ScanInterval:   cfg.ScanPeriod(),
		ReconnectDelay: cfg.ReconnectPeriod(),
		DebugLevel:     cfg.DebugOutput,
		Logger:         logger.Named("session"),
		Metrics:        sessionMetrics,
	})

	if cfg.HTTP.Enable {
		var metricsHandler http.Handler
		if cfg.Metrics.Enable {
			metricsHandler = metrics.Handler(reg)
		}
		srv := httpapi.New(cfg.HTTP, cfg.Metrics.Path, metricsHandler, sess, memory)
		go func() {
			if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("HTTP server failed", zap.Error(err))
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
		logger.Info("status API listening", zap.String("addr", cfg.HTTP.Addr))
	}

	logger.Info("starting bridge",
		zap.String("transport", tr.String()),
		zap.Duration("scan_interval", cfg.ScanPeriod()))

	if err := sess.Run(ctx); err != nil {
		return fmt.Errorf("bridge stopped: %w", err)
	}
	stats := sess.Stats()
	logger.Info("bridge stopped")
	fmt.Fprint(os.Stderr, stats.String())
	return nil
}
