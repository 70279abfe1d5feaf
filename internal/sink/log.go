// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package sink

import (
	"context"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/Thermoquad/bmsbridge/pkg/pace"
)

// Log writes every value to a zap logger
type Log struct {
	logger *zap.Logger
	level  zapcore.Level
}

// NewLog creates a log sink writing at level
func NewLog(logger *zap.Logger, level zapcore.Level) *Log {
	return &Log{logger: logger.Named("telemetry"), level: level}
}

// PublishReading implements TelemetrySink
func (l *Log) PublishReading(_ context.Context, r pace.Reading) error {
	fields := []zap.Field{zap.String("key", r.Key), zap.String("value", r.String())}
	if r.Pack > 0 {
		fields = append(fields, zap.Int("pack", r.Pack))
	}
	l.logger.Log(l.level, "reading", fields...)
	return nil
}

// PublishAvailability implements TelemetrySink
func (l *Log) PublishAvailability(_ context.Context, online bool) error {
	l.logger.Log(l.level, "availability", zap.String("state", AvailabilityText(online)))
	return nil
}

// PublishIdentity implements TelemetrySink
func (l *Log) PublishIdentity(_ context.Context, id pace.Identity) error {
	l.logger.Info("identity",
		zap.String("version", id.Version),
		zap.String("bms_sn", id.BMSSerial),
		zap.String("pack_sn", id.PackSerial))
	return nil
}
