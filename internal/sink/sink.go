// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package sink delivers decoded BMS telemetry to its consumers
package sink

import (
	"context"
	"errors"
	"time"

	"github.com/Thermoquad/bmsbridge/pkg/pace"
)

// TelemetrySink receives decoded values from a session
type TelemetrySink interface {
	// PublishReading delivers one decoded value
	PublishReading(ctx context.Context, r pace.Reading) error
	// PublishAvailability signals whether the BMS is reachable
	PublishAvailability(ctx context.Context, online bool) error
	// PublishIdentity delivers the firmware version and serial numbers
	PublishIdentity(ctx context.Context, id pace.Identity) error
}

// RecordSink is implemented by sinks that also want whole records
type RecordSink interface {
	PublishRecord(ctx context.Context, rec pace.Record, at time.Time) error
}

// Availability payloads
const (
	Online  = "online"
	Offline = "offline"
)

// AvailabilityText returns the availability payload for online
func AvailabilityText(online bool) string {
	if online {
		return Online
	}
	return Offline
}

// Publish hands rec to s: first as a whole record when s is a RecordSink,
// then reading by reading. Every reading is attempted; errors are joined.
func Publish(ctx context.Context, s TelemetrySink, rec pace.Record, at time.Time) error {
	var errs []error
	if rs, ok := s.(RecordSink); ok {
		if err := rs.PublishRecord(ctx, rec, at); err != nil {
			errs = append(errs, err)
		}
	}
	for _, r := range rec.Readings() {
		if err := s.PublishReading(ctx, r); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Multi fans every call out to several sinks. A failing sink does not stop
// delivery to the others.
type Multi []TelemetrySink

// PublishReading implements TelemetrySink
func (m Multi) PublishReading(ctx context.Context, r pace.Reading) error {
	return m.each(func(s TelemetrySink) error { return s.PublishReading(ctx, r) })
}

// PublishAvailability implements TelemetrySink
func (m Multi) PublishAvailability(ctx context.Context, online bool) error {
	return m.each(func(s TelemetrySink) error { return s.PublishAvailability(ctx, online) })
}

// PublishIdentity implements TelemetrySink
func (m Multi) PublishIdentity(ctx context.Context, id pace.Identity) error {
	return m.each(func(s TelemetrySink) error { return s.PublishIdentity(ctx, id) })
}

// PublishRecord forwards to the members that implement RecordSink
func (m Multi) PublishRecord(ctx context.Context, rec pace.Record, at time.Time) error {
	return m.each(func(s TelemetrySink) error {
		if rs, ok := s.(RecordSink); ok {
			return rs.PublishRecord(ctx, rec, at)
		}
		return nil
	})
}

func (m Multi) each(fn func(TelemetrySink) error) error {
	var errs []error
	for _, s := range m {
		if err := fn(s); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Discard drops everything
type Discard struct{}

func (Discard) PublishReading(context.Context, pace.Reading) error   { return nil }
func (Discard) PublishAvailability(context.Context, bool) error      { return nil }
func (Discard) PublishIdentity(context.Context, pace.Identity) error { return nil }
