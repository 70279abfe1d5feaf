// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package metrics exposes bridge health as Prometheus metrics
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Thermoquad/bmsbridge/pkg/pace"
)

// NewRegistry creates a registry with the Go and process collectors
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// Handler returns the exposition handler for reg
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})
}

// SessionMetrics tracks link and request health. A nil *SessionMetrics is
// valid and records nothing.
type SessionMetrics struct {
	RequestsTotal   *prometheus.CounterVec // labels: command, result
	ConnectsTotal   *prometheus.CounterVec // labels: result
	AnomaliesTotal  *prometheus.CounterVec // labels: type
	LinkUp          prometheus.Gauge
	CycleDuration   prometheus.Histogram
	LastCycleUnixTS prometheus.Gauge
}

// NewSessionMetrics registers and returns the session metrics
func NewSessionMetrics(reg prometheus.Registerer) *SessionMetrics {
	m := &SessionMetrics{
		RequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bms_requests_total",
			Help: "BMS requests by command and result.",
		}, []string{"command", "result"}),
		ConnectsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bms_connects_total",
			Help: "Connection attempts by result.",
		}, []string{"result"}),
		AnomaliesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bms_anomalies_total",
			Help: "Out-of-range analog values by type.",
		}, []string{"type"}),
		LinkUp: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "bms_link_up",
			Help: "1 when the BMS link is connected.",
		}),
		CycleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "bms_poll_cycle_seconds",
			Help:    "Duration of complete poll cycles, including inter-request waits.",
			Buckets: []float64{0.5, 1, 2, 5, 10, 20, 30, 60},
		}),
		LastCycleUnixTS: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "bms_last_poll_cycle_timestamp_seconds",
			Help: "Unix time of the last completed poll cycle.",
		}),
	}
	reg.MustRegister(m.RequestsTotal, m.ConnectsTotal, m.AnomaliesTotal, m.LinkUp, m.CycleDuration, m.LastCycleUnixTS)
	return m
}

// Result returns the result label for a request outcome
func Result(err error) string {
	if err == nil {
		return "ok"
	}
	if kind, ok := pace.KindOf(err); ok {
		return kind.String()
	}
	return "transport"
}

// ObserveRequest counts one request
func (m *SessionMetrics) ObserveRequest(command string, err error) {
	if m == nil {
		return
	}
	m.RequestsTotal.WithLabelValues(command, Result(err)).Inc()
}

// ObserveConnect counts one connection attempt and updates the link gauge
func (m *SessionMetrics) ObserveConnect(err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.ConnectsTotal.WithLabelValues("error").Inc()
		m.LinkUp.Set(0)
		return
	}
	m.ConnectsTotal.WithLabelValues("ok").Inc()
	m.LinkUp.Set(1)
}

// ObserveDisconnect marks the link down
func (m *SessionMetrics) ObserveDisconnect() {
	if m == nil {
		return
	}
	m.LinkUp.Set(0)
}

// ObserveAnomalies counts validation findings
func (m *SessionMetrics) ObserveAnomalies(anomalies []pace.ValidationError) {
	if m == nil {
		return
	}
	for _, a := range anomalies {
		m.AnomaliesTotal.WithLabelValues(a.Type.String()).Inc()
	}
}

// ObserveCycle records a completed poll cycle
func (m *SessionMetrics) ObserveCycle(started time.Time, finished time.Time) {
	if m == nil {
		return
	}
	m.CycleDuration.Observe(finished.Sub(started).Seconds())
	m.LastCycleUnixTS.Set(float64(finished.Unix()))
}
