// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package sink

import (
	"context"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/Thermoquad/bmsbridge/pkg/pace"
)

// Prometheus exposes the latest numeric readings as gauges. Text readings
// other than identity are not exported.
type Prometheus struct {
	readings  *prometheus.GaugeVec // labels: pack, key
	available prometheus.Gauge
	info      *prometheus.GaugeVec // labels: version, bms_sn, pack_sn
}

// NewPrometheus registers the reading gauges with reg
func NewPrometheus(reg prometheus.Registerer) *Prometheus {
	p := &Prometheus{
		readings: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "bms_reading",
			Help: "Latest decoded BMS value by pack (0 for BMS-wide) and key.",
		}, []string{"pack", "key"}),
		available: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "bms_available",
			Help: "1 after a complete poll cycle, 0 while offline.",
		}),
		info: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "bms_info",
			Help: "BMS identity; always 1.",
		}, []string{"version", "bms_sn", "pack_sn"}),
	}
	reg.MustRegister(p.readings, p.available, p.info)
	return p
}

// PublishReading implements TelemetrySink
func (p *Prometheus) PublishReading(_ context.Context, r pace.Reading) error {
	if r.IsText() {
		return nil
	}
	p.readings.WithLabelValues(strconv.Itoa(r.Pack), r.Key).Set(r.Value)
	return nil
}

// PublishAvailability implements TelemetrySink
func (p *Prometheus) PublishAvailability(_ context.Context, online bool) error {
	if online {
		p.available.Set(1)
	} else {
		p.available.Set(0)
	}
	return nil
}

// PublishIdentity implements TelemetrySink
func (p *Prometheus) PublishIdentity(_ context.Context, id pace.Identity) error {
	p.info.Reset()
	p.info.WithLabelValues(id.Version, id.BMSSerial, id.PackSerial).Set(1)
	return nil
}
