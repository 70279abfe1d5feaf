// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Thermoquad/bmsbridge/pkg/pace"
)

func TestResult(t *testing.T) {
	_, framing := pace.DecodeResponse([]byte("x"))
	require.Error(t, framing)

	assert.Equal(t, "ok", Result(nil))
	assert.Equal(t, "framing", Result(framing))
	assert.Equal(t, "transport", Result(errors.New("read timeout")))
}

func TestSessionMetrics(t *testing.T) {
	reg := NewRegistry()
	m := NewSessionMetrics(reg)

	m.ObserveConnect(nil)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.LinkUp))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ConnectsTotal.WithLabelValues("ok")))

	m.ObserveRequest("PackAnalogData", nil)
	m.ObserveRequest("PackAnalogData", nil)
	m.ObserveRequest("WarnInfo", errors.New("timeout"))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.RequestsTotal.WithLabelValues("PackAnalogData", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RequestsTotal.WithLabelValues("WarnInfo", "transport")))

	m.ObserveAnomalies([]pace.ValidationError{
		{Type: pace.AnomalyCellVoltage},
		{Type: pace.AnomalyCellVoltage},
		{Type: pace.AnomalyTemperature},
	})
	assert.Equal(t, 2.0, testutil.ToFloat64(m.AnomaliesTotal.WithLabelValues("cell_voltage")))

	finished := time.Unix(1700000000, 0)
	m.ObserveCycle(finished.Add(-3*time.Second), finished)
	assert.Equal(t, 1700000000.0, testutil.ToFloat64(m.LastCycleUnixTS))
	assert.Equal(t, 1, testutil.CollectAndCount(m.CycleDuration))

	m.ObserveDisconnect()
	assert.Equal(t, 0.0, testutil.ToFloat64(m.LinkUp))

	m.ObserveConnect(errors.New("refused"))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ConnectsTotal.WithLabelValues("error")))
}

func TestNilSessionMetrics(t *testing.T) {
	var m *SessionMetrics
	assert.NotPanics(t, func() {
		m.ObserveConnect(nil)
		m.ObserveRequest("PackNumber", nil)
		m.ObserveAnomalies([]pace.ValidationError{{}})
		m.ObserveCycle(time.Now(), time.Now())
		m.ObserveDisconnect()
	})
}

func TestHandler(t *testing.T) {
	reg := NewRegistry()
	m := NewSessionMetrics(reg)
	m.ObserveConnect(nil)

	rec := httptest.NewRecorder()
	Handler(reg).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "bms_link_up 1")
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}
