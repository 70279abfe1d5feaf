// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Thermoquad/bmsbridge/internal/config"
	"github.com/Thermoquad/bmsbridge/internal/metrics"
	"github.com/Thermoquad/bmsbridge/internal/session"
	"github.com/Thermoquad/bmsbridge/internal/sink"
	"github.com/Thermoquad/bmsbridge/pkg/pace"
)

type fakeLink struct {
	state session.State
	stats pace.Statistics
}

func (f *fakeLink) State() session.State   { return f.state }
func (f *fakeLink) Stats() pace.Statistics { return f.stats }

func get(t *testing.T, srv *Server, path string) *httptest.ResponseRecorder {
	t.Helper()
	rr := httptest.NewRecorder()
	srv.srv.Handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, path, nil))
	return rr
}

func newTestServer(link Link, memory *sink.Memory) *Server {
	gin.SetMode(gin.TestMode)
	cfg := config.HTTPConfig{Addr: ":0", ReadTimeout: time.Second, WriteTimeout: time.Second}
	reg := metrics.NewRegistry()
	metrics.NewSessionMetrics(reg)
	return New(cfg, "/metrics", metrics.Handler(reg), link, memory)
}

func TestHealthzReadyzMetrics(t *testing.T) {
	link := &fakeLink{state: session.Disconnected}
	srv := newTestServer(link, nil)

	rr := get(t, srv, "/healthz")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "ok", rr.Body.String())

	rr = get(t, srv, "/readyz")
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)

	link.state = session.Connected
	rr = get(t, srv, "/readyz")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "ready", rr.Body.String())

	rr = get(t, srv, "/metrics")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "bms_link_up")
}

func TestStatus(t *testing.T) {
	at := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	memory := sink.NewMemory()
	ctx := context.Background()
	require.NoError(t, memory.PublishAvailability(ctx, true))
	require.NoError(t, memory.PublishIdentity(ctx, pace.Identity{Version: "PACE_V1.2", BMSSerial: "BMS1"}))
	require.NoError(t, memory.PublishRecord(ctx, pace.PackCapacityRecord{
		RemainingCapacity: 100, FullCapacity: 200, DesignCapacity: 250, SOC: 50, SOH: 80,
	}, at))

	link := &fakeLink{state: session.Connected, stats: pace.Statistics{TotalRequests: 3, ValidResponses: 2}}
	srv := newTestServer(link, memory)

	rr := get(t, srv, "/api/v1/status")
	require.Equal(t, http.StatusOK, rr.Code)

	var body struct {
		Link       string `json:"link"`
		Online     bool   `json:"online"`
		Identity   map[string]string
		Records    map[string]struct {
			Time   time.Time      `json:"time"`
			Record map[string]any `json:"record"`
		} `json:"records"`
		Statistics map[string]any `json:"statistics"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, "connected", body.Link)
	assert.True(t, body.Online)
	assert.Equal(t, "PACE_V1.2", body.Identity["bms_version"])
	assert.EqualValues(t, 50, body.Records["capacity"].Record["soc"])
	assert.True(t, at.Equal(body.Records["capacity"].Time))
	assert.EqualValues(t, 3, body.Statistics["total_requests"])

	rr = get(t, srv, "/api/v1/records/capacity")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"full_capacity_mah":200`)

	rr = get(t, srv, "/api/v1/records/analog")
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestStatus_NoSources(t *testing.T) {
	srv := newTestServer(nil, nil)

	rr := get(t, srv, "/api/v1/status")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"link":"disconnected"`)

	assert.Equal(t, http.StatusServiceUnavailable, get(t, srv, "/readyz").Code)
	assert.Equal(t, http.StatusNotFound, get(t, srv, "/api/v1/records/analog").Code)
}
