// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package session

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/Thermoquad/bmsbridge/internal/metrics"
	"github.com/Thermoquad/bmsbridge/pkg/pace"
	"github.com/Thermoquad/bmsbridge/pkg/transport"
)

// INFO payloads
const (
	versionInfo  = "504143455F56312E32"
	serialInfo   = "504143453132333435362020202020" + "0000000000" + "504B2D3030303120412020202020"
	analogInfo   = "0001020E740E88010BA400641D4C000A03001400010019"
	lowCellInfo  = "0001020384" + "0E88010BA400641D4C000A03001400010019"
	capacityInfo = "000A00140019"
	warnInfo     = "0001" + "0200000100" + "000000" + "0000000000" + "0000" + "0000"
)

// respond builds a response frame with the given RTN and INFO
func respond(rtn, info string) string {
	return string(pace.MustEncodeRequest(pace.Command{
		Ver: "25", Adr: "01", CID1: pace.CID1Battery, CID2: rtn, Info: info,
	}))
}

// ============================================================
// Scripted transport
// ============================================================

// scripted answers each request from a per-CID2 queue of replies. An
// empty queue reads as a receive timeout.
type scripted struct {
	mu          sync.Mutex
	replies     map[string][]string
	connectErrs []error
	sent        []string
	connects    int
	closes      int
	connected   bool
}

func newScripted() *scripted {
	return &scripted{replies: make(map[string][]string)}
}

func (s *scripted) reply(cid2 string, frames ...string) *scripted {
	s.replies[cid2] = append(s.replies[cid2], frames...)
	return s
}

func (s *scripted) standard() *scripted {
	return s.
		reply(pace.CID2SoftwareVersion, respond("00", versionInfo)).
		reply(pace.CID2SerialNumber, respond("00", serialInfo)).
		reply(pace.CID2PackAnalogData, respond("00", analogInfo)).
		reply(pace.CID2PackCapacity, respond("00", capacityInfo)).
		reply(pace.CID2WarnInfo, respond("00", warnInfo))
}

func (s *scripted) Connect(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.connects++
	if len(s.connectErrs) > 0 {
		err := s.connectErrs[0]
		s.connectErrs = s.connectErrs[1:]
		if err != nil {
			return &transport.Error{Op: "connect", Addr: "script", Err: err}
		}
	}
	s.connected = true
	return nil
}

func (s *scripted) Send(_ context.Context, frame []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.connected {
		return &transport.Error{Op: "send", Addr: "script", Err: transport.ErrNotConnected}
	}
	s.sent = append(s.sent, string(frame))
	return nil
}

func (s *scripted) Receive(context.Context) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	last := s.sent[len(s.sent)-1]
	cid2 := last[7:9]
	queue := s.replies[cid2]
	if len(queue) == 0 {
		return nil, &transport.Error{Op: "receive", Addr: "script", Err: transport.ErrNoData}
	}
	s.replies[cid2] = queue[1:]
	return []byte(queue[0]), nil
}

func (s *scripted) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closes++
	s.connected = false
	return nil
}

func (s *scripted) String() string { return "Script" }

// ============================================================
// Recording sink
// ============================================================

type recorder struct {
	mu           sync.Mutex
	readings     []pace.Reading
	availability []bool
	identities   []pace.Identity
	records      []string
}

func (r *recorder) PublishReading(_ context.Context, rd pace.Reading) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.readings = append(r.readings, rd)
	return nil
}

func (r *recorder) PublishAvailability(_ context.Context, online bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.availability = append(r.availability, online)
	return nil
}

func (r *recorder) PublishIdentity(_ context.Context, id pace.Identity) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.identities = append(r.identities, id)
	return nil
}

func (r *recorder) PublishRecord(_ context.Context, rec pace.Record, _ time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = append(r.records, rec.Kind())
	return nil
}

func (r *recorder) reading(pack int, key string) (pace.Reading, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, rd := range r.readings {
		if rd.Pack == pack && rd.Key == key {
			return rd, true
		}
	}
	return pace.Reading{}, false
}

// ============================================================
// Helpers
// ============================================================

type sleeps struct {
	mu    sync.Mutex
	calls []time.Duration
	// after this many calls the hook runs (once)
	after int
	hook  func()
}

func (s *sleeps) sleep(ctx context.Context, d time.Duration) error {
	s.mu.Lock()
	s.calls = append(s.calls, d)
	n := len(s.calls)
	s.mu.Unlock()
	if s.hook != nil && n == s.after {
		s.hook()
	}
	return ctx.Err()
}

func newSession(tr transport.Transport, rec *recorder, sl *sleeps, logger *zap.Logger) *Session {
	if logger == nil {
		logger = zap.NewNop()
	}
	return New(tr, rec, Options{
		ScanInterval:   3 * time.Second,
		ReconnectDelay: 7 * time.Second,
		Logger:         logger,
		Sleep:          sl.sleep,
	})
}

// ============================================================
// Connect / Request
// ============================================================

func TestSession_Connect(t *testing.T) {
	tr := newScripted()
	tr.connectErrs = []error{errors.New("no route to host")}
	rec := &recorder{}
	s := newSession(tr, rec, &sleeps{}, nil)

	assert.Equal(t, Disconnected, s.State())
	require.Error(t, s.Connect(context.Background()))
	assert.Equal(t, Disconnected, s.State())

	require.NoError(t, s.Connect(context.Background()))
	assert.Equal(t, Connected, s.State())
	assert.Equal(t, []bool{false, false}, rec.availability, "offline until a cycle completes")
	assert.Equal(t, "connected", s.State().String())
}

func TestSession_RequestNotConnected(t *testing.T) {
	s := newSession(newScripted(), &recorder{}, &sleeps{}, nil)
	_, err := s.Request(context.Background(), pace.DefaultHeader.PackNumber())
	require.Error(t, err)
	assert.ErrorIs(t, err, transport.ErrNotConnected)
	assert.Equal(t, uint64(1), s.Stats().TransportErrors)
}

func TestSession_Request(t *testing.T) {
	tr := newScripted().reply(pace.CID2PackNumber, respond("00", "02"))
	s := newSession(tr, &recorder{}, &sleeps{}, nil)
	require.NoError(t, s.Connect(context.Background()))

	reply, err := s.Request(context.Background(), pace.DefaultHeader.PackNumber())
	require.NoError(t, err)
	assert.Equal(t, "~250146900000FDA5\r", tr.sent[0])
	assert.Equal(t, pace.PackCount{Packs: 2}, reply.Record)
	assert.Equal(t, "00", reply.Response.RTN)
	assert.NotEmpty(t, reply.Raw)
	assert.Equal(t, uint64(1), s.Stats().ValidResponses)
}

func TestSession_RequestErrorsKeepLink(t *testing.T) {
	good := respond("00", capacityInfo)
	corrupted := strings.Replace(good, "000A", "000B", 1)

	tests := []struct {
		name  string
		frame string
		kind  pace.ErrorKind
	}{
		{name: "checksum", frame: corrupted, kind: pace.KindChecksum},
		{name: "framing", frame: "garbage\r", kind: pace.KindFraming},
		{name: "protocol", frame: respond("04", ""), kind: pace.KindProtocol},
		{name: "decode", frame: respond("00", "000A0000"), kind: pace.KindDecode},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := newScripted().reply(pace.CID2PackCapacity, tt.frame)
			s := newSession(tr, &recorder{}, &sleeps{}, nil)
			require.NoError(t, s.Connect(context.Background()))

			reply, err := s.Request(context.Background(), pace.DefaultHeader.PackCapacity())
			require.Error(t, err)
			kind, ok := pace.KindOf(err)
			require.True(t, ok)
			assert.Equal(t, tt.kind, kind)
			assert.Equal(t, tt.frame, string(reply.Raw))
			assert.Equal(t, Connected, s.State(), "request-scoped failures keep the link")
			stats := s.Stats()
			assert.Equal(t, uint64(1), stats.Errors())
		})
	}
}

func TestSession_UnknownRTN(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	tr := newScripted().reply(pace.CID2PackCapacity, respond("07", capacityInfo))
	s := newSession(tr, &recorder{}, &sleeps{}, zap.New(core))
	require.NoError(t, s.Connect(context.Background()))

	_, err := s.Request(context.Background(), pace.DefaultHeader.PackCapacity())
	require.NoError(t, err)
	require.Equal(t, 1, logs.FilterMessage("unrecognised RTN, treating as success").Len())
}

func TestSession_Anomalies(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.NewSessionMetrics(reg)
	tr := newScripted().reply(pace.CID2PackAnalogData, respond("00", lowCellInfo))
	s := New(tr, &recorder{}, Options{Metrics: m, Sleep: (&sleeps{}).sleep})
	require.NoError(t, s.Connect(context.Background()))

	reply, err := s.Request(context.Background(), pace.DefaultHeader.PackAnalogData(pace.AllPacks))
	require.NoError(t, err, "anomalies never reject a record")
	assert.Equal(t, 900, reply.Record.(pace.AnalogData).Packs[0].CellVoltages[0])
	assert.Equal(t, uint64(1), s.Stats().AnomalousValues)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.AnomaliesTotal.WithLabelValues("cell_voltage")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RequestsTotal.WithLabelValues("PackAnalogData", "ok")))

	packs, cells := s.Layout()
	assert.Equal(t, 1, packs)
	assert.Equal(t, 2, cells)
}

// ============================================================
// Identity
// ============================================================

func TestSession_FetchIdentity(t *testing.T) {
	tr := newScripted().standard()
	rec := &recorder{}
	sl := &sleeps{}
	s := newSession(tr, rec, sl, nil)
	require.NoError(t, s.Connect(context.Background()))

	id, err := s.FetchIdentity(context.Background())
	require.NoError(t, err)
	expected := pace.Identity{Version: "PACE_V1.2", BMSSerial: "PACE123456", PackSerial: "PK-0001A"}
	assert.Equal(t, expected, id)
	assert.Equal(t, []pace.Identity{expected}, rec.identities)
	assert.Equal(t, []time.Duration{identityGap}, sl.calls)

	got, ok := s.Identity()
	assert.True(t, ok)
	assert.Equal(t, expected, got)
}

func TestSession_FetchIdentity_VersionOptional(t *testing.T) {
	tr := newScripted().
		reply(pace.CID2SoftwareVersion, respond("04", "")).
		reply(pace.CID2SerialNumber, respond("00", serialInfo))
	s := newSession(tr, &recorder{}, &sleeps{}, nil)
	require.NoError(t, s.Connect(context.Background()))

	id, err := s.FetchIdentity(context.Background())
	require.NoError(t, err)
	assert.Empty(t, id.Version)
	assert.Equal(t, "PACE123456", id.BMSSerial)
}

func TestSession_FetchIdentity_SerialRequired(t *testing.T) {
	tr := newScripted().
		reply(pace.CID2SoftwareVersion, respond("00", versionInfo)).
		reply(pace.CID2SerialNumber, respond("00", "5041"))
	rec := &recorder{}
	s := newSession(tr, rec, &sleeps{}, nil)
	require.NoError(t, s.Connect(context.Background()))

	_, err := s.FetchIdentity(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrIdentityRequired)
	assert.ErrorIs(t, err, pace.ErrShortPayload)
	assert.Empty(t, rec.identities)
	_, ok := s.Identity()
	assert.False(t, ok)
}

func TestSession_FetchIdentity_LinkLost(t *testing.T) {
	tr := newScripted()
	s := newSession(tr, &recorder{}, &sleeps{}, nil)
	require.NoError(t, s.Connect(context.Background()))

	_, err := s.FetchIdentity(context.Background())
	require.Error(t, err)
	assert.True(t, transport.IsTransportError(err))
	assert.NotErrorIs(t, err, ErrIdentityRequired, "a lost link is retried, not fatal")
	assert.Equal(t, Disconnected, s.State())
}

// ============================================================
// Poll cycle
// ============================================================

func TestSession_PollCycle(t *testing.T) {
	tr := newScripted().standard()
	rec := &recorder{}
	sl := &sleeps{}
	s := newSession(tr, rec, sl, nil)
	require.NoError(t, s.Connect(context.Background()))

	require.NoError(t, s.PollCycle(context.Background()))

	// Fixed order with a third of the scan interval after each request
	require.Len(t, tr.sent, 3)
	assert.Equal(t, "~25014642E002FFFD05\r", tr.sent[0])
	assert.Equal(t, pace.CID2PackCapacity, tr.sent[1][7:9])
	assert.Equal(t, pace.CID2WarnInfo, tr.sent[2][7:9])
	assert.Equal(t, []time.Duration{time.Second, time.Second, time.Second}, sl.calls)

	assert.Equal(t, []string{"analog", "capacity", "warnings"}, rec.records)
	assert.Equal(t, []bool{false, true}, rec.availability)

	soc, ok := rec.reading(1, "soc")
	require.True(t, ok)
	assert.Equal(t, 50.0, soc.Value)
	cell, ok := rec.reading(1, "v_cells/cell_2")
	require.True(t, ok)
	assert.Equal(t, 3720.0, cell.Value)
	warnings, ok := rec.reading(1, "warnings")
	require.True(t, ok)
	assert.Equal(t, pace.NoWarnings, warnings.Text)
	packSOH, ok := rec.reading(0, "pack_soh")
	require.True(t, ok)
	assert.Equal(t, 80.0, packSOH.Value)

	stats := s.Stats()
	assert.Equal(t, uint64(3), stats.TotalRequests)
	assert.Equal(t, uint64(3), stats.ValidResponses)
}

func TestSession_PollCycle_RequestFailureContinues(t *testing.T) {
	tr := newScripted().
		reply(pace.CID2PackAnalogData, respond("00", analogInfo)).
		reply(pace.CID2PackCapacity, respond("02", "")).
		reply(pace.CID2WarnInfo, respond("00", warnInfo))
	rec := &recorder{}
	s := newSession(tr, rec, &sleeps{}, nil)
	require.NoError(t, s.Connect(context.Background()))

	require.NoError(t, s.PollCycle(context.Background()))
	assert.Equal(t, []string{"analog", "warnings"}, rec.records)
	assert.Equal(t, []bool{false, true}, rec.availability, "cycle still completes")
	assert.Equal(t, uint64(1), s.Stats().ProtocolErrors)
}

func TestSession_PollCycle_LinkLost(t *testing.T) {
	tr := newScripted().reply(pace.CID2PackAnalogData, respond("00", analogInfo))
	rec := &recorder{}
	sl := &sleeps{}
	s := newSession(tr, rec, sl, nil)
	require.NoError(t, s.Connect(context.Background()))

	err := s.PollCycle(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, transport.ErrNoData)
	assert.Equal(t, Disconnected, s.State())
	assert.Equal(t, 1, tr.closes)
	assert.Equal(t, []bool{false, false}, rec.availability, "never marked online")
	assert.Len(t, sl.calls, 1, "cycle ends at the failed request")
	assert.Equal(t, uint64(1), s.Stats().TransportErrors)
}

func TestSession_VerboseCycles(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	tr := newScripted()
	for range 3 {
		tr.reply(pace.CID2PackAnalogData, respond("00", analogInfo)).
			reply(pace.CID2PackCapacity, respond("00", capacityInfo)).
			reply(pace.CID2WarnInfo, respond("00", warnInfo))
	}
	s := New(tr, &recorder{}, Options{
		Logger: zap.New(core),
		Sleep:  (&sleeps{}).sleep,
		Now:    func() time.Time { return now },
	})
	require.NoError(t, s.Connect(context.Background()))
	ctx := context.Background()

	require.NoError(t, s.PollCycle(ctx))
	assert.Equal(t, 1, logs.FilterMessage("decoded analog").Len(), "first cycle is verbose")

	now = now.Add(time.Minute)
	require.NoError(t, s.PollCycle(ctx))
	assert.Equal(t, 1, logs.FilterMessage("decoded analog").Len(), "later cycles log at debug")

	now = now.Add(time.Hour)
	require.NoError(t, s.PollCycle(ctx))
	entries := logs.FilterMessage("decoded analog").All()
	require.Len(t, entries, 2, "verbose again after an hour")
	assert.Equal(t, "3700", entries[1].ContextMap()["pack_1/v_cells/cell_1"])
}

// ============================================================
// Run
// ============================================================

func TestSession_Run(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	tr := newScripted().standard()
	tr.connectErrs = []error{errors.New("refused")}
	rec := &recorder{}
	// reconnect wait, identity gap, three cycle gaps
	sl := &sleeps{after: 5, hook: cancel}
	s := newSession(tr, rec, sl, nil)

	require.NoError(t, s.Run(ctx))

	assert.Equal(t, 2, tr.connects)
	assert.Equal(t, []time.Duration{7 * time.Second, identityGap, time.Second, time.Second, time.Second}, sl.calls)
	assert.Len(t, rec.identities, 1)
	assert.Equal(t, []string{"analog", "capacity", "warnings"}, rec.records)
	assert.Equal(t, Disconnected, s.State())
	assert.Equal(t, false, rec.availability[len(rec.availability)-1], "offline published on shutdown")
	assert.GreaterOrEqual(t, tr.closes, 1)
}

func TestSession_RunReconnectsAfterLinkLoss(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	tr := newScripted().standard().
		reply(pace.CID2PackAnalogData, respond("00", analogInfo)).
		reply(pace.CID2PackCapacity, respond("00", capacityInfo)).
		reply(pace.CID2WarnInfo, respond("00", warnInfo))
	// Lose the link on the second cycle's capacity request by removing its reply
	tr.replies[pace.CID2PackCapacity] = tr.replies[pace.CID2PackCapacity][:1]

	rec := &recorder{}
	// identity gap, 3 gaps, analog gap, reconnect wait, then cancel
	sl := &sleeps{after: 6, hook: cancel}
	s := newSession(tr, rec, sl, nil)

	require.NoError(t, s.Run(ctx))
	assert.Equal(t, 7*time.Second, sl.calls[5])
	assert.Len(t, rec.identities, 1, "identity is read once")
}

func TestSession_RunIdentityRequired(t *testing.T) {
	tr := newScripted().reply(pace.CID2SoftwareVersion, respond("00", versionInfo))
	tr.reply(pace.CID2SerialNumber, respond("04", ""))
	s := newSession(tr, &recorder{}, &sleeps{}, nil)

	err := s.Run(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrIdentityRequired)
	assert.Equal(t, Disconnected, s.State())
}

func TestSleep(t *testing.T) {
	assert.NoError(t, sleep(context.Background(), 0))
	assert.NoError(t, sleep(context.Background(), time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, sleep(ctx, time.Hour), context.Canceled)
}
