// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package session sequences BMS requests over a transport, tracks link
// state and hands decoded records to a telemetry sink.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/Thermoquad/bmsbridge/internal/metrics"
	"github.com/Thermoquad/bmsbridge/internal/sink"
	"github.com/Thermoquad/bmsbridge/pkg/pace"
	"github.com/Thermoquad/bmsbridge/pkg/transport"
)

// State is the link state
type State int

const (
	Disconnected State = iota
	Connected
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connected:
		return "connected"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// ErrIdentityRequired is returned when the serial numbers cannot be read.
// The bridge does not run without them.
var ErrIdentityRequired = errors.New("BMS and pack serial numbers are required")

// Defaults
const (
	DefaultScanInterval    = 5 * time.Second
	DefaultReconnectDelay  = 5 * time.Second
	DefaultVerboseInterval = time.Hour

	identityGap    = 100 * time.Millisecond
	publishTimeout = 5 * time.Second
)

// Options configures a Session
type Options struct {
	Header         pace.Header
	ScanInterval   time.Duration
	ReconnectDelay time.Duration
	// VerboseInterval is how often a cycle logs every value at info level
	VerboseInterval time.Duration
	// DebugLevel is the protocol trace level (0-3)
	DebugLevel int

	Logger  *zap.Logger
	Metrics *metrics.SessionMetrics

	// Sleep and Now are replaced in tests
	Sleep func(ctx context.Context, d time.Duration) error
	Now   func() time.Time
}

func (o Options) withDefaults() Options {
	if o.ScanInterval <= 0 {
		o.ScanInterval = DefaultScanInterval
	}
	if o.ReconnectDelay < 0 {
		o.ReconnectDelay = 0
	}
	if o.VerboseInterval <= 0 {
		o.VerboseInterval = DefaultVerboseInterval
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	if o.Sleep == nil {
		o.Sleep = sleep
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	return o
}

// Reply is the outcome of one request. Raw and Response are set as far as
// the exchange got, so callers can show what arrived even on failure.
type Reply struct {
	Command  pace.Command
	Raw      []byte
	Response *pace.Response
	Record   pace.Record
}

// Session owns a transport for its lifetime. Only one request is ever in
// flight; State and Stats may be read from other goroutines.
type Session struct {
	tr     transport.Transport
	sink   sink.TelemetrySink
	opts   Options
	logger *zap.Logger

	mu          sync.Mutex
	state       State
	stats       *pace.Statistics
	identity    pace.Identity
	hasIdentity bool
	packs       int
	cells       int

	verbose     bool
	lastVerbose time.Time
}

// New creates a session. It does not connect.
func New(tr transport.Transport, s sink.TelemetrySink, opts Options) *Session {
	opts = opts.withDefaults()
	if s == nil {
		s = sink.Discard{}
	}
	return &Session{
		tr:     tr,
		sink:   s,
		opts:   opts,
		logger: opts.Logger.With(zap.String("transport", tr.String())),
		stats:  pace.NewStatistics(),
	}
}

// State returns the link state
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Stats returns a copy of the request statistics
func (s *Session) Stats() pace.Statistics {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats.Snapshot()
}

// Identity returns the identity read by FetchIdentity
func (s *Session) Identity() (pace.Identity, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.identity, s.hasIdentity
}

// Layout returns the pack and cells-per-pack counts from the last analog
// response
func (s *Session) Layout() (packs, cells int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.packs, s.cells
}

func (s *Session) setState(st State) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
}

// Connect opens the transport. The sink is told the BMS is offline until
// the next complete poll cycle.
func (s *Session) Connect(ctx context.Context) error {
	s.logger.Info("connecting to BMS")
	err := s.tr.Connect(ctx)
	s.opts.Metrics.ObserveConnect(err)
	if err != nil {
		s.setState(Disconnected)
		s.publishAvailability(false)
		return err
	}

	s.setState(Connected)
	s.verbose = true
	s.logger.Info("BMS connected")
	s.publishAvailability(false)
	return nil
}

// disconnect closes the transport after a link failure
func (s *Session) disconnect(cause error) {
	if s.State() == Disconnected {
		return
	}
	s.logger.Warn("BMS link lost", zap.Error(cause))
	if err := s.tr.Close(); err != nil {
		s.logger.Debug("close after link loss", zap.Error(err))
	}
	s.setState(Disconnected)
	s.opts.Metrics.ObserveDisconnect()
	s.publishAvailability(false)
}

// Close closes the transport and publishes offline
func (s *Session) Close() error {
	err := s.tr.Close()
	s.setState(Disconnected)
	s.opts.Metrics.ObserveDisconnect()
	s.publishAvailability(false)
	return err
}

func (s *Session) publishAvailability(online bool) {
	// Publish even while the run context is being cancelled
	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()
	if err := s.sink.PublishAvailability(ctx, online); err != nil {
		s.logger.Warn("failed to publish availability", zap.Error(err))
	}
}

// Request sends one command and decodes the response. Transport failures
// move the session to Disconnected; every other failure only affects this
// request.
func (s *Session) Request(ctx context.Context, cmd pace.Command) (*Reply, error) {
	reply := &Reply{Command: cmd}
	err := s.request(ctx, reply)

	anomalies := 0
	if analog, ok := reply.Record.(pace.AnalogData); ok {
		anomalies = s.validate(analog)
	}

	s.mu.Lock()
	s.stats.Update(err, anomalies)
	s.mu.Unlock()
	s.opts.Metrics.ObserveRequest(cmd.Name, err)

	if err != nil {
		if transport.IsTransportError(err) {
			s.disconnect(err)
		}
		return reply, fmt.Errorf("%s: %w", cmd.Name, err)
	}
	return reply, nil
}

func (s *Session) request(ctx context.Context, reply *Reply) error {
	if s.State() != Connected {
		return &transport.Error{Op: "send", Addr: s.tr.String(), Err: transport.ErrNotConnected}
	}

	frame, err := pace.EncodeRequest(reply.Command)
	if err != nil {
		return err
	}
	if s.opts.DebugLevel >= 3 {
		s.logger.Debug("trace: sending", zap.ByteString("raw", frame))
	}
	if err := s.tr.Send(ctx, frame); err != nil {
		return err
	}

	raw, err := s.tr.Receive(ctx)
	if err != nil {
		return err
	}
	reply.Raw = raw
	if s.opts.DebugLevel >= 3 {
		s.logger.Debug("trace: received", zap.ByteString("raw", raw))
	}
	if s.opts.DebugLevel >= 2 {
		s.logger.Debug("trace: frame\n" + pace.FormatFrame(raw))
	}

	resp, err := pace.DecodeResponse(raw)
	if err != nil {
		if kind, ok := pace.KindOf(err); ok && kind == pace.KindChecksum && s.opts.DebugLevel >= 1 {
			s.logger.Debug("checksum mismatch", zap.ByteString("raw", raw), zap.Error(err))
		}
		return err
	}
	reply.Response = resp
	if !resp.RTNKnown() {
		s.logger.Warn("unrecognised RTN, treating as success",
			zap.String("command", reply.Command.Name), zap.String("rtn", resp.RTN))
	}

	rec, err := pace.DecodeInfo(reply.Command.CID2, resp.Info)
	if err != nil {
		return err
	}
	reply.Record = rec
	return nil
}

func (s *Session) validate(a pace.AnalogData) int {
	if len(a.Packs) > 0 {
		s.mu.Lock()
		s.packs = len(a.Packs)
		s.cells = len(a.Packs[0].CellVoltages)
		s.mu.Unlock()
	}
	anomalies := pace.ValidateAnalog(a)
	for _, v := range anomalies {
		s.logger.Warn("implausible value",
			zap.String("type", v.Type.String()),
			zap.Int("pack", v.Pack),
			zap.String("detail", v.Message))
	}
	s.opts.Metrics.ObserveAnomalies(anomalies)
	return len(anomalies)
}

// FetchIdentity reads the firmware version and the serial numbers and
// publishes them. A missing version is logged and tolerated; a missing
// serial number returns ErrIdentityRequired. A link failure while reading
// the version is returned as is so the caller can reconnect.
func (s *Session) FetchIdentity(ctx context.Context) (pace.Identity, error) {
	var id pace.Identity

	reply, err := s.Request(ctx, s.opts.Header.SoftwareVersion())
	switch {
	case err == nil:
		id.Version = reply.Record.(pace.Identity).Version
		s.logger.Info("BMS version", zap.String("version", id.Version))
	case transport.IsTransportError(err):
		return id, err
	default:
		s.logger.Warn("error retrieving BMS version number", zap.Error(err))
	}

	if err := s.opts.Sleep(ctx, identityGap); err != nil {
		return id, err
	}

	reply, err = s.Request(ctx, s.opts.Header.SerialNumber())
	if err != nil {
		return id, fmt.Errorf("%w: %w", ErrIdentityRequired, err)
	}
	serials := reply.Record.(pace.Identity)
	id.BMSSerial = serials.BMSSerial
	id.PackSerial = serials.PackSerial
	s.logger.Info("BMS serial numbers",
		zap.String("bms_sn", id.BMSSerial),
		zap.String("pack_sn", id.PackSerial))

	s.mu.Lock()
	s.identity = id
	s.hasIdentity = true
	s.mu.Unlock()

	if err := s.sink.PublishIdentity(ctx, id); err != nil {
		s.logger.Warn("failed to publish identity", zap.Error(err))
	}
	return id, nil
}

// PollCycle issues the analog, capacity and warning requests, waiting a
// third of the scan interval after each, then marks the BMS online.
// Request failures are logged and the cycle continues; a link failure ends
// the cycle and is returned.
func (s *Session) PollCycle(ctx context.Context) error {
	started := s.opts.Now()
	level := zapcore.DebugLevel
	if s.verbose || started.Sub(s.lastVerbose) >= s.opts.VerboseInterval {
		level = zapcore.InfoLevel
		s.lastVerbose = started
	}

	commands := []pace.Command{
		s.opts.Header.PackAnalogData(pace.AllPacks),
		s.opts.Header.PackCapacity(),
		s.opts.Header.WarnInfo(),
	}
	gap := s.opts.ScanInterval / 3

	for _, cmd := range commands {
		reply, err := s.Request(ctx, cmd)
		if err != nil {
			if transport.IsTransportError(err) {
				return err
			}
			s.logger.Warn("request failed", zap.String("command", cmd.Name), zap.Error(err))
		} else {
			s.publish(ctx, reply.Record, level)
		}

		if err := s.opts.Sleep(ctx, gap); err != nil {
			return err
		}
	}

	s.publishAvailability(true)
	s.verbose = false
	s.opts.Metrics.ObserveCycle(started, s.opts.Now())
	return nil
}

func (s *Session) publish(ctx context.Context, rec pace.Record, level zapcore.Level) {
	if ce := s.logger.Check(level, "decoded "+rec.Kind()); ce != nil {
		fields := make([]zap.Field, 0, 8)
		for _, r := range rec.Readings() {
			key := r.Key
			if r.Pack > 0 {
				key = fmt.Sprintf("pack_%d/%s", r.Pack, r.Key)
			}
			fields = append(fields, zap.String(key, r.String()))
		}
		ce.Write(fields...)
	}

	if err := sink.Publish(ctx, s.sink, rec, s.opts.Now()); err != nil {
		s.logger.Warn("failed to publish "+rec.Kind(), zap.Error(err))
	}
}

// Run connects, reads the identity once and polls until ctx is cancelled.
// Link failures are retried after the reconnect delay. Run returns nil on
// cancellation and a wrapped ErrIdentityRequired when the serial numbers
// cannot be read.
func (s *Session) Run(ctx context.Context) error {
	defer func() {
		if err := s.Close(); err != nil {
			s.logger.Debug("close", zap.Error(err))
		}
	}()

	for ctx.Err() == nil {
		if s.State() == Disconnected {
			if err := s.Connect(ctx); err != nil {
				s.logger.Warn("BMS disconnected, trying to reconnect...", zap.Error(err))
				s.waitReconnect(ctx)
				continue
			}
		}

		if _, ok := s.Identity(); !ok {
			if _, err := s.FetchIdentity(ctx); err != nil {
				if errors.Is(err, ErrIdentityRequired) {
					s.logger.Error("error retrieving BMS and pack serial numbers", zap.Error(err))
					return err
				}
				s.waitReconnect(ctx)
				continue
			}
		}

		if err := s.PollCycle(ctx); err != nil && ctx.Err() == nil {
			s.waitReconnect(ctx)
		}
	}
	return nil
}

func (s *Session) waitReconnect(ctx context.Context) {
	_ = s.opts.Sleep(ctx, s.opts.ReconnectDelay)
}

// sleep waits for d or until ctx is done
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
