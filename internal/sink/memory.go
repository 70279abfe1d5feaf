// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package sink

import (
	"context"
	"sync"
	"time"

	"github.com/Thermoquad/bmsbridge/pkg/pace"
)

// RecordEntry is a record with the time it was decoded
type RecordEntry struct {
	Time   time.Time   `json:"time"`
	Record pace.Record `json:"record"`
}

// State is a copy of everything a Memory sink has seen
type State struct {
	Online    bool                   `json:"online"`
	Identity  pace.Identity          `json:"identity"`
	Records   map[string]RecordEntry `json:"records"`
	Readings  int                    `json:"readings"`
	UpdatedAt time.Time              `json:"updated_at"`
}

// Record returns the latest record of the given kind, if any
func (s State) Record(kind string) (pace.Record, bool) {
	e, ok := s.Records[kind]
	if !ok {
		return nil, false
	}
	return e.Record, true
}

// Memory keeps the latest state for the status API and the dashboard.
// It is safe for concurrent use.
type Memory struct {
	mu    sync.RWMutex
	state State
	now   func() time.Time
}

// NewMemory creates an empty memory sink
func NewMemory() *Memory {
	return &Memory{
		state: State{Records: make(map[string]RecordEntry)},
		now:   time.Now,
	}
}

// PublishReading implements TelemetrySink
func (m *Memory) PublishReading(context.Context, pace.Reading) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state.Readings++
	m.state.UpdatedAt = m.now()
	return nil
}

// PublishAvailability implements TelemetrySink
func (m *Memory) PublishAvailability(_ context.Context, online bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state.Online = online
	m.state.UpdatedAt = m.now()
	return nil
}

// PublishIdentity implements TelemetrySink
func (m *Memory) PublishIdentity(_ context.Context, id pace.Identity) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state.Identity = id
	m.state.UpdatedAt = m.now()
	return nil
}

// PublishRecord implements RecordSink
func (m *Memory) PublishRecord(_ context.Context, rec pace.Record, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state.Records[rec.Kind()] = RecordEntry{Time: at, Record: rec}
	m.state.UpdatedAt = m.now()
	return nil
}

// State returns a copy of the current state
func (m *Memory) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := m.state
	out.Records = make(map[string]RecordEntry, len(m.state.Records))
	for k, v := range m.state.Records {
		out.Records[k] = v
	}
	return out
}
