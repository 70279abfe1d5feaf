// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"sync"
	"time"

	"go.uber.org/zap/zapcore"
)

// eventEntry is one log entry shown in the dashboard
type eventEntry struct {
	timestamp time.Time
	level     zapcore.Level
	logger    string
	message   string
	err       string
}

// eventLog is a zap core that keeps the last entries in memory so the
// dashboard can show them instead of writing to the terminal
type eventLog struct {
	zapcore.LevelEnabler

	mu      sync.Mutex
	entries []eventEntry
	max     int
}

func newEventLog(level zapcore.LevelEnabler, max int) *eventLog {
	return &eventLog{LevelEnabler: level, max: max}
}

// With drops context fields; entries keep only their message and error
func (l *eventLog) With([]zapcore.Field) zapcore.Core { return l }

func (l *eventLog) Check(ent zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if l.Enabled(ent.Level) {
		return ce.AddCore(ent, l)
	}
	return ce
}

func (l *eventLog) Write(ent zapcore.Entry, fields []zapcore.Field) error {
	e := eventEntry{
		timestamp: ent.Time,
		level:     ent.Level,
		logger:    ent.LoggerName,
		message:   ent.Message,
	}
	for _, f := range fields {
		if f.Type == zapcore.ErrorType {
			if err, ok := f.Interface.(error); ok {
				e.err = err.Error()
			}
		}
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, e)
	if len(l.entries) > l.max {
		l.entries = l.entries[len(l.entries)-l.max:]
	}
	return nil
}

func (l *eventLog) Sync() error { return nil }

// add records a dashboard-generated entry
func (l *eventLog) add(level zapcore.Level, message string) {
	_ = l.Write(zapcore.Entry{Time: time.Now(), Level: level, Message: message}, nil)
}

// snapshot returns a copy of the retained entries, oldest first
func (l *eventLog) snapshot() []eventEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]eventEntry, len(l.entries))
	copy(out, l.entries)
	return out
}
