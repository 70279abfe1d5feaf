// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package logging

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/Thermoquad/bmsbridge/internal/config"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, zapcore.DebugLevel, ParseLevel("DEBUG", 0))
	assert.Equal(t, zapcore.WarnLevel, ParseLevel("warning", 3))
	assert.Equal(t, zapcore.ErrorLevel, ParseLevel("error", 0))
	assert.Equal(t, zapcore.InfoLevel, ParseLevel("", 0))
	assert.Equal(t, zapcore.DebugLevel, ParseLevel("", 1), "tracing implies debug")
	assert.Equal(t, zapcore.InfoLevel, ParseLevel("info", 2), "explicit level wins")
}

func TestNew_JSON(t *testing.T) {
	var buf bytes.Buffer
	logger, err := newLogger(config.LoggingConfig{Level: "info", Format: "json"}, 0, &buf)
	require.NoError(t, err)

	logger.Debug("hidden")
	logger.Info("poll cycle complete", zap.Int("packs", 2))
	require.NoError(t, logger.Sync())

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "info", entry["level"])
	assert.Equal(t, "poll cycle complete", entry["msg"])
	assert.EqualValues(t, 2, entry["packs"])
	assert.Contains(t, entry, "ts")
	assert.NotContains(t, buf.String(), "hidden")
}

func TestNew_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bms.log")
	var buf bytes.Buffer
	logger, err := newLogger(config.LoggingConfig{
		Format: "console",
		File:   config.LumberjackConfig{Filename: path, MaxSizeMB: 1},
	}, 0, &buf)
	require.NoError(t, err)

	logger.Warn("link lost")
	require.NoError(t, logger.Sync())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "link lost")
	assert.Contains(t, buf.String(), "link lost")
}
