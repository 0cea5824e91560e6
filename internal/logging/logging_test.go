// Copyright (c) Edgeless Systems GmbH
// SPDX-License-Identifier: GPL-3.0-only

package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLevelFromString(t *testing.T) {
	testCases := map[string]struct {
		level    string
		fallback slog.Level
		want     slog.Level
	}{
		"debug":         {level: "debug", want: slog.LevelDebug},
		"upper case":    {level: "DEBUG", want: slog.LevelDebug},
		"empty":         {level: "", fallback: slog.LevelError, want: slog.LevelInfo},
		"info":          {level: "info", want: slog.LevelInfo},
		"warn":          {level: "warn", want: slog.LevelWarn},
		"warning":       {level: "warning", want: slog.LevelWarn},
		"error":         {level: "error", want: slog.LevelError},
		"number":        {level: "-8", want: slog.Level(-8)},
		"unknown":       {level: "loud", fallback: slog.LevelWarn, want: slog.LevelWarn},
		"unknown error": {level: "verbose", fallback: slog.LevelError, want: slog.LevelError},
	}

	for name, tc := range testCases {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, tc.want, LevelFromString(tc.level, tc.fallback))
		})
	}
}

func TestNewCLILogger(t *testing.T) {
	assert := assert.New(t)

	var out bytes.Buffer
	log := NewCLILogger("nonsense", &out)
	log.Info("hidden")
	assert.Empty(out.String())

	log.Warn("shown", "fd", 3)
	assert.Contains(out.String(), "msg=shown")
	assert.Contains(out.String(), "fd=3")
}

func TestNewFileLogger(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)

	filename := filepath.Join(t.TempDir(), "agent.log")
	var out bytes.Buffer
	log := NewFileLogger("debug", &out, filename)
	log.Debug("device opened", "path", "/dev/nsm")

	var entry map[string]any
	require.NoError(json.Unmarshal(out.Bytes(), &entry))
	assert.Equal("device opened", entry["msg"])
	assert.Equal("/dev/nsm", entry["path"])

	written, err := os.ReadFile(filename)
	require.NoError(err)
	assert.Equal(out.Bytes(), written)
}

func TestNewFileLoggerWithoutFile(t *testing.T) {
	var out bytes.Buffer
	NewFileLogger("info", &out, "").Info("hello")
	assert.Contains(t, out.String(), `"msg":"hello"`)
}

func TestNewLogWrapper(t *testing.T) {
	assert := assert.New(t)

	var out bytes.Buffer
	wrapped := NewLogWrapper(slog.New(slog.NewJSONHandler(&out, nil)))
	wrapped.Println("http: TLS handshake error")

	var entry map[string]any
	assert.NoError(json.Unmarshal(out.Bytes(), &entry))
	assert.Equal("ERROR", entry["level"])
	assert.Equal("http: TLS handshake error", entry["msg"])
}
