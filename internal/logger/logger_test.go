// SPDX-FileCopyrightText: 2025 The Joulehunter Authors
// SPDX-License-Identifier: Apache-2.0

package logger

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	tt := []struct {
		name     string
		format   string
		logLevel string

		shouldLogInfo bool
	}{
		{"json format debug level", "json", "debug", true},
		{"json format info level", "json", "info", true},
		{"json format warn level", "json", "warn", false},
		{"text format info level", "text", "info", true},
		{"text format warn level", "text", "warn", false},
		{"text format error level", "text", "error", false},
		{"unknown level falls back to info", "text", "loud", true},
	}

	for _, tc := range tt {
		t.Run(tc.name, func(t *testing.T) {
			out := bytes.Buffer{}
			logger := New(tc.logLevel, tc.format, &out)
			logger.Info("Profiling started", "domains", "package-0")

			output := out.String()
			if !tc.shouldLogInfo {
				assert.NotContains(t, output, "Profiling started")
				return
			}
			require.Contains(t, output, "Profiling started")

			switch tc.format {
			case "text":
				assert.Contains(t, output, "source=internal/logger/logger_test.go:")
				assert.Contains(t, output, "domains=package-0")
			case "json":
				fields := map[string]any{}
				require.NoError(t, json.Unmarshal(out.Bytes(), &fields))
				assert.Contains(t, fields, "time")
				assert.Equal(t, "Profiling started", fields["msg"])
				assert.Equal(t, "package-0", fields["domains"])
			}
		})
	}
}

func TestNewInvalidFormat(t *testing.T) {
	assert.Panics(t, func() {
		_ = New("info", "xml", &bytes.Buffer{})
	})
}

func TestLogLevel(t *testing.T) {
	tt := []struct {
		level string
		want  slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"error", slog.LevelError},
		{"", slog.LevelInfo},
	}

	for _, tc := range tt {
		t.Run(tc.level, func(t *testing.T) {
			New(tc.level, "text", &bytes.Buffer{})
			assert.Equal(t, tc.want, LogLevel())
		})
	}
}

func TestShortSource(t *testing.T) {
	tt := []struct {
		file string
		want string
	}{
		{"/home/user/joulehunter/internal/sampler/sampler.go", "internal/sampler/sampler.go"},
		{"sampler/sampler.go", "sampler/sampler.go"},
		{"main.go", "main.go"},
	}

	for _, tc := range tt {
		t.Run(tc.file, func(t *testing.T) {
			a := shortSource(nil, slog.Any(slog.SourceKey, &slog.Source{File: tc.file, Line: 3}))
			src, ok := a.Value.Any().(*slog.Source)
			require.True(t, ok)
			assert.Equal(t, tc.want, src.File)
		})
	}

	other := shortSource(nil, slog.String("msg", "/a/b/c/d"))
	assert.True(t, strings.HasPrefix(other.Value.String(), "/a/b"))
}
