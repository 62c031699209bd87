// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package logging

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLevel_String(t *testing.T) {
	assert.Equal(t, "DEBUG", LevelDebug.String())
	assert.Equal(t, "INFO", LevelInfo.String())
	assert.Equal(t, "WARN", LevelWarn.String())
	assert.Equal(t, "ERROR", LevelError.String())
	assert.Equal(t, "UNKNOWN", Level(99).String())
}

func TestLevel_Ordering(t *testing.T) {
	assert.Less(t, int(LevelDebug), int(LevelInfo))
	assert.Less(t, int(LevelInfo), int(LevelWarn))
	assert.Less(t, int(LevelWarn), int(LevelError))
}

func TestDefault(t *testing.T) {
	l := Default()
	defer l.Close()
	assert.Equal(t, LevelInfo, l.config.Level)
	assert.Equal(t, "orchestrator", l.config.Service)
}

func TestNew_QuietSuppressesStderrButNotExporter(t *testing.T) {
	exporter := NewBufferedExporter()
	l := New(Config{Level: LevelInfo, Quiet: true, Exporter: exporter, Service: "test"})
	defer l.Close()

	l.Info("hello", "k", "v")
	require.NoError(t, l.Close())

	entries := exporter.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, "hello", entries[0].Message)
	assert.Equal(t, LevelInfo, entries[0].Level)
	assert.Equal(t, "v", entries[0].Attrs["k"])
}

func TestNew_LevelFiltersExport(t *testing.T) {
	exporter := NewBufferedExporter()
	l := New(Config{Level: LevelWarn, Quiet: true, Exporter: exporter})
	defer l.Close()

	l.Info("filtered out")
	l.Warn("kept")
	require.NoError(t, l.Close())

	entries := exporter.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, "kept", entries[0].Message)
}

func TestNew_FileLogging(t *testing.T) {
	dir := t.TempDir()
	l := New(Config{Level: LevelInfo, LogDir: dir, Service: "svc", Quiet: true})
	l.Info("to file")
	require.NoError(t, l.Close())

	entries, err := filepath.Glob(filepath.Join(dir, "svc_*.log"))
	require.NoError(t, err)
	require.Len(t, entries, 1)

	data, err := os.ReadFile(entries[0])
	require.NoError(t, err)
	assert.Contains(t, string(data), "to file")
}

func TestLogger_Close_WithoutFileOrExporter(t *testing.T) {
	l := Default()
	assert.NoError(t, l.Close())
}

func TestBufferedExporter(t *testing.T) {
	e := NewBufferedExporter()
	require.NoError(t, e.Export(nil, LogEntry{Message: "a"}))
	require.NoError(t, e.Export(nil, LogEntry{Message: "b"}))
	assert.Equal(t, []LogEntry{{Message: "a"}, {Message: "b"}}, e.Entries())
}

func TestWriterExporter(t *testing.T) {
	var buf bytes.Buffer
	e := NewWriterExporter(&buf)
	require.NoError(t, e.Export(nil, LogEntry{Level: LevelError, Message: "boom"}))
	assert.Contains(t, buf.String(), "ERROR: boom")
}

func TestNopExporter(t *testing.T) {
	e := &NopExporter{}
	assert.NoError(t, e.Export(nil, LogEntry{}))
	assert.NoError(t, e.Flush(nil))
	assert.NoError(t, e.Close())
}

func TestExpandPath(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, "logs"), expandPath("~/logs"))
	assert.Equal(t, "/var/log", expandPath("/var/log"))
}

func TestArgsToMap(t *testing.T) {
	got := argsToMap([]any{"a", 1, "b", "two"})
	assert.Equal(t, map[string]any{"a": 1, "b": "two"}, got)
}

func TestArgsToMap_OddTrailingArgIgnored(t *testing.T) {
	got := argsToMap([]any{"a", 1, "dangling"})
	assert.Equal(t, map[string]any{"a": 1}, got)
}
