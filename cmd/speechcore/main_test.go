package main

import (
	"bytes"
	"context"
	"encoding/binary"
	"flag"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/speechcore/config"
)

func writeWAV(t *testing.T, samples int) string {
	t.Helper()
	data := make([]byte, samples*2)
	for i := 0; i < samples; i++ {
		binary.LittleEndian.PutUint16(data[i*2:], uint16(int16(8000)))
	}

	var buf bytes.Buffer
	buf.WriteString("RIFF")
	_ = binary.Write(&buf, binary.LittleEndian, uint32(36+len(data)))
	buf.WriteString("WAVEfmt ")
	_ = binary.Write(&buf, binary.LittleEndian, uint32(16))
	_ = binary.Write(&buf, binary.LittleEndian, uint16(1))     // PCM
	_ = binary.Write(&buf, binary.LittleEndian, uint16(1))     // channels
	_ = binary.Write(&buf, binary.LittleEndian, uint32(16000)) // sample rate
	_ = binary.Write(&buf, binary.LittleEndian, uint32(32000)) // byte rate
	_ = binary.Write(&buf, binary.LittleEndian, uint16(2))     // block align
	_ = binary.Write(&buf, binary.LittleEndian, uint16(16))    // bits
	buf.WriteString("data")
	_ = binary.Write(&buf, binary.LittleEndian, uint32(len(data)))
	buf.Write(data)

	path := filepath.Join(t.TempDir(), "tone.wav")
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o600))
	return path
}

func TestParseFlagSet(t *testing.T) {
	t.Setenv("SPEECHCORE_LOG_LEVEL", "debug")

	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	cfg := parseFlagSet(fs, []string{"--kind=mp3", "--metrics-port=9191", "speech.mp3"})

	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "mp3", cfg.InputKind)
	assert.Equal(t, "speech.mp3", cfg.InputPath)
	assert.Equal(t, 9191, cfg.MetricsPort)
	require.NoError(t, validateFlags(cfg))
}

func TestValidateFlags(t *testing.T) {
	base := CLIConfig{LogLevel: "info", LogFormat: "text", ShutdownTimeout: time.Second}

	tests := []struct {
		name   string
		modify func(*CLIConfig)
	}{
		{"bad level", func(c *CLIConfig) { c.LogLevel = "loud" }},
		{"bad format", func(c *CLIConfig) { c.LogFormat = "xml" }},
		{"bad port", func(c *CLIConfig) { c.MetricsPort = 70000 }},
		{"missing config", func(c *CLIConfig) { c.ConfigPath = "/does/not/exist.yaml" }},
		{"zero timeout", func(c *CLIConfig) { c.ShutdownTimeout = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base
			tt.modify(&cfg)
			assert.Error(t, validateFlags(&cfg))
		})
	}

	skip := CLIConfig{ShowVersion: true}
	assert.NoError(t, validateFlags(&skip))
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(&buf, "warn", "json")
	logger.Info("hidden")
	logger.Warn("shown")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, `"msg":"shown"`)
	assert.Contains(t, out, `"service":"speechcore"`)
}

func TestApplyFlagOverrides(t *testing.T) {
	cfg := config.Default()
	applyFlagOverrides(cfg, &CLIConfig{InputPath: "a.wav", MetricsPort: 9000})

	assert.Equal(t, "a.wav", cfg.Input.Path)
	assert.Equal(t, config.InputWAV, cfg.Input.Kind)
	assert.True(t, cfg.Metrics.Enabled)
	assert.Equal(t, 9000, cfg.Metrics.Port)
}

func TestRunSession_PlaysFileToEnd(t *testing.T) {
	cfg := config.Default()
	cfg.Input.Path = writeWAV(t, 8000)
	require.NoError(t, cfg.Validate())

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	require.NoError(t, runSession(ctx, cfg, logger, time.Second))
}

func TestRunSession_MissingInput(t *testing.T) {
	cfg := config.Default()
	cfg.Input.Path = filepath.Join(t.TempDir(), "missing.wav")

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	err := runSession(context.Background(), cfg, logger, time.Second)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "wav-source")
}

func TestRunSession_ServesHealth(t *testing.T) {
	cfg := config.Default()
	cfg.Input.Path = writeWAV(t, 1600)
	cfg.Metrics.Enabled = true
	cfg.Metrics.Port = -1

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	// With metrics enabled the run lasts until the context ends.
	require.NoError(t, runSession(ctx, cfg, logger, time.Second))
}
