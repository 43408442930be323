package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/speechcore/errors"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestDefault_IsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "audio-pump", cfg.Pump.Factory)
	assert.Equal(t, "audio-meter", cfg.Processor.Factory)
	assert.Equal(t, 100*time.Millisecond, cfg.Pump.ChunkDuration.Std())
}

func TestLoader_LoadYAML(t *testing.T) {
	path := writeFile(t, "speechcore.yaml", `
version: "1.2.0"
runtime:
  stop_timeout: 2s
pump:
  chunk_duration: 20ms
  chunks_per_slice: 8
input:
  path: /tmp/in.wav
  real_time_percentage: 100
processor:
  factory: audio-meter
  config:
    report_every: 5
`)

	loader := NewLoader()
	loader.lookupEnv = func(string) (string, bool) { return "", false }
	cfg, err := loader.LoadFile(path)
	require.NoError(t, err)

	assert.Equal(t, "1.2.0", cfg.Version)
	assert.Equal(t, 2*time.Second, cfg.Runtime.StopTimeout.Std())
	assert.Equal(t, 20*time.Millisecond, cfg.Pump.ChunkDuration.Std())
	assert.Equal(t, 8, cfg.Pump.ChunksPerSlice)
	assert.Equal(t, "/tmp/in.wav", cfg.Input.Path)
	assert.Equal(t, uint8(100), cfg.Input.RealTimePercentage)

	// Untouched keys keep their defaults
	assert.Equal(t, 1000, cfg.Runtime.UserLaneQueue)
	assert.Equal(t, "audio-pump", cfg.Pump.Factory)

	assert.JSONEq(t, `{"chunk_duration_ms": 20, "chunks_per_slice": 8}`, string(cfg.PumpJSON()))
	assert.JSONEq(t, `{"report_every": 5}`, string(cfg.ProcessorJSON()))
}

func TestLoader_Layers(t *testing.T) {
	base := writeFile(t, "base.json", `{"pump": {"chunks_per_slice": 2}, "metrics": {"port": 9191}}`)
	override := writeFile(t, "override.yml", "metrics:\n  enabled: true\n")

	loader := NewLoader()
	loader.lookupEnv = func(string) (string, bool) { return "", false }
	loader.AddLayer(base)
	loader.AddLayer(override)
	loader.EnableValidation(true)

	cfg, err := loader.Load()
	require.NoError(t, err)
	assert.Equal(t, 2, cfg.Pump.ChunksPerSlice)
	assert.True(t, cfg.Metrics.Enabled)
	assert.Equal(t, 9191, cfg.Metrics.Port)
	assert.Equal(t, "/metrics", cfg.Metrics.Path)
}

func TestLoader_EnvOverrides(t *testing.T) {
	path := writeFile(t, "speechcore.json", `{"input": {"path": "from-file.wav"}}`)

	t.Setenv("SPEECHCORE_INPUT_PATH", "from-env.mp3")
	t.Setenv("SPEECHCORE_INPUT_KIND", "MP3")
	t.Setenv("SPEECHCORE_PUMP_CHUNK_DURATION", "50ms")
	t.Setenv("SPEECHCORE_METRICS_ENABLED", "true")
	t.Setenv("SPEECHCORE_METRICS_PORT", "9300")
	t.Setenv("SPEECHCORE_INPUT_REAL_TIME_PERCENTAGE", "50")

	loader := NewLoader()
	loader.EnableValidation(true)
	cfg, err := loader.LoadFile(path)
	require.NoError(t, err)

	assert.Equal(t, "from-env.mp3", cfg.Input.Path)
	assert.Equal(t, InputMP3, cfg.Input.Kind)
	assert.Equal(t, 50*time.Millisecond, cfg.Pump.ChunkDuration.Std())
	assert.True(t, cfg.Metrics.Enabled)
	assert.Equal(t, 9300, cfg.Metrics.Port)
	assert.Equal(t, uint8(50), cfg.Input.RealTimePercentage)
}

func TestLoader_BadEnvOverride(t *testing.T) {
	t.Setenv("SPEECHCORE_PUMP_CHUNKS_PER_SLICE", "many")
	_, err := NewLoader().Load()
	require.Error(t, err)
	assert.True(t, errors.IsInvalid(err))
}

func TestLoader_Rejects(t *testing.T) {
	loader := NewLoader()
	loader.lookupEnv = func(string) (string, bool) { return "", false }

	_, err := loader.LoadFile(writeFile(t, "config.toml", "x = 1"))
	assert.Error(t, err)

	_, err = loader.LoadFile(writeFile(t, "broken.json", `{"pump": `))
	assert.Error(t, err)

	_, err = loader.LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero chunk duration", func(c *Config) { c.Pump.ChunkDuration = 0 }},
		{"zero chunks per slice", func(c *Config) { c.Pump.ChunksPerSlice = 0 }},
		{"missing pump factory", func(c *Config) { c.Pump.Factory = "" }},
		{"missing processor factory", func(c *Config) { c.Processor.Factory = "" }},
		{"unknown input kind", func(c *Config) { c.Input.Kind = "flac" }},
		{"raw without format", func(c *Config) { c.Input.Kind = InputRaw }},
		{"pace over 100", func(c *Config) { c.Input.RealTimePercentage = 150 }},
		{"negative queue", func(c *Config) { c.Runtime.UserLaneQueue = -1 }},
		{"zero stop timeout", func(c *Config) { c.Runtime.StopTimeout = 0 }},
		{"metrics port", func(c *Config) { c.Metrics.Enabled = true; c.Metrics.Port = 70000 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.ErrorIs(t, err, errors.ErrInvalidConfig)
		})
	}

	raw := Default()
	raw.Input = InputConfig{Kind: InputRaw, SampleRate: 16000, BitsPerSample: 16, Channels: 1}
	assert.NoError(t, raw.Validate())
}

func TestDuration_JSON(t *testing.T) {
	var d Duration
	require.NoError(t, json.Unmarshal([]byte(`"1.5s"`), &d))
	assert.Equal(t, 1500*time.Millisecond, d.Std())
	require.NoError(t, json.Unmarshal([]byte(`2000000`), &d))
	assert.Equal(t, 2*time.Millisecond, d.Std())
	assert.Error(t, json.Unmarshal([]byte(`true`), &d))

	out, err := json.Marshal(Duration(250 * time.Millisecond))
	require.NoError(t, err)
	assert.Equal(t, `"250ms"`, string(out))
}

func TestConfig_SaveAndReload(t *testing.T) {
	loader := NewLoader()
	loader.lookupEnv = func(string) (string, bool) { return "", false }

	for _, name := range []string{"saved.yaml", "saved.json"} {
		t.Run(name, func(t *testing.T) {
			cfg := Default()
			cfg.Pump.ChunksPerSlice = 7
			cfg.Runtime.StopTimeout = Duration(3 * time.Second)

			path := filepath.Join(t.TempDir(), name)
			require.NoError(t, cfg.SaveToFile(path))

			loaded, err := loader.LoadFile(path)
			require.NoError(t, err)
			assert.Equal(t, 7, loaded.Pump.ChunksPerSlice)
			assert.Equal(t, 3*time.Second, loaded.Runtime.StopTimeout.Std())
		})
	}
}

func TestSafeConfig(t *testing.T) {
	sc := NewSafeConfig(Default())

	cfg := sc.Get()
	cfg.Pump.ChunksPerSlice = 99
	assert.Equal(t, 4, sc.Get().Pump.ChunksPerSlice, "Get must return a copy")

	bad := Default()
	bad.Pump.Factory = ""
	assert.Error(t, sc.Update(bad))
	assert.Error(t, sc.Update(nil))

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_ = sc.Get()
		}()
		go func(n int) {
			defer wg.Done()
			next := Default()
			next.Pump.ChunksPerSlice = n + 1
			assert.NoError(t, sc.Update(next))
		}(i)
	}
	wg.Wait()
	assert.Positive(t, sc.Get().Pump.ChunksPerSlice)
}

func TestNewSafeConfig_Nil(t *testing.T) {
	sc := NewSafeConfig(nil)
	assert.NotNil(t, sc.Get())
}

func TestLoader_RejectsUnsafeFiles(t *testing.T) {
	dir := t.TempDir()

	txt := filepath.Join(dir, "config.txt")
	require.NoError(t, os.WriteFile(txt, []byte("{}"), 0o600))
	_, err := NewLoader().LoadFile(txt)
	assert.Error(t, err)

	_, err = NewLoader().LoadFile("../outside.yaml")
	assert.Error(t, err)

	nested := "x: " + strings.Repeat("[", maxNesting+2) + strings.Repeat("]", maxNesting+2) + "\n"
	deep := filepath.Join(dir, "deep.yaml")
	require.NoError(t, os.WriteFile(deep, []byte(nested), 0o600))
	_, err = NewLoader().LoadFile(deep)
	assert.Error(t, err)
	assert.True(t, errors.IsInvalid(err))
}
