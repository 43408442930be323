package config

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/c360/speechcore/errors"
)

// Input kinds
const (
	InputWAV = "wav"
	InputMP3 = "mp3"
	InputRaw = "raw"
)

// Duration is a time.Duration that reads and writes as a string.
type Duration time.Duration

// UnmarshalJSON accepts "1.5s" style strings and integer nanoseconds.
func (d *Duration) UnmarshalJSON(b []byte) error {
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	switch val := v.(type) {
	case string:
		parsed, err := time.ParseDuration(val)
		if err != nil {
			return err
		}
		*d = Duration(parsed)
	case float64:
		*d = Duration(time.Duration(val))
	default:
		return fmt.Errorf("invalid duration %v", v)
	}
	return nil
}

// MarshalJSON writes the duration as a string.
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

// MarshalYAML writes the duration as a string.
func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// Std returns the duration as a time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// Config represents the complete host configuration
type Config struct {
	Version   string          `json:"version" yaml:"version"`
	Runtime   RuntimeConfig   `json:"runtime" yaml:"runtime"`
	Pump      PumpConfig      `json:"pump" yaml:"pump"`
	Input     InputConfig     `json:"input" yaml:"input"`
	Processor ProcessorConfig `json:"processor" yaml:"processor"`
	Metrics   MetricsConfig   `json:"metrics" yaml:"metrics"`
}

// RuntimeConfig sizes the thread service
type RuntimeConfig struct {
	UserLaneQueue       int      `json:"user_lane_queue" yaml:"user_lane_queue"`
	BackgroundLaneQueue int      `json:"background_lane_queue" yaml:"background_lane_queue"`
	StopTimeout         Duration `json:"stop_timeout" yaml:"stop_timeout"`
}

// PumpConfig selects and tunes the audio pump
type PumpConfig struct {
	Factory        string   `json:"factory" yaml:"factory"`
	ChunkDuration  Duration `json:"chunk_duration" yaml:"chunk_duration"`
	ChunksPerSlice int      `json:"chunks_per_slice" yaml:"chunks_per_slice"`
}

// InputConfig describes the audio source. SampleRate, BitsPerSample and
// Channels apply to raw PCM input only.
type InputConfig struct {
	Path               string `json:"path" yaml:"path"`
	Kind               string `json:"kind" yaml:"kind"`
	RealTimePercentage uint8  `json:"real_time_percentage" yaml:"real_time_percentage"`
	SampleRate         uint32 `json:"sample_rate,omitempty" yaml:"sample_rate,omitempty"`
	BitsPerSample      uint16 `json:"bits_per_sample,omitempty" yaml:"bits_per_sample,omitempty"`
	Channels           uint16 `json:"channels,omitempty" yaml:"channels,omitempty"`
}

// ProcessorConfig names the processor factory and its raw configuration
type ProcessorConfig struct {
	Factory string         `json:"factory" yaml:"factory"`
	Config  map[string]any `json:"config,omitempty" yaml:"config,omitempty"`
}

// MetricsConfig controls the Prometheus endpoint
type MetricsConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Port    int    `json:"port" yaml:"port"`
	Path    string `json:"path" yaml:"path"`
}

// Default returns the built-in configuration
func Default() *Config {
	return &Config{
		Version: "1.0.0",
		Runtime: RuntimeConfig{
			UserLaneQueue:       1000,
			BackgroundLaneQueue: 1000,
			StopTimeout:         Duration(5 * time.Second),
		},
		Pump: PumpConfig{
			Factory:        "audio-pump",
			ChunkDuration:  Duration(100 * time.Millisecond),
			ChunksPerSlice: 4,
		},
		Input: InputConfig{
			Kind: InputWAV,
		},
		Processor: ProcessorConfig{
			Factory: "audio-meter",
		},
		Metrics: MetricsConfig{
			Enabled: false,
			Port:    9090,
			Path:    "/metrics",
		},
	}
}

// Validate checks if the config is valid
func (c *Config) Validate() error {
	var problems []string

	if c.Runtime.UserLaneQueue < 0 || c.Runtime.BackgroundLaneQueue < 0 {
		problems = append(problems, "runtime lane queue sizes must not be negative")
	}
	if c.Runtime.StopTimeout <= 0 {
		problems = append(problems, "runtime.stop_timeout must be positive")
	}
	if c.Pump.Factory == "" {
		problems = append(problems, "pump.factory is required")
	}
	if c.Pump.ChunkDuration.Std() < time.Millisecond {
		problems = append(problems, "pump.chunk_duration must be at least 1ms")
	}
	if c.Pump.ChunksPerSlice <= 0 {
		problems = append(problems, "pump.chunks_per_slice must be positive")
	}
	if c.Processor.Factory == "" {
		problems = append(problems, "processor.factory is required")
	}
	if c.Input.RealTimePercentage > 100 {
		problems = append(problems, "input.real_time_percentage must be 0-100")
	}

	c.Input.Kind = strings.ToLower(c.Input.Kind)
	switch c.Input.Kind {
	case InputWAV, InputMP3:
	case InputRaw:
		if c.Input.SampleRate == 0 || c.Input.BitsPerSample == 0 || c.Input.Channels == 0 {
			problems = append(problems, "raw input requires sample_rate, bits_per_sample and channels")
		}
	default:
		problems = append(problems, fmt.Sprintf("input.kind %q is not one of wav, mp3, raw", c.Input.Kind))
	}

	if c.Metrics.Enabled && (c.Metrics.Port < 0 || c.Metrics.Port > 65535) {
		problems = append(problems, fmt.Sprintf("metrics.port %d out of range", c.Metrics.Port))
	}

	if len(problems) > 0 {
		return errors.WrapInvalid(
			fmt.Errorf("%w: %s", errors.ErrInvalidConfig, strings.Join(problems, "; ")),
			"Config", "Validate", "configuration check")
	}
	return nil
}

// PumpJSON renders the pump section as the pump factory's configuration
func (c *Config) PumpJSON() json.RawMessage {
	data, _ := json.Marshal(map[string]int{
		"chunk_duration_ms": int(c.Pump.ChunkDuration.Std() / time.Millisecond),
		"chunks_per_slice":  c.Pump.ChunksPerSlice,
	})
	return data
}

// ProcessorJSON renders the processor configuration, or nil when empty
func (c *Config) ProcessorJSON() json.RawMessage {
	if len(c.Processor.Config) == 0 {
		return nil
	}
	data, err := json.Marshal(c.Processor.Config)
	if err != nil {
		return nil
	}
	return data
}

// Clone creates a deep copy of the configuration
func (c *Config) Clone() *Config {
	if c == nil {
		return &Config{}
	}

	// Use JSON marshaling/unmarshaling for deep copy
	data, err := json.Marshal(c)
	if err != nil {
		copied := *c
		return &copied
	}

	var clone Config
	if err := json.Unmarshal(data, &clone); err != nil {
		copied := *c
		return &copied
	}
	return &clone
}

// String returns a JSON representation of the config
func (c *Config) String() string {
	data, _ := json.MarshalIndent(c, "", "  ")
	return string(data)
}

// SaveToFile writes the configuration as YAML or JSON depending on the
// file extension
func (c *Config) SaveToFile(path string) error {
	var (
		data []byte
		err  error
	)
	if isYAML(path) {
		data, err = yaml.Marshal(c)
	} else {
		data, err = json.MarshalIndent(c, "", "  ")
	}
	if err != nil {
		return errors.Wrap(err, "Config", "SaveToFile", "marshal")
	}
	return writeConfigFile(path, data)
}

// SafeConfig provides thread-safe access to configuration
type SafeConfig struct {
	mu     sync.RWMutex
	config *Config
}

// NewSafeConfig creates a new thread-safe config wrapper
func NewSafeConfig(cfg *Config) *SafeConfig {
	if cfg == nil {
		cfg = &Config{}
	}
	return &SafeConfig{config: cfg}
}

// Get returns a deep copy of the current configuration
func (sc *SafeConfig) Get() *Config {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return sc.config.Clone()
}

// Update atomically updates the configuration after validation
func (sc *SafeConfig) Update(cfg *Config) error {
	if cfg == nil {
		return errors.WrapInvalid(errors.ErrNilArgument, "SafeConfig", "Update", "config check")
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	sc.mu.Lock()
	defer sc.mu.Unlock()
	sc.config = cfg
	return nil
}
