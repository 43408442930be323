// Package meter provides an audio processor that measures signal level.
//
// The meter accepts 16-bit PCM, computes peak and RMS amplitude over every
// ReportEvery chunks and reports them to its site. SetFormat(nil) reports
// completion.
package meter

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/c360/speechcore/audio"
	"github.com/c360/speechcore/capability"
	"github.com/c360/speechcore/component"
	"github.com/c360/speechcore/errors"
	"github.com/c360/speechcore/metric"
	"github.com/c360/speechcore/site"
)

// Level is one measurement. Peak and RMS are normalized to [0, 1].
type Level struct {
	Peak     float64       `json:"peak"`
	RMS      float64       `json:"rms"`
	Samples  int           `json:"samples"`
	Duration time.Duration `json:"duration"`
}

// DBFS returns the RMS level in decibels relative to full scale.
func (l Level) DBFS() float64 {
	if l.RMS <= 0 {
		return math.Inf(-1)
	}
	return 20 * math.Log10(l.RMS)
}

// Site is the capability a meter requires from its site.
type Site interface {
	ReportLevel(source any, level Level)
	MeterCompleted(source any)
}

var SiteName = capability.Define[Site]("AudioMeterSite")

// Config holds meter settings.
type Config struct {
	ReportEvery int `json:"report_every"`
}

// DefaultConfig reports every chunk.
func DefaultConfig() Config {
	return Config{ReportEvery: 1}
}

// Meter is an audio.Processor reporting levels to its site.
type Meter struct {
	site.Holder[Site]

	name     string
	config   Config
	logger   *slog.Logger
	registry *metric.MetricsRegistry

	mu      sync.Mutex
	format  *audio.Format
	pending int
	peak    int
	sumSq   float64
	samples int
}

// New creates a meter.
func New(config Config, logger *slog.Logger, registry *metric.MetricsRegistry) *Meter {
	if config.ReportEvery <= 0 {
		config.ReportEvery = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Meter{
		name:     "audio-meter",
		config:   config,
		logger:   logger.With("component", "audio-meter"),
		registry: registry,
	}
}

// NewComponent is the component.Factory for the meter.
func NewComponent(rawConfig json.RawMessage, deps component.Dependencies) (any, error) {
	config := DefaultConfig()
	if len(rawConfig) > 0 {
		if err := component.SafeUnmarshal(rawConfig, &config); err != nil {
			return nil, errors.WrapInvalid(err, "AudioMeter", "NewComponent", "config unmarshal")
		}
	}
	if config.ReportEvery < 0 {
		return nil, errors.WrapInvalid(errors.ErrInvalidConfig, "AudioMeter", "NewComponent",
			fmt.Sprintf("report_every %d", config.ReportEvery))
	}
	return New(config, deps.GetLogger(), deps.MetricsRegistry), nil
}

// Register registers the meter factory.
func Register(registry *component.Registry) error {
	return registry.RegisterWithConfig(component.RegistrationConfig{
		Name:         "audio-meter",
		Factory:      NewComponent,
		Type:         component.TypeProcessor,
		Description:  "Measures peak and RMS level of 16-bit PCM audio",
		Version:      "0.1.0",
		Capabilities: []capability.Name{audio.ProcessorName, site.ObjectWithSiteName},
	})
}

// SetFormat implements audio.Processor. Formats other than 16-bit PCM are
// ignored with a warning.
func (m *Meter) SetFormat(format *audio.Format) {
	if format == nil {
		m.mu.Lock()
		level, ok := m.flush()
		m.format = nil
		m.mu.Unlock()

		if ok {
			m.InvokeOnSite(func(s Site) { s.ReportLevel(m, level) })
		}
		m.InvokeOnSite(func(s Site) { s.MeterCompleted(m) })
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.reset()
	if format.FormatTag != audio.FormatTagPCM || format.BitsPerSample != 16 {
		m.logger.Warn("Unsupported format, audio will be ignored", "format", format.String())
		m.format = nil
		return
	}
	f := *format
	m.format = &f
}

// ProcessAudio implements audio.Processor.
func (m *Meter) ProcessAudio(chunk audio.Chunk) {
	m.mu.Lock()
	if m.format == nil {
		m.mu.Unlock()
		return
	}
	for i := 0; i+1 < len(chunk.Data); i += 2 {
		v := int(int16(binary.LittleEndian.Uint16(chunk.Data[i:])))
		if v < 0 {
			v = -v
		}
		if v > m.peak {
			m.peak = v
		}
		m.sumSq += float64(v) * float64(v)
		m.samples++
	}
	m.pending++

	var level Level
	report := m.pending >= m.config.ReportEvery
	if report {
		level, report = m.flush()
	}
	m.mu.Unlock()

	if m.registry != nil {
		m.registry.CoreMetrics().RecordAudio(m.name, len(chunk.Data))
	}
	if report {
		m.InvokeOnSite(func(s Site) { s.ReportLevel(m, level) })
	}
}

// QueryCapability implements capability.Object.
func (m *Meter) QueryCapability(name capability.Name) (any, bool) {
	return capability.Lookup(name,
		capability.Of[audio.Processor](m),
		capability.Of[site.ObjectWithSite](m),
		capability.Of[capability.Object](m),
	)
}

// flush turns the accumulated samples into a Level. Callers hold mu.
func (m *Meter) flush() (Level, bool) {
	if m.samples == 0 || m.format == nil {
		m.reset()
		return Level{}, false
	}
	const fullScale = 32768.0
	level := Level{
		Peak:    float64(m.peak) / fullScale,
		RMS:     math.Sqrt(m.sumSq/float64(m.samples)) / fullScale,
		Samples: m.samples,
	}
	level.Duration = m.format.Duration(m.samples * 2)
	m.reset()
	return level, true
}

func (m *Meter) reset() {
	m.pending = 0
	m.peak = 0
	m.sumSq = 0
	m.samples = 0
}
