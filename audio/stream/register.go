package stream

import (
	"encoding/json"
	"os"

	"github.com/c360/speechcore/audio"
	"github.com/c360/speechcore/capability"
	"github.com/c360/speechcore/component"
	"github.com/c360/speechcore/errors"
)

// FileConfig configures the file-backed sources. Format fields apply to raw
// PCM files only.
type FileConfig struct {
	Path          string `json:"path"`
	SampleRate    uint32 `json:"sample_rate,omitempty"`
	BitsPerSample uint16 `json:"bits_per_sample,omitempty"`
	Channels      uint16 `json:"channels,omitempty"`
}

func parseFileConfig(rawConfig json.RawMessage, method string) (FileConfig, error) {
	var cfg FileConfig
	if err := component.SafeUnmarshal(rawConfig, &cfg); err != nil {
		return cfg, errors.WrapInvalid(err, "Stream", method, "config unmarshal")
	}
	if cfg.Path == "" {
		return cfg, errors.WrapInvalid(errors.ErrMissingConfig, "Stream", method, "path check")
	}
	return cfg, nil
}

// NewWAVComponent is the component.Factory for WAV file sources.
func NewWAVComponent(rawConfig json.RawMessage, _ component.Dependencies) (any, error) {
	cfg, err := parseFileConfig(rawConfig, "NewWAVComponent")
	if err != nil {
		return nil, err
	}
	return OpenWAV(cfg.Path)
}

// NewRawComponent is the component.Factory for headerless PCM files.
func NewRawComponent(rawConfig json.RawMessage, _ component.Dependencies) (any, error) {
	cfg, err := parseFileConfig(rawConfig, "NewRawComponent")
	if err != nil {
		return nil, err
	}
	format := audio.PCM(cfg.SampleRate, cfg.BitsPerSample, cfg.Channels)
	if err := format.Validate(); err != nil {
		return nil, errors.Wrap(err, "Stream", "NewRawComponent", "format validation")
	}
	f, err := os.Open(cfg.Path)
	if err != nil {
		return nil, errors.WrapInvalid(err, "Stream", "NewRawComponent", "open file")
	}
	s, err := FromReader(format, f)
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	return s, nil
}

// Register registers the WAV and raw PCM source factories.
func Register(registry *component.Registry) error {
	caps := []capability.Name{audio.SourceName, audio.RealTimeInitName}
	if err := registry.RegisterWithConfig(component.RegistrationConfig{
		Name:         "wav-source",
		Factory:      NewWAVComponent,
		Type:         component.TypeSource,
		Description:  "Reads PCM audio from a RIFF/WAVE file",
		Version:      "0.1.0",
		Capabilities: caps,
	}); err != nil {
		return err
	}
	return registry.RegisterWithConfig(component.RegistrationConfig{
		Name:         "raw-source",
		Factory:      NewRawComponent,
		Type:         component.TypeSource,
		Description:  "Reads headerless PCM audio with a configured format",
		Version:      "0.1.0",
		Capabilities: caps,
	})
}
