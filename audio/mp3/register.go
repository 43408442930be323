package mp3

import (
	"encoding/json"

	"github.com/c360/speechcore/audio"
	"github.com/c360/speechcore/capability"
	"github.com/c360/speechcore/component"
	"github.com/c360/speechcore/errors"
)

// Config configures an MP3 file source.
type Config struct {
	Path string `json:"path"`
}

// NewComponent is the component.Factory for MP3 file sources.
func NewComponent(rawConfig json.RawMessage, _ component.Dependencies) (any, error) {
	var cfg Config
	if err := component.SafeUnmarshal(rawConfig, &cfg); err != nil {
		return nil, errors.WrapInvalid(err, "MP3Source", "NewComponent", "config unmarshal")
	}
	if cfg.Path == "" {
		return nil, errors.WrapInvalid(errors.ErrMissingConfig, "MP3Source", "NewComponent", "path check")
	}
	return Open(cfg.Path)
}

// Register registers the MP3 source factory.
func Register(registry *component.Registry) error {
	return registry.RegisterWithConfig(component.RegistrationConfig{
		Name:         "mp3-source",
		Factory:      NewComponent,
		Type:         component.TypeSource,
		Description:  "Decodes an MP3 file to 16-bit stereo PCM",
		Version:      "0.1.0",
		Capabilities: []capability.Name{audio.SourceName},
	})
}
