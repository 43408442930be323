// Package componentregistry registers the built-in speechcore object factories.
package componentregistry

import (
	"errors"

	"github.com/c360/speechcore/audio/mp3"
	"github.com/c360/speechcore/audio/stream"
	"github.com/c360/speechcore/component"
	pkgerrors "github.com/c360/speechcore/errors"
	"github.com/c360/speechcore/processor/meter"
	"github.com/c360/speechcore/pump"
)

// Register registers every built-in factory with the provided registry:
//
// Sources:
//   - wav-source, raw-source (file-backed PCM)
//   - mp3-source (decoded MP3)
//
// Pipeline:
//   - audio-pump (chunked pull from a source on the background lane)
//   - audio-meter (peak and RMS level processor)
func Register(registry *component.Registry) error {
	if registry == nil {
		return pkgerrors.WrapFatal(
			errors.New("registry cannot be nil"),
			"ComponentRegistry", "Register", "registry validation")
	}

	if err := stream.Register(registry); err != nil {
		return pkgerrors.WrapInvalid(err, "ComponentRegistry", "Register", "stream source registration")
	}

	if err := mp3.Register(registry); err != nil {
		return pkgerrors.WrapInvalid(err, "ComponentRegistry", "Register", "MP3 source registration")
	}

	if err := pump.Register(registry); err != nil {
		return pkgerrors.WrapInvalid(err, "ComponentRegistry", "Register", "audio pump registration")
	}

	if err := meter.Register(registry); err != nil {
		return pkgerrors.WrapInvalid(err, "ComponentRegistry", "Register", "audio meter registration")
	}

	return nil
}
