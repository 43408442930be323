package mp3

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/speechcore/component"
	"github.com/c360/speechcore/errors"
)

func TestRegister(t *testing.T) {
	registry := component.NewRegistry(component.Dependencies{})
	require.NoError(t, Register(registry))

	reg, ok := registry.Registration("mp3-source")
	require.True(t, ok)
	assert.Equal(t, component.TypeSource, reg.Type)

	_, ok = registry.CreateObject("mp3-source", json.RawMessage(`{"path":"missing.mp3"}`))
	assert.False(t, ok)
}

func TestNewComponent_RequiresPath(t *testing.T) {
	_, err := NewComponent(json.RawMessage(`{}`), component.Dependencies{})
	assert.True(t, errors.IsInvalid(err))
	assert.ErrorIs(t, err, errors.ErrMissingConfig)
}
