package mp3

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/speechcore/audio"
	"github.com/c360/speechcore/capability"
	"github.com/c360/speechcore/errors"
)

func TestNewSource_RejectsInvalidData(t *testing.T) {
	_, err := NewSource(bytes.NewReader([]byte("definitely not an mp3 stream")))
	require.Error(t, err)
	assert.True(t, errors.IsInvalid(err))
	assert.ErrorIs(t, err, errors.ErrInvalidFormat)
}

func TestNewSource_NilReader(t *testing.T) {
	_, err := NewSource(nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrNilArgument)
}

func TestOpen_MissingFile(t *testing.T) {
	_, err := Open(filepath.Join(t.TempDir(), "missing.mp3"))
	require.Error(t, err)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestSource_Capabilities(t *testing.T) {
	s := &Source{format: audio.PCM(44100, 16, 2)}
	assert.True(t, capability.Supports[audio.Source](s))
	assert.False(t, capability.Supports[audio.RealTimeInit](s))
	require.NoError(t, s.Close())
	require.NoError(t, s.Close())
}
