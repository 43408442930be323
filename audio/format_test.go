package audio

import (
	"fmt"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/speechcore/errors"
)

func TestPCM(t *testing.T) {
	f := PCM(16000, 16, 1)
	assert.Equal(t, FormatTagPCM, f.FormatTag)
	assert.Equal(t, uint16(2), f.BlockAlign)
	assert.Equal(t, uint32(32000), f.AvgBytesPerSec)
	require.NoError(t, f.Validate())
}

func TestFormat_BinaryLayout(t *testing.T) {
	f := PCM(16000, 16, 1)

	short := f.MarshalWaveFormat()
	require.Len(t, short, WaveFormatSize)

	full, err := f.MarshalBinary()
	require.NoError(t, err)
	require.Len(t, full, WaveFormatExSize)

	want := []byte{
		0x01, 0x00, // format tag
		0x01, 0x00, // channels
		0x80, 0x3e, 0x00, 0x00, // 16000
		0x00, 0x7d, 0x00, 0x00, // 32000
		0x02, 0x00, // block align
		0x10, 0x00, // bits
		0x00, 0x00, // cbSize
	}
	assert.Equal(t, want, full)
	assert.Equal(t, want[:WaveFormatSize], short)
}

func TestFormat_UnmarshalBothLayouts(t *testing.T) {
	f := PCM(44100, 16, 2)
	f.ExtraSize = 2
	f.Extra = []byte{0xaa, 0xbb}

	full, err := f.MarshalBinary()
	require.NoError(t, err)
	require.Len(t, full, WaveFormatExSize+2)

	var got Format
	require.NoError(t, got.UnmarshalBinary(full))
	assert.Equal(t, f, got)

	var short Format
	require.NoError(t, short.UnmarshalBinary(f.MarshalWaveFormat()))
	want := PCM(44100, 16, 2)
	if diff := cmp.Diff(want, short); diff != "" {
		t.Errorf("16-byte layout mismatch (-want +got):\n%s", diff)
	}
}

func TestFormat_UnmarshalRejects(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{"too short", make([]byte, 10)},
		{"between layouts", make([]byte, 17)},
		{"truncated extra", append(make([]byte, 16), 0x05, 0x00)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var f Format
			err := f.UnmarshalBinary(tt.data)
			require.Error(t, err)
			assert.ErrorIs(t, err, errors.ErrInvalidFormat)
		})
	}
}

func TestFormat_Validate(t *testing.T) {
	assert.Error(t, Format{}.Validate())
	bad := PCM(16000, 16, 1)
	bad.ExtraSize = 4
	assert.Error(t, bad.Validate())
	_, err := bad.MarshalBinary()
	assert.Error(t, err)
}

func TestFormat_BytesFor(t *testing.T) {
	f := PCM(16000, 16, 1)
	assert.Equal(t, 3200, f.BytesFor(100*time.Millisecond))
	assert.Equal(t, 2, f.BytesFor(time.Nanosecond))
	assert.Equal(t, 100*time.Millisecond, f.Duration(3200))
}

func TestErrorInfo(t *testing.T) {
	info := RuntimeError(fmt.Errorf("disk gone"))
	assert.False(t, info.IsTransportError)
	assert.Equal(t, ReasonError, info.Reason)
	assert.Equal(t, CodeRuntimeError, info.Code)
	assert.Equal(t, "logic error (error, runtime_error): disk gone", info.Error())
}
