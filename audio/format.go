package audio

import (
	"encoding/binary"
	"fmt"
	"time"

	"github.com/c360/speechcore/errors"
)

// FormatTagPCM is the format tag of uncompressed integer PCM.
const FormatTagPCM uint16 = 1

const (
	// WaveFormatSize is the size of the packed record without cbSize.
	WaveFormatSize = 16
	// WaveFormatExSize is the size of the packed record including cbSize.
	WaveFormatExSize = 18
)

// Format describes an audio stream.
type Format struct {
	FormatTag      uint16 `json:"format_tag"`
	Channels       uint16 `json:"channels"`
	SamplesPerSec  uint32 `json:"samples_per_sec"`
	AvgBytesPerSec uint32 `json:"avg_bytes_per_sec"`
	BlockAlign     uint16 `json:"block_align"`
	BitsPerSample  uint16 `json:"bits_per_sample"`
	// ExtraSize is the number of format-specific bytes in Extra.
	ExtraSize uint16 `json:"extra_size"`
	Extra     []byte `json:"extra,omitempty"`
}

// PCM returns an integer PCM format.
func PCM(samplesPerSec uint32, bitsPerSample, channels uint16) Format {
	blockAlign := channels * ((bitsPerSample + 7) / 8)
	return Format{
		FormatTag:      FormatTagPCM,
		Channels:       channels,
		SamplesPerSec:  samplesPerSec,
		AvgBytesPerSec: samplesPerSec * uint32(blockAlign),
		BlockAlign:     blockAlign,
		BitsPerSample:  bitsPerSample,
	}
}

// Validate checks that the format can drive a pump.
func (f Format) Validate() error {
	switch {
	case f.Channels == 0:
		return errors.WrapInvalid(errors.ErrInvalidFormat, "Format", "Validate", "channel count")
	case f.SamplesPerSec == 0:
		return errors.WrapInvalid(errors.ErrInvalidFormat, "Format", "Validate", "sample rate")
	case f.BlockAlign == 0:
		return errors.WrapInvalid(errors.ErrInvalidFormat, "Format", "Validate", "block alignment")
	case f.AvgBytesPerSec == 0:
		return errors.WrapInvalid(errors.ErrInvalidFormat, "Format", "Validate", "byte rate")
	case int(f.ExtraSize) != len(f.Extra):
		return errors.WrapInvalid(errors.ErrInvalidFormat, "Format", "Validate", "extra size")
	}
	return nil
}

// BytesFor returns the number of bytes covering d, rounded down to whole
// blocks and never less than one block.
func (f Format) BytesFor(d time.Duration) int {
	if f.BlockAlign == 0 {
		return 0
	}
	n := int(uint64(f.AvgBytesPerSec) * uint64(d) / uint64(time.Second))
	block := int(f.BlockAlign)
	n -= n % block
	if n < block {
		n = block
	}
	return n
}

// Duration returns the play time of n bytes.
func (f Format) Duration(n int) time.Duration {
	if f.AvgBytesPerSec == 0 {
		return 0
	}
	return time.Duration(uint64(n) * uint64(time.Second) / uint64(f.AvgBytesPerSec))
}

func (f Format) String() string {
	return fmt.Sprintf("tag=%d ch=%d rate=%d bits=%d", f.FormatTag, f.Channels, f.SamplesPerSec, f.BitsPerSample)
}

// MarshalWaveFormat encodes the 16-byte record without cbSize.
func (f Format) MarshalWaveFormat() []byte {
	b := make([]byte, WaveFormatSize)
	f.putHeader(b)
	return b
}

// MarshalBinary encodes the packed record with cbSize followed by Extra.
func (f Format) MarshalBinary() ([]byte, error) {
	if int(f.ExtraSize) != len(f.Extra) {
		return nil, errors.WrapInvalid(errors.ErrInvalidFormat, "Format", "MarshalBinary", "extra size")
	}
	b := make([]byte, WaveFormatExSize+len(f.Extra))
	f.putHeader(b)
	binary.LittleEndian.PutUint16(b[16:], f.ExtraSize)
	copy(b[WaveFormatExSize:], f.Extra)
	return b, nil
}

// UnmarshalBinary decodes either the 16-byte record or the record with
// cbSize and its extra bytes.
func (f *Format) UnmarshalBinary(b []byte) error {
	if len(b) != WaveFormatSize && len(b) < WaveFormatExSize {
		return errors.WrapInvalid(
			fmt.Errorf("%w: %d bytes", errors.ErrInvalidFormat, len(b)),
			"Format", "UnmarshalBinary", "length check")
	}

	var out Format
	out.FormatTag = binary.LittleEndian.Uint16(b[0:])
	out.Channels = binary.LittleEndian.Uint16(b[2:])
	out.SamplesPerSec = binary.LittleEndian.Uint32(b[4:])
	out.AvgBytesPerSec = binary.LittleEndian.Uint32(b[8:])
	out.BlockAlign = binary.LittleEndian.Uint16(b[12:])
	out.BitsPerSample = binary.LittleEndian.Uint16(b[14:])

	if len(b) >= WaveFormatExSize {
		out.ExtraSize = binary.LittleEndian.Uint16(b[16:])
		if len(b) < WaveFormatExSize+int(out.ExtraSize) {
			return errors.WrapInvalid(
				fmt.Errorf("%w: cbSize %d exceeds %d remaining bytes", errors.ErrInvalidFormat,
					out.ExtraSize, len(b)-WaveFormatExSize),
				"Format", "UnmarshalBinary", "extra size check")
		}
		if out.ExtraSize > 0 {
			out.Extra = append([]byte(nil), b[WaveFormatExSize:WaveFormatExSize+int(out.ExtraSize)]...)
		}
	}

	*f = out
	return nil
}

func (f Format) putHeader(b []byte) {
	binary.LittleEndian.PutUint16(b[0:], f.FormatTag)
	binary.LittleEndian.PutUint16(b[2:], f.Channels)
	binary.LittleEndian.PutUint32(b[4:], f.SamplesPerSec)
	binary.LittleEndian.PutUint32(b[8:], f.AvgBytesPerSec)
	binary.LittleEndian.PutUint16(b[12:], f.BlockAlign)
	binary.LittleEndian.PutUint16(b[14:], f.BitsPerSample)
}
