package stream

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"os"

	"github.com/c360/speechcore/audio"
	"github.com/c360/speechcore/errors"
)

// ReadWAVHeader consumes a RIFF/WAVE header up to the start of the data
// chunk and returns the format and the data length in bytes.
func ReadWAVHeader(r io.Reader) (audio.Format, int64, error) {
	var riff [12]byte
	if _, err := io.ReadFull(r, riff[:]); err != nil {
		return audio.Format{}, 0, errors.WrapInvalid(err, "WAV", "ReadWAVHeader", "read RIFF header")
	}
	if string(riff[0:4]) != "RIFF" || string(riff[8:12]) != "WAVE" {
		return audio.Format{}, 0, errors.WrapInvalid(errors.ErrInvalidFormat, "WAV", "ReadWAVHeader", "RIFF signature")
	}

	var format audio.Format
	haveFormat := false
	for {
		var hdr [8]byte
		if _, err := io.ReadFull(r, hdr[:]); err != nil {
			return audio.Format{}, 0, errors.WrapInvalid(err, "WAV", "ReadWAVHeader", "read chunk header")
		}
		id := string(hdr[0:4])
		size := int64(binary.LittleEndian.Uint32(hdr[4:]))

		switch id {
		case "fmt ":
			body := make([]byte, size)
			if _, err := io.ReadFull(r, body); err != nil {
				return audio.Format{}, 0, errors.WrapInvalid(err, "WAV", "ReadWAVHeader", "read fmt chunk")
			}
			if err := format.UnmarshalBinary(body); err != nil {
				return audio.Format{}, 0, errors.Wrap(err, "WAV", "ReadWAVHeader", "decode fmt chunk")
			}
			haveFormat = true
		case "data":
			if !haveFormat {
				return audio.Format{}, 0, errors.WrapInvalid(
					fmt.Errorf("%w: data before fmt", errors.ErrInvalidFormat), "WAV", "ReadWAVHeader", "chunk order")
			}
			return format, size, nil
		default:
			if _, err := io.CopyN(io.Discard, r, size+size%2); err != nil {
				return audio.Format{}, 0, errors.WrapInvalid(err, "WAV", "ReadWAVHeader", "skip "+id+" chunk")
			}
		}
		if size%2 == 1 && id == "fmt " {
			if _, err := io.CopyN(io.Discard, r, 1); err != nil {
				return audio.Format{}, 0, errors.WrapInvalid(err, "WAV", "ReadWAVHeader", "skip padding")
			}
		}
	}
}

// OpenWAV opens a WAV file as a stream positioned at its audio data.
func OpenWAV(path string) (*Stream, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.WrapInvalid(err, "WAV", "OpenWAV", "open file")
	}
	br := bufio.NewReader(f)
	format, size, err := ReadWAVHeader(br)
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	data := io.LimitReader(br, size)
	s, err := New(format, data.Read, f.Close)
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	return s, nil
}
