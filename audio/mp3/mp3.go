// Package mp3 provides an audio source that decodes MP3 data to 16-bit
// stereo PCM.
package mp3

import (
	"io"
	"os"
	"sync"

	gomp3 "github.com/hajimehoshi/go-mp3"

	"github.com/c360/speechcore/audio"
	"github.com/c360/speechcore/capability"
	"github.com/c360/speechcore/errors"
)

// Source is an audio.Source over an MP3 decoder.
type Source struct {
	format  audio.Format
	decoder *gomp3.Decoder
	closer  io.Closer

	mu     sync.Mutex
	closed bool
}

// NewSource decodes MP3 data from r. If r is an io.Closer it is closed with
// the source.
func NewSource(r io.Reader) (*Source, error) {
	if r == nil {
		return nil, errors.WrapInvalid(errors.ErrNilArgument, "MP3Source", "NewSource", "reader validation")
	}
	d, err := gomp3.NewDecoder(r)
	if err != nil {
		return nil, errors.WrapInvalid(errors.ErrInvalidFormat, "MP3Source", "NewSource", "decode header: "+err.Error())
	}

	s := &Source{
		format:  audio.PCM(uint32(d.SampleRate()), 16, 2),
		decoder: d,
	}
	if c, ok := r.(io.Closer); ok {
		s.closer = c
	}
	return s, nil
}

// Open decodes the MP3 file at path.
func Open(path string) (*Source, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.WrapInvalid(err, "MP3Source", "Open", "open file")
	}
	s, err := NewSource(f)
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	return s, nil
}

// Format implements audio.Source.
func (s *Source) Format() audio.Format {
	return s.format
}

// Length returns the decoded stream length in bytes, or -1 when the input
// is not seekable.
func (s *Source) Length() int64 {
	return s.decoder.Length()
}

// Read implements audio.Source. Reads are rounded down to whole frames.
func (s *Source) Read(buf []byte) (int, error) {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return 0, io.ErrClosedPipe
	}

	block := int(s.format.BlockAlign)
	if n := len(buf) - len(buf)%block; n > 0 {
		buf = buf[:n]
	}
	n, err := s.decoder.Read(buf)
	if err == io.EOF {
		return n, io.EOF
	}
	if err != nil {
		return n, errors.WrapTransient(err, "MP3Source", "Read", "decode frame")
	}
	return n, nil
}

// Close implements audio.Source. Closing twice is a no-op.
func (s *Source) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	if s.closer != nil {
		return s.closer.Close()
	}
	return nil
}

// Destroy closes the source and its file when the last handle is released.
func (s *Source) Destroy() {
	_ = s.Close()
}

// QueryCapability implements capability.Object.
func (s *Source) QueryCapability(name capability.Name) (any, bool) {
	return capability.Lookup(name,
		capability.Of[audio.Source](s),
		capability.Of[capability.Object](s),
	)
}
