// Package stream provides audio sources backed by callbacks, io.Readers, WAV
// files and push buffers.
package stream

import (
	"context"
	"io"
	"sync"

	"golang.org/x/time/rate"

	"github.com/c360/speechcore/audio"
	"github.com/c360/speechcore/capability"
	"github.com/c360/speechcore/errors"
)

// ReadFunc fills buf and returns the number of bytes written. Returning 0
// with a nil error ends the stream.
type ReadFunc func(buf []byte) (int, error)

// CloseFunc releases the underlying stream.
type CloseFunc func() error

// Stream is an audio.Source over read and close callbacks. Reads can be paced
// to a percentage of real time.
type Stream struct {
	format audio.Format
	read   ReadFunc
	close  CloseFunc

	mu      sync.Mutex
	limiter *rate.Limiter
	closed  bool
}

// New creates a stream from callbacks. close may be nil.
func New(format audio.Format, read ReadFunc, close CloseFunc) (*Stream, error) {
	if read == nil {
		return nil, errors.WrapInvalid(errors.ErrNilArgument, "Stream", "New", "read callback validation")
	}
	if err := format.Validate(); err != nil {
		return nil, errors.Wrap(err, "Stream", "New", "format validation")
	}
	return &Stream{format: format, read: read, close: close}, nil
}

// FromReader creates a stream reading r. If r is an io.Closer it is closed
// with the stream.
func FromReader(format audio.Format, r io.Reader) (*Stream, error) {
	if r == nil {
		return nil, errors.WrapInvalid(errors.ErrNilArgument, "Stream", "FromReader", "reader validation")
	}
	var closeFn CloseFunc
	if c, ok := r.(io.Closer); ok {
		closeFn = c.Close
	}
	return New(format, r.Read, closeFn)
}

// Format implements audio.Source.
func (s *Stream) Format() audio.Format {
	return s.format
}

// SetRealTimePercentage paces reads to percentage of the format's byte rate.
// Zero disables pacing; 100 delivers audio at play speed.
func (s *Stream) SetRealTimePercentage(percentage uint8) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if percentage == 0 {
		s.limiter = nil
		return
	}
	bytesPerSec := float64(s.format.AvgBytesPerSec) * float64(percentage) / 100
	burst := int(s.format.AvgBytesPerSec)
	if burst < int(s.format.BlockAlign) {
		burst = int(s.format.BlockAlign)
	}
	s.limiter = rate.NewLimiter(rate.Limit(bytesPerSec), burst)
}

// Read implements audio.Source.
func (s *Stream) Read(buf []byte) (int, error) {
	s.mu.Lock()
	limiter := s.limiter
	closed := s.closed
	s.mu.Unlock()

	if closed {
		return 0, io.ErrClosedPipe
	}
	if limiter != nil && len(buf) > limiter.Burst() {
		buf = buf[:limiter.Burst()]
	}

	n, err := s.read(buf)
	if n > 0 && limiter != nil {
		if werr := limiter.WaitN(context.Background(), n); werr != nil {
			return n, errors.WrapTransient(werr, "Stream", "Read", "pace read")
		}
	}
	return n, err
}

// Close implements audio.Source. Closing twice is a no-op.
func (s *Stream) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	if s.close != nil {
		return s.close()
	}
	return nil
}

// Destroy closes the stream when its last handle is released.
func (s *Stream) Destroy() {
	_ = s.Close()
}

// QueryCapability implements capability.Object.
func (s *Stream) QueryCapability(name capability.Name) (any, bool) {
	return capability.Lookup(name,
		capability.Of[audio.Source](s),
		capability.Of[audio.RealTimeInit](s),
		capability.Of[capability.Object](s),
	)
}
