package stream

import (
	"bytes"
	"io"
	"sync"

	"github.com/c360/speechcore/audio"
	"github.com/c360/speechcore/capability"
	"github.com/c360/speechcore/errors"
)

// Push is an audio.Source fed by Write. Read blocks until data arrives or
// the writer closes, after which buffered data drains and Read reports
// end of stream.
type Push struct {
	format audio.Format

	mu     sync.Mutex
	cond   *sync.Cond
	buf    bytes.Buffer
	closed bool
}

// NewPush creates an empty push stream.
func NewPush(format audio.Format) (*Push, error) {
	if err := format.Validate(); err != nil {
		return nil, errors.Wrap(err, "Push", "NewPush", "format validation")
	}
	p := &Push{format: format}
	p.cond = sync.NewCond(&p.mu)
	return p, nil
}

// Write appends audio. Writing after Close fails with io.ErrClosedPipe.
func (p *Push) Write(data []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return 0, io.ErrClosedPipe
	}
	n, _ := p.buf.Write(data)
	p.cond.Broadcast()
	return n, nil
}

// Format implements audio.Source.
func (p *Push) Format() audio.Format {
	return p.format
}

// Read implements audio.Source.
func (p *Push) Read(buf []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for p.buf.Len() == 0 && !p.closed {
		p.cond.Wait()
	}
	if p.buf.Len() == 0 {
		return 0, io.EOF
	}
	return p.buf.Read(buf)
}

// Close ends the stream for readers once buffered data is consumed.
func (p *Push) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	p.cond.Broadcast()
	return nil
}

// Destroy closes the stream when its last handle is released.
func (p *Push) Destroy() {
	_ = p.Close()
}

// QueryCapability implements capability.Object.
func (p *Push) QueryCapability(name capability.Name) (any, bool) {
	return capability.Lookup(name,
		capability.Of[audio.Source](p),
		capability.Of[io.Writer](p),
		capability.Of[capability.Object](p),
	)
}
