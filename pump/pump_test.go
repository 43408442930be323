package pump

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/speechcore/audio"
	"github.com/c360/speechcore/audio/stream"
	"github.com/c360/speechcore/capability"
	"github.com/c360/speechcore/component"
	"github.com/c360/speechcore/errors"
	"github.com/c360/speechcore/metric"
	"github.com/c360/speechcore/site"
	"github.com/c360/speechcore/threadservice"
)

var pcm16k = audio.PCM(16000, 16, 1) // 3200 bytes per 100ms chunk

// host is a pump site that provides a thread service.
type host struct {
	services *site.ServiceRegistry

	mu        sync.Mutex
	errs      []audio.ErrorInfo
	completed int
	done      chan struct{}
}

func (h *host) QueryService(name capability.Name) (capability.Handle[any], bool) {
	return h.services.QueryService(name)
}

func (h *host) ReportError(_ any, info audio.ErrorInfo) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.errs = append(h.errs, info)
}

func (h *host) CompletedSetFormatStop(_ any) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.completed++
	select {
	case h.done <- struct{}{}:
	default:
	}
}

func (h *host) snapshot() ([]audio.ErrorInfo, int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]audio.ErrorInfo(nil), h.errs...), h.completed
}

func newHost(t *testing.T, ts threadservice.ThreadService) (*host, capability.Handle[*host]) {
	t.Helper()
	reg := site.NewServiceRegistry()
	tsh := capability.New[threadservice.ThreadService](ts)
	require.NoError(t, site.AddService(reg, tsh))
	tsh.Release()

	h := &host{services: reg, done: make(chan struct{}, 1)}
	handle := capability.New(h)
	t.Cleanup(func() {
		handle.Release()
		reg.Close()
	})
	return h, handle
}

// recorder is an audio.Processor that logs what it receives.
type recorder struct {
	mu     sync.Mutex
	events []string
	bytes  int
}

func (r *recorder) SetFormat(f *audio.Format) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if f == nil {
		r.events = append(r.events, "format:nil")
		return
	}
	r.events = append(r.events, "format:"+f.String())
}

func (r *recorder) ProcessAudio(c audio.Chunk) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, fmt.Sprintf("audio:%d", len(c.Data)))
	r.bytes += len(c.Data)
}

func (r *recorder) snapshot() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.events...)
}

func newPump(t *testing.T, h capability.Handle[*host], opts ...Option) *Pump {
	t.Helper()
	p := New(Config{ChunkDurationMS: 100, ChunksPerSlice: 2}, opts...)
	require.NoError(t, p.SetSite(h.Weak().Any()))
	return p
}

func (r *recorder) chunks() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.events {
		if strings.HasPrefix(e, "audio:") {
			n++
		}
	}
	return n
}

func (r *recorder) last() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.events) == 0 {
		return ""
	}
	return r.events[len(r.events)-1]
}

// owned wraps src in a handle the test releases at cleanup.
func owned(t *testing.T, src audio.Source) capability.Handle[audio.Source] {
	t.Helper()
	h := capability.New(src)
	t.Cleanup(h.Release)
	return h
}

func finiteSource(t *testing.T, n int) capability.Handle[audio.Source] {
	t.Helper()
	s, err := stream.FromReader(pcm16k, bytes.NewReader(make([]byte, n)))
	require.NoError(t, err)
	return owned(t, s)
}

// endlessSource never ends; percentage paces it when non-zero.
func endlessSource(t *testing.T, percentage uint8) capability.Handle[audio.Source] {
	t.Helper()
	s, err := stream.New(pcm16k, func(buf []byte) (int, error) { return len(buf), nil }, nil)
	require.NoError(t, err)
	s.SetRealTimePercentage(percentage)
	return owned(t, s)
}

func startService(t *testing.T) *threadservice.Service {
	t.Helper()
	svc := threadservice.New()
	require.NoError(t, svc.Start(context.Background()))
	t.Cleanup(func() { _ = svc.Stop(time.Second) })
	return svc
}

func waitDone(t *testing.T, h *host) {
	t.Helper()
	select {
	case <-h.done:
	case <-time.After(5 * time.Second):
		t.Fatal("stop was not completed on the site")
	}
}

func TestPump_EndOfStreamOnInline(t *testing.T) {
	h, handle := newHost(t, threadservice.NewInline())
	p := newPump(t, handle)
	require.NoError(t, p.SetReader(finiteSource(t, 3*3200)))

	proc := &recorder{}
	require.NoError(t, p.Start(proc))

	assert.Equal(t, []string{
		"format:" + pcm16k.String(),
		"audio:3200", "audio:3200", "audio:3200",
		"format:nil",
	}, proc.snapshot())
	assert.Equal(t, Idle, p.State())

	errs, completed := h.snapshot()
	assert.Empty(t, errs)
	assert.Equal(t, 1, completed)
}

func TestPump_StartWithoutReader(t *testing.T) {
	_, handle := newHost(t, threadservice.NewInline())
	p := newPump(t, handle)

	err := p.Start(&recorder{})
	require.Error(t, err)
	assert.True(t, errors.IsInvalid(err))
	assert.ErrorIs(t, err, errors.ErrNoReader)
	assert.Equal(t, NoInput, p.State())

	err = p.Start(nil)
	assert.ErrorIs(t, err, errors.ErrNilProcessor)
}

func TestPump_ReadFailure(t *testing.T) {
	h, handle := newHost(t, threadservice.NewInline())
	p := newPump(t, handle)

	calls := 0
	src, err := stream.New(pcm16k, func(buf []byte) (int, error) {
		calls++
		if calls == 1 {
			return len(buf), nil
		}
		return 0, fmt.Errorf("device unplugged")
	}, nil)
	require.NoError(t, err)
	require.NoError(t, p.SetReader(owned(t, src)))

	proc := &recorder{}
	require.NoError(t, p.Start(proc))

	assert.Equal(t, []string{"format:" + pcm16k.String(), "audio:3200", "format:nil"}, proc.snapshot())
	assert.Equal(t, Idle, p.State())

	errs, completed := h.snapshot()
	require.Len(t, errs, 1)
	assert.False(t, errs[0].IsTransportError)
	assert.Equal(t, audio.ReasonError, errs[0].Reason)
	assert.Equal(t, audio.CodeRuntimeError, errs[0].Code)
	assert.Contains(t, errs[0].Detail, "device unplugged")
	assert.Equal(t, 0, completed)
}

func TestPump_StateSequence(t *testing.T) {
	h, handle := newHost(t, startService(t))
	p := newPump(t, handle)
	assert.Equal(t, NoInput, p.State())

	require.NoError(t, p.SetReader(endlessSource(t, 0)))
	assert.Equal(t, Idle, p.State())

	// Pause and Stop outside Processing do nothing
	require.NoError(t, p.Pause())
	require.NoError(t, p.Stop())
	assert.Equal(t, Idle, p.State())

	proc := &recorder{}
	require.NoError(t, p.Start(proc))
	assert.Equal(t, Processing, p.State())
	require.NoError(t, p.Start(proc))
	assert.Equal(t, Processing, p.State())

	err := p.SetReader(capability.Handle[audio.Source]{})
	assert.ErrorIs(t, err, errors.ErrPumpBusy)

	require.NoError(t, p.Pause())
	assert.Equal(t, Paused, p.State())
	assert.ErrorIs(t, p.Start(&recorder{}), errors.ErrPumpBusy)
	require.NoError(t, p.Start(proc))
	assert.Equal(t, Processing, p.State())

	require.NoError(t, p.Stop())
	assert.Equal(t, Idle, p.State())
	waitDone(t, h)

	events := proc.snapshot()
	require.NotEmpty(t, events)
	assert.Equal(t, "format:"+pcm16k.String(), events[0])
	assert.Equal(t, "format:nil", events[len(events)-1])

	require.NoError(t, p.SetReader(capability.Handle[audio.Source]{}))
	assert.Equal(t, NoInput, p.State())
	_, ok := p.Format()
	assert.False(t, ok)
}

func TestPump_PauseTakesEffectBetweenChunks(t *testing.T) {
	h, handle := newHost(t, startService(t))
	p := newPump(t, handle)
	require.NoError(t, p.SetReader(endlessSource(t, 200))) // 50ms per chunk

	proc := &recorder{}
	require.NoError(t, p.Start(proc))
	require.Eventually(t, func() bool { return proc.chunks() >= 2 }, 5*time.Second, 5*time.Millisecond)

	require.NoError(t, p.Pause())
	atPause := proc.chunks()

	// At most the chunk in flight when Pause returned is delivered.
	time.Sleep(150 * time.Millisecond)
	settled := proc.chunks()
	assert.LessOrEqual(t, settled, atPause+1)
	time.Sleep(150 * time.Millisecond)
	assert.Equal(t, settled, proc.chunks(), "audio delivered while paused")

	require.NoError(t, p.Start(proc))
	require.Eventually(t, func() bool { return proc.chunks() > settled }, 5*time.Second, 5*time.Millisecond)

	require.NoError(t, p.Stop())
	waitDone(t, h)

	formats := 0
	for _, e := range proc.snapshot() {
		if strings.HasPrefix(e, "format:") {
			formats++
		}
	}
	assert.Equal(t, 2, formats, "resume must not resend the format")
	assert.Equal(t, "format:nil", proc.last())
}

func TestPump_StopTakesEffectBetweenChunks(t *testing.T) {
	h, handle := newHost(t, startService(t))
	p := newPump(t, handle)
	require.NoError(t, p.SetReader(endlessSource(t, 200)))

	proc := &recorder{}
	require.NoError(t, p.Start(proc))
	require.Eventually(t, func() bool { return proc.chunks() >= 1 }, 5*time.Second, 5*time.Millisecond)

	require.NoError(t, p.Stop())
	atStop := proc.chunks()
	waitDone(t, h)

	assert.LessOrEqual(t, proc.chunks(), atStop+1)
	assert.Equal(t, "format:nil", proc.last())
	errs, completed := h.snapshot()
	assert.Empty(t, errs)
	assert.Equal(t, 1, completed)
}

func TestPump_ThreadServiceShutdownEndsStream(t *testing.T) {
	svc := startService(t)
	h, handle := newHost(t, svc)
	p := newPump(t, handle)
	require.NoError(t, p.SetReader(endlessSource(t, 0)))

	proc := &recorder{}
	require.NoError(t, p.Start(proc))
	require.Eventually(t, func() bool { return proc.chunks() >= 1 }, 5*time.Second, time.Millisecond)

	require.NoError(t, svc.Stop(time.Second))

	require.Eventually(t, func() bool { return proc.last() == "format:nil" }, 5*time.Second, 5*time.Millisecond)
	assert.Equal(t, Idle, p.State())

	errs, completed := h.snapshot()
	require.Len(t, errs, 1)
	assert.Equal(t, audio.ReasonError, errs[0].Reason)
	assert.Equal(t, audio.CodeRuntimeError, errs[0].Code)
	assert.Contains(t, errs[0].Detail, errors.ErrTaskFailedToSchedule.Error())
	assert.Equal(t, 0, completed)
}

func TestPump_ResumeAfterShutdownReportsError(t *testing.T) {
	svc := startService(t)
	h, handle := newHost(t, svc)
	p := newPump(t, handle)
	require.NoError(t, p.SetReader(endlessSource(t, 0)))

	proc := &recorder{}
	require.NoError(t, p.Start(proc))
	require.NoError(t, p.Pause())
	require.NoError(t, svc.Stop(time.Second))

	err := p.Start(proc)
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrTaskFailedToSchedule)
	assert.ErrorIs(t, err, errors.ErrShuttingDown)
	assert.Equal(t, Idle, p.State())
	assert.Equal(t, "format:nil", proc.last())

	errs, _ := h.snapshot()
	require.Len(t, errs, 1)
	assert.Equal(t, audio.CodeRuntimeError, errs[0].Code)
}

func TestPump_HoldsReaderReference(t *testing.T) {
	closed := 0
	src, err := stream.New(pcm16k, func([]byte) (int, error) { return 0, nil }, func() error {
		closed++
		return nil
	})
	require.NoError(t, err)

	p := New(DefaultConfig())
	ph := capability.New(p)
	reader := capability.New[audio.Source](src)
	require.NoError(t, p.SetReader(reader))
	reader.Release()
	assert.Equal(t, 0, closed)
	assert.Equal(t, Idle, p.State())

	ph.Release()
	assert.Equal(t, 1, closed)
	assert.Equal(t, NoInput, p.State())

	err = New(DefaultConfig()).SetReader(reader)
	require.NoError(t, err, "an absent handle detaches")
}

func TestPump_StartWithoutThreadService(t *testing.T) {
	p := New(DefaultConfig())
	require.NoError(t, p.SetReader(finiteSource(t, 3200)))

	err := p.Start(&recorder{})
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrNoThreadService)
	assert.Equal(t, Idle, p.State())
}

func TestPump_SiteMismatch(t *testing.T) {
	other := capability.New(&recorder{})
	defer other.Release()

	p := New(DefaultConfig())
	err := p.SetSite(other.Weak().Any())
	assert.ErrorIs(t, err, errors.ErrSiteMismatch)
}

func TestPump_Metrics(t *testing.T) {
	registry := metric.NewMetricsRegistry()
	_, handle := newHost(t, threadservice.NewInline())
	p := newPump(t, handle, WithMetrics(registry))
	require.NoError(t, p.SetReader(finiteSource(t, 3*3200)))
	require.NoError(t, p.Start(&recorder{}))

	core := registry.CoreMetrics()
	assert.Equal(t, float64(3), testutil.ToFloat64(core.AudioChunks.WithLabelValues("audio-pump")))
	assert.Equal(t, float64(9600), testutil.ToFloat64(core.AudioBytes.WithLabelValues("audio-pump")))
	assert.Equal(t, float64(Idle), testutil.ToFloat64(core.ComponentStatus.WithLabelValues("audio-pump")))
	assert.Equal(t, float64(1), testutil.ToFloat64(p.metrics.transitions.WithLabelValues("audio-pump", "processing")))
}

func TestPump_Capabilities(t *testing.T) {
	p := New(DefaultConfig())
	assert.True(t, capability.Supports[AudioPump](p))
	assert.True(t, capability.Supports[Init](p))
	assert.True(t, capability.Supports[site.ObjectWithSite](p))
	assert.False(t, capability.Supports[audio.Processor](p))
}

func TestRegister(t *testing.T) {
	registry := component.NewRegistry(component.Dependencies{})
	require.NoError(t, Register(registry))

	h, ok := component.CreateObject[AudioPump](registry, "audio-pump")
	require.True(t, ok)
	defer h.Release()
	assert.Equal(t, NoInput, h.Get().State())

	_, ok = component.CreateObjectWithConfig[AudioPump](registry, "audio-pump",
		[]byte(`{"chunk_duration_ms": 0, "chunks_per_slice": 1}`))
	assert.False(t, ok)
}
