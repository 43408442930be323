package pump

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/c360/speechcore/audio"
	"github.com/c360/speechcore/capability"
	"github.com/c360/speechcore/component"
	"github.com/c360/speechcore/errors"
	"github.com/c360/speechcore/metric"
	"github.com/c360/speechcore/site"
	"github.com/c360/speechcore/threadservice"
)

// State is the pump's position in its state machine.
type State int32

const (
	NoInput State = iota
	Idle
	Paused
	Processing
)

func (s State) String() string {
	switch s {
	case NoInput:
		return "no_input"
	case Idle:
		return "idle"
	case Paused:
		return "paused"
	case Processing:
		return "processing"
	default:
		return "unknown"
	}
}

// AudioPump is the control surface of a pump.
type AudioPump interface {
	Format() (audio.Format, bool)
	Start(processor audio.Processor) error
	Pause() error
	Stop() error
	State() State
}

// Init attaches the source a pump reads from.
type Init interface {
	SetReader(reader capability.Handle[audio.Source]) error
}

// Site is the capability a pump requires from its site.
type Site interface {
	ReportError(source any, info audio.ErrorInfo)
	CompletedSetFormatStop(source any)
}

var (
	AudioPumpName = capability.Define[AudioPump]("AudioPump")
	InitName      = capability.Define[Init]("AudioPumpInit")
	SiteName      = capability.Define[Site]("AudioPumpSite")
)

// Config holds pump tuning.
type Config struct {
	ChunkDurationMS int `json:"chunk_duration_ms"`
	ChunksPerSlice  int `json:"chunks_per_slice"`
}

// DefaultConfig returns 100ms chunks, four per slice.
func DefaultConfig() Config {
	return Config{ChunkDurationMS: 100, ChunksPerSlice: 4}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.ChunkDurationMS <= 0 {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "AudioPump", "Validate",
			fmt.Sprintf("chunk_duration_ms %d", c.ChunkDurationMS))
	}
	if c.ChunksPerSlice <= 0 {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "AudioPump", "Validate",
			fmt.Sprintf("chunks_per_slice %d", c.ChunksPerSlice))
	}
	return nil
}

// ChunkDuration returns the configured chunk length.
func (c Config) ChunkDuration() time.Duration {
	return time.Duration(c.ChunkDurationMS) * time.Millisecond
}

// Option configures a Pump.
type Option func(*Pump)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pump) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// WithMetrics enables pump metrics.
func WithMetrics(registry *metric.MetricsRegistry) Option {
	return func(p *Pump) { p.registry = registry }
}

// WithName sets the name used in logs and metric labels.
func WithName(name string) Option {
	return func(p *Pump) { p.name = name }
}

// Pump drives an audio.Processor from an audio.Source.
type Pump struct {
	site.Holder[Site]

	name     string
	config   Config
	logger   *slog.Logger
	registry *metric.MetricsRegistry
	metrics  *pumpMetrics

	// mu serializes transitions and guards reader and processor
	mu        sync.Mutex
	reader    capability.Handle[audio.Source]
	processor audio.Processor

	state atomic.Int32
	epoch atomic.Uint64
}

// New creates a pump in state NoInput. An invalid config falls back to
// DefaultConfig.
func New(config Config, opts ...Option) *Pump {
	if config.Validate() != nil {
		config = DefaultConfig()
	}
	p := &Pump{
		name:   "audio-pump",
		config: config,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.logger = p.logger.With("component", p.name)

	m, err := newPumpMetrics(p.registry, p.name)
	if err != nil {
		p.logger.Error("Failed to initialize pump metrics", "error", err)
	}
	p.metrics = m
	p.state.Store(int32(NoInput))
	return p
}

// NewComponent is the component.Factory for the pump.
func NewComponent(rawConfig json.RawMessage, deps component.Dependencies) (any, error) {
	config := DefaultConfig()
	if len(rawConfig) > 0 {
		if err := component.SafeUnmarshal(rawConfig, &config); err != nil {
			return nil, errors.WrapInvalid(err, "AudioPump", "NewComponent", "config unmarshal")
		}
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return New(config,
		WithLogger(deps.GetLogger()),
		WithMetrics(deps.MetricsRegistry),
	), nil
}

// Register registers the pump factory.
func Register(registry *component.Registry) error {
	return registry.RegisterWithConfig(component.RegistrationConfig{
		Name:        "audio-pump",
		Factory:     NewComponent,
		Type:        component.TypePump,
		Description: "Reads an audio source in slices and drives an audio processor",
		Version:     "0.1.0",
		Capabilities: []capability.Name{
			AudioPumpName, InitName, site.ObjectWithSiteName,
		},
	})
}

// State implements AudioPump.
func (p *Pump) State() State {
	return State(p.state.Load())
}

// Format implements AudioPump. It is absent until a reader is attached.
func (p *Pump) Format() (audio.Format, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.reader.Valid() {
		return audio.Format{}, false
	}
	return p.reader.Get().Format(), true
}

// SetReader implements Init. The pump keeps its own reference to reader and
// releases the one it replaces. An absent handle returns the pump to NoInput.
func (p *Pump) SetReader(reader capability.Handle[audio.Source]) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch p.State() {
	case Processing, Paused:
		return errors.WrapInvalid(errors.ErrPumpBusy, "AudioPump", "SetReader", "state check")
	}

	var next capability.Handle[audio.Source]
	if reader.Valid() {
		if err := reader.Get().Format().Validate(); err != nil {
			return errors.Wrap(err, "AudioPump", "SetReader", "format validation")
		}
		if next = reader.Clone(); !next.Valid() {
			return errors.WrapInvalid(errors.ErrNilArgument, "AudioPump", "SetReader", "reader already destroyed")
		}
	}

	old := p.reader
	p.reader = next
	old.Release()
	if next.Valid() {
		p.setState(Idle)
	} else {
		p.setState(NoInput)
	}
	return nil
}

// Start implements AudioPump. From Idle the processor receives the format
// and reading begins; from Paused reading resumes with the processor already
// attached. Start while Processing does nothing.
func (p *Pump) Start(processor audio.Processor) error {
	if processor == nil {
		return errors.WrapInvalid(errors.ErrNilProcessor, "AudioPump", "Start", "processor check")
	}

	p.mu.Lock()
	var task threadservice.Task
	resumed := false
	switch p.State() {
	case NoInput:
		p.mu.Unlock()
		return errors.WrapInvalid(errors.ErrNoReader, "AudioPump", "Start", "reader check")
	case Processing:
		p.mu.Unlock()
		return nil
	case Paused:
		if processor != p.processor {
			p.mu.Unlock()
			return errors.WrapInvalid(errors.ErrPumpBusy, "AudioPump", "Start", "resume with a different processor")
		}
		task = p.slice(p.epoch.Add(1))
		resumed = true
	default:
		format := p.reader.Get().Format()
		next := p.slice(p.epoch.Add(1))
		p.processor = processor
		task = func(ctx context.Context) {
			processor.SetFormat(&format)
			next(ctx)
		}
		p.logger.Debug("Pump starting", "format", format.String())
	}
	epoch := p.epoch.Load()
	p.setState(Processing)
	p.mu.Unlock()

	// A resumed processor already has the format; a fresh one only gets it
	// from task.
	abandoned := func(err error) { p.abandon(epoch, processor, resumed, err) }

	// The scheduler may run task before ExecuteAsync returns, so no lock is
	// held here.
	if err := p.schedule("Start", task, abandoned); err != nil {
		if resumed {
			abandoned(err)
		} else {
			p.finish(epoch)
		}
		return err
	}
	return nil
}

// Pause implements AudioPump. Outside Processing it does nothing.
func (p *Pump) Pause() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.State() != Processing {
		return nil
	}
	p.epoch.Add(1)
	p.setState(Paused)
	return nil
}

// Stop implements AudioPump. The state is Idle when Stop returns; the
// processor receives SetFormat(nil) and the site CompletedSetFormatStop from
// a Background task queued behind any in-flight slice.
func (p *Pump) Stop() error {
	p.mu.Lock()
	switch p.State() {
	case NoInput, Idle:
		p.mu.Unlock()
		return nil
	}
	processor := p.processor
	p.processor = nil
	p.epoch.Add(1)
	p.setState(Idle)
	p.mu.Unlock()

	finalize := func(context.Context) {
		processor.SetFormat(nil)
		p.InvokeOnSite(func(s Site) { s.CompletedSetFormatStop(p) })
	}
	unscheduled := func(err error) {
		p.logger.Warn("Finalizing stop outside the Background lane", "error", err)
		finalize(context.Background())
	}
	if err := p.schedule("Stop", finalize, unscheduled); err != nil {
		unscheduled(err)
	}
	return nil
}

// Destroy releases the reader when the last handle to the pump is released.
func (p *Pump) Destroy() {
	_ = p.Stop()
	p.mu.Lock()
	reader := p.reader
	p.reader = capability.Handle[audio.Source]{}
	p.mu.Unlock()
	reader.Release()
	p.setState(NoInput)
}

// QueryCapability implements capability.Object.
func (p *Pump) QueryCapability(name capability.Name) (any, bool) {
	return capability.Lookup(name,
		capability.Of[AudioPump](p),
		capability.Of[Init](p),
		capability.Of[site.ObjectWithSite](p),
		capability.Of[capability.Object](p),
	)
}

// slice reads up to ChunksPerSlice chunks and resubmits itself while the
// epoch is current.
func (p *Pump) slice(epoch uint64) threadservice.Task {
	return func(ctx context.Context) {
		p.mu.Lock()
		handle, processor := p.reader.Clone(), p.processor
		p.mu.Unlock()
		defer handle.Release()
		if !handle.Valid() || processor == nil {
			return
		}
		reader := handle.Get()

		start := time.Now()
		defer func() { p.metrics.observeSlice(time.Since(start)) }()

		size := reader.Format().BytesFor(p.config.ChunkDuration())
		for i := 0; i < p.config.ChunksPerSlice; i++ {
			if !p.current(epoch) {
				return
			}

			buf := make([]byte, size)
			n, err := reader.Read(buf)
			if err != nil && !errors.Is(err, io.EOF) {
				p.readFailed(epoch, processor, err)
				return
			}
			if n > 0 {
				processor.ProcessAudio(audio.Chunk{Data: buf[:n], Received: time.Now()})
				p.recordAudio(n)
			}
			if n == 0 || err != nil {
				p.endOfStream(epoch, processor)
				return
			}
		}

		if !p.current(epoch) {
			return
		}
		abandoned := func(err error) { p.abandon(epoch, processor, true, err) }
		if err := p.schedule("slice", p.slice(epoch), abandoned); err != nil {
			abandoned(err)
		}
	}
}

func (p *Pump) current(epoch uint64) bool {
	return p.epoch.Load() == epoch && p.State() == Processing
}

// finish moves a live epoch to Idle. It reports false when a transition
// already superseded epoch.
func (p *Pump) finish(epoch uint64) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.current(epoch) {
		return false
	}
	p.processor = nil
	p.epoch.Add(1)
	p.setState(Idle)
	return true
}

func (p *Pump) endOfStream(epoch uint64, processor audio.Processor) {
	if !p.finish(epoch) {
		return
	}
	p.logger.Debug("End of stream")
	processor.SetFormat(nil)
	p.InvokeOnSite(func(s Site) { s.CompletedSetFormatStop(p) })
}

func (p *Pump) readFailed(epoch uint64, processor audio.Processor, err error) {
	if !p.finish(epoch) {
		return
	}
	p.logger.Error("Audio read failed", "error", err)
	if p.registry != nil {
		p.registry.CoreMetrics().RecordError(p.name, errors.Classify(err).String())
	}
	p.metrics.readError()

	info := audio.RuntimeError(errors.Wrap(fmt.Errorf("%w: %w", errors.ErrReadFailed, err), "AudioPump", "slice", "read audio"))
	p.InvokeOnSite(func(s Site) { s.ReportError(p, info) })
	processor.SetFormat(nil)
}

// abandon ends a live epoch whose next task will never run. The site hears
// of it through ReportError; formatted says whether the processor was
// already given the format.
func (p *Pump) abandon(epoch uint64, processor audio.Processor, formatted bool, err error) {
	if !p.finish(epoch) {
		return
	}
	p.logger.Error("Audio pump task was not scheduled", "error", err)
	if p.registry != nil {
		p.registry.CoreMetrics().RecordError(p.name, errors.Classify(err).String())
	}

	info := audio.RuntimeError(err)
	p.InvokeOnSite(func(s Site) { s.ReportError(p, info) })
	if formatted {
		processor.SetFormat(nil)
	}
}

// schedule submits task on the Background lane of the site's thread service.
// A rejected submission is returned. If an accepted task is later cancelled
// or drained by shutdown without running, failed is called instead.
func (p *Pump) schedule(method string, task threadservice.Task, failed func(error)) error {
	obj, ok := p.SiteObject()
	if !ok {
		return errors.WrapInvalid(errors.ErrNoThreadService, "AudioPump", method, "site lookup")
	}
	defer obj.Release()

	ts, ok := site.ServiceFrom[threadservice.ThreadService](obj.Get())
	if !ok {
		return errors.WrapInvalid(errors.ErrNoThreadService, "AudioPump", method, "service lookup")
	}
	defer ts.Release()

	promise := threadservice.NewPromise()
	id := ts.Get().ExecuteAsync(task,
		threadservice.WithAffinity(threadservice.Background),
		threadservice.WithPromise(promise))
	if id == threadservice.InvalidTaskID {
		res, _ := promise.Result()
		return notRun(method, res)
	}

	go func() {
		<-promise.Done()
		if res, _ := promise.Result(); res.Outcome != threadservice.Executed {
			failed(notRun(method, res))
		}
	}()
	return nil
}

func notRun(method string, res threadservice.Result) error {
	cause := errors.ErrTaskCancelled
	if res.Outcome == threadservice.FailedToSchedule {
		cause = errors.ErrTaskFailedToSchedule
	}
	if res.Err != nil {
		cause = fmt.Errorf("%w: %w", cause, res.Err)
	}
	return errors.WrapTransient(cause, "AudioPump", method, "schedule task")
}

func (p *Pump) setState(s State) {
	p.state.Store(int32(s))
	if p.registry != nil {
		p.registry.CoreMetrics().RecordComponentStatus(p.name, int(s))
	}
	p.metrics.transition(s)
}

func (p *Pump) recordAudio(n int) {
	if p.registry != nil {
		p.registry.CoreMetrics().RecordAudio(p.name, n)
	}
}
