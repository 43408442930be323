package session

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/c360/speechcore/audio"
	"github.com/c360/speechcore/capability"
	"github.com/c360/speechcore/component"
	"github.com/c360/speechcore/errors"
	"github.com/c360/speechcore/event"
	"github.com/c360/speechcore/metric"
	"github.com/c360/speechcore/processor/meter"
	"github.com/c360/speechcore/pump"
	"github.com/c360/speechcore/site"
	"github.com/c360/speechcore/threadservice"
)

// Event identifies the session an event belongs to.
type Event struct {
	SessionID string `json:"session_id"`
}

// CanceledEvent reports why a session ended early or at end of stream.
type CanceledEvent struct {
	SessionID string          `json:"session_id"`
	Info      audio.ErrorInfo `json:"info"`
}

// LevelEvent carries one meter measurement.
type LevelEvent struct {
	SessionID string      `json:"session_id"`
	Level     meter.Level `json:"level"`
}

// Config selects the sub-components a session creates.
type Config struct {
	Pump               string          `json:"pump"`
	PumpConfig         json.RawMessage `json:"pump_config,omitempty"`
	Processor          string          `json:"processor"`
	ProcessorConfig    json.RawMessage `json:"processor_config,omitempty"`
	RealTimePercentage uint8           `json:"real_time_percentage"`
}

// DefaultConfig uses the built-in pump and meter, unpaced.
func DefaultConfig() Config {
	return Config{Pump: "audio-pump", Processor: "audio-meter"}
}

// Option configures a Session.
type Option func(*Session)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Session) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithMetrics tracks active sessions in the registry's core metrics.
func WithMetrics(registry *metric.MetricsRegistry) Option {
	return func(s *Session) { s.registry = registry }
}

// WithThreadService registers ts in the session's own service registry.
func WithThreadService(ts capability.Handle[threadservice.ThreadService]) Option {
	return func(s *Session) { s.ts = ts.Clone() }
}

// WithParent makes service lookups that miss locally fall through to
// parent's ServiceProvider capability.
func WithParent(parent capability.Weak[any]) Option {
	return func(s *Session) { s.services.SetParent(parent) }
}

// Session is the site of one pump and one processor.
type Session struct {
	id       string
	config   Config
	logger   *slog.Logger
	registry *metric.MetricsRegistry

	services *site.ServiceRegistry
	ts       capability.Handle[threadservice.ThreadService]
	self     capability.Weak[any]

	pump      capability.Handle[pump.AudioPump]
	processor capability.Handle[audio.Processor]

	SessionStarted *event.Signal[Event]
	SessionStopped *event.Signal[Event]
	Canceled       *event.Signal[CanceledEvent]
	Level          *event.Signal[LevelEvent]

	mu            sync.Mutex
	started       bool
	active        atomic.Bool
	stopRequested atomic.Bool
	done          chan struct{}
	finishOnce    sync.Once
}

// New creates a session reading source. The pump keeps its own reference to
// source, so the caller may release its handle once New returns. The returned
// handle owns the session.
func New(factory component.ObjectFactory, source capability.Handle[audio.Source], config Config, opts ...Option) (capability.Handle[*Session], error) {
	if factory == nil || !source.Valid() {
		return capability.Handle[*Session]{}, errors.WrapInvalid(errors.ErrNilArgument, "Session", "New", "argument check")
	}

	s := &Session{
		id:             uuid.NewString(),
		config:         config,
		logger:         slog.Default(),
		services:       site.NewServiceRegistry(),
		SessionStarted: event.New[Event](),
		SessionStopped: event.New[Event](),
		Canceled:       event.New[CanceledEvent](),
		Level:          event.New[LevelEvent](),
		done:           make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("component", "session", "session_id", s.id)

	h := capability.New(s)
	s.self = h.Weak().Any()

	if err := s.init(factory, source); err != nil {
		h.Release()
		return capability.Handle[*Session]{}, err
	}
	return h, nil
}

func (s *Session) init(factory component.ObjectFactory, source capability.Handle[audio.Source]) error {
	if s.ts.Valid() {
		if err := site.AddService(s.services, s.ts); err != nil {
			return err
		}
	} else {
		ts, ok := site.QueryService[threadservice.ThreadService](s.services)
		if !ok {
			return errors.WrapInvalid(errors.ErrNoThreadService, "Session", "New", "thread service lookup")
		}
		s.ts = ts
	}

	p, ok := component.CreateObjectWithConfig[pump.AudioPump](factory, s.config.Pump, s.config.PumpConfig)
	if !ok {
		return errors.WrapInvalid(errors.ErrUnknownFactory, "Session", "New", "create pump "+s.config.Pump)
	}
	s.pump = p

	proc, ok := component.CreateObjectWithConfig[audio.Processor](factory, s.config.Processor, s.config.ProcessorConfig)
	if !ok {
		return errors.WrapInvalid(errors.ErrUnknownFactory, "Session", "New", "create processor "+s.config.Processor)
	}
	s.processor = proc

	if err := s.adopt(s.pump.Get()); err != nil {
		return err
	}
	if err := s.adopt(s.processor.Get()); err != nil {
		return err
	}

	if s.config.RealTimePercentage > 0 {
		if rt, ok := capability.Query[audio.RealTimeInit](source.Get()); ok {
			rt.SetRealTimePercentage(s.config.RealTimePercentage)
		} else {
			s.logger.Warn("Source does not support real-time pacing")
		}
	}

	init, ok := capability.Query[pump.Init](s.pump.Get())
	if !ok {
		return errors.WrapInvalid(errors.ErrSiteMismatch, "Session", "New", "query pump init")
	}
	if err := init.SetReader(source); err != nil {
		return errors.Wrap(err, "Session", "New", "attach reader")
	}
	return nil
}

// adopt makes the session the site of obj, if obj accepts one.
func (s *Session) adopt(obj any) error {
	ows, ok := capability.Query[site.ObjectWithSite](obj)
	if !ok {
		return nil
	}
	if err := ows.SetSite(s.self); err != nil {
		return errors.Wrap(err, "Session", "New", fmt.Sprintf("set site on %T", obj))
	}
	return nil
}

// ID returns the session id.
func (s *Session) ID() string {
	return s.id
}

// Pump returns the session's pump.
func (s *Session) Pump() pump.AudioPump {
	return s.pump.Get()
}

// Done is closed after SessionStopped has been queued.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Start signals SessionStarted and starts the pump from the User lane.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return errors.WrapInvalid(errors.ErrAlreadyStarted, "Session", "Start", "state check")
	}
	s.started = true
	s.mu.Unlock()

	if s.registry != nil {
		s.registry.CoreMetrics().SessionStarted()
		s.active.Store(true)
	}

	ts := s.ts.Get()
	var startErr error
	err := ts.ExecuteSync(ctx, func(context.Context) {
		s.SessionStarted.SignalOn(ts, Event{SessionID: s.id})
		startErr = s.pump.Get().Start(s.processor.Get())
	}, threadservice.User)
	if err != nil {
		s.finish()
		return errors.Wrap(err, "Session", "Start", "run on user lane")
	}
	if startErr != nil {
		s.finish()
		return startErr
	}

	s.logger.Info("Session started")
	return nil
}

// Stop stops the pump from the User lane and waits for the session to
// finish or ctx to end. Stopping a session that never started does nothing.
func (s *Session) Stop(ctx context.Context) error {
	s.mu.Lock()
	started := s.started
	s.mu.Unlock()
	if !started {
		return nil
	}

	s.stopRequested.Store(true)
	var stopErr error
	err := s.ts.Get().ExecuteSync(ctx, func(context.Context) {
		stopErr = s.pump.Get().Stop()
	}, threadservice.User)
	if err != nil {
		return errors.Wrap(err, "Session", "Stop", "run on user lane")
	}
	if stopErr != nil {
		return stopErr
	}
	return s.Wait(ctx)
}

// Wait blocks until the session finished or ctx ends. Every event the
// session emits has been delivered once Wait returns nil.
func (s *Session) Wait(ctx context.Context) error {
	select {
	case <-s.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ReportError implements pump.Site.
func (s *Session) ReportError(_ any, info audio.ErrorInfo) {
	s.logger.Error("Session canceled", "reason", info.Reason.String(), "code", info.Code.String(), "detail", info.Detail)
	if s.registry != nil {
		s.registry.CoreMetrics().RecordError("session", errors.ErrorTransient.String())
	}
	emit(s, s.Canceled, CanceledEvent{SessionID: s.id, Info: info})
	s.finish()
}

// CompletedSetFormatStop implements pump.Site.
func (s *Session) CompletedSetFormatStop(_ any) {
	if !s.stopRequested.Load() {
		emit(s, s.Canceled, CanceledEvent{
			SessionID: s.id,
			Info:      audio.ErrorInfo{Reason: audio.ReasonEndOfStream, Code: audio.CodeNoError},
		})
	}
	s.finish()
}

// ReportLevel implements meter.Site.
func (s *Session) ReportLevel(_ any, level meter.Level) {
	emit(s, s.Level, LevelEvent{SessionID: s.id, Level: level})
}

// MeterCompleted implements meter.Site.
func (s *Session) MeterCompleted(_ any) {
	s.logger.Debug("Meter completed")
}

// QueryService implements site.ServiceProvider.
func (s *Session) QueryService(name capability.Name) (capability.Handle[any], bool) {
	return s.services.QueryService(name)
}

// QueryCapability implements capability.Object.
func (s *Session) QueryCapability(name capability.Name) (any, bool) {
	return capability.Lookup(name,
		capability.Of[pump.Site](s),
		capability.Of[meter.Site](s),
		capability.Of[site.ServiceProvider](s),
		capability.Of[capability.Object](s),
	)
}

// Destroy detaches and releases the sub-components when the last handle to
// the session is released.
func (s *Session) Destroy() {
	for _, obj := range []any{s.pump.Get(), s.processor.Get()} {
		if ows, ok := capability.Query[site.ObjectWithSite](obj); ok {
			_ = ows.SetSite(capability.Weak[any]{})
		}
	}
	s.processor.Release()
	s.pump.Release()
	s.services.Close()
	s.ts.Release()

	s.SessionStarted.DisconnectAll()
	s.SessionStopped.DisconnectAll()
	s.Canceled.DisconnectAll()
	s.Level.DisconnectAll()
}

// finish runs once. SessionStopped is delivered and Done closed from the
// User lane, after every event queued before it.
func (s *Session) finish() {
	s.finishOnce.Do(func() {
		if s.active.CompareAndSwap(true, false) {
			s.registry.CoreMetrics().SessionStopped()
		}
		s.logger.Info("Session stopped")

		stopped := func(context.Context) {
			s.SessionStopped.Signal(Event{SessionID: s.id})
			close(s.done)
		}
		if s.ts.Get().ExecuteAsync(stopped, threadservice.WithAffinity(threadservice.User)) == threadservice.InvalidTaskID {
			stopped(context.Background())
		}
	})
}

// emit delivers args on the User lane, or on the caller once the lane no
// longer accepts work.
func emit[T any](s *Session, sig *event.Signal[T], args T) {
	if sig.SignalOn(s.ts.Get(), args) == threadservice.InvalidTaskID {
		sig.Signal(args)
	}
}
