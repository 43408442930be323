package threadservice

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/c360/speechcore/component"
	"github.com/c360/speechcore/errors"
	"github.com/c360/speechcore/metric"
	"github.com/c360/speechcore/pkg/worker"
)

type taskState int32

const (
	statePending taskState = iota
	stateRunning
	stateCancelled
	stateDone
	stateFailed
)

type task struct {
	id      TaskID
	lane    *lane
	fn      Task
	promise *Promise
	state   atomic.Int32
	ticket  atomic.Uint64
}

func (t *task) transition(from, to taskState) bool {
	return t.state.CompareAndSwap(int32(from), int32(to))
}

type lane struct {
	affinity Affinity
	queue    *worker.Queue[*task]

	submitted atomic.Int64
	executed  atomic.Int64
	cancelled atomic.Int64
	failed    atomic.Int64
}

// LaneStats counts task outcomes on one lane.
type LaneStats struct {
	Submitted int64 `json:"submitted"`
	Executed  int64 `json:"executed"`
	Cancelled int64 `json:"cancelled"`
	Failed    int64 `json:"failed"`
	Pending   int   `json:"pending"`
}

// Stats holds per-lane statistics.
type Stats struct {
	User       LaneStats `json:"user"`
	Background LaneStats `json:"background"`
}

// Service is the production ThreadService: one serial worker queue per lane.
type Service struct {
	logger  *slog.Logger
	metrics *metric.MetricsRegistry
	sizes   map[Affinity]int

	lanes map[Affinity]*lane

	mu     sync.Mutex
	tasks  map[TaskID]*task
	nextID atomic.Uint64

	lifecycleMu sync.RWMutex
	state       component.State
}

var _ component.Lifecycle = (*Service)(nil)

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithLogger sets the logger. The default is slog.Default().
func WithLogger(logger *slog.Logger) ServiceOption {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithMetrics records task outcomes in the registry's core metrics and
// registers per-lane queue metrics.
func WithMetrics(registry *metric.MetricsRegistry) ServiceOption {
	return func(s *Service) { s.metrics = registry }
}

// WithQueueSize bounds the number of pending tasks per lane. Zero keeps the
// worker queue default.
func WithQueueSize(user, background int) ServiceOption {
	return func(s *Service) {
		s.sizes[User] = user
		s.sizes[Background] = background
	}
}

// New creates a Service in component.StateCreated. Call Start before
// submitting work.
func New(opts ...ServiceOption) *Service {
	s := &Service{
		logger: slog.Default(),
		sizes:  make(map[Affinity]int),
		lanes:  make(map[Affinity]*lane),
		tasks:  make(map[TaskID]*task),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("component", "threadservice")

	for _, a := range []Affinity{User, Background} {
		l := &lane{affinity: a}
		var qopts []worker.Option[*task]
		if s.metrics != nil {
			qopts = append(qopts, worker.WithMetricsRegistry[*task](s.metrics, "threadservice_"+a.String()))
		}
		l.queue = worker.NewQueue(s.sizes[a], s.runner(l), qopts...)
		s.lanes[a] = l
	}
	return s
}

// Start starts both lanes. Tasks run with ctx, extended with their lane.
func (s *Service) Start(ctx context.Context) error {
	s.lifecycleMu.Lock()
	defer s.lifecycleMu.Unlock()

	if s.state != component.StateCreated {
		return errors.WrapInvalid(errors.ErrAlreadyStarted, "ThreadService", "Start", "start lanes")
	}
	s.setState(component.StateStarting)
	for _, l := range s.lanes {
		if err := l.queue.Start(ctx); err != nil {
			s.setState(component.StateFailed)
			return errors.WrapFatal(err, "ThreadService", "Start", fmt.Sprintf("start %s lane", l.affinity))
		}
	}
	s.setState(component.StateStarted)
	s.logger.Debug("Thread service started")
	return nil
}

// Stop stops accepting work, waits up to timeout for running tasks and
// resolves every pending task as FailedToSchedule.
func (s *Service) Stop(timeout time.Duration) error {
	s.lifecycleMu.Lock()
	if s.state != component.StateStarted {
		s.lifecycleMu.Unlock()
		return nil
	}
	s.setState(component.StateStopping)
	s.lifecycleMu.Unlock()

	var g errgroup.Group
	for _, l := range s.lanes {
		g.Go(func() error {
			if err := l.queue.Stop(timeout); err != nil {
				return errors.WrapTransient(err, "ThreadService", "Stop", fmt.Sprintf("stop %s lane", l.affinity))
			}
			return nil
		})
	}
	stopErr := g.Wait()

	failed := 0
	for _, l := range s.lanes {
		for _, t := range l.queue.Drain() {
			if s.fail(t, errors.ErrShuttingDown) {
				failed++
			}
		}
	}

	// Tasks whose submission raced with shutdown.
	s.mu.Lock()
	rest := make([]*task, 0, len(s.tasks))
	for _, t := range s.tasks {
		rest = append(rest, t)
	}
	s.mu.Unlock()
	for _, t := range rest {
		if s.fail(t, errors.ErrShuttingDown) {
			failed++
		}
	}

	s.lifecycleMu.Lock()
	s.setState(component.StateStopped)
	s.lifecycleMu.Unlock()

	s.logger.Debug("Thread service stopped", "failed_pending", failed)
	return stopErr
}

// State returns the service's lifecycle state.
func (s *Service) State() component.State {
	s.lifecycleMu.RLock()
	defer s.lifecycleMu.RUnlock()
	return s.state
}

// setState is called with lifecycleMu held.
func (s *Service) setState(state component.State) {
	s.state = state
	if s.metrics != nil {
		s.metrics.CoreMetrics().RecordComponentStatus("threadservice", int(state))
	}
}

// ExecuteAsync implements ThreadService.
func (s *Service) ExecuteAsync(fn Task, opts ...Option) TaskID {
	sub := applyOptions(opts)
	l, ok := s.lanes[sub.affinity]
	if !ok {
		l = s.lanes[Background]
	}

	if fn == nil {
		s.reject(l, sub.promise, errors.WrapInvalid(errors.ErrNilArgument, "ThreadService", "ExecuteAsync", "validate task"))
		return InvalidTaskID
	}

	s.lifecycleMu.RLock()
	state := s.state
	s.lifecycleMu.RUnlock()
	if state != component.StateStarted {
		cause := errors.ErrNotStarted
		if state == component.StateStopping || state == component.StateStopped {
			cause = errors.ErrShuttingDown
		}
		s.reject(l, sub.promise, errors.WrapTransient(cause, "ThreadService", "ExecuteAsync", "schedule task"))
		return InvalidTaskID
	}

	t := &task{
		id:      TaskID(s.nextID.Add(1)),
		lane:    l,
		fn:      fn,
		promise: sub.promise,
	}
	s.mu.Lock()
	s.tasks[t.id] = t
	s.mu.Unlock()
	l.submitted.Add(1)

	ticket, err := l.queue.Submit(t, sub.delay)
	if err != nil {
		cause := errors.ErrTaskFailedToSchedule
		if errors.Is(err, worker.ErrQueueStopped) {
			cause = errors.ErrShuttingDown
		}
		s.fail(t, fmt.Errorf("%w: %v", cause, err))
		return InvalidTaskID
	}
	t.ticket.Store(uint64(ticket))
	return t.id
}

// ExecuteSync implements ThreadService. Called from a task already running on
// the same lane of this service (pass the task's context), it runs fn inline.
func (s *Service) ExecuteSync(ctx context.Context, fn Task, affinity Affinity) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if onLane(ctx, s, affinity) {
		fn(ctx)
		return nil
	}

	p := NewPromise()
	id := s.ExecuteAsync(fn, WithAffinity(affinity), WithPromise(p))
	res, err := p.Wait(ctx)
	if err != nil {
		s.Cancel(id)
		return err
	}
	return resultError(res, "ThreadService")
}

// Cancel implements ThreadService.
func (s *Service) Cancel(id TaskID) bool {
	s.mu.Lock()
	t, ok := s.tasks[id]
	s.mu.Unlock()
	if !ok {
		return false
	}
	return s.cancel(t)
}

// CancelAll implements ThreadService.
func (s *Service) CancelAll() {
	s.mu.Lock()
	pending := make([]*task, 0, len(s.tasks))
	for _, t := range s.tasks {
		pending = append(pending, t)
	}
	s.mu.Unlock()

	sort.Slice(pending, func(i, j int) bool { return pending[i].id < pending[j].id })
	n := 0
	for _, t := range pending {
		if s.cancel(t) {
			n++
		}
	}
	if n > 0 {
		s.logger.Debug("Cancelled pending tasks", "count", n)
	}
}

// Stats returns per-lane statistics.
func (s *Service) Stats() Stats {
	return Stats{
		User:       s.laneStats(s.lanes[User]),
		Background: s.laneStats(s.lanes[Background]),
	}
}

func (s *Service) laneStats(l *lane) LaneStats {
	return LaneStats{
		Submitted: l.submitted.Load(),
		Executed:  l.executed.Load(),
		Cancelled: l.cancelled.Load(),
		Failed:    l.failed.Load(),
		Pending:   l.queue.Stats().QueueDepth,
	}
}

func (s *Service) runner(l *lane) func(context.Context, *task) error {
	return func(ctx context.Context, t *task) error {
		if !t.transition(statePending, stateRunning) {
			return nil
		}
		s.forget(t.id)

		start := time.Now()
		t.fn(withLane(ctx, s, l.affinity))
		duration := time.Since(start)

		t.state.Store(int32(stateDone))
		l.executed.Add(1)
		s.record(l, Executed, duration)
		t.promise.resolve(Result{Outcome: Executed})
		return nil
	}
}

func (s *Service) cancel(t *task) bool {
	if !t.transition(statePending, stateCancelled) {
		return false
	}
	s.forget(t.id)
	t.lane.queue.Remove(worker.Ticket(t.ticket.Load()))
	t.lane.cancelled.Add(1)
	s.record(t.lane, Cancelled, 0)
	t.promise.resolve(Result{Outcome: Cancelled})
	return true
}

func (s *Service) fail(t *task, cause error) bool {
	if !t.transition(statePending, stateFailed) {
		return false
	}
	s.forget(t.id)
	t.lane.failed.Add(1)
	s.record(t.lane, FailedToSchedule, 0)
	t.promise.resolve(Result{Outcome: FailedToSchedule, Err: cause})
	return true
}

func (s *Service) reject(l *lane, p *Promise, cause error) {
	l.submitted.Add(1)
	l.failed.Add(1)
	s.record(l, FailedToSchedule, 0)
	s.logger.Debug("Task rejected", "lane", l.affinity.String(), "error", cause)
	p.resolve(Result{Outcome: FailedToSchedule, Err: cause})
}

func (s *Service) forget(id TaskID) {
	s.mu.Lock()
	delete(s.tasks, id)
	s.mu.Unlock()
}

func (s *Service) record(l *lane, o Outcome, d time.Duration) {
	if s.metrics == nil {
		return
	}
	s.metrics.CoreMetrics().RecordTask(l.affinity.String(), o.String(), d)
}

func resultError(res Result, component string) error {
	switch res.Outcome {
	case Executed:
		return nil
	case Cancelled:
		return errors.WrapTransient(errors.ErrTaskCancelled, component, "ExecuteSync", "run task")
	default:
		if res.Err == nil {
			return errors.WrapTransient(errors.ErrTaskFailedToSchedule, component, "ExecuteSync", "run task")
		}
		return res.Err
	}
}
