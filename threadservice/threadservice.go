package threadservice

import (
	"context"
	"sync"
	"time"

	"github.com/c360/speechcore/capability"
)

// Affinity selects the lane a task runs on.
type Affinity int

const (
	// Background is the default lane for internal work.
	Background Affinity = iota
	// User is the lane for caller-visible work such as event delivery.
	User
)

func (a Affinity) String() string {
	switch a {
	case Background:
		return "background"
	case User:
		return "user"
	default:
		return "unknown"
	}
}

// TaskID identifies a submitted task. IDs are unique per scheduler and never
// reused.
type TaskID uint64

// InvalidTaskID is returned when a task could not be scheduled.
const InvalidTaskID TaskID = 0

// Task is a unit of deferred work. The context carries the lane the task runs
// on; pass it to ExecuteSync to run nested same-lane work inline.
type Task func(ctx context.Context)

// ThreadService is the scheduling capability components look up through
// their site.
type ThreadService interface {
	// ExecuteAsync enqueues task and returns its id, or InvalidTaskID when the
	// scheduler cannot accept it; the promise, if any, then resolves
	// FailedToSchedule.
	ExecuteAsync(task Task, opts ...Option) TaskID
	// ExecuteSync blocks until task has run on the lane.
	ExecuteSync(ctx context.Context, task Task, affinity Affinity) error
	// Cancel cancels a task that has not started.
	Cancel(id TaskID) bool
	// CancelAll cancels every task that has not started, on both lanes.
	CancelAll()
}

// Name is the capability and service name of ThreadService.
var Name = capability.Define[ThreadService]("ThreadService")

// Outcome is the terminal state of a task.
type Outcome int

const (
	Executed Outcome = iota + 1
	Cancelled
	FailedToSchedule
)

func (o Outcome) String() string {
	switch o {
	case Executed:
		return "executed"
	case Cancelled:
		return "cancelled"
	case FailedToSchedule:
		return "failed_to_schedule"
	default:
		return "pending"
	}
}

// Result is what a Promise resolves to. Err is set only for FailedToSchedule.
type Result struct {
	Outcome Outcome
	Err     error
}

// Promise receives a task's outcome exactly once.
type Promise struct {
	once   sync.Once
	done   chan struct{}
	result Result
}

// NewPromise returns an unresolved promise.
func NewPromise() *Promise {
	return &Promise{done: make(chan struct{})}
}

// Done is closed when the promise resolves.
func (p *Promise) Done() <-chan struct{} {
	return p.done
}

// Result returns the outcome if the promise has resolved.
func (p *Promise) Result() (Result, bool) {
	select {
	case <-p.done:
		return p.result, true
	default:
		return Result{}, false
	}
}

// Wait blocks until the promise resolves or ctx ends.
func (p *Promise) Wait(ctx context.Context) (Result, error) {
	select {
	case <-p.done:
		return p.result, nil
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
}

func (p *Promise) resolve(r Result) bool {
	if p == nil {
		return false
	}
	resolved := false
	p.once.Do(func() {
		p.result = r
		close(p.done)
		resolved = true
	})
	return resolved
}

// Option configures a single submission.
type Option func(*submission)

type submission struct {
	affinity Affinity
	delay    time.Duration
	promise  *Promise
}

// WithAffinity selects the lane. The default is Background.
func WithAffinity(a Affinity) Option {
	return func(s *submission) { s.affinity = a }
}

// WithDelay makes the task eligible only after d has elapsed.
func WithDelay(d time.Duration) Option {
	return func(s *submission) { s.delay = d }
}

// WithPromise attaches a completion promise.
func WithPromise(p *Promise) Option {
	return func(s *submission) { s.promise = p }
}

func applyOptions(opts []Option) submission {
	s := submission{affinity: Background}
	for _, opt := range opts {
		opt(&s)
	}
	if s.delay < 0 {
		s.delay = 0
	}
	return s
}

type laneKey struct{}

type laneInfo struct {
	owner    any
	affinity Affinity
}

func withLane(ctx context.Context, owner any, a Affinity) context.Context {
	return context.WithValue(ctx, laneKey{}, laneInfo{owner: owner, affinity: a})
}

func onLane(ctx context.Context, owner any, a Affinity) bool {
	if ctx == nil {
		return false
	}
	info, ok := ctx.Value(laneKey{}).(laneInfo)
	return ok && info.owner == owner && info.affinity == a
}

// LaneFrom reports the lane a task context belongs to.
func LaneFrom(ctx context.Context) (Affinity, bool) {
	info, ok := ctx.Value(laneKey{}).(laneInfo)
	return info.affinity, ok
}
