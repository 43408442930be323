package threadservice

import (
	"container/heap"
	"context"
	"sync"
	"time"

	"github.com/c360/speechcore/component"
	"github.com/c360/speechcore/errors"
)

var _ component.Lifecycle = (*Inline)(nil)

// Inline is a ThreadService that runs tasks on the goroutine that submits
// them. Submissions made while a task is running are queued behind it and run
// before the outermost ExecuteAsync returns, so per-lane order matches
// Service. Delays order tasks on a virtual clock but are never slept.
type Inline struct {
	mu       sync.Mutex
	ctx      context.Context
	pending  inlineHeap
	byID     map[TaskID]*inlineTask
	next     TaskID
	clock    time.Duration
	draining bool
	stopped  bool
	stats    map[Affinity]*LaneStats
}

type inlineTask struct {
	id       TaskID
	affinity Affinity
	fn       Task
	promise  *Promise
	eligible time.Duration
	index    int
}

// NewInline returns a running inline scheduler.
func NewInline() *Inline {
	return &Inline{
		ctx:  context.Background(),
		byID: make(map[TaskID]*inlineTask),
		stats: map[Affinity]*LaneStats{
			User:       {},
			Background: {},
		},
	}
}

// Start replaces the context tasks run with.
func (s *Inline) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ctx = ctx
	return nil
}

// Stop resolves every pending task as FailedToSchedule and rejects later
// submissions.
func (s *Inline) Stop(_ time.Duration) error {
	s.mu.Lock()
	s.stopped = true
	var left []*inlineTask
	for len(s.pending) > 0 {
		it := heap.Pop(&s.pending).(*inlineTask)
		delete(s.byID, it.id)
		s.lane(it.affinity).Failed++
		left = append(left, it)
	}
	s.mu.Unlock()

	for _, it := range left {
		it.promise.resolve(Result{Outcome: FailedToSchedule, Err: errors.ErrShuttingDown})
	}
	return nil
}

// ExecuteAsync implements ThreadService.
func (s *Inline) ExecuteAsync(fn Task, opts ...Option) TaskID {
	sub := applyOptions(opts)

	s.mu.Lock()
	st := s.lane(sub.affinity)
	st.Submitted++
	if fn == nil || s.stopped {
		st.Failed++
		s.mu.Unlock()
		cause := errors.ErrShuttingDown
		if fn == nil {
			cause = errors.ErrNilArgument
		}
		sub.promise.resolve(Result{Outcome: FailedToSchedule, Err: cause})
		return InvalidTaskID
	}

	s.next++
	it := &inlineTask{
		id:       s.next,
		affinity: sub.affinity,
		fn:       fn,
		promise:  sub.promise,
		eligible: s.clock + sub.delay,
	}
	heap.Push(&s.pending, it)
	s.byID[it.id] = it
	if s.draining {
		s.mu.Unlock()
		return it.id
	}
	s.draining = true
	s.mu.Unlock()

	s.drain()
	return it.id
}

// ExecuteSync implements ThreadService. From a task on the same lane fn runs
// immediately. From a task on the other lane, fn is queued on its lane and
// that lane's earlier tasks run first, on the calling goroutine.
func (s *Inline) ExecuteSync(ctx context.Context, fn Task, affinity Affinity) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if onLane(ctx, s, affinity) {
		fn(ctx)
		return nil
	}

	p := NewPromise()
	s.ExecuteAsync(fn, WithAffinity(affinity), WithPromise(p))
	if info, ok := ctx.Value(laneKey{}).(laneInfo); ok && info.owner == s {
		s.runLane(affinity, p)
	}
	res, err := p.Wait(ctx)
	if err != nil {
		return err
	}
	return resultError(res, "InlineThreadService")
}

// Cancel implements ThreadService.
func (s *Inline) Cancel(id TaskID) bool {
	s.mu.Lock()
	it, ok := s.byID[id]
	if ok {
		heap.Remove(&s.pending, it.index)
		delete(s.byID, id)
		s.lane(it.affinity).Cancelled++
	}
	s.mu.Unlock()

	if ok {
		it.promise.resolve(Result{Outcome: Cancelled})
	}
	return ok
}

// CancelAll implements ThreadService.
func (s *Inline) CancelAll() {
	s.mu.Lock()
	var all []*inlineTask
	for len(s.pending) > 0 {
		it := heap.Pop(&s.pending).(*inlineTask)
		delete(s.byID, it.id)
		s.lane(it.affinity).Cancelled++
		all = append(all, it)
	}
	s.mu.Unlock()

	for _, it := range all {
		it.promise.resolve(Result{Outcome: Cancelled})
	}
}

// Stats returns per-lane statistics.
func (s *Inline) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := Stats{User: *s.stats[User], Background: *s.stats[Background]}
	for _, it := range s.pending {
		if it.affinity == User {
			out.User.Pending++
		} else {
			out.Background.Pending++
		}
	}
	return out
}

func (s *Inline) lane(a Affinity) *LaneStats {
	if a == User {
		return s.stats[User]
	}
	return s.stats[Background]
}

// runLane runs tasks of lane a in order until p resolves or the lane has
// nothing queued. It is used while an outer task holds the drain loop.
func (s *Inline) runLane(a Affinity, p *Promise) {
	for {
		if _, done := p.Result(); done {
			return
		}
		s.mu.Lock()
		var head *inlineTask
		for _, it := range s.pending {
			if it.affinity == a && (head == nil || s.pending.before(it, head)) {
				head = it
			}
		}
		if head == nil {
			s.mu.Unlock()
			return
		}
		heap.Remove(&s.pending, head.index)
		delete(s.byID, head.id)
		s.mu.Unlock()
		s.run(head)
	}
}

func (s *Inline) drain() {
	finished := false
	defer func() {
		if !finished {
			s.mu.Lock()
			s.draining = false
			s.mu.Unlock()
		}
	}()

	for {
		s.mu.Lock()
		if len(s.pending) == 0 {
			s.draining = false
			s.mu.Unlock()
			finished = true
			return
		}
		it := heap.Pop(&s.pending).(*inlineTask)
		delete(s.byID, it.id)
		s.mu.Unlock()
		s.run(it)
	}
}

// run executes a task already taken off the heap.
func (s *Inline) run(it *inlineTask) {
	s.mu.Lock()
	if it.eligible > s.clock {
		s.clock = it.eligible
	}
	ctx := s.ctx
	s.mu.Unlock()

	it.fn(withLane(ctx, s, it.affinity))

	s.mu.Lock()
	s.lane(it.affinity).Executed++
	s.mu.Unlock()
	it.promise.resolve(Result{Outcome: Executed})
}

type inlineHeap []*inlineTask

func (h inlineHeap) Len() int { return len(h) }

func (h inlineHeap) Less(i, j int) bool { return h.before(h[i], h[j]) }

func (inlineHeap) before(a, b *inlineTask) bool {
	if a.eligible != b.eligible {
		return a.eligible < b.eligible
	}
	return a.id < b.id
}

func (h inlineHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *inlineHeap) Push(x any) {
	it := x.(*inlineTask)
	it.index = len(*h)
	*h = append(*h, it)
}

func (h *inlineHeap) Pop() any {
	old := *h
	n := len(old)
	it := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return it
}
