// Package event provides typed signals with connection tracking.
//
// A Signal fans a value out to its handlers in subscription order. Optional
// hooks fire when the signal gains its first handler and loses its last one,
// which lets an owner start or stop the work that feeds the signal.
package event

import (
	"context"
	"sync"

	"github.com/c360/speechcore/threadservice"
)

// Connection identifies one handler of a signal.
type Connection uint64

// Option configures a Signal.
type Option func(*hooks)

type hooks struct {
	connected    func()
	disconnected func()
}

// WithConnected sets the hook run when the first handler connects.
func WithConnected(fn func()) Option {
	return func(h *hooks) { h.connected = fn }
}

// WithDisconnected sets the hook run when the last handler disconnects.
func WithDisconnected(fn func()) Option {
	return func(h *hooks) { h.disconnected = fn }
}

type handler[T any] struct {
	id Connection
	fn func(T)
}

// Signal delivers values of type T to connected handlers. Hooks run under a
// lock that serializes them; they must not connect or disconnect handlers of
// the same signal.
type Signal[T any] struct {
	hooks hooks

	hookMu   sync.Mutex
	mu       sync.RWMutex
	handlers []handler[T]
	next     Connection
}

// New creates a signal with no handlers.
func New[T any](opts ...Option) *Signal[T] {
	s := &Signal[T]{}
	for _, opt := range opts {
		opt(&s.hooks)
	}
	return s
}

// Connect adds fn and returns its connection.
func (s *Signal[T]) Connect(fn func(T)) Connection {
	s.hookMu.Lock()
	defer s.hookMu.Unlock()

	s.mu.Lock()
	s.next++
	id := s.next
	first := len(s.handlers) == 0
	s.handlers = append(s.handlers, handler[T]{id: id, fn: fn})
	s.mu.Unlock()

	if first && s.hooks.connected != nil {
		s.hooks.connected()
	}
	return id
}

// Disconnect removes a handler. It reports false for an unknown connection.
func (s *Signal[T]) Disconnect(c Connection) bool {
	s.hookMu.Lock()
	defer s.hookMu.Unlock()

	s.mu.Lock()
	found := false
	for i, h := range s.handlers {
		if h.id == c {
			s.handlers = append(s.handlers[:i:i], s.handlers[i+1:]...)
			found = true
			break
		}
	}
	last := found && len(s.handlers) == 0
	s.mu.Unlock()

	if last && s.hooks.disconnected != nil {
		s.hooks.disconnected()
	}
	return found
}

// DisconnectAll removes every handler.
func (s *Signal[T]) DisconnectAll() {
	s.hookMu.Lock()
	defer s.hookMu.Unlock()

	s.mu.Lock()
	had := len(s.handlers) > 0
	s.handlers = nil
	s.mu.Unlock()

	if had && s.hooks.disconnected != nil {
		s.hooks.disconnected()
	}
}

// IsConnected reports whether any handler is connected.
func (s *Signal[T]) IsConnected() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.handlers) > 0
}

// Signal calls every handler connected at the time of the call, in
// subscription order, on the calling goroutine.
func (s *Signal[T]) Signal(args T) {
	s.mu.RLock()
	snapshot := make([]handler[T], len(s.handlers))
	copy(snapshot, s.handlers)
	s.mu.RUnlock()

	for _, h := range snapshot {
		h.fn(args)
	}
}

// SignalOn delivers args from a task on the User lane of ts.
func (s *Signal[T]) SignalOn(ts threadservice.ThreadService, args T, opts ...threadservice.Option) threadservice.TaskID {
	opts = append(opts, threadservice.WithAffinity(threadservice.User))
	return ts.ExecuteAsync(func(context.Context) { s.Signal(args) }, opts...)
}
