package component

import (
	"context"
	"time"
)

// State is the lifecycle position of a long-lived runtime object such as
// the thread service.
type State int

// Lifecycle states in the order a healthy object passes through them.
const (
	StateCreated State = iota
	StateStarting
	StateStarted
	StateStopping
	StateStopped
	// StateFailed is terminal: Start returned an error part way through.
	StateFailed
)

var stateNames = [...]string{"created", "starting", "started", "stopping", "stopped", "failed"}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "unknown"
	}
	return stateNames[s]
}

// Terminal reports whether no further transition is possible.
func (s State) Terminal() bool {
	return s == StateStopped || s == StateFailed
}

// Lifecycle is implemented by components with an explicit run phase.
type Lifecycle interface {
	Start(ctx context.Context) error
	Stop(timeout time.Duration) error
}
