package cache

import (
	"context"
	"sync"

	"golang.org/x/sync/singleflight"

	"segment-cache/internal/domain"
)

// State is a position in the lifecycle state machine
type State int32

const (
	StateUnstarted State = iota
	StateStarting
	StateReady
	StateStopped
)

// String returns the lowercase state name
func (s State) String() string {
	switch s {
	case StateUnstarted:
		return "unstarted"
	case StateStarting:
		return "starting"
	case StateReady:
		return "ready"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Lifecycle gates operations behind Unstarted -> Starting -> Ready -> Stopped.
//
// Initialize and Shutdown are serialized by transition. Overlapping
// Initialize calls are collapsed by singleflight so the start hook runs once
// and every caller sees its result. Operations hold a slot between Acquire
// and release; Shutdown stops new acquisitions first and then waits for the
// held slots to drain before running the stop hook.
type Lifecycle struct {
	start func(ctx context.Context) error
	stop  func(ctx context.Context) error

	transition sync.Mutex
	group      singleflight.Group

	mu       sync.Mutex
	state    State
	inflight int
	drained  chan struct{} // closed when inflight reaches zero during Shutdown
}

// NewLifecycle creates an unstarted lifecycle around start and stop hooks
func NewLifecycle(start, stop func(ctx context.Context) error) *Lifecycle {
	return &Lifecycle{
		start: start,
		stop:  stop,
		state: StateUnstarted,
	}
}

// State returns the current state
func (l *Lifecycle) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// Initialize moves to Ready, running the start hook at most once per
// transition. Already Ready returns nil immediately. If the start hook fails
// the state returns to Unstarted so the call can be retried.
//
// Concurrent callers share the first caller's ctx.
func (l *Lifecycle) Initialize(ctx context.Context) error {
	if l.State() == StateReady {
		return nil
	}

	_, err, _ := l.group.Do("initialize", func() (interface{}, error) {
		l.transition.Lock()
		defer l.transition.Unlock()

		l.mu.Lock()
		if l.state == StateReady {
			l.mu.Unlock()
			return nil, nil
		}
		l.state = StateStarting
		l.mu.Unlock()

		if err := l.start(ctx); err != nil {
			l.setState(StateUnstarted)
			return nil, err
		}

		l.setState(StateReady)
		return nil, nil
	})
	return err
}

// Shutdown moves Ready to Stopped. New operations fail immediately; in-flight
// ones are given until ctx is done to finish before the stop hook runs.
// Shutdown outside Ready is a no-op.
func (l *Lifecycle) Shutdown(ctx context.Context) error {
	l.transition.Lock()
	defer l.transition.Unlock()

	l.mu.Lock()
	if l.state != StateReady {
		l.mu.Unlock()
		return nil
	}
	l.state = StateStopped
	var drained chan struct{}
	if l.inflight > 0 {
		drained = make(chan struct{})
		l.drained = drained
	}
	l.mu.Unlock()

	if drained != nil {
		select {
		case <-drained:
		case <-ctx.Done():
		}
	}

	// Resources are released even when the drain wait ran out.
	return l.stop(context.WithoutCancel(ctx))
}

// Acquire reserves a slot for one operation. The returned release must be
// called exactly once when the operation finishes.
func (l *Lifecycle) Acquire() (release func(), err error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.state != StateReady {
		return nil, domain.ErrNotInitialized
	}
	l.inflight++

	var once sync.Once
	return func() { once.Do(l.release) }, nil
}

func (l *Lifecycle) release() {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.inflight--
	if l.inflight == 0 && l.drained != nil {
		close(l.drained)
		l.drained = nil
	}
}

func (l *Lifecycle) setState(s State) {
	l.mu.Lock()
	l.state = s
	l.mu.Unlock()
}
