package input

import (
	"errors"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/retroenv/retrogolib/log"
)

var ErrHookInstalled = errors.New("mouse hook already installed")

// current is the tracker the OS hook callback reports to. The callback
// carries no context, so there can only be one.
var current atomic.Pointer[ScrollTracker]

func claim(t *ScrollTracker) error {
	if !current.CompareAndSwap(nil, t) {
		return ErrHookInstalled
	}
	return nil
}

func unclaim(t *ScrollTracker) {
	current.CompareAndSwap(t, nil)
}

// Current returns the tracker owning the hook, or nil.
func Current() *ScrollTracker {
	return current.Load()
}

// pump runs on a locked OS thread for the lifetime of a tracker. It calls
// ready exactly once, with nil after the hook is live, and returns after
// stop is signalled with the hook released.
type pump func(logger *log.Logger, ready func(error), stop <-chan struct{}) error

// ScrollTracker accumulates wheel notches reported by the hook thread.
type ScrollTracker struct {
	logger *log.Logger

	mu       sync.Mutex
	position int32
	last     int32

	stop      chan struct{}
	done      chan error
	closeOnce sync.Once
	closeErr  error
}

func start(logger *log.Logger, run pump) (*ScrollTracker, error) {
	t := &ScrollTracker{
		logger: logger,
		stop:   make(chan struct{}),
		done:   make(chan error, 1),
	}
	if err := claim(t); err != nil {
		return nil, err
	}

	ready := make(chan error, 1)
	go func() {
		runtime.LockOSThread()
		defer runtime.UnlockOSThread()
		t.done <- run(logger, func(err error) { ready <- err }, t.stop)
	}()
	if err := <-ready; err != nil {
		<-t.done
		unclaim(t)
		return nil, err
	}
	return t, nil
}

// Add records wheel movement in notches.
func (t *ScrollTracker) Add(notches int32) {
	t.mu.Lock()
	t.position += notches
	t.mu.Unlock()
}

// Position returns the accumulated wheel position.
func (t *ScrollTracker) Position() int32 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.position
}

// Delta returns the movement since the previous call.
func (t *ScrollTracker) Delta() int32 {
	t.mu.Lock()
	defer t.mu.Unlock()
	d := t.position - t.last
	t.last = t.position
	return d
}

func (t *ScrollTracker) Reset() {
	t.mu.Lock()
	t.position, t.last = 0, 0
	t.mu.Unlock()
}

// Close signals the hook thread and waits until it has released the hook.
func (t *ScrollTracker) Close() error {
	t.closeOnce.Do(func() {
		select {
		case t.stop <- struct{}{}:
			t.closeErr = <-t.done
		case t.closeErr = <-t.done:
		}
		unclaim(t)
		t.logger.Debug("Mouse hook released")
	})
	return t.closeErr
}
