package watcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
)

var (
	// ErrDispatcherStarted is returned by Run when the dispatcher already runs.
	ErrDispatcherStarted = errors.New("dispatcher already started")
	// ErrDispatcherNotStarted is returned by Wait before Run or Start was called.
	ErrDispatcherNotStarted = errors.New("dispatcher not started")
)

// Handle identifies a registered callback.
type Handle struct {
	id uuid.UUID
}

func (h Handle) String() string {
	return h.id.String()
}

type callback struct {
	handle Handle
	fn     func(Event)
}

// Dispatcher drains a Sequence on one goroutine and invokes every registered
// callback, in registration order, for each event.
type Dispatcher struct {
	seq    *Sequence
	logger *slog.Logger

	mu        sync.Mutex
	callbacks []callback

	startOnce sync.Once
	started   atomic.Bool
	done      chan struct{}
	runErr    error
}

// NewDispatcher creates a dispatcher for seq.
func NewDispatcher(seq *Sequence, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Dispatcher{
		seq:    seq,
		logger: logger,
		done:   make(chan struct{}),
	}
}

// Add appends fn to the callback chain. Callbacks added while an event is being
// dispatched see the next event.
func (d *Dispatcher) Add(fn func(Event)) Handle {
	handle := Handle{id: uuid.New()}
	d.mu.Lock()
	d.callbacks = append(d.callbacks, callback{handle: handle, fn: fn})
	d.mu.Unlock()
	return handle
}

// Remove unregisters a callback. Returns false if the handle is unknown.
func (d *Dispatcher) Remove(handle Handle) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	for i, cb := range d.callbacks {
		if cb.handle == handle {
			// Copy so a chain snapshot held by Run stays intact.
			callbacks := make([]callback, 0, len(d.callbacks)-1)
			callbacks = append(callbacks, d.callbacks[:i]...)
			d.callbacks = append(callbacks, d.callbacks[i+1:]...)
			return true
		}
	}
	return false
}

// Len returns the number of registered callbacks.
func (d *Dispatcher) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.callbacks)
}

// Run dispatches events until the sequence terminates. It returns the sequence's
// termination error, nil for a plain cancellation or Close. A dispatcher runs once:
// later calls to Run return ErrDispatcherStarted.
func (d *Dispatcher) Run(ctx context.Context) error {
	if !d.claim() {
		return ErrDispatcherStarted
	}
	d.runErr = d.run(ctx)
	close(d.done)
	return d.runErr
}

// Start runs the dispatcher on a new goroutine. Only the first call to Start or
// Run has an effect.
func (d *Dispatcher) Start(ctx context.Context) {
	if !d.claim() {
		return
	}
	go func() {
		d.runErr = d.run(ctx)
		close(d.done)
	}()
}

// Wait blocks until the dispatcher exits and returns Run's result. It returns
// ErrDispatcherNotStarted right away when neither Run nor Start was called.
func (d *Dispatcher) Wait() error {
	if !d.started.Load() {
		return ErrDispatcherNotStarted
	}
	<-d.done
	return d.runErr
}

func (d *Dispatcher) claim() bool {
	claimed := false
	d.startOnce.Do(func() {
		claimed = true
		d.started.Store(true)
	})
	return claimed
}

func (d *Dispatcher) run(ctx context.Context) error {
	for event, ok := d.seq.Next(ctx); ok; event, ok = d.seq.Next(ctx) {
		d.dispatch(event)
	}
	if err := d.seq.Err(); err != nil && !errors.Is(err, ErrSequenceClosed) {
		return err
	}
	return nil
}

func (d *Dispatcher) dispatch(event Event) {
	d.mu.Lock()
	chain := d.callbacks
	d.mu.Unlock()

	for _, cb := range chain {
		d.invoke(cb, event)
	}
}

func (d *Dispatcher) invoke(cb callback, event Event) {
	defer func() {
		if r := recover(); r != nil {
			d.seq.metrics.callbackPanics.Add(1)
			d.logger.Error("callback panicked",
				"handle", cb.handle.String(),
				"path", event.FullPath,
				"kind", event.Kind,
				"panic", fmt.Sprint(r),
			)
		}
	}()
	d.seq.metrics.dispatched.Add(1)
	cb.fn(event)
}
