package watcher

import (
	"context"
	"math"
	"sync"

	"golang.org/x/sync/semaphore"
)

// Queue is an unbounded FIFO of events with a blocking, cancellable Pop.
// Availability is tracked by a weighted semaphore that starts fully acquired:
// every Push releases one unit and every Pop acquires one.
type Queue struct {
	mu        sync.Mutex
	events    []Event
	closed    bool
	available *semaphore.Weighted
	closing   context.Context
	closeFn   context.CancelFunc
}

// NewQueue creates an empty queue.
func NewQueue() *Queue {
	available := semaphore.NewWeighted(math.MaxInt64)
	// Cannot block: nothing else holds the semaphore yet.
	_ = available.Acquire(context.Background(), math.MaxInt64)

	closing, closeFn := context.WithCancel(context.Background())
	return &Queue{
		available: available,
		closing:   closing,
		closeFn:   closeFn,
	}
}

// Push appends an event and wakes one waiting consumer. Pushes after Close are dropped.
func (q *Queue) Push(event Event) bool {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return false
	}
	q.events = append(q.events, event)
	q.mu.Unlock()

	q.available.Release(1)
	return true
}

// PushFront puts events, in order, ahead of everything already buffered.
// Returns the number of events added; none after Close.
func (q *Queue) PushFront(events []Event) int {
	if len(events) == 0 {
		return 0
	}
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return 0
	}
	q.events = append(append(make([]Event, 0, len(events)+len(q.events)), events...), q.events...)
	q.mu.Unlock()

	q.available.Release(int64(len(events)))
	return len(events)
}

// Pop blocks until an event is available, ctx is done or the queue is closed.
// It never blocks when ctx is already done.
func (q *Queue) Pop(ctx context.Context) (Event, bool) {
	if ctx.Err() != nil || q.isClosed() {
		return Event{}, false
	}

	waitCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(q.closing, cancel)
	defer stop()

	if err := q.available.Acquire(waitCtx, 1); err != nil {
		return Event{}, false
	}
	// Acquire may win a race against cancellation; honour the cancellation anyway
	// and put the unit back so the event stays available.
	if waitCtx.Err() != nil {
		q.available.Release(1)
		return Event{}, false
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.events) == 0 {
		return Event{}, false
	}
	event := q.events[0]
	q.events[0] = Event{}
	q.events = q.events[1:]
	return event, true
}

// Len returns the number of buffered events.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.events)
}

// Close drops buffered events and releases blocked consumers. Safe to call twice.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	q.events = nil
	q.closeFn()
}

func (q *Queue) isClosed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}
