package watcher

import (
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// entry is one open debounce window. Its fields are guarded by the owning bucket's mutex.
type entry struct {
	event    Event // first event of the window; later duplicates never replace it
	deadline time.Time
	removed  bool
	bucket   *bucket
}

// bucket holds the open windows that share a Rule key. A dead bucket has been
// unlinked from the registry map and must not receive new entries.
type bucket struct {
	mu      sync.Mutex
	key     string
	entries []*entry
	dead    bool
}

// RegistryOptions configures a Registry.
type RegistryOptions struct {
	Logger  *slog.Logger
	Metrics *Metrics
}

// Registry coalesces duplicate events. The first event of a burst opens a window;
// every duplicate pushes the window's deadline out by the full delay, and once the
// window stays quiet for that long the first event is pushed to the output queue.
//
// Locking is per key: unrelated paths never contend with each other.
type Registry struct {
	rule     Rule
	window   time.Duration
	output   *Queue
	buckets  sync.Map // key -> *bucket
	sched    *scheduler
	disposed atomic.Bool
	logger   *slog.Logger
	metrics  *Metrics
}

// NewRegistry creates a registry that flushes into output after window of quiet.
func NewRegistry(rule Rule, window time.Duration, output *Queue, options RegistryOptions) *Registry {
	registry := &Registry{
		rule:    rule,
		window:  window,
		output:  output,
		logger:  options.Logger,
		metrics: options.Metrics,
	}
	if registry.logger == nil {
		registry.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if registry.metrics == nil {
		registry.metrics = &Metrics{}
	}
	registry.sched = newScheduler(registry.fire)
	return registry
}

// Enqueue records a raw notification. Safe for concurrent use; never blocks on
// other keys.
func (r *Registry) Enqueue(event Event) {
	if r.disposed.Load() {
		return
	}
	r.metrics.received.Add(1)
	key := r.rule.Key(&event)

	for {
		value, _ := r.buckets.LoadOrStore(key, &bucket{key: key})
		b := value.(*bucket)

		b.mu.Lock()
		if b.dead {
			// Lost a race with the last entry of this bucket firing; use a fresh bucket.
			b.mu.Unlock()
			continue
		}
		if r.disposed.Load() {
			b.mu.Unlock()
			return
		}

		now := time.Now()
		for _, existing := range b.entries {
			if r.rule.AreDuplicates(&existing.event, &event) {
				existing.deadline = now.Add(r.window)
				b.mu.Unlock()
				r.metrics.coalesced.Add(1)
				r.logger.Debug("debounce window restarted", "path", event.FullPath, "kind", event.Kind)
				return
			}
		}

		deadline := now.Add(r.window)
		e := &entry{event: event, deadline: deadline, bucket: b}
		b.entries = append(b.entries, e)
		b.mu.Unlock()

		r.sched.schedule(e, deadline)
		r.logger.Debug("debounce window opened", "path", event.FullPath, "kind", event.Kind)
		return
	}
}

// fire runs on the scheduler goroutine when an entry's scheduled deadline passes.
func (r *Registry) fire(e *entry, now time.Time) {
	b := e.bucket
	b.mu.Lock()
	if e.removed {
		b.mu.Unlock()
		return
	}
	if now.Before(e.deadline) {
		// A duplicate restarted the window after this deadline was scheduled.
		deadline := e.deadline
		b.mu.Unlock()
		r.sched.schedule(e, deadline)
		return
	}

	e.removed = true
	b.remove(e)
	if len(b.entries) == 0 {
		b.dead = true
		r.buckets.CompareAndDelete(b.key, b)
	}
	b.mu.Unlock()

	if r.output.Push(e.event) {
		r.metrics.recordEmit()
		r.logger.Debug("event emitted", "path", e.event.FullPath, "kind", e.event.Kind)
	}
}

func (b *bucket) remove(target *entry) {
	for i, e := range b.entries {
		if e == target {
			b.entries = append(b.entries[:i], b.entries[i+1:]...)
			return
		}
	}
}

// Pending returns the number of open windows.
func (r *Registry) Pending() int {
	count := 0
	r.buckets.Range(func(_, value any) bool {
		b := value.(*bucket)
		b.mu.Lock()
		count += len(b.entries)
		b.mu.Unlock()
		return true
	})
	return count
}

// Dispose stops all timers and drops every open window without emitting it.
// Enqueue calls after Dispose are ignored. Safe to call more than once.
func (r *Registry) Dispose() {
	if r.disposed.Swap(true) {
		return
	}
	r.sched.stop()

	dropped := 0
	r.buckets.Range(func(key, value any) bool {
		b := value.(*bucket)
		b.mu.Lock()
		for _, e := range b.entries {
			e.removed = true
			dropped++
		}
		b.entries = nil
		b.dead = true
		r.buckets.CompareAndDelete(key, b)
		b.mu.Unlock()
		return true
	})

	r.metrics.dropped.Add(uint64(dropped))
	if dropped > 0 {
		r.logger.Debug("dropped pending events", "count", dropped)
	}
}
