package watcher

import (
	"sync/atomic"
	"time"
)

// Metrics collects watcher counters. The zero value is ready to use and safe for
// concurrent updates.
type Metrics struct {
	received       atomic.Uint64
	coalesced      atomic.Uint64
	emitted        atomic.Uint64
	snapshot       atomic.Uint64
	dropped        atomic.Uint64
	dispatched     atomic.Uint64
	callbackPanics atomic.Uint64
	lastEmitUnix   atomic.Int64
}

// MetricsSnapshot is a point-in-time copy of Metrics.
type MetricsSnapshot struct {
	Received       uint64 // raw notifications handed to the registry
	Coalesced      uint64 // notifications absorbed into an open window
	Emitted        uint64 // events flushed by closed windows
	Snapshot       uint64 // synthetic events for pre-existing files
	Dropped        uint64 // pending events discarded on shutdown
	Dispatched     uint64 // callback invocations
	CallbackPanics uint64
	LastEmit       time.Time
}

func (m *Metrics) recordEmit() {
	m.emitted.Add(1)
	m.lastEmitUnix.Store(time.Now().UnixNano())
}

// Snapshot returns the current counter values.
func (m *Metrics) Snapshot() MetricsSnapshot {
	if m == nil {
		return MetricsSnapshot{}
	}
	snapshot := MetricsSnapshot{
		Received:       m.received.Load(),
		Coalesced:      m.coalesced.Load(),
		Emitted:        m.emitted.Load(),
		Snapshot:       m.snapshot.Load(),
		Dropped:        m.dropped.Load(),
		Dispatched:     m.dispatched.Load(),
		CallbackPanics: m.callbackPanics.Load(),
	}
	if last := m.lastEmitUnix.Load(); last != 0 {
		snapshot.LastEmit = time.Unix(0, last)
	}
	return snapshot
}
