package watcher

import (
	"container/heap"
	"sync"
	"time"
)

type deadlineItem struct {
	at    time.Time
	entry *entry
}

type deadlineHeap []deadlineItem

func (h deadlineHeap) Len() int           { return len(h) }
func (h deadlineHeap) Less(i, j int) bool { return h[i].at.Before(h[j].at) }
func (h deadlineHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }

func (h *deadlineHeap) Push(x any) { *h = append(*h, x.(deadlineItem)) }

func (h *deadlineHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = deadlineItem{}
	*h = old[:n-1]
	return item
}

// scheduler fires entries when their deadline passes. A single goroutine drains a
// min-heap of deadlines, so entries fire one at a time in deadline order.
type scheduler struct {
	mu      sync.Mutex
	items   deadlineHeap
	stopped bool
	wake    chan struct{}
	done    chan struct{}
	exited  chan struct{}
	fire    func(*entry, time.Time)
}

func newScheduler(fire func(*entry, time.Time)) *scheduler {
	s := &scheduler{
		wake:   make(chan struct{}, 1),
		done:   make(chan struct{}),
		exited: make(chan struct{}),
		fire:   fire,
	}
	go s.run()
	return s
}

// schedule queues e to fire at the given time. Returns false once stopped.
func (s *scheduler) schedule(e *entry, at time.Time) bool {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return false
	}
	heap.Push(&s.items, deadlineItem{at: at, entry: e})
	isNext := s.items[0].entry == e
	s.mu.Unlock()

	if isNext {
		select {
		case s.wake <- struct{}{}:
		default:
		}
	}
	return true
}

func (s *scheduler) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}

// stop drops everything still queued and waits for the loop to exit.
// Calling it from inside a fire callback would deadlock.
func (s *scheduler) stop() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		<-s.exited
		return
	}
	s.stopped = true
	s.items = nil
	s.mu.Unlock()

	close(s.done)
	<-s.exited
}

func (s *scheduler) run() {
	defer close(s.exited)

	timer := time.NewTimer(time.Hour)
	timer.Stop()
	defer timer.Stop()

	for {
		s.mu.Lock()
		if s.stopped {
			s.mu.Unlock()
			return
		}
		if len(s.items) == 0 {
			s.mu.Unlock()
			select {
			case <-s.wake:
			case <-s.done:
				return
			}
			continue
		}

		now := time.Now()
		next := s.items[0]
		if wait := next.at.Sub(now); wait > 0 {
			s.mu.Unlock()
			timer.Reset(wait)
			select {
			case <-timer.C:
			case <-s.wake:
				timer.Stop()
			case <-s.done:
				return
			}
			continue
		}

		heap.Pop(&s.items)
		s.mu.Unlock()
		s.fire(next.entry, now)
	}
}
