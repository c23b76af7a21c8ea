package watcher

import (
	"context"
	"errors"
	"io"
	"iter"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/lexandro/changefeed-mcp/config"
)

// State is the lifecycle stage of a Sequence.
type State int32

const (
	NotStarted State = iota
	Seeding
	Live
	Terminated
)

func (s State) String() string {
	switch s {
	case NotStarted:
		return "NotStarted"
	case Seeding:
		return "Seeding"
	case Live:
		return "Live"
	case Terminated:
		return "Terminated"
	default:
		return "Unknown"
	}
}

// ErrSequenceClosed is returned by Err when the sequence was closed explicitly.
var ErrSequenceClosed = errors.New("sequence closed")

// SequenceOptions configures a Sequence. Every field is optional.
type SequenceOptions struct {
	Logger  *slog.Logger
	Metrics *Metrics
	// Filter selects reported paths. Defaults to a base-name match against the
	// configured pattern.
	Filter Filter
}

// Sequence is a pull-based stream of debounced change events for one directory.
//
// The first call to Next subscribes to the source and lists the files already in
// the directory, one All event per file. Those come out first; after that Next
// blocks for live events. Once the context passed to Next is cancelled, Close is
// called or seeding fails, the sequence is terminated for good and all of its
// resources are released.
//
// Next is meant for a single consumer. Close and State may be called from any
// goroutine.
type Sequence struct {
	cfg      config.Config
	source   Source
	filter   Filter
	logger   *slog.Logger
	metrics  *Metrics
	queue    *Queue
	registry *Registry

	mu    sync.Mutex
	state State
	sub   Subscription
	err   error
}

// NewSequence validates cfg and prepares a sequence. Nothing is watched until the
// first Next.
func NewSequence(cfg config.Config, source Source, options SequenceOptions) (*Sequence, error) {
	if err := config.Validate(cfg); err != nil {
		return nil, err
	}
	if source == nil {
		return nil, errors.New("watcher: nil source")
	}

	logger := options.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	metrics := options.Metrics
	if metrics == nil {
		metrics = &Metrics{}
	}
	filter := options.Filter
	if filter == nil {
		filter = patternFilter(cfg.Pattern)
	}

	queue := NewQueue()
	return &Sequence{
		cfg:     cfg,
		source:  source,
		filter:  filter,
		logger:  logger,
		metrics: metrics,
		queue:   queue,
		registry: NewRegistry(Rule{}, cfg.DelayWindow, queue, RegistryOptions{
			Logger:  logger,
			Metrics: metrics,
		}),
	}, nil
}

// Next returns the next event. It returns false once the sequence is terminated;
// it never blocks when ctx is already done.
func (s *Sequence) Next(ctx context.Context) (Event, bool) {
	s.mu.Lock()
	switch s.state {
	case Terminated:
		s.mu.Unlock()
		return Event{}, false
	case NotStarted:
		if ctx.Err() != nil {
			s.mu.Unlock()
			s.terminate(ctx.Err())
			return Event{}, false
		}
		s.state = Seeding
		s.mu.Unlock()

		if err := s.seed(ctx); err != nil {
			s.terminate(err)
			return Event{}, false
		}
		if !s.transition(Seeding, Live) {
			// Closed while seeding.
			return Event{}, false
		}
	default:
		s.mu.Unlock()
	}

	event, ok := s.queue.Pop(ctx)
	if !ok {
		s.terminate(ctx.Err())
		return Event{}, false
	}
	return event, true
}

// seed subscribes to the source and pushes the snapshot. The two run concurrently;
// both must finish before the first event is handed out.
func (s *Sequence) seed(ctx context.Context) error {
	group, groupCtx := errgroup.WithContext(ctx)

	group.Go(func() error {
		sub, err := s.source.Subscribe(s.cfg.Directory, s.filter, s.registry.Enqueue)
		if err != nil {
			return err
		}
		s.mu.Lock()
		if s.state == Terminated {
			s.mu.Unlock()
			return sub.Close()
		}
		s.sub = sub
		s.mu.Unlock()
		return nil
	})

	group.Go(func() error {
		events, err := listSnapshot(s.cfg.Directory, s.filter)
		if err != nil {
			return err
		}
		if err := groupCtx.Err(); err != nil {
			return err
		}
		// Live events may already be buffered when listing is slower than the window.
		s.metrics.snapshot.Add(uint64(s.queue.PushFront(events)))
		s.logger.Debug("snapshot seeded", "directory", s.cfg.Directory, "files", len(events))
		return nil
	})

	if err := group.Wait(); err != nil {
		return err
	}
	// Seeding that finished only after cancellation still counts as cancelled.
	return ctx.Err()
}

func (s *Sequence) transition(from, to State) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != from {
		return false
	}
	s.state = to
	return true
}

// terminate releases the subscription, the registry and the queue. The first
// cause wins; a nil cause after a normal queue close is not an error.
func (s *Sequence) terminate(cause error) {
	s.mu.Lock()
	if s.state == Terminated {
		s.mu.Unlock()
		return
	}
	s.state = Terminated
	if s.err == nil && cause != nil && !errors.Is(cause, context.Canceled) && !errors.Is(cause, context.DeadlineExceeded) {
		s.err = cause
	}
	sub := s.sub
	s.sub = nil
	err := s.err
	s.mu.Unlock()

	if sub != nil {
		if err := sub.Close(); err != nil {
			s.logger.Warn("failed to close subscription", "directory", s.cfg.Directory, "error", err)
		}
	}
	s.registry.Dispose()
	s.queue.Close()

	if err != nil && !errors.Is(err, ErrSequenceClosed) {
		s.logger.Error("sequence terminated", "directory", s.cfg.Directory, "error", err)
	} else {
		s.logger.Debug("sequence terminated", "directory", s.cfg.Directory)
	}
}

// Close terminates the sequence. Safe to call before the first Next and more than once.
func (s *Sequence) Close() error {
	s.mu.Lock()
	if s.state != Terminated && s.err == nil {
		s.err = ErrSequenceClosed
	}
	s.mu.Unlock()
	s.terminate(nil)
	return nil
}

// Err returns the reason the sequence terminated: a seeding failure or
// ErrSequenceClosed. It is nil while running and after a cancellation.
func (s *Sequence) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// State returns the current lifecycle stage.
func (s *Sequence) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Metrics returns the counters shared by the sequence and its registry.
func (s *Sequence) Metrics() *Metrics {
	return s.metrics
}

// Pending returns the number of open debounce windows and buffered events.
func (s *Sequence) Pending() (windows, buffered int) {
	return s.registry.Pending(), s.queue.Len()
}

// All yields events until ctx is done or the loop breaks; either way the sequence
// is closed afterwards.
func (s *Sequence) All(ctx context.Context) iter.Seq[Event] {
	return func(yield func(Event) bool) {
		defer s.Close()
		for {
			event, ok := s.Next(ctx)
			if !ok || !yield(event) {
				return
			}
		}
	}
}
