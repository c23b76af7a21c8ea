package watcher

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultRenamePairing is how long a rename-away waits for the matching create.
const DefaultRenamePairing = 50 * time.Millisecond

// FSNotifySource watches a single directory (not recursively) with fsnotify.
//
// fsnotify reports a rename as Rename on the old name followed by Create on the new
// one. The source pairs them into one Renamed event when the Create arrives within
// RenamePairing and lands in the same parent directory; a rename that is never
// followed by such a Create (the file moved out of the directory) is reported as
// Deleted.
//
// The pairing is a guess based on timing only. A file moved out of the directory
// followed within RenamePairing by an unrelated Create is reported as one Renamed
// event.
type FSNotifySource struct {
	RenamePairing time.Duration
	Logger        *slog.Logger
}

// NewFSNotifySource creates a source with default settings.
func NewFSNotifySource(logger *slog.Logger) *FSNotifySource {
	return &FSNotifySource{RenamePairing: DefaultRenamePairing, Logger: logger}
}

type fsnotifySubscription struct {
	watcher   *fsnotify.Watcher
	directory string
	filter    Filter
	handler   func(Event)
	pairing   time.Duration
	logger    *slog.Logger

	mu            sync.Mutex
	pendingRename *pendingRename
	closed        bool

	done      chan struct{}
	closeOnce sync.Once
	closeErr  error
	wg        sync.WaitGroup
}

type pendingRename struct {
	fullPath string
	timer    *time.Timer
}

// Subscribe starts watching directory. The handler runs on the fsnotify delivery
// goroutine or on a rename-pairing timer.
func (s *FSNotifySource) Subscribe(directory string, filter Filter, handler func(Event)) (Subscription, error) {
	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fsWatcher.Add(directory); err != nil {
		fsWatcher.Close()
		return nil, err
	}

	logger := s.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	pairing := s.RenamePairing
	if pairing <= 0 {
		pairing = DefaultRenamePairing
	}

	sub := &fsnotifySubscription{
		watcher:   fsWatcher,
		directory: filepath.Clean(directory),
		filter:    filter,
		handler:   handler,
		pairing:   pairing,
		logger:    logger,
		done:      make(chan struct{}),
	}
	sub.wg.Add(1)
	go sub.run()
	return sub, nil
}

func (sub *fsnotifySubscription) run() {
	defer sub.wg.Done()
	for {
		select {
		case <-sub.done:
			return
		case event, ok := <-sub.watcher.Events:
			if !ok {
				return
			}
			sub.handleEvent(event)
		case err, ok := <-sub.watcher.Errors:
			if !ok {
				return
			}
			// Overflow and similar errors mean notifications were lost; nothing to replay.
			sub.logger.Warn("watcher error", "directory", sub.directory, "error", err)
		}
	}
}

// handleEvent converts a single fsnotify event into a change event.
func (sub *fsnotifySubscription) handleEvent(event fsnotify.Event) {
	path := filepath.Clean(event.Name)

	switch {
	case event.Has(fsnotify.Create):
		if info, err := os.Stat(path); err == nil && info.IsDir() {
			return
		}
		if previous, ok := sub.takePendingRename(path); ok {
			sub.deliver(Event{
				Kind:        Renamed,
				FullPath:    path,
				Name:        filepath.Base(path),
				OldFullPath: previous,
				OldName:     filepath.Base(previous),
			})
			return
		}
		sub.deliver(Event{Kind: Created, FullPath: path, Name: filepath.Base(path)})

	case event.Has(fsnotify.Write):
		sub.flushPendingRename()
		sub.deliver(Event{Kind: Changed, FullPath: path, Name: filepath.Base(path)})

	case event.Has(fsnotify.Remove):
		sub.flushPendingRename()
		sub.deliver(Event{Kind: Deleted, FullPath: path, Name: filepath.Base(path)})

	case event.Has(fsnotify.Rename):
		sub.flushPendingRename()
		sub.holdRename(path)

	default:
		// Chmod carries no content change.
	}
}

// deliver filters and hands the event to the subscriber. A rename is reported when
// either side of it matches the filter.
func (sub *fsnotifySubscription) deliver(event Event) {
	if sub.filter != nil && !sub.filter.Match(event.FullPath) {
		if !event.IsRename() || !sub.filter.Match(event.OldFullPath) {
			return
		}
	}
	sub.mu.Lock()
	closed := sub.closed
	sub.mu.Unlock()
	if closed {
		return
	}
	sub.handler(event)
}

func (sub *fsnotifySubscription) holdRename(path string) {
	sub.mu.Lock()
	defer sub.mu.Unlock()
	if sub.closed {
		return
	}
	pending := &pendingRename{fullPath: path}
	pending.timer = time.AfterFunc(sub.pairing, func() {
		sub.expireRename(pending)
	})
	sub.pendingRename = pending
}

// takePendingRename returns the held rename that the Create of path completes. A
// held rename from another directory cannot pair and is reported as deleted.
func (sub *fsnotifySubscription) takePendingRename(path string) (string, bool) {
	sub.mu.Lock()
	pending := sub.pendingRename
	if pending == nil {
		sub.mu.Unlock()
		return "", false
	}
	sub.pendingRename = nil
	stopped := pending.timer.Stop()
	sub.mu.Unlock()

	if !stopped {
		// The expiry already reported it as deleted.
		return "", false
	}
	if filepath.Dir(pending.fullPath) != filepath.Dir(path) {
		sub.deliverMovedAway(pending.fullPath)
		return "", false
	}
	return pending.fullPath, true
}

// flushPendingRename reports an unpaired rename as a deletion right away.
func (sub *fsnotifySubscription) flushPendingRename() {
	sub.mu.Lock()
	pending := sub.pendingRename
	sub.pendingRename = nil
	sub.mu.Unlock()

	if pending != nil && pending.timer.Stop() {
		sub.deliverMovedAway(pending.fullPath)
	}
}

func (sub *fsnotifySubscription) expireRename(pending *pendingRename) {
	sub.mu.Lock()
	if sub.pendingRename == pending {
		sub.pendingRename = nil
	}
	sub.mu.Unlock()
	sub.deliverMovedAway(pending.fullPath)
}

func (sub *fsnotifySubscription) deliverMovedAway(path string) {
	sub.deliver(Event{Kind: Deleted, FullPath: path, Name: filepath.Base(path)})
}

// Close stops the watcher and waits for the delivery goroutine to exit. A pending
// rename is dropped.
func (sub *fsnotifySubscription) Close() error {
	sub.closeOnce.Do(func() {
		sub.mu.Lock()
		sub.closed = true
		if sub.pendingRename != nil {
			sub.pendingRename.timer.Stop()
			sub.pendingRename = nil
		}
		sub.mu.Unlock()

		close(sub.done)
		sub.closeErr = sub.watcher.Close()
		sub.wg.Wait()
	})
	return sub.closeErr
}
