package watcher

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type eventLog struct {
	mu     sync.Mutex
	events []Event
}

func (l *eventLog) add(event Event) {
	l.mu.Lock()
	l.events = append(l.events, event)
	l.mu.Unlock()
}

func (l *eventLog) snapshot() []Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Event(nil), l.events...)
}

func (l *eventLog) has(kind Kind, name string) bool {
	for _, event := range l.snapshot() {
		if event.Kind == kind && event.Name == name {
			return true
		}
	}
	return false
}

// newTestSubscription builds a subscription without a live fsnotify watcher so
// handleEvent can be driven directly.
func newTestSubscription(filter Filter, handler func(Event)) *fsnotifySubscription {
	return &fsnotifySubscription{
		filter:  filter,
		handler: handler,
		pairing: 30 * time.Millisecond,
		done:    make(chan struct{}),
	}
}

func Test_FSNotifySubscription_MapsOperations(t *testing.T) {
	dir := t.TempDir()
	var log eventLog
	sub := newTestSubscription(nil, log.add)

	sub.handleEvent(fsnotify.Event{Name: filepath.Join(dir, "a.txt"), Op: fsnotify.Create})
	sub.handleEvent(fsnotify.Event{Name: filepath.Join(dir, "a.txt"), Op: fsnotify.Write})
	sub.handleEvent(fsnotify.Event{Name: filepath.Join(dir, "a.txt"), Op: fsnotify.Chmod})
	sub.handleEvent(fsnotify.Event{Name: filepath.Join(dir, "a.txt"), Op: fsnotify.Remove})

	events := log.snapshot()
	require.Len(t, events, 3)
	assert.Equal(t, Created, events[0].Kind)
	assert.Equal(t, Changed, events[1].Kind)
	assert.Equal(t, Deleted, events[2].Kind)
	assert.Equal(t, "a.txt", events[0].Name)
	assert.Equal(t, filepath.Join(dir, "a.txt"), events[0].FullPath)
}

func Test_FSNotifySubscription_PairsRename(t *testing.T) {
	dir := t.TempDir()
	var log eventLog
	sub := newTestSubscription(nil, log.add)

	sub.handleEvent(fsnotify.Event{Name: filepath.Join(dir, "old.txt"), Op: fsnotify.Rename})
	sub.handleEvent(fsnotify.Event{Name: filepath.Join(dir, "new.txt"), Op: fsnotify.Create})

	events := log.snapshot()
	require.Len(t, events, 1)
	assert.Equal(t, Event{
		Kind:        Renamed,
		FullPath:    filepath.Join(dir, "new.txt"),
		Name:        "new.txt",
		OldFullPath: filepath.Join(dir, "old.txt"),
		OldName:     "old.txt",
	}, events[0])

	// The pairing timer was stopped, so nothing else shows up later.
	time.Sleep(60 * time.Millisecond)
	assert.Len(t, log.snapshot(), 1)
}

func Test_FSNotifySubscription_UnpairedRenameBecomesDelete(t *testing.T) {
	dir := t.TempDir()
	var log eventLog
	sub := newTestSubscription(nil, log.add)

	sub.handleEvent(fsnotify.Event{Name: filepath.Join(dir, "gone.txt"), Op: fsnotify.Rename})
	assert.Empty(t, log.snapshot())

	assert.Eventually(t, func() bool { return log.has(Deleted, "gone.txt") }, time.Second, 5*time.Millisecond)

	// A create after the pairing window is a plain create.
	sub.handleEvent(fsnotify.Event{Name: filepath.Join(dir, "other.txt"), Op: fsnotify.Create})
	assert.True(t, log.has(Created, "other.txt"))
}

func Test_FSNotifySubscription_RenameFlushedByOtherEvent(t *testing.T) {
	dir := t.TempDir()
	var log eventLog
	sub := newTestSubscription(nil, log.add)

	sub.handleEvent(fsnotify.Event{Name: filepath.Join(dir, "gone.txt"), Op: fsnotify.Rename})
	sub.handleEvent(fsnotify.Event{Name: filepath.Join(dir, "b.txt"), Op: fsnotify.Write})

	events := log.snapshot()
	require.Len(t, events, 2)
	assert.Equal(t, Event{Kind: Deleted, FullPath: filepath.Join(dir, "gone.txt"), Name: "gone.txt"}, events[0])
	assert.Equal(t, Changed, events[1].Kind)
}

func Test_FSNotifySubscription_RenameNeedsSameParent(t *testing.T) {
	dir := t.TempDir()
	otherDir := t.TempDir()
	var log eventLog
	sub := newTestSubscription(nil, log.add)

	sub.handleEvent(fsnotify.Event{Name: filepath.Join(dir, "gone.txt"), Op: fsnotify.Rename})
	sub.handleEvent(fsnotify.Event{Name: filepath.Join(otherDir, "new.txt"), Op: fsnotify.Create})

	events := log.snapshot()
	require.Len(t, events, 2)
	assert.Equal(t, Event{Kind: Deleted, FullPath: filepath.Join(dir, "gone.txt"), Name: "gone.txt"}, events[0])
	assert.Equal(t, Event{Kind: Created, FullPath: filepath.Join(otherDir, "new.txt"), Name: "new.txt"}, events[1])

	// The held rename was consumed; its timer must not report it a second time.
	time.Sleep(60 * time.Millisecond)
	assert.Len(t, log.snapshot(), 2)
}

func Test_FSNotifySubscription_SkipsDirectoriesAndFilteredPaths(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub"), 0755))
	var log eventLog
	sub := newTestSubscription(patternFilter("*.txt"), log.add)

	sub.handleEvent(fsnotify.Event{Name: filepath.Join(dir, "sub"), Op: fsnotify.Create})
	sub.handleEvent(fsnotify.Event{Name: filepath.Join(dir, "main.go"), Op: fsnotify.Write})
	sub.handleEvent(fsnotify.Event{Name: filepath.Join(dir, "a.txt"), Op: fsnotify.Write})

	events := log.snapshot()
	require.Len(t, events, 1)
	assert.Equal(t, "a.txt", events[0].Name)
}

func Test_FSNotifySource_WatchesDirectory(t *testing.T) {
	dir := t.TempDir()
	var log eventLog

	source := NewFSNotifySource(nil)
	sub, err := source.Subscribe(dir, nil, log.add)
	require.NoError(t, err)
	defer sub.Close()

	require.NoError(t, os.WriteFile(filepath.Join(dir, "hello.txt"), []byte("hi"), 0644))

	assert.Eventually(t, func() bool { return log.has(Created, "hello.txt") }, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, sub.Close())
	require.NoError(t, sub.Close())
}

func Test_FSNotifySource_MissingDirectory(t *testing.T) {
	source := NewFSNotifySource(nil)
	_, err := source.Subscribe(filepath.Join(t.TempDir(), "missing"), nil, func(Event) {})
	assert.Error(t, err)
}
