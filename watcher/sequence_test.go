package watcher

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lexandro/changefeed-mcp/config"
)

// fakeSource hands the subscriber's handler to the test instead of watching the disk.
type fakeSource struct {
	mu         sync.Mutex
	handler    func(Event)
	subscribed chan struct{}
	closed     chan struct{}
	err        error
}

func newFakeSource() *fakeSource {
	return &fakeSource{subscribed: make(chan struct{}), closed: make(chan struct{})}
}

func (f *fakeSource) Subscribe(_ string, _ Filter, handler func(Event)) (Subscription, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.mu.Lock()
	f.handler = handler
	f.mu.Unlock()
	close(f.subscribed)
	return fakeSubscription{closed: f.closed}, nil
}

func (f *fakeSource) emit(event Event) {
	f.mu.Lock()
	handler := f.handler
	f.mu.Unlock()
	handler(event)
}

func (f *fakeSource) isClosed() bool {
	select {
	case <-f.closed:
		return true
	default:
		return false
	}
}

type fakeSubscription struct {
	closed chan struct{}
}

func (s fakeSubscription) Close() error {
	close(s.closed)
	return nil
}

func testConfig(t *testing.T, dir string, window time.Duration) config.Config {
	t.Helper()
	cfg, err := config.Build(config.Config{Directory: dir, DelayWindow: window})
	require.NoError(t, err)
	return cfg
}

func nextWithin(t *testing.T, seq *Sequence, timeout time.Duration) (Event, bool) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return seq.Next(ctx)
}

func Test_NewSequence_RejectsInvalidConfig(t *testing.T) {
	_, err := NewSequence(config.Config{Pattern: "*", DelayWindow: time.Second}, newFakeSource(), SequenceOptions{})
	assert.ErrorIs(t, err, config.ErrInvalid)

	dir := t.TempDir()
	_, err = NewSequence(config.Config{Directory: dir, Pattern: "*"}, newFakeSource(), SequenceOptions{})
	assert.ErrorIs(t, err, config.ErrInvalid)
}

func Test_Sequence_SnapshotComesFirst(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.txt"), []byte("b"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.txt"), []byte("a"), 0644))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub"), 0755))

	source := newFakeSource()
	seq, err := NewSequence(testConfig(t, dir, 50*time.Millisecond), source, SequenceOptions{})
	require.NoError(t, err)
	defer seq.Close()
	assert.Equal(t, NotStarted, seq.State())

	first, ok := nextWithin(t, seq, time.Second)
	require.True(t, ok)
	assert.Equal(t, Live, seq.State())

	// Live notifications sent after seeding queue up behind the snapshot.
	source.emit(Event{Kind: Changed, FullPath: filepath.Join(dir, "a.txt"), Name: "a.txt"})

	second, ok := nextWithin(t, seq, time.Second)
	require.True(t, ok)
	third, ok := nextWithin(t, seq, time.Second)
	require.True(t, ok)

	assert.Equal(t, Event{Kind: All, FullPath: filepath.Join(dir, "a.txt"), Name: "a.txt"}, first)
	assert.Equal(t, Event{Kind: All, FullPath: filepath.Join(dir, "b.txt"), Name: "b.txt"}, second)
	assert.Equal(t, Changed, third.Kind)
	assert.Equal(t, uint64(2), seq.Metrics().Snapshot().Snapshot)
}

func Test_Sequence_SnapshotHonoursFilter(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.txt"), nil, 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "main.go"), nil, 0644))

	cfg := testConfig(t, dir, 50*time.Millisecond)
	cfg.Pattern = "*.go"
	seq, err := NewSequence(cfg, newFakeSource(), SequenceOptions{})
	require.NoError(t, err)
	defer seq.Close()

	event, ok := nextWithin(t, seq, time.Second)
	require.True(t, ok)
	assert.Equal(t, "main.go", event.Name)

	_, ok = nextWithin(t, seq, 100*time.Millisecond)
	assert.False(t, ok)
}

func Test_Sequence_LiveEventsAreDebounced(t *testing.T) {
	dir := t.TempDir()
	source := newFakeSource()
	seq, err := NewSequence(testConfig(t, dir, 100*time.Millisecond), source, SequenceOptions{})
	require.NoError(t, err)
	defer seq.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	events := make(chan Event, 4)
	go func() {
		for {
			event, ok := seq.Next(ctx)
			if !ok {
				close(events)
				return
			}
			events <- event
		}
	}()

	<-source.subscribed
	path := filepath.Join(dir, "x.log")
	for i := 0; i < 3; i++ {
		source.emit(Event{Kind: Changed, FullPath: path, Name: "x.log"})
		time.Sleep(10 * time.Millisecond)
	}

	select {
	case event := <-events:
		assert.Equal(t, Changed, event.Kind)
		assert.Equal(t, path, event.FullPath)
	case <-time.After(time.Second):
		t.Fatal("no event emitted")
	}
	select {
	case event, ok := <-events:
		if ok {
			t.Fatalf("unexpected second event %v", event)
		}
	case <-time.After(250 * time.Millisecond):
	}
}

func Test_Sequence_CancelBeforeStart(t *testing.T) {
	dir := t.TempDir()
	source := newFakeSource()
	seq, err := NewSequence(testConfig(t, dir, 50*time.Millisecond), source, SequenceOptions{})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, ok := seq.Next(ctx)
	assert.False(t, ok)
	assert.Equal(t, Terminated, seq.State())
	assert.NoError(t, seq.Err())

	// The source was never touched.
	select {
	case <-source.subscribed:
		t.Fatal("source subscribed after cancellation")
	default:
	}

	_, ok = seq.Next(context.Background())
	assert.False(t, ok, "terminated sequences stay terminated")
}

func Test_Sequence_CancelWhileBlocked(t *testing.T) {
	dir := t.TempDir()
	source := newFakeSource()
	seq, err := NewSequence(testConfig(t, dir, 50*time.Millisecond), source, SequenceOptions{})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	returned := make(chan bool, 1)
	go func() {
		_, ok := seq.Next(ctx)
		returned <- ok
	}()

	<-source.subscribed
	time.Sleep(30 * time.Millisecond)
	start := time.Now()
	cancel()

	select {
	case ok := <-returned:
		assert.False(t, ok)
		assert.Less(t, time.Since(start), 100*time.Millisecond)
	case <-time.After(time.Second):
		t.Fatal("Next did not return after cancellation")
	}

	assert.Equal(t, Terminated, seq.State())
	assert.True(t, source.isClosed(), "subscription must be released")
}

func Test_Sequence_CloseDropsPendingWindows(t *testing.T) {
	dir := t.TempDir()
	source := newFakeSource()
	metrics := &Metrics{}
	seq, err := NewSequence(testConfig(t, dir, time.Second), source, SequenceOptions{Metrics: metrics})
	require.NoError(t, err)

	go seq.Next(context.Background())
	<-source.subscribed
	source.emit(Event{Kind: Changed, FullPath: filepath.Join(dir, "x"), Name: "x"})

	require.NoError(t, seq.Close())
	require.NoError(t, seq.Close())

	assert.Equal(t, Terminated, seq.State())
	assert.ErrorIs(t, seq.Err(), ErrSequenceClosed)
	assert.Equal(t, uint64(1), metrics.Snapshot().Dropped)
	assert.Eventually(t, source.isClosed, time.Second, 5*time.Millisecond)
}

func Test_Sequence_CloseBeforeStart(t *testing.T) {
	seq, err := NewSequence(testConfig(t, t.TempDir(), 50*time.Millisecond), newFakeSource(), SequenceOptions{})
	require.NoError(t, err)

	require.NoError(t, seq.Close())
	_, ok := seq.Next(context.Background())
	assert.False(t, ok)
}

func Test_Sequence_SubscribeFailureTerminates(t *testing.T) {
	source := newFakeSource()
	source.err = errors.New("too many watches")
	seq, err := NewSequence(testConfig(t, t.TempDir(), 50*time.Millisecond), source, SequenceOptions{})
	require.NoError(t, err)

	_, ok := seq.Next(context.Background())
	assert.False(t, ok)
	assert.Equal(t, Terminated, seq.State())
	assert.EqualError(t, seq.Err(), "too many watches")
}

func Test_Sequence_All(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"a.txt", "b.txt", "c.txt"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), nil, 0644))
	}
	seq, err := NewSequence(testConfig(t, dir, 50*time.Millisecond), newFakeSource(), SequenceOptions{})
	require.NoError(t, err)

	var names []string
	for event := range seq.All(context.Background()) {
		names = append(names, event.Name)
		if len(names) == 2 {
			break
		}
	}

	assert.Equal(t, []string{"a.txt", "b.txt"}, names)
	assert.Equal(t, Terminated, seq.State())
}
