package journal

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lexandro/changefeed-mcp/watcher"
)

const testRoot = "/watched"

func newTestJournal(t *testing.T, size int) *Journal {
	t.Helper()
	j, err := New(Options{RootDir: testRoot, Size: size})
	require.NoError(t, err)
	t.Cleanup(func() { j.Close() })
	return j
}

func change(kind watcher.Kind, name string) watcher.Event {
	return watcher.Event{Kind: kind, FullPath: filepath.Join(testRoot, name), Name: name}
}

func relativePaths(entries []Entry) []string {
	paths := make([]string, 0, len(entries))
	for _, entry := range entries {
		paths = append(paths, entry.RelativePath)
	}
	return paths
}

func Test_New_RejectsNonPositiveSize(t *testing.T) {
	_, err := New(Options{Size: 0})
	assert.Error(t, err)
}

func Test_Journal_RecentNewestFirst(t *testing.T) {
	j := newTestJournal(t, 16)
	j.Record(change(watcher.Created, "a.txt"))
	j.Record(change(watcher.Created, "b.txt"))
	j.Record(change(watcher.Changed, "c.txt"))

	entries, err := j.Recent("", 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"c.txt", "b.txt", "a.txt"}, relativePaths(entries))
	assert.Equal(t, uint64(3), j.LastSeq())
}

func Test_Journal_KeepsLatestChangePerPath(t *testing.T) {
	j := newTestJournal(t, 16)
	j.Record(change(watcher.Created, "a.txt"))
	j.Record(change(watcher.Created, "b.txt"))
	j.Record(change(watcher.Changed, "a.txt"))
	j.Record(change(watcher.Deleted, "b.txt"))

	assert.Equal(t, 2, j.Count())

	entries, err := j.Recent("", 10)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "b.txt", entries[0].RelativePath)
	assert.Equal(t, watcher.Deleted, entries[0].Kind)
	assert.Equal(t, "a.txt", entries[1].RelativePath)
	assert.Equal(t, watcher.Changed, entries[1].Kind)

	assert.Equal(t, map[string]int{"Changed": 1, "Deleted": 1}, j.KindCounts())
}

func Test_Journal_RecentGlobAndLimit(t *testing.T) {
	j := newTestJournal(t, 16)
	j.Record(change(watcher.Created, "a.txt"))
	j.Record(change(watcher.Created, "b.md"))
	j.Record(change(watcher.Created, "c.txt"))

	entries, err := j.Recent("*.txt", 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"c.txt", "a.txt"}, relativePaths(entries))

	entries, err = j.Recent("", 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"c.txt"}, relativePaths(entries))

	_, err = j.Recent("[", 10)
	assert.Error(t, err)
}

func Test_Journal_RenameReplacesOldPath(t *testing.T) {
	j := newTestJournal(t, 16)
	j.Record(change(watcher.Created, "draft.txt"))
	j.Record(watcher.Event{
		Kind:        watcher.Renamed,
		FullPath:    filepath.Join(testRoot, "final.txt"),
		Name:        "final.txt",
		OldFullPath: filepath.Join(testRoot, "draft.txt"),
		OldName:     "draft.txt",
	})

	_, ok := j.Get("draft.txt")
	assert.False(t, ok)

	entry, ok := j.Get("final.txt")
	require.True(t, ok)
	assert.Equal(t, watcher.Renamed, entry.Kind)
	assert.Equal(t, "draft.txt", entry.OldPath)
	assert.Equal(t, 1, j.Count())
}

func Test_Journal_EvictsOldestBeyondSize(t *testing.T) {
	j := newTestJournal(t, 2)
	j.Record(change(watcher.Created, "first.txt"))
	j.Record(change(watcher.Created, "second.txt"))
	j.Record(change(watcher.Created, "third.txt"))

	assert.Equal(t, 2, j.Count())
	_, ok := j.Get("first.txt")
	assert.False(t, ok)

	results, total, err := j.Search(SearchOptions{Query: "first"})
	require.NoError(t, err)
	assert.Empty(t, results)
	assert.Equal(t, 0, total)
}

func Test_Journal_TTLExpiry(t *testing.T) {
	j, err := New(Options{RootDir: testRoot, Size: 16, TTL: 50 * time.Millisecond})
	require.NoError(t, err)
	defer j.Close()

	j.Record(change(watcher.Created, "a.txt"))
	assert.Eventually(t, func() bool {
		_, ok := j.Get("a.txt")
		return !ok
	}, time.Second, 10*time.Millisecond)
}

func Test_Journal_Search(t *testing.T) {
	j := newTestJournal(t, 16)
	j.Record(change(watcher.Created, "release-notes.md"))
	j.Record(change(watcher.Created, "meeting-notes.txt"))
	j.Record(change(watcher.Created, "budget.csv"))
	j.Record(change(watcher.Deleted, "meeting-notes.txt"))

	t.Run("match", func(t *testing.T) {
		results, total, err := j.Search(SearchOptions{Query: "notes"})
		require.NoError(t, err)
		assert.Equal(t, 2, total)
		assert.Equal(t, []string{"meeting-notes.txt", "release-notes.md"}, relativePaths(results))
	})

	t.Run("phrase", func(t *testing.T) {
		results, _, err := j.Search(SearchOptions{Query: `"release notes"`})
		require.NoError(t, err)
		assert.Equal(t, []string{"release-notes.md"}, relativePaths(results))
	})

	t.Run("regex", func(t *testing.T) {
		results, _, err := j.Search(SearchOptions{Query: "/budg.*/"})
		require.NoError(t, err)
		assert.Equal(t, []string{"budget.csv"}, relativePaths(results))
	})

	t.Run("kind", func(t *testing.T) {
		results, _, err := j.Search(SearchOptions{Query: "notes", Kind: "Deleted"})
		require.NoError(t, err)
		assert.Equal(t, []string{"meeting-notes.txt"}, relativePaths(results))
	})

	t.Run("limit", func(t *testing.T) {
		results, total, err := j.Search(SearchOptions{Query: "notes", MaxResults: 1})
		require.NoError(t, err)
		assert.Equal(t, 2, total)
		assert.Len(t, results, 1)
	})

	t.Run("empty query", func(t *testing.T) {
		_, _, err := j.Search(SearchOptions{Query: "  "})
		assert.Error(t, err)
	})
}
