package journal

import (
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/blevesearch/bleve/v2"
	"github.com/bmatcuk/doublestar/v4"
	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/lexandro/changefeed-mcp/watcher"
)

const defaultMaxResults = 50

// Entry is the latest known change of one path.
type Entry struct {
	Seq          uint64 // increases with every recorded event
	Kind         watcher.Kind
	RelativePath string // relative to the watched directory (forward slashes)
	FullPath     string
	Name         string
	OldPath      string // relative previous path, Renamed only
	At           time.Time
}

// Options configures a Journal.
type Options struct {
	RootDir string
	Size    int           // maximum number of paths remembered
	TTL     time.Duration // entries older than this are forgotten, 0 keeps them until evicted
	Logger  *slog.Logger
}

// Journal keeps the most recent change of each path in a bounded, expiring LRU and
// mirrors it into an in-memory Bleve index for search.
type Journal struct {
	mu      sync.RWMutex
	rootDir string
	entries *expirable.LRU[string, *Entry]
	index   bleve.Index
	seq     uint64
	logger  *slog.Logger
}

// New creates an empty journal.
func New(options Options) (*Journal, error) {
	if options.Size <= 0 {
		return nil, fmt.Errorf("journal size must be positive, got %d", options.Size)
	}
	bleveIndex, err := bleve.NewMemOnly(buildIndexMapping())
	if err != nil {
		return nil, fmt.Errorf("creating bleve index: %w", err)
	}

	j := &Journal{
		rootDir: options.RootDir,
		index:   bleveIndex,
		logger:  options.Logger,
	}
	if j.logger == nil {
		j.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	// Capacity and TTL evictions drop the search document too. The callback runs
	// under the LRU's own lock, so it must not call back into the LRU.
	j.entries = expirable.NewLRU[string, *Entry](options.Size, j.onEvict, options.TTL)
	return j, nil
}

func (j *Journal) onEvict(relativePath string, _ *Entry) {
	if err := j.index.Delete(relativePath); err != nil {
		j.logger.Debug("failed to drop evicted entry from index", "path", relativePath, "error", err)
	}
}

// Record stores event as the latest change of its path. It has the shape of a
// dispatcher callback.
func (j *Journal) Record(event watcher.Event) {
	j.mu.Lock()
	defer j.mu.Unlock()

	j.seq++
	entry := &Entry{
		Seq:          j.seq,
		Kind:         event.Kind,
		RelativePath: j.relative(event.FullPath),
		FullPath:     event.FullPath,
		Name:         event.Name,
		At:           time.Now(),
	}
	if event.IsRename() {
		entry.OldPath = j.relative(event.OldFullPath)
		// The old path no longer exists under that name.
		if entry.OldPath != entry.RelativePath {
			j.entries.Remove(entry.OldPath)
		}
	}

	j.entries.Add(entry.RelativePath, entry)
	if err := j.index.Index(entry.RelativePath, newDocument(entry)); err != nil {
		j.logger.Warn("failed to index change", "path", entry.RelativePath, "error", err)
	}
}

func (j *Journal) relative(fullPath string) string {
	if j.rootDir == "" {
		return filepath.ToSlash(fullPath)
	}
	relativePath, err := filepath.Rel(j.rootDir, fullPath)
	if err != nil {
		return filepath.ToSlash(fullPath)
	}
	return filepath.ToSlash(relativePath)
}

// Recent returns the latest entries, newest first. A non-empty pattern is a
// doublestar glob matched against the relative path.
func (j *Journal) Recent(pattern string, maxResults int) ([]Entry, error) {
	if maxResults <= 0 {
		maxResults = defaultMaxResults
	}
	pattern = strings.ReplaceAll(pattern, "\\", "/")
	if pattern != "" && !doublestar.ValidatePattern(pattern) {
		return nil, fmt.Errorf("invalid glob pattern: %s", pattern)
	}

	j.mu.RLock()
	all := j.entries.Values()
	j.mu.RUnlock()

	sort.Slice(all, func(a, b int) bool { return all[a].Seq > all[b].Seq })

	results := make([]Entry, 0, min(maxResults, len(all)))
	for _, entry := range all {
		if len(results) >= maxResults {
			break
		}
		if pattern != "" {
			if matched, err := doublestar.Match(pattern, entry.RelativePath); err != nil || !matched {
				continue
			}
		}
		results = append(results, *entry)
	}
	return results, nil
}

// Get returns the latest entry of a relative path.
func (j *Journal) Get(relativePath string) (Entry, bool) {
	entry, ok := j.entries.Peek(strings.ReplaceAll(relativePath, "\\", "/"))
	if !ok {
		return Entry{}, false
	}
	return *entry, true
}

// Count returns the number of remembered paths.
func (j *Journal) Count() int {
	return j.entries.Len()
}

// KindCounts returns how many remembered paths last saw each kind of change.
func (j *Journal) KindCounts() map[string]int {
	counts := make(map[string]int)
	for _, entry := range j.entries.Values() {
		counts[entry.Kind.String()]++
	}
	return counts
}

// LastSeq returns the sequence number of the most recent event.
func (j *Journal) LastSeq() uint64 {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.seq
}

// Close releases the search index.
func (j *Journal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.entries.Purge()
	return j.index.Close()
}
