package watcher

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/bmatcuk/doublestar/v4"
)

// Filter selects which paths are reported.
type Filter interface {
	Match(absolutePath string) bool
}

// patternFilter matches the base name against a glob such as "*.txt".
type patternFilter string

func (p patternFilter) Match(absolutePath string) bool {
	matched, err := doublestar.Match(string(p), filepath.Base(absolutePath))
	return err == nil && matched
}

// Source delivers raw change notifications for one directory. Notifications may be
// duplicated, dropped under load or reordered across paths, and the handler may be
// called from several goroutines at once.
type Source interface {
	Subscribe(directory string, filter Filter, handler func(Event)) (Subscription, error)
}

// Subscription stops delivery when closed.
type Subscription interface {
	Close() error
}

// listSnapshot returns one All event per regular file currently in directory that
// passes filter, ordered by name. Subdirectories are not descended into.
func listSnapshot(directory string, filter Filter) ([]Event, error) {
	entries, err := os.ReadDir(directory)
	if err != nil {
		return nil, fmt.Errorf("listing %s: %w", directory, err)
	}

	events := make([]Event, 0, len(entries))
	for _, dirEntry := range entries {
		fullPath := filepath.Join(directory, dirEntry.Name())
		if !isFile(dirEntry, fullPath) {
			continue
		}
		if filter != nil && !filter.Match(fullPath) {
			continue
		}
		events = append(events, Event{Kind: All, FullPath: fullPath, Name: dirEntry.Name()})
	}
	return events, nil
}

func isFile(dirEntry os.DirEntry, fullPath string) bool {
	if dirEntry.Type()&os.ModeSymlink != 0 {
		info, err := os.Stat(fullPath)
		return err == nil && !info.IsDir()
	}
	return !dirEntry.IsDir()
}
