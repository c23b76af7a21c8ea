package main

import (
	"log/slog"

	"github.com/lexandro/changefeed-mcp/config"
	"github.com/lexandro/changefeed-mcp/ignore"
	"github.com/lexandro/changefeed-mcp/watcher"
)

// feed wires the ignore rules, the debounced sequence and its dispatcher for one directory.
type feed struct {
	cfg        config.Config
	matcher    *ignore.Matcher
	sequence   *watcher.Sequence
	dispatcher *watcher.Dispatcher
}

// feedFilter lets changes to the ignore files through even when the file pattern
// would reject them, so the rules can be reloaded.
type feedFilter struct {
	matcher *ignore.Matcher
}

func (f feedFilter) Match(absolutePath string) bool {
	return f.matcher.Match(absolutePath) || f.matcher.IsIgnoreFile(absolutePath)
}

func newFeed(cfg config.Config, logger *slog.Logger) (*feed, error) {
	matcher := ignore.NewMatcher(ignore.MatcherOptions{
		RootDir:        cfg.Directory,
		Pattern:        cfg.Pattern,
		IgnoreFile:     cfg.IgnoreFile,
		KeepJunk:       cfg.KeepJunk,
		CustomPatterns: cfg.ExcludePatterns,
	})

	sequence, err := watcher.NewSequence(cfg, watcher.NewFSNotifySource(logger), watcher.SequenceOptions{
		Logger: logger,
		Filter: feedFilter{matcher: matcher},
	})
	if err != nil {
		return nil, err
	}

	f := &feed{
		cfg:        cfg,
		matcher:    matcher,
		sequence:   sequence,
		dispatcher: watcher.NewDispatcher(sequence, logger),
	}
	f.dispatcher.Add(func(event watcher.Event) {
		if matcher.IsIgnoreFile(event.FullPath) {
			matcher.Reload()
			logger.Info("ignore rules reloaded", "file", event.Name)
		}
	})
	return f, nil
}

// add registers a consumer that only sees events passing the file pattern.
func (f *feed) add(fn func(watcher.Event)) watcher.Handle {
	return f.dispatcher.Add(func(event watcher.Event) {
		if f.matcher.Match(event.FullPath) || (event.IsRename() && f.matcher.Match(event.OldFullPath)) {
			fn(event)
		}
	})
}

func (f *feed) close() {
	f.sequence.Close()
}
