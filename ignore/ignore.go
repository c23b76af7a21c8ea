package ignore

import (
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/bmatcuk/doublestar/v4"
	gitignore "github.com/denormal/go-gitignore"
)

// Matcher decides which paths of the watched directory are reported.
// A path is reported when its base name matches the file pattern and nothing ignores it:
// junk patterns, .gitignore, the configured ignore file and custom exclude patterns.
// Thread-safe: Reload() takes the write lock, Match()/ShouldIgnore() take the read lock.
type Matcher struct {
	mu             sync.RWMutex
	rootDir        string
	pattern        string
	ignoreFile     string
	keepJunk       bool
	gitIgnore      gitignore.GitIgnore
	fileIgnore     gitignore.GitIgnore
	customPatterns []string
}

// MatcherOptions configures the matcher.
type MatcherOptions struct {
	RootDir        string
	Pattern        string // glob against the base name, "*" when empty
	IgnoreFile     string // gitignore-style file name inside RootDir, optional
	KeepJunk       bool   // report JunkPatterns too
	CustomPatterns []string
}

// NewMatcher creates a matcher and loads the ignore files found in the root directory.
func NewMatcher(options MatcherOptions) *Matcher {
	matcher := &Matcher{
		rootDir:        options.RootDir,
		pattern:        options.Pattern,
		ignoreFile:     options.IgnoreFile,
		keepJunk:       options.KeepJunk,
		customPatterns: options.CustomPatterns,
	}
	if matcher.pattern == "" {
		matcher.pattern = "*"
	}

	matcher.gitIgnore, matcher.fileIgnore = matcher.loadIgnoreFiles()
	return matcher
}

// Match reports whether a change to absolutePath should be reported.
func (m *Matcher) Match(absolutePath string) bool {
	baseName := filepath.Base(absolutePath)
	matched, err := doublestar.Match(m.pattern, baseName)
	if err != nil || !matched {
		return false
	}
	return !m.ShouldIgnore(absolutePath)
}

// ShouldIgnore returns true if absolutePath is excluded regardless of the file pattern.
func (m *Matcher) ShouldIgnore(absolutePath string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	relativePath, err := filepath.Rel(m.rootDir, absolutePath)
	if err != nil {
		relativePath = absolutePath
	}
	relativePath = filepath.ToSlash(relativePath)
	baseName := filepath.Base(absolutePath)

	if !m.keepJunk && isJunk(baseName) {
		return true
	}

	// Relative() does not touch the disk, which matters for paths that were just deleted.
	isDir := false
	if info, err := os.Stat(absolutePath); err == nil {
		isDir = info.IsDir()
	}
	for _, ignoreRules := range []gitignore.GitIgnore{m.gitIgnore, m.fileIgnore} {
		if ignoreRules == nil {
			continue
		}
		if match := ignoreRules.Relative(relativePath, isDir); match != nil && match.Ignore() {
			return true
		}
	}

	return m.matchesCustomPatterns(relativePath, baseName)
}

// IsIgnoreFile reports whether absolutePath is one of the files the matcher reads,
// so callers know when to Reload.
func (m *Matcher) IsIgnoreFile(absolutePath string) bool {
	if filepath.Dir(absolutePath) != filepath.Clean(m.rootDir) {
		return false
	}
	baseName := filepath.Base(absolutePath)
	return baseName == GitIgnoreFile || (m.ignoreFile != "" && baseName == m.ignoreFile)
}

// Pattern returns the file pattern.
func (m *Matcher) Pattern() string {
	return m.pattern
}

// Reload re-reads the ignore files from disk.
func (m *Matcher) Reload() {
	gitIgnore, fileIgnore := m.loadIgnoreFiles()

	m.mu.Lock()
	defer m.mu.Unlock()
	m.gitIgnore = gitIgnore
	m.fileIgnore = fileIgnore
}

func (m *Matcher) loadIgnoreFiles() (gitignore.GitIgnore, gitignore.GitIgnore) {
	gitIgnore := loadIgnoreFile(filepath.Join(m.rootDir, GitIgnoreFile), m.rootDir)
	var fileIgnore gitignore.GitIgnore
	if m.ignoreFile != "" && m.ignoreFile != GitIgnoreFile {
		fileIgnore = loadIgnoreFile(filepath.Join(m.rootDir, m.ignoreFile), m.rootDir)
	}
	return gitIgnore, fileIgnore
}

func isJunk(baseName string) bool {
	lower := strings.ToLower(baseName)
	for _, pattern := range JunkPatterns {
		if matched, err := filepath.Match(strings.ToLower(pattern), lower); err == nil && matched {
			return true
		}
	}
	return false
}

func (m *Matcher) matchesCustomPatterns(relativePath, baseName string) bool {
	for _, pattern := range m.customPatterns {
		if matched, err := doublestar.Match(pattern, relativePath); err == nil && matched {
			return true
		}
		if matched, err := doublestar.Match(pattern, baseName); err == nil && matched {
			return true
		}
	}
	return false
}

// loadIgnoreFile reads an ignore file and creates a GitIgnore matcher from it.
// Reading through an open handle keeps the file from staying locked on Windows.
func loadIgnoreFile(filePath string, baseDir string) gitignore.GitIgnore {
	f, err := os.Open(filePath)
	if err != nil {
		return nil
	}
	defer f.Close()

	return gitignore.New(f, baseDir, nil)
}
