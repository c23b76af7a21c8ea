package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/ilyakaznacheev/cleanenv"
)

const (
	DefaultPattern     = "*"
	DefaultDelayWindow = 500 * time.Millisecond
	DefaultIgnoreFile  = ".changefeedignore"
	DefaultJournalSize = 1024
	DefaultJournalTTL  = time.Hour
	DefaultLogLevel    = "info"
)

// ErrInvalid wraps every validation failure.
var ErrInvalid = errors.New("invalid configuration")

// Config describes what to watch and how to coalesce it.
type Config struct {
	Directory       string        `yaml:"directory" env:"CHANGEFEED_DIR" env-description:"Directory to monitor"`
	Pattern         string        `yaml:"pattern" env:"CHANGEFEED_PATTERN" env-default:"*" env-description:"Glob matched against file names"`
	DelayWindow     time.Duration `yaml:"delay_window" env:"CHANGEFEED_DELAY" env-default:"500ms" env-description:"Quiet period before a change is emitted"`
	KeepJunk        bool          `yaml:"keep_junk" env:"CHANGEFEED_KEEP_JUNK" env-description:"Report editor swap files and OS metadata too"`
	IgnoreFile      string        `yaml:"ignore_file" env:"CHANGEFEED_IGNORE_FILE" env-default:".changefeedignore" env-description:"Gitignore-style file inside the directory"`
	ExcludePatterns []string      `yaml:"exclude" env:"CHANGEFEED_EXCLUDE" env-separator:"," env-description:"Extra glob patterns to ignore"`
	JournalSize     int           `yaml:"journal_size" env:"CHANGEFEED_JOURNAL_SIZE" env-default:"1024" env-description:"Paths kept in the change journal"`
	JournalTTL      time.Duration `yaml:"journal_ttl" env:"CHANGEFEED_JOURNAL_TTL" env-default:"1h" env-description:"How long journal records live"`
	LogLevel        string        `yaml:"log_level" env:"CHANGEFEED_LOG_LEVEL" env-default:"info" env-description:"debug|info|warn|error"`
	LogFile         string        `yaml:"log_file" env:"CHANGEFEED_LOG_FILE" env-description:"Log file path (default: stderr)"`
}

// Default returns a configuration with every optional field populated.
func Default() Config {
	return Config{
		Pattern:     DefaultPattern,
		DelayWindow: DefaultDelayWindow,
		IgnoreFile:  DefaultIgnoreFile,
		JournalSize: DefaultJournalSize,
		JournalTTL:  DefaultJournalTTL,
		LogLevel:    DefaultLogLevel,
	}
}

// Build copies c, fills zero-valued optional fields with defaults and validates the result.
func Build(c Config) (Config, error) {
	built := c
	defaults := Default()
	if built.Pattern == "" {
		built.Pattern = defaults.Pattern
	}
	if built.DelayWindow <= 0 {
		built.DelayWindow = defaults.DelayWindow
	}
	if built.IgnoreFile == "" {
		built.IgnoreFile = defaults.IgnoreFile
	}
	if built.JournalSize <= 0 {
		built.JournalSize = defaults.JournalSize
	}
	if built.JournalTTL <= 0 {
		built.JournalTTL = defaults.JournalTTL
	}
	if built.LogLevel == "" {
		built.LogLevel = defaults.LogLevel
	}
	built.ExcludePatterns = append([]string(nil), c.ExcludePatterns...)

	if err := Validate(built); err != nil {
		return Config{}, err
	}
	return built, nil
}

// Validate checks c without modifying it.
func Validate(c Config) error {
	if c.Directory == "" {
		return fmt.Errorf("%w: directory to monitor must not be empty", ErrInvalid)
	}
	info, err := os.Stat(c.Directory)
	if err != nil {
		return fmt.Errorf("%w: directory %s: %v", ErrInvalid, c.Directory, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("%w: %s is not a directory", ErrInvalid, c.Directory)
	}
	if c.Pattern == "" {
		return fmt.Errorf("%w: file pattern must not be empty", ErrInvalid)
	}
	if !doublestar.ValidatePattern(c.Pattern) {
		return fmt.Errorf("%w: malformed file pattern %q", ErrInvalid, c.Pattern)
	}
	for _, pattern := range c.ExcludePatterns {
		if !doublestar.ValidatePattern(pattern) {
			return fmt.Errorf("%w: malformed exclude pattern %q", ErrInvalid, pattern)
		}
	}
	if c.DelayWindow <= 0 {
		return fmt.Errorf("%w: delay window must be greater than 0, got %s", ErrInvalid, c.DelayWindow)
	}
	if c.JournalSize <= 0 {
		return fmt.Errorf("%w: journal size must be greater than 0, got %d", ErrInvalid, c.JournalSize)
	}
	return nil
}

// Load reads configuration from a YAML file (optional) and the environment.
// Environment variables override file values. The result is not validated yet:
// callers apply their own overrides and then call Build.
func Load(path string) (Config, error) {
	var cfg Config
	if path != "" {
		if err := cleanenv.ReadConfig(path, &cfg); err != nil {
			return Config{}, fmt.Errorf("reading config %s: %w", path, err)
		}
	} else if err := cleanenv.ReadEnv(&cfg); err != nil {
		return Config{}, fmt.Errorf("reading environment: %w", err)
	}
	return cfg, nil
}

// Usage describes the supported environment variables.
func Usage() string {
	description, err := cleanenv.GetDescription(&Config{}, nil)
	if err != nil {
		return ""
	}
	return description
}
