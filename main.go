package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/lexandro/changefeed-mcp/config"
	"github.com/lexandro/changefeed-mcp/server"
)

// rootOptions holds the persistent flags shared by serve and watch.
// Flags override values from the config file and the environment.
type rootOptions struct {
	configFile string
	directory  string
	pattern    string
	delay      time.Duration
	excludes   []string
	keepJunk   bool
	logLevel   string
	logFile    string
}

func main() {
	if err := newRootCommand(&rootOptions{}).Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand(options *rootOptions) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "changefeed-mcp",
		Short: "Debounced file change feed for one directory",
		Long: `changefeed-mcp watches a directory, coalesces the bursts of notifications that
editors and the OS emit for a single change, and reports one event per logical change.

Without a subcommand it serves the change journal over MCP on stdio.`,
		Version:       server.Version,
		SilenceUsage:  true,
		SilenceErrors: false,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, options)
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&options.configFile, "config", "", "YAML config file (environment variables override it)")
	flags.StringVar(&options.directory, "dir", "", "Directory to monitor (default: current working directory)")
	flags.StringVar(&options.pattern, "pattern", "", "Glob matched against file names (default \"*\")")
	flags.DurationVar(&options.delay, "delay", 0, "Quiet period before a change is emitted (default 500ms)")
	flags.StringArrayVar(&options.excludes, "exclude", nil, "Extra ignore pattern (repeatable)")
	flags.BoolVar(&options.keepJunk, "keep-junk", false, "Report editor swap files and OS metadata too")
	flags.StringVar(&options.logLevel, "log-level", "", "Log level: debug|info|warn|error")
	flags.StringVar(&options.logFile, "log-file", "", "Log file path (default: stderr)")

	rootCmd.AddCommand(
		newServeCommand(options),
		newWatchCommand(options),
		newRegisterCommand(),
		newEnvCommand(),
	)
	return rootCmd
}

// resolveConfig loads the config file and environment, applies the flags that were
// set explicitly and validates the result.
func resolveConfig(cmd *cobra.Command, options *rootOptions) (config.Config, error) {
	cfg, err := config.Load(options.configFile)
	if err != nil {
		return config.Config{}, err
	}

	flags := cmd.Flags()
	if flags.Changed("dir") {
		cfg.Directory = options.directory
	}
	if flags.Changed("pattern") {
		cfg.Pattern = options.pattern
	}
	if flags.Changed("delay") {
		cfg.DelayWindow = options.delay
		if options.delay <= 0 {
			return config.Config{}, fmt.Errorf("%w: --delay must be greater than 0, got %s", config.ErrInvalid, options.delay)
		}
	}
	if flags.Changed("exclude") {
		cfg.ExcludePatterns = append(cfg.ExcludePatterns, options.excludes...)
	}
	if flags.Changed("keep-junk") {
		cfg.KeepJunk = options.keepJunk
	}
	if flags.Changed("log-level") {
		cfg.LogLevel = options.logLevel
	}
	if flags.Changed("log-file") {
		cfg.LogFile = options.logFile
	}

	if cfg.Directory == "" {
		cfg.Directory, err = os.Getwd()
		if err != nil {
			return config.Config{}, fmt.Errorf("getting working directory: %w", err)
		}
	}
	cfg.Directory, err = filepath.Abs(cfg.Directory)
	if err != nil {
		return config.Config{}, fmt.Errorf("resolving directory %s: %w", cfg.Directory, err)
	}

	return config.Build(cfg)
}

// setupLogger creates an slog.Logger writing to stderr or a file.
func setupLogger(level string, logFile string) *slog.Logger {
	var writer *os.File
	if logFile != "" {
		f, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Warning: cannot open log file %s: %v, falling back to stderr\n", logFile, err)
			writer = os.Stderr
		} else {
			writer = f
		}
	} else {
		writer = os.Stderr
	}

	handler := slog.NewTextHandler(writer, &slog.HandlerOptions{Level: parseLogLevel(level)})
	return slog.New(handler)
}

func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func newEnvCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "env",
		Short: "List the environment variables that configure the watcher",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), config.Usage())
		},
	}
}
