package main

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/lexandro/changefeed-mcp/watcher"
)

func newWatchCommand(options *rootOptions) *cobra.Command {
	var noColor bool

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Print debounced changes to stdout",
		Long: `Print one line per logical change. Files that already exist are listed first
as "Existing", then live changes follow until interrupted.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWatch(cmd, options, noColor)
		},
	}
	cmd.Flags().BoolVar(&noColor, "no-color", false, "Disable colored output")
	return cmd
}

func runWatch(cmd *cobra.Command, options *rootOptions, noColor bool) error {
	cfg, err := resolveConfig(cmd, options)
	if err != nil {
		return err
	}
	logger := setupLogger(cfg.LogLevel, cfg.LogFile)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	f, err := newFeed(cfg, logger)
	if err != nil {
		return err
	}
	defer f.close()
	f.add(newPrinter(cmd.OutOrStdout(), noColor))

	logger.Debug("watching", "directory", cfg.Directory, "pattern", cfg.Pattern, "delay", cfg.DelayWindow)
	return f.dispatcher.Run(ctx)
}

// printer writes one line per event.
type printer struct {
	out    io.Writer
	colors map[watcher.Kind]*color.Color
}

func newPrinter(out io.Writer, noColor bool) func(watcher.Event) {
	p := &printer{
		out: out,
		colors: map[watcher.Kind]*color.Color{
			watcher.Created: color.New(color.FgGreen),
			watcher.Changed: color.New(color.FgYellow),
			watcher.Deleted: color.New(color.FgRed),
			watcher.Renamed: color.New(color.FgCyan),
			watcher.All:     color.New(color.Faint),
		},
	}
	if noColor {
		for _, c := range p.colors {
			c.DisableColor()
		}
	}
	return p.print
}

func (p *printer) print(event watcher.Event) {
	label := event.Kind.String()
	if event.Kind == watcher.All {
		label = "Existing"
	}
	if c, ok := p.colors[event.Kind]; ok {
		label = c.Sprintf("%-8s", label)
	} else {
		label = fmt.Sprintf("%-8s", label)
	}

	target := event.Name
	if event.IsRename() {
		target = fmt.Sprintf("%s -> %s", event.OldName, event.Name)
	}
	fmt.Fprintf(p.out, "%s %s %s\n", time.Now().Format("15:04:05"), label, target)
}
