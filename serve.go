package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/spf13/cobra"

	"github.com/lexandro/changefeed-mcp/journal"
	"github.com/lexandro/changefeed-mcp/server"
	"github.com/lexandro/changefeed-mcp/tools"
)

func newServeCommand(options *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the change journal over MCP on stdio (default)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, options)
		},
	}
}

func runServe(cmd *cobra.Command, options *rootOptions) error {
	cfg, err := resolveConfig(cmd, options)
	if err != nil {
		return err
	}

	// Never log to stdout: it carries the MCP stdio transport.
	logger := setupLogger(cfg.LogLevel, cfg.LogFile)
	logger.Info("starting changefeed-mcp",
		"directory", cfg.Directory,
		"pattern", cfg.Pattern,
		"delay", cfg.DelayWindow,
		"excludes", len(cfg.ExcludePatterns),
	)
	startTime := time.Now()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	changes, err := journal.New(journal.Options{
		RootDir: cfg.Directory,
		Size:    cfg.JournalSize,
		TTL:     cfg.JournalTTL,
		Logger:  logger,
	})
	if err != nil {
		return fmt.Errorf("creating journal: %w", err)
	}
	defer changes.Close()

	f, err := newFeed(cfg, logger)
	if err != nil {
		return err
	}
	defer f.close()
	f.add(changes.Record)

	feedCtx, cancelFeed := context.WithCancel(ctx)
	defer cancelFeed()
	f.dispatcher.Start(feedCtx)

	recentHandler := &tools.RecentHandler{Journal: changes, Logger: logger}
	searchHandler := &tools.SearchHandler{Journal: changes, Logger: logger}
	statusHandler := &tools.StatusHandler{
		Sequence:    f.sequence,
		Journal:     changes,
		Directory:   cfg.Directory,
		Pattern:     cfg.Pattern,
		DelayWindow: cfg.DelayWindow,
		StartTime:   startTime,
		Logger:      logger,
	}
	mcpServer := server.Setup(recentHandler, searchHandler, statusHandler)

	logger.Info("MCP server starting on stdio")
	serveErr := mcpServer.Run(ctx, &mcp.StdioTransport{})

	cancelFeed()
	if err := f.dispatcher.Wait(); err != nil {
		logger.Error("change feed stopped", "error", err)
		if serveErr == nil {
			serveErr = err
		}
	}
	if serveErr != nil && ctx.Err() == nil {
		logger.Error("MCP server error", "error", serveErr)
		return serveErr
	}
	logger.Info("changefeed-mcp stopped", "uptime", time.Since(startTime))
	return nil
}
