package tools

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"sort"
	"strings"
	"time"

	"github.com/lexandro/changefeed-mcp/journal"
	"github.com/lexandro/changefeed-mcp/watcher"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// StatusArgs defines the input parameters for the changefeed_status tool (none required).
type StatusArgs struct{}

// StatusHandler holds the dependencies for the status tool.
type StatusHandler struct {
	Sequence    *watcher.Sequence
	Journal     *journal.Journal
	Directory   string
	Pattern     string
	DelayWindow time.Duration
	StartTime   time.Time
	Logger      *slog.Logger
}

// Handle processes a changefeed_status request.
func (h *StatusHandler) Handle(ctx context.Context, req *mcp.CallToolRequest, args StatusArgs) (*mcp.CallToolResult, any, error) {
	var builder strings.Builder

	metrics := h.Sequence.Metrics().Snapshot()
	windows, buffered := h.Sequence.Pending()
	uptime := time.Since(h.StartTime)

	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	h.Logger.Info("changefeed_status",
		"state", h.Sequence.State(),
		"emitted", metrics.Emitted,
		"journal", h.Journal.Count(),
		"memory", memStats.Alloc,
		"uptime", uptime,
	)

	builder.WriteString("=== changefeed-mcp Status ===\n\n")
	builder.WriteString(fmt.Sprintf("Directory: %s\n", h.Directory))
	builder.WriteString(fmt.Sprintf("Pattern: %s\n", h.Pattern))
	builder.WriteString(fmt.Sprintf("Delay window: %s\n", h.DelayWindow))
	builder.WriteString(fmt.Sprintf("State: %s\n", h.Sequence.State()))
	builder.WriteString(fmt.Sprintf("Uptime: %s\n", formatDuration(uptime)))
	builder.WriteString(fmt.Sprintf("Memory usage: %s (heap: %s)\n",
		formatBytes(memStats.Alloc),
		formatBytes(memStats.HeapAlloc),
	))

	builder.WriteString("\nEvents:\n")
	builder.WriteString(fmt.Sprintf("  %-20s %d\n", "raw received", metrics.Received))
	builder.WriteString(fmt.Sprintf("  %-20s %d\n", "coalesced", metrics.Coalesced))
	builder.WriteString(fmt.Sprintf("  %-20s %d\n", "emitted", metrics.Emitted))
	builder.WriteString(fmt.Sprintf("  %-20s %d\n", "snapshot", metrics.Snapshot))
	builder.WriteString(fmt.Sprintf("  %-20s %d\n", "dropped", metrics.Dropped))
	builder.WriteString(fmt.Sprintf("  %-20s %d\n", "dispatched", metrics.Dispatched))
	builder.WriteString(fmt.Sprintf("  %-20s %d\n", "callback panics", metrics.CallbackPanics))
	builder.WriteString(fmt.Sprintf("  %-20s %d\n", "open windows", windows))
	builder.WriteString(fmt.Sprintf("  %-20s %d\n", "queued", buffered))
	if !metrics.LastEmit.IsZero() {
		builder.WriteString(fmt.Sprintf("  last emitted %s ago\n", formatDuration(time.Since(metrics.LastEmit))))
	}

	builder.WriteString(fmt.Sprintf("\nJournal: %d paths\n", h.Journal.Count()))
	kindCounts := h.Journal.KindCounts()
	if len(kindCounts) > 0 {
		kinds := make([]string, 0, len(kindCounts))
		for kind := range kindCounts {
			kinds = append(kinds, kind)
		}
		sort.Strings(kinds)
		for _, kind := range kinds {
			builder.WriteString(fmt.Sprintf("  %-20s %d\n", kind, kindCounts[kind]))
		}
	}

	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: builder.String()}},
	}, nil, nil
}
