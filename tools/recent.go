package tools

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/lexandro/changefeed-mcp/journal"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// RecentArgs defines the input parameters for the changefeed_recent tool.
type RecentArgs struct {
	Pattern    string `json:"pattern,omitempty" jsonschema:"Optional glob pattern on the relative path (e.g. *.md)"`
	MaxResults int    `json:"maxResults,omitempty" jsonschema:"Maximum number of changes to return (default 50)"`
}

// RecentHandler holds the dependencies for the recent tool.
type RecentHandler struct {
	Journal *journal.Journal
	Logger  *slog.Logger
}

// Handle processes a changefeed_recent request.
func (h *RecentHandler) Handle(ctx context.Context, req *mcp.CallToolRequest, args RecentArgs) (*mcp.CallToolResult, any, error) {
	start := time.Now()

	entries, err := h.Journal.Recent(args.Pattern, args.MaxResults)
	if err != nil {
		h.Logger.Error("changefeed_recent failed", "pattern", args.Pattern, "error", err)
		return &mcp.CallToolResult{
			Content: []mcp.Content{&mcp.TextContent{Text: fmt.Sprintf("Error: %v", err)}},
			IsError: true,
		}, nil, nil
	}

	h.Logger.Info("changefeed_recent",
		"pattern", args.Pattern,
		"results", len(entries),
		"elapsed", time.Since(start),
	)

	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: FormatEntries(entries, len(entries), time.Now())}},
	}, nil, nil
}
