package tools

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/lexandro/changefeed-mcp/journal"
	"github.com/lexandro/changefeed-mcp/watcher"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// SearchArgs defines the input parameters for the changefeed_search tool.
type SearchArgs struct {
	Query      string `json:"query" jsonschema:"Search query on file names. Plain text for word match, quoted for exact phrase, /regex/ for regular expression"`
	Kind       string `json:"kind,omitempty" jsonschema:"Optional change kind filter: Created, Changed, Deleted, Renamed or All"`
	MaxResults int    `json:"maxResults,omitempty" jsonschema:"Maximum number of changes to return (default 50)"`
}

// SearchHandler holds the dependencies for the search tool.
type SearchHandler struct {
	Journal *journal.Journal
	Logger  *slog.Logger
}

// Handle processes a changefeed_search request.
func (h *SearchHandler) Handle(ctx context.Context, req *mcp.CallToolRequest, args SearchArgs) (*mcp.CallToolResult, any, error) {
	start := time.Now()

	if args.Query == "" {
		h.Logger.Warn("changefeed_search called with empty query")
		return errorResult("Error: query parameter is required"), nil, nil
	}

	kind := ""
	if args.Kind != "" {
		parsed, ok := watcher.ParseKind(args.Kind)
		if !ok {
			return errorResult(fmt.Sprintf("Error: unknown kind %q", args.Kind)), nil, nil
		}
		kind = parsed.String()
	}

	entries, total, err := h.Journal.Search(journal.SearchOptions{
		Query:      args.Query,
		Kind:       kind,
		MaxResults: args.MaxResults,
	})
	if err != nil {
		h.Logger.Error("changefeed_search failed", "query", args.Query, "error", err)
		return errorResult(fmt.Sprintf("Search error: %v", err)), nil, nil
	}

	h.Logger.Info("changefeed_search",
		"query", args.Query,
		"kind", kind,
		"results", len(entries),
		"total", total,
		"elapsed", time.Since(start),
	)

	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: FormatEntries(entries, total, time.Now())}},
	}, nil, nil
}

func errorResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: text}},
		IsError: true,
	}
}
