package server

import (
	"github.com/lexandro/changefeed-mcp/tools"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// Version is reported to MCP clients.
const Version = "0.1.0"

// Setup creates and configures the MCP server with all tool registrations.
func Setup(
	recentHandler *tools.RecentHandler,
	searchHandler *tools.SearchHandler,
	statusHandler *tools.StatusHandler,
) *mcp.Server {
	mcpServer := mcp.NewServer(
		&mcp.Implementation{
			Name:    "changefeed-mcp",
			Version: Version,
		},
		&mcp.ServerOptions{
			Instructions: `This server watches one directory and keeps a journal of the files that changed in it. Bursts of editor and OS notifications are coalesced, so every entry is one logical change.

Use these tools to find out what changed instead of listing or diffing the directory:
- Use changefeed_recent to see the latest changes, optionally filtered by a glob
- Use changefeed_search to find changes by file name
- Files that already existed when watching started are listed with kind "Existing"`,
		},
	)

	mcp.AddTool(mcpServer, &mcp.Tool{
		Name: "changefeed_recent",
		Description: `List the most recent change of each file, newest first.

Pattern examples:
  - "*.md" - Markdown files
  - "report-*" - files starting with report-`,
	}, recentHandler.Handle)

	mcp.AddTool(mcpServer, &mcp.Tool{
		Name: "changefeed_search",
		Description: `Search changed files by name using an in-memory full-text index.

Query formats:
  - Plain text: word-level matching (e.g., "notes" finds release-notes.md)
  - "quoted text": exact phrase matching (e.g., "\"release notes\"")
  - /regex/: regular expression on single words (e.g., "/budg.*/")

Filtering:
  - kind: Created, Changed, Deleted, Renamed or All.`,
	}, searchHandler.Handle)

	mcp.AddTool(mcpServer, &mcp.Tool{
		Name:        "changefeed_status",
		Description: "Show watcher status: directory, pattern, delay window, event counters, journal size, memory usage and uptime.",
	}, statusHandler.Handle)

	return mcpServer
}
