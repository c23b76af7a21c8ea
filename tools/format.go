package tools

import (
	"fmt"
	"strings"
	"time"

	"github.com/lexandro/changefeed-mcp/journal"
	"github.com/lexandro/changefeed-mcp/watcher"
)

// FormatEntries formats journal entries as human-readable text, one change per line.
// total is the number of matches before truncation.
func FormatEntries(entries []journal.Entry, total int, now time.Time) string {
	if len(entries) == 0 {
		return "No changes recorded."
	}

	var builder strings.Builder
	if total > len(entries) {
		builder.WriteString(fmt.Sprintf("Showing %d of %d changes (newest first):\n\n", len(entries), total))
	} else {
		builder.WriteString(fmt.Sprintf("Found %d changes (newest first):\n\n", len(entries)))
	}

	for _, entry := range entries {
		builder.WriteString(fmt.Sprintf("  #%-5d %-8s %s", entry.Seq, kindLabel(entry.Kind), entry.RelativePath))
		if entry.OldPath != "" {
			builder.WriteString(fmt.Sprintf(" (from %s)", entry.OldPath))
		}
		builder.WriteString(fmt.Sprintf("  %s ago\n", formatDuration(now.Sub(entry.At))))
	}

	return builder.String()
}

// kindLabel shows snapshot entries as "Existing", which reads better than "All".
func kindLabel(kind watcher.Kind) string {
	if kind == watcher.All {
		return "Existing"
	}
	return kind.String()
}

// formatDuration formats a duration in a human-readable way.
func formatDuration(d time.Duration) string {
	totalSeconds := int(d.Seconds())
	if totalSeconds < 60 {
		return fmt.Sprintf("%ds", totalSeconds)
	}
	totalMinutes := totalSeconds / 60
	remainderSeconds := totalSeconds % 60
	if totalMinutes < 60 {
		return fmt.Sprintf("%dm%ds", totalMinutes, remainderSeconds)
	}
	hours := totalMinutes / 60
	remainderMinutes := totalMinutes % 60
	return fmt.Sprintf("%dh%dm", hours, remainderMinutes)
}

// formatBytes converts bytes to a human-readable string.
func formatBytes(bytes uint64) string {
	switch {
	case bytes >= 1024*1024:
		return fmt.Sprintf("%.1f MB", float64(bytes)/(1024*1024))
	case bytes >= 1024:
		return fmt.Sprintf("%.1f KB", float64(bytes)/1024)
	default:
		return fmt.Sprintf("%d B", bytes)
	}
}
