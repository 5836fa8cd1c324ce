// ABOUTME: Scan history tool reading recent activity from the persistent store
// ABOUTME: History is server-wide; rows carry the originating session id

package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/credshields/solidityscan-mcp/internal/mcp"
)

func (d *Deps) scanHistoryTool() mcp.Tool {
	return mcp.Tool{
		Name:        "get_scan_history",
		Description: "List recently submitted scans and their outcomes",
		InputSchema: json.RawMessage(`{
  "type": "object",
  "properties": {
    "limit": {"type": "integer", "description": "Maximum rows to return (default 20, max 200)"}
  }
}`),
		Handler: d.handleScanHistory,
	}
}

func (d *Deps) handleScanHistory(ctx context.Context, req *mcp.ToolRequest) (*mcp.CallToolResult, error) {
	if d.Store == nil {
		return mcp.ErrorResult("Scan history is not enabled on this server."), nil
	}

	var args struct {
		Limit int `json:"limit"`
	}
	if err := json.Unmarshal(req.Arguments, &args); err != nil {
		return nil, fmt.Errorf("invalid arguments: %w", err)
	}

	records, err := d.Store.ListRecent(ctx, args.Limit)
	if err != nil {
		return nil, fmt.Errorf("reading scan history: %w", err)
	}
	if len(records) == 0 {
		return mcp.TextResult("No scans recorded yet."), nil
	}

	var b strings.Builder
	b.WriteString("# Recent Scans\n\n")
	b.WriteString("| Time (UTC) | Tool | Target | Status | Detail |\n")
	b.WriteString("|---|---|---|---|---|\n")
	for _, rec := range records {
		fmt.Fprintf(&b, "| %s | %s | %s | %s | %s |\n",
			rec.CreatedAt.UTC().Format("2006-01-02 15:04:05"),
			rec.Tool,
			escapeCell(rec.Target),
			rec.Status,
			escapeCell(rec.Detail),
		)
	}
	return mcp.TextResult(b.String()), nil
}

func escapeCell(s string) string {
	s = strings.ReplaceAll(s, "|", "\\|")
	s = strings.ReplaceAll(s, "\n", " ")
	return s
}
