// ABOUTME: MCP tool registration and shared helpers for the scanning tool set
// ABOUTME: Owns token precedence and best-effort scan history recording

package tools

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/credshields/solidityscan-mcp/internal/directory"
	"github.com/credshields/solidityscan-mcp/internal/mcp"
	"github.com/credshields/solidityscan-mcp/internal/scanner"
	"github.com/credshields/solidityscan-mcp/internal/store"
)

// errNoToken is the guidance clients see when no credential reached the call.
var errNoToken = errors.New("No API token provided. Please set SOLIDITYSCAN_API_KEY environment variable, add the token to request arguments, or send it via headers.")

// Deps are the shared dependencies injected into every tool handler.
type Deps struct {
	Scanner   *scanner.Client
	Directory *directory.Service
	Store     store.Store
	Logger    *slog.Logger

	// DefaultAPIKey is the configured fallback token, typically from the
	// SOLIDITYSCAN_API_KEY environment variable.
	DefaultAPIKey string
}

// All returns the full tool set in the order clients see it in tools/list.
func All(deps *Deps) []mcp.Tool {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	return []mcp.Tool{
		deps.scanContractTool(),
		deps.scanAndGetReportTool(),
		deps.supportedPlatformsTool(),
		deps.scanProjectTool(),
		deps.scanLocalDirectoryTool(),
		deps.scanFileContentTool(),
		deps.scanHistoryTool(),
	}
}

// resolveToken applies the credential precedence for one call: an explicit
// apiToken argument wins, then the session/transport credential, then the
// configured fallback.
func (d *Deps) resolveToken(argToken string, req *mcp.ToolRequest) (string, error) {
	if argToken != "" {
		return argToken, nil
	}
	if req.APIKey != "" {
		return req.APIKey, nil
	}
	if d.DefaultAPIKey != "" {
		return d.DefaultAPIKey, nil
	}
	return "", errNoToken
}

// record appends one scan history row. History is best effort: a store
// failure is logged and never surfaces into the tool result.
func (d *Deps) record(ctx context.Context, req *mcp.ToolRequest, tool, target string, status store.ScanStatus, detail string) {
	if d.Store == nil {
		return
	}
	rec := &store.ScanRecord{
		ID:        uuid.New().String(),
		SessionID: req.SessionID,
		Tool:      tool,
		Target:    target,
		Status:    status,
		Detail:    detail,
		CreatedAt: time.Now().UTC(),
	}
	if err := d.Store.RecordScan(ctx, rec); err != nil {
		d.Logger.Warn("failed to record scan history", "tool", tool, "error", err)
	}
}
