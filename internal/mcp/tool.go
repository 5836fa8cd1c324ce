// ABOUTME: Tool registration types and result builders for the protocol engine
// ABOUTME: Tools receive parsed arguments plus the resolved API credential

package mcp

import (
	"context"
	"encoding/json"
	"fmt"
)

// Tool describes one registered MCP tool.
type Tool struct {
	Name        string
	Description string
	InputSchema json.RawMessage
	Handler     ToolFunc
}

// ToolRequest carries a tool invocation's arguments and resolved context.
type ToolRequest struct {
	// Arguments is the raw JSON arguments object ("{}" when absent).
	Arguments json.RawMessage

	// APIKey is the credential resolved for this call: the session's sticky
	// value if set, otherwise the transport-supplied one. Empty when no
	// credential is available; tools fall back to their own argument or the
	// configured environment key.
	APIKey string

	// SessionID identifies the calling session, for history attribution.
	SessionID string
}

// ToolFunc executes one tool call. A returned error becomes an isError tool
// result, never a protocol-level failure.
type ToolFunc func(ctx context.Context, req *ToolRequest) (*CallToolResult, error)

// CallToolResult is the result for tools/call.
type CallToolResult struct {
	Content []Content `json:"content"`
	IsError bool      `json:"isError,omitempty"`
}

// Content represents content in a tool result.
type Content struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

// ToolInfo is the wire shape for tools/list entries.
type ToolInfo struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	InputSchema json.RawMessage `json:"inputSchema"`
}

// ListToolsResult is the result for tools/list.
type ListToolsResult struct {
	Tools []ToolInfo `json:"tools"`
}

// TextResult creates a CallToolResult with a single text content block.
func TextResult(text string) *CallToolResult {
	return &CallToolResult{Content: []Content{{Type: "text", Text: text}}}
}

// ErrorResult creates an isError CallToolResult so the client can see the
// failure and self-correct rather than receiving a protocol exception.
func ErrorResult(text string) *CallToolResult {
	return &CallToolResult{
		Content: []Content{{Type: "text", Text: text}},
		IsError: true,
	}
}

// JSONResult marshals v to indented JSON inside a markdown code fence under
// the given heading.
func JSONResult(heading string, v any) (*CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshaling result: %w", err)
	}
	return TextResult(fmt.Sprintf("%s\n\n```json\n%s\n```", heading, data)), nil
}
