// ABOUTME: Per-session MCP request dispatcher owning tool registration and invocation
// ABOUTME: Transport-agnostic: consumes raw JSON-RPC frames, returns encoded replies

package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

// Supported MCP protocol versions.
var supportedProtocolVersions = map[string]bool{
	"2024-11-05": true,
	"2025-03-26": true,
	"2025-06-18": true,
}

// latestProtocolVersion is the version advertised in initialize responses.
const latestProtocolVersion = "2025-03-26"

// ServerName identifies this server in initialize responses and health checks.
const ServerName = "solidityscan-mcp-server"

// CredentialSource is the session-bound sticky credential slot. The engine
// reads it first when resolving a tool call's API key and writes back any
// credential that arrives via the transport so later credential-less
// requests inherit it.
type CredentialSource interface {
	Get() string
	Set(value string)
}

// Config holds the per-session engine configuration.
type Config struct {
	Tools       []Tool
	Credentials CredentialSource
	Logger      *slog.Logger
	Version     string

	// SessionID is stamped into tool requests for history attribution.
	SessionID string
}

// Engine is one session's MCP dispatcher. Messages arrive in transport
// order; the engine itself keeps no ordering state beyond the in-flight
// call set used for teardown cancellation.
type Engine struct {
	tools       []Tool
	byName      map[string]Tool
	credentials CredentialSource
	logger      *slog.Logger
	version     string
	sessionID   string

	mu       sync.Mutex
	closed   bool
	inflight map[string]context.CancelFunc
}

// NewEngine creates a protocol engine with the given tool set.
func NewEngine(cfg Config) *Engine {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	version := cfg.Version
	if version == "" {
		version = "dev"
	}

	byName := make(map[string]Tool, len(cfg.Tools))
	for _, tool := range cfg.Tools {
		byName[tool.Name] = tool
	}

	return &Engine{
		tools:       cfg.Tools,
		byName:      byName,
		credentials: cfg.Credentials,
		logger:      logger,
		version:     version,
		sessionID:   cfg.SessionID,
		inflight:    make(map[string]context.CancelFunc),
	}
}

// HandleMessage processes one inbound protocol message and returns the
// encoded response, or nil for notifications. credential is the
// transport-supplied authentication context for this message, if any.
func (e *Engine) HandleMessage(ctx context.Context, data []byte, credential string) []byte {
	var req JSONRPCRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return encode(NewError(nil, JSONRPCParseError, "invalid JSON"))
	}

	if req.JSONRPC != "2.0" {
		return encode(NewError(req.ID, JSONRPCInvalidRequest, "invalid JSON-RPC version"))
	}

	if req.IsNotification() {
		e.logger.Debug("accepted notification", "method", req.Method)
		return nil
	}

	e.logger.Debug("mcp request", "method", req.Method)

	var resp *JSONRPCResponse
	switch req.Method {
	case "initialize":
		resp = e.handleInitialize(req)
	case "ping":
		resp = NewResult(req.ID, map[string]any{})
	case "tools/list":
		resp = e.handleToolsList(req)
	case "tools/call":
		resp = e.handleToolsCall(ctx, req, credential)
	default:
		resp = NewError(req.ID, JSONRPCMethodNotFound, "method not found")
	}
	return encode(resp)
}

// Close cancels in-flight tool calls. It is safe to call more than once.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil
	}
	e.closed = true
	for _, cancel := range e.inflight {
		cancel()
	}
	e.inflight = map[string]context.CancelFunc{}
	return nil
}

func (e *Engine) handleInitialize(req JSONRPCRequest) *JSONRPCResponse {
	var params struct {
		ProtocolVersion string `json:"protocolVersion"`
	}
	_ = json.Unmarshal(req.Params, &params)

	// Echo a mutually supported version; fall back to ours when the client
	// requests something unknown.
	version := latestProtocolVersion
	if supportedProtocolVersions[params.ProtocolVersion] {
		version = params.ProtocolVersion
	}

	result := map[string]any{
		"protocolVersion": version,
		"capabilities": map[string]any{
			"tools": map[string]any{},
		},
		"serverInfo": map[string]any{
			"name":    ServerName,
			"version": e.version,
		},
	}
	return NewResult(req.ID, result)
}

func (e *Engine) handleToolsList(req JSONRPCRequest) *JSONRPCResponse {
	result := ListToolsResult{Tools: make([]ToolInfo, len(e.tools))}
	for i, tool := range e.tools {
		result.Tools[i] = ToolInfo{
			Name:        tool.Name,
			Description: tool.Description,
			InputSchema: tool.InputSchema,
		}
	}
	return NewResult(req.ID, result)
}

// CallToolParams are the params for tools/call.
type CallToolParams struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
}

func (e *Engine) handleToolsCall(ctx context.Context, req JSONRPCRequest, credential string) *JSONRPCResponse {
	var params CallToolParams
	if len(req.Params) > 0 {
		if err := json.Unmarshal(req.Params, &params); err != nil {
			return NewError(req.ID, JSONRPCInvalidParams, "invalid params")
		}
	}
	if params.Name == "" {
		return NewError(req.ID, JSONRPCInvalidParams, "tool name is required")
	}

	tool, ok := e.byName[params.Name]
	if !ok {
		return NewError(req.ID, JSONRPCInvalidParams, "tool not found")
	}

	args := params.Arguments
	if len(args) == 0 || string(args) == "null" {
		args = json.RawMessage("{}")
	}

	callCtx, callID, err := e.beginCall(ctx)
	if err != nil {
		return NewError(req.ID, JSONRPCInvalidRequest, "session is shutting down")
	}
	defer e.endCall(callID)

	toolReq := &ToolRequest{
		Arguments: args,
		APIKey:    e.resolveCredential(credential),
		SessionID: e.sessionID,
	}

	e.logger.Debug("tools/call", "tool_name", params.Name, "call_id", callID)

	result, err := tool.Handler(callCtx, toolReq)
	if err != nil {
		// Tool failures are results, not protocol errors: the client sees
		// the message and can correct its next call.
		msg, _ := json.Marshal(err.Error())
		result = ErrorResult(fmt.Sprintf("Error executing %s: %s", params.Name, msg))
	}

	e.logger.Debug("tools/call complete",
		"tool_name", params.Name,
		"call_id", callID,
		"is_error", result.IsError,
	)
	return NewResult(req.ID, result)
}

// resolveCredential applies the credential priority: session-bound sticky
// value first, then the transport-supplied context. A transport credential
// that wins is written back into the sticky slot.
func (e *Engine) resolveCredential(transportCredential string) string {
	if e.credentials != nil {
		if v := e.credentials.Get(); v != "" {
			return v
		}
	}
	if transportCredential != "" {
		if e.credentials != nil {
			e.credentials.Set(transportCredential)
		}
		return transportCredential
	}
	return ""
}

func (e *Engine) beginCall(ctx context.Context) (context.Context, string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil, "", fmt.Errorf("engine closed")
	}
	callCtx, cancel := context.WithCancel(ctx)
	id := uuid.New().String()
	e.inflight[id] = cancel
	return callCtx, id, nil
}

func (e *Engine) endCall(id string) {
	e.mu.Lock()
	cancel, ok := e.inflight[id]
	delete(e.inflight, id)
	e.mu.Unlock()
	if ok {
		cancel()
	}
}

func encode(resp *JSONRPCResponse) []byte {
	data, err := json.Marshal(resp)
	if err != nil {
		// A response we built ourselves failing to marshal is a bug;
		// degrade to a minimal internal error envelope.
		return []byte(`{"jsonrpc":"2.0","error":{"code":-32603,"message":"internal error"},"id":null}`)
	}
	return data
}
