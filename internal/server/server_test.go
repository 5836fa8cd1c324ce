// ABOUTME: End-to-end tests for the HTTP front door
// ABOUTME: Drives real sessions over buffered HTTP, SSE, and WebSocket

package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/credshields/solidityscan-mcp/internal/mcp"
	"github.com/credshields/solidityscan-mcp/internal/session"
)

func echoKeyTool() mcp.Tool {
	return mcp.Tool{
		Name:        "echo_key",
		Description: "returns the resolved API key",
		InputSchema: json.RawMessage(`{"type":"object"}`),
		Handler: func(_ context.Context, req *mcp.ToolRequest) (*mcp.CallToolResult, error) {
			return mcp.TextResult(req.APIKey), nil
		},
	}
}

func newTestServer(t *testing.T, cfg Config) (*Server, *httptest.Server) {
	t.Helper()
	factory := func(sessionID string, creds mcp.CredentialSource) *mcp.Engine {
		return mcp.NewEngine(mcp.Config{
			Tools:       []mcp.Tool{echoKeyTool()},
			Credentials: creds,
			SessionID:   sessionID,
			Version:     "test",
		})
	}
	registry := session.NewRegistry(factory, nil)
	srv := New(cfg, registry, nil)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return srv, ts
}

func postMCP(t *testing.T, ts *httptest.Server, sessionID, body string, headers map[string]string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, ts.URL+"/mcp", strings.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if sessionID != "" {
		req.Header.Set("Mcp-Session-Id", sessionID)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}

func decodeResponse(t *testing.T, r io.Reader) *mcp.JSONRPCResponse {
	t.Helper()
	var resp mcp.JSONRPCResponse
	require.NoError(t, json.NewDecoder(r).Decode(&resp))
	return &resp
}

func toolText(t *testing.T, resp *mcp.JSONRPCResponse) string {
	t.Helper()
	raw, err := json.Marshal(resp.Result)
	require.NoError(t, err)
	var result mcp.CallToolResult
	require.NoError(t, json.Unmarshal(raw, &result))
	require.NotEmpty(t, result.Content)
	return result.Content[0].Text
}

func TestHealth(t *testing.T) {
	_, ts := newTestServer(t, Config{})

	for _, path := range []string{"/health", "/"} {
		resp, err := http.Get(ts.URL + path)
		require.NoError(t, err)
		assert.Equal(t, http.StatusOK, resp.StatusCode)

		var body map[string]string
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
		resp.Body.Close()
		assert.Equal(t, "ok", body["status"])
		assert.Equal(t, "solidityscan-mcp-server", body["service"])
	}
}

func TestCORSPreflight(t *testing.T) {
	_, ts := newTestServer(t, Config{})

	req, err := http.NewRequest(http.MethodOptions, ts.URL+"/mcp", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "https://example.com")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, "https://example.com", resp.Header.Get("Access-Control-Allow-Origin"))
	assert.Contains(t, resp.Header.Get("Access-Control-Expose-Headers"), "Mcp-Session-Id")
	assert.Contains(t, resp.Header.Get("Access-Control-Allow-Headers"), "X-SolidityScan-API-Key")
}

func TestPost_NewSessionGetsID(t *testing.T) {
	_, ts := newTestServer(t, Config{})

	resp := postMCP(t, ts, "", `{"jsonrpc":"2.0","id":1,"method":"initialize","params":{"protocolVersion":"2025-03-26"}}`, nil)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("Mcp-Session-Id"))

	rpc := decodeResponse(t, resp.Body)
	assert.Nil(t, rpc.Error)
}

func TestPost_UnknownSessionID(t *testing.T) {
	_, ts := newTestServer(t, Config{})

	resp := postMCP(t, ts, "b2f2a9e8-0000-0000-0000-000000000000", `{"jsonrpc":"2.0","id":1,"method":"ping"}`, nil)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	rpc := decodeResponse(t, resp.Body)
	require.NotNil(t, rpc.Error)
	assert.Equal(t, mcp.JSONRPCSessionError, rpc.Error.Code)
	assert.Equal(t, "Bad Request: No valid session ID provided", rpc.Error.Message)
}

func TestPost_SessionReuseAndAlternateHeader(t *testing.T) {
	_, ts := newTestServer(t, Config{})

	resp := postMCP(t, ts, "", `{"jsonrpc":"2.0","id":1,"method":"initialize","params":{}}`, nil)
	id := resp.Header.Get("Mcp-Session-Id")
	resp.Body.Close()
	require.NotEmpty(t, id)

	// Follow-up on the legacy header spelling reaches the same session.
	req, err := http.NewRequest(http.MethodPost, ts.URL+"/mcp",
		bytes.NewReader([]byte(`{"jsonrpc":"2.0","id":2,"method":"ping"}`)))
	require.NoError(t, err)
	req.Header.Set("X-MCP-Session-Id", id)

	resp2, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp2.Body.Close()

	assert.Equal(t, http.StatusOK, resp2.StatusCode)
	assert.Equal(t, id, resp2.Header.Get("Mcp-Session-Id"))
	rpc := decodeResponse(t, resp2.Body)
	assert.Nil(t, rpc.Error)
}

func TestPost_NotificationReturns202(t *testing.T) {
	_, ts := newTestServer(t, Config{})

	resp := postMCP(t, ts, "", `{"jsonrpc":"2.0","method":"notifications/initialized"}`, nil)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("Mcp-Session-Id"))
}

func TestCredentialStickinessEndToEnd(t *testing.T) {
	_, ts := newTestServer(t, Config{})

	call := `{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"echo_key"}}`

	// First request binds the bearer token to the session.
	resp := postMCP(t, ts, "", call, map[string]string{"Authorization": "Bearer secret-token"})
	id := resp.Header.Get("Mcp-Session-Id")
	assert.Equal(t, "secret-token", toolText(t, decodeResponse(t, resp.Body)))
	resp.Body.Close()

	// Credential-less follow-up inherits it.
	resp = postMCP(t, ts, id, call, nil)
	assert.Equal(t, "secret-token", toolText(t, decodeResponse(t, resp.Body)))
	resp.Body.Close()
}

func TestCredentialPriority_QueryParamFallback(t *testing.T) {
	_, ts := newTestServer(t, Config{})

	req, err := http.NewRequest(http.MethodPost, ts.URL+"/mcp?apiKey=query-key",
		strings.NewReader(`{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"echo_key"}}`))
	require.NoError(t, err)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "query-key", toolText(t, decodeResponse(t, resp.Body)))
}

func TestCredentialPriority_HeaderBeatsQuery(t *testing.T) {
	_, ts := newTestServer(t, Config{})

	req, err := http.NewRequest(http.MethodPost, ts.URL+"/mcp?apiKey=query-key",
		strings.NewReader(`{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"echo_key"}}`))
	require.NoError(t, err)
	req.Header.Set("X-API-Key", "header-key")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "header-key", toolText(t, decodeResponse(t, resp.Body)))
}

func deleteMCP(t *testing.T, ts *httptest.Server, sessionID string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodDelete, ts.URL+"/mcp", nil)
	require.NoError(t, err)
	if sessionID != "" {
		req.Header.Set("Mcp-Session-Id", sessionID)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}

func TestDelete_TerminatesSession(t *testing.T) {
	srv, ts := newTestServer(t, Config{})

	resp := postMCP(t, ts, "", `{"jsonrpc":"2.0","id":1,"method":"initialize","params":{}}`, nil)
	id := resp.Header.Get("Mcp-Session-Id")
	resp.Body.Close()
	require.Equal(t, 1, srv.registry.Count())

	del := deleteMCP(t, ts, id)
	del.Body.Close()
	assert.Equal(t, http.StatusNoContent, del.StatusCode)
	assert.Equal(t, 0, srv.registry.Count())

	// The terminated session id no longer routes anywhere: POST and a repeat
	// DELETE both see the session-routing rejection.
	resp = postMCP(t, ts, id, `{"jsonrpc":"2.0","id":2,"method":"ping"}`, nil)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	del = deleteMCP(t, ts, id)
	defer del.Body.Close()
	assert.Equal(t, http.StatusBadRequest, del.StatusCode)
	rpc := decodeResponse(t, del.Body)
	require.NotNil(t, rpc.Error)
	assert.Equal(t, mcp.JSONRPCSessionError, rpc.Error.Code)
	assert.Equal(t, "Bad Request: No valid session ID provided", rpc.Error.Message)
}

func TestDelete_UnknownSessionID(t *testing.T) {
	_, ts := newTestServer(t, Config{})

	del := deleteMCP(t, ts, "b2f2a9e8-0000-0000-0000-000000000000")
	defer del.Body.Close()

	assert.Equal(t, http.StatusBadRequest, del.StatusCode)
	rpc := decodeResponse(t, del.Body)
	require.NotNil(t, rpc.Error)
	assert.Equal(t, mcp.JSONRPCSessionError, rpc.Error.Code)
}

func TestGet_StreamDisabledSessionIs405(t *testing.T) {
	_, ts := newTestServer(t, Config{DisableStreaming: true})

	resp := postMCP(t, ts, "", `{"jsonrpc":"2.0","id":1,"method":"initialize","params":{}}`, nil)
	id := resp.Header.Get("Mcp-Session-Id")
	resp.Body.Close()

	req, err := http.NewRequest(http.MethodGet, ts.URL+"/mcp", nil)
	require.NoError(t, err)
	req.Header.Set("Mcp-Session-Id", id)
	get, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer get.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, get.StatusCode)
}

func TestGet_StreamOpensForSSESession(t *testing.T) {
	_, ts := newTestServer(t, Config{KeepAlive: 50 * time.Millisecond})

	resp := postMCP(t, ts, "", `{"jsonrpc":"2.0","id":1,"method":"initialize","params":{}}`, nil)
	id := resp.Header.Get("Mcp-Session-Id")
	resp.Body.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/mcp", nil)
	require.NoError(t, err)
	req.Header.Set("Mcp-Session-Id", id)

	get, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer get.Body.Close()

	assert.Equal(t, http.StatusOK, get.StatusCode)
	assert.Equal(t, "text/event-stream", get.Header.Get("Content-Type"))

	// The stream emits keep-alive comments while idle.
	buf := make([]byte, 64)
	n, err := get.Body.Read(buf)
	require.NoError(t, err)
	assert.Contains(t, string(buf[:n]), ": keepalive")
}

func TestGet_CredentialBindsToSession(t *testing.T) {
	_, ts := newTestServer(t, Config{DisableStreaming: true})

	resp := postMCP(t, ts, "", `{"jsonrpc":"2.0","id":1,"method":"initialize","params":{}}`, nil)
	id := resp.Header.Get("Mcp-Session-Id")
	resp.Body.Close()

	// The GET itself is rejected on a buffered session, but the credential it
	// carried still binds before the transport capability check.
	req, err := http.NewRequest(http.MethodGet, ts.URL+"/mcp", nil)
	require.NoError(t, err)
	req.Header.Set("Mcp-Session-Id", id)
	req.Header.Set("X-API-Key", "stream-key")
	get, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	get.Body.Close()
	require.Equal(t, http.StatusMethodNotAllowed, get.StatusCode)

	resp = postMCP(t, ts, id, `{"jsonrpc":"2.0","id":2,"method":"tools/call","params":{"name":"echo_key"}}`, nil)
	defer resp.Body.Close()
	assert.Equal(t, "stream-key", toolText(t, decodeResponse(t, resp.Body)))
}

func TestPost_MalformedBodyCreatesNoSession(t *testing.T) {
	srv, ts := newTestServer(t, Config{})

	resp := postMCP(t, ts, "", `{this is not json`, nil)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Empty(t, resp.Header.Get("Mcp-Session-Id"))
	assert.Equal(t, 0, srv.registry.Count())

	rpc := decodeResponse(t, resp.Body)
	require.NotNil(t, rpc.Error)
	assert.Equal(t, mcp.JSONRPCParseError, rpc.Error.Code)
}

func TestRecovery_DevModeControlsPanicDetail(t *testing.T) {
	boom := http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("kaboom")
	})

	rec := httptest.NewRecorder()
	withRecovery(boom, slog.Default(), true).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/mcp", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "kaboom")

	rec = httptest.NewRecorder()
	withRecovery(boom, slog.Default(), false).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/mcp", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "kaboom")
}

func TestGet_WithoutSessionID(t *testing.T) {
	_, ts := newTestServer(t, Config{})

	resp, err := http.Get(ts.URL + "/mcp")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestWebSocketEndToEnd(t *testing.T) {
	srv, ts := newTestServer(t, Config{})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.Dial(ctx, wsURL, &websocket.DialOptions{
		HTTPHeader: http.Header{"X-API-Key": []string{"ws-secret"}},
	})
	require.NoError(t, err)
	defer conn.Close(websocket.StatusNormalClosure, "")

	require.Eventually(t, func() bool { return srv.registry.Count() == 1 },
		time.Second, 10*time.Millisecond)

	require.NoError(t, conn.Write(ctx, websocket.MessageText,
		[]byte(`{"jsonrpc":"2.0","id":1,"method":"initialize","params":{"protocolVersion":"2025-03-26"}}`)))
	_, data, err := conn.Read(ctx)
	require.NoError(t, err)
	var rpc mcp.JSONRPCResponse
	require.NoError(t, json.Unmarshal(data, &rpc))
	assert.Nil(t, rpc.Error)

	// The upgrade-time header credential rides along on every frame.
	require.NoError(t, conn.Write(ctx, websocket.MessageText,
		[]byte(`{"jsonrpc":"2.0","id":2,"method":"tools/call","params":{"name":"echo_key"}}`)))
	_, data, err = conn.Read(ctx)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, &rpc))
	assert.Equal(t, "ws-secret", toolText(t, &rpc))
}

func TestWebSocket_DisconnectTearsDownSession(t *testing.T) {
	srv, ts := newTestServer(t, Config{})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	require.NoError(t, err)
	require.Eventually(t, func() bool { return srv.registry.Count() == 1 },
		time.Second, 10*time.Millisecond)

	require.NoError(t, conn.Close(websocket.StatusNormalClosure, "done"))
	require.Eventually(t, func() bool { return srv.registry.Count() == 0 },
		2*time.Second, 10*time.Millisecond)
}
