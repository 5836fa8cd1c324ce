// ABOUTME: HTTP front door: session routing for POST/GET/DELETE plus the WebSocket upgrade
// ABOUTME: Extracts credentials and session ids, delegates everything else to sessions

package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/coder/websocket"

	"github.com/credshields/solidityscan-mcp/internal/mcp"
	"github.com/credshields/solidityscan-mcp/internal/session"
	"github.com/credshields/solidityscan-mcp/internal/transport"
)

// maxBodyBytes bounds inbound POST bodies.
const maxBodyBytes = 1 << 20

// Config holds the front door configuration.
type Config struct {
	Addr string

	// DisableStreaming selects the buffered HTTP adapter for new sessions
	// instead of the SSE-capable one.
	DisableStreaming bool

	// EventLogSize is the per-session outbound event retention for SSE
	// resumption. Zero uses the adapter default.
	EventLogSize int

	// KeepAlive is the SSE comment-ping interval. Zero uses the adapter
	// default.
	KeepAlive time.Duration

	// Dev includes internal error detail in error responses.
	Dev bool
}

// Server is the HTTP front door. It owns no protocol state: every request
// is routed to a session, and sessions own their transports and engines.
type Server struct {
	cfg      Config
	registry *session.Registry
	logger   *slog.Logger
	httpSrv  *http.Server
}

// New creates the front door around a session registry.
func New(cfg Config, registry *session.Registry, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{cfg: cfg, registry: registry, logger: logger}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /{$}", s.handleHealth)
	mux.HandleFunc("/mcp", s.handleMCP)
	mux.HandleFunc("GET /ws", s.handleWebSocket)

	s.httpSrv = &http.Server{
		Addr:              cfg.Addr,
		Handler:           withRecovery(withCORS(mux), logger, cfg.Dev),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler exposes the full middleware-wrapped handler, for tests.
func (s *Server) Handler() http.Handler {
	return s.httpSrv.Handler
}

// Run serves until ctx is cancelled, then drains: HTTP shutdown first so no
// new sessions arrive, then teardown of everything live.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", "addr", s.cfg.Addr)
		if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.httpSrv.Shutdown(shutdownCtx); err != nil {
		s.logger.Warn("http shutdown did not drain cleanly", "error", err)
	}
	s.registry.TeardownAll()
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{
		"status":  "ok",
		"service": mcp.ServerName,
	})
}

func (s *Server) handleMCP(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		s.handlePost(w, r)
	case http.MethodGet:
		s.handleStream(w, r)
	case http.MethodDelete:
		s.handleDelete(w, r)
	default:
		w.Header().Set("Allow", "GET, POST, DELETE")
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

// requestHandler is the POST write-cycle surface shared by the buffered and
// streaming HTTP adapters.
type requestHandler interface {
	HandleRequest(w http.ResponseWriter, body []byte, auth *transport.AuthContext) error
}

func (s *Server) handlePost(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes+1))
	if err != nil {
		writeSessionError(w, http.StatusBadRequest, "Bad Request: unreadable body")
		return
	}
	if len(body) > maxBodyBytes {
		writeSessionError(w, http.StatusRequestEntityTooLarge, "Bad Request: body too large")
		return
	}
	// Reject garbage before it can allocate a session or reach an engine.
	if !json.Valid(body) {
		writeError(w, http.StatusBadRequest, mcp.JSONRPCParseError, "Parse error: invalid JSON")
		return
	}

	auth := &transport.AuthContext{
		Credential: extractCredential(r, true),
		RemoteAddr: r.RemoteAddr,
	}

	var sess *session.Session
	if id := sessionIDFrom(r); id != "" {
		existing, ok := s.registry.Resolve(id)
		if !ok {
			writeSessionError(w, http.StatusBadRequest, "Bad Request: No valid session ID provided")
			return
		}
		sess = existing
	} else {
		created, err := s.registry.Create(s.newHTTPTransport())
		if err != nil {
			msg := "failed to create session"
			if s.cfg.Dev {
				msg = fmt.Sprintf("%s: %v", msg, err)
			}
			writeError(w, http.StatusInternalServerError, mcp.JSONRPCInternalError, msg)
			return
		}
		sess = created
	}

	// The id header must be set before the adapter writes anything.
	w.Header().Set("Mcp-Session-Id", sess.ID)

	handler, ok := sess.Transport.(requestHandler)
	if !ok {
		writeSessionError(w, http.StatusBadRequest, "Bad Request: session does not accept HTTP requests")
		return
	}
	if err := handler.HandleRequest(w, body, auth); err != nil {
		writeSessionError(w, http.StatusBadRequest, "Bad Request: session is closed")
	}
}

func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	id := sessionIDFrom(r)
	if id == "" {
		writeSessionError(w, http.StatusBadRequest, "Bad Request: No valid session ID provided")
		return
	}
	sess, ok := s.registry.Resolve(id)
	if !ok {
		writeSessionError(w, http.StatusBadRequest, "Bad Request: No valid session ID provided")
		return
	}

	// A credential on the resume request binds to the session like any other.
	sess.Credentials.Set(extractCredential(r, true))

	streamer, ok := sess.Transport.(transport.Streamer)
	if !ok {
		w.Header().Set("Allow", "POST, DELETE")
		http.Error(w, "streaming is disabled for this session", http.StatusMethodNotAllowed)
		return
	}

	w.Header().Set("Mcp-Session-Id", sess.ID)
	err := streamer.HandleStream(transport.StreamOptions{
		Writer:      w,
		Request:     r,
		LastEventID: r.Header.Get("Last-Event-ID"),
		KeepAlive:   s.cfg.KeepAlive,
	})
	switch {
	case err == nil:
	case errors.Is(err, transport.ErrStreamActive):
		http.Error(w, "a stream is already active", http.StatusConflict)
	case errors.Is(err, transport.ErrNotOpen):
		writeSessionError(w, http.StatusBadRequest, "Bad Request: session is closed")
	default:
		s.logger.Debug("stream ended with error", "session_id", sess.ID, "error", err)
	}
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	id := sessionIDFrom(r)
	if id == "" {
		writeSessionError(w, http.StatusBadRequest, "Bad Request: No valid session ID provided")
		return
	}
	sess, ok := s.registry.Resolve(id)
	if !ok {
		writeSessionError(w, http.StatusBadRequest, "Bad Request: No valid session ID provided")
		return
	}

	sess.Credentials.Set(extractCredential(r, true))
	s.registry.Teardown(sess.ID)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		s.logger.Debug("websocket accept failed", "error", err)
		return
	}

	auth := &transport.AuthContext{
		// Query credentials are HTTP-only; the upgrade request contributes
		// headers alone.
		Credential: extractCredential(r, false),
		RemoteAddr: r.RemoteAddr,
	}
	ws := transport.NewWebSocket(conn, auth, s.logger)

	sess, err := s.registry.Create(ws)
	if err != nil {
		_ = conn.Close(websocket.StatusInternalError, "session setup failed")
		return
	}
	s.logger.Debug("websocket session open", "session_id", sess.ID, "remote", r.RemoteAddr)

	ws.ReadLoop(r.Context())
}

func (s *Server) newHTTPTransport() transport.Transport {
	if s.cfg.DisableStreaming {
		return transport.NewBuffered(s.logger)
	}
	return transport.NewSSE(s.logger, s.cfg.EventLogSize)
}

// sessionIDFrom reads the session id from either accepted header spelling.
// Header lookup is case-insensitive, so X-MCP-Session-Id in any casing works.
func sessionIDFrom(r *http.Request) string {
	if id := r.Header.Get("Mcp-Session-Id"); id != "" {
		return id
	}
	return r.Header.Get("X-MCP-Session-Id")
}

// extractCredential applies the credential priority order: Authorization
// (Bearer or raw), X-API-Key, X-SolidityScan-API-Key, then query parameters
// when allowQuery is set.
func extractCredential(r *http.Request, allowQuery bool) string {
	if v := r.Header.Get("Authorization"); v != "" {
		if token, ok := strings.CutPrefix(v, "Bearer "); ok {
			return strings.TrimSpace(token)
		}
		return strings.TrimSpace(v)
	}
	if v := r.Header.Get("X-API-Key"); v != "" {
		return v
	}
	if v := r.Header.Get("X-SolidityScan-API-Key"); v != "" {
		return v
	}
	if allowQuery {
		q := r.URL.Query()
		for _, key := range []string{"apiKey", "api_key", "token"} {
			if v := q.Get(key); v != "" {
				return v
			}
		}
	}
	return ""
}

// writeSessionError emits the JSON-RPC envelope used for session routing
// failures, outside any session.
func writeSessionError(w http.ResponseWriter, status int, message string) {
	writeError(w, status, mcp.JSONRPCSessionError, message)
}

// writeError emits a JSON-RPC error envelope for requests that never reach
// an engine.
func writeError(w http.ResponseWriter, status, code int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	resp := mcp.NewError(nil, code, message)
	data, err := json.Marshal(resp)
	if err != nil {
		fmt.Fprint(w, `{"jsonrpc":"2.0","error":{"code":-32603,"message":"internal error"},"id":null}`)
		return
	}
	_, _ = w.Write(data)
}
