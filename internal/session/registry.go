// ABOUTME: Session registry: creation, id lookup, and idempotent teardown
// ABOUTME: Teardown closes transport and engine independently, best effort

package session

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/credshields/solidityscan-mcp/internal/mcp"
	"github.com/credshields/solidityscan-mcp/internal/transport"
)

// EngineFactory builds a fresh protocol engine bound to a session's
// credential slot.
type EngineFactory func(sessionID string, creds mcp.CredentialSource) *mcp.Engine

// Registry owns all live sessions. Lookups and inserts share one lock so a
// session is resolvable the moment Create returns.
type Registry struct {
	newEngine EngineFactory
	logger    *slog.Logger

	mu       sync.Mutex
	sessions map[string]*Session
}

// NewRegistry creates an empty session registry.
func NewRegistry(factory EngineFactory, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		newEngine: factory,
		logger:    logger,
		sessions:  make(map[string]*Session),
	}
}

// Create allocates a session id, builds the engine, wires the adapter, and
// starts it. The session is registered before Start so a fast follow-up
// request can already resolve it.
func (r *Registry) Create(tr transport.Transport) (*Session, error) {
	id := uuid.New().String()
	creds := NewCredentials()

	s := &Session{
		ID:          id,
		Transport:   tr,
		Engine:      r.newEngine(id, creds),
		Credentials: creds,
		CreatedAt:   time.Now(),
		logger:      r.logger,
	}
	s.bind(r.onSessionClosed)

	r.mu.Lock()
	r.sessions[id] = s
	r.mu.Unlock()

	if err := tr.Start(); err != nil {
		r.remove(id)
		_ = s.Engine.Close()
		return nil, err
	}

	r.logger.Info("session created", "session_id", id)
	return s, nil
}

// Resolve returns the session for id, or false if unknown.
func (r *Registry) Resolve(id string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	return s, ok
}

// Count returns the number of live sessions.
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Teardown removes and closes the session with the given id. Unknown ids
// are a no-op, so repeated teardown is safe. Transport and engine are
// closed independently: one failing never skips the other.
func (r *Registry) Teardown(id string) {
	s := r.remove(id)
	if s == nil {
		return
	}
	r.closeSession(s)
}

// TeardownAll closes every live session concurrently and blocks until all
// closes complete. Used on server shutdown.
func (r *Registry) TeardownAll() {
	r.mu.Lock()
	all := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		all = append(all, s)
	}
	r.sessions = make(map[string]*Session)
	r.mu.Unlock()

	var wg sync.WaitGroup
	for _, s := range all {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.closeSession(s)
		}()
	}
	wg.Wait()
}

func (r *Registry) closeSession(s *Session) {
	if err := s.Transport.Close(); err != nil {
		r.logger.Warn("transport close failed", "session_id", s.ID, "error", err)
	}
	if err := s.Engine.Close(); err != nil {
		r.logger.Warn("engine close failed", "session_id", s.ID, "error", err)
	}
	r.logger.Info("session closed", "session_id", s.ID)
}

// onSessionClosed fires when an adapter closes on its own (client
// disconnect). The entry is dropped and the engine released.
func (r *Registry) onSessionClosed(s *Session) {
	if r.remove(s.ID) == nil {
		return
	}
	_ = s.Engine.Close()
	r.logger.Info("session ended by transport", "session_id", s.ID)
}

func (r *Registry) remove(id string) *Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok {
		return nil
	}
	delete(r.sessions, id)
	return s
}
