// ABOUTME: Buffered HTTP adapter: each POST body yields at most one JSON reply
// ABOUTME: Send outside an inbound write cycle fails rather than queueing

package transport

import (
	"log/slog"
	"net/http"
	"sync"
)

// BufferedTransport is the plain request/response HTTP adapter. An inbound
// POST opens a write cycle: the handler delivers the body upward, the reply
// produced during that delivery is written back on the same response, and a
// cycle that produces no reply ends with 202 Accepted. Cycles for one
// session are serialized so replies land on the request that carried them.
type BufferedTransport struct {
	lifecycle
	logger *slog.Logger

	handleMu sync.Mutex

	writeMu sync.Mutex
	pending http.ResponseWriter
	wrote   bool
}

// NewBuffered creates a buffered HTTP adapter.
func NewBuffered(logger *slog.Logger) *BufferedTransport {
	if logger == nil {
		logger = slog.Default()
	}
	return &BufferedTransport{lifecycle: newLifecycle(), logger: logger}
}

func (t *BufferedTransport) Start() error {
	return t.open()
}

// Send writes one protocol message. The buffered variant can only reply to
// the request currently being handled; outside a write cycle it fails.
func (t *BufferedTransport) Send(data []byte) error {
	if err := t.requireOpen(); err != nil {
		return err
	}
	if !t.trySendPending(data) {
		return ErrNoPendingRequest
	}
	return nil
}

// Close is idempotent. In-flight write cycles finish on their own; the
// session stops accepting new ones.
func (t *BufferedTransport) Close() error {
	t.shutdown()
	return nil
}

// HandleRequest runs one inbound write cycle for a POST body.
func (t *BufferedTransport) HandleRequest(w http.ResponseWriter, body []byte, auth *AuthContext) error {
	if err := t.requireOpen(); err != nil {
		return err
	}

	t.handleMu.Lock()
	defer t.handleMu.Unlock()

	t.writeMu.Lock()
	t.pending = w
	t.wrote = false
	t.writeMu.Unlock()

	t.emitMessage(body, auth)

	t.writeMu.Lock()
	wrote := t.wrote
	t.pending = nil
	t.wrote = false
	t.writeMu.Unlock()

	if !wrote {
		w.WriteHeader(http.StatusAccepted)
	}
	return nil
}

// trySendPending writes data on the pending response writer if a write
// cycle is active and unanswered.
func (t *BufferedTransport) trySendPending(data []byte) bool {
	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	if t.pending == nil || t.wrote {
		return false
	}
	t.pending.Header().Set("Content-Type", "application/json")
	t.pending.WriteHeader(http.StatusOK)
	if _, err := t.pending.Write(data); err != nil {
		t.logger.Warn("buffered reply write failed", "error", err)
	}
	t.wrote = true
	return true
}
