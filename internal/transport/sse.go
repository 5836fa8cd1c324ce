// ABOUTME: Streaming HTTP adapter: POST write cycles plus a resumable SSE push channel
// ABOUTME: Replies fall back to the event log when no request is pending

package transport

import (
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"
)

// StreamOptions configures one GET stream attachment.
type StreamOptions struct {
	Writer  http.ResponseWriter
	Request *http.Request

	// LastEventID resumes the stream after the given event id. Empty or
	// unparsable values start from the earliest retained event.
	LastEventID string

	// KeepAlive is the comment-ping interval. Zero means 30 seconds.
	KeepAlive time.Duration
}

// SSETransport is the streaming HTTP adapter. POST bodies run the same
// write cycle as the buffered variant; replies that cannot land on a
// pending request are appended to a bounded event log and delivered (or
// replayed via Last-Event-ID) on the session's GET stream.
type SSETransport struct {
	BufferedTransport
	log *eventLog

	streamActive bool
}

// NewSSE creates a streaming HTTP adapter retaining up to logCapacity
// outbound events for resumption.
func NewSSE(logger *slog.Logger, logCapacity int) *SSETransport {
	if logger == nil {
		logger = slog.Default()
	}
	return &SSETransport{
		BufferedTransport: BufferedTransport{lifecycle: newLifecycle(), logger: logger},
		log:               newEventLog(logCapacity),
	}
}

// Send prefers the pending POST reply slot; otherwise the message goes to
// the event log for stream delivery.
func (t *SSETransport) Send(data []byte) error {
	if err := t.requireOpen(); err != nil {
		return err
	}
	if t.trySendPending(data) {
		return nil
	}
	// Copy: the log outlives the caller's buffer.
	t.log.Append(append([]byte(nil), data...))
	return nil
}

// HandleStream attaches one GET stream and blocks until the client
// disconnects or the session closes. Only one stream may be active.
func (t *SSETransport) HandleStream(opts StreamOptions) error {
	if err := t.requireOpen(); err != nil {
		return err
	}

	t.writeMu.Lock()
	if t.streamActive {
		t.writeMu.Unlock()
		return ErrStreamActive
	}
	t.streamActive = true
	t.writeMu.Unlock()
	defer func() {
		t.writeMu.Lock()
		t.streamActive = false
		t.writeMu.Unlock()
	}()

	w := opts.Writer
	flusher, ok := w.(http.Flusher)
	if !ok {
		return fmt.Errorf("response writer does not support streaming")
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	last, _ := strconv.ParseUint(opts.LastEventID, 10, 64)

	keepAlive := opts.KeepAlive
	if keepAlive <= 0 {
		keepAlive = 30 * time.Second
	}
	ticker := time.NewTicker(keepAlive)
	defer ticker.Stop()

	ctx := opts.Request.Context()
	for {
		for _, ev := range t.log.Since(last) {
			if _, err := fmt.Fprintf(w, "id: %d\ndata: %s\n\n", ev.ID, ev.Data); err != nil {
				return err
			}
			last = ev.ID
		}
		flusher.Flush()

		select {
		case <-ctx.Done():
			return nil
		case <-t.closedCh():
			return nil
		case <-t.log.Changed():
		case <-ticker.C:
			if _, err := fmt.Fprint(w, ": keepalive\n\n"); err != nil {
				return err
			}
			flusher.Flush()
		}
	}
}
