// ABOUTME: WebSocket adapter over coder/websocket with a dedicated read loop
// ABOUTME: Malformed frames surface as errors without tearing the connection down

package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/coder/websocket"
)

const wsWriteTimeout = 10 * time.Second

// WSTransport adapts one accepted WebSocket connection. The credential
// extracted at upgrade time rides along with every inbound frame.
type WSTransport struct {
	lifecycle
	conn   *websocket.Conn
	auth   *AuthContext
	logger *slog.Logger
}

// NewWebSocket wraps an accepted connection. auth carries the credential
// captured from the upgrade request headers.
func NewWebSocket(conn *websocket.Conn, auth *AuthContext, logger *slog.Logger) *WSTransport {
	if logger == nil {
		logger = slog.Default()
	}
	if auth == nil {
		auth = &AuthContext{}
	}
	return &WSTransport{lifecycle: newLifecycle(), conn: conn, auth: auth, logger: logger}
}

func (t *WSTransport) Start() error {
	return t.open()
}

// Send writes one text frame.
func (t *WSTransport) Send(data []byte) error {
	if err := t.requireOpen(); err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), wsWriteTimeout)
	defer cancel()
	if err := t.conn.Write(ctx, websocket.MessageText, data); err != nil {
		return fmt.Errorf("websocket write: %w", err)
	}
	return nil
}

// Close is idempotent.
func (t *WSTransport) Close() error {
	if t.shutdown() {
		_ = t.conn.Close(websocket.StatusNormalClosure, "session closed")
	}
	return nil
}

// ReadLoop pumps inbound frames until the connection fails or the session
// closes. The caller's handler goroutine blocks here for the connection's
// lifetime. Frames that are not valid JSON are reported via OnError and
// skipped; a read error ends the loop and closes the adapter.
func (t *WSTransport) ReadLoop(ctx context.Context) {
	defer func() {
		_ = t.Close()
	}()

	for {
		_, data, err := t.conn.Read(ctx)
		if err != nil {
			status := websocket.CloseStatus(err)
			if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway || ctx.Err() != nil {
				return
			}
			t.logger.Debug("websocket read ended", "error", err)
			t.emitError(fmt.Errorf("websocket read: %w", err))
			return
		}

		if !json.Valid(data) {
			t.emitError(fmt.Errorf("malformed frame: not valid JSON"))
			continue
		}

		t.emitMessage(data, t.auth)
	}
}
