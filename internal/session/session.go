// ABOUTME: One client session: an adapter, a protocol engine, and a credential slot
// ABOUTME: Glues transport callbacks to engine dispatch

package session

import (
	"context"
	"log/slog"
	"time"

	"github.com/credshields/solidityscan-mcp/internal/mcp"
	"github.com/credshields/solidityscan-mcp/internal/transport"
)

// Session ties one transport adapter to one protocol engine. Messages flow
// adapter -> engine -> adapter; the sticky credential slot sits between the
// two so later credential-less requests inherit the first observed key.
type Session struct {
	ID          string
	Transport   transport.Transport
	Engine      *mcp.Engine
	Credentials *Credentials

	CreatedAt time.Time

	logger *slog.Logger
}

// bind wires the adapter callbacks. onClosed runs when the adapter reports
// closure (client disconnect or teardown) so the registry can drop the entry.
func (s *Session) bind(onClosed func(*Session)) {
	s.Transport.Bind(transport.Callbacks{
		OnMessage: func(data []byte, auth *transport.AuthContext) {
			credential := ""
			if auth != nil {
				credential = auth.Credential
			}
			// Bind any observed credential before dispatch so even non-call
			// requests (initialize, ping) make the session sticky.
			s.Credentials.Set(credential)

			resp := s.Engine.HandleMessage(context.Background(), data, credential)
			if resp == nil {
				return
			}
			if err := s.Transport.Send(resp); err != nil {
				s.logger.Warn("failed to deliver response",
					"session_id", s.ID,
					"error", err,
				)
			}
		},
		OnError: func(err error) {
			s.logger.Warn("transport error", "session_id", s.ID, "error", err)
		},
		OnClose: func() {
			onClosed(s)
		},
	})
}
