// ABOUTME: Uniform bidirectional message channel abstraction over HTTP, SSE, and WebSocket
// ABOUTME: Defines the adapter contract consumed by the session registry

package transport

import "errors"

// AuthContext carries the authentication and request metadata extracted at
// the front door for one inbound message, so the protocol engine can make
// per-call credential decisions without coupling to transport internals.
type AuthContext struct {
	// Credential is the API key extracted from the request, if any.
	Credential string

	// RemoteAddr is the peer address, for logging only.
	RemoteAddr string
}

// Callbacks are the lifecycle hooks a session binds to its adapter.
// OnMessage delivers one inbound protocol message with its auth context.
// OnError reports a transport-level error; OnClose fires exactly once when
// the adapter reaches the closed state. Any transport error fires OnError
// before OnClose.
type Callbacks struct {
	OnMessage func(data []byte, auth *AuthContext)
	OnError   func(err error)
	OnClose   func()
}

// Transport is the uniform adapter contract. Start establishes readiness to
// send (a no-op for adapters already bound to an open channel), Send
// delivers one protocol message and fails unless the adapter is open, and
// Close is idempotent and always eventually triggers OnClose exactly once.
type Transport interface {
	Bind(cb Callbacks)
	Start() error
	Send(data []byte) error
	Close() error
}

// Streamer is implemented by adapters that can hold a server-push stream
// open (the SSE variant). The front door feature-detects it on GET.
type Streamer interface {
	HandleStream(opts StreamOptions) error
}

var (
	// ErrNotOpen is returned by Send when the adapter is not in the open state.
	ErrNotOpen = errors.New("transport is not open")

	// ErrNoPendingRequest is returned by the buffered adapter when Send is
	// called outside an inbound write cycle.
	ErrNoPendingRequest = errors.New("no pending request to reply to")

	// ErrStreamingUnsupported is returned by adapters without server-push.
	ErrStreamingUnsupported = errors.New("streaming is not supported on this session")

	// ErrStreamActive is returned when a second concurrent stream is opened.
	ErrStreamActive = errors.New("a stream is already active for this session")
)
