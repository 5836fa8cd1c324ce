// ABOUTME: Shared adapter lifecycle state machine
// ABOUTME: Guarantees OnClose fires exactly once and callbacks run outside locks

package transport

import "sync"

// State is an adapter's lifecycle position. Send succeeds only in StateOpen.
type State int32

const (
	StateCreated State = iota
	StateOpen
	StateClosing
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateOpen:
		return "open"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// lifecycle is embedded by every adapter. It serializes state transitions
// and owns the bound callbacks so error and close notification semantics are
// identical across transport kinds.
type lifecycle struct {
	mu    sync.Mutex
	state State
	cb    Callbacks
	done  chan struct{}
}

func newLifecycle() lifecycle {
	return lifecycle{done: make(chan struct{})}
}

func (l *lifecycle) Bind(cb Callbacks) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.cb = cb
}

// State returns the current lifecycle state.
func (l *lifecycle) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// closedCh is closed once the adapter reaches StateClosed; stream loops
// select on it.
func (l *lifecycle) closedCh() <-chan struct{} {
	return l.done
}

// open moves Created to Open. Starting an already-open or closed adapter is
// a no-op respectively an ErrClosed-like failure folded into ErrNotOpen.
func (l *lifecycle) open() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	switch l.state {
	case StateCreated:
		l.state = StateOpen
		return nil
	case StateOpen:
		return nil
	default:
		return ErrNotOpen
	}
}

// requireOpen returns ErrNotOpen unless the adapter is open.
func (l *lifecycle) requireOpen() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.state != StateOpen {
		return ErrNotOpen
	}
	return nil
}

// shutdown transitions to Closed and reports whether this call was the one
// that performed the close. OnClose fires here, outside the lock, so it runs
// exactly once no matter how many paths race to close.
func (l *lifecycle) shutdown() bool {
	l.mu.Lock()
	if l.state == StateClosing || l.state == StateClosed {
		l.mu.Unlock()
		return false
	}
	l.state = StateClosing
	cb := l.cb
	l.mu.Unlock()

	close(l.done)
	if cb.OnClose != nil {
		cb.OnClose()
	}

	l.mu.Lock()
	l.state = StateClosed
	l.mu.Unlock()
	return true
}

// emitError reports a transport-level error without changing state.
func (l *lifecycle) emitError(err error) {
	l.mu.Lock()
	cb := l.cb
	l.mu.Unlock()
	if cb.OnError != nil {
		cb.OnError(err)
	}
}

// emitMessage delivers one inbound message to the bound handler.
func (l *lifecycle) emitMessage(data []byte, auth *AuthContext) {
	l.mu.Lock()
	cb := l.cb
	l.mu.Unlock()
	if cb.OnMessage != nil {
		cb.OnMessage(data, auth)
	}
}
