// ABOUTME: Bounded in-memory event log backing SSE stream resumption
// ABOUTME: Sequence numbers double as SSE event ids for Last-Event-ID replay

package transport

import "sync"

// Event is one server-push message with its monotonically increasing id.
type Event struct {
	ID   uint64
	Data []byte
}

// eventLog is a fixed-capacity ring of outbound events. Appends never block;
// once capacity is exceeded the oldest events are dropped, so a very stale
// Last-Event-ID resumes from the earliest retained event.
type eventLog struct {
	mu      sync.Mutex
	events  []Event
	cap     int
	nextID  uint64
	changed chan struct{}
}

func newEventLog(capacity int) *eventLog {
	if capacity <= 0 {
		capacity = 256
	}
	return &eventLog{
		cap:     capacity,
		nextID:  1,
		changed: make(chan struct{}, 1),
	}
}

// Append stores one event and returns its id.
func (l *eventLog) Append(data []byte) uint64 {
	l.mu.Lock()
	id := l.nextID
	l.nextID++
	l.events = append(l.events, Event{ID: id, Data: data})
	if len(l.events) > l.cap {
		l.events = l.events[len(l.events)-l.cap:]
	}
	l.mu.Unlock()

	select {
	case l.changed <- struct{}{}:
	default:
	}
	return id
}

// Since returns copies of all retained events with an id greater than after.
func (l *eventLog) Since(after uint64) []Event {
	l.mu.Lock()
	defer l.mu.Unlock()

	var out []Event
	for _, ev := range l.events {
		if ev.ID > after {
			out = append(out, ev)
		}
	}
	return out
}

// Changed signals when at least one append happened since the last receive.
func (l *eventLog) Changed() <-chan struct{} {
	return l.changed
}
