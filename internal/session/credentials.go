// ABOUTME: Session-scoped sticky credential slot
// ABOUTME: First observed non-empty credential persists; later ones overwrite

package session

import "sync"

// Credentials holds the API key bound to one session. Setting an empty
// value is ignored so a credential-less request never clears a previously
// observed key; a new non-empty value overwrites the old one.
type Credentials struct {
	mu    sync.Mutex
	value string
}

// NewCredentials creates an empty credential slot.
func NewCredentials() *Credentials {
	return &Credentials{}
}

// Get returns the bound credential, or empty if none was ever observed.
func (c *Credentials) Get() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.value
}

// Set binds a credential. Empty values are ignored.
func (c *Credentials) Set(value string) {
	if value == "" {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.value = value
}
