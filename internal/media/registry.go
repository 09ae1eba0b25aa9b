package media

import (
	"context"
	"errors"
	"sync"
)

// ErrEmptyPayload is returned when registering media without any bytes.
var ErrEmptyPayload = errors.New("media: empty payload")

// Pending is a payload attached in the editor that has not been uploaded.
type Pending struct {
	Filename    string `json:"filename"`
	ContentType string `json:"contentType"`
	Data        []byte `json:"data"`
}

// Registry maps ephemeral references to pending payloads for one editing
// session. Entries are never evicted; the owner clears the registry after a
// successful save or when the session is discarded.
type Registry interface {
	Register(ctx context.Context, p Pending) (string, error)
	Get(ctx context.Context, ref string) (Pending, bool, error)
	Clear(ctx context.Context) error
}

// MemoryRegistry keeps pending payloads in process memory.
type MemoryRegistry struct {
	mu      sync.RWMutex
	entries map[string]Pending
}

func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{entries: make(map[string]Pending)}
}

func (r *MemoryRegistry) Register(_ context.Context, p Pending) (string, error) {
	if len(p.Data) == 0 {
		return "", ErrEmptyPayload
	}
	ref := NewEphemeralReference()
	r.mu.Lock()
	r.entries[ref] = p
	r.mu.Unlock()
	return ref, nil
}

func (r *MemoryRegistry) Get(_ context.Context, ref string) (Pending, bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.entries[ref]
	return p, ok, nil
}

func (r *MemoryRegistry) Clear(_ context.Context) error {
	r.mu.Lock()
	r.entries = make(map[string]Pending)
	r.mu.Unlock()
	return nil
}

// Len returns the number of pending entries.
func (r *MemoryRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}
