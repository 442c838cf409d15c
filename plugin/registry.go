package plugin

import (
	"strings"
	"sync"
)

// Entry is one listener held by a Registry.
type Entry struct {
	Kind     Kind
	MimeType string
	Listener *Listener
}

// Registry is the listener bookkeeping shared by plugin implementations.
// It is safe for concurrent use.
type Registry struct {
	mu      sync.RWMutex
	entries []Entry
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Add records l under kind. A listener already registered with the same
// kind, mimeType and ID is not added twice. It returns false in that case.
func (r *Registry) Add(kind Kind, mimeType string, l *Listener) bool {
	if l == nil {
		return false
	}
	mimeType = strings.ToLower(mimeType)

	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.entries {
		if e.Kind == kind && e.MimeType == mimeType && e.Listener.ID == l.ID {
			return false
		}
	}
	r.entries = append(r.entries, Entry{Kind: kind, MimeType: mimeType, Listener: l})
	return true
}

// Remove deletes the entry matching kind, mimeType and the listener ID.
// It reports whether an entry was removed.
func (r *Registry) Remove(kind Kind, mimeType string, l *Listener) bool {
	if l == nil {
		return false
	}
	mimeType = strings.ToLower(mimeType)

	r.mu.Lock()
	defer r.mu.Unlock()
	for i, e := range r.entries {
		if e.Kind == kind && e.MimeType == mimeType && e.Listener.ID == l.ID {
			r.entries = append(r.entries[:i:i], r.entries[i+1:]...)
			return true
		}
	}
	return false
}

// Listeners returns the listeners registered for a fixed kind.
func (r *Registry) Listeners(kind Kind) []*Listener {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*Listener
	for _, e := range r.entries {
		if e.Kind == kind {
			out = append(out, e.Listener)
		}
	}
	return out
}

// MimeListeners returns the MIME listeners whose filter matches mimeType.
func (r *Registry) MimeListeners(mimeType string) []*Listener {
	if mimeType == "" {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*Listener
	for _, e := range r.entries {
		if e.Kind == KindMimeType && MatchMimeType(e.MimeType, mimeType) {
			out = append(out, e.Listener)
		}
	}
	return out
}

// Entries returns a snapshot of every registration in insertion order.
func (r *Registry) Entries() []Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]Entry(nil), r.entries...)
}

// Count returns the number of listeners registered under kind.
func (r *Registry) Count(kind Kind) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for _, e := range r.entries {
		if e.Kind == kind {
			n++
		}
	}
	return n
}

// Len returns the total number of registrations.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// Clear removes every registration.
func (r *Registry) Clear() {
	r.mu.Lock()
	r.entries = nil
	r.mu.Unlock()
}
