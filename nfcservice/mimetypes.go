package nfcservice

import (
	"fmt"
	"strings"
	"sync"
)

// MimeTypeList is the ordered list of MIME types the service listens for.
// Every structural change notifies the owning service, which then
// reconciles its native MIME listeners with the list contents.
type MimeTypeList struct {
	mu       sync.RWMutex
	values   []string
	onChange func()
}

func newMimeTypeList(onChange func()) *MimeTypeList {
	return &MimeTypeList{onChange: onChange}
}

func (l *MimeTypeList) changed() {
	if l.onChange != nil {
		l.onChange()
	}
}

// Values returns a copy of the list.
func (l *MimeTypeList) Values() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return append([]string(nil), l.values...)
}

// Len returns the number of entries.
func (l *MimeTypeList) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.values)
}

// At returns the entry at i.
func (l *MimeTypeList) At(i int) (string, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if i < 0 || i >= len(l.values) {
		return "", false
	}
	return l.values[i], true
}

// Contains reports whether mimeType is in the list, ignoring case.
func (l *MimeTypeList) Contains(mimeType string) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	for _, v := range l.values {
		if strings.EqualFold(v, mimeType) {
			return true
		}
	}
	return false
}

// Set replaces the list contents.
func (l *MimeTypeList) Set(mimeTypes ...string) {
	l.mu.Lock()
	l.values = append([]string(nil), mimeTypes...)
	l.mu.Unlock()
	l.changed()
}

// Push appends entries to the end of the list.
func (l *MimeTypeList) Push(mimeTypes ...string) {
	if len(mimeTypes) == 0 {
		return
	}
	l.mu.Lock()
	l.values = append(l.values, mimeTypes...)
	l.mu.Unlock()
	l.changed()
}

// AddIfAbsent appends mimeType unless an entry equal to it, ignoring case,
// is already present. It reports whether the list changed.
func (l *MimeTypeList) AddIfAbsent(mimeType string) bool {
	l.mu.Lock()
	for _, v := range l.values {
		if strings.EqualFold(v, mimeType) {
			l.mu.Unlock()
			return false
		}
	}
	l.values = append(l.values, mimeType)
	l.mu.Unlock()
	l.changed()
	return true
}

// InsertAt inserts entries before index i. i may equal Len.
func (l *MimeTypeList) InsertAt(i int, mimeTypes ...string) error {
	l.mu.Lock()
	if i < 0 || i > len(l.values) {
		n := len(l.values)
		l.mu.Unlock()
		return fmt.Errorf("insert index %d out of range [0,%d]", i, n)
	}
	if len(mimeTypes) == 0 {
		l.mu.Unlock()
		return nil
	}
	values := make([]string, 0, len(l.values)+len(mimeTypes))
	values = append(values, l.values[:i]...)
	values = append(values, mimeTypes...)
	values = append(values, l.values[i:]...)
	l.values = values
	l.mu.Unlock()
	l.changed()
	return nil
}

// RemoveAt deletes the entry at index i and returns it.
func (l *MimeTypeList) RemoveAt(i int) (string, error) {
	l.mu.Lock()
	if i < 0 || i >= len(l.values) {
		n := len(l.values)
		l.mu.Unlock()
		return "", fmt.Errorf("remove index %d out of range [0,%d)", i, n)
	}
	removed := l.values[i]
	l.values = append(l.values[:i:i], l.values[i+1:]...)
	l.mu.Unlock()
	l.changed()
	return removed, nil
}

// Remove deletes every entry equal to mimeType, ignoring case, and returns
// how many were removed.
func (l *MimeTypeList) Remove(mimeType string) int {
	l.mu.Lock()
	kept := make([]string, 0, len(l.values))
	for _, v := range l.values {
		if !strings.EqualFold(v, mimeType) {
			kept = append(kept, v)
		}
	}
	removed := len(l.values) - len(kept)
	if removed > 0 {
		l.values = kept
	}
	l.mu.Unlock()
	if removed > 0 {
		l.changed()
	}
	return removed
}

// Clear empties the list.
func (l *MimeTypeList) Clear() {
	l.mu.Lock()
	had := len(l.values) > 0
	l.values = nil
	l.mu.Unlock()
	if had {
		l.changed()
	}
}

// normalizeMimeTypes lowercases and trims values, dropping empty entries
// and case-insensitive duplicates while keeping first-seen order.
func normalizeMimeTypes(values []string) (normalized []string, empty int) {
	seen := make(map[string]bool, len(values))
	for _, v := range values {
		m := strings.ToLower(strings.TrimSpace(v))
		if m == "" {
			empty++
			continue
		}
		if seen[m] {
			continue
		}
		seen[m] = true
		normalized = append(normalized, m)
	}
	return normalized, empty
}
