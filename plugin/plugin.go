// Package plugin defines the contract between the NFC service and a native
// NFC plugin implementation.
//
// The contract mirrors the callback style of mobile NFC plugins: every call
// takes a success and a failure callback and returns immediately. A plugin
// must implement Plugin; listener families are optional and are discovered
// by type assertion.
//
// Example:
//
//	var p plugin.Plugin = hardware.New(hardware.Config{})
//	caps := plugin.CapabilitiesOf(p)
//	if caps.Has(plugin.KindNdef) {
//	    plugin.AddListener(p, plugin.KindNdef, l, nil, nil)
//	}
package plugin

import (
	"github.com/google/uuid"
)

// Status reasons reported by Plugin.Enabled through its failure callback.
const (
	ReasonEnabled         = "NFC_ENABLED"
	ReasonDisabled        = "NFC_DISABLED"
	ReasonNoNfc           = "NO_NFC"
	ReasonNoNfcOrDisabled = "NO_NFC_OR_NFC_DISABLED"
)

// Callback receives the raw arguments of a native listener invocation.
type Callback func(args ...any)

// Listener is a native listener registration handle.
//
// Plugins key registrations by ID; two Listener values with the same Handle
// but different IDs are different registrations.
type Listener struct {
	ID     string
	Handle Callback
}

// NewListener wraps cb in a Listener with a fresh ID.
func NewListener(cb Callback) *Listener {
	return &Listener{ID: uuid.NewString(), Handle: cb}
}

// Dispatch invokes the listener callback with args.
func (l *Listener) Dispatch(args ...any) {
	if l == nil || l.Handle == nil {
		return
	}
	l.Handle(args...)
}

// Plugin is the minimal native NFC plugin.
type Plugin interface {
	// Enabled reports whether NFC is usable. success is called when NFC is
	// enabled, failure with one of the Reason* constants otherwise.
	Enabled(success func(), failure func(reason string))
}

// TagDiscoveredListeners is implemented by plugins that report every tag.
type TagDiscoveredListeners interface {
	AddTagDiscoveredListener(l *Listener, success func(), failure func(error))
	RemoveTagDiscoveredListener(l *Listener, success func(), failure func(error))
}

// NdefListeners is implemented by plugins that report NDEF formatted tags.
type NdefListeners interface {
	AddNdefListener(l *Listener, success func(), failure func(error))
	RemoveNdefListener(l *Listener, success func(), failure func(error))
}

// NdefFormatableListeners is implemented by plugins that report tags which
// can be formatted for NDEF but carry no NDEF structure yet.
type NdefFormatableListeners interface {
	AddNdefFormatableListener(l *Listener, success func(), failure func(error))
	RemoveNdefFormatableListener(l *Listener, success func(), failure func(error))
}

// MimeTypeListeners is implemented by plugins that report NDEF tags whose
// first record carries a given MIME type.
type MimeTypeListeners interface {
	AddMimeTypeListener(mimeType string, l *Listener, success func(), failure func(error))
	RemoveMimeTypeListener(mimeType string, l *Listener, success func(), failure func(error))
}

// StatusNotifier is optionally implemented by plugins whose NFC status can
// change at runtime, such as a reader being plugged in or a phone
// connecting.
type StatusNotifier interface {
	// StatusChanges returns a channel that signals a possible status change.
	StatusChanges() <-chan struct{}
}

// CapabilityReporter is optionally implemented by plugins that implement
// the listener methods but only support a subset of them at runtime.
type CapabilityReporter interface {
	Capabilities() Capabilities
}

func noop()             {}
func noopFailure(error) {}

func orNoop(success func(), failure func(error)) (func(), func(error)) {
	if success == nil {
		success = noop
	}
	if failure == nil {
		failure = noopFailure
	}
	return success, failure
}

// AddListener registers l for a fixed listener kind. It returns false
// without calling the plugin when the plugin lacks the capability.
func AddListener(p Plugin, kind Kind, l *Listener, success func(), failure func(error)) bool {
	success, failure = orNoop(success, failure)
	switch kind {
	case KindTagDiscovered:
		if t, ok := p.(TagDiscoveredListeners); ok {
			t.AddTagDiscoveredListener(l, success, failure)
			return true
		}
	case KindNdef:
		if t, ok := p.(NdefListeners); ok {
			t.AddNdefListener(l, success, failure)
			return true
		}
	case KindNdefFormatable:
		if t, ok := p.(NdefFormatableListeners); ok {
			t.AddNdefFormatableListener(l, success, failure)
			return true
		}
	}
	return false
}

// RemoveListener unregisters l for a fixed listener kind.
func RemoveListener(p Plugin, kind Kind, l *Listener, success func(), failure func(error)) bool {
	success, failure = orNoop(success, failure)
	switch kind {
	case KindTagDiscovered:
		if t, ok := p.(TagDiscoveredListeners); ok {
			t.RemoveTagDiscoveredListener(l, success, failure)
			return true
		}
	case KindNdef:
		if t, ok := p.(NdefListeners); ok {
			t.RemoveNdefListener(l, success, failure)
			return true
		}
	case KindNdefFormatable:
		if t, ok := p.(NdefFormatableListeners); ok {
			t.RemoveNdefFormatableListener(l, success, failure)
			return true
		}
	}
	return false
}

// AddMimeTypeListener registers l for mimeType if the plugin supports MIME
// listeners.
func AddMimeTypeListener(p Plugin, mimeType string, l *Listener, success func(), failure func(error)) bool {
	success, failure = orNoop(success, failure)
	if t, ok := p.(MimeTypeListeners); ok {
		t.AddMimeTypeListener(mimeType, l, success, failure)
		return true
	}
	return false
}

// RemoveMimeTypeListener unregisters l for mimeType.
func RemoveMimeTypeListener(p Plugin, mimeType string, l *Listener, success func(), failure func(error)) bool {
	success, failure = orNoop(success, failure)
	if t, ok := p.(MimeTypeListeners); ok {
		t.RemoveMimeTypeListener(mimeType, l, success, failure)
		return true
	}
	return false
}
