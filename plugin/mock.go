package plugin

import (
	"fmt"
	"strings"
	"sync"
)

type pendingEnabled struct {
	success func()
	failure func(reason string)
}

// MockPlugin is a test implementation of every plugin interface.
//
// Enabled calls are held until ResolveEnabled or RejectEnabled is called,
// unless EnabledFunc is set. Listener registrations are recorded and can be
// fired with Fire and FireMimeType.
//
// Example:
//
//	mock := plugin.NewMockPlugin()
//	mock.Supported = plugin.Capabilities{plugin.KindNdef: true}
//	svc := nfcservice.New(mock, nfcservice.Config{})
//	mock.Fire(plugin.KindNdef, event)
type MockPlugin struct {
	// Supported narrows the reported capabilities. Nil means all kinds.
	Supported Capabilities

	// EnabledFunc, if set, answers Enabled calls directly.
	EnabledFunc func(success func(), failure func(reason string))

	// AddError, if set, is passed to the failure callback of every add call
	// and the listener is not registered.
	AddError error

	// RemoveError, if set, is passed to the failure callback of every
	// remove call. The listener is still removed.
	RemoveError error

	// CallLog tracks all method calls for verification in tests
	CallLog []string

	registry     *Registry
	pending      []pendingEnabled
	enabledCalls int
	mu           sync.Mutex
}

// NewMockPlugin creates a MockPlugin supporting every listener kind.
func NewMockPlugin() *MockPlugin {
	return &MockPlugin{
		registry: NewRegistry(),
		CallLog:  make([]string, 0),
	}
}

func (m *MockPlugin) log(format string, args ...any) {
	m.mu.Lock()
	m.CallLog = append(m.CallLog, fmt.Sprintf(format, args...))
	m.mu.Unlock()
}

// Capabilities implements CapabilityReporter.
func (m *MockPlugin) Capabilities() Capabilities {
	if m.Supported == nil {
		return AllCapabilities()
	}
	return m.Supported
}

// Enabled records the call and either answers it through EnabledFunc or
// holds it until it is resolved.
func (m *MockPlugin) Enabled(success func(), failure func(reason string)) {
	m.mu.Lock()
	m.CallLog = append(m.CallLog, "Enabled")
	m.enabledCalls++
	fn := m.EnabledFunc
	if fn == nil {
		m.pending = append(m.pending, pendingEnabled{success: success, failure: failure})
	}
	m.mu.Unlock()

	if fn != nil {
		fn(success, failure)
	}
}

func (m *MockPlugin) takePending() []pendingEnabled {
	m.mu.Lock()
	defer m.mu.Unlock()
	p := m.pending
	m.pending = nil
	return p
}

// ResolveEnabled answers every held Enabled call with success.
func (m *MockPlugin) ResolveEnabled() int {
	p := m.takePending()
	for _, c := range p {
		c.success()
	}
	return len(p)
}

// RejectEnabled answers every held Enabled call with reason.
func (m *MockPlugin) RejectEnabled(reason string) int {
	p := m.takePending()
	for _, c := range p {
		c.failure(reason)
	}
	return len(p)
}

// EnabledCalls returns how many times Enabled was called.
func (m *MockPlugin) EnabledCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.enabledCalls
}

// PendingEnabled returns the number of unanswered Enabled calls.
func (m *MockPlugin) PendingEnabled() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.pending)
}

func (m *MockPlugin) add(kind Kind, mimeType string, l *Listener, success func(), failure func(error)) {
	if mimeType != "" {
		m.log("Add%s(%s)", kind, mimeType)
	} else {
		m.log("Add%s", kind)
	}
	if m.AddError != nil {
		failure(m.AddError)
		return
	}
	m.registry.Add(kind, mimeType, l)
	success()
}

func (m *MockPlugin) remove(kind Kind, mimeType string, l *Listener, success func(), failure func(error)) {
	if mimeType != "" {
		m.log("Remove%s(%s)", kind, mimeType)
	} else {
		m.log("Remove%s", kind)
	}
	m.registry.Remove(kind, mimeType, l)
	if m.RemoveError != nil {
		failure(m.RemoveError)
		return
	}
	success()
}

func (m *MockPlugin) AddTagDiscoveredListener(l *Listener, success func(), failure func(error)) {
	m.add(KindTagDiscovered, "", l, success, failure)
}

func (m *MockPlugin) RemoveTagDiscoveredListener(l *Listener, success func(), failure func(error)) {
	m.remove(KindTagDiscovered, "", l, success, failure)
}

func (m *MockPlugin) AddNdefListener(l *Listener, success func(), failure func(error)) {
	m.add(KindNdef, "", l, success, failure)
}

func (m *MockPlugin) RemoveNdefListener(l *Listener, success func(), failure func(error)) {
	m.remove(KindNdef, "", l, success, failure)
}

func (m *MockPlugin) AddNdefFormatableListener(l *Listener, success func(), failure func(error)) {
	m.add(KindNdefFormatable, "", l, success, failure)
}

func (m *MockPlugin) RemoveNdefFormatableListener(l *Listener, success func(), failure func(error)) {
	m.remove(KindNdefFormatable, "", l, success, failure)
}

func (m *MockPlugin) AddMimeTypeListener(mimeType string, l *Listener, success func(), failure func(error)) {
	m.add(KindMimeType, mimeType, l, success, failure)
}

func (m *MockPlugin) RemoveMimeTypeListener(mimeType string, l *Listener, success func(), failure func(error)) {
	m.remove(KindMimeType, mimeType, l, success, failure)
}

// Registry exposes the recorded registrations.
func (m *MockPlugin) Registry() *Registry {
	return m.registry
}

// Fire dispatches args to every listener registered for a fixed kind and
// returns how many were called.
func (m *MockPlugin) Fire(kind Kind, args ...any) int {
	ls := m.registry.Listeners(kind)
	for _, l := range ls {
		l.Dispatch(args...)
	}
	return len(ls)
}

// FireMimeType dispatches args to every MIME listener matching mimeType.
func (m *MockPlugin) FireMimeType(mimeType string, args ...any) int {
	ls := m.registry.MimeListeners(mimeType)
	for _, l := range ls {
		l.Dispatch(args...)
	}
	return len(ls)
}

// GetCallLog returns a copy of the call log for verification.
func (m *MockPlugin) GetCallLog() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	logCopy := make([]string, len(m.CallLog))
	copy(logCopy, m.CallLog)
	return logCopy
}

// CountCalls returns how many logged calls start with prefix.
func (m *MockPlugin) CountCalls(prefix string) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := 0
	for _, c := range m.CallLog {
		if strings.HasPrefix(c, prefix) {
			n++
		}
	}
	return n
}

// ClearCallLog clears the call log.
func (m *MockPlugin) ClearCallLog() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.CallLog = make([]string, 0)
}

// EnabledOnlyPlugin is a plugin with no listener capabilities.
type EnabledOnlyPlugin struct {
	Reason string
}

// Enabled succeeds when Reason is empty or ReasonEnabled and fails with
// Reason otherwise.
func (p EnabledOnlyPlugin) Enabled(success func(), failure func(reason string)) {
	if p.Reason == "" || p.Reason == ReasonEnabled {
		success()
		return
	}
	failure(p.Reason)
}
