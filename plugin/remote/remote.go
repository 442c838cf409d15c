// Package remote implements the NFC plugin contract by forwarding plugin
// calls to a phone running a native NFC plugin over a websocket.
//
// A device connects to DevicePath, registers with registerDevice and then
// answers pluginCall messages with pluginResult messages. Native listener
// invocations arrive as nfcEvent messages and are dispatched to the
// listeners registered on the host. Listeners registered while no device is
// connected, or that a device failed to add, are kept and replayed when a
// device registers.
//
// Example:
//
//	p := remote.New(remote.Config{})
//	p.Register(srv) // srv is a *server.Server
//	svc := nfcservice.New(p, nfcservice.Config{})
package remote

import (
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/dotside-studios/davi-nfc-service/buildinfo"
	"github.com/dotside-studios/davi-nfc-service/plugin"
	"github.com/dotside-studios/davi-nfc-service/protocol"
)

// ErrNotConnected is returned when a call needs a device and none is registered.
var ErrNotConnected = errors.New("no device connected")

// Config configures a remote Plugin.
type Config struct {
	// CallTimeout bounds how long a pluginCall waits for its result.
	CallTimeout time.Duration

	// DeviceTimeout drops a device that sent nothing for this long.
	DeviceTimeout time.Duration

	Logger *log.Logger
}

// DeviceInfo describes the registered device.
type DeviceInfo struct {
	ID       string    `json:"id"`
	Name     string    `json:"name"`
	Platform string    `json:"platform"`
	LastSeen time.Time `json:"lastSeen"`
}

// Plugin is a plugin.Plugin whose native side runs on a remote device.
type Plugin struct {
	registry      *plugin.Registry
	logger        *log.Logger
	callTimeout   time.Duration
	deviceTimeout time.Duration
	upgrader      websocket.Upgrader
	validate      *validator.Validate

	mu      sync.Mutex
	session *session
	closed  bool

	statusChan chan struct{}
}

// New creates a remote plugin with no device attached.
func New(cfg Config) *Plugin {
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = CallTimeout
	}
	if cfg.DeviceTimeout <= 0 {
		cfg.DeviceTimeout = DeviceTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = log.New(os.Stderr, "[remote] ", log.LstdFlags)
	}

	return &Plugin{
		registry:      plugin.NewRegistry(),
		logger:        cfg.Logger,
		callTimeout:   cfg.CallTimeout,
		deviceTimeout: cfg.DeviceTimeout,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true // Devices connect from native apps
			},
		},
		validate:   validator.New(),
		statusChan: make(chan struct{}, 1),
	}
}

func (p *Plugin) current() *session {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.session
}

// Connected reports whether a device is registered.
func (p *Plugin) Connected() bool {
	return p.current() != nil
}

// Device returns the registered device, if any.
func (p *Plugin) Device() (DeviceInfo, bool) {
	s := p.current()
	if s == nil {
		return DeviceInfo{}, false
	}
	return DeviceInfo{ID: s.id, Name: s.name, Platform: s.platform, LastSeen: s.idleSince()}, true
}

// StatusChanges implements plugin.StatusNotifier. It signals when a device
// registers or disconnects.
func (p *Plugin) StatusChanges() <-chan struct{} {
	return p.statusChan
}

func (p *Plugin) signalStatus() {
	select {
	case p.statusChan <- struct{}{}:
	default:
	}
}

// call sends a pluginCall to s and waits for the matching result.
func (p *Plugin) call(s *session, req protocol.PluginCall) (protocol.PluginResult, error) {
	id := uuid.NewString()
	ch := s.expect(id)
	defer s.forget(id)

	msg := protocol.WebSocketMessage{ID: id, Type: protocol.DeviceTypePluginCall, Payload: req}
	if err := s.write(msg); err != nil {
		return protocol.PluginResult{}, fmt.Errorf("%s: write failed: %w", req.Method, err)
	}

	timer := time.NewTimer(p.callTimeout)
	defer timer.Stop()

	select {
	case result := <-ch:
		return result, nil
	case <-s.done:
		return protocol.PluginResult{}, fmt.Errorf("%s: %w", req.Method, ErrNotConnected)
	case <-timer.C:
		return protocol.PluginResult{}, fmt.Errorf("%s: %w", req.Method, plugin.ErrTimeout)
	}
}

// Enabled asks the device's native plugin. Without a device, or when the
// call fails, it reports NO_NFC.
func (p *Plugin) Enabled(success func(), failure func(reason string)) {
	s := p.current()
	if s == nil {
		go failure(plugin.ReasonNoNfc)
		return
	}

	go func() {
		result, err := p.call(s, protocol.PluginCall{Method: protocol.MethodEnabled})
		switch {
		case err != nil:
			p.logger.Printf("Enabled call to %s failed: %v", s.name, err)
			failure(plugin.ReasonNoNfc)
		case result.Success:
			success()
		case result.Reason != "":
			failure(result.Reason)
		default:
			failure(plugin.ReasonNoNfc)
		}
	}()
}

// forward sends an add or remove call for one registration to s.
func (p *Plugin) forward(s *session, method string, e plugin.Entry) error {
	if !s.caps.Has(e.Kind) {
		return plugin.NewError(method, "", fmt.Errorf("device %s does not support %s", s.name, e.Kind))
	}
	result, err := p.call(s, protocol.PluginCall{Method: method, ListenerID: e.Listener.ID, MimeType: e.MimeType})
	if err != nil {
		return plugin.NewError(method, plugin.ReasonNoNfc, err)
	}
	if !result.Success {
		return plugin.NewError(method, result.Reason, errors.New(result.Error))
	}
	return nil
}

func (p *Plugin) add(kind plugin.Kind, mimeType string, l *plugin.Listener, success func(), failure func(error)) {
	method := protocol.AddMethod(kind)
	if l == nil {
		failure(plugin.NewError(method, "", errors.New("listener is nil")))
		return
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		failure(plugin.NewError(method, "", plugin.ErrClosed))
		return
	}
	p.registry.Add(kind, mimeType, l)
	s := p.session
	p.mu.Unlock()

	if s == nil {
		success()
		return
	}

	// A failed forward keeps the host-side entry so the listener is
	// replayed to the next device that registers.
	go func() {
		entry := plugin.Entry{Kind: kind, MimeType: mimeType, Listener: l}
		if !s.claim(entry) {
			success()
			return
		}
		if err := p.forward(s, method, entry); err != nil {
			s.release(entry)
			failure(err)
			return
		}
		success()
	}()
}

func (p *Plugin) remove(kind plugin.Kind, mimeType string, l *plugin.Listener, success func(), failure func(error)) {
	method := protocol.RemoveMethod(kind)
	if l == nil {
		failure(plugin.NewError(method, "", errors.New("listener is nil")))
		return
	}

	p.registry.Remove(kind, mimeType, l)
	s := p.current()
	if s == nil {
		success()
		return
	}

	go func() {
		entry := plugin.Entry{Kind: kind, MimeType: mimeType, Listener: l}
		s.release(entry)
		if err := p.forward(s, method, entry); err != nil {
			failure(err)
			return
		}
		success()
	}()
}

func (p *Plugin) AddTagDiscoveredListener(l *plugin.Listener, success func(), failure func(error)) {
	p.add(plugin.KindTagDiscovered, "", l, success, failure)
}

func (p *Plugin) RemoveTagDiscoveredListener(l *plugin.Listener, success func(), failure func(error)) {
	p.remove(plugin.KindTagDiscovered, "", l, success, failure)
}

func (p *Plugin) AddNdefListener(l *plugin.Listener, success func(), failure func(error)) {
	p.add(plugin.KindNdef, "", l, success, failure)
}

func (p *Plugin) RemoveNdefListener(l *plugin.Listener, success func(), failure func(error)) {
	p.remove(plugin.KindNdef, "", l, success, failure)
}

func (p *Plugin) AddNdefFormatableListener(l *plugin.Listener, success func(), failure func(error)) {
	p.add(plugin.KindNdefFormatable, "", l, success, failure)
}

func (p *Plugin) RemoveNdefFormatableListener(l *plugin.Listener, success func(), failure func(error)) {
	p.remove(plugin.KindNdefFormatable, "", l, success, failure)
}

func (p *Plugin) AddMimeTypeListener(mimeType string, l *plugin.Listener, success func(), failure func(error)) {
	p.add(plugin.KindMimeType, mimeType, l, success, failure)
}

func (p *Plugin) RemoveMimeTypeListener(mimeType string, l *plugin.Listener, success func(), failure func(error)) {
	p.remove(plugin.KindMimeType, mimeType, l, success, failure)
}

// replay registers entries on a newly registered device. Entries already
// forwarded to s are skipped.
func (p *Plugin) replay(s *session, entries []plugin.Entry) {
	for _, e := range entries {
		if !s.claim(e) {
			continue
		}
		if err := p.forward(s, protocol.AddMethod(e.Kind), e); err != nil {
			s.release(e)
			p.logger.Printf("Replaying %s for %s failed: %v", e.Kind, s.name, err)
		}
	}
}

// dispatch delivers a device nfcEvent to the matching listeners and
// returns how many were called.
func (p *Plugin) dispatch(s *session, ev protocol.DeviceNFCEvent) (int, error) {
	kind := plugin.Kind(ev.Kind)
	if !kind.Valid() {
		return 0, fmt.Errorf("unknown listener kind %q", ev.Kind)
	}

	tag := ev.Tag
	if tag.Source == "" {
		tag.Source = SourcePrefix + s.name
	}
	if tag.ScannedAt.IsZero() {
		tag.ScannedAt = time.Now()
	}

	var listeners []*plugin.Listener
	var eventType string
	switch kind {
	case plugin.KindTagDiscovered:
		listeners, eventType = p.registry.Listeners(kind), plugin.EventTypeTag
	case plugin.KindNdef:
		listeners, eventType = p.registry.Listeners(kind), plugin.EventTypeNdef
	case plugin.KindNdefFormatable:
		listeners, eventType = p.registry.Listeners(kind), plugin.EventTypeNdefFormatable
	case plugin.KindMimeType:
		mime := ev.MimeType
		if mime == "" {
			mime = tag.MimeType()
		}
		listeners, eventType = p.registry.MimeListeners(mime), plugin.EventTypeNdefMime
	}

	for _, l := range listeners {
		l.Dispatch(plugin.TagEvent{Type: eventType, Tag: tag})
	}
	return len(listeners), nil
}

// serverInfo is sent to a device after it registers.
func serverInfo() protocol.ServerInfo {
	kinds := plugin.AllCapabilities().Kinds()
	names := make([]string, len(kinds))
	for i, k := range kinds {
		names[i] = string(k)
	}
	return protocol.ServerInfo{Version: buildinfo.Version, SupportedKinds: names}
}

// disconnect drops s if it is still the active session.
func (p *Plugin) disconnect(s *session, reason string) {
	p.mu.Lock()
	active := p.session == s
	if active {
		p.session = nil
	}
	p.mu.Unlock()

	s.close()
	if active {
		p.logger.Printf("Device disconnected: %s (%s)", s.name, reason)
		p.signalStatus()
	}
}

// expire drops the session when the device has gone silent.
func (p *Plugin) expire(now time.Time) bool {
	s := p.current()
	if s == nil || now.Sub(s.idleSince()) < p.deviceTimeout {
		return false
	}
	p.disconnect(s, "timed out")
	return true
}

// Close disconnects the device and drops every listener.
func (p *Plugin) Close() error {
	p.mu.Lock()
	p.closed = true
	s := p.session
	p.mu.Unlock()

	if s != nil {
		p.disconnect(s, "plugin closed")
	}
	p.registry.Clear()
	return nil
}
