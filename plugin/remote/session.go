package remote

import (
	"sync"
	"time"

	"github.com/dotside-studios/davi-nfc-service/plugin"
	"github.com/dotside-studios/davi-nfc-service/protocol"
	"github.com/gorilla/websocket"
)

// session is one registered device connection.
type session struct {
	id       string
	name     string
	platform string
	caps     plugin.Capabilities

	conn    *websocket.Conn
	writeMu sync.Mutex

	mu       sync.Mutex
	pending  map[string]chan protocol.PluginResult
	lastSeen time.Time

	// forwarded holds the entries sent to the device, so an add racing a
	// replay is forwarded once.
	forwarded map[string]bool

	done      chan struct{}
	closeOnce sync.Once
}

func newSession(id string, req protocol.DeviceRegistrationRequest, conn *websocket.Conn) *session {
	caps := plugin.AllCapabilities()
	if len(req.Capabilities) > 0 {
		caps = plugin.Capabilities{}
		for _, k := range req.Capabilities {
			if kind := plugin.Kind(k); kind.Valid() {
				caps[kind] = true
			}
		}
	}
	return &session{
		id:        id,
		name:      req.DeviceName,
		platform:  req.Platform,
		caps:      caps,
		conn:      conn,
		pending:   make(map[string]chan protocol.PluginResult),
		lastSeen:  time.Now(),
		forwarded: make(map[string]bool),
		done:      make(chan struct{}),
	}
}

func (s *session) write(msg any) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	s.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return s.conn.WriteJSON(msg)
}

func (s *session) touch() {
	s.mu.Lock()
	s.lastSeen = time.Now()
	s.mu.Unlock()
}

func (s *session) idleSince() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSeen
}

func (s *session) expect(id string) chan protocol.PluginResult {
	ch := make(chan protocol.PluginResult, 1)
	s.mu.Lock()
	s.pending[id] = ch
	s.mu.Unlock()
	return ch
}

func (s *session) forget(id string) {
	s.mu.Lock()
	delete(s.pending, id)
	s.mu.Unlock()
}

func entryKey(e plugin.Entry) string {
	return string(e.Kind) + "\x00" + e.MimeType + "\x00" + e.Listener.ID
}

// claim marks e as forwarded. It reports false when e was already claimed.
func (s *session) claim(e plugin.Entry) bool {
	key := entryKey(e)
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.forwarded[key] {
		return false
	}
	s.forwarded[key] = true
	return true
}

func (s *session) release(e plugin.Entry) {
	s.mu.Lock()
	delete(s.forwarded, entryKey(e))
	s.mu.Unlock()
}

// deliver hands a pluginResult to the waiting call. It reports false when
// no call is waiting for id.
func (s *session) deliver(id string, result protocol.PluginResult) bool {
	s.mu.Lock()
	ch, ok := s.pending[id]
	delete(s.pending, id)
	s.mu.Unlock()
	if ok {
		ch <- result
	}
	return ok
}

func (s *session) close() {
	s.closeOnce.Do(func() {
		close(s.done)
		s.conn.Close()
	})
}

func (s *session) closed() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}
