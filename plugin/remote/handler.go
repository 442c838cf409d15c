package remote

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/dotside-studios/davi-nfc-service/plugin"
	"github.com/dotside-studios/davi-nfc-service/protocol"
	"github.com/dotside-studios/davi-nfc-service/server"
)

// IsDeviceConnection checks if the request is a device connection.
func IsDeviceConnection(r *http.Request) bool {
	return r.URL.Path == DevicePath ||
		r.Header.Get("X-Device-Mode") == "true" ||
		r.URL.Query().Get("mode") == "device"
}

// Register attaches the device endpoint and the session monitor to s.
func (p *Plugin) Register(s server.HandlerServer) {
	s.HandleWebSocket(IsDeviceConnection, func(w http.ResponseWriter, r *http.Request) bool {
		p.HandleWebSocket(w, r)
		return true
	})
	s.StartLifecycle(p.monitor)
}

// monitor drops devices that stopped sending heartbeats.
func (p *Plugin) monitor(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(CleanupInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				p.expire(now)
			}
		}
	}()
}

// HandleWebSocket upgrades a device connection, registers it and serves it
// until it disconnects. Only one device is served at a time.
func (p *Plugin) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	p.mu.Lock()
	busy := p.session != nil
	closed := p.closed
	p.mu.Unlock()
	if closed {
		http.Error(w, "Plugin closed", http.StatusServiceUnavailable)
		return
	}
	if busy {
		p.logger.Printf("Device connection from %s rejected: a device is already registered", r.RemoteAddr)
		http.Error(w, "A device is already connected", http.StatusConflict)
		return
	}

	conn, err := p.upgrader.Upgrade(w, r, nil)
	if err != nil {
		p.logger.Printf("WebSocket upgrade error: %v", err)
		return
	}

	s, entries, err := p.register(conn)
	if err != nil {
		p.logger.Printf("Device registration from %s failed: %v", r.RemoteAddr, err)
		conn.Close()
		return
	}
	defer p.disconnect(s, "connection closed")

	go p.replay(s, entries)
	p.readLoop(s)
}

// register reads the registerDevice handshake and claims the session slot.
// It returns the listeners registered before the claim; later ones are
// forwarded by add.
func (p *Plugin) register(conn *websocket.Conn) (*session, []plugin.Entry, error) {
	conn.SetReadDeadline(time.Now().Add(RegisterTimeout))
	var req protocol.WebSocketRequest
	if err := conn.ReadJSON(&req); err != nil {
		return nil, nil, fmt.Errorf("reading registration: %w", err)
	}
	conn.SetReadDeadline(time.Time{})

	if req.Type != protocol.DeviceTypeRegister {
		sendError(conn, req.ID, protocol.ErrCodeNotRegistered, "First message must be "+protocol.DeviceTypeRegister)
		return nil, nil, fmt.Errorf("unexpected first message %q", req.Type)
	}

	var reg protocol.DeviceRegistrationRequest
	if err := protocol.DecodePayload(req.Payload, &reg); err != nil {
		sendError(conn, req.ID, protocol.ErrCodeInvalidRequest, "Invalid registration payload")
		return nil, nil, err
	}
	if err := p.validate.Struct(reg); err != nil {
		sendError(conn, req.ID, protocol.ErrCodeInvalidRequest, err.Error())
		return nil, nil, err
	}

	s := newSession(uuid.NewString(), reg, conn)

	p.mu.Lock()
	if p.session != nil {
		p.mu.Unlock()
		sendError(conn, req.ID, protocol.ErrCodeInvalidRequest, "A device is already connected")
		return nil, nil, fmt.Errorf("session already claimed")
	}
	p.session = s
	entries := p.registry.Entries()
	p.mu.Unlock()

	resp := protocol.WebSocketResponse{
		ID:      req.ID,
		Type:    protocol.DeviceTypeRegisterResponse,
		Success: true,
		Payload: protocol.DeviceRegistrationResponse{DeviceID: s.id, ServerInfo: serverInfo()},
	}
	if err := s.write(resp); err != nil {
		p.disconnect(s, "registration reply failed")
		return nil, nil, err
	}

	p.logger.Printf("Device registered: %s (%s, %s)", s.name, reg.Platform, reg.AppVersion)
	p.signalStatus()
	return s, entries, nil
}

func (p *Plugin) readLoop(s *session) {
	for {
		var msg struct {
			ID      string          `json:"id"`
			Type    string          `json:"type"`
			Payload json.RawMessage `json:"payload"`
		}
		if err := s.conn.ReadJSON(&msg); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) && !s.closed() {
				p.logger.Printf("Device %s read error: %v", s.name, err)
			}
			return
		}
		s.touch()

		switch msg.Type {
		case protocol.DeviceTypePluginResult:
			var result protocol.PluginResult
			if err := json.Unmarshal(msg.Payload, &result); err != nil {
				p.replyError(s, msg.ID, protocol.ErrCodeInvalidRequest, "Invalid pluginResult payload")
				continue
			}
			if !s.deliver(msg.ID, result) {
				p.logger.Printf("Dropping late pluginResult %s from %s", msg.ID, s.name)
			}

		case protocol.DeviceTypeNFCEvent:
			var ev protocol.DeviceNFCEvent
			if err := json.Unmarshal(msg.Payload, &ev); err != nil {
				p.replyError(s, msg.ID, protocol.ErrCodeInvalidRequest, "Invalid nfcEvent payload")
				continue
			}
			if _, err := p.dispatch(s, ev); err != nil {
				p.replyError(s, msg.ID, protocol.ErrCodeInvalidRequest, err.Error())
			}

		case protocol.DeviceTypeHeartbeat:
			// lastSeen already updated

		default:
			p.replyError(s, msg.ID, protocol.ErrCodeUnknownType, fmt.Sprintf("Unknown message type: %s", msg.Type))
		}
	}
}

func (p *Plugin) replyError(s *session, id, code, message string) {
	msg := errorResponse(id, code, message)
	if err := s.write(msg); err != nil {
		p.logger.Printf("Failed to send error to %s: %v", s.name, err)
	}
}

func errorResponse(id, code, message string) protocol.WebSocketResponse {
	return protocol.WebSocketResponse{
		ID:      id,
		Type:    protocol.WSTypeError,
		Success: false,
		Error:   message,
		Payload: protocol.ErrorPayload{Code: code},
	}
}

// sendError writes an error before a session exists.
func sendError(conn *websocket.Conn, id, code, message string) {
	conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	conn.WriteJSON(errorResponse(id, code, message))
}
