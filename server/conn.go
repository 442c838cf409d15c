package server

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/dotside-studios/davi-nfc-service/protocol"
)

const writeTimeout = 5 * time.Second

// Conn is a consumer websocket connection. Writes are serialized so
// handlers and broadcasts can share it.
type Conn struct {
	ws *websocket.Conn
	mu sync.Mutex
}

func newConn(ws *websocket.Conn) *Conn {
	return &Conn{ws: ws}
}

// WriteJSON writes v as one text frame.
func (c *Conn) WriteJSON(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ws.SetWriteDeadline(time.Now().Add(writeTimeout))
	return c.ws.WriteJSON(v)
}

// RemoteAddr returns the peer address.
func (c *Conn) RemoteAddr() string {
	return c.ws.RemoteAddr().String()
}

// Close closes the underlying connection.
func (c *Conn) Close() error {
	return c.ws.Close()
}

// Respond sends a successful response to req.
func (c *Conn) Respond(req protocol.WebSocketRequest, payload any) error {
	return c.WriteJSON(protocol.WebSocketResponse{
		ID:      req.ID,
		Type:    protocol.ResponseType(req.Type),
		Success: true,
		Payload: payload,
	})
}

// SendError sends a structured error response.
func (c *Conn) SendError(requestID, code, message string) error {
	return c.WriteJSON(protocol.WebSocketResponse{
		ID:      requestID,
		Type:    protocol.WSTypeError,
		Success: false,
		Error:   message,
		Payload: protocol.ErrorPayload{Code: code},
	})
}
