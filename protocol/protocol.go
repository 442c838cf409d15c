// Package protocol defines the JSON messages exchanged over the service's
// websocket endpoints.
// This package is designed to be importable without pulling in server dependencies.
package protocol

import "encoding/json"

// WebSocketMessage is the generic message envelope for WebSocket communication.
type WebSocketMessage struct {
	ID      string `json:"id,omitempty"`
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

// WebSocketRequest is for incoming requests from WebSocket clients.
type WebSocketRequest struct {
	ID      string         `json:"id,omitempty"`
	Type    string         `json:"type"`
	Payload map[string]any `json:"payload,omitempty"`
}

// WebSocketResponse is for responses to WebSocket requests.
type WebSocketResponse struct {
	ID      string `json:"id,omitempty"`
	Type    string `json:"type"`
	Success bool   `json:"success"`
	Payload any    `json:"payload,omitempty"`
	Error   string `json:"error,omitempty"`
}

// ResponseType returns the response message type for a request type.
func ResponseType(requestType string) string {
	return requestType + "Response"
}

// Error codes carried in the payload of error responses.
const (
	ErrCodeParseError     = "PARSE_ERROR"
	ErrCodeUnknownType    = "UNKNOWN_TYPE"
	ErrCodeInvalidRequest = "INVALID_REQUEST"
	ErrCodeNotRegistered  = "NOT_REGISTERED"
	ErrCodeInternalError  = "INTERNAL_ERROR"
)

// ErrorPayload is the payload of an error response.
type ErrorPayload struct {
	Code string `json:"code"`
}

// DecodePayload converts a request payload into v.
func DecodePayload(payload map[string]any, v any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}
