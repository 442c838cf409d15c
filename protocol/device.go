package protocol

import (
	"time"

	"github.com/dotside-studios/davi-nfc-service/plugin"
)

// Device WebSocket message types (/device).
const (
	DeviceTypeRegister         = "registerDevice"
	DeviceTypeRegisterResponse = "registerDeviceResponse"
	DeviceTypePluginCall       = "pluginCall"
	DeviceTypePluginResult     = "pluginResult"
	DeviceTypeNFCEvent         = "nfcEvent"
	DeviceTypeHeartbeat        = "deviceHeartbeat"
)

// Plugin methods invoked on a remote device through pluginCall.
const (
	MethodEnabled = "enabled"
)

// AddMethod returns the pluginCall method that registers a listener of kind.
func AddMethod(kind plugin.Kind) string {
	return "add" + string(kind)
}

// RemoveMethod returns the pluginCall method that unregisters a listener of kind.
func RemoveMethod(kind plugin.Kind) string {
	return "remove" + string(kind)
}

// DeviceRegistrationRequest is sent by a device to register with the server.
type DeviceRegistrationRequest struct {
	DeviceName   string            `json:"deviceName" validate:"required,max=128"`
	Platform     string            `json:"platform" validate:"required,oneof=ios android"`
	AppVersion   string            `json:"appVersion"`
	Capabilities []string          `json:"capabilities"` // listener kinds, all when empty
	Metadata     map[string]string `json:"metadata"`
}

// DeviceRegistrationResponse is sent by server after successful registration.
type DeviceRegistrationResponse struct {
	DeviceID   string     `json:"deviceID"`
	ServerInfo ServerInfo `json:"serverInfo"`
}

// ServerInfo contains information about the server.
type ServerInfo struct {
	Version        string   `json:"version"`
	SupportedKinds []string `json:"supportedKinds"`
}

// PluginCall asks a device to invoke a method on its native NFC plugin.
// The envelope ID correlates the PluginResult.
type PluginCall struct {
	Method     string `json:"method"`
	ListenerID string `json:"listenerID,omitempty"`
	MimeType   string `json:"mimeType,omitempty"`
}

// PluginResult is a device's answer to a PluginCall. Reason carries the
// plugin's status reason when an enabled call fails.
type PluginResult struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
	Reason  string `json:"reason,omitempty"`
}

// DeviceNFCEvent is sent by a device when one of its native listeners fires.
type DeviceNFCEvent struct {
	Kind     string     `json:"kind" validate:"required"`
	MimeType string     `json:"mimeType,omitempty"`
	Tag      plugin.Tag `json:"tag"`
}

// DeviceHeartbeat is sent by a device periodically.
type DeviceHeartbeat struct {
	DeviceID  string    `json:"deviceID"`
	Timestamp time.Time `json:"timestamp"`
}
