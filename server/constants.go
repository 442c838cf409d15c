package server

import "github.com/dotside-studios/davi-nfc-service/buildinfo"

// mDNS service discovery constants
var (
	MDNSServiceType = "_davi-nfc._tcp"
	MDNSServiceName = buildinfo.DisplayName
	MDNSDomain      = "local."
)

// HTTP routes
const (
	APIPrefix     = "/api/v1"
	WebSocketPath = "/ws"
	DevicePath    = "/device"
	CACertPath    = "/ca.pem"
)

// CORS configuration
const (
	CORSAllowOrigin  = "*"
	CORSAllowMethods = "GET, POST, DELETE, OPTIONS"
	CORSAllowHeaders = "Content-Type, Authorization"
)

// Default server settings
const (
	DefaultPort         = 18080
	eventStreamBuffer   = 64
	shutdownGracePeriod = 5
)
