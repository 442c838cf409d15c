package remote

import "time"

// Device connection timing
const (
	DeviceTimeout     = 30 * time.Second // Drop a device after this long without traffic
	HeartbeatInterval = 10 * time.Second // Expected heartbeat period advertised to devices
	CleanupInterval   = 15 * time.Second // How often the session monitor runs
	CallTimeout       = 5 * time.Second  // Wait for a pluginResult
	RegisterTimeout   = 10 * time.Second // Wait for registerDevice after upgrade
	writeTimeout      = 5 * time.Second
)

// DevicePath is the HTTP path devices connect to.
const DevicePath = "/device"

// SourcePrefix prefixes plugin.Tag.Source for tags reported by a device.
const SourcePrefix = "remote:"
