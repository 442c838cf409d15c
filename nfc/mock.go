package nfc

import (
	"fmt"
	"sync"
)

// MockManager is a test implementation of Manager that simulates NFC device management.
//
// Example:
//
//	manager := &MockManager{
//	    DevicesList: []string{"mock:usb:001"},
//	    MockDevice:  NewMockDevice(),
//	}
//	devices, _ := manager.ListDevices()
type MockManager struct {
	// DevicesList is the list of device strings returned by ListDevices()
	DevicesList []string

	// ListDevicesError, if set, will be returned by ListDevices()
	ListDevicesError error

	// MockDevice is the device returned by OpenDevice()
	// If nil, a new MockDevice will be created
	MockDevice *MockDevice

	// OpenDeviceError, if set, will be returned by OpenDevice()
	OpenDeviceError error

	// CallLog tracks all method calls for verification in tests
	CallLog []string

	changes chan struct{}
	mu      sync.Mutex
}

// NewMockManager creates a new MockManager with one attached device.
func NewMockManager() *MockManager {
	return &MockManager{
		DevicesList: []string{"mock:usb:001"},
		MockDevice:  NewMockDevice(),
		CallLog:     make([]string, 0),
		changes:     make(chan struct{}, 1),
	}
}

// OpenDevice simulates opening an NFC device.
func (m *MockManager) OpenDevice(deviceStr string) (Device, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.CallLog = append(m.CallLog, fmt.Sprintf("OpenDevice(%s)", deviceStr))

	if m.OpenDeviceError != nil {
		return nil, m.OpenDeviceError
	}

	if m.MockDevice == nil {
		m.MockDevice = NewMockDevice()
	}

	m.MockDevice.reopen(deviceStr)
	return m.MockDevice, nil
}

// ListDevices simulates listing available NFC devices.
func (m *MockManager) ListDevices() ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.CallLog = append(m.CallLog, "ListDevices")

	if m.ListDevicesError != nil {
		return nil, m.ListDevicesError
	}

	devicesCopy := make([]string, len(m.DevicesList))
	copy(devicesCopy, m.DevicesList)
	return devicesCopy, nil
}

// SetDevices replaces the attached devices and signals a device change.
func (m *MockManager) SetDevices(devices ...string) {
	m.mu.Lock()
	m.DevicesList = devices
	ch := m.changes
	m.mu.Unlock()

	if ch != nil {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

// DeviceChanges implements DeviceChangeNotifier.
func (m *MockManager) DeviceChanges() <-chan struct{} {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.changes == nil {
		m.changes = make(chan struct{}, 1)
	}
	return m.changes
}

// GetCallLog returns a copy of the call log for verification.
func (m *MockManager) GetCallLog() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	logCopy := make([]string, len(m.CallLog))
	copy(logCopy, m.CallLog)
	return logCopy
}

// MockDevice is a test implementation of Device that simulates NFC hardware.
type MockDevice struct {
	// DeviceName is the simulated device name returned by String()
	DeviceName string

	// DeviceConnection is the simulated connection string returned by Connection()
	DeviceConnection string

	// IsOpen tracks whether the device is currently open
	IsOpen bool

	// InitError, if set, will be returned by InitiatorInit()
	InitError error

	// Tags is the list of tags returned by GetTags()
	Tags []Tag

	// GetTagsError, if set, will be returned by GetTags()
	GetTagsError error

	// CallLog tracks all method calls for verification in tests
	CallLog []string

	mu sync.Mutex
}

// NewMockDevice creates a new MockDevice with default values.
func NewMockDevice() *MockDevice {
	return &MockDevice{
		DeviceName:       "Mock NFC Reader",
		DeviceConnection: "mock:usb:001",
		IsOpen:           true,
		CallLog:          make([]string, 0),
	}
}

func (m *MockDevice) reopen(conn string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if conn != "" {
		m.DeviceConnection = conn
	}
	m.IsOpen = true
}

// Close simulates closing the device.
func (m *MockDevice) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.CallLog = append(m.CallLog, "Close")

	if !m.IsOpen {
		return fmt.Errorf("device already closed")
	}
	m.IsOpen = false
	return nil
}

// InitiatorInit simulates device initialization.
func (m *MockDevice) InitiatorInit() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.CallLog = append(m.CallLog, "InitiatorInit")

	if !m.IsOpen {
		return fmt.Errorf("device not open")
	}
	return m.InitError
}

// String returns the simulated device name.
func (m *MockDevice) String() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.DeviceName
}

// Connection returns the simulated connection string.
func (m *MockDevice) Connection() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.DeviceConnection
}

// GetTags simulates polling the field.
func (m *MockDevice) GetTags() ([]Tag, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.CallLog = append(m.CallLog, "GetTags")

	if !m.IsOpen {
		return nil, NewDeviceIOError("GetTags", fmt.Errorf("device closed"))
	}
	if m.GetTagsError != nil {
		return nil, m.GetTagsError
	}

	tagsCopy := make([]Tag, len(m.Tags))
	copy(tagsCopy, m.Tags)
	return tagsCopy, nil
}

// SetTags sets the tags that will be returned by GetTags().
func (m *MockDevice) SetTags(tags ...Tag) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Tags = tags
}

// SetGetTagsError sets the error returned by GetTags().
func (m *MockDevice) SetGetTagsError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.GetTagsError = err
}

// GetCallLog returns a copy of the call log for verification.
func (m *MockDevice) GetCallLog() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	logCopy := make([]string, len(m.CallLog))
	copy(logCopy, m.CallLog)
	return logCopy
}

// MockTag is a test implementation of Tag.
//
// Example:
//
//	tag := &MockTag{
//	    TagUID:  "04A1B2C3",
//	    TagType: TagTypeMifareUltralight,
//	    Content: NDEFContent{State: NDEFFormatted, Message: msg},
//	}
type MockTag struct {
	// TagUID is the UID returned by UID()
	TagUID string

	// TagType is the type string returned by Type()
	TagType string

	// TagTechnology is returned by Technology()
	TagTechnology string

	// Content is returned by ReadNDEF()
	Content NDEFContent

	// ReadError, if set, will be returned by ReadNDEF()
	ReadError error

	reads int
	mu    sync.Mutex
}

// NewMockNDEFTag creates a formatted mock tag holding records.
func NewMockNDEFTag(uid string, records ...Record) *MockTag {
	return &MockTag{
		TagUID:        uid,
		TagType:       TagTypeMifareUltralight,
		TagTechnology: TechnologyMifareUltralight,
		Content:       NDEFContent{State: NDEFFormatted, Message: EncodeMessage(records)},
	}
}

func (t *MockTag) UID() string        { return t.TagUID }
func (t *MockTag) Type() string       { return t.TagType }
func (t *MockTag) Technology() string { return t.TagTechnology }

// ReadNDEF returns Content or ReadError.
func (t *MockTag) ReadNDEF() (NDEFContent, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.reads++
	if t.ReadError != nil {
		return NDEFContent{}, t.ReadError
	}
	return t.Content, nil
}

// Reads returns how many times ReadNDEF was called.
func (t *MockTag) Reads() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.reads
}
