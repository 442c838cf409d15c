package nfc

// Device represents an NFC reader/writer hardware device.
//
// A Device is obtained from a Manager and polls the field for tags.
//
// Example:
//
//	manager := nfc.NewManager()
//	device, err := manager.OpenDevice("")
//	defer device.Close()
type Device interface {
	Close() error
	InitiatorInit() error
	String() string
	Connection() string
	GetTags() ([]Tag, error)
}
