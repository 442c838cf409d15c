package nfc

import (
	"fmt"
	"time"

	"github.com/clausecker/nfc/v2"
)

// defaultManager implements Manager using libnfc and freefare libraries.
type defaultManager struct{}

func (m *defaultManager) OpenDevice(deviceStr string) (Device, error) {
	dev, err := nfc.Open(deviceStr)
	if err != nil {
		return nil, NewDeviceOpenError("OpenDevice", deviceStr, err)
	}
	return NewDevice(dev), nil
}

func (m *defaultManager) ListDevices() ([]string, error) {
	var devices []string
	var err error
	for i := 0; i < DeviceEnumRetries; i++ {
		devices, err = nfc.ListDevices()
		if err == nil {
			return devices, nil
		}
		time.Sleep(DeviceEnumRetryDelay)
	}
	return nil, NewNoDeviceError("ListDevices", fmt.Errorf("after %d retries: %w", DeviceEnumRetries, err))
}
