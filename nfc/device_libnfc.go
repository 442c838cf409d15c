package nfc

import (
	"encoding/hex"
	"fmt"
	"log"
	"strings"

	"github.com/clausecker/freefare"
	"github.com/clausecker/nfc/v2"
)

// libnfcDevice implements Device using an actual nfc.Device from libnfc.
type libnfcDevice struct {
	device nfc.Device
}

// NewDevice creates a new Device from an nfc.Device.
func NewDevice(dev nfc.Device) Device {
	return &libnfcDevice{device: dev}
}

func (d *libnfcDevice) Close() error {
	return d.device.Close()
}

func (d *libnfcDevice) InitiatorInit() error {
	if err := d.device.InitiatorInit(); err != nil {
		return NewDeviceOpenError("InitiatorInit", d.device.Connection(), err)
	}
	return nil
}

func (d *libnfcDevice) String() string {
	return d.device.String()
}

func (d *libnfcDevice) Connection() string {
	return d.device.Connection()
}

// GetTags polls the field once. Tags freefare knows how to drive come first;
// remaining ISO14443-4 targets are reported without NDEF access.
func (d *libnfcDevice) GetTags() ([]Tag, error) {
	var found []Tag
	seen := make(map[string]bool)

	ffTags, ffErr := freefare.GetTags(d.device)
	if ffErr != nil {
		log.Printf("[nfc] freefare.GetTags: %v", ffErr)
	}
	for _, ffTag := range ffTags {
		uid := strings.ToUpper(ffTag.UID())
		if seen[uid] {
			continue
		}
		seen[uid] = true

		switch t := ffTag.(type) {
		case freefare.ClassicTag:
			found = append(found, newClassicTag(t))
		case freefare.UltralightTag:
			found = append(found, newUltralightTag(t))
		case freefare.DESFireTag:
			found = append(found, newPassiveTag(uid, TagTypeMifareDesfire, TechnologyIsoDep))
		default:
			found = append(found, newPassiveTag(uid, TagTypeUnknown, TechnologyNfcA))
		}
	}

	modulation := nfc.Modulation{Type: nfc.ISO14443a, BaudRate: nfc.Nbr106}
	targets, listErr := d.device.InitiatorListPassiveTargets(modulation)
	if listErr != nil {
		if ffErr != nil && len(found) == 0 {
			return nil, NewDeviceIOError("GetTags", fmt.Errorf("freefare: %v, passive targets: %w", ffErr, listErr))
		}
		log.Printf("[nfc] listing passive targets: %v", listErr)
		return found, nil
	}

	for _, target := range targets {
		isoA, ok := target.(*nfc.ISO14443aTarget)
		if !ok || isoA.UIDLen <= 0 || int(isoA.UIDLen) > len(isoA.UID) {
			continue
		}
		uid := strings.ToUpper(hex.EncodeToString(isoA.UID[:isoA.UIDLen]))
		if seen[uid] {
			continue
		}
		seen[uid] = true

		// SAK bit 6 marks ISO14443-4 compliance.
		if isoA.Sak&0x20 != 0 {
			found = append(found, newPassiveTag(uid, TagTypeISO14443_4, TechnologyIsoDep))
		} else {
			found = append(found, newPassiveTag(uid, TagTypeUnknown, TechnologyNfcA))
		}
	}

	return found, nil
}
