package nfc

import "time"

// Tag type names reported by Tag.Type.
const (
	TagTypeMifareClassic1K   = "MIFARE Classic 1K"
	TagTypeMifareClassic4K   = "MIFARE Classic 4K"
	TagTypeMifareUltralight  = "MIFARE Ultralight"
	TagTypeMifareUltralightC = "MIFARE Ultralight C"
	TagTypeMifareDesfire     = "MIFARE DESFire"
	TagTypeISO14443_4        = "ISO14443-4"
	TagTypeUnknown           = "Unknown"
)

// Technology names reported by Tag.Technology, using the Android tech
// class names phone clients send.
const (
	TechnologyMifareClassic    = "android.nfc.tech.MifareClassic"
	TechnologyMifareUltralight = "android.nfc.tech.MifareUltralight"
	TechnologyNfcA             = "android.nfc.tech.NfcA"
	TechnologyIsoDep           = "android.nfc.tech.IsoDep"
)

// MIFARE Classic keys
var (
	// FactoryKey is the key of a blank MIFARE Classic tag.
	FactoryKey = [6]byte{0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF}
	// PublicKey is the NFC Forum key A of NDEF sectors.
	PublicKey = [6]byte{0xD3, 0xF7, 0xD3, 0xF7, 0xD3, 0xF7}
	// MADKey is the key A of the MIFARE Application Directory sector.
	MADKey = [6]byte{0xA0, 0xA1, 0xA2, 0xA3, 0xA4, 0xA5}
)

// Ultralight memory layout
const (
	ultralightCCPage        = 3
	ultralightFirstDataPage = 4
	ultralightPages         = 16
	ultralightCPages        = 48
	ndefCCMagic             = 0xE1
)

// Timing constants for device handling
const (
	DeviceEnumRetries    = 3
	DeviceEnumRetryDelay = 100 * time.Millisecond
	classicAppBufferSize = 4096
)
