package nfcservice

import (
	"strings"

	"github.com/dotside-studios/davi-nfc-service/plugin"
)

// Status is the last NFC status reported by the plugin.
type Status string

const (
	StatusUnknown         Status = "UNKNOWN"
	StatusEnabled         Status = plugin.ReasonEnabled
	StatusDisabled        Status = plugin.ReasonDisabled
	StatusNoNfc           Status = plugin.ReasonNoNfc
	StatusNoNfcOrDisabled Status = plugin.ReasonNoNfcOrDisabled
)

// ParseStatus maps a plugin reason string onto a Status. It returns false
// for reasons outside the plugin vocabulary.
func ParseStatus(reason string) (Status, bool) {
	switch s := Status(strings.TrimSpace(reason)); s {
	case StatusEnabled, StatusDisabled, StatusNoNfc, StatusNoNfcOrDisabled:
		return s, true
	}
	return StatusUnknown, false
}

func (s Status) String() string {
	return string(s)
}

// Tristate is a boolean that may be unknown.
type Tristate int8

const (
	Unknown Tristate = iota
	True
	False
)

// TristateOf converts b.
func TristateOf(b bool) Tristate {
	if b {
		return True
	}
	return False
}

// Bool returns the value and whether it is known.
func (t Tristate) Bool() (value bool, known bool) {
	return t == True, t != Unknown
}

func (t Tristate) String() string {
	switch t {
	case True:
		return "true"
	case False:
		return "false"
	}
	return "null"
}

// MarshalJSON encodes Unknown as null.
func (t Tristate) MarshalJSON() ([]byte, error) {
	return []byte(t.String()), nil
}

// UnmarshalJSON accepts true, false and null.
func (t *Tristate) UnmarshalJSON(data []byte) error {
	switch string(data) {
	case "true":
		*t = True
	case "false":
		*t = False
	default:
		*t = Unknown
	}
	return nil
}

func availabilityOf(hasPlugin bool, s Status) Tristate {
	if !hasPlugin {
		return False
	}
	switch s {
	case StatusEnabled, StatusDisabled:
		return True
	case StatusNoNfc:
		return False
	}
	return Unknown
}

func enabledOf(hasPlugin bool, s Status) Tristate {
	if availabilityOf(hasPlugin, s) == False {
		return False
	}
	switch s {
	case StatusEnabled:
		return True
	case StatusDisabled, StatusNoNfcOrDisabled:
		return False
	}
	return Unknown
}
