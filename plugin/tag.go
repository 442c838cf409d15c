package plugin

import (
	"strings"
	"time"
)

// Event types carried by TagEvent, matching the platform plugin vocabulary.
const (
	EventTypeTag            = "tag"
	EventTypeNdef           = "ndef"
	EventTypeNdefFormatable = "ndef-formatable"
	EventTypeNdefMime       = "ndef-mime"
)

// TNF values used when matching MIME records.
const (
	TNFEmpty     uint8 = 0x00
	TNFWellKnown uint8 = 0x01
	TNFMimeMedia uint8 = 0x02
	TNFAbsURI    uint8 = 0x03
	TNFExternal  uint8 = 0x04
)

// Record is one NDEF record as reported to listeners.
type Record struct {
	TNF     uint8  `json:"tnf"`
	Type    []byte `json:"type"`
	ID      []byte `json:"id,omitempty"`
	Payload []byte `json:"payload"`
}

// Tag is the tag description passed to native listeners.
type Tag struct {
	UID         string    `json:"uid"`
	Type        string    `json:"type"`
	Technology  string    `json:"technology,omitempty"`
	NdefMessage []Record  `json:"ndefMessage,omitempty"`
	ScannedAt   time.Time `json:"scannedAt"`
	Source      string    `json:"source,omitempty"`
}

// MimeType returns the lowercase MIME type of the first record when it is
// a MIME media record, or "" otherwise.
func (t *Tag) MimeType() string {
	if t == nil || len(t.NdefMessage) == 0 {
		return ""
	}
	r := t.NdefMessage[0]
	if r.TNF != TNFMimeMedia {
		return ""
	}
	return strings.ToLower(string(r.Type))
}

// TagEvent is the single argument dispatched to plugin listeners.
type TagEvent struct {
	Type string `json:"type"`
	Tag  Tag    `json:"tag"`
}

// MatchMimeType reports whether actual satisfies filter. Both are compared
// lowercase; a filter of the form "type/*" matches any subtype.
func MatchMimeType(filter, actual string) bool {
	filter = strings.ToLower(strings.TrimSpace(filter))
	actual = strings.ToLower(strings.TrimSpace(actual))
	if filter == "" || actual == "" {
		return false
	}
	if filter == actual || filter == "*/*" {
		return true
	}
	if base, ok := strings.CutSuffix(filter, "/*"); ok {
		major, _, found := strings.Cut(actual, "/")
		return found && major == base
	}
	return false
}
