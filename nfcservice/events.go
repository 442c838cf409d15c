package nfcservice

import "github.com/dotside-studios/davi-nfc-service/plugin"

// Events emitted by Service.
const (
	EventTagDiscovered                 = "tagDiscovered"
	EventNdefTagDiscovered             = "ndefTagDiscovered"
	EventFormatableNdefTagDiscovered   = "formatableNdefTagDiscovered"
	EventNdefTagWithMimeTypeDiscovered = "ndefTagWithMimeTypeDiscovered"
	EventStatusChanged                 = "statusChanged"
)

// TagEvents lists the events that re-emit native listener callbacks.
var TagEvents = []string{
	EventTagDiscovered,
	EventNdefTagDiscovered,
	EventFormatableNdefTagDiscovered,
	EventNdefTagWithMimeTypeDiscovered,
}

// EventFor returns the event emitted for native callbacks of kind.
func EventFor(kind plugin.Kind) string {
	switch kind {
	case plugin.KindTagDiscovered:
		return EventTagDiscovered
	case plugin.KindNdef:
		return EventNdefTagDiscovered
	case plugin.KindNdefFormatable:
		return EventFormatableNdefTagDiscovered
	case plugin.KindMimeType:
		return EventNdefTagWithMimeTypeDiscovered
	}
	return ""
}
