package protocol

// Consumer WebSocket message types (/ws).
const (
	WSTypeNFCEvent       = "nfcEvent"
	WSTypeStatus         = "status"
	WSTypeGetStatus      = "getStatus"
	WSTypeRefreshStatus  = "refreshStatus"
	WSTypeListMimeTypes  = "listMimeTypes"
	WSTypeAddMimeType    = "addMimeType"
	WSTypeRemoveMimeType = "removeMimeType"
	WSTypeError          = "error"
)

// NFCEventPayload is broadcast to consumers for every service event.
type NFCEventPayload struct {
	Event string `json:"event"`
	Args  []any  `json:"args"`
}

// StatusPayload describes the service's NFC status. Available and Enabled
// are null while the status is unknown.
type StatusPayload struct {
	Status       string   `json:"status"`
	Available    *bool    `json:"available"`
	Enabled      *bool    `json:"enabled"`
	HasPlugin    bool     `json:"hasPlugin"`
	Capabilities []string `json:"capabilities"`
}

// MimeTypeRequest is the payload of addMimeType and removeMimeType.
type MimeTypeRequest struct {
	MimeType string `json:"mimeType" validate:"required"`
}

// MimeTypesPayload lists the MIME types the service listens for.
type MimeTypesPayload struct {
	MimeTypes []string `json:"mimeTypes"`
}
