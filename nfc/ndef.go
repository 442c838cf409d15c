package nfc

import (
	"encoding/binary"
	"strings"
	"unicode/utf16"
)

// TNF values
const (
	TNFEmpty       uint8 = 0x00
	TNFWellKnown   uint8 = 0x01
	TNFMimeMedia   uint8 = 0x02
	TNFAbsoluteURI uint8 = 0x03
	TNFExternal    uint8 = 0x04
	TNFUnknown     uint8 = 0x05
	TNFUnchanged   uint8 = 0x06
)

// Record header flags
const (
	flagMB  = 0x80
	flagME  = 0x40
	flagCF  = 0x20
	flagSR  = 0x10
	flagIL  = 0x08
	tnfMask = 0x07
)

// Record is a single NDEF record.
type Record struct {
	TNF     uint8
	Type    []byte
	ID      []byte
	Payload []byte
}

// uriPrefixes is the NFC Forum URI identifier code table.
var uriPrefixes = []string{
	"", "http://www.", "https://www.", "http://", "https://", "tel:", "mailto:",
	"ftp://anonymous:anonymous@", "ftp://ftp.", "ftps://", "sftp://", "smb://",
	"nfs://", "ftp://", "dav://", "news:", "telnet://", "imap:", "rtsp://",
	"urn:", "pop:", "sip:", "sips:", "tftp:", "btspp://", "btl2cap://",
	"btgoep://", "tcpobex://", "irdaobex://", "file://", "urn:epc:id:",
	"urn:epc:tag:", "urn:epc:pat:", "urn:epc:raw:", "urn:epc:", "urn:nfc:",
}

// ParseMessage decodes a raw NDEF message into records. Chunked records
// are reassembled into one record.
func ParseMessage(data []byte) ([]Record, error) {
	var records []Record
	var chunk *Record

	offset := 0
	for offset < len(data) {
		header := data[offset]
		offset++

		if offset >= len(data) {
			return nil, NewInvalidDataError("ParseMessage", "record at offset %d: type length missing", offset-1)
		}
		typeLen := int(data[offset])
		offset++

		var payloadLen int
		if header&flagSR != 0 {
			if offset >= len(data) {
				return nil, NewInvalidDataError("ParseMessage", "short record payload length missing")
			}
			payloadLen = int(data[offset])
			offset++
		} else {
			if offset+4 > len(data) {
				return nil, NewInvalidDataError("ParseMessage", "payload length truncated")
			}
			payloadLen = int(binary.BigEndian.Uint32(data[offset : offset+4]))
			offset += 4
		}

		idLen := 0
		if header&flagIL != 0 {
			if offset >= len(data) {
				return nil, NewInvalidDataError("ParseMessage", "ID length missing")
			}
			idLen = int(data[offset])
			offset++
		}

		end := offset + typeLen + idLen + payloadLen
		if payloadLen < 0 || end > len(data) {
			return nil, NewInvalidDataError("ParseMessage", "record fields exceed message length %d", len(data))
		}

		rec := Record{
			TNF:     header & tnfMask,
			Type:    clone(data[offset : offset+typeLen]),
			ID:      clone(data[offset+typeLen : offset+typeLen+idLen]),
			Payload: clone(data[offset+typeLen+idLen : end]),
		}
		offset = end

		switch {
		case chunk == nil && header&flagCF != 0:
			c := rec
			chunk = &c
		case chunk != nil:
			chunk.Payload = append(chunk.Payload, rec.Payload...)
			if header&flagCF == 0 {
				records = append(records, *chunk)
				chunk = nil
			}
		default:
			records = append(records, rec)
		}

		if header&flagME != 0 {
			break
		}
	}

	if chunk != nil {
		return nil, NewInvalidDataError("ParseMessage", "unterminated chunked record")
	}
	return records, nil
}

func clone(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	return append([]byte(nil), b...)
}

// EncodeMessage encodes records as an NDEF message, setting MB, ME and SR.
func EncodeMessage(records []Record) []byte {
	var out []byte
	for i, r := range records {
		header := r.TNF & tnfMask
		if i == 0 {
			header |= flagMB
		}
		if i == len(records)-1 {
			header |= flagME
		}
		short := len(r.Payload) <= 0xFF
		if short {
			header |= flagSR
		}
		if len(r.ID) > 0 {
			header |= flagIL
		}

		out = append(out, header, byte(len(r.Type)))
		if short {
			out = append(out, byte(len(r.Payload)))
		} else {
			out = binary.BigEndian.AppendUint32(out, uint32(len(r.Payload)))
		}
		if len(r.ID) > 0 {
			out = append(out, byte(len(r.ID)))
		}
		out = append(out, r.Type...)
		out = append(out, r.ID...)
		out = append(out, r.Payload...)
	}
	return out
}

// NewTextRecord creates a well-known text record. lang defaults to "en".
func NewTextRecord(text, lang string) Record {
	if lang == "" {
		lang = "en"
	}
	if len(lang) > 0x3F {
		lang = lang[:0x3F]
	}
	payload := make([]byte, 0, 1+len(lang)+len(text))
	payload = append(payload, byte(len(lang)))
	payload = append(payload, lang...)
	payload = append(payload, text...)
	return Record{TNF: TNFWellKnown, Type: []byte("T"), Payload: payload}
}

// NewURIRecord creates a well-known URI record using the longest matching
// identifier code.
func NewURIRecord(uri string) Record {
	code := 0
	for i, p := range uriPrefixes {
		if p != "" && strings.HasPrefix(uri, p) && len(p) > len(uriPrefixes[code]) {
			code = i
		}
	}
	payload := append([]byte{byte(code)}, uri[len(uriPrefixes[code]):]...)
	return Record{TNF: TNFWellKnown, Type: []byte("U"), Payload: payload}
}

// NewMimeRecord creates a MIME media record.
func NewMimeRecord(mimeType string, payload []byte) Record {
	return Record{TNF: TNFMimeMedia, Type: []byte(mimeType), Payload: payload}
}

// Text returns the text of a well-known text record.
func (r Record) Text() (string, bool) {
	if r.TNF != TNFWellKnown || string(r.Type) != "T" || len(r.Payload) == 0 {
		return "", false
	}
	status := r.Payload[0]
	start := 1 + int(status&0x3F)
	if start > len(r.Payload) {
		return "", false
	}
	body := r.Payload[start:]
	if status&0x80 == 0 {
		return string(body), true
	}
	if len(body)%2 != 0 {
		return "", false
	}
	u16 := make([]uint16, len(body)/2)
	order := binary.ByteOrder(binary.BigEndian)
	if len(body) >= 2 && body[0] == 0xFF && body[1] == 0xFE {
		order = binary.LittleEndian
	}
	for i := range u16 {
		u16[i] = order.Uint16(body[i*2:])
	}
	return strings.TrimPrefix(string(utf16.Decode(u16)), "\uFEFF"), true
}

// Language returns the language code of a text record.
func (r Record) Language() string {
	if _, ok := r.Text(); !ok {
		return ""
	}
	n := int(r.Payload[0] & 0x3F)
	return string(r.Payload[1 : 1+n])
}

// URI returns the URI of a well-known URI record or an absolute URI record.
func (r Record) URI() (string, bool) {
	switch {
	case r.TNF == TNFAbsoluteURI:
		return string(r.Type), true
	case r.TNF == TNFWellKnown && string(r.Type) == "U" && len(r.Payload) > 0:
		prefix := ""
		if code := int(r.Payload[0]); code < len(uriPrefixes) {
			prefix = uriPrefixes[code]
		}
		return prefix + string(r.Payload[1:]), true
	}
	return "", false
}

// MimeType returns the lowercase MIME type of a MIME media record.
func (r Record) MimeType() string {
	if r.TNF != TNFMimeMedia {
		return ""
	}
	return strings.ToLower(string(r.Type))
}
