package nfc

import (
	"bytes"
	"testing"
)

func TestParseMessage_TextRecord(t *testing.T) {
	// MB|ME|SR, TNF well-known, type "T", payload "\x02enHello"
	data := []byte{0xD1, 0x01, 0x08, 'T', 0x02, 'e', 'n', 'H', 'e', 'l', 'l', 'o'}

	records, err := ParseMessage(data)
	if err != nil {
		t.Fatalf("ParseMessage() error = %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("ParseMessage() returned %d records, want 1", len(records))
	}

	text, ok := records[0].Text()
	if !ok || text != "Hello" {
		t.Errorf("Text() = %q, %v, want %q, true", text, ok, "Hello")
	}
	if lang := records[0].Language(); lang != "en" {
		t.Errorf("Language() = %q, want %q", lang, "en")
	}
}

func TestEncodeParseRoundTrip(t *testing.T) {
	records := []Record{
		NewMimeRecord("Application/JSON", []byte(`{"a":1}`)),
		NewTextRecord("hola", "es"),
		NewURIRecord("https://www.example.com/x"),
		{TNF: TNFExternal, Type: []byte("example.com:t"), ID: []byte("id1"), Payload: bytes.Repeat([]byte{0xAB}, 300)},
	}

	parsed, err := ParseMessage(EncodeMessage(records))
	if err != nil {
		t.Fatalf("ParseMessage() error = %v", err)
	}
	if len(parsed) != len(records) {
		t.Fatalf("got %d records, want %d", len(parsed), len(records))
	}

	if got := parsed[0].MimeType(); got != "application/json" {
		t.Errorf("MimeType() = %q, want %q", got, "application/json")
	}
	if text, _ := parsed[1].Text(); text != "hola" {
		t.Errorf("Text() = %q, want %q", text, "hola")
	}
	if uri, _ := parsed[2].URI(); uri != "https://www.example.com/x" {
		t.Errorf("URI() = %q, want %q", uri, "https://www.example.com/x")
	}
	if parsed[2].Payload[0] != 0x02 {
		t.Errorf("URI identifier code = 0x%02X, want 0x02", parsed[2].Payload[0])
	}
	if !bytes.Equal(parsed[3].ID, []byte("id1")) || len(parsed[3].Payload) != 300 {
		t.Errorf("external record = %+v", parsed[3])
	}
}

func TestParseMessage_Chunked(t *testing.T) {
	data := []byte{
		0xB2, 0x0A, 0x02, 't', 'e', 'x', 't', '/', 'p', 'l', 'a', 'i', 'n', 'a', 'b', // MB|CF|SR, mime
		0x36, 0x00, 0x02, 'c', 'd', // CF|SR, unchanged
		0x56, 0x00, 0x01, 'e', // ME|SR, unchanged
	}

	records, err := ParseMessage(data)
	if err != nil {
		t.Fatalf("ParseMessage() error = %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("got %d records, want 1", len(records))
	}
	if string(records[0].Payload) != "abcde" {
		t.Errorf("Payload = %q, want %q", records[0].Payload, "abcde")
	}
	if records[0].MimeType() != "text/plain" {
		t.Errorf("MimeType() = %q, want %q", records[0].MimeType(), "text/plain")
	}
}

func TestParseMessage_Errors(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{"header only", []byte{0xD1}},
		{"payload past end", []byte{0xD1, 0x01, 0x10, 'T', 0x00}},
		{"long length truncated", []byte{0xC1, 0x01, 0x00, 0x00}},
		{"unterminated chunk", []byte{0xB2, 0x01, 0x01, 'x', 'a'}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParseMessage(tt.data); err == nil {
				t.Error("ParseMessage() error = nil, want error")
			}
		})
	}
}

func TestRecordAccessorsOnOtherTypes(t *testing.T) {
	mime := NewMimeRecord("text/plain", []byte("x"))
	if _, ok := mime.Text(); ok {
		t.Error("Text() on MIME record ok = true, want false")
	}
	if _, ok := mime.URI(); ok {
		t.Error("URI() on MIME record ok = true, want false")
	}

	text := NewTextRecord("x", "")
	if text.MimeType() != "" {
		t.Errorf("MimeType() on text record = %q, want empty", text.MimeType())
	}
	if text.Language() != "en" {
		t.Errorf("Language() = %q, want default %q", text.Language(), "en")
	}

	abs := Record{TNF: TNFAbsoluteURI, Type: []byte("urn:x")}
	if uri, ok := abs.URI(); !ok || uri != "urn:x" {
		t.Errorf("URI() = %q, %v, want %q, true", uri, ok, "urn:x")
	}
}

func TestTextRecordUTF16(t *testing.T) {
	// UTF-16 flag, lang "en", big-endian "hi"
	r := Record{TNF: TNFWellKnown, Type: []byte("T"), Payload: []byte{0x82, 'e', 'n', 0x00, 'h', 0x00, 'i'}}
	if text, ok := r.Text(); !ok || text != "hi" {
		t.Errorf("Text() = %q, %v, want %q, true", text, ok, "hi")
	}
}
