package server

import (
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/dotside-studios/davi-nfc-service/nfcservice"
	"github.com/dotside-studios/davi-nfc-service/plugin"
	"github.com/dotside-studios/davi-nfc-service/protocol"
)

func newTestServer(t *testing.T, secret string) (*Server, *plugin.MockPlugin, *httptest.Server) {
	t.Helper()

	mock := plugin.NewMockPlugin()
	mock.EnabledFunc = func(success func(), failure func(reason string)) { success() }

	quiet := log.New(io.Discard, "", 0)
	svc := nfcservice.New(mock, nfcservice.Config{Logger: quiet})
	s := New(Config{Service: svc, APISecret: secret, Logger: quiet})

	ctx, cancel := context.WithCancel(context.Background())
	s.startBackground(ctx)

	ts := httptest.NewServer(s.Handler())
	t.Cleanup(func() {
		ts.Close()
		cancel()
		svc.Dispose()
	})
	return s, mock, ts
}

func doJSON(t *testing.T, method, url, body string, out any) int {
	t.Helper()

	req, err := http.NewRequest(method, url, strings.NewReader(body))
	if err != nil {
		t.Fatalf("NewRequest() error = %v", err)
	}
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s error = %v", method, url, err)
	}
	defer resp.Body.Close()

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decoding %s %s: %v", method, url, err)
		}
	}
	return resp.StatusCode
}

func wsURL(ts *httptest.Server, path string) string {
	return "ws" + strings.TrimPrefix(ts.URL, "http") + path
}

func TestHealthCheck(t *testing.T) {
	_, _, ts := newTestServer(t, "secret")

	var body map[string]any
	if code := doJSON(t, http.MethodGet, ts.URL+APIPrefix+"/health", "", &body); code != http.StatusOK {
		t.Fatalf("health status = %d, want %d", code, http.StatusOK)
	}
	if body["status"] != "ok" {
		t.Errorf("health body status = %v, want ok", body["status"])
	}
}

func TestStatusEndpoint(t *testing.T) {
	_, _, ts := newTestServer(t, "")

	var status protocol.StatusPayload
	if code := doJSON(t, http.MethodGet, ts.URL+APIPrefix+"/status", "", &status); code != http.StatusOK {
		t.Fatalf("GET status = %d, want %d", code, http.StatusOK)
	}
	if status.Status != nfcservice.StatusEnabled.String() {
		t.Errorf("Status = %q, want %q", status.Status, nfcservice.StatusEnabled)
	}
	if status.Available == nil || !*status.Available {
		t.Errorf("Available = %v, want true", status.Available)
	}
	if status.Enabled == nil || !*status.Enabled {
		t.Errorf("Enabled = %v, want true", status.Enabled)
	}
	if !status.HasPlugin {
		t.Errorf("HasPlugin = false, want true")
	}
	if len(status.Capabilities) != 4 {
		t.Errorf("Capabilities = %v, want 4 kinds", status.Capabilities)
	}

	if code := doJSON(t, http.MethodPost, ts.URL+APIPrefix+"/status/refresh", "", &status); code != http.StatusAccepted {
		t.Errorf("POST refresh = %d, want %d", code, http.StatusAccepted)
	}
}

func TestMimeTypeEndpoints(t *testing.T) {
	s, _, ts := newTestServer(t, "")
	base := ts.URL + APIPrefix + "/mimetypes"

	var list protocol.MimeTypesPayload
	if code := doJSON(t, http.MethodPost, base, `{"mimeType":"Text/Plain"}`, &list); code != http.StatusCreated {
		t.Fatalf("first POST = %d, want %d", code, http.StatusCreated)
	}
	if code := doJSON(t, http.MethodPost, base, `{"mimeType":"text/plain"}`, &list); code != http.StatusOK {
		t.Errorf("duplicate POST = %d, want %d", code, http.StatusOK)
	}
	if code := doJSON(t, http.MethodPost, base, `{"mimeType":"  "}`, nil); code != http.StatusBadRequest {
		t.Errorf("blank POST = %d, want %d", code, http.StatusBadRequest)
	}
	if code := doJSON(t, http.MethodPost, base, `not json`, nil); code != http.StatusBadRequest {
		t.Errorf("invalid POST = %d, want %d", code, http.StatusBadRequest)
	}

	if code := doJSON(t, http.MethodGet, base, "", &list); code != http.StatusOK {
		t.Fatalf("GET = %d, want %d", code, http.StatusOK)
	}
	if len(list.MimeTypes) != 1 || list.MimeTypes[0] != "text/plain" {
		t.Fatalf("MimeTypes = %v, want [text/plain]", list.MimeTypes)
	}

	if code := doJSON(t, http.MethodDelete, base+"/text/plain", "", &list); code != http.StatusOK {
		t.Errorf("DELETE = %d, want %d", code, http.StatusOK)
	}
	if len(list.MimeTypes) != 0 {
		t.Errorf("MimeTypes after DELETE = %v, want empty", list.MimeTypes)
	}
	if code := doJSON(t, http.MethodDelete, base+"/text/plain", "", nil); code != http.StatusNotFound {
		t.Errorf("second DELETE = %d, want %d", code, http.StatusNotFound)
	}
	if got := s.service.MimeTypes().Len(); got != 0 {
		t.Errorf("service MIME list length = %d, want 0", got)
	}
}

func TestConcurrentMimeTypeAdds(t *testing.T) {
	s, _, ts := newTestServer(t, "")
	base := ts.URL + APIPrefix + "/mimetypes"

	const n = 8
	codes := make(chan int, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			resp, err := http.Post(base, "application/json", strings.NewReader(`{"mimeType":"text/plain"}`))
			if err != nil {
				codes <- 0
				return
			}
			resp.Body.Close()
			codes <- resp.StatusCode
		}()
	}
	wg.Wait()
	close(codes)

	created := 0
	for code := range codes {
		switch code {
		case http.StatusCreated:
			created++
		case http.StatusOK:
		default:
			t.Errorf("POST = %d, want %d or %d", code, http.StatusCreated, http.StatusOK)
		}
	}
	if created != 1 {
		t.Errorf("%d POSTs returned %d, want 1", created, http.StatusCreated)
	}
	if got := s.service.MimeTypes().Values(); len(got) != 1 {
		t.Errorf("MimeTypes = %v, want one entry", got)
	}
}

func TestAPISecret(t *testing.T) {
	_, _, ts := newTestServer(t, "s3cret")
	url := ts.URL + APIPrefix + "/status"

	tests := []struct {
		name   string
		url    string
		header string
		want   int
	}{
		{"missing", url, "", http.StatusUnauthorized},
		{"wrong query", url + "?secret=nope", "", http.StatusUnauthorized},
		{"query", url + "?secret=s3cret", "", http.StatusOK},
		{"bearer", url, "Bearer s3cret", http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, _ := http.NewRequest(http.MethodGet, tt.url, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			resp, err := http.DefaultClient.Do(req)
			if err != nil {
				t.Fatalf("GET error = %v", err)
			}
			resp.Body.Close()
			if resp.StatusCode != tt.want {
				t.Errorf("GET status = %d, want %d", resp.StatusCode, tt.want)
			}
		})
	}

	_, resp, err := websocket.DefaultDialer.Dial(wsURL(ts, WebSocketPath), nil)
	if err == nil {
		t.Fatal("Dial() without secret succeeded, want error")
	}
	if resp == nil || resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("Dial() without secret response = %v, want 401", resp)
	}
}

func TestCORSPreflight(t *testing.T) {
	_, _, ts := newTestServer(t, "")

	req, _ := http.NewRequest(http.MethodOptions, ts.URL+APIPrefix+"/mimetypes", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("OPTIONS error = %v", err)
	}
	resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("OPTIONS status = %d, want %d", resp.StatusCode, http.StatusOK)
	}
	if got := resp.Header.Get("Access-Control-Allow-Methods"); got != CORSAllowMethods {
		t.Errorf("Allow-Methods = %q, want %q", got, CORSAllowMethods)
	}
}

// readFrame reads frames until one of type msgType arrives.
func readFrame(t *testing.T, ws *websocket.Conn, msgType string) map[string]any {
	t.Helper()
	ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	for {
		var frame map[string]any
		if err := ws.ReadJSON(&frame); err != nil {
			t.Fatalf("waiting for %s frame: %v", msgType, err)
		}
		if frame["type"] == msgType {
			return frame
		}
	}
}

func TestWebSocketSession(t *testing.T) {
	s, mock, ts := newTestServer(t, "")

	ws, _, err := websocket.DefaultDialer.Dial(wsURL(ts, WebSocketPath), nil)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	defer ws.Close()

	readFrame(t, ws, protocol.WSTypeStatus)

	t.Run("second session rejected", func(t *testing.T) {
		_, resp, err := websocket.DefaultDialer.Dial(wsURL(ts, WebSocketPath), nil)
		if err == nil {
			t.Fatal("second Dial() succeeded, want error")
		}
		if resp == nil || resp.StatusCode != http.StatusConflict {
			t.Errorf("second Dial() response = %v, want 409", resp)
		}
	})

	t.Run("getStatus", func(t *testing.T) {
		ws.WriteJSON(protocol.WebSocketRequest{ID: "1", Type: protocol.WSTypeGetStatus})
		frame := readFrame(t, ws, protocol.ResponseType(protocol.WSTypeGetStatus))
		if frame["id"] != "1" || frame["success"] != true {
			t.Errorf("getStatus response = %v, want success for id 1", frame)
		}
	})

	t.Run("addMimeType", func(t *testing.T) {
		ws.WriteJSON(protocol.WebSocketRequest{
			ID:      "2",
			Type:    protocol.WSTypeAddMimeType,
			Payload: map[string]any{"mimeType": "application/json"},
		})
		readFrame(t, ws, protocol.ResponseType(protocol.WSTypeAddMimeType))
		if !s.service.MimeTypes().Contains("application/json") {
			t.Errorf("MIME list = %v, want application/json", s.service.MimeTypes().Values())
		}
	})

	t.Run("invalid request", func(t *testing.T) {
		ws.WriteJSON(protocol.WebSocketRequest{ID: "3", Type: protocol.WSTypeRemoveMimeType})
		frame := readFrame(t, ws, protocol.WSTypeError)
		payload, _ := frame["payload"].(map[string]any)
		if payload["code"] != protocol.ErrCodeInvalidRequest {
			t.Errorf("error code = %v, want %s", payload["code"], protocol.ErrCodeInvalidRequest)
		}
	})

	t.Run("unknown type", func(t *testing.T) {
		ws.WriteJSON(protocol.WebSocketRequest{ID: "4", Type: "bogus"})
		frame := readFrame(t, ws, protocol.WSTypeError)
		payload, _ := frame["payload"].(map[string]any)
		if payload["code"] != protocol.ErrCodeUnknownType {
			t.Errorf("error code = %v, want %s", payload["code"], protocol.ErrCodeUnknownType)
		}
	})

	t.Run("event broadcast", func(t *testing.T) {
		if n := mock.Fire(plugin.KindNdef, "payload"); n != 1 {
			t.Fatalf("Fire(ndef) reached %d listeners, want 1", n)
		}
		frame := readFrame(t, ws, protocol.WSTypeNFCEvent)
		payload, _ := frame["payload"].(map[string]any)
		if payload["event"] != nfcservice.EventNdefTagDiscovered {
			t.Errorf("event = %v, want %s", payload["event"], nfcservice.EventNdefTagDiscovered)
		}
		args, _ := payload["args"].([]any)
		if len(args) != 1 || args[0] != "payload" {
			t.Errorf("args = %v, want [payload]", args)
		}
	})

	if got := s.ClientCount(); got != 1 {
		t.Errorf("ClientCount() = %d, want 1", got)
	}
}

func TestDevicePathWithoutRemote(t *testing.T) {
	_, _, ts := newTestServer(t, "")

	_, resp, err := websocket.DefaultDialer.Dial(wsURL(ts, DevicePath), nil)
	if err == nil {
		t.Fatal("Dial(/device) succeeded, want error")
	}
	if resp == nil || resp.StatusCode != http.StatusNotFound {
		t.Errorf("Dial(/device) response = %v, want 404", resp)
	}
}

func TestCACertRoute(t *testing.T) {
	quiet := log.New(io.Discard, "", 0)
	pem := []byte("-----BEGIN CERTIFICATE-----\n")

	s := New(Config{Logger: quiet, CACert: func() ([]byte, error) { return pem, nil }})
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	resp, err := http.Get(ts.URL + CACertPath)
	if err != nil {
		t.Fatalf("GET %s error = %v", CACertPath, err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK || string(body) != string(pem) {
		t.Errorf("GET %s = %d %q, want 200 with PEM", CACertPath, resp.StatusCode, body)
	}

	plain := httptest.NewServer(New(Config{Logger: quiet}).Handler())
	defer plain.Close()
	resp, err = http.Get(plain.URL + CACertPath)
	if err != nil {
		t.Fatalf("GET %s error = %v", CACertPath, err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("GET %s without CA = %d, want 404", CACertPath, resp.StatusCode)
	}
}
