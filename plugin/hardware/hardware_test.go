package hardware

import (
	"context"
	"errors"
	"io"
	"log"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/dotside-studios/davi-nfc-service/nfc"
	"github.com/dotside-studios/davi-nfc-service/plugin"
)

func newTestPlugin(manager *nfc.MockManager) *Plugin {
	return New(Config{
		Manager:  manager,
		Cooldown: time.Minute,
		Logger:   log.New(io.Discard, "", 0),
	})
}

func waitEnabled(t *testing.T, p *Plugin) string {
	t.Helper()
	result := make(chan string, 1)
	p.Enabled(func() { result <- plugin.ReasonEnabled }, func(reason string) { result <- reason })
	select {
	case r := <-result:
		return r
	case <-time.After(2 * time.Second):
		t.Fatal("Enabled() did not answer")
		return ""
	}
}

// recorder collects the events dispatched to one listener.
type recorder struct {
	mu     sync.Mutex
	events []plugin.TagEvent
}

func (r *recorder) listener() *plugin.Listener {
	return plugin.NewListener(func(args ...any) {
		r.mu.Lock()
		defer r.mu.Unlock()
		if len(args) == 1 {
			if ev, ok := args[0].(plugin.TagEvent); ok {
				r.events = append(r.events, ev)
			}
		}
	})
}

func (r *recorder) get() []plugin.TagEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]plugin.TagEvent(nil), r.events...)
}

func TestEnabled(t *testing.T) {
	tests := []struct {
		name  string
		setup func(m *nfc.MockManager)
		want  string
	}{
		{
			name:  "reader present",
			setup: func(m *nfc.MockManager) {},
			want:  plugin.ReasonEnabled,
		},
		{
			name:  "no readers",
			setup: func(m *nfc.MockManager) { m.DevicesList = nil },
			want:  plugin.ReasonNoNfc,
		},
		{
			name:  "listing fails",
			setup: func(m *nfc.MockManager) { m.ListDevicesError = errors.New("libnfc init failed") },
			want:  plugin.ReasonNoNfc,
		},
		{
			name:  "open fails",
			setup: func(m *nfc.MockManager) { m.OpenDeviceError = errors.New("device busy") },
			want:  plugin.ReasonDisabled,
		},
		{
			name:  "init fails",
			setup: func(m *nfc.MockManager) { m.MockDevice.InitError = errors.New("no response") },
			want:  plugin.ReasonDisabled,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := nfc.NewMockManager()
			tt.setup(m)
			p := newTestPlugin(m)
			defer p.Close()

			if got := waitEnabled(t, p); got != tt.want {
				t.Errorf("Enabled() = %q, want %q", got, tt.want)
			}
			if got, want := p.Connected(), tt.want == plugin.ReasonEnabled; got != want {
				t.Errorf("Connected() = %v, want %v", got, want)
			}
		})
	}
}

func TestCapabilities(t *testing.T) {
	p := newTestPlugin(nfc.NewMockManager())
	defer p.Close()

	caps := plugin.CapabilitiesOf(p)
	for _, kind := range plugin.AllCapabilities().Kinds() {
		if !caps.Has(kind) {
			t.Errorf("CapabilitiesOf() missing %s", kind)
		}
	}
}

func TestPollDispatchesNdefTag(t *testing.T) {
	m := nfc.NewMockManager()
	m.MockDevice.SetTags(nfc.NewMockNDEFTag("04A1B2C3", nfc.NewMimeRecord("Text/Plain", []byte("hello"))))
	p := newTestPlugin(m)
	defer p.Close()

	var tags, ndef, formatable, mimeText, mimeJSON recorder
	plugin.AddListener(p, plugin.KindTagDiscovered, tags.listener(), nil, nil)
	plugin.AddListener(p, plugin.KindNdef, ndef.listener(), nil, nil)
	plugin.AddListener(p, plugin.KindNdefFormatable, formatable.listener(), nil, nil)
	plugin.AddMimeTypeListener(p, "text/*", mimeText.listener(), nil, nil)
	plugin.AddMimeTypeListener(p, "application/json", mimeJSON.listener(), nil, nil)

	if n := p.pollOnce(); n != 1 {
		t.Fatalf("pollOnce() = %d, want 1", n)
	}

	if got := tags.get(); len(got) != 1 || got[0].Type != plugin.EventTypeTag {
		t.Fatalf("tag listener events = %+v, want one %q event", got, plugin.EventTypeTag)
	}
	if got := ndef.get(); len(got) != 1 || got[0].Type != plugin.EventTypeNdef {
		t.Errorf("ndef listener events = %+v, want one %q event", got, plugin.EventTypeNdef)
	}
	if got := mimeText.get(); len(got) != 1 || got[0].Type != plugin.EventTypeNdefMime {
		t.Errorf("text/* listener events = %+v, want one %q event", got, plugin.EventTypeNdefMime)
	}
	if got := mimeJSON.get(); len(got) != 0 {
		t.Errorf("application/json listener events = %d, want 0", len(got))
	}
	if got := formatable.get(); len(got) != 0 {
		t.Errorf("formatable listener events = %d, want 0", len(got))
	}

	tag := tags.get()[0].Tag
	if tag.UID != "04A1B2C3" || tag.Source != SourceName {
		t.Errorf("tag = %+v, want UID 04A1B2C3 from %s", tag, SourceName)
	}
	if tag.MimeType() != "text/plain" {
		t.Errorf("MimeType() = %q, want %q", tag.MimeType(), "text/plain")
	}
	if string(tag.NdefMessage[0].Payload) != "hello" {
		t.Errorf("payload = %q, want %q", tag.NdefMessage[0].Payload, "hello")
	}
}

func TestPollFormatableTag(t *testing.T) {
	m := nfc.NewMockManager()
	m.MockDevice.SetTags(&nfc.MockTag{
		TagUID:  "0102030405060708",
		TagType: nfc.TagTypeMifareClassic1K,
		Content: nfc.NDEFContent{State: nfc.NDEFFormatable},
	})
	p := newTestPlugin(m)
	defer p.Close()

	var ndef, formatable recorder
	plugin.AddListener(p, plugin.KindNdef, ndef.listener(), nil, nil)
	plugin.AddListener(p, plugin.KindNdefFormatable, formatable.listener(), nil, nil)

	p.pollOnce()

	if got := formatable.get(); len(got) != 1 || got[0].Type != plugin.EventTypeNdefFormatable {
		t.Errorf("formatable listener events = %+v, want one %q event", got, plugin.EventTypeNdefFormatable)
	}
	if got := ndef.get(); len(got) != 0 {
		t.Errorf("ndef listener events = %d, want 0", len(got))
	}
}

func TestPollReadErrorStillReportsTag(t *testing.T) {
	m := nfc.NewMockManager()
	m.MockDevice.SetTags(&nfc.MockTag{
		TagUID:    "AA",
		ReadError: nfc.NewAuthError("ReadNDEF", "AA", errors.New("wrong key")),
	})
	p := newTestPlugin(m)
	defer p.Close()

	var tags, ndef recorder
	plugin.AddListener(p, plugin.KindTagDiscovered, tags.listener(), nil, nil)
	plugin.AddListener(p, plugin.KindNdef, ndef.listener(), nil, nil)

	p.pollOnce()

	if len(tags.get()) != 1 {
		t.Errorf("tag listener events = %d, want 1", len(tags.get()))
	}
	if len(ndef.get()) != 0 {
		t.Errorf("ndef listener events = %d, want 0", len(ndef.get()))
	}
}

func TestPollPresenceTracking(t *testing.T) {
	m := nfc.NewMockManager()
	tag := nfc.NewMockNDEFTag("04A1", nfc.NewTextRecord("hi", "en"))
	m.MockDevice.SetTags(tag)
	p := newTestPlugin(m)
	defer p.Close()

	var tags recorder
	plugin.AddListener(p, plugin.KindTagDiscovered, tags.listener(), nil, nil)

	steps := []struct {
		name string
		tags []nfc.Tag
		want int
	}{
		{"first poll", []nfc.Tag{tag}, 1},
		{"tag still present", []nfc.Tag{tag}, 0},
		{"tag removed", nil, 0},
		{"tag presented again", []nfc.Tag{tag}, 1},
		{"duplicate UIDs", []nfc.Tag{tag, tag}, 0},
	}

	for _, s := range steps {
		m.MockDevice.SetTags(s.tags...)
		if got := p.pollOnce(); got != s.want {
			t.Errorf("%s: pollOnce() = %d, want %d", s.name, got, s.want)
		}
	}
	if got := len(tags.get()); got != 2 {
		t.Errorf("tag listener events = %d, want 2", got)
	}
	if got := tag.Reads(); got != 2 {
		t.Errorf("ReadNDEF calls = %d, want 2", got)
	}
}

func TestPollDeviceErrorStartsCooldown(t *testing.T) {
	m := nfc.NewMockManager()
	p := newTestPlugin(m)
	defer p.Close()

	if waitEnabled(t, p) != plugin.ReasonEnabled {
		t.Fatal("Enabled() failed")
	}
	// Drain the connect notification.
	select {
	case <-p.StatusChanges():
	default:
	}

	m.MockDevice.SetGetTagsError(nfc.NewDeviceIOError("GetTags", errors.New("broken pipe")))
	p.pollOnce()

	if p.Connected() {
		t.Error("Connected() = true after device error, want false")
	}
	select {
	case <-p.StatusChanges():
	default:
		t.Error("StatusChanges() not signalled after device loss")
	}

	m.MockDevice.SetGetTagsError(nil)
	opens := countCalls(m.GetCallLog(), "OpenDevice")
	p.pollOnce()
	if got := countCalls(m.GetCallLog(), "OpenDevice"); got != opens {
		t.Errorf("OpenDevice calls during cooldown = %d, want %d", got, opens)
	}

	p.now = func() time.Time { return time.Now().Add(2 * time.Minute) }
	p.pollOnce()
	if !p.Connected() {
		t.Error("Connected() = false after cooldown, want true")
	}
}

func TestCloseDropsListeners(t *testing.T) {
	m := nfc.NewMockManager()
	p := newTestPlugin(m)

	l := plugin.NewListener(func(...any) {})
	plugin.AddListener(p, plugin.KindNdef, l, nil, nil)
	if err := p.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if p.registry.Len() != 0 {
		t.Errorf("registry.Len() = %d after Close, want 0", p.registry.Len())
	}

	var addErr error
	plugin.AddListener(p, plugin.KindNdef, l, nil, func(err error) { addErr = err })
	if !errors.Is(addErr, plugin.ErrClosed) {
		t.Errorf("add after Close error = %v, want %v", addErr, plugin.ErrClosed)
	}
	if got := waitEnabled(t, p); got != plugin.ReasonNoNfc {
		t.Errorf("Enabled() after Close = %q, want %q", got, plugin.ReasonNoNfc)
	}
}

func TestRemoveListener(t *testing.T) {
	m := nfc.NewMockManager()
	m.MockDevice.SetTags(nfc.NewMockNDEFTag("01", nfc.NewMimeRecord("text/plain", nil)))
	p := newTestPlugin(m)
	defer p.Close()

	var mime recorder
	l := mime.listener()
	plugin.AddMimeTypeListener(p, "text/plain", l, nil, nil)
	removed := false
	plugin.RemoveMimeTypeListener(p, "TEXT/PLAIN", l, func() { removed = true }, nil)
	if !removed {
		t.Fatal("RemoveMimeTypeListener() success not called")
	}

	p.pollOnce()
	if len(mime.get()) != 0 {
		t.Errorf("removed listener events = %d, want 0", len(mime.get()))
	}
}

func countCalls(log []string, name string) int {
	n := 0
	for _, c := range log {
		if strings.HasPrefix(c, name) {
			n++
		}
	}
	return n
}

func TestStartPollsAndForwardsDeviceChanges(t *testing.T) {
	m := nfc.NewMockManager()
	m.MockDevice.SetTags(nfc.NewMockNDEFTag("01", nfc.NewTextRecord("x", "")))
	p := New(Config{Manager: m, PollInterval: 5 * time.Millisecond, Logger: log.New(io.Discard, "", 0)})

	got := make(chan plugin.TagEvent, 1)
	plugin.AddListener(p, plugin.KindTagDiscovered, plugin.NewListener(func(args ...any) {
		select {
		case got <- args[0].(plugin.TagEvent):
		default:
		}
	}), nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	p.Start(ctx)

	select {
	case ev := <-got:
		if ev.Tag.UID != "01" {
			t.Errorf("UID = %q, want %q", ev.Tag.UID, "01")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not dispatch the tag")
	}

	// Drain the connect signal, then expect one for the reader list change.
	select {
	case <-p.StatusChanges():
	default:
	}
	m.SetDevices()
	select {
	case <-p.StatusChanges():
	case <-time.After(2 * time.Second):
		t.Error("StatusChanges() not signalled after reader list change")
	}

	if err := p.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
}
