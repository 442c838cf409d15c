package nfcservice

import (
	"io"
	"log"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dotside-studios/davi-nfc-service/plugin"
)

func quietLogger() *log.Logger {
	return log.New(io.Discard, "", 0)
}

func newTestService(t *testing.T, p plugin.Plugin, mimeTypes ...string) *Service {
	t.Helper()
	s := New(p, Config{Logger: quietLogger(), MimeTypes: mimeTypes})
	t.Cleanup(s.Dispose)
	return s
}

func TestFreshServiceIsUnknown(t *testing.T) {
	mock := plugin.NewMockPlugin()
	s := newTestService(t, mock)

	assert.Equal(t, Unknown, s.Availability())
	assert.Equal(t, Unknown, s.Enabled())
	assert.Equal(t, StatusUnknown, s.Status())
	assert.Equal(t, 1, mock.EnabledCalls(), "reads while pending must share one query")
}

func TestStatusResolution(t *testing.T) {
	tests := []struct {
		name             string
		reason           string
		wantStatus       Status
		wantAvailability Tristate
		wantEnabled      Tristate
	}{
		{"success", "", StatusEnabled, True, True},
		{"no nfc", plugin.ReasonNoNfc, StatusNoNfc, False, False},
		{"no nfc or disabled", plugin.ReasonNoNfcOrDisabled, StatusNoNfcOrDisabled, Unknown, False},
		{"disabled", plugin.ReasonDisabled, StatusDisabled, True, False},
		{"enabled reason", plugin.ReasonEnabled, StatusEnabled, True, True},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := plugin.NewMockPlugin()
			s := newTestService(t, mock)

			s.QueryStatus()
			if tt.reason == "" {
				require.Equal(t, 1, mock.ResolveEnabled())
			} else {
				require.Equal(t, 1, mock.RejectEnabled(tt.reason))
			}

			assert.Equal(t, tt.wantStatus, s.Status())
			assert.Equal(t, tt.wantAvailability, s.Availability())
			assert.Equal(t, tt.wantEnabled, s.Enabled())
			assert.Equal(t, 1, mock.EnabledCalls(), "known status must not query again")
		})
	}
}

func TestQueryStatusDeduplicates(t *testing.T) {
	mock := plugin.NewMockPlugin()
	s := newTestService(t, mock)

	s.QueryStatus()
	s.QueryStatus()
	s.Availability()
	s.Enabled()

	assert.Equal(t, 1, mock.EnabledCalls())

	mock.ResolveEnabled()
	s.QueryStatus()
	assert.Equal(t, 2, mock.EnabledCalls(), "a resolved query allows a new one")
}

func TestUnrecognizedReasonLeavesStatusUnknown(t *testing.T) {
	mock := plugin.NewMockPlugin()
	s := newTestService(t, mock)

	s.QueryStatus()
	mock.RejectEnabled("SOMETHING_ELSE")

	assert.Equal(t, StatusUnknown, s.Status())
	assert.Equal(t, Unknown, s.Availability())
	assert.Equal(t, 2, mock.EnabledCalls(), "pending flag must clear after an unrecognized reason")
}

func TestSynchronousPluginAnswersImmediately(t *testing.T) {
	s := newTestService(t, plugin.EnabledOnlyPlugin{Reason: plugin.ReasonDisabled})

	assert.Equal(t, True, s.Availability())
	assert.Equal(t, False, s.Enabled())
}

func TestNilPlugin(t *testing.T) {
	s := newTestService(t, nil)

	assert.False(t, s.HasPlugin())
	assert.Equal(t, False, s.Availability())
	assert.Equal(t, False, s.Enabled())
	assert.Empty(t, s.Registrations())

	s.MimeTypes().Push("text/plain")
	assert.Empty(t, s.Registrations())
	s.QueryStatus()
	assert.Equal(t, StatusUnknown, s.Status())
}

func TestStatusChangedEvent(t *testing.T) {
	mock := plugin.NewMockPlugin()
	s := newTestService(t, mock)

	var got []any
	s.On(EventStatusChanged, func(args ...any) { got = append(got, args...) })

	s.QueryStatus()
	mock.RejectEnabled(plugin.ReasonDisabled)
	s.Refresh()
	mock.RejectEnabled(plugin.ReasonDisabled)
	s.Refresh()
	mock.ResolveEnabled()

	assert.Equal(t, []any{StatusDisabled, StatusEnabled}, got)
}

func TestRefreshWhilePendingQueriesAgain(t *testing.T) {
	mock := plugin.NewMockPlugin()
	s := newTestService(t, mock)

	s.QueryStatus()
	s.Refresh()
	assert.Equal(t, 1, mock.EnabledCalls())

	mock.RejectEnabled(plugin.ReasonDisabled)
	assert.Equal(t, 2, mock.EnabledCalls())

	mock.ResolveEnabled()
	assert.Equal(t, StatusEnabled, s.Status())
}

func TestFixedListenerLifecycle(t *testing.T) {
	tests := []struct {
		name      string
		supported plugin.Capabilities
		want      int
	}{
		{"full plugin", nil, 3},
		{"ndef only", plugin.Capabilities{plugin.KindNdef: true}, 1},
		{"mime only", plugin.Capabilities{plugin.KindMimeType: true}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := plugin.NewMockPlugin()
			mock.Supported = tt.supported
			s := New(mock, Config{Logger: quietLogger()})

			assert.Len(t, s.Registrations(), tt.want)
			assert.Equal(t, tt.want, mock.CountCalls("Add"))
			assert.Equal(t, tt.want, mock.Registry().Len())

			s.Dispose()
			assert.Equal(t, tt.want, mock.CountCalls("Remove"))
			assert.Equal(t, 0, mock.Registry().Len())
			assert.Empty(t, s.Registrations())

			s.Dispose()
			assert.Equal(t, tt.want, mock.CountCalls("Remove"), "Dispose must be idempotent")
		})
	}
}

func TestFixedListenerEventsForwardArguments(t *testing.T) {
	mock := plugin.NewMockPlugin()
	s := newTestService(t, mock)

	events := map[plugin.Kind]string{
		plugin.KindTagDiscovered:  EventTagDiscovered,
		plugin.KindNdef:           EventNdefTagDiscovered,
		plugin.KindNdefFormatable: EventFormatableNdefTagDiscovered,
	}

	for kind, event := range events {
		var got [][]any
		sub := s.On(event, func(args ...any) { got = append(got, args) })

		payload := &plugin.TagEvent{Type: "tag", Tag: plugin.Tag{UID: string(kind)}}
		require.Equal(t, 1, mock.Fire(kind, payload, "extra"))

		require.Len(t, got, 1, event)
		assert.Same(t, payload, got[0][0])
		assert.Equal(t, "extra", got[0][1])
		s.Off(sub)
	}
}

func TestMimeTypePushRegistersOnce(t *testing.T) {
	mock := plugin.NewMockPlugin()
	s := newTestService(t, mock)

	s.MimeTypes().Push("text/plain")
	assert.Equal(t, 1, mock.CountCalls("AddMimeTypeListener(text/plain)"))

	s.MimeTypes().Push("TEXT/PLAIN")
	assert.Equal(t, 1, mock.CountCalls("AddMimeTypeListener"))
	assert.Equal(t, 0, mock.CountCalls("RemoveMimeTypeListener"))

	assert.Equal(t, []string{"text/plain"}, mimeRegistrations(s))
}

func TestMimeTypeRemoveUnregisters(t *testing.T) {
	mock := plugin.NewMockPlugin()
	s := newTestService(t, mock, "text/plain", "application/json")

	require.ElementsMatch(t, []string{"text/plain", "application/json"}, mimeRegistrations(s))

	assert.Equal(t, 1, s.MimeTypes().Remove("text/plain"))
	assert.Equal(t, 1, mock.CountCalls("RemoveMimeTypeListener(text/plain)"))
	assert.Equal(t, []string{"application/json"}, mimeRegistrations(s))
	assert.Equal(t, 1, mock.Registry().Count(plugin.KindMimeType))
}

func TestMimeTypeDuplicateRemovalKeepsListener(t *testing.T) {
	mock := plugin.NewMockPlugin()
	s := newTestService(t, mock, "text/plain", "Text/Plain")

	assert.Equal(t, 1, mock.CountCalls("AddMimeTypeListener"))

	_, err := s.MimeTypes().RemoveAt(0)
	require.NoError(t, err)

	assert.Equal(t, 0, mock.CountCalls("RemoveMimeTypeListener"))
	assert.Equal(t, []string{"text/plain"}, mimeRegistrations(s))
}

func TestMimeTypeListOperations(t *testing.T) {
	mock := plugin.NewMockPlugin()
	s := newTestService(t, mock)
	list := s.MimeTypes()

	list.Set("text/plain", "", "  ")
	require.NoError(t, list.InsertAt(0, "application/json"))
	assert.Equal(t, []string{"application/json", "text/plain", "", "  "}, list.Values())
	assert.ElementsMatch(t, []string{"application/json", "text/plain"}, mimeRegistrations(s))

	assert.Error(t, list.InsertAt(10, "x/y"))
	_, err := list.RemoveAt(-1)
	assert.Error(t, err)

	list.Set("image/png")
	assert.Equal(t, []string{"image/png"}, mimeRegistrations(s))
	assert.Equal(t, 2, mock.CountCalls("RemoveMimeTypeListener"))

	list.Clear()
	assert.Empty(t, mimeRegistrations(s))
	assert.Equal(t, 0, mock.Registry().Count(plugin.KindMimeType))
	assert.Len(t, s.Registrations(), 3)
}

func TestMimeTypeEventForwarding(t *testing.T) {
	mock := plugin.NewMockPlugin()
	s := newTestService(t, mock, "text/plain")

	var first, second [][]any
	s.On(EventNdefTagWithMimeTypeDiscovered, func(args ...any) { first = append(first, args) })
	s.On(EventNdefTagWithMimeTypeDiscovered, func(args ...any) { second = append(second, args) })

	payload := &plugin.TagEvent{Type: plugin.EventTypeNdefMime}
	require.Equal(t, 1, mock.FireMimeType("text/plain", payload))

	require.Len(t, first, 1)
	require.Len(t, second, 1)
	assert.Same(t, payload, first[0][0])
	assert.Same(t, payload, second[0][0])
}

func TestMimeTypeWithoutCapability(t *testing.T) {
	mock := plugin.NewMockPlugin()
	mock.Supported = plugin.Capabilities{plugin.KindNdef: true}
	s := newTestService(t, mock)

	s.MimeTypes().Push("text/plain")
	assert.Equal(t, 0, mock.CountCalls("AddMimeTypeListener"))
	assert.Equal(t, []string{"text/plain"}, s.MimeTypes().Values())
}

func TestMimeTypeChangesAfterDisposeIgnored(t *testing.T) {
	mock := plugin.NewMockPlugin()
	s := New(mock, Config{Logger: quietLogger(), MimeTypes: []string{"text/plain"}})

	s.Dispose()
	assert.Equal(t, 1, mock.CountCalls("RemoveMimeTypeListener(text/plain)"))

	s.MimeTypes().Push("application/json")
	assert.Equal(t, 1, mock.CountCalls("AddMimeTypeListener"))

	s.QueryStatus()
	assert.Equal(t, 0, mock.EnabledCalls())
}

func TestListenerFailuresAreNotFatal(t *testing.T) {
	mock := plugin.NewMockPlugin()
	mock.AddError = plugin.NewError("add", "", assert.AnError)
	s := newTestService(t, mock, "text/plain")

	assert.Len(t, s.Registrations(), 4)
	assert.Equal(t, 0, mock.Registry().Len())
}

func TestSubscribersDoNotAffectRegistrations(t *testing.T) {
	mock := plugin.NewMockPlugin()
	s := newTestService(t, mock)

	sub := s.On(EventNdefTagDiscovered, func(...any) {})
	s.Off(sub)
	s.On(EventTagDiscovered, func(...any) {})

	assert.Equal(t, 3, mock.CountCalls("Add"))
	assert.Equal(t, 0, mock.CountCalls("Remove"))
}

type notifyingPlugin struct {
	*plugin.MockPlugin
	changes chan struct{}
}

func (p *notifyingPlugin) StatusChanges() <-chan struct{} {
	return p.changes
}

func TestStatusNotifierTriggersRefresh(t *testing.T) {
	var mu sync.Mutex
	reason := plugin.ReasonNoNfc
	mock := plugin.NewMockPlugin()
	mock.EnabledFunc = func(success func(), failure func(string)) {
		mu.Lock()
		r := reason
		mu.Unlock()
		if r == plugin.ReasonEnabled {
			success()
			return
		}
		failure(r)
	}
	p := &notifyingPlugin{MockPlugin: mock, changes: make(chan struct{})}
	s := newTestService(t, p)

	require.Equal(t, False, s.Availability())

	changed := make(chan Status, 1)
	s.One(EventStatusChanged, func(args ...any) { changed <- args[0].(Status) })

	mu.Lock()
	reason = plugin.ReasonEnabled
	mu.Unlock()
	p.changes <- struct{}{}

	assert.Equal(t, StatusEnabled, <-changed)
	assert.Equal(t, True, s.Enabled())
}

func TestConcurrentMimeTypeChangesSettle(t *testing.T) {
	mock := plugin.NewMockPlugin()
	s := newTestService(t, mock)

	var wg sync.WaitGroup
	for _, m := range []string{"text/plain", "application/json", "image/png", "TEXT/PLAIN"} {
		wg.Add(1)
		go func(m string) {
			defer wg.Done()
			s.MimeTypes().Push(m)
		}(m)
	}
	wg.Wait()

	assert.ElementsMatch(t, []string{"text/plain", "application/json", "image/png"}, mimeRegistrations(s))
	assert.Equal(t, 3, mock.Registry().Count(plugin.KindMimeType))
}

func TestMimeTypeEntriesTrimmedAndLowercased(t *testing.T) {
	mock := plugin.NewMockPlugin()
	s := newTestService(t, mock, " Text/Plain ", "text/plain", "\tIMAGE/PNG")

	assert.Equal(t, []string{"text/plain", "image/png"}, mimeRegistrations(s))
	assert.Equal(t, 1, mock.CountCalls("AddMimeTypeListener(text/plain)"))
	assert.Equal(t, 1, mock.CountCalls("AddMimeTypeListener(image/png)"))
	assert.Equal(t, []string{" Text/Plain ", "text/plain", "\tIMAGE/PNG"}, s.MimeTypes().Values(), "list keeps caller casing")
}

func TestMimeTypeAddIfAbsent(t *testing.T) {
	mock := plugin.NewMockPlugin()
	s := newTestService(t, mock)

	var wg sync.WaitGroup
	var added atomic.Int32
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			m := "text/plain"
			if i%2 == 0 {
				m = "Text/Plain"
			}
			if s.MimeTypes().AddIfAbsent(m) {
				added.Add(1)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), added.Load())
	assert.Equal(t, 1, s.MimeTypes().Len())
	assert.Equal(t, []string{"text/plain"}, mimeRegistrations(s))
	assert.Equal(t, 1, mock.CountCalls("AddMimeTypeListener"))
}

// dispatchingPlugin fires a MIME listener while it is being added.
type dispatchingPlugin struct {
	*plugin.MockPlugin
}

func (p dispatchingPlugin) AddMimeTypeListener(mimeType string, l *plugin.Listener, success func(), failure func(error)) {
	p.MockPlugin.AddMimeTypeListener(mimeType, l, success, failure)
	l.Dispatch("payload")
}

func TestDisposeFromHandlerDuringReconcile(t *testing.T) {
	mock := plugin.NewMockPlugin()
	s := New(dispatchingPlugin{mock}, Config{Logger: quietLogger()})
	s.On(EventNdefTagWithMimeTypeDiscovered, func(args ...any) { s.Dispose() })

	done := make(chan struct{})
	go func() {
		s.MimeTypes().Push("text/plain")
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Push did not return after a handler disposed the service")
	}

	assert.True(t, s.Disposed())
	assert.Empty(t, s.Registrations())
	assert.Equal(t, 1, mock.CountCalls("RemoveMimeTypeListener"))
	assert.Equal(t, 4, mock.CountCalls("Remove"), "fixed and MIME listeners removed")
	assert.Equal(t, 0, mock.Registry().Len())
}

func mimeRegistrations(s *Service) []string {
	var out []string
	for _, r := range s.Registrations() {
		if r.Kind == plugin.KindMimeType {
			out = append(out, r.MimeType)
		}
	}
	return out
}
