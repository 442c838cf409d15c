// Package nfcservice adapts a callback-based NFC plugin into an event
// source.
//
// The Service tracks whether NFC is available and enabled, keeps one native
// listener per supported tag-discovery kind, keeps one native MIME listener
// per entry in its MIME type list, and re-emits every native callback as an
// event.
//
// Example:
//
//	svc := nfcservice.New(p, nfcservice.Config{MimeTypes: []string{"text/plain"}})
//	defer svc.Dispose()
//
//	svc.On(nfcservice.EventNdefTagDiscovered, func(args ...any) {
//	    log.Printf("NDEF tag: %v", args)
//	})
//	if svc.Enabled() == nfcservice.True {
//	    ...
//	}
package nfcservice

import (
	"log"
	"os"
	"sync"

	"github.com/dotside-studios/davi-nfc-service/plugin"
)

// Config holds the optional settings of a Service.
type Config struct {
	// Logger receives diagnostics. Defaults to stderr with an [nfc-service] prefix.
	Logger *log.Logger

	// MimeTypes is the initial MIME type list.
	MimeTypes []string
}

// Registration is a native listener owned by the service.
type Registration struct {
	Kind     plugin.Kind
	MimeType string
	Listener *plugin.Listener
}

func (r *Registration) String() string {
	if r.Kind == plugin.KindMimeType {
		return string(r.Kind) + "(" + r.MimeType + ")"
	}
	return string(r.Kind)
}

// Service is the NFC availability and listener adapter.
type Service struct {
	*Emitter

	plugin plugin.Plugin
	caps   plugin.Capabilities
	logger *log.Logger

	mu            sync.Mutex
	status        Status
	pending       bool
	requery       bool
	registrations []*Registration
	disposed      bool
	reconciling   bool
	dirty         bool

	mimeTypes *MimeTypeList
	stop      chan struct{}
}

// New creates a Service around p and registers its fixed-kind listeners.
// A nil plugin yields a service that reports NFC as unavailable.
func New(p plugin.Plugin, cfg Config) *Service {
	logger := cfg.Logger
	if logger == nil {
		logger = log.New(os.Stderr, "[nfc-service] ", log.LstdFlags)
	}

	s := &Service{
		Emitter: NewEmitter(),
		plugin:  p,
		caps:    plugin.CapabilitiesOf(p),
		logger:  logger,
		status:  StatusUnknown,
		stop:    make(chan struct{}),
	}
	s.mimeTypes = newMimeTypeList(s.reconcileMimeTypes)

	if p == nil {
		return s
	}

	s.setupListeners()

	if len(cfg.MimeTypes) > 0 {
		s.mimeTypes.Set(cfg.MimeTypes...)
	}

	if n, ok := p.(plugin.StatusNotifier); ok {
		go s.watchStatus(n.StatusChanges())
	}

	return s
}

// Capabilities returns the listener kinds supported by the plugin.
func (s *Service) Capabilities() plugin.Capabilities {
	return s.caps
}

// HasPlugin reports whether the service wraps a plugin.
func (s *Service) HasPlugin() bool {
	return s.plugin != nil
}

// Status returns the cached status without querying the plugin.
func (s *Service) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// Availability reports whether the device has NFC hardware. While the status
// is unknown it starts a status query and returns Unknown, unless the plugin
// answers synchronously.
func (s *Service) Availability() Tristate {
	return s.derive(availabilityOf)
}

// Enabled reports whether NFC is switched on. While the status is unknown it
// starts a status query and returns Unknown, unless the plugin answers
// synchronously.
func (s *Service) Enabled() Tristate {
	return s.derive(enabledOf)
}

func (s *Service) derive(fn func(bool, Status) Tristate) Tristate {
	hasPlugin := s.plugin != nil
	st := s.Status()
	if st == StatusUnknown && hasPlugin {
		s.QueryStatus()
		st = s.Status()
	}
	return fn(hasPlugin, st)
}

// QueryStatus asks the plugin for the NFC status. It does nothing while a
// previous query is still unanswered.
func (s *Service) QueryStatus() {
	s.query(false)
}

// Refresh queries the status again even if it is already known. A refresh
// requested while a query is pending runs once that query resolves.
func (s *Service) Refresh() {
	s.query(true)
}

func (s *Service) query(force bool) {
	if s.plugin == nil {
		return
	}

	s.mu.Lock()
	if s.disposed {
		s.mu.Unlock()
		return
	}
	if s.pending {
		if force {
			s.requery = true
		}
		s.mu.Unlock()
		return
	}
	s.pending = true
	s.mu.Unlock()

	var once sync.Once
	s.plugin.Enabled(
		func() {
			once.Do(func() { s.resolve(StatusEnabled, true) })
		},
		func(reason string) {
			once.Do(func() {
				st, ok := ParseStatus(reason)
				if !ok {
					s.logger.Printf("Warning: unrecognized NFC status reason %q", reason)
				}
				s.resolve(st, ok)
			})
		},
	)
}

func (s *Service) resolve(st Status, known bool) {
	s.mu.Lock()
	s.pending = false
	requery := s.requery && !s.disposed
	s.requery = false
	changed := known && s.status != st
	if known {
		s.status = st
	}
	s.mu.Unlock()

	if changed {
		s.Trigger(EventStatusChanged, st)
	}
	if requery {
		s.query(false)
	}
}

func (s *Service) watchStatus(changes <-chan struct{}) {
	for {
		select {
		case <-s.stop:
			return
		case _, ok := <-changes:
			if !ok {
				return
			}
			s.Refresh()
		}
	}
}

func (s *Service) dispatcher(event string) plugin.Callback {
	return func(args ...any) {
		s.Trigger(event, args...)
	}
}

func (s *Service) setupListeners() {
	for _, kind := range plugin.FixedKinds() {
		if !s.caps.Has(kind) {
			continue
		}
		r := &Registration{
			Kind:     kind,
			Listener: plugin.NewListener(s.dispatcher(EventFor(kind))),
		}
		s.registrations = append(s.registrations, r)
		s.addRegistration(r)
	}
}

func (s *Service) addRegistration(r *Registration) {
	success := func() {}
	failure := func(err error) {
		s.logger.Printf("Failed to add %s listener %s: %v", r, r.Listener.ID, err)
	}
	if r.Kind == plugin.KindMimeType {
		plugin.AddMimeTypeListener(s.plugin, r.MimeType, r.Listener, success, failure)
		return
	}
	plugin.AddListener(s.plugin, r.Kind, r.Listener, success, failure)
}

func (s *Service) removeRegistration(r *Registration) {
	success := func() {}
	failure := func(err error) {
		s.logger.Printf("Failed to remove %s listener %s: %v", r, r.Listener.ID, err)
	}
	if r.Kind == plugin.KindMimeType {
		plugin.RemoveMimeTypeListener(s.plugin, r.MimeType, r.Listener, success, failure)
		return
	}
	plugin.RemoveListener(s.plugin, r.Kind, r.Listener, success, failure)
}

// MimeTypes returns the mutable MIME type list.
func (s *Service) MimeTypes() *MimeTypeList {
	return s.mimeTypes
}

// Registrations returns a snapshot of the active native registrations.
func (s *Service) Registrations() []Registration {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Registration, 0, len(s.registrations))
	for _, r := range s.registrations {
		out = append(out, *r)
	}
	return out
}

// reconcileMimeTypes brings the native MIME listeners in line with the MIME
// type list. Changes made while a reconciliation is running are folded into
// another pass by the goroutine already reconciling.
func (s *Service) reconcileMimeTypes() {
	s.mu.Lock()
	if s.reconciling {
		s.dirty = true
		s.mu.Unlock()
		return
	}
	s.reconciling = true
	s.mu.Unlock()

	for {
		s.mu.Lock()
		s.dirty = false
		if s.disposed || s.plugin == nil {
			// Dispose leaves the removals to a running pass.
			regs := s.registrations
			s.registrations = nil
			s.reconciling = false
			s.mu.Unlock()
			for _, r := range regs {
				s.removeRegistration(r)
			}
			return
		}
		if !s.caps.Has(plugin.KindMimeType) {
			s.reconciling = false
			s.mu.Unlock()
			s.logger.Printf("Plugin has no MIME type listener support, ignoring MIME type list change")
			return
		}

		wanted, empty := normalizeMimeTypes(s.mimeTypes.Values())
		removed, added := s.diffMimeTypesLocked(wanted)
		s.mu.Unlock()

		if empty > 0 {
			s.logger.Printf("Ignoring %d empty MIME type entries", empty)
		}
		for _, r := range removed {
			s.removeRegistration(r)
		}
		for _, r := range added {
			s.addRegistration(r)
		}

		s.mu.Lock()
		if !s.dirty {
			s.reconciling = false
			s.mu.Unlock()
			return
		}
		s.mu.Unlock()
	}
}

// diffMimeTypesLocked updates s.registrations to match wanted and returns
// the registrations to remove from and add to the plugin. s.mu must be held.
func (s *Service) diffMimeTypesLocked(wanted []string) (removed, added []*Registration) {
	want := make(map[string]bool, len(wanted))
	for _, m := range wanted {
		want[m] = true
	}

	kept := make([]*Registration, 0, len(s.registrations)+len(wanted))
	have := make(map[string]bool, len(wanted))
	for _, r := range s.registrations {
		if r.Kind != plugin.KindMimeType {
			kept = append(kept, r)
			continue
		}
		if want[r.MimeType] && !have[r.MimeType] {
			have[r.MimeType] = true
			kept = append(kept, r)
			continue
		}
		removed = append(removed, r)
	}

	for _, m := range wanted {
		if have[m] {
			continue
		}
		have[m] = true
		r := &Registration{
			Kind:     plugin.KindMimeType,
			MimeType: m,
			Listener: plugin.NewListener(s.dispatcher(EventNdefTagWithMimeTypeDiscovered)),
		}
		added = append(added, r)
		kept = append(kept, r)
	}

	s.registrations = kept
	return removed, added
}

// Dispose removes every native listener the service registered. Later MIME
// list changes and status queries are ignored. It is safe to call more than
// once, including from an event handler. While MIME listeners are being
// reconciled the removals happen when the running pass ends.
func (s *Service) Dispose() {
	s.mu.Lock()
	if s.disposed {
		s.mu.Unlock()
		return
	}
	s.disposed = true
	if s.reconciling {
		s.dirty = true
		s.mu.Unlock()
		close(s.stop)
		return
	}
	regs := s.registrations
	s.registrations = nil
	s.mu.Unlock()

	close(s.stop)

	for _, r := range regs {
		s.removeRegistration(r)
	}
}

// Disposed reports whether Dispose has been called.
func (s *Service) Disposed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.disposed
}
