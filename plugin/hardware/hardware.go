// Package hardware implements the NFC plugin contract on top of a local
// libnfc reader.
//
// The plugin polls the reader in a background worker, tracks which tags are
// in the field and dispatches each newly presented tag to the registered
// listeners, the same way a mobile platform plugin would.
//
// Example:
//
//	p := hardware.New(hardware.Config{Manager: nfc.NewManager()})
//	p.Start(ctx)
//	defer p.Close()
//	svc := nfcservice.New(p, nfcservice.Config{})
package hardware

import (
	"errors"
	"log"
	"os"
	"sync"
	"time"

	"github.com/dotside-studios/davi-nfc-service/nfc"
	"github.com/dotside-studios/davi-nfc-service/plugin"
)

// Polling intervals
const (
	DefaultPollInterval     = 250 * time.Millisecond
	DeviceErrorCooldown     = 10 * time.Second
	SourceName              = "hardware"
	defaultStatusBufferSize = 1
)

// Config configures a hardware Plugin.
type Config struct {
	// Manager lists and opens readers. Defaults to nfc.NewManager().
	Manager nfc.Manager

	// Device is the libnfc connection string. Empty selects the first
	// reader reported by the manager.
	Device string

	// PollInterval is how often the field is polled for tags.
	PollInterval time.Duration

	// Cooldown is how long to wait before reopening a reader after a
	// device error.
	Cooldown time.Duration

	Logger *log.Logger
}

// Plugin is a plugin.Plugin backed by a libnfc reader.
type Plugin struct {
	manager      nfc.Manager
	devicePath   string
	pollInterval time.Duration
	cooldown     time.Duration
	logger       *log.Logger
	registry     *plugin.Registry

	mu            sync.Mutex
	device        nfc.Device
	cooldownUntil time.Time
	present       map[string]bool

	statusChan chan struct{}
	stopChan   chan struct{}
	stopOnce   sync.Once
	started    bool
	workerWg   sync.WaitGroup
	now        func() time.Time
}

// New creates a hardware plugin. The reader is opened lazily by Enabled or
// by the poll worker.
func New(cfg Config) *Plugin {
	if cfg.Manager == nil {
		cfg.Manager = nfc.NewManager()
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = DeviceErrorCooldown
	}
	if cfg.Logger == nil {
		cfg.Logger = log.New(os.Stderr, "[nfc] ", log.LstdFlags)
	}

	return &Plugin{
		manager:      cfg.Manager,
		devicePath:   cfg.Device,
		pollInterval: cfg.PollInterval,
		cooldown:     cfg.Cooldown,
		logger:       cfg.Logger,
		registry:     plugin.NewRegistry(),
		present:      make(map[string]bool),
		statusChan:   make(chan struct{}, defaultStatusBufferSize),
		stopChan:     make(chan struct{}),
		now:          time.Now,
	}
}

// Enabled probes the reader asynchronously. No reader reports NO_NFC, a
// reader that cannot be opened or initialised reports NFC_DISABLED.
func (p *Plugin) Enabled(success func(), failure func(reason string)) {
	go func() {
		if reason := p.probe(); reason != "" {
			failure(reason)
			return
		}
		success()
	}()
}

func (p *Plugin) probe() string {
	if p.closed() {
		return plugin.ReasonNoNfc
	}

	p.mu.Lock()
	dev := p.device
	p.mu.Unlock()
	if dev != nil {
		return ""
	}

	devices, err := p.manager.ListDevices()
	if err != nil {
		p.logger.Printf("Enabled: listing readers failed: %v", err)
		return plugin.ReasonNoNfc
	}
	if len(devices) == 0 {
		return plugin.ReasonNoNfc
	}

	if _, err := p.connect(); err != nil {
		p.logger.Printf("Enabled: %v", err)
		return plugin.ReasonDisabled
	}
	return ""
}

func (p *Plugin) add(kind plugin.Kind, mimeType string, l *plugin.Listener, success func(), failure func(error)) {
	if l == nil {
		failure(plugin.NewError("Add"+string(kind), "", errors.New("listener is nil")))
		return
	}
	if p.closed() {
		failure(plugin.NewError("Add"+string(kind), "", plugin.ErrClosed))
		return
	}
	p.registry.Add(kind, mimeType, l)
	success()
}

func (p *Plugin) remove(kind plugin.Kind, mimeType string, l *plugin.Listener, success func(), failure func(error)) {
	if l == nil {
		failure(plugin.NewError("Remove"+string(kind), "", errors.New("listener is nil")))
		return
	}
	p.registry.Remove(kind, mimeType, l)
	success()
}

func (p *Plugin) AddTagDiscoveredListener(l *plugin.Listener, success func(), failure func(error)) {
	p.add(plugin.KindTagDiscovered, "", l, success, failure)
}

func (p *Plugin) RemoveTagDiscoveredListener(l *plugin.Listener, success func(), failure func(error)) {
	p.remove(plugin.KindTagDiscovered, "", l, success, failure)
}

func (p *Plugin) AddNdefListener(l *plugin.Listener, success func(), failure func(error)) {
	p.add(plugin.KindNdef, "", l, success, failure)
}

func (p *Plugin) RemoveNdefListener(l *plugin.Listener, success func(), failure func(error)) {
	p.remove(plugin.KindNdef, "", l, success, failure)
}

func (p *Plugin) AddNdefFormatableListener(l *plugin.Listener, success func(), failure func(error)) {
	p.add(plugin.KindNdefFormatable, "", l, success, failure)
}

func (p *Plugin) RemoveNdefFormatableListener(l *plugin.Listener, success func(), failure func(error)) {
	p.remove(plugin.KindNdefFormatable, "", l, success, failure)
}

func (p *Plugin) AddMimeTypeListener(mimeType string, l *plugin.Listener, success func(), failure func(error)) {
	p.add(plugin.KindMimeType, mimeType, l, success, failure)
}

func (p *Plugin) RemoveMimeTypeListener(mimeType string, l *plugin.Listener, success func(), failure func(error)) {
	p.remove(plugin.KindMimeType, mimeType, l, success, failure)
}

// StatusChanges implements plugin.StatusNotifier. It signals when a reader
// is connected or lost.
func (p *Plugin) StatusChanges() <-chan struct{} {
	return p.statusChan
}

func (p *Plugin) signalStatus() {
	select {
	case p.statusChan <- struct{}{}:
	default:
	}
}

// Connected reports whether a reader is currently open.
func (p *Plugin) Connected() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.device != nil
}

// DeviceName returns the name of the open reader, or "" when none is open.
func (p *Plugin) DeviceName() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.device == nil {
		return ""
	}
	return p.device.String()
}

func (p *Plugin) closed() bool {
	select {
	case <-p.stopChan:
		return true
	default:
		return false
	}
}

// Close stops the poll worker, closes the reader and drops every listener.
func (p *Plugin) Close() error {
	p.stopOnce.Do(func() {
		close(p.stopChan)
	})
	p.workerWg.Wait()

	p.mu.Lock()
	dev := p.device
	p.device = nil
	p.mu.Unlock()

	p.registry.Clear()
	if dev != nil {
		return dev.Close()
	}
	return nil
}
