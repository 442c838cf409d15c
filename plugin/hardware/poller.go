package hardware

import (
	"context"
	"fmt"
	"time"

	"github.com/dotside-studios/davi-nfc-service/nfc"
	"github.com/dotside-studios/davi-nfc-service/plugin"
)

// connect opens and initialises the configured reader, or the first one
// listed when no device was configured. An already open reader is reused.
func (p *Plugin) connect() (nfc.Device, error) {
	p.mu.Lock()
	if p.device != nil {
		dev := p.device
		p.mu.Unlock()
		return dev, nil
	}
	p.mu.Unlock()

	path := p.devicePath
	if path == "" {
		devices, err := p.manager.ListDevices()
		if err != nil {
			return nil, fmt.Errorf("error listing NFC devices: %w", err)
		}
		if len(devices) == 0 {
			return nil, nfc.NewNoDeviceError("connect", nil)
		}
		path = devices[0]
	}

	dev, err := p.manager.OpenDevice(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open device %s: %w", path, err)
	}
	if err := dev.InitiatorInit(); err != nil {
		dev.Close()
		return nil, fmt.Errorf("failed to initialize device %s: %w", path, err)
	}

	p.mu.Lock()
	if p.device != nil {
		// Lost a race with another connect; keep the first reader.
		existing := p.device
		p.mu.Unlock()
		dev.Close()
		return existing, nil
	}
	p.device = dev
	p.mu.Unlock()

	p.logger.Printf("Connected NFC device: %s (Connection: %s)", dev.String(), dev.Connection())
	p.signalStatus()
	return dev, nil
}

// disconnect closes the reader after an error and starts the cooldown.
func (p *Plugin) disconnect(cause error) {
	p.mu.Lock()
	dev := p.device
	p.device = nil
	p.cooldownUntil = p.now().Add(p.cooldown)
	p.present = make(map[string]bool)
	p.mu.Unlock()

	if dev == nil {
		return
	}
	p.logger.Printf("NFC device %s lost: %v. Retrying in %v", dev.String(), cause, p.cooldown)
	dev.Close()
	p.signalStatus()
}

func (p *Plugin) inCooldown() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.now().Before(p.cooldownUntil)
}

// Start launches the poll worker. It returns immediately; the worker stops
// when ctx is done or Close is called.
func (p *Plugin) Start(ctx context.Context) {
	p.mu.Lock()
	if p.started {
		p.mu.Unlock()
		return
	}
	p.started = true
	p.mu.Unlock()

	p.workerWg.Add(1)
	go p.worker(ctx)
}

func (p *Plugin) worker(ctx context.Context) {
	defer p.workerWg.Done()
	p.logger.Println("NFC poll worker started.")
	defer p.logger.Println("NFC poll worker stopped.")

	var changes <-chan struct{}
	if n, ok := p.manager.(nfc.DeviceChangeNotifier); ok {
		changes = n.DeviceChanges()
	}

	pollTicker := time.NewTicker(p.pollInterval)
	defer pollTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-p.stopChan:
			return
		case <-changes:
			p.logger.Println("Reader list changed.")
			p.signalStatus()
		case <-pollTicker.C:
			p.pollOnce()
		}
	}
}

// pollOnce polls the field once and dispatches tags that were not present
// in the previous poll. It returns the number of newly discovered tags.
func (p *Plugin) pollOnce() int {
	if p.closed() {
		return 0
	}

	p.mu.Lock()
	dev := p.device
	p.mu.Unlock()
	if dev == nil {
		if p.inCooldown() {
			return 0
		}
		var err error
		if dev, err = p.connect(); err != nil {
			p.mu.Lock()
			p.cooldownUntil = p.now().Add(p.cooldown)
			p.mu.Unlock()
			return 0
		}
	}

	tags, err := dev.GetTags()
	if err != nil {
		if nfc.IsDeviceError(err) {
			p.disconnect(err)
		} else if !nfc.IsTagRemovedError(err) {
			p.logger.Printf("Error polling tags: %v", err)
		}
		return 0
	}

	seen := make(map[string]bool, len(tags))
	var fresh []nfc.Tag
	p.mu.Lock()
	for _, t := range tags {
		uid := t.UID()
		if uid == "" || seen[uid] {
			continue
		}
		seen[uid] = true
		if !p.present[uid] {
			fresh = append(fresh, t)
		}
	}
	p.present = seen
	p.mu.Unlock()

	for _, t := range fresh {
		p.dispatch(t)
	}
	return len(fresh)
}

// dispatch reads a tag and calls the listeners it qualifies for.
func (p *Plugin) dispatch(t nfc.Tag) {
	tag := plugin.Tag{
		UID:        t.UID(),
		Type:       t.Type(),
		Technology: t.Technology(),
		ScannedAt:  p.now(),
		Source:     SourceName,
	}

	content, err := t.ReadNDEF()
	if err != nil {
		p.logger.Printf("Error reading NDEF for tag UID %s (Type: %s): %v", tag.UID, tag.Type, err)
		content = nfc.NDEFContent{State: nfc.NDEFUnsupported}
	}
	if content.State == nfc.NDEFFormatted && len(content.Message) > 0 {
		records, err := nfc.ParseMessage(content.Message)
		if err != nil {
			p.logger.Printf("Invalid NDEF message on tag UID %s: %v", tag.UID, err)
		}
		tag.NdefMessage = convertRecords(records)
	}

	p.logger.Printf("Tag discovered: UID %s (Type: %s, NDEF: %s)", tag.UID, tag.Type, content.State)

	fire(p.registry.Listeners(plugin.KindTagDiscovered), plugin.EventTypeTag, tag)

	switch content.State {
	case nfc.NDEFFormatted:
		fire(p.registry.Listeners(plugin.KindNdef), plugin.EventTypeNdef, tag)
		if mime := tag.MimeType(); mime != "" {
			fire(p.registry.MimeListeners(mime), plugin.EventTypeNdefMime, tag)
		}
	case nfc.NDEFFormatable:
		fire(p.registry.Listeners(plugin.KindNdefFormatable), plugin.EventTypeNdefFormatable, tag)
	}
}

func fire(listeners []*plugin.Listener, eventType string, tag plugin.Tag) {
	for _, l := range listeners {
		l.Dispatch(plugin.TagEvent{Type: eventType, Tag: tag})
	}
}

func convertRecords(records []nfc.Record) []plugin.Record {
	if len(records) == 0 {
		return nil
	}
	out := make([]plugin.Record, len(records))
	for i, r := range records {
		out[i] = plugin.Record{TNF: r.TNF, Type: r.Type, ID: r.ID, Payload: r.Payload}
	}
	return out
}
