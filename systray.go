package main

import (
	"fmt"
	"log"
	"os/exec"
	"runtime"
	"strings"
	"time"

	"fyne.io/systray"

	"github.com/dotside-studios/davi-nfc-service/buildinfo"
	"github.com/dotside-studios/davi-nfc-service/config"
	"github.com/dotside-studios/davi-nfc-service/nfcservice"
	"github.com/dotside-studios/davi-nfc-service/plugin"
)

const (
	statusRefreshInterval = time.Second
	maxMimeTypeItems      = 8
	eventBuffer           = 16
)

// SystrayApp manages the system tray interface for the NFC service
type SystrayApp struct {
	agent *Agent

	// Menu items
	mStatus       *systray.MenuItem
	mAvailable    *systray.MenuItem
	mEnabled      *systray.MenuItem
	mLastEvent    *systray.MenuItem
	mMimeMenu     *systray.MenuItem
	mimeItems     []*systray.MenuItem
	mConsumerURL  *systray.MenuItem
	mCopyConsumer *systray.MenuItem
	mDeviceURL    *systray.MenuItem
	mCopyDevice   *systray.MenuItem
	mCACertURL    *systray.MenuItem
	mDeviceMenu   *systray.MenuItem
	mRefresh      *systray.MenuItem
	mStart        *systray.MenuItem
	mStop         *systray.MenuItem
	mQuit         *systray.MenuItem

	deviceMenuItems map[string]*systray.MenuItem
	stopEvents      func()
}

// NewSystrayApp creates a new systray application
func NewSystrayApp(agent *Agent) *SystrayApp {
	return &SystrayApp{
		agent:           agent,
		deviceMenuItems: make(map[string]*systray.MenuItem),
	}
}

// Run starts the systray application and blocks until Quit.
func (s *SystrayApp) Run() {
	systray.Run(s.onReady, s.onExit)
}

// Quit exits the systray loop.
func (s *SystrayApp) Quit() {
	systray.Quit()
}

func (s *SystrayApp) onReady() {
	s.setupUI()
	s.startAgent()
	go s.refreshLoop()
	go s.handleMenuEvents()
}

func (s *SystrayApp) onExit() {
	s.unwatchEvents()
	s.agent.Stop()
}

// setupUI initializes all menu items
func (s *SystrayApp) setupUI() {
	systray.SetIcon(iconData)
	systray.SetTooltip(buildinfo.DisplayName)

	s.mStatus = systray.AddMenuItem("Starting...", "Service status")
	s.mStatus.Disable()
	s.mAvailable = systray.AddMenuItem("NFC available: unknown", "Whether NFC hardware is present")
	s.mAvailable.Disable()
	s.mEnabled = systray.AddMenuItem("NFC enabled: unknown", "Whether NFC is switched on")
	s.mEnabled.Disable()
	s.mLastEvent = systray.AddMenuItem("Last tag: None", "Most recent tag event")
	s.mLastEvent.Disable()

	systray.AddSeparator()

	s.mMimeMenu = systray.AddMenuItem("MIME types: none", "MIME types the service listens for")
	for i := 0; i < maxMimeTypeItems; i++ {
		item := s.mMimeMenu.AddSubMenuItem("", "")
		item.Disable()
		item.Hide()
		s.mimeItems = append(s.mimeItems, item)
	}

	urls := systray.AddMenuItem("Server URLs", "Server addresses")
	s.mConsumerURL = urls.AddSubMenuItem("Consumer: Not running", "WebSocket URL for local applications")
	s.mConsumerURL.Disable()
	s.mCopyConsumer = urls.AddSubMenuItem("  Copy Consumer URL", "Copy the consumer URL to clipboard")
	s.mDeviceURL = urls.AddSubMenuItem("Phone: Not running", "WebSocket URL for the phone app")
	s.mDeviceURL.Disable()
	s.mCopyDevice = urls.AddSubMenuItem("  Copy Phone URL", "Copy the phone URL to clipboard")
	s.mCACertURL = urls.AddSubMenuItem("CA Cert: Disabled", "CA certificate download URL")
	s.mCACertURL.Disable()

	systray.AddSeparator()

	s.mDeviceMenu = systray.AddMenuItem("Reader", "Select NFC reader")
	if s.agent.Config.Plugin.Backend != config.BackendHardware {
		s.mDeviceMenu.Hide()
	}

	s.mRefresh = systray.AddMenuItem("Refresh NFC Status", "Ask the plugin for the NFC status again")

	systray.AddSeparator()

	s.mStart = systray.AddMenuItem("Start Service", "Start the NFC service")
	s.mStop = systray.AddMenuItem("Stop Service", "Stop the NFC service")
	s.mStart.Disable()
	s.mStop.Disable()

	systray.AddSeparator()
	s.mQuit = systray.AddMenuItem("Quit", "Quit the application")
}

func (s *SystrayApp) startAgent() {
	if err := s.agent.Start(); err != nil {
		log.Printf("[systray] Failed to start: %v", err)
		s.updateStatus("Failed to Start")
		s.mStart.Enable()
		s.mStop.Disable()
		return
	}
	s.updateStatus("Running")
	s.updateURLs()
	s.watchEvents()
	s.updateDeviceList()
	s.mStart.Disable()
	s.mStop.Enable()
}

func (s *SystrayApp) stopAgent() {
	s.unwatchEvents()
	s.agent.Stop()
	s.updateStatus("Stopped")
	s.clearURLs()
	s.mStop.Disable()
	s.mStart.Enable()
}

// watchEvents shows the most recent tag event of the running service.
func (s *SystrayApp) watchEvents() {
	svc := s.agent.CurrentService()
	if svc == nil {
		return
	}
	events, cancel := svc.Stream(eventBuffer, nfcservice.TagEvents...)
	s.stopEvents = cancel
	go func() {
		for em := range events {
			s.mLastEvent.SetTitle("Last tag: " + describeEvent(em))
		}
	}()
}

func (s *SystrayApp) unwatchEvents() {
	if s.stopEvents != nil {
		s.stopEvents()
		s.stopEvents = nil
	}
}

// describeEvent formats an emission for the tray.
func describeEvent(em nfcservice.Emission) string {
	if len(em.Args) > 0 {
		if ev, ok := em.Args[0].(plugin.TagEvent); ok {
			desc := ev.Tag.UID
			if ev.Tag.Type != "" {
				desc += " (" + ev.Tag.Type + ")"
			}
			return desc
		}
	}
	return em.Event
}

func yesNo(t nfcservice.Tristate) string {
	switch t {
	case nfcservice.True:
		return "yes"
	case nfcservice.False:
		return "no"
	}
	return "unknown"
}

// refreshLoop keeps the status and MIME type items current.
func (s *SystrayApp) refreshLoop() {
	ticker := time.NewTicker(statusRefreshInterval)
	defer ticker.Stop()

	for range ticker.C {
		svc := s.agent.CurrentService()
		if svc == nil {
			s.mAvailable.SetTitle("NFC available: unknown")
			s.mEnabled.SetTitle("NFC enabled: unknown")
			continue
		}
		s.mAvailable.SetTitle("NFC available: " + yesNo(svc.Availability()))
		s.mEnabled.SetTitle("NFC enabled: " + yesNo(svc.Enabled()))
		s.updateMimeTypes(svc.MimeTypes().Values())
		if s.agent.Config.Plugin.Backend == config.BackendRemote {
			s.updateRemoteDevice()
		}
	}
}

func (s *SystrayApp) updateRemoteDevice() {
	s.agent.mu.Lock()
	r := s.agent.Remote
	s.agent.mu.Unlock()
	if r == nil {
		return
	}
	if info, ok := r.Device(); ok {
		s.mStatus.SetTitle("Running (phone: " + info.Name + ")")
		systray.SetIcon(iconDataConnected)
	} else {
		s.mStatus.SetTitle("Running (waiting for phone)")
		systray.SetIcon(iconData)
	}
}

func (s *SystrayApp) updateMimeTypes(values []string) {
	if len(values) == 0 {
		s.mMimeMenu.SetTitle("MIME types: none")
	} else {
		s.mMimeMenu.SetTitle(fmt.Sprintf("MIME types: %d", len(values)))
	}
	for i, item := range s.mimeItems {
		switch {
		case i < len(values) && i == maxMimeTypeItems-1 && len(values) > maxMimeTypeItems:
			item.SetTitle(fmt.Sprintf("... and %d more", len(values)-i))
			item.Show()
		case i < len(values):
			item.SetTitle(values[i])
			item.Show()
		default:
			item.Hide()
		}
	}
}

// handleMenuEvents processes all menu click events
func (s *SystrayApp) handleMenuEvents() {
	for {
		select {
		case <-s.mStart.ClickedCh:
			s.startAgent()
		case <-s.mStop.ClickedCh:
			s.stopAgent()
		case <-s.mRefresh.ClickedCh:
			if svc := s.agent.CurrentService(); svc != nil {
				svc.Refresh()
			}
			s.updateDeviceList()
		case <-s.mCopyConsumer.ClickedCh:
			s.copyURL("consumer", s.agent.ConsumerURL())
		case <-s.mCopyDevice.ClickedCh:
			s.copyURL("phone", s.agent.DeviceURL())
		case <-s.mQuit.ClickedCh:
			systray.Quit()
			return
		case <-time.After(200 * time.Millisecond):
		}

		s.handleDeviceSelection()
	}
}

func (s *SystrayApp) copyURL(name, url string) {
	if !s.agent.Running() {
		return
	}
	if err := copyToClipboard(url); err != nil {
		log.Printf("[systray] Failed to copy to clipboard: %v", err)
		return
	}
	log.Printf("[systray] Copied %s URL to clipboard", name)
}

// handleDeviceSelection processes reader menu selections
func (s *SystrayApp) handleDeviceSelection() {
	for name, item := range s.deviceMenuItems {
		select {
		case <-item.ClickedCh:
			if s.agent.Config.Plugin.Device != name {
				s.switchDevice(name)
			}
		default:
		}
	}
}

// switchDevice restarts the service on another reader.
func (s *SystrayApp) switchDevice(name string) {
	for device, item := range s.deviceMenuItems {
		if device == name {
			item.Check()
		} else {
			item.Uncheck()
		}
	}
	s.agent.Config.Plugin.Device = name

	if s.agent.Running() {
		s.stopAgent()
		s.startAgent()
	}
}

// updateDeviceList refreshes the list of available readers
func (s *SystrayApp) updateDeviceList() {
	if s.agent.Config.Plugin.Backend != config.BackendHardware {
		return
	}

	for _, item := range s.deviceMenuItems {
		item.Hide()
	}
	s.deviceMenuItems = make(map[string]*systray.MenuItem)

	devices, err := s.agent.Manager.ListDevices()
	if err != nil {
		log.Printf("[systray] Error listing readers: %v", err)
		return
	}
	current := s.agent.Config.Plugin.Device
	for i, device := range devices {
		checked := device == current || (current == "" && i == 0)
		s.deviceMenuItems[device] = s.mDeviceMenu.AddSubMenuItemCheckbox(device, "Use this reader", checked)
	}
	if len(devices) == 0 {
		s.mDeviceMenu.SetTitle("Reader: none found")
	} else {
		s.mDeviceMenu.SetTitle("Reader")
	}
}

// updateStatus updates the status menu item and icon
func (s *SystrayApp) updateStatus(status string) {
	s.mStatus.SetTitle(status)

	switch status {
	case "Running":
		systray.SetIcon(iconDataConnected)
	case "Failed to Start":
		systray.SetIcon(iconDataError)
	case "Stopped":
		systray.SetIcon(iconDataStopped)
	default:
		systray.SetIcon(iconData)
	}
}

// updateURLs updates all server URL displays
func (s *SystrayApp) updateURLs() {
	s.mConsumerURL.SetTitle("Consumer: " + s.agent.ConsumerURL())
	if s.agent.Config.Plugin.Backend == config.BackendRemote {
		s.mDeviceURL.SetTitle("Phone: " + s.agent.DeviceURL())
	} else {
		s.mDeviceURL.SetTitle("Phone: Disabled")
	}
	if url := s.agent.CACertURL(); url != "" {
		s.mCACertURL.SetTitle("CA Cert: " + url)
	} else {
		s.mCACertURL.SetTitle("CA Cert: Disabled")
	}
}

// clearURLs resets all URL displays to "Not running"
func (s *SystrayApp) clearURLs() {
	s.mConsumerURL.SetTitle("Consumer: Not running")
	s.mDeviceURL.SetTitle("Phone: Not running")
	s.mCACertURL.SetTitle("CA Cert: Disabled")
}

// copyToClipboard copies text to the system clipboard
func copyToClipboard(text string) error {
	var cmd *exec.Cmd

	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("pbcopy")
	case "linux":
		cmd = exec.Command("xclip", "-selection", "clipboard")
	case "windows":
		cmd = exec.Command("clip")
	default:
		return fmt.Errorf("unsupported platform: %s", runtime.GOOS)
	}

	cmd.Stdin = strings.NewReader(text)
	return cmd.Run()
}
