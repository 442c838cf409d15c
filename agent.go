package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"sync"

	"github.com/dotside-studios/davi-nfc-service/buildinfo"
	"github.com/dotside-studios/davi-nfc-service/certs"
	"github.com/dotside-studios/davi-nfc-service/config"
	"github.com/dotside-studios/davi-nfc-service/nfc"
	"github.com/dotside-studios/davi-nfc-service/nfcservice"
	"github.com/dotside-studios/davi-nfc-service/plugin"
	"github.com/dotside-studios/davi-nfc-service/plugin/hardware"
	"github.com/dotside-studios/davi-nfc-service/plugin/remote"
	"github.com/dotside-studios/davi-nfc-service/server"
)

// Agent wires the configured plugin, the NFC service and the server.
type Agent struct {
	Logger  *log.Logger
	Config  *config.Config
	Manager nfc.Manager // Reader manager for the hardware backend

	Service  *nfcservice.Service
	Server   *server.Server
	Hardware *hardware.Plugin
	Remote   *remote.Plugin
	Certs    *certs.Manager

	mu     sync.Mutex
	cancel context.CancelFunc
	tls    bool
}

func NewAgent(cfg *config.Config, manager nfc.Manager) *Agent {
	if manager == nil {
		manager = nfc.NewManager()
	}
	return &Agent{
		Logger:  log.New(os.Stderr, "[agent] ", log.LstdFlags),
		Config:  cfg,
		Manager: manager,
	}
}

// Running reports whether Start succeeded and Stop has not been called.
func (a *Agent) Running() bool {
	return a.CurrentService() != nil
}

// CurrentService returns the running service, or nil when stopped.
func (a *Agent) CurrentService() *nfcservice.Service {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.Service
}

// buildPlugin creates the backend selected in the configuration. The none
// backend yields a nil plugin, which the service reports as NFC unavailable.
func (a *Agent) buildPlugin() (plugin.Plugin, error) {
	switch a.Config.Plugin.Backend {
	case config.BackendHardware:
		a.Hardware = hardware.New(hardware.Config{
			Manager:      a.Manager,
			Device:       a.Config.Plugin.Device,
			PollInterval: a.Config.Plugin.PollInterval(),
		})
		return a.Hardware, nil
	case config.BackendRemote:
		a.Remote = remote.New(remote.Config{})
		return a.Remote, nil
	case config.BackendNone:
		return nil, nil
	}
	return nil, fmt.Errorf("unknown plugin backend %q", a.Config.Plugin.Backend)
}

// tlsFiles returns the configured certificate pair, issuing one when
// AutoTLS is on and none was configured. Failing to issue falls back to
// plain HTTP.
func (a *Agent) tlsFiles() (certFile, keyFile string) {
	sc := a.Config.Server
	if sc.TLS() {
		return sc.CertFile, sc.KeyFile
	}
	if !sc.AutoTLS {
		return "", ""
	}

	if a.Certs == nil {
		dir, err := certs.DefaultDir(buildinfo.Name)
		if err != nil {
			a.Logger.Printf("Warning: no config directory for certificates: %v", err)
			return "", ""
		}
		a.Certs = certs.NewManager(dir, nil)
	}
	certFile, keyFile, err := a.Certs.Ensure()
	if err != nil {
		a.Logger.Printf("Warning: automatic TLS unavailable, serving plain HTTP: %v", err)
		return "", ""
	}
	return certFile, keyFile
}

func (a *Agent) Start() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.Service != nil {
		return errors.New("agent is already running")
	}

	p, err := a.buildPlugin()
	if err != nil {
		return err
	}

	svc := nfcservice.New(p, nfcservice.Config{MimeTypes: a.Config.MimeTypes})

	certFile, keyFile := a.tlsFiles()
	srvCfg := server.Config{
		Service:   svc,
		Port:      a.Config.Server.Port,
		APISecret: a.Config.Server.APISecret,
		CertFile:  certFile,
		KeyFile:   keyFile,
		MDNS:      a.Config.Server.MDNS,
	}
	if a.Certs != nil && certFile != "" {
		srvCfg.CACert = a.Certs.CACert
	}
	srv := server.New(srvCfg)

	if a.Remote != nil {
		a.Remote.Register(srv)
	}

	ctx, cancel := context.WithCancel(context.Background())
	if a.Hardware != nil {
		a.Hardware.Start(ctx)
	}

	a.Service = svc
	a.Server = srv
	a.cancel = cancel
	a.tls = certFile != ""

	svc.QueryStatus()

	go func() {
		if err := srv.Start(); err != nil {
			a.Logger.Printf("Server stopped: %v", err)
		}
	}()

	a.Logger.Printf("Agent started (plugin: %s, port: %d)", a.Config.Plugin.Backend, a.Config.Server.Port)
	return nil
}

func (a *Agent) Stop() {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.Service == nil {
		a.Logger.Println("Agent is not running")
		return
	}

	a.Logger.Println("Stopping agent...")

	a.Server.Stop()
	a.Service.Dispose()

	if a.Hardware != nil {
		if err := a.Hardware.Close(); err != nil {
			a.Logger.Printf("Error closing NFC reader: %v", err)
		}
		a.Hardware = nil
	}
	if a.Remote != nil {
		a.Remote.Close()
		a.Remote = nil
	}
	a.cancel()

	a.Service = nil
	a.Server = nil
	a.Logger.Println("Agent stopped successfully")
}

// ConsumerURL returns the websocket URL local applications connect to.
func (a *Agent) ConsumerURL() string {
	return a.url("localhost", server.WebSocketPath)
}

// DeviceURL returns the URL phones connect to with the remote backend.
func (a *Agent) DeviceURL() string {
	return a.url(certs.PreferredHost(), server.DevicePath)
}

// CACertURL returns where phones download the local CA, or "" when the
// agent serves no generated certificate.
func (a *Agent) CACertURL() string {
	a.mu.Lock()
	issued := a.Certs != nil && a.tls
	a.mu.Unlock()
	if !issued {
		return ""
	}
	return fmt.Sprintf("https://%s:%d%s", certs.PreferredHost(), a.Config.Server.Port, server.CACertPath)
}

func (a *Agent) url(host, path string) string {
	a.mu.Lock()
	secure := a.tls
	a.mu.Unlock()

	scheme := "ws"
	if secure {
		scheme = "wss"
	}
	return fmt.Sprintf("%s://%s:%d%s", scheme, host, a.Config.Server.Port, path)
}
