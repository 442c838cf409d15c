// Package main runs the Davi NFC service: it adapts a local NFC reader or a
// paired phone into an NFC event source and exposes it to local
// applications over HTTP and WebSocket.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/dotside-studios/davi-nfc-service/buildinfo"
	"github.com/dotside-studios/davi-nfc-service/config"
	"github.com/dotside-studios/davi-nfc-service/nfc"
)

type cliFlags struct {
	configPath string
	backend    string
	device     string
	port       int
	apiSecret  string
	mimeTypes  string
	cli        bool
	noMDNS     bool
	autoTLS    bool
	version    bool
}

func parseFlags(args []string) (cliFlags, *flag.FlagSet, error) {
	var f cliFlags
	fs := flag.NewFlagSet(buildinfo.Name, flag.ContinueOnError)
	fs.StringVar(&f.configPath, "config", "", "Path to a YAML config file (optional)")
	fs.StringVar(&f.backend, "plugin", "", "NFC backend: hardware, remote or none")
	fs.StringVar(&f.device, "device", "", "libnfc connection string of the reader (optional)")
	fs.IntVar(&f.port, "port", 0, "Port to listen on")
	fs.StringVar(&f.apiSecret, "api-secret", "", "API secret required from clients (optional)")
	fs.StringVar(&f.mimeTypes, "mime", "", "Comma separated MIME types to listen for")
	fs.BoolVar(&f.cli, "cli", false, "Run in CLI mode (default: system tray mode)")
	fs.BoolVar(&f.noMDNS, "no-mdns", false, "Disable mDNS advertisement")
	fs.BoolVar(&f.autoTLS, "auto-tls", false, "Issue a locally trusted certificate for wss")
	fs.BoolVar(&f.version, "version", false, "Print version information and exit")
	err := fs.Parse(args)
	return f, fs, err
}

// loadConfig loads the config file and applies the flags that were set on
// top of it.
func loadConfig(f cliFlags, fs *flag.FlagSet) (*config.Config, error) {
	cfg, err := config.Load(f.configPath)
	if err != nil {
		return nil, err
	}

	fs.Visit(func(fl *flag.Flag) {
		switch fl.Name {
		case "plugin":
			cfg.Plugin.Backend = f.backend
		case "device":
			cfg.Plugin.Device = f.device
		case "port":
			cfg.Server.Port = f.port
		case "api-secret":
			cfg.Server.APISecret = f.apiSecret
		case "mime":
			cfg.MimeTypes = config.SplitList(f.mimeTypes)
		case "no-mdns":
			cfg.Server.MDNS = !f.noMDNS
		case "auto-tls":
			cfg.Server.AutoTLS = f.autoTLS
		}
	})

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid flags: %w", err)
	}
	return cfg, nil
}

func main() {
	f, fs, err := parseFlags(os.Args[1:])
	if err != nil {
		os.Exit(2)
	}
	if f.version {
		fmt.Println(buildinfo.BuildInfo())
		return
	}

	cfg, err := loadConfig(f, fs)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	agent := NewAgent(cfg, nfc.NewManager())

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	if f.cli {
		if err := agent.Start(); err != nil {
			log.Fatalf("Failed to start agent: %v", err)
		}
		defer agent.Stop()

		log.Printf("%s listening on %s", buildinfo.DisplayName, agent.ConsumerURL())
		<-sigChan
		log.Println("Shutdown signal received, stopping...")
		return
	}

	app := NewSystrayApp(agent)
	go func() {
		<-sigChan
		app.Quit()
	}()
	app.Run()
}
