// Package config loads the service configuration from an optional YAML file
// and DAVI_NFC_* environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/dotside-studios/davi-nfc-service/buildinfo"
)

// Plugin backends
const (
	BackendHardware = "hardware"
	BackendRemote   = "remote"
	BackendNone     = "none"
)

// Defaults
const (
	DefaultPort           = 18080
	DefaultPollIntervalMS = 250
)

type Config struct {
	Plugin    PluginConfig `yaml:"plugin"`
	Server    ServerConfig `yaml:"server"`
	MimeTypes []string     `yaml:"mimeTypes" validate:"dive,required"`
}

type PluginConfig struct {
	Backend        string `yaml:"backend" validate:"oneof=hardware remote none"`
	Device         string `yaml:"device"`
	PollIntervalMS int    `yaml:"pollIntervalMs" validate:"min=10,max=10000"`
}

type ServerConfig struct {
	Port      int    `yaml:"port" validate:"min=1,max=65535"`
	APISecret string `yaml:"apiSecret"`
	CertFile  string `yaml:"certFile" validate:"required_with=KeyFile"`
	KeyFile   string `yaml:"keyFile" validate:"required_with=CertFile"`
	MDNS      bool   `yaml:"mdns"`

	// AutoTLS issues a locally trusted certificate when no cert/key pair is
	// configured.
	AutoTLS bool `yaml:"autoTls"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Plugin: PluginConfig{
			Backend:        BackendHardware,
			PollIntervalMS: DefaultPollIntervalMS,
		},
		Server: ServerConfig{
			Port: DefaultPort,
			MDNS: true,
		},
	}
}

// Load reads the file at path over the defaults, applies environment
// overrides and validates the result. An empty path skips the file.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	if err := applyEnvOverrides(cfg, os.Getenv); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// Validate checks field constraints.
func (c *Config) Validate() error {
	return validator.New().Struct(c)
}

// applyEnvOverrides applies DAVI_NFC_* variables read through getenv.
func applyEnvOverrides(cfg *Config, getenv func(string) string) error {
	env := func(name string) string {
		return strings.TrimSpace(getenv(buildinfo.EnvPrefix + name))
	}

	if v := env("PLUGIN"); v != "" {
		cfg.Plugin.Backend = v
	}
	if v := env("DEVICE"); v != "" {
		cfg.Plugin.Device = v
	}
	if v := env("POLL_INTERVAL_MS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid %sPOLL_INTERVAL_MS: %w", buildinfo.EnvPrefix, err)
		}
		cfg.Plugin.PollIntervalMS = n
	}
	if v := env("PORT"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid %sPORT: %w", buildinfo.EnvPrefix, err)
		}
		cfg.Server.Port = n
	}
	if v := env("API_SECRET"); v != "" {
		cfg.Server.APISecret = v
	}
	if v := env("CERT_FILE"); v != "" {
		cfg.Server.CertFile = v
	}
	if v := env("KEY_FILE"); v != "" {
		cfg.Server.KeyFile = v
	}
	if v := env("MDNS"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid %sMDNS: %w", buildinfo.EnvPrefix, err)
		}
		cfg.Server.MDNS = b
	}
	if v := env("AUTO_TLS"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid %sAUTO_TLS: %w", buildinfo.EnvPrefix, err)
		}
		cfg.Server.AutoTLS = b
	}
	if v := env("MIME_TYPES"); v != "" {
		cfg.MimeTypes = SplitList(v)
	}
	return nil
}

// SplitList splits a comma separated list, dropping blank entries.
func SplitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// PollInterval returns the poll interval as a duration
func (p PluginConfig) PollInterval() time.Duration {
	return time.Duration(p.PollIntervalMS) * time.Millisecond
}

// TLS reports whether both a certificate and a key are configured.
func (s ServerConfig) TLS() bool {
	return s.CertFile != "" && s.KeyFile != ""
}
