// Package certs issues a locally trusted server certificate so phones on the
// LAN can reach the device endpoint over wss.
//
// The CA is created and installed into the OS trust store by truststore and
// kept under the service's config directory. The server certificate is
// reissued whenever the set of LAN addresses changes.
package certs

import (
	"crypto/sha256"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/jittering/truststore"
)

// Issuer installs a CA and signs server certificates with it.
type Issuer interface {
	Install() error
	Issue(hosts []string, dir string) (certFile, keyFile string, err error)
}

type truststoreIssuer struct {
	install func() error
	issue   func(hosts []string, dir string) (string, string, error)
}

func (t truststoreIssuer) Install() error { return t.install() }

func (t truststoreIssuer) Issue(hosts []string, dir string) (string, string, error) {
	return t.issue(hosts, dir)
}

// NewTruststoreIssuer returns an Issuer whose CA lives in caDir.
func NewTruststoreIssuer(caDir string) (Issuer, error) {
	if err := os.MkdirAll(caDir, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create CA directory: %w", err)
	}
	// truststore reads its CA location from CAROOT
	os.Setenv("CAROOT", caDir)

	lib, err := truststore.NewLib()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize truststore: %w", err)
	}
	return truststoreIssuer{
		install: lib.Install,
		issue: func(hosts []string, dir string) (string, string, error) {
			cert, err := lib.MakeCert(hosts, dir)
			if err != nil {
				return "", "", err
			}
			return cert.CertFile, cert.KeyFile, nil
		},
	}, nil
}

// Manager keeps the server certificate under dir in sync with the host's
// addresses.
type Manager struct {
	tlsDir     string
	caDir      string
	caCertFile string
	certFile   string
	keyFile    string
	hostsFile  string
	logger     *log.Logger

	// Issuer defaults to a truststore issuer rooted at the CA directory.
	Issuer Issuer

	// Hosts lists the names the certificate must cover. Defaults to Hosts.
	Hosts func() ([]string, error)
}

// NewManager creates a Manager storing its files under dir.
func NewManager(dir string, logger *log.Logger) *Manager {
	if logger == nil {
		logger = log.New(os.Stderr, "[certs] ", log.LstdFlags)
	}
	tlsDir := filepath.Join(dir, "tls")
	caDir := filepath.Join(dir, "ca")
	return &Manager{
		tlsDir:     tlsDir,
		caDir:      caDir,
		caCertFile: filepath.Join(caDir, "rootCA.pem"),
		certFile:   filepath.Join(tlsDir, "server.crt"),
		keyFile:    filepath.Join(tlsDir, "server.key"),
		hostsFile:  filepath.Join(tlsDir, "hosts.txt"),
		logger:     logger,
		Hosts:      Hosts,
	}
}

// DefaultDir returns the per-user directory certificates are kept in.
func DefaultDir(appName string) (string, error) {
	base, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(base, appName), nil
}

// Ensure returns the server certificate and key, issuing them when they are
// missing or the host list changed. Installing the CA may prompt the user.
func (m *Manager) Ensure() (certFile, keyFile string, err error) {
	if err := os.MkdirAll(m.tlsDir, 0o700); err != nil {
		return "", "", fmt.Errorf("failed to create TLS directory: %w", err)
	}

	hosts, err := m.Hosts()
	if err != nil {
		m.logger.Printf("Warning: failed to list LAN addresses: %v", err)
	}
	if len(hosts) == 0 {
		hosts = []string{"localhost", "127.0.0.1"}
	}

	switch {
	case !m.certsExist():
		m.logger.Println("Certificates not found, issuing...")
	case m.hostsChanged(hosts):
		m.logger.Println("Network addresses changed, reissuing certificate...")
	default:
		m.logger.Println("Using existing certificates")
		return m.certFile, m.keyFile, nil
	}

	if err := m.issue(hosts); err != nil {
		return "", "", err
	}
	return m.certFile, m.keyFile, nil
}

func (m *Manager) certsExist() bool {
	_, certErr := os.Stat(m.certFile)
	_, keyErr := os.Stat(m.keyFile)
	return certErr == nil && keyErr == nil
}

func (m *Manager) hostsChanged(hosts []string) bool {
	cached, err := m.readCachedHosts()
	if err != nil {
		return true
	}
	a := slices.Clone(cached)
	b := slices.Clone(hosts)
	slices.Sort(a)
	slices.Sort(b)
	return !slices.Equal(a, b)
}

func (m *Manager) readCachedHosts() ([]string, error) {
	data, err := os.ReadFile(m.hostsFile)
	if err != nil {
		return nil, err
	}
	var hosts []string
	for _, line := range strings.Split(string(data), "\n") {
		if h := strings.TrimSpace(line); h != "" {
			hosts = append(hosts, h)
		}
	}
	return hosts, nil
}

func (m *Manager) writeCachedHosts(hosts []string) error {
	return os.WriteFile(m.hostsFile, []byte(strings.Join(hosts, "\n")+"\n"), 0o600)
}

func (m *Manager) issue(hosts []string) error {
	if m.Issuer == nil {
		issuer, err := NewTruststoreIssuer(m.caDir)
		if err != nil {
			return err
		}
		m.Issuer = issuer
	}

	m.logger.Println("Ensuring CA is installed in system trust store (you may be prompted for your password)")
	if err := m.Issuer.Install(); err != nil {
		return fmt.Errorf("failed to install CA: %w", err)
	}

	m.logger.Printf("Issuing certificate for hosts: %v", hosts)
	certFile, keyFile, err := m.Issuer.Issue(hosts, m.tlsDir)
	if err != nil {
		return fmt.Errorf("failed to issue certificate: %w", err)
	}
	if err := moveFile(certFile, m.certFile); err != nil {
		return fmt.Errorf("failed to store certificate: %w", err)
	}
	if err := moveFile(keyFile, m.keyFile); err != nil {
		return fmt.Errorf("failed to store key: %w", err)
	}

	if err := m.writeCachedHosts(hosts); err != nil {
		m.logger.Printf("Warning: failed to cache hosts: %v", err)
	}
	if fp, err := m.CAFingerprint(); err == nil {
		m.logger.Printf("CA Fingerprint (SHA256): %s", fp)
	}
	return nil
}

func moveFile(from, to string) error {
	if from == to {
		return nil
	}
	return os.Rename(from, to)
}

// CertFile returns the server certificate path.
func (m *Manager) CertFile() string { return m.certFile }

// KeyFile returns the server key path.
func (m *Manager) KeyFile() string { return m.keyFile }

// CACert returns the CA certificate PEM for phones to install.
func (m *Manager) CACert() ([]byte, error) {
	return os.ReadFile(m.caCertFile)
}

// CAFingerprint returns the SHA-256 fingerprint of the CA certificate as
// colon separated hex.
func (m *Manager) CAFingerprint() (string, error) {
	data, err := m.CACert()
	if err != nil {
		return "", fmt.Errorf("failed to read CA certificate: %w", err)
	}
	return Fingerprint(data)
}

// Fingerprint computes the SHA-256 fingerprint of the first certificate in
// certPEM.
func Fingerprint(certPEM []byte) (string, error) {
	block, _ := pem.Decode(certPEM)
	if block == nil {
		return "", errors.New("failed to decode PEM block")
	}
	cert, err := x509.ParseCertificate(block.Bytes)
	if err != nil {
		return "", fmt.Errorf("failed to parse certificate: %w", err)
	}

	sum := sha256.Sum256(cert.Raw)
	parts := make([]string, len(sum))
	for i, b := range sum {
		parts[i] = fmt.Sprintf("%02X", b)
	}
	return strings.Join(parts, ":"), nil
}
