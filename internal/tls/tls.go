package tls

import (
	"crypto/tls"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// File names used when Dir is set.
const (
	tlsCrt = "tls.crt"
	tlsKey = "tls.key"
)

// Config enables HTTPS on the daemon listener. CertFile/KeyFile win over
// Dir; with Dir and AutoGenerate a self-signed pair is created on first use.
type Config struct {
	Enabled      bool     `mapstructure:"enabled" toml:"enabled"`
	CertFile     string   `mapstructure:"cert_file" toml:"cert_file"`
	KeyFile      string   `mapstructure:"key_file" toml:"key_file"`
	Dir          string   `mapstructure:"dir" toml:"dir"`
	AutoGenerate bool     `mapstructure:"auto_generate" toml:"auto_generate"`
	Hosts        []string `mapstructure:"hosts" toml:"hosts"` // names and IPs of a generated certificate
	MinVersion   string   `mapstructure:"min_version" toml:"min_version"`
}

// parseTLSVersion parses TLS version string and returns the corresponding constant
func parseTLSVersion(ver string) (uint16, error) {
	switch strings.ToLower(ver) {
	case "", "default", "1.2", "tls1.2":
		return tls.VersionTLS12, nil
	case "1.3", "tls1.3":
		return tls.VersionTLS13, nil
	default:
		return 0, fmt.Errorf("unsupported TLS version %q", ver)
	}
}

// Setup returns the listener TLS configuration, or nil when c is disabled.
func Setup(c Config) (*tls.Config, error) {
	if !c.Enabled {
		return nil, nil
	}
	minVer, err := parseTLSVersion(c.MinVersion)
	if err != nil {
		return nil, err
	}

	certPath, keyPath := c.CertFile, c.KeyFile
	switch {
	case certPath != "" && keyPath != "":
	case c.Dir != "":
		certPath = filepath.Join(c.Dir, tlsCrt)
		keyPath = filepath.Join(c.Dir, tlsKey)
		if c.AutoGenerate && !certificatesExist(certPath, keyPath) {
			hosts := c.Hosts
			if len(hosts) == 0 {
				hosts = []string{"localhost", "127.0.0.1"}
			}
			if err := GenerateSelfSignedCert(CertConfig{Hosts: hosts, CertPath: certPath, KeyPath: keyPath}); err != nil {
				return nil, fmt.Errorf("certificate generation failed: %w", err)
			}
		}
	default:
		return nil, errors.New("TLS enabled but neither cert_file/key_file nor dir is set")
	}
	// fail at startup rather than on the first handshake
	if _, err := loadPair(certPath, keyPath); err != nil {
		return nil, err
	}
	return &tls.Config{
		GetCertificate: func(*tls.ClientHelloInfo) (*tls.Certificate, error) {
			return loadPair(certPath, keyPath)
		},
		MinVersion: minVer,
	}, nil
}

// loadPair reads the pair on every handshake so renewed files are picked up.
func loadPair(certPath, keyPath string) (*tls.Certificate, error) {
	cert, err := tls.LoadX509KeyPair(certPath, keyPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load certificate %s: %w", certPath, err)
	}
	return &cert, nil
}

func certificatesExist(certPath, keyPath string) bool {
	_, certErr := os.Stat(certPath)
	_, keyErr := os.Stat(keyPath)
	return certErr == nil && keyErr == nil
}
