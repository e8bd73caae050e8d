package tls

import (
	"crypto/tls"
	"crypto/x509"
	"encoding/pem"
	"os"
	"path/filepath"
	"runtime"
	"testing"
)

func TestSetupDisabled(t *testing.T) {
	cfg, err := Setup(Config{})
	if err != nil || cfg != nil {
		t.Fatalf("disabled config should yield nil, got %v %v", cfg, err)
	}
}

func TestSetupAutoGenerate(t *testing.T) {
	dir := t.TempDir()
	cfg, err := Setup(Config{Enabled: true, Dir: dir, AutoGenerate: true, Hosts: []string{"vmhost", "10.0.0.5"}})
	if err != nil {
		t.Fatalf("setup: %v", err)
	}
	if cfg.MinVersion != tls.VersionTLS12 {
		t.Fatalf("min version = %x", cfg.MinVersion)
	}
	cert, err := cfg.GetCertificate(&tls.ClientHelloInfo{})
	if err != nil || cert == nil {
		t.Fatalf("get certificate: %v", err)
	}

	b, err := os.ReadFile(filepath.Join(dir, tlsCrt))
	if err != nil {
		t.Fatal(err)
	}
	block, _ := pem.Decode(b)
	if block == nil {
		t.Fatal("no PEM block")
	}
	parsed, err := x509.ParseCertificate(block.Bytes)
	if err != nil {
		t.Fatal(err)
	}
	if len(parsed.DNSNames) != 1 || parsed.DNSNames[0] != "vmhost" || len(parsed.IPAddresses) != 1 {
		t.Fatalf("unexpected SANs: %v %v", parsed.DNSNames, parsed.IPAddresses)
	}
	fi, err := os.Stat(filepath.Join(dir, tlsKey))
	if err != nil {
		t.Fatal(err)
	}
	if runtime.GOOS != "windows" && fi.Mode().Perm() != 0o600 {
		t.Fatalf("key file mode = %v", fi.Mode().Perm())
	}

	// a second setup reuses the pair
	if _, err := Setup(Config{Enabled: true, Dir: dir, AutoGenerate: true}); err != nil {
		t.Fatalf("second setup: %v", err)
	}
	b2, _ := os.ReadFile(filepath.Join(dir, tlsCrt))
	if string(b) != string(b2) {
		t.Fatal("existing certificate was regenerated")
	}
}

func TestSetupErrors(t *testing.T) {
	cases := map[string]Config{
		"no source":     {Enabled: true},
		"missing files": {Enabled: true, CertFile: "/nonexistent/a.crt", KeyFile: "/nonexistent/a.key"},
		"empty dir":     {Enabled: true, Dir: t.TempDir()},
		"bad version":   {Enabled: true, Dir: t.TempDir(), AutoGenerate: true, MinVersion: "1.0"},
	}
	for name, c := range cases {
		if _, err := Setup(c); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}
}

func TestParseTLSVersion(t *testing.T) {
	for in, want := range map[string]uint16{"": tls.VersionTLS12, "1.3": tls.VersionTLS13, "TLS1.2": tls.VersionTLS12} {
		got, err := parseTLSVersion(in)
		if err != nil || got != want {
			t.Fatalf("parseTLSVersion(%q) = %x, %v", in, got, err)
		}
	}
}
