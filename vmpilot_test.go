package vmpilot

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"testing"

	"github.com/loykin/vmpilot/internal/server"
	"github.com/loykin/vmpilot/internal/template"
)

func requireUnix(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("requires Unix-like environment")
	}
}

func testConfig(t *testing.T) Config {
	t.Helper()
	root := t.TempDir()
	c := DefaultConfig()
	c.Templates.SearchPaths = []string{filepath.Join(root, "templates")}
	c.Templates.StagingRoot = filepath.Join(root, "staging")
	c.History.DSN = []string{"sqlite://" + filepath.Join(root, "history.db")}
	c.Settings.DSN = "sqlite://" + filepath.Join(root, "settings.db")
	c.Scripts.Env = []string{"GREETING=hello"}
	c.Scripts.SampleInterval = 0
	return c
}

func TestNewWiresComponents(t *testing.T) {
	a, err := New(testConfig(t))
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	defer func() { _ = a.Close() }()
	if a.Pipeline == nil || a.HyperV == nil || a.RDP == nil || a.Zoom == nil || a.Settings == nil {
		t.Fatalf("components not wired: %+v", a)
	}

	s, err := a.Settings.Load(context.Background(), "vm1")
	if err != nil {
		t.Fatalf("load settings: %v", err)
	}
	if s.Zoom != 100 {
		t.Fatalf("expected default zoom, got %d", s.Zoom)
	}
}

func TestNewWithoutSettingsDSN(t *testing.T) {
	c := testConfig(t)
	c.Settings.DSN = ""
	c.History.DSN = nil
	a, err := New(c)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if a.Settings != nil {
		t.Fatal("settings store should be nil without a DSN")
	}
	if err := a.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
}

func TestNewRejectsBadDSN(t *testing.T) {
	c := testConfig(t)
	c.History.DSN = []string{"mysql://nope"}
	if _, err := New(c); err == nil {
		t.Fatal("expected error for unsupported history DSN")
	}
}

func TestRouterServesStatus(t *testing.T) {
	a, err := New(testConfig(t))
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	defer func() { _ = a.Close() }()
	h := a.Router(server.NewHub(0)).Handler()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/provision/status", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status code %d: %s", rec.Code, rec.Body.String())
	}
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("metrics code %d", rec.Code)
	}
}

func TestProvisionThroughApp(t *testing.T) {
	requireUnix(t)
	c := testConfig(t)
	dir := filepath.Join(c.Templates.SearchPaths[0], template.DefaultTemplateDir)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		t.Fatal(err)
	}
	script := "echo \"$GREETING __VM_NAME__\"\necho PROVISION_SUCCESS\nexit 0\n"
	if err := os.WriteFile(filepath.Join(dir, template.ScriptTemplate), []byte(script), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, template.UnattendTemplate), []byte("<x/>"), 0o600); err != nil {
		t.Fatal(err)
	}

	var mu sync.Mutex
	var lines []string
	a, err := New(c, ObserverFunc(func(l OutputLine) {
		mu.Lock()
		lines = append(lines, l.Display())
		mu.Unlock()
	}))
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	defer func() { _ = a.Close() }()

	vhd := t.TempDir()
	iso := filepath.Join(vhd, "w.iso")
	if err := os.WriteFile(iso, []byte("x"), 0o600); err != nil {
		t.Fatal(err)
	}
	sum, err := a.Pipeline.Provision(context.Background(), VMSpec{
		Name: "app-vm", DiskSizeGB: 40, MemoryGB: 4, CPUCores: 2, ISOPath: iso, VHDPath: vhd,
	})
	if err != nil {
		t.Fatalf("provision: %v", err)
	}
	if sum.ExitCode != 0 {
		t.Fatalf("exit code %d", sum.ExitCode)
	}
	mu.Lock()
	defer mu.Unlock()
	joined := strings.Join(lines, "\n")
	if !strings.Contains(joined, "hello app-vm") {
		t.Fatalf("script env not applied, lines:\n%s", joined)
	}
}
