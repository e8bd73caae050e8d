package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/loykin/vmpilot/internal/hyperv"
	"github.com/loykin/vmpilot/internal/provision"
	"github.com/loykin/vmpilot/internal/rdp"
	"github.com/loykin/vmpilot/pkg/client"
)

func TestHelpListsCommands(t *testing.T) {
	root := buildRoot()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"--help"})
	if err := root.Execute(); err != nil {
		t.Fatalf("help should succeed: %v", err)
	}
	for _, name := range []string{"provision", "update", "cancel", "status", "connect", "vm", "switches", "serve", "config"} {
		if !strings.Contains(out.String(), name) {
			t.Fatalf("help output lacks %q:\n%s", name, out.String())
		}
	}
}

func TestConfigShowPrintsDefaults(t *testing.T) {
	root := buildRoot()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"config", "show"})
	if err := root.Execute(); err != nil {
		t.Fatalf("config show: %v", err)
	}
	s := out.String()
	if !strings.Contains(s, "[server]") || !strings.Contains(s, `listen = "127.0.0.1:8765"`) {
		t.Fatalf("unexpected config output:\n%s", s)
	}
}

func TestConfigShowReadsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vmpilot.toml")
	if err := os.WriteFile(path, []byte("[server]\nlisten = \"0.0.0.0:9000\"\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	root := buildRoot()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"--config", path, "config", "show"})
	if err := root.Execute(); err != nil {
		t.Fatalf("config show: %v", err)
	}
	if !strings.Contains(out.String(), `listen = "0.0.0.0:9000"`) {
		t.Fatalf("file value not applied:\n%s", out.String())
	}
}

func TestBuildSpecFileAndFlags(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vm.yaml")
	body := "name: from-file\nmemory_gb: 16\ntpm_enabled: false\niso_path: C:/iso/win11.iso\n"
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	f := &ProvisionFlags{}
	cmd := createProvisionCommand(command{global: &GlobalFlags{}}, f)
	if err := cmd.ParseFlags([]string{"--file", path, "--cpu", "8", "--name", "from-flag"}); err != nil {
		t.Fatal(err)
	}
	spec, err := buildSpec(cmd, *f)
	if err != nil {
		t.Fatalf("build spec: %v", err)
	}
	if spec.Name != "from-flag" {
		t.Fatalf("flag should override file, name=%q", spec.Name)
	}
	if spec.MemoryGB != 16 || spec.TPMEnabled || spec.ISOPath != "C:/iso/win11.iso" {
		t.Fatalf("file values lost: %+v", spec)
	}
	if spec.CPUCores != 8 || spec.DiskSizeGB != 60 || spec.GPUName != "AUTO" || !spec.SecureBoot {
		t.Fatalf("flag defaults not applied: %+v", spec)
	}
}

func TestBuildSpecBadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vm.yaml")
	if err := os.WriteFile(path, []byte("name: [unclosed"), 0o600); err != nil {
		t.Fatal(err)
	}
	f := &ProvisionFlags{}
	cmd := createProvisionCommand(command{global: &GlobalFlags{}}, f)
	if err := cmd.ParseFlags([]string{"--file", path}); err != nil {
		t.Fatal(err)
	}
	if _, err := buildSpec(cmd, *f); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestMergeConnectFlags(t *testing.T) {
	f := &ConnectFlags{}
	cmd := createConnectCommand(command{global: &GlobalFlags{}}, f)
	if err := cmd.ParseFlags([]string{"--zoom", "150", "--drive", "C:", "--drive", "D:"}); err != nil {
		t.Fatal(err)
	}
	stored := rdp.DefaultSettings()
	stored.Width = 2560
	got := mergeConnectFlags(cmd, stored, *f)
	if got.Zoom != 150 || got.Width != 2560 || len(got.SharedDrives) != 2 {
		t.Fatalf("unexpected merge: %+v", got)
	}
}

func TestApplyStoredHardware(t *testing.T) {
	f := &UpdateFlags{}
	cmd := createUpdateCommand(command{global: &GlobalFlags{}}, f)
	if err := cmd.ParseFlags([]string{"--name", "vm1", "--cpu", "12"}); err != nil {
		t.Fatal(err)
	}
	spec := provision.UpdateSpec{Name: f.Name, GPUName: f.GPUName, GPUAllocationPercent: f.GPUPercent, CPUCount: f.CPUCount, MemoryMB: f.MemoryMB, NetworkSwitch: f.NetworkSwitch}
	stored := rdp.Hardware{GPUName: "RTX", CPUCount: 2, MemoryGB: 16}
	got := applyStoredHardware(cmd.Flags().Changed, spec, stored)
	want := provision.UpdateSpec{Name: "vm1", GPUName: "RTX", GPUAllocationPercent: 50, CPUCount: 12, MemoryMB: 16384, NetworkSwitch: "Default Switch"}
	if got != want {
		t.Fatalf("merged = %+v, want %+v", got, want)
	}
	if h := hardwareOf(got); h.MemoryGB != 16 || h.CPUCount != 12 || h.GPUName != "RTX" {
		t.Fatalf("hardware = %+v", h)
	}
}

func TestRenderLine(t *testing.T) {
	if got := renderLine(provision.OutputLine{Stream: provision.StreamStderr, Text: "bad"}); !strings.Contains(got, "[ERROR] bad") {
		t.Fatalf("stderr line = %q", got)
	}
	if got := renderLine(provision.OutputLine{Stream: provision.StreamStdout, Text: "ok"}); got != "ok" {
		t.Fatalf("stdout line = %q", got)
	}
}

func TestWriteVMsFormats(t *testing.T) {
	vms := []hyperv.VM{{Name: "vm1", State: "Running", MemoryMB: 4096, CPUCores: 4, HasGPU: true}}

	var buf bytes.Buffer
	if err := writeVMs(&buf, "json", vms); err != nil {
		t.Fatal(err)
	}
	var decoded []hyperv.VM
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil || decoded[0].Name != "vm1" {
		t.Fatalf("json output: %v %s", err, buf.String())
	}

	buf.Reset()
	if err := writeVMs(&buf, "yaml", vms); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), "name: vm1") {
		t.Fatalf("yaml output: %s", buf.String())
	}

	buf.Reset()
	if err := writeVMs(&buf, "table", vms); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), "vm1") || !strings.Contains(buf.String(), "4096 MB") {
		t.Fatalf("table output: %s", buf.String())
	}

	if err := writeVMs(&buf, "xml", vms); err == nil {
		t.Fatal("expected unknown format error")
	}
}

func TestWriteStatusTable(t *testing.T) {
	var buf bytes.Buffer
	st := client.StatusResponse{Provision: client.JobStatus{Busy: true, Job: "vm1", PID: 7, RunID: "r1"}}
	if err := writeStatus(&buf, "table", st); err != nil {
		t.Fatal(err)
	}
	s := buf.String()
	if !strings.Contains(s, "running") || !strings.Contains(s, "idle") || !strings.Contains(s, "r1") {
		t.Fatalf("status table:\n%s", s)
	}
}

func TestCancelUnreachableDaemon(t *testing.T) {
	root := buildRoot()
	root.SetOut(&bytes.Buffer{})
	root.SetArgs([]string{"--api-url", "http://127.0.0.1:1/api", "cancel", "--api-timeout", "200ms"})
	err := root.Execute()
	if err == nil || !strings.Contains(err.Error(), "not reachable") {
		t.Fatalf("expected unreachable error, got %v", err)
	}
}

func TestRemoteProvisionFollowsUntilIdle(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/provision", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
		_ = json.NewEncoder(w).Encode(client.Accepted{RunID: "r1", Job: "vm1", Kind: "provision"})
	})
	mux.HandleFunc("/api/provision/status", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(client.StatusResponse{})
	})
	mux.HandleFunc("/api/events", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		w.(http.Flusher).Flush()
		<-r.Context().Done()
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	root := buildRoot()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"--api-url", srv.URL + "/api", "provision", "--name", "vm1"})
	if err := root.Execute(); err != nil {
		t.Fatalf("remote provision: %v", err)
	}
	if !strings.Contains(out.String(), "accepted run r1 for vm1") {
		t.Fatalf("unexpected output: %s", out.String())
	}
}
