// Package hyperv wraps the Hyper-V powershell cmdlets used to inspect and
// drive virtual machines on the local host.
package hyperv

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"strings"

	"github.com/loykin/vmpilot/internal/process"
)

// DefaultVHDPath is used when the host reports no virtual hard disk path.
const DefaultVHDPath = `C:\Users\Public\Documents\Hyper-V\Virtual Hard Disks\`

// VM is one row of ListVMs.
type VM struct {
	Name          string `json:"name" yaml:"name"`
	State         string `json:"state" yaml:"state"`
	CPUUsage      int    `json:"cpu_usage" yaml:"cpu_usage"`
	MemoryMB      uint64 `json:"memory_assigned_mb" yaml:"memory_assigned_mb"`
	Uptime        string `json:"uptime" yaml:"uptime"`
	HasGPU        bool   `json:"has_gpu" yaml:"has_gpu"`
	CPUCores      int    `json:"cpu_cores" yaml:"cpu_cores"`
	NetworkSwitch string `json:"network_switch" yaml:"network_switch"`
}

// Switch is a Hyper-V virtual switch.
type Switch struct {
	Name string `json:"name" yaml:"name"`
	Type string `json:"switch_type" yaml:"switch_type"`
}

// Host runs the cmdlets through a process.Runner.
type Host struct {
	runner process.Runner
}

func New(r process.Runner) *Host {
	if r == nil {
		r = process.NewShell()
	}
	return &Host{runner: r}
}

const listVMsScript = `Get-VM | ForEach-Object {
    $gpu = Get-VMGpuPartitionAdapter -VMName $_.Name -ErrorAction SilentlyContinue
    $hasGpu = if ($gpu) { "true" } else { "false" }
    $switch = (Get-VMNetworkAdapter -VM $_).SwitchName
    if (-not $switch) { $switch = "None" }
    $mem = Get-VMMemory -VMName $_.Name
    "$($_.Name)|$($_.State)|$($_.CpuUsage)|$($mem.Startup)|$($_.Uptime)|$hasGpu|$($_.ProcessorCount)|$switch"
}`

// ListVMs returns every VM on the host. Rows that do not parse are skipped.
func (h *Host) ListVMs(ctx context.Context) ([]VM, error) {
	out, err := h.runner.RunSync(ctx, listVMsScript)
	if err != nil {
		return nil, fmt.Errorf("failed to list VMs: %w", err)
	}
	return parseVMs(out), nil
}

func parseVMs(out string) []VM {
	vms := make([]VM, 0)
	for _, line := range splitLines(out) {
		parts := strings.Split(line, "|")
		if len(parts) < 8 {
			continue
		}
		cpu, _ := strconv.Atoi(strings.TrimSpace(parts[2]))
		mem, _ := strconv.ParseUint(strings.TrimSpace(parts[3]), 10, 64)
		cores, _ := strconv.Atoi(strings.TrimSpace(parts[6]))
		vms = append(vms, VM{
			Name:          strings.TrimSpace(parts[0]),
			State:         strings.TrimSpace(parts[1]),
			CPUUsage:      cpu,
			MemoryMB:      mem / 1024 / 1024,
			Uptime:        strings.TrimSpace(parts[4]),
			HasGPU:        strings.TrimSpace(parts[5]) == "true",
			CPUCores:      cores,
			NetworkSwitch: strings.TrimSpace(parts[7]),
		})
	}
	return vms
}

func (h *Host) StartVM(ctx context.Context, name string) error {
	return h.exec(ctx, "start VM "+name, "Start-VM -Name "+process.QuoteLiteral(name))
}

// StopVM turns the VM off without waiting for the guest.
func (h *Host) StopVM(ctx context.Context, name string) error {
	return h.exec(ctx, "stop VM "+name, "Stop-VM -Name "+process.QuoteLiteral(name)+" -Force")
}

func (h *Host) DeleteVM(ctx context.Context, name string) error {
	return h.exec(ctx, "delete VM "+name, "Remove-VM -Name "+process.QuoteLiteral(name)+" -Force")
}

func (h *Host) exec(ctx context.Context, what, script string) error {
	if _, err := h.runner.RunSync(ctx, script); err != nil {
		return fmt.Errorf("failed to %s: %w", what, err)
	}
	return nil
}

const switchesScript = `Get-VMSwitch | Select-Object Name, SwitchType | ForEach-Object {
    "$($_.Name)|$($_.SwitchType)"
}`

func (h *Host) NetworkSwitches(ctx context.Context) ([]Switch, error) {
	out, err := h.runner.RunSync(ctx, switchesScript)
	if err != nil {
		return nil, fmt.Errorf("failed to list network switches: %w", err)
	}
	sw := make([]Switch, 0)
	for _, line := range splitLines(out) {
		parts := strings.Split(line, "|")
		if len(parts) < 2 {
			continue
		}
		sw = append(sw, Switch{Name: strings.TrimSpace(parts[0]), Type: strings.TrimSpace(parts[1])})
	}
	return sw, nil
}

// DefaultVHDPath returns the host's configured virtual hard disk directory.
func (h *Host) DefaultVHDPath(ctx context.Context) (string, error) {
	out, err := h.runner.RunSync(ctx, "Get-VMHost | Select-Object -ExpandProperty VirtualHardDiskPath")
	if err != nil {
		return "", fmt.Errorf("failed to read VHD path: %w", err)
	}
	if p := strings.TrimSpace(out); p != "" {
		return p, nil
	}
	return DefaultVHDPath, nil
}

// HostDrives lists the fixed logical disks, e.g. "C:".
func (h *Host) HostDrives(ctx context.Context) ([]string, error) {
	out, err := h.runner.RunSync(ctx, "Get-CimInstance -ClassName Win32_LogicalDisk | Where-Object { $_.DriveType -eq 3 } | Select-Object -ExpandProperty DeviceID")
	if err != nil {
		return nil, fmt.Errorf("failed to list host drives: %w", err)
	}
	return splitLines(out), nil
}

// VMAddress returns the first IPv4 address reported by the VM's network
// adapter. The VM must be running with integration services.
func (h *Host) VMAddress(ctx context.Context, name string) (string, error) {
	script := "(Get-VMNetworkAdapter -VMName " + process.QuoteLiteral(name) + ").IPAddresses"
	out, err := h.runner.RunSync(ctx, script)
	if err != nil {
		return "", fmt.Errorf("failed to query address of VM %s: %w", name, err)
	}
	for _, line := range splitLines(out) {
		if isIPv4(line) {
			return line, nil
		}
	}
	return "", fmt.Errorf("VM %s has no IPv4 address, is it running?", name)
}

func splitLines(out string) []string {
	lines := make([]string, 0)
	for _, l := range strings.Split(out, "\n") {
		if l = strings.TrimSpace(l); l != "" {
			lines = append(lines, l)
		}
	}
	return lines
}

func isIPv4(s string) bool {
	ip := net.ParseIP(s)
	return ip != nil && ip.To4() != nil
}
