package provision

import (
	"fmt"
	"os"
	"strconv"

	"github.com/loykin/vmpilot/internal/process"
	"github.com/loykin/vmpilot/internal/template"
)

const (
	MinMemoryGB   = 2
	MinDiskSizeGB = 20
	maxNameLength = 100
)

// VMSpec is the provisioning request for one GPU-PV virtual machine.
type VMSpec struct {
	Name                 string `json:"name" yaml:"name"`
	DiskSizeGB           int    `json:"disk_size_gb" yaml:"disk_size_gb"`
	MemoryGB             int    `json:"memory_gb" yaml:"memory_gb"`
	CPUCores             int    `json:"cpu_cores" yaml:"cpu_cores"`
	ISOPath              string `json:"iso_path" yaml:"iso_path"`
	TPMEnabled           bool   `json:"tpm_enabled" yaml:"tpm_enabled"`
	SecureBoot           bool   `json:"secure_boot" yaml:"secure_boot"`
	NetworkSwitch        string `json:"network_switch" yaml:"network_switch"`
	GPUName              string `json:"gpu_name" yaml:"gpu_name"`
	VHDPath              string `json:"vhd_path" yaml:"vhd_path"`
	GPUAllocationPercent int    `json:"gpu_allocation_percent" yaml:"gpu_allocation_percent"`
	Username             string `json:"username" yaml:"username"`
	Password             string `json:"password" yaml:"password"`
	AutoLogon            bool   `json:"auto_logon" yaml:"auto_logon"`
}

// Validate checks the fields that do not touch the filesystem.
func (s VMSpec) Validate() error {
	if err := checkName(s.Name); err != nil {
		return err
	}
	if s.CPUCores < 1 {
		return invalid("cpu_cores must be at least 1")
	}
	if s.GPUAllocationPercent < 0 || s.GPUAllocationPercent > 100 {
		return invalid("gpu_allocation_percent must be between 0 and 100")
	}
	return nil
}

// CheckResources enforces the host-side minimums before anything is staged.
func (s VMSpec) CheckResources() error {
	if s.Name == "" {
		return invalid("VM Name cannot be empty")
	}
	if s.MemoryGB*1024 < MinMemoryGB*1024 {
		return invalid("Minimum memory is %dGB", MinMemoryGB)
	}
	if s.DiskSizeGB < MinDiskSizeGB {
		return invalid("Minimum disk size is %dGB", MinDiskSizeGB)
	}
	if fi, err := os.Stat(s.VHDPath); err != nil || !fi.IsDir() {
		return invalid("VHD Path does not exist: %s", s.VHDPath)
	}
	if _, err := os.Stat(s.ISOPath); err != nil {
		return invalid("ISO Path does not exist: %s", s.ISOPath)
	}
	return nil
}

// Placeholders maps s onto the template tokens.
func (s VMSpec) Placeholders() template.Placeholders {
	return template.Placeholders{
		template.TokenVMName:               s.Name,
		template.TokenISOPath:              s.ISOPath,
		template.TokenVHDPath:              s.VHDPath,
		template.TokenDiskSizeGB:           strconv.Itoa(s.DiskSizeGB),
		template.TokenMemoryGB:             strconv.Itoa(s.MemoryGB),
		template.TokenCPUCount:             strconv.Itoa(s.CPUCores),
		template.TokenGPUName:              s.GPUName,
		template.TokenSwitchName:           s.NetworkSwitch,
		template.TokenUsername:             s.Username,
		template.TokenPassword:             s.Password,
		template.TokenAutoLogon:            strconv.FormatBool(s.AutoLogon),
		template.TokenGPUAllocationPercent: strconv.Itoa(s.GPUAllocationPercent),
	}
}

// UpdateSpec changes the GPU, CPU, memory and network of an existing VM.
type UpdateSpec struct {
	Name                 string `json:"name" yaml:"name"`
	GPUName              string `json:"gpu_name" yaml:"gpu_name"`
	GPUAllocationPercent int    `json:"gpu_allocation_percent" yaml:"gpu_allocation_percent"`
	CPUCount             int    `json:"cpu_count" yaml:"cpu_count"`
	MemoryMB             int64  `json:"memory_mb" yaml:"memory_mb"`
	NetworkSwitch        string `json:"network_switch" yaml:"network_switch"`
}

func (u UpdateSpec) Validate() error {
	if err := checkName(u.Name); err != nil {
		return err
	}
	if u.CPUCount < 1 {
		return invalid("cpu_count must be at least 1")
	}
	if u.MemoryMB < MinMemoryGB*1024 {
		return invalid("Minimum memory is %dGB", MinMemoryGB)
	}
	if u.GPUAllocationPercent < 0 || u.GPUAllocationPercent > 100 {
		return invalid("gpu_allocation_percent must be between 0 and 100")
	}
	return nil
}

// args renders the parameters of Update-VMConfig.ps1. String values are
// single-quoted literals so the shell never expands them.
func (u UpdateSpec) args() []string {
	return []string{
		"-VMName", process.QuoteLiteral(u.Name),
		"-GPUName", process.QuoteLiteral(u.GPUName),
		"-GPUResourceAllocationPercentage", strconv.Itoa(u.GPUAllocationPercent),
		"-ProcessorCount", strconv.Itoa(u.CPUCount),
		"-MemoryMB", strconv.FormatInt(u.MemoryMB, 10),
		"-NetworkSwitch", process.QuoteLiteral(u.NetworkSwitch),
	}
}

// checkName accepts names that are safe both as a directory name and inside
// a script literal.
func checkName(name string) error {
	if name == "" {
		return invalid("VM Name is required")
	}
	if len(name) > maxNameLength {
		return invalid("VM Name is longer than %d characters", maxNameLength)
	}
	for _, r := range name {
		ok := (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') ||
			r == '-' || r == '_' || r == '.' || r == ' '
		if !ok {
			return invalid("VM Name contains invalid character %q", r)
		}
	}
	if name == "." || name == ".." || name[0] == ' ' || name[len(name)-1] == ' ' {
		return invalid("VM Name %q is not allowed", name)
	}
	return nil
}

// String omits the credentials so a spec can be logged.
func (s VMSpec) String() string { return fmt.Sprintf("VM %s", s.Name) }
