// Package rdp opens console and Remote Desktop sessions to local VMs.
package rdp

import (
	"fmt"
	"strings"
)

// Settings is the per-VM remote desktop connection profile.
type Settings struct {
	Width        int      `json:"resolution_w" yaml:"resolution_w"`
	Height       int      `json:"resolution_h" yaml:"resolution_h"`
	Zoom         int      `json:"zoom" yaml:"zoom"`   // client zoom forced through the window menu
	Scale        int      `json:"scale" yaml:"scale"` // guest desktop scale factor
	Username     string   `json:"username,omitempty" yaml:"username,omitempty"`
	SharedDrives []string `json:"shared_drives,omitempty" yaml:"shared_drives,omitempty"`
	Fullscreen   bool     `json:"fullscreen" yaml:"fullscreen"`
	Hardware     `yaml:",inline"`
}

// Hardware is the last applied configuration of a VM. Zero fields are
// unknown. It is kept beside the connection profile so an update only needs
// the values that change.
type Hardware struct {
	GPUName              string `json:"gpu_name,omitempty" yaml:"gpu_name,omitempty"`
	GPUAllocationPercent int    `json:"gpu_allocation_percent,omitempty" yaml:"gpu_allocation_percent,omitempty"`
	CPUCount             int    `json:"cpu_count,omitempty" yaml:"cpu_count,omitempty"`
	MemoryGB             int    `json:"memory_gb,omitempty" yaml:"memory_gb,omitempty"`
	NetworkSwitch        string `json:"network_switch,omitempty" yaml:"network_switch,omitempty"`
}

// Merge returns h with every known field of o applied on top.
func (h Hardware) Merge(o Hardware) Hardware {
	if o.GPUName != "" {
		h.GPUName = o.GPUName
	}
	if o.GPUAllocationPercent > 0 {
		h.GPUAllocationPercent = o.GPUAllocationPercent
	}
	if o.CPUCount > 0 {
		h.CPUCount = o.CPUCount
	}
	if o.MemoryGB > 0 {
		h.MemoryGB = o.MemoryGB
	}
	if o.NetworkSwitch != "" {
		h.NetworkSwitch = o.NetworkSwitch
	}
	return h
}

const DefaultUsername = "Administrator"

func DefaultSettings() Settings {
	return Settings{Width: 1920, Height: 1080, Zoom: 100, Scale: 100, Username: DefaultUsername}
}

// WithDefaults fills unset numeric fields from DefaultSettings.
func (s Settings) WithDefaults() Settings {
	d := DefaultSettings()
	if s.Width <= 0 {
		s.Width = d.Width
	}
	if s.Height <= 0 {
		s.Height = d.Height
	}
	if s.Zoom <= 0 {
		s.Zoom = d.Zoom
	}
	if s.Scale <= 0 {
		s.Scale = d.Scale
	}
	return s
}

// scale factors mstsc accepts for desktopscalefactor
var validScales = []int{100, 125, 150, 175, 200, 250, 300, 400, 500}

func (s Settings) Validate() error {
	if s.Width < 640 || s.Height < 480 {
		return fmt.Errorf("resolution %dx%d is below 640x480", s.Width, s.Height)
	}
	if s.Zoom < 25 || s.Zoom > 500 {
		return fmt.Errorf("zoom %d%% out of range 25-500", s.Zoom)
	}
	ok := false
	for _, v := range validScales {
		if s.Scale == v {
			ok = true
			break
		}
	}
	if !ok {
		return fmt.Errorf("scale %d%% is not one of %v", s.Scale, validScales)
	}
	for _, d := range s.SharedDrives {
		if !isDrive(d) {
			return fmt.Errorf("invalid shared drive %q", d)
		}
	}
	if s.GPUAllocationPercent < 0 || s.GPUAllocationPercent > 100 {
		return fmt.Errorf("gpu allocation %d%% out of range 0-100", s.GPUAllocationPercent)
	}
	if s.CPUCount < 0 || s.MemoryGB < 0 {
		return fmt.Errorf("cpu count %d and memory %dGB must not be negative", s.CPUCount, s.MemoryGB)
	}
	return nil
}

// isDrive accepts "C", "C:" and "C:\".
func isDrive(d string) bool {
	d = strings.TrimSuffix(strings.TrimSuffix(d, `\`), ":")
	return len(d) == 1 && ((d[0] >= 'A' && d[0] <= 'Z') || (d[0] >= 'a' && d[0] <= 'z'))
}
