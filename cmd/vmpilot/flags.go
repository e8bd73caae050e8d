package main

import "time"

// ProvisionFlags Flag structs to decouple cobra from logic for testing.
type ProvisionFlags struct {
	File          string
	Name          string
	DiskSizeGB    int
	MemoryGB      int
	CPUCores      int
	ISOPath       string
	VHDPath       string
	NetworkSwitch string
	GPUName       string
	GPUPercent    int
	TPM           bool
	SecureBoot    bool
	Username      string
	Password      string
	AutoLogon     bool
	Remote        bool
}

type UpdateFlags struct {
	Name          string
	GPUName       string
	GPUPercent    int
	CPUCount      int
	MemoryMB      int64
	NetworkSwitch string
	Remote        bool
}

type CancelFlags struct {
	Name       string
	APITimeout time.Duration
}

type RemoteFlags struct {
	APITimeout time.Duration
	Output     string
}

type ConnectFlags struct {
	Native     bool
	Zoom       int
	Scale      int
	Width      int
	Height     int
	Fullscreen bool
	Username   string
	Drives     []string
	Save       bool
}

type OutputFlags struct {
	Output string // table, json or yaml
}
