package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/loykin/vmpilot/internal/provision"
	"github.com/loykin/vmpilot/internal/rdp"
	"github.com/loykin/vmpilot/pkg/client"
)

func createProvisionCommand(c command, f *ProvisionFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "provision",
		Short: "Create a GPU-PV virtual machine",
		Long: `Stage the provisioning templates, render them for the VM and run the
provisioning script, streaming its output. Ctrl-C cancels the run and removes
the partially created VM.

A spec file (YAML or JSON, same keys as the API) may supply the fields; flags
given on the command line override it.

Examples:
  vmpilot provision --name=gpu-vm --iso=C:\iso\win11.iso --vhd=D:\VMs --password=secret
  vmpilot provision --file=gpu-vm.yaml --memory=16
  vmpilot provision --file=gpu-vm.yaml --remote   # run on the daemon`,
		RunE: func(cmd *cobra.Command, args []string) error {
			spec, err := buildSpec(cmd, *f)
			if err != nil {
				return err
			}
			return c.Provision(cmd, spec, f.Remote)
		},
	}
	fl := cmd.Flags()
	fl.StringVar(&f.File, "file", "", "VM spec file (YAML or JSON)")
	fl.StringVar(&f.Name, "name", "", "VM name")
	fl.IntVar(&f.DiskSizeGB, "disk", 60, "disk size in GB")
	fl.IntVar(&f.MemoryGB, "memory", 8, "memory in GB")
	fl.IntVar(&f.CPUCores, "cpu", 4, "virtual processors")
	fl.StringVar(&f.ISOPath, "iso", "", "Windows installation ISO")
	fl.StringVar(&f.VHDPath, "vhd", "", "directory for the virtual disk")
	fl.StringVar(&f.NetworkSwitch, "switch", "Default Switch", "virtual switch")
	fl.StringVar(&f.GPUName, "gpu", "AUTO", "GPU to partition")
	fl.IntVar(&f.GPUPercent, "gpu-percent", 50, "GPU resource allocation percentage")
	fl.BoolVar(&f.TPM, "tpm", true, "enable the virtual TPM")
	fl.BoolVar(&f.SecureBoot, "secure-boot", true, "enable secure boot")
	fl.StringVar(&f.Username, "user", "GPUVM", "guest account name")
	fl.StringVar(&f.Password, "password", "", "guest account password")
	fl.BoolVar(&f.AutoLogon, "auto-logon", true, "log the guest account on automatically")
	fl.BoolVar(&f.Remote, "remote", false, "submit to the daemon instead of running locally")
	return cmd
}

// buildSpec reads --file, then applies the flag defaults for fields the file
// leaves empty and every flag set explicitly.
func buildSpec(cmd *cobra.Command, f ProvisionFlags) (provision.VMSpec, error) {
	var spec provision.VMSpec
	fromFile := map[string]bool{}
	if f.File != "" {
		b, err := os.ReadFile(f.File) // #nosec G304
		if err != nil {
			return spec, fmt.Errorf("failed to read spec file: %w", err)
		}
		var raw map[string]any
		if err := yaml.Unmarshal(b, &raw); err != nil {
			return spec, fmt.Errorf("failed to parse spec file %s: %w", f.File, err)
		}
		if err := yaml.Unmarshal(b, &spec); err != nil {
			return spec, fmt.Errorf("failed to parse spec file %s: %w", f.File, err)
		}
		for k := range raw {
			fromFile[k] = true
		}
	}
	use := func(flag, key string) bool {
		return cmd.Flags().Changed(flag) || !fromFile[key]
	}
	if use("name", "name") {
		spec.Name = f.Name
	}
	if use("disk", "disk_size_gb") {
		spec.DiskSizeGB = f.DiskSizeGB
	}
	if use("memory", "memory_gb") {
		spec.MemoryGB = f.MemoryGB
	}
	if use("cpu", "cpu_cores") {
		spec.CPUCores = f.CPUCores
	}
	if use("iso", "iso_path") {
		spec.ISOPath = f.ISOPath
	}
	if use("vhd", "vhd_path") {
		spec.VHDPath = f.VHDPath
	}
	if use("switch", "network_switch") {
		spec.NetworkSwitch = f.NetworkSwitch
	}
	if use("gpu", "gpu_name") {
		spec.GPUName = f.GPUName
	}
	if use("gpu-percent", "gpu_allocation_percent") {
		spec.GPUAllocationPercent = f.GPUPercent
	}
	if use("tpm", "tpm_enabled") {
		spec.TPMEnabled = f.TPM
	}
	if use("secure-boot", "secure_boot") {
		spec.SecureBoot = f.SecureBoot
	}
	if use("user", "username") {
		spec.Username = f.Username
	}
	if use("password", "password") {
		spec.Password = f.Password
	}
	if use("auto-logon", "auto_logon") {
		spec.AutoLogon = f.AutoLogon
	}
	return spec, nil
}

func (c command) Provision(cmd *cobra.Command, spec provision.VMSpec, remote bool) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	out := cmd.OutOrStdout()

	if remote || c.global.APIUrl != "" {
		cl, err := c.apiClient(30 * time.Second)
		if err != nil {
			return err
		}
		acc, err := cl.Provision(ctx, spec)
		if err != nil {
			return err
		}
		_, _ = fmt.Fprintln(out, renderNote(fmt.Sprintf("accepted run %s for %s", acc.RunID, acc.Job)))
		return followRemote(ctx, cl, acc, out, func() error {
			return cl.Cancel(context.Background(), spec.Name)
		})
	}

	app, closeApp, err := c.openApp(lineWriter(out))
	if err != nil {
		return err
	}
	defer closeApp()

	// the job gets its own context so Ctrl-C goes through Cancel
	t, err := app.Pipeline.Start(context.Background(), spec)
	if err != nil {
		return err
	}
	select {
	case <-t.Done():
	case <-ctx.Done():
		if err := app.Pipeline.Cancel(context.Background(), spec.Name); err != nil {
			slog.Warn("cancel failed", "vm", spec.Name, "error", err)
		}
	}
	sum, err := t.Wait()
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintln(out, renderSuccess(sum.Message))
	return nil
}

func createUpdateCommand(c command, f *UpdateFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "update",
		Short: "Change GPU, CPU, memory and network of an existing VM",
		Long: `Run Update-VMConfig.ps1 for an existing VM. Updates are not cancellable.

Examples:
  vmpilot update --name=gpu-vm --cpu=8 --memory-mb=16384
  vmpilot update --name=gpu-vm --gpu="NVIDIA GeForce RTX 4070" --gpu-percent=75`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.Update(cmd, provision.UpdateSpec{
				Name:                 f.Name,
				GPUName:              f.GPUName,
				GPUAllocationPercent: f.GPUPercent,
				CPUCount:             f.CPUCount,
				MemoryMB:             f.MemoryMB,
				NetworkSwitch:        f.NetworkSwitch,
			}, f.Remote)
		},
	}
	cmd.Flags().StringVar(&f.Name, "name", "", "VM name (required)")
	cmd.Flags().StringVar(&f.GPUName, "gpu", "AUTO", "GPU to partition")
	cmd.Flags().IntVar(&f.GPUPercent, "gpu-percent", 50, "GPU resource allocation percentage")
	cmd.Flags().IntVar(&f.CPUCount, "cpu", 4, "virtual processors")
	cmd.Flags().Int64Var(&f.MemoryMB, "memory-mb", 4096, "memory in MB")
	cmd.Flags().StringVar(&f.NetworkSwitch, "switch", "Default Switch", "virtual switch")
	cmd.Flags().BoolVar(&f.Remote, "remote", false, "submit to the daemon instead of running locally")
	if err := cmd.MarkFlagRequired("name"); err != nil {
		panic(err)
	}
	return cmd
}

func (c command) Update(cmd *cobra.Command, spec provision.UpdateSpec, remote bool) error {
	out := cmd.OutOrStdout()
	if remote || c.global.APIUrl != "" {
		cl, err := c.apiClient(30 * time.Second)
		if err != nil {
			return err
		}
		acc, err := cl.Update(context.Background(), spec)
		if err != nil {
			return err
		}
		return followRemote(context.Background(), cl, acc, out, nil)
	}
	app, closeApp, err := c.openApp(lineWriter(out))
	if err != nil {
		return err
	}
	defer closeApp()
	ctx := context.Background()
	if app.Settings != nil {
		stored, err := app.Settings.Load(ctx, spec.Name)
		if err != nil {
			return err
		}
		spec = applyStoredHardware(cmd.Flags().Changed, spec, stored.Hardware)
	}
	sum, err := app.Pipeline.Update(ctx, spec)
	if err != nil {
		return err
	}
	if app.Settings != nil {
		if err := app.Settings.SaveHardware(ctx, spec.Name, hardwareOf(spec)); err != nil {
			slog.Warn("failed to store applied hardware", "vm", spec.Name, "error", err)
		}
	}
	_, _ = fmt.Fprintln(out, renderSuccess(sum.Message))
	return nil
}

// applyStoredHardware fills the flags left at their defaults from the last
// applied hardware of the VM.
func applyStoredHardware(changed func(string) bool, spec provision.UpdateSpec, h rdp.Hardware) provision.UpdateSpec {
	if !changed("gpu") && h.GPUName != "" {
		spec.GPUName = h.GPUName
	}
	if !changed("gpu-percent") && h.GPUAllocationPercent > 0 {
		spec.GPUAllocationPercent = h.GPUAllocationPercent
	}
	if !changed("cpu") && h.CPUCount > 0 {
		spec.CPUCount = h.CPUCount
	}
	if !changed("memory-mb") && h.MemoryGB > 0 {
		spec.MemoryMB = int64(h.MemoryGB) * 1024
	}
	if !changed("switch") && h.NetworkSwitch != "" {
		spec.NetworkSwitch = h.NetworkSwitch
	}
	return spec
}

func hardwareOf(spec provision.UpdateSpec) rdp.Hardware {
	return rdp.Hardware{
		GPUName:              spec.GPUName,
		GPUAllocationPercent: spec.GPUAllocationPercent,
		CPUCount:             spec.CPUCount,
		MemoryGB:             int(spec.MemoryMB / 1024),
		NetworkSwitch:        spec.NetworkSwitch,
	}
}

func createCancelCommand(c command, f *CancelFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cancel",
		Short: "Cancel the provisioning job running on the daemon",
		Long: `Cancel the provisioning job tracked by the daemon. Without --name the
running job is cancelled whatever its name.

Examples:
  vmpilot cancel
  vmpilot cancel --name=gpu-vm --api-url=http://host:8765/api`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cl, err := c.apiClient(f.APITimeout)
			if err != nil {
				return err
			}
			if err := cl.Cancel(cmd.Context(), f.Name); err != nil {
				return err
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), renderNote("cancel requested"))
			return nil
		},
	}
	cmd.Flags().StringVar(&f.Name, "name", "", "only cancel if this VM is being provisioned")
	cmd.Flags().DurationVar(&f.APITimeout, "api-timeout", 10*time.Second, "request timeout")
	return cmd
}

func createStatusCommand(c command, f *RemoteFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the daemon's provisioning and update jobs",
		RunE: func(cmd *cobra.Command, args []string) error {
			cl, err := c.apiClient(f.APITimeout)
			if err != nil {
				return err
			}
			st, err := cl.Status(cmd.Context())
			if err != nil {
				return err
			}
			return writeStatus(cmd.OutOrStdout(), f.Output, st)
		},
	}
	cmd.Flags().DurationVar(&f.APITimeout, "api-timeout", 10*time.Second, "request timeout")
	cmd.Flags().StringVarP(&f.Output, "output", "o", "table", "output format: table, json or yaml")
	return cmd
}

func writeStatus(w io.Writer, format string, st client.StatusResponse) error {
	return writeOutput(w, format, st, func(tw *tabwriter.Writer) {
		_, _ = fmt.Fprintln(tw, header("KIND", "STATE", "VM", "PID", "RUN", "SINCE"))
		for _, row := range []struct {
			kind string
			s    client.JobStatus
		}{{"provision", st.Provision}, {"update", st.Update}} {
			state := "idle"
			since := ""
			if row.s.Busy {
				state = "running"
				if row.s.Cancelled {
					state = "cancelling"
				}
				since = time.Since(row.s.StartedAt).Round(time.Second).String()
			}
			pid := ""
			if row.s.PID > 0 {
				pid = fmt.Sprint(row.s.PID)
			}
			_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n", row.kind, state, row.s.Job, pid, row.s.RunID, since)
		}
		if st.Usage != nil {
			_, _ = fmt.Fprintln(tw, renderNote(fmt.Sprintf("usage: %d processes, %.1f%% cpu, %d MiB rss",
				st.Usage.Processes, st.Usage.CPUPercent, st.Usage.MemoryRSS/1024/1024)))
		}
	})
}
