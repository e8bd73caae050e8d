package main

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/loykin/vmpilot"
	"github.com/loykin/vmpilot/internal/hyperv"
	"github.com/loykin/vmpilot/internal/rdp"
	"github.com/loykin/vmpilot/internal/window"
)

func createVMCommand(c command) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "vm",
		Short: "List and control Hyper-V virtual machines",
	}
	out := &OutputFlags{}
	list := &cobra.Command{
		Use:   "list",
		Short: "List virtual machines",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withApp(func(app *vmpilot.App) error {
				vms, err := app.HyperV.ListVMs(cmd.Context())
				if err != nil {
					return err
				}
				return writeVMs(cmd.OutOrStdout(), out.Output, vms)
			})
		},
	}
	list.Flags().StringVarP(&out.Output, "output", "o", "table", "output format: table, json or yaml")

	cmd.AddCommand(
		list,
		vmAction(c, "start", "Start a virtual machine", func(ctx context.Context, h *hyperv.Host, name string) error {
			return h.StartVM(ctx, name)
		}),
		vmAction(c, "stop", "Turn off a virtual machine", func(ctx context.Context, h *hyperv.Host, name string) error {
			return h.StopVM(ctx, name)
		}),
		createDeleteCommand(c),
	)
	return cmd
}

func vmAction(c command, use, short string, fn func(context.Context, *hyperv.Host, string) error) *cobra.Command {
	return &cobra.Command{
		Use:   use + " NAME",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withApp(func(app *vmpilot.App) error {
				if err := fn(cmd.Context(), app.HyperV, args[0]); err != nil {
					return err
				}
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), renderSuccess(fmt.Sprintf("%s: %s done", args[0], use)))
				return nil
			})
		},
	}
}

func createDeleteCommand(c command) *cobra.Command {
	return &cobra.Command{
		Use:   "delete NAME",
		Short: "Remove a virtual machine and its stored connection settings",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withApp(func(app *vmpilot.App) error {
				name := args[0]
				if err := app.HyperV.DeleteVM(cmd.Context(), name); err != nil {
					return err
				}
				if app.Settings != nil {
					// nothing to clean up is fine
					_ = app.Settings.Delete(cmd.Context(), name)
				}
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), renderSuccess(fmt.Sprintf("%s: deleted", name)))
				return nil
			})
		},
	}
}

func writeVMs(w io.Writer, format string, vms []hyperv.VM) error {
	return writeOutput(w, format, vms, func(tw *tabwriter.Writer) {
		_, _ = fmt.Fprintln(tw, header("NAME", "STATE", "CPU%", "MEMORY", "CORES", "GPU", "SWITCH", "UPTIME"))
		for _, vm := range vms {
			gpu := "-"
			if vm.HasGPU {
				gpu = "yes"
			}
			_, _ = fmt.Fprintf(tw, "%s\t%s\t%d\t%d MB\t%d\t%s\t%s\t%s\n",
				vm.Name, vm.State, vm.CPUUsage, vm.MemoryMB, vm.CPUCores, gpu, vm.NetworkSwitch, vm.Uptime)
		}
	})
}

func createSwitchesCommand(c command, f *OutputFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "switches",
		Short: "List Hyper-V virtual switches",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withApp(func(app *vmpilot.App) error {
				sw, err := app.HyperV.NetworkSwitches(cmd.Context())
				if err != nil {
					return err
				}
				return writeOutput(cmd.OutOrStdout(), f.Output, sw, func(tw *tabwriter.Writer) {
					_, _ = fmt.Fprintln(tw, header("NAME", "TYPE"))
					for _, s := range sw {
						_, _ = fmt.Fprintf(tw, "%s\t%s\n", s.Name, s.Type)
					}
				})
			})
		},
	}
	cmd.Flags().StringVarP(&f.Output, "output", "o", "table", "output format: table, json or yaml")
	return cmd
}

func createConnectCommand(c command, f *ConnectFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "connect NAME",
		Short: "Open a console or remote desktop session to a VM",
		Long: `Open the Hyper-V console (vmconnect) or, with --native, a Remote Desktop
session (mstsc). A native session whose zoom is not 100 waits for the client
window, selects the zoom level from its system menu and centers it.

Settings stored for the VM are the starting point; flags override them and
--save writes the result back.

Examples:
  vmpilot connect gpu-vm
  vmpilot connect gpu-vm --native --zoom=150 --width=2560 --height=1440
  vmpilot connect gpu-vm --native --drive=C: --drive=D: --save`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withApp(func(app *vmpilot.App) error {
				return connect(cmd, app, args[0], *f)
			})
		},
	}
	fl := cmd.Flags()
	fl.BoolVar(&f.Native, "native", false, "use Remote Desktop instead of the Hyper-V console")
	fl.IntVar(&f.Zoom, "zoom", 100, "client zoom percentage")
	fl.IntVar(&f.Scale, "scale", 100, "guest desktop scale factor")
	fl.IntVar(&f.Width, "width", 1920, "desktop width")
	fl.IntVar(&f.Height, "height", 1080, "desktop height")
	fl.BoolVar(&f.Fullscreen, "fullscreen", false, "open full screen")
	fl.StringVar(&f.Username, "user", "", "account to sign in with")
	fl.StringSliceVar(&f.Drives, "drive", nil, "host drive to share (repeatable)")
	fl.BoolVar(&f.Save, "save", false, "store the effective settings for this VM")
	return cmd
}

// mergeConnectFlags overrides s with the flags set on cmd.
func mergeConnectFlags(cmd *cobra.Command, s rdp.Settings, f ConnectFlags) rdp.Settings {
	ch := cmd.Flags().Changed
	if ch("zoom") {
		s.Zoom = f.Zoom
	}
	if ch("scale") {
		s.Scale = f.Scale
	}
	if ch("width") {
		s.Width = f.Width
	}
	if ch("height") {
		s.Height = f.Height
	}
	if ch("fullscreen") {
		s.Fullscreen = f.Fullscreen
	}
	if ch("user") {
		s.Username = f.Username
	}
	if ch("drive") {
		s.SharedDrives = f.Drives
	}
	return s
}

func connect(cmd *cobra.Command, app *vmpilot.App, name string, f ConnectFlags) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()
	if !f.Native {
		pid, err := app.RDP.Connect(name)
		if err != nil {
			return err
		}
		_, _ = fmt.Fprintln(out, renderNote(fmt.Sprintf("console opened (pid %d)", pid)))
		return nil
	}

	s := rdp.DefaultSettings()
	if app.Settings != nil {
		stored, err := app.Settings.Load(ctx, name)
		if err != nil {
			return err
		}
		s = stored
	}
	s = mergeConnectFlags(cmd, s, f)
	if f.Save {
		if app.Settings == nil {
			return fmt.Errorf("--save needs settings.dsn in the config")
		}
		if err := app.Settings.Save(ctx, name, s); err != nil {
			return err
		}
	}

	// the CLI drives the zoom itself so it can wait for the outcome
	zoom := s.Zoom
	s.Zoom = 100
	sess, err := rdp.New(app.HyperV, app.Config.Templates.StagingRoot, nil).ConnectNative(ctx, name, s)
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintln(out, renderNote(fmt.Sprintf("remote desktop to %s (pid %d, %s)", sess.Address, sess.PID, sess.FilePath)))
	if zoom == 100 {
		return nil
	}
	app.Zoom.OnStatus(func(line string) { _, _ = fmt.Fprintln(out, renderNote(line)) })
	state, err := app.Zoom.Run(ctx, window.TargetProcess{PID: uint32(sess.PID)}, window.ZoomRequest{Level: zoom}) // #nosec G115
	if err != nil {
		return fmt.Errorf("zoom %d%% not applied (%s): %w", zoom, state, err)
	}
	_, _ = fmt.Fprintln(out, renderSuccess(fmt.Sprintf("zoom %d%% applied", zoom)))
	return nil
}

// withApp runs fn with an App built from the config.
func (c command) withApp(fn func(*vmpilot.App) error) error {
	app, closeApp, err := c.openApp()
	if err != nil {
		return err
	}
	defer closeApp()
	return fn(app)
}
