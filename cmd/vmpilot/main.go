package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	root := buildRoot()
	if err := root.Execute(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, renderError(err))
		os.Exit(1)
	}
}

// GlobalFlags holds the persistent flags shared by every command.
type GlobalFlags struct {
	ConfigPath string
	APIUrl     string
}

func buildRoot() *cobra.Command {
	globalFlags := &GlobalFlags{}
	c := command{global: globalFlags}

	root := createRootCommand(globalFlags)
	root.AddCommand(
		createProvisionCommand(c, &ProvisionFlags{}),
		createUpdateCommand(c, &UpdateFlags{}),
		createCancelCommand(c, &CancelFlags{}),
		createStatusCommand(c, &RemoteFlags{}),
		createConnectCommand(c, &ConnectFlags{}),
		createVMCommand(c),
		createSwitchesCommand(c, &OutputFlags{}),
		createServeCommand(c),
		createConfigCommand(c),
	)
	return root
}

func createRootCommand(flags *GlobalFlags) *cobra.Command {
	root := &cobra.Command{
		Use:           "vmpilot",
		Short:         "Hyper-V GPU-PV provisioning and remote desktop helper",
		SilenceUsage:  true,
		SilenceErrors: true,
		Long: `vmpilot stages and runs the GPU-PV provisioning scripts, manages Hyper-V
virtual machines and opens remote desktop sessions with a forced client zoom.

Examples:
  vmpilot provision --name=gpu-vm --iso=C:\iso\win11.iso --vhd=D:\VMs
  vmpilot connect gpu-vm --native --zoom=150
  vmpilot vm list -o yaml
  vmpilot serve                                     # Start daemon
  vmpilot status --api-url=http://127.0.0.1:8765/api # Remote status`,
	}
	root.PersistentFlags().StringVar(&flags.ConfigPath, "config", "", "path to TOML config file (optional)")
	root.PersistentFlags().StringVar(&flags.APIUrl, "api-url", "", "daemon URL for remote commands (e.g. http://host:8765/api)")
	return root
}
