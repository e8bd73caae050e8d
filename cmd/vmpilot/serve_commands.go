package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/loykin/vmpilot"
	"github.com/loykin/vmpilot/internal/server"
)

func createServeCommand(c command) *cobra.Command {
	return &cobra.Command{
		Use:   "serve [config.toml]",
		Short: "Start the vmpilot daemon",
		Long: `Start the HTTP daemon that runs provisioning jobs, streams their output as
server-sent events and exposes VM control and remote desktop endpoints.

Examples:
  vmpilot serve                     # Defaults, listens on 127.0.0.1:8765/api
  vmpilot serve vmpilot.toml        # Start with specific config file
  VMPILOT_SERVER_LISTEN=:9000 vmpilot serve`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) > 0 {
				c.global.ConfigPath = args[0]
			}
			return c.Serve(cmd)
		},
	}
}

func (c command) Serve(cmd *cobra.Command) error {
	cfg, err := c.loadConfig()
	if err != nil {
		return fmt.Errorf("error loading config: %w", err)
	}
	if cfg.Metrics.Enabled {
		if err := vmpilot.RegisterMetricsDefault(); err != nil {
			slog.Warn("failed to register metrics", "error", err)
		}
		if cfg.Metrics.Listen != "" {
			go func() {
				if err := vmpilot.ServeMetrics(cfg.Metrics.Listen); err != nil {
					slog.Error("metrics server error", "listen", cfg.Metrics.Listen, "error", err)
				}
			}()
		}
	}

	hub := server.NewHub(0)
	app, closeApp, err := c.openApp(hub)
	if err != nil {
		return err
	}
	defer closeApp()

	srv, err := vmpilot.NewHTTPServer(cfg.Server, app.Router(hub).Handler())
	if err != nil {
		return fmt.Errorf("failed to create HTTP server: %w", err)
	}
	slog.Info("vmpilot daemon started", "listen", srv.Addr, "base_path", cfg.Server.BasePath)
	_, _ = fmt.Fprintln(cmd.OutOrStdout(), renderNote("Starting vmpilot server on "+cfg.Server.URL()))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	_, _ = fmt.Fprintln(cmd.OutOrStdout(), renderNote("Shutting down..."))
	if st, _ := app.Pipeline.Status(); st.Busy {
		slog.Warn("provisioning still running at shutdown", "vm", st.Job, "pid", st.PID)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	// event streams never end by themselves
	if err := srv.Shutdown(ctx); err != nil {
		return srv.Close()
	}
	return nil
}

func createConfigCommand(c command) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect configuration",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration as TOML",
		Long: `Print the configuration after defaults, the optional file and VMPILOT_*
environment overrides were applied.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := c.loadConfig()
			if err != nil {
				return err
			}
			s, err := cfg.TOML()
			if err != nil {
				return err
			}
			_, _ = fmt.Fprint(cmd.OutOrStdout(), s)
			return nil
		},
	})
	return cmd
}
