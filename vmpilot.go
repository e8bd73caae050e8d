package vmpilot

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/loykin/vmpilot/internal/config"
	"github.com/loykin/vmpilot/internal/history"
	hfactory "github.com/loykin/vmpilot/internal/history/factory"
	"github.com/loykin/vmpilot/internal/hyperv"
	"github.com/loykin/vmpilot/internal/metrics"
	"github.com/loykin/vmpilot/internal/process"
	"github.com/loykin/vmpilot/internal/provision"
	"github.com/loykin/vmpilot/internal/rdp"
	"github.com/loykin/vmpilot/internal/server"
	"github.com/loykin/vmpilot/internal/store"
	sfactory "github.com/loykin/vmpilot/internal/store/factory"
	"github.com/loykin/vmpilot/internal/template"
	itls "github.com/loykin/vmpilot/internal/tls"
	"github.com/loykin/vmpilot/internal/window"
)

// Re-export core types for external consumers.

type (
	Config       = config.Config
	VMSpec       = provision.VMSpec
	UpdateSpec   = provision.UpdateSpec
	Summary      = provision.Summary
	OutputLine   = provision.OutputLine
	Observer     = provision.Observer
	ObserverFunc = provision.ObserverFunc
	RDPSettings  = rdp.Settings
	VM           = hyperv.VM
)

// App wires the pipeline, the Hyper-V host, the remote desktop client and
// the optional settings database from one Config.
type App struct {
	Config   Config
	Pipeline *provision.Pipeline
	HyperV   *hyperv.Host
	RDP      *rdp.Client
	Zoom     *window.Controller
	Settings *rdp.SettingsStore // nil without settings.dsn

	sinks history.Multi
	store store.Store
}

func LoadConfig(path string) (Config, error) { return config.Load(path) }

func DefaultConfig() Config { return config.Default() }

// New builds an App. Observers receive every output line of every job.
func New(c Config, observers ...Observer) (*App, error) {
	scriptEnv, err := c.ScriptEnv()
	if err != nil {
		return nil, fmt.Errorf("failed to load script environment: %w", err)
	}
	shell := process.NewShell()
	shell.Env = scriptEnv

	sinks, err := hfactory.NewSinks(c.History.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open history: %w", err)
	}
	a := &App{Config: c, sinks: sinks}

	if c.Settings.DSN != "" {
		st, err := sfactory.NewFromDSN(c.Settings.DSN)
		if err != nil {
			_ = sinks.Close()
			return nil, fmt.Errorf("failed to open settings store: %w", err)
		}
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := st.EnsureSchema(ctx); err != nil {
			_ = st.Close()
			_ = sinks.Close()
			return nil, fmt.Errorf("failed to prepare settings store: %w", err)
		}
		a.store = st
		a.Settings = rdp.NewSettingsStore(st)
	}

	opts := provision.Options{
		Runner:         shell,
		Engine:         template.NewEngine(c.Templates.SearchPaths, c.Templates.StagingRoot),
		TemplateDir:    c.Templates.Name,
		Observer:       provision.Observers(observers),
		Log:            c.Log,
		SampleInterval: c.Scripts.SampleInterval,
	}
	if len(sinks) > 0 {
		opts.Sink = sinks
	}
	a.Pipeline = provision.New(opts)
	a.HyperV = hyperv.New(shell)
	a.Zoom = window.New(window.NewDesktop(), c.Window)
	a.RDP = rdp.New(a.HyperV, c.Templates.StagingRoot, a.Zoom)
	return a, nil
}

// Router returns the HTTP API for a. hub, when non-nil, must also be one of
// the observers passed to New for /events to carry output.
func (a *App) Router(hub *server.Hub) *server.Router {
	opts := server.Options{
		Pipeline: a.Pipeline,
		Host:     a.HyperV,
		RDP:      a.RDP,
		Settings: a.Settings,
		Hub:      hub,
		BasePath: a.Config.Server.BasePath,
		Metrics:  a.Config.Metrics.Enabled && a.Config.Metrics.Listen == "",
	}
	return server.NewRouter(opts)
}

// Close releases the history sinks and the settings database.
func (a *App) Close() error {
	var errs []error
	if err := a.sinks.Close(); err != nil {
		errs = append(errs, err)
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// NewHTTPServer serves h on c.Listen in the background, with HTTPS when
// c.TLS is enabled.
func NewHTTPServer(c config.ServerConfig, h http.Handler) (*http.Server, error) {
	tlsCfg, err := itls.Setup(c.TLS)
	if err != nil {
		return nil, fmt.Errorf("failed to set up TLS: %w", err)
	}
	return server.NewServer(c.Listen, h, tlsCfg)
}

// Metrics helpers (public facade)

func RegisterMetrics(r prometheus.Registerer) error { return metrics.Register(r) }
func RegisterMetricsDefault() error                 { return metrics.Register(prometheus.DefaultRegisterer) }

// ServeMetrics starts an HTTP server on addr exposing /metrics using the default registry.
// It runs the server in the caller goroutine.
func ServeMetrics(addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return srv.ListenAndServe()
}
