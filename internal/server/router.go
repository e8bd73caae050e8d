package server

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/loykin/vmpilot/internal/hyperv"
	"github.com/loykin/vmpilot/internal/metrics"
	"github.com/loykin/vmpilot/internal/provision"
	"github.com/loykin/vmpilot/internal/rdp"
)

// VMHost is the part of hyperv.Host the router needs.
type VMHost interface {
	ListVMs(ctx context.Context) ([]hyperv.VM, error)
	StartVM(ctx context.Context, name string) error
	StopVM(ctx context.Context, name string) error
	DeleteVM(ctx context.Context, name string) error
	NetworkSwitches(ctx context.Context) ([]hyperv.Switch, error)
	DefaultVHDPath(ctx context.Context) (string, error)
	HostDrives(ctx context.Context) ([]string, error)
}

// Connector opens sessions to VMs.
type Connector interface {
	Connect(name string) (int, error)
	ConnectNative(ctx context.Context, name string, s rdp.Settings) (rdp.Session, error)
}

// Options wires the router. Settings may be nil, then RDP requests without a
// body use rdp.DefaultSettings.
type Options struct {
	Pipeline *provision.Pipeline
	Host     VMHost
	RDP      Connector
	Settings *rdp.SettingsStore
	Hub      *Hub
	BasePath string
	Metrics  bool // serve /metrics on this router
}

// Router provides embeddable HTTP handlers for provisioning and VM control.
// Endpoints, relative to basePath:
//
//	POST   /provision            body: VMSpec JSON, 202 with run id
//	POST   /provision/cancel     query: name=... (optional)
//	GET    /provision/status
//	POST   /update               body: UpdateSpec JSON, 202 with run id
//	GET    /events               server-sent output lines
//	GET    /vms
//	POST   /vms/:name/start|stop|connect|rdp
//	DELETE /vms/:name
//	GET    /vms/:name/settings   PUT /vms/:name/settings
//	GET    /switches
//	GET    /host
type Router struct {
	pipeline *provision.Pipeline
	host     VMHost
	rdp      Connector
	settings *rdp.SettingsStore
	hub      *Hub
	basePath string
	metrics  bool
}

func NewRouter(opts Options) *Router {
	hub := opts.Hub
	if hub == nil {
		hub = NewHub(0)
	}
	return &Router{
		pipeline: opts.Pipeline,
		host:     opts.Host,
		rdp:      opts.RDP,
		settings: opts.Settings,
		hub:      hub,
		basePath: sanitizeBase(opts.BasePath),
		metrics:  opts.Metrics,
	}
}

// Hub returns the fan-out hub; register it as a pipeline observer.
func (r *Router) Hub() *Hub { return r.hub }

// Handler returns an http.Handler powered by gin that can be mounted in any server/mux.
func (r *Router) Handler() http.Handler {
	g := gin.New()
	g.Use(gin.Recovery())
	if r.metrics {
		g.GET("/metrics", gin.WrapH(metrics.Handler()))
	}
	group := g.Group(r.basePath)
	group.POST("/provision", r.handleProvision)
	group.POST("/provision/cancel", r.handleCancel)
	group.GET("/provision/status", r.handleStatus)
	group.POST("/update", r.handleUpdate)
	group.GET("/events", r.handleEvents)
	group.GET("/vms", r.handleListVMs)
	group.POST("/vms/:name/start", r.handleVMAction)
	group.POST("/vms/:name/stop", r.handleVMAction)
	group.DELETE("/vms/:name", r.handleDeleteVM)
	group.POST("/vms/:name/connect", r.handleConnect)
	group.POST("/vms/:name/rdp", r.handleRDP)
	group.GET("/vms/:name/settings", r.handleGetSettings)
	group.PUT("/vms/:name/settings", r.handlePutSettings)
	group.GET("/switches", r.handleSwitches)
	group.GET("/host", r.handleHost)
	return g
}

// NewServer listens on addr and serves h in the background, over TLS when
// tlsCfg is set. Write timeouts are disabled so event streams stay open.
func NewServer(addr string, h http.Handler, tlsCfg *tls.Config) (*http.Server, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	if tlsCfg != nil {
		ln = tls.NewListener(ln, tlsCfg)
	}
	server := &http.Server{
		Addr:              ln.Addr().String(),
		Handler:           h,
		TLSConfig:         tlsCfg,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	go func() {
		if err := server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("http server stopped", "addr", server.Addr, "error", err)
		}
	}()
	return server, nil
}
