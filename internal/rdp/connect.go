package rdp

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/loykin/vmpilot/internal/process"
	"github.com/loykin/vmpilot/internal/window"
)

// AddressResolver finds the network address of a running VM.
type AddressResolver interface {
	VMAddress(ctx context.Context, name string) (string, error)
}

// Launcher starts a GUI program and returns its pid.
type Launcher func(program string, args ...string) (int, error)

// Client opens sessions. Native sessions write their .rdp file into Dir.
type Client struct {
	resolver AddressResolver
	dir      string
	zoom     *window.Controller
	launch   Launcher
}

// New returns a Client. zoom may be nil to never touch the client window.
func New(resolver AddressResolver, dir string, zoom *window.Controller) *Client {
	if dir == "" {
		dir = os.TempDir()
	}
	return &Client{resolver: resolver, dir: dir, zoom: zoom, launch: process.Launch}
}

// Connect opens the Hyper-V console over VMBus, which needs no network.
func (c *Client) Connect(name string) (int, error) {
	if err := checkName(name); err != nil {
		return 0, err
	}
	pid, err := c.launch("vmconnect", "localhost", name)
	if err != nil {
		return 0, fmt.Errorf("failed to launch vmconnect: %w. Make sure Hyper-V Management Tools are installed", err)
	}
	slog.Info("console opened", "vm", name, "pid", pid)
	return pid, nil
}

// Session is a launched Remote Desktop client.
type Session struct {
	PID      int    `json:"pid"`
	Address  string `json:"address"`
	FilePath string `json:"file"`
	Zooming  bool   `json:"zooming"`
}

// ConnectNative launches mstsc against the VM's address. When s.Zoom is not
// 100 the zoom automation runs in the background for the new client. It
// returns once mstsc is started.
func (c *Client) ConnectNative(ctx context.Context, name string, s Settings) (Session, error) {
	if err := checkName(name); err != nil {
		return Session{}, err
	}
	s = s.WithDefaults()
	if err := s.Validate(); err != nil {
		return Session{}, err
	}
	addr, err := c.resolver.VMAddress(ctx, name)
	if err != nil {
		return Session{}, err
	}
	if err := os.MkdirAll(c.dir, 0o750); err != nil {
		return Session{}, fmt.Errorf("failed to create %s: %w", c.dir, err)
	}
	path := filepath.Join(c.dir, name+".rdp")
	if err := os.WriteFile(path, []byte(RenderFile(addr, s)), 0o600); err != nil {
		return Session{}, fmt.Errorf("failed to write rdp file: %w", err)
	}
	pid, err := c.launch("mstsc", path)
	if err != nil {
		return Session{}, fmt.Errorf("failed to launch mstsc: %w", err)
	}
	sess := Session{PID: pid, Address: addr, FilePath: path}
	if s.Zoom != 100 && c.zoom != nil {
		c.zoom.Start(window.TargetProcess{PID: uint32(pid)}, window.ZoomRequest{Level: s.Zoom}) // #nosec G115
		sess.Zooming = true
	}
	slog.Info("remote desktop launched", "vm", name, "address", addr, "pid", pid, "zoom", s.Zoom)
	return sess, nil
}

func checkName(name string) error {
	if strings.TrimSpace(name) == "" || strings.ContainsAny(name, `/\:*?"<>|`) || name == "." || name == ".." {
		return fmt.Errorf("invalid VM name %q", name)
	}
	return nil
}
