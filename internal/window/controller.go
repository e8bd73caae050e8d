package window

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/loykin/vmpilot/internal/metrics"
)

// ErrTimeout is returned by Run when no usable window appeared in time.
var ErrTimeout = errors.New("timeout waiting for window or zoom")

// Defaults for the Remote Desktop client.
const (
	DefaultClassName    = "TscShellContainerClass"
	DefaultTimeout      = 30 * time.Second
	DefaultPollInterval = 500 * time.Millisecond
	DefaultGrace        = 1500 * time.Millisecond
	DefaultSettle       = 500 * time.Millisecond
)

// DefaultZoomLabels are matched case-insensitively against system menu
// labels. "thu ph" is the Vietnamese "Thu phóng".
var DefaultZoomLabels = []string{"zoom", "thu ph"}

// Config parameterises the search loop.
type Config struct {
	ClassName    string        `mapstructure:"class_name" toml:"class_name"`
	Timeout      time.Duration `mapstructure:"timeout" toml:"timeout"`
	PollInterval time.Duration `mapstructure:"poll_interval" toml:"poll_interval"`
	Grace        time.Duration `mapstructure:"grace" toml:"grace"`   // wait after the window is found
	Settle       time.Duration `mapstructure:"settle" toml:"settle"` // wait after the zoom command
	ZoomLabels   []string      `mapstructure:"zoom_labels" toml:"zoom_labels"`
}

func DefaultConfig() Config {
	return Config{
		ClassName:    DefaultClassName,
		Timeout:      DefaultTimeout,
		PollInterval: DefaultPollInterval,
		Grace:        DefaultGrace,
		Settle:       DefaultSettle,
		ZoomLabels:   append([]string(nil), DefaultZoomLabels...),
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.ClassName == "" {
		c.ClassName = d.ClassName
	}
	if c.Timeout <= 0 {
		c.Timeout = d.Timeout
	}
	if c.PollInterval <= 0 {
		c.PollInterval = d.PollInterval
	}
	if c.Grace < 0 {
		c.Grace = 0
	}
	if c.Settle < 0 {
		c.Settle = 0
	}
	if len(c.ZoomLabels) == 0 {
		c.ZoomLabels = d.ZoomLabels
	}
	return c
}

// Controller finds a window owned by a process, forces its zoom level via
// the system menu and centers it. A Controller holds no per-attempt state,
// so concurrent Run calls for different processes are independent.
type Controller struct {
	desktop Desktop
	cfg     Config
	status  func(string)
}

func New(d Desktop, cfg Config) *Controller {
	return &Controller{desktop: d, cfg: cfg.withDefaults()}
}

// OnStatus registers a sink for human-readable status lines.
func (c *Controller) OnStatus(fn func(string)) { c.status = fn }

func (c *Controller) Config() Config { return c.cfg }

func (c *Controller) report(msg string, args ...any) {
	slog.Info(msg, args...)
	if c.status == nil {
		return
	}
	var b strings.Builder
	b.WriteString("[RDP] ")
	b.WriteString(msg)
	for i := 0; i+1 < len(args); i += 2 {
		fmt.Fprintf(&b, " %v=%v", args[i], args[i+1])
	}
	c.status(b.String())
}

// Start runs the automation on its own goroutine. The attempt ends by itself
// on success or timeout; a timeout is logged and otherwise ignored.
func (c *Controller) Start(target TargetProcess, req ZoomRequest) {
	go func() {
		state, err := c.Run(context.Background(), target, req)
		metrics.IncWindowAutomation(string(state))
		if err != nil {
			slog.Info("window automation abandoned", "pid", target.PID, "state", state, "error", err)
		}
	}()
}

// Run executes the state machine synchronously and returns the terminal
// state. It returns ErrTimeout when the window never became ready and the
// context error when ctx is cancelled.
func (c *Controller) Run(ctx context.Context, target TargetProcess, req ZoomRequest) (State, error) {
	deadline := time.Now().Add(c.cfg.Timeout)
	c.report("waiting for window", "pid", target.PID, "class", c.cfg.ClassName)

	for time.Now().Before(deadline) {
		if h, ok := c.desktop.FindWindow(c.cfg.ClassName, target.PID); ok {
			c.report("found window", "pid", target.PID, "hwnd", uintptr(h))
			// grace period for the client UI to initialise
			if err := sleep(ctx, c.cfg.Grace); err != nil {
				return StateFound, err
			}
			if c.applyZoom(h, req) {
				if err := sleep(ctx, c.cfg.Settle); err != nil {
					return StateZoomApplied, err
				}
				if !c.center(h) {
					return StateZoomApplied, nil
				}
				return StateCentered, nil
			}
			c.report("zoom menu not ready, retrying", "pid", target.PID)
		}
		if err := sleep(ctx, c.cfg.PollInterval); err != nil {
			return StateSearching, err
		}
	}
	c.report("timeout waiting for window or zoom", "pid", target.PID)
	return StateTimedOut, ErrTimeout
}

// applyZoom posts the system command of the "<level>%" entry found under
// the zoom submenu. It returns false when either menu level is missing.
func (c *Controller) applyZoom(h Handle, req ZoomRequest) bool {
	sys, ok := c.desktop.SystemMenu(h)
	if !ok {
		return false
	}
	isZoom := zoomMenuMatcher(c.cfg.ZoomLabels)
	isLevel := percentMatcher(req.Level)
	for _, top := range c.desktop.MenuEntries(sys) {
		if !isZoom(normalizeLabel(top.Text)) {
			continue
		}
		sub, ok := c.desktop.SubMenu(sys, top.Index)
		if !ok {
			continue
		}
		entry, ok := findEntry(c.desktop.MenuEntries(sub), isLevel)
		if !ok {
			continue
		}
		c.report("posting zoom command", "level", req.Level, "command_id", entry.CommandID)
		if err := c.desktop.PostSysCommand(h, entry.CommandID); err != nil {
			slog.Debug("post system command failed", "error", err)
			return false
		}
		return true
	}
	return false
}

func (c *Controller) center(h Handle) bool {
	r, ok := c.desktop.WindowRect(h)
	if !ok {
		return false
	}
	w, hgt := c.desktop.ScreenSize()
	x, y := CenterPosition(w, hgt, r)
	c.report("centering window", "x", x, "y", y)
	if err := c.desktop.MoveWindow(h, x, y); err != nil {
		slog.Debug("move window failed", "error", err)
		return false
	}
	return true
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
