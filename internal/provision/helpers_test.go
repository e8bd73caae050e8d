package provision

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/loykin/vmpilot/internal/history"
	"github.com/loykin/vmpilot/internal/process"
	"github.com/loykin/vmpilot/internal/template"
)

func requireUnix(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("tests require sh on Unix-like systems")
	}
}

// recordingRunner streams through the real shell but only records RunSync
// scripts, which are powershell cleanup commands.
type recordingRunner struct {
	*process.Shell
	mu   sync.Mutex
	sync []string
}

func (r *recordingRunner) RunSync(_ context.Context, script string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sync = append(r.sync, script)
	return "", nil
}

func (r *recordingRunner) scripts() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.sync...)
}

type lineCollector struct {
	mu    sync.Mutex
	lines []OutputLine
}

func (c *lineCollector) OnLine(l OutputLine) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lines = append(c.lines, l)
}

func (c *lineCollector) texts(stream Stream) []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []string
	for _, l := range c.lines {
		if l.Stream == stream {
			out = append(out, l.Text)
		}
	}
	return out
}

type eventSink struct {
	mu     sync.Mutex
	events []history.Event
}

func (s *eventSink) Send(_ context.Context, e history.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, e)
	return nil
}

func (s *eventSink) types() []history.EventType {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]history.EventType, 0, len(s.events))
	for _, e := range s.events {
		out = append(out, e.Type)
	}
	return out
}

type fixture struct {
	p        *Pipeline
	runner   *recordingRunner
	lines    *lineCollector
	sink     *eventSink
	kills    atomic.Int32
	root     string
	logDir   string
	template string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	root := t.TempDir()
	f := &fixture{
		runner: &recordingRunner{Shell: process.NewShell()},
		lines:  &lineCollector{},
		sink:   &eventSink{},
		root:   root,
		logDir: filepath.Join(root, "logs"),
	}
	f.template = filepath.Join(root, "templates", template.DefaultTemplateDir)
	require.NoError(t, os.MkdirAll(f.template, 0o750))
	opts := Options{
		Runner: f.runner,
		Engine: template.NewEngine([]string{filepath.Join(root, "templates")}, filepath.Join(root, "staging")),
		KillTree: func(pid int) error {
			f.kills.Add(1)
			return process.KillTree(pid)
		},
		Observer: f.lines,
		Sink:     f.sink,
	}
	opts.Log.Dir = f.logDir
	f.p = New(opts)
	return f
}

func (f *fixture) writeTemplate(t *testing.T, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(f.template, name), []byte(content), 0o600))
}

func (f *fixture) waitForPID(t *testing.T) int {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if st, _ := f.p.Status(); st.PID > 0 {
			return st.PID
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("job never attached a pid")
	return 0
}
