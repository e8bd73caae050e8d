package logger

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	lj "gopkg.in/natefinch/lumberjack.v2"
)

func TestJobWriterWithDir(t *testing.T) {
	dir := t.TempDir()
	cfg := Config{Dir: dir}
	w := cfg.JobWriter("vm-test")
	if w == nil {
		t.Fatal("expected writer when Dir is set")
	}
	_, _ = w.Write([]byte("hello\n"))
	_ = w.Close()
	path := filepath.Join(dir, "vm-test.provision.log")
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("job log not created at %s: %v", path, err)
	}
	if string(b) != "hello\n" {
		t.Fatalf("content = %q", b)
	}
}

func TestJobWriterWithoutDir(t *testing.T) {
	if w := (Config{}).JobWriter("vm"); w != nil {
		t.Fatal("expected nil writer without Dir")
	}
	if w := (Config{Dir: t.TempDir()}).JobWriter(""); w != nil {
		t.Fatal("expected nil writer without job name")
	}
}

func TestRotationDefaults(t *testing.T) {
	l := Config{}.rotating(filepath.Join(t.TempDir(), "x.log"))
	if l.MaxSize != DefaultMaxSizeMB || l.MaxBackups != DefaultMaxBackups || l.MaxAge != DefaultMaxAgeDays {
		t.Fatalf("defaults not applied: %+v", l)
	}
	l = Config{MaxSizeMB: 5, MaxBackups: 1, MaxAgeDays: 2, Compress: true}.rotating("y.log")
	want := lj.Logger{Filename: "y.log", MaxSize: 5, MaxBackups: 1, MaxAge: 2, Compress: true}
	if l.Filename != want.Filename || l.MaxSize != want.MaxSize || l.MaxBackups != want.MaxBackups || l.MaxAge != want.MaxAge || l.Compress != want.Compress {
		t.Fatalf("got %+v", l)
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"INFO":    slog.LevelInfo,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"bogus":   slog.LevelInfo,
		"":        slog.LevelInfo,
	}
	for in, want := range cases {
		if got := ParseLevel(in); got != want {
			t.Fatalf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestHandlerFormats(t *testing.T) {
	for _, f := range []string{"", "text", "json", "color", "JSON"} {
		if _, err := (Config{Format: f}).handler(&bytes.Buffer{}); err != nil {
			t.Fatalf("format %q: %v", f, err)
		}
	}
	if _, err := (Config{Format: "xml"}).handler(&bytes.Buffer{}); err == nil {
		t.Fatal("expected error for unknown format")
	}
}

func TestSetupWritesToFile(t *testing.T) {
	prev := slog.Default()
	defer slog.SetDefault(prev)

	path := filepath.Join(t.TempDir(), "logs", "vmpilot.log")
	closer, err := Setup(Config{File: path, Format: "json", Level: "debug"})
	if err != nil {
		t.Fatalf("setup: %v", err)
	}
	slog.Debug("hello", "k", "v")
	if closer == nil {
		t.Fatal("expected closer for file output")
	}
	_ = closer.Close()
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(b), `"msg":"hello"`) || !strings.Contains(string(b), `"k":"v"`) {
		t.Fatalf("unexpected log content: %s", b)
	}
}

func TestColorTextHandler(t *testing.T) {
	var buf bytes.Buffer
	h := NewColorTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}, false)
	l := slog.New(h).With("job", "vm1")
	l.Error("boom")
	out := buf.String()
	if !strings.Contains(out, "ERROR") || !strings.Contains(out, "boom") {
		t.Fatalf("missing level prefix: %q", out)
	}
	if !strings.Contains(out, "job=vm1") {
		t.Fatalf("missing attribute: %q", out)
	}
	if strings.Contains(out, "time=") {
		t.Fatalf("time should be omitted: %q", out)
	}
}
