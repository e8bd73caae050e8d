package logger

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	lj "gopkg.in/natefinch/lumberjack.v2"
)

// Default logging configuration constants
const (
	DefaultMaxSizeMB  = 10 // MB
	DefaultMaxBackups = 3  // number of backup files
	DefaultMaxAgeDays = 7  // days
)

// Config describes the daemon log and the per-job output files.
// When Dir is set every job writes Dir/<job>.provision.log.
// Rotation parameters follow lumberjack semantics.
type Config struct {
	Level      string `mapstructure:"level" toml:"level"`   // debug, info, warn, error
	Format     string `mapstructure:"format" toml:"format"` // text, json, color
	File       string `mapstructure:"file" toml:"file"`     // daemon log file; empty logs to stderr
	Dir        string `mapstructure:"dir" toml:"dir"`       // per-job output directory
	MaxSizeMB  int    `mapstructure:"max_size_mb" toml:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups" toml:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days" toml:"max_age_days"`
	Compress   bool   `mapstructure:"compress" toml:"compress"`
}

// Setup installs the default slog logger described by c and returns the
// underlying file writer, if any, so the caller can close it.
func Setup(c Config) (io.Closer, error) {
	var w io.Writer = os.Stderr
	var closer io.Closer
	if c.File != "" {
		if err := os.MkdirAll(filepath.Dir(c.File), 0o750); err != nil {
			return nil, fmt.Errorf("create log dir: %w", err)
		}
		f := c.rotating(c.File)
		w, closer = f, f
	}
	h, err := c.handler(w)
	if err != nil {
		return nil, err
	}
	slog.SetDefault(slog.New(h))
	return closer, nil
}

func (c Config) handler(w io.Writer) (slog.Handler, error) {
	opts := &slog.HandlerOptions{Level: ParseLevel(c.Level)}
	switch strings.ToLower(c.Format) {
	case "", "text":
		return slog.NewTextHandler(w, opts), nil
	case "json":
		return slog.NewJSONHandler(w, opts), nil
	case "color":
		return NewColorTextHandler(w, opts, true), nil
	default:
		return nil, fmt.Errorf("unknown log format %q", c.Format)
	}
}

// ParseLevel maps a level name onto slog; unknown names give info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// JobWriter returns a rotating writer for the output of job, or nil when no
// Dir is configured. job may be a VM name.
func (c Config) JobWriter(job string) io.WriteCloser {
	if c.Dir == "" || job == "" {
		return nil
	}
	return c.rotating(filepath.Join(c.Dir, fmt.Sprintf("%s.provision.log", job)))
}

func (c Config) rotating(path string) *lj.Logger {
	return &lj.Logger{
		Filename:   path,
		MaxSize:    valOr(c.MaxSizeMB, DefaultMaxSizeMB),
		MaxBackups: valOr(c.MaxBackups, DefaultMaxBackups),
		MaxAge:     valOr(c.MaxAgeDays, DefaultMaxAgeDays),
		Compress:   c.Compress,
	}
}

func valOr(v int, def int) int {
	if v <= 0 {
		return def
	}
	return v
}
