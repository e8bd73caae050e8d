package config

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/spf13/viper"

	"github.com/loykin/vmpilot/internal/env"
	"github.com/loykin/vmpilot/internal/logger"
	"github.com/loykin/vmpilot/internal/template"
	itls "github.com/loykin/vmpilot/internal/tls"
	"github.com/loykin/vmpilot/internal/window"
)

// EnvPrefix prefixes environment overrides, e.g. VMPILOT_SERVER_LISTEN.
const EnvPrefix = "VMPILOT"

// Config is the top-level TOML structure.
type Config struct {
	Log       logger.Config   `mapstructure:"log" toml:"log"`
	Templates TemplatesConfig `mapstructure:"templates" toml:"templates"`
	Scripts   ScriptsConfig   `mapstructure:"scripts" toml:"scripts"`
	Window    window.Config   `mapstructure:"window" toml:"window"`
	Server    ServerConfig    `mapstructure:"server" toml:"server"`
	Metrics   MetricsConfig   `mapstructure:"metrics" toml:"metrics"`
	History   HistoryConfig   `mapstructure:"history" toml:"history"`
	Settings  SettingsConfig  `mapstructure:"settings" toml:"settings"`
}

type TemplatesConfig struct {
	Name        string   `mapstructure:"name" toml:"name"`
	SearchPaths []string `mapstructure:"search_paths" toml:"search_paths"`
	StagingRoot string   `mapstructure:"staging_root" toml:"staging_root"`
}

// ScriptsConfig controls the environment and sampling of provisioning scripts.
type ScriptsConfig struct {
	Env            []string      `mapstructure:"env" toml:"env"`
	EnvFiles       []string      `mapstructure:"env_files" toml:"env_files"`
	UseOSEnv       bool          `mapstructure:"use_os_env" toml:"use_os_env"`
	SampleInterval time.Duration `mapstructure:"sample_interval" toml:"sample_interval"`
}

type ServerConfig struct {
	Listen   string      `mapstructure:"listen" toml:"listen"`
	BasePath string      `mapstructure:"base_path" toml:"base_path"`
	TLS      itls.Config `mapstructure:"tls" toml:"tls"`
}

// URL is the address clients on this host use to reach the daemon.
func (s ServerConfig) URL() string {
	scheme := "http"
	if s.TLS.Enabled {
		scheme = "https"
	}
	return scheme + "://" + s.Listen + s.BasePath
}

type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled" toml:"enabled"`
	Listen  string `mapstructure:"listen" toml:"listen"` // empty serves /metrics on the API listener
}

type HistoryConfig struct {
	DSN []string `mapstructure:"dsn" toml:"dsn"`
}

// SettingsConfig locates the per-VM connection settings database.
type SettingsConfig struct {
	DSN string `mapstructure:"dsn" toml:"dsn"`
}

// Default returns a configuration that works without a file.
func Default() Config {
	return Config{
		Log: logger.Config{
			Level:      "info",
			Format:     "text",
			MaxSizeMB:  logger.DefaultMaxSizeMB,
			MaxBackups: logger.DefaultMaxBackups,
			MaxAgeDays: logger.DefaultMaxAgeDays,
		},
		Templates: TemplatesConfig{
			Name:        template.DefaultTemplateDir,
			SearchPaths: append([]string(nil), template.DefaultSearchRoots...),
			StagingRoot: template.DefaultStagingRoot(),
		},
		Scripts: ScriptsConfig{SampleInterval: 5 * time.Second},
		Window:  window.DefaultConfig(),
		Server:  ServerConfig{Listen: "127.0.0.1:8765", BasePath: "/api"},
		Metrics: MetricsConfig{Enabled: true},
	}
}

// Load reads path (optional) over Default and applies VMPILOT_* environment
// overrides.
func Load(path string) (Config, error) {
	v := viper.New()
	setDefaults(v, Default())
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("toml")
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	}
	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return Config{}, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// setDefaults registers every key so AutomaticEnv can override it.
func setDefaults(v *viper.Viper, d Config) {
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)
	v.SetDefault("log.file", d.Log.File)
	v.SetDefault("log.dir", d.Log.Dir)
	v.SetDefault("log.max_size_mb", d.Log.MaxSizeMB)
	v.SetDefault("log.max_backups", d.Log.MaxBackups)
	v.SetDefault("log.max_age_days", d.Log.MaxAgeDays)
	v.SetDefault("log.compress", d.Log.Compress)

	v.SetDefault("templates.name", d.Templates.Name)
	v.SetDefault("templates.search_paths", d.Templates.SearchPaths)
	v.SetDefault("templates.staging_root", d.Templates.StagingRoot)

	v.SetDefault("scripts.env", d.Scripts.Env)
	v.SetDefault("scripts.env_files", d.Scripts.EnvFiles)
	v.SetDefault("scripts.use_os_env", d.Scripts.UseOSEnv)
	v.SetDefault("scripts.sample_interval", d.Scripts.SampleInterval)

	v.SetDefault("window.class_name", d.Window.ClassName)
	v.SetDefault("window.timeout", d.Window.Timeout)
	v.SetDefault("window.poll_interval", d.Window.PollInterval)
	v.SetDefault("window.grace", d.Window.Grace)
	v.SetDefault("window.settle", d.Window.Settle)
	v.SetDefault("window.zoom_labels", d.Window.ZoomLabels)

	v.SetDefault("server.listen", d.Server.Listen)
	v.SetDefault("server.base_path", d.Server.BasePath)
	v.SetDefault("server.tls.enabled", d.Server.TLS.Enabled)
	v.SetDefault("server.tls.cert_file", d.Server.TLS.CertFile)
	v.SetDefault("server.tls.key_file", d.Server.TLS.KeyFile)
	v.SetDefault("server.tls.dir", d.Server.TLS.Dir)
	v.SetDefault("server.tls.auto_generate", d.Server.TLS.AutoGenerate)
	v.SetDefault("server.tls.hosts", d.Server.TLS.Hosts)
	v.SetDefault("server.tls.min_version", d.Server.TLS.MinVersion)
	v.SetDefault("metrics.enabled", d.Metrics.Enabled)
	v.SetDefault("metrics.listen", d.Metrics.Listen)
	v.SetDefault("history.dsn", d.History.DSN)
	v.SetDefault("settings.dsn", d.Settings.DSN)
}

func (c Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.Templates.Name) == "" {
		errs = append(errs, errors.New("templates.name is required"))
	}
	if c.Server.BasePath != "" && !strings.HasPrefix(c.Server.BasePath, "/") {
		errs = append(errs, fmt.Errorf("server.base_path %q must start with /", c.Server.BasePath))
	}
	if c.Scripts.SampleInterval < 0 {
		errs = append(errs, errors.New("scripts.sample_interval must not be negative"))
	}
	if c.Window.Timeout < 0 || c.Window.PollInterval < 0 {
		errs = append(errs, errors.New("window durations must not be negative"))
	}
	return errors.Join(errs...)
}

// ScriptEnv composes the extra environment of provisioning scripts from
// env files and the env list, in that order.
func (c Config) ScriptEnv() ([]string, error) {
	e := env.New()
	if c.Scripts.UseOSEnv {
		e.FromOS()
	}
	for _, f := range c.Scripts.EnvFiles {
		if err := e.LoadFile(f); err != nil {
			return nil, err
		}
	}
	e.SetPairs(c.Scripts.Env)
	return e.Pairs(), nil
}

// TOML renders c as a TOML document.
func (c Config) TOML() (string, error) {
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(c); err != nil {
		return "", fmt.Errorf("failed to encode config: %w", err)
	}
	return buf.String(), nil
}
