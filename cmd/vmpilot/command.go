package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/loykin/vmpilot"
	"github.com/loykin/vmpilot/internal/logger"
	"github.com/loykin/vmpilot/internal/provision"
	"github.com/loykin/vmpilot/pkg/client"
)

type command struct {
	global *GlobalFlags
}

func (c command) loadConfig() (vmpilot.Config, error) {
	return vmpilot.LoadConfig(c.global.ConfigPath)
}

// openApp loads the config, installs the logger and builds the App. The
// returned func closes both.
func (c command) openApp(observers ...vmpilot.Observer) (*vmpilot.App, func(), error) {
	cfg, err := c.loadConfig()
	if err != nil {
		return nil, nil, err
	}
	logFile, err := logger.Setup(cfg.Log)
	if err != nil {
		return nil, nil, err
	}
	app, err := vmpilot.New(cfg, observers...)
	if err != nil {
		if logFile != nil {
			_ = logFile.Close()
		}
		return nil, nil, err
	}
	return app, func() {
		if err := app.Close(); err != nil {
			slog.Warn("close failed", "error", err)
		}
		if logFile != nil {
			_ = logFile.Close()
		}
	}, nil
}

// apiClient targets --api-url, or the configured listen address. A daemon
// with a certificate directory is trusted through its tls.crt.
func (c command) apiClient(timeout time.Duration) (*client.Client, error) {
	cc := client.Config{BaseURL: c.global.APIUrl, Timeout: timeout}
	if cc.BaseURL == "" {
		cfg, err := c.loadConfig()
		if err != nil {
			return nil, err
		}
		cc.BaseURL = cfg.Server.URL()
		if t := cfg.Server.TLS; t.Enabled {
			ca := t.CertFile
			if ca == "" {
				ca = filepath.Join(t.Dir, "tls.crt")
			}
			cc.TLS = &client.TLSClientConfig{Enabled: true, CACert: ca}
		}
	}
	url := cc.BaseURL
	cl := client.New(cc)
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if !cl.IsReachable(ctx) {
		return nil, fmt.Errorf("daemon not reachable at %s - please start daemon first with 'vmpilot serve'", url)
	}
	return cl, nil
}

// lineWriter prints output lines; the two stream readers call it concurrently.
func lineWriter(w io.Writer) vmpilot.Observer {
	var mu sync.Mutex
	return vmpilot.ObserverFunc(func(l provision.OutputLine) {
		mu.Lock()
		defer mu.Unlock()
		_, _ = fmt.Fprintln(w, renderLine(l))
	})
}

// followRemote prints the job's output lines until the daemon reports its
// slot free. interrupt, when set, is called once on the first signal.
func followRemote(ctx context.Context, cl *client.Client, acc client.Accepted, w io.Writer, interrupt func() error) error {
	evCtx, stopEvents := context.WithCancel(context.Background())
	defer stopEvents()
	var mu sync.Mutex
	go func() {
		_ = cl.Events(evCtx, func(l client.OutputLine) bool {
			if l.Job != acc.Job {
				return true
			}
			mu.Lock()
			defer mu.Unlock()
			_, _ = fmt.Fprintln(w, renderLine(provision.OutputLine{Stream: provision.Stream(l.Stream), Text: l.Text}))
			return true
		})
	}()

	t := time.NewTicker(time.Second)
	defer t.Stop()
	sig := ctx.Done()
	for {
		select {
		case <-sig:
			sig = nil
			if interrupt != nil {
				if err := interrupt(); err != nil {
					return err
				}
			}
		case <-t.C:
			st, err := cl.Status(context.Background())
			if err != nil {
				return err
			}
			slot := st.Provision
			if acc.Kind == provision.KindUpdate.Name {
				slot = st.Update
			}
			if !slot.Busy || slot.RunID != acc.RunID {
				return nil
			}
		}
	}
}
