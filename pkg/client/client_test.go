package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T) (*httptest.Server, *[]string) {
	t.Helper()
	var calls []string
	mux := http.NewServeMux()
	mux.HandleFunc("/api/provision", func(w http.ResponseWriter, r *http.Request) {
		var spec VMSpec
		if err := json.NewDecoder(r.Body).Decode(&spec); err != nil || spec.Name == "" {
			w.WriteHeader(http.StatusBadRequest)
			_ = json.NewEncoder(w).Encode(ErrorResponse{Error: "VM Name is required"})
			return
		}
		calls = append(calls, "provision "+spec.Name)
		w.WriteHeader(http.StatusAccepted)
		_ = json.NewEncoder(w).Encode(Accepted{RunID: "r1", Job: spec.Name, Kind: "provision"})
	})
	mux.HandleFunc("/api/provision/cancel", func(w http.ResponseWriter, r *http.Request) {
		calls = append(calls, "cancel "+r.URL.Query().Get("name"))
		_ = json.NewEncoder(w).Encode(map[string]bool{"ok": true})
	})
	mux.HandleFunc("/api/provision/status", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(StatusResponse{
			Provision: JobStatus{Busy: true, Job: "vm1", PID: 42},
			Usage:     &Usage{PID: 42, Processes: 3},
		})
	})
	mux.HandleFunc("/api/update", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		_ = json.NewEncoder(w).Encode(ErrorResponse{Error: "a job is already running"})
	})
	mux.HandleFunc("/api/events", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		for _, l := range []OutputLine{{Stream: "stdout", Text: "one"}, {Stream: "stderr", Text: "two"}} {
			b, _ := json.Marshal(l)
			_, _ = fmt.Fprintf(w, "event:%s\ndata:%s\n\n", l.Stream, b)
		}
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, &calls
}

func TestProvisionAndCancel(t *testing.T) {
	srv, calls := newTestServer(t)
	c := New(Config{BaseURL: srv.URL + "/api/"})
	ctx := context.Background()

	acc, err := c.Provision(ctx, VMSpec{Name: "vm1"})
	require.NoError(t, err)
	assert.Equal(t, Accepted{RunID: "r1", Job: "vm1", Kind: "provision"}, acc)

	require.NoError(t, c.Cancel(ctx, "GPU VM"))
	require.NoError(t, c.Cancel(ctx, ""))
	assert.Equal(t, []string{"provision vm1", "cancel GPU VM", "cancel "}, *calls)
}

func TestAPIErrors(t *testing.T) {
	srv, _ := newTestServer(t)
	c := New(Config{BaseURL: srv.URL + "/api"})

	_, err := c.Provision(context.Background(), VMSpec{})
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusBadRequest, apiErr.Status)
	assert.Equal(t, "API error: VM Name is required", err.Error())

	_, err = c.Update(context.Background(), UpdateSpec{Name: "vm1"})
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusConflict, apiErr.Status)
}

func TestStatusAndReachable(t *testing.T) {
	srv, _ := newTestServer(t)
	c := New(Config{BaseURL: srv.URL + "/api"})
	st, err := c.Status(context.Background())
	require.NoError(t, err)
	assert.True(t, st.Provision.Busy)
	require.NotNil(t, st.Usage)
	assert.Equal(t, 3, st.Usage.Processes)
	assert.True(t, c.IsReachable(context.Background()))

	down := New(Config{BaseURL: "http://127.0.0.1:1/api", Timeout: 200 * time.Millisecond})
	assert.False(t, down.IsReachable(context.Background()))
}

func TestEvents(t *testing.T) {
	srv, _ := newTestServer(t)
	c := New(Config{BaseURL: srv.URL + "/api"})
	var got []OutputLine
	err := c.Events(context.Background(), func(l OutputLine) bool {
		got = append(got, l)
		return true
	})
	require.NoError(t, err)
	assert.Equal(t, []OutputLine{{Stream: "stdout", Text: "one"}, {Stream: "stderr", Text: "two"}}, got)

	got = nil
	require.NoError(t, c.Events(context.Background(), func(l OutputLine) bool {
		got = append(got, l)
		return false
	}))
	assert.Len(t, got, 1)
}

func TestLoadCACertErrors(t *testing.T) {
	_, err := setupClientTLS(Config{TLS: &TLSClientConfig{Enabled: true, CACert: "/nonexistent/ca.pem"}})
	assert.Error(t, err)

	cfg, err := setupClientTLS(Config{Insecure: true})
	require.NoError(t, err)
	assert.True(t, cfg.InsecureSkipVerify)
}
