package server

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/loykin/vmpilot/internal/metrics"
	"github.com/loykin/vmpilot/internal/provision"
	"github.com/loykin/vmpilot/internal/rdp"
)

type errorResp struct {
	Error string `json:"error"`
}

type okResp struct {
	OK bool `json:"ok"`
}

type acceptedResp struct {
	RunID string `json:"run_id"`
	Job   string `json:"job"`
	Kind  string `json:"kind"`
}

// StatusResp is the body of GET /provision/status.
type StatusResp struct {
	Provision provision.Status `json:"provision"`
	Update    provision.Status `json:"update"`
	Usage     *metrics.Sample  `json:"usage,omitempty"`
}

const invalidNameMsg = "invalid name: allowed [A-Za-z0-9._-] and inner spaces, no '..'"

func statusFor(err error) int {
	switch {
	case errors.Is(err, provision.ErrInvalidSpec):
		return http.StatusBadRequest
	case errors.Is(err, provision.ErrBusy):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func (r *Router) handleProvision(c *gin.Context) {
	var spec provision.VMSpec
	if err := c.ShouldBindJSON(&spec); err != nil {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: "invalid JSON: " + err.Error()})
		return
	}
	// the job outlives the request
	t, err := r.pipeline.Start(context.Background(), spec)
	if err != nil {
		writeJSON(c, statusFor(err), errorResp{Error: err.Error()})
		return
	}
	writeJSON(c, http.StatusAccepted, acceptedResp{RunID: t.RunID, Job: t.Job, Kind: t.Kind})
}

func (r *Router) handleUpdate(c *gin.Context) {
	var spec provision.UpdateSpec
	if err := c.ShouldBindJSON(&spec); err != nil {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: "invalid JSON: " + err.Error()})
		return
	}
	t, err := r.pipeline.StartUpdate(context.Background(), spec)
	if err != nil {
		writeJSON(c, statusFor(err), errorResp{Error: err.Error()})
		return
	}
	writeJSON(c, http.StatusAccepted, acceptedResp{RunID: t.RunID, Job: t.Job, Kind: t.Kind})
}

func (r *Router) handleCancel(c *gin.Context) {
	name := c.Query("name")
	if name != "" && !isSafeName(name) {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: invalidNameMsg})
		return
	}
	if err := r.pipeline.Cancel(c.Request.Context(), name); err != nil {
		writeJSON(c, http.StatusInternalServerError, errorResp{Error: err.Error()})
		return
	}
	writeJSON(c, http.StatusOK, okResp{OK: true})
}

func (r *Router) handleStatus(c *gin.Context) {
	pst, ust := r.pipeline.Status()
	resp := StatusResp{Provision: pst, Update: ust}
	if s, ok := r.pipeline.Usage(provision.KindProvision); ok {
		resp.Usage = &s
	}
	writeJSON(c, http.StatusOK, resp)
}

func (r *Router) handleEvents(c *gin.Context) {
	ch, cancel := r.hub.Subscribe()
	defer cancel()
	ctx := c.Request.Context()
	// send headers now so clients see the stream before the first line
	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Status(http.StatusOK)
	c.Writer.Flush()
	c.Stream(func(io.Writer) bool {
		select {
		case <-ctx.Done():
			return false
		case l, ok := <-ch:
			if !ok {
				return false
			}
			c.SSEvent(string(l.Stream), l)
			return true
		}
	})
}

func (r *Router) handleListVMs(c *gin.Context) {
	vms, err := r.host.ListVMs(c.Request.Context())
	if err != nil {
		writeJSON(c, http.StatusInternalServerError, errorResp{Error: err.Error()})
		return
	}
	writeJSON(c, http.StatusOK, vms)
}

func (r *Router) vmName(c *gin.Context) (string, bool) {
	name := c.Param("name")
	if !isSafeName(name) {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: invalidNameMsg})
		return "", false
	}
	return name, true
}

func (r *Router) handleVMAction(c *gin.Context) {
	name, ok := r.vmName(c)
	if !ok {
		return
	}
	var err error
	if strings.HasSuffix(c.FullPath(), "/start") {
		err = r.host.StartVM(c.Request.Context(), name)
	} else {
		err = r.host.StopVM(c.Request.Context(), name)
	}
	if err != nil {
		writeJSON(c, http.StatusInternalServerError, errorResp{Error: err.Error()})
		return
	}
	writeJSON(c, http.StatusOK, okResp{OK: true})
}

func (r *Router) handleDeleteVM(c *gin.Context) {
	name, ok := r.vmName(c)
	if !ok {
		return
	}
	if err := r.host.DeleteVM(c.Request.Context(), name); err != nil {
		writeJSON(c, http.StatusInternalServerError, errorResp{Error: err.Error()})
		return
	}
	if r.settings != nil {
		// settings of a deleted VM are useless
		_ = r.settings.Delete(c.Request.Context(), name)
	}
	writeJSON(c, http.StatusOK, okResp{OK: true})
}

func (r *Router) handleConnect(c *gin.Context) {
	name, ok := r.vmName(c)
	if !ok {
		return
	}
	pid, err := r.rdp.Connect(name)
	if err != nil {
		writeJSON(c, http.StatusInternalServerError, errorResp{Error: err.Error()})
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"pid": pid})
}

func (r *Router) handleRDP(c *gin.Context) {
	name, ok := r.vmName(c)
	if !ok {
		return
	}
	s, err := r.loadSettings(c.Request.Context(), name)
	if err != nil {
		writeJSON(c, http.StatusInternalServerError, errorResp{Error: err.Error()})
		return
	}
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&s); err != nil {
			writeJSON(c, http.StatusBadRequest, errorResp{Error: "invalid JSON: " + err.Error()})
			return
		}
	}
	sess, err := r.rdp.ConnectNative(c.Request.Context(), name, s)
	if err != nil {
		writeJSON(c, http.StatusInternalServerError, errorResp{Error: err.Error()})
		return
	}
	writeJSON(c, http.StatusOK, sess)
}

func (r *Router) loadSettings(ctx context.Context, name string) (rdp.Settings, error) {
	if r.settings == nil {
		return rdp.DefaultSettings(), nil
	}
	return r.settings.Load(ctx, name)
}

func (r *Router) handleGetSettings(c *gin.Context) {
	name, ok := r.vmName(c)
	if !ok {
		return
	}
	s, err := r.loadSettings(c.Request.Context(), name)
	if err != nil {
		writeJSON(c, http.StatusInternalServerError, errorResp{Error: err.Error()})
		return
	}
	writeJSON(c, http.StatusOK, s)
}

func (r *Router) handlePutSettings(c *gin.Context) {
	name, ok := r.vmName(c)
	if !ok {
		return
	}
	if r.settings == nil {
		writeJSON(c, http.StatusNotImplemented, errorResp{Error: "settings store not configured"})
		return
	}
	var s rdp.Settings
	if err := c.ShouldBindJSON(&s); err != nil {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: "invalid JSON: " + err.Error()})
		return
	}
	if err := r.settings.Save(c.Request.Context(), name, s); err != nil {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: err.Error()})
		return
	}
	writeJSON(c, http.StatusOK, okResp{OK: true})
}

func (r *Router) handleSwitches(c *gin.Context) {
	sw, err := r.host.NetworkSwitches(c.Request.Context())
	if err != nil {
		writeJSON(c, http.StatusInternalServerError, errorResp{Error: err.Error()})
		return
	}
	writeJSON(c, http.StatusOK, sw)
}

type hostResp struct {
	DefaultVHDPath string   `json:"default_vhd_path"`
	Drives         []string `json:"drives"`
}

func (r *Router) handleHost(c *gin.Context) {
	ctx := c.Request.Context()
	vhd, err := r.host.DefaultVHDPath(ctx)
	if err != nil {
		writeJSON(c, http.StatusInternalServerError, errorResp{Error: err.Error()})
		return
	}
	drives, err := r.host.HostDrives(ctx)
	if err != nil {
		writeJSON(c, http.StatusInternalServerError, errorResp{Error: err.Error()})
		return
	}
	writeJSON(c, http.StatusOK, hostResp{DefaultVHDPath: vhd, Drives: drives})
}
