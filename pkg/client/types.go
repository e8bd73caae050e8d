package client

import (
	"time"

	"github.com/loykin/vmpilot/internal/provision"
)

// Request bodies are shared with the daemon.
type (
	VMSpec     = provision.VMSpec
	UpdateSpec = provision.UpdateSpec
)

// Accepted is returned when a provisioning or update job was started.
type Accepted struct {
	RunID string `json:"run_id"`
	Job   string `json:"job"`
	Kind  string `json:"kind"`
}

// JobStatus is the state of one job slot.
type JobStatus struct {
	Busy      bool      `json:"busy"`
	Job       string    `json:"job,omitempty"`
	Kind      string    `json:"kind,omitempty"`
	RunID     string    `json:"run_id,omitempty"`
	PID       int       `json:"pid,omitempty"`
	Cancelled bool      `json:"cancelled,omitempty"`
	StartedAt time.Time `json:"started_at,omitempty"`
}

// Usage is the latest resource sample of the running provisioning script.
type Usage struct {
	PID        int32     `json:"pid"`
	Processes  int       `json:"processes"`
	CPUPercent float64   `json:"cpu_percent"`
	MemoryRSS  uint64    `json:"memory_rss"`
	Timestamp  time.Time `json:"timestamp"`
}

// StatusResponse is the body of GET /provision/status.
type StatusResponse struct {
	Provision JobStatus `json:"provision"`
	Update    JobStatus `json:"update"`
	Usage     *Usage    `json:"usage,omitempty"`
}

// OutputLine is one line of script output from the event stream.
type OutputLine struct {
	Stream string `json:"stream"`
	Text   string `json:"text"`
	Job    string `json:"job,omitempty"`
}

// ErrorResponse represents an API error response
type ErrorResponse struct {
	Error string `json:"error"`
}
