package provision

import (
	"sync"
	"time"
)

// Status is a snapshot of a job slot.
type Status struct {
	Busy      bool      `json:"busy"`
	Job       string    `json:"job,omitempty"`
	Kind      string    `json:"kind,omitempty"`
	RunID     string    `json:"run_id,omitempty"`
	PID       int       `json:"pid,omitempty"`
	Cancelled bool      `json:"cancelled,omitempty"`
	StartedAt time.Time `json:"started_at,omitempty"`
}

// Slot is the single-owner handoff of the tracked child pid between the run
// path and the cancel path. The pid is handed out at most once.
type Slot struct {
	mu        sync.Mutex
	busy      bool
	detached  bool
	cancelled bool
	pid       int
	job       string
	kind      string
	runID     string
	startedAt time.Time
}

// Reserve claims the slot for job. It fails with ErrBusy while a previous
// job is still tracked.
func (s *Slot) Reserve(job, kind, runID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.busy {
		return ErrBusy
	}
	s.reset()
	s.busy, s.job, s.kind, s.runID, s.startedAt = true, job, kind, runID, time.Now()
	return nil
}

// Attach records the pid of the spawned child. It returns false when a
// cancel arrived before the child existed; the caller must then kill it.
func (s *Slot) Attach(pid int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancelled {
		return false
	}
	s.pid = pid
	return true
}

// Cancelled reports whether Take has been called for the current job.
func (s *Slot) Cancelled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancelled
}

// Claim is what Take hands to the cancel path.
type Claim struct {
	PID   int // 0 when the child has not been spawned yet
	Job   string
	RunID string
}

// Take atomically reads and clears the tracked pid and marks the job
// cancelled. ok is false when nothing cancellable is tracked, or when name
// is non-empty and does not match the tracked job.
func (s *Slot) Take(name string) (c Claim, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.busy || s.detached || s.cancelled {
		return Claim{}, false
	}
	if name != "" && name != s.job {
		return Claim{}, false
	}
	c = Claim{PID: s.pid, Job: s.job, RunID: s.runID}
	s.pid = 0
	s.cancelled = true
	return c, true
}

// Detach clears the pid once both output streams reached EOF, before the
// child is reaped, so a later Take can never see a reused pid. It reports
// whether the job was cancelled.
func (s *Slot) Detach() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pid = 0
	s.detached = true
	return s.cancelled
}

// Release frees the slot for the next job.
func (s *Slot) Release() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reset()
}

// reset clears every field but the mutex; callers hold s.mu.
func (s *Slot) reset() {
	s.busy, s.detached, s.cancelled = false, false, false
	s.pid = 0
	s.job, s.kind, s.runID = "", "", ""
	s.startedAt = time.Time{}
}

func (s *Slot) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Status{
		Busy:      s.busy,
		Job:       s.job,
		Kind:      s.kind,
		RunID:     s.runID,
		PID:       s.pid,
		Cancelled: s.cancelled,
		StartedAt: s.startedAt,
	}
}
