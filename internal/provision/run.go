package provision

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/loykin/vmpilot/internal/history"
	"github.com/loykin/vmpilot/internal/metrics"
)

const maxLineSize = 1 << 20

// Job is a concrete script run. Command is the shell text handed to the
// runner; ScriptPath is informational.
type Job struct {
	Name       string
	Spec       VMSpec
	WorkDir    string
	ScriptPath string
	Command    string
}

// Summary describes a finished run.
type Summary struct {
	RunID    string        `json:"run_id"`
	Job      string        `json:"job"`
	Kind     string        `json:"kind"`
	PID      int           `json:"pid"`
	ExitCode int           `json:"exit_code"`
	Message  string        `json:"message"`
	Lines    int           `json:"lines"`
	Duration time.Duration `json:"duration"`
}

// Run reserves the slot of kind and executes job. It fails with ErrBusy when
// the slot is taken.
func (p *Pipeline) Run(ctx context.Context, job Job, kind Kind) (Summary, error) {
	slot := p.slotFor(kind)
	runID := uuid.NewString()
	if err := slot.Reserve(job.Name, kind.Name, runID); err != nil {
		return Summary{Job: job.Name, Kind: kind.Name}, err
	}
	return p.execute(ctx, slot, runID, job, kind)
}

// runState accumulates what the two stream readers observed.
type runState struct {
	mu         sync.Mutex
	success    bool
	failure    string
	lastStderr string
	lines      int
}

func (st *runState) observe(kind Kind, stream Stream, text string) {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.lines++
	if stream == StreamStderr {
		if t := strings.TrimSpace(text); t != "" {
			st.lastStderr = t
		}
		return
	}
	if kind.Success != "" && strings.Contains(text, kind.Success) {
		st.success = true
	}
	// first failure wins
	if kind.Failure != "" && st.failure == "" && strings.Contains(text, kind.Failure) {
		st.failure = text
	}
}

// execute runs job in an already reserved slot and always releases it.
func (p *Pipeline) execute(ctx context.Context, slot *Slot, runID string, job Job, kind Kind) (sum Summary, err error) {
	defer slot.Release()
	start := time.Now()
	sum = Summary{RunID: runID, Job: job.Name, Kind: kind.Name, ExitCode: -1}
	metrics.SetJobActive(kind.Name, true)
	defer func() {
		metrics.SetJobActive(kind.Name, false)
		sum.Duration = time.Since(start)
		metrics.ObserveJobDuration(kind.Name, sum.Duration.Seconds())
		metrics.IncJobRun(kind.Name, resultLabel(err))
		ev := history.Event{Type: history.EventFinish, RunID: runID, Job: job.Name, Kind: kind.Name, PID: sum.PID, Result: resultLabel(err)}
		if err != nil {
			ev.Error = err.Error()
		}
		p.record(ev)
	}()

	if slot.Cancelled() {
		return sum, ErrCancelled
	}
	child, err := p.runner.SpawnStreaming(ctx, job.Command)
	if err != nil {
		return sum, fmt.Errorf("failed to spawn %s script: %w", kind.Name, err)
	}
	pid := child.PID()
	sum.PID = pid
	if !slot.Attach(pid) {
		// cancelled while spawning, nobody else holds the pid
		_ = p.kill(pid)
	}
	slog.Info("job started", "kind", kind.Name, "job", job.Name, "pid", pid, "run_id", runID)
	p.record(history.Event{Type: history.EventStart, RunID: runID, Job: job.Name, Kind: kind.Name, PID: pid})

	jobLog := p.log.JobWriter(job.Name)
	if jobLog != nil {
		defer func() { _ = jobLog.Close() }()
	}
	var logMu sync.Mutex
	forward := func(stream Stream, text string) {
		line := OutputLine{Stream: stream, Text: text, Job: job.Name}
		metrics.IncOutputLine(string(stream))
		p.observer.OnLine(line)
		if jobLog != nil {
			logMu.Lock()
			_, _ = io.WriteString(jobLog, line.Display()+"\n")
			logMu.Unlock()
		}
	}

	if p.sampleInterval > 0 {
		sctx, stop := context.WithCancel(context.Background())
		defer stop()
		sampler := metrics.NewSampler(kind.Name, p.sampleInterval, 0)
		p.samplers.Store(kind.Name, sampler)
		defer p.samplers.Delete(kind.Name)
		go sampler.Watch(sctx, pid)
	}

	st := &runState{}
	var wg sync.WaitGroup
	wg.Add(2)
	go p.drain(&wg, child.Stdout, StreamStdout, kind, st, forward)
	go p.drain(&wg, child.Stderr, StreamStderr, kind, st, forward)
	wg.Wait()

	cancelled := slot.Detach()
	code, werr := child.Wait()
	sum.ExitCode = code
	sum.Lines = st.lines
	if werr != nil {
		return sum, werr
	}

	switch {
	case st.success && code == 0 && st.failure == "":
		sum.Message = kind.SuccessMessage
		slog.Info("job finished", "kind", kind.Name, "job", job.Name, "run_id", runID)
		return sum, nil
	case cancelled:
		return sum, ErrCancelled
	case ctx.Err() != nil:
		return sum, fmt.Errorf("%w: %v", ErrCancelled, ctx.Err())
	case st.failure != "":
		return sum, &FailureError{Kind: kind.Label, Line: st.failure}
	default:
		return sum, &ExitError{Kind: kind.Label, Code: code, LastStderr: st.lastStderr}
	}
}

// drain forwards every line of r until EOF. Lines longer than maxLineSize
// are truncated and reading goes on. A read error is reported as a line and
// the rest of the stream is discarded so the child never blocks.
func (p *Pipeline) drain(wg *sync.WaitGroup, r io.Reader, stream Stream, kind Kind, st *runState, forward func(Stream, string)) {
	defer wg.Done()
	br := bufio.NewReaderSize(r, 64*1024)
	var line []byte
	emit := func() {
		text := strings.ToValidUTF8(strings.TrimRight(string(line), "\r"), "\uFFFD")
		st.observe(kind, stream, text)
		forward(stream, text)
		line = line[:0]
	}
	for {
		chunk, isPrefix, err := br.ReadLine()
		if len(chunk) > 0 && len(line) < maxLineSize {
			if room := maxLineSize - len(line); len(chunk) > room {
				chunk = chunk[:room]
			}
			line = append(line, chunk...)
		}
		if err != nil {
			if len(line) > 0 {
				emit()
			}
			if !errors.Is(err, io.EOF) {
				forward(StreamStderr, fmt.Sprintf("Error reading log: %v", err))
				_, _ = io.Copy(io.Discard, r)
			}
			return
		}
		if !isPrefix {
			emit()
		}
	}
}

func resultLabel(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, ErrCancelled):
		return "cancelled"
	default:
		return "failure"
	}
}
