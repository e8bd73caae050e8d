package provision

import "context"

// Task is a job running in the background.
type Task struct {
	RunID string
	Job   string
	Kind  string

	done chan struct{}
	sum  Summary
	err  error
}

// Done is closed once the job finished and its slot was released.
func (t *Task) Done() <-chan struct{} { return t.done }

// Wait blocks until the job finished and returns its outcome.
func (t *Task) Wait() (Summary, error) {
	<-t.done
	return t.sum, t.err
}

// background executes job on its own goroutine in an already reserved slot.
// after, if set, runs once execute returned.
func (p *Pipeline) background(ctx context.Context, slot *Slot, runID string, job Job, kind Kind, after func()) *Task {
	t := &Task{RunID: runID, Job: job.Name, Kind: kind.Name, done: make(chan struct{})}
	go func() {
		defer close(t.done)
		if after != nil {
			defer after()
		}
		t.sum, t.err = p.execute(ctx, slot, runID, job, kind)
	}()
	return t
}
