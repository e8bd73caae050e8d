package provision

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/loykin/vmpilot/internal/history"
	"github.com/loykin/vmpilot/internal/metrics"
	"github.com/loykin/vmpilot/internal/process"
)

// Cancel stops the tracked provisioning job. name may be empty to cancel
// whatever is running; a name that does not match the tracked job is a
// no-op. Cancel with nothing tracked returns nil.
//
// After the kill, a partially created VM of the tracked name is removed.
// That cleanup is best-effort and its outcome is discarded.
func (p *Pipeline) Cancel(ctx context.Context, name string) error {
	c, ok := p.provision.Take(name)
	if !ok {
		slog.Debug("cancel: nothing to cancel", "name", name)
		return nil
	}
	pid, job := c.PID, c.Job
	metrics.IncCancellation()
	slog.Info("cancelling job", "job", job, "pid", pid)

	var killErr error
	if pid > 0 {
		// a pid that already exited is not an error for KillTree
		if err := p.kill(pid); err != nil {
			killErr = fmt.Errorf("failed to terminate job %s (pid %d): %w", job, pid, err)
		}
	}
	p.record(history.Event{Type: history.EventCancel, RunID: c.RunID, Job: job, Kind: KindProvision.Name, PID: pid})
	p.emit(job, StreamStdout, fmt.Sprintf("Cancelling provisioning for VM: %s", job))

	// the VM may legitimately not exist yet
	_, _ = p.runner.RunSync(ctx, removeVMScript(job))
	return killErr
}

func removeVMScript(name string) string {
	return fmt.Sprintf("Remove-VM -Name %s -Force -ErrorAction SilentlyContinue", process.QuoteLiteral(name))
}
