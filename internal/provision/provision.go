package provision

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
	"github.com/google/uuid"

	"github.com/loykin/vmpilot/internal/history"
	"github.com/loykin/vmpilot/internal/process"
)

// Provision validates spec, stages and renders the templates for it and runs
// the provisioning script. It blocks until the script exits.
func (p *Pipeline) Provision(ctx context.Context, spec VMSpec) (Summary, error) {
	t, err := p.Start(ctx, spec)
	if err != nil {
		return Summary{Job: spec.Name, Kind: KindProvision.Name}, err
	}
	return t.Wait()
}

// Start does everything Provision does up to spawning the script, then
// runs the script in the background. Validation, busy and staging errors
// are returned directly.
func (p *Pipeline) Start(ctx context.Context, spec VMSpec) (*Task, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	if err := spec.CheckResources(); err != nil {
		return nil, err
	}

	runID := uuid.NewString()
	if err := p.provision.Reserve(spec.Name, KindProvision.Name, runID); err != nil {
		return nil, err
	}

	unlock, err := p.lockJob(spec.Name)
	if err != nil {
		p.provision.Release()
		return nil, err
	}

	job, err := p.prepare(spec)
	if err != nil {
		unlock()
		p.provision.Release()
		p.record(history.Event{Type: history.EventFinish, RunID: runID, Job: spec.Name, Kind: KindProvision.Name, Result: "failure", Error: err.Error()})
		return nil, err
	}

	p.emit(spec.Name, StreamStdout, fmt.Sprintf("Starting provisioning for VM: %s...", spec.Name))
	return p.background(ctx, &p.provision, runID, job, KindProvision, unlock), nil
}

// prepare stages the template directory for spec and renders both templates.
func (p *Pipeline) prepare(spec VMSpec) (Job, error) {
	workDir, err := p.engine.Stage(p.templateDir, spec.Name)
	if err != nil {
		return Job{}, err
	}
	ph := spec.Placeholders()
	if _, err := p.engine.RenderUnattend(workDir, ph); err != nil {
		return Job{}, err
	}
	script, err := p.engine.Render(workDir, ph)
	if err != nil {
		return Job{}, err
	}
	slog.Debug("rendered provisioning script", "job", spec.Name, "script", script)
	return Job{
		Name:       spec.Name,
		Spec:       spec,
		WorkDir:    workDir,
		ScriptPath: script,
		Command:    process.InvokeScript(script),
	}, nil
}

// lockJob takes <StagingRoot>/<name>.lock so a second vmpilot process cannot
// stage over a running job.
func (p *Pipeline) lockJob(name string) (func(), error) {
	root := p.engine.StagingRoot
	if err := os.MkdirAll(root, 0o750); err != nil {
		return nil, fmt.Errorf("failed to create staging root %s: %w", root, err)
	}
	fl := flock.New(filepath.Join(root, name+".lock"))
	ok, err := fl.TryLock()
	if err != nil {
		return nil, fmt.Errorf("failed to lock job %s: %w", name, err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: job %s is locked by another process", ErrBusy, name)
	}
	return func() { _ = fl.Unlock() }, nil
}
