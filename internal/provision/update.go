package provision

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/loykin/vmpilot/internal/process"
	"github.com/loykin/vmpilot/internal/template"
)

// Update runs Update-VMConfig.ps1 for an existing VM and blocks until it
// exits. It uses its own slot, so it is never affected by Cancel.
func (p *Pipeline) Update(ctx context.Context, spec UpdateSpec) (Summary, error) {
	t, err := p.StartUpdate(ctx, spec)
	if err != nil {
		return Summary{Job: spec.Name, Kind: KindUpdate.Name}, err
	}
	return t.Wait()
}

// StartUpdate validates spec, reserves the update slot and runs the update
// script in the background.
func (p *Pipeline) StartUpdate(ctx context.Context, spec UpdateSpec) (*Task, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	script, err := p.engine.Locate(p.templateDir, template.UpdateScript)
	if err != nil {
		return nil, err
	}
	abs, err := filepath.Abs(script)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve script path: %w", err)
	}
	job := Job{
		Name:       spec.Name,
		ScriptPath: abs,
		Command:    process.InvokeScript(abs, spec.args()...),
	}
	runID := uuid.NewString()
	if err := p.update.Reserve(spec.Name, KindUpdate.Name, runID); err != nil {
		return nil, err
	}
	p.emit(spec.Name, StreamStdout, fmt.Sprintf("Starting Configuration Update for VM: %s...", spec.Name))
	return p.background(ctx, &p.update, runID, job, KindUpdate, nil), nil
}
