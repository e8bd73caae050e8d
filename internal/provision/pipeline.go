package provision

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/loykin/vmpilot/internal/history"
	"github.com/loykin/vmpilot/internal/logger"
	"github.com/loykin/vmpilot/internal/metrics"
	"github.com/loykin/vmpilot/internal/process"
	"github.com/loykin/vmpilot/internal/template"
)

const historyTimeout = 5 * time.Second

// Options configures a Pipeline. Zero values select the host shell, the
// default template engine and process.KillTree.
type Options struct {
	Runner         process.Runner
	Engine         *template.Engine
	TemplateDir    string
	KillTree       func(pid int) error
	Observer       Observer
	Sink           history.Sink
	Log            logger.Config // per-job output files when Log.Dir is set
	SampleInterval time.Duration // resource sampling of the running script; 0 disables
}

// Pipeline stages, runs and cancels provisioning scripts. Provisioning and
// update runs each own one job slot.
type Pipeline struct {
	runner         process.Runner
	engine         *template.Engine
	templateDir    string
	kill           func(int) error
	observer       Observer
	sink           history.Sink
	log            logger.Config
	sampleInterval time.Duration

	provision Slot
	update    Slot
	samplers  sync.Map // kind name -> *metrics.Sampler
}

func New(opts Options) *Pipeline {
	p := &Pipeline{
		runner:         opts.Runner,
		engine:         opts.Engine,
		templateDir:    opts.TemplateDir,
		kill:           opts.KillTree,
		observer:       opts.Observer,
		sink:           opts.Sink,
		log:            opts.Log,
		sampleInterval: opts.SampleInterval,
	}
	if p.runner == nil {
		p.runner = process.NewShell()
	}
	if p.engine == nil {
		p.engine = template.NewEngine(nil, "")
	}
	if p.templateDir == "" {
		p.templateDir = template.DefaultTemplateDir
	}
	if p.kill == nil {
		p.kill = process.KillTree
	}
	if p.observer == nil {
		p.observer = discard{}
	}
	return p
}

// Engine returns the template engine used for staging.
func (p *Pipeline) Engine() *template.Engine { return p.engine }

// Status reports the provisioning slot and the update slot.
func (p *Pipeline) Status() (provision, update Status) {
	return p.provision.Status(), p.update.Status()
}

// Usage returns the latest resource sample of the running job of kind.
func (p *Pipeline) Usage(kind Kind) (metrics.Sample, bool) {
	v, ok := p.samplers.Load(kind.Name)
	if !ok {
		return metrics.Sample{}, false
	}
	return v.(*metrics.Sampler).Latest()
}

func (p *Pipeline) slotFor(k Kind) *Slot {
	if k.Name == KindUpdate.Name {
		return &p.update
	}
	return &p.provision
}

func (p *Pipeline) emit(job string, stream Stream, text string) {
	p.observer.OnLine(OutputLine{Stream: stream, Text: text, Job: job})
}

// record sends e to the history sink. Failures are logged only.
func (p *Pipeline) record(e history.Event) {
	if p.sink == nil {
		return
	}
	e.OccurredAt = time.Now().UTC()
	ctx, cancel := context.WithTimeout(context.Background(), historyTimeout)
	defer cancel()
	if err := p.sink.Send(ctx, e); err != nil {
		slog.Warn("history sink send failed", "type", e.Type, "job", e.Job, "error", err)
	}
}
