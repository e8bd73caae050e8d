package metrics

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shirou/gopsutil/v4/process"
)

var (
	jobCPU = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "vmpilot",
			Subsystem: "job",
			Name:      "cpu_percent",
			Help:      "CPU usage of the running script and its descendants.",
		}, []string{"kind"},
	)
	jobMemory = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "vmpilot",
			Subsystem: "job",
			Name:      "memory_rss_bytes",
			Help:      "Resident memory of the running script and its descendants.",
		}, []string{"kind"},
	)
)

// Sample is one resource reading of a job process tree.
type Sample struct {
	PID        int32     `json:"pid"`
	Processes  int       `json:"processes"`
	CPUPercent float64   `json:"cpu_percent"`
	MemoryRSS  uint64    `json:"memory_rss"`
	Timestamp  time.Time `json:"timestamp"`
}

// Sampler periodically reads CPU and memory of a running script's process
// tree. It keeps a bounded ring of recent samples.
type Sampler struct {
	kind     string
	interval time.Duration

	mu      sync.RWMutex
	samples []Sample
	start   int
	count   int
}

const defaultSampleHistory = 120

func NewSampler(kind string, interval time.Duration, history int) *Sampler {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	if history <= 0 {
		history = defaultSampleHistory
	}
	return &Sampler{kind: kind, interval: interval, samples: make([]Sample, history)}
}

// Watch samples pid until ctx is done or the process disappears, then
// clears the gauges for this kind.
func (s *Sampler) Watch(ctx context.Context, pid int) {
	defer func() {
		if regOK.Load() {
			jobCPU.DeleteLabelValues(s.kind)
			jobMemory.DeleteLabelValues(s.kind)
		}
	}()
	t := time.NewTicker(s.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			sample, err := readTree(int32(pid)) // #nosec G115
			if err != nil {
				slog.Debug("job sample failed", "kind", s.kind, "pid", pid, "error", err)
				return
			}
			s.add(sample)
			if regOK.Load() {
				jobCPU.WithLabelValues(s.kind).Set(sample.CPUPercent)
				jobMemory.WithLabelValues(s.kind).Set(float64(sample.MemoryRSS))
			}
		}
	}
}

func (s *Sampler) add(v Sample) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := len(s.samples)
	if s.count < n {
		s.samples[(s.start+s.count)%n] = v
		s.count++
		return
	}
	s.samples[s.start] = v
	s.start = (s.start + 1) % n
}

// Samples returns the retained samples, oldest first.
func (s *Sampler) Samples() []Sample {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Sample, 0, s.count)
	for i := 0; i < s.count; i++ {
		out = append(out, s.samples[(s.start+i)%len(s.samples)])
	}
	return out
}

// Latest returns the newest sample, if any.
func (s *Sampler) Latest() (Sample, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.count == 0 {
		return Sample{}, false
	}
	return s.samples[(s.start+s.count-1)%len(s.samples)], true
}

func readTree(pid int32) (Sample, error) {
	root, err := process.NewProcess(pid)
	if err != nil {
		return Sample{}, fmt.Errorf("open process %d: %w", pid, err)
	}
	out := Sample{PID: pid, Timestamp: time.Now()}
	queue := []*process.Process{root}
	for len(queue) > 0 {
		p := queue[0]
		queue = queue[1:]
		if cpu, err := p.CPUPercent(); err == nil {
			out.CPUPercent += cpu
		}
		if mem, err := p.MemoryInfo(); err == nil && mem != nil {
			out.MemoryRSS += mem.RSS
		}
		out.Processes++
		if children, err := p.Children(); err == nil {
			queue = append(queue, children...)
		}
	}
	return out, nil
}
