package monitor

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v4/process"
)

// Sample is one resource observation for the Runner process.
type Sample struct {
	Timestamp    time.Time
	MemoryRSSMB  float64
	MemoryPct    float32
	CPUPercent   float64
}

// ResourceSummary is the Sampler's running aggregate.
type ResourceSummary struct {
	SampleCount   int
	Current       Sample
	PeakMemoryMB  float64
	PeakCPUPct    float64
	AvgMemoryMB   float64
	AvgCPUPct     float64
	LimitExceeded bool
	LimitReason   string
}

// SamplerConfig configures the background sampling loop.
type SamplerConfig struct {
	SampleInterval time.Duration
	MaxMemoryMB    float64
	MaxCPUPercent  float64
}

// DefaultSamplerConfig returns the spec default of a 1s sample interval
// with no configured limits.
func DefaultSamplerConfig() SamplerConfig {
	return SamplerConfig{SampleInterval: time.Second}
}

// Sampler wakes on SampleInterval and records process resource usage.
// If the host platform does not expose process-resource queries, it
// degrades silently and reports a zero-sample summary.
type Sampler struct {
	cfg  SamplerConfig
	proc *process.Process

	mu       sync.Mutex
	summary  ResourceSummary
	totalMem float64
	totalCPU float64

	started bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// NewSampler constructs a Sampler for the current process.
func NewSampler(cfg SamplerConfig) *Sampler {
	if cfg.SampleInterval <= 0 {
		cfg.SampleInterval = time.Second
	}

	s := &Sampler{cfg: cfg, stopCh: make(chan struct{}), doneCh: make(chan struct{})}

	proc, err := process.NewProcess(int32(os.Getpid()))
	if err == nil {
		s.proc = proc
	}
	return s
}

// Start launches the background sampling goroutine. It returns
// immediately; call Stop to halt it.
func (s *Sampler) Start(ctx context.Context) {
	s.mu.Lock()
	s.started = true
	s.mu.Unlock()
	go s.loop(ctx)
}

func (s *Sampler) loop(ctx context.Context) {
	defer close(s.doneCh)

	ticker := time.NewTicker(s.cfg.SampleInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.sampleOnce()
		}
	}
}

func (s *Sampler) sampleOnce() {
	if s.proc == nil {
		return
	}

	memInfo, memErr := s.proc.MemoryInfo()
	memPct, pctErr := s.proc.MemoryPercent()
	cpuPct, cpuErr := s.proc.CPUPercent()
	if memErr != nil || pctErr != nil || cpuErr != nil {
		return
	}

	memMB := float64(memInfo.RSS) / (1024 * 1024)

	s.mu.Lock()
	defer s.mu.Unlock()

	s.summary.SampleCount++
	s.summary.Current = Sample{
		Timestamp:   time.Now(),
		MemoryRSSMB: memMB,
		MemoryPct:   memPct,
		CPUPercent:  cpuPct,
	}

	if memMB > s.summary.PeakMemoryMB {
		s.summary.PeakMemoryMB = memMB
	}
	if cpuPct > s.summary.PeakCPUPct {
		s.summary.PeakCPUPct = cpuPct
	}

	s.totalMem += memMB
	s.totalCPU += cpuPct
	s.summary.AvgMemoryMB = s.totalMem / float64(s.summary.SampleCount)
	s.summary.AvgCPUPct = s.totalCPU / float64(s.summary.SampleCount)

	if s.cfg.MaxMemoryMB > 0 && memMB > s.cfg.MaxMemoryMB {
		s.summary.LimitExceeded = true
		s.summary.LimitReason = fmt.Sprintf("memory_rss_mb %.1f exceeds max_memory_mb %.1f", memMB, s.cfg.MaxMemoryMB)
	}
	if s.cfg.MaxCPUPercent > 0 && cpuPct > s.cfg.MaxCPUPercent {
		s.summary.LimitExceeded = true
		s.summary.LimitReason = fmt.Sprintf("cpu_percent %.1f exceeds max_cpu_percent %.1f", cpuPct, s.cfg.MaxCPUPercent)
	}

	publishSample(s.summary.Current)
}

// Summary returns a copy of the current running aggregate.
func (s *Sampler) Summary() ResourceSummary {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.summary
}

// Stop halts the background goroutine and waits for it to exit. A
// no-op if Start was never called.
func (s *Sampler) Stop() {
	s.mu.Lock()
	started := s.started
	s.mu.Unlock()
	if !started {
		return
	}

	select {
	case <-s.stopCh:
	default:
		close(s.stopCh)
	}
	<-s.doneCh
}
