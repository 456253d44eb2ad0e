// Package metrics samples host CPU, memory and per-interface network
// throughput for the dashboard.
package metrics

import (
	"context"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/mem"
	psnet "github.com/shirou/gopsutil/v4/net"
	"go.uber.org/zap"
)

// NICThroughput is one interface's send/receive rate over the last
// sampling window.
type NICThroughput struct {
	Name   string  `json:"name"`
	TxMbps float64 `json:"tx_mbps"`
	RxMbps float64 `json:"rx_mbps"`
}

// Sample is one host metrics observation.
type Sample struct {
	CPUPercent    float64         `json:"cpu_percent"`
	MemoryPercent float64         `json:"memory_percent"`
	MemoryUsedMB  float64         `json:"memory_used_mb"`
	Interfaces    []NICThroughput `json:"interfaces"`
	SampledAt     time.Time       `json:"sampled_at"`
}

// Sampler periodically gathers host metrics and hands each sample to a
// publish callback. Throughput comes from byte-counter deltas between
// consecutive samples.
type Sampler struct {
	log      *zap.Logger
	interval time.Duration
	publish  func(Sample)

	mu       sync.RWMutex
	last     Sample
	lastNet  map[string]psnet.IOCountersStat
	lastTime time.Time
}

// NewSampler creates a sampler. publish may be nil when only the pull
// endpoint is wanted.
func NewSampler(log *zap.Logger, interval time.Duration, publish func(Sample)) *Sampler {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	return &Sampler{
		log:      log.Named("metrics"),
		interval: interval,
		publish:  publish,
	}
}

// Current returns the most recent sample.
func (s *Sampler) Current() Sample {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.last
}

// Run samples until the context is cancelled. Intended as a goroutine.
func (s *Sampler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			sample := s.gather(ctx)
			s.mu.Lock()
			s.last = sample
			s.mu.Unlock()
			if s.publish != nil {
				s.publish(sample)
			}
		}
	}
}

func (s *Sampler) gather(ctx context.Context) Sample {
	sample := Sample{SampledAt: time.Now()}

	// Zero-interval percent compares against the previous call, so the
	// ticker cadence is the measurement window.
	if pcts, err := cpu.PercentWithContext(ctx, 0, false); err == nil && len(pcts) > 0 {
		sample.CPUPercent = pcts[0]
	} else if err != nil {
		s.log.Debug("cpu sample failed", zap.Error(err))
	}

	if vm, err := mem.VirtualMemoryWithContext(ctx); err == nil {
		sample.MemoryPercent = vm.UsedPercent
		sample.MemoryUsedMB = float64(vm.Used) / (1024 * 1024)
	} else {
		s.log.Debug("memory sample failed", zap.Error(err))
	}

	sample.Interfaces = s.netThroughput(ctx, sample.SampledAt)
	return sample
}

// netThroughput converts per-NIC byte-counter deltas into Mbps. The
// first call only seeds the counters and reports nothing.
func (s *Sampler) netThroughput(ctx context.Context, now time.Time) []NICThroughput {
	counters, err := psnet.IOCountersWithContext(ctx, true)
	if err != nil {
		s.log.Debug("network sample failed", zap.Error(err))
		return nil
	}

	current := make(map[string]psnet.IOCountersStat, len(counters))
	for _, c := range counters {
		current[c.Name] = c
	}

	s.mu.Lock()
	prev, prevTime := s.lastNet, s.lastTime
	s.lastNet = current
	s.lastTime = now
	s.mu.Unlock()

	if prev == nil {
		return nil
	}
	window := now.Sub(prevTime).Seconds()
	if window <= 0 {
		return nil
	}

	out := make([]NICThroughput, 0, len(counters))
	for _, c := range counters {
		if c.Name == "lo" {
			continue
		}
		p, ok := prev[c.Name]
		if !ok || c.BytesSent < p.BytesSent || c.BytesRecv < p.BytesRecv {
			continue // new interface or counter reset
		}
		out = append(out, NICThroughput{
			Name:   c.Name,
			TxMbps: float64(c.BytesSent-p.BytesSent) * 8 / 1e6 / window,
			RxMbps: float64(c.BytesRecv-p.BytesRecv) * 8 / 1e6 / window,
		})
	}
	return out
}
