package services

import (
	"sync"
	"time"
)

const monitorWindow = 256

// ringBuffer keeps the last N duration samples for one operation.
type ringBuffer struct {
	samples []time.Duration
	next    int
	full    bool
}

func (rb *ringBuffer) add(d time.Duration) {
	if rb.samples == nil {
		rb.samples = make([]time.Duration, monitorWindow)
	}
	rb.samples[rb.next] = d
	rb.next = (rb.next + 1) % len(rb.samples)
	if rb.next == 0 {
		rb.full = true
	}
}

func (rb *ringBuffer) stats() (count int, avg, max time.Duration) {
	n := rb.next
	if rb.full {
		n = len(rb.samples)
	}
	if n == 0 {
		return 0, 0, 0
	}
	var total time.Duration
	for i := 0; i < n; i++ {
		s := rb.samples[i]
		total += s
		if s > max {
			max = s
		}
	}
	return n, total / time.Duration(n), max
}

// Monitor collects append-only latency samples per operation, keeping only
// the most recent window.
type Monitor struct {
	mu      sync.Mutex
	buffers map[string]*ringBuffer
	counts  map[string]int64
}

func NewMonitor() *Monitor {
	return &Monitor{
		buffers: make(map[string]*ringBuffer),
		counts:  make(map[string]int64),
	}
}

// Observe records one duration sample for the named operation.
func (m *Monitor) Observe(op string, d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rb, ok := m.buffers[op]
	if !ok {
		rb = &ringBuffer{}
		m.buffers[op] = rb
	}
	rb.add(d)
	m.counts[op]++
}

// Time runs fn and records its duration under op.
func (m *Monitor) Time(op string, fn func() error) error {
	start := time.Now()
	err := fn()
	m.Observe(op, time.Since(start))
	return err
}

// OpStats is the report for one operation.
type OpStats struct {
	Total     int64   `json:"total"`
	WindowAvg float64 `json:"window_avg_ms"`
	WindowMax float64 `json:"window_max_ms"`
}

// Stats reports per-operation counters and windowed latencies.
func (m *Monitor) Stats() map[string]OpStats {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]OpStats, len(m.buffers))
	for op, rb := range m.buffers {
		_, avg, max := rb.stats()
		out[op] = OpStats{
			Total:     m.counts[op],
			WindowAvg: float64(avg) / float64(time.Millisecond),
			WindowMax: float64(max) / float64(time.Millisecond),
		}
	}
	return out
}
