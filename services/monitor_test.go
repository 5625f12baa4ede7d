package services

import (
	"errors"
	"testing"
	"time"
)

func TestMonitorObserve(t *testing.T) {
	m := NewMonitor()
	m.Observe("ingest", 10*time.Millisecond)
	m.Observe("ingest", 30*time.Millisecond)

	stats := m.Stats()
	s, ok := stats["ingest"]
	if !ok {
		t.Fatal("missing ingest stats")
	}
	if s.Total != 2 {
		t.Fatalf("Total = %d, want 2", s.Total)
	}
	if s.WindowAvg != 20 {
		t.Fatalf("WindowAvg = %f, want 20", s.WindowAvg)
	}
	if s.WindowMax != 30 {
		t.Fatalf("WindowMax = %f, want 30", s.WindowMax)
	}
}

func TestMonitorTimePropagatesError(t *testing.T) {
	m := NewMonitor()
	want := errors.New("boom")
	if got := m.Time("op", func() error { return want }); got != want {
		t.Fatalf("Time returned %v", got)
	}
	if m.Stats()["op"].Total != 1 {
		t.Fatal("sample not recorded")
	}
}

func TestMonitorWindowRollsOver(t *testing.T) {
	m := NewMonitor()
	for i := 0; i < monitorWindow+10; i++ {
		m.Observe("query", time.Millisecond)
	}
	s := m.Stats()["query"]
	if s.Total != int64(monitorWindow+10) {
		t.Fatalf("Total = %d", s.Total)
	}
	if s.WindowAvg != 1 {
		t.Fatalf("WindowAvg = %f, want 1", s.WindowAvg)
	}
}
