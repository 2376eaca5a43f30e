package schedcore

import (
	"testing"
	"time"
)

func TestLatencyMetricsRecordAndAggregate(t *testing.T) {
	var l LatencyMetrics
	for i := 1; i <= 5; i++ {
		l.Record(time.Duration(i) * time.Millisecond)
	}
	if l.Count != 5 {
		t.Errorf("Count = %d, want 5", l.Count)
	}
	if l.Sum != 15*time.Millisecond {
		t.Errorf("Sum = %v, want 15ms", l.Sum)
	}
	if l.Max != 5*time.Millisecond {
		t.Errorf("Max = %v, want 5ms", l.Max)
	}
	if got, want := l.Mean(), 3*time.Millisecond; got != want {
		t.Errorf("Mean() = %v, want %v", got, want)
	}
}

func TestLatencyMetricsPercentileUnknownReturnsZero(t *testing.T) {
	var l LatencyMetrics
	l.Record(time.Millisecond)
	if got := l.Percentile(0.75); got != 0 {
		t.Errorf("Percentile(0.75) = %v, want 0 (not a tracked percentile)", got)
	}
}

func TestLatencyMetricsEmpty(t *testing.T) {
	var l LatencyMetrics
	if got := l.Mean(); got != 0 {
		t.Errorf("Mean() on an empty LatencyMetrics = %v, want 0", got)
	}
	if got := l.Percentile(0.50); got != 0 {
		t.Errorf("Percentile(0.50) on an empty LatencyMetrics = %v, want 0", got)
	}
}

func TestMetricsObserveIterationCountsDispatches(t *testing.T) {
	m := newMetrics()
	m.observeIteration(time.Millisecond, 3, 2)
	m.observeIteration(2*time.Millisecond, 1, 0)

	if got := m.Iterations(); got != 2 {
		t.Errorf("Iterations() = %d, want 2", got)
	}
	if got := m.FdDispatches(); got != 4 {
		t.Errorf("FdDispatches() = %d, want 4", got)
	}
	if got := m.TimeoutDispatches(); got != 2 {
		t.Errorf("TimeoutDispatches() = %d, want 2", got)
	}
	if m.Iteration.Count != 2 {
		t.Errorf("Iteration.Count = %d, want 2", m.Iteration.Count)
	}
}
