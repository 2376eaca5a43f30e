package schedcore

import (
	"sync"
	"sync/atomic"
	"time"
)

// Metrics tracks optional runtime statistics for a Scheduler, enabled
// via WithMetrics(true) and retrieved with Scheduler.Metrics. It covers
// per-iteration and per-poll-wait latency: there is no per-task
// execution latency to measure here, since a task callback's own
// duration is the caller's concern, not the scheduler's.
type Metrics struct {
	Iteration LatencyMetrics // time spent in one full iterate() pass
	PollWait  LatencyMetrics // time spent blocked inside Adapter.Poll

	fdDispatches      atomic.Uint64
	timeoutDispatches atomic.Uint64
	iterations        atomic.Uint64
}

func newMetrics() *Metrics {
	return &Metrics{}
}

// observeIteration records one full iterate() pass.
func (m *Metrics) observeIteration(d time.Duration, fdsReady, timeoutsFired int) {
	m.Iteration.Record(d)
	m.fdDispatches.Add(uint64(fdsReady))
	m.timeoutDispatches.Add(uint64(timeoutsFired))
	m.iterations.Add(1)
}

// observePollWait records one Adapter.Poll call's blocking duration.
func (m *Metrics) observePollWait(d time.Duration) {
	m.PollWait.Record(d)
}

// Iterations returns the total number of dispatch-loop iterations.
func (m *Metrics) Iterations() uint64 { return m.iterations.Load() }

// FdDispatches returns the total number of ready fds reported by Poll,
// summed over all iterations (not the number of callbacks fired).
func (m *Metrics) FdDispatches() uint64 { return m.fdDispatches.Load() }

// TimeoutDispatches returns the total number of timeout callbacks fired.
func (m *Metrics) TimeoutDispatches() uint64 { return m.timeoutDispatches.Load() }

// LatencyMetrics tracks a duration distribution using the P-Square
// streaming percentile algorithm (psquare.go).
type LatencyMetrics struct {
	mu      sync.Mutex
	psquare *pSquareMultiQuantile

	Count int
	Sum   time.Duration
	Max   time.Duration
}

// Record adds one observation.
func (l *LatencyMetrics) Record(d time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.psquare == nil {
		l.psquare = newPSquareMultiQuantile(0.50, 0.90, 0.95, 0.99)
	}
	l.psquare.Update(float64(d))
	l.Count++
	l.Sum += d
	if d > l.Max {
		l.Max = d
	}
}

// Percentile returns the estimated p50/p90/p95/p99 value, or 0 if p is
// not one of those four.
func (l *LatencyMetrics) Percentile(p float64) time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.psquare == nil {
		return 0
	}
	switch p {
	case 0.50:
		return time.Duration(l.psquare.Quantile(0))
	case 0.90:
		return time.Duration(l.psquare.Quantile(1))
	case 0.95:
		return time.Duration(l.psquare.Quantile(2))
	case 0.99:
		return time.Duration(l.psquare.Quantile(3))
	default:
		return 0
	}
}

// Mean returns the arithmetic mean of all recorded observations.
func (l *LatencyMetrics) Mean() time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.Count == 0 {
		return 0
	}
	return l.Sum / time.Duration(l.Count)
}
