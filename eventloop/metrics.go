package eventloop

import (
	"slices"
	"sync"
	"sync/atomic"
	"time"
)

// Metrics tracks runtime statistics for the event loop.
// Metrics are designed to be low-overhead and thread-safe.
// Metrics are optional and attached to a Loop via [WithMetrics].
//
// Example:
//
//	loop, _ := New(WithMetrics(true))
//	_ = loop.Run(ctx)
//	stats := loop.Metrics()
//	fmt.Printf("tasks: %d, unhandled: %d\n",
//		stats.Tasks, stats.UnhandledRejections)
type Metrics struct {
	// Latency of macrotask execution (including the microtask drain).
	Latency LatencyMetrics

	// Counters
	Tasks                   uint64
	Microtasks              uint64
	TimersFired             uint64
	PromisesRejected        uint64
	UnhandledRejections     uint64
	LateHandledRejections   uint64
	UncaughtFaults          uint64
	MaxMicrotaskQueueLength int
}

// metricsRecorder is the live, concurrently updated form of [Metrics].
type metricsRecorder struct {
	latency                 LatencyMetrics
	tasks                   atomic.Uint64
	microtasks              atomic.Uint64
	timersFired             atomic.Uint64
	promisesRejected        atomic.Uint64
	unhandledRejections     atomic.Uint64
	lateHandledRejections   atomic.Uint64
	uncaughtFaults          atomic.Uint64
	maxMicrotaskQueueLength atomic.Int64
}

func (m *metricsRecorder) observeMicrotaskQueue(n int) {
	for {
		cur := m.maxMicrotaskQueueLength.Load()
		if int64(n) <= cur || m.maxMicrotaskQueueLength.CompareAndSwap(cur, int64(n)) {
			return
		}
	}
}

func (m *metricsRecorder) snapshot() *Metrics {
	out := new(Metrics)
	m.latency.copyTo(&out.Latency)
	out.Latency.Sample()
	out.Tasks = m.tasks.Load()
	out.Microtasks = m.microtasks.Load()
	out.TimersFired = m.timersFired.Load()
	out.PromisesRejected = m.promisesRejected.Load()
	out.UnhandledRejections = m.unhandledRejections.Load()
	out.LateHandledRejections = m.lateHandledRejections.Load()
	out.UncaughtFaults = m.uncaughtFaults.Load()
	out.MaxMicrotaskQueueLength = int(m.maxMicrotaskQueueLength.Load())
	return out
}

// LatencyMetrics tracks latency distribution with percentiles.
type LatencyMetrics struct {
	sampleIdx   int
	sampleCount int
	samples     [sampleSize]time.Duration

	// Computed percentiles (cached after Sample() call)
	P50 time.Duration
	P90 time.Duration
	P99 time.Duration
	Max time.Duration

	// Statistics
	Mean time.Duration
	Sum  time.Duration
	mu   sync.RWMutex
}

// sampleSize is the maximum number of latency samples to retain.
const sampleSize = 256

// Record records a latency sample.
// This is called internally by the loop after each task execution.
func (l *LatencyMetrics) Record(duration time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	// If buffer is full, subtract the old sample that we're replacing
	if l.sampleCount >= sampleSize {
		l.Sum -= l.samples[l.sampleIdx]
	}

	l.samples[l.sampleIdx] = duration
	l.Sum += duration
	l.sampleIdx++
	if l.sampleIdx >= sampleSize {
		l.sampleIdx = 0
	}
	if l.sampleCount < sampleSize {
		l.sampleCount++
	}
}

// Sample computes percentiles from collected samples.
// Returns the number of samples used for computation.
func (l *LatencyMetrics) Sample() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	count := l.sampleCount
	if count == 0 {
		return 0
	}

	sorted := slices.Clone(l.samples[:count])
	slices.Sort(sorted)

	l.P50 = sorted[percentileIndex(count, 50)]
	l.P90 = sorted[percentileIndex(count, 90)]
	l.P99 = sorted[percentileIndex(count, 99)]
	l.Max = sorted[count-1]
	l.Mean = l.Sum / time.Duration(count)

	return count
}

// Count returns the number of retained samples.
func (l *LatencyMetrics) Count() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.sampleCount
}

func (l *LatencyMetrics) copyTo(dst *LatencyMetrics) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	dst.sampleIdx = l.sampleIdx
	dst.sampleCount = l.sampleCount
	dst.samples = l.samples
	dst.Sum = l.Sum
}

// percentileIndex computes the index for a given percentile (0-100).
func percentileIndex(n, p int) int {
	index := (p * n) / 100
	if index >= n {
		return n - 1
	}
	return index
}
