package aio

import (
	"sync/atomic"
	"time"

	"github.com/behrlich/aio/internal/slot"
)

// LatencyBuckets defines the latency histogram buckets in nanoseconds.
// Buckets cover from 1us to 10s with logarithmic spacing.
var LatencyBuckets = []uint64{
	1_000,          // 1us
	10_000,         // 10us
	100_000,        // 100us
	1_000_000,      // 1ms
	10_000_000,     // 10ms
	100_000_000,    // 100ms
	1_000_000_000,  // 1s
	10_000_000_000, // 10s
}

const numLatencyBuckets = 8
const numOpTypes = 8 // len(slot.OpType enum), indexed directly by OpType value

// Metrics tracks per-op-type performance and operational statistics for an
// engine, covering all eight slot.OpType variants.
type Metrics struct {
	// Per-op-type counters, indexed by slot.OpType.
	Ops    [numOpTypes]atomic.Uint64 // total operations completed
	Bytes  [numOpTypes]atomic.Uint64 // total bytes transferred (0 for fsync/flush)
	Errors [numOpTypes]atomic.Uint64 // operations that completed unsuccessfully (negative result)

	RetryCount atomic.Uint64 // total retry attempts across all ops

	// Queue/inflight statistics.
	InflightTotal atomic.Uint64 // cumulative inflight-depth samples
	InflightCount atomic.Uint64 // number of inflight-depth measurements
	MaxInflight   atomic.Uint32 // maximum observed inflight depth

	// Latency tracking.
	TotalLatencyNs atomic.Uint64
	OpCount        atomic.Uint64
	LatencyBuckets [numLatencyBuckets]atomic.Uint64

	StartTime atomic.Int64 // engine start timestamp (UnixNano)
	StopTime  atomic.Int64 // engine stop timestamp (UnixNano), 0 while running
}

// NewMetrics creates a new metrics instance.
func NewMetrics() *Metrics {
	m := &Metrics{}
	m.StartTime.Store(time.Now().UnixNano())
	return m
}

// RecordOp records the completion of an operation of the given type.
func (m *Metrics) RecordOp(op slot.OpType, bytes uint64, latencyNs uint64, success bool) {
	idx := int(op)
	if idx < 0 || idx >= numOpTypes {
		return
	}
	m.Ops[idx].Add(1)
	if success {
		m.Bytes[idx].Add(bytes)
	} else {
		m.Errors[idx].Add(1)
	}
	m.recordLatency(latencyNs)
}

// RecordRetry records a single retry attempt.
func (m *Metrics) RecordRetry() {
	m.RetryCount.Add(1)
}

// RecordInflight records the current inflight depth for an owner.
func (m *Metrics) RecordInflight(depth uint32) {
	m.InflightTotal.Add(uint64(depth))
	m.InflightCount.Add(1)

	for {
		current := m.MaxInflight.Load()
		if depth <= current {
			break
		}
		if m.MaxInflight.CompareAndSwap(current, depth) {
			break
		}
	}
}

func (m *Metrics) recordLatency(latencyNs uint64) {
	m.TotalLatencyNs.Add(latencyNs)
	m.OpCount.Add(1)

	for i, bucket := range LatencyBuckets {
		if latencyNs <= bucket {
			m.LatencyBuckets[i].Add(1)
		}
	}
}

// Stop marks the engine as stopped.
func (m *Metrics) Stop() {
	m.StopTime.Store(time.Now().UnixNano())
}

// MetricsSnapshot is a point-in-time snapshot of Metrics.
type MetricsSnapshot struct {
	Ops    [numOpTypes]uint64
	Bytes  [numOpTypes]uint64
	Errors [numOpTypes]uint64

	RetryCount uint64

	AvgInflight float64
	MaxInflight uint32

	AvgLatencyNs uint64
	UptimeNs     uint64

	LatencyP50Ns  uint64
	LatencyP99Ns  uint64
	LatencyP999Ns uint64

	LatencyHistogram [numLatencyBuckets]uint64

	TotalOps   uint64
	TotalBytes uint64
	ErrorRate  float64 // percentage of ops that completed with an error
}

// Snapshot creates a point-in-time snapshot of metrics.
func (m *Metrics) Snapshot() MetricsSnapshot {
	var snap MetricsSnapshot
	var totalErrors uint64
	for i := 0; i < numOpTypes; i++ {
		snap.Ops[i] = m.Ops[i].Load()
		snap.Bytes[i] = m.Bytes[i].Load()
		snap.Errors[i] = m.Errors[i].Load()
		snap.TotalOps += snap.Ops[i]
		snap.TotalBytes += snap.Bytes[i]
		totalErrors += snap.Errors[i]
	}
	snap.RetryCount = m.RetryCount.Load()
	snap.MaxInflight = m.MaxInflight.Load()

	inflightTotal := m.InflightTotal.Load()
	inflightCount := m.InflightCount.Load()
	if inflightCount > 0 {
		snap.AvgInflight = float64(inflightTotal) / float64(inflightCount)
	}

	totalLatencyNs := m.TotalLatencyNs.Load()
	opCount := m.OpCount.Load()
	if opCount > 0 {
		snap.AvgLatencyNs = totalLatencyNs / opCount
	}

	startTime := m.StartTime.Load()
	stopTime := m.StopTime.Load()
	if stopTime > 0 {
		snap.UptimeNs = uint64(stopTime - startTime)
	} else {
		snap.UptimeNs = uint64(time.Now().UnixNano() - startTime)
	}

	if snap.TotalOps > 0 {
		snap.ErrorRate = float64(totalErrors) / float64(snap.TotalOps) * 100.0
	}

	for i := 0; i < numLatencyBuckets; i++ {
		snap.LatencyHistogram[i] = m.LatencyBuckets[i].Load()
	}

	if opCount > 0 {
		snap.LatencyP50Ns = m.calculatePercentile(0.50)
		snap.LatencyP99Ns = m.calculatePercentile(0.99)
		snap.LatencyP999Ns = m.calculatePercentile(0.999)
	}

	return snap
}

// calculatePercentile estimates the latency at the given percentile (0.0-1.0)
// using linear interpolation between histogram buckets.
func (m *Metrics) calculatePercentile(percentile float64) uint64 {
	totalOps := m.OpCount.Load()
	if totalOps == 0 {
		return 0
	}

	targetCount := uint64(float64(totalOps) * percentile)

	prevBucket := uint64(0)
	for i, bucket := range LatencyBuckets {
		bucketCount := m.LatencyBuckets[i].Load()
		if bucketCount >= targetCount {
			prevCount := uint64(0)
			if i > 0 {
				prevCount = m.LatencyBuckets[i-1].Load()
			}
			if bucketCount == prevCount {
				return bucket
			}
			fraction := float64(targetCount-prevCount) / float64(bucketCount-prevCount)
			return prevBucket + uint64(fraction*float64(bucket-prevBucket))
		}
		prevBucket = bucket
	}

	return LatencyBuckets[numLatencyBuckets-1]
}

// Reset resets all metrics counters (useful for testing).
func (m *Metrics) Reset() {
	for i := 0; i < numOpTypes; i++ {
		m.Ops[i].Store(0)
		m.Bytes[i].Store(0)
		m.Errors[i].Store(0)
	}
	m.RetryCount.Store(0)
	m.InflightTotal.Store(0)
	m.InflightCount.Store(0)
	m.MaxInflight.Store(0)
	m.TotalLatencyNs.Store(0)
	m.OpCount.Store(0)
	for i := 0; i < numLatencyBuckets; i++ {
		m.LatencyBuckets[i].Store(0)
	}
	m.StartTime.Store(time.Now().UnixNano())
	m.StopTime.Store(0)
}

// Observer allows pluggable metrics collection for engine operations.
type Observer interface {
	// ObserveOp is called for each completed operation.
	ObserveOp(op slot.OpType, bytes uint64, latencyNs uint64, success bool)

	// ObserveRetry is called for each retry attempt.
	ObserveRetry()

	// ObserveInflight is called after each completion with the current
	// inflight depth.
	ObserveInflight(depth uint32)
}

// NoOpObserver is a no-op implementation of Observer.
type NoOpObserver struct{}

func (NoOpObserver) ObserveOp(slot.OpType, uint64, uint64, bool) {}
func (NoOpObserver) ObserveRetry()                               {}
func (NoOpObserver) ObserveInflight(uint32)                      {}

// MetricsObserver implements Observer using the built-in Metrics.
type MetricsObserver struct {
	metrics *Metrics
}

// NewMetricsObserver creates an observer that records to the given metrics.
func NewMetricsObserver(m *Metrics) *MetricsObserver {
	return &MetricsObserver{metrics: m}
}

func (o *MetricsObserver) ObserveOp(op slot.OpType, bytes uint64, latencyNs uint64, success bool) {
	o.metrics.RecordOp(op, bytes, latencyNs, success)
}

func (o *MetricsObserver) ObserveRetry() {
	o.metrics.RecordRetry()
}

func (o *MetricsObserver) ObserveInflight(depth uint32) {
	o.metrics.RecordInflight(depth)
}

var _ Observer = (*MetricsObserver)(nil)
var _ Observer = (*NoOpObserver)(nil)
