package aio

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/behrlich/aio/internal/slot"
)

func TestMetricsRecordOpTracksPerOpTypeCounters(t *testing.T) {
	m := NewMetrics()

	m.RecordOp(slot.OpReadBuffer, 1024, 1_000_000, true)
	m.RecordOp(slot.OpWriteBuffer, 2048, 2_000_000, true)
	m.RecordOp(slot.OpReadBuffer, 512, 500_000, false)

	snap := m.Snapshot()

	require.Equal(t, uint64(2), snap.Ops[slot.OpReadBuffer])
	require.Equal(t, uint64(1), snap.Ops[slot.OpWriteBuffer])
	require.Equal(t, uint64(1024), snap.Bytes[slot.OpReadBuffer]) // only the successful read counts
	require.Equal(t, uint64(2048), snap.Bytes[slot.OpWriteBuffer])
	require.Equal(t, uint64(1), snap.Errors[slot.OpReadBuffer])
	require.Equal(t, uint64(3), snap.TotalOps)

	expectedErrorRate := float64(1) / float64(3) * 100.0
	require.InDelta(t, expectedErrorRate, snap.ErrorRate, 0.1)
}

func TestMetricsRecordOpIgnoresOutOfRangeOpType(t *testing.T) {
	m := NewMetrics()
	m.RecordOp(slot.OpType(numOpTypes+5), 100, 1, true)

	snap := m.Snapshot()
	require.Equal(t, uint64(0), snap.TotalOps)
}

func TestMetricsInflightTracksMax(t *testing.T) {
	m := NewMetrics()

	m.RecordInflight(10)
	m.RecordInflight(20)
	m.RecordInflight(15)

	snap := m.Snapshot()
	require.Equal(t, uint32(20), snap.MaxInflight)
	require.InDelta(t, float64(10+20+15)/3.0, snap.AvgInflight, 0.1)
}

func TestMetricsLatencyAverage(t *testing.T) {
	m := NewMetrics()

	m.RecordOp(slot.OpReadBuffer, 1024, 1_000_000, true)
	m.RecordOp(slot.OpWriteBuffer, 1024, 2_000_000, true)

	snap := m.Snapshot()
	require.Equal(t, uint64(1_500_000), snap.AvgLatencyNs)
}

func TestMetricsUptimeStopsAdvancingAfterStop(t *testing.T) {
	m := NewMetrics()
	time.Sleep(10 * time.Millisecond)

	snap := m.Snapshot()
	require.GreaterOrEqual(t, snap.UptimeNs, uint64(10*time.Millisecond))

	m.Stop()
	time.Sleep(5 * time.Millisecond)

	snap2 := m.Snapshot()
	require.LessOrEqual(t, snap2.UptimeNs, snap.UptimeNs+uint64(2*time.Millisecond))
}

func TestMetricsReset(t *testing.T) {
	m := NewMetrics()
	m.RecordOp(slot.OpReadBuffer, 1024, 1_000_000, true)
	m.RecordInflight(10)

	require.NotZero(t, m.Snapshot().TotalOps)

	m.Reset()
	snap := m.Snapshot()
	require.Equal(t, uint64(0), snap.TotalOps)
	require.Equal(t, uint64(0), snap.TotalBytes)
	require.Equal(t, uint32(0), snap.MaxInflight)
}

func TestObserverImplementations(t *testing.T) {
	var noop Observer = NoOpObserver{}
	noop.ObserveOp(slot.OpReadBuffer, 1024, 1_000_000, true)
	noop.ObserveRetry()
	noop.ObserveInflight(10)

	m := NewMetrics()
	obs := NewMetricsObserver(m)
	obs.ObserveOp(slot.OpReadBuffer, 1024, 1_000_000, true)
	obs.ObserveOp(slot.OpWriteBuffer, 2048, 2_000_000, true)
	obs.ObserveRetry()

	snap := m.Snapshot()
	require.Equal(t, uint64(1), snap.Ops[slot.OpReadBuffer])
	require.Equal(t, uint64(1), snap.Ops[slot.OpWriteBuffer])
	require.Equal(t, uint64(1024), snap.Bytes[slot.OpReadBuffer])
	require.Equal(t, uint64(1), snap.RetryCount)
}

func TestMetricsHistogramPercentiles(t *testing.T) {
	m := NewMetrics()

	for i := 0; i < 50; i++ {
		m.RecordOp(slot.OpReadBuffer, 1024, 500_000, true) // 500us
	}
	for i := 0; i < 49; i++ {
		m.RecordOp(slot.OpWriteBuffer, 1024, 5_000_000, true) // 5ms
	}
	m.RecordOp(slot.OpWriteBuffer, 1024, 50_000_000, true) // 50ms, the outlier

	snap := m.Snapshot()
	require.Equal(t, uint64(100), snap.TotalOps)
	require.GreaterOrEqual(t, snap.LatencyP50Ns, uint64(100_000))
	require.LessOrEqual(t, snap.LatencyP50Ns, uint64(1_000_000))
	require.GreaterOrEqual(t, snap.LatencyP99Ns, uint64(5_000_000))

	var totalInBuckets uint64
	for _, v := range snap.LatencyHistogram {
		totalInBuckets += v
	}
	require.NotZero(t, totalInBuckets)
}
