package aio

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/behrlich/aio/internal/slot"
)

func newTestEngine(t *testing.T) (*Engine, *MockDriver) {
	t.Helper()
	cfg := DefaultConfig()
	cfg.MaxAIOInProgress = 32
	cfg.MaxAIOBounceBuffers = 8
	cfg.IOMaxConcurrency = 8
	cfg.SubmissionBatchLimit = 1
	g, err := NewGroup(cfg)
	require.NoError(t, err)

	d := NewMockDriver(8)
	e, err := g.AttachWithDriver(d)
	require.NoError(t, err)
	t.Cleanup(func() { e.Close() })
	return e, d
}

func TestSubmitAndWaitCompletesThroughMockDriver(t *testing.T) {
	e, _ := newTestEngine(t)
	buf := make([]byte, 16)

	h, err := e.WriteBuffer(context.Background(), 3, 0, buf)
	require.NoError(t, err)

	stop := make(chan struct{})
	result, ok := e.Wait(h, stop)
	require.True(t, ok)
	require.Equal(t, int64(16), result)
}

func TestLocalCallbackRunsOnCompletion(t *testing.T) {
	e, _ := newTestEngine(t)
	done := make(chan int64, 1)

	_, err := e.Submit(context.Background(), slot.OpReadBuffer, slot.OpParams{FD: 1, Buffer: make([]byte, 8)}, 0,
		func(s *slot.Slot, _ any) { done <- s.Result() }, nil)
	require.NoError(t, err)

	select {
	case r := <-done:
		require.Equal(t, int64(8), r)
	case <-time.After(time.Second):
		t.Fatal("local callback never ran")
	}
}

func TestFsyncWrapperSubmitsZeroLengthOp(t *testing.T) {
	e, d := newTestEngine(t)
	d.ResultFunc = func(s *slot.Slot) int64 {
		require.Equal(t, slot.OpFsync, s.OpType)
		return 0
	}

	h, err := e.Fsync(context.Background(), 5)
	require.NoError(t, err)

	result, ok := e.Wait(h, nil)
	require.True(t, ok)
	require.Equal(t, int64(0), result)
}

func TestMergeChainSubmitsAndCompletesAsOneBatch(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxAIOInProgress = 32
	cfg.MaxAIOBounceBuffers = 8
	cfg.IOMaxConcurrency = 8
	cfg.SubmissionBatchLimit = 10
	g, err := NewGroup(cfg)
	require.NoError(t, err)

	d := NewMockDriver(8)
	e, err := g.AttachWithDriver(d)
	require.NoError(t, err)
	t.Cleanup(func() { e.Close() })

	h1, err := e.WriteBuffer(context.Background(), 9, 0, make([]byte, 4096))
	require.NoError(t, err)
	h2, err := e.WriteBuffer(context.Background(), 9, 4096, make([]byte, 2048))
	require.NoError(t, err)

	require.NoError(t, e.Flush(context.Background()))

	r1, ok := e.Wait(h1, nil)
	require.True(t, ok)
	require.Equal(t, int64(4096), r1, "chain head must report its own byte count, not the fused total")

	r2, ok := e.Wait(h2, nil)
	require.True(t, ok)
	require.Equal(t, int64(2048), r2, "chain tail must report its own byte count")

	require.Equal(t, 1, d.CallCounts()["submit"], "a fused chain must reach the driver as a single Submit call")
}

func TestOutstandingCountTracksUnflushedSlots(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxAIOInProgress = 32
	cfg.MaxAIOBounceBuffers = 8
	cfg.IOMaxConcurrency = 8
	cfg.SubmissionBatchLimit = 10
	g, err := NewGroup(cfg)
	require.NoError(t, err)

	d := NewMockDriver(8)
	e, err := g.AttachWithDriver(d)
	require.NoError(t, err)
	t.Cleanup(func() { e.Close() })

	_, err = e.WriteBuffer(context.Background(), 3, 0, make([]byte, 16))
	require.NoError(t, err)
	require.Equal(t, int64(1), e.State().OutstandingCount.Load())

	require.NoError(t, e.Flush(context.Background()))
	require.Equal(t, int64(0), e.State().OutstandingCount.Load())
}

func TestMetricsObserverRecordsCompletedOps(t *testing.T) {
	e, _ := newTestEngine(t)
	e.SetObserver(NewMetricsObserver(e.Metrics()))

	_, err := e.WriteBuffer(context.Background(), 1, 0, make([]byte, 4))
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return e.Metrics().Snapshot().Ops[slot.OpWriteBuffer] == 1
	}, time.Second, time.Millisecond)
}
