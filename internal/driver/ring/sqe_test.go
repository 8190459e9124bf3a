package ring

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/behrlich/aio/internal/slot"
)

func TestBuildSQEMapsOpTypeToOpcode(t *testing.T) {
	cases := []struct {
		op      slot.OpType
		opcode  uint8
		isWrite bool
	}{
		{slot.OpReadBuffer, opRead, false},
		{slot.OpWriteBuffer, opWrite, true},
		{slot.OpWriteWAL, opWrite, true},
		{slot.OpFsync, opFsync, false},
		{slot.OpFsyncWAL, opFsync, false},
		{slot.OpFlushRange, opFsync, false},
	}
	for _, c := range cases {
		s := slot.New(1, 1, 4096, nil).Acquire(slot.OwnerID(1), nil)
		s.Prepare(c.op, slot.OpParams{FD: 3, Offset: 10, Length: 20}, 0)
		sqe, iovecs := buildSQE(s, 99)
		require.Nil(t, iovecs, "a lone slot must not allocate an iovec gather")
		require.Equal(t, c.opcode, sqe.opcode, "op %s", c.op)
		require.Equal(t, uint64(99), sqe.userData)
		require.Equal(t, int32(3), sqe.fd)
	}
}

func TestBuildSQESetsDatasyncFlag(t *testing.T) {
	s := slot.New(1, 1, 4096, nil).Acquire(slot.OwnerID(1), nil)
	s.Prepare(slot.OpFsync, slot.OpParams{FD: 1, Datasync: true}, 0)
	sqe, _ := buildSQE(s, 1)
	require.Equal(t, uint32(fsyncDatasync), sqe.opFlags)
}

func TestBuildSQEGathersIovecsForMergeChain(t *testing.T) {
	a := slot.New(4, 1, 4096, nil)
	head := a.Acquire(slot.OwnerID(1), nil)
	head.Prepare(slot.OpWriteBuffer, slot.OpParams{FD: 3, Offset: 0, Length: 4, Buffer: make([]byte, 4)}, 0)
	tail := a.Acquire(slot.OwnerID(1), nil)
	tail.Prepare(slot.OpWriteBuffer, slot.OpParams{FD: 3, Offset: 4, Length: 8, Buffer: make([]byte, 8)}, 0)
	tail.MergeHead = head
	head.MergeWith = tail

	sqe, iovecs := buildSQE(head, 7)
	require.Equal(t, uint8(opWritev), sqe.opcode)
	require.Len(t, iovecs, 2)
	require.Equal(t, uint32(2), sqe.length)
}
