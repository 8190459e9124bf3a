package introspect

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/behrlich/aio/internal/procstate"
	"github.com/behrlich/aio/internal/slot"
)

func TestDumpSlotsSkipsFreeSlots(t *testing.T) {
	a := slot.New(2, 1, 4096, nil)
	s := a.Acquire(slot.OwnerID(1), nil)
	s.Prepare(slot.OpReadBuffer, slot.OpParams{}, 0)

	var sb strings.Builder
	DumpSlots(a, &sb)
	out := sb.String()
	require.Contains(t, out, "READ_BUFFER")
}

func TestSummaryIncludesListNames(t *testing.T) {
	st := procstate.New(slot.OwnerID(1))
	out := Summary(st)
	require.Contains(t, out, "pending")
	require.Contains(t, out, "foreign_completed")
}
