// Package introspect renders two tabular diagnostic views: a per-slot
// dump of the shared arena, and a per-backend counters summary, using
// github.com/olekukonko/tablewriter for readable CLI/debug output.
package introspect

import (
	"io"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/olekukonko/tablewriter"

	"github.com/behrlich/aio/internal/procstate"
	"github.com/behrlich/aio/internal/slot"
)

// DumpSlots writes a table of every slot currently in use in the arena
// (free slots are omitted; a fully idle arena renders as header-only).
func DumpSlots(a *slot.Arena, w io.Writer) {
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"index", "gen", "owner", "op", "flags", "result"})
	for i := int32(0); i < int32(a.Len()); i++ {
		s := a.At(i)
		if s.Flags() == slot.FlagUnused {
			continue
		}
		table.Append([]string{
			strconv.Itoa(int(i)),
			strconv.FormatUint(s.Generation(), 10),
			strconv.FormatUint(uint64(s.OwnerID), 10),
			s.OpType.String(),
			s.Flags().String(),
			strconv.FormatInt(s.Result(), 10),
		})
	}
	table.Render()
}

// DumpBackend writes a one-row-per-list summary of a backend's bookkeeping
// state, suitable for a debug endpoint or CLI "status" subcommand.
func DumpBackend(st *procstate.State, w io.Writer) {
	// Every dump gets its own correlation ID so a series of status
	// snapshots written to the same log stream can be told apart without
	// relying on wall-clock timestamps, which this process may not log at
	// the same granularity as its caller.
	snapshotID := uuid.New()

	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"list", "length"})
	rows := []struct {
		name string
		l    *slot.List
	}{
		{"unused", st.Unused},
		{"pending", st.Pending},
		{"issued", st.Issued},
		{"issued_abandoned", st.IssuedAbandoned},
		{"reaped", st.Reaped},
		{"local_completed", st.LocalCompleted},
		{"foreign_completed", st.ForeignCompleted},
	}
	for _, r := range rows {
		table.Append([]string{r.name, strconv.Itoa(r.l.Len())})
	}
	table.Render()

	counters := tablewriter.NewWriter(w)
	counters.SetHeader([]string{"counter", "value"})
	counters.Append([]string{"snapshot_id", snapshotID.String()})
	counters.Append([]string{"outstanding", strconv.FormatInt(st.OutstandingCount.Load(), 10)})
	counters.Append([]string{"inflight", strconv.FormatInt(st.InflightCount.Load(), 10)})
	counters.Append([]string{"executed", strconv.FormatUint(st.Executed.Load(), 10)})
	counters.Append([]string{"retries", strconv.FormatUint(st.RetryCount.Load(), 10)})
	counters.Append([]string{"foreign_routed", strconv.FormatUint(st.ForeignCount.Load(), 10)})
	counters.Render()
}

// Summary renders DumpBackend to a plain string, for logging.
func Summary(st *procstate.State) string {
	var sb strings.Builder
	DumpBackend(st, &sb)
	return sb.String()
}
