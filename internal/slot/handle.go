package slot

import "fmt"

// Handle is a stable, generation-tagged reference to a slot, replacing raw
// pointer identity so a recycled slot can be distinguished from the op a
// caller originally submitted. A Handle is a plain value — safe to copy,
// pass across the simulated process boundary, and store for arbitrarily
// long.
type Handle struct {
	Index      int32
	Generation uint64
}

// NilHandle refers to no slot (Index -1); MakeHandle never returns it.
var NilHandle = Handle{Index: -1}

// Valid reports whether h refers to a slot index at all (does not check
// whether the generation is still current — use Arena.Deref for that).
func (h Handle) Valid() bool { return h.Index >= 0 }

func (h Handle) String() string {
	if !h.Valid() {
		return "handle(nil)"
	}
	return fmt.Sprintf("handle(%d@%d)", h.Index, h.Generation)
}
