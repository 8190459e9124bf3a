package slot

// MergeChain returns every slot fused onto s's chain, head first, walking
// MergeWith. If s was never merged the returned slice holds only s.
func (s *Slot) MergeChain() []*Slot {
	members := []*Slot{s}
	for m := s.MergeWith; m != nil; m = m.MergeWith {
		members = append(members, m)
	}
	return members
}

// SplitResult distributes one driver-reported result across every member of
// a fused chain. A lone slot (a one-member chain) gets total unchanged. A
// negative total (the whole submission failed) propagates unchanged to
// every member. A non-negative total is assigned in chain order, each
// member getting up to its requested length; a short transfer leaves every
// member past the shortfall with a zero result.
func SplitResult(members []*Slot, total int64) {
	if len(members) == 1 || total < 0 {
		for _, m := range members {
			m.SetResult(total)
		}
		return
	}
	remaining := total
	for _, m := range members {
		got := int64(m.Params.Length)
		if got > remaining {
			got = remaining
		}
		m.SetResult(got)
		remaining -= got
	}
}
