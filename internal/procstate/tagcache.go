package procstate

import (
	"encoding/binary"

	"github.com/cespare/xxhash/v2"

	"github.com/behrlich/aio/internal/slot"
)

// tagKey hashes (fd, tag) into a single lookup key. A soft-failed op
// carries a Tag identifying how to reopen its descriptor at retry time —
// typically a WAL descriptor keyed by segment and timeline — and hashing
// the pair avoids building a string key with fmt.Sprintf on the retry hot
// path.
func tagKey(fd int, tag uint64) uint64 {
	var buf [12]byte
	binary.LittleEndian.PutUint32(buf[0:4], uint32(fd))
	binary.LittleEndian.PutUint64(buf[4:12], tag)
	return xxhash.Sum64(buf[:])
}

// CacheRetryTag records s under its (fd, Tag) key so a later retry can
// locate it without scanning the arena's central uncompleted list. No-op
// if s carries no tag (Tag == 0 means "no cached descriptor context").
func (st *State) CacheRetryTag(s *slot.Slot) {
	if s.Params.Tag == 0 {
		return
	}
	if st.retryTags == nil {
		st.retryTags = make(map[uint64]*slot.Slot)
	}
	st.retryTags[tagKey(s.Params.FD, s.Params.Tag)] = s
}

// LookupRetryTag returns the slot cached under (fd, tag), if any.
func (st *State) LookupRetryTag(fd int, tag uint64) (*slot.Slot, bool) {
	s, ok := st.retryTags[tagKey(fd, tag)]
	return s, ok
}

// ClearRetryTag removes s's cache entry once its retry has been dispatched.
func (st *State) ClearRetryTag(s *slot.Slot) {
	if s.Params.Tag == 0 || st.retryTags == nil {
		return
	}
	delete(st.retryTags, tagKey(s.Params.FD, s.Params.Tag))
}
