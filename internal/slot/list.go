package slot

// link is one intrusive doubly-linked-list node embedded in a Slot. Each
// slot carries exactly two of these — OwnerLink and IoLink — so it may sit
// on at most one owner-list and one io-list simultaneously.
type link struct {
	prev, next *Slot
	on         bool
}

// Role selects which of a slot's two link members a List operates on.
type Role int

const (
	RoleOwner Role = iota
	RoleIO
)

func linkOf(s *Slot, role Role) *link {
	if role == RoleOwner {
		return &s.OwnerLink
	}
	return &s.IOLink
}

// List is an intrusive doubly-linked list anchored outside the slots it
// holds (e.g. a per-backend "pending" list, or the central "uncompleted"
// list). It never allocates: membership is carried in the slot itself.
type List struct {
	role       Role
	head, tail *Slot
	length     int
}

// NewList creates an empty list operating on the given link role.
func NewList(role Role) *List { return &List{role: role} }

// Len returns the number of slots currently on the list.
func (l *List) Len() int { return l.length }

// Empty reports whether the list has no members.
func (l *List) Empty() bool { return l.length == 0 }

// PushBack appends s. Panics if s is already on a list of this role — that
// would violate the single-membership invariant.
func (l *List) PushBack(s *Slot) {
	ln := linkOf(s, l.role)
	if ln.on {
		panic("slot: slot already linked on this role's list")
	}
	ln.on = true
	ln.prev = l.tail
	ln.next = nil
	if l.tail != nil {
		linkOf(l.tail, l.role).next = s
	} else {
		l.head = s
	}
	l.tail = s
	l.length++
}

// PushFront prepends s. Panics if s is already on a list of this role.
func (l *List) PushFront(s *Slot) {
	ln := linkOf(s, l.role)
	if ln.on {
		panic("slot: slot already linked on this role's list")
	}
	ln.on = true
	ln.next = l.head
	ln.prev = nil
	if l.head != nil {
		linkOf(l.head, l.role).prev = s
	} else {
		l.tail = s
	}
	l.head = s
	l.length++
}

// Remove detaches s from the list. No-op if s is not linked on this role.
func (l *List) Remove(s *Slot) {
	ln := linkOf(s, l.role)
	if !ln.on {
		return
	}
	if ln.prev != nil {
		linkOf(ln.prev, l.role).next = ln.next
	} else {
		l.head = ln.next
	}
	if ln.next != nil {
		linkOf(ln.next, l.role).prev = ln.prev
	} else {
		l.tail = ln.prev
	}
	ln.prev, ln.next, ln.on = nil, nil, false
	l.length--
}

// PopFront removes and returns the oldest member, or nil if empty.
func (l *List) PopFront() *Slot {
	s := l.head
	if s == nil {
		return nil
	}
	l.Remove(s)
	return s
}

// Front returns the oldest member without removing it, or nil if empty.
func (l *List) Front() *Slot { return l.head }

// Each calls fn for every member, oldest first. fn must not mutate the list.
func (l *List) Each(fn func(*Slot)) {
	for s := l.head; s != nil; s = linkOf(s, l.role).next {
		fn(s)
	}
}
