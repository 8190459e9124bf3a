// Package bounce implements the shared bounce-buffer pool:
// refcounted, page-aligned buffers drawn from a central free list, used when
// a slot's own memory is unsuitable for the chosen driver (e.g. the worker
// driver's "memory must point into the shared buffer region" constraint).
package bounce

import (
	"sync"

	"github.com/behrlich/aio/internal/logging"
)

const pageSize = 4096

// Buffer is a refcounted, page-aligned shared buffer.
type Buffer struct {
	pool *Pool
	mem  []byte // page-aligned view into the backing allocation
	raw  []byte // the oversized backing allocation, kept for GC/alignment

	mu       sync.Mutex
	refcount int
	inFree   bool
}

// Bytes returns the buffer's page-aligned memory.
func (b *Buffer) Bytes() []byte { return b.mem }

// AddRef takes an additional reference.
func (b *Buffer) AddRef() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.refcount++
}

// Owner is the external resource-owner hook a buffer registers against on
// acquire. Resource owners are an out-of-scope collaborator; this is the
// narrow seam the core calls into, not an implementation of one.
type Owner interface {
	Register(*Buffer)
	Unregister(*Buffer)
}

// Pool is the central free list of bounce buffers.
type Pool struct {
	size     int
	capacity int
	owner    Owner

	mu    sync.Mutex
	cond  *sync.Cond
	free  []*Buffer
	total int
}

// New creates a pool of up to capacity buffers of the given size, each
// rounded up to a page-size multiple. Buffers are allocated lazily.
func New(capacity, size int, owner Owner) *Pool {
	if rem := size % pageSize; rem != 0 {
		size += pageSize - rem
	}
	p := &Pool{size: size, capacity: capacity, owner: owner}
	p.cond = sync.NewCond(&p.mu)
	return p
}

func newBuffer(p *Pool) *Buffer {
	raw := make([]byte, p.size+pageSize)
	off := int(pageSize - (uintptrAddr(raw) % pageSize))
	if off == pageSize {
		off = 0
	}
	return &Buffer{pool: p, raw: raw, mem: raw[off : off+p.size : off+p.size]}
}

// Acquire pops a free buffer, setting its refcount to 1. When the pool is
// exhausted it calls drain (if non-nil) to let the caller make driver
// progress — completions that release bounce buffers — before retrying,
// mirroring the slot allocator's "blocks by draining driver completions"
// contract.
func (p *Pool) Acquire(drain func() int) *Buffer {
	p.mu.Lock()
	for {
		if n := len(p.free); n > 0 {
			b := p.free[n-1]
			p.free = p.free[:n-1]
			p.mu.Unlock()

			b.mu.Lock()
			b.refcount = 1
			b.inFree = false
			b.mu.Unlock()
			if p.owner != nil {
				p.owner.Register(b)
			}
			return b
		}
		if p.total < p.capacity {
			p.total++
			p.mu.Unlock()
			b := newBuffer(p)
			b.refcount = 1
			if p.owner != nil {
				p.owner.Register(b)
			}
			return b
		}
		p.mu.Unlock()
		if drain != nil {
			logging.Default().Debug("bounce pool exhausted, draining driver completions")
			if drain() == 0 {
				p.mu.Lock()
				p.waitLocked()
				continue
			}
		} else {
			p.mu.Lock()
			p.waitLocked()
			continue
		}
		p.mu.Lock()
	}
}

func (p *Pool) waitLocked() {
	if len(p.free) == 0 {
		p.cond.Wait()
	}
}

// Release decrements a buffer's refcount; at zero it returns to the free
// list.
func (p *Pool) Release(b *Buffer) {
	b.mu.Lock()
	b.refcount--
	zero := b.refcount == 0
	b.mu.Unlock()
	if !zero {
		return
	}
	if p.owner != nil {
		p.owner.Unregister(b)
	}

	p.mu.Lock()
	b.mu.Lock()
	b.inFree = true
	b.mu.Unlock()
	p.free = append(p.free, b)
	p.mu.Unlock()
	p.cond.Signal()
}

// Len returns the number of currently free buffers (introspection use).
func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.free)
}

// Cap returns the pool's configured capacity.
func (p *Pool) Cap() int { return p.capacity }
