package kernel

import (
	"errors"
	"fmt"

	"go.uber.org/atomic"
)

// ErrNoMemory is returned when a fixed-capacity pool is exhausted.
var ErrNoMemory = errors.New("kernel: out of memory")

// Block identifies one block of a Membox.
type Block uint32

const noBlock = ^uint32(0)

// Membox is a fixed-capacity block allocator with an intrusive free list.
//
// Alloc and Free only take a spinlock and never allocate, so the tick path
// may use them.
type Membox[T any] struct {
	lock  Spinlock
	items []T
	next  []uint32
	used  []bool
	free  uint32
	inUse int

	failed atomic.Uint64
}

// NewMembox returns a pool of n blocks.
func NewMembox[T any](n int) *Membox[T] {
	if n < 0 {
		n = 0
	}
	m := &Membox[T]{
		items: make([]T, n),
		next:  make([]uint32, n),
		used:  make([]bool, n),
		free:  noBlock,
	}
	for i := n - 1; i >= 0; i-- {
		m.next[i] = m.free
		m.free = uint32(i)
	}
	return m
}

// Alloc takes a block from the free list.
func (m *Membox[T]) Alloc() (Block, error) {
	m.lock.Lock()
	defer m.lock.Unlock()

	if m.free == noBlock {
		m.failed.Inc()
		return 0, ErrNoMemory
	}
	b := m.free
	m.free = m.next[b]
	m.used[b] = true
	m.inUse++
	return Block(b), nil
}

// Get returns the storage of b. The pointer is valid until b is freed.
func (m *Membox[T]) Get(b Block) *T { return &m.items[b] }

// Free zeroes b and returns it to the pool.
func (m *Membox[T]) Free(b Block) error {
	m.lock.Lock()
	defer m.lock.Unlock()

	if int(b) >= len(m.items) {
		return fmt.Errorf("membox free %d: out of range", b)
	}
	if !m.used[b] {
		return fmt.Errorf("membox free %d: not allocated", b)
	}
	var zero T
	m.items[b] = zero
	m.used[b] = false
	m.next[b] = m.free
	m.free = uint32(b)
	m.inUse--
	return nil
}

// InUse returns the number of allocated blocks.
func (m *Membox[T]) InUse() int {
	m.lock.Lock()
	defer m.lock.Unlock()
	return m.inUse
}

// Cap returns the number of blocks.
func (m *Membox[T]) Cap() int { return len(m.items) }

// Failed returns how many Alloc calls found the pool empty.
func (m *Membox[T]) Failed() uint64 { return m.failed.Load() }
