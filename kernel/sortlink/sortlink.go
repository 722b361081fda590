// Package sortlink implements the tick-driven timing wheel used by the
// software timers.
//
// A wheel has Len slots. Each slot holds a doubly-linked list of nodes
// sorted by the number of laps they still have to wait; the lap count of a
// node is stored as a delta over the node before it, so only the head of a
// slot needs to be touched when the cursor passes it.
//
// Lists are arena-indexed: every node and every slot sentinel is an index
// into one Arena. Nothing in this package locks; callers serialize access.
package sortlink

import (
	"errors"
	"fmt"
	"math"
)

// NodeID identifies a node (or slot sentinel) in an Arena.
type NodeID uint32

// None marks an unlinked node.
const None NodeID = math.MaxUint32

// ErrNotLinked reports a node that is not on the slot list its index names.
var ErrNotLinked = errors.New("sortlink: node is not on this sortlink")

type link struct {
	prev NodeID
	next NodeID
}

// Arena stores the links of a fixed set of nodes and the slot sentinels of
// a fixed set of wheels.
type Arena struct {
	links  []link
	values []IdxRoll
	nodes  uint32
	wheels []Attribute
}

// NewArena allocates nodes linkable nodes (IDs 0..nodes-1) and wheels
// wheels with Len slots each.
func NewArena(nodes, wheels int) *Arena {
	if nodes < 0 {
		nodes = 0
	}
	if wheels < 0 {
		wheels = 0
	}
	total := nodes + wheels*Len
	a := &Arena{
		links:  make([]link, total),
		values: make([]IdxRoll, nodes),
		nodes:  uint32(nodes),
		wheels: make([]Attribute, wheels),
	}
	for i := 0; i < nodes; i++ {
		a.links[i] = link{prev: None, next: None}
	}
	for w := range a.wheels {
		base := NodeID(nodes + w*Len)
		a.wheels[w] = Attribute{a: a, base: base}
		for s := NodeID(0); s < Len; s++ {
			a.links[base+s] = link{prev: base + s, next: base + s}
		}
	}
	return a
}

// Nodes returns the number of linkable nodes.
func (a *Arena) Nodes() int { return int(a.nodes) }

// Wheels returns the number of wheels.
func (a *Arena) Wheels() int { return len(a.wheels) }

// Wheel returns wheel i.
func (a *Arena) Wheel(i int) *Attribute { return &a.wheels[i] }

// Linked reports whether id is currently on some slot list.
func (a *Arena) Linked(id NodeID) bool {
	return id < NodeID(a.nodes) && a.links[id].next != None
}

// Value returns the packed index/roll word of id.
func (a *Arena) Value(id NodeID) IdxRoll { return a.values[id] }

func (a *Arena) insertBefore(id, at NodeID) {
	prev := a.links[at].prev
	a.links[id] = link{prev: prev, next: at}
	a.links[prev].next = id
	a.links[at].prev = id
}

func (a *Arena) unlink(id NodeID) {
	l := a.links[id]
	a.links[l.prev].next = l.next
	a.links[l.next].prev = l.prev
	a.links[id] = link{prev: None, next: None}
}

// Attribute is one timing wheel: Len slot lists and a cursor.
type Attribute struct {
	a      *Arena
	base   NodeID
	cursor uint32
}

// Cursor returns the slot index of the current tick.
func (w *Attribute) Cursor() uint32 { return w.cursor }

func (w *Attribute) head(slot uint32) NodeID { return w.base + NodeID(slot&slotMask) }

func (w *Attribute) first(slot uint32) (NodeID, bool) {
	h := w.head(slot)
	n := w.a.links[h].next
	return n, n != h
}

// Empty reports whether no node is linked into the wheel.
func (w *Attribute) Empty() bool {
	for s := uint32(0); s < Len; s++ {
		if _, ok := w.first(s); ok {
			return false
		}
	}
	return true
}

// Insert links id so that it expires ticks ticks after the current one.
//
// A delay of 0 is treated as 1. Delays above MaxTicks are clamped.
func (w *Attribute) Insert(id NodeID, ticks uint32) {
	if ticks == 0 {
		ticks = 1
	}
	if ticks > MaxTicks {
		ticks = MaxTicks
	}

	offset := ticks & slotMask
	rolls := ticks>>LogLen + 1
	if offset == 0 {
		rolls--
	}
	slot := (w.cursor + offset) & slotMask

	a := w.a
	h := w.head(slot)
	at := a.links[h].next
	for at != h {
		r := a.values[at].Roll()
		if r > rolls {
			a.values[at] = a.values[at].WithRoll(r - rolls)
			break
		}
		rolls -= r
		at = a.links[at].next
	}

	a.values[id] = MakeIdxRoll(slot, rolls)
	a.insertBefore(id, at)
}

// Delete unlinks id from the wheel.
//
// The node must be on the slot list its index names; otherwise the lists
// are left untouched and an error wrapping ErrNotLinked is returned.
func (w *Attribute) Delete(id NodeID) error {
	a := w.a
	if id >= NodeID(a.nodes) {
		return fmt.Errorf("%w: node %d out of range", ErrNotLinked, id)
	}
	slot := a.values[id].Index()
	h := w.head(slot)
	if !w.onList(h, id) {
		return fmt.Errorf("%w: node %d slot %d", ErrNotLinked, id, slot)
	}

	if next := a.links[id].next; next != h {
		a.values[next] = a.values[next].WithRoll(a.values[next].Roll() + a.values[id].Roll())
	}
	a.unlink(id)
	return nil
}

// onList walks backwards from id until it meets the sentinel h.
func (w *Attribute) onList(h, id NodeID) bool {
	a := w.a
	at := a.links[id].prev
	for steps := 0; steps < len(a.links); steps++ {
		switch at {
		case h:
			return true
		case id, None:
			return false
		}
		at = a.links[at].prev
	}
	return false
}

// Scan advances the cursor by one tick and passes every node that expires
// on this tick to expire, head first.
//
// expire runs after the node is unlinked and may Insert into the wheel.
func (w *Attribute) Scan(expire func(NodeID)) {
	w.cursor = (w.cursor + 1) & slotMask

	a := w.a
	h := w.head(w.cursor)
	n := a.links[h].next
	if n == h {
		return
	}
	a.values[n] = a.values[n].WithRoll(a.values[n].Roll() - 1)

	for n != h && a.values[n].Roll() == 0 {
		a.unlink(n)
		if expire != nil {
			expire(n)
		}
		n = a.links[h].next
	}
}

// expireTime converts a true lap count on slot into ticks from now.
func (w *Attribute) expireTime(rolls, slot uint32) uint32 {
	dist := (slot - w.cursor) & slotMask
	if dist == 0 {
		dist = Len
	}
	return (rolls-1)<<LogLen + dist
}

// NextExpireTime returns the number of ticks until the next node expires.
// It returns false when the wheel is empty.
func (w *Attribute) NextExpireTime() (uint32, bool) {
	var (
		found   bool
		minRoll uint32
		minSlot uint32
	)
	start := (w.cursor + 1) & slotMask
	for i := uint32(0); i < Len; i++ {
		slot := (start + i) & slotMask
		n, ok := w.first(slot)
		if !ok {
			continue
		}
		if r := w.a.values[n].Roll(); !found || r < minRoll {
			found, minRoll, minSlot = true, r, slot
		}
	}
	if !found {
		return 0, false
	}
	return w.expireTime(minRoll, minSlot), true
}

// TargetExpireTime returns the number of ticks until id expires.
// id must be linked into w.
func (w *Attribute) TargetExpireTime(id NodeID) uint32 {
	slot := w.a.values[id].Index()
	return w.expireTime(w.TrueRolls(id), slot)
}

// TrueRolls returns the lap count of id: the sum of deltas from its slot
// head up to and including id.
func (w *Attribute) TrueRolls(id NodeID) uint32 {
	a := w.a
	h := w.head(a.values[id].Index())
	var sum uint32
	for n := a.links[h].next; n != h; n = a.links[n].next {
		sum += a.values[n].Roll()
		if n == id {
			break
		}
	}
	return sum
}

// UpdateExpireTime applies elapsed-1 ticks at once after an idle period in
// which no node expired. The tick that ends the idle period is delivered
// by the following Scan, so UpdateExpireTime(k) then Scan equals k Scans.
//
// A node that should have expired during the idle period is left to
// expire on the next visit of its slot.
func (w *Attribute) UpdateExpireTime(elapsed uint32) {
	if elapsed == 0 {
		return
	}
	edge := elapsed & slotMask
	rolls := elapsed>>LogLen + 1
	if edge == 0 {
		rolls--
		edge = Len
	}

	a := w.a
	for i := uint32(0); i < Len; i++ {
		n, ok := w.first(w.cursor + i)
		if !ok {
			continue
		}
		dec := rolls - 1
		if i > 0 && i < edge {
			dec++
		}
		r := a.values[n].Roll()
		if r > dec {
			r -= dec
		} else {
			r = 1
		}
		a.values[n] = a.values[n].WithRoll(r)
	}
	w.cursor = (w.cursor + elapsed - 1) & slotMask
}

// Walk calls fn for every node of slot in list order with its true lap count.
func (w *Attribute) Walk(slot uint32, fn func(id NodeID, rolls uint32)) {
	a := w.a
	h := w.head(slot)
	var sum uint32
	for n := a.links[h].next; n != h; n = a.links[n].next {
		sum += a.values[n].Roll()
		fn(n, sum)
	}
}
