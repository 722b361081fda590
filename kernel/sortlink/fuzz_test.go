package sortlink

import "testing"

// FuzzDeltaEncoding drives a wheel with random insert/delete/scan
// operations and checks it against a model of absolute expiry ticks.
func FuzzDeltaEncoding(f *testing.F) {
	f.Add([]byte{0x00, 0x03, 0x04, 0x13, 0x02, 0x02, 0x02, 0x01})
	f.Add([]byte{0x00, 0x08, 0x04, 0x08, 0x08, 0x10, 0x05, 0x02, 0x02})
	f.Add([]byte{0x00, 0x40, 0x04, 0x01, 0x02, 0x09, 0x02, 0x02, 0x02, 0x02})

	const nodes = 16
	f.Fuzz(func(t *testing.T, ops []byte) {
		a := NewArena(nodes, 1)
		w := a.Wheel(0)
		var now uint64
		expiry := make(map[NodeID]uint64)

		for i := 0; i < len(ops); i++ {
			op := ops[i]
			id := NodeID(op>>2) % nodes
			switch op & 3 {
			case 0, 3:
				if i+1 >= len(ops) {
					continue
				}
				i++
				ticks := uint32(ops[i]&0x3f) + 1
				if a.Linked(id) {
					if err := w.Delete(id); err != nil {
						t.Fatalf("Delete(%d) = %v", id, err)
					}
					delete(expiry, id)
				}
				w.Insert(id, ticks)
				expiry[id] = now + uint64(ticks)
			case 1:
				if !a.Linked(id) {
					continue
				}
				if err := w.Delete(id); err != nil {
					t.Fatalf("Delete(%d) = %v", id, err)
				}
				delete(expiry, id)
			case 2:
				now++
				w.Scan(func(n NodeID) {
					want, ok := expiry[n]
					if !ok {
						t.Fatalf("tick %d: unexpected expiry of node %d", now, n)
					}
					if want != now {
						t.Fatalf("tick %d: node %d expired, want tick %d", now, n, want)
					}
					delete(expiry, n)
				})
			}

			for n, at := range expiry {
				if at <= now {
					t.Fatalf("tick %d: node %d overdue (due %d)", now, n, at)
				}
				if !a.Linked(n) {
					t.Fatalf("tick %d: node %d not linked", now, n)
				}
				if got := w.TargetExpireTime(n); uint64(got) != at-now {
					t.Fatalf("tick %d: TargetExpireTime(%d) = %d, want %d", now, n, got, at-now)
				}
			}
			for s := uint32(0); s < Len; s++ {
				var last uint32
				w.Walk(s, func(n NodeID, rolls uint32) {
					if rolls < last || rolls == 0 {
						t.Fatalf("slot %d: node %d rolls %d after %d", s, n, rolls, last)
					}
					last = rolls
				})
			}
		}
	})
}
