package kernel

import (
	"errors"
	"sync"
	"testing"
)

type testItem struct {
	name string
	arg  int
}

func TestMemboxExhaustion(t *testing.T) {
	m := NewMembox[testItem](2)

	b0, err := m.Alloc()
	if err != nil {
		t.Fatalf("Alloc() err = %v", err)
	}
	b1, err := m.Alloc()
	if err != nil {
		t.Fatalf("Alloc() err = %v", err)
	}
	if b0 == b1 {
		t.Fatalf("Alloc() returned block %d twice", b0)
	}
	if _, err := m.Alloc(); !errors.Is(err, ErrNoMemory) {
		t.Fatalf("Alloc() on empty pool err = %v, want ErrNoMemory", err)
	}
	if got := m.Failed(); got != 1 {
		t.Fatalf("Failed() = %d, want 1", got)
	}

	if err := m.Free(b0); err != nil {
		t.Fatalf("Free() err = %v", err)
	}
	b2, err := m.Alloc()
	if err != nil {
		t.Fatalf("Alloc() after Free err = %v", err)
	}
	if b2 != b0 {
		t.Fatalf("Alloc() = %d, want reused block %d", b2, b0)
	}
}

func TestMemboxFreeZeroesAndRejectsDoubleFree(t *testing.T) {
	m := NewMembox[testItem](1)
	b, err := m.Alloc()
	if err != nil {
		t.Fatalf("Alloc() err = %v", err)
	}
	*m.Get(b) = testItem{name: "x", arg: 7}

	if err := m.Free(b); err != nil {
		t.Fatalf("Free() err = %v", err)
	}
	if got := *m.Get(b); got != (testItem{}) {
		t.Fatalf("freed block = %+v, want zero", got)
	}
	if err := m.Free(b); err == nil {
		t.Fatal("second Free() err = nil, want error")
	}
	if err := m.Free(5); err == nil {
		t.Fatal("Free(out of range) err = nil, want error")
	}
	if got := m.InUse(); got != 0 {
		t.Fatalf("InUse() = %d, want 0", got)
	}
}

func TestMemboxConcurrentAllocFree(t *testing.T) {
	const (
		blocks  = 8
		workers = 4
		rounds  = 500
	)
	m := NewMembox[testItem](blocks)

	var wg sync.WaitGroup
	wg.Add(workers)
	for w := 0; w < workers; w++ {
		go func(w int) {
			defer wg.Done()
			for i := 0; i < rounds; i++ {
				b, err := m.Alloc()
				if err != nil {
					continue
				}
				*m.Get(b) = testItem{arg: w}
				if err := m.Free(b); err != nil {
					t.Errorf("Free() err = %v", err)
					return
				}
			}
		}(w)
	}
	wg.Wait()

	if got := m.InUse(); got != 0 {
		t.Fatalf("InUse() = %d, want 0", got)
	}
}
