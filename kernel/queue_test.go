package kernel

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func TestQueueTryRecvEmpty(t *testing.T) {
	q := NewQueue[int](4)

	_, ok := q.TryRecv()
	if ok {
		t.Fatalf("TryRecv() ok = true, want false")
	}
}

func TestQueueTrySendFull(t *testing.T) {
	const slots = 4
	q := NewQueue[int](slots)

	for i := 0; i < slots; i++ {
		if ok := q.TrySend(i); !ok {
			t.Fatalf("TrySend() ok = false at slot %d, want true", i)
		}
	}
	if ok := q.TrySend(99); ok {
		t.Fatalf("TrySend() ok = true when full, want false")
	}
	if got := q.Dropped(); got != 1 {
		t.Fatalf("Dropped() = %d, want 1", got)
	}
	if got := q.Len(); got != slots {
		t.Fatalf("Len() = %d, want %d", got, slots)
	}

	for i := 0; i < slots; i++ {
		v, ok := q.TryRecv()
		if !ok {
			t.Fatalf("TryRecv() ok = false at slot %d, want true", i)
		}
		if v != i {
			t.Fatalf("TryRecv() = %d, want %d", v, i)
		}
	}
}

func TestQueueMinimumCapacity(t *testing.T) {
	q := NewQueue[int](0)
	if got := q.Cap(); got != 1 {
		t.Fatalf("Cap() = %d, want 1", got)
	}
}

func TestQueueRecvCanceled(t *testing.T) {
	q := NewQueue[int](1)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := q.Recv(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("Recv() err = %v, want context.Canceled", err)
	}
}

func TestQueueRecvBlocksUntilSend(t *testing.T) {
	q := NewQueue[string](1)
	got := make(chan string, 1)
	go func() {
		v, err := q.Recv(context.Background())
		if err != nil {
			got <- err.Error()
			return
		}
		got <- v
	}()

	time.Sleep(5 * time.Millisecond)
	if !q.TrySend("tick") {
		t.Fatal("TrySend() ok = false, want true")
	}
	select {
	case v := <-got:
		if v != "tick" {
			t.Fatalf("Recv() = %q, want %q", v, "tick")
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for Recv")
	}
}

func TestQueueConcurrentProducers(t *testing.T) {
	const (
		producers = 4
		perProd   = 2_000
		total     = producers * perProd
	)

	q := NewQueue[int](16)

	start := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(producers)
	for producerID := 0; producerID < producers; producerID++ {
		go func(producerID int) {
			defer wg.Done()
			<-start
			for i := 0; i < perProd; i++ {
				id := producerID*perProd + i
				for !q.TrySend(id) {
					time.Sleep(time.Microsecond)
				}
			}
		}(producerID)
	}
	close(start)

	seen := make([]bool, total)
	ctx := context.Background()
	for i := 0; i < total; i++ {
		id, err := q.Recv(ctx)
		if err != nil {
			t.Fatalf("Recv() err = %v", err)
		}
		if id < 0 || id >= total {
			t.Fatalf("Recv() id = %d, want < %d", id, total)
		}
		if seen[id] {
			t.Fatalf("Recv() duplicate id %d", id)
		}
		seen[id] = true
	}

	wg.Wait()
	if got := q.Sent(); got != total {
		t.Fatalf("Sent() = %d, want %d", got, total)
	}
}
