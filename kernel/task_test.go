package kernel

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
)

type recordPinner struct {
	mu   sync.Mutex
	cpus []CPUID
	err  error
}

func (p *recordPinner) Pin(cpu CPUID) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cpus = append(p.cpus, cpu)
	return p.err
}

func TestTasksSpawnPinsAndWaits(t *testing.T) {
	pin := &recordPinner{}
	tasks := NewTasks(context.Background(), pin)

	var mu sync.Mutex
	ran := map[string]bool{}
	for cpu := CPUID(0); cpu < 2; cpu++ {
		name := fmt.Sprintf("worker%d", cpu)
		_, err := tasks.Spawn(TaskConfig{Name: name, CPU: cpu, Pinned: true}, func(ctx context.Context) error {
			mu.Lock()
			ran[name] = true
			mu.Unlock()
			return nil
		})
		if err != nil {
			t.Fatalf("Spawn() err = %v", err)
		}
	}
	_, _ = tasks.Spawn(TaskConfig{Name: "free"}, func(ctx context.Context) error { return nil })

	if err := tasks.Wait(); err != nil {
		t.Fatalf("Wait() err = %v", err)
	}
	if !ran["worker0"] || !ran["worker1"] {
		t.Fatalf("ran = %v, want both workers", ran)
	}
	if len(pin.cpus) != 2 {
		t.Fatalf("pinned %v, want two pinned tasks", pin.cpus)
	}
	for _, ti := range tasks.List() {
		if ti.Running {
			t.Fatalf("task %q still running after Wait", ti.Config.Name)
		}
	}
}

func TestTasksFailureCancelsOthers(t *testing.T) {
	tasks := NewTasks(context.Background(), nil)
	boom := errors.New("boom")

	_, _ = tasks.Spawn(TaskConfig{Name: "waiter"}, func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	_, _ = tasks.Spawn(TaskConfig{Name: "failer"}, func(ctx context.Context) error {
		return boom
	})

	if err := tasks.Wait(); !errors.Is(err, boom) {
		t.Fatalf("Wait() err = %v, want boom", err)
	}
}

func TestTasksPinFailure(t *testing.T) {
	pin := &recordPinner{err: errors.New("no such cpu")}
	tasks := NewTasks(context.Background(), pin)
	_, _ = tasks.Spawn(TaskConfig{Name: "pinned", CPU: 3, Pinned: true}, func(ctx context.Context) error {
		t.Error("task body ran despite pin failure")
		return nil
	})
	if err := tasks.Wait(); err == nil {
		t.Fatal("Wait() err = nil, want pin error")
	}

	pin = &recordPinner{err: ErrPinUnsupported}
	tasks = NewTasks(context.Background(), pin)
	ran := false
	_, _ = tasks.Spawn(TaskConfig{Name: "unpinned", Pinned: true}, func(ctx context.Context) error {
		ran = true
		return nil
	})
	if err := tasks.Wait(); err != nil || !ran {
		t.Fatalf("Wait() err = %v ran = %v, want nil true", err, ran)
	}
}

func TestTasksTableFull(t *testing.T) {
	tasks := NewTasks(context.Background(), nil)
	for i := 0; i < maxTasks; i++ {
		if _, err := tasks.Spawn(TaskConfig{Name: "t"}, func(ctx context.Context) error { return nil }); err != nil {
			t.Fatalf("Spawn(%d) err = %v", i, err)
		}
	}
	if _, err := tasks.Spawn(TaskConfig{Name: "extra"}, func(ctx context.Context) error { return nil }); !errors.Is(err, ErrTooManyTasks) {
		t.Fatalf("Spawn() err = %v, want ErrTooManyTasks", err)
	}
	_ = tasks.Wait()
}
