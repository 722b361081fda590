package swtmr

import (
	"context"
	"fmt"

	"swtimer/kernel"
)

// TaskName returns the name of the timer task of cpu.
func TaskName(cpu kernel.CPUID) string {
	return fmt.Sprintf("swtmr/%d", cpu)
}

// Run is the timer task body for cpu: it receives dispatched handler items
// and invokes them until ctx is done.
func (t *Timers) Run(ctx context.Context, cpu kernel.CPUID) error {
	if !t.cpus.Valid(cpu) {
		return fmt.Errorf("swtmr: task for invalid cpu %d", cpu)
	}
	q := t.percpu[cpu].queue
	name := TaskName(cpu)
	for {
		b, err := q.Recv(ctx)
		if err != nil {
			return err
		}
		t.invoke(name, cpu, b)
	}
}

// Drain invokes every handler item queued on cpu without blocking and
// returns how many ran. It stands in for the timer task when the caller
// drives time by hand.
func (t *Timers) Drain(cpu kernel.CPUID) int {
	if !t.cpus.Valid(cpu) {
		return 0
	}
	q := t.percpu[cpu].queue
	name := TaskName(cpu)
	n := 0
	for {
		b, ok := q.TryRecv()
		if !ok {
			return n
		}
		t.invoke(name, cpu, b)
		n++
	}
}

func (t *Timers) invoke(name string, cpu kernel.CPUID, b kernel.Block) {
	item := *t.items.Get(b)
	defer func() {
		if err := t.items.Free(b); err != nil {
			t.logf("swtmr: %s: %v", name, err)
		}
	}()
	if item.handler == nil {
		return
	}
	if kernel.Guard(name, cpu, func() { item.handler(item.arg) }) {
		t.logf("swtmr: %s: handler of timer %d panicked", name, item.id)
	}
}

// StartTasks spawns one pinned timer task per CPU at the highest priority.
func (t *Timers) StartTasks(tasks *kernel.Tasks) error {
	for i := 0; i < t.cpus.Count(); i++ {
		cpu := kernel.CPUID(i)
		cfg := kernel.TaskConfig{
			Name:     TaskName(cpu),
			CPU:      cpu,
			Priority: kernel.PriorityHighest,
			Pinned:   true,
		}
		if _, err := tasks.Spawn(cfg, func(ctx context.Context) error {
			return t.Run(ctx, cpu)
		}); err != nil {
			return fmt.Errorf("swtmr: start tasks: %w", err)
		}
	}
	return nil
}
