package kernel

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"

	"golang.org/x/sync/errgroup"
)

// maxTasks leaves room for a timer task and a helper task per CPU.
const maxTasks = 2*MaxCPUs + 8

// Priority orders tasks; lower is more urgent.
type Priority uint8

const (
	PriorityHighest Priority = 0
	PriorityLowest  Priority = 31
)

// ErrTooManyTasks is returned by Spawn once maxTasks tasks exist.
var ErrTooManyTasks = errors.New("kernel: task table full")

// ErrPinUnsupported may be returned by a Pinner that cannot pin on this
// platform; the task then runs unpinned.
var ErrPinUnsupported = errors.New("kernel: cpu pinning unsupported")

// Pinner binds the calling OS thread to a CPU.
type Pinner interface {
	Pin(cpu CPUID) error
}

// TaskConfig describes a task to spawn.
type TaskConfig struct {
	Name     string
	CPU      CPUID
	Priority Priority
	// Pinned locks the task to an OS thread bound to CPU.
	Pinned bool
}

// TaskInfo is a snapshot of a spawned task.
type TaskInfo struct {
	ID      int
	Config  TaskConfig
	Running bool
}

type taskState struct {
	cfg     TaskConfig
	running bool
}

// Tasks runs detached tasks that share one lifetime: the first task to
// fail cancels the context of the others.
type Tasks struct {
	g   *errgroup.Group
	ctx context.Context
	pin Pinner

	mu    sync.Mutex
	tasks [maxTasks]taskState
	count int
}

// NewTasks returns a task set bound to ctx. pin may be nil.
func NewTasks(ctx context.Context, pin Pinner) *Tasks {
	g, gctx := errgroup.WithContext(ctx)
	return &Tasks{g: g, ctx: gctx, pin: pin}
}

// Context returns the context tasks run under.
func (t *Tasks) Context() context.Context { return t.ctx }

// Spawn starts fn as a new task and returns its ID.
//
// Go has no goroutine priorities; Priority is recorded for introspection.
func (t *Tasks) Spawn(cfg TaskConfig, fn func(ctx context.Context) error) (int, error) {
	t.mu.Lock()
	if t.count >= maxTasks {
		t.mu.Unlock()
		return 0, fmt.Errorf("spawn %q: %w", cfg.Name, ErrTooManyTasks)
	}
	id := t.count
	t.count++
	t.tasks[id] = taskState{cfg: cfg, running: true}
	t.mu.Unlock()

	t.g.Go(func() error {
		defer t.exited(id)
		if cfg.Pinned && t.pin != nil {
			runtime.LockOSThread()
			defer runtime.UnlockOSThread()
			if err := t.pin.Pin(cfg.CPU); err != nil && !errors.Is(err, ErrPinUnsupported) {
				return fmt.Errorf("task %q: pin cpu %d: %w", cfg.Name, cfg.CPU, err)
			}
		}
		return fn(t.ctx)
	})
	return id, nil
}

func (t *Tasks) exited(id int) {
	t.mu.Lock()
	t.tasks[id].running = false
	t.mu.Unlock()
}

// List returns a snapshot of all spawned tasks.
func (t *Tasks) List() []TaskInfo {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]TaskInfo, 0, t.count)
	for i := 0; i < t.count; i++ {
		out = append(out, TaskInfo{ID: i, Config: t.tasks[i].cfg, Running: t.tasks[i].running})
	}
	return out
}

// Wait blocks until every task has returned and reports the first error.
func (t *Tasks) Wait() error {
	return t.g.Wait()
}
