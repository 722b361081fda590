package app

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/atomic"

	"swtimer/hal"
	"swtimer/kernel"
	"swtimer/kernel/sortlink"
	"swtimer/kernel/swtmr"
)

var errTasksExited = errors.New("app: tasks exited")

type Config struct {
	CPUs      int
	Limit     int
	QueueSize int
	// Heartbeat starts one periodic timer per CPU that logs every
	// Heartbeat ticks. Zero disables it.
	Heartbeat uint32
}

// System wires the software timers to a HAL: the HAL tick stream drives
// every CPU's wheel and one timer task per CPU runs handlers.
type System struct {
	h      hal.HAL
	cpus   *kernel.CPUs
	timers *swtmr.Timers
	tasks  *kernel.Tasks

	seq   uint64
	beats atomic.Uint64
	done  chan error
}

// New builds and starts a system. Its tasks stop when ctx is done.
func New(ctx context.Context, h hal.HAL, cfg Config) (*System, error) {
	installPanicHandler(h)

	cpus := kernel.NewCPUs(cfg.CPUs, func() kernel.CPUID {
		return kernel.CPUID(h.CPU().Current())
	})
	s := &System{
		h:    h,
		cpus: cpus,
		timers: swtmr.New(swtmr.Config{
			CPUs:      cpus,
			Limit:     cfg.Limit,
			QueueSize: cfg.QueueSize,
			Logger:    h.Logger(),
		}),
		done: make(chan error, 1),
	}
	s.tasks = kernel.NewTasks(ctx, pinner{h: h})

	if err := s.timers.StartTasks(s.tasks); err != nil {
		return nil, err
	}
	if _, err := s.tasks.Spawn(kernel.TaskConfig{Name: "tick", Priority: kernel.PriorityHighest}, s.tickTask); err != nil {
		return nil, err
	}
	if cfg.Heartbeat > 0 {
		if err := s.startHeartbeats(cfg.Heartbeat); err != nil {
			return nil, err
		}
	}

	go func() { s.done <- s.tasks.Wait() }()
	return s, nil
}

// Timers returns the timer subsystem.
func (s *System) Timers() *swtmr.Timers { return s.timers }

// CPUs returns the CPU description the system runs on.
func (s *System) CPUs() *kernel.CPUs { return s.cpus }

// Beats returns the number of heartbeat handler runs.
func (s *System) Beats() uint64 { return s.beats.Load() }

// Step reports a task failure to the host runner.
func (s *System) Step() error {
	select {
	case err := <-s.done:
		s.done <- err
		if err == nil {
			err = errTasksExited
		}
		return err
	default:
		return nil
	}
}

// Wait blocks until every task has returned.
func (s *System) Wait() error {
	err := <-s.done
	s.done <- err
	return err
}

func (s *System) tickTask(ctx context.Context) error {
	ch := s.h.Time().Ticks()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case seq, ok := <-ch:
			if !ok {
				return nil
			}
			s.TickTo(seq)
		}
	}
}

// TickTo advances every CPU to tick seq. Sequence gaps are caught up in
// one step when no timer expires inside the gap.
func (s *System) TickTo(seq uint64) {
	if seq <= s.seq {
		return
	}
	d := seq - s.seq
	s.seq = seq
	for i := 0; i < s.cpus.Count(); i++ {
		cpu := kernel.CPUID(i)
		for left := d; left > 0; {
			n := left
			if n > sortlink.MaxTicks {
				n = sortlink.MaxTicks
			}
			s.advance(cpu, uint32(n))
			left -= n
		}
	}
}

func (s *System) advance(cpu kernel.CPUID, d uint32) {
	if d > 1 {
		if next, ok := s.timers.NextExpire(cpu); !ok || next >= d {
			s.timers.UpdateExpire(cpu, d)
			d = 1
		}
	}
	for i := uint32(0); i < d; i++ {
		s.timers.ScanCPU(cpu)
	}
}

// startHeartbeats arms one periodic timer per CPU from a task pinned to
// that CPU so each timer lands on its own wheel.
func (s *System) startHeartbeats(interval uint32) error {
	for i := 0; i < s.cpus.Count(); i++ {
		cpu := kernel.CPUID(i)
		cfg := kernel.TaskConfig{
			Name:     fmt.Sprintf("heartbeat/%d", cpu),
			CPU:      cpu,
			Priority: kernel.PriorityLowest,
			Pinned:   true,
		}
		if _, err := s.tasks.Spawn(cfg, func(context.Context) error {
			id, err := s.timers.Create(interval, swtmr.ModePeriodic, s.heartbeat, cpu)
			if err != nil {
				return fmt.Errorf("heartbeat cpu %d: %w", cpu, err)
			}
			return s.timers.Start(id)
		}); err != nil {
			return err
		}
	}
	return nil
}

func (s *System) heartbeat(arg any) {
	n := s.beats.Inc()
	if l := s.h.Logger(); l != nil {
		l.WriteLineString(fmt.Sprintf("heartbeat: cpu=%v beat=%d", arg, n))
	}
}

type pinner struct {
	h hal.HAL
}

// Pin falls back to running unpinned when the host refuses.
func (p pinner) Pin(cpu kernel.CPUID) error {
	err := p.h.CPU().Pin(int(cpu))
	if err == nil {
		return nil
	}
	if !errors.Is(err, hal.ErrNotImplemented) {
		if l := p.h.Logger(); l != nil {
			l.WriteLineString(fmt.Sprintf("pin cpu %d: %v", cpu, err))
		}
	}
	return fmt.Errorf("%w: %v", kernel.ErrPinUnsupported, err)
}
