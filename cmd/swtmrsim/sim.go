package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/google/shlex"

	"swtimer/hal"
	"swtimer/kernel"
	"swtimer/kernel/swtmr"
)

var errBadArg = errors.New("bad argument")

// sim drives a timer subsystem from a script. Time only moves on tick and
// idle commands, and each CPU's handlers run right after its scan, so a
// script always produces the same output.
type sim struct {
	out  io.Writer
	base swtmr.Config
	reg  *registry

	cur    kernel.CPUID
	pid    swtmr.ProcessID
	cpus   *kernel.CPUs
	timers *swtmr.Timers
	ticks  []uint64
	names  map[string]swtmr.TimerID
	// firing is the CPU whose handlers are being drained.
	firing kernel.CPUID

	line int
}

func newSim(out io.Writer, cfg swtmr.Config) (*sim, error) {
	s := &sim{out: out, base: cfg, reg: newRegistry()}
	if err := registerCommands(s.reg); err != nil {
		return nil, err
	}
	s.reset(1)
	return s, nil
}

func (s *sim) reset(n int) {
	s.cur = 0
	s.pid = 0
	s.cpus = kernel.NewCPUs(n, func() kernel.CPUID { return s.cur })

	cfg := s.base
	cfg.CPUs = s.cpus
	cfg.CurrentProcess = func() swtmr.ProcessID { return s.pid }
	cfg.Logger = hal.NewLogger(s.out)
	s.timers = swtmr.New(cfg)
	s.ticks = make([]uint64, s.cpus.Count())
	s.names = make(map[string]swtmr.TimerID)
}

func (s *sim) printf(format string, args ...any) {
	fmt.Fprintf(s.out, format, args...)
}

// report prints a failed timer operation. Such failures are part of a
// script's output rather than fatal.
func (s *sim) report(op, name string, err error) {
	s.printf("%s %s: %v\n", op, name, err)
}

// run executes a script. It stops at the first malformed line.
func (s *sim) run(r io.Reader) error {
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		s.line++
		if err := s.exec(sc.Text()); err != nil {
			return fmt.Errorf("line %d: %w", s.line, err)
		}
	}
	return sc.Err()
}

func (s *sim) exec(line string) error {
	args, err := shlex.Split(line)
	if err != nil {
		return fmt.Errorf("parse %q: %w", line, err)
	}
	if len(args) == 0 {
		return nil
	}
	cmd, ok := s.reg.resolve(args[0])
	if !ok {
		return fmt.Errorf("unknown command: %s", args[0])
	}
	args = args[1:]
	if len(args) < cmd.MinArgs || (cmd.MaxArgs >= 0 && len(args) > cmd.MaxArgs) {
		return fmt.Errorf("usage: %s", cmd.Usage)
	}
	if err := cmd.Run(s, args); err != nil {
		if errors.Is(err, errBadArg) {
			return fmt.Errorf("%w; usage: %s", err, cmd.Usage)
		}
		return err
	}
	return nil
}

func (s *sim) cpuArg(arg string) (kernel.CPUID, error) {
	n, err := strconv.ParseUint(arg, 10, 8)
	if err != nil || !s.cpus.Valid(kernel.CPUID(n)) {
		return 0, fmt.Errorf("%w: cpu %q of %d", errBadArg, arg, s.cpus.Count())
	}
	return kernel.CPUID(n), nil
}

func (s *sim) timer(name string) (swtmr.TimerID, error) {
	id, ok := s.names[name]
	if !ok {
		return 0, fmt.Errorf("no timer named %q", name)
	}
	return id, nil
}

func (s *sim) nameOf(id swtmr.TimerID) string {
	for name, v := range s.names {
		if v == id {
			return name
		}
	}
	return fmt.Sprintf("#%d", id)
}

// scan delivers one tick to cpu and runs its dispatched handlers.
func (s *sim) scan(cpu kernel.CPUID) {
	s.ticks[cpu]++
	s.timers.ScanCPU(cpu)
	s.drain(cpu)
}

func (s *sim) drain(cpu kernel.CPUID) {
	s.firing = cpu
	s.timers.Drain(cpu)
}

func (s *sim) fire(arg any) {
	s.printf("fire %v tick=%d cpu=%d\n", arg, s.ticks[s.firing], s.firing)
}

func parseMode(v string) (swtmr.Mode, error) {
	for _, m := range []swtmr.Mode{swtmr.ModeOnce, swtmr.ModePeriodic, swtmr.ModeNoSelfDelete} {
		if strings.EqualFold(v, m.String()) {
			return m, nil
		}
	}
	return 0, fmt.Errorf("%w: mode %q", errBadArg, v)
}

func parseUint32(what, v string) (uint32, error) {
	n, err := strconv.ParseUint(v, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("%w: %s %q", errBadArg, what, v)
	}
	return uint32(n), nil
}
