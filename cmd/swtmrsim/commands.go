package main

import (
	"fmt"
	"strconv"

	"swtimer/kernel"
	"swtimer/kernel/swtmr"
)

func registerCommands(r *registry) error {
	for _, cmd := range []command{
		{Name: "help", Usage: "help", Desc: "List commands.", MaxArgs: 0, Run: cmdHelp},
		{Name: "cpus", Usage: "cpus N", Desc: "Reset the system with N CPUs.", MinArgs: 1, MaxArgs: 1, Run: cmdCPUs},
		{Name: "create", Usage: "create NAME INTERVAL MODE [OWNER]", Desc: "Create a timer (mode once, periodic or no_self_delete).", MinArgs: 3, MaxArgs: 4, Run: cmdCreate},
		{Name: "start", Usage: "start NAME [CPU]", Desc: "Start or restart a timer on CPU (default 0).", MinArgs: 1, MaxArgs: 2, Run: cmdStart},
		{Name: "stop", Usage: "stop NAME", Desc: "Stop a timer.", MinArgs: 1, MaxArgs: 1, Run: cmdStop},
		{Name: "delete", Aliases: []string{"rm"}, Usage: "delete NAME", Desc: "Delete a timer.", MinArgs: 1, MaxArgs: 1, Run: cmdDelete},
		{Name: "time", Usage: "time NAME", Desc: "Print ticks until a timer fires.", MinArgs: 1, MaxArgs: 1, Run: cmdTime},
		{Name: "info", Usage: "info NAME", Desc: "Print a timer snapshot.", MinArgs: 1, MaxArgs: 1, Run: cmdInfo},
		{Name: "tick", Usage: "tick [N] [CPU]", Desc: "Advance N ticks on CPU, or on every CPU.", MaxArgs: 2, Run: cmdTick},
		{Name: "idle", Usage: "idle CPU", Desc: "Sleep CPU until its next timer fires.", MinArgs: 1, MaxArgs: 1, Run: cmdIdle},
		{Name: "recycle", Usage: "recycle OWNER", Desc: "Delete every timer of a process.", MinArgs: 1, MaxArgs: 1, Run: cmdRecycle},
		{Name: "stats", Usage: "stats", Desc: "Print counters.", MaxArgs: 0, Run: cmdStats},
		{Name: "dump", Usage: "dump CPU", Desc: "List ticking timers of CPU in wheel order.", MinArgs: 1, MaxArgs: 1, Run: cmdDump},
	} {
		if err := r.register(cmd); err != nil {
			return err
		}
	}
	return nil
}

func cmdHelp(s *sim, _ []string) error {
	for _, name := range s.reg.names() {
		cmd, _ := s.reg.resolve(name)
		s.printf("%-36s %s\n", cmd.Usage, cmd.Desc)
	}
	return nil
}

func cmdCPUs(s *sim, args []string) error {
	n, err := strconv.Atoi(args[0])
	if err != nil || n < 1 || n > kernel.MaxCPUs {
		return fmt.Errorf("%w: cpus %q", errBadArg, args[0])
	}
	s.reset(n)
	return nil
}

func cmdCreate(s *sim, args []string) error {
	name := args[0]
	interval, err := parseUint32("interval", args[1])
	if err != nil {
		return err
	}
	mode, err := parseMode(args[2])
	if err != nil {
		return err
	}
	s.pid = 0
	if len(args) == 4 {
		owner, err := parseUint32("owner", args[3])
		if err != nil {
			return err
		}
		s.pid = swtmr.ProcessID(owner)
	}

	id, err := s.timers.Create(interval, mode, s.fire, name)
	if err != nil {
		s.report("create", name, err)
		return nil
	}
	s.names[name] = id
	s.printf("create %s id=%#x\n", name, uint32(id))
	return nil
}

func cmdStart(s *sim, args []string) error {
	id, err := s.timer(args[0])
	if err != nil {
		return err
	}
	s.cur = 0
	if len(args) == 2 {
		if s.cur, err = s.cpuArg(args[1]); err != nil {
			return err
		}
	}
	if err := s.timers.Start(id); err != nil {
		s.report("start", args[0], err)
	}
	return nil
}

func cmdStop(s *sim, args []string) error {
	id, err := s.timer(args[0])
	if err != nil {
		return err
	}
	if err := s.timers.Stop(id); err != nil {
		s.report("stop", args[0], err)
	}
	return nil
}

func cmdDelete(s *sim, args []string) error {
	id, err := s.timer(args[0])
	if err != nil {
		return err
	}
	if err := s.timers.Delete(id); err != nil {
		s.report("delete", args[0], err)
	}
	return nil
}

func cmdTime(s *sim, args []string) error {
	id, err := s.timer(args[0])
	if err != nil {
		return err
	}
	ticks, err := s.timers.TimeGet(id)
	if err != nil {
		s.report("time", args[0], err)
		return nil
	}
	s.printf("time %s remaining=%d\n", args[0], ticks)
	return nil
}

func cmdInfo(s *sim, args []string) error {
	id, err := s.timer(args[0])
	if err != nil {
		return err
	}
	info, err := s.timers.Info(id)
	if err != nil {
		s.report("info", args[0], err)
		return nil
	}
	s.printf("info %s id=%#x mode=%v state=%v interval=%d overrun=%d cpu=%d owner=%d remaining=%d\n",
		args[0], uint32(info.ID), info.Mode, info.State, info.Interval, info.Overrun, info.CPU, info.Owner, info.Remaining)
	return nil
}

func cmdTick(s *sim, args []string) error {
	n := uint32(1)
	if len(args) > 0 {
		var err error
		if n, err = parseUint32("count", args[0]); err != nil {
			return err
		}
	}
	if len(args) == 2 {
		cpu, err := s.cpuArg(args[1])
		if err != nil {
			return err
		}
		for i := uint32(0); i < n; i++ {
			s.scan(cpu)
		}
		return nil
	}
	for i := uint32(0); i < n; i++ {
		for c := 0; c < s.cpus.Count(); c++ {
			s.scan(kernel.CPUID(c))
		}
	}
	return nil
}

func cmdIdle(s *sim, args []string) error {
	cpu, err := s.cpuArg(args[0])
	if err != nil {
		return err
	}
	next, ok := s.timers.NextExpire(cpu)
	if !ok {
		s.printf("idle cpu=%d: no timers\n", cpu)
		return nil
	}
	s.printf("idle cpu=%d slept=%d\n", cpu, next)
	s.timers.UpdateExpire(cpu, next)
	s.ticks[cpu] += uint64(next - 1)
	s.scan(cpu)
	return nil
}

func cmdRecycle(s *sim, args []string) error {
	owner, err := parseUint32("owner", args[0])
	if err != nil {
		return err
	}
	n := s.timers.RecycleOwnedBy(swtmr.ProcessID(owner))
	s.printf("recycle owner=%d deleted=%d\n", owner, n)
	return nil
}

func cmdStats(s *sim, _ []string) error {
	st := s.timers.Stats()
	s.printf("stats created=%d fired=%d dispatched=%d dropped=%d no_item=%d corrupt=%d in_use=%d\n",
		st.Created, st.Fired, st.Dispatched, st.Dropped, st.NoHandlerItem, st.CorruptLinks, st.InUse)
	return nil
}

func cmdDump(s *sim, args []string) error {
	cpu, err := s.cpuArg(args[0])
	if err != nil {
		return err
	}
	s.printf("dump cpu=%d tick=%d\n", cpu, s.ticks[cpu])
	s.timers.Walk(cpu, func(id swtmr.TimerID, remaining uint32) {
		s.printf("  %s remaining=%d\n", s.nameOf(id), remaining)
	})
	return nil
}
