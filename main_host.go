package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"runtime"

	"swtimer/app"
	"swtimer/hal"
	"swtimer/internal/buildinfo"
)

func main() {
	var (
		hcfg    hal.HeadlessConfig
		cfg     app.Config
		hz      uint
		beat    uint
		version bool
	)
	flag.IntVar(&cfg.CPUs, "cpus", runtime.NumCPU(), "Number of CPUs, each with its own timing wheel and timer task.")
	flag.IntVar(&cfg.Limit, "limit", 0, "Timer descriptor pool size (0 = default).")
	flag.IntVar(&cfg.QueueSize, "queue", 0, "Per-CPU dispatch queue size (0 = pool size).")
	flag.UintVar(&hz, "hz", 100, "Tick rate.")
	flag.Uint64Var(&hcfg.Ticks, "ticks", 0, "Stop after N ticks (0 = run forever).")
	flag.UintVar(&beat, "heartbeat", 100, "Heartbeat timer interval in ticks (0 = off).")
	flag.BoolVar(&version, "version", false, "Print version and exit.")
	flag.Parse()

	if version {
		fmt.Println(buildinfo.String())
		return
	}
	hcfg.Hz = uint32(hz)
	cfg.Heartbeat = uint32(beat)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	var sys *app.System
	err := hal.RunHeadless(ctx, func(h hal.HAL) (func() error, error) {
		h.Logger().WriteLineString(fmt.Sprintf("swtimer %s: %d cpus at %d Hz", buildinfo.Short(), cfg.CPUs, hcfg.Hz))
		s, err := app.New(ctx, h, cfg)
		if err != nil {
			return nil, err
		}
		sys = s
		return s.Step, nil
	}, hcfg)
	if sys != nil {
		st := sys.Timers().Stats()
		fmt.Printf("fired=%d dispatched=%d dropped=%d beats=%d\n", st.Fired, st.Dispatched, st.Dropped, sys.Beats())
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
