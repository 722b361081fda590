// Command swtmrsim runs a software timer script against a simulated
// multi-CPU system whose clock only advances when the script says so.
//
//	swtmrsim [-limit N] [-queue N] [-items N] [script]
//
// With no script the commands are read from stdin. Run "help" for the
// command list.
package main

import (
	"flag"
	"fmt"
	"io"
	"os"

	"swtimer/internal/buildinfo"
	"swtimer/kernel/swtmr"
)

func main() {
	var (
		cfg     swtmr.Config
		version bool
	)
	flag.IntVar(&cfg.Limit, "limit", 64, "Timer descriptor pool size.")
	flag.IntVar(&cfg.QueueSize, "queue", 0, "Per-CPU dispatch queue size (0 = pool size).")
	flag.IntVar(&cfg.HandlerItems, "items", 0, "Handler item pool size (0 = pool size).")
	flag.BoolVar(&version, "version", false, "Print version and exit.")
	flag.Parse()

	if version {
		fmt.Println(buildinfo.String())
		return
	}
	if err := run(cfg, flag.Arg(0), os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, "swtmrsim:", err)
		os.Exit(1)
	}
}

func run(cfg swtmr.Config, path string, out io.Writer) error {
	var in io.Reader = os.Stdin
	if path != "" && path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return fmt.Errorf("open script %q: %w", path, err)
		}
		defer f.Close()
		in = f
	}

	s, err := newSim(out, cfg)
	if err != nil {
		return err
	}
	return s.run(in)
}
