package hal

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/andres-erbsen/clock"
)

// HeadlessConfig controls the host runner.
type HeadlessConfig struct {
	Hz    uint32
	Ticks uint64
}

// RunHeadless builds the system with newApp and drives its tick stream from
// the wall clock until ctx is done, cfg.Ticks ticks have been published or
// step fails.
func RunHeadless(ctx context.Context, newApp func(HAL) (func() error, error), cfg HeadlessConfig) error {
	return runHeadless(ctx, clock.New(), os.Stdout, newApp, cfg)
}

func runHeadless(ctx context.Context, clk clock.Clock, w io.Writer, newApp func(HAL) (func() error, error), cfg HeadlessConfig) error {
	if cfg.Hz == 0 {
		cfg.Hz = defaultHz
	}
	d := time.Second / time.Duration(cfg.Hz)
	if d <= 0 {
		return fmt.Errorf("invalid headless hz: %d", cfg.Hz)
	}

	h := newHost(clk, w, cfg.Hz)
	step, err := newApp(h)
	if err != nil {
		return err
	}

	t := clk.Ticker(d)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
			h.t.step(1)
			if step != nil {
				if err := step(); err != nil {
					return err
				}
			}
			if cfg.Ticks > 0 && h.t.seq >= cfg.Ticks {
				return nil
			}
		}
	}
}
