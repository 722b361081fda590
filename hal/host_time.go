package hal

import (
	"time"

	"github.com/andres-erbsen/clock"
)

const defaultHz = 100

type hostTime struct {
	clk     clock.Clock
	hz      uint32
	tickDur time.Duration

	ch  chan uint64
	seq uint64

	last time.Time
	acc  time.Duration
}

func newHostTime(clk clock.Clock, hz uint32) *hostTime {
	if hz == 0 {
		hz = defaultHz
	}
	return &hostTime{
		clk:     clk,
		hz:      hz,
		tickDur: time.Second / time.Duration(hz),
		ch:      make(chan uint64, 1024),
	}
}

func (t *hostTime) Ticks() <-chan uint64 { return t.ch }
func (t *hostTime) Hz() uint32           { return t.hz }

// step publishes the ticks that elapsed on the clock since the last call.
// The first call publishes n ticks to start the stream.
func (t *hostTime) step(n uint64) {
	now := t.clk.Now()
	if t.last.IsZero() {
		t.last = now
		t.acc = 0
		t.stepN(n)
		return
	}

	t.acc += now.Sub(t.last)
	t.last = now

	ticks := uint64(t.acc / t.tickDur)
	if ticks == 0 {
		return
	}
	t.acc = t.acc % t.tickDur
	t.stepN(ticks)
}

// stepN advances the sequence by n. Values the consumer has no room for
// are skipped; the consumer sees the jump in the next value it reads.
func (t *hostTime) stepN(n uint64) {
	for i := uint64(0); i < n; i++ {
		t.seq++
		select {
		case t.ch <- t.seq:
		default:
		}
	}
}
