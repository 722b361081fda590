package hal

import (
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/andres-erbsen/clock"
)

type hostHAL struct {
	logger *hostLogger
	t      *hostTime
	cpu    hostCPU
}

// New returns a host HAL ticking at hz against the wall clock.
func New(hz uint32) HAL {
	return newHost(clock.New(), os.Stdout, hz)
}

func newHost(clk clock.Clock, w io.Writer, hz uint32) *hostHAL {
	return &hostHAL{
		logger: &hostLogger{w: w},
		t:      newHostTime(clk, hz),
	}
}

func (h *hostHAL) Logger() Logger { return h.logger }
func (h *hostHAL) Time() Time     { return h.t }
func (h *hostHAL) CPU() CPU       { return h.cpu }

// NewLogger returns a Logger writing lines to w.
func NewLogger(w io.Writer) Logger { return &hostLogger{w: w} }

type hostLogger struct {
	mu sync.Mutex
	w  io.Writer
}

func (l *hostLogger) WriteLineString(s string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	fmt.Fprintln(l.w, s)
}

func (l *hostLogger) WriteLineBytes(b []byte) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.w.Write(b)
	l.w.Write([]byte{'\n'})
}
