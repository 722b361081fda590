package hal

import "errors"

// Logger writes newline-delimited log lines.
type Logger interface {
	WriteLineString(s string)
	WriteLineBytes(b []byte)
}

var ErrNotImplemented = errors.New("not implemented")

// Time provides a base tick stream.
//
// Each value is a tick sequence number. A consumer that falls behind sees
// gaps in the sequence rather than a backlog; software timers live above.
type Time interface {
	Ticks() <-chan uint64
	// Hz is the nominal tick rate.
	Hz() uint32
}

// CPU reports and controls which processor the calling thread runs on.
type CPU interface {
	// Count is the number of processors the platform offers.
	Count() int
	// Current returns the processor of the calling thread.
	Current() int
	// Pin binds the calling OS thread to cpu. It returns ErrNotImplemented
	// where the platform cannot.
	Pin(cpu int) error
}

// HAL provides the only contact point between the OS and the outside world.
type HAL interface {
	Logger() Logger
	Time() Time
	CPU() CPU
}
