package swtmr

import "errors"

var (
	ErrInvalidInterval = errors.New("swtmr: invalid interval")
	ErrInvalidMode     = errors.New("swtmr: invalid mode")
	ErrNullHandler     = errors.New("swtmr: nil handler")
	ErrNoMemory        = errors.New("swtmr: out of memory")
	ErrInvalidID       = errors.New("swtmr: invalid timer id")
	ErrNotCreated      = errors.New("swtmr: timer not created")
	ErrNotStarted      = errors.New("swtmr: timer not started")
	// ErrInvalidState covers any other state machine violation, including a
	// timer whose wheel link was found corrupted.
	ErrInvalidState = errors.New("swtmr: invalid timer state")
)
