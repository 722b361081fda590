package kernel

import (
	"runtime"

	"go.uber.org/atomic"
)

// Spinlock is a busy-waiting lock for short critical sections that the
// tick path also enters. It must not be held across a blocking call.
type Spinlock struct {
	_      [0]func() // prevent accidental copying.
	locked atomic.Bool
}

// Lock spins until the lock is acquired.
func (l *Spinlock) Lock() {
	for !l.locked.CompareAndSwap(false, true) {
		runtime.Gosched()
	}
}

// TryLock acquires the lock if it is free.
func (l *Spinlock) TryLock() bool {
	return l.locked.CompareAndSwap(false, true)
}

// Unlock releases the lock. Unlocking a free lock panics.
func (l *Spinlock) Unlock() {
	if !l.locked.CompareAndSwap(true, false) {
		panic("kernel: unlock of unlocked spinlock")
	}
}
