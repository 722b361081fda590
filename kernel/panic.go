package kernel

import (
	"runtime/debug"

	"go.uber.org/atomic"
)

// PanicInfo contains details about a panic recovered in a task.
type PanicInfo struct {
	Task  string
	CPU   CPUID
	Value any
	Stack []byte
}

var (
	panicCount   atomic.Uint64
	panicHandler atomic.Value // func(PanicInfo)
)

// SetPanicHandler installs a process-wide handler for recovered panics.
//
// The handler runs on the panicking task. It must not panic.
func SetPanicHandler(fn func(PanicInfo)) {
	panicHandler.Store(fn)
}

// PanicCount returns the number of panics recovered by Guard.
func PanicCount() uint64 {
	return panicCount.Load()
}

// Guard runs fn and recovers a panic from it, reporting the panic to the
// installed handler. It returns true if fn panicked.
func Guard(task string, cpu CPUID, fn func()) (panicked bool) {
	defer func() {
		v := recover()
		if v == nil {
			return
		}
		panicked = true
		panicCount.Inc()
		info := PanicInfo{Task: task, CPU: cpu, Value: v, Stack: debug.Stack()}
		if h := panicHandler.Load(); h != nil {
			if fn, ok := h.(func(PanicInfo)); ok && fn != nil {
				fn(info)
			}
		}
	}()
	fn()
	return false
}
