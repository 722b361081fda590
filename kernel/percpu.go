package kernel

// MaxCPUs is the largest CPU count a system can be configured with.
const MaxCPUs = 32

// CPUID identifies a CPU.
type CPUID uint8

// CPUs describes the CPUs of a system and how to find the calling one.
//
// Subsystems keep their own per-CPU state in arrays indexed by CPUID and
// receive a *CPUs by reference instead of reaching for globals.
type CPUs struct {
	n       int
	current func() CPUID
}

// NewCPUs returns a description of n CPUs (clamped to 1..MaxCPUs).
//
// current reports the calling CPU; nil means CPU 0 (uniprocessor).
func NewCPUs(n int, current func() CPUID) *CPUs {
	if n < 1 {
		n = 1
	}
	if n > MaxCPUs {
		n = MaxCPUs
	}
	return &CPUs{n: n, current: current}
}

// Count returns the number of CPUs.
func (c *CPUs) Count() int { return c.n }

// Valid reports whether id names one of the CPUs.
func (c *CPUs) Valid(id CPUID) bool { return int(id) < c.n }

// Current returns the calling CPU. Out-of-range answers fold into range.
func (c *CPUs) Current() CPUID {
	if c.current == nil {
		return 0
	}
	id := c.current()
	if int(id) >= c.n {
		id = CPUID(int(id) % c.n)
	}
	return id
}

// TicksToMs converts ticks at hz ticks per second to milliseconds.
func TicksToMs(ticks uint64, hz uint32) uint64 {
	if hz == 0 {
		return 0
	}
	return ticks * 1000 / uint64(hz)
}

// MsToTicks converts milliseconds to ticks at hz ticks per second, rounding down.
func MsToTicks(ms uint64, hz uint32) uint64 {
	return ms * uint64(hz) / 1000
}
