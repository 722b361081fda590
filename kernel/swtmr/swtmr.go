// Package swtmr implements software timers on top of per-CPU timing wheels.
//
// Expiry is detected on the tick path (Scan), which must never block. The
// tick path hands each expired timer's handler to the timer task of its
// CPU through a bounded queue; handlers only ever run in that task.
package swtmr

import (
	"fmt"

	"go.uber.org/atomic"

	"swtimer/hal"
	"swtimer/kernel"
	"swtimer/kernel/sortlink"
)

// DefaultLimit is the descriptor pool size used when Config.Limit is 0.
const DefaultLimit = 1024

const (
	idIndexBits = 16
	idIndexMask = 1<<idIndexBits - 1

	// MaxLimit is the largest descriptor pool a TimerID can address.
	MaxLimit = 1 << idIndexBits
)

const noIndex = ^uint32(0)

// Mode selects what happens when a timer fires.
type Mode uint8

const (
	// ModeOnce fires once and then deletes the timer.
	ModeOnce Mode = iota
	// ModePeriodic re-arms the timer with its interval after every firing.
	ModePeriodic
	// ModeNoSelfDelete fires once and returns the timer to Created.
	ModeNoSelfDelete
)

func (m Mode) String() string {
	switch m {
	case ModeOnce:
		return "once"
	case ModePeriodic:
		return "periodic"
	case ModeNoSelfDelete:
		return "no_self_delete"
	default:
		return "unknown"
	}
}

// State is the lifecycle state of a timer.
type State uint8

const (
	StateUnused State = iota
	StateCreated
	StateTicking
)

func (s State) String() string {
	switch s {
	case StateUnused:
		return "unused"
	case StateCreated:
		return "created"
	case StateTicking:
		return "ticking"
	default:
		return "unknown"
	}
}

// Handler is a timer callback. It runs in the timer task of the CPU the
// timer fired on.
type Handler func(arg any)

// ProcessID identifies the process owning a timer.
type ProcessID uint32

// TimerID is an opaque timer handle: descriptor index in the low 16 bits,
// reuse generation in the high 16 bits.
type TimerID uint32

func makeTimerID(index uint32, gen uint16) TimerID {
	return TimerID(uint32(gen)<<idIndexBits | index&idIndexMask)
}

func (id TimerID) index() uint32      { return uint32(id) & idIndexMask }
func (id TimerID) generation() uint16 { return uint16(uint32(id) >> idIndexBits) }

// control is a timer control block. Descriptor i owns wheel node i.
type control struct {
	id       TimerID
	owner    ProcessID
	mode     Mode
	state    State
	interval uint32
	expiry   uint32
	overrun  uint32
	handler  Handler
	arg      any
	cpu      kernel.CPUID
	nextFree uint32
}

func (cb *control) node() sortlink.NodeID { return sortlink.NodeID(cb.id.index()) }

type handlerItem struct {
	handler Handler
	arg     any
	id      TimerID
}

type cpuState struct {
	wheel *sortlink.Attribute
	queue *kernel.Queue[kernel.Block]
	ticks uint64
}

// Config configures a timer subsystem. Zero fields take defaults.
type Config struct {
	CPUs *kernel.CPUs
	// Limit is the number of timer descriptors (1..MaxLimit).
	Limit int
	// QueueSize is the dispatch queue capacity of each CPU.
	QueueSize int
	// HandlerItems is the size of the handler item pool shared by all CPUs.
	HandlerItems int
	// CurrentProcess reports the caller's process; it becomes the owner of
	// created timers.
	CurrentProcess func() ProcessID
	Logger         hal.Logger
}

func (c Config) withDefaults() Config {
	if c.CPUs == nil {
		c.CPUs = kernel.NewCPUs(1, nil)
	}
	if c.Limit <= 0 {
		c.Limit = DefaultLimit
	}
	if c.Limit > MaxLimit {
		c.Limit = MaxLimit
	}
	if c.QueueSize <= 0 {
		c.QueueSize = c.Limit
	}
	if c.HandlerItems <= 0 {
		c.HandlerItems = c.Limit
	}
	if c.CurrentProcess == nil {
		c.CurrentProcess = func() ProcessID { return 0 }
	}
	return c
}

// Timers is the software timer subsystem of one system.
type Timers struct {
	// lock guards cbs, the free list and every wheel.
	lock kernel.Spinlock

	cpus   *kernel.CPUs
	arena  *sortlink.Arena
	cbs    []control
	percpu []cpuState

	freeHead uint32
	freeTail uint32
	inUse    int

	items *kernel.Membox[handlerItem]
	owner func() ProcessID
	log   hal.Logger

	created    atomic.Uint64
	fired      atomic.Uint64
	dispatched atomic.Uint64
	dropped    atomic.Uint64
	noItem     atomic.Uint64
	corrupt    atomic.Uint64
}

// New creates a timer subsystem with one wheel and dispatch queue per CPU.
func New(cfg Config) *Timers {
	cfg = cfg.withDefaults()
	n := cfg.CPUs.Count()

	t := &Timers{
		cpus:     cfg.CPUs,
		arena:    sortlink.NewArena(cfg.Limit, n),
		cbs:      make([]control, cfg.Limit),
		percpu:   make([]cpuState, n),
		freeHead: noIndex,
		freeTail: noIndex,
		items:    kernel.NewMembox[handlerItem](cfg.HandlerItems),
		owner:    cfg.CurrentProcess,
		log:      cfg.Logger,
	}
	for i := range t.cbs {
		t.cbs[i] = control{id: makeTimerID(uint32(i), 0), nextFree: noIndex}
		t.pushFree(uint32(i))
	}
	for i := range t.percpu {
		t.percpu[i] = cpuState{
			wheel: t.arena.Wheel(i),
			queue: kernel.NewQueue[kernel.Block](cfg.QueueSize),
		}
	}
	return t
}

func (t *Timers) logf(format string, args ...any) {
	if t.log == nil {
		return
	}
	t.log.WriteLineString(fmt.Sprintf(format, args...))
}

func (t *Timers) pushFree(i uint32) {
	t.cbs[i].nextFree = noIndex
	if t.freeTail == noIndex {
		t.freeHead = i
	} else {
		t.cbs[t.freeTail].nextFree = i
	}
	t.freeTail = i
}

func (t *Timers) popFree() (uint32, bool) {
	i := t.freeHead
	if i == noIndex {
		return 0, false
	}
	t.freeHead = t.cbs[i].nextFree
	if t.freeHead == noIndex {
		t.freeTail = noIndex
	}
	t.cbs[i].nextFree = noIndex
	return i, true
}

func (t *Timers) lookup(id TimerID) (*control, error) {
	i := id.index()
	if i >= uint32(len(t.cbs)) {
		return nil, ErrInvalidID
	}
	cb := &t.cbs[i]
	if cb.id != id {
		return nil, ErrInvalidID
	}
	return cb, nil
}

// Create allocates a timer that fires interval ticks after each Start.
func (t *Timers) Create(interval uint32, mode Mode, handler Handler, arg any) (TimerID, error) {
	if interval == 0 {
		return 0, ErrInvalidInterval
	}
	if mode > ModeNoSelfDelete {
		return 0, ErrInvalidMode
	}
	if handler == nil {
		return 0, ErrNullHandler
	}
	owner := t.owner()

	t.lock.Lock()
	defer t.lock.Unlock()

	i, ok := t.popFree()
	if !ok {
		return 0, ErrNoMemory
	}
	cb := &t.cbs[i]
	cb.owner = owner
	cb.mode = mode
	cb.state = StateCreated
	cb.interval = interval
	cb.expiry = interval
	cb.overrun = 0
	cb.handler = handler
	cb.arg = arg
	t.inUse++
	t.created.Inc()
	return cb.id, nil
}

// Start arms the timer on the calling CPU. A ticking timer is re-armed.
func (t *Timers) Start(id TimerID) error {
	cpu := t.cpus.Current()

	t.lock.Lock()
	defer t.lock.Unlock()

	cb, err := t.lookup(id)
	if err != nil {
		return err
	}
	switch cb.state {
	case StateUnused:
		return ErrNotCreated
	case StateTicking:
		if err := t.stop(cb); err != nil {
			return err
		}
	case StateCreated:
	default:
		return ErrInvalidState
	}
	t.start(cb, cpu)
	return nil
}

func (t *Timers) start(cb *control, cpu kernel.CPUID) {
	ticks := cb.expiry
	if cb.overrun > 0 {
		ticks = cb.interval
	}
	t.percpu[cpu].wheel.Insert(cb.node(), ticks)
	cb.state = StateTicking
	cb.cpu = cpu
}

// Stop disarms a ticking timer.
func (t *Timers) Stop(id TimerID) error {
	t.lock.Lock()
	defer t.lock.Unlock()

	cb, err := t.lookup(id)
	if err != nil {
		return err
	}
	switch cb.state {
	case StateUnused:
		return ErrNotCreated
	case StateCreated:
		return ErrNotStarted
	case StateTicking:
		return t.stop(cb)
	default:
		return ErrInvalidState
	}
}

// stop unlinks cb from the wheel of the CPU it was started on.
func (t *Timers) stop(cb *control) error {
	if err := t.percpu[cb.cpu].wheel.Delete(cb.node()); err != nil {
		t.corrupt.Inc()
		t.logf("swtmr: timer %d on cpu %d: %v", cb.id, cb.cpu, err)
		return fmt.Errorf("%w: %v", ErrInvalidState, err)
	}
	cb.state = StateCreated
	cb.overrun = 0
	return nil
}

// TimeGet returns the number of ticks until a ticking timer fires.
func (t *Timers) TimeGet(id TimerID) (uint32, error) {
	t.lock.Lock()
	defer t.lock.Unlock()

	cb, err := t.lookup(id)
	if err != nil {
		return 0, err
	}
	switch cb.state {
	case StateUnused:
		return 0, ErrNotCreated
	case StateCreated:
		return 0, ErrNotStarted
	case StateTicking:
		return t.percpu[cb.cpu].wheel.TargetExpireTime(cb.node()), nil
	default:
		return 0, ErrInvalidState
	}
}

// Delete stops the timer if needed and returns its descriptor to the pool.
// The ID becomes stale.
func (t *Timers) Delete(id TimerID) error {
	t.lock.Lock()
	defer t.lock.Unlock()

	cb, err := t.lookup(id)
	if err != nil {
		return err
	}
	return t.delete(cb)
}

func (t *Timers) delete(cb *control) error {
	switch cb.state {
	case StateUnused:
		return ErrNotCreated
	case StateTicking:
		if err := t.stop(cb); err != nil {
			return err
		}
	case StateCreated:
	default:
		return ErrInvalidState
	}
	t.release(cb)
	return nil
}

// release puts cb back on the free list under a new generation.
func (t *Timers) release(cb *control) {
	i := cb.id.index()
	*cb = control{id: makeTimerID(i, cb.id.generation()+1)}
	t.pushFree(i)
	t.inUse--
}

// RecycleOwnedBy deletes every timer owned by pid and returns how many
// were deleted.
func (t *Timers) RecycleOwnedBy(pid ProcessID) int {
	t.lock.Lock()
	defer t.lock.Unlock()

	n := 0
	for i := range t.cbs {
		cb := &t.cbs[i]
		if cb.state == StateUnused || cb.owner != pid {
			continue
		}
		if err := t.delete(cb); err != nil {
			t.logf("swtmr: recycle timer %d of pid %d: %v", cb.id, pid, err)
			continue
		}
		n++
	}
	return n
}

// Scan advances the calling CPU's wheel by one tick.
func (t *Timers) Scan() {
	t.ScanCPU(t.cpus.Current())
}

// ScanCPU advances the wheel of cpu by one tick and dispatches every timer
// that expires. It never blocks: when the dispatch queue is full the
// firing is dropped.
func (t *Timers) ScanCPU(cpu kernel.CPUID) {
	if !t.cpus.Valid(cpu) {
		return
	}
	pc := &t.percpu[cpu]

	t.lock.Lock()
	defer t.lock.Unlock()

	pc.ticks++
	pc.wheel.Scan(func(n sortlink.NodeID) {
		t.expire(cpu, &t.cbs[n])
	})
}

func (t *Timers) expire(cpu kernel.CPUID, cb *control) {
	t.fired.Inc()
	t.dispatch(&t.percpu[cpu], cb)

	switch cb.mode {
	case ModeOnce:
		t.release(cb)
	case ModeNoSelfDelete:
		cb.state = StateCreated
	default:
		cb.overrun++
		t.start(cb, cpu)
	}
}

func (t *Timers) dispatch(pc *cpuState, cb *control) {
	b, err := t.items.Alloc()
	if err != nil {
		t.noItem.Inc()
		return
	}
	*t.items.Get(b) = handlerItem{handler: cb.handler, arg: cb.arg, id: cb.id}
	if !pc.queue.TrySend(b) {
		_ = t.items.Free(b)
		t.dropped.Inc()
		return
	}
	t.dispatched.Inc()
}

// NextExpire returns the ticks until the next timer on cpu fires, or false
// when none is ticking there.
func (t *Timers) NextExpire(cpu kernel.CPUID) (uint32, bool) {
	if !t.cpus.Valid(cpu) {
		return 0, false
	}
	t.lock.Lock()
	defer t.lock.Unlock()
	return t.percpu[cpu].wheel.NextExpireTime()
}

// UpdateExpire accounts for elapsed ticks on cpu after an idle period that
// ended on a tick; the caller delivers that final tick with ScanCPU.
func (t *Timers) UpdateExpire(cpu kernel.CPUID, elapsed uint32) {
	if !t.cpus.Valid(cpu) || elapsed == 0 {
		return
	}
	t.lock.Lock()
	defer t.lock.Unlock()
	t.percpu[cpu].wheel.UpdateExpireTime(elapsed)
	t.percpu[cpu].ticks += uint64(elapsed - 1)
}

// Info is a snapshot of one timer.
type Info struct {
	ID       TimerID
	Mode     Mode
	State    State
	Interval uint32
	Overrun  uint32
	CPU      kernel.CPUID
	Owner    ProcessID
	// Remaining is the ticks until the timer fires; zero unless ticking.
	Remaining uint32
}

// Info returns a snapshot of the timer.
func (t *Timers) Info(id TimerID) (Info, error) {
	t.lock.Lock()
	defer t.lock.Unlock()

	cb, err := t.lookup(id)
	if err != nil {
		return Info{}, err
	}
	if cb.state == StateUnused {
		return Info{}, ErrNotCreated
	}
	info := Info{
		ID:       cb.id,
		Mode:     cb.mode,
		State:    cb.state,
		Interval: cb.interval,
		Overrun:  cb.overrun,
		CPU:      cb.cpu,
		Owner:    cb.owner,
	}
	if cb.state == StateTicking {
		info.Remaining = t.percpu[cb.cpu].wheel.TargetExpireTime(cb.node())
	}
	return info, nil
}

// Stats is a snapshot of subsystem counters.
type Stats struct {
	Created       uint64
	Fired         uint64
	Dispatched    uint64
	Dropped       uint64
	NoHandlerItem uint64
	CorruptLinks  uint64
	InUse         int
	ItemsInUse    int
	QueueDepth    []int
	Ticks         []uint64
}

// Stats returns the current counters.
func (t *Timers) Stats() Stats {
	s := Stats{
		Created:       t.created.Load(),
		Fired:         t.fired.Load(),
		Dispatched:    t.dispatched.Load(),
		Dropped:       t.dropped.Load(),
		NoHandlerItem: t.noItem.Load(),
		CorruptLinks:  t.corrupt.Load(),
		ItemsInUse:    t.items.InUse(),
		QueueDepth:    make([]int, len(t.percpu)),
		Ticks:         make([]uint64, len(t.percpu)),
	}
	t.lock.Lock()
	s.InUse = t.inUse
	for i := range t.percpu {
		s.QueueDepth[i] = t.percpu[i].queue.Len()
		s.Ticks[i] = t.percpu[i].ticks
	}
	t.lock.Unlock()
	return s
}

// Walk calls fn for every ticking timer on cpu in wheel order with the
// ticks until it fires.
func (t *Timers) Walk(cpu kernel.CPUID, fn func(id TimerID, remaining uint32)) {
	if !t.cpus.Valid(cpu) {
		return
	}
	t.lock.Lock()
	defer t.lock.Unlock()

	w := t.percpu[cpu].wheel
	for s := uint32(0); s < sortlink.Len; s++ {
		w.Walk(s, func(n sortlink.NodeID, _ uint32) {
			fn(t.cbs[n].id, w.TargetExpireTime(n))
		})
	}
}
