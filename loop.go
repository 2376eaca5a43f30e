package schedcore

import (
	"context"
	"sync"
	"time"
	"unsafe"
)

// Scheduler multiplexes file-descriptor readiness, timeouts, and named
// async events onto a single dispatch thread. Every mutation to its
// containers (fd map, timeout queue, event bus) happens under mu; no
// user callback is ever invoked while mu is held.
//
// A Scheduler may be constructed standalone (a root) or with WithParent
// (a child): children share their root's event bus but keep their own
// fd/timeout registries and their own dispatch thread.
type Scheduler struct {
	mu sync.Mutex

	registry *registry
	timeouts timeoutQueue
	bus      *eventBus

	parent   *Scheduler
	children []*Scheduler

	appCtx any
	arena  any

	notify func(TaskHandle, Kind)
	logger *Logger
	metric *Metrics

	adapter       Adapter
	signalAdapter SignalAdapter
	signalTasks   map[int]TaskHandle

	maxTimeoutDispatchPerPass   int
	opportunisticTimerThreshold time.Duration
	freelistGCPeriod            time.Duration
	lastSweep                   time.Time

	state   *fastState
	runOnce sync.Mutex // held for the duration of Run/RunOnce
}

// monotonicNow returns the current time for deadline arithmetic. It is
// a thin wrapper so tests can be written against real elapsed time
// without the scheduler caring how "now" is sourced.
func monotonicNow() time.Time {
	return time.Now()
}

// New constructs a root Scheduler, or a child of opts' WithParent
// scheduler. A child shares its root's event bus (Declare/Connect/
// Signal) but owns an independent fd/timeout registry and dispatch
// thread.
func New(opts ...Option) (*Scheduler, error) {
	cfg, err := resolveOptions(opts)
	if err != nil {
		return nil, err
	}

	s := &Scheduler{
		parent:                      cfg.parent,
		appCtx:                      cfg.appCtx,
		arena:                       cfg.arena,
		notify:                      cfg.notify,
		logger:                      cfg.logger,
		adapter:                     cfg.adapter,
		signalAdapter:               cfg.signalAdapter,
		signalTasks:                 make(map[int]TaskHandle),
		maxTimeoutDispatchPerPass:   cfg.maxTimeoutDispatchPerPass,
		opportunisticTimerThreshold: cfg.opportunisticTimerThreshold,
		freelistGCPeriod:            cfg.freelistGCPeriod,
		state:                       newFastState(),
	}
	s.registry = newRegistry(cfg.maxTasks, cfg.freelistFloor, &s.timeouts)
	if cfg.metricsEnabled {
		s.metric = newMetrics()
	}
	if s.logger == nil {
		s.logger = disabledLogger()
	}

	if cfg.parent != nil {
		s.bus = cfg.parent.bus
		cfg.parent.mu.Lock()
		cfg.parent.children = append(cfg.parent.children, s)
		cfg.parent.mu.Unlock()
	} else {
		s.bus = newEventBus(cfg.maxTasks, cfg.freelistFloor)
	}

	if s.adapter == nil {
		a, err := newDefaultAdapter()
		if err != nil {
			return nil, err
		}
		s.adapter = a
	}
	if s.signalAdapter == nil {
		s.signalAdapter = newOSSignalAdapter()
	}
	if err := s.adapter.Init(); err != nil {
		return nil, wrapIOError("init", err)
	}

	logLifecycle(s.logger, "scheduler created")
	return s, nil
}

// AppContext returns the opaque context supplied via WithAppContext.
func (s *Scheduler) AppContext() any { return s.appCtx }

// Arena returns the opaque allocation arena supplied via WithArena.
func (s *Scheduler) Arena() any { return s.arena }

// Metrics returns the scheduler's latency/dispatch metrics, or nil if
// WithMetrics(true) was not supplied at construction.
func (s *Scheduler) Metrics() *Metrics { return s.metric }

// AddFd registers interest in mask for key/fd. key is caller-chosen and
// must be unique per scheduler; it need not equal fd (allowing callers
// to multiplex several logical streams over one real descriptor, or
// vice versa through a translation layer). Returns ErrAlreadyExists if
// key is already registered.
func (s *Scheduler) AddFd(key uint64, fd int, mask IOMask, cb Callback, userCtx any) (TaskHandle, error) {
	if cb == nil || mask == 0 {
		return TaskHandle{}, ErrInvalidArgument
	}
	s.mu.Lock()
	if !s.state.CanAcceptWork() {
		s.mu.Unlock()
		return TaskHandle{}, ErrBusy
	}
	slot, err := s.registry.addFd(s, key, fd, mask, cb, userCtx)
	if err != nil {
		s.mu.Unlock()
		return TaskHandle{}, err
	}
	h := slot.t.self
	s.mu.Unlock()

	if err := s.adapter.ArmFD(key, fd, mask); err != nil {
		// Roll back the registry entry: the fd was never actually armed.
		s.mu.Lock()
		s.registry.invalidate(h)
		s.mu.Unlock()
		return TaskHandle{}, wrapIOError("arm_fd", err)
	}
	s.wake()
	return h, nil
}

// SetListenMask replaces the interest mask for an already-registered fd
// task. If sendEvents is true and mask is non-zero, it synthesizes an
// inline dispatch before returning — read first (if mask has IORead),
// then, after re-checking the task is still valid, write (if mask has
// IOWrite) — exactly as a real readiness poll would, letting a caller
// react immediately instead of waiting for the next iteration.
func (s *Scheduler) SetListenMask(h TaskHandle, mask IOMask, sendEvents bool) error {
	s.mu.Lock()
	slot, err := s.registry.lookup(h)
	if err != nil {
		s.mu.Unlock()
		return err
	}
	if slot.t.kind != KindFd {
		s.mu.Unlock()
		return ErrInvalidArgument
	}
	key, fd := slot.t.fdKey, slot.t.fd
	cb, userCtx := slot.t.callback, slot.t.userCtx
	slot.t.requestedMask = mask
	s.mu.Unlock()

	if err := s.adapter.ArmFD(key, fd, mask); err != nil {
		return wrapIOError("arm_fd", err)
	}
	s.wake()

	if sendEvents && mask != 0 && cb != nil {
		if mask&IORead != 0 {
			cb(IORead, userCtx)
		}
		s.mu.Lock()
		slot, err = s.registry.lookup(h)
		stillValid := err == nil && slot.t.valid
		s.mu.Unlock()
		if stillValid && mask&IOWrite != 0 {
			cb(IOWrite, userCtx)
		}
	}
	return nil
}

// GetListenMask returns the interest mask last set for h by AddFd or
// SetListenMask, satisfying set_listen_mask(k,m); get_listen_mask(k)==m.
func (s *Scheduler) GetListenMask(h TaskHandle) (IOMask, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	slot, err := s.registry.lookup(h)
	if err != nil {
		return 0, err
	}
	if slot.t.kind != KindFd {
		return 0, ErrInvalidArgument
	}
	return slot.t.requestedMask, nil
}

// UnsetListen clears h's interest mask to zero, without synthesizing
// any inline dispatch.
func (s *Scheduler) UnsetListen(h TaskHandle) error {
	return s.SetListenMask(h, 0, false)
}

// AddTimeout schedules cb to run once after d elapses.
func (s *Scheduler) AddTimeout(d time.Duration, cb Callback, userCtx any) (TaskHandle, error) {
	if d < 0 || cb == nil {
		return TaskHandle{}, ErrInvalidArgument
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.state.CanAcceptWork() {
		return TaskHandle{}, ErrBusy
	}
	slot, err := s.registry.addTimeout(s, cb, userCtx)
	if err != nil {
		return TaskHandle{}, err
	}
	slot.t.deadline = monotonicNow().Add(d)
	s.timeouts.insert(&slot.t)
	s.wake()
	return slot.t.self, nil
}

// AddSignal registers cb to be dispatched on the scheduler's own thread
// whenever signo is delivered to the process. Signals are process-wide:
// registering the same signo on two schedulers watches the same
// delivery, each dispatching its own callback.
func (s *Scheduler) AddSignal(signo int, cb Callback, userCtx any) (TaskHandle, error) {
	if cb == nil {
		return TaskHandle{}, ErrInvalidArgument
	}
	s.mu.Lock()
	slot, err := s.registry.alloc()
	if err != nil {
		s.mu.Unlock()
		return TaskHandle{}, err
	}
	slot.t.kind = KindSignal
	slot.t.valid = true
	slot.t.callback = cb
	slot.t.userCtx = userCtx
	slot.t.scheduler = s
	slot.t.signo = signo
	h := slot.t.self
	s.signalTasks[signo] = h
	s.mu.Unlock()

	if err := s.signalAdapter.SignalRegister(signo, s.wake); err != nil {
		s.mu.Lock()
		delete(s.signalTasks, signo)
		s.registry.invalidate(h)
		s.mu.Unlock()
		return TaskHandle{}, wrapIOError("signal_register", err)
	}
	return h, nil
}

// Invalidate clears h's validity flag and frees its slot. It reports
// ErrNotValid if h is already invalid. If h named a KindFd task, its fd
// is disarmed from the platform adapter after the scheduler's lock is
// released.
func (s *Scheduler) Invalidate(h TaskHandle) error {
	s.mu.Lock()
	rt, ok := s.registry.invalidate(h)
	s.mu.Unlock()
	if !ok {
		return ErrNotValid
	}
	s.disarmIfFd(rt)
	if s.notify != nil {
		s.notify(h, rt.kind)
	}
	return nil
}

// InvalidateByFd removes the fd task registered under key, if any.
func (s *Scheduler) InvalidateByFd(key uint64) {
	s.mu.Lock()
	removed := s.registry.invalidateMatch(func(t *task) bool {
		return t.kind == KindFd && t.fdKey == key
	})
	s.mu.Unlock()
	s.notifyAll(removed)
}

// InvalidateByCallback removes every live task whose callback equals cb,
// across all kinds.
func (s *Scheduler) InvalidateByCallback(cb Callback) {
	target := callbackIdentity(cb)
	s.mu.Lock()
	removed := s.registry.invalidateMatch(func(t *task) bool {
		return callbackIdentity(t.callback) == target
	})
	s.mu.Unlock()
	s.notifyAll(removed)
}

// InvalidateByContext removes every live task whose userCtx equals ctx
// (compared with ==; ctx must hold a comparable dynamic type).
func (s *Scheduler) InvalidateByContext(ctx any) {
	s.mu.Lock()
	removed := s.registry.invalidateMatch(func(t *task) bool {
		return t.userCtx == ctx
	})
	s.mu.Unlock()
	s.notifyAll(removed)
}

// RemoveAll invalidates every task owned by this scheduler (not its
// children's). Declared events live in the shared event bus's own
// registry and are not removed, even when this scheduler is the root.
func (s *Scheduler) RemoveAll() {
	s.mu.Lock()
	removed := s.registry.invalidateMatch(func(*task) bool { return true })
	s.mu.Unlock()
	s.notifyAll(removed)
}

// disarmIfFd tells the platform adapter to stop watching rt's fd, if rt
// names a KindFd task. Must be called without the scheduler's lock held.
func (s *Scheduler) disarmIfFd(rt removedTask) {
	if rt.kind == KindFd {
		_ = s.adapter.ArmFD(rt.fdKey, rt.fd, 0)
	}
}

// notifyAll disarms any removed KindFd tasks from the platform adapter,
// then invokes the notify observer once per removed task with its real
// kind.
func (s *Scheduler) notifyAll(removed []removedTask) {
	for _, rt := range removed {
		s.disarmIfFd(rt)
		if s.notify != nil {
			s.notify(rt.handle, rt.kind)
		}
	}
}

// wake nudges the dispatch thread out of a blocking Poll call. Safe to
// call from any goroutine, including a task callback.
func (s *Scheduler) wake() {
	if s.adapter != nil {
		_ = s.adapter.Wake()
	}
}

// Run drives the scheduler until ctx is cancelled or Stop is called,
// whichever happens first. Only one goroutine may be inside Run or
// RunOnce for a given Scheduler at a time.
func (s *Scheduler) Run(ctx context.Context) error {
	if !s.runOnce.TryLock() {
		return ErrLoopRunning
	}
	defer s.runOnce.Unlock()

	if s.state.Load() == StateTerminated {
		return nil
	}
	if !s.state.TryTransition(StateAwake, StateRunning) {
		if !s.state.TryTransition(StateSleeping, StateRunning) {
			// Stop may have been called before Run ever started; fall
			// through into the loop below, whose StateTerminating check
			// drains and terminates it on this first and only pass.
			if s.state.Load() != StateTerminating {
				return ErrLoopRunning
			}
		}
	}

	for {
		select {
		case <-ctx.Done():
			s.state.Store(StateTerminating)
			s.drainAll()
			s.state.Store(StateTerminated)
			return ctx.Err()
		default:
		}
		if s.state.Load() == StateTerminating {
			s.drainAll()
			s.state.Store(StateTerminated)
			return nil
		}
		s.iterate()
	}
}

// RunOnce drives exactly one iteration of the dispatch loop: drain
// pending signals, poll for fd readiness (bounded by the nearest
// timeout deadline), dispatch ready fds, then dispatch expired timeouts
// up to the per-pass cap. If Stop has been called, it then runs the
// final uncapped drain and moves the scheduler to Terminated. It returns
// ErrLoopRunning if another goroutine is already inside Run or RunOnce.
func (s *Scheduler) RunOnce(ctx context.Context) error {
	if !s.runOnce.TryLock() {
		return ErrLoopRunning
	}
	defer s.runOnce.Unlock()

	if !s.state.TryTransition(StateAwake, StateRunning) {
		s.state.TryTransition(StateSleeping, StateRunning)
	}
	s.iterate()
	if !s.state.TryTransition(StateRunning, StateAwake) && s.state.Load() == StateTerminating {
		s.drainAll()
		s.state.Store(StateTerminated)
	}
	return nil
}

// Stop requests the scheduler to finish its current iteration, run a
// final dispatch-all pass over remaining timeouts, and transition to
// Terminated. It does not block until that completes;
// call Run/RunOnce again (or let an in-flight Run return) to observe it.
func (s *Scheduler) Stop() {
	for {
		cur := s.state.Load()
		if cur == StateTerminating || cur == StateTerminated {
			return
		}
		if s.state.TryTransition(cur, StateTerminating) {
			s.wake()
			return
		}
	}
}

// Close releases the scheduler's adapter resources. It returns ErrBusy
// if the scheduler has not yet reached StateTerminated; call Stop and
// let Run/RunOnce return first.
func (s *Scheduler) Close() error {
	if !s.state.IsTerminal() {
		return ErrBusy
	}
	if a, ok := s.signalAdapter.(*osSignalAdapter); ok {
		a.close()
	}
	if err := s.adapter.Uninit(); err != nil {
		return wrapIOError("uninit", err)
	}
	logLifecycle(s.logger, "scheduler closed")
	return nil
}

// iterate runs one pass of: signal drain, poll, fd dispatch, timeout
// dispatch. Invoked by both Run's loop and RunOnce.
func (s *Scheduler) iterate() {
	start := monotonicNow()
	s.drainSignals()

	s.mu.Lock()
	deadline, haveDeadline := s.timeouts.nextDeadline()
	s.mu.Unlock()

	now := monotonicNow()
	timeout := time.Duration(-1)
	if haveDeadline {
		switch {
		case !deadline.After(now):
			timeout = 0
		case deadline.Sub(now) <= s.opportunisticTimerThreshold:
			timeout = 0
		default:
			timeout = deadline.Sub(now)
		}
	}

	var ready []ReadyFD
	var err error
	// Compare-and-swap rather than store, so a Stop that moved the state
	// to Terminating is never overwritten.
	s.state.TryTransition(StateRunning, StateSleeping)
	pollStart := monotonicNow()
	ready, err = s.adapter.Poll(timeout, ready[:0])
	pollEnd := monotonicNow()
	s.state.TryTransition(StateSleeping, StateRunning)
	if err != nil {
		logPollError(s.logger, err)
	}
	if s.metric != nil {
		s.metric.observePollWait(pollEnd.Sub(pollStart))
	}

	s.dispatchReady(ready)
	fired := s.dispatchTimeouts(monotonicNow(), s.state.Load() == StateTerminating)
	if s.metric != nil {
		s.metric.observeIteration(monotonicNow().Sub(start), len(ready), fired)
	}

	if s.freelistGCPeriod > 0 && monotonicNow().Sub(s.lastSweep) >= s.freelistGCPeriod {
		s.mu.Lock()
		s.registry.sweep()
		if s.parent == nil {
			s.bus.reg.sweep()
		}
		s.mu.Unlock()
		s.lastSweep = monotonicNow()
	}
}

// dispatchReady looks up and invokes the callback for each ready fd,
// re-fetching the slot under the lock and releasing it before the
// callback runs. Read and write are dispatched as two separate calls:
// read first, then the task's validity is re-checked under the lock
// before write is dispatched, so a callback that invalidates its own
// task on the read half never sees the write half fire.
func (s *Scheduler) dispatchReady(ready []ReadyFD) {
	for _, r := range ready {
		s.mu.Lock()
		slot, ok := s.registry.findFd(r.Key)
		if !ok || !slot.t.valid {
			s.mu.Unlock()
			continue
		}
		cb, userCtx := slot.t.callback, slot.t.userCtx
		slot.t.returnedMask = r.Mask
		s.mu.Unlock()
		if cb == nil {
			continue
		}

		if r.Mask&IORead != 0 {
			cb(IORead, userCtx)
		}

		if r.Mask&IOWrite != 0 {
			s.mu.Lock()
			slot, ok = s.registry.findFd(r.Key)
			stillValid := ok && slot.t.valid
			s.mu.Unlock()
			if stillValid {
				cb(IOWrite, userCtx)
			}
		}
	}
}

// drainSignals dispatches any signal tasks whose signo has fired since
// the last iteration.
func (s *Scheduler) drainSignals() {
	if s.signalAdapter == nil {
		return
	}
	pending := s.signalAdapter.Pending()
	for _, signo := range pending {
		s.mu.Lock()
		h, ok := s.signalTasks[signo]
		var cb Callback
		var userCtx any
		if ok {
			if slot, err := s.registry.lookup(h); err == nil {
				cb, userCtx = slot.t.callback, slot.t.userCtx
			}
		}
		s.mu.Unlock()
		if cb != nil {
			cb(IOInterrupt, userCtx)
		}
	}
}

// drainAll runs a final, uncapped dispatch-all pass over remaining
// timeouts, used by Run's shutdown path: on shutdown every remaining
// timeout fires regardless of the per-pass cap, so no pending work is
// silently dropped.
func (s *Scheduler) drainAll() {
	for {
		if n := s.dispatchTimeouts(monotonicNow(), true); n == 0 {
			break
		}
	}
}

// callbackIdentity returns a comparable key for a Callback value,
// letting InvalidateByCallback match the exact function passed to
// Add*; Go doesn't allow == directly on func values. The key is the
// func value's own pointer (its closure record), not its code pointer,
// so two closures created from the same literal are distinct while the
// same func value passed twice matches.
func callbackIdentity(cb Callback) uintptr {
	if cb == nil {
		return 0
	}
	return uintptr(*(*unsafe.Pointer)(unsafe.Pointer(&cb)))
}
