package schedcore

import "time"

// ReadyFD reports one file descriptor's readiness after a poll, keyed
// by the same uint64 key the caller passed to Scheduler.AddFd.
type ReadyFD struct {
	Key  uint64
	Mask IOMask
}

// Adapter is the platform seam between the scheduler core and the
// underlying I/O multiplexer (epoll, kqueue, IOCP, or a test fake). It
// intentionally knows nothing about tasks or callbacks: it only arms,
// polls, and reports readiness by key, leaving all dispatch discipline
// (lock release before callback, re-arm policy) to the scheduler.
type Adapter interface {
	// Init prepares the adapter for use. Called once, before the first
	// ArmFD/Poll call.
	Init() error

	// Uninit releases any resources held by the adapter. Called once,
	// during Scheduler.Close, after the loop has stopped.
	Uninit() error

	// ArmFD registers interest in mask for key/fd, replacing any
	// previous registration for key. A zero mask disarms (removes) the
	// registration entirely.
	ArmFD(key uint64, fd int, mask IOMask) error

	// Poll blocks until at least one armed fd is ready, the timeout
	// elapses, or Wake is called from another goroutine, whichever
	// comes first. A negative timeout blocks indefinitely; a zero
	// timeout polls without blocking. It appends ready fds to dst and
	// returns the extended slice, to let callers reuse a buffer across
	// iterations.
	Poll(timeout time.Duration, dst []ReadyFD) ([]ReadyFD, error)

	// Wake unblocks a concurrent Poll call. Safe to call from any
	// goroutine, including from inside a task callback running on the
	// scheduler's own dispatch thread.
	Wake() error
}

// SignalAdapter delivers process signals as scheduler tasks. schedcore's
// default implementation wraps os/signal; signals are inherently
// process-global; a concrete SignalAdapter only ever sets a pending flag
// from the actual signal handler context and defers the callback
// invocation to the scheduler's own dispatch thread, exactly like an fd
// or timeout task.
type SignalAdapter interface {
	// SignalRegister starts watching for signo, invoking wake whenever
	// it arrives. wake must be safe to call from a signal handler
	// context (or the goroutine os/signal delivers on).
	SignalRegister(signo int, wake func()) error

	// SignalUnregister stops watching for signo.
	SignalUnregister(signo int) error

	// Pending returns and clears the set of signal numbers that have
	// arrived since the last call, for the scheduler to dispatch.
	Pending() []int
}
