package schedcore

import "time"

// Kind identifies which of the three task classes a Task belongs to.
type Kind uint8

const (
	// KindFd marks a task registered via AddFd.
	KindFd Kind = iota
	// KindTimeout marks a task registered via AddTimeout.
	KindTimeout
	// KindEvent marks a task registered via Declare/Connect.
	KindEvent
	// KindSignal marks a task registered via AddSignal.
	KindSignal
)

// String renders the Kind for logging.
func (k Kind) String() string {
	switch k {
	case KindFd:
		return "fd"
	case KindTimeout:
		return "timeout"
	case KindEvent:
		return "event"
	case KindSignal:
		return "signal"
	default:
		return "unknown"
	}
}

// IOMask is the set of interest/returned bits for an FdTask. Only Read
// and Write are meaningful arguments to AddFd/SetListenMask; Expire and
// Interrupt are carried for symmetry with the dispatch callback signature
// (a timer dispatch passes Expire, a signal dispatch passes Interrupt).
type IOMask uint8

const (
	// IORead indicates interest in, or readiness for, reading.
	IORead IOMask = 1 << iota
	// IOWrite indicates interest in, or readiness for, writing.
	IOWrite
	// IOExpire is passed to a TimeoutTask's callback on expiration.
	IOExpire
	// IOInterrupt is passed to a signal task's callback on delivery.
	IOInterrupt
)

// Callback is invoked for every task kind. what carries which interest
// fired (IORead/IOWrite for fd tasks, IOExpire for timers, IOInterrupt
// for signals); userCtx is the opaque context supplied at registration.
// The return value is only meaningful for an event subscription: Signal
// stops fanning out to the remaining subscribers the moment one returns
// false. Fd, timeout, and signal dispatch ignore it, since those task
// kinds each have only the one callback to invoke.
type Callback func(what IOMask, userCtx any) bool

// TaskHandle is the opaque token callers hold for a registered task. It
// is deliberately index+generation rather than a bare pointer: once the
// registry frees the backing slot (registry.free, on invalidation or
// after a timeout fires), any method
// called with a stale handle observes a generation mismatch and returns
// ErrNotValid, rather than risking use-after-free or silent resurrection
// of an unrelated task that later reused the slot.
type TaskHandle struct {
	index      uint32
	generation uint32
}

// Zero reports whether h is the zero-value handle (never issued by any
// registry operation).
func (h TaskHandle) Zero() bool {
	return h.index == 0 && h.generation == 0
}

// task is the common header embedded in every slot of the registry's
// slab. It is never heap-allocated individually; it lives inline in
// taskSlot, which is owned entirely by the registry from the moment it
// is added until it is removed.
type task struct {
	kind       Kind
	valid      bool
	callback   Callback
	userCtx    any
	scheduler  *Scheduler // scheduler that owns this slot (root for events)
	self       TaskHandle // this task's own handle, stamped at alloc time

	// fd-specific fields (KindFd)
	fdKey         uint64
	fd            int
	requestedMask IOMask
	returnedMask  IOMask

	// timeout-specific fields (KindTimeout)
	deadline time.Time
	// next is the intrusive link for the scheduler's timeout list.
	next *task

	// event-specific fields (KindEvent)
	eventName     string
	subscriptions []*subscription

	// signal-specific fields
	signo int
}

// subscription is a single (callback, context, origin) triple attached
// to an EventTask by Connect.
type subscription struct {
	id       SubscriptionID
	callback Callback
	userCtx  any
	origin   *Scheduler
}
