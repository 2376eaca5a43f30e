// Package schedcore provides an application main-loop scheduler for
// network programs: one dispatch goroutine per Scheduler multiplexes
// file-descriptor readiness, timeouts, and named application events.
//
// # Architecture
//
// A [Scheduler] owns a task registry, a timeout queue, and an event
// bus. File descriptors are armed with [Scheduler.AddFd], timers with
// [Scheduler.AddTimeout], OS signals with [Scheduler.AddSignal], and
// named application events with [Scheduler.Declare]/[Scheduler.Connect].
// AddFd, AddTimeout, AddSignal and Declare return a [TaskHandle], an
// opaque slab reference that never resurrects after being freed; Connect
// returns a [SubscriptionID] for use with Disconnect.
//
// Readiness polling is delegated to a platform [Adapter]:
//   - Linux: epoll
//   - Darwin: kqueue
//   - Windows: a reduced-functionality channel-based adapter, since
//     IOCP's completion model doesn't map onto Adapter's readiness
//     contract without reshaping every caller
//
// A Scheduler may be built as the child of another via [WithParent],
// in which case both share a single event bus rooted at the outermost
// ancestor: [Scheduler.Declare] and [Scheduler.Signal] always operate on
// that shared root, so events declared by one scheduler are visible
// from any of its relatives.
//
// # Thread Safety
//
// Every Scheduler holds exactly one mutex guarding its registry and
// queue state, plus a separate guard that admits one Run/RunOnce caller
// at a time. Registration, cancellation, and event delivery from any
// goroutine take that lock only to mutate the registry or queue state;
// the lock is always released before a task's [Callback] runs, so
// callbacks may themselves register or cancel tasks without
// deadlocking. Fd, timeout and signal callbacks run inside
// [Scheduler.Run] and [Scheduler.RunOnce]; [Scheduler.Signal] runs
// event subscribers on the calling goroutine, and
// [Scheduler.SetListenMask] with sendEvents runs the fd callback
// inline. [Scheduler.Stop] and the Invalidate family are safe to call
// from any goroutine, including from inside a callback.
//
// # Usage
//
//	sched, err := schedcore.New()
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer sched.Close()
//
//	sched.AddTimeout(50*time.Millisecond, func(what schedcore.IOMask, _ any) bool {
//		fmt.Println("fired")
//		sched.Stop()
//		return true
//	}, nil)
//
//	if err := sched.Run(context.Background()); err != nil {
//		log.Fatal(err)
//	}
//
// # Error Handling
//
// Registration and lookup failures are reported via sentinel errors
// ([ErrInvalidArgument], [ErrNotFound], [ErrAlreadyExists], [ErrLimit],
// [ErrNotValid], [ErrBusy], [ErrLoopRunning]); platform adapter
// failures are wrapped in [IOError], which preserves the underlying
// syscall error for [errors.Is]/[errors.As].
package schedcore
