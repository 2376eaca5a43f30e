package schedcore

import "sync/atomic"

// State represents the lifecycle state of a Scheduler.
//
// State machine:
//
//	Awake (0) → Running (3)        [Run/RunOnce entry]
//	Running (3) → Sleeping (2)     [blocked in Poll]
//	Sleeping (2) → Running (3)     [Poll returns]
//	Running (3) → Terminating (4)  [Stop called]
//	Sleeping (2) → Terminating (4) [Stop called, wakes Poll]
//	Terminating (4) → Terminated (1) [final drain complete]
//	Terminated (1) → (terminal)
type State uint32

const (
	// StateAwake is the state of a newly-constructed Scheduler that has
	// never had Run or RunOnce called on it.
	StateAwake State = 0
	// StateTerminated is the terminal state, reached when the final
	// drain after Stop completes; Close requires it.
	StateTerminated State = 1
	// StateSleeping is set while the dispatch thread is blocked in the
	// adapter's Poll call.
	StateSleeping State = 2
	// StateRunning is set while the dispatch thread is doing anything
	// other than blocking in Poll: draining signals, dispatching fds,
	// firing timeouts, or running an Add/Invalidate call's bookkeeping.
	StateRunning State = 3
	// StateTerminating is set the moment Stop is called; the loop keeps
	// making forward progress (a final dispatch-all pass) until it
	// reaches Terminated.
	StateTerminating State = 4
)

// String renders the state name for logging.
func (s State) String() string {
	switch s {
	case StateAwake:
		return "awake"
	case StateRunning:
		return "running"
	case StateSleeping:
		return "sleeping"
	case StateTerminating:
		return "terminating"
	case StateTerminated:
		return "terminated"
	default:
		return "unknown"
	}
}

// fastState is a lock-free atomic holder for State, used so that
// CanAcceptWork/IsTerminal/Stop-coordination reads never compete with the scheduler's
// single mutex.
type fastState struct {
	v atomic.Uint32
}

func newFastState() *fastState {
	fs := &fastState{}
	fs.v.Store(uint32(StateAwake))
	return fs
}

func (s *fastState) Load() State {
	return State(s.v.Load())
}

func (s *fastState) Store(state State) {
	s.v.Store(uint32(state))
}

// TryTransition atomically moves from `from` to `to`, reporting success.
func (s *fastState) TryTransition(from, to State) bool {
	return s.v.CompareAndSwap(uint32(from), uint32(to))
}

// IsTerminal reports whether the scheduler has fully shut down.
func (s *fastState) IsTerminal() bool {
	return s.Load() == StateTerminated
}

// CanAcceptWork reports whether new tasks may still be registered.
func (s *fastState) CanAcceptWork() bool {
	switch s.Load() {
	case StateAwake, StateRunning, StateSleeping:
		return true
	default:
		return false
	}
}
