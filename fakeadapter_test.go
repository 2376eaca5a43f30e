package schedcore

import (
	"sync"
	"time"
)

// fakeAdapter is an in-memory Adapter used by tests that need
// deterministic control over fd readiness without touching real file
// descriptors. Poll blocks on a channel fed by injectReady/Wake, exactly
// like a real platform adapter blocks inside epoll_wait/kevent.
type fakeAdapter struct {
	mu      sync.Mutex
	armed   map[uint64]fakeArmed
	ready   chan ReadyFD
	wake    chan struct{}
	inited  bool
	uninits int
}

type fakeArmed struct {
	fd   int
	mask IOMask
}

func newFakeAdapter() *fakeAdapter {
	return &fakeAdapter{
		armed: make(map[uint64]fakeArmed),
		ready: make(chan ReadyFD, 64),
		wake:  make(chan struct{}, 1),
	}
}

func (f *fakeAdapter) Init() error {
	f.inited = true
	return nil
}

func (f *fakeAdapter) Uninit() error {
	f.uninits++
	return nil
}

func (f *fakeAdapter) ArmFD(key uint64, fd int, mask IOMask) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if mask == 0 {
		delete(f.armed, key)
		return nil
	}
	f.armed[key] = fakeArmed{fd: fd, mask: mask}
	return nil
}

func (f *fakeAdapter) Poll(timeout time.Duration, dst []ReadyFD) ([]ReadyFD, error) {
	var deadline <-chan time.Time
	if timeout >= 0 {
		t := time.NewTimer(timeout)
		defer t.Stop()
		deadline = t.C
	}
	select {
	case r := <-f.ready:
		dst = append(dst, r)
		return dst, nil
	case <-f.wake:
		return dst, nil
	case <-deadline:
		return dst, nil
	}
}

func (f *fakeAdapter) Wake() error {
	select {
	case f.wake <- struct{}{}:
	default:
	}
	return nil
}

// injectReady reports key as ready with mask, as if the underlying
// multiplexer observed it. armedMask returns the mask ArmFD last set for
// key, or 0/false if key is not currently armed.
func (f *fakeAdapter) injectReady(key uint64, mask IOMask) {
	f.ready <- ReadyFD{Key: key, Mask: mask}
}

func (f *fakeAdapter) armedMask(key uint64) (IOMask, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.armed[key]
	return a.mask, ok
}

// fakeSignalAdapter is an in-memory SignalAdapter for deterministic
// signal-dispatch tests, avoiding any dependency on actually raising a
// process signal.
type fakeSignalAdapter struct {
	mu      sync.Mutex
	wake    map[int]func()
	pending map[int]struct{}
}

func newFakeSignalAdapter() *fakeSignalAdapter {
	return &fakeSignalAdapter{
		wake:    make(map[int]func()),
		pending: make(map[int]struct{}),
	}
}

func (f *fakeSignalAdapter) SignalRegister(signo int, wake func()) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.wake[signo] = wake
	return nil
}

func (f *fakeSignalAdapter) SignalUnregister(signo int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.wake, signo)
	delete(f.pending, signo)
	return nil
}

func (f *fakeSignalAdapter) Pending() []int {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.pending) == 0 {
		return nil
	}
	out := make([]int, 0, len(f.pending))
	for signo := range f.pending {
		out = append(out, signo)
	}
	clear(f.pending)
	return out
}

// raise simulates signo's delivery: it marks signo pending and invokes
// the registered wake callback, exactly like osSignalAdapter's run loop
// does from inside the os/signal delivery goroutine.
func (f *fakeSignalAdapter) raise(signo int) {
	f.mu.Lock()
	wake, ok := f.wake[signo]
	if ok {
		f.pending[signo] = struct{}{}
	}
	f.mu.Unlock()
	if ok && wake != nil {
		wake()
	}
}
