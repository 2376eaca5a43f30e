//go:build linux

package schedcore

import (
	"sync"
	"time"

	"golang.org/x/sys/unix"
)

// maxFDs bounds the fd-indexed key/active arrays used for direct
// indexing.
const maxFDs = 65536

// unixAdapter is the default Adapter on Linux, backed by epoll. It
// stores no callbacks: ArmFD only tracks which key owns which fd, and
// Poll reports ready (key, mask) pairs for the scheduler to dispatch
// under its own lock discipline, since a callback must never run from
// inside the poller.
type unixAdapter struct {
	epfd int

	mu      sync.RWMutex
	fdKey   [maxFDs]uint64 // fd -> registered key (valid only if active[fd])
	active  [maxFDs]bool
	wakeFd  int
	wakeW   int
	version uint64

	eventBuf [256]unix.EpollEvent
}

func newDefaultAdapter() (Adapter, error) {
	return &unixAdapter{}, nil
}

// Init creates the epoll instance and the wake pipe/eventfd.
func (p *unixAdapter) Init() error {
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return err
	}
	p.epfd = epfd

	wakeFd, err := createWakeFd()
	if err != nil {
		_ = unix.Close(p.epfd)
		return err
	}
	p.wakeFd = wakeFd
	p.wakeW = wakeFd

	if err := unix.EpollCtl(p.epfd, unix.EPOLL_CTL_ADD, wakeFd, &unix.EpollEvent{
		Events: unix.EPOLLIN,
		Fd:     int32(wakeFd),
	}); err != nil {
		_ = unix.Close(wakeFd)
		_ = unix.Close(p.epfd)
		return err
	}
	return nil
}

// Uninit releases the epoll instance and wake primitive.
func (p *unixAdapter) Uninit() error {
	closeWakeFd(p.wakeFd)
	return unix.Close(p.epfd)
}

// ArmFD registers or updates interest for fd under key. A zero mask
// removes the registration.
func (p *unixAdapter) ArmFD(key uint64, fd int, mask IOMask) error {
	if fd < 0 || fd >= maxFDs {
		return ErrInvalidArgument
	}

	p.mu.Lock()
	wasActive := p.active[fd]
	p.mu.Unlock()

	if mask == 0 {
		if !wasActive {
			return nil
		}
		p.mu.Lock()
		p.active[fd] = false
		p.version++
		p.mu.Unlock()
		return unix.EpollCtl(p.epfd, unix.EPOLL_CTL_DEL, fd, nil)
	}

	ev := &unix.EpollEvent{Events: maskToEpoll(mask), Fd: int32(fd)}
	op := unix.EPOLL_CTL_ADD
	if wasActive {
		op = unix.EPOLL_CTL_MOD
	}

	p.mu.Lock()
	p.fdKey[fd] = key
	p.active[fd] = true
	p.version++
	p.mu.Unlock()

	if err := unix.EpollCtl(p.epfd, op, fd, ev); err != nil {
		p.mu.Lock()
		p.active[fd] = wasActive
		p.mu.Unlock()
		return err
	}
	return nil
}

// Poll blocks for up to timeout (or indefinitely if negative) waiting
// for armed fds to become ready, appending results to dst.
func (p *unixAdapter) Poll(timeout time.Duration, dst []ReadyFD) ([]ReadyFD, error) {
	timeoutMs := -1
	if timeout >= 0 {
		timeoutMs = int(timeout / time.Millisecond)
	}

	v := p.version
	n, err := unix.EpollWait(p.epfd, p.eventBuf[:], timeoutMs)
	if err != nil {
		if err == unix.EINTR {
			return dst, nil
		}
		return dst, err
	}
	if p.version != v {
		// A concurrent ArmFD may have invalidated these results; the
		// next Poll call will pick up current state regardless.
		return dst, nil
	}

	for i := 0; i < n; i++ {
		fd := int(p.eventBuf[i].Fd)
		if fd == p.wakeFd {
			drainWakeUpPipe(p.wakeFd)
			continue
		}
		p.mu.RLock()
		active, key := p.active[fd], p.fdKey[fd]
		p.mu.RUnlock()
		if !active {
			continue
		}
		dst = append(dst, ReadyFD{Key: key, Mask: epollToMask(p.eventBuf[i].Events)})
	}
	return dst, nil
}

// Wake unblocks a concurrent Poll call.
func (p *unixAdapter) Wake() error {
	return submitGenericWakeup(p.wakeW)
}

func maskToEpoll(mask IOMask) uint32 {
	var e uint32
	if mask&IORead != 0 {
		e |= unix.EPOLLIN
	}
	if mask&IOWrite != 0 {
		e |= unix.EPOLLOUT
	}
	return e
}

func epollToMask(e uint32) IOMask {
	var mask IOMask
	if e&unix.EPOLLIN != 0 {
		mask |= IORead
	}
	if e&unix.EPOLLOUT != 0 {
		mask |= IOWrite
	}
	if e&(unix.EPOLLERR|unix.EPOLLHUP) != 0 {
		mask |= IORead | IOWrite
	}
	return mask
}
