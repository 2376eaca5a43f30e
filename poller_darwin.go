//go:build darwin

package schedcore

import (
	"sync"
	"time"

	"golang.org/x/sys/unix"
)

// maxFDLimit bounds how large the dynamic fd-key slice is allowed to
// grow.
const maxFDLimit = 100000000

// unixAdapter is the default Adapter on Darwin, backed by kqueue. Like
// its Linux counterpart it stores no callbacks, only an fd->key map,
// leaving all dispatch to the scheduler.
type unixAdapter struct {
	kq int

	mu     sync.RWMutex
	fdKey  []uint64
	active []bool
	mask   []IOMask

	wakeR, wakeW int

	eventBuf [256]unix.Kevent_t
}

func newDefaultAdapter() (Adapter, error) {
	return &unixAdapter{}, nil
}

// Init creates the kqueue instance and registers the wake pipe's read
// end for EVFILT_READ.
func (p *unixAdapter) Init() error {
	kq, err := unix.Kqueue()
	if err != nil {
		return err
	}
	unix.CloseOnExec(kq)
	p.kq = kq
	p.fdKey = make([]uint64, 1024)
	p.active = make([]bool, 1024)
	p.mask = make([]IOMask, 1024)

	r, w, err := createWakeFd()
	if err != nil {
		_ = unix.Close(kq)
		return err
	}
	p.wakeR, p.wakeW = r, w

	_, err = unix.Kevent(p.kq, []unix.Kevent_t{{
		Ident:  uint64(r),
		Filter: unix.EVFILT_READ,
		Flags:  unix.EV_ADD | unix.EV_ENABLE,
	}}, nil, nil)
	if err != nil {
		closeWakeFd(p.wakeR, p.wakeW)
		_ = unix.Close(kq)
		return err
	}
	return nil
}

// Uninit releases the kqueue instance and wake pipe.
func (p *unixAdapter) Uninit() error {
	closeWakeFd(p.wakeR, p.wakeW)
	return unix.Close(p.kq)
}

func (p *unixAdapter) grow(fd int) {
	if fd < len(p.fdKey) {
		return
	}
	newSize := fd*2 + 1
	if newSize > maxFDLimit {
		newSize = maxFDLimit + 1
	}
	newKeys := make([]uint64, newSize)
	newActive := make([]bool, newSize)
	newMask := make([]IOMask, newSize)
	copy(newKeys, p.fdKey)
	copy(newActive, p.active)
	copy(newMask, p.mask)
	p.fdKey, p.active, p.mask = newKeys, newActive, newMask
}

// ArmFD registers or updates interest for fd under key. A zero mask
// removes the registration.
func (p *unixAdapter) ArmFD(key uint64, fd int, mask IOMask) error {
	if fd < 0 || fd >= maxFDLimit {
		return ErrInvalidArgument
	}

	p.mu.Lock()
	p.grow(fd)
	oldMask := p.mask[fd]
	p.mu.Unlock()

	if mask == 0 {
		if oldMask == 0 {
			return nil
		}
		if _, err := unix.Kevent(p.kq, kevents(fd, oldMask, unix.EV_DELETE), nil, nil); err != nil {
			return err
		}
		p.mu.Lock()
		p.active[fd] = false
		p.mask[fd] = 0
		p.mu.Unlock()
		return nil
	}

	var changes []unix.Kevent_t
	if removed := oldMask &^ mask; removed != 0 {
		changes = append(changes, kevents(fd, removed, unix.EV_DELETE)...)
	}
	if added := mask &^ oldMask; added != 0 {
		changes = append(changes, kevents(fd, added, unix.EV_ADD|unix.EV_ENABLE)...)
	}
	if len(changes) > 0 {
		if _, err := unix.Kevent(p.kq, changes, nil, nil); err != nil {
			return err
		}
	}

	p.mu.Lock()
	p.fdKey[fd] = key
	p.active[fd] = true
	p.mask[fd] = mask
	p.mu.Unlock()
	return nil
}

// Poll blocks for up to timeout waiting for armed fds to become ready.
func (p *unixAdapter) Poll(timeout time.Duration, dst []ReadyFD) ([]ReadyFD, error) {
	var ts *unix.Timespec
	if timeout >= 0 {
		ts = &unix.Timespec{
			Sec:  int64(timeout / time.Second),
			Nsec: int64(timeout % time.Second),
		}
	}

	n, err := unix.Kevent(p.kq, nil, p.eventBuf[:], ts)
	if err != nil {
		if err == unix.EINTR {
			return dst, nil
		}
		return dst, err
	}

	for i := 0; i < n; i++ {
		fd := int(p.eventBuf[i].Ident)
		if fd == p.wakeR {
			drainWakeUpPipe(p.wakeR)
			continue
		}
		p.mu.RLock()
		var active bool
		var key uint64
		if fd < len(p.active) {
			active, key = p.active[fd], p.fdKey[fd]
		}
		p.mu.RUnlock()
		if !active {
			continue
		}
		dst = append(dst, ReadyFD{Key: key, Mask: keventToMask(&p.eventBuf[i])})
	}
	return dst, nil
}

// Wake unblocks a concurrent Poll call.
func (p *unixAdapter) Wake() error {
	return submitGenericWakeup(p.wakeW)
}

func kevents(fd int, mask IOMask, flags uint16) []unix.Kevent_t {
	var out []unix.Kevent_t
	if mask&IORead != 0 {
		out = append(out, unix.Kevent_t{Ident: uint64(fd), Filter: unix.EVFILT_READ, Flags: flags})
	}
	if mask&IOWrite != 0 {
		out = append(out, unix.Kevent_t{Ident: uint64(fd), Filter: unix.EVFILT_WRITE, Flags: flags})
	}
	return out
}

func keventToMask(kev *unix.Kevent_t) IOMask {
	var mask IOMask
	switch kev.Filter {
	case unix.EVFILT_READ:
		mask |= IORead
	case unix.EVFILT_WRITE:
		mask |= IOWrite
	}
	return mask
}
