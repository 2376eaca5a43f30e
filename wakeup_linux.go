//go:build linux

package schedcore

import (
	"golang.org/x/sys/unix"
)

// createWakeFd creates a non-blocking eventfd used to unblock a
// concurrent epoll_wait call.
func createWakeFd() (int, error) {
	return unix.Eventfd(0, unix.EFD_CLOEXEC|unix.EFD_NONBLOCK)
}

// closeWakeFd closes the wake eventfd.
func closeWakeFd(fd int) {
	if fd >= 0 {
		_ = closeFD(fd)
	}
}

// drainWakeUpPipe reads (and discards) every pending wake-up counter
// value, so the eventfd doesn't stay readable after being serviced.
func drainWakeUpPipe(fd int) {
	var buf [8]byte
	for {
		if _, err := readFD(fd, buf[:]); err != nil {
			break
		}
	}
}

// submitGenericWakeup increments the eventfd counter by one, which is
// all that's needed to make epoll_wait return early.
func submitGenericWakeup(fd int) error {
	var buf [8]byte
	buf[0] = 1
	_, err := writeFD(fd, buf[:])
	if err == unix.EAGAIN {
		// Counter is already non-zero (a wake is already pending); the
		// poller will observe it on its next epoll_wait regardless.
		return nil
	}
	return err
}
