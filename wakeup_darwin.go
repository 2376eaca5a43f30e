//go:build darwin

package schedcore

import (
	"syscall"

	"golang.org/x/sys/unix"
)

// createWakeFd creates a self-pipe for wake-up notifications, returning
// the read end and write end. Darwin has no eventfd, so Wake() writes a
// single byte to the write end instead of incrementing a counter.
func createWakeFd() (int, int, error) {
	var fds [2]int
	if err := syscall.Pipe(fds[:]); err != nil {
		return 0, 0, err
	}

	cleanup := func() {
		_ = closeFD(fds[0])
		_ = closeFD(fds[1])
	}

	unix.CloseOnExec(fds[0])
	unix.CloseOnExec(fds[1])

	if err := syscall.SetNonblock(fds[0], true); err != nil {
		cleanup()
		return 0, 0, err
	}
	if err := syscall.SetNonblock(fds[1], true); err != nil {
		cleanup()
		return 0, 0, err
	}

	return fds[0], fds[1], nil
}

// closeWakeFd closes both ends of the wake pipe.
func closeWakeFd(r, w int) {
	if r >= 0 {
		_ = closeFD(r)
	}
	if w >= 0 && w != r {
		_ = closeFD(w)
	}
}

// drainWakeUpPipe reads (and discards) every pending byte on the wake
// pipe's read end, so it doesn't stay readable after being serviced.
func drainWakeUpPipe(r int) {
	var buf [64]byte
	for {
		if _, err := readFD(r, buf[:]); err != nil {
			break
		}
	}
}

// submitGenericWakeup writes a single byte to the wake pipe's write
// end, which is all that's needed to make kevent return early.
func submitGenericWakeup(w int) error {
	var buf [1]byte
	_, err := writeFD(w, buf[:])
	if err == unix.EAGAIN {
		// A wake is already pending in the pipe buffer; the poller will
		// observe it on its next kevent call regardless.
		return nil
	}
	return err
}
