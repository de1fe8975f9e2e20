//go:build !windows

package driver

import (
	"time"

	"golang.org/x/sys/unix"
)

// poller multiplexes readiness over a set of file descriptors using
// poll(2), exposing a read/write bitmask model via maskRead/maskWrite.
//
// poll(2), rather than epoll/kqueue, is used so the same implementation
// serves every unix target without per-OS syscall tables; the driver's
// poll set is expected to stay small (one entry per task currently
// blocked on I/O), where poll(2)'s O(n) rescan is not a bottleneck.
type poller struct{}

func newPoller() *poller { return &poller{} }

// wait blocks until at least one fd in fds is ready, or timeout elapses (a
// negative timeout blocks indefinitely). It returns, for every ready fd,
// the mask of ready directions.
func (p *poller) wait(fds map[uintptr]uint8, timeout time.Duration) (map[uintptr]uint8, error) {
	if len(fds) == 0 {
		return nil, nil
	}

	pfds := make([]unix.PollFd, 0, len(fds))
	for fd, mask := range fds {
		var events int16
		if mask&maskRead != 0 {
			events |= unix.POLLIN
		}
		if mask&maskWrite != 0 {
			events |= unix.POLLOUT
		}
		pfds = append(pfds, unix.PollFd{Fd: int32(fd), Events: events})
	}

	ms := -1
	if timeout >= 0 {
		ms = int(timeout.Milliseconds())
	}

	for {
		n, err := unix.Poll(pfds, ms)
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return nil, err
		}
		if n == 0 {
			return nil, nil
		}
		break
	}

	ready := make(map[uintptr]uint8, len(pfds))
	for _, pfd := range pfds {
		var mask uint8
		if pfd.Revents&(unix.POLLIN|unix.POLLHUP|unix.POLLERR) != 0 {
			mask |= maskRead
		}
		if pfd.Revents&(unix.POLLOUT|unix.POLLERR) != 0 {
			mask |= maskWrite
		}
		if mask != 0 {
			ready[uintptr(pfd.Fd)] = mask
		}
	}
	return ready, nil
}
