//go:build linux

package probe

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"time"

	"golang.org/x/sys/unix"

	"github.com/angeloszaimis/service-monitor/internal/instance"
)

var (
	errWaitTimeout     = errors.New("connect timeout")
	errConnectNotReady = errors.New("socket reported error without pending errno")
)

// readiness is the outcome of waiting on a connecting socket.
type readiness struct {
	readable bool
	writable bool
	failed   bool
}

// reachable classifies a readiness result. A socket that is both readable
// and writable is reported unreachable; a refused connect surfaces that way.
func (r readiness) reachable() bool {
	switch {
	case !r.readable && !r.writable:
		return false
	case r.failed:
		return false
	case r.readable && r.writable:
		return false
	default:
		return true
	}
}

// Check performs one non-blocking connect to target. The context is only
// consulted before the connect; an in-flight wait always runs to its timeout.
func (p *TCPProbe) Check(ctx context.Context, target Target, timeout time.Duration, current instance.Status) bool {
	if ctx.Err() != nil {
		return false
	}
	timeout = EffectiveTimeout(timeout)

	ip := net.ParseIP(target.Host).To4()
	if ip == nil {
		p.failure(current, "invalid ipv4 address", target)
		return false
	}

	fd, err := unix.Socket(unix.AF_INET, unix.SOCK_STREAM|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, unix.IPPROTO_TCP)
	if err != nil {
		p.logger.Error("socket failed", slog.String("target", target.String()), slog.Any("err", err))
		return false
	}
	defer unix.Close(fd)

	_ = unix.SetsockoptTimeval(fd, unix.SOL_SOCKET, unix.SO_RCVTIMEO, &unix.Timeval{Sec: 1})

	sa := &unix.SockaddrInet4{Port: target.Port}
	copy(sa.Addr[:], ip)

	if err := unix.Connect(fd, sa); err != nil && !errors.Is(err, unix.EINPROGRESS) {
		p.failure(current, "connect failed", target, slog.Any("err", err))
		return false
	}

	ready, err := waitReady(fd, timeout)
	if err != nil {
		if errors.Is(err, errWaitTimeout) {
			p.failure(current, "connect timeout", target, slog.Duration("timeout", timeout))
		} else {
			p.failure(current, "poll error", target, slog.Duration("timeout", timeout), slog.Any("err", err))
		}
		return false
	}

	switch {
	case !ready.readable && !ready.writable:
		p.failure(current, "socket neither readable nor writable", target)
	case ready.failed, ready.readable && ready.writable:
		p.failure(current, "connect failed", target, slog.Any("err", pendingError(fd)))
	}
	return ready.reachable()
}

// pendingError reads the error left on fd by an asynchronous connect.
func pendingError(fd int) error {
	soErr, err := unix.GetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_ERROR)
	if err != nil {
		return err
	}
	if soErr == 0 {
		return errConnectNotReady
	}
	return unix.Errno(soErr)
}

// waitReady polls fd for readable, writable or error conditions until the
// timeout elapses. Interrupted polls resume with the remaining time.
func waitReady(fd int, timeout time.Duration) (readiness, error) {
	deadline := time.Now().Add(timeout)
	fds := []unix.PollFd{{
		Fd:     int32(fd),
		Events: unix.POLLIN | unix.POLLOUT | unix.POLLPRI,
	}}

	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return readiness{}, errWaitTimeout
		}

		n, err := unix.Poll(fds, pollMillis(remaining))
		if errors.Is(err, unix.EINTR) {
			continue
		}
		if err != nil {
			return readiness{}, err
		}
		if n == 0 {
			return readiness{}, errWaitTimeout
		}

		ev := fds[0].Revents
		return readiness{
			readable: ev&unix.POLLIN != 0,
			writable: ev&unix.POLLOUT != 0,
			failed:   ev&(unix.POLLERR|unix.POLLHUP|unix.POLLNVAL|unix.POLLPRI) != 0,
		}, nil
	}
}

// pollMillis rounds up so a poll never returns before the deadline.
func pollMillis(d time.Duration) int {
	return int((d + time.Millisecond - 1) / time.Millisecond)
}
