package transport

import (
	"errors"
	"fmt"
	"os"
	"time"

	"golang.org/x/sys/unix"
)

// DefaultWriteTimeout bounds how long Write waits for a full socket buffer
// to drain.
const DefaultWriteTimeout = 3 * time.Second

// Endpoint is an open byte stream backed by raw descriptors, so it can be
// registered with a Poller.
type Endpoint interface {
	// Fd is the descriptor to poll for input, or -1 for write-only
	// endpoints.
	Fd() int
	// Read returns ErrWouldBlock when nothing is available and ErrClosed
	// when the peer has gone away.
	Read(p []byte) (int, error)
	// Write writes all of p or fails.
	Write(p []byte) (int, error)
	Close() error
}

// fdEndpoint reads from rfd and writes to wfd. Sockets use one descriptor
// for both; fifo pairs use two.
type fdEndpoint struct {
	rfd, wfd int
	keepW    bool // wfd is borrowed (stdout) and must not be closed
	timeout  time.Duration
	closed   bool
}

func newEndpoint(rfd, wfd int) *fdEndpoint {
	return &fdEndpoint{rfd: rfd, wfd: wfd, timeout: DefaultWriteTimeout}
}

func (e *fdEndpoint) Fd() int { return e.rfd }

func (e *fdEndpoint) Read(p []byte) (int, error) {
	if e.closed || e.rfd < 0 {
		return 0, ErrClosed
	}
	for {
		n, err := unix.Read(e.rfd, p)
		switch {
		case errors.Is(err, unix.EINTR):
			continue
		case errors.Is(err, unix.EAGAIN):
			return 0, ErrWouldBlock
		case err != nil:
			return 0, fmt.Errorf("read: %w", err)
		case n == 0 && len(p) > 0:
			return 0, ErrClosed
		}
		return n, nil
	}
}

func (e *fdEndpoint) Write(p []byte) (int, error) {
	if e.closed || e.wfd < 0 {
		return 0, ErrClosed
	}
	deadline := time.Now().Add(e.timeout)
	written := 0
	for written < len(p) {
		n, err := unix.Write(e.wfd, p[written:])
		if n > 0 {
			written += n
		}
		switch {
		case err == nil:
		case errors.Is(err, unix.EINTR):
		case errors.Is(err, unix.EAGAIN):
			if err := waitWritable(e.wfd, time.Until(deadline)); err != nil {
				return written, err
			}
		case errors.Is(err, unix.EPIPE), errors.Is(err, unix.ECONNRESET):
			return written, ErrClosed
		default:
			return written, fmt.Errorf("write: %w", err)
		}
	}
	return written, nil
}

func waitWritable(fd int, d time.Duration) error {
	if d <= 0 {
		return fmt.Errorf("write: %w", os.ErrDeadlineExceeded)
	}
	fds := []unix.PollFd{{Fd: int32(fd), Events: unix.POLLOUT}}
	for {
		n, err := unix.Poll(fds, durationMillis(d))
		if errors.Is(err, unix.EINTR) {
			continue
		}
		if err != nil {
			return fmt.Errorf("poll: %w", err)
		}
		if n == 0 {
			return fmt.Errorf("write: %w", os.ErrDeadlineExceeded)
		}
		return nil
	}
}

func (e *fdEndpoint) Close() error {
	if e.closed {
		return nil
	}
	e.closed = true
	var err error
	if e.rfd >= 0 {
		err = unix.Close(e.rfd)
	}
	if e.wfd >= 0 && e.wfd != e.rfd && !e.keepW {
		if cerr := unix.Close(e.wfd); err == nil {
			err = cerr
		}
	}
	return err
}

// durationMillis converts d to a poll timeout: negative blocks, and any
// positive duration waits at least one millisecond.
func durationMillis(d time.Duration) int {
	switch {
	case d < 0:
		return -1
	case d == 0:
		return 0
	}
	ms := d.Milliseconds()
	if ms == 0 {
		ms = 1
	}
	return int(ms)
}

// OpenFile opens a file:// address for writing, truncating it.
// file://stdout writes to the process's standard output.
func OpenFile(a Address) (Endpoint, error) {
	if a.Scheme != SchemeFile {
		return nil, fmt.Errorf("%w: %s is not a file address", ErrInvalidAddress, a)
	}
	if a.Stdout() {
		e := newEndpoint(-1, int(os.Stdout.Fd()))
		e.keepW = true
		return e, nil
	}
	fd, err := unix.Open(a.Path, unix.O_WRONLY|unix.O_CREAT|unix.O_TRUNC|unix.O_CLOEXEC, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", a.Path, err)
	}
	return newEndpoint(-1, fd), nil
}

// OpenFIFO opens a fifo://in,out pair, creating the pipes when absent.
// Both ends are opened read-write so that neither open blocks waiting for
// a peer and the read end never sees end-of-file while idle.
func OpenFIFO(a Address) (Endpoint, error) {
	if a.Scheme != SchemeFIFO {
		return nil, fmt.Errorf("%w: %s is not a fifo address", ErrInvalidAddress, a)
	}
	for _, p := range []string{a.In, a.Out} {
		if err := unix.Mkfifo(p, 0o666); err != nil && !errors.Is(err, unix.EEXIST) {
			return nil, fmt.Errorf("mkfifo %s: %w", p, err)
		}
	}
	in, err := unix.Open(a.In, unix.O_RDWR|unix.O_NONBLOCK|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", a.In, err)
	}
	out, err := unix.Open(a.Out, unix.O_RDWR|unix.O_NONBLOCK|unix.O_CLOEXEC, 0)
	if err != nil {
		unix.Close(in)
		return nil, fmt.Errorf("open %s: %w", a.Out, err)
	}
	return newEndpoint(in, out), nil
}
