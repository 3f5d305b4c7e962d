//go:build unix && !linux

package transport

import (
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"golang.org/x/sys/unix"
)

type pollPoller struct {
	mu   sync.Mutex
	fds  []int
	pipe [2]int
}

// NewPoller creates a poll(2) based poller with a self-pipe for wake-ups.
func NewPoller() (Poller, error) {
	p := &pollPoller{}
	if err := unix.Pipe(p.pipe[:]); err != nil {
		return nil, fmt.Errorf("pipe: %w", err)
	}
	for _, fd := range p.pipe {
		unix.CloseOnExec(fd)
		if err := unix.SetNonblock(fd, true); err != nil {
			p.Close()
			return nil, fmt.Errorf("nonblock: %w", err)
		}
	}
	return p, nil
}

func (p *pollPoller) Register(fd int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if slices.Contains(p.fds, fd) {
		return fmt.Errorf("register %d: %w", fd, unix.EEXIST)
	}
	p.fds = append(p.fds, fd)
	return nil
}

func (p *pollPoller) Unregister(fd int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if i := slices.Index(p.fds, fd); i >= 0 {
		p.fds = slices.Delete(p.fds, i, i+1)
	}
	return nil
}

func (p *pollPoller) Wait(timeout time.Duration) ([]int, error) {
	p.mu.Lock()
	set := make([]unix.PollFd, 0, len(p.fds)+1)
	set = append(set, unix.PollFd{Fd: int32(p.pipe[0]), Events: unix.POLLIN})
	for _, fd := range p.fds {
		set = append(set, unix.PollFd{Fd: int32(fd), Events: unix.POLLIN})
	}
	p.mu.Unlock()

	n, err := unix.Poll(set, durationMillis(timeout))
	if errors.Is(err, unix.EINTR) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("poll: %w", err)
	}
	ready := make([]int, 0, n)
	for i, pfd := range set {
		if pfd.Revents == 0 {
			continue
		}
		if i == 0 {
			var buf [64]byte
			for {
				if n, _ := unix.Read(p.pipe[0], buf[:]); n <= 0 {
					break
				}
			}
			continue
		}
		ready = append(ready, int(pfd.Fd))
	}
	return ready, nil
}

func (p *pollPoller) Wake() error {
	_, err := unix.Write(p.pipe[1], []byte{1})
	if err != nil && !errors.Is(err, unix.EAGAIN) {
		return fmt.Errorf("wake: %w", err)
	}
	return nil
}

func (p *pollPoller) Close() error {
	err := unix.Close(p.pipe[0])
	if cerr := unix.Close(p.pipe[1]); err == nil {
		err = cerr
	}
	return err
}
