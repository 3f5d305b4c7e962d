//go:build linux

package transport

import (
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sys/unix"
)

type epoller struct {
	epfd   int
	wakefd int
	events []unix.EpollEvent
}

// NewPoller creates an epoll instance with an eventfd for wake-ups.
func NewPoller() (Poller, error) {
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, fmt.Errorf("epoll_create: %w", err)
	}
	wakefd, err := unix.Eventfd(0, unix.EFD_NONBLOCK|unix.EFD_CLOEXEC)
	if err != nil {
		unix.Close(epfd)
		return nil, fmt.Errorf("eventfd: %w", err)
	}
	p := &epoller{epfd: epfd, wakefd: wakefd, events: make([]unix.EpollEvent, 64)}
	if err := p.Register(wakefd); err != nil {
		p.Close()
		return nil, err
	}
	return p, nil
}

func (p *epoller) Register(fd int) error {
	ev := unix.EpollEvent{Events: unix.EPOLLIN, Fd: int32(fd)}
	if err := unix.EpollCtl(p.epfd, unix.EPOLL_CTL_ADD, fd, &ev); err != nil {
		return fmt.Errorf("epoll_ctl add %d: %w", fd, err)
	}
	return nil
}

func (p *epoller) Unregister(fd int) error {
	err := unix.EpollCtl(p.epfd, unix.EPOLL_CTL_DEL, fd, nil)
	if err != nil && !errors.Is(err, unix.ENOENT) && !errors.Is(err, unix.EBADF) {
		return fmt.Errorf("epoll_ctl del %d: %w", fd, err)
	}
	return nil
}

func (p *epoller) Wait(timeout time.Duration) ([]int, error) {
	n, err := unix.EpollWait(p.epfd, p.events, durationMillis(timeout))
	if errors.Is(err, unix.EINTR) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("epoll_wait: %w", err)
	}
	ready := make([]int, 0, n)
	for _, ev := range p.events[:n] {
		fd := int(ev.Fd)
		if fd == p.wakefd {
			var buf [8]byte
			_, _ = unix.Read(p.wakefd, buf[:])
			continue
		}
		ready = append(ready, fd)
	}
	return ready, nil
}

func (p *epoller) Wake() error {
	var buf [8]byte
	binary.NativeEndian.PutUint64(buf[:], 1)
	_, err := unix.Write(p.wakefd, buf[:])
	if err != nil && !errors.Is(err, unix.EAGAIN) {
		return fmt.Errorf("wake: %w", err)
	}
	return nil
}

func (p *epoller) Close() error {
	err := unix.Close(p.wakefd)
	if cerr := unix.Close(p.epfd); err == nil {
		err = cerr
	}
	return err
}
