package transport

import (
	"errors"
	"fmt"
	"net"
	"os"

	"golang.org/x/sys/unix"
)

// listenBacklog mirrors the per-store connection limit.
const listenBacklog = 64

// Listener is a bound, listening stream socket.
type Listener struct {
	fd   int
	addr Address
}

// Fd returns the listening descriptor for poller registration.
func (l *Listener) Fd() int { return l.fd }

// Addr returns the address the listener is bound to.
func (l *Listener) Addr() Address { return l.addr }

func sockaddr(a Address) (domain int, sa unix.Sockaddr, err error) {
	switch a.Scheme {
	case SchemeUnix:
		return unix.AF_UNIX, &unix.SockaddrUnix{Name: a.Path}, nil
	case SchemeAbstract:
		// A leading '@' selects the abstract namespace.
		return unix.AF_UNIX, &unix.SockaddrUnix{Name: "@" + a.Path}, nil
	case SchemeTCP:
		if ip4 := a.IP.To4(); ip4 != nil {
			sa := &unix.SockaddrInet4{Port: a.Port}
			copy(sa.Addr[:], ip4)
			return unix.AF_INET, sa, nil
		}
		sa := &unix.SockaddrInet6{Port: a.Port}
		copy(sa.Addr[:], a.IP.To16())
		return unix.AF_INET6, sa, nil
	}
	return 0, nil, fmt.Errorf("%w: %s is not a socket address", ErrInvalidAddress, a)
}

func socket(domain int) (int, error) {
	fd, err := unix.Socket(domain, unix.SOCK_STREAM, 0)
	if err != nil {
		return -1, fmt.Errorf("socket: %w", err)
	}
	unix.CloseOnExec(fd)
	return fd, nil
}

// Listen binds and listens on a socket address.
func Listen(a Address) (*Listener, error) {
	domain, sa, err := sockaddr(a)
	if err != nil {
		return nil, err
	}
	fd, err := socket(domain)
	if err != nil {
		return nil, err
	}
	if a.Scheme == SchemeTCP {
		if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
			unix.Close(fd)
			return nil, fmt.Errorf("setsockopt %s: %w", a, err)
		}
	}
	if err := unix.Bind(fd, sa); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("bind %s: %w", a, err)
	}
	if err := unix.Listen(fd, listenBacklog); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("listen %s: %w", a, err)
	}
	if err := unix.SetNonblock(fd, true); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("nonblock %s: %w", a, err)
	}
	return &Listener{fd: fd, addr: a}, nil
}

// Accept takes one pending connection. It returns ErrWouldBlock when none is
// waiting. The returned string describes the peer.
func (l *Listener) Accept() (Endpoint, string, error) {
	for {
		nfd, sa, err := unix.Accept(l.fd)
		switch {
		case errors.Is(err, unix.EINTR), errors.Is(err, unix.ECONNABORTED):
			continue
		case errors.Is(err, unix.EAGAIN):
			return nil, "", ErrWouldBlock
		case err != nil:
			return nil, "", fmt.Errorf("accept %s: %w", l.addr, err)
		}
		unix.CloseOnExec(nfd)
		if err := unix.SetNonblock(nfd, true); err != nil {
			unix.Close(nfd)
			return nil, "", fmt.Errorf("nonblock: %w", err)
		}
		return newEndpoint(nfd, nfd), peerName(l.addr, sa, nfd), nil
	}
}

func peerName(a Address, sa unix.Sockaddr, fd int) string {
	switch sa := sa.(type) {
	case *unix.SockaddrInet4:
		return "tcp://" + net.JoinHostPort(net.IP(sa.Addr[:]).String(), fmt.Sprint(sa.Port))
	case *unix.SockaddrInet6:
		return "tcp://" + net.JoinHostPort(net.IP(sa.Addr[:]).String(), fmt.Sprint(sa.Port))
	}
	return fmt.Sprintf("%s#%d", a, fd)
}

// Close stops listening. A filesystem socket is unlinked.
func (l *Listener) Close() error {
	if l.fd < 0 {
		return nil
	}
	err := unix.Close(l.fd)
	l.fd = -1
	if l.addr.Scheme == SchemeUnix {
		if rerr := os.Remove(l.addr.Path); rerr != nil && !errors.Is(rerr, os.ErrNotExist) && err == nil {
			err = rerr
		}
	}
	return err
}

// Dial connects to a socket address. The connect itself blocks; the
// resulting endpoint is non-blocking.
func Dial(a Address) (Endpoint, error) {
	domain, sa, err := sockaddr(a)
	if err != nil {
		return nil, err
	}
	fd, err := socket(domain)
	if err != nil {
		return nil, err
	}
	for {
		err = unix.Connect(fd, sa)
		if !errors.Is(err, unix.EINTR) {
			break
		}
	}
	if err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("connect %s: %w", a, err)
	}
	if err := unix.SetNonblock(fd, true); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("nonblock %s: %w", a, err)
	}
	return newEndpoint(fd, fd), nil
}
