package transport

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
)

// DefaultPort is used by tcp:// addresses without a port.
const DefaultPort = 3677

var (
	// ErrInvalidAddress reports an address with an unknown scheme or a
	// malformed body.
	ErrInvalidAddress = errors.New("transport: invalid address")

	// ErrWouldBlock reports a read with nothing to deliver yet. It is
	// transient; wait on the poller and retry.
	ErrWouldBlock = errors.New("transport: would block")

	// ErrClosed reports a peer that closed the stream (a zero-byte read) or
	// an endpoint used after Close.
	ErrClosed = errors.New("transport: connection closed")
)

// Scheme is the transport kind named by an address prefix.
type Scheme int

const (
	SchemeUnix     Scheme = iota + 1 // us://path
	SchemeAbstract                   // uss://name
	SchemeTCP                        // tcp://ip[:port]
	SchemeFIFO                       // fifo://in,out
	SchemeFile                       // file://path
)

var schemes = []struct {
	prefix string
	scheme Scheme
}{
	{"uss://", SchemeAbstract},
	{"us://", SchemeUnix},
	{"tcp://", SchemeTCP},
	{"fifo://", SchemeFIFO},
	{"file://", SchemeFile},
}

func (s Scheme) String() string {
	for _, e := range schemes {
		if e.scheme == s {
			return strings.TrimSuffix(e.prefix, "://")
		}
	}
	return "unknown"
}

// Address is a parsed connection address.
type Address struct {
	Raw    string
	Scheme Scheme
	Path   string // us, uss, file: socket path, abstract name or file name
	IP     net.IP // tcp
	Port   int    // tcp
	In     string // fifo: the pipe this side reads
	Out    string // fifo: the pipe this side writes
}

func (a Address) String() string { return a.Raw }

// Socket reports whether the address names a stream socket, which can
// listen or dial.
func (a Address) Socket() bool {
	return a.Scheme == SchemeUnix || a.Scheme == SchemeAbstract || a.Scheme == SchemeTCP
}

// Stdout reports whether the address is file://stdout.
func (a Address) Stdout() bool {
	return a.Scheme == SchemeFile && a.Path == "stdout"
}

// ParseAddress parses one of us://, uss://, tcp://, fifo:// or file://.
func ParseAddress(raw string) (Address, error) {
	a := Address{Raw: raw}
	var body string
	for _, e := range schemes {
		if rest, ok := strings.CutPrefix(raw, e.prefix); ok {
			a.Scheme, body = e.scheme, rest
			break
		}
	}
	if a.Scheme == 0 {
		return a, fmt.Errorf("%w: %q", ErrInvalidAddress, raw)
	}
	if body == "" {
		return a, fmt.Errorf("%w: %q has no target", ErrInvalidAddress, raw)
	}

	switch a.Scheme {
	case SchemeTCP:
		host, port := body, ""
		if h, p, err := net.SplitHostPort(body); err == nil {
			host, port = h, p
		}
		a.IP = net.ParseIP(host)
		if a.IP == nil {
			return a, fmt.Errorf("%w: %q is not an IP address", ErrInvalidAddress, host)
		}
		a.Port = DefaultPort
		if port != "" {
			p, err := strconv.Atoi(port)
			if err != nil || p <= 0 || p > 65535 {
				return a, fmt.Errorf("%w: port %q", ErrInvalidAddress, port)
			}
			a.Port = p
		}
	case SchemeFIFO:
		parts := strings.FieldsFunc(body, func(r rune) bool {
			return r == ',' || r == ':' || r == ' '
		})
		if len(parts) != 2 {
			return a, fmt.Errorf("%w: %q needs fifo://in,out", ErrInvalidAddress, raw)
		}
		a.In, a.Out = parts[0], parts[1]
	default:
		a.Path = body
	}
	return a, nil
}
