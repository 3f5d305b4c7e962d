package ydb

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/roach88/ydb/internal/transport"
	"github.com/roach88/ydb/internal/wire"
)

// State is the position of a connection in its lifecycle.
type State int

const (
	// StateDisconnected is a configured connection waiting to be reopened.
	StateDisconnected State = iota
	// StateServer is a listening socket.
	StateServer
	// StateClient is a connection this store opened.
	StateClient
	// StateAccepted is a connection a Server accepted.
	StateAccepted
)

var stateNames = [...]string{"disconnected", "server", "client", "accepted"}

// String returns the state name.
func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "unknown"
	}
	return stateNames[s]
}

// connFlags are the settings parsed from a connect flag string, or adopted
// from a peer's init request.
type connFlags struct {
	publisher   bool
	writable    bool
	unsubscribe bool
	sync        bool
	unreadable  bool
}

// parseFlags reads a flag string such as "pub:writable" or "sub,sync".
// Tokens are separated by ':', ',', '.', '-' or space and match by prefix.
// Unknown tokens are ignored. file:// connections are always write-only.
func parseFlags(a transport.Address, s string) connFlags {
	var f connFlags
	tokens := strings.FieldsFunc(s, func(r rune) bool {
		return strings.ContainsRune(":,.- ", r)
	})
	for _, tok := range tokens {
		switch {
		case tok == "p" || strings.HasPrefix(tok, "pub"):
			f.publisher = true
			f.writable = true
		case tok == "s" || strings.HasPrefix(tok, "sub"):
			f.publisher = false
		case strings.HasPrefix(tok, "sync"):
			f.sync = true
		case tok == "ro":
			f.writable = false
		case tok == "rw":
			f.writable = true
		case tok == "wo":
			f.writable = true
			f.unreadable = true
		case strings.HasPrefix(tok, "u"):
			f.unsubscribe = true
		case strings.HasPrefix(tok, "w"):
			f.writable = true
		}
	}
	if a.Scheme == transport.SchemeFile {
		f = connFlags{writable: true, unreadable: true}
	}
	return f
}

// wire returns the flags announced in an init request.
func (f connFlags) wire() wire.Flags {
	return wire.Flags{
		Publisher:   f.publisher,
		Readable:    !f.unreadable,
		Writable:    f.writable,
		Unsubscribe: f.unsubscribe,
	}
}

// adopt takes over the flags a peer announced.
func (f *connFlags) adopt(w wire.Flags) {
	f.publisher = w.Publisher
	f.writable = w.Writable
	f.unsubscribe = w.Unsubscribe
	f.unreadable = !w.Readable
}

// sequence numbers the frames sent on one connection. Like the conn that
// holds it, it is only touched by the serving goroutine.
type sequence uint32

// Next returns the next sequence number.
func (s *sequence) Next() uint32 {
	*s++
	return uint32(*s)
}

// Current returns the last number handed out.
func (s *sequence) Current() uint32 {
	return uint32(*s)
}

// conn is one link of a store.
type conn struct {
	// id tags the nodes this connection writes, so whispers can find it.
	id    string
	addr  transport.Address
	flags connFlags
	state State

	// major marks connections configured with Connect. They are parked and
	// reopened on failure; all others are discarded.
	major bool

	// stream marks file and fifo links: no init handshake, every publish
	// is delivered.
	stream bool

	ep   transport.Endpoint
	ln   *transport.Listener
	dec  *wire.Decoder
	seq  sequence
	peer string

	// timeout is the wait bound the peer announced in its init request.
	timeout time.Duration

	// retry paces reopen attempts while parked.
	retry *rate.Limiter
}

func newConn(a transport.Address, f connFlags, major bool) *conn {
	return &conn{
		id:     uuid.NewString(),
		addr:   a,
		flags:  f,
		major:  major,
		stream: a.Scheme == transport.SchemeFile || a.Scheme == transport.SchemeFIFO,
	}
}

// fd returns the descriptor to poll, or -1 when there is none.
func (c *conn) fd() int {
	switch {
	case c.ln != nil:
		return c.ln.Fd()
	case c.ep != nil:
		return c.ep.Fd()
	}
	return -1
}

// name identifies the connection in logs and journal entries.
func (c *conn) name() string {
	if c.peer != "" {
		return c.peer
	}
	return c.addr.Raw
}

// subscribed reports whether publishes are delivered to c.
func (c *conn) subscribed() bool {
	switch c.state {
	case StateClient:
		return c.stream || c.flags.writable
	case StateAccepted:
		return !c.flags.unsubscribe
	}
	return false
}

// syncTarget reports whether a sync asks c for its data. forced syncs ask
// every client; otherwise only clients carrying the sync flag are asked.
func (c *conn) syncTarget(forced bool) bool {
	if c.flags.unreadable {
		return false
	}
	switch c.state {
	case StateClient:
		return c.stream || forced || c.flags.sync
	case StateAccepted:
		return c.flags.writable
	}
	return false
}

// shutdown closes the endpoint or listener. The conn can be reopened.
func (c *conn) shutdown() error {
	var err error
	if c.ln != nil {
		err = c.ln.Close()
		c.ln = nil
	}
	if c.ep != nil {
		if cerr := c.ep.Close(); err == nil {
			err = cerr
		}
		c.ep = nil
	}
	c.dec = nil
	c.state = StateDisconnected
	return err
}

// open establishes the link named by c.addr. A publisher first tries to
// listen and falls back to dialing when the address is taken.
func (c *conn) open() error {
	var err error
	switch c.addr.Scheme {
	case transport.SchemeFile:
		c.ep, err = transport.OpenFile(c.addr)
	case transport.SchemeFIFO:
		c.ep, err = transport.OpenFIFO(c.addr)
	default:
		if c.flags.publisher {
			if c.ln, err = transport.Listen(c.addr); err == nil {
				c.state = StateServer
				return nil
			}
			c.ln = nil
		}
		c.ep, err = transport.Dial(c.addr)
	}
	if err != nil {
		c.ep = nil
		return err
	}
	c.state = StateClient
	c.dec = wire.NewDecoder()
	return nil
}

// ConnInfo describes one connection of a store.
type ConnInfo struct {
	Addr    string
	Peer    string
	State   State
	Flags   string // wire form, e.g. "prw-"
	Sync    bool
	Major   bool
	Timeout time.Duration
}

func (c *conn) info() ConnInfo {
	return ConnInfo{
		Addr:    c.addr.Raw,
		Peer:    c.peer,
		State:   c.state,
		Flags:   c.flags.wire().String(),
		Sync:    c.flags.sync,
		Major:   c.major,
		Timeout: c.timeout,
	}
}
