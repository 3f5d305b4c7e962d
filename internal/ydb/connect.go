package ydb

import (
	"errors"
	"slices"

	"github.com/roach88/ydb/internal/metrics"
	"github.com/roach88/ydb/internal/transport"
	"github.com/roach88/ydb/internal/wire"
)

// Connect links the store to addr. An empty addr means "uss://<name>".
//
// flags selects the role and permissions, e.g. "pub", "sub:writable",
// "sub,sync-before-read" or "sub:unsubscribe". A previous connection to
// the same address is replaced. When the link cannot be opened now the
// connection is kept and retried from Serve; Connect still succeeds.
func (s *Store) Connect(addr, flags string) error {
	if s.closed {
		return newError(CodeConnectionClosed, "connect", nil, "store %s is closed", s.name)
	}
	if addr == "" {
		addr = "uss://" + s.name
	}
	a, err := transport.ParseAddress(addr)
	if err != nil {
		return newError(CodeInvalidArgument, "connect", err, "address %q", addr)
	}
	if old := s.major(addr); old != nil {
		s.drop(old)
	}

	c := newConn(a, parseFlags(a, flags), true)
	if err := c.open(); err != nil {
		s.logger.Warn("connection open failed, will retry", "addr", addr, "error", err)
		s.park(c)
		return nil
	}
	if err := s.attach(c); err != nil {
		c.shutdown()
		return err
	}
	s.logger.Info("connected", "addr", addr, "state", c.state, "flags", c.flags.wire())
	if err := s.init(c); err != nil && !IsTimeout(err) {
		return err
	}
	return nil
}

// Disconnect closes every connection to addr, including the ones a server
// at addr accepted.
func (s *Store) Disconnect(addr string) error {
	found := false
	for _, c := range slices.Concat(s.conns, s.parked) {
		if c.addr.Raw == addr {
			s.drop(c)
			found = true
		}
	}
	if !found {
		return newError(CodeNoEntry, "disconnect", nil, "no connection to %s", addr)
	}
	s.logger.Info("disconnected", "addr", addr)
	return nil
}

// major returns the configured connection for addr, attached or parked.
func (s *Store) major(addr string) *conn {
	for _, c := range slices.Concat(s.conns, s.parked) {
		if c.major && c.addr.Raw == addr {
			return c
		}
	}
	return nil
}

// IsConnected reports whether the configured connection to addr is open.
func (s *Store) IsConnected(addr string) bool {
	c := s.major(addr)
	return c != nil && c.state != StateDisconnected
}

// IsServer reports whether the store listens on addr.
func (s *Store) IsServer(addr string) bool {
	c := s.major(addr)
	return c != nil && c.state == StateServer
}

// IsPublisher reports whether the connection to addr has the publisher role.
func (s *Store) IsPublisher(addr string) bool {
	c := s.major(addr)
	return c != nil && c.flags.publisher
}

// Conns returns a snapshot of all connections, parked ones included.
func (s *Store) Conns() []ConnInfo {
	out := make([]ConnInfo, 0, len(s.conns)+len(s.parked))
	for _, c := range s.conns {
		out = append(out, c.info())
	}
	for _, c := range s.parked {
		out = append(out, c.info())
	}
	return out
}

// init runs the handshake of a freshly opened client: announce the flags,
// offer the local tree when writable, and wait for the answer.
func (s *Store) init(c *conn) error {
	if c.state != StateClient || c.stream {
		return nil
	}
	var body []byte
	if c.flags.writable && !s.root.Empty() {
		body = s.dumpAll()
	}
	f := c.flags.wire()
	h := wire.Header{
		Seq:     c.seq.Next(),
		Kind:    wire.KindRequest,
		Op:      wire.OpInit,
		Timeout: s.timeout,
		Flags:   &f,
	}
	if err := s.send(c, h, body); err != nil {
		return err
	}
	err := s.await([]*wait{s.expect(c, h)}, s.timeout)
	if err != nil {
		s.logger.Warn("init not answered", "addr", c.name(), "error", err)
	}
	return err
}

// accept takes every pending connection of a server.
func (s *Store) accept(srv *conn) {
	for {
		ep, peer, err := srv.ln.Accept()
		if errors.Is(err, transport.ErrWouldBlock) {
			return
		}
		if err != nil {
			s.logger.Warn("accept failed", "addr", srv.name(), "error", err)
			return
		}
		c := newConn(srv.addr, connFlags{unsubscribe: true}, false)
		c.state = StateAccepted
		c.ep = ep
		c.dec = wire.NewDecoder()
		c.peer = peer
		c.timeout = s.timeout
		if err := s.attach(c); err != nil {
			s.logger.Warn("accepted connection dropped", "peer", peer, "error", err)
			c.shutdown()
			continue
		}
		s.logger.Info("client accepted", "addr", srv.name(), "peer", peer)
	}
}

// reconnect reopens parked connections whose retry interval has passed.
func (s *Store) reconnect() {
	for _, c := range slices.Clone(s.parked) {
		if !c.retry.Allow() {
			continue
		}
		if err := c.open(); err != nil {
			metrics.Reconnect(false)
			s.logger.Debug("reconnect failed", "addr", c.name(), "error", err)
			continue
		}
		s.unpark(c)
		if err := s.attach(c); err != nil {
			metrics.Reconnect(false)
			c.shutdown()
			s.park(c)
			continue
		}
		metrics.Reconnect(true)
		s.logger.Info("reconnected", "addr", c.name(), "state", c.state)
		if err := s.init(c); err != nil && !IsTimeout(err) {
			s.logger.Warn("reconnect init failed", "addr", c.name(), "error", err)
		}
	}
	s.releasePoller()
}
