package ydb

import (
	"errors"
	"slices"
	"time"

	"github.com/roach88/ydb/internal/metrics"
	"github.com/roach88/ydb/internal/transport"
	"github.com/roach88/ydb/internal/wire"
	"github.com/roach88/ydb/internal/ynode"
)

// wait is one outstanding request whose answer a caller is blocked on.
type wait struct {
	c      *conn
	op     wire.Op
	seq    uint32
	done   bool
	failed bool
}

// expect registers a wait for the answer to the request h sent on c.
func (s *Store) expect(c *conn, h wire.Header) *wait {
	w := &wait{c: c, op: h.Op, seq: h.Seq}
	s.waits = append(s.waits, w)
	return w
}

// settle marks the wait answered by f.
func (s *Store) settle(c *conn, f wire.Frame, failed bool) {
	for _, w := range s.waits {
		if w.c == c && w.op == f.Op && w.seq == f.Seq && !w.done {
			w.done, w.failed = true, failed
			return
		}
	}
}

// abandonWaits fails every wait on a connection that went away.
func (s *Store) abandonWaits(c *conn) {
	for _, w := range s.waits {
		if w.c == c && !w.done {
			w.done, w.failed = true, true
		}
	}
}

// await serves the poller until every wait is answered or the timeout
// passes. Frames from other connections are handled meanwhile. It returns a
// CodeTimeout error when an answer is missing or failed.
func (s *Store) await(ws []*wait, timeout time.Duration) error {
	defer func() {
		s.waits = slices.DeleteFunc(s.waits, func(w *wait) bool {
			return slices.Contains(ws, w)
		})
	}()
	deadline := time.Now().Add(timeout)
	for {
		pending := slices.IndexFunc(ws, func(w *wait) bool { return !w.done })
		if pending < 0 {
			break
		}
		remaining := time.Until(deadline)
		if remaining <= 0 {
			break
		}
		if err := s.poll(remaining); err != nil {
			if IsCode(err, CodeNoConnection) {
				break
			}
			return err
		}
	}
	var missing []string
	for _, w := range ws {
		if !w.done || w.failed {
			missing = append(missing, w.c.name())
		}
	}
	if len(missing) > 0 {
		return newError(CodeTimeout, ws[0].op.String(), nil, "no answer from %v", missing)
	}
	return nil
}

// send writes one frame. A write failure closes c (or parks it) and is
// reported as connection-failed.
func (s *Store) send(c *conn, h wire.Header, body []byte) error {
	if c.ep == nil {
		return newError(CodeConnectionClosed, "send", nil, "%s is not open", c.name())
	}
	if err := wire.Encode(c.ep, h, body); err != nil {
		s.fail(c, err)
		return newError(CodeConnectionFailed, "send", err, "%s", c.name())
	}
	metrics.FrameSent(h.Kind.String(), h.Op.String())
	s.logger.Debug("frame sent", "addr", c.name(), "seq", h.Seq, "type", h.Kind, "op", h.Op, "bytes", len(body))
	return nil
}

// publish sends a diff to every subscribed connection except source.
// Only merge and delete are published; an empty diff is dropped.
func (s *Store) publish(source *conn, op wire.Op, body []byte) {
	if len(body) == 0 || (op != wire.OpMerge && op != wire.OpDelete) {
		return
	}
	var targets []*conn
	for _, c := range s.conns {
		if c != source && c.subscribed() {
			targets = append(targets, c)
		}
	}
	sent := 0
	for _, c := range targets {
		if c.state == StateDisconnected {
			continue
		}
		h := wire.Header{Seq: c.seq.Next(), Kind: wire.KindPublish, Op: op}
		if s.send(c, h, body) == nil {
			sent++
		}
	}
	metrics.Published(s.name, op.String(), sent)
}

// respond answers the request f on c, echoing its sequence number.
func (s *Store) respond(c *conn, f wire.Frame, ok bool, body []byte) {
	kind := wire.KindResponse
	if !ok {
		kind = wire.KindFailed
	}
	if err := s.send(c, wire.Header{Seq: f.Seq, Kind: kind, Op: f.Op}, body); err != nil {
		s.logger.Debug("response not sent", "addr", c.name(), "op", f.Op, "error", err)
	}
}

// poll waits once on the poller and handles every ready descriptor.
func (s *Store) poll(timeout time.Duration) error {
	if s.poller == nil {
		return newError(CodeNoConnection, "serve", nil, "store %s has no connection", s.name)
	}
	ready, err := s.poller.Wait(timeout)
	if err != nil {
		return newError(CodeSystemFailure, "serve", err, "poll")
	}
	for _, fd := range ready {
		c := s.byFd[fd]
		if c == nil {
			continue
		}
		if c.state == StateServer {
			s.accept(c)
			continue
		}
		s.receive(c)
	}
	return nil
}

// receive reads everything available on c and dispatches the complete
// frames. A closed or broken stream fails the connection after the frames
// already read are handled.
func (s *Store) receive(c *conn) {
	var rerr error
	for {
		n, err := c.ep.Read(s.rbuf)
		if n > 0 {
			c.dec.Feed(s.rbuf[:n])
		}
		if err != nil {
			if !errors.Is(err, transport.ErrWouldBlock) {
				rerr = err
			}
			break
		}
	}
	dec := c.dec
	for {
		f, more, err := dec.Next()
		if errors.Is(err, wire.ErrIncomplete) {
			break
		}
		if err != nil {
			metrics.InvalidFrame()
			s.logger.Warn("invalid frame dropped", "addr", c.name(), "error", err)
		} else {
			s.dispatch(c, f)
		}
		if !more || c.state == StateDisconnected {
			break
		}
	}
	if rerr != nil {
		s.fail(c, rerr)
	}
}

// dispatch handles one frame received on c.
func (s *Store) dispatch(c *conn, f wire.Frame) {
	metrics.FrameReceived(f.Kind.String(), f.Op.String())
	s.logger.Debug("frame received", "addr", c.name(), "seq", f.Seq, "type", f.Kind, "op", f.Op, "bytes", len(f.Body))

	switch f.Kind {
	case wire.KindPublish:
		var err error
		switch f.Op {
		case wire.OpMerge:
			err = s.applyMerge(c, f.Body)
		case wire.OpDelete:
			err = s.applyDelete(c, f.Body)
		}
		if err != nil {
			s.logger.Warn("publish not applied", "addr", c.name(), "op", f.Op, "error", err)
		}
	case wire.KindRequest:
		switch f.Op {
		case wire.OpMerge:
			s.respond(c, f, s.applyMerge(c, f.Body) == nil, nil)
		case wire.OpDelete:
			s.respond(c, f, s.applyDelete(c, f.Body) == nil, nil)
		case wire.OpSync:
			body, ok := s.answerSync(c, f)
			s.respond(c, f, ok, body)
		case wire.OpInit:
			s.acceptInit(c, f)
		default:
			s.respond(c, f, false, nil)
		}
	case wire.KindResponse:
		if f.Op == wire.OpSync || f.Op == wire.OpInit {
			if err := s.applyMerge(c, f.Body); err != nil {
				s.logger.Warn("response not applied", "addr", c.name(), "op", f.Op, "error", err)
			}
		}
		s.settle(c, f, false)
	case wire.KindFailed:
		// a relayed sync that timed out upstream still carries what arrived
		if f.Op == wire.OpSync && len(f.Body) > 0 {
			if err := s.applyMerge(c, f.Body); err != nil {
				s.logger.Warn("response not applied", "addr", c.name(), "op", f.Op, "error", err)
			}
		}
		s.settle(c, f, true)
	case wire.KindWhisper:
		s.receiveWhisper(c, f)
	}
}

// acceptInit handles the handshake of an accepted client: adopt its flags,
// merge what it offers and answer with the whole tree unless it does not
// want updates.
func (s *Store) acceptInit(c *conn, f wire.Frame) {
	if c.state != StateAccepted {
		s.respond(c, f, false, nil)
		return
	}
	if f.Flags != nil {
		c.flags.adopt(*f.Flags)
	}
	if f.Timeout > 0 {
		c.timeout = f.Timeout
	}
	err := s.applyMerge(c, f.Body)
	var body []byte
	if !c.flags.unsubscribe {
		body = s.dumpAll()
	}
	s.logger.Info("client initialized", "peer", c.name(), "flags", c.flags.wire())
	s.respond(c, f, err == nil, body)
}

// answerSync relays the sync request f to this store's own sync targets,
// runs the read hooks for the query and prints the subtrees it names. An
// empty query asks for the whole tree. ok is false when an upstream peer
// did not answer in time; the body then holds what did arrive.
func (s *Store) answerSync(c *conn, f wire.Frame) (body []byte, ok bool) {
	q, err := ynode.Parse(f.Body)
	if err != nil {
		s.logger.Warn("invalid sync query", "addr", c.name(), "error", err)
		return nil, true
	}
	wait := f.Timeout
	if wait <= 0 {
		wait = c.timeout
	}
	if wait <= 0 {
		wait = s.timeout
	}
	ok = !IsTimeout(s.sync(f.Body, false, c, wait))
	s.runReadHooks(q, c)
	if q == nil {
		return s.dumpAll(), ok
	}
	return s.collect(q).Bytes(), ok
}

// collect prints every subtree of the tree that a leaf of q addresses.
func (s *Store) collect(q *ynode.Node) *ynode.Recorder {
	rec := ynode.NewRecorder()
	_ = ynode.Traverse(q, func(n *ynode.Node) error {
		rec.PrintTree(ynode.Lookup(s.root, n, false))
		return nil
	}, ynode.LeafOnly)
	return rec
}

// sync asks the sync targets other than except for the subtrees named by
// query and waits up to timeout for their answers, which merge into the
// tree as they arrive.
func (s *Store) sync(query []byte, forced bool, except *conn, timeout time.Duration) error {
	var ws []*wait
	for _, c := range slices.Clone(s.conns) {
		if c == except || !c.syncTarget(forced) {
			continue
		}
		h := wire.Header{Seq: c.seq.Next(), Kind: wire.KindRequest, Op: wire.OpSync, Timeout: timeout}
		if s.send(c, h, query) == nil {
			ws = append(ws, s.expect(c, h))
		}
	}
	if len(ws) == 0 {
		return nil
	}
	start := time.Now()
	err := s.await(ws, timeout)
	metrics.SyncFinished(time.Since(start), err != nil)
	if err != nil {
		s.logger.Warn("sync incomplete", "error", err)
	}
	return err
}
