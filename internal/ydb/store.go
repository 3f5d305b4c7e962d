package ydb

import (
	"log/slog"
	"slices"
	"time"

	"golang.org/x/time/rate"

	"github.com/roach88/ydb/internal/metrics"
	"github.com/roach88/ydb/internal/transport"
	"github.com/roach88/ydb/internal/ynode"
)

// DefaultTimeout bounds init and sync waits and paces reconnect attempts.
const DefaultTimeout = 3000 * time.Millisecond

// Journal receives every diff a store applies, local or remote.
type Journal interface {
	Record(store, op, source string, body []byte) error
}

// Store is a named datablock: a tree plus the connections that keep it in
// step with its peers.
//
// A Store is owned by one goroutine. Every method except Post must be called
// from that goroutine; other goroutines hand work over with Post.
type Store struct {
	name    string
	root    *ynode.Node
	timeout time.Duration
	logger  *slog.Logger
	journal Journal

	flushThreshold int

	conns  []*conn
	byFd   map[int]*conn
	parked []*conn
	poller transport.Poller

	// synccount is the number of attached connections carrying the sync
	// flag; reads sync first while it is positive.
	synccount int

	readHooks  map[string]ReadHookFunc
	writeHooks map[string]*writeHook
	onChange   func(started bool)

	// passes counts the mutation passes in progress.
	passes int

	waits []*wait
	inbox *inbox
	rbuf  []byte

	closed bool
}

// Option configures a Store.
type Option func(*Store)

// WithTimeout sets the init/sync deadline and the reconnect interval.
func WithTimeout(d time.Duration) Option {
	return func(s *Store) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// WithLogger sets the logger. The default is slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithJournal records every applied diff to j.
func WithJournal(j Journal) Option {
	return func(s *Store) {
		s.journal = j
	}
}

// WithFlushThreshold sets the diff size after which a mutation pass sends
// what it has recorded so far.
func WithFlushThreshold(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.flushThreshold = n
		}
	}
}

// Open creates an empty store.
func Open(name string, opts ...Option) *Store {
	s := &Store{
		name:           name,
		root:           ynode.NewMap(),
		timeout:        DefaultTimeout,
		logger:         slog.Default(),
		flushThreshold: ynode.DefaultFlushThreshold,
		byFd:           make(map[int]*conn),
		readHooks:      make(map[string]ReadHookFunc),
		writeHooks:     make(map[string]*writeHook),
		inbox:          newInbox(),
		rbuf:           make([]byte, 64*1024),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("store", name)
	return s
}

// Name returns the store name.
func (s *Store) Name() string { return s.name }

// Timeout returns the init/sync deadline.
func (s *Store) Timeout() time.Duration { return s.timeout }

// Root returns the top of the tree.
func (s *Store) Root() *ynode.Node { return s.root }

// Search returns the node at path, or nil.
func (s *Store) Search(path string) *ynode.Node {
	return ynode.Search(s.root, path)
}

// Close disconnects everything and releases the poller. The tree stays
// readable.
func (s *Store) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	s.inbox.Close()
	for _, c := range slices.Clone(s.conns) {
		s.drop(c)
	}
	s.parked = nil
	s.releasePoller()
	s.logger.Debug("store closed")
	return nil
}

// ensurePoller creates the poller on first use.
func (s *Store) ensurePoller() error {
	if s.poller != nil {
		return nil
	}
	p, err := transport.NewPoller()
	if err != nil {
		return newError(CodeSystemFailure, "poller", err, "create poller")
	}
	s.poller = p
	s.inbox.setWaker(p)
	return nil
}

// releasePoller closes the poller once nothing needs it.
func (s *Store) releasePoller() {
	if s.poller == nil || len(s.conns) > 0 || len(s.parked) > 0 {
		return
	}
	s.inbox.setWaker(nil)
	if err := s.poller.Close(); err != nil {
		s.logger.Warn("poller close failed", "error", err)
	}
	s.poller = nil
}

// attach registers an open connection.
func (s *Store) attach(c *conn) error {
	if err := s.ensurePoller(); err != nil {
		return err
	}
	if fd := c.fd(); fd >= 0 {
		if err := s.poller.Register(fd); err != nil {
			return newError(CodeSystemFailure, "attach", err, "register %s", c.name())
		}
		s.byFd[fd] = c
	}
	s.conns = append(s.conns, c)
	if c.flags.sync {
		s.synccount++
	}
	s.observeConns()
	s.logger.Debug("connection attached", "addr", c.name(), "state", c.state, "flags", c.flags.wire())
	return nil
}

// detach unregisters c and closes its endpoint.
func (s *Store) detach(c *conn) {
	i := slices.Index(s.conns, c)
	if i < 0 {
		return
	}
	s.conns = slices.Delete(s.conns, i, i+1)
	if fd := c.fd(); fd >= 0 {
		if s.poller != nil {
			_ = s.poller.Unregister(fd)
		}
		delete(s.byFd, fd)
	}
	if c.flags.sync {
		s.synccount--
	}
	if err := c.shutdown(); err != nil {
		s.logger.Debug("connection close failed", "addr", c.name(), "error", err)
	}
	s.abandonWaits(c)
	s.observeConns()
}

// drop closes c for good.
func (s *Store) drop(c *conn) {
	s.detach(c)
	s.unpark(c)
	s.releasePoller()
}

// park closes c and queues it for a later reopen, one attempt per timeout
// interval.
func (s *Store) park(c *conn) {
	s.detach(c)
	c.retry = rate.NewLimiter(rate.Every(s.timeout), 1)
	c.retry.Allow()
	if !slices.Contains(s.parked, c) {
		s.parked = append(s.parked, c)
	}
	if err := s.ensurePoller(); err != nil {
		s.logger.Warn("poller unavailable", "error", err)
	}
	s.observeConns()
}

func (s *Store) unpark(c *conn) {
	if i := slices.Index(s.parked, c); i >= 0 {
		s.parked = slices.Delete(s.parked, i, i+1)
	}
}

// fail handles a broken connection: accepted and unconfigured connections
// are discarded, configured ones are parked for reconnect.
func (s *Store) fail(c *conn, err error) {
	if c.state == StateDisconnected {
		return
	}
	if c.major {
		s.logger.Warn("connection lost, will reconnect", "addr", c.name(), "error", err)
		s.park(c)
		return
	}
	s.logger.Info("connection closed", "addr", c.name(), "error", err)
	s.drop(c)
}

func (s *Store) observeConns() {
	counts := make(map[State]int, len(stateNames))
	for _, c := range s.conns {
		counts[c.state]++
	}
	counts[StateDisconnected] += len(s.parked)
	for st := StateDisconnected; int(st) < len(stateNames); st++ {
		metrics.SetConnections(s.name, st.String(), counts[st])
	}
}
