package ydb

import (
	"context"
	"time"
)

// Post queues fn to run on the serving goroutine and wakes it. It is the
// only Store method that is safe to call from any goroutine. Returns false
// once the store is closed.
func (s *Store) Post(fn func(*Store)) bool {
	if fn == nil {
		return false
	}
	return s.inbox.Enqueue(fn)
}

// drainInbox runs the posted work.
func (s *Store) drainInbox() {
	for {
		fn, ok := s.inbox.TryDequeue()
		if !ok {
			return
		}
		fn(s)
	}
}

// Serve runs one cycle of the event loop: posted work, due reconnects, then
// a single poller wait of at most timeout (negative waits until something
// happens) with every ready connection handled. It returns a
// CodeNoConnection error when the store has nothing to wait on.
func (s *Store) Serve(ctx context.Context, timeout time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s.closed {
		return newError(CodeConnectionClosed, "serve", nil, "store %s is closed", s.name)
	}
	s.drainInbox()
	s.reconnect()
	if len(s.parked) > 0 && (timeout < 0 || timeout > s.timeout) {
		timeout = s.timeout
	}
	if err := s.poll(timeout); err != nil {
		return err
	}
	s.drainInbox()
	return nil
}

// Run serves until ctx is cancelled or the store is closed. interval bounds
// each poller wait; zero or negative uses the store timeout. While the store
// has no connection Run sleeps until work is posted.
func (s *Store) Run(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = s.timeout
	}
	stop := context.AfterFunc(ctx, s.inbox.Wake)
	defer stop()

	s.logger.Info("store serving", "conns", len(s.conns), "parked", len(s.parked))
	for {
		err := s.Serve(ctx, interval)
		switch {
		case ctx.Err() != nil:
			s.logger.Info("store stopping: context cancelled")
			return ctx.Err()
		case IsCode(err, CodeNoConnection):
			select {
			case <-ctx.Done():
				s.logger.Info("store stopping: context cancelled")
				return ctx.Err()
			case <-s.inbox.Wait():
			case <-time.After(interval):
			}
		case err != nil:
			s.logger.Info("store stopping", "error", err)
			return err
		}
	}
}
