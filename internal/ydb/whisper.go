package ydb

import (
	"github.com/roach88/ydb/internal/wire"
	"github.com/roach88/ydb/internal/ynode"
)

// writer returns the open connection that last wrote n, or nil when n was
// written locally or that connection is gone.
func (s *Store) writer(n *ynode.Node) *conn {
	id := n.Origin()
	if id == "" {
		return nil
	}
	for _, c := range s.conns {
		if c.id == id && c.state != StateDisconnected {
			return c
		}
	}
	return nil
}

// WhisperMerge hands YAML text to the store that wrote the node at path
// instead of applying it here. That store merges it and publishes the
// result like a local write; stores in between relay the whisper toward
// the writer of the same node.
//
//	s.WhisperMerge("/system/hostname", "system:\n  hostname: %s\n", name)
func (s *Store) WhisperMerge(path, format string, args ...any) error {
	return s.whisper("whisper merge", wire.OpMerge, path, render(format, args))
}

// WhisperDelete is WhisperMerge for a delete.
func (s *Store) WhisperDelete(path, format string, args ...any) error {
	return s.whisper("whisper delete", wire.OpDelete, path, render(format, args))
}

func (s *Store) whisper(op string, wop wire.Op, path, text string) error {
	t := ynode.Search(s.root, path)
	if t == nil {
		return newError(CodeNoEntry, op, nil, "path %q", path)
	}
	if t.Origin() == "" {
		return newError(CodeNoConnection, op, nil, "%q was written by this store", path)
	}
	c := s.writer(t)
	if c == nil {
		return newError(CodeNoConnection, op, nil, "the writer of %q is gone", path)
	}
	if c.flags.unreadable {
		return newError(CodeConnectionDenied, op, nil, "%s is write-only", c.name())
	}
	q, err := parseBody(nil, op, []byte(text))
	if err != nil || q == nil {
		return err
	}
	h := wire.Header{Seq: c.seq.Next(), Kind: wire.KindWhisper, Op: wop}
	return s.send(c, h, wire.WhisperBody(t.Path(), []byte(text)))
}

// receiveWhisper applies a whisper aimed at a node this store wrote, or
// passes it on toward the connection that wrote the node.
func (s *Store) receiveWhisper(c *conn, f wire.Frame) {
	path, text, err := wire.SplitWhisper(f.Body)
	if err != nil || (f.Op != wire.OpMerge && f.Op != wire.OpDelete) {
		s.logger.Warn("invalid whisper dropped", "addr", c.name(), "op", f.Op, "error", err)
		return
	}
	t := ynode.Search(s.root, path)
	if t == nil {
		s.logger.Info("whisper target not found", "addr", c.name(), "path", path)
		return
	}
	if t.Origin() != "" {
		next := s.writer(t)
		if next == nil || next == c {
			s.logger.Info("whisper not relayed", "addr", c.name(), "path", path)
			return
		}
		h := wire.Header{Seq: next.seq.Next(), Kind: wire.KindWhisper, Op: f.Op}
		if err := s.send(next, h, f.Body); err != nil {
			s.logger.Warn("whisper relay failed", "to", next.name(), "path", path, "error", err)
		}
		return
	}

	s.logger.Debug("whisper applied", "addr", c.name(), "path", path, "op", f.Op)
	if f.Op == wire.OpMerge {
		err = s.applyMerge(nil, text)
	} else {
		err = s.applyDelete(nil, text)
	}
	if err != nil {
		s.logger.Warn("whisper not applied", "addr", c.name(), "path", path, "error", err)
	}
}
