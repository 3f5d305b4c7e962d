package ydb

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/roach88/ydb/internal/wire"
	"github.com/roach88/ydb/internal/ynode"
)

// maxLevel prints a subtree to its full depth.
const maxLevel = int(^uint(0) >> 1)

// render formats the operation text. Without arguments the format is used
// literally, so a lone '%' in YAML text survives.
func render(format string, args []any) string {
	if len(args) == 0 {
		return format
	}
	return fmt.Sprintf(format, args...)
}

// distributor streams the diff of a mutation pass to the journal and the
// subscribers.
type distributor struct {
	s      *Store
	source *conn
	op     wire.Op
}

func (d *distributor) Write(p []byte) (int, error) {
	d.s.distribute(d.source, d.op, bytes.Clone(p))
	return len(p), nil
}

func (s *Store) distribute(source *conn, op wire.Op, body []byte) {
	if s.journal != nil {
		from := ""
		if source != nil {
			from = source.name()
		}
		if err := s.journal.Record(s.name, op.String(), from, body); err != nil {
			s.logger.Warn("journal record failed", "op", op, "error", err)
		}
	}
	s.publish(source, op, body)
}

// recorder starts a mutation pass whose diff is distributed as op. Every
// recorder is handed to exactly one finish call.
func (s *Store) recorder(source *conn, op wire.Op) *ynode.Recorder {
	s.passes++
	if s.passes == 1 && s.onChange != nil {
		s.onChange(true)
	}
	return ynode.NewRecorder(
		ynode.WithSink(&distributor{s: s, source: source, op: op}),
		ynode.WithFlushThreshold(s.flushThreshold),
	)
}

// finish distributes what the passes recorded, tags the written nodes with
// the connection that wrote them and fires the write hooks.
func (s *Store) finish(writer *conn, recs ...*ynode.Recorder) {
	origin := ""
	if writer != nil {
		origin = writer.id
	}
	var changes []ynode.Change
	for _, r := range recs {
		if err := r.Flush(); err != nil {
			s.logger.Warn("diff flush failed", "error", err)
		}
		for _, c := range r.Changes() {
			if c.Op != ynode.OpDelete {
				c.Node.SetOrigin(origin)
			}
		}
		changes = append(changes, r.Changes()...)
	}
	s.fireWriteHooks(changes)

	s.passes -= len(recs)
	if s.passes == 0 && s.onChange != nil {
		s.onChange(false)
	}
}

// OnChange registers fn to run before every mutation pass (started is true)
// and after it, once its diff is distributed and the write hooks have run
// (started is false). A pass that turns out to change nothing is reported
// too. Nested passes, such as writes made by a write hook, count as part of
// the outer one. A nil fn removes the hook.
func (s *Store) OnChange(fn func(started bool)) {
	s.onChange = fn
}

// parseBody parses text for op. Local text that does not parse is an
// invalid argument, remote text an invalid message.
func parseBody(source *conn, op string, text []byte) (*ynode.Node, error) {
	n, err := ynode.Parse(text)
	if err != nil {
		code := CodeInvalidArgument
		if source != nil {
			code = CodeInvalidMessage
		}
		return nil, newError(code, op, err, "parse")
	}
	return n, nil
}

// applyMerge merges YAML text written by source into the tree and
// distributes the diff to everyone but source.
func (s *Store) applyMerge(source *conn, text []byte) error {
	return s.mergeFrom(source, source, text)
}

// mergeFrom is applyMerge for text that source delivered but origin wrote.
func (s *Store) mergeFrom(source, origin *conn, text []byte) error {
	src, err := parseBody(source, "merge", text)
	if err != nil || src == nil {
		return err
	}
	rec := s.recorder(source, wire.OpMerge)
	s.root = ynode.Merge(s.root, src, rec)
	s.finish(origin, rec)
	return nil
}

// applyDelete removes every node addressed by a leaf of the YAML text.
// List positions in the text are ignored: each List leaf removes the
// current first item, so a printed delete diff replays in order. The root
// itself is never removed.
func (s *Store) applyDelete(source *conn, text []byte) error {
	src, err := parseBody(source, "delete", text)
	if err != nil || src == nil {
		return err
	}
	rec := s.recorder(source, wire.OpDelete)
	_ = ynode.Traverse(src, func(n *ynode.Node) error {
		if t := ynode.Lookup(s.root, n, true); t != nil && t != s.root {
			ynode.Delete(t, rec)
		}
		return nil
	}, ynode.LeafFirst|ynode.LeafOnly)
	s.finish(source, rec)
	return nil
}

// Write merges YAML text into the tree and publishes the change.
//
//	s.Write("system:\n  hostname: %s\n", name)
func (s *Store) Write(format string, args ...any) error {
	return s.applyMerge(nil, []byte(render(format, args)))
}

// Delete removes the nodes addressed by the leaves of the YAML text and
// publishes the removal.
func (s *Store) Delete(format string, args ...any) error {
	return s.applyDelete(nil, []byte(render(format, args)))
}

// Replace updates the nodes that already exist without adding any. Lists
// named in the text are cleared and refilled; the cleared items are
// published as a delete before the new content is published as a merge.
func (s *Store) Replace(format string, args ...any) error {
	src, err := parseBody(nil, "replace", []byte(render(format, args)))
	if err != nil || src == nil {
		return err
	}
	deleted := s.recorder(nil, wire.OpDelete)
	merged := s.recorder(nil, wire.OpMerge)
	ynode.Replace(s.root, src, merged, deleted)
	s.finish(nil, deleted, merged)
	return nil
}

// Clear deletes the whole tree.
func (s *Store) Clear() error {
	rec := s.recorder(nil, wire.OpDelete)
	for _, c := range s.root.Children() {
		ynode.Delete(c, rec)
	}
	if s.root.Kind() == ynode.KindValue {
		s.root = ynode.NewMap()
	}
	s.finish(nil, rec)
	return nil
}

// markerPrefix tags the scalars that stand in for the conversions of a Read
// format.
const markerPrefix = "+ydb.arg."

// placeholders replaces every conversion in format ("%d", "%-8s", ...) with
// a marker scalar and returns the conversions in order. "%%" is a percent
// sign.
func placeholders(format string) (string, []string) {
	var b strings.Builder
	var verbs []string
	for i := 0; i < len(format); i++ {
		c := format[i]
		if c != '%' {
			b.WriteByte(c)
			continue
		}
		if i+1 < len(format) && format[i+1] == '%' {
			b.WriteByte('%')
			i++
			continue
		}
		j := i + 1
		for j < len(format) && !isLetter(format[j]) {
			j++
		}
		if j == len(format) {
			b.WriteString(format[i:])
			break
		}
		verbs = append(verbs, format[i:j+1])
		b.WriteString(markerPrefix + strconv.Itoa(len(verbs)-1))
		i = j
	}
	return b.String(), verbs
}

func isLetter(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func markerIndex(v string) (int, bool) {
	rest, ok := strings.CutPrefix(v, markerPrefix)
	if !ok {
		return 0, false
	}
	i, err := strconv.Atoi(rest)
	return i, err == nil
}

// scan stores value into arg following verb. String conversions take the
// whole value, spaces included.
func scan(value, verb string, arg any) error {
	if strings.HasSuffix(verb, "s") {
		if p, ok := arg.(*string); ok {
			*p = value
			return nil
		}
	}
	_, err := fmt.Sscanf(value, verb, arg)
	return err
}

// prepareRead brings the part of the tree that q names up to date: it syncs
// with the peers that asked for sync-before-read and runs the read hooks.
func (s *Store) prepareRead(q *ynode.Node) {
	if s.synccount > 0 {
		var body []byte
		if q != nil {
			body = []byte(ynode.Sprint(q))
		}
		if err := s.sync(body, false, nil, s.timeout); err != nil {
			s.logger.Debug("read proceeds without full sync", "error", err)
		}
	}
	s.runReadHooks(q, nil)
}

// Read scans values out of the tree. The format is YAML whose values are
// conversions, and args are pointers receiving them:
//
//	var host string
//	var mtu int
//	n, err := s.Read("system:\n  hostname: %s\n  mtu: %d\n", &host, &mtu)
//
// It returns the number of values read. Missing entries are skipped.
func (s *Store) Read(format string, args ...any) (int, error) {
	tmpl, verbs := placeholders(format)
	if len(verbs) != len(args) {
		return 0, newError(CodeInvalidArgument, "read", nil, "%d conversions for %d arguments", len(verbs), len(args))
	}
	q, err := parseBody(nil, "read", []byte(tmpl))
	if err != nil || q == nil {
		return 0, err
	}
	s.prepareRead(q)

	n := 0
	_ = ynode.Traverse(q, func(v *ynode.Node) error {
		i, ok := markerIndex(v.Value())
		if !ok {
			return nil
		}
		t := ynode.Lookup(s.root, v, false)
		if t == nil || t.Kind() != ynode.KindValue {
			return nil
		}
		if err := scan(t.Value(), verbs[i], args[i]); err != nil {
			s.logger.Debug("value not scanned", "path", t.Path(), "verb", verbs[i], "error", err)
			return nil
		}
		n++
		return nil
	}, ynode.LeafFirst|ynode.ValueOnly)
	return n, nil
}

// Fprint writes the subtrees named by the leaves of the YAML text to w and
// returns the number of bytes written.
func (s *Store) Fprint(w io.Writer, format string, args ...any) (int, error) {
	q, err := parseBody(nil, "print", []byte(render(format, args)))
	if err != nil || q == nil {
		return 0, err
	}
	s.prepareRead(q)
	return w.Write(s.collect(q).Bytes())
}

// Dump writes the whole tree to w.
func (s *Store) Dump(w io.Writer) (int, error) {
	return w.Write(s.dumpAll())
}

func (s *Store) dumpAll() []byte {
	return []byte(ynode.Sprint(s.root))
}

// pathError maps a ynode error to a store error.
func pathError(op string, err error, path string) error {
	code := CodeMergeFailed
	switch {
	case errors.Is(err, ynode.ErrInvalidPath), errors.Is(err, ynode.ErrInvalidArgument):
		code = CodeInvalidArgument
	case errors.Is(err, ynode.ErrTypeMismatch):
		code = CodeTypeMismatch
	case errors.Is(err, ynode.ErrNotFound):
		code = CodeNoEntry
	}
	return newError(code, op, err, "path %q", path)
}

// PathWrite creates the node named by a "/a/b/c=value" expression.
func (s *Store) PathWrite(format string, args ...any) error {
	path := render(format, args)
	rec := s.recorder(nil, wire.OpMerge)
	_, err := ynode.CreatePath(path, s.root, rec)
	s.finish(nil, rec)
	if err != nil {
		return pathError("path write", err, path)
	}
	return nil
}

// PathDelete deletes the node at path. Of a List only the first item can
// be deleted by path, since positions shift on every removal.
func (s *Store) PathDelete(format string, args ...any) error {
	path := render(format, args)
	t := ynode.Search(s.root, path)
	switch {
	case t == nil:
		return newError(CodeNoEntry, "path delete", nil, "path %q", path)
	case t == s.root:
		return newError(CodeDeleteDenied, "path delete", nil, "the root cannot be deleted")
	case t.Index() > 0:
		return newError(CodeDeleteDenied, "path delete", nil, "list item %q is not the first", path)
	}
	rec := s.recorder(nil, wire.OpDelete)
	ynode.Delete(t, rec)
	s.finish(nil, rec)
	return nil
}

// prepareReadPath is prepareRead for a path expression.
func (s *Store) prepareReadPath(path string) {
	if leaf, err := ynode.CreatePath(path, nil, nil); err == nil {
		s.prepareRead(leaf.Top())
	}
}

// PathRead returns the Value at path.
func (s *Store) PathRead(format string, args ...any) (string, error) {
	path := render(format, args)
	s.prepareReadPath(path)
	t := ynode.Search(s.root, path)
	if t == nil {
		return "", newError(CodeNoEntry, "path read", nil, "path %q", path)
	}
	if t.Kind() != ynode.KindValue {
		return "", newError(CodeTypeMismatch, "path read", nil, "%q is a %s", path, t.Kind())
	}
	return t.Value(), nil
}

// PathFprint writes the subtree at path to w, preceded by its ancestors so
// the output is a valid document. It returns the number of bytes written.
func (s *Store) PathFprint(w io.Writer, format string, args ...any) (int, error) {
	path := render(format, args)
	s.prepareReadPath(path)
	t := ynode.Search(s.root, path)
	if t == nil {
		return 0, newError(CodeNoEntry, "path print", nil, "path %q", path)
	}
	var buf bytes.Buffer
	if t == s.root && t.Kind() == ynode.KindValue {
		buf.WriteString(t.Value())
	} else if err := ynode.Dump(&buf, t, 1-t.Level(), maxLevel); err != nil {
		return 0, newError(CodeSystemFailure, "path print", err, "path %q", path)
	}
	return w.Write(buf.Bytes())
}

// Sync fetches the subtrees named by the YAML text from every peer that
// can answer, waiting up to the store timeout. An empty text asks for
// everything. A CodeTimeout error reports peers that did not answer; what
// did arrive is merged.
func (s *Store) Sync(format string, args ...any) error {
	text := render(format, args)
	q, err := parseBody(nil, "sync", []byte(text))
	if err != nil {
		return err
	}
	err = s.sync([]byte(text), true, nil, s.timeout)
	s.runReadHooks(q, nil)
	return err
}

// PathSync is Sync for a path expression.
func (s *Store) PathSync(format string, args ...any) error {
	path := render(format, args)
	leaf, err := ynode.CreatePath(path, nil, nil)
	if err != nil {
		return pathError("path sync", err, path)
	}
	q := leaf.Top()
	err = s.sync([]byte(ynode.Sprint(q)), true, nil, s.timeout)
	s.runReadHooks(q, nil)
	return err
}
