package ydb

import (
	"bytes"
	"io"
	"slices"
	"strings"

	"github.com/roach88/ydb/internal/wire"
	"github.com/roach88/ydb/internal/ynode"
)

// ReadHookFunc refreshes the data below path on demand. It writes YAML,
// rooted at the top of the tree, to w; the text is merged and published
// before the read that triggered the hook proceeds.
type ReadHookFunc func(path string, w io.Writer) error

// WriteHookFunc observes a change at or below the path the hook was added
// for. Change.Node must not be retained; deleted nodes are already dropped.
type WriteHookFunc func(c ynode.Change)

type writeHook struct {
	fn         WriteHookFunc
	suppressed bool
}

// hookPath normalizes a hook path: "/a/b", or "/" for the root.
func hookPath(path string) string {
	keys, _, _ := ynode.SplitPath(path)
	if len(keys) == 0 {
		return "/"
	}
	return "/" + strings.Join(keys, "/")
}

// parentPath returns the path one level up; the root is its own parent.
func parentPath(p string) string {
	i := strings.LastIndexByte(p, '/')
	if i <= 0 {
		return "/"
	}
	return p[:i]
}

// nearest returns the closest key of hooks at or above p.
func nearest[V any](hooks map[string]V, p string) (string, bool) {
	for {
		if _, ok := hooks[p]; ok {
			return p, true
		}
		if p == "/" {
			return "", false
		}
		p = parentPath(p)
	}
}

// covers reports whether hook path h lies at or below p.
func covers(p, h string) bool {
	return p == "/" || h == p || strings.HasPrefix(h, p+"/")
}

// AddReadHook registers fn for the subtree at path. A path that already has
// a read hook is an entry-exists error; delete the old hook first.
func (s *Store) AddReadHook(path string, fn ReadHookFunc) error {
	if fn == nil {
		return newError(CodeInvalidArgument, "add read hook", nil, "nil hook")
	}
	key := hookPath(path)
	if _, ok := s.readHooks[key]; ok {
		return newError(CodeEntryExists, "add read hook", nil, "read hook at %s", key)
	}
	s.readHooks[key] = fn
	return nil
}

// DeleteReadHook removes the read hook at path.
func (s *Store) DeleteReadHook(path string) error {
	key := hookPath(path)
	if _, ok := s.readHooks[key]; !ok {
		return newError(CodeNoEntry, "delete read hook", nil, "no read hook at %s", key)
	}
	delete(s.readHooks, key)
	return nil
}

// runReadHooks runs the read hooks that cover the leaves of q: every hook
// below a leaf, or the nearest one above it when there is none below. A
// nil q runs them all. Each hook runs once, in path order.
func (s *Store) runReadHooks(q *ynode.Node, source *conn) {
	if len(s.readHooks) == 0 {
		return
	}
	selected := make(map[string]bool)
	if q == nil {
		for p := range s.readHooks {
			selected[p] = true
		}
	} else {
		_ = ynode.Traverse(q, func(n *ynode.Node) error {
			p := n.Path()
			found := false
			for h := range s.readHooks {
				if covers(p, h) {
					selected[h] = true
					found = true
				}
			}
			if !found {
				if h, ok := nearest(s.readHooks, p); ok {
					selected[h] = true
				}
			}
			return nil
		}, ynode.LeafOnly)
	}

	paths := make([]string, 0, len(selected))
	for p := range selected {
		paths = append(paths, p)
	}
	slices.Sort(paths)
	for _, p := range paths {
		fn := s.readHooks[p]
		if fn == nil {
			continue
		}
		var buf bytes.Buffer
		if err := fn(p, &buf); err != nil {
			s.logger.Warn("read hook failed", "path", p, "error", err)
			continue
		}
		if err := s.mergeFrom(source, nil, buf.Bytes()); err != nil {
			s.logger.Warn("read hook output not merged", "path", p, "error", err)
		}
	}
}

// AddWriteHook registers fn for changes at or below path, creating the path
// when it does not exist yet. A suppressed hook is called once per mutation
// pass with only the op and its own path. A path that already has a write
// hook is an entry-exists error.
func (s *Store) AddWriteHook(path string, fn WriteHookFunc, suppressed bool) error {
	if fn == nil {
		return newError(CodeInvalidArgument, "add write hook", nil, "nil hook")
	}
	key := hookPath(path)
	if _, ok := s.writeHooks[key]; ok {
		return newError(CodeEntryExists, "add write hook", nil, "write hook at %s", key)
	}
	if key != "/" && ynode.Search(s.root, key) == nil {
		rec := s.recorder(nil, wire.OpMerge)
		_, err := ynode.CreatePath(key, s.root, rec)
		s.finish(nil, rec)
		if err != nil {
			return pathError("add write hook", err, key)
		}
	}
	s.writeHooks[key] = &writeHook{fn: fn, suppressed: suppressed}
	return nil
}

// DeleteWriteHook removes the write hook at path.
func (s *Store) DeleteWriteHook(path string) error {
	key := hookPath(path)
	if _, ok := s.writeHooks[key]; !ok {
		return newError(CodeNoEntry, "delete write hook", nil, "no write hook at %s", key)
	}
	delete(s.writeHooks, key)
	return nil
}

// fireWriteHooks hands each change to the nearest write hook at or above
// the changed node.
func (s *Store) fireWriteHooks(changes []ynode.Change) {
	if len(s.writeHooks) == 0 || len(changes) == 0 {
		return
	}
	fired := make(map[*writeHook]bool)
	for _, c := range changes {
		key, ok := nearest(s.writeHooks, c.Path)
		if !ok {
			continue
		}
		h := s.writeHooks[key]
		if h.suppressed {
			if fired[h] {
				continue
			}
			fired[h] = true
			h.fn(ynode.Change{Op: c.Op, Path: key})
			continue
		}
		h.fn(c)
	}
}
