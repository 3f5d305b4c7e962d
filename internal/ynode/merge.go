package ynode

// Merge reconciles src into dest and returns the resulting node.
//
//   - dest == nil: the result is a deep copy of src.
//   - differing kinds: a copy of src replaces dest at dest's position under
//     dest's parent; the old subtree is dropped.
//   - Map into Map: every src key is merged into the matching dest child,
//     created when absent. Keys only in dest are left alone.
//   - List into List: copies of src's items are appended.
//   - Value into Value: dest takes src's string when they differ.
//
// src is never modified. Every created, replaced or updated node is logged
// to rec, which may be nil.
func Merge(dest, src *Node, rec *Recorder) *Node {
	if src == nil {
		return dest
	}
	if dest == nil {
		return control(nil, src, nil, "", rec)
	}
	return control(dest, src, dest.parent, dest.key, rec)
}

// control merges src into cur, which lives (or will live) under parent at key.
func control(cur, src, parent *Node, key string, rec *Recorder) *Node {
	if parent != nil {
		switch parent.kind {
		case KindValue:
			return nil
		case KindMap:
			if cur == nil {
				cur = parent.children[key]
			}
		}
	}

	var n *Node
	switch {
	case cur == nil:
		n = newNode(src.kind, src.value)
		if parent != nil {
			parent.attach(n, key)
		}
		rec.record(OpCreate, n, "", src.Len() == 0)
	case cur.kind != src.kind:
		n = newNode(src.kind, src.value)
		if parent != nil {
			parent.swap(cur, n)
		}
		rec.record(OpReplace, n, cur.value, src.Len() == 0)
	case cur.kind == KindValue && cur.value != src.value:
		old := cur.value
		cur.value = src.value
		n = cur
		rec.record(OpReplace, n, old, false)
	default:
		n = cur
	}

	switch src.kind {
	case KindMap:
		for _, k := range src.keys {
			control(n.children[k], src.children[k], n, k, rec)
		}
	case KindList:
		for _, c := range src.list {
			control(nil, c, n, "", rec)
		}
	}
	return n
}

// Copy returns a deep, detached duplicate of src.
func Copy(src *Node) *Node {
	if src == nil {
		return nil
	}
	n := newNode(src.kind, src.value)
	switch src.kind {
	case KindMap:
		for _, k := range src.keys {
			n.attach(Copy(src.children[k]), k)
		}
	case KindList:
		for _, c := range src.list {
			n.attach(Copy(c), "")
		}
	}
	return n
}

// Replace overwrites dest with src without growing it. Map keys missing from
// dest are not added, Lists are cleared and refilled with copies of src's
// items, Values are updated, and kind mismatches are skipped. Cleared List
// items are logged to deleted and new content to merged; either may be nil.
func Replace(dest, src *Node, merged, deleted *Recorder) *Node {
	if dest == nil || src == nil || dest.kind != src.kind {
		return dest
	}
	switch dest.kind {
	case KindValue:
		if dest.value != src.value {
			old := dest.value
			dest.value = src.value
			merged.record(OpReplace, dest, old, false)
		}
	case KindMap:
		for _, k := range src.keys {
			if c := dest.children[k]; c != nil {
				Replace(c, src.children[k], merged, deleted)
			}
		}
	case KindList:
		for len(dest.list) > 0 {
			Delete(dest.list[0], deleted)
		}
		for _, c := range src.list {
			control(nil, c, dest, "", merged)
		}
	}
	return dest
}

// Delete detaches n from its parent and drops its subtree. The deletion is
// logged to rec before the node is detached.
func Delete(n *Node, rec *Recorder) {
	if n == nil {
		return
	}
	rec.record(OpDelete, n, n.value, false)
	Detach(n)
	drop(n)
}

// drop clears the references held by a removed subtree.
func drop(n *Node) {
	for _, c := range n.Children() {
		c.parent = nil
		drop(c)
	}
	n.list = nil
	n.keys = nil
	n.children = nil
}

// TraverseFlag selects which nodes Traverse visits and in which order.
type TraverseFlag uint

const (
	// LeafFirst visits children before their parent.
	LeafFirst TraverseFlag = 1 << iota
	// LeafOnly visits Values and empty containers only.
	LeafOnly
	// ValueOnly visits Values only.
	ValueOnly
)

// Traverse walks the subtree rooted at n depth-first and calls fn for every
// selected node. A non-nil error from fn stops the walk and is returned.
// fn must not restructure the subtree being walked.
func Traverse(n *Node, fn func(*Node) error, flags TraverseFlag) error {
	if n == nil || fn == nil {
		return ErrInvalidArgument
	}
	visit := func() error {
		switch {
		case flags&LeafOnly != 0:
			if n.kind == KindValue || n.Len() == 0 {
				return fn(n)
			}
		case n.kind == KindValue:
			return fn(n)
		case flags&ValueOnly == 0:
			return fn(n)
		}
		return nil
	}
	if flags&LeafFirst == 0 {
		if err := visit(); err != nil {
			return err
		}
	}
	for _, c := range n.Children() {
		if err := Traverse(c, fn, flags); err != nil {
			return err
		}
	}
	if flags&LeafFirst != 0 {
		return visit()
	}
	return nil
}
