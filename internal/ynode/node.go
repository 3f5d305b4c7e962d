package ynode

import (
	"slices"
	"strconv"
	"strings"
)

// Kind is the variant of a Node.
type Kind int

const (
	KindValue Kind = iota
	KindList
	KindMap
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindValue:
		return "value"
	case KindList:
		return "list"
	case KindMap:
		return "map"
	default:
		return "unknown"
	}
}

// Node is one element of the tree.
//
// A Value node carries a string and has no children. A List node holds its
// children in insertion order. A Map node holds its children keyed by string;
// keys are unique and iterated in lexicographic order.
type Node struct {
	kind   Kind
	value  string
	key    string // set when the parent is a Map
	pos    int    // last known index when the parent is a List
	origin string // who last wrote the node; "" for local
	parent *Node

	list     []*Node
	keys     []string // sorted
	children map[string]*Node
}

// NewValue creates a detached Value node.
func NewValue(v string) *Node {
	return &Node{kind: KindValue, value: v}
}

// NewList creates a detached, empty List node.
func NewList() *Node {
	return &Node{kind: KindList}
}

// NewMap creates a detached, empty Map node.
func NewMap() *Node {
	return &Node{kind: KindMap, children: make(map[string]*Node)}
}

func newNode(kind Kind, value string) *Node {
	switch kind {
	case KindMap:
		return NewMap()
	case KindList:
		return NewList()
	default:
		return NewValue(value)
	}
}

// Kind returns the node's variant.
func (n *Node) Kind() Kind { return n.kind }

// Value returns the scalar of a Value node, or "" for containers.
func (n *Node) Value() string {
	if n == nil || n.kind != KindValue {
		return ""
	}
	return n.value
}

// Key returns the node's key in its parent Map, or "" otherwise.
func (n *Node) Key() string {
	if n == nil || n.parent == nil || n.parent.kind != KindMap {
		return ""
	}
	return n.key
}

// Index returns the node's position in its parent List, or -1 when the
// parent is not a List.
func (n *Node) Index() int {
	if n == nil || n.parent == nil || n.parent.kind != KindList {
		return -1
	}
	list := n.parent.list
	if n.pos >= 0 && n.pos < len(list) && list[n.pos] == n {
		return n.pos
	}
	n.pos = slices.Index(list, n)
	return n.pos
}

// Origin returns the tag set by SetOrigin, "" when the node was written
// locally.
func (n *Node) Origin() string {
	if n == nil {
		return ""
	}
	return n.origin
}

// SetOrigin tags n with the peer that wrote it.
func (n *Node) SetOrigin(origin string) {
	if n != nil {
		n.origin = origin
	}
}

// Parent returns the parent node, nil for a root.
func (n *Node) Parent() *Node {
	if n == nil {
		return nil
	}
	return n.parent
}

// Top walks up to the root of the tree containing n.
func (n *Node) Top() *Node {
	if n == nil {
		return nil
	}
	for n.parent != nil {
		n = n.parent
	}
	return n
}

// Level returns the number of edges between n and its root.
func (n *Node) Level() int {
	level := 0
	for p := n.Parent(); p != nil; p = p.parent {
		level++
	}
	return level
}

// Len returns the number of children (0 for a Value).
func (n *Node) Len() int {
	if n == nil {
		return 0
	}
	switch n.kind {
	case KindList:
		return len(n.list)
	case KindMap:
		return len(n.keys)
	}
	return 0
}

// Empty reports whether n is nil, an empty container or an empty Value.
func (n *Node) Empty() bool {
	if n == nil {
		return true
	}
	if n.kind == KindValue {
		return n.value == ""
	}
	return n.Len() == 0
}

// Children returns the children in iteration order. The slice is a copy.
func (n *Node) Children() []*Node {
	switch n.Kind() {
	case KindList:
		return slices.Clone(n.list)
	case KindMap:
		out := make([]*Node, 0, len(n.keys))
		for _, k := range n.keys {
			out = append(out, n.children[k])
		}
		return out
	}
	return nil
}

// Child returns the child addressed by key: the Map entry for a Map, the
// item at the decimal index for a List. A Value has no children.
func (n *Node) Child(key string) *Node {
	if n == nil {
		return nil
	}
	switch n.kind {
	case KindMap:
		return n.children[key]
	case KindList:
		i, err := strconv.Atoi(key)
		if err != nil || i < 0 || i >= len(n.list) {
			return nil
		}
		return n.list[i]
	}
	return nil
}

// First returns the first child, or nil.
func (n *Node) First() *Node {
	c := n.Children()
	if len(c) == 0 {
		return nil
	}
	return c[0]
}

// Last returns the last child, or nil.
func (n *Node) Last() *Node {
	c := n.Children()
	if len(c) == 0 {
		return nil
	}
	return c[len(c)-1]
}

// Next returns the following sibling, or nil.
func (n *Node) Next() *Node {
	return n.sibling(1)
}

// Prev returns the preceding sibling, or nil.
func (n *Node) Prev() *Node {
	return n.sibling(-1)
}

func (n *Node) sibling(step int) *Node {
	if n == nil || n.parent == nil {
		return nil
	}
	p := n.parent
	switch p.kind {
	case KindList:
		i := n.Index() + step
		if i < 0 || i >= len(p.list) {
			return nil
		}
		return p.list[i]
	case KindMap:
		i, _ := slices.BinarySearch(p.keys, n.key)
		i += step
		if i < 0 || i >= len(p.keys) {
			return nil
		}
		return p.children[p.keys[i]]
	}
	return nil
}

// Path returns the "/"-joined path from the root to n. The root's path is "/".
func (n *Node) Path() string {
	var segs []string
	for c := n; c != nil && c.parent != nil; c = c.parent {
		segs = append(segs, c.segment())
	}
	if len(segs) == 0 {
		return "/"
	}
	slices.Reverse(segs)
	return "/" + strings.Join(segs, "/")
}

// segment is the path element addressing n inside its parent.
func (n *Node) segment() string {
	if n.parent != nil && n.parent.kind == KindList {
		return strconv.Itoa(n.Index())
	}
	return n.key
}

// attach adds child under n. In a Map an existing entry with the same key is
// detached first; in a List the child is appended.
func (n *Node) attach(child *Node, key string) {
	child.parent = n
	switch n.kind {
	case KindList:
		child.key = ""
		child.pos = len(n.list)
		n.list = append(n.list, child)
	case KindMap:
		if old, ok := n.children[key]; ok {
			old.parent = nil
		} else {
			i, _ := slices.BinarySearch(n.keys, key)
			n.keys = slices.Insert(n.keys, i, key)
		}
		child.key = key
		n.children[key] = child
	}
}

// swap puts repl at old's position under n.
func (n *Node) swap(old, repl *Node) {
	repl.parent = n
	switch n.kind {
	case KindList:
		if i := old.Index(); i >= 0 && old.parent == n {
			n.list[i] = repl
			repl.pos = i
		} else {
			repl.pos = len(n.list)
			n.list = append(n.list, repl)
		}
	case KindMap:
		n.attach(repl, old.key)
		return
	}
	old.parent = nil
}

// Detach removes n from its parent and returns it. The subtree stays intact.
func Detach(n *Node) *Node {
	if n == nil || n.parent == nil {
		return n
	}
	p := n.parent
	switch p.kind {
	case KindList:
		if i := n.Index(); i >= 0 {
			p.list = slices.Delete(p.list, i, i+1)
		}
	case KindMap:
		if p.children[n.key] == n {
			delete(p.children, n.key)
			if i, ok := slices.BinarySearch(p.keys, n.key); ok {
				p.keys = slices.Delete(p.keys, i, i+1)
			}
		}
	}
	n.parent = nil
	return n
}

// Attach adds child under parent with key (ignored for Lists). A child that
// is still attached elsewhere is detached first.
func Attach(parent, child *Node, key string) error {
	if parent == nil || child == nil {
		return ErrInvalidArgument
	}
	if parent.kind == KindValue {
		return ErrTypeMismatch
	}
	Detach(child)
	parent.attach(child, key)
	return nil
}

// Equal reports whether a and b have the same shape, keys, order and values.
func Equal(a, b *Node) bool {
	if a == nil || b == nil {
		return a == b
	}
	if a.kind != b.kind {
		return false
	}
	switch a.kind {
	case KindValue:
		return a.value == b.value
	case KindList:
		if len(a.list) != len(b.list) {
			return false
		}
		for i := range a.list {
			if !Equal(a.list[i], b.list[i]) {
				return false
			}
		}
	case KindMap:
		if !slices.Equal(a.keys, b.keys) {
			return false
		}
		for _, k := range a.keys {
			if !Equal(a.children[k], b.children[k]) {
				return false
			}
		}
	}
	return true
}
