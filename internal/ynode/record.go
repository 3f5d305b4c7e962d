package ynode

import (
	"bytes"
	"io"
)

// Op names the kind of change a mutation made to a node.
type Op int

const (
	OpNone Op = iota
	OpCreate
	OpReplace
	OpDelete
)

// String returns the op name.
func (o Op) String() string {
	switch o {
	case OpCreate:
		return "create"
	case OpReplace:
		return "replace"
	case OpDelete:
		return "delete"
	default:
		return "none"
	}
}

// Change is one mutation captured by a Recorder.
type Change struct {
	Op   Op
	Node *Node
	Path string
	Old  string // previous scalar, for replaced or deleted Values
	New  string // new scalar, for created or replaced Values
}

// DefaultFlushThreshold is the buffered size after which a Recorder with a
// sink writes its output out.
const DefaultFlushThreshold = 64 * 1024

// Recorder prints the nodes touched by a mutation pass as YAML text.
//
// It remembers the chain of ancestors of the last printed node. A newly
// touched node only prints the part of its own chain that differs from that
// cursor, so ten siblings changed under one branch print the branch header
// once. A nil *Recorder is valid and records nothing.
type Recorder struct {
	buf       bytes.Buffer
	cursor    []*Node
	sink      io.Writer
	threshold int
	entries   int
	changes   []Change
	err       error
}

// RecorderOption configures a Recorder.
type RecorderOption func(*Recorder)

// WithSink makes the Recorder stream its output to w once the buffered text
// exceeds the flush threshold, and on Flush. Each chunk written is a YAML
// document that applies on its own; a list item is never split across
// chunks.
func WithSink(w io.Writer) RecorderOption {
	return func(r *Recorder) {
		r.sink = w
	}
}

// WithFlushThreshold sets the size that triggers a flush to the sink.
func WithFlushThreshold(n int) RecorderOption {
	return func(r *Recorder) {
		if n > 0 {
			r.threshold = n
		}
	}
}

// NewRecorder creates an empty Recorder.
func NewRecorder(opts ...RecorderOption) *Recorder {
	r := &Recorder{threshold: DefaultFlushThreshold}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Recorder) record(op Op, n *Node, old string, empty bool) {
	if r == nil {
		return
	}
	c := Change{Op: op, Node: n, Path: n.Path(), Old: old}
	if n.kind == KindValue && op != OpDelete {
		c.New = n.value
	}
	r.changes = append(r.changes, c)
	r.print(n, op == OpDelete, empty)
}

// Print logs n with the ancestor context it needs relative to the cursor.
func (r *Recorder) Print(n *Node) {
	if r == nil || n == nil {
		return
	}
	r.print(n, false, n.kind != KindValue && n.Len() == 0)
}

// PrintTree logs n and all of its descendants.
func (r *Recorder) PrintTree(n *Node) {
	if r == nil || n == nil {
		return
	}
	r.Print(n)
	for _, c := range n.Children() {
		r.PrintTree(c)
	}
}

// chain returns n's ancestors below the root, outermost first, ending with n.
// A root only appears as its own chain.
func chain(n *Node) []*Node {
	var out []*Node
	for c := n; c != nil && c.parent != nil; c = c.parent {
		out = append(out, c)
	}
	if len(out) == 0 {
		return []*Node{n}
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out
}

// sameSegment reports whether a and b sit at the same place: Map children
// match by key, List items only by identity.
func sameSegment(a, b *Node) bool {
	if a == b {
		return true
	}
	if a.parent == nil || b.parent == nil {
		return false
	}
	return a.parent.kind == KindMap && b.parent.kind == KindMap && a.key == b.key
}

func (r *Recorder) print(n *Node, del, empty bool) {
	nodes := chain(n)
	shared := 0
	for shared < len(nodes)-1 && shared < len(r.cursor) && sameSegment(nodes[shared], r.cursor[shared]) {
		shared++
	}
	if r.sink != nil && r.buf.Len() >= r.threshold && r.canSplit(nodes[:shared]) {
		r.flush()
		r.cursor = nil
		shared = 0
	}
	for i := shared; i < len(nodes); i++ {
		last := i == len(nodes)-1
		writeLine(&r.buf, nodes[i], i, last && del, last && empty)
	}
	r.cursor = nodes
	r.entries++
}

// canSplit reports whether the buffered text may be flushed before a node
// whose chain shares prefix with the cursor. The next chunk reprints prefix,
// which must not hold a List item: a reprinted "-" is a new item to the
// receiver. The last printed node must not be in prefix either, or the chunk
// would end on a container header whose content is still to come.
func (r *Recorder) canSplit(prefix []*Node) bool {
	if len(prefix) >= len(r.cursor) {
		return false
	}
	for _, p := range prefix {
		if p.parent != nil && p.parent.kind == KindList {
			return false
		}
	}
	return true
}

func (r *Recorder) flush() {
	if r.buf.Len() == 0 || r.err != nil {
		return
	}
	_, r.err = r.sink.Write(r.buf.Bytes())
	r.buf.Reset()
}

// Flush writes any buffered text to the sink. Without a sink it does nothing.
func (r *Recorder) Flush() error {
	if r == nil || r.sink == nil {
		return nil
	}
	r.flush()
	return r.err
}

// Empty reports whether nothing was printed: the pass made no observable
// change and need not be distributed.
func (r *Recorder) Empty() bool {
	return r == nil || r.entries == 0
}

// Bytes returns the buffered (not yet flushed) text.
func (r *Recorder) Bytes() []byte {
	if r == nil {
		return nil
	}
	return r.buf.Bytes()
}

// String returns the buffered text.
func (r *Recorder) String() string {
	return string(r.Bytes())
}

// Changes returns the mutations captured so far, in order.
func (r *Recorder) Changes() []Change {
	if r == nil {
		return nil
	}
	return r.changes
}

// Reset clears output, cursor and captured changes.
func (r *Recorder) Reset() {
	if r == nil {
		return
	}
	r.buf.Reset()
	r.cursor = nil
	r.entries = 0
	r.changes = nil
	r.err = nil
}
