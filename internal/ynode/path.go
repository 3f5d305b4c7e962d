package ynode

import (
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// closing returns the delimiter that ends a quoted or bracketed run opened by c.
func closing(c byte) byte {
	switch c {
	case '{':
		return '}'
	case '[':
		return ']'
	case '(':
		return ')'
	case '<':
		return '>'
	}
	return c
}

// SplitPath breaks a path expression into its key segments and optional
// value. Segments are separated by '/'; the first '=' ends the key part and
// everything after it is the value. Quotes and brackets protect delimiters,
// so "/a/'b/c'=1" has the segments a and b/c. Empty segments are dropped.
func SplitPath(path string) (keys []string, value string, hasValue bool) {
	start := 0
	for i := 0; i < len(path); i++ {
		c := path[i]
		switch c {
		case '\'', '"', '{', '[', '(':
			if j := strings.IndexByte(path[i+1:], closing(c)); j >= 0 {
				i += j + 1
			}
		case '/', '=':
			if seg := path[start:i]; seg != "" {
				keys = append(keys, unquote(seg))
			}
			start = i + 1
			if c == '=' {
				return keys, unquote(path[start:]), true
			}
		}
	}
	if seg := path[start:]; seg != "" {
		keys = append(keys, unquote(seg))
	}
	return keys, "", false
}

// unquote turns a quoted YAML scalar into its string. Anything else is
// returned unchanged.
func unquote(s string) string {
	if len(s) < 2 {
		return s
	}
	if (s[0] == '"' && s[len(s)-1] == '"') || (s[0] == '\'' && s[len(s)-1] == '\'') {
		var out string
		if err := yaml.Unmarshal([]byte(s), &out); err == nil {
			return out
		}
	}
	return s
}

// Search resolves path below root. Map segments match keys, List segments
// match decimal positions. It returns nil when any segment is absent or a
// Value is asked for a child. The path "/" resolves to root.
func Search(root *Node, path string) *Node {
	keys, _, _ := SplitPath(path)
	n := root
	for _, k := range keys {
		n = n.Child(k)
		if n == nil {
			return nil
		}
	}
	return n
}

// SearchBest resolves as much of path as exists and reports whether the
// whole path matched.
func SearchBest(root *Node, path string) (*Node, bool) {
	keys, _, _ := SplitPath(path)
	n := root
	for _, k := range keys {
		c := n.Child(k)
		if c == nil {
			return n, false
		}
		n = c
	}
	return n, true
}

// CreatePath builds the chain of nodes named by a "/a/b/c=value" expression.
// The last segment becomes a Value when the expression carries "=value" and
// an empty Map otherwise. Intermediate segments are Maps unless the same
// segment already exists in parent as a container, whose kind is reused.
//
// With a nil parent the chain is returned detached and the result is its
// deepest node (use Top to reach the chain root). Otherwise the chain is
// merged into parent, changes are logged to rec, and the result is the node
// at the path inside parent.
func CreatePath(path string, parent *Node, rec *Recorder) (*Node, error) {
	keys, value, hasValue := SplitPath(path)
	if len(keys) == 0 {
		return nil, ErrInvalidPath
	}
	if parent != nil && parent.kind == KindValue {
		return nil, ErrTypeMismatch
	}

	top := NewMap()
	if parent != nil && parent.kind == KindList {
		top = NewList()
	}
	found := parent
	cur := top
	for i, k := range keys {
		if found != nil {
			found = found.Child(k)
		}
		var n *Node
		switch {
		case i == len(keys)-1 && hasValue:
			n = NewValue(value)
		case i == len(keys)-1:
			n = NewMap()
		case found != nil && found.kind != KindValue:
			n = newNode(found.kind, "")
		default:
			n = NewMap()
		}
		cur.attach(n, k)
		cur = n
	}
	if parent == nil {
		return cur, nil
	}

	Merge(parent, top, rec)
	n := parent
	for _, k := range keys {
		if n = n.Child(k); n == nil {
			return nil, ErrNotFound
		}
	}
	return n, nil
}

// Lookup finds the node at ref's position (relative to ref's root) inside
// target. List positions are taken from ref, or always 0 when ignoreIndex
// is set.
func Lookup(target, ref *Node, ignoreIndex bool) *Node {
	if target == nil || ref == nil {
		return nil
	}
	var chain []*Node
	for c := ref; c.parent != nil; c = c.parent {
		chain = append(chain, c)
	}
	n := target
	for i := len(chain) - 1; i >= 0 && n != nil; i-- {
		c := chain[i]
		if idx := c.Index(); idx >= 0 {
			if ignoreIndex {
				idx = 0
			}
			n = n.Child(strconv.Itoa(idx))
		} else {
			n = n.Child(c.key)
		}
	}
	return n
}
