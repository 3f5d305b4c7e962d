package ynode

import (
	"bytes"
	"io"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

const indentUnit = "  "

// Dump prints the subtree of n, bounded to the levels [start, end] counted
// relative to n (n is level 0, its children 1, its parent -1).
//
// When start is negative, the ancestors of n inside the window are printed
// first so the output keeps its place in the document. end below start
// prints nothing; a negative end prints only the ancestors.
func Dump(w io.Writer, n *Node, start, end int) error {
	if n == nil || end < start {
		return nil
	}
	var buf bytes.Buffer
	var ancestors []*Node
	level := -1
	for p := n.parent; p != nil && p.parent != nil && level >= start; p = p.parent {
		if level <= end {
			ancestors = append(ancestors, p)
		}
		level--
	}
	indent := 0
	for i := len(ancestors) - 1; i >= 0; i-- {
		if writeLine(&buf, ancestors[i], indent, false, false) {
			indent++
		}
	}
	dumpTree(&buf, n, 0, indent, start, end)
	_, err := w.Write(buf.Bytes())
	return err
}

func dumpTree(buf *bytes.Buffer, n *Node, level, indent, start, end int) {
	if level > end {
		return
	}
	if level >= start {
		if writeLine(buf, n, indent, false, n.kind != KindValue && n.Len() == 0) {
			indent++
		}
	}
	for _, c := range n.Children() {
		dumpTree(buf, c, level+1, indent, start, end)
	}
}

// Sprint returns the whole tree below n, without n's own header line.
func Sprint(n *Node) string {
	var buf bytes.Buffer
	if n != nil && n.parent == nil && n.kind == KindValue {
		writeLine(&buf, n, 0, false, false)
		return buf.String()
	}
	_ = Dump(&buf, n, 1, int(^uint(0)>>1))
	return buf.String()
}

// writeLine prints the line for n at the given indent and reports whether a
// line was written. A root container has no line of its own.
//
//	key: value      Value in a Map
//	- value         Value in a List
//	key:            container in a Map (key: {} / key: [] when empty)
//	-               container in a List
//	key:            deleted entry (header only)
func writeLine(buf *bytes.Buffer, n *Node, indent int, del, empty bool) bool {
	var head string
	switch {
	case n.parent == nil:
		if n.kind != KindValue || del {
			return false
		}
	case n.parent.kind == KindList:
		head = "-"
	default:
		head = formatScalar(n.key) + ":"
	}

	buf.WriteString(strings.Repeat(indentUnit, indent))
	buf.WriteString(head)
	switch {
	case del:
	case n.kind == KindValue:
		if head != "" {
			buf.WriteByte(' ')
		}
		buf.WriteString(formatScalar(n.value))
	case empty && n.kind == KindMap:
		buf.WriteString(" {}")
	case empty && n.kind == KindList:
		buf.WriteString(" []")
	}
	buf.WriteByte('\n')
	return true
}

// formatScalar renders s so that Parse reads back the same string. Plain
// style is used when it is unambiguous, otherwise yaml.v3 picks the quoting.
func formatScalar(s string) string {
	if plainSafe(s) {
		return s
	}
	out, err := yaml.Marshal(s)
	if err == nil {
		t := strings.TrimSuffix(string(out), "\n")
		if !strings.ContainsRune(t, '\n') && t != "" && t[0] != '|' && t[0] != '>' {
			return t
		}
	}
	return strconv.Quote(s)
}

func plainSafe(s string) bool {
	if s == "" || strings.TrimSpace(s) != s {
		return false
	}
	if strings.ContainsAny(s[:1], "-?:,[]{}#&*!|>'\"%@`") {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c < 0x20 || c == 0x7f {
			return false
		}
	}
	return !strings.Contains(s, ": ") && !strings.Contains(s, " #") && !strings.HasSuffix(s, ":")
}
