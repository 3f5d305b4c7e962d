package ynode

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"
)

// TokenType classifies the tokens a Builder consumes.
type TokenType int

const (
	TokenStartMap TokenType = iota + 1
	TokenStartList
	TokenEnd
	TokenKey   // the next scalar is a map key
	TokenEntry // a list item follows
	TokenScalar
)

// Token is one element of the token stream produced by a YAML tokenizer.
type Token struct {
	Type TokenType
	Text string // scalar text, TokenScalar only
}

// Builder assembles a tree from a token stream.
//
// Start tokens push a new container, attached under the container on top of
// the stack (or becoming the root when the stack is empty); End pops. A
// scalar that follows a Key token becomes the pending key; any other scalar
// is attached as a Value using the pending key. A Key inside a List or an
// Entry inside a Map is a shape error and drops the partial tree.
type Builder struct {
	root      *Node
	stack     []*Node
	pending   string
	hasKey    bool
	expectKey bool
	err       error
}

// NewBuilder creates an empty Builder.
func NewBuilder() *Builder {
	return &Builder{}
}

func (b *Builder) top() *Node {
	if len(b.stack) == 0 {
		return nil
	}
	return b.stack[len(b.stack)-1]
}

func (b *Builder) fail(format string, args ...any) error {
	b.err = fmt.Errorf("%w: "+format, append([]any{ErrShape}, args...)...)
	b.root = nil
	b.stack = nil
	return b.err
}

// place attaches n under the current container, or makes it the root.
func (b *Builder) place(n *Node) error {
	parent := b.top()
	if parent == nil {
		if b.root != nil {
			return b.fail("second root %s", n.kind)
		}
		b.root = n
		return nil
	}
	if parent.kind == KindMap && !b.hasKey {
		return b.fail("%s without key in map", n.kind)
	}
	parent.attach(n, b.pending)
	b.pending, b.hasKey = "", false
	return nil
}

// Push feeds one token.
func (b *Builder) Push(t Token) error {
	if b.err != nil {
		return b.err
	}
	switch t.Type {
	case TokenStartMap, TokenStartList:
		n := NewMap()
		if t.Type == TokenStartList {
			n = NewList()
		}
		if b.expectKey {
			return b.fail("container used as key")
		}
		if err := b.place(n); err != nil {
			return err
		}
		b.stack = append(b.stack, n)
	case TokenEnd:
		if len(b.stack) == 0 {
			return b.fail("end without start")
		}
		if b.expectKey || b.hasKey {
			return b.fail("key without value")
		}
		b.stack = b.stack[:len(b.stack)-1]
	case TokenKey:
		if p := b.top(); p == nil || p.kind != KindMap {
			return b.fail("key outside map")
		}
		b.expectKey = true
	case TokenEntry:
		if p := b.top(); p == nil || p.kind != KindList {
			return b.fail("entry outside list")
		}
	case TokenScalar:
		if b.expectKey {
			b.pending, b.hasKey, b.expectKey = t.Text, true, false
			return nil
		}
		return b.place(NewValue(t.Text))
	default:
		return b.fail("unknown token %d", t.Type)
	}
	return nil
}

// Tree returns the built tree. It fails when containers are left open.
func (b *Builder) Tree() (*Node, error) {
	if b.err != nil {
		return nil, b.err
	}
	if len(b.stack) > 0 {
		return nil, b.fail("%d unterminated containers", len(b.stack))
	}
	return b.root, nil
}

// Parse reads YAML text and builds a tree from it. Several documents are
// merged in order. Empty input gives a nil tree and no error. Scalars keep
// their source text; a null entry ("key:") becomes an empty Value.
func Parse(text []byte) (*Node, error) {
	dec := yaml.NewDecoder(bytes.NewReader(text))
	var root *Node
	for {
		var doc yaml.Node
		err := dec.Decode(&doc)
		if errors.Is(err, io.EOF) {
			return root, nil
		}
		if err != nil {
			return nil, fmt.Errorf("parse yaml: %w", err)
		}
		if nullDocument(&doc) {
			continue
		}
		b := NewBuilder()
		if err := tokenize(&doc, b); err != nil {
			return nil, err
		}
		tree, err := b.Tree()
		if err != nil {
			return nil, err
		}
		switch {
		case tree == nil:
		case root == nil:
			root = tree
		default:
			root = Merge(root, tree, nil)
		}
	}
}

// ParseString is Parse for a string.
func ParseString(text string) (*Node, error) {
	return Parse([]byte(text))
}

// nullDocument reports a document holding nothing but a null ("---" alone).
func nullDocument(doc *yaml.Node) bool {
	if len(doc.Content) == 0 {
		return true
	}
	c := doc.Content[0]
	return len(doc.Content) == 1 && c.Kind == yaml.ScalarNode && c.Tag == "!!null" && c.Value == ""
}

// tokenize walks a yaml.v3 document and feeds the equivalent tokens to b.
func tokenize(n *yaml.Node, b *Builder) error {
	switch n.Kind {
	case yaml.DocumentNode:
		for _, c := range n.Content {
			if err := tokenize(c, b); err != nil {
				return err
			}
		}
		return nil
	case yaml.MappingNode:
		if err := b.Push(Token{Type: TokenStartMap}); err != nil {
			return err
		}
		for i := 0; i+1 < len(n.Content); i += 2 {
			k := n.Content[i]
			if k.Kind != yaml.ScalarNode {
				return b.fail("non-scalar key at line %d", k.Line)
			}
			if err := b.Push(Token{Type: TokenKey}); err != nil {
				return err
			}
			if err := b.Push(Token{Type: TokenScalar, Text: k.Value}); err != nil {
				return err
			}
			if err := tokenize(n.Content[i+1], b); err != nil {
				return err
			}
		}
		return b.Push(Token{Type: TokenEnd})
	case yaml.SequenceNode:
		if err := b.Push(Token{Type: TokenStartList}); err != nil {
			return err
		}
		for _, c := range n.Content {
			if err := b.Push(Token{Type: TokenEntry}); err != nil {
				return err
			}
			if err := tokenize(c, b); err != nil {
				return err
			}
		}
		return b.Push(Token{Type: TokenEnd})
	case yaml.ScalarNode:
		return b.Push(Token{Type: TokenScalar, Text: n.Value})
	case yaml.AliasNode:
		if n.Alias == nil {
			return b.fail("dangling alias at line %d", n.Line)
		}
		return tokenize(n.Alias, b)
	}
	return nil
}
