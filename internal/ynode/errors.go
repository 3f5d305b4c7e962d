package ynode

import "errors"

var (
	// ErrInvalidArgument reports a nil node or an otherwise unusable argument.
	ErrInvalidArgument = errors.New("ynode: invalid argument")

	// ErrTypeMismatch reports an operation that needs a different node kind,
	// such as attaching a child to a Value.
	ErrTypeMismatch = errors.New("ynode: type mismatch")

	// ErrNotFound reports a path that does not resolve.
	ErrNotFound = errors.New("ynode: no entry")

	// ErrShape reports a token sequence that cannot form a tree: a key inside
	// a List, an entry inside a Map, or an unbalanced end.
	ErrShape = errors.New("ynode: unexpected token")

	// ErrInvalidPath reports a path expression without any segment.
	ErrInvalidPath = errors.New("ynode: invalid path")
)
