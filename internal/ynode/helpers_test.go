package ynode

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// mustParse builds a tree from YAML text or fails the test.
func mustParse(t *testing.T, text string) *Node {
	t.Helper()
	n, err := ParseString(text)
	require.NoError(t, err)
	require.NotNil(t, n)
	return n
}

// paths collects the path of every node fn is called with.
func paths(t *testing.T, n *Node, flags TraverseFlag) []string {
	t.Helper()
	var out []string
	require.NoError(t, Traverse(n, func(c *Node) error {
		out = append(out, c.Path())
		return nil
	}, flags))
	return out
}
