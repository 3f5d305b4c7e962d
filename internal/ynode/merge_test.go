package ynode

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMerge_AddsKeysAndKeepsOthers(t *testing.T) {
	dest := mustParse(t, "a: 1\nb:\n  c: 2\n")
	src := mustParse(t, "b:\n  d: 3\n")

	Merge(dest, src, nil)
	assert.Equal(t, "a: 1\nb:\n  c: 2\n  d: 3\n", Sprint(dest))
}

func TestMerge_IdempotentOnMaps(t *testing.T) {
	dest := mustParse(t, "a: 1\nb:\n  c: 2\n")
	src := mustParse(t, "b:\n  c: 5\n  d: 3\n")

	Merge(dest, src, nil)
	first := Sprint(dest)

	rec := NewRecorder()
	Merge(dest, src, rec)
	assert.Equal(t, first, Sprint(dest))
	assert.True(t, rec.Empty(), "second merge must not report changes, got %q", rec.String())
}

func TestMerge_ListGrows(t *testing.T) {
	dest := mustParse(t, "items:\n- x\n")
	src := mustParse(t, "items:\n- y\n")

	Merge(dest, src, nil)
	assert.Equal(t, "items:\n  - x\n  - y\n", Sprint(dest))

	Merge(dest, src, nil)
	assert.Equal(t, 3, Search(dest, "/items").Len())
}

func TestMerge_KindChangeReplacesSubtree(t *testing.T) {
	dest := mustParse(t, "a: 1\nz: keep\n")
	src := mustParse(t, "a:\n  b: 2\n")
	rec := NewRecorder()

	Merge(dest, src, rec)
	assert.Equal(t, "a:\n  b: 2\nz: keep\n", Sprint(dest))
	assert.Equal(t, "a:\n  b: 2\n", rec.String())

	changes := rec.Changes()
	require.Len(t, changes, 2)
	assert.Equal(t, OpReplace, changes[0].Op)
	assert.Equal(t, "/a", changes[0].Path)
	assert.Equal(t, "1", changes[0].Old)
	assert.Equal(t, OpCreate, changes[1].Op)
	assert.Equal(t, "/a/b", changes[1].Path)
	assert.Equal(t, "2", changes[1].New)
}

func TestMerge_IntoNilCopies(t *testing.T) {
	src := mustParse(t, "a:\n  b: 1\n")

	n := Merge(nil, src, nil)
	assert.True(t, Equal(src, n))
	assert.NotSame(t, src, n)

	Search(n, "/a/b").value = "changed"
	assert.Equal(t, "1", Search(src, "/a/b").Value())
}

func TestMerge_SourceUntouched(t *testing.T) {
	dest := mustParse(t, "a: 1\n")
	src := mustParse(t, "a: 2\nb:\n- x\n")
	before := Sprint(src)

	Merge(dest, src, nil)
	assert.Equal(t, before, Sprint(src))
}

func TestMerge_RootKindChange(t *testing.T) {
	dest := mustParse(t, "a: 1\n")
	src := mustParse(t, "- x\n")

	n := Merge(dest, src, nil)
	assert.Equal(t, KindList, n.Kind())
	assert.Equal(t, "- x\n", Sprint(n))
}

func TestCopy(t *testing.T) {
	src := mustParse(t, "a:\n  l:\n  - 1\n  - 2\n")
	c := Copy(src)

	assert.True(t, Equal(src, c))
	assert.Nil(t, c.Parent())
	assert.Nil(t, Copy(nil))
}

func TestReplace_DoesNotGrow(t *testing.T) {
	dest := mustParse(t, "a: 1\nl:\n- x\n- y\n")
	src := mustParse(t, "a: 2\nb: 3\nl:\n- z\n")
	merged, deleted := NewRecorder(), NewRecorder()

	Replace(dest, src, merged, deleted)

	assert.Equal(t, "a: 2\nl:\n  - z\n", Sprint(dest))
	assert.Equal(t, "a: 2\nl:\n  - z\n", merged.String())
	assert.Equal(t, "l:\n  -\n  -\n", deleted.String())
}

func TestReplace_SkipsKindMismatch(t *testing.T) {
	dest := mustParse(t, "a: 1\n")
	src := mustParse(t, "a:\n  b: 2\n")
	rec := NewRecorder()

	Replace(dest, src, rec, nil)
	assert.Equal(t, "a: 1\n", Sprint(dest))
	assert.True(t, rec.Empty())
}

func TestDelete(t *testing.T) {
	root := mustParse(t, "a:\n  b: 1\n  c: 2\n")
	rec := NewRecorder()

	b := Search(root, "/a/b")
	Delete(b, rec)

	assert.Equal(t, "a:\n  c: 2\n", Sprint(root))
	assert.Nil(t, b.Parent())
	assert.Equal(t, "a:\n  b:\n", rec.String())

	changes := rec.Changes()
	require.Len(t, changes, 1)
	assert.Equal(t, OpDelete, changes[0].Op)
	assert.Equal(t, "/a/b", changes[0].Path)
	assert.Equal(t, "1", changes[0].Old)
}

func TestDelete_Subtree(t *testing.T) {
	root := mustParse(t, "a:\n  b:\n    c: 1\nd: 2\n")
	a := Search(root, "/a")

	Delete(a, nil)
	assert.Equal(t, "d: 2\n", Sprint(root))
	assert.Equal(t, 0, a.Len())
}

func TestTraverse(t *testing.T) {
	root := mustParse(t, "a:\n  b: 1\n  c: {}\nd: 2\n")

	assert.Equal(t, []string{"/", "/a", "/a/b", "/a/c", "/d"}, paths(t, root, 0))
	assert.Equal(t, []string{"/a/b", "/a/c", "/a", "/d", "/"}, paths(t, root, LeafFirst))
	assert.Equal(t, []string{"/a/b", "/a/c", "/d"}, paths(t, root, LeafFirst|LeafOnly))
	assert.Equal(t, []string{"/a/b", "/d"}, paths(t, root, ValueOnly))
}

func TestTraverse_StopsOnError(t *testing.T) {
	root := mustParse(t, "a: 1\nb: 2\nc: 3\n")
	var seen int

	err := Traverse(root, func(n *Node) error {
		seen++
		if n.Key() == "b" {
			return ErrNotFound
		}
		return nil
	}, ValueOnly)

	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, 2, seen)
	assert.ErrorIs(t, Traverse(nil, func(*Node) error { return nil }, 0), ErrInvalidArgument)
}
