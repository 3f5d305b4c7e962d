package ynode

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitPath(t *testing.T) {
	tests := []struct {
		name     string
		path     string
		keys     []string
		value    string
		hasValue bool
	}{
		{"plain", "/a/b/c", []string{"a", "b", "c"}, "", false},
		{"value", "/a/b=5", []string{"a", "b"}, "5", true},
		{"empty value", "/a=", []string{"a"}, "", true},
		{"quoted segment", "/a/'b/c'=1", []string{"a", "b/c"}, "1", true},
		{"double quoted", `/"x=y"/z`, []string{"x=y", "z"}, "", false},
		{"no leading slash", "a/b", []string{"a", "b"}, "", false},
		{"doubled slash", "//a//b", []string{"a", "b"}, "", false},
		{"root", "/", nil, "", false},
		{"value keeps equals", "/a=b=c", []string{"a"}, "b=c", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			keys, value, hasValue := SplitPath(tt.path)
			assert.Equal(t, tt.keys, keys)
			assert.Equal(t, tt.value, value)
			assert.Equal(t, tt.hasValue, hasValue)
		})
	}
}

func TestSearch(t *testing.T) {
	root := mustParse(t, "a:\n  b: 1\nl:\n- x\n- y\n")

	assert.Equal(t, "1", Search(root, "/a/b").Value())
	assert.Equal(t, "y", Search(root, "/l/1").Value())
	assert.Equal(t, root, Search(root, "/"))
	assert.Nil(t, Search(root, "/a/c"))
	assert.Nil(t, Search(root, "/a/b/c"))
}

func TestSearchBest(t *testing.T) {
	root := mustParse(t, "a:\n  b: 1\n")

	n, ok := SearchBest(root, "/a/zz/q")
	assert.False(t, ok)
	assert.Equal(t, "/a", n.Path())

	n, ok = SearchBest(root, "/a/b")
	assert.True(t, ok)
	assert.Equal(t, "1", n.Value())
}

func TestCreatePath_Detached(t *testing.T) {
	n, err := CreatePath("/a/b=5", nil, nil)
	require.NoError(t, err)

	assert.Equal(t, KindValue, n.Kind())
	assert.Equal(t, "5", n.Value())
	assert.Equal(t, "/a/b", n.Path())
	assert.Equal(t, "a:\n  b: 5\n", Sprint(n.Top()))
}

func TestCreatePath_WithoutValueMakesMap(t *testing.T) {
	n, err := CreatePath("/a/b", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, KindMap, n.Kind())
	assert.Equal(t, "a:\n  b: {}\n", Sprint(n.Top()))
}

func TestCreatePath_IntoParent(t *testing.T) {
	root := mustParse(t, "a:\n  x: 1\n")
	rec := NewRecorder()

	n, err := CreatePath("/a/y=2", root, rec)
	require.NoError(t, err)

	assert.Equal(t, "2", n.Value())
	assert.Equal(t, "a:\n  x: 1\n  y: 2\n", Sprint(root))
	assert.Equal(t, "a:\n  y: 2\n", rec.String())
}

func TestCreatePath_ReusesListKind(t *testing.T) {
	root := mustParse(t, "l:\n- x\n")

	n, err := CreatePath("/l/1=z", root, nil)
	require.NoError(t, err)

	assert.Equal(t, "z", n.Value())
	assert.Equal(t, KindList, root.Child("l").Kind())
	assert.Equal(t, "l:\n  - x\n  - z\n", Sprint(root))
}

func TestCreatePath_Errors(t *testing.T) {
	_, err := CreatePath("/", nil, nil)
	assert.ErrorIs(t, err, ErrInvalidPath)

	_, err = CreatePath("/a=1", NewValue("v"), nil)
	assert.ErrorIs(t, err, ErrTypeMismatch)
}

func TestLookup(t *testing.T) {
	target := mustParse(t, "l:\n- a\n- b\nm:\n  k: v\n")
	ref := mustParse(t, "l:\n- q\n- r\nm:\n  k: w\n")

	assert.Equal(t, "b", Lookup(target, Search(ref, "/l/1"), false).Value())
	assert.Equal(t, "a", Lookup(target, Search(ref, "/l/1"), true).Value())
	assert.Equal(t, "v", Lookup(target, Search(ref, "/m/k"), false).Value())
	assert.Equal(t, target, Lookup(target, ref, false))

	other := mustParse(t, "n: 1\n")
	assert.Nil(t, Lookup(target, Search(other, "/n"), false))
}
