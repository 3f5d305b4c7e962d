// Package ynode implements the YAML DataBlock node tree.
//
// A tree is made of three node kinds:
//   - Value: a leaf scalar
//   - List: children ordered by insertion, addressed by position
//   - Map: children addressed by unique key, kept in lexicographic key order
//
// Every non-root node points back at its parent. The package provides the
// structural operations the store is built from (Merge, Replace, Delete,
// CreatePath, Search, Lookup), a stack-based Builder fed by a token stream,
// Parse which tokenizes YAML text with gopkg.in/yaml.v3, Dump which prints a
// level-bounded subtree, and Recorder which prints only what a mutation pass
// touched (the diff that is distributed to peers).
//
// Nodes are not safe for concurrent use; a tree belongs to one goroutine.
package ynode
