// Package ydb implements the YAML DataBlock: a named, in-memory YAML tree
// that stays in step with the trees of other processes.
//
// # Operations
//
// Writes, deletes and replaces take YAML text. Each one is applied as a
// single mutation pass whose diff (the changed nodes with just enough
// ancestor context) is published to the store's subscribers:
//
//	s := ydb.Open("config")
//	s.Write("system:\n  hostname: %s\n", "my-pc")
//	s.PathRead("/system/hostname") // "my-pc"
//
// # Connections
//
// Connect attaches the store to an address (us://, uss://, tcp://,
// fifo://, file://). A publisher listens and accepts subscribers; a
// subscriber dials the publisher and exchanges an init handshake that
// brings both trees together. Lost configured connections are parked and
// reopened at most once per store timeout.
//
// # Event loop
//
// A Store is owned by a single goroutine, which calls Serve (or Run) to
// handle incoming frames. Other goroutines use Post to hand work over.
package ydb
