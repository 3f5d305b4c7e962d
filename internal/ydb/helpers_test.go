package ydb

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

const testDeadline = 3 * time.Second

// newStore opens a quiet store that is closed when the test ends.
func newStore(t *testing.T, name string, opts ...Option) *Store {
	t.Helper()
	s := Open(name, append([]Option{WithLogger(slog.New(slog.DiscardHandler))}, opts...)...)
	t.Cleanup(func() { s.Close() })
	return s
}

// dumpString returns the whole tree as text.
func dumpString(t *testing.T, s *Store) string {
	t.Helper()
	var b strings.Builder
	_, err := s.Dump(&b)
	require.NoError(t, err)
	return b.String()
}

// runInBackground hands s to a Run goroutine. The returned stop function
// (also run at cleanup) cancels it and waits, after which the test goroutine
// owns s again.
func runInBackground(t *testing.T, s *Store) (stop func()) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx, 10*time.Millisecond) }()
	var once sync.Once
	stop = func() {
		once.Do(func() {
			cancel()
			<-done
		})
	}
	t.Cleanup(stop)
	return stop
}

// onStore runs fn on the goroutine serving s and waits for it.
func onStore(t *testing.T, s *Store, fn func(*Store)) {
	t.Helper()
	done := make(chan struct{})
	require.True(t, s.Post(func(s *Store) {
		defer close(done)
		fn(s)
	}))
	select {
	case <-done:
	case <-time.After(testDeadline):
		t.Fatal("posted work did not run")
	}
}

// eventuallyOn polls cond on the goroutine serving s.
func eventuallyOn(t *testing.T, s *Store, cond func(*Store) bool) {
	t.Helper()
	deadline := time.Now().Add(testDeadline)
	for {
		var ok bool
		onStore(t, s, func(s *Store) { ok = cond(s) })
		if ok {
			return
		}
		if time.Now().After(deadline) {
			t.Fatal("condition not met on serving store")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

// serveUntil drives s from the test goroutine until cond holds.
func serveUntil(t *testing.T, s *Store, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(testDeadline)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met")
		}
		_ = s.Serve(context.Background(), 20*time.Millisecond)
	}
}

// serveFor drives s for d without expecting anything.
func serveFor(s *Store, d time.Duration) {
	deadline := time.Now().Add(d)
	for time.Now().Before(deadline) {
		_ = s.Serve(context.Background(), 10*time.Millisecond)
	}
}

// pathValue reads path, returning "" when it is absent.
func pathValue(s *Store, path string) string {
	v, err := s.PathRead(path)
	if err != nil {
		return ""
	}
	return v
}

// memJournal records journal entries in memory.
type memJournal struct {
	mu      sync.Mutex
	entries []journalEntry
}

type journalEntry struct {
	Store, Op, Source, Body string
}

func (j *memJournal) Record(store, op, source string, body []byte) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.entries = append(j.entries, journalEntry{store, op, source, string(body)})
	return nil
}

func (j *memJournal) all() []journalEntry {
	j.mu.Lock()
	defer j.mu.Unlock()
	return append([]journalEntry(nil), j.entries...)
}
