package ydb

import (
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/ydb/internal/testutil"
)

// startServer opens a publisher listening on addr, seeds it with text and
// serves it from a background goroutine.
func startServer(t *testing.T, name, addr, text string, opts ...Option) (*Store, func()) {
	t.Helper()
	srv := newStore(t, name, opts...)
	require.NoError(t, srv.Connect(addr, "pub"))
	require.True(t, srv.IsServer(addr))
	if text != "" {
		require.NoError(t, srv.Write(text))
	}
	return srv, runInBackground(t, srv)
}

func TestInitBringsClientInSync(t *testing.T) {
	addr := testutil.AbstractAddr(t)
	srv, _ := startServer(t, "srv", addr, "system:\n  hostname: srv\n")

	cli := newStore(t, "cli")
	require.NoError(t, cli.Connect(addr, "sub:writable"))
	assert.True(t, cli.IsConnected(addr))
	assert.False(t, cli.IsServer(addr))
	assert.False(t, cli.IsPublisher(addr))
	assert.Equal(t, "srv", pathValue(cli, "/system/hostname"))

	eventuallyOn(t, srv, func(s *Store) bool {
		for _, c := range s.Conns() {
			if c.State == StateAccepted && c.Flags == "srw-" {
				return true
			}
		}
		return false
	})
}

func TestWritableClientOffersItsTree(t *testing.T) {
	addr := testutil.AbstractAddr(t)
	srv, _ := startServer(t, "srv", addr, "")

	cli := newStore(t, "cli")
	require.NoError(t, cli.Write("local: 1\n"))
	require.NoError(t, cli.Connect(addr, "sub:writable"))

	eventuallyOn(t, srv, func(s *Store) bool { return pathValue(s, "/local") == "1" })
}

func TestPublishFanOut(t *testing.T) {
	addr := testutil.AbstractAddr(t)
	srv, _ := startServer(t, "srv", addr, "base: 1\n")

	writer := newStore(t, "writer")
	require.NoError(t, writer.Connect(addr, "sub:writable"))
	quiet := newStore(t, "quiet")
	require.NoError(t, quiet.Connect(addr, "sub:unsubscribe"))
	reader := newStore(t, "reader")
	require.NoError(t, reader.Connect(addr, "sub"))

	assert.Equal(t, "1", pathValue(writer, "/base"))
	assert.Equal(t, "1", pathValue(reader, "/base"))
	assert.Equal(t, "", pathValue(quiet, "/base"), "unsubscribed peers get no dump")

	require.NoError(t, writer.Write("x: 1\n"))
	eventuallyOn(t, srv, func(s *Store) bool { return pathValue(s, "/x") == "1" })
	serveUntil(t, reader, func() bool { return pathValue(reader, "/x") == "1" })

	serveFor(quiet, 100*time.Millisecond)
	assert.Equal(t, "", pathValue(quiet, "/x"))

	// a read-only client keeps its local writes to itself
	require.NoError(t, reader.Write("y: 1\n"))
	serveFor(reader, 50*time.Millisecond)
	onStore(t, srv, func(s *Store) {
		assert.Nil(t, s.Search("/y"))
	})
}

func TestPathOperationsPropagate(t *testing.T) {
	addr := testutil.AbstractAddr(t)
	srv, _ := startServer(t, "srv", addr, "")

	writer := newStore(t, "writer")
	require.NoError(t, writer.Connect(addr, "sub:writable"))
	reader := newStore(t, "reader")
	require.NoError(t, reader.Connect(addr, "sub"))

	require.NoError(t, writer.PathWrite("/system/hostname=my-pc"))
	serveUntil(t, reader, func() bool { return pathValue(reader, "/system/hostname") == "my-pc" })

	require.NoError(t, writer.PathDelete("/system/hostname"))
	serveUntil(t, reader, func() bool { return reader.Search("/system/hostname") == nil })
	_, err := reader.PathRead("/system/hostname")
	assert.True(t, IsNotFound(err), "got %v", err)

	eventuallyOn(t, srv, func(s *Store) bool { return s.Search("/system/hostname") == nil })
}

func TestServerPublishReachesClients(t *testing.T) {
	addr := testutil.AbstractAddr(t)
	srv, _ := startServer(t, "srv", addr, "")

	cli := newStore(t, "cli")
	require.NoError(t, cli.Connect(addr, "sub"))

	var err error
	onStore(t, srv, func(s *Store) { err = s.Write("news: today\n") })
	require.NoError(t, err)
	serveUntil(t, cli, func() bool { return pathValue(cli, "/news") == "today" })

	onStore(t, srv, func(s *Store) { err = s.Delete("news:\n") })
	require.NoError(t, err)
	serveUntil(t, cli, func() bool { return cli.Search("/news") == nil })
}

func TestSyncBeforeRead(t *testing.T) {
	addr := testutil.AbstractAddr(t)
	srv, _ := startServer(t, "srv", addr, "")

	cli := newStore(t, "cli")
	require.NoError(t, cli.Connect(addr, "sub:unsubscribe:sync-before-read"))
	require.Equal(t, 1, cli.synccount)

	var err error
	onStore(t, srv, func(s *Store) { err = s.Write("s: 1\nt: 2\n") })
	require.NoError(t, err)

	// no publish arrives, the read itself fetches the value
	v, err := cli.PathRead("/s")
	require.NoError(t, err)
	assert.Equal(t, "1", v)
	assert.Nil(t, cli.Search("/t"))

	require.NoError(t, cli.Sync(""))
	assert.Equal(t, "2", pathValue(cli, "/t"))

	require.NoError(t, cli.Disconnect(addr))
	assert.Equal(t, 0, cli.synccount)
	assert.True(t, IsNotFound(cli.Disconnect(addr)))
}

func TestPathSyncRunsRemoteReadHook(t *testing.T) {
	addr := testutil.AbstractAddr(t)
	srv := newStore(t, "srv")
	require.NoError(t, srv.Connect(addr, "pub"))
	require.NoError(t, srv.AddReadHook("/status", func(_ string, w io.Writer) error {
		_, err := io.WriteString(w, "status:\n  up: yes\n")
		return err
	}))
	runInBackground(t, srv)

	cli := newStore(t, "cli")
	require.NoError(t, cli.Connect(addr, "sub:unsubscribe"))
	assert.Nil(t, cli.Search("/status/up"))

	require.NoError(t, cli.PathSync("/status"))
	assert.Equal(t, "yes", pathValue(cli, "/status/up"))
}

func TestSyncTimesOutOnSilentPeer(t *testing.T) {
	addr := testutil.AbstractAddr(t)
	// the server is never served, so nobody answers
	srv := newStore(t, "srv")
	require.NoError(t, srv.Connect(addr, "pub"))

	cli := newStore(t, "cli", WithTimeout(100*time.Millisecond))
	start := time.Now()
	require.NoError(t, cli.Connect(addr, "sub"))
	assert.GreaterOrEqual(t, time.Since(start), 100*time.Millisecond)

	err := cli.Sync("")
	assert.True(t, IsTimeout(err), "got %v", err)
}

func TestReconnect(t *testing.T) {
	addr := testutil.AbstractAddr(t)

	cli := newStore(t, "cli", WithTimeout(100*time.Millisecond))
	require.NoError(t, cli.Connect(addr, "sub"))
	assert.False(t, cli.IsConnected(addr))
	conns := cli.Conns()
	require.Len(t, conns, 1)
	assert.Equal(t, StateDisconnected, conns[0].State)
	assert.True(t, conns[0].Major)

	srv, stop := startServer(t, "srv", addr, "hello: world\n")
	serveUntil(t, cli, func() bool { return cli.IsConnected(addr) })
	serveUntil(t, cli, func() bool { return pathValue(cli, "/hello") == "world" })

	stop()
	require.NoError(t, srv.Close())
	serveUntil(t, cli, func() bool { return !cli.IsConnected(addr) })
	assert.Len(t, cli.Conns(), 1, "configured connections stay parked")
}

func TestAcceptedClientDroppedOnClose(t *testing.T) {
	addr := testutil.AbstractAddr(t)
	srv, _ := startServer(t, "srv", addr, "")

	cli := newStore(t, "cli")
	require.NoError(t, cli.Connect(addr, "sub"))
	eventuallyOn(t, srv, func(s *Store) bool { return len(s.Conns()) == 2 })

	require.NoError(t, cli.Close())
	eventuallyOn(t, srv, func(s *Store) bool { return len(s.Conns()) == 1 })
}

func TestConnectReplacesPreviousConnection(t *testing.T) {
	addr := testutil.AbstractAddr(t)
	s := newStore(t, "srv")
	require.NoError(t, s.Connect(addr, "pub"))
	require.NoError(t, s.Connect(addr, "pub"))
	require.Len(t, s.Conns(), 1)
	assert.True(t, s.IsServer(addr))
	assert.True(t, s.IsPublisher(addr))
}
