package cli

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/ydb/internal/journal"
	"github.com/roach88/ydb/internal/testutil"
	"github.com/roach88/ydb/internal/ynode"
)

// startServe runs the serve command with args in the background. The
// returned stop cancels it and returns its error.
func startServe(t *testing.T, out io.Writer, args ...string) (stop func() error) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	cmd := NewRootCommand()
	cmd.SetOut(out)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(append([]string{"serve"}, args...))

	done := make(chan error, 1)
	go func() { done <- cmd.ExecuteContext(ctx) }()

	var stopped bool
	var result error
	stop = func() error {
		if !stopped {
			stopped = true
			cancel()
			result = <-done
		}
		return result
	}
	t.Cleanup(func() { stop() })
	return stop
}

// readEventually polls the read command until it prints want.
func readEventually(t *testing.T, addr, path, want string) {
	t.Helper()
	require.Eventually(t, func() bool {
		out, err := execute(t, "read", "--name", "probe", "--addr", addr, "--timeout", "200ms", path)
		return err == nil && out == want+"\n"
	}, 5*time.Second, 50*time.Millisecond, "%s never became %q", path, want)
}

func TestServeAcceptsRemoteWrites(t *testing.T) {
	addr := testutil.AbstractAddr(t)
	dir := t.TempDir()
	base := writeFile(t, dir, "base.yaml", "greeting: hello\n")
	db := filepath.Join(dir, "srv.db")

	out := &syncBuffer{}
	stop := startServe(t, out,
		"--name", "srv", "--role", "pub", "--addr", addr,
		"--file", base, "--change-log", "--summary", "--record-to", db)

	readEventually(t, addr, "/greeting", "hello")

	_, err := execute(t, "write", "--name", "cli", "--addr", addr, "/system/hostname=my-pc")
	require.NoError(t, err)
	readEventually(t, addr, "/system/hostname", "my-pc")

	require.NoError(t, stop())

	log := out.String()
	assert.Contains(t, log, "create /greeting: hello\n")
	assert.Contains(t, log, "create /system/hostname: my-pc\n")
	assert.True(t, strings.HasSuffix(log, "greeting: hello\nsystem:\n  hostname: my-pc\n"),
		"summary missing from %q", log)

	j, err := journal.Open(db)
	require.NoError(t, err)
	defer j.Close()
	entries, err := j.Entries(context.Background(), "srv")
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(entries), 2)
	assert.Equal(t, "greeting: hello\n", entries[0].Body)
	last := entries[len(entries)-1]
	assert.Equal(t, "merge", last.Op)
	assert.Contains(t, last.Body, "hostname: my-pc")
}

func TestServeWatchReloadsFiles(t *testing.T) {
	addr := testutil.AbstractAddr(t)
	base := writeFile(t, t.TempDir(), "base.yaml", "mode: fast\n")

	startServe(t, io.Discard, "--name", "watched", "--role", "pub", "--addr", addr, "--file", base, "--watch")
	readEventually(t, addr, "/mode", "fast")

	require.NoError(t, os.WriteFile(base, []byte("mode: slow\n"), 0644))
	readEventually(t, addr, "/mode", "slow")
}

func TestServeRejectsUnknownRole(t *testing.T) {
	_, err := execute(t, "serve", "--role", "boss")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestServeMetricsStopsWithContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- serveMetrics(ctx, "127.0.0.1:0") }()
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("metrics server did not stop")
	}
}

func TestChangeLine(t *testing.T) {
	tests := []struct {
		change ynode.Change
		want   string
	}{
		{ynode.Change{Op: ynode.OpCreate, Path: "/a/b", New: "1"}, "create /a/b: 1"},
		{ynode.Change{Op: ynode.OpCreate, Path: "/a"}, "create /a"},
		{ynode.Change{Op: ynode.OpReplace, Path: "/a/b", Old: "1", New: "2"}, "replace /a/b: 1 -> 2"},
		{ynode.Change{Op: ynode.OpDelete, Path: "/a/b", Old: "2"}, "delete /a/b: 2"},
		{ynode.Change{Op: ynode.OpDelete, Path: "/a"}, "delete /a"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, changeLine(tt.change))
	}
}
