package cli

import (
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/ydb/internal/journal"
)

// recordJournal writes a journal with a few changes of two stores.
func recordJournal(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "rec.db")
	j, err := journal.Open(path)
	require.NoError(t, err)
	defer j.Close()

	require.NoError(t, j.Record("srv", "merge", "", []byte("a: 1\nb: 2\n")))
	require.NoError(t, j.Record("other", "merge", "", []byte("x: 9\n")))
	require.NoError(t, j.Record("srv", "delete", "uss://cli", []byte("a:\n")))
	require.NoError(t, j.Record("srv", "merge", "", []byte("c:\n  d: 3\n")))
	return path
}

func TestReplayMissingFromFlag(t *testing.T) {
	_, err := execute(t, "replay", "--role", "loc")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "required flag")
}

func TestReplayMissingJournal(t *testing.T) {
	_, err := execute(t, "replay", "--role", "loc", "--from", filepath.Join(t.TempDir(), "none.db"))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestReplayRebuildsTree(t *testing.T) {
	db := recordJournal(t)

	out, err := execute(t, "replay", "--from", db, "--name", "srv", "--role", "loc", "--summary")
	require.NoError(t, err)
	assert.Equal(t, "replayed 3 change(s) of srv: 2 merge(s), 1 delete(s)\nb: 2\nc:\n  d: 3\n\n", out)
}

func TestReplaySourceStore(t *testing.T) {
	db := recordJournal(t)

	out, err := execute(t, "--format", "json", "replay", "--from", db, "--name", "copy",
		"--source", "other", "--role", "loc", "--summary")
	require.NoError(t, err)

	var resp struct {
		Status string       `json:"status"`
		Data   ReplayResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, ReplayResult{Store: "other", Merges: 1, Tree: "x: 9\n"}, resp.Data)
}

func TestReplayWithIntervalOnLocalStore(t *testing.T) {
	db := recordJournal(t)

	out, err := execute(t, "replay", "--from", db, "--name", "srv", "--role", "loc", "--interval", "10ms")
	require.NoError(t, err)
	assert.Equal(t, "replayed 3 change(s) of srv: 2 merge(s), 1 delete(s)\n", out)
}
