package testutil

import (
	"path/filepath"
	"testing"

	"github.com/google/uuid"
)

// AbstractAddr returns a uss:// address unique to this test run, so parallel
// packages never collide in the abstract socket namespace.
func AbstractAddr(t *testing.T) string {
	t.Helper()
	return "uss://ydb-test-" + uuid.NewString()
}

// SocketAddr returns a us:// address for a socket file inside t.TempDir.
func SocketAddr(t *testing.T) string {
	t.Helper()
	return "us://" + filepath.Join(t.TempDir(), "ydb.sock")
}
