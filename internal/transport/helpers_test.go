package transport

import (
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

func boundPort(t *testing.T, l *Listener) int {
	t.Helper()
	sa, err := unix.Getsockname(l.Fd())
	require.NoError(t, err)
	switch sa := sa.(type) {
	case *unix.SockaddrInet4:
		return sa.Port
	case *unix.SockaddrInet6:
		return sa.Port
	}
	t.Fatalf("unexpected sockaddr %T", sa)
	return 0
}
