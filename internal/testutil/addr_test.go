package testutil

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAbstractAddr_Unique(t *testing.T) {
	a, b := AbstractAddr(t), AbstractAddr(t)
	assert.NotEqual(t, a, b)
	assert.True(t, strings.HasPrefix(a, "uss://ydb-test-"))
}

func TestSocketAddr_InTempDir(t *testing.T) {
	addr := SocketAddr(t)
	assert.True(t, strings.HasPrefix(addr, "us:///"))
	assert.True(t, strings.HasSuffix(addr, "/ydb.sock"))
}
