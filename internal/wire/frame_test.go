package wire

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/ydb/internal/testutil"
)

func TestEncode_InitRequest(t *testing.T) {
	var buf bytes.Buffer
	flags := Flags{Publisher: true, Readable: true, Unsubscribe: true}
	err := Encode(&buf, Header{
		Seq:     1,
		Kind:    KindRequest,
		Op:      OpInit,
		Timeout: 2900 * time.Millisecond,
		Flags:   &flags,
	}, []byte("a: 1\n"))
	require.NoError(t, err)

	testutil.AssertGolden(t, "init_request", buf.Bytes())
}

func TestEncode_EmptyBody(t *testing.T) {
	out := Append(nil, Header{Seq: 42, Kind: KindFailed, Op: OpDelete}, nil)
	testutil.AssertGolden(t, "failed_response", out)
}

func TestFlags_String(t *testing.T) {
	assert.Equal(t, "s---", Flags{}.String())
	assert.Equal(t, "prwu", Flags{Publisher: true, Readable: true, Writable: true, Unsubscribe: true}.String())
	assert.Equal(t, "s-w-", Flags{Writable: true}.String())
}

func TestParseFlags(t *testing.T) {
	f, err := ParseFlags("p-wu")
	require.NoError(t, err)
	assert.Equal(t, Flags{Publisher: true, Writable: true, Unsubscribe: true}, f)

	for _, bad := range []string{"", "pw", "x---", "pxw-", "p---u", "s-r-"} {
		_, err := ParseFlags(bad)
		assert.ErrorIs(t, err, ErrInvalidMessage, "%q", bad)
	}
}

func TestParseKind(t *testing.T) {
	for _, k := range []Kind{KindRequest, KindResponse, KindFailed, KindPublish, KindWhisper} {
		got, err := ParseKind(k.String())
		require.NoError(t, err)
		assert.Equal(t, k, got)
	}

	got, err := ParseKind("resp(ok)")
	require.NoError(t, err)
	assert.Equal(t, KindResponse, got)

	_, err = ParseKind("none")
	assert.ErrorIs(t, err, ErrInvalidMessage)
	_, err = ParseKind("gossip")
	assert.ErrorIs(t, err, ErrInvalidMessage)
}

func TestWhisperBody(t *testing.T) {
	body := WhisperBody("/system/hostname", []byte("system:\n  hostname: pc\n"))
	assert.Equal(t, "+whisper-target: /system/hostname\nsystem:\n  hostname: pc\n", string(body))

	path, text, err := SplitWhisper(body)
	require.NoError(t, err)
	assert.Equal(t, "/system/hostname", path)
	assert.Equal(t, "system:\n  hostname: pc\n", string(text))

	for _, bad := range []string{"", "system: 1\n", "+whisper-target:\nsystem: 1\n"} {
		_, _, err := SplitWhisper([]byte(bad))
		assert.ErrorIs(t, err, ErrInvalidMessage, "%q", bad)
	}
}

func TestParseOp(t *testing.T) {
	for _, o := range []Op{OpNone, OpInit, OpMerge, OpDelete, OpSync} {
		got, err := ParseOp(o.String())
		require.NoError(t, err)
		assert.Equal(t, o, got)
	}
	_, err := ParseOp("replace")
	assert.ErrorIs(t, err, ErrInvalidMessage)
}

func TestParseHeader_Errors(t *testing.T) {
	tests := []struct {
		name string
		head string
	}{
		{"missing op", "#seq: 1\n#type: publish\n"},
		{"bad seq", "#seq: x\n#type: publish\n#op: merge\n"},
		{"seq overflow", "#seq: 4294967296\n#type: publish\n#op: merge\n"},
		{"not a header line", "seq 1\n#type: publish\n#op: merge\n"},
		{"init without flags", "#seq: 1\n#type: request\n#op: init\n"},
		{"bad timeout", "#seq: 1\n#type: request\n#op: sync\n#timeout: soon\n"},
		{"empty key", ":\n#seq: 1\n#type: publish\n#op: merge\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parseHeader([]byte(tt.head))
			assert.ErrorIs(t, err, ErrInvalidMessage)
		})
	}
}

func TestParseHeader_IgnoresUnknownLines(t *testing.T) {
	h, err := parseHeader([]byte("#seq: 3\n#type: publish\n#op: merge\n#origin: elsewhere\n"))
	require.NoError(t, err)
	assert.Equal(t, uint32(3), h.Seq)
	assert.Equal(t, KindPublish, h.Kind)
	assert.Equal(t, OpMerge, h.Op)
	assert.Nil(t, h.Flags)
	assert.Zero(t, h.Timeout)
}
