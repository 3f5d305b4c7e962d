package wire

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// drain pulls every complete frame out of d.
func drain(t *testing.T, d *Decoder) []Frame {
	t.Helper()
	var out []Frame
	for {
		f, _, err := d.Next()
		if errors.Is(err, ErrIncomplete) {
			return out
		}
		require.NoError(t, err)
		out = append(out, f)
	}
}

func twoFrames() []byte {
	stream := Append(nil, Header{Seq: 1, Kind: KindPublish, Op: OpMerge}, []byte("a: 1\n"))
	return Append(stream, Header{Seq: 2, Kind: KindPublish, Op: OpDelete}, nil)
}

func TestDecoder_StreamLayout(t *testing.T) {
	want := "---\n#seq: 1\n#type: publish\n#op: merge\n\na: 1\n\n...\n" +
		"---\n#seq: 2\n#type: publish\n#op: delete\n\n\n...\n"
	assert.Equal(t, want, string(twoFrames()))
}

func TestDecoder_ReassemblyAtAnySplit(t *testing.T) {
	stream := twoFrames()
	for i := 0; i <= len(stream); i++ {
		for j := i; j <= len(stream); j++ {
			d := NewDecoder()
			var frames []Frame
			for _, part := range [][]byte{stream[:i], stream[i:j], stream[j:]} {
				d.Feed(part)
				frames = append(frames, drain(t, d)...)
			}
			require.Len(t, frames, 2, "split at %d,%d", i, j)
			assert.Equal(t, uint32(1), frames[0].Seq)
			assert.Equal(t, "a: 1\n", string(frames[0].Body))
			assert.Equal(t, uint32(2), frames[1].Seq)
			assert.Empty(t, frames[1].Body)
			assert.Zero(t, d.Buffered(), "split at %d,%d", i, j)
		}
	}
}

func TestDecoder_MoreSignal(t *testing.T) {
	d := NewDecoder()
	d.Feed(twoFrames())

	f, more, err := d.Next()
	require.NoError(t, err)
	assert.Equal(t, uint32(1), f.Seq)
	assert.True(t, more)

	f, more, err = d.Next()
	require.NoError(t, err)
	assert.Equal(t, uint32(2), f.Seq)
	assert.False(t, more)

	_, _, err = d.Next()
	assert.ErrorIs(t, err, ErrIncomplete)
}

func TestDecoder_PartialTailKept(t *testing.T) {
	stream := twoFrames()
	d := NewDecoder()
	d.Feed(stream[:len(stream)-3])

	frames := drain(t, d)
	require.Len(t, frames, 1)
	assert.Positive(t, d.Buffered())

	d.Feed(stream[len(stream)-3:])
	frames = drain(t, d)
	require.Len(t, frames, 1)
	assert.Equal(t, uint32(2), frames[0].Seq)
}

func TestDecoder_MalformedFrameDroppedAlone(t *testing.T) {
	d := NewDecoder()
	d.Feed([]byte("---\n#seq: nope\n#type: publish\n#op: merge\n\nx: 1\n\n...\n"))
	d.Feed(Append(nil, Header{Seq: 9, Kind: KindPublish, Op: OpMerge}, []byte("y: 2\n")))

	_, more, err := d.Next()
	assert.ErrorIs(t, err, ErrInvalidMessage)
	assert.True(t, more)

	f, more, err := d.Next()
	require.NoError(t, err)
	assert.False(t, more)
	assert.Equal(t, uint32(9), f.Seq)
	assert.Equal(t, "y: 2\n", string(f.Body))
}

func TestDecoder_SkipsLeadingGarbage(t *testing.T) {
	d := NewDecoder()
	d.Feed([]byte("noise\n"))
	d.Feed(Append(nil, Header{Seq: 5, Kind: KindResponse, Op: OpSync}, []byte("k: v\n")))

	frames := drain(t, d)
	require.Len(t, frames, 1)
	assert.Equal(t, uint32(5), frames[0].Seq)
	assert.Equal(t, KindResponse, frames[0].Kind)
}

func TestDecoder_GarbageWithoutFrameIsBounded(t *testing.T) {
	d := NewDecoder()
	d.Feed([]byte("nothing to see here, just bytes"))

	frames := drain(t, d)
	assert.Empty(t, frames)
	assert.Less(t, d.Buffered(), len(startDelim))
}

func TestDecoder_InitHeaderFields(t *testing.T) {
	flags := Flags{Writable: true}
	d := NewDecoder()
	d.Feed(Append(nil, Header{
		Seq:     3,
		Kind:    KindRequest,
		Op:      OpInit,
		Timeout: 1500 * time.Millisecond,
		Flags:   &flags,
	}, nil))

	frames := drain(t, d)
	require.Len(t, frames, 1)
	require.NotNil(t, frames[0].Flags)
	assert.Equal(t, flags, *frames[0].Flags)
	assert.Equal(t, 1500*time.Millisecond, frames[0].Timeout)
	assert.Equal(t, OpInit, frames[0].Op)
}

func TestDecoder_Reset(t *testing.T) {
	d := NewDecoder()
	d.Feed([]byte("---\n#seq: 1\n"))
	d.Reset()
	assert.Zero(t, d.Buffered())
}
