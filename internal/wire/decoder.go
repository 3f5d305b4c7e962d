package wire

import (
	"bytes"
)

// Decoder reassembles frames from a byte stream. Feed it whatever a read
// returned and call Next until it reports ErrIncomplete.
type Decoder struct {
	buf []byte
}

// NewDecoder creates an empty Decoder.
func NewDecoder() *Decoder {
	return &Decoder{}
}

// Feed appends received bytes.
func (d *Decoder) Feed(p []byte) {
	d.buf = append(d.buf, p...)
}

// Buffered returns the number of bytes held for incomplete frames.
func (d *Decoder) Buffered() int {
	return len(d.buf)
}

// Reset drops everything buffered.
func (d *Decoder) Reset() {
	d.buf = d.buf[:0]
}

// bounds locates the first complete frame in buf. head is the header block,
// body the body, and n the offset just past the terminator.
type bounds struct {
	start int
	head  []byte
	body  []byte
	n     int
}

func locate(buf []byte) (b bounds, ok bool) {
	b.start = -1
	for off := 0; ; {
		i := bytes.Index(buf[off:], []byte(startDelim))
		if i < 0 {
			return b, false
		}
		i += off
		if i == 0 || buf[i-1] == '\n' {
			b.start = i
			break
		}
		off = i + 1
	}

	restAt := b.start + len(startDelim)
	rest := buf[restAt:]
	var bodyAt int
	if bytes.HasPrefix(rest, []byte("\n")) {
		bodyAt = 1
	} else {
		h := bytes.Index(rest, []byte("\n\n"))
		if h < 0 {
			return b, false
		}
		b.head = rest[:h+1]
		bodyAt = h + 2
	}
	end := bytes.Index(rest[bodyAt:], []byte(endDelim))
	if end < 0 {
		return b, false
	}
	b.body = rest[bodyAt : bodyAt+end]
	b.n = restAt + bodyAt + end + len(endDelim)
	return b, true
}

// Next extracts the first complete frame. more reports whether another
// complete frame is already buffered, so the caller can drain without
// polling again. ErrIncomplete means the terminator has not arrived yet and
// the partial tail is kept. A frame with a malformed header is consumed and
// reported as ErrInvalidMessage.
func (d *Decoder) Next() (f Frame, more bool, err error) {
	b, ok := locate(d.buf)
	if !ok {
		switch {
		case b.start > 0:
			d.discard(b.start)
		case b.start < 0 && len(d.buf) >= len(startDelim):
			// keep what may be the beginning of a start delimiter
			d.discard(len(d.buf) - len(startDelim) + 1)
		}
		return f, false, ErrIncomplete
	}

	f.Header, err = parseHeader(b.head)
	if len(b.body) > 0 {
		f.Body = bytes.Clone(b.body)
	}
	d.discard(b.n)
	_, more = locate(d.buf)
	if err != nil {
		return Frame{}, more, err
	}
	return f, more, nil
}

func (d *Decoder) discard(n int) {
	d.buf = append(d.buf[:0], d.buf[n:]...)
}
