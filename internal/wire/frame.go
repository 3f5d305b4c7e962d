package wire

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strconv"
	"time"
)

const (
	startDelim = "---\n"
	endDelim   = "\n...\n"
)

var (
	// ErrInvalidMessage reports a frame whose header cannot be parsed. Only
	// that frame is dropped; the stream stays usable.
	ErrInvalidMessage = errors.New("wire: invalid message")

	// ErrIncomplete reports that no complete frame is buffered yet.
	ErrIncomplete = errors.New("wire: incomplete frame")
)

// Kind is the message type of a frame.
type Kind int

const (
	KindNone Kind = iota
	KindRequest
	KindResponse
	KindFailed
	KindPublish
	KindWhisper
)

var kindNames = [...]string{
	KindNone:     "none",
	KindRequest:  "request",
	KindResponse: "response",
	KindFailed:   "resp(failed)",
	KindPublish:  "publish",
	KindWhisper:  "whisper",
}

func (k Kind) String() string {
	if k < 0 || int(k) >= len(kindNames) {
		return "unknown"
	}
	return kindNames[k]
}

// ParseKind maps a #type value back to its Kind. "resp(ok)" is accepted as
// a synonym of "response".
func ParseKind(s string) (Kind, error) {
	if s == "resp(ok)" {
		return KindResponse, nil
	}
	for k, name := range kindNames {
		if name == s && Kind(k) != KindNone {
			return Kind(k), nil
		}
	}
	return KindNone, fmt.Errorf("%w: unknown type %q", ErrInvalidMessage, s)
}

// Op is the operation a frame carries.
type Op int

const (
	OpNone Op = iota
	OpInit
	OpMerge
	OpDelete
	OpSync
)

var opNames = [...]string{
	OpNone:   "none",
	OpInit:   "init",
	OpMerge:  "merge",
	OpDelete: "delete",
	OpSync:   "sync",
}

func (o Op) String() string {
	if o < 0 || int(o) >= len(opNames) {
		return "unknown"
	}
	return opNames[o]
}

// ParseOp maps an #op value back to its Op.
func ParseOp(s string) (Op, error) {
	for o, name := range opNames {
		if name == s {
			return Op(o), nil
		}
	}
	return OpNone, fmt.Errorf("%w: unknown op %q", ErrInvalidMessage, s)
}

// Flags are the role and permission bits a peer announces in its init
// request.
type Flags struct {
	Publisher   bool
	Readable    bool
	Writable    bool
	Unsubscribe bool
}

// String prints the four-character form: p|s, r|-, w|-, u|-.
func (f Flags) String() string {
	b := []byte("s---")
	if f.Publisher {
		b[0] = 'p'
	}
	if f.Readable {
		b[1] = 'r'
	}
	if f.Writable {
		b[2] = 'w'
	}
	if f.Unsubscribe {
		b[3] = 'u'
	}
	return string(b)
}

// ParseFlags reads the four-character form printed by Flags.String.
func ParseFlags(s string) (Flags, error) {
	var f Flags
	if len(s) != 4 {
		return f, fmt.Errorf("%w: flags %q", ErrInvalidMessage, s)
	}
	switch s[0] {
	case 'p':
		f.Publisher = true
	case 's':
	default:
		return f, fmt.Errorf("%w: role %q", ErrInvalidMessage, s[0])
	}
	for i, want := range []byte{'r', 'w', 'u'} {
		c := s[i+1]
		if c != want && c != '-' {
			return f, fmt.Errorf("%w: flags %q", ErrInvalidMessage, s)
		}
		on := c == want
		switch want {
		case 'r':
			f.Readable = on
		case 'w':
			f.Writable = on
		case 'u':
			f.Unsubscribe = on
		}
	}
	return f, nil
}

// whisperTarget starts the first body line of a whisper frame.
const whisperTarget = "+whisper-target:"

// WhisperBody prefixes text with the path of the node whose origin the
// whisper is meant for.
func WhisperBody(path string, text []byte) []byte {
	out := make([]byte, 0, len(whisperTarget)+len(path)+len(text)+2)
	out = append(out, whisperTarget...)
	out = append(out, ' ')
	out = append(out, path...)
	out = append(out, '\n')
	return append(out, text...)
}

// SplitWhisper separates the target path of a whisper body from its text.
func SplitWhisper(body []byte) (path string, text []byte, err error) {
	line, rest, _ := bytes.Cut(body, []byte("\n"))
	target, ok := bytes.CutPrefix(line, []byte(whisperTarget))
	path = string(bytes.TrimSpace(target))
	if !ok || path == "" {
		return "", nil, fmt.Errorf("%w: whisper without target", ErrInvalidMessage)
	}
	return path, rest, nil
}

// Header is the metadata block of a frame.
type Header struct {
	Seq     uint32
	Kind    Kind
	Op      Op
	Timeout time.Duration // 0 when absent
	Flags   *Flags        // init frames only
}

// Frame is one decoded message.
type Frame struct {
	Header
	Body []byte
}

// Append encodes one frame onto dst.
func Append(dst []byte, h Header, body []byte) []byte {
	dst = append(dst, startDelim...)
	dst = append(dst, "#seq: "...)
	dst = strconv.AppendUint(dst, uint64(h.Seq), 10)
	dst = append(dst, "\n#type: "...)
	dst = append(dst, h.Kind.String()...)
	dst = append(dst, "\n#op: "...)
	dst = append(dst, h.Op.String()...)
	dst = append(dst, '\n')
	if h.Timeout > 0 {
		dst = append(dst, "#timeout: "...)
		dst = strconv.AppendInt(dst, h.Timeout.Milliseconds(), 10)
		dst = append(dst, '\n')
	}
	if h.Flags != nil {
		dst = append(dst, "#flags: "...)
		dst = append(dst, h.Flags.String()...)
		dst = append(dst, '\n')
	}
	dst = append(dst, '\n')
	dst = append(dst, body...)
	return append(dst, endDelim...)
}

// Encode writes one frame to w with a single Write call.
func Encode(w io.Writer, h Header, body []byte) error {
	_, err := w.Write(Append(nil, h, body))
	return err
}

// parseHeader reads the "#key: value" lines of a header block.
func parseHeader(block []byte) (Header, error) {
	var h Header
	var seen int
	for _, line := range bytes.Split(block, []byte("\n")) {
		if len(line) == 0 {
			continue
		}
		key, value, ok := bytes.Cut(line, []byte(":"))
		if !ok || len(key) < 2 || key[0] != '#' {
			return h, fmt.Errorf("%w: header line %q", ErrInvalidMessage, line)
		}
		v := string(bytes.TrimSpace(value))
		var err error
		switch string(key[1:]) {
		case "seq":
			var n uint64
			n, err = strconv.ParseUint(v, 10, 32)
			h.Seq = uint32(n)
			seen |= 1
		case "type":
			h.Kind, err = ParseKind(v)
			seen |= 2
		case "op":
			h.Op, err = ParseOp(v)
			seen |= 4
		case "timeout":
			var ms int64
			ms, err = strconv.ParseInt(v, 10, 64)
			h.Timeout = time.Duration(ms) * time.Millisecond
		case "flags":
			var f Flags
			f, err = ParseFlags(v)
			h.Flags = &f
		}
		if err != nil {
			if !errors.Is(err, ErrInvalidMessage) {
				err = fmt.Errorf("%w: %s: %v", ErrInvalidMessage, key[1:], err)
			}
			return h, err
		}
	}
	if seen != 7 {
		return h, fmt.Errorf("%w: missing #seq, #type or #op", ErrInvalidMessage)
	}
	if h.Op == OpInit && h.Flags == nil {
		return h, fmt.Errorf("%w: init without #flags", ErrInvalidMessage)
	}
	return h, nil
}
