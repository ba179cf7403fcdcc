// Package protocol implements the line-oriented serial command protocol:
// framing of the raw byte stream, parsing of command lines and the fixed
// response texts.
package protocol

// MaxLineLength is the framer capacity. A line that reaches it without a
// terminator is cut at this length.
const MaxLineLength = 256

// FramerState reports whether the framer holds a partial line.
type FramerState int

const (
	// StateIdle means the line buffer is empty.
	StateIdle FramerState = iota
	// StateAccumulating means bytes of an unfinished line are buffered.
	StateAccumulating
)

func (s FramerState) String() string {
	if s == StateAccumulating {
		return "accumulating"
	}
	return "idle"
}

// Framer accumulates bytes into lines terminated by '\n' or '\r'.
// It is not safe for concurrent use; feed it from a single reader.
type Framer struct {
	buf []byte
}

// NewFramer returns an idle framer.
func NewFramer() *Framer {
	return &Framer{buf: make([]byte, 0, MaxLineLength)}
}

// Feed appends one byte. When b terminates a line, or the buffer reaches
// MaxLineLength, the buffered text (without terminator) is returned with
// ok set and the framer is reset.
func (f *Framer) Feed(b byte) (line string, ok bool) {
	if b == '\n' || b == '\r' {
		return f.flush(), true
	}
	f.buf = append(f.buf, b)
	if len(f.buf) >= MaxLineLength {
		return f.flush(), true
	}
	return "", false
}

// Pending returns the number of buffered bytes.
func (f *Framer) Pending() int { return len(f.buf) }

// State returns the current framer state.
func (f *Framer) State() FramerState {
	if len(f.buf) == 0 {
		return StateIdle
	}
	return StateAccumulating
}

// Reset drops any partial line.
func (f *Framer) Reset() { f.buf = f.buf[:0] }

func (f *Framer) flush() string {
	line := string(f.buf)
	f.buf = f.buf[:0]
	return line
}
