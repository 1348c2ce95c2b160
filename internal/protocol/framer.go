package protocol

import (
	"bytes"
	"fmt"
)

// DefaultMaxLineSize bounds a single unterminated line.
const DefaultMaxLineSize = 16 << 20

// Frame is one line taken off the stream. Exactly one of Message or Err is meaningful.
type Frame struct {
	Message Message
	Raw     []byte
	Err     error
}

// Framer splits an append-only byte stream into newline-delimited messages.
// It is not safe for concurrent use; each process instance owns one.
type Framer struct {
	buf         []byte
	maxLineSize int
	discarding  bool
}

// NewFramer returns a framer. A non-positive maxLineSize selects DefaultMaxLineSize.
func NewFramer(maxLineSize int) *Framer {
	if maxLineSize <= 0 {
		maxLineSize = DefaultMaxLineSize
	}
	return &Framer{maxLineSize: maxLineSize}
}

// Feed appends a chunk and returns every complete line it terminated, in order.
// The trailing partial line stays buffered for the next call.
func (f *Framer) Feed(chunk []byte) []Frame {
	f.buf = append(f.buf, chunk...)

	var frames []Frame
	rest := f.buf
	for {
		idx := bytes.IndexByte(rest, '\n')
		if idx < 0 {
			break
		}
		line := rest[:idx]
		rest = rest[idx+1:]

		if f.discarding {
			// Tail of a line that already overflowed.
			f.discarding = false
			continue
		}

		line = bytes.TrimSpace(line)
		if len(line) == 0 {
			continue
		}

		raw := append([]byte(nil), line...)
		msg, err := Decode(raw)
		frames = append(frames, Frame{Message: msg, Raw: raw, Err: err})
	}

	if len(rest) > f.maxLineSize {
		frames = append(frames, Frame{
			Raw: append([]byte(nil), rest[:min(len(rest), 256)]...),
			Err: fmt.Errorf("%w: line exceeds %d bytes", ErrMalformedMessage, f.maxLineSize),
		})
		f.discarding = true
		rest = nil
	}

	// Copy the remainder so the backing array of large chunks is released.
	f.buf = append(f.buf[:0:0], rest...)
	return frames
}

// Buffered reports the size of the pending partial line.
func (f *Framer) Buffered() int {
	return len(f.buf)
}

// Reset drops any buffered partial line.
func (f *Framer) Reset() {
	f.buf = nil
	f.discarding = false
}
