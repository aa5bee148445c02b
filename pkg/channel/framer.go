package channel

import "bytes"

// Framer accumulates a byte stream and splits it into frames terminated by
// a sentinel. Bytes after the last sentinel stay buffered until more data
// completes the next frame. A Framer is not safe for concurrent use.
type Framer struct {
	sentinel []byte
	buf      []byte
}

// NewFramer returns a Framer splitting on sentinel.
func NewFramer(sentinel string) *Framer {
	return &Framer{sentinel: []byte(sentinel)}
}

// Write appends p to the buffer. It never fails.
func (f *Framer) Write(p []byte) (int, error) {
	f.buf = append(f.buf, p...)
	return len(p), nil
}

// Next removes and returns the next complete frame, without its sentinel.
// It returns false when the buffer holds no complete frame, which includes
// the case of a sentinel split across two writes.
func (f *Framer) Next() ([]byte, bool) {
	idx := bytes.Index(f.buf, f.sentinel)
	if idx < 0 {
		return nil, false
	}

	frame := make([]byte, idx)
	copy(frame, f.buf[:idx])

	rest := f.buf[idx+len(f.sentinel):]
	f.buf = append(f.buf[:0], rest...)
	return frame, true
}

// Buffered returns a copy of the bytes waiting for their sentinel.
func (f *Framer) Buffered() []byte {
	out := make([]byte, len(f.buf))
	copy(out, f.buf)
	return out
}

// Reset discards buffered bytes.
func (f *Framer) Reset() {
	f.buf = f.buf[:0]
}
