package pickle

import (
	"bufio"
	"bytes"
	"io"
	"math"
)

// maxSize caps frame sizes and length prefixes: nothing larger than the
// maximum addressable object can be materialized anyway.
const maxSize = uint64(math.MaxInt64)

// reader is the machine's byte source with at most one frame window layered
// on top.
//
// While a window is active, reads are served from it; a short read inside
// the window is an error ("pickle exhausted before end of frame"), while a
// window that is already empty when a read starts is discarded and the read
// falls through to the underlying stream.
//
// pos counts the bytes delivered to the machine, so instruction addresses
// line up with the disassembler's regardless of framing.
type reader struct {
	r     *bufio.Reader
	frame []byte // active window; nil when none
	foff  int    // consumed prefix of frame
	pos   int64

	// reusable buffer for readLine
	line []byte
}

func newReader(r io.Reader) *reader {
	return &reader{r: bufio.NewReader(r)}
}

// frameActive reports whether a non-exhausted window is pending.
func (r *reader) frameActive() bool {
	return r.frame != nil && r.foff < len(r.frame)
}

// loadFrame opens a new window by eagerly reading size bytes from the
// underlying stream.
func (r *reader) loadFrame(size uint64) error {
	if size > maxSize {
		return errKind(FormatError, ErrFrameTooLarge)
	}
	if r.frameActive() {
		return errKind(FormatError, ErrNestedFrame)
	}
	buf, err := readFull(r.r, int(size))
	if err != nil {
		return err
	}
	r.frame = buf
	r.foff = 0
	return nil
}

// readFull reads exactly n bytes. Large counts are read incrementally so a
// lying length prefix fails on truncation instead of allocating n up front.
func readFull(src io.Reader, n int) ([]byte, error) {
	const eager = 1 << 20
	if n <= eager {
		buf := make([]byte, n)
		if _, err := io.ReadFull(src, buf); err != nil {
			return nil, errKind(FormatError, ErrTruncated)
		}
		return buf, nil
	}
	var buf bytes.Buffer
	buf.Grow(eager)
	if _, err := io.CopyN(&buf, src, int64(n)); err != nil {
		return nil, errKind(FormatError, ErrTruncated)
	}
	return buf.Bytes(), nil
}

// read returns exactly n freshly-allocated bytes, or fails with truncation.
func (r *reader) read(n int) ([]byte, error) {
	if r.frame != nil {
		if r.foff == len(r.frame) {
			// window exactly exhausted; fall through to the stream
			r.frame = nil
		} else {
			if len(r.frame)-r.foff < n {
				return nil, errKind(FormatError, ErrFrameExhausted)
			}
			buf := make([]byte, n)
			copy(buf, r.frame[r.foff:])
			r.foff += n
			r.pos += int64(n)
			return buf, nil
		}
	}

	buf, err := readFull(r.r, n)
	if err != nil {
		return nil, err
	}
	r.pos += int64(n)
	return buf, nil
}

// readByte reads a single byte.
func (r *reader) readByte() (byte, error) {
	b, err := r.read(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

// readLine reads bytes up to the next 0x0A, consuming and stripping the
// terminator. The returned slice is valid only until the next readLine.
func (r *reader) readLine() ([]byte, error) {
	if r.frame != nil {
		if r.foff == len(r.frame) {
			r.frame = nil
		} else {
			rest := r.frame[r.foff:]
			for i, c := range rest {
				if c == '\n' {
					r.foff += i + 1
					r.pos += int64(i + 1)
					return rest[:i], nil
				}
			}
			// window ran out before the terminator
			return nil, errKind(FormatError, ErrFrameExhausted)
		}
	}

	r.line = r.line[:0]
	for {
		c, err := r.r.ReadByte()
		if err != nil {
			return nil, errKind(FormatError, ErrTruncated)
		}
		r.pos++
		if c == '\n' {
			return r.line, nil
		}
		r.line = append(r.line, c)
	}
}
