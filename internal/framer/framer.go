// Package framer splits a byte stream into newline-delimited lines with a
// bounded buffer.
package framer

import (
	"bytes"
	"sync"
)

// DefaultMaxBytes is the frame capacity used when none is given.
const DefaultMaxBytes = 100 * 1024

// Framer is an io.Writer that emits one trimmed line per newline.
//
// A frame that grows past the capacity without a newline is discarded and the
// framer skips every byte up to and including the next newline before it
// resumes. Empty lines are not emitted. Emission happens synchronously
// inside Write; emit must not call back into the Framer.
type Framer struct {
	mu        sync.Mutex
	buf       []byte
	max       int
	skipping  bool
	truncated int
	emit      func(line string)
}

// New returns a Framer with the given capacity. A non-positive maxBytes
// selects DefaultMaxBytes.
func New(maxBytes int, emit func(line string)) *Framer {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	return &Framer{
		buf:  make([]byte, 0, min(maxBytes, 4096)),
		max:  maxBytes,
		emit: emit,
	}
}

// Write consumes p. It never returns an error.
func (f *Framer) Write(p []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	n := len(p)
	for len(p) > 0 {
		i := bytes.IndexByte(p, '\n')
		if f.skipping {
			if i < 0 {
				return n, nil
			}
			f.skipping = false
			p = p[i+1:]
			continue
		}

		chunk := p
		if i >= 0 {
			chunk = p[:i]
		}
		if len(f.buf)+len(chunk) > f.max {
			f.buf = f.buf[:0]
			f.truncated++
			if i < 0 {
				f.skipping = true
				return n, nil
			}
			p = p[i+1:]
			continue
		}
		f.buf = append(f.buf, chunk...)
		if i < 0 {
			return n, nil
		}
		f.flush()
		p = p[i+1:]
	}
	return n, nil
}

// Flush emits any buffered partial line, as when the stream closes.
func (f *Framer) Flush() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.skipping {
		f.skipping = false
		return
	}
	f.flush()
}

func (f *Framer) flush() {
	line := bytes.TrimSpace(f.buf)
	if len(line) > 0 {
		f.emit(string(line))
	}
	f.buf = f.buf[:0]
}

// Truncated returns how many frames were discarded for exceeding capacity.
func (f *Framer) Truncated() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.truncated
}
