package transport

import (
	"context"
	"errors"
	"io"
	"sync"
)

// ErrExhausted is returned when a one-shot source is opened twice.
var ErrExhausted = errors.New("source already consumed")

// Reader is a one-shot source over an io.Reader.
type Reader struct {
	name string

	mu   sync.Mutex
	r    io.Reader
	used bool
}

// NewReader returns a source that yields r once.
func NewReader(name string, r io.Reader) *Reader {
	return &Reader{name: name, r: r}
}

// Name returns the name given to NewReader.
func (s *Reader) Name() string {
	return s.name
}

// Open returns the wrapped reader. If it is an io.ReadCloser, closing the
// stream closes it.
func (s *Reader) Open(context.Context) (io.ReadCloser, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.used {
		return nil, ErrExhausted
	}
	s.used = true
	if rc, ok := s.r.(io.ReadCloser); ok {
		return rc, nil
	}
	return io.NopCloser(s.r), nil
}
