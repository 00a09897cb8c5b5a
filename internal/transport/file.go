package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// File reads a kernel log file. With Follow set, reads block at end of
// file until the file grows, like tail -f, and the stream ends when the
// file is removed or renamed.
type File struct {
	Path   string
	Follow bool
}

// Name returns the file path.
func (f *File) Name() string {
	return f.Path
}

// Open opens the file from the beginning.
func (f *File) Open(ctx context.Context) (io.ReadCloser, error) {
	fh, err := os.Open(f.Path)
	if err != nil {
		return nil, fmt.Errorf("open log %s: %w", f.Path, err)
	}
	if !f.Follow {
		return fh, nil
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		fh.Close()
		return nil, fmt.Errorf("watch log %s: %w", f.Path, err)
	}
	if err := w.Add(f.Path); err != nil {
		w.Close()
		fh.Close()
		return nil, fmt.Errorf("watch log %s: %w", f.Path, err)
	}
	return &follower{path: f.Path, f: fh, w: w, done: make(chan struct{})}, nil
}

// follower turns EOF into a wait for the next write event.
type follower struct {
	path string
	f    *os.File
	w    *fsnotify.Watcher

	done      chan struct{}
	closeOnce sync.Once
}

func (fl *follower) Read(p []byte) (int, error) {
	for {
		n, err := fl.f.Read(p)
		if fl.closed() {
			return n, io.EOF
		}
		if n > 0 {
			return n, nil
		}
		if err != nil && !errors.Is(err, io.EOF) {
			return 0, err
		}

		select {
		case <-fl.done:
			return 0, io.EOF
		case ev, ok := <-fl.w.Events:
			if !ok {
				return 0, io.EOF
			}
			if ev.Has(fsnotify.Remove) || ev.Has(fsnotify.Rename) {
				return 0, io.EOF
			}
			// Unlinking a file that is still open only changes its link
			// count, which arrives as a chmod event.
			if _, err := os.Stat(fl.path); errors.Is(err, os.ErrNotExist) {
				return 0, io.EOF
			}
		case err, ok := <-fl.w.Errors:
			if !ok {
				return 0, io.EOF
			}
			return 0, fmt.Errorf("watch log %s: %w", fl.path, err)
		}
	}
}

func (fl *follower) closed() bool {
	select {
	case <-fl.done:
		return true
	default:
		return false
	}
}

// Close stops following and closes the file. It is safe to call twice.
func (fl *follower) Close() error {
	var err error
	fl.closeOnce.Do(func() {
		close(fl.done)
		werr := fl.w.Close()
		ferr := fl.f.Close()
		err = errors.Join(werr, ferr)
	})
	return err
}
