package dataset

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/gofrs/flock"
)

// Sink receives encoded records in order.
type Sink interface {
	Append(v any) error
}

// ErrLocked is returned when another process is appending to the same file.
var ErrLocked = errors.New("output file is locked by another writer")

// Writer appends JSONL records to a file. Each Append is flushed before it
// returns so a crash loses at most the record being written. A sibling
// ".lock" file keeps a second process from writing concurrently.
type Writer struct {
	path string
	lock *flock.Flock

	mu sync.Mutex
	f  *os.File
	w  *bufio.Writer
	n  int
}

// Create opens path for appending, creating parent directories as needed.
func Create(path string) (*Writer, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("%w: mkdir %s: %w", ErrIO, dir, err)
		}
	}
	lk := flock.New(path + ".lock")
	ok, err := lk.TryLock()
	if err != nil {
		return nil, fmt.Errorf("%w: lock %s: %w", ErrIO, path, err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrLocked, path)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR|os.O_APPEND, 0o644)
	if err != nil {
		_ = lk.Unlock()
		return nil, fmt.Errorf("%w: open %s: %w", ErrIO, path, err)
	}
	if err := terminateLastLine(f); err != nil {
		f.Close()
		_ = lk.Unlock()
		return nil, fmt.Errorf("%w: repair %s: %w", ErrIO, path, err)
	}
	return &Writer{path: path, lock: lk, f: f, w: bufio.NewWriter(f)}, nil
}

// terminateLastLine ends a torn final line left by a crash so the next
// record starts on its own line.
func terminateLastLine(f *os.File) error {
	fi, err := f.Stat()
	if err != nil || fi.Size() == 0 {
		return err
	}
	last := make([]byte, 1)
	if _, err := f.ReadAt(last, fi.Size()-1); err != nil {
		return err
	}
	if last[0] == '\n' {
		return nil
	}
	_, err = f.Write([]byte{'\n'})
	return err
}

// Append writes v as one line.
func (w *Writer) Append(v any) error {
	line, err := Marshal(v)
	if err != nil {
		return fmt.Errorf("encode record: %w", err)
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.f == nil {
		return fmt.Errorf("%w: %s is closed", ErrIO, w.path)
	}
	if _, err := w.w.Write(line); err != nil {
		return fmt.Errorf("%w: write %s: %w", ErrIO, w.path, err)
	}
	if err := w.w.Flush(); err != nil {
		return fmt.Errorf("%w: flush %s: %w", ErrIO, w.path, err)
	}
	w.n++
	return nil
}

// Written is the number of records appended by this writer.
func (w *Writer) Written() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.n
}

func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.f == nil {
		return nil
	}
	err := w.w.Flush()
	if cerr := w.f.Close(); err == nil {
		err = cerr
	}
	w.f = nil
	if uerr := w.lock.Unlock(); err == nil {
		err = uerr
	}
	return err
}
