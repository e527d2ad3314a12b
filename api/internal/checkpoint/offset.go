package checkpoint

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"tutor-dpo/api/internal/dataset"
)

const DefaultEvery = 10

// Offset persists how many input lines have been consumed, in a side file
// holding a single integer.
type Offset struct {
	Path  string
	Every int

	saved int
}

// ForOutput returns the offset file kept next to an output file.
func ForOutput(output string, every int) *Offset {
	if every <= 0 {
		every = DefaultEvery
	}
	return &Offset{Path: output + ".ckpt", Every: every}
}

// Load returns the stored offset, or 0 when no checkpoint exists.
func (o *Offset) Load() (int, error) {
	b, err := os.ReadFile(o.Path)
	if errors.Is(err, os.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("%w: read %s: %w", dataset.ErrIO, o.Path, err)
	}
	s := strings.TrimSpace(string(b))
	if s == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("checkpoint %s: bad offset %q", o.Path, s)
	}
	o.saved = n
	return n, nil
}

// Save replaces the stored offset atomically.
func (o *Offset) Save(n int) error {
	tmp, err := os.CreateTemp(filepath.Dir(o.Path), filepath.Base(o.Path)+".*")
	if err != nil {
		return fmt.Errorf("%w: checkpoint temp: %w", dataset.ErrIO, err)
	}
	if _, err := tmp.WriteString(strconv.Itoa(n)); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("%w: write checkpoint: %w", dataset.ErrIO, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("%w: close checkpoint: %w", dataset.ErrIO, err)
	}
	if err := os.Rename(tmp.Name(), o.Path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("%w: rename checkpoint: %w", dataset.ErrIO, err)
	}
	o.saved = n
	return nil
}

// Due reports whether at least Every lines were consumed since the last
// Load or Save. Skipped blank lines count, so no boundary is ever missed.
func (o *Offset) Due(consumed int) bool {
	return o.Every > 0 && consumed-o.saved >= o.Every
}
