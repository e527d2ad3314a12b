package dataset

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
)

// ErrIO marks file access failures that prevent a run from starting.
var ErrIO = errors.New("dataset I/O")

const maxLine = 16 << 20

// Marshal encodes v as one JSONL line without HTML escaping, newline included.
func Marshal(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Scan calls fn for every non-blank line of r with its 0-based line number.
// The slice passed to fn is only valid during the call.
func Scan(r io.Reader, fn func(lineNo int, line []byte) error) error {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), maxLine)
	for n := 0; sc.Scan(); n++ {
		line := bytes.TrimSpace(sc.Bytes())
		if len(line) == 0 {
			continue
		}
		if err := fn(n, line); err != nil {
			return err
		}
	}
	return sc.Err()
}

// Malformed is called for lines that do not decode.
type Malformed func(lineNo int, err error)

// Decode scans r and decodes each line into a T. Lines that fail to decode
// are reported to bad (which may be nil) and skipped.
func Decode[T any](r io.Reader, bad Malformed, fn func(lineNo int, v T) error) error {
	return Scan(r, func(n int, line []byte) error {
		var v T
		if err := json.Unmarshal(line, &v); err != nil {
			if bad != nil {
				bad(n, err)
			}
			return nil
		}
		return fn(n, v)
	})
}

// ReadAll decodes every well-formed line of the file at path.
func ReadAll[T any](path string, bad Malformed) ([]T, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %w", ErrIO, path, err)
	}
	defer f.Close()
	var out []T
	err = Decode(f, bad, func(_ int, v T) error {
		out = append(out, v)
		return nil
	})
	return out, err
}
