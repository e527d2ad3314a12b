package checkpoint

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"

	"tutor-dpo/api/internal/dataset"
)

// Keys tracks which inputs have already produced durable output.
type Keys interface {
	Has(key string) bool
	Mark(ctx context.Context, key string) error
}

// KeySet is an in-memory, grow-only set of processed keys.
type KeySet struct {
	mu   sync.RWMutex
	keys map[string]struct{}
}

func NewKeySet(keys ...string) *KeySet {
	s := &KeySet{keys: make(map[string]struct{}, len(keys))}
	for _, k := range keys {
		s.keys[k] = struct{}{}
	}
	return s
}

func (s *KeySet) Has(key string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.keys[key]
	return ok
}

func (s *KeySet) Mark(_ context.Context, key string) error {
	s.mu.Lock()
	s.keys[key] = struct{}{}
	s.mu.Unlock()
	return nil
}

func (s *KeySet) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.keys)
}

const DefaultField = "conversation_id"

// LoadKeys scans an existing output file and collects the string values of
// field. A missing file gives an empty set. Lines that are not JSON objects
// or lack the field, such as a torn final line, are skipped.
func LoadKeys(path, field string) (*KeySet, error) {
	if field == "" {
		field = DefaultField
	}
	s := NewKeySet()
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %w", dataset.ErrIO, path, err)
	}
	defer f.Close()

	err = dataset.Scan(f, func(_ int, line []byte) error {
		var row map[string]json.RawMessage
		if json.Unmarshal(line, &row) != nil {
			return nil
		}
		var key string
		if json.Unmarshal(row[field], &key) != nil || key == "" {
			return nil
		}
		s.keys[key] = struct{}{}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: scan %s: %w", dataset.ErrIO, path, err)
	}
	return s, nil
}

// Multi combines key stores: a key is present if any store has it, and Mark
// records it in all of them.
type Multi []Keys

func (m Multi) Has(key string) bool {
	for _, k := range m {
		if k.Has(key) {
			return true
		}
	}
	return false
}

func (m Multi) Mark(ctx context.Context, key string) error {
	var errs []error
	for _, k := range m {
		if err := k.Mark(ctx, key); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
