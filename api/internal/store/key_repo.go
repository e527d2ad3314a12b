package store

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
)

// KeyRepo is a durable processed-key set shared by runs writing the same
// output. Keys are namespaced by scope, typically the output path.
type KeyRepo struct {
	DB    *sql.DB
	scope string

	mu    sync.RWMutex
	cache map[string]struct{}
}

// NewKeyRepo loads the keys already recorded for scope.
func NewKeyRepo(ctx context.Context, db *sql.DB, scope string) (*KeyRepo, error) {
	r := &KeyRepo{DB: db, scope: scope, cache: map[string]struct{}{}}
	if err := r.Load(ctx); err != nil {
		return nil, err
	}
	return r, nil
}

// Load refreshes the in-memory view from the database.
func (r *KeyRepo) Load(ctx context.Context) error {
	const q = `select item_key from processed_keys where scope = $1`
	rows, err := r.DB.QueryContext(ctx, q, r.scope)
	if err != nil {
		return fmt.Errorf("load keys: %w", err)
	}
	defer rows.Close()

	keys := map[string]struct{}{}
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return fmt.Errorf("load keys: %w", err)
		}
		keys[k] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("load keys: %w", err)
	}
	r.mu.Lock()
	r.cache = keys
	r.mu.Unlock()
	return nil
}

func (r *KeyRepo) Has(key string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.cache[key]
	return ok
}

// Mark records key. Marking a key twice is a no-op.
func (r *KeyRepo) Mark(ctx context.Context, key string) error {
	const q = `
insert into processed_keys(scope, item_key)
values ($1, $2)
on conflict (scope, item_key) do nothing`
	if _, err := r.DB.ExecContext(ctx, q, r.scope, key); err != nil {
		return fmt.Errorf("mark key %q: %w", key, err)
	}
	r.mu.Lock()
	r.cache[key] = struct{}{}
	r.mu.Unlock()
	return nil
}

func (r *KeyRepo) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.cache)
}
