package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

var ErrNotFound = sql.ErrNoRows

type RunRepo struct{ DB *sql.DB }

func NewRunRepo(db *sql.DB) *RunRepo { return &RunRepo{DB: db} }

// Run is the summary of one batch invocation.
type Run struct {
	ID      string
	Command string
	Input   string
	Output  string
	Stats   map[string]int
}

// Insert stores run and returns its id, generating one when empty.
func (r *RunRepo) Insert(ctx context.Context, run Run) (string, error) {
	if run.ID == "" {
		run.ID = uuid.New().String()
	}
	js, err := json.Marshal(run.Stats)
	if err != nil {
		return "", fmt.Errorf("encode run stats: %w", err)
	}
	const q = `
insert into runs(id, command, input, output, stats_json)
values ($1, $2, $3, $4, $5)`
	if _, err := r.DB.ExecContext(ctx, q, run.ID, run.Command, run.Input, run.Output, string(js)); err != nil {
		return "", fmt.Errorf("insert run: %w", err)
	}
	return run.ID, nil
}

// Find returns the run with id, or ErrNotFound.
func (r *RunRepo) Find(ctx context.Context, id string) (Run, error) {
	const q = `select id, command, input, output, stats_json from runs where id = $1`
	var (
		run Run
		js  string
	)
	if err := r.DB.QueryRowContext(ctx, q, id).Scan(&run.ID, &run.Command, &run.Input, &run.Output, &js); err != nil {
		return Run{}, err
	}
	if err := json.Unmarshal([]byte(js), &run.Stats); err != nil {
		return Run{}, fmt.Errorf("decode run stats: %w", err)
	}
	return run, nil
}
