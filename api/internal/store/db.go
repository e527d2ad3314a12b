package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"
)

// Open connects to the database named by dsn and checks it is reachable.
// postgres:// and postgresql:// DSNs use pgx; sqlite://<path> uses the
// embedded SQLite driver.
func Open(ctx context.Context, dsn string) (*sql.DB, error) {
	driver, source, err := parseDSN(dsn)
	if err != nil {
		return nil, err
	}
	db, err := sql.Open(driver, source)
	if err != nil {
		return nil, fmt.Errorf("db open: %w", err)
	}
	if driver == "sqlite" {
		// one writer; avoids SQLITE_BUSY between pooled connections
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(10)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(30 * time.Minute)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("db ping: %w", err)
	}
	if err := migrate(ctx, db); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

func parseDSN(dsn string) (driver, source string, err error) {
	dsn = strings.TrimSpace(dsn)
	switch {
	case strings.HasPrefix(dsn, "postgres://"), strings.HasPrefix(dsn, "postgresql://"):
		return "pgx", dsn, nil
	case strings.HasPrefix(dsn, "sqlite://"):
		path := strings.TrimPrefix(dsn, "sqlite://")
		if path == "" {
			return "", "", fmt.Errorf("sqlite dsn %q has no path", dsn)
		}
		return "sqlite", path, nil
	default:
		return "", "", fmt.Errorf("unsupported dsn %q; use postgres:// or sqlite://", dsn)
	}
}

const schema = `
create table if not exists processed_keys (
	scope      text not null,
	item_key   text not null,
	created_at timestamp not null default current_timestamp,
	primary key (scope, item_key)
);
create table if not exists runs (
	id         text primary key,
	command    text not null,
	input      text not null,
	output     text not null,
	stats_json text not null,
	created_at timestamp not null default current_timestamp
);`

func migrate(ctx context.Context, db *sql.DB) error {
	for _, stmt := range strings.Split(schema, ";") {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("db migrate: %w", err)
		}
	}
	return nil
}
