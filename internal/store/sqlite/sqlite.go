package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/loykin/vmpilot/internal/store"
)

// DB implements store.Store for SQLite (modernc.org/sqlite driver, CGO-free).
// The path is a database file, or ":memory:".
type DB struct {
	db *sql.DB
}

func New(path string) (*DB, error) {
	p := strings.TrimSpace(path)
	if p == "" {
		return nil, errors.New("empty sqlite path")
	}
	d, err := sql.Open("sqlite", p)
	if err != nil {
		return nil, err
	}
	d.SetMaxOpenConns(1)
	// busy timeout helps with short concurrent locks
	_, _ = d.Exec("PRAGMA busy_timeout=3000;")
	return &DB{db: d}, nil
}

func (s *DB) EnsureSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS vm_settings(
		name TEXT PRIMARY KEY,
		data TEXT NOT NULL,
		updated_at TIMESTAMP NOT NULL
	);`)
	return err
}

func (s *DB) Close() error { return s.db.Close() }

func (s *DB) Put(ctx context.Context, rec store.Record) error {
	if rec.UpdatedAt.IsZero() {
		rec.UpdatedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO vm_settings(name, data, updated_at) VALUES(?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET data=excluded.data, updated_at=excluded.updated_at;`,
		rec.Name, string(rec.Data), rec.UpdatedAt.UTC())
	return err
}

func (s *DB) Get(ctx context.Context, name string) (store.Record, error) {
	var (
		r    store.Record
		data string
	)
	err := s.db.QueryRowContext(ctx, `SELECT name, data, updated_at FROM vm_settings WHERE name=?;`, name).
		Scan(&r.Name, &data, &r.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return store.Record{}, store.ErrNotFound
	}
	if err != nil {
		return store.Record{}, err
	}
	r.Data = []byte(data)
	return r, nil
}

func (s *DB) Delete(ctx context.Context, name string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM vm_settings WHERE name=?;`, name)
	return err
}
