package postgres

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/loykin/vmpilot/internal/store"
)

type DB struct {
	db *sql.DB
}

func New(dsn string) (*DB, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, errors.New("empty postgres DSN")
	}
	d, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	return &DB{db: d}, nil
}

func (p *DB) EnsureSchema(ctx context.Context) error {
	_, err := p.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS vm_settings(
		name TEXT PRIMARY KEY,
		data JSONB NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	);`)
	return err
}

func (p *DB) Close() error { return p.db.Close() }

func (p *DB) Put(ctx context.Context, rec store.Record) error {
	if rec.UpdatedAt.IsZero() {
		rec.UpdatedAt = time.Now()
	}
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO vm_settings(name, data, updated_at) VALUES($1, $2, $3)
		ON CONFLICT(name) DO UPDATE SET data=excluded.data, updated_at=excluded.updated_at;`,
		rec.Name, string(rec.Data), rec.UpdatedAt.UTC())
	return err
}

func (p *DB) Get(ctx context.Context, name string) (store.Record, error) {
	var (
		r    store.Record
		data string
	)
	err := p.db.QueryRowContext(ctx, `SELECT name, data::text, updated_at FROM vm_settings WHERE name=$1;`, name).
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

func (p *DB) Delete(ctx context.Context, name string) error {
	_, err := p.db.ExecContext(ctx, `DELETE FROM vm_settings WHERE name=$1;`, name)
	return err
}
