// Package store persists small per-VM documents, such as remote desktop
// connection settings, keyed by VM name.
package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by Get when no record exists for the name.
var ErrNotFound = errors.New("record not found")

// Record is one stored document. Data is opaque JSON owned by the caller.
type Record struct {
	Name      string
	Data      []byte
	UpdatedAt time.Time
}

// Store is the persistence interface shared by the SQL backends.
type Store interface {
	EnsureSchema(ctx context.Context) error
	Put(ctx context.Context, rec Record) error
	Get(ctx context.Context, name string) (Record, error)
	Delete(ctx context.Context, name string) error
	Close() error
}
