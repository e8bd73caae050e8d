package factory

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/loykin/vmpilot/internal/store"
	pg "github.com/loykin/vmpilot/internal/store/postgres"
	sq "github.com/loykin/vmpilot/internal/store/sqlite"
)

// ErrUnsupportedDSN is returned for a DSN whose scheme has no store backend.
var ErrUnsupportedDSN = errors.New("unsupported settings DSN")

// Schemes lists the DSN forms accepted by NewFromDSN.
var Schemes = []string{"sqlite://<path>", "sqlite://:memory:", "postgres://", "postgresql://", "<path>.db"}

// NewFromDSN opens the settings store named by dsn. A bare path is a sqlite
// file; its parent directory is created when missing.
func NewFromDSN(dsn string) (store.Store, error) {
	d := strings.TrimSpace(dsn)
	if d == "" {
		return nil, errors.New("empty DSN")
	}
	scheme, rest, hasScheme := strings.Cut(d, "://")
	if !hasScheme {
		return openSQLite(d)
	}
	switch strings.ToLower(scheme) {
	case "postgres", "postgresql":
		return pg.New(d)
	case "sqlite", "sqlite3":
		return openSQLite(rest)
	}
	return nil, fmt.Errorf("%w %q: use one of %s", ErrUnsupportedDSN, scheme+"://", strings.Join(Schemes, ", "))
}

func openSQLite(path string) (store.Store, error) {
	if path != ":memory:" && !strings.HasPrefix(path, "file:") {
		if dir := filepath.Dir(path); dir != "." {
			if err := os.MkdirAll(dir, 0o750); err != nil {
				return nil, fmt.Errorf("create settings dir: %w", err)
			}
		}
	}
	return sq.New(path)
}
