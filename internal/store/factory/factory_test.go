package factory

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/loykin/vmpilot/internal/store"
	pg "github.com/loykin/vmpilot/internal/store/postgres"
	sq "github.com/loykin/vmpilot/internal/store/sqlite"
)

func TestNewFromDSN(t *testing.T) {
	if _, err := NewFromDSN("  "); err == nil {
		t.Fatal("expected error for empty DSN")
	}

	cases := []struct {
		dsn      string
		postgres bool
	}{
		{"postgres://user@localhost/db", true},
		{"POSTGRESQL://user@localhost/db", true},
		{"sqlite://:memory:", false},
		{":memory:", false},
	}
	for _, tc := range cases {
		s, err := NewFromDSN(tc.dsn)
		if err != nil {
			t.Fatalf("%s: %v", tc.dsn, err)
		}
		switch s.(type) {
		case *pg.DB:
			if !tc.postgres {
				t.Fatalf("%s: got postgres store", tc.dsn)
			}
		case *sq.DB:
			if tc.postgres {
				t.Fatalf("%s: got sqlite store", tc.dsn)
			}
		default:
			t.Fatalf("%s: unexpected store %T", tc.dsn, s)
		}
		_ = s.Close()
	}
}

func TestSQLiteSchemeIsUsable(t *testing.T) {
	s, err := NewFromDSN("sqlite://:memory:")
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = s.Close() }()
	ctx := context.Background()
	if err := s.EnsureSchema(ctx); err != nil {
		t.Fatal(err)
	}
	if err := s.Put(ctx, store.Record{Name: "vm", Data: []byte("{}")}); err != nil {
		t.Fatal(err)
	}
}

func TestNewFromDSNRejectsUnknownScheme(t *testing.T) {
	_, err := NewFromDSN("mysql://user@localhost/settings")
	if !errors.Is(err, ErrUnsupportedDSN) {
		t.Fatalf("expected ErrUnsupportedDSN, got %v", err)
	}
	if !strings.Contains(err.Error(), "mysql://") || !strings.Contains(err.Error(), "postgres://") {
		t.Fatalf("error should name the scheme and the supported ones: %v", err)
	}
}

func TestNewFromDSNCreatesSQLiteDir(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data", "nested", "settings.db")
	s, err := NewFromDSN("sqlite://" + path)
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = s.Close() }()
	if err := s.EnsureSchema(context.Background()); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("database file not created: %v", err)
	}
}
