package factory

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/loykin/vmpilot/internal/history"
	"github.com/loykin/vmpilot/internal/history/opensearch"
	"github.com/loykin/vmpilot/internal/history/sqlite"
)

func TestFactoryDSNTypes(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "h.db")
	tests := []struct {
		name        string
		dsn         string
		expectError bool
	}{
		{"Empty DSN", "", true},
		{"Invalid scheme", "invalid://test", true},
		{"OpenSearch without host", "opensearch:///index", true},
		{"SQLite file DSN", "sqlite://" + dbPath, false},
		{"SQLite memory DSN", "sqlite://:memory:", false},
		{"Bare SQLite path", dbPath, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sink, err := NewSinkFromDSN(tt.dsn)
			if tt.expectError {
				if err == nil {
					t.Errorf("expected error for DSN %q, got nil", tt.dsn)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error for DSN %q: %v", tt.dsn, err)
			}
			if _, ok := sink.(*sqlite.Sink); !ok {
				t.Fatalf("expected sqlite sink, got %T", sink)
			}
			if closer, ok := sink.(interface{ Close() error }); ok {
				_ = closer.Close()
			}
		})
	}
}

func TestOpenSearchDSNBuildsHTTPSink(t *testing.T) {
	sink, err := NewSinkFromDSN("opensearch://localhost:9200/jobs")
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := sink.(*opensearch.Sink); !ok {
		t.Fatalf("expected opensearch sink, got %T", sink)
	}
}

func TestOpenSearchDSNCredentials(t *testing.T) {
	var user, pass string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, _ = r.BasicAuth()
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	host := strings.TrimPrefix(srv.URL, "http://")
	sink, err := NewSinkFromDSN("opensearch://admin:pw@" + host + "/jobs")
	if err != nil {
		t.Fatal(err)
	}
	if err := sink.Send(context.Background(), history.Event{Type: history.EventStart, RunID: "r1"}); err != nil {
		t.Fatalf("send: %v", err)
	}
	if user != "admin" || pass != "pw" {
		t.Fatalf("credentials = %q/%q", user, pass)
	}
}

func TestClickHouseTarget(t *testing.T) {
	tests := []struct {
		dsn, addr, table string
	}{
		{"clickhouse://db:9000?table=events", "db:9000", "events"},
		{"clickhouse://db:9000", "db:9000", defaultClickHouseTable},
		{"clickhouse://", defaultClickHouseAddr, defaultClickHouseTable},
	}
	for _, tt := range tests {
		addr, table, err := clickHouseTarget(tt.dsn)
		if err != nil {
			t.Fatalf("%s: %v", tt.dsn, err)
		}
		if addr != tt.addr || table != tt.table {
			t.Fatalf("%s: got (%s,%s), want (%s,%s)", tt.dsn, addr, table, tt.addr, tt.table)
		}
	}
}

func TestOpenSearchTarget(t *testing.T) {
	tests := []struct {
		dsn, base, index string
	}{
		{"opensearch://localhost:9200/process-logs", "http://localhost:9200", "process-logs"},
		{"opensearch://localhost:9200", "http://localhost:9200", defaultOpenSearchIndex},
		{"elasticsearch://es:9200/events?tls=true", "https://es:9200", "events"},
	}
	for _, tt := range tests {
		base, index, err := openSearchTarget(tt.dsn)
		if err != nil {
			t.Fatalf("%s: %v", tt.dsn, err)
		}
		if base != tt.base || index != tt.index {
			t.Fatalf("%s: got (%s,%s), want (%s,%s)", tt.dsn, base, index, tt.base, tt.index)
		}
	}
}

func TestNewSinksSkipsBlank(t *testing.T) {
	m, err := NewSinks([]string{"", "sqlite://:memory:", "  "})
	if err != nil {
		t.Fatal(err)
	}
	if len(m) != 1 {
		t.Fatalf("len = %d, want 1", len(m))
	}
	_ = m.Close()

	if _, err := NewSinks([]string{"sqlite://:memory:", "bogus://x"}); err == nil {
		t.Fatal("expected error for unsupported DSN")
	}
}
