package sqldb

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
)

func TestParseDSN(t *testing.T) {
	tests := []struct {
		dsn     string
		dialect Dialect
		driver  string
		prefix  string
	}{
		{"postgres://u:p@localhost:5432/db?sslmode=disable", Postgres, "pgx", "postgres://u:p@localhost"},
		{"postgresql://localhost/db", Postgres, "pgx", "postgresql://localhost/db"},
		{"sqlite://history.db", SQLite, "sqlite", "history.db?_pragma="},
		{"sqlite:/tmp/h.db?mode=rwc", SQLite, "sqlite", "/tmp/h.db?mode=rwc&_pragma="},
	}
	for _, tt := range tests {
		dialect, driver, driverDSN, err := ParseDSN(tt.dsn)
		if err != nil {
			t.Fatalf("ParseDSN(%q) error = %v", tt.dsn, err)
		}
		if dialect != tt.dialect || driver != tt.driver {
			t.Fatalf("ParseDSN(%q) = %q/%q", tt.dsn, dialect, driver)
		}
		if !strings.HasPrefix(driverDSN, tt.prefix) {
			t.Fatalf("driver dsn = %q, want prefix %q", driverDSN, tt.prefix)
		}
	}
}

func TestParseDSNRejectsUnknownScheme(t *testing.T) {
	for _, dsn := range []string{"", "mysql://root:hunter2@db/x", "sqlite://"} {
		_, _, _, err := ParseDSN(dsn)
		if err == nil {
			t.Fatalf("ParseDSN(%q) expected error", dsn)
		}
		if strings.Contains(err.Error(), "hunter2") {
			t.Fatalf("error leaks password: %v", err)
		}
	}
}

func TestRebind(t *testing.T) {
	got := Rebind(Postgres, "SELECT * FROM t WHERE a = ? AND b = '?' AND c IN (?, ?)")
	want := "SELECT * FROM t WHERE a = $1 AND b = '?' AND c IN ($2, $3)"
	if got != want {
		t.Fatalf("Rebind() = %q, want %q", got, want)
	}
	if got := Rebind(SQLite, "SELECT ?"); got != "SELECT ?" {
		t.Fatalf("Rebind(sqlite) = %q", got)
	}
}

func TestPlaceholders(t *testing.T) {
	if got := Placeholders(3); got != "?, ?, ?" {
		t.Fatalf("Placeholders(3) = %q", got)
	}
	if got := Placeholders(0); got != "" {
		t.Fatalf("Placeholders(0) = %q", got)
	}
}

func TestOpenSQLite(t *testing.T) {
	dsn := "sqlite://" + filepath.Join(t.TempDir(), "history.db")
	db, dialect, err := Open(context.Background(), DBConfig{DSN: dsn, MaxOpenConns: 8})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer func() { _ = db.Close() }()
	if dialect != SQLite {
		t.Fatalf("dialect = %q", dialect)
	}
	var one int
	if err := db.QueryRowContext(context.Background(), "SELECT 1").Scan(&one); err != nil {
		t.Fatalf("SELECT 1 error = %v", err)
	}
	if db.Stats().MaxOpenConnections != 1 {
		t.Fatalf("MaxOpenConnections = %d, want 1 for sqlite", db.Stats().MaxOpenConnections)
	}
}
