package cmd

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/kozaktomas/face-attendance/internal/config"
)

func TestStoreBackend(t *testing.T) {
	tests := []struct {
		url         string
		wantBackend string
		wantTarget  string
	}{
		{"attendance.db", backendSQLite, "attendance.db"},
		{"sqlite:///var/lib/attendance.db", backendSQLite, "/var/lib/attendance.db"},
		{"SQLITE://data.db", backendSQLite, "data.db"},
		{":memory:", backendSQLite, ":memory:"},
		{"postgres://u:p@db:5432/att", backendPostgres, "postgres://u:p@db:5432/att"},
		{"postgresql://db/att", backendPostgres, "postgresql://db/att"},
		{"mysql://u:p@db/att", backendMariaDB, "mysql://u:p@db/att"},
		{"mariadb://db/att", backendMariaDB, "mariadb://db/att"},
	}

	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			backend, target := storeBackend(tt.url)
			if backend != tt.wantBackend || target != tt.wantTarget {
				t.Errorf("storeBackend(%q) = (%q, %q), want (%q, %q)", tt.url, backend, target, tt.wantBackend, tt.wantTarget)
			}
		})
	}
}

func TestOpenStore_SQLite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "roster.db")
	store, backend, err := openStore(context.Background(), &config.DatabaseConfig{URL: "sqlite://" + path})
	if err != nil {
		t.Fatalf("openStore failed: %v", err)
	}
	defer store.Close()

	if backend != backendSQLite {
		t.Errorf("expected sqlite backend, got %s", backend)
	}
	if _, err := os.Stat(path); err != nil {
		t.Errorf("expected database file to exist: %v", err)
	}
	count, err := store.CountStudents(context.Background())
	if err != nil || count != 0 {
		t.Errorf("expected empty roster, got %d (err=%v)", count, err)
	}
}

func TestNewApp(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("DATABASE_URL", filepath.Join(dir, "attendance.db"))
	t.Setenv("IMAGE_STORE", "local")
	t.Setenv("IMAGE_DIR", filepath.Join(dir, "images"))
	t.Setenv("MATCH_INDEX", "hnsw")

	a, err := newApp(context.Background(), true, func(cfg *config.Config) {
		cfg.Matching.Threshold = 0.3
	})
	if err != nil {
		t.Fatalf("newApp failed: %v", err)
	}
	defer a.Close()

	if a.cfg.Matching.Threshold != 0.3 {
		t.Errorf("expected override to apply, got threshold %f", a.cfg.Matching.Threshold)
	}
	students, err := a.service.ListStudents(context.Background())
	if err != nil || len(students) != 0 {
		t.Errorf("expected empty roster, got %v (err=%v)", students, err)
	}
}

func TestNewApp_UnknownIndex(t *testing.T) {
	t.Setenv("DATABASE_URL", filepath.Join(t.TempDir(), "attendance.db"))
	t.Setenv("MATCH_INDEX", "faiss")

	if _, err := newApp(context.Background(), true); err == nil {
		t.Fatal("expected error for unknown MATCH_INDEX")
	}
}
