//go:build integration

package postgres

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/kozaktomas/face-attendance/internal/config"
	"github.com/kozaktomas/face-attendance/internal/constants"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

func setupTestContainer(t *testing.T) (*Pool, func()) {
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "pgvector/pgvector:pg16",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "test",
			"POSTGRES_PASSWORD": "test",
			"POSTGRES_DB":       "testdb",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Skipf("Docker not available or container failed to start, skipping integration test: %v", err)
		return nil, func() {}
	}

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("Failed to get container host: %v", err)
	}
	port, err := container.MappedPort(ctx, "5432")
	if err != nil {
		t.Fatalf("Failed to get container port: %v", err)
	}

	cfg := &config.DatabaseConfig{
		URL:          fmt.Sprintf("postgres://test:test@%s:%s/testdb?sslmode=disable", host, port.Port()),
		MaxOpenConns: 5,
		MaxIdleConns: 2,
	}

	pool, err := Open(ctx, cfg)
	if err != nil {
		container.Terminate(ctx)
		t.Fatalf("Failed to open pool: %v", err)
	}

	cleanup := func() {
		pool.Close()
		container.Terminate(ctx)
	}
	return pool, cleanup
}

func testEmbedding(dim int, offset float32) []float32 {
	emb := make([]float32, dim)
	for i := range emb {
		emb[i] = float32(i)/float32(dim) + offset
	}
	return emb
}

func TestRoster(t *testing.T) {
	pool, cleanup := setupTestContainer(t)
	if pool == nil {
		return
	}
	defer cleanup()

	ctx := context.Background()

	t.Run("UpsertAndGet", func(t *testing.T) {
		st, err := pool.UpsertStudent(ctx, "Alice", testEmbedding(128, 0), "alice.jpg")
		if err != nil {
			t.Fatalf("Failed to upsert: %v", err)
		}
		got, err := pool.GetStudent(ctx, st.ID)
		if err != nil {
			t.Fatalf("Failed to get: %v", err)
		}
		if got == nil || got.Name != "Alice" {
			t.Fatalf("Expected Alice, got %+v", got)
		}
		if len(got.Embedding) != 128 {
			t.Errorf("Expected 128 dimensions, got %d", len(got.Embedding))
		}
	})

	t.Run("UpsertOverwrites", func(t *testing.T) {
		first, _ := pool.GetStudentByName(ctx, "Alice")
		before, err := pool.RosterStamp(ctx)
		if err != nil {
			t.Fatalf("Failed to read stamp: %v", err)
		}
		second, err := pool.UpsertStudent(ctx, "Alice", testEmbedding(128, 1), "alice2.jpg")
		if err != nil {
			t.Fatalf("Failed to upsert: %v", err)
		}
		if second.ID != first.ID {
			t.Errorf("Expected same ID %d, got %d", first.ID, second.ID)
		}
		if second.ImageRef != "alice2.jpg" {
			t.Errorf("Expected image ref to be replaced, got %q", second.ImageRef)
		}
		count, _ := pool.CountStudents(ctx)
		if count != 1 {
			t.Errorf("Expected 1 student, got %d", count)
		}
		after, _ := pool.RosterStamp(ctx)
		if after == before {
			t.Errorf("Expected overwrite to change the roster stamp, still %+v", after)
		}
	})

	t.Run("NotFound", func(t *testing.T) {
		got, err := pool.GetStudent(ctx, 9999)
		if err != nil {
			t.Fatalf("Unexpected error: %v", err)
		}
		if got != nil {
			t.Errorf("Expected nil, got %+v", got)
		}
	})

	t.Run("AttendanceAndDelete", func(t *testing.T) {
		ok, err := pool.RecordAttendance(ctx, "Alice", time.Now())
		if err != nil || !ok {
			t.Fatalf("Expected record, got %v %v", ok, err)
		}
		ok, _ = pool.RecordAttendance(ctx, constants.UnknownIdentity, time.Now())
		if ok {
			t.Error("Unknown must not be recorded")
		}
		ok, _ = pool.RecordAttendance(ctx, "Nobody", time.Now())
		if ok {
			t.Error("Unregistered name must not be recorded")
		}

		st, _ := pool.GetStudentByName(ctx, "Alice")
		deleted, err := pool.DeleteStudent(ctx, st.ID)
		if err != nil || !deleted {
			t.Fatalf("Expected delete, got %v %v", deleted, err)
		}
		count, _ := pool.CountAttendance(ctx)
		if count != 0 {
			t.Errorf("Expected attendance to be removed, got %d", count)
		}
	})
}

func TestMigrations(t *testing.T) {
	pool, cleanup := setupTestContainer(t)
	if pool == nil {
		return
	}
	defer cleanup()

	applied, err := pool.MigrationsApplied(context.Background())
	if err != nil {
		t.Fatalf("Failed to get applied migrations: %v", err)
	}
	if len(applied) != 2 || applied[0] != "001_roster.sql" || applied[1] != "002_revision.sql" {
		t.Errorf("Unexpected migrations: %v", applied)
	}
}
