package sqlite

import (
	"context"
	"errors"
	"math"
	"path/filepath"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
)

// newTestStore creates a file-backed SQLite store in a temp dir.
func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(context.Background(), filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to open test store: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

func embedding(values ...float32) []float32 {
	return values
}

func TestOpen_RequiresPath(t *testing.T) {
	if _, err := Open(context.Background(), ""); err == nil {
		t.Error("expected error for empty path")
	}
}

func TestOpen_InMemory(t *testing.T) {
	store, err := Open(context.Background(), ":memory:")
	if err != nil {
		t.Fatalf("failed to open in-memory store: %v", err)
	}
	defer store.Close()

	if _, err := store.UpsertStudent(context.Background(), "Alice", embedding(1, 0), ""); err != nil {
		t.Fatalf("UpsertStudent() error: %v", err)
	}
	count, err := store.CountStudents(context.Background())
	if err != nil || count != 1 {
		t.Errorf("expected 1 student, got %d (err=%v)", count, err)
	}
}

func TestMigrate_Idempotent(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if err := store.Migrate(ctx); err != nil {
		t.Fatalf("second Migrate() error: %v", err)
	}
	versions, err := store.MigrationsApplied(ctx)
	if err != nil {
		t.Fatalf("MigrationsApplied() error: %v", err)
	}
	if len(versions) != 2 || versions[0] != "001_roster.sql" || versions[1] != "002_revision.sql" {
		t.Errorf("unexpected migrations %v", versions)
	}
}

func TestUpsertStudent_OverwritesByName(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	first, err := store.UpsertStudent(ctx, "Alice", embedding(1, 0, 0), "a.jpg")
	if err != nil {
		t.Fatalf("insert failed: %v", err)
	}

	second, err := store.UpsertStudent(ctx, "Alice", embedding(0, 1, 0), "b.jpg")
	if err != nil {
		t.Fatalf("update failed: %v", err)
	}

	if second.ID != first.ID {
		t.Errorf("expected same ID %d after overwrite, got %d", first.ID, second.ID)
	}
	if second.ImageRef != "b.jpg" {
		t.Errorf("expected image ref 'b.jpg', got '%s'", second.ImageRef)
	}
	if second.Embedding[1] != 1 {
		t.Errorf("expected overwritten embedding, got %v", second.Embedding)
	}
	if !second.CreatedAt.Equal(first.CreatedAt) {
		t.Errorf("expected created_at to be preserved")
	}

	count, _ := store.CountStudents(ctx)
	if count != 1 {
		t.Errorf("expected roster size 1 after re-registration, got %d", count)
	}
}

func TestListStudents_MostRecentFirst(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	for _, name := range []string{"Alice", "Bob", "Carol"} {
		if _, err := store.UpsertStudent(ctx, name, embedding(1, 2), ""); err != nil {
			t.Fatalf("upsert %s: %v", name, err)
		}
	}

	students, err := store.ListStudents(ctx)
	if err != nil {
		t.Fatalf("ListStudents() error: %v", err)
	}
	if len(students) != 3 {
		t.Fatalf("expected 3 students, got %d", len(students))
	}
	if students[0].Name != "Carol" || students[2].Name != "Alice" {
		t.Errorf("unexpected order: %s, %s, %s", students[0].Name, students[1].Name, students[2].Name)
	}
}

func TestGetStudent_NotFound(t *testing.T) {
	store := newTestStore(t)

	st, err := store.GetStudent(context.Background(), 42)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if st != nil {
		t.Errorf("expected nil student, got %+v", st)
	}

	st, err = store.GetStudentByName(context.Background(), "Nobody")
	if err != nil || st != nil {
		t.Errorf("expected nil, nil for unknown name, got %+v, %v", st, err)
	}
}

func TestAllEmbeddings_RoundTripBitIdentical(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	original := make([]float32, 128)
	for i := range original {
		original[i] = float32(math.Sin(float64(i)*0.37)) / 3
	}
	original[5] = float32(math.Copysign(0, -1))
	original[6] = math.SmallestNonzeroFloat32

	if _, err := store.UpsertStudent(ctx, "Alice", original, ""); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	entries, err := store.AllEmbeddings(ctx)
	if err != nil {
		t.Fatalf("AllEmbeddings() error: %v", err)
	}
	if len(entries) != 1 || entries[0].Name != "Alice" {
		t.Fatalf("unexpected entries %+v", entries)
	}
	for i := range original {
		if math.Float32bits(entries[0].Embedding[i]) != math.Float32bits(original[i]) {
			t.Fatalf("value %d differs after round trip", i)
		}
	}
}

func TestAllEmbeddings_InsertionOrder(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	store.UpsertStudent(ctx, "Alice", embedding(1), "")
	store.UpsertStudent(ctx, "Bob", embedding(2), "")
	store.UpsertStudent(ctx, "Alice", embedding(3), "")

	entries, err := store.AllEmbeddings(ctx)
	if err != nil {
		t.Fatalf("AllEmbeddings() error: %v", err)
	}
	if len(entries) != 2 || entries[0].Name != "Alice" || entries[1].Name != "Bob" {
		t.Errorf("unexpected order %+v", entries)
	}
}

func TestRecordAttendance(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	store.UpsertStudent(ctx, "Alice", embedding(1, 0), "")

	t.Run("UnknownIsNoop", func(t *testing.T) {
		before, _ := store.CountAttendance(ctx)
		ok, err := store.RecordAttendance(ctx, "Unknown", time.Now())
		if err != nil || ok {
			t.Errorf("expected no-op, got ok=%v err=%v", ok, err)
		}
		after, _ := store.CountAttendance(ctx)
		if before != after {
			t.Errorf("log size changed from %d to %d", before, after)
		}
	})

	t.Run("UnregisteredNameIsNoop", func(t *testing.T) {
		ok, err := store.RecordAttendance(ctx, "Mallory", time.Now())
		if err != nil || ok {
			t.Errorf("expected no-op, got ok=%v err=%v", ok, err)
		}
	})

	t.Run("AppendsAndListsMostRecentFirst", func(t *testing.T) {
		older := time.Date(2024, 9, 1, 8, 0, 0, 0, time.UTC)
		newer := time.Date(2024, 9, 2, 8, 0, 0, 500, time.UTC)
		if ok, err := store.RecordAttendance(ctx, "Alice", older); err != nil || !ok {
			t.Fatalf("record older: ok=%v err=%v", ok, err)
		}
		if ok, err := store.RecordAttendance(ctx, "Alice", newer); err != nil || !ok {
			t.Fatalf("record newer: ok=%v err=%v", ok, err)
		}

		records, err := store.ListAttendance(ctx)
		if err != nil {
			t.Fatalf("ListAttendance() error: %v", err)
		}
		if len(records) != 2 {
			t.Fatalf("expected 2 records, got %d", len(records))
		}
		if !records[0].Timestamp.Equal(newer) || !records[1].Timestamp.Equal(older) {
			t.Errorf("unexpected order: %v, %v", records[0].Timestamp, records[1].Timestamp)
		}
		if records[0].StudentName != "Alice" {
			t.Errorf("expected name Alice, got '%s'", records[0].StudentName)
		}
	})
}

func TestDeleteStudent_CascadesAttendance(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	alice, _ := store.UpsertStudent(ctx, "Alice", embedding(1, 0), "")
	store.UpsertStudent(ctx, "Bob", embedding(0, 1), "")
	store.RecordAttendance(ctx, "Alice", time.Now())
	store.RecordAttendance(ctx, "Alice", time.Now())
	store.RecordAttendance(ctx, "Bob", time.Now())

	deleted, err := store.DeleteStudent(ctx, alice.ID)
	if err != nil {
		t.Fatalf("DeleteStudent() error: %v", err)
	}
	if !deleted {
		t.Error("expected deleted=true")
	}

	records, _ := store.ListAttendance(ctx)
	if len(records) != 1 || records[0].StudentName != "Bob" {
		t.Errorf("expected only Bob's record to remain, got %+v", records)
	}

	var orphans int
	store.db.QueryRow("SELECT COUNT(*) FROM attendance WHERE student_id = ?", alice.ID).Scan(&orphans)
	if orphans != 0 {
		t.Errorf("expected no orphan records, got %d", orphans)
	}

	deleted, err = store.DeleteStudent(ctx, alice.ID)
	if err != nil || deleted {
		t.Errorf("expected deleted=false for missing student, got %v (err=%v)", deleted, err)
	}
}

func TestRosterStamp_ChangesWithRoster(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	stamp := func() (out [3]int64) {
		t.Helper()
		st, err := store.RosterStamp(ctx)
		if err != nil {
			t.Fatalf("RosterStamp() error: %v", err)
		}
		return [3]int64{int64(st.Count), st.MaxID, st.Revisions}
	}

	empty := stamp()
	if empty != [3]int64{0, 0, 0} {
		t.Errorf("expected zero stamp for empty roster, got %v", empty)
	}

	alice, err := store.UpsertStudent(ctx, "Alice", embedding(1, 0), "")
	if err != nil {
		t.Fatalf("insert failed: %v", err)
	}
	afterInsert := stamp()
	if afterInsert == empty {
		t.Error("insert must change the stamp")
	}

	if _, err := store.UpsertStudent(ctx, "Alice", embedding(0, 1), ""); err != nil {
		t.Fatalf("overwrite failed: %v", err)
	}
	afterOverwrite := stamp()
	if afterOverwrite == afterInsert {
		t.Error("overwrite must change the stamp")
	}
	if afterOverwrite[0] != 1 {
		t.Errorf("overwrite must keep one row, got %d", afterOverwrite[0])
	}

	if _, err := store.DeleteStudent(ctx, alice.ID); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	if got := stamp(); got == afterOverwrite || got[0] != 0 {
		t.Errorf("delete must change the stamp, got %v", got)
	}
}

func TestStore_StorageFailure(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error: %v", err)
	}
	defer db.Close()

	store := NewFromDB(db)
	failure := errors.New("disk I/O error")

	mock.ExpectQuery("SELECT id, name, embedding FROM students").WillReturnError(failure)
	if _, err := store.AllEmbeddings(context.Background()); !errors.Is(err, failure) {
		t.Errorf("expected wrapped storage error, got %v", err)
	}

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM attendance").WithArgs(int64(7)).WillReturnError(failure)
	mock.ExpectRollback()
	if _, err := store.DeleteStudent(context.Background(), 7); !errors.Is(err, failure) {
		t.Errorf("expected wrapped storage error, got %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}
