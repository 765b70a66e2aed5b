package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/kozaktomas/face-attendance/internal/database"
)

type rowScanner interface {
	Scan(dest ...any) error
}

// scanStudent reads id, name, embedding, image_ref, created_at.
func scanStudent(row rowScanner) (*database.Student, error) {
	var (
		st        database.Student
		blob      []byte
		createdAt string
	)
	if err := row.Scan(&st.ID, &st.Name, &blob, &st.ImageRef, &createdAt); err != nil {
		return nil, err
	}

	embedding, err := database.DecodeEmbedding(blob)
	if err != nil {
		return nil, fmt.Errorf("student %d: %w", st.ID, err)
	}
	st.Embedding = embedding

	if st.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	return &st, nil
}

// UpsertStudent inserts a student or overwrites embedding and image of an existing name.
func (s *Store) UpsertStudent(ctx context.Context, name string, embedding []float32, imageRef string) (*database.Student, error) {
	row := s.db.QueryRowContext(ctx, `
		INSERT INTO students (name, embedding, image_ref, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			embedding = excluded.embedding,
			image_ref = excluded.image_ref,
			revision = revision + 1
		RETURNING id, name, embedding, image_ref, created_at
	`, name, database.EncodeEmbedding(embedding), imageRef, formatTime(time.Now()))

	st, err := scanStudent(row)
	if err != nil {
		return nil, fmt.Errorf("upsert student: %w", err)
	}
	return st, nil
}

// ListStudents returns all students, most recently added first.
func (s *Store) ListStudents(ctx context.Context) ([]database.Student, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, embedding, image_ref, created_at
		FROM students
		ORDER BY id DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("query students: %w", err)
	}
	defer rows.Close()

	var students []database.Student
	for rows.Next() {
		st, err := scanStudent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan student: %w", err)
		}
		students = append(students, *st)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate students: %w", err)
	}
	return students, nil
}

// GetStudent retrieves a student by ID, returns nil if not found.
func (s *Store) GetStudent(ctx context.Context, id int64) (*database.Student, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, embedding, image_ref, created_at
		FROM students
		WHERE id = ?
	`, id)

	st, err := scanStudent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get student: %w", err)
	}
	return st, nil
}

// GetStudentByName retrieves a student by name, returns nil if not found.
func (s *Store) GetStudentByName(ctx context.Context, name string) (*database.Student, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, embedding, image_ref, created_at
		FROM students
		WHERE name = ?
	`, name)

	st, err := scanStudent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get student by name: %w", err)
	}
	return st, nil
}

// AllEmbeddings returns every roster entry in insertion order.
func (s *Store) AllEmbeddings(ctx context.Context) ([]database.RosterEntry, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT id, name, embedding FROM students ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("query embeddings: %w", err)
	}
	defer rows.Close()

	var entries []database.RosterEntry
	for rows.Next() {
		var (
			entry database.RosterEntry
			blob  []byte
		)
		if err := rows.Scan(&entry.StudentID, &entry.Name, &blob); err != nil {
			return nil, fmt.Errorf("scan embedding: %w", err)
		}
		if entry.Embedding, err = database.DecodeEmbedding(blob); err != nil {
			return nil, fmt.Errorf("student %d: %w", entry.StudentID, err)
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate embeddings: %w", err)
	}
	return entries, nil
}

// CountStudents returns the number of registered students.
func (s *Store) CountStudents(ctx context.Context) (int, error) {
	var count int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM students").Scan(&count); err != nil {
		return 0, fmt.Errorf("count students: %w", err)
	}
	return count, nil
}

// RosterStamp summarises the roster so cached indexes can detect changes.
func (s *Store) RosterStamp(ctx context.Context) (database.RosterStamp, error) {
	var stamp database.RosterStamp
	if err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*), COALESCE(MAX(id), 0), COALESCE(SUM(revision), 0) FROM students",
	).Scan(&stamp.Count, &stamp.MaxID, &stamp.Revisions); err != nil {
		return database.RosterStamp{}, fmt.Errorf("roster stamp: %w", err)
	}
	return stamp, nil
}

// DeleteStudent removes a student and its attendance records in one transaction.
func (s *Store) DeleteStudent(ctx context.Context, id int64) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	// Attendance rows go first so the foreign key holds even with enforcement off.
	if _, err := tx.ExecContext(ctx, "DELETE FROM attendance WHERE student_id = ?", id); err != nil {
		return false, fmt.Errorf("delete attendance: %w", err)
	}

	result, err := tx.ExecContext(ctx, "DELETE FROM students WHERE id = ?", id)
	if err != nil {
		return false, fmt.Errorf("delete student: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("getting rows affected: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit delete: %w", err)
	}
	return affected > 0, nil
}
