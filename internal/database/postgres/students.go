package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/kozaktomas/face-attendance/internal/database"
	"github.com/pgvector/pgvector-go"
)

const studentColumns = "id, name, embedding, image_ref, created_at"

type rowScanner interface {
	Scan(dest ...any) error
}

func scanStudent(row rowScanner) (*database.Student, error) {
	var (
		st  database.Student
		vec pgvector.Vector
	)
	if err := row.Scan(&st.ID, &st.Name, &vec, &st.ImageRef, &st.CreatedAt); err != nil {
		return nil, err
	}
	st.Embedding = vec.Slice()
	return &st, nil
}

// UpsertStudent inserts a student or overwrites embedding and image of an existing name.
func (p *Pool) UpsertStudent(ctx context.Context, name string, embedding []float32, imageRef string) (*database.Student, error) {
	row := p.db.QueryRowContext(ctx, `
		INSERT INTO students (name, embedding, image_ref)
		VALUES ($1, $2, $3)
		ON CONFLICT (name) DO UPDATE SET
			embedding = EXCLUDED.embedding,
			image_ref = EXCLUDED.image_ref,
			revision = students.revision + 1
		RETURNING `+studentColumns,
		name, pgvector.NewVector(embedding), imageRef)

	st, err := scanStudent(row)
	if err != nil {
		return nil, fmt.Errorf("upsert student: %w", err)
	}
	return st, nil
}

// ListStudents returns all students, most recently added first.
func (p *Pool) ListStudents(ctx context.Context) ([]database.Student, error) {
	rows, err := p.db.QueryContext(ctx, "SELECT "+studentColumns+" FROM students ORDER BY id DESC")
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
func (p *Pool) GetStudent(ctx context.Context, id int64) (*database.Student, error) {
	st, err := scanStudent(p.db.QueryRowContext(ctx, "SELECT "+studentColumns+" FROM students WHERE id = $1", id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get student: %w", err)
	}
	return st, nil
}

// GetStudentByName retrieves a student by name, returns nil if not found.
func (p *Pool) GetStudentByName(ctx context.Context, name string) (*database.Student, error) {
	st, err := scanStudent(p.db.QueryRowContext(ctx, "SELECT "+studentColumns+" FROM students WHERE name = $1", name))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get student by name: %w", err)
	}
	return st, nil
}

// AllEmbeddings returns every roster entry in insertion order.
func (p *Pool) AllEmbeddings(ctx context.Context) ([]database.RosterEntry, error) {
	rows, err := p.db.QueryContext(ctx, "SELECT id, name, embedding FROM students ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("query embeddings: %w", err)
	}
	defer rows.Close()

	var entries []database.RosterEntry
	for rows.Next() {
		var (
			entry database.RosterEntry
			vec   pgvector.Vector
		)
		if err := rows.Scan(&entry.StudentID, &entry.Name, &vec); err != nil {
			return nil, fmt.Errorf("scan embedding: %w", err)
		}
		entry.Embedding = vec.Slice()
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate embeddings: %w", err)
	}
	return entries, nil
}

// CountStudents returns the number of registered students.
func (p *Pool) CountStudents(ctx context.Context) (int, error) {
	var count int
	if err := p.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM students").Scan(&count); err != nil {
		return 0, fmt.Errorf("count students: %w", err)
	}
	return count, nil
}

// RosterStamp summarises the roster so cached indexes can detect changes.
func (p *Pool) RosterStamp(ctx context.Context) (database.RosterStamp, error) {
	var stamp database.RosterStamp
	if err := p.db.QueryRowContext(ctx,
		"SELECT COUNT(*), COALESCE(MAX(id), 0), COALESCE(SUM(revision), 0) FROM students",
	).Scan(&stamp.Count, &stamp.MaxID, &stamp.Revisions); err != nil {
		return database.RosterStamp{}, fmt.Errorf("roster stamp: %w", err)
	}
	return stamp, nil
}

// DeleteStudent removes a student and its attendance records in one transaction.
func (p *Pool) DeleteStudent(ctx context.Context, id int64) (bool, error) {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM attendance WHERE student_id = $1", id); err != nil {
		return false, fmt.Errorf("delete attendance: %w", err)
	}

	result, err := tx.ExecContext(ctx, "DELETE FROM students WHERE id = $1", id)
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
