package database

import (
	"context"
	"time"
)

// RosterReader provides read-only access to the student roster
type RosterReader interface {
	// ListStudents returns all students, most recently added first
	ListStudents(ctx context.Context) ([]Student, error)
	// GetStudent retrieves a student by ID, returns nil if not found
	GetStudent(ctx context.Context, id int64) (*Student, error)
	// GetStudentByName retrieves a student by exact name, returns nil if not found
	GetStudentByName(ctx context.Context, name string) (*Student, error)
	// AllEmbeddings returns every (name, embedding) pair in insertion order.
	// This is the matching read path and is O(n) in roster size.
	AllEmbeddings(ctx context.Context) ([]RosterEntry, error)
	// CountStudents returns the number of registered students
	CountStudents(ctx context.Context) (int, error)
	// RosterStamp returns a cheap summary that changes whenever the roster does
	RosterStamp(ctx context.Context) (RosterStamp, error)
}

// RosterWriter provides write access to the student roster
type RosterWriter interface {
	RosterReader

	// UpsertStudent inserts a student or overwrites the embedding and image of the
	// student with the same name. Either path succeeds.
	UpsertStudent(ctx context.Context, name string, embedding []float32, imageRef string) (*Student, error)

	// DeleteStudent removes a student together with its attendance records.
	// Returns whether a student row was removed.
	DeleteStudent(ctx context.Context, id int64) (bool, error)
}

// AttendanceLog is the append-only log of attendance events
type AttendanceLog interface {
	// RecordAttendance appends an event for the named student.
	// Returns false without error for the Unknown sentinel or a name not on the roster.
	RecordAttendance(ctx context.Context, name string, at time.Time) (bool, error)
	// ListAttendance returns all records, most recent first
	ListAttendance(ctx context.Context) ([]AttendanceRecord, error)
	// CountAttendance returns the number of logged events
	CountAttendance(ctx context.Context) (int, error)
}

// Store is a complete storage backend.
type Store interface {
	RosterWriter
	AttendanceLog

	// Close releases the underlying connection pool
	Close() error
}
