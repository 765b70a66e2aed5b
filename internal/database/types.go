package database

import (
	"time"
)

// Student is a registered roster entry with its face embedding.
type Student struct {
	ID        int64
	Name      string
	Embedding []float32
	ImageRef  string // Reference into the image store (empty if no representative image)
	CreatedAt time.Time
}

// RosterEntry is the (identity, embedding) pair the matcher scans.
type RosterEntry struct {
	StudentID int64
	Name      string
	Embedding []float32
}

// AttendanceRecord is one logged attendance event joined with the student's name.
type AttendanceRecord struct {
	ID          int64
	StudentID   int64
	StudentName string
	Timestamp   time.Time
}

// RosterStamp summarises the students table. Any insert, overwrite or delete
// changes at least one field, so equal stamps mean an unchanged roster.
type RosterStamp struct {
	Count     int
	MaxID     int64
	Revisions int64 // sum of per-student revisions, bumped by every overwrite
}
