// Package mock provides mock implementations of database interfaces for testing.
package mock

import (
	"context"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/kozaktomas/face-attendance/internal/constants"
	"github.com/kozaktomas/face-attendance/internal/database"
)

var _ database.Store = (*MockStore)(nil)

// MockStore is an in-memory implementation of database.Store
type MockStore struct {
	mu         sync.RWMutex
	nextID     int64
	nextRecord int64
	students   map[int64]*database.Student
	byName     map[string]int64
	revisions  map[int64]int64
	records    []database.AttendanceRecord
	closed     bool

	// Error injection
	UpsertError     error
	ListError       error
	GetError        error
	EmbeddingsError error
	CountError      error
	DeleteError     error
	RecordError     error
	AttendanceError error

	// Now is used for created_at, defaults to time.Now
	Now func() time.Time
}

// NewMockStore creates a new empty mock store
func NewMockStore() *MockStore {
	return &MockStore{
		students:  make(map[int64]*database.Student),
		byName:    make(map[string]int64),
		revisions: make(map[int64]int64),
		Now:       time.Now,
	}
}

func copyStudent(st *database.Student) database.Student {
	out := *st
	out.Embedding = slices.Clone(st.Embedding)
	return out
}

// UpsertStudent inserts or overwrites a student by name
func (m *MockStore) UpsertStudent(ctx context.Context, name string, embedding []float32, imageRef string) (*database.Student, error) {
	if m.UpsertError != nil {
		return nil, m.UpsertError
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if id, ok := m.byName[name]; ok {
		st := m.students[id]
		st.Embedding = slices.Clone(embedding)
		st.ImageRef = imageRef
		m.revisions[id]++
		out := copyStudent(st)
		return &out, nil
	}

	m.nextID++
	st := &database.Student{
		ID:        m.nextID,
		Name:      name,
		Embedding: slices.Clone(embedding),
		ImageRef:  imageRef,
		CreatedAt: m.Now().UTC(),
	}
	m.students[st.ID] = st
	m.byName[name] = st.ID
	m.revisions[st.ID] = 1
	out := copyStudent(st)
	return &out, nil
}

// ListStudents returns students newest first
func (m *MockStore) ListStudents(ctx context.Context) ([]database.Student, error) {
	if m.ListError != nil {
		return nil, m.ListError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	students := make([]database.Student, 0, len(m.students))
	for _, st := range m.students {
		students = append(students, copyStudent(st))
	}
	sort.Slice(students, func(i, j int) bool { return students[i].ID > students[j].ID })
	return students, nil
}

// GetStudent returns a student by ID or nil
func (m *MockStore) GetStudent(ctx context.Context, id int64) (*database.Student, error) {
	if m.GetError != nil {
		return nil, m.GetError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	st, ok := m.students[id]
	if !ok {
		return nil, nil
	}
	out := copyStudent(st)
	return &out, nil
}

// GetStudentByName returns a student by name or nil
func (m *MockStore) GetStudentByName(ctx context.Context, name string) (*database.Student, error) {
	if m.GetError != nil {
		return nil, m.GetError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.byName[name]
	if !ok {
		return nil, nil
	}
	out := copyStudent(m.students[id])
	return &out, nil
}

// AllEmbeddings returns roster entries in insertion order
func (m *MockStore) AllEmbeddings(ctx context.Context) ([]database.RosterEntry, error) {
	if m.EmbeddingsError != nil {
		return nil, m.EmbeddingsError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	entries := make([]database.RosterEntry, 0, len(m.students))
	for _, st := range m.students {
		entries = append(entries, database.RosterEntry{
			StudentID: st.ID,
			Name:      st.Name,
			Embedding: slices.Clone(st.Embedding),
		})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].StudentID < entries[j].StudentID })
	return entries, nil
}

// CountStudents returns the roster size
func (m *MockStore) CountStudents(ctx context.Context) (int, error) {
	if m.CountError != nil {
		return 0, m.CountError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.students), nil
}

// RosterStamp summarises the roster
func (m *MockStore) RosterStamp(ctx context.Context) (database.RosterStamp, error) {
	if m.CountError != nil {
		return database.RosterStamp{}, m.CountError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	stamp := database.RosterStamp{Count: len(m.students)}
	for id, rev := range m.revisions {
		stamp.MaxID = max(stamp.MaxID, id)
		stamp.Revisions += rev
	}
	return stamp, nil
}

// DeleteStudent removes a student and its attendance records
func (m *MockStore) DeleteStudent(ctx context.Context, id int64) (bool, error) {
	if m.DeleteError != nil {
		return false, m.DeleteError
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	st, ok := m.students[id]
	if !ok {
		return false, nil
	}
	delete(m.students, id)
	delete(m.byName, st.Name)
	delete(m.revisions, id)
	m.records = slices.DeleteFunc(m.records, func(r database.AttendanceRecord) bool {
		return r.StudentID == id
	})
	return true, nil
}

// RecordAttendance appends an event when the name is registered
func (m *MockStore) RecordAttendance(ctx context.Context, name string, at time.Time) (bool, error) {
	if m.RecordError != nil {
		return false, m.RecordError
	}
	if name == constants.UnknownIdentity {
		return false, nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	id, ok := m.byName[name]
	if !ok {
		return false, nil
	}
	m.nextRecord++
	m.records = append(m.records, database.AttendanceRecord{
		ID:          m.nextRecord,
		StudentID:   id,
		StudentName: name,
		Timestamp:   at.UTC(),
	})
	return true, nil
}

// ListAttendance returns records most recent first
func (m *MockStore) ListAttendance(ctx context.Context) ([]database.AttendanceRecord, error) {
	if m.AttendanceError != nil {
		return nil, m.AttendanceError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	records := slices.Clone(m.records)
	sort.SliceStable(records, func(i, j int) bool {
		if !records[i].Timestamp.Equal(records[j].Timestamp) {
			return records[i].Timestamp.After(records[j].Timestamp)
		}
		return records[i].ID > records[j].ID
	})
	return records, nil
}

// CountAttendance returns the number of events
func (m *MockStore) CountAttendance(ctx context.Context) (int, error) {
	if m.AttendanceError != nil {
		return 0, m.AttendanceError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.records), nil
}

// Close marks the store closed
func (m *MockStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// Closed reports whether Close was called
func (m *MockStore) Closed() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.closed
}
