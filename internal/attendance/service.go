// Package attendance records student attendance from face photos. It ties the
// embedding server, the roster store, the matcher and the image store together.
package attendance

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/kozaktomas/face-attendance/internal/constants"
	"github.com/kozaktomas/face-attendance/internal/database"
	"github.com/kozaktomas/face-attendance/internal/embedding"
	"github.com/kozaktomas/face-attendance/internal/imagestore"
	"github.com/kozaktomas/face-attendance/internal/imaging"
	"github.com/kozaktomas/face-attendance/internal/logger"
	"github.com/kozaktomas/face-attendance/internal/matcher"
)

// Embedder extracts the embedding of the most prominent face in an image.
type Embedder interface {
	ExtractFace(ctx context.Context, imageData []byte) ([]float32, error)
}

// MatchResult is the outcome of Identify.
type MatchResult struct {
	Name      string
	StudentID int64
	Distance  float64
	Matched   bool
	Recorded  bool
}

// Service implements the attendance use cases.
type Service struct {
	store        database.Store
	images       imagestore.Store
	embedder     Embedder
	matcher      *matcher.Matcher
	index        *matcher.Index
	indexMu      sync.Mutex
	indexStamp   database.RosterStamp
	log          *logger.Logger
	concurrency  int
	maxImageSize int
	now          func() time.Time
	locks        *nameLocks
}

// Option configures a Service.
type Option func(*Service)

// WithIndex matches against an HNSW index instead of scanning the roster.
func WithIndex(idx *matcher.Index) Option {
	return func(s *Service) { s.index = idx }
}

// WithLogger sets the logger.
func WithLogger(l *logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.log = l
		}
	}
}

// WithConcurrency bounds how many registration images are embedded at once.
func WithConcurrency(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.concurrency = n
		}
	}
}

// WithMaxImageSize sets the longest edge sent to the embedding server.
func WithMaxImageSize(n int) Option {
	return func(s *Service) { s.maxImageSize = n }
}

// WithClock overrides the attendance timestamp source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// New creates a Service.
func New(store database.Store, images imagestore.Store, embedder Embedder, m *matcher.Matcher, opts ...Option) *Service {
	if m == nil {
		m = matcher.New()
	}
	s := &Service{
		store:        store,
		images:       images,
		embedder:     embedder,
		matcher:      m,
		log:          logger.Nop(),
		concurrency:  constants.DefaultRegisterConcurrency,
		maxImageSize: constants.MaxImageSize,
		now:          time.Now,
		locks:        newNameLocks(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// WarmIndex loads the roster into the HNSW index. It is a no-op without an index.
func (s *Service) WarmIndex(ctx context.Context) error {
	if s.index == nil {
		return nil
	}
	s.indexMu.Lock()
	defer s.indexMu.Unlock()

	stamp, err := s.store.RosterStamp(ctx)
	if err != nil {
		return newError(KindStorageFailed, "failed to read roster", err)
	}
	return s.rebuildIndexLocked(ctx, stamp)
}

// syncIndex rebuilds the index when the roster changed since the last build,
// including writes made by other processes sharing the database.
func (s *Service) syncIndex(ctx context.Context) error {
	s.indexMu.Lock()
	defer s.indexMu.Unlock()

	stamp, err := s.store.RosterStamp(ctx)
	if err != nil {
		return newError(KindStorageFailed, "failed to read roster", err)
	}
	if stamp == s.indexStamp {
		return nil
	}
	return s.rebuildIndexLocked(ctx, stamp)
}

// rebuildIndexLocked reloads the index. The stamp is read before the snapshot
// so a concurrent write is caught by the next sync.
func (s *Service) rebuildIndexLocked(ctx context.Context, stamp database.RosterStamp) error {
	roster, err := s.store.AllEmbeddings(ctx)
	if err != nil {
		return newError(KindStorageFailed, "failed to load roster", err)
	}
	if err := s.index.Build(roster); err != nil {
		return newError(KindStorageFailed, "failed to build index", err)
	}
	s.indexStamp = stamp
	s.log.Info("match index built", "students", len(roster))
	return nil
}

// embed validates and downsizes an image, then extracts its face embedding.
func (s *Service) embed(ctx context.Context, data []byte) (prepared []byte, emb []float32, err error) {
	prepared, err = imaging.Prepare(data, s.maxImageSize)
	if err != nil {
		return nil, nil, newError(KindInvalidInput, "invalid image", err)
	}
	emb, err = s.embedder.ExtractFace(ctx, prepared)
	if errors.Is(err, embedding.ErrNoFaceDetected) {
		return nil, nil, newError(KindNoFace, "no face detected", err)
	}
	if err != nil {
		return nil, nil, newError(KindExtractionFailed, "face extraction failed", err)
	}
	return prepared, emb, nil
}

// Match identifies the face in the image without touching the attendance log.
func (s *Service) Match(ctx context.Context, data []byte) (*MatchResult, error) {
	if len(data) == 0 {
		return nil, newError(KindInvalidInput, "no image provided", nil)
	}

	_, emb, err := s.embed(ctx, data)
	if err != nil {
		return nil, err
	}

	var res matcher.Result
	if s.index != nil {
		if err := s.syncIndex(ctx); err != nil {
			return nil, err
		}
		res = s.index.Match(emb)
	} else {
		roster, err := s.store.AllEmbeddings(ctx)
		if err != nil {
			return nil, newError(KindStorageFailed, "failed to load roster", err)
		}
		res = s.matcher.FindBestMatch(emb, roster)
	}

	return &MatchResult{
		Name:      res.Name,
		StudentID: res.StudentID,
		Distance:  res.Distance,
		Matched:   res.Matched,
	}, nil
}

// Identify matches the face in the image against the roster and records
// attendance when a student is recognised.
func (s *Service) Identify(ctx context.Context, data []byte) (*MatchResult, error) {
	result, err := s.Match(ctx, data)
	if err != nil {
		return nil, err
	}
	if !result.Matched {
		s.log.Debug("no match", "distance", result.Distance)
		return result, nil
	}

	recorded, err := s.store.RecordAttendance(ctx, result.Name, s.now())
	if err != nil {
		return nil, newError(KindStorageFailed, "failed to record attendance", err)
	}
	result.Recorded = recorded
	s.log.Info("attendance recorded", "student", result.Name, "distance", result.Distance, "recorded", recorded)
	return result, nil
}

// ListStudents returns the roster, newest first.
func (s *Service) ListStudents(ctx context.Context) ([]database.Student, error) {
	students, err := s.store.ListStudents(ctx)
	if err != nil {
		return nil, newError(KindStorageFailed, "failed to list students", err)
	}
	return students, nil
}

// GetStudent returns a single student.
func (s *Service) GetStudent(ctx context.Context, id int64) (*database.Student, error) {
	st, err := s.store.GetStudent(ctx, id)
	if err != nil {
		return nil, newError(KindStorageFailed, "failed to load student", err)
	}
	if st == nil {
		return nil, newError(KindNotFound, "student not found", nil)
	}
	return st, nil
}

// DeleteStudent removes the student, its attendance records and its image.
func (s *Service) DeleteStudent(ctx context.Context, id int64) error {
	st, err := s.GetStudent(ctx, id)
	if err != nil {
		return err
	}

	unlock := s.locks.lock(st.Name)
	defer unlock()

	deleted, err := s.store.DeleteStudent(ctx, id)
	if err != nil {
		return newError(KindStorageFailed, "failed to delete student", err)
	}
	if !deleted {
		return newError(KindNotFound, "student not found", nil)
	}
	if s.index != nil {
		s.index.Remove(id)
	}
	if st.ImageRef != "" {
		if err := s.images.Delete(ctx, st.ImageRef); err != nil {
			s.log.Warn("failed to delete student image", "student", st.Name, "ref", st.ImageRef, "error", err)
		}
	}
	s.log.Info("student deleted", "student", st.Name, "id", id)
	return nil
}

// ListAttendance returns the attendance log, most recent first.
func (s *Service) ListAttendance(ctx context.Context) ([]database.AttendanceRecord, error) {
	records, err := s.store.ListAttendance(ctx)
	if err != nil {
		return nil, newError(KindStorageFailed, "failed to list attendance", err)
	}
	return records, nil
}

// StudentImage opens the representative image of a student.
func (s *Service) StudentImage(ctx context.Context, id int64) (io.ReadCloser, error) {
	st, err := s.GetStudent(ctx, id)
	if err != nil {
		return nil, err
	}
	if st.ImageRef == "" {
		return nil, newError(KindNotFound, "image not found", nil)
	}
	rc, err := s.images.Open(ctx, st.ImageRef)
	if errors.Is(err, imagestore.ErrNotFound) {
		return nil, newError(KindNotFound, "image not found", err)
	}
	if err != nil {
		return nil, newError(KindStorageFailed, "failed to open image", err)
	}
	return rc, nil
}

// Stats holds roster and log sizes.
type Stats struct {
	Students   int `json:"students"`
	Attendance int `json:"attendance"`
}

// Stats returns the roster size and the number of attendance events.
func (s *Service) Stats(ctx context.Context) (*Stats, error) {
	students, err := s.store.CountStudents(ctx)
	if err != nil {
		return nil, newError(KindStorageFailed, "failed to count students", err)
	}
	events, err := s.store.CountAttendance(ctx)
	if err != nil {
		return nil, newError(KindStorageFailed, "failed to count attendance", err)
	}
	return &Stats{Students: students, Attendance: events}, nil
}
