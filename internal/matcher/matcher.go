// Package matcher finds the registered identity nearest to a probe embedding.
package matcher

import (
	"math"

	"github.com/kozaktomas/face-attendance/internal/constants"
	"github.com/kozaktomas/face-attendance/internal/database"
)

// DistanceFunc returns the distance between two embeddings, lower is closer.
type DistanceFunc func(a, b []float32) float64

// Result is the outcome of a roster scan.
type Result struct {
	Name      string
	StudentID int64
	Distance  float64
	Matched   bool
}

// Matcher performs nearest-identity search under a distance threshold.
type Matcher struct {
	threshold float64
	distance  DistanceFunc
}

// Option configures a Matcher.
type Option func(*Matcher)

// WithThreshold sets the maximum (exclusive) distance accepted as a match.
func WithThreshold(t float64) Option {
	return func(m *Matcher) {
		if t > 0 {
			m.threshold = t
		}
	}
}

// WithDistance replaces the cosine distance metric.
func WithDistance(fn DistanceFunc) Option {
	return func(m *Matcher) {
		if fn != nil {
			m.distance = fn
		}
	}
}

// New creates a Matcher with cosine distance and the default threshold.
func New(opts ...Option) *Matcher {
	m := &Matcher{
		threshold: constants.DefaultDistanceThreshold,
		distance:  database.CosineDistance,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Threshold returns the configured threshold.
func (m *Matcher) Threshold() float64 {
	return m.threshold
}

// Distance computes the configured metric.
func (m *Matcher) Distance(a, b []float32) float64 {
	return m.distance(a, b)
}

// FindBestMatch scans the roster in order and returns the closest entry if it is
// strictly under the threshold. On equal distances the earlier entry wins.
func (m *Matcher) FindBestMatch(probe []float32, roster []database.RosterEntry) Result {
	best := -1
	bestDist := 0.0
	for i := range roster {
		d := m.distance(probe, roster[i].Embedding)
		if math.IsNaN(d) {
			continue
		}
		if best < 0 || d < bestDist {
			best = i
			bestDist = d
		}
	}

	if best < 0 {
		return Result{Name: constants.UnknownIdentity}
	}
	if bestDist >= m.threshold {
		return Result{Name: constants.UnknownIdentity, Distance: bestDist}
	}
	return Result{
		Name:      roster[best].Name,
		StudentID: roster[best].StudentID,
		Distance:  bestDist,
		Matched:   true,
	}
}
