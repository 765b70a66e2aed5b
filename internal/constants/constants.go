// Package constants provides shared constants used across the codebase.
// Centralizing these values ensures consistency and makes them easier to modify.
package constants

// Matching constants
const (
	// UnknownIdentity is returned when no roster entry is close enough to a probe.
	// It is also a reserved student name.
	UnknownIdentity = "Unknown"

	// DefaultDistanceThreshold is the default maximum cosine distance for a face match.
	// A candidate matches only when its distance is strictly below this value.
	DefaultDistanceThreshold = 0.5

	// DefaultEmbeddingModel is the face model the embedding server is expected to run.
	DefaultEmbeddingModel = "Facenet"

	// HNSWCandidates is the number of neighbours requested from the HNSW index
	// before the exact threshold check is applied.
	HNSWCandidates = 10

	// HNSWMaxNeighbors (M) is the maximum number of neighbors per node.
	HNSWMaxNeighbors = 16

	// HNSWEfSearch is the search candidate pool size.
	HNSWEfSearch = 100
)

// Processing constants
const (
	// MaxImageSize is the maximum dimension (width or height) sent to the embedding server
	MaxImageSize = 1280

	// DefaultRegisterConcurrency is the number of images embedded in parallel during registration
	DefaultRegisterConcurrency = 4

	// DefaultEmbeddingTimeoutSec is the per-request timeout for the embedding server
	DefaultEmbeddingTimeoutSec = 60
)
