package matcher

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/coder/hnsw"
	"github.com/kozaktomas/face-attendance/internal/constants"
	"github.com/kozaktomas/face-attendance/internal/database"
)

// ErrDimensionMismatch is returned when an embedding does not fit the index.
var ErrDimensionMismatch = errors.New("embedding dimension does not match index")

// Index wraps an HNSW graph over roster embeddings. Candidates it returns are
// re-scored by the Matcher so thresholds and tie-breaks match the linear scan.
//
// Graph nodes are never deleted. Each stored vector gets a fresh node key;
// replaced or removed vectors stay in the graph as stale nodes that Match
// ignores, and the graph is rebuilt once stale nodes outnumber live ones.
type Index struct {
	matcher *Matcher
	graph   *hnsw.Graph[int64]
	entries map[int64]database.RosterEntry // by student ID
	nodes   map[int64]int64                // live node key -> student ID
	keys    map[int64]int64                // student ID -> live node key
	nextKey int64
	stale   int
	dims    int
	mu      sync.RWMutex
}

// NewIndex creates an empty index that scores candidates with m.
func NewIndex(m *Matcher) *Index {
	x := &Index{matcher: m}
	x.resetLocked()
	return x
}

func newGraph() *hnsw.Graph[int64] {
	g := hnsw.NewGraph[int64]()
	g.M = constants.HNSWMaxNeighbors
	g.Ml = 1.0 / float64(constants.HNSWMaxNeighbors)
	g.EfSearch = constants.HNSWEfSearch
	g.Distance = hnsw.CosineDistance
	return g
}

func (x *Index) resetLocked() {
	x.graph = nil
	x.entries = make(map[int64]database.RosterEntry)
	x.nodes = make(map[int64]int64)
	x.keys = make(map[int64]int64)
	x.stale = 0
	x.dims = 0
}

// Build replaces the index content with the roster snapshot.
func (x *Index) Build(roster []database.RosterEntry) error {
	x.mu.Lock()
	defer x.mu.Unlock()

	x.resetLocked()
	for _, entry := range roster {
		if err := x.addLocked(entry); err != nil {
			return fmt.Errorf("adding %q: %w", entry.Name, err)
		}
	}
	return nil
}

// Add inserts or replaces a single roster entry.
func (x *Index) Add(entry database.RosterEntry) error {
	x.mu.Lock()
	defer x.mu.Unlock()

	if err := x.addLocked(entry); err != nil {
		return err
	}
	x.compactLocked()
	return nil
}

func (x *Index) addLocked(entry database.RosterEntry) error {
	if len(entry.Embedding) == 0 {
		x.dropLocked(entry.StudentID)
		return nil
	}
	if x.dims != 0 && len(entry.Embedding) != x.dims {
		return fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, len(entry.Embedding), x.dims)
	}

	if x.graph == nil {
		x.graph = newGraph()
		x.dims = len(entry.Embedding)
	}
	x.dropLocked(entry.StudentID)

	key := x.nextKey
	x.nextKey++
	x.graph.Add(hnsw.MakeNode(key, entry.Embedding))
	x.nodes[key] = entry.StudentID
	x.keys[entry.StudentID] = key
	x.entries[entry.StudentID] = entry
	return nil
}

// dropLocked forgets the live node of a student, leaving it stale in the graph.
func (x *Index) dropLocked(studentID int64) bool {
	key, ok := x.keys[studentID]
	if !ok {
		return false
	}
	delete(x.nodes, key)
	delete(x.keys, studentID)
	delete(x.entries, studentID)
	x.stale++
	return true
}

// compactLocked rebuilds the graph from live entries once stale nodes dominate.
func (x *Index) compactLocked() {
	if len(x.entries) == 0 {
		x.resetLocked()
		return
	}
	if x.stale <= len(x.entries) {
		return
	}

	live := make([]database.RosterEntry, 0, len(x.entries))
	for _, e := range x.entries {
		live = append(live, e)
	}
	sort.Slice(live, func(i, j int) bool { return live[i].StudentID < live[j].StudentID })

	x.resetLocked()
	for _, e := range live {
		// dimensions were checked when the entries went in
		_ = x.addLocked(e)
	}
}

// Remove deletes the entry with the given student ID.
func (x *Index) Remove(studentID int64) {
	x.mu.Lock()
	defer x.mu.Unlock()

	if x.dropLocked(studentID) {
		x.compactLocked()
	}
}

// Len returns the number of indexed entries.
func (x *Index) Len() int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return len(x.entries)
}

// Match returns the best entry among the nearest graph candidates.
func (x *Index) Match(probe []float32) Result {
	x.mu.RLock()
	defer x.mu.RUnlock()

	if x.graph == nil || len(x.entries) == 0 || len(probe) != x.dims {
		return Result{Name: constants.UnknownIdentity}
	}

	// stale nodes can crowd the candidate list, so ask for that many more
	neighbors := x.graph.Search(probe, constants.HNSWCandidates+x.stale)
	candidates := make([]database.RosterEntry, 0, len(neighbors))
	for _, n := range neighbors {
		if id, ok := x.nodes[n.Key]; ok {
			candidates = append(candidates, x.entries[id])
		}
	}
	// Insertion order keeps ties resolved the same way as the full scan.
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].StudentID < candidates[j].StudentID })

	return x.matcher.FindBestMatch(probe, candidates)
}
