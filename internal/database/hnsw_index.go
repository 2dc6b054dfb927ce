package database

import (
	"errors"
	"math"
	"sort"
	"sync"

	"github.com/coder/hnsw"
)

// StudentIndex wraps an HNSW graph over the face embeddings of a roster.
// It is used for nearest-student diagnostics on backends without a vector column.
type StudentIndex struct {
	graph       *hnsw.Graph[int64]
	idToStudent map[int64]*StoredStudent
	mu          sync.RWMutex
}

// NewStudentIndex creates a new empty index.
func NewStudentIndex() *StudentIndex {
	return &StudentIndex{
		idToStudent: make(map[int64]*StoredStudent),
	}
}

func newGraph() *hnsw.Graph[int64] {
	g := hnsw.NewGraph[int64]()
	g.M = HNSWMaxNeighbors
	g.Ml = 1.0 / float64(HNSWMaxNeighbors) // Standard HNSW formula
	g.EfSearch = HNSWEfSearch
	g.Distance = hnsw.EuclideanDistance
	return g
}

// Add indexes a student under its canonical embedding. Empty embeddings are ignored.
func (h *StudentIndex) Add(student StoredStudent, embedding []float32) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if len(embedding) == 0 {
		return
	}
	if h.graph == nil {
		h.graph = newGraph()
	}

	h.graph.Add(hnsw.MakeNode(student.ID, embedding))
	h.idToStudent[student.ID] = &student
}

// Delete removes a student from search results.
func (h *StudentIndex) Delete(id int64) {
	h.mu.Lock()
	defer h.mu.Unlock()

	// Note: lookups are filtered through idToStudent, so removing the entry
	// is enough to hide the node from results.
	delete(h.idToStudent, id)
}

// Count returns the number of indexed students.
func (h *StudentIndex) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.idToStudent)
}

// Search returns up to k students nearest to the query, closest first.
func (h *StudentIndex) Search(query []float32, k int) ([]NearestStudent, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if k <= 0 {
		return nil, nil
	}
	if h.graph == nil {
		return nil, errors.New("index not initialized")
	}

	neighbors := h.graph.Search(query, k*HNSWSearchMultiplier)

	results := make([]NearestStudent, 0, len(neighbors))
	for _, n := range neighbors {
		student, ok := h.idToStudent[n.Key]
		if !ok {
			continue
		}
		// Recompute the exact distance from the stored vector.
		results = append(results, NearestStudent{
			Student:  *student,
			Distance: l2(query, n.Value),
		})
	}

	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Distance == results[j].Distance {
			return results[i].Student.ID < results[j].Student.ID
		}
		return results[i].Distance < results[j].Distance
	})
	if len(results) > k {
		results = results[:k]
	}
	return results, nil
}

func l2(a, b []float32) float64 {
	if len(a) != len(b) {
		return math.Inf(1)
	}
	var sum float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return math.Sqrt(sum)
}
