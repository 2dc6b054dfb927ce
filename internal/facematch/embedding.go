package facematch

import (
	"encoding/json"
	"fmt"

	"github.com/kozaktomas/attendance/internal/constants"
)

// Embedding is a canonical face embedding. The fixed array length makes any
// other dimension unrepresentable.
type Embedding [constants.EmbeddingDim]float64

// EmbeddingFromSlice copies a slice into an Embedding.
// Returns an error if the slice is not exactly EmbeddingDim long; it never pads or truncates.
func EmbeddingFromSlice(v []float64) (Embedding, error) {
	var e Embedding
	if len(v) != constants.EmbeddingDim {
		return e, fmt.Errorf("embedding must have %d values, got %d", constants.EmbeddingDim, len(v))
	}
	copy(e[:], v)
	return e, nil
}

// Float32 returns the embedding as a float32 slice for vector indexes and pgvector columns.
func (e Embedding) Float32() []float32 {
	out := make([]float32, len(e))
	for i, v := range e {
		out[i] = float32(v)
	}
	return out
}

// Canonical returns the canonical stored form: a JSON text flat array of 128 numbers.
func (e Embedding) Canonical() string {
	data, err := json.Marshal(e[:])
	if err != nil {
		// Only non-finite values can fail to marshal.
		return ""
	}
	return string(data)
}
