package facematch

import (
	"encoding/json"
	"testing"
)

// testVector builds a deterministic 128-value slice offset by seed.
func testVector(seed float64) []float64 {
	v := make([]float64, 128)
	for i := range v {
		v[i] = seed + float64(i)/1000
	}
	return v
}

func testEmbedding(t *testing.T, seed float64) Embedding {
	t.Helper()
	e, err := EmbeddingFromSlice(testVector(seed))
	if err != nil {
		t.Fatalf("EmbeddingFromSlice: %v", err)
	}
	return e
}

// shifted returns e with every component moved by delta, at distance |delta|*sqrt(128).
func shifted(e Embedding, delta float64) Embedding {
	for i := range e {
		e[i] += delta
	}
	return e
}

// single returns e with only the first component moved by delta, at distance |delta|.
func single(e Embedding, delta float64) Embedding {
	e[0] += delta
	return e
}

func mustJSON(t *testing.T, v any) string {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return string(data)
}
