package facematch

import (
	"bytes"
	"encoding/json"
)

// ProbeSet holds the probe embeddings decoded from one capture.
type ProbeSet struct {
	Probes []Embedding
	// Rejected counts entries that could not be normalized.
	Rejected int
}

// Len returns the number of usable probes.
func (p ProbeSet) Len() int {
	return len(p.Probes)
}

// NormalizeProbes turns encoder output into probes. A single bare embedding is
// wrapped into a one-element list; a list of embeddings is normalized entry by
// entry, dropping (and counting) the ones that do not normalize.
func NormalizeProbes(raw any) ProbeSet {
	if raw == nil {
		return ProbeSet{}
	}

	// JSON text is decoded once so both shapes below can be inspected.
	switch v := raw.(type) {
	case string:
		return normalizeProbeText([]byte(v))
	case []byte:
		return normalizeProbeText(v)
	case json.RawMessage:
		return normalizeProbeText(v)
	}

	if n := Normalize(raw); n.Valid() {
		return ProbeSet{Probes: []Embedding{n.Embedding}}
	}

	var set ProbeSet
	add := func(item any) {
		if n := Normalize(item); n.Valid() {
			set.Probes = append(set.Probes, n.Embedding)
		} else {
			set.Rejected++
		}
	}

	switch v := raw.(type) {
	case []Embedding:
		set.Probes = append(set.Probes, v...)
	case [][]float64:
		for _, item := range v {
			add(item)
		}
	case [][]float32:
		for _, item := range v {
			add(item)
		}
	case []json.RawMessage:
		for _, item := range v {
			add(item)
		}
	case []any:
		if len(v) > 0 && !isSequence(v[0]) {
			// A flat numeric list of the wrong length is one bad probe, not many.
			set.Rejected = 1
			return set
		}
		for _, item := range v {
			add(item)
		}
	default:
		set.Rejected = 1
	}
	return set
}

func normalizeProbeText(data []byte) ProbeSet {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return ProbeSet{}
	}
	var decoded any
	if err := json.Unmarshal(data, &decoded); err != nil {
		return ProbeSet{Rejected: 1}
	}
	if decoded == nil {
		return ProbeSet{}
	}
	return NormalizeProbes(decoded)
}

func isSequence(v any) bool {
	switch v.(type) {
	case []any, []float64, []float32, string, json.RawMessage:
		return true
	default:
		return false
	}
}
