package facematch

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestNormalize_AcceptedShapes(t *testing.T) {
	flat := testVector(0.1)
	flat32 := make([]float32, len(flat))
	anyFlat := make([]any, len(flat))
	for i, f := range flat {
		flat32[i] = float32(f)
		anyFlat[i] = f
	}

	tests := []struct {
		name   string
		raw    any
		format Format
		text   bool
	}{
		{"flat float64", flat, FormatFlat, false},
		{"flat float32", flat32, FormatFlat, false},
		{"flat any", anyFlat, FormatFlat, false},
		{"nested float64", [][]float64{flat}, FormatNested, false},
		{"nested any", []any{anyFlat}, FormatNested, false},
		{"flat json text", mustJSON(t, flat), FormatFlat, true},
		{"nested json text", mustJSON(t, [][]float64{flat}), FormatNested, true},
		{"json bytes", []byte(mustJSON(t, flat)), FormatFlat, true},
		{"raw message", json.RawMessage(mustJSON(t, [][]float64{flat})), FormatNested, true},
		{"padded text", "  " + mustJSON(t, flat) + "\n", FormatFlat, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n := Normalize(tt.raw)
			if !n.Valid() {
				t.Fatalf("expected valid, got invalid: %s", n.Reason)
			}
			if n.Format != tt.format {
				t.Errorf("expected format %s, got %s", tt.format, n.Format)
			}
			if n.Text != tt.text {
				t.Errorf("expected text=%v, got %v", tt.text, n.Text)
			}
			if n.Err() != nil {
				t.Errorf("expected nil error, got %v", n.Err())
			}
		})
	}
}

func TestNormalize_FlatIsUnchanged(t *testing.T) {
	flat := testVector(-0.25)
	n := Normalize(flat)
	if !n.Valid() {
		t.Fatalf("expected valid: %s", n.Reason)
	}
	for i := range flat {
		if n.Embedding[i] != flat[i] {
			t.Fatalf("component %d changed: %v != %v", i, n.Embedding[i], flat[i])
		}
	}
}

func TestNormalize_NestedUnwraps(t *testing.T) {
	inner := testVector(0.5)
	n := Normalize([][]float64{inner})
	if !n.Valid() {
		t.Fatalf("expected valid: %s", n.Reason)
	}
	for i := range inner {
		if n.Embedding[i] != inner[i] {
			t.Fatalf("component %d differs after unwrap", i)
		}
	}
}

func TestNormalize_Invalid(t *testing.T) {
	short := testVector(0)[:127]
	long := append(testVector(0), 1.0)
	flat := testVector(0)

	tests := []struct {
		name string
		raw  any
	}{
		{"nil", nil},
		{"nil string pointer", (*string)(nil)},
		{"empty string", ""},
		{"whitespace", "   "},
		{"short flat", short},
		{"long flat", long},
		{"short nested", [][]float64{short}},
		{"two nested", [][]float64{flat, flat}},
		{"doubly nested text", mustJSON(t, [][][]float64{{flat}})},
		{"short text", mustJSON(t, short)},
		{"not json", "not-json"},
		{"json object", `{"encoding": [1, 2, 3]}`},
		{"json number", "0.5"},
		{"json string", `"[0.1, 0.2]"`},
		{"mixed types", []any{1.0, "two"}},
		{"empty list", []any{}},
		{"map", map[string]any{"a": 1}},
		{"int", 42},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n := Normalize(tt.raw)
			if n.Valid() {
				t.Fatalf("expected invalid, got format %s", n.Format)
			}
			if n.Reason == "" {
				t.Error("expected a reason for invalid result")
			}
			err := n.Err()
			if !errors.Is(err, ErrInvalidShape) {
				t.Errorf("expected ErrInvalidShape, got %v", err)
			}
			var shapeErr *ShapeError
			if !errors.As(err, &shapeErr) {
				t.Errorf("expected *ShapeError, got %T", err)
			}
		})
	}
}

func TestNormalized_Describe(t *testing.T) {
	flat := testVector(0)
	if got := Normalize(flat).Describe(); got != "flat" {
		t.Errorf("expected 'flat', got %q", got)
	}
	if got := Normalize(mustJSON(t, [][]float64{flat})).Describe(); got != "json_text/nested" {
		t.Errorf("expected 'json_text/nested', got %q", got)
	}
	if got := Normalize("").Describe(); got != "invalid" {
		t.Errorf("expected 'invalid', got %q", got)
	}
}

func TestEmbedding_CanonicalRoundTrip(t *testing.T) {
	e := testEmbedding(t, 0.3)
	n := Normalize(e.Canonical())
	if !n.Valid() || n.Format != FormatFlat || !n.Text {
		t.Fatalf("canonical text should normalize as flat json text, got %s (%s)", n.Describe(), n.Reason)
	}
	if n.Embedding != e {
		t.Error("canonical form did not reproduce the embedding")
	}
}

func TestEmbeddingFromSlice_RejectsWrongLength(t *testing.T) {
	if _, err := EmbeddingFromSlice(make([]float64, 64)); err == nil {
		t.Error("expected error for 64 values")
	}
	if _, err := EmbeddingFromSlice(make([]float64, 129)); err == nil {
		t.Error("expected error for 129 values")
	}
}
