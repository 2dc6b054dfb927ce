package facematch

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/kozaktomas/attendance/internal/constants"
)

// ErrInvalidShape is wrapped by every ShapeError.
var ErrInvalidShape = errors.New("invalid embedding shape")

// Format identifies which accepted stored shape an encoding was decoded from.
// The set is closed: anything that is not one of these is FormatInvalid.
type Format int

const (
	FormatInvalid Format = iota
	// FormatFlat is a flat sequence of 128 numbers.
	FormatFlat
	// FormatNested is a sequence holding exactly one flat sequence of 128 numbers.
	FormatNested
)

func (f Format) String() string {
	switch f {
	case FormatFlat:
		return "flat"
	case FormatNested:
		return "nested"
	default:
		return "invalid"
	}
}

// ShapeError describes why a stored encoding could not be normalized.
type ShapeError struct {
	Reason string
}

func (e *ShapeError) Error() string {
	return fmt.Sprintf("%s: %s", ErrInvalidShape, e.Reason)
}

func (e *ShapeError) Unwrap() error {
	return ErrInvalidShape
}

// Normalized is the result of Normalize: either a canonical Embedding with the
// Format it was found in, or FormatInvalid with a reason.
type Normalized struct {
	Embedding Embedding
	Format    Format
	// Text is true when the value arrived as serialized JSON text.
	Text   bool
	Reason string
}

// Valid reports whether normalization produced an Embedding.
func (n Normalized) Valid() bool {
	return n.Format != FormatInvalid
}

// Err returns a *ShapeError for invalid results and nil otherwise.
func (n Normalized) Err() error {
	if n.Valid() {
		return nil
	}
	return &ShapeError{Reason: n.Reason}
}

// Describe renders the format for diagnostics, e.g. "json_text/nested".
func (n Normalized) Describe() string {
	if !n.Valid() {
		return "invalid"
	}
	if n.Text {
		return "json_text/" + n.Format.String()
	}
	return n.Format.String()
}

func invalid(format string, args ...any) Normalized {
	return Normalized{Format: FormatInvalid, Reason: fmt.Sprintf(format, args...)}
}

// Normalize decodes a stored encoding into a canonical Embedding.
//
// Accepted shapes are a flat sequence of 128 numbers, a sequence holding one
// such flat sequence, or JSON text decoding to either. Every other input,
// including well-typed sequences of the wrong length, yields FormatInvalid.
// Normalize never panics and never returns an error; callers skip invalid entries.
func Normalize(raw any) Normalized {
	switch v := raw.(type) {
	case nil:
		return invalid("no encoding")
	case string:
		return normalizeText([]byte(v))
	case *string:
		if v == nil {
			return invalid("no encoding")
		}
		return normalizeText([]byte(*v))
	case []byte:
		return normalizeText(v)
	case json.RawMessage:
		return normalizeText(v)
	case Embedding:
		return Normalized{Embedding: v, Format: FormatFlat}
	case []float64:
		return fromFloats(v, FormatFlat)
	case []float32:
		return fromFloats(widen(v), FormatFlat)
	case [][]float64:
		if len(v) != 1 {
			return invalid("nested sequence must hold exactly one embedding, got %d", len(v))
		}
		return fromFloats(v[0], FormatNested)
	case [][]float32:
		if len(v) != 1 {
			return invalid("nested sequence must hold exactly one embedding, got %d", len(v))
		}
		return fromFloats(widen(v[0]), FormatNested)
	case []any:
		return fromAny(v)
	default:
		return invalid("unsupported type %T", raw)
	}
}

func normalizeText(data []byte) Normalized {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return invalid("empty text")
	}

	var decoded any
	if err := json.Unmarshal(data, &decoded); err != nil {
		return invalid("decode text: %v", err)
	}

	items, ok := decoded.([]any)
	if !ok {
		return invalid("decoded text is %T, not an array", decoded)
	}

	n := fromAny(items)
	if n.Valid() {
		n.Text = true
	}
	return n
}

func fromAny(items []any) Normalized {
	if len(items) == 1 {
		if inner, ok := items[0].([]any); ok {
			floats, ok := numbers(inner)
			if !ok {
				return invalid("nested sequence contains non-numeric values")
			}
			return fromFloats(floats, FormatNested)
		}
	}

	floats, ok := numbers(items)
	if !ok {
		return invalid("sequence of length %d is neither flat numeric nor singly nested", len(items))
	}
	return fromFloats(floats, FormatFlat)
}

func fromFloats(v []float64, format Format) Normalized {
	e, err := EmbeddingFromSlice(v)
	if err != nil {
		return invalid("%s sequence has length %d, want %d", format, len(v), constants.EmbeddingDim)
	}
	return Normalized{Embedding: e, Format: format}
}

// numbers converts decoded JSON values into floats; any non-number fails.
func numbers(items []any) ([]float64, bool) {
	out := make([]float64, len(items))
	for i, item := range items {
		switch n := item.(type) {
		case float64:
			out[i] = n
		case float32:
			out[i] = float64(n)
		case int:
			out[i] = float64(n)
		case int64:
			out[i] = float64(n)
		case json.Number:
			f, err := n.Float64()
			if err != nil {
				return nil, false
			}
			out[i] = f
		default:
			return nil, false
		}
	}
	return out, true
}

func widen(v []float32) []float64 {
	out := make([]float64, len(v))
	for i, f := range v {
		out[i] = float64(f)
	}
	return out
}
