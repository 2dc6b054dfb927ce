package facematch

import "math"

// EuclideanDistance computes the L2 distance between two embeddings.
// Both operands have the same fixed length, so there is no mismatch case.
func EuclideanDistance(a, b Embedding) float64 {
	var sum float64
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return math.Sqrt(sum)
}

// Confidence converts a distance into the reported match confidence (1 - distance).
func Confidence(distance float64) float64 {
	return 1 - distance
}
