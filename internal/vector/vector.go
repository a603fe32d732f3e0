// Package vector provides the small set of dense-vector operations the
// retrieval pipeline relies on: cosine similarity, L2 norm, and in-place
// normalization. Vectors are []float32 to match the wire format of every
// embedding backend; arithmetic is done in float64 to limit rounding drift.
package vector

import (
	"fmt"
	"math"
)

// neutralSimilarity is returned when either vector has zero magnitude.
// A zero vector carries no directional information, so the comparison is
// reported as "don't know" rather than 0 or an error.
const neutralSimilarity = 0.5

// DimensionMismatchError reports an attempt to compare vectors of different
// lengths. This always indicates a configuration bug (embeddings produced by
// models of different dimensionality were mixed) and must not be masked.
type DimensionMismatchError struct {
	// A and B are the lengths of the two vectors.
	A, B int
}

// Error implements the error interface.
func (e *DimensionMismatchError) Error() string {
	return fmt.Sprintf("vector: dimension mismatch: %d vs %d", e.A, e.B)
}

// Cosine computes the cosine similarity of a and b, clamped into [0, 1].
// If either vector has zero magnitude the result is the fixed neutral value
// 0.5. Vectors of different lengths produce a *DimensionMismatchError.
func Cosine(a, b []float32) (float64, error) {
	if len(a) != len(b) {
		return 0, &DimensionMismatchError{A: len(a), B: len(b)}
	}

	var dot, na2, nb2 float64
	for i := range a {
		va := float64(a[i])
		vb := float64(b[i])
		dot += va * vb
		na2 += va * va
		nb2 += vb * vb
	}

	if na2 == 0 || nb2 == 0 {
		return neutralSimilarity, nil
	}

	sim := dot / (math.Sqrt(na2) * math.Sqrt(nb2))
	if sim < 0 {
		sim = 0
	}
	if sim > 1 {
		sim = 1
	}
	return sim, nil
}

// Norm returns the L2 norm of v.
func Norm(v []float32) float64 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	return math.Sqrt(sum)
}

// Normalize scales v in place to unit L2 norm. A zero vector is left
// unchanged.
func Normalize(v []float32) {
	n := Norm(v)
	if n == 0 {
		return
	}
	for i := range v {
		v[i] = float32(float64(v[i]) / n)
	}
}
