// Package vector provides cosine similarity and dense similarity matrices.
package vector

import (
	"fmt"
	"math"

	"github.com/hyperjump/matome/pkg/utils"
)

// InnerProduct returns the inner product of two vectors accumulated in float64.
// It panics if the lengths differ.
func InnerProduct(a, b []float32) float64 {
	mustSameLength(a, b)
	var dot float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
	}
	return dot
}

// L2Norm returns the L2 norm of a vector.
func L2Norm(x []float32) float64 {
	var sum float64
	for _, v := range x {
		sum += float64(v) * float64(v)
	}
	return math.Sqrt(sum)
}

// CosineSimilarity returns (a·b)/(‖a‖·‖b‖) in [-1, 1].
// A pair involving a zero-norm vector has similarity 0, including a zero vector with itself.
// Vectors of different lengths cannot come from one provider call, so that case panics.
func CosineSimilarity(a, b []float32) float64 {
	mustSameLength(a, b)
	var dot, normA, normB float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		normA += x * x
		normB += y * y
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return utils.Clamp(dot/(math.Sqrt(normA)*math.Sqrt(normB)), -1, 1)
}

// SimilarityMatrix returns the full N×N cosine similarity matrix for vectors.
// The upper triangle is computed and mirrored, so the result is exactly symmetric.
func SimilarityMatrix(vectors [][]float32) [][]float64 {
	n := len(vectors)
	norms := make([]float64, n)
	for i, v := range vectors {
		norms[i] = L2Norm(v)
	}
	matrix := make([][]float64, n)
	for i := range matrix {
		matrix[i] = make([]float64, n)
	}
	for i := 0; i < n; i++ {
		if norms[i] != 0 {
			matrix[i][i] = 1
		}
		for j := i + 1; j < n; j++ {
			var sim float64
			if norms[i] != 0 && norms[j] != 0 {
				sim = utils.Clamp(InnerProduct(vectors[i], vectors[j])/(norms[i]*norms[j]), -1, 1)
			}
			matrix[i][j] = sim
			matrix[j][i] = sim
		}
	}
	return matrix
}

// CheckDimensions returns an error unless every vector has length dim.
// When dim is 0 the length of the first vector is used.
func CheckDimensions(vectors [][]float32, dim int) error {
	if len(vectors) == 0 {
		return nil
	}
	if dim == 0 {
		dim = len(vectors[0])
	}
	for i, v := range vectors {
		if len(v) != dim {
			return fmt.Errorf("vector dimension mismatch at %d: got %d, expected %d", i, len(v), dim)
		}
	}
	return nil
}

func mustSameLength(a, b []float32) {
	if len(a) != len(b) {
		panic(fmt.Sprintf("vector: length mismatch %d != %d", len(a), len(b)))
	}
}
