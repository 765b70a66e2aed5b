package database

import "math"

// MaxCosineDistance is returned for vectors that cannot be compared.
const MaxCosineDistance = 2.0

// CosineDistance returns 1 - cos(a, b), in [0, 2]. Vectors of different
// length, empty vectors and zero vectors are as far apart as possible.
func CosineDistance(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return MaxCosineDistance
	}

	var dot, sumA, sumB float64
	for i, x := range a {
		y := float64(b[i])
		dot += float64(x) * y
		sumA += float64(x) * float64(x)
		sumB += y * y
	}
	if sumA == 0 || sumB == 0 {
		return MaxCosineDistance
	}

	// rounding can push the ratio just past ±1
	sim := max(-1, min(1, dot/math.Sqrt(sumA*sumB)))
	return 1 - sim
}
