package maths

import "math"

// AxisVectorLength returns the euclidean distance between two axis vectors.
// Both slices must be the same length.
func AxisVectorLength(a, b []float64) float64 {
	var sum float64
	for i := range a {
		sum += Square(a[i] - b[i])
	}
	return math.Sqrt(sum)
}

func Dot(a, b []float64) float64 {
	var sum float64
	for i := range a {
		sum += a[i] * b[i]
	}
	return sum
}

// WeightedNorm is sqrt(sum((v[i]*w[i])^2)).
func WeightedNorm(v, w []float64) float64 {
	var sum float64
	for i := range v {
		sum += Square(v[i] * w[i])
	}
	return math.Sqrt(sum)
}
