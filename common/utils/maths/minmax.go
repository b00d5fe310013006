package maths

import "math"

// Epsilon is the tolerance used for floating point zero tests throughout the
// motion code.
const Epsilon = 0.00001

func Min3(a, b, c float64) float64 {
	return math.Min(math.Min(a, b), c)
}

func Min4(a, b, c, d float64) float64 {
	return math.Min(math.Min(a, b), math.Min(c, d))
}

func Max3(a, b, c float64) float64 {
	return math.Max(math.Max(a, b), c)
}

func Square(x float64) float64 {
	return x * x
}

func FpZero(a float64) bool {
	return math.Abs(a) < Epsilon
}

func FpNotZero(a float64) bool {
	return math.Abs(a) > Epsilon
}

func FpEQ(a, b float64) bool {
	return math.Abs(a-b) < Epsilon
}
