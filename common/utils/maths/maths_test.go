package maths

import (
	"math"
	"testing"
)

func nearlyEqual(a, b, tol float64) bool {
	return math.Abs(a-b) <= tol
}

func TestMinHelpers(t *testing.T) {
	if v := Min3(3, 1, 2); v != 1 {
		t.Fatalf("Min3 = %v, want 1", v)
	}
	if v := Min4(4, 3, 2, 5); v != 2 {
		t.Fatalf("Min4 = %v, want 2", v)
	}
	if v := Max3(4, 7, 2); v != 7 {
		t.Fatalf("Max3 = %v, want 7", v)
	}
}

func TestFpCompare(t *testing.T) {
	if !FpZero(0.000001) || FpZero(0.001) {
		t.Fatalf("FpZero tolerance is wrong")
	}
	if !FpNotZero(-0.01) || FpNotZero(0.000001) {
		t.Fatalf("FpNotZero tolerance is wrong")
	}
	if !FpEQ(1.0, 1.000001) || FpEQ(1.0, 1.001) {
		t.Fatalf("FpEQ tolerance is wrong")
	}
}

func TestAxisVectorLength(t *testing.T) {
	a := []float64{0, 0, 0, 0, 0, 0}
	b := []float64{3, 4, 0, 0, 0, 0}
	if l := AxisVectorLength(a, b); !nearlyEqual(l, 5, 1e-12) {
		t.Fatalf("length = %v, want 5", l)
	}
	if d := Dot([]float64{1, 2, 3}, []float64{4, 5, 6}); d != 32 {
		t.Fatalf("Dot = %v, want 32", d)
	}
	if n := WeightedNorm([]float64{0.6, 0.8}, []float64{10, 10}); !nearlyEqual(n, 10, 1e-12) {
		t.Fatalf("WeightedNorm = %v, want 10", n)
	}
}
