package project

import (
	"math"

	"cncplan/common/config"
	"cncplan/common/utils/maths"
)

const (
	// JunctionStraightVmax stands in for "no limit" on collinear moves.
	JunctionStraightVmax = 10000000
	junctionCosStraight  = -0.99
	junctionCosReversal  = 0.99
)

// junctionVmax is the highest velocity at which the path can turn from
// direction a into direction b without exceeding the centripetal
// acceleration allowed by the configured deviation. The two unit vectors
// are the outgoing direction of the previous move and the direction of the
// new one.
func junctionVmax(a, b *[config.Axes]float64, deviation *[config.Axes]float64, acceleration float64) float64 {
	costheta := -maths.Dot(a[:], b[:])
	if costheta < junctionCosStraight {
		return JunctionStraightVmax
	}
	if costheta > junctionCosReversal {
		return 0
	}

	delta := (maths.WeightedNorm(a[:], deviation[:]) + maths.WeightedNorm(b[:], deviation[:])) / 2
	sinThetaOver2 := math.Sqrt((1 - costheta) / 2)
	radius := delta * sinThetaOver2 / (1 - sinThetaOver2)
	return math.Sqrt(radius * acceleration)
}
