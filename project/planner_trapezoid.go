/*
Jerk-limited trapezoid generation for a single planned move

This file may be distributed under the terms of the GNU GPLv3 license.
*/
package project

import (
	"math"

	"cncplan/common/logger"
	"cncplan/common/utils/maths"
)

const (
	TrapezoidIterationMax       = 10
	TrapezoidIterationErrorPct  = 0.10
	TrapezoidLengthFitTolerance = 0.0001
)

// velocityTolerance is the adaptive window for treating entry and exit
// velocity as equal.
func (bf *Buffer) velocityTolerance() float64 {
	return math.Max(2, bf.EntryVelocity/100)
}

// TrapezoidFit classifies how calculateTrapezoid satisfied a move.
type TrapezoidFit uint8

const (
	// FitNone: the move is too short for any section and must be skipped.
	FitNone TrapezoidFit = iota
	// FitRequested: the requested entry, cruise and exit velocities were met.
	FitRequested
	// FitDegraded: the move could not reach the exit velocity, it was lowered.
	FitDegraded
	// FitRateLimited: the cruise velocity was lowered to fit head and tail.
	FitRateLimited
)

func (f TrapezoidFit) String() string {
	switch f {
	case FitNone:
		return "none"
	case FitRequested:
		return "requested"
	case FitDegraded:
		return "degraded"
	case FitRateLimited:
		return "rate-limited"
	}
	return "unknown"
}

// targetLength is the distance needed to go from vi to vt at the buffer's
// jerk.
func (bf *Buffer) targetLength(vi, vt float64) float64 {
	dv := math.Abs(vi - vt)
	return dv * math.Sqrt(dv*bf.RecipJerk)
}

// targetVelocity is the velocity reached after accelerating from vi over
// length at the buffer's jerk.
func (bf *Buffer) targetVelocity(vi, length float64) float64 {
	return math.Pow(length, 0.66666666)*bf.CbrtJerk + vi
}

// calculateTrapezoid sets the head, body and tail lengths and the cruise
// and exit velocities so that they satisfy the entry velocity, cruise
// limit, exit velocity and length of bf. Sections shorter than one minimum
// segment are folded into their neighbours.
func calculateTrapezoid(bf *Buffer, minSegmentTime float64) TrapezoidFit {
	bf.HeadLength = 0
	bf.BodyLength = 0
	bf.TailLength = 0
	fit := FitRequested

	minimumLength := bf.targetLength(bf.EntryVelocity, bf.ExitVelocity)
	minBody := minSegmentTime * bf.CruiseVelocity

	// head only or tail only
	if bf.Length <= minimumLength+minBody {
		if bf.EntryVelocity > bf.ExitVelocity {
			if bf.Length < minimumLength-TrapezoidLengthFitTolerance {
				bf.EntryVelocity = bf.targetVelocity(bf.ExitVelocity, bf.Length)
				fit = FitDegraded
			}
			bf.CruiseVelocity = bf.EntryVelocity
			if bf.Length >= minSegmentTime*(bf.CruiseVelocity+bf.ExitVelocity) {
				bf.TailLength = bf.Length
				return fit
			}
			if bf.Length > minSegmentTime*bf.CruiseVelocity {
				bf.BodyLength = bf.Length
				return fit
			}
			return FitNone
		}
		if bf.EntryVelocity < bf.ExitVelocity {
			if bf.Length < minimumLength-TrapezoidLengthFitTolerance {
				bf.ExitVelocity = bf.targetVelocity(bf.EntryVelocity, bf.Length)
				fit = FitDegraded
			}
			bf.CruiseVelocity = bf.ExitVelocity
			if bf.Length >= minSegmentTime*(bf.CruiseVelocity+bf.EntryVelocity) {
				bf.HeadLength = bf.Length
				return fit
			}
			if bf.Length > minSegmentTime*bf.CruiseVelocity {
				bf.BodyLength = bf.Length
				return fit
			}
			return FitNone
		}
	}

	bf.HeadLength = bf.targetLength(bf.EntryVelocity, bf.CruiseVelocity)
	bf.TailLength = bf.targetLength(bf.ExitVelocity, bf.CruiseVelocity)
	if bf.HeadLength < minSegmentTime*(bf.CruiseVelocity+bf.EntryVelocity) {
		bf.HeadLength = 0
	}
	if bf.TailLength < minSegmentTime*(bf.CruiseVelocity+bf.ExitVelocity) {
		bf.TailLength = 0
	}

	// rate limited: head and tail do not fit, cruise has to come down
	if bf.Length < bf.HeadLength+bf.TailLength {
		fit = FitRateLimited
		if math.Abs(bf.EntryVelocity-bf.ExitVelocity) < bf.velocityTolerance() {
			bf.HeadLength = bf.Length / 2
			bf.TailLength = bf.HeadLength
			bf.CruiseVelocity = math.Min(bf.CruiseVmax, bf.targetVelocity(bf.EntryVelocity, bf.HeadLength))
			return fit
		}
		fitAsymmetric(bf)
		bf.HeadLength = bf.targetLength(bf.EntryVelocity, bf.CruiseVelocity)
		bf.TailLength = bf.Length - bf.HeadLength
		if bf.HeadLength < minSegmentTime*(bf.CruiseVelocity+bf.EntryVelocity) {
			bf.TailLength = bf.Length
			bf.HeadLength = 0
		}
		if bf.TailLength < minSegmentTime*(bf.CruiseVelocity+bf.ExitVelocity) {
			bf.HeadLength = bf.Length
			bf.TailLength = 0
		}
		return fit
	}

	bf.BodyLength = bf.Length - bf.HeadLength - bf.TailLength
	if bf.BodyLength < minBody && bf.BodyLength > maths.Epsilon {
		if bf.HeadLength > maths.Epsilon {
			if bf.TailLength > maths.Epsilon {
				bf.HeadLength += bf.BodyLength / 2
				bf.TailLength += bf.BodyLength / 2
			} else {
				bf.HeadLength += bf.BodyLength
			}
		} else {
			bf.TailLength += bf.BodyLength
		}
		bf.BodyLength = 0
	} else if bf.HeadLength < maths.Epsilon && bf.TailLength < maths.Epsilon {
		bf.CruiseVelocity = bf.EntryVelocity
	}
	return fit
}

// fitAsymmetric iterates the cruise velocity down until head and tail
// together match the move length. The loop is bounded, a move that does not
// converge keeps the last estimate.
func fitAsymmetric(bf *Buffer) {
	computed := bf.CruiseVmax
	for i := 0; ; i++ {
		bf.CruiseVelocity = computed
		bf.HeadLength = bf.targetLength(bf.EntryVelocity, bf.CruiseVelocity)
		bf.TailLength = bf.targetLength(bf.ExitVelocity, bf.CruiseVelocity)
		if bf.HeadLength > bf.TailLength {
			bf.HeadLength = (bf.HeadLength / (bf.HeadLength + bf.TailLength)) * bf.Length
			computed = bf.targetVelocity(bf.EntryVelocity, bf.HeadLength)
		} else {
			bf.TailLength = (bf.TailLength / (bf.HeadLength + bf.TailLength)) * bf.Length
			computed = bf.targetVelocity(bf.ExitVelocity, bf.TailLength)
		}
		if computed < maths.Epsilon ||
			math.Abs(bf.CruiseVelocity-computed)/computed <= TrapezoidIterationErrorPct {
			break
		}
		if i+1 >= TrapezoidIterationMax {
			logger.Warnf("trapezoid did not converge after %d iterations, line %d cruise %.3f",
				TrapezoidIterationMax, bf.Linenum, computed)
			break
		}
	}
	bf.CruiseVelocity = computed
}
