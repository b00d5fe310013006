/*
Look-ahead planning across the buffer queue

This file may be distributed under the terms of the GNU GPLv3 license.
*/
package project

import (
	"cncplan/common/logger"
	"cncplan/common/utils/maths"
)

// planBlockList replans every replannable buffer up to and including bf,
// the newest buffer in the queue.
//
// The backward pass walks from bf towards the run buffer and stops at the
// first buffer that is not replannable, accumulating braking velocities.
// The forward pass then sets entry, cruise and exit velocities and
// regenerates each trapezoid. A buffer whose exit is pinned by its own
// limit, by the next buffer's entry limit, or by what it can reach from an
// optimally planned predecessor will not improve with more look-ahead, so it
// drops out of future passes. bf always plans to a full stop.
//
// mrFlag marks that the first buffer of the list continues from the
// runtime rather than from its predecessor.
func (p *Planner) planBlockList(bf *Buffer, mrFlag bool) {
	mb := p.mb
	bp := bf

	for {
		bp = mb.prev(bp)
		if bp == bf || !bp.Replannable {
			break
		}
		nx := mb.next(bp)
		bp.BrakingVelocity = min(nx.EntryVmax, nx.BrakingVelocity) + bp.DeltaVmax
	}

	for {
		bp = mb.next(bp)
		if bp == bf {
			break
		}
		pv, nx := mb.prev(bp), mb.next(bp)
		if pv == bf || mrFlag {
			bp.EntryVelocity = bp.EntryVmax
			mrFlag = false
		} else {
			bp.EntryVelocity = pv.ExitVelocity
		}
		bp.CruiseVelocity = bp.CruiseVmax
		bp.ExitVelocity = maths.Min4(bp.ExitVmax, nx.BrakingVelocity, nx.EntryVmax,
			bp.EntryVelocity+bp.DeltaVmax)
		p.trapezoid(bp)

		if bp.ExitVelocity == bp.ExitVmax || bp.ExitVelocity == nx.EntryVmax ||
			(!pv.Replannable && bp.ExitVelocity == bp.EntryVelocity+bp.DeltaVmax) {
			bp.Replannable = false
		}
	}

	bp.EntryVelocity = mb.prev(bp).ExitVelocity
	bp.CruiseVelocity = bp.CruiseVmax
	bp.ExitVelocity = 0
	p.trapezoid(bp)
}

func (p *Planner) trapezoid(bf *Buffer) {
	fit := calculateTrapezoid(bf, p.minSegmentTime)
	switch {
	case fit == FitNone && bf.MoveState <= MoveNew:
		bf.MoveState = MoveSkip
	case fit != FitNone && bf.MoveState == MoveSkip:
		bf.MoveState = MoveNew
	}
	if fit == FitDegraded {
		logger.Debugw("degraded trapezoid", "line", bf.Linenum, "length", bf.Length,
			"entry", bf.EntryVelocity, "exit", bf.ExitVelocity)
	}
}

// resetReplannableList marks every queued buffer from the run buffer on as
// replannable, so a hold can replan the whole queue.
func (p *Planner) resetReplannableList() {
	bf := p.mb.first()
	if bf == nil {
		return
	}
	bp := bf
	for {
		bp.Replannable = true
		bp = p.mb.next(bp)
		if bp == bf || bp.MoveState == MoveOff {
			return
		}
	}
}
