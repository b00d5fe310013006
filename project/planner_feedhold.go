/*
Feedhold: decelerate to a stop mid path and resume on cycle start

A hold moves through sync, plan, decel and hold. Feedhold asks for it,
the executor moves sync to plan after its next segment, PlanHoldCallback
replans the runtime and the queue down to zero, the executor enters hold
once the deceleration finishes, and EndHoldCallback resumes after
CycleStart.

The run buffer is redundant once its move is loaded into the runtime. The
hold planner reuses it to split the move where velocity reaches zero: one
half decelerates to the hold point, the other accelerates away from it.

This file may be distributed under the terms of the GNU GPLv3 license.
*/
package project

import (
	"cncplan/common/logger"
	"cncplan/common/utils/maths"
)

// Feedhold requests a hold. It is ignored unless the machine is running
// and not already holding.
func (p *Planner) Feedhold() {
	p.token.Lock()
	defer p.token.UnLock()
	if p.ms.Motion == MotionRun && p.ms.Hold == HoldOff {
		p.ms.Hold = HoldSync
		p.ms.Motion = MotionHold
		logger.Infof("feedhold requested at line %d", p.mr.Linenum)
	}
}

// CycleStart starts a cycle, or while a hold is in progress, marks that the
// hold should be released once motion has stopped.
func (p *Planner) CycleStart() {
	p.token.Lock()
	defer p.token.UnLock()
	if p.ms.Hold != HoldOff {
		p.ms.CycleStartFlag = true
		return
	}
	if p.ms.Cycle == CycleOff {
		p.cycleStart()
	}
	p.execs.RequestExecMove()
}

// PlanHoldCallback replans the runtime and the queue for a stop. It only
// acts in the plan state and returns ExecNoop otherwise.
func (p *Planner) PlanHoldCallback() ExecResult {
	p.token.Lock()
	defer p.token.UnLock()
	return p.planHold()
}

func (p *Planner) planHold() ExecResult {
	if p.ms.Hold != HoldPlan {
		return ExecNoop
	}
	mb, mr := p.mb, &p.mr
	bp := mb.getRun()
	if bp == nil {
		return ExecNoop
	}
	if mr.MoveState == MoveOff {
		// between moves: the next move has not been loaded yet
		if bp.MoveType != MoveTypeAline || bp.Length < maths.Epsilon || bp.MoveState != MoveNew {
			p.ms.Hold = HoldHold
			mr.SegmentVelocity = 0
			p.reports.RequestStatusReport()
			return ExecDone
		}
		bp.Replannable = false
		p.loadRuntime(bp)
	}

	available := maths.AxisVectorLength(mr.Endpoint[:], mr.Position[:])
	braking := p.nextSegmentVelocity()
	brakingLength := bp.targetLength(braking, 0)

	// A move already planned to end at rest gets a slightly harder
	// deceleration rather than a split into the next buffer.
	if brakingLength > available && bp.ExitVelocity < maths.Epsilon {
		brakingLength = available
	}

	if brakingLength <= available {
		p.holdInRuntime(bp, available, braking, brakingLength)
	} else {
		p.holdAcrossQueue(bp, available, braking)
	}

	p.resetReplannableList()
	p.planBlockList(mb.last(), true)
	p.ms.Hold = HoldDecel
	return ExecDone
}

// holdInRuntime: the deceleration fits in what is left of the runtime move.
// The run buffer becomes the hold point and carries the remaining length.
func (p *Planner) holdInRuntime(bp *Buffer, available, braking, brakingLength float64) {
	mr := &p.mr
	mr.ExitVelocity = 0
	mr.TailLength = brakingLength
	mr.CruiseVelocity = braking
	mr.MoveState = MoveTail
	mr.SectionState = MoveNew

	bp.Length = available - brakingLength
	bp.DeltaVmax = bp.targetVelocity(0, bp.Length)
	bp.EntryVmax = 0
	bp.MoveState = MoveNew
	logger.Debugw("hold fits in runtime", "braking", braking, "length", brakingLength,
		"remaining", bp.Length)
}

// holdAcrossQueue: the runtime sheds what it can over its remaining length,
// then the deceleration continues into the queued buffers. Each buffer is
// shifted back one slot until the stop fits, and the buffer holding the
// stop point is split in two.
func (p *Planner) holdAcrossQueue(bp *Buffer, available, braking float64) {
	mb, mr := p.mb, &p.mr
	mr.MoveState = MoveTail
	mr.SectionState = MoveNew
	mr.TailLength = available
	mr.CruiseVelocity = braking
	mr.ExitVelocity = braking - bp.targetVelocity(0, available)

	braking = mr.ExitVelocity
	brakingLength := 0.0
	split := true
	runSlot := bp
	bp.MoveState = MoveNew
	for i := 0; i < mb.size(); i++ {
		src := mb.next(bp)
		if src == runSlot || !mb.queued(src) {
			// ran out of queue: bp only holds a stale copy now
			logger.Warnf("hold ran past the end of the queue at line %d", bp.Linenum)
			if bp != runSlot {
				mb.prev(bp).ExitVmax = 0
			}
			bp.Length = 0
			bp.EntryVmax = 0
			bp.ExitVmax = 0
			bp.DeltaVmax = 0
			split = false
			break
		}
		bp.copyFrom(src)
		if bp.MoveType != MoveTypeAline {
			bp = mb.next(bp)
			continue
		}
		bp.EntryVmax = braking
		brakingLength = bp.targetLength(braking, 0)
		if brakingLength > bp.Length {
			if bp.ExitVelocity < maths.Epsilon {
				// planned to stop at its end anyway
				brakingLength = bp.Length
				break
			}
			bp.ExitVmax = braking - bp.targetVelocity(0, bp.Length)
			braking = bp.ExitVmax
			bp = mb.next(bp)
			continue
		}
		break
	}

	if split {
		bp.Length = brakingLength
		bp.ExitVmax = 0

		// the slot after bp still holds the same move: it becomes the
		// acceleration away from the stop
		bp = mb.next(bp)
		bp.EntryVmax = 0
		bp.Length -= brakingLength
		bp.DeltaVmax = bp.targetVelocity(0, bp.Length)
		bp.ExitVmax = bp.DeltaVmax
	}
	logger.Debugw("hold spans queue", "runtime_exit", mr.ExitVelocity, "stop_length", brakingLength)
}

// EndHoldCallback releases a completed hold once cycle start was
// requested. ExecNoop when there is nothing to release or nothing to run.
func (p *Planner) EndHoldCallback() ExecResult {
	p.token.Lock()
	defer p.token.UnLock()
	if p.ms.Hold != HoldHold || !p.ms.CycleStartFlag {
		return ExecNoop
	}
	p.ms.CycleStartFlag = false
	p.ms.Hold = HoldOff
	if p.mb.getRun() == nil {
		p.ms.Motion = MotionStop
		return ExecNoop
	}
	p.ms.Motion = MotionRun
	logger.Infof("feedhold released")
	p.execs.RequestExecMove()
	return ExecDone
}
