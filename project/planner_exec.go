/*
Runtime execution of planned moves: one segment per call

This file may be distributed under the terms of the GNU GPLv3 license.
*/
package project

import (
	"math"

	"cncplan/common/config"
	"cncplan/common/logger"
	"cncplan/common/utils/maths"
)

// moveRuntime is the move currently being cut into segments. It is loaded
// from the run buffer and then owned by the executor until the move ends.
type moveRuntime struct {
	MoveState    MoveState
	SectionState MoveState
	Linenum      uint32
	Lineindex    uint32

	Endpoint   [config.Axes]float64
	Position   [config.Axes]float64
	Target     [config.Axes]float64
	Unit       [config.Axes]float64
	WorkOffset [config.Axes]float64

	HeadLength float64
	BodyLength float64
	TailLength float64

	EntryVelocity    float64
	CruiseVelocity   float64
	ExitVelocity     float64
	MidpointVelocity float64

	Jerk                 float64
	JerkDiv2             float64
	MidpointAcceleration float64

	MoveTime         float64
	AccelTime        float64
	SegmentAccelTime float64
	ElapsedAccelTime float64

	Segments        float64
	SegmentCount    uint32
	SegmentMoveTime float64
	Microseconds    float64
	SegmentVelocity float64

	ForwardDiff1 float64
	ForwardDiff2 float64
}

func uSec(minutes float64) float64 {
	return minutes * config.MicrosecondsPerMinute
}

// ExecMove prepares at most one segment for the stepper layer. It never
// waits: while call context holds the planner token it returns ExecNoop and
// expects to be called again.
func (p *Planner) ExecMove() (ExecResult, error) {
	if !p.token.TryLock() {
		return ExecNoop, nil
	}
	defer p.token.UnLock()
	return p.execMove()
}

func (p *Planner) execMove() (ExecResult, error) {
	bf := p.mb.getRun()
	if bf == nil {
		return ExecNoop, nil
	}
	if p.ms.Cycle == CycleOff {
		p.cycleStart()
	}
	if p.ms.Motion == MotionStop && bf.MoveType == MoveTypeAline {
		p.ms.Motion = MotionRun
	}
	if bf.exec == nil {
		logger.Errorf("run buffer %d (%s) has no exec function", bf.index, bf.MoveType)
		return ExecFatal, ErrInternal
	}
	return bf.exec(bf)
}

func (p *Planner) execDwell(bf *Buffer) (ExecResult, error) {
	p.stepper.PrepDwell(bf.Time * 1000000)
	p.freeRunBuffer()
	return ExecDone, nil
}

func (p *Planner) execCommand(bf *Buffer) (ExecResult, error) {
	if bf.command != nil {
		bf.command(bf.IntArg, bf.FloatArg)
	}
	p.stepper.PrepNull()
	p.freeRunBuffer()
	return ExecDone, nil
}

// execAline runs one segment of an accelerated line. ExecPending means the
// move has more segments, anything else ends the move and frees the buffer
// unless a hold re-enlisted it.
func (p *Planner) execAline(bf *Buffer) (ExecResult, error) {
	mr := &p.mr
	if bf.MoveState == MoveOff {
		return ExecNoop, nil
	}
	if mr.MoveState == MoveOff {
		if p.ms.Hold == HoldHold {
			return ExecNoop, nil
		}
		bf.Replannable = false
		if bf.Length < maths.Epsilon || bf.MoveState == MoveSkip {
			status := ExecNoop
			if bf.MoveState == MoveSkip {
				status = ExecSkipped
				p.skipped.Add(1)
				logger.Debugw("move too short to run", "line", bf.Linenum, "length", bf.Length)
			}
			mr.SectionState = MoveOff
			// the next buffer may already be about to run
			p.mb.next(bf).Replannable = false
			p.stepper.PrepNull()
			p.freeRunBuffer()
			return status, nil
		}
		p.loadRuntime(bf)
	}

	var status ExecResult
	switch mr.MoveState {
	case MoveHead:
		status = p.execHead()
	case MoveBody:
		status = p.execBody()
	case MoveTail:
		status = p.execTail()
	case MoveSkip:
		status = ExecDone
	}

	if p.ms.Hold == HoldSync {
		p.ms.Hold = HoldPlan
	}
	// a hold that spans buffers only stops at the end of the move that
	// exits at rest
	if p.ms.Hold == HoldDecel && status != ExecPending && mr.ExitVelocity < maths.Epsilon {
		p.ms.Hold = HoldHold
		mr.SegmentVelocity = 0
		p.reports.RequestStatusReport()
		logger.Infof("feedhold: stopped at %v", mr.Position)
	}

	if status == ExecPending {
		return status, nil
	}
	if status == ExecSkipped {
		p.skipped.Add(1)
	}
	mr.MoveState = MoveOff
	mr.SectionState = MoveOff
	p.mb.next(bf).Replannable = false
	if bf.MoveState == MoveRun {
		p.freeRunBuffer()
	}
	return status, nil
}

// loadRuntime hands bf to the runtime. bf stays in the pool marked running
// until the runtime finishes with it.
func (p *Planner) loadRuntime(bf *Buffer) {
	mr := &p.mr
	bf.MoveState = MoveRun
	mr.MoveState = MoveHead
	mr.SectionState = MoveNew
	mr.Linenum = bf.Linenum
	mr.Lineindex = bf.Lineindex
	mr.Jerk = bf.Jerk
	mr.JerkDiv2 = bf.Jerk / 2
	mr.HeadLength = bf.HeadLength
	mr.BodyLength = bf.BodyLength
	mr.TailLength = bf.TailLength
	mr.EntryVelocity = bf.EntryVelocity
	mr.CruiseVelocity = bf.CruiseVelocity
	mr.ExitVelocity = bf.ExitVelocity
	mr.Unit = bf.Unit
	mr.Endpoint = bf.Target
	mr.WorkOffset = bf.WorkOffset
}

// initRamp sizes a head or tail of mr.MoveTime that changes velocity by dv.
// Each half of the S-curve gets the same number of segments. It reports
// false when the segments would be shorter than the minimum segment time.
func (p *Planner) initRamp(dv float64) bool {
	mr := &p.mr
	mr.Segments = math.Ceil(uSec(mr.MoveTime) / (2 * p.estdSegmentUsec))
	mr.SegmentMoveTime = mr.MoveTime / (2 * mr.Segments)
	mr.SegmentCount = uint32(mr.Segments)
	if p.closedForm {
		mr.AccelTime = 2 * math.Sqrt(dv/mr.Jerk)
		mr.MidpointAcceleration = 2 * dv / mr.AccelTime
		mr.SegmentAccelTime = mr.AccelTime / (2 * mr.Segments)
		mr.ElapsedAccelTime = mr.SegmentAccelTime / 2
	}
	mr.Microseconds = uSec(mr.SegmentMoveTime)
	return mr.Microseconds >= p.minSegmentUsec
}

// initForwardDiffs sets up the quadratic from t0 to t2 over one half of
// the S-curve.
func (mr *moveRuntime) initForwardDiffs(t0, t2 float64) {
	hSquared := maths.Square(1 / mr.Segments)
	ahSquared := (t2 - t0) * hSquared
	mr.ForwardDiff1 = ahSquared
	mr.ForwardDiff2 = 2 * ahSquared
	mr.SegmentVelocity = t0
}

// closedFormVelocity evaluates the S-curve at the elapsed acceleration time
// of the current head or tail half.
func (mr *moveRuntime) closedFormVelocity() float64 {
	el := mr.ElapsedAccelTime
	jerkTerm := maths.Square(el) * mr.JerkDiv2
	switch {
	case mr.MoveState == MoveHead && mr.SectionState == MoveRun1:
		return mr.EntryVelocity + jerkTerm
	case mr.MoveState == MoveHead:
		return mr.MidpointVelocity + el*mr.MidpointAcceleration - jerkTerm
	case mr.SectionState == MoveRun1:
		return mr.CruiseVelocity - jerkTerm
	}
	return mr.MidpointVelocity - el*mr.MidpointAcceleration + jerkTerm
}

// stepVelocity advances the segment velocity within a head or tail half.
func (p *Planner) stepVelocity() {
	mr := &p.mr
	if p.closedForm {
		mr.SegmentVelocity = mr.closedFormVelocity()
		return
	}
	mr.SegmentVelocity += mr.ForwardDiff1
	if mr.SectionState == MoveRun2 {
		mr.ForwardDiff1 += mr.ForwardDiff2
	}
}

// endFirstHalf switches a head or tail into its second half.
func (p *Planner) endFirstHalf(complete bool) {
	mr := &p.mr
	if !complete {
		if !p.closedForm {
			mr.ForwardDiff1 += mr.ForwardDiff2
		}
		return
	}
	mr.SegmentCount = uint32(mr.Segments)
	mr.SectionState = MoveRun2
	mr.ElapsedAccelTime = mr.SegmentAccelTime / 2
	mr.ForwardDiff2 = -mr.ForwardDiff2
}

func (p *Planner) execHead() ExecResult {
	mr := &p.mr
	if mr.SectionState == MoveNew {
		if mr.HeadLength < maths.Epsilon {
			mr.MoveState = MoveBody
			return p.execBody()
		}
		mr.MidpointVelocity = (mr.EntryVelocity + mr.CruiseVelocity) / 2
		mr.MoveTime = mr.HeadLength / mr.MidpointVelocity
		if !p.initRamp(mr.CruiseVelocity - mr.EntryVelocity) {
			return ExecSkipped
		}
		mr.initForwardDiffs(mr.EntryVelocity, mr.MidpointVelocity)
		mr.SectionState = MoveRun1
	}
	switch mr.SectionState {
	case MoveRun1:
		p.stepVelocity()
		p.endFirstHalf(p.execSegment(false))
	case MoveRun2:
		p.stepVelocity()
		if p.execSegment(false) {
			if mr.BodyLength < maths.Epsilon && mr.TailLength < maths.Epsilon {
				return ExecDone
			}
			mr.MoveState = MoveBody
			mr.SectionState = MoveNew
		}
	}
	return ExecPending
}

// execBody runs the cruise in segments too, so a hold can start mid line.
func (p *Planner) execBody() ExecResult {
	mr := &p.mr
	if mr.SectionState == MoveNew {
		if mr.BodyLength < maths.Epsilon {
			mr.MoveState = MoveTail
			return p.execTail()
		}
		mr.MoveTime = mr.BodyLength / mr.CruiseVelocity
		mr.Segments = math.Ceil(uSec(mr.MoveTime) / p.estdSegmentUsec)
		mr.SegmentMoveTime = mr.MoveTime / mr.Segments
		mr.SegmentVelocity = mr.CruiseVelocity
		mr.SegmentCount = uint32(mr.Segments)
		if mr.Microseconds = uSec(mr.SegmentMoveTime); mr.Microseconds < p.minSegmentUsec {
			return ExecSkipped
		}
		mr.SectionState = MoveRun
	}
	if mr.SectionState == MoveRun {
		if p.execSegment(false) {
			if mr.TailLength < maths.Epsilon {
				return ExecDone
			}
			mr.MoveState = MoveTail
			mr.SectionState = MoveNew
		}
	}
	return ExecPending
}

func (p *Planner) execTail() ExecResult {
	mr := &p.mr
	if mr.SectionState == MoveNew {
		if mr.TailLength < maths.Epsilon {
			return ExecDone
		}
		mr.MidpointVelocity = (mr.CruiseVelocity + mr.ExitVelocity) / 2
		mr.MoveTime = mr.TailLength / mr.MidpointVelocity
		if !p.initRamp(mr.CruiseVelocity - mr.ExitVelocity) {
			return ExecSkipped
		}
		mr.initForwardDiffs(mr.CruiseVelocity, mr.MidpointVelocity)
		mr.SectionState = MoveRun1
	}
	switch mr.SectionState {
	case MoveRun1:
		p.stepVelocity()
		p.endFirstHalf(p.execSegment(false))
	case MoveRun2:
		p.stepVelocity()
		if p.execSegment(true) {
			return ExecDone
		}
	}
	return ExecPending
}

// execSegment prepares one segment at the current segment velocity and
// reports whether it was the last one of the running section half. With
// correction set, the final segment lands exactly on the move endpoint,
// unless the machine is holding.
func (p *Planner) execSegment(correction bool) bool {
	mr := &p.mr
	if correction && mr.SegmentCount == 1 &&
		p.ms.Motion == MotionRun && p.ms.Cycle == CycleStarted {
		mr.Target = mr.Endpoint
	} else {
		intermediate := mr.SegmentVelocity * mr.SegmentMoveTime
		for i := range mr.Target {
			mr.Target[i] = mr.Position[i] + mr.Unit[i]*intermediate
		}
	}
	for i := range p.travel {
		p.travel[i] = mr.Target[i] - mr.Position[i]
	}
	p.kin.Inverse(p.travel[:], mr.Microseconds, p.steps[:])
	if err := p.stepper.PrepLine(p.steps[:], mr.Microseconds); err != nil {
		logger.Warnf("segment of line %d not prepared: %v", mr.Linenum, err)
	} else {
		mr.Position = mr.Target
		p.segments.Add(1)
	}
	mr.ElapsedAccelTime += mr.SegmentAccelTime
	mr.SegmentCount--
	return mr.SegmentCount == 0
}

// nextSegmentVelocity estimates the velocity of the segment the runtime
// will prepare next.
func (p *Planner) nextSegmentVelocity() float64 {
	mr := &p.mr
	switch {
	case mr.SectionState == MoveNew && mr.MoveState == MoveHead:
		return mr.EntryVelocity
	case mr.SectionState == MoveNew:
		return mr.CruiseVelocity
	case mr.MoveState == MoveBody:
		return mr.SegmentVelocity
	case p.closedForm:
		return mr.closedFormVelocity()
	}
	return mr.SegmentVelocity + mr.ForwardDiff1
}
