/*
Acceleration managed line planning and motion execution

The planner queues moves into a ring of buffers, plans velocity profiles
across the queue and hands the runtime executor one buffer at a time.
Call context operations (Aline, Dwell, the hold callbacks) hold the planner
token. ExecMove only tries the token and backs off when it is taken.

This file may be distributed under the terms of the GNU GPLv3 license.
*/
package project

import (
	"math"

	"cncplan/common/config"
	"cncplan/common/lock"
	"cncplan/common/logger"
	"cncplan/common/utils/maths"

	"code.hybscloud.com/atomix"
	uuid "github.com/satori/go.uuid"
)

const (
	// JerkMatchPrecision lets consecutive moves with nearly the same jerk
	// share the cached cube root and reciprocal.
	JerkMatchPrecision = 1000
	// exactStopVmax is the velocity cap for non exact-stop moves.
	exactStopVmax = 12345678
)

// MoveRequest is one accelerated line as produced by the canonical machine.
type MoveRequest struct {
	Target      [config.Axes]float64
	Minutes     float64
	WorkOffset  [config.Axes]float64
	MinTime     float64
	Linenum     uint32
	PathControl PathControl
}

// MachineState is the slice of canonical machine state the planner drives.
type MachineState struct {
	Cycle          CycleState
	Motion         MotionState
	Hold           HoldState
	CycleStartFlag bool
	CycleID        string
}

// Status is a consistent snapshot for reporting.
type Status struct {
	Linenum          uint32
	Lineindex        uint32
	Velocity         float64
	MachinePosition  [config.Axes]float64
	WorkPosition     [config.Axes]float64
	Cycle            CycleState
	Motion           MotionState
	Hold             HoldState
	CycleID          string
	BuffersAvailable int
	Segments         uint32
}

type planContext struct {
	position      [config.Axes]float64
	lineindex     uint32
	prevJerk      float64
	prevCbrtJerk  float64
	prevRecipJerk float64
}

type Planner struct {
	token lock.SpinLock

	jerkMax              [config.Axes]float64
	junctionDeviation    [config.Axes]float64
	junctionAcceleration float64
	estdSegmentUsec      float64
	minSegmentUsec       float64
	minSegmentTime       float64
	closedForm           bool

	mb *bufferPool
	mm planContext
	mr moveRuntime
	ms MachineState

	stepper StepperPrep
	kin     Kinematics
	execs   ExecRequester
	cycles  CycleNotifier
	reports ReportRequester
	arcs    ArcAborter

	segments atomix.Uint32
	skipped  atomix.Uint32

	execAlineFn   execFunc
	execDwellFn   execFunc
	execCommandFn execFunc

	travel [config.Axes]float64
	steps  [Motors]float64
}

func NewPlanner(cfg *config.MachineConfig, stepper StepperPrep, kin Kinematics) *Planner {
	p := &Planner{
		jerkMax:              cfg.JerkMax(),
		junctionDeviation:    cfg.JunctionDeviation(),
		junctionAcceleration: cfg.JunctionAcceleration,
		estdSegmentUsec:      cfg.EstdSegmentUsec,
		minSegmentUsec:       cfg.MinSegmentUsec,
		minSegmentTime:       cfg.MinSegmentTime(),
		closedForm:           cfg.SegmentMath == config.SegmentMathClosedForm,
		mb:                   newBufferPool(cfg.PoolSize),
		stepper:              stepper,
		kin:                  kin,
		execs:                nopCollaborator{},
		cycles:               nopCollaborator{},
		reports:              nopCollaborator{},
		arcs:                 nopCollaborator{},
	}
	p.execAlineFn = p.execAline
	p.execDwellFn = p.execDwell
	p.execCommandFn = p.execCommand
	return p
}

func (p *Planner) SetExecRequester(r ExecRequester) {
	if r != nil {
		p.execs = r
	}
}

func (p *Planner) SetCycleNotifier(n CycleNotifier) {
	if n != nil {
		p.cycles = n
	}
}

func (p *Planner) SetReportRequester(r ReportRequester) {
	if r != nil {
		p.reports = r
	}
}

func (p *Planner) SetArcAborter(a ArcAborter) {
	if a != nil {
		p.arcs = a
	}
}

// Aline plans an accelerated line to req.Target and queues it. The caller
// must have checked BuffersAvailable.
func (p *Planner) Aline(req MoveRequest) error {
	p.token.Lock()
	defer p.token.UnLock()
	return p.aline(&req)
}

func (p *Planner) aline(req *MoveRequest) error {
	if req.Minutes < maths.Epsilon {
		return ErrZeroLengthMove
	}
	length := maths.AxisVectorLength(req.Target[:], p.mm.position[:])
	if length < maths.Epsilon {
		return ErrZeroLengthMove
	}

	bf := p.getWriteBuffer()
	if bf == nil {
		logger.Errorf("aline line %d: %v", req.Linenum, ErrBufferFull)
		return ErrBufferFull
	}
	bf.exec = p.execAlineFn
	bf.Linenum = req.Linenum
	bf.Time = req.Minutes
	bf.MinTime = req.MinTime
	bf.Length = length
	bf.Target = req.Target
	bf.WorkOffset = req.WorkOffset

	var jerkSquared float64
	for i := 0; i < config.Axes; i++ {
		if diff := req.Target[i] - p.mm.position[i]; maths.FpNotZero(diff) {
			bf.Unit[i] = diff / length
			jerkSquared += maths.Square(bf.Unit[i] * p.jerkMax[i])
		}
	}
	bf.Jerk = math.Sqrt(jerkSquared)
	if math.Abs(bf.Jerk-p.mm.prevJerk) < JerkMatchPrecision {
		bf.CbrtJerk = p.mm.prevCbrtJerk
		bf.RecipJerk = p.mm.prevRecipJerk
	} else {
		bf.CbrtJerk = math.Cbrt(bf.Jerk)
		bf.RecipJerk = 1 / bf.Jerk
		p.mm.prevJerk = bf.Jerk
		p.mm.prevCbrtJerk = bf.CbrtJerk
		p.mm.prevRecipJerk = bf.RecipJerk
	}

	var exactStop float64
	if req.PathControl != PathExactStop {
		bf.Replannable = true
		exactStop = exactStopVmax
	}
	bf.CruiseVmax = bf.Length / bf.Time
	junction := junctionVmax(&p.mb.prev(bf).Unit, &bf.Unit, &p.junctionDeviation, p.junctionAcceleration)
	bf.EntryVmax = maths.Min3(bf.CruiseVmax, junction, exactStop)
	bf.DeltaVmax = bf.targetVelocity(0, bf.Length)
	bf.ExitVmax = maths.Min3(bf.CruiseVmax, bf.EntryVmax+bf.DeltaVmax, exactStop)
	bf.BrakingVelocity = bf.DeltaVmax

	p.planBlockList(bf, false)
	p.mm.position = bf.Target
	p.queueWriteBuffer(MoveTypeAline)
	return nil
}

// Dwell queues a pause of the given number of seconds.
func (p *Planner) Dwell(seconds float64) error {
	p.token.Lock()
	defer p.token.UnLock()

	bf := p.getWriteBuffer()
	if bf == nil {
		logger.Errorf("dwell %.3fs: %v", seconds, ErrBufferFull)
		return ErrBufferFull
	}
	bf.exec = p.execDwellFn
	bf.Time = seconds
	p.queueWriteBuffer(MoveTypeDwell)
	return nil
}

// QueueCommand queues fn to run in order with motion. fn runs on the
// executor side and must not call back into the planner.
func (p *Planner) QueueCommand(fn CommandFunc, i int, f float64) error {
	p.token.Lock()
	defer p.token.UnLock()

	bf := p.getWriteBuffer()
	if bf == nil {
		logger.Errorf("queue command: %v", ErrBufferFull)
		return ErrBufferFull
	}
	bf.exec = p.execCommandFn
	bf.command = fn
	bf.IntArg = i
	bf.FloatArg = f
	p.queueWriteBuffer(MoveTypeCommand)
	return nil
}

// Flush drops every queued move and the move in flight. The planning
// position is pulled back to where the runtime actually is.
func (p *Planner) Flush() {
	p.token.Lock()
	defer p.token.UnLock()

	p.arcs.AbortArc()
	p.mb.reset()
	p.mr.MoveState = MoveOff
	p.mr.SectionState = MoveOff
	p.mm.position = p.mr.Position
	p.ms.Motion = MotionStop
	p.ms.Hold = HoldOff
	p.ms.CycleStartFlag = false
	if p.ms.Cycle == CycleStarted {
		p.cycleEnd()
	}
	logger.Infof("planner flushed at %v", p.mm.position)
}

func (p *Planner) PlanPosition() [config.Axes]float64 {
	p.token.Lock()
	defer p.token.UnLock()
	return p.mm.position
}

// SetPlanPosition moves the planning origin only, as for a coordinate
// offset change.
func (p *Planner) SetPlanPosition(position [config.Axes]float64) {
	p.token.Lock()
	defer p.token.UnLock()
	p.mm.position = position
}

// SetAxesPosition sets both the planning and the runtime position.
func (p *Planner) SetAxesPosition(position [config.Axes]float64) {
	p.token.Lock()
	defer p.token.UnLock()
	p.mm.position = position
	p.mr.Position = position
}

func (p *Planner) SetAxisPosition(axis int, position float64) {
	p.token.Lock()
	defer p.token.UnLock()
	p.mm.position[axis] = position
	p.mr.Position[axis] = position
}

func (p *Planner) SetPlanLineindex(lineindex uint32) {
	p.token.Lock()
	defer p.token.UnLock()
	p.mm.lineindex = lineindex
	p.mr.Lineindex = lineindex
}

func (p *Planner) RuntimeWorkPosition(axis int) float64 {
	p.token.Lock()
	defer p.token.UnLock()
	return p.mr.Position[axis] - p.mr.WorkOffset[axis]
}

func (p *Planner) RuntimeMachinePosition(axis int) float64 {
	p.token.Lock()
	defer p.token.UnLock()
	return p.mr.Position[axis]
}

func (p *Planner) RuntimeVelocity() float64 {
	p.token.Lock()
	defer p.token.UnLock()
	return p.mr.SegmentVelocity
}

func (p *Planner) RuntimeLinenum() uint32 {
	p.token.Lock()
	defer p.token.UnLock()
	return p.mr.Linenum
}

func (p *Planner) RuntimeLineindex() uint32 {
	p.token.Lock()
	defer p.token.UnLock()
	return p.mr.Lineindex
}

// ZeroSegmentVelocity clears the reported velocity once motion has stopped.
func (p *Planner) ZeroSegmentVelocity() {
	p.token.Lock()
	defer p.token.UnLock()
	p.mr.SegmentVelocity = 0
}

// IsBusy reports whether the machine is moving: either the stepper layer
// still has work or the runtime is inside a move.
func (p *Planner) IsBusy() bool {
	p.token.Lock()
	busy := p.mr.MoveState > MoveNew
	p.token.UnLock()
	return busy || p.stepper.IsBusy()
}

func (p *Planner) BuffersAvailable() int {
	p.token.Lock()
	defer p.token.UnLock()
	return p.mb.available
}

// PoolSize is the number of planner buffers. The queue is empty when
// BuffersAvailable equals it.
func (p *Planner) PoolSize() int {
	return p.mb.size()
}

func (p *Planner) State() MachineState {
	p.token.Lock()
	defer p.token.UnLock()
	return p.ms
}

func (p *Planner) Status() Status {
	p.token.Lock()
	defer p.token.UnLock()
	st := Status{
		Linenum:          p.mr.Linenum,
		Lineindex:        p.mr.Lineindex,
		Velocity:         p.mr.SegmentVelocity,
		MachinePosition:  p.mr.Position,
		Cycle:            p.ms.Cycle,
		Motion:           p.ms.Motion,
		Hold:             p.ms.Hold,
		CycleID:          p.ms.CycleID,
		BuffersAvailable: p.mb.available,
		Segments:         p.segments.Load(),
	}
	for i := range st.WorkPosition {
		st.WorkPosition[i] = p.mr.Position[i] - p.mr.WorkOffset[i]
	}
	return st
}

// SkippedSections counts sections dropped for being shorter than one
// minimum segment.
func (p *Planner) SkippedSections() uint32 {
	return p.skipped.Load()
}

func (p *Planner) getWriteBuffer() *Buffer {
	bf := p.mb.acquireWrite()
	if bf == nil {
		return nil
	}
	p.mm.lineindex++
	bf.Lineindex = p.mm.lineindex
	return bf
}

func (p *Planner) queueWriteBuffer(mt MoveType) {
	p.mb.commit(mt)
	p.execs.RequestExecMove()
}

func (p *Planner) freeRunBuffer() {
	if p.mb.freeRun() {
		p.cycleEnd()
	}
	p.reports.RequestQueueReport()
}

func (p *Planner) cycleStart() {
	p.ms.Cycle = CycleStarted
	p.ms.CycleID = uuid.NewV4().String()
	logger.Debugw("cycle started", "cycle", p.ms.CycleID)
	p.cycles.CycleStarted(p.ms.CycleID)
}

func (p *Planner) cycleEnd() {
	id := p.ms.CycleID
	p.ms.Cycle = CycleOff
	p.ms.Motion = MotionStop
	p.ms.Hold = HoldOff
	p.ms.CycleStartFlag = false
	logger.Debugw("cycle ended", "cycle", id, "segments", p.segments.Load())
	p.reports.RequestStatusReport()
	p.cycles.CycleEnded(id)
}
