package project

import "fmt"

type BufferState uint8

const (
	BufferEmpty BufferState = iota
	BufferLoading
	BufferQueued
	BufferPending
	BufferRunning
)

type MoveType uint8

const (
	MoveTypeNone MoveType = iota
	MoveTypeAline
	MoveTypeDwell
	MoveTypeCommand
)

// MoveState is shared by buffers (Off/New/Run/Skip), runtime sections
// (Head/Body/Tail) and section sub-states (New/Run1/Run2).
type MoveState uint8

const (
	MoveOff MoveState = iota
	MoveNew
	MoveRun
	MoveRun2
	MoveHead
	MoveBody
	MoveTail
	MoveSkip
)

const MoveRun1 = MoveRun

type CycleState uint8

const (
	CycleOff CycleState = iota
	CycleStarted
)

type MotionState uint8

const (
	MotionStop MotionState = iota
	MotionRun
	MotionHold
)

type HoldState uint8

const (
	HoldOff HoldState = iota
	HoldSync
	HoldPlan
	HoldDecel
	HoldHold
)

type PathControl uint8

const (
	PathExactPath PathControl = iota
	PathExactStop
	PathContinuous
)

// ExecResult is what one invocation of a continuation reports back.
type ExecResult uint8

const (
	ExecDone ExecResult = iota
	ExecPending
	ExecSkipped
	ExecNoop
	ExecFatal
)

func (s BufferState) String() string {
	switch s {
	case BufferEmpty:
		return "empty"
	case BufferLoading:
		return "loading"
	case BufferQueued:
		return "queued"
	case BufferPending:
		return "pending"
	case BufferRunning:
		return "running"
	}
	return fmt.Sprintf("BufferState(%d)", uint8(s))
}

func (t MoveType) String() string {
	switch t {
	case MoveTypeNone:
		return "none"
	case MoveTypeAline:
		return "aline"
	case MoveTypeDwell:
		return "dwell"
	case MoveTypeCommand:
		return "command"
	}
	return fmt.Sprintf("MoveType(%d)", uint8(t))
}

func (s MoveState) String() string {
	switch s {
	case MoveOff:
		return "off"
	case MoveNew:
		return "new"
	case MoveRun:
		return "run"
	case MoveRun2:
		return "run2"
	case MoveHead:
		return "head"
	case MoveBody:
		return "body"
	case MoveTail:
		return "tail"
	case MoveSkip:
		return "skip"
	}
	return fmt.Sprintf("MoveState(%d)", uint8(s))
}

func (s CycleState) String() string {
	if s == CycleStarted {
		return "started"
	}
	return "off"
}

func (s MotionState) String() string {
	switch s {
	case MotionStop:
		return "stop"
	case MotionRun:
		return "run"
	case MotionHold:
		return "hold"
	}
	return fmt.Sprintf("MotionState(%d)", uint8(s))
}

func (s HoldState) String() string {
	switch s {
	case HoldOff:
		return "off"
	case HoldSync:
		return "sync"
	case HoldPlan:
		return "plan"
	case HoldDecel:
		return "decel"
	case HoldHold:
		return "hold"
	}
	return fmt.Sprintf("HoldState(%d)", uint8(s))
}

func (r ExecResult) String() string {
	switch r {
	case ExecDone:
		return "done"
	case ExecPending:
		return "pending"
	case ExecSkipped:
		return "skipped"
	case ExecNoop:
		return "noop"
	case ExecFatal:
		return "fatal"
	}
	return fmt.Sprintf("ExecResult(%d)", uint8(r))
}
