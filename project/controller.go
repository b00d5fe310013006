/*
Main loop dispatcher for the motion core

This file may be distributed under the terms of the GNU GPLv3 license.
*/
package project

import (
	"errors"
	"io"

	"cncplan/common/logger"

	"code.hybscloud.com/atomix"
	"code.hybscloud.com/iox"
	"code.hybscloud.com/lfq"
)

// Signal is an asynchronous request from outside the main loop.
type Signal uint8

const (
	SignalFeedhold Signal = iota + 1
	SignalCycleStart
	SignalFlush
)

func (s Signal) String() string {
	switch s {
	case SignalFeedhold:
		return "feedhold"
	case SignalCycleStart:
		return "cycle_start"
	case SignalFlush:
		return "flush"
	}
	return "unknown"
}

type BlockKind uint8

const (
	BlockLine BlockKind = iota
	BlockDwell
	BlockCommand
)

// Block is one upstream instruction for the planner queue.
type Block struct {
	Kind     BlockKind
	Move     MoveRequest
	Seconds  float64
	Command  CommandFunc
	IntArg   int
	FloatArg float64
}

// MoveSource feeds the controller. Next returns iox.ErrWouldBlock when no
// block is ready yet and io.EOF once the source is exhausted.
type MoveSource interface {
	Next() (Block, error)
}

type StatusSource interface {
	Status() Status
}

// ReportCallbacks emit pending reports from the main loop.
type ReportCallbacks interface {
	StatusReportCallback(src StatusSource) ExecResult
	QueueReportCallback(src StatusSource) ExecResult
}

// syncBuffers is the number of free buffers the controller keeps in hand
// before it reads another block.
const syncBuffers = 3

type signalQueue interface {
	Enqueue(s *Signal) error
	Dequeue() (Signal, error)
}

type Controller struct {
	planner *Planner
	source  MoveSource
	reports ReportCallbacks
	signals signalQueue
	eof     bool

	dropped    atomix.Uint32
	dispatched atomix.Uint32
}

func NewController(planner *Planner, source MoveSource, reports ReportCallbacks) *Controller {
	return &Controller{
		planner: planner,
		source:  source,
		reports: reports,
		signals: lfq.NewMPSC[Signal](64),
	}
}

// Signal queues an asynchronous request. Safe from any goroutine.
func (c *Controller) Signal(s Signal) error {
	if err := c.signals.Enqueue(&s); err != nil {
		c.dropped.Add(1)
		logger.Warnf("signal %s dropped: %v", s, err)
		return ErrSignalQueueFull
	}
	return nil
}

// Dispatched counts blocks handed to the planner.
func (c *Controller) Dispatched() uint32 {
	return c.dispatched.Load()
}

// Drained reports whether the source is exhausted.
func (c *Controller) Drained() bool {
	return c.eof
}

// Tick runs one pass of the main loop. Each stage may end the pass early
// with ExecPending, the next call starts over from the top.
func (c *Controller) Tick() (ExecResult, error) {
	if c.handleSignals() == ExecPending {
		return ExecPending, nil
	}
	if c.reports != nil {
		if c.reports.StatusReportCallback(c.planner) == ExecPending {
			return ExecPending, nil
		}
		if c.reports.QueueReportCallback(c.planner) == ExecPending {
			return ExecPending, nil
		}
	}
	if c.planner.PlanHoldCallback() == ExecPending {
		return ExecPending, nil
	}
	if c.planner.EndHoldCallback() == ExecPending {
		return ExecPending, nil
	}
	if c.planner.BuffersAvailable() < syncBuffers {
		return ExecPending, nil
	}
	return c.dispatch()
}

// handleSignals applies at most one queued signal per pass.
func (c *Controller) handleSignals() ExecResult {
	s, err := c.signals.Dequeue()
	if err != nil {
		return ExecNoop
	}
	logger.Debugf("signal %s", s)
	switch s {
	case SignalFeedhold:
		c.planner.Feedhold()
	case SignalCycleStart:
		c.planner.CycleStart()
	case SignalFlush:
		c.planner.Flush()
	}
	return ExecPending
}

func (c *Controller) dispatch() (ExecResult, error) {
	if c.eof || c.source == nil {
		return ExecNoop, nil
	}
	b, err := c.source.Next()
	switch {
	case errors.Is(err, io.EOF):
		c.eof = true
		return ExecNoop, nil
	case errors.Is(err, iox.ErrWouldBlock):
		return ExecNoop, nil
	case err != nil:
		return ExecFatal, err
	}

	switch b.Kind {
	case BlockLine:
		err = c.planner.Aline(b.Move)
	case BlockDwell:
		err = c.planner.Dwell(b.Seconds)
	case BlockCommand:
		err = c.planner.QueueCommand(b.Command, b.IntArg, b.FloatArg)
	}
	switch {
	case errors.Is(err, ErrZeroLengthMove):
		logger.Debugf("line %d: %v", b.Move.Linenum, err)
		return ExecSkipped, nil
	case err != nil:
		return ExecFatal, err
	}
	c.dispatched.Add(1)
	return ExecDone, nil
}
