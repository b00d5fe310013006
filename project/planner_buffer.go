/*
Planner buffer pool: a fixed ring of move buffers with write, queue and
run cursors

This file may be distributed under the terms of the GNU GPLv3 license.
*/
package project

import (
	"cncplan/common/config"
)

type execFunc func(bf *Buffer) (ExecResult, error)

// Buffer is one planned move. Slots are linked by index into the pool ring,
// the links never change after the pool is built.
type Buffer struct {
	index int
	pv    int
	nx    int

	exec     execFunc
	command  CommandFunc
	IntArg   int
	FloatArg float64

	BufferState BufferState
	MoveType    MoveType
	MoveState   MoveState
	Replannable bool

	Target     [config.Axes]float64
	Unit       [config.Axes]float64
	WorkOffset [config.Axes]float64

	Linenum   uint32
	Lineindex uint32

	Time    float64
	MinTime float64
	Length  float64

	Jerk      float64
	RecipJerk float64
	CbrtJerk  float64

	EntryVelocity  float64
	CruiseVelocity float64
	ExitVelocity   float64

	EntryVmax       float64
	CruiseVmax      float64
	ExitVmax        float64
	DeltaVmax       float64
	BrakingVelocity float64

	HeadLength float64
	BodyLength float64
	TailLength float64
}

func (bf *Buffer) Index() int {
	return bf.index
}

// clear zeroes the move data but keeps the ring links.
func (bf *Buffer) clear() {
	index, pv, nx := bf.index, bf.pv, bf.nx
	*bf = Buffer{}
	bf.index, bf.pv, bf.nx = index, pv, nx
}

// copyFrom copies every field of src except the ring links.
func (bf *Buffer) copyFrom(src *Buffer) {
	index, pv, nx := bf.index, bf.pv, bf.nx
	*bf = *src
	bf.index, bf.pv, bf.nx = index, pv, nx
}

type bufferPool struct {
	buffers   []Buffer
	w         int
	q         int
	r         int
	available int
}

func newBufferPool(size int) *bufferPool {
	mb := &bufferPool{buffers: make([]Buffer, size)}
	mb.reset()
	return mb
}

// reset empties every slot and rewinds the cursors.
func (mb *bufferPool) reset() {
	n := len(mb.buffers)
	for i := range mb.buffers {
		mb.buffers[i] = Buffer{index: i, pv: (i + n - 1) % n, nx: (i + 1) % n}
	}
	mb.w, mb.q, mb.r = 0, 0, 0
	mb.available = n
}

func (mb *bufferPool) size() int {
	return len(mb.buffers)
}

func (mb *bufferPool) at(i int) *Buffer {
	return &mb.buffers[i]
}

func (mb *bufferPool) next(bf *Buffer) *Buffer {
	return &mb.buffers[bf.nx]
}

func (mb *bufferPool) prev(bf *Buffer) *Buffer {
	return &mb.buffers[bf.pv]
}

// acquireWrite hands out the slot under the write cursor. The slot is
// cleared and marked loading. Nil when the pool is full.
func (mb *bufferPool) acquireWrite() *Buffer {
	w := &mb.buffers[mb.w]
	if w.BufferState != BufferEmpty {
		return nil
	}
	w.clear()
	w.BufferState = BufferLoading
	mb.available--
	mb.w = w.nx
	return w
}

// commit moves the slot under the queue cursor to queued. A buffer already
// planned as too short to run keeps its skip state.
func (mb *bufferPool) commit(mt MoveType) *Buffer {
	q := &mb.buffers[mb.q]
	q.MoveType = mt
	if q.MoveState != MoveSkip {
		q.MoveState = MoveNew
	}
	q.BufferState = BufferQueued
	mb.q = q.nx
	return q
}

// getRun returns the run buffer, promoting it to running if it was queued
// or pending. Nil when nothing is queued.
func (mb *bufferPool) getRun() *Buffer {
	r := &mb.buffers[mb.r]
	if r.BufferState == BufferQueued || r.BufferState == BufferPending {
		r.BufferState = BufferRunning
	}
	if r.BufferState == BufferRunning {
		return r
	}
	return nil
}

// freeRun releases the run buffer and advances the run cursor. It reports
// whether the queue is now drained.
func (mb *bufferPool) freeRun() bool {
	r := &mb.buffers[mb.r]
	r.clear()
	mb.r = r.nx
	if mb.buffers[mb.r].BufferState == BufferQueued {
		mb.buffers[mb.r].BufferState = BufferPending
	}
	mb.available++
	return mb.w == mb.r
}

// first is the start of the planning list, the run buffer.
func (mb *bufferPool) first() *Buffer {
	return mb.getRun()
}

// last walks forward from the run buffer to the last occupied slot.
func (mb *bufferPool) last() *Buffer {
	bf := mb.first()
	if bf == nil {
		return nil
	}
	start := bf
	for {
		nx := mb.next(bf)
		if nx.MoveState == MoveOff || nx == start {
			return bf
		}
		bf = nx
	}
}

// queued reports whether slot bf holds a move not yet released.
func (mb *bufferPool) queued(bf *Buffer) bool {
	return bf.BufferState == BufferQueued || bf.BufferState == BufferPending ||
		bf.BufferState == BufferRunning
}
