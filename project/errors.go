package project

import (
	"errors"
	"fmt"

	"code.hybscloud.com/iox"
)

var (
	// ErrZeroLengthMove rejects a move with no length or no time. No buffer
	// is consumed.
	ErrZeroLengthMove = errors.New("zero length move")

	// ErrBufferFull means a write buffer was requested while none was free.
	// Callers are expected to check BuffersAvailable first, so this is fatal.
	// It still reports as iox.ErrWouldBlock for callers that back off.
	ErrBufferFull = fmt.Errorf("planner buffer pool full: %w", iox.ErrWouldBlock)

	// ErrInternal is returned when a queued buffer has no execution function.
	ErrInternal = errors.New("planner internal error")

	// ErrSegmentPrep is returned by a stepper sink that refused a segment.
	// The runtime position stays put and the next segment makes up for it.
	ErrSegmentPrep = errors.New("segment not prepared")

	ErrSignalQueueFull = fmt.Errorf("controller signal queue full: %w", iox.ErrWouldBlock)
)
