/*
Serial stepper link

This file may be distributed under the terms of the GNU GPLv3 license.
*/
package stepper

import (
	"context"
	"fmt"
	"io"
	"time"

	"cncplan/common/logger"
	"cncplan/project"
	"cncplan/project/queue"

	"github.com/tarm/serial"
)

const (
	OPEN_SERIAL_DEV_ERROR  = "Unable to open serial port"
	UNABLE_TO_COMMUN_ERROR = "Unable to communicate with the stepper board"
)

// SerialPrep frames prepared segments and streams them to a stepper board.
// Frames are queued by the planner's executor and written by Flush, so the
// executor never blocks on the port.
type SerialPrep struct {
	name       string
	port       io.ReadWriteCloser
	queue      *queue.Queue[[]byte]
	maxPending int
	seq        uint32
}

// OpenSerialPrep opens the named port. maxPending bounds the number of
// frames waiting for the writer; past that PrepLine refuses segments.
func OpenSerialPrep(name string, baud int, maxPending int) (*SerialPrep, error) {
	cfg := &serial.Config{Name: name, Baud: baud, ReadTimeout: time.Microsecond * 900}
	port, err := serial.OpenPort(cfg)
	if err != nil {
		logger.Errorf("%s %s: %s", OPEN_SERIAL_DEV_ERROR, name, err)
		return nil, fmt.Errorf("%s %s: %w", OPEN_SERIAL_DEV_ERROR, name, err)
	}
	self := NewSerialPrep(port, maxPending)
	self.name = name
	return self, nil
}

func NewSerialPrep(port io.ReadWriteCloser, maxPending int) *SerialPrep {
	if maxPending <= 0 {
		maxPending = 1
	}
	return &SerialPrep{
		name:       "stepper",
		port:       port,
		queue:      queue.NewQueue[[]byte](),
		maxPending: maxPending,
	}
}

func (self *SerialPrep) push(seg SegmentFrame) error {
	self.seq++
	seg.Seq = self.seq
	buf, err := EncodeFrame(&seg)
	if err != nil {
		return err
	}
	self.queue.PutNowait(buf)
	return nil
}

func (self *SerialPrep) PrepLine(steps []float64, microseconds float64) error {
	if n := self.queue.Len(); n >= self.maxPending {
		return fmt.Errorf("%w: %d frames pending on %s", project.ErrSegmentPrep, n, self.name)
	}
	seg := SegmentFrame{Kind: KindLine, Steps: append([]float64(nil), steps...), Usec: microseconds}
	if err := self.push(seg); err != nil {
		return fmt.Errorf("%w: %v", project.ErrSegmentPrep, err)
	}
	return nil
}

func (self *SerialPrep) PrepNull() {
	if err := self.push(SegmentFrame{Kind: KindNull}); err != nil {
		logger.Errorf("null frame for %s: %v", self.name, err)
	}
}

func (self *SerialPrep) PrepDwell(microseconds float64) {
	if err := self.push(SegmentFrame{Kind: KindDwell, Usec: microseconds}); err != nil {
		logger.Errorf("dwell frame for %s: %v", self.name, err)
	}
}

func (self *SerialPrep) IsBusy() bool {
	return !self.queue.IsEmpty()
}

func (self *SerialPrep) Pending() int {
	return self.queue.Len()
}

// Flush writes every queued frame to the port.
func (self *SerialPrep) Flush() error {
	for {
		buf, ok := self.queue.GetNowait()
		if !ok {
			return nil
		}
		if _, err := self.port.Write(buf); err != nil {
			return fmt.Errorf("%s %v", UNABLE_TO_COMMUN_ERROR, err)
		}
	}
}

// Run flushes the queue every period until ctx is done or a write fails.
func (self *SerialPrep) Run(ctx context.Context, period time.Duration) error {
	ticker := time.NewTicker(period)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			self.Flush()
			return ctx.Err()
		case <-ticker.C:
			if err := self.Flush(); err != nil {
				logger.Errorf("%s: %v", self.name, err)
				return err
			}
		}
	}
}

func (self *SerialPrep) Close() error {
	return self.port.Close()
}
