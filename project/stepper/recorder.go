package stepper

import (
	"fmt"
	"sync"

	"cncplan/project"
)

type Segment struct {
	Steps []float64
	Usec  float64
}

// Recorder is an in-memory stepper that accumulates what it is given. It
// stands in for hardware in dry runs.
type Recorder struct {
	mu        sync.Mutex
	segments  []Segment
	totals    [project.Motors]float64
	usec      float64
	dwellUsec float64
	nulls     int
	failNext  int
}

func NewRecorder() *Recorder {
	return &Recorder{}
}

// FailNext makes the next n PrepLine calls refuse their segment.
func (self *Recorder) FailNext(n int) {
	self.mu.Lock()
	defer self.mu.Unlock()
	self.failNext = n
}

func (self *Recorder) PrepLine(steps []float64, microseconds float64) error {
	self.mu.Lock()
	defer self.mu.Unlock()
	if self.failNext > 0 {
		self.failNext--
		return fmt.Errorf("%w: injected failure", project.ErrSegmentPrep)
	}
	for i := 0; i < len(steps) && i < project.Motors; i++ {
		self.totals[i] += steps[i]
	}
	self.segments = append(self.segments, Segment{Steps: append([]float64(nil), steps...), Usec: microseconds})
	self.usec += microseconds
	return nil
}

func (self *Recorder) PrepNull() {
	self.mu.Lock()
	self.nulls++
	self.mu.Unlock()
}

func (self *Recorder) PrepDwell(microseconds float64) {
	self.mu.Lock()
	self.dwellUsec += microseconds
	self.mu.Unlock()
}

func (self *Recorder) IsBusy() bool {
	return false
}

func (self *Recorder) Segments() []Segment {
	self.mu.Lock()
	defer self.mu.Unlock()
	return append([]Segment(nil), self.segments...)
}

// Totals returns the accumulated steps per motor.
func (self *Recorder) Totals() []float64 {
	self.mu.Lock()
	defer self.mu.Unlock()
	return append([]float64(nil), self.totals[:]...)
}

// MotionTime is the summed duration of every line segment, in microseconds.
func (self *Recorder) MotionTime() float64 {
	self.mu.Lock()
	defer self.mu.Unlock()
	return self.usec
}

func (self *Recorder) DwellTime() float64 {
	self.mu.Lock()
	defer self.mu.Unlock()
	return self.dwellUsec
}

func (self *Recorder) Nulls() int {
	self.mu.Lock()
	defer self.mu.Unlock()
	return self.nulls
}
