package project

import (
	"math"
	"testing"

	"cncplan/common/config"
	"cncplan/common/utils/maths"
)

func nearlyEqual(a, b, tol float64) bool {
	return math.Abs(a-b) <= tol
}

// prepRecorder stands in for the stepper layer and keeps every segment.
type prepRecorder struct {
	lines     [][]float64
	usec      []float64
	totals    [Motors]float64
	nulls     int
	dwellUsec float64
	busy      bool
	refuse    int
}

func (r *prepRecorder) PrepLine(steps []float64, microseconds float64) error {
	if r.refuse > 0 {
		r.refuse--
		return ErrSegmentPrep
	}
	r.lines = append(r.lines, append([]float64(nil), steps...))
	r.usec = append(r.usec, microseconds)
	for i, s := range steps {
		r.totals[i] += s
	}
	return nil
}

func (r *prepRecorder) PrepNull() {
	r.nulls++
}

func (r *prepRecorder) PrepDwell(microseconds float64) {
	r.dwellUsec += microseconds
}

func (r *prepRecorder) IsBusy() bool {
	return r.busy
}

type countingRequester struct {
	execs, status, queue int
	started, ended       []string
}

func (c *countingRequester) RequestExecMove()        { c.execs++ }
func (c *countingRequester) RequestStatusReport()    { c.status++ }
func (c *countingRequester) RequestQueueReport()     { c.queue++ }
func (c *countingRequester) CycleStarted(id string)  { c.started = append(c.started, id) }
func (c *countingRequester) CycleEnded(id string)    { c.ended = append(c.ended, id) }

var unitSteps = [config.Axes]float64{1, 1, 1, 1, 1, 1}

func newTestPlanner(t *testing.T, cfg *config.MachineConfig) (*Planner, *prepRecorder) {
	t.Helper()
	if cfg == nil {
		cfg = config.Defaults()
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("test config: %v", err)
	}
	rec := &prepRecorder{}
	return NewPlanner(cfg, rec, NewCartesianKinematics(unitSteps)), rec
}

// lineTo builds a move to x,y at feed mm/min from the planning position.
func lineTo(p *Planner, x, y, feed float64, linenum uint32) MoveRequest {
	from := p.PlanPosition()
	target := from
	target[config.AxisX] = x
	target[config.AxisY] = y
	length := maths.AxisVectorLength(target[:], from[:])
	return MoveRequest{
		Target:      target,
		Minutes:     length / feed,
		Linenum:     linenum,
		PathControl: PathContinuous,
	}
}

func mustAline(t *testing.T, p *Planner, req MoveRequest) {
	t.Helper()
	if err := p.Aline(req); err != nil {
		t.Fatalf("aline line %d: %v", req.Linenum, err)
	}
}

// drain runs the executor until nothing is left to run.
func drain(t *testing.T, p *Planner) int {
	t.Helper()
	for i := 0; i < 200000; i++ {
		res, err := p.ExecMove()
		if err != nil || res == ExecFatal {
			t.Fatalf("exec failed: %v %v", res, err)
		}
		if p.mb.getRun() == nil {
			return i + 1
		}
	}
	t.Fatalf("executor did not drain")
	return 0
}

func runtimeRemaining(p *Planner) float64 {
	return maths.AxisVectorLength(p.mr.Endpoint[:], p.mr.Position[:])
}
