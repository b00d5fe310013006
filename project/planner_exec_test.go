package project

import (
	"testing"

	"cncplan/common/config"
)

func TestExecSingleMoveLandsOnEndpoint(t *testing.T) {
	for _, segmentMath := range []string{config.SegmentMathForwardDiff, config.SegmentMathClosedForm} {
		cfg := config.Defaults()
		cfg.SegmentMath = segmentMath
		p, rec := newTestPlanner(t, cfg)
		mustAline(t, p, lineTo(p, 10, 0, 1000, 1))
		drain(t, p)

		if x := p.RuntimeMachinePosition(config.AxisX); x != 10 {
			t.Fatalf("%s: runtime x = %v, want exactly 10", segmentMath, x)
		}
		if !nearlyEqual(rec.totals[0], 10, 1e-9) || !nearlyEqual(rec.totals[1], 0, 1e-12) {
			t.Fatalf("%s: steps %v", segmentMath, rec.totals)
		}
		// 12 head + 110 body + 12 tail segments
		if n := len(rec.lines); n != 134 {
			t.Fatalf("%s: %d segments", segmentMath, n)
		}
		for i, us := range rec.usec {
			if us < cfg.MinSegmentUsec {
				t.Fatalf("%s: segment %d is %vus", segmentMath, i, us)
			}
		}
		st := p.State()
		if st.Cycle != CycleOff || st.Motion != MotionStop {
			t.Fatalf("%s: state after drain %+v", segmentMath, st)
		}
	}
}

func TestExecVelocityProfile(t *testing.T) {
	p, rec := newTestPlanner(t, nil)
	mustAline(t, p, lineTo(p, 10, 0, 1000, 1))
	drain(t, p)

	// segment lengths rise through the head, hold in the body and fall in
	// the tail
	peak := 0.0
	for _, s := range rec.lines {
		if s[0] < -1e-12 {
			t.Fatalf("segment moved backwards: %v", s[0])
		}
		if s[0] > peak {
			peak = s[0]
		}
	}
	for i := 1; i < 12; i++ {
		if rec.lines[i][0] <= rec.lines[i-1][0] {
			t.Fatalf("head segment %d not accelerating", i)
		}
	}
	n := len(rec.lines)
	for i := n - 11; i < n; i++ {
		if rec.lines[i][0] >= rec.lines[i-1][0] {
			t.Fatalf("tail segment %d not decelerating", i)
		}
	}
	// a 5000us body segment at 1000mm/min
	if !nearlyEqual(peak, 1000*5000/60000000.0, 1e-3) {
		t.Fatalf("peak segment %v", peak)
	}
}

func TestExecReportsRuntimeWhileMoving(t *testing.T) {
	p, _ := newTestPlanner(t, nil)
	req := lineTo(p, 10, 0, 1000, 42)
	req.WorkOffset[config.AxisX] = 2
	mustAline(t, p, req)

	for i := 0; i < 20; i++ {
		if res, _ := p.ExecMove(); res != ExecPending {
			t.Fatalf("step %d: %v", i, res)
		}
	}
	if p.RuntimeLinenum() != 42 || p.RuntimeLineindex() != 1 {
		t.Fatalf("line %d index %d", p.RuntimeLinenum(), p.RuntimeLineindex())
	}
	if v := p.RuntimeVelocity(); !nearlyEqual(v, 1000, 1e-9) {
		t.Fatalf("body velocity %v", v)
	}
	if !p.IsBusy() {
		t.Fatalf("planner not busy mid move")
	}
	x := p.RuntimeMachinePosition(config.AxisX)
	if w := p.RuntimeWorkPosition(config.AxisX); !nearlyEqual(w, x-2, 1e-12) {
		t.Fatalf("work %v machine %v", w, x)
	}
	st := p.Status()
	if st.Motion != MotionRun || st.Cycle != CycleStarted || st.CycleID == "" || st.Segments != 20 {
		t.Fatalf("status %+v", st)
	}
}

func TestExecRefusedSegmentKeepsPosition(t *testing.T) {
	p, rec := newTestPlanner(t, nil)
	mustAline(t, p, lineTo(p, 10, 0, 1000, 1))
	p.ExecMove()
	before := p.RuntimeMachinePosition(config.AxisX)
	rec.refuse = 1
	p.ExecMove()
	if x := p.RuntimeMachinePosition(config.AxisX); x != before {
		t.Fatalf("refused segment moved runtime from %v to %v", before, x)
	}
	drain(t, p)
	if x := p.RuntimeMachinePosition(config.AxisX); x != 10 {
		t.Fatalf("x = %v after refused segment", x)
	}
	if !nearlyEqual(rec.totals[0], 10, 1e-9) {
		t.Fatalf("steps %v", rec.totals[0])
	}
}

func TestExecSkipsTooShortMove(t *testing.T) {
	p, _ := newTestPlanner(t, nil)
	// slow enough to be a valid move, too short for one segment
	mustAline(t, p, lineTo(p, 0.0001, 0, 5, 1))
	mustAline(t, p, lineTo(p, 10, 0, 1000, 2))
	drain(t, p)
	if p.SkippedSections() == 0 {
		t.Fatalf("short move was not skipped")
	}
	if x := p.RuntimeMachinePosition(config.AxisX); x != 10 {
		t.Fatalf("x = %v", x)
	}
}

func TestExecDwell(t *testing.T) {
	p, rec := newTestPlanner(t, nil)
	if err := p.Dwell(1.5); err != nil {
		t.Fatal(err)
	}
	if res, err := p.ExecMove(); res != ExecDone || err != nil {
		t.Fatalf("dwell exec %v %v", res, err)
	}
	if rec.dwellUsec != 1500000 {
		t.Fatalf("dwell %vus", rec.dwellUsec)
	}
	if p.BuffersAvailable() != config.Defaults().PoolSize {
		t.Fatalf("dwell buffer not released")
	}
	if p.State().Cycle != CycleOff {
		t.Fatalf("cycle still running after the only dwell")
	}
}

func TestExecCommandRunsInOrder(t *testing.T) {
	p, rec := newTestPlanner(t, nil)
	mustAline(t, p, lineTo(p, 5, 0, 1000, 1))
	var gotI int
	var gotF, gotX float64
	err := p.QueueCommand(func(i int, f float64) {
		gotI, gotF = i, f
		gotX = p.mr.Position[config.AxisX]
	}, 7, 2.5)
	if err != nil {
		t.Fatal(err)
	}
	mustAline(t, p, lineTo(p, 10, 0, 1000, 2))
	drain(t, p)
	if gotI != 7 || gotF != 2.5 {
		t.Fatalf("command args %d %v", gotI, gotF)
	}
	if gotX != 5 {
		t.Fatalf("command ran at x=%v, want after the first move", gotX)
	}
	if rec.nulls != 1 {
		t.Fatalf("null segments %d", rec.nulls)
	}
}

func TestExecIdleWithoutWork(t *testing.T) {
	p, _ := newTestPlanner(t, nil)
	if res, err := p.ExecMove(); res != ExecNoop || err != nil {
		t.Fatalf("empty exec %v %v", res, err)
	}
	if p.State().Cycle != CycleOff {
		t.Fatalf("empty exec started a cycle")
	}
}

func TestExecBacksOffWhileTokenHeld(t *testing.T) {
	p, rec := newTestPlanner(t, nil)
	mustAline(t, p, lineTo(p, 10, 0, 1000, 1))
	p.token.Lock()
	res, err := p.ExecMove()
	p.token.UnLock()
	if res != ExecNoop || err != nil || len(rec.lines) != 0 {
		t.Fatalf("exec with token held: %v %v, %d segments", res, err, len(rec.lines))
	}
}

func TestExecMissingExecIsFatal(t *testing.T) {
	p, _ := newTestPlanner(t, nil)
	if err := p.Dwell(1); err != nil {
		t.Fatal(err)
	}
	p.mb.at(0).exec = nil
	if res, err := p.ExecMove(); res != ExecFatal || err != ErrInternal {
		t.Fatalf("got %v %v", res, err)
	}
}
