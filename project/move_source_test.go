package project

import (
	"errors"
	"io"
	"strings"
	"testing"

	"cncplan/common/config"
)

const sampleMoves = `# square
3 4 0 0 0 0 1000
3 4 0 0 0 0 1000
dwell 0.5

3 0 0 0 0 0 600 stop   # back down
`

func TestReaderSourceParses(t *testing.T) {
	src := NewReaderSource(strings.NewReader(sampleMoves), [config.Axes]float64{})
	b, err := src.Next()
	if err != nil {
		t.Fatal(err)
	}
	if b.Kind != BlockLine || b.Move.Linenum != 2 || b.Move.Target[config.AxisY] != 4 ||
		!nearlyEqual(b.Move.Minutes, 5.0/1000, 1e-15) || b.Move.PathControl != PathContinuous {
		t.Fatalf("first block %+v", b)
	}
	if b, _ = src.Next(); b.Move.Minutes != 0 {
		t.Fatalf("repeated target should be zero length: %+v", b.Move)
	}
	if b, _ = src.Next(); b.Kind != BlockDwell || b.Seconds != 0.5 {
		t.Fatalf("dwell block %+v", b)
	}
	b, _ = src.Next()
	if b.Move.Linenum != 6 || b.Move.PathControl != PathExactStop || !nearlyEqual(b.Move.Minutes, 4.0/600, 1e-15) {
		t.Fatalf("last block %+v", b.Move)
	}
	if _, err = src.Next(); !errors.Is(err, io.EOF) {
		t.Fatalf("end of file %v", err)
	}
}

func TestReaderSourceRejects(t *testing.T) {
	for _, text := range []string{
		"1 2 3",
		"1 2 3 0 0 0 0",
		"1 2 3 0 0 0 -5",
		"1 2 x 0 0 0 100",
		"1 2 3 0 0 0 100 fast",
		"dwell",
		"dwell -1",
	} {
		src := NewReaderSource(strings.NewReader(text), [config.Axes]float64{})
		if _, err := src.Next(); err == nil || errors.Is(err, io.EOF) {
			t.Fatalf("%q accepted: %v", text, err)
		}
	}
}

func TestControllerRunsMoveFile(t *testing.T) {
	p, rec := newTestPlanner(t, nil)
	c := NewController(p, NewReaderSource(strings.NewReader(sampleMoves), p.PlanPosition()), nil)
	runController(t, c, p, nil)
	if c.Dispatched() != 3 {
		t.Fatalf("dispatched %d", c.Dispatched())
	}
	if x, y := p.RuntimeMachinePosition(config.AxisX), p.RuntimeMachinePosition(config.AxisY); x != 3 || y != 0 {
		t.Fatalf("ended at %v,%v", x, y)
	}
	if rec.dwellUsec != 500000 || !nearlyEqual(rec.totals[1], 0, 1e-9) {
		t.Fatalf("dwell %v y steps %v", rec.dwellUsec, rec.totals[1])
	}
}
