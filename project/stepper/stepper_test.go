package stepper

import (
	"bytes"
	"errors"
	"math"
	"testing"

	"cncplan/common/config"
	"cncplan/project"
)

type loopPort struct {
	bytes.Buffer
	closed bool
}

func (p *loopPort) Close() error {
	p.closed = true
	return nil
}

func decodeAll(t *testing.T, buf []byte) []SegmentFrame {
	t.Helper()
	var out []SegmentFrame
	for len(buf) > 0 {
		seg, rest, err := DecodeSegment(buf)
		if err != nil {
			t.Fatalf("frame %d: %v", len(out), err)
		}
		out = append(out, seg)
		buf = rest
	}
	return out
}

func TestFrameRoundTrip(t *testing.T) {
	in := SegmentFrame{Seq: 7, Kind: KindLine, Steps: []float64{1.5, -2.25, 0, 3}, Usec: 5000}
	buf, err := EncodeFrame(&in)
	if err != nil {
		t.Fatal(err)
	}
	if buf[0] != FRAME_START_1 || buf[1] != FRAME_START_2 || buf[len(buf)-1] != FRAME_END {
		t.Fatalf("framing bytes % x", buf)
	}
	if size := int(buf[2]) | int(buf[3])<<8; size != len(buf)-MIN_FRAME_SIZE {
		t.Fatalf("length field %d for %d byte frame", size, len(buf))
	}
	out, rest, err := DecodeSegment(append(buf, 0x01))
	if err != nil {
		t.Fatal(err)
	}
	if len(rest) != 1 || out.Seq != 7 || out.Kind != KindLine || out.Usec != 5000 || len(out.Steps) != 4 || out.Steps[1] != -2.25 {
		t.Fatalf("decoded %+v rest %v", out, rest)
	}
}

func TestDecodeFrameRejects(t *testing.T) {
	buf, err := EncodeFrame(&SegmentFrame{Seq: 1, Kind: KindNull})
	if err != nil {
		t.Fatal(err)
	}
	if _, rest, err := DecodeFrame(buf[:len(buf)-1]); !errors.Is(err, ErrShortFrame) || len(rest) != len(buf)-1 {
		t.Fatalf("partial frame: %v", err)
	}
	corrupt := append([]byte(nil), buf...)
	corrupt[5] ^= 0x20
	if _, _, err := DecodeFrame(corrupt); !errors.Is(err, ErrBadCRC) {
		t.Fatalf("flipped body bit: %v", err)
	}
	head := append([]byte(nil), buf...)
	head[1] = 0x00
	if _, _, err := DecodeFrame(head); !errors.Is(err, ErrBadFrame) {
		t.Fatalf("bad head: %v", err)
	}
	tail := append([]byte(nil), buf...)
	tail[len(tail)-1] = 0x00
	if _, _, err := DecodeFrame(tail); !errors.Is(err, ErrBadFrame) {
		t.Fatalf("bad end byte: %v", err)
	}
}

func TestSerialPrepRefusesWhenBacklogged(t *testing.T) {
	port := &loopPort{}
	s := NewSerialPrep(port, 2)
	if s.IsBusy() {
		t.Fatalf("new link busy")
	}
	for i := 0; i < 2; i++ {
		if err := s.PrepLine([]float64{1, 0, 0, 0}, 5000); err != nil {
			t.Fatal(err)
		}
	}
	if err := s.PrepLine([]float64{1, 0, 0, 0}, 5000); !errors.Is(err, project.ErrSegmentPrep) {
		t.Fatalf("third segment: %v", err)
	}
	if !s.IsBusy() || s.Pending() != 2 {
		t.Fatalf("pending %d", s.Pending())
	}
	if err := s.Flush(); err != nil {
		t.Fatal(err)
	}
	if s.IsBusy() {
		t.Fatalf("busy after flush")
	}
	segs := decodeAll(t, port.Bytes())
	if len(segs) != 2 || segs[0].Seq != 1 || segs[1].Seq != 2 {
		t.Fatalf("written %+v", segs)
	}
	s.PrepDwell(250000)
	s.PrepNull()
	s.Flush()
	segs = decodeAll(t, port.Bytes())
	if len(segs) != 4 || segs[2].Kind != KindDwell || segs[2].Usec != 250000 || segs[3].Kind != KindNull {
		t.Fatalf("written %+v", segs)
	}
	if err := s.Close(); err != nil || !port.closed {
		t.Fatalf("close %v", err)
	}
}

func TestSerialPrepCarriesPlannedMove(t *testing.T) {
	port := &loopPort{}
	s := NewSerialPrep(port, 1000)
	cfg := config.Defaults()
	kin := project.NewCartesianKinematics([config.Axes]float64{1, 1, 1, 1, 1, 1})
	p := project.NewPlanner(cfg, s, kin)

	var target [config.Axes]float64
	target[config.AxisX] = 10
	err := p.Aline(project.MoveRequest{Target: target, Minutes: 10.0 / 1000, Linenum: 1, PathControl: project.PathContinuous})
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 1000; i++ {
		if res, err := p.ExecMove(); res == project.ExecFatal {
			t.Fatal(err)
		}
	}
	if err := s.Flush(); err != nil {
		t.Fatal(err)
	}
	var x float64
	lines := 0
	for _, seg := range decodeAll(t, port.Bytes()) {
		if seg.Kind == KindLine {
			lines++
			x += seg.Steps[0]
		}
	}
	if lines != 134 || math.Abs(x-10) > 1e-9 {
		t.Fatalf("%d segments moved x %v", lines, x)
	}
}

func TestRecorder(t *testing.T) {
	r := NewRecorder()
	r.FailNext(1)
	if err := r.PrepLine([]float64{1, 2, 0, 0}, 100); !errors.Is(err, project.ErrSegmentPrep) {
		t.Fatalf("injected failure %v", err)
	}
	if err := r.PrepLine([]float64{1, 2, 0, 0}, 100); err != nil {
		t.Fatal(err)
	}
	r.PrepLine([]float64{0.5, 0, 0, 0}, 50)
	r.PrepDwell(10)
	r.PrepNull()
	totals := r.Totals()
	if totals[0] != 1.5 || totals[1] != 2 || len(r.Segments()) != 2 {
		t.Fatalf("totals %v", totals)
	}
	if r.MotionTime() != 150 || r.DwellTime() != 10 || r.Nulls() != 1 || r.IsBusy() {
		t.Fatalf("recorder state %v %v %v", r.MotionTime(), r.DwellTime(), r.Nulls())
	}
}
