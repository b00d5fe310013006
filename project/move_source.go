/*
Move file reader

This file may be distributed under the terms of the GNU GPLv3 license.
*/
package project

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"cncplan/common/config"
	"cncplan/common/utils/maths"

	"github.com/google/shlex"
)

// ReaderSource parses a move file into blocks. Each non-empty line is one of
//
//	X Y Z A B C F [stop|path]   absolute target in mm, feed in mm/min
//	dwell SECONDS
//
// Text after '#' is a comment.
type ReaderSource struct {
	scanner  *bufio.Scanner
	position [config.Axes]float64
	line     uint32
}

func NewReaderSource(r io.Reader, start [config.Axes]float64) *ReaderSource {
	return &ReaderSource{scanner: bufio.NewScanner(r), position: start}
}

func (s *ReaderSource) Next() (Block, error) {
	for s.scanner.Scan() {
		s.line++
		fields, err := shlex.Split(s.scanner.Text())
		if err != nil {
			return Block{}, fmt.Errorf("line %d: %w", s.line, err)
		}
		if len(fields) == 0 {
			continue
		}
		return s.parse(fields)
	}
	if err := s.scanner.Err(); err != nil {
		return Block{}, err
	}
	return Block{}, io.EOF
}

func (s *ReaderSource) parse(fields []string) (Block, error) {
	if strings.EqualFold(fields[0], "dwell") {
		if len(fields) != 2 {
			return Block{}, fmt.Errorf("line %d: dwell takes one argument", s.line)
		}
		sec, err := strconv.ParseFloat(fields[1], 64)
		if err != nil || sec < 0 {
			return Block{}, fmt.Errorf("line %d: bad dwell %q", s.line, fields[1])
		}
		return Block{Kind: BlockDwell, Seconds: sec}, nil
	}

	if len(fields) < config.Axes+1 || len(fields) > config.Axes+2 {
		return Block{}, fmt.Errorf("line %d: want %d coordinates and a feed, got %d fields", s.line, config.Axes, len(fields))
	}
	var nums [config.Axes + 1]float64
	for i := range nums {
		v, err := strconv.ParseFloat(fields[i], 64)
		if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
			return Block{}, fmt.Errorf("line %d: bad number %q", s.line, fields[i])
		}
		nums[i] = v
	}
	feed := nums[config.Axes]
	if feed <= 0 {
		return Block{}, fmt.Errorf("line %d: feed must be positive", s.line)
	}
	control := PathContinuous
	if len(fields) == config.Axes+2 {
		switch strings.ToLower(fields[config.Axes+1]) {
		case "stop":
			control = PathExactStop
		case "path":
			control = PathExactPath
		default:
			return Block{}, fmt.Errorf("line %d: unknown path control %q", s.line, fields[config.Axes+1])
		}
	}

	var target [config.Axes]float64
	copy(target[:], nums[:config.Axes])
	length := maths.AxisVectorLength(target[:], s.position[:])
	s.position = target
	return Block{Kind: BlockLine, Move: MoveRequest{
		Target:      target,
		Minutes:     length / feed,
		Linenum:     s.line,
		PathControl: control,
	}}, nil
}
