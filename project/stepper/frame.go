/*
Segment framing for the serial stepper link

This file may be distributed under the terms of the GNU GPLv3 license.
*/
package stepper

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/sugawarayuuta/sonnet"
)

const (
	FRAME_START_1  = 0xFF
	FRAME_START_2  = 0xAA
	FRAME_END      = 0xFE
	MIN_FRAME_SIZE = 7 // start(2) + len(2) + CRC(2) + end(1)
	MAX_PAYLOAD    = 0xFFFF
)

var (
	ErrShortFrame = errors.New("stepper: short frame")
	ErrBadFrame   = errors.New("stepper: malformed frame")
	ErrBadCRC     = errors.New("stepper: crc mismatch")
)

const (
	KindLine  = "line"
	KindNull  = "null"
	KindDwell = "dwell"
)

// SegmentFrame is the payload of one frame on the wire.
type SegmentFrame struct {
	Seq   uint32    `json:"seq"`
	Kind  string    `json:"kind"`
	Steps []float64 `json:"steps,omitempty"`
	Usec  float64   `json:"usec,omitempty"`
}

func calcCRC(buf []byte) uint16 {
	var crc uint16 = 0xffff
	for i := 0; i < len(buf); i++ {
		data := uint16(buf[i])
		data ^= crc & 0xff
		data ^= (data & 0x0f) << 4
		crc = ((data << 8) | (crc >> 8)) ^ (data >> 4) ^ (data << 3)
	}
	return crc
}

// EncodeFrame marshals v and wraps it as
// start(2) | len(2, LE) | body | crc(2, LE) | end(1).
func EncodeFrame(v any) ([]byte, error) {
	body, err := sonnet.Marshal(v)
	if err != nil {
		return nil, err
	}
	if len(body) > MAX_PAYLOAD {
		return nil, fmt.Errorf("%w: payload of %d bytes", ErrBadFrame, len(body))
	}
	buf := make([]byte, 0, len(body)+MIN_FRAME_SIZE)
	buf = append(buf, FRAME_START_1, FRAME_START_2)
	buf = binary.LittleEndian.AppendUint16(buf, uint16(len(body)))
	buf = append(buf, body...)
	buf = binary.LittleEndian.AppendUint16(buf, calcCRC(body))
	buf = append(buf, FRAME_END)
	return buf, nil
}

// DecodeFrame splits the first frame off buf. It returns ErrShortFrame when
// buf does not yet hold a whole frame; rest is then buf unchanged.
func DecodeFrame(buf []byte) (body, rest []byte, err error) {
	if len(buf) < MIN_FRAME_SIZE {
		return nil, buf, ErrShortFrame
	}
	if buf[0] != FRAME_START_1 || buf[1] != FRAME_START_2 {
		return nil, buf, fmt.Errorf("%w: head bytes %#x %#x", ErrBadFrame, buf[0], buf[1])
	}
	size := int(binary.LittleEndian.Uint16(buf[2:4]))
	total := size + MIN_FRAME_SIZE
	if len(buf) < total {
		return nil, buf, ErrShortFrame
	}
	if buf[total-1] != FRAME_END {
		return nil, buf, fmt.Errorf("%w: end byte %#x", ErrBadFrame, buf[total-1])
	}
	body = buf[4 : 4+size]
	crc := binary.LittleEndian.Uint16(buf[4+size : 4+size+2])
	if crc != calcCRC(body) {
		return nil, buf, ErrBadCRC
	}
	return body, buf[total:], nil
}

// DecodeSegment decodes one SegmentFrame from the head of buf.
func DecodeSegment(buf []byte) (SegmentFrame, []byte, error) {
	var seg SegmentFrame
	body, rest, err := DecodeFrame(buf)
	if err != nil {
		return seg, rest, err
	}
	if err = sonnet.Unmarshal(body, &seg); err != nil {
		return seg, buf, fmt.Errorf("%w: %v", ErrBadFrame, err)
	}
	return seg, rest, nil
}
