package main

import (
	"bytes"
	"encoding/binary"
	"errors"

	"magnetswipe"
)

// Linux input event constants used by magnetometer drivers that expose the
// field through the input subsystem.
const (
	EV_SYN = 0x00
	EV_ABS = 0x03

	SYN_REPORT  = 0x00
	SYN_DROPPED = 0x03

	ABS_X = 0x00
	ABS_Y = 0x01
	ABS_Z = 0x02
)

// inputEvent represents a Linux input event structure
// struct input_event { struct timeval time; __u16 type; __u16 code; __s32 value; };
type inputEvent struct {
	Sec   int64
	Usec  int64
	Type  uint16
	Code  uint16
	Value int32
}

var inputEventSize = binary.Size(inputEvent{})

var errShortEvent = errors.New("short input event")

// decodeInputEvents parses every complete input_event in buf and returns the
// number of bytes consumed.
func decodeInputEvents(buf []byte, out []inputEvent) ([]inputEvent, int, error) {
	n := len(buf) / inputEventSize
	if n == 0 {
		return out, 0, errShortEvent
	}
	reader := bytes.NewReader(buf[:n*inputEventSize])
	for i := 0; i < n; i++ {
		var ev inputEvent
		if err := binary.Read(reader, binary.LittleEndian, &ev); err != nil {
			return out, i * inputEventSize, err
		}
		out = append(out, ev)
	}
	return out, n * inputEventSize, nil
}

// evdevFrame assembles EV_ABS X/Y/Z updates into vectors at each SYN_REPORT.
// Axes not updated since the previous report keep their last value, as the
// kernel only reports changes.
type evdevFrame struct {
	scale float32

	axes    [3]int32
	seen    [3]bool
	dirty   bool
	dropped bool
}

func newEvdevFrame(scale float32) *evdevFrame {
	if scale == 0 {
		scale = 1
	}
	return &evdevFrame{scale: scale}
}

// feed consumes one event. It returns a sample when ev completes a frame that
// carried at least one axis update and every axis has been seen at least once.
// resync reports a SYN_DROPPED; the partial frame is discarded and nothing is
// emitted until the next SYN_REPORT.
func (f *evdevFrame) feed(ev inputEvent) (s magnetswipe.Sample, ok bool, resync bool) {
	switch ev.Type {
	case EV_ABS:
		if f.dropped {
			return s, false, false
		}
		switch ev.Code {
		case ABS_X, ABS_Y, ABS_Z:
			f.axes[ev.Code] = ev.Value
			f.seen[ev.Code] = true
			f.dirty = true
		}

	case EV_SYN:
		switch ev.Code {
		case SYN_DROPPED:
			f.dropped = true
			f.dirty = false
			return s, false, true

		case SYN_REPORT:
			if f.dropped {
				f.dropped = false
				return s, false, false
			}
			if !f.dirty || !f.seen[0] || !f.seen[1] || !f.seen[2] {
				return s, false, false
			}
			f.dirty = false
			s = magnetswipe.Sample{
				Vector: magnetswipe.Vector3{
					X: float32(f.axes[0]) * f.scale,
					Y: float32(f.axes[1]) * f.scale,
					Z: float32(f.axes[2]) * f.scale,
				},
				Timestamp: ev.Sec*1_000_000_000 + ev.Usec*1_000,
			}
			return s, true, false
		}
	}
	return s, false, false
}
