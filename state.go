package magnetswipe

import (
	"fmt"
	"strings"
)

// State is the detector lifecycle state.
type State int

const (
	StateStopped State = iota
	StateStarting
	StateRunning
	StateError
)

func (s State) String() string {
	switch s {
	case StateStopped:
		return "stopped"
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StateError:
		return "error"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Code returns the numeric status code for s.
func (s State) Code() int {
	switch s {
	case StateStarting:
		return StatusStarting
	case StateRunning:
		return StatusRunning
	case StateError:
		return StatusErrorFailedToStart
	default:
		return StatusStopped
	}
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *State) UnmarshalText(b []byte) error {
	switch strings.ToLower(string(b)) {
	case "stopped":
		*s = StateStopped
	case "starting":
		*s = StateStarting
	case "running":
		*s = StateRunning
	case "error":
		*s = StateError
	default:
		return fmt.Errorf("unknown detector state: %q", string(b))
	}
	return nil
}

// Accuracy is the sensor-reported accuracy. It is recorded for diagnostics
// and has no effect on detection.
type Accuracy int

const (
	AccuracyNoContact  Accuracy = -1
	AccuracyUnreliable Accuracy = 0
	AccuracyLow        Accuracy = 1
	AccuracyMedium     Accuracy = 2
	AccuracyHigh       Accuracy = 3
)

func (a Accuracy) String() string {
	switch a {
	case AccuracyNoContact:
		return "no_contact"
	case AccuracyUnreliable:
		return "unreliable"
	case AccuracyLow:
		return "low"
	case AccuracyMedium:
		return "medium"
	case AccuracyHigh:
		return "high"
	default:
		return fmt.Sprintf("accuracy(%d)", int(a))
	}
}

func (a Accuracy) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

func (a *Accuracy) UnmarshalText(b []byte) error {
	for _, v := range []Accuracy{AccuracyNoContact, AccuracyUnreliable, AccuracyLow, AccuracyMedium, AccuracyHigh} {
		if v.String() == strings.ToLower(string(b)) {
			*a = v
			return nil
		}
	}
	return fmt.Errorf("unknown sensor accuracy: %q", string(b))
}

// Snapshot is a read-only copy of detector observables.
type Snapshot struct {
	State        State    `json:"state"`
	Code         int      `json:"code"`
	ErrorCode    int      `json:"error_code,omitempty"`
	ErrorMessage string   `json:"error_message,omitempty"`
	Triggered    bool     `json:"triggered"`
	Accuracy     Accuracy `json:"accuracy"`
	Buffered     int      `json:"buffered"`
	LastSampleAt int64    `json:"last_sample_at"`
	Triggers     uint64   `json:"triggers"`
}
