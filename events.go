package magnetswipe

import (
	"encoding/json"
	"fmt"
)

// Event is an outcome emitted by the detector to its EventSink.
//
// Every event asks the bridge to keep its callback channel open: the detector
// is a long-lived subscription, not a one-shot request.
type Event interface {
	KeepCallback() bool
	eventMarker()
}

// TriggerEvent reports a detected magnet swipe.
type TriggerEvent struct{}

func (TriggerEvent) KeepCallback() bool { return true }
func (TriggerEvent) eventMarker()       {}

// ErrorEvent reports a failure to start. Code is one of the Status* values.
type ErrorEvent struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (ErrorEvent) KeepCallback() bool { return true }
func (ErrorEvent) eventMarker()       {}

func (e ErrorEvent) Error() string {
	return fmt.Sprintf("magnet sensor error %d: %s", e.Code, e.Message)
}

// Event type discriminators used on the wire.
const (
	EventTypeTrigger = "trigger"
	EventTypeError   = "error"
)

// EventEnvelope wraps an event with a type discriminator for JSON.
type EventEnvelope struct {
	Type         string          `json:"type"`
	KeepCallback bool            `json:"keep_callback"`
	Data         json.RawMessage `json:"data,omitempty"`
}

// EventType returns the wire discriminator for e.
func EventType(e Event) (string, error) {
	switch e.(type) {
	case TriggerEvent:
		return EventTypeTrigger, nil
	case ErrorEvent:
		return EventTypeError, nil
	default:
		return "", fmt.Errorf("unsupported event type: %T", e)
	}
}

// MarshalEvent serializes an Event into a JSON envelope.
func MarshalEvent(e Event) ([]byte, error) {
	typ, err := EventType(e)
	if err != nil {
		return nil, err
	}
	env := EventEnvelope{Type: typ, KeepCallback: e.KeepCallback()}

	if ee, ok := e.(ErrorEvent); ok {
		data, err := json.Marshal(ee)
		if err != nil {
			return nil, fmt.Errorf("marshal ErrorEvent: %w", err)
		}
		env.Data = data
	}

	return json.Marshal(env)
}

// UnmarshalEvent deserializes a JSON envelope into a concrete Event.
func UnmarshalEvent(data []byte) (Event, error) {
	var env EventEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("unmarshal envelope: %w", err)
	}

	switch env.Type {
	case EventTypeTrigger:
		return TriggerEvent{}, nil

	case EventTypeError:
		var e ErrorEvent
		if err := json.Unmarshal(env.Data, &e); err != nil {
			return nil, fmt.Errorf("unmarshal ErrorEvent: %w", err)
		}
		return e, nil

	default:
		return nil, fmt.Errorf("unknown event type: %q", env.Type)
	}
}
