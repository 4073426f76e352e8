package magnetswipe

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarshalEvent_Trigger(t *testing.T) {
	data, err := MarshalEvent(TriggerEvent{})
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"trigger","keep_callback":true}`, string(data))

	ev, err := UnmarshalEvent(data)
	require.NoError(t, err)
	assert.Equal(t, TriggerEvent{}, ev)
}

func TestMarshalEvent_Error(t *testing.T) {
	in := ErrorEvent{Code: StatusErrorFailedToStart, Message: msgStartTimeout}
	data, err := MarshalEvent(in)
	require.NoError(t, err)

	var env EventEnvelope
	require.NoError(t, json.Unmarshal(data, &env))
	assert.Equal(t, EventTypeError, env.Type)
	assert.True(t, env.KeepCallback)
	assert.JSONEq(t, `{"code":3,"message":"Magnetometer could not be started."}`, string(env.Data))

	out, err := UnmarshalEvent(data)
	require.NoError(t, err)
	assert.Equal(t, in, out)
}

func TestUnmarshalEvent_Unknown(t *testing.T) {
	_, err := UnmarshalEvent([]byte(`{"type":"wobble"}`))
	assert.ErrorContains(t, err, "unknown event type")

	_, err = UnmarshalEvent([]byte(`not json`))
	assert.Error(t, err)
}

func TestEvents_KeepCallback(t *testing.T) {
	for _, ev := range []Event{TriggerEvent{}, ErrorEvent{}} {
		assert.True(t, ev.KeepCallback(), "%T", ev)
	}
}

func TestErrorEvent_Error(t *testing.T) {
	err := error(ErrorEvent{Code: 3, Message: "boom"})
	assert.Equal(t, "magnet sensor error 3: boom", err.Error())
}

func TestSnapshot_JSON(t *testing.T) {
	snap := Snapshot{
		State:        StateError,
		Code:         StatusErrorFailedToStart,
		ErrorCode:    StatusErrorFailedToStart,
		ErrorMessage: msgNoSensors,
		Accuracy:     AccuracyHigh,
	}
	data, err := json.Marshal(snap)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"state":"error"`)
	assert.Contains(t, string(data), `"accuracy":"high"`)

	var back Snapshot
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, snap, back)
}

func TestState_UnmarshalText(t *testing.T) {
	var s State
	require.NoError(t, s.UnmarshalText([]byte("Running")))
	assert.Equal(t, StateRunning, s)
	assert.Error(t, s.UnmarshalText([]byte("paused")))

	var a Accuracy
	require.NoError(t, a.UnmarshalText([]byte("no_contact")))
	assert.Equal(t, AccuracyNoContact, a)
	assert.Error(t, a.UnmarshalText([]byte("great")))
}

func TestState_Code(t *testing.T) {
	assert.Equal(t, StatusStopped, StateStopped.Code())
	assert.Equal(t, StatusStarting, StateStarting.Code())
	assert.Equal(t, StatusRunning, StateRunning.Code())
	assert.Equal(t, StatusErrorFailedToStart, StateError.Code())
}
