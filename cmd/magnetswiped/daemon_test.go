package main

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"magnetswipe"
)

func startDaemon(t *testing.T, opts daemonOptions) (*Daemon, <-chan outcome, context.CancelFunc) {
	t.Helper()
	d := newDaemon(opts)
	out := d.Subscribe(16)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = d.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Error("daemon did not stop")
		}
	})
	return d, out, cancel
}

func nextOutcome(t *testing.T, out <-chan outcome) outcome {
	t.Helper()
	select {
	case o, ok := <-out:
		require.True(t, ok, "outcome channel closed")
		return o
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for outcome")
	}
	return outcome{}
}

func status(t *testing.T, d *Daemon) magnetswipe.Snapshot {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	snap, err := d.Status(ctx)
	require.NoError(t, err)
	return snap
}

func TestDaemon_SwipeEmitsTrigger(t *testing.T) {
	h := testHandle("mag")
	d, out, _ := startDaemon(t, daemonOptions{
		Sensors: []sensorSlot{{
			handle:  h,
			backend: &scriptedBackend{samples: swipeSamples(magnetswipe.Vector3{X: 20, Y: -5, Z: -40}, 150), accuracy: magnetswipe.AccuracyHigh},
		}},
		Autostart: true,
	})

	o := nextOutcome(t, out)
	assert.Equal(t, magnetswipe.TriggerEvent{}, o.Event)
	assert.NotEqual(t, [16]byte{}, [16]byte(o.ID))
	assert.False(t, o.At.IsZero())

	snap := status(t, d)
	assert.Equal(t, magnetswipe.StateRunning, snap.State)
	assert.Equal(t, uint64(1), snap.Triggers)
	assert.True(t, snap.Triggered)
	assert.Equal(t, magnetswipe.AccuracyHigh, snap.Accuracy)
	assert.Zero(t, snap.Buffered)
}

func TestDaemon_NoSensorsReportsError(t *testing.T) {
	d, out, _ := startDaemon(t, daemonOptions{Autostart: true})

	o := nextOutcome(t, out)
	ee, ok := o.Event.(magnetswipe.ErrorEvent)
	require.True(t, ok, "got %T", o.Event)
	assert.Equal(t, magnetswipe.StatusErrorFailedToStart, ee.Code)
	assert.Equal(t, "No sensors found to register magnet sensor listening to.", ee.Message)

	snap := status(t, d)
	assert.Equal(t, magnetswipe.StateError, snap.State)
	assert.Equal(t, 3, snap.Code)
}

func TestDaemon_StartTimeout(t *testing.T) {
	_, out, _ := startDaemon(t, daemonOptions{
		Sensors:   []sensorSlot{{handle: testHandle("dead"), backend: silentBackend{}}},
		Detector:  magnetswipe.Config{StartTimeout: 20 * time.Millisecond},
		Autostart: true,
	})

	o := nextOutcome(t, out)
	ee, ok := o.Event.(magnetswipe.ErrorEvent)
	require.True(t, ok, "got %T", o.Event)
	assert.Equal(t, "Magnetometer could not be started.", ee.Message)
	assert.True(t, o.Event.KeepCallback())
}

func TestDaemon_Commands(t *testing.T) {
	d, _, _ := startDaemon(t, daemonOptions{
		Sensors: []sensorSlot{{handle: testHandle("dead"), backend: silentBackend{}}},
	})
	ctx := context.Background()

	assert.Equal(t, magnetswipe.StateStopped, status(t, d).State)

	err := d.Command(ctx, "calibrate")
	require.Error(t, err)
	assert.True(t, errors.Is(err, magnetswipe.ErrUnsupportedAction))
	assert.Equal(t, magnetswipe.StateStopped, status(t, d).State)

	require.NoError(t, d.Command(ctx, magnetswipe.ActionStart))
	assert.Equal(t, magnetswipe.StateStarting, status(t, d).State)

	// stop is ignored until the detector is running
	require.NoError(t, d.Command(ctx, magnetswipe.ActionStop))
	assert.Equal(t, magnetswipe.StateStarting, status(t, d).State)
}

func TestDaemon_ExternalResetStopsRunningDetector(t *testing.T) {
	d, _, _ := startDaemon(t, daemonOptions{
		Sensors: []sensorSlot{{
			handle:  testHandle("mag"),
			backend: &scriptedBackend{samples: []magnetswipe.Sample{{Vector: magnetswipe.Vector3{X: 1, Y: 2, Z: 3}, Timestamp: 1}}},
		}},
		Autostart: true,
	})

	require.Eventually(t, func() bool {
		return status(t, d).State == magnetswipe.StateRunning
	}, 2*time.Second, 10*time.Millisecond)

	d.Reset()
	require.Eventually(t, func() bool {
		return status(t, d).State == magnetswipe.StateStopped
	}, 2*time.Second, 10*time.Millisecond)
}

func TestDaemon_StopAfterRunningThenRestart(t *testing.T) {
	d, _, _ := startDaemon(t, daemonOptions{
		Sensors: []sensorSlot{{
			handle:  testHandle("mag"),
			backend: &scriptedBackend{samples: []magnetswipe.Sample{{Vector: magnetswipe.Vector3{X: 1, Y: 2, Z: 3}, Timestamp: 1}}},
		}},
		Autostart: true,
	})
	ctx := context.Background()

	require.Eventually(t, func() bool {
		return status(t, d).State == magnetswipe.StateRunning
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, d.Command(ctx, magnetswipe.ActionStop))
	snap := status(t, d)
	assert.Equal(t, magnetswipe.StateStopped, snap.State)
	assert.Equal(t, magnetswipe.AccuracyUnreliable, snap.Accuracy)

	// The backend restarts and replays its script.
	require.NoError(t, d.Command(ctx, magnetswipe.ActionStart))
	require.Eventually(t, func() bool {
		return status(t, d).State == magnetswipe.StateRunning
	}, 2*time.Second, 10*time.Millisecond)
}

func TestDaemon_ShutdownClosesSubscribers(t *testing.T) {
	d, out, cancel := startDaemon(t, daemonOptions{})
	cancel()

	select {
	case _, ok := <-out:
		assert.False(t, ok)
	case <-time.After(2 * time.Second):
		t.Fatal("subscriber channel not closed")
	}

	err := d.Command(context.Background(), magnetswipe.ActionStart)
	assert.ErrorIs(t, err, errDaemonStopped)
}

func TestSensorProvider_DropsStaleReadings(t *testing.T) {
	inputs := make(chan input, 1)
	h := testHandle("mag")
	p := newSensorProvider([]sensorSlot{{handle: h, backend: silentBackend{}}}, inputs, discardLogger())
	defer p.Close()

	l := &countingListener{}
	require.NoError(t, p.Register(h, l, magnetswipe.SensorDelayUI))
	stale := p.gen

	p.dispatch(sensorReading{Handle: h, Vector: magnetswipe.Vector3{X: 1}, gen: stale})
	assert.Equal(t, 1, l.samples)

	p.Unregister(l)
	p.dispatch(sensorReading{Handle: h, Vector: magnetswipe.Vector3{X: 1}, gen: stale})
	assert.Equal(t, 1, l.samples)

	err := p.Register(testHandle("missing"), l, magnetswipe.SensorDelayUI)
	assert.ErrorContains(t, err, "unknown sensor")
}

type countingListener struct {
	samples  int
	accuracy int
}

func (c *countingListener) OnSensorChanged(magnetswipe.SensorEvent) { c.samples++ }
func (c *countingListener) OnAccuracyChanged(magnetswipe.SensorKind, magnetswipe.Accuracy) {
	c.accuracy++
}
