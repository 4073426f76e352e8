package main

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"magnetswipe"
)

// scriptedBackend emits a fixed list of samples, then idles until canceled.
type scriptedBackend struct {
	samples  []magnetswipe.Sample
	accuracy magnetswipe.Accuracy
}

func (b *scriptedBackend) Run(ctx context.Context, _ time.Duration, sink readingSink) error {
	if b.accuracy != magnetswipe.AccuracyUnreliable {
		sink.Accuracy(b.accuracy)
	}
	for _, s := range b.samples {
		if ctx.Err() != nil {
			return nil
		}
		sink.Sample(s.Vector, s.Timestamp)
	}
	<-ctx.Done()
	return nil
}

// silentBackend never produces a reading.
type silentBackend struct{}

func (silentBackend) Run(ctx context.Context, _ time.Duration, _ readingSink) error {
	<-ctx.Done()
	return nil
}

func testHandle(name string) magnetswipe.SensorHandle {
	return magnetswipe.SensorHandle{ID: "test:" + name, Name: name, Kind: magnetswipe.KindMagneticField}
}

// swipeSamples returns one window that the default classifier triggers on:
// a quiet first half, a spike in the second half, closing on the baseline.
func swipeSamples(base magnetswipe.Vector3, d float32) []magnetswipe.Sample {
	out := make([]magnetswipe.Sample, 0, magnetswipe.WindowSize)
	for i := 0; i < magnetswipe.WindowSize; i++ {
		v := base
		if i >= magnetswipe.SegmentSize && i < magnetswipe.WindowSize-1 {
			v.X += d
		}
		out = append(out, magnetswipe.Sample{Vector: v, Timestamp: int64(i + 1)})
	}
	return out
}

// recordingReadings collects backend output.
type recordingReadings struct {
	mu       sync.Mutex
	samples  []magnetswipe.Vector3
	accuracy []magnetswipe.Accuracy
}

func (r *recordingReadings) Sample(v magnetswipe.Vector3, _ int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.samples = append(r.samples, v)
}

func (r *recordingReadings) Accuracy(a magnetswipe.Accuracy) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.accuracy = append(r.accuracy, a)
}

func (r *recordingReadings) snapshot() ([]magnetswipe.Vector3, []magnetswipe.Accuracy) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]magnetswipe.Vector3(nil), r.samples...), append([]magnetswipe.Accuracy(nil), r.accuracy...)
}

// fakeCommander is a commander that records actions.
type fakeCommander struct {
	mu      sync.Mutex
	actions []string
	snap    magnetswipe.Snapshot
	err     error
}

func (f *fakeCommander) Command(_ context.Context, action string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	switch action {
	case magnetswipe.ActionStart, magnetswipe.ActionStop:
		f.actions = append(f.actions, action)
		return nil
	default:
		return magnetswipe.ErrUnsupportedAction
	}
}

func (f *fakeCommander) Status(context.Context) (magnetswipe.Snapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.snap, f.err
}

func (f *fakeCommander) recorded() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.actions...)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}
