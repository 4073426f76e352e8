package main

import (
	"context"
	"math/rand"
	"time"

	"magnetswipe"
)

// simOptions configures the simulated magnetometer.
type simOptions struct {
	Baseline   magnetswipe.Vector3
	Noise      float32
	SwipeEvery time.Duration
	Magnitude  float32
	Seed       int64
}

// simSwipeProfile is the fraction of the swipe magnitude applied on each
// consecutive sample while a magnet passes the sensor.
var simSwipeProfile = []float32{0.15, 0.4, 0.75, 1, 1, 0.8, 0.5, 0.25, 0.1}

// simQuietTail is the number of quiet samples that follow each swipe within a
// period, so the window closes on a baseline reading.
const simQuietTail = 10

// simField generates a steady field with gaussian noise and a periodic swipe
// near the end of every period.
type simField struct {
	opts   simOptions
	rng    *rand.Rand
	period int
	step   int
}

func newSimField(opts simOptions, rate time.Duration) *simField {
	if rate <= 0 {
		rate = magnetswipe.SensorDelayUI
	}
	period := 0
	if opts.SwipeEvery > 0 && opts.Magnitude != 0 {
		period = int(opts.SwipeEvery / rate)
		if period < 2*magnetswipe.WindowSize {
			period = 2 * magnetswipe.WindowSize
		}
	}
	return &simField{
		opts:   opts,
		rng:    rand.New(rand.NewSource(opts.Seed)),
		period: period,
	}
}

// swipeStart is the in-period position of the first swipe sample.
func (f *simField) swipeStart() int {
	return f.period - len(simSwipeProfile) - simQuietTail
}

func (f *simField) next() magnetswipe.Vector3 {
	v := f.opts.Baseline
	if f.opts.Noise > 0 {
		v.X += float32(f.rng.NormFloat64()) * f.opts.Noise
		v.Y += float32(f.rng.NormFloat64()) * f.opts.Noise
		v.Z += float32(f.rng.NormFloat64()) * f.opts.Noise
	}

	if f.period > 0 {
		pos := f.step%f.period - f.swipeStart()
		if pos >= 0 && pos < len(simSwipeProfile) {
			d := f.opts.Magnitude * simSwipeProfile[pos]
			v.X += d
			v.Z -= d * 0.3
		}
	}
	f.step++
	return v
}

// simBackend emits simulated readings at the registration rate.
type simBackend struct {
	opts simOptions
}

func (b *simBackend) Run(ctx context.Context, rate time.Duration, sink readingSink) error {
	if rate <= 0 {
		rate = magnetswipe.SensorDelayUI
	}
	field := newSimField(b.opts, rate)
	sink.Accuracy(magnetswipe.AccuracyHigh)

	ticker := time.NewTicker(rate)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case now := <-ticker.C:
			sink.Sample(field.next(), now.UnixNano())
		}
	}
}
