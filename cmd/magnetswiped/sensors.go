package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"magnetswipe"
)

// readingSink receives output from a running backend. Calls may block until
// the daemon loop accepts the reading.
type readingSink interface {
	Sample(v magnetswipe.Vector3, timestamp int64)
	Accuracy(a magnetswipe.Accuracy)
}

// sensorBackend produces magnetometer readings until ctx is canceled.
// rate is a hint; backends with their own cadence may ignore it.
type sensorBackend interface {
	Run(ctx context.Context, rate time.Duration, sink readingSink) error
}

type sensorSlot struct {
	handle  magnetswipe.SensorHandle
	backend sensorBackend
}

// sensorProvider implements magnetswipe.SensorProvider on top of configured
// backends. Register/Unregister/dispatch run on the daemon loop; only the
// backend goroutines it starts run elsewhere, and they talk back exclusively
// through the inputs channel.
type sensorProvider struct {
	logger *slog.Logger
	inputs chan<- input
	parent context.Context

	slots []sensorSlot

	listener magnetswipe.SensorListener
	active   magnetswipe.SensorHandle
	cancel   context.CancelFunc
	gen      uint64
	wg       sync.WaitGroup
}

func newSensorProvider(slots []sensorSlot, inputs chan<- input, logger *slog.Logger) *sensorProvider {
	return &sensorProvider{
		logger: logger,
		inputs: inputs,
		parent: context.Background(),
		slots:  slots,
	}
}

func (p *sensorProvider) ListSensors(kind magnetswipe.SensorKind) []magnetswipe.SensorHandle {
	var out []magnetswipe.SensorHandle
	for _, s := range p.slots {
		if s.handle.Kind == kind {
			out = append(out, s.handle)
		}
	}
	return out
}

// Register starts the backend behind h. Any previous registration is torn
// down first.
func (p *sensorProvider) Register(h magnetswipe.SensorHandle, l magnetswipe.SensorListener, rate time.Duration) error {
	slot, ok := p.lookup(h)
	if !ok {
		return fmt.Errorf("unknown sensor %q", h.ID)
	}
	p.stop()

	p.gen++
	gen := p.gen
	ctx, cancel := context.WithCancel(p.parent)
	p.cancel = cancel
	p.listener = l
	p.active = h

	sink := &backendSink{ctx: ctx, inputs: p.inputs, handle: h, gen: gen}

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		err := slot.backend.Run(ctx, rate, sink)
		if ctx.Err() != nil {
			return
		}
		if err == nil {
			err = errors.New("backend exited")
		}
		sink.post(backendStopped{Handle: h, Err: err, gen: gen})
	}()

	p.logger.Info("sensor registered", "sensor", h.Name, "id", h.ID, "rate", rate)
	return nil
}

func (p *sensorProvider) Unregister(magnetswipe.SensorListener) {
	if p.listener == nil {
		return
	}
	p.logger.Info("sensor unregistered", "sensor", p.active.Name)
	p.stop()
}

// dispatch routes backend inputs to the registered listener. Inputs left over
// from an earlier registration are dropped.
func (p *sensorProvider) dispatch(in input) {
	switch in := in.(type) {
	case sensorReading:
		if in.gen != p.gen || p.listener == nil {
			return
		}
		p.listener.OnSensorChanged(magnetswipe.SensorEvent{
			Handle:    in.Handle,
			Vector:    in.Vector,
			Timestamp: in.Timestamp,
		})

	case accuracyReading:
		if in.gen != p.gen || p.listener == nil {
			return
		}
		p.listener.OnAccuracyChanged(in.Kind, in.Accuracy)

	case backendStopped:
		if in.gen != p.gen {
			return
		}
		p.logger.Error("sensor backend stopped", "sensor", in.Handle.Name, "error", in.Err)
	}
}

// Close stops any running backend and waits for its goroutine.
func (p *sensorProvider) Close() {
	p.stop()
	p.wg.Wait()
}

func (p *sensorProvider) stop() {
	if p.cancel != nil {
		p.cancel()
		p.cancel = nil
	}
	p.listener = nil
	p.active = magnetswipe.SensorHandle{}
	p.gen++
}

func (p *sensorProvider) lookup(h magnetswipe.SensorHandle) (sensorSlot, bool) {
	for _, s := range p.slots {
		if s.handle == h {
			return s, true
		}
	}
	return sensorSlot{}, false
}

// backendSink forwards backend output to the daemon loop, giving up once the
// registration is canceled.
type backendSink struct {
	ctx    context.Context
	inputs chan<- input
	handle magnetswipe.SensorHandle
	gen    uint64
}

func (s *backendSink) Sample(v magnetswipe.Vector3, timestamp int64) {
	s.post(sensorReading{Handle: s.handle, Vector: v, Timestamp: timestamp, gen: s.gen})
}

func (s *backendSink) Accuracy(a magnetswipe.Accuracy) {
	s.post(accuracyReading{Kind: s.handle.Kind, Accuracy: a, gen: s.gen})
}

func (s *backendSink) post(in input) {
	select {
	case s.inputs <- in:
	case <-s.ctx.Done():
	}
}

// sensorSlotsFromConfig builds one provider slot per configured sensor.
func sensorSlotsFromConfig(cfgs []SensorConfig, logger *slog.Logger) []sensorSlot {
	slots := make([]sensorSlot, 0, len(cfgs))
	for _, c := range cfgs {
		h := magnetswipe.SensorHandle{
			ID:   c.Kind + ":" + c.Name,
			Name: c.Name,
			Kind: magnetswipe.KindMagneticField,
		}

		var b sensorBackend
		switch c.Kind {
		case SensorKindEvdev:
			b = &evdevBackend{path: c.Path, scale: c.Scale}
		case SensorKindSerial:
			b = newSerialBackend(c.Path, c.Serial, c.Scale, logger.With("sensor", c.Name))
		case SensorKindSim:
			b = &simBackend{opts: simOptions{
				Baseline:   magnetswipe.Vector3{X: c.Sim.Baseline[0], Y: c.Sim.Baseline[1], Z: c.Sim.Baseline[2]},
				Noise:      c.Sim.Noise,
				SwipeEvery: time.Duration(c.Sim.SwipeEveryMS) * time.Millisecond,
				Magnitude:  c.Sim.SwipeMagnitude,
				Seed:       c.Sim.Seed,
			}}
		default:
			logger.Warn("skipping sensor with unknown kind", "sensor", c.Name, "kind", c.Kind)
			continue
		}
		slots = append(slots, sensorSlot{handle: h, backend: b})
	}
	return slots
}
