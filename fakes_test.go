package magnetswipe

import (
	"sort"
	"time"
)

type registration struct {
	Handle   SensorHandle
	Listener SensorListener
	Rate     time.Duration
}

type fakeProvider struct {
	sensors       []SensorHandle
	registerErr   error
	registrations []registration
	unregisters   int
}

func magnetometer() SensorHandle {
	return SensorHandle{ID: "mag0", Name: "test magnetometer", Kind: KindMagneticField}
}

func newFakeProvider(sensors ...SensorHandle) *fakeProvider {
	return &fakeProvider{sensors: sensors}
}

func (p *fakeProvider) ListSensors(kind SensorKind) []SensorHandle {
	var out []SensorHandle
	for _, s := range p.sensors {
		if s.Kind == kind {
			out = append(out, s)
		}
	}
	return out
}

func (p *fakeProvider) Register(h SensorHandle, l SensorListener, rate time.Duration) error {
	p.registrations = append(p.registrations, registration{Handle: h, Listener: l, Rate: rate})
	return p.registerErr
}

func (p *fakeProvider) Unregister(SensorListener) {
	p.unregisters++
}

// fakeScheduler records armed callbacks; tests fire them explicitly.
type fakeScheduler struct {
	next      TimerHandle
	pending   map[TimerHandle]func()
	delays    map[TimerHandle]time.Duration
	scheduled int
	cancelled int
}

func newFakeScheduler() *fakeScheduler {
	return &fakeScheduler{
		pending: make(map[TimerHandle]func()),
		delays:  make(map[TimerHandle]time.Duration),
	}
}

func (s *fakeScheduler) ScheduleOnce(delay time.Duration, fn func()) TimerHandle {
	s.next++
	s.scheduled++
	s.pending[s.next] = fn
	s.delays[s.next] = delay
	return s.next
}

func (s *fakeScheduler) Cancel(h TimerHandle) {
	if _, ok := s.pending[h]; ok {
		s.cancelled++
		delete(s.pending, h)
	}
}

// fireAll runs every pending callback in arming order.
func (s *fakeScheduler) fireAll() {
	hs := make([]TimerHandle, 0, len(s.pending))
	for h := range s.pending {
		hs = append(hs, h)
	}
	sort.Slice(hs, func(i, j int) bool { return hs[i] < hs[j] })
	for _, h := range hs {
		fn := s.pending[h]
		delete(s.pending, h)
		fn()
	}
}

type recordingSink struct {
	events []Event
}

func (r *recordingSink) Emit(ev Event) {
	r.events = append(r.events, ev)
}

func v(x, y, z float32) Vector3 { return Vector3{x, y, z} }

// swipeWindow builds 40 samples: 0-19 equal to base, 20-38 at distance d
// from base along X, 39 equal to base.
func swipeWindow(base Vector3, d float32) []Sample {
	out := make([]Sample, 0, WindowSize)
	for i := 0; i < WindowSize; i++ {
		vec := base
		if i >= SegmentSize && i < WindowSize-1 {
			vec.X += d
		}
		out = append(out, Sample{Vector: vec, Timestamp: int64(i)})
	}
	return out
}

func fill(b *SampleBuffer, samples []Sample) {
	for _, s := range samples {
		b.Push(s)
	}
}
