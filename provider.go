package magnetswipe

import "time"

// SensorKind identifies a class of sensor a provider can enumerate.
type SensorKind string

const (
	KindMagneticField SensorKind = "magnetic_field"
)

// SensorDelayUI is the rate hint the detector registers with: roughly the
// cadence a UI-facing sensor listener is fed at.
const SensorDelayUI = 60 * time.Millisecond

// SensorHandle names one concrete sensor returned by a provider.
// Handles are comparable; two handles are the same sensor iff they are equal.
type SensorHandle struct {
	ID   string
	Name string
	Kind SensorKind
}

// SensorEvent is one reading delivered to a SensorListener.
type SensorEvent struct {
	Handle    SensorHandle
	Vector    Vector3
	Timestamp int64
}

// SensorListener receives sensor callbacks. Providers must deliver callbacks
// on the listener owner's serialized context, never concurrently.
type SensorListener interface {
	OnSensorChanged(ev SensorEvent)
	OnAccuracyChanged(kind SensorKind, accuracy Accuracy)
}

// SensorProvider is the platform sensor service the detector consumes.
type SensorProvider interface {
	// ListSensors returns zero or more sensors of the given kind.
	ListSensors(kind SensorKind) []SensorHandle
	// Register starts delivering readings from h to l, at roughly rate.
	Register(h SensorHandle, l SensorListener, rate time.Duration) error
	// Unregister stops all deliveries to l.
	Unregister(l SensorListener)
}

// TimerHandle identifies a callback armed with a Scheduler.
type TimerHandle uint64

// Scheduler runs one-shot callbacks after a delay. Like sensor callbacks,
// scheduled functions must run on the owner's serialized context.
type Scheduler interface {
	ScheduleOnce(delay time.Duration, fn func()) TimerHandle
	Cancel(h TimerHandle)
}

// EventSink receives detector outcomes. Emit must not block and must not call
// back into the detector.
type EventSink interface {
	Emit(ev Event)
}

// EventSinkFunc adapts a function to EventSink.
type EventSinkFunc func(Event)

func (f EventSinkFunc) Emit(ev Event) { f(ev) }
