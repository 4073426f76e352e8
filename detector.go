package magnetswipe

import (
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// ErrUnsupportedAction is returned by Execute for any action other than
// "start" or "stop".
var ErrUnsupportedAction = errors.New("unsupported action")

// Config tunes a Detector. Zero fields fall back to the defaults.
type Config struct {
	Thresholds   Thresholds
	StartTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.Thresholds.Baseline == 0 && c.Thresholds.Swipe == 0 {
		c.Thresholds = DefaultThresholds()
	}
	if c.StartTimeout <= 0 {
		c.StartTimeout = DefaultStartTimeout
	}
	return c
}

// Detector owns the sample window and the Stopped/Starting/Running/Error
// state machine, and emits TriggerEvent/ErrorEvent to its sink.
//
// A Detector is not safe for concurrent use. Exactly one goroutine must call
// its methods; providers and schedulers deliver their callbacks through that
// same goroutine.
type Detector struct {
	provider SensorProvider
	sched    Scheduler
	sink     EventSink
	logger   *slog.Logger
	cfg      Config

	buf        *SampleBuffer
	classifier *Classifier

	state    State
	errCode  int
	errMsg   string
	accuracy Accuracy

	sensor SensorHandle

	timer      TimerHandle
	timerArmed bool
	timerGen   uint64

	triggered    bool
	triggers     uint64
	lastSampleAt int64
}

// NewDetector returns a Stopped detector. A nil logger discards logs.
func NewDetector(provider SensorProvider, sched Scheduler, sink EventSink, logger *slog.Logger, cfg Config) *Detector {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	cfg = cfg.withDefaults()
	return &Detector{
		provider:   provider,
		sched:      sched,
		sink:       sink,
		logger:     logger,
		cfg:        cfg,
		buf:        NewSampleBuffer(),
		classifier: NewClassifier(cfg.Thresholds),
		state:      StateStopped,
		accuracy:   AccuracyUnreliable,
	}
}

// State returns the current lifecycle state.
func (d *Detector) State() State { return d.state }

// Triggered reports whether the most recent classification fired.
func (d *Detector) Triggered() bool { return d.triggered }

// Buffered returns the number of samples currently in the window.
func (d *Detector) Buffered() int { return d.buf.Len() }

// Snapshot returns a copy of the detector observables.
func (d *Detector) Snapshot() Snapshot {
	snap := Snapshot{
		State:        d.state,
		Code:         d.state.Code(),
		Triggered:    d.triggered,
		Accuracy:     d.accuracy,
		Buffered:     d.buf.Len(),
		LastSampleAt: d.lastSampleAt,
		Triggers:     d.triggers,
	}
	if d.state == StateError {
		snap.ErrorCode = d.errCode
		snap.ErrorMessage = d.errMsg
	}
	return snap
}

// Start begins listening to the first magnetic-field sensor the provider
// offers. It is a no-op when already Starting or Running.
//
// With no sensor available the detector moves straight to Error and emits one
// ErrorEvent; nothing is registered or scheduled. Otherwise it registers for
// updates and arms the start timeout, replacing any timeout still armed.
func (d *Detector) Start() State {
	if d.state == StateStarting || d.state == StateRunning {
		return d.state
	}

	d.setState(StateStarting)

	sensors := d.provider.ListSensors(KindMagneticField)
	if len(sensors) == 0 {
		d.fail(StatusErrorFailedToStart, msgNoSensors)
		return d.state
	}

	d.sensor = sensors[0]
	if err := d.provider.Register(d.sensor, d, SensorDelayUI); err != nil {
		// The start timeout reports this if no data ever arrives.
		d.logger.Warn("sensor registration failed", "sensor", d.sensor.Name, "error", err)
	}

	d.cancelTimeout()
	d.armTimeout()

	d.logger.Info("magnet sensor starting", "sensor", d.sensor.Name, "timeout", d.cfg.StartTimeout)
	return d.state
}

// Stop cancels any armed timeout, unregisters from the provider unless
// already Stopped, resets the recorded accuracy and moves to Stopped.
// It emits nothing.
func (d *Detector) Stop() {
	d.cancelTimeout()
	if d.state != StateStopped {
		d.provider.Unregister(d)
	}
	d.setState(StateStopped)
	d.accuracy = AccuracyUnreliable
}

// OnTimeout handles expiry of the start timeout. It only acts while Starting;
// in any other state the sensor has already answered (or the detector was
// stopped) and the call is a silent no-op.
func (d *Detector) OnTimeout() {
	d.timerArmed = false
	if d.state != StateStarting {
		return
	}
	d.fail(StatusErrorFailedToStart, msgStartTimeout)
}

// OnSample feeds one reading into the window.
//
// An all-zero vector is discarded without any other effect. Otherwise the
// sample is buffered and, once WindowSize samples are available, the window
// is classified: a trigger clears the buffer and emits a TriggerEvent.
// Afterwards any state other than Stopped becomes Running, whether or not the
// window was full.
func (d *Detector) OnSample(v Vector3, timestamp int64) {
	if v.IsZero() {
		return
	}
	d.addSample(Sample{Vector: v, Timestamp: timestamp})
	d.promote()
}

// OnSensorChanged implements SensorListener. Readings from a sensor other
// than the registered one are not buffered but still count as proof that the
// listener is alive.
func (d *Detector) OnSensorChanged(ev SensorEvent) {
	if ev.Handle == d.sensor {
		if ev.Vector.IsZero() {
			return
		}
		d.addSample(Sample{Vector: ev.Vector, Timestamp: ev.Timestamp})
	}
	d.promote()
}

// OnAccuracyChanged implements SensorListener. Only magnetic-field readings
// are recorded, and only while not Stopped.
func (d *Detector) OnAccuracyChanged(kind SensorKind, accuracy Accuracy) {
	if kind != KindMagneticField {
		return
	}
	if d.state == StateStopped {
		return
	}
	d.accuracy = accuracy
	d.logger.Debug("sensor accuracy changed", "accuracy", accuracy)
}

// OnExternalReset stops a Running detector, e.g. when the hosting surface
// goes away.
func (d *Detector) OnExternalReset() {
	if d.state == StateRunning {
		d.Stop()
	}
}

// Execute applies a bridge command. "start" starts the detector unless it is
// already Running; "stop" stops it only if Running. Any other action returns
// an error wrapping ErrUnsupportedAction and leaves the state untouched.
func (d *Detector) Execute(action string) error {
	switch action {
	case ActionStart:
		if d.state != StateRunning {
			d.Start()
		}
	case ActionStop:
		if d.state == StateRunning {
			d.Stop()
		}
	default:
		return fmt.Errorf("%w: %q", ErrUnsupportedAction, action)
	}
	return nil
}

func (d *Detector) addSample(s Sample) {
	d.lastSampleAt = s.Timestamp
	d.buf.Push(s)
	if d.buf.Len() < WindowSize {
		return
	}

	res, st := d.classifier.Classify(d.buf)
	d.logger.Debug("window evaluated",
		"result", res,
		"min0", st.Min[0], "max0", st.Max[0], "mean0", st.Mean[0],
		"min1", st.Min[1], "max1", st.Max[1], "mean1", st.Mean[1])

	if res == Trigger {
		d.triggered = true
		d.triggers++
		d.buf.Clear()
		d.emit(TriggerEvent{})
		return
	}
	d.triggered = false
}

func (d *Detector) promote() {
	if d.state == StateStopped {
		return
	}
	if d.state != StateRunning {
		d.cancelTimeout()
		d.logger.Info("magnet sensor running", "previous", d.state)
	}
	d.setState(StateRunning)
}

func (d *Detector) fail(code int, msg string) {
	d.setState(StateError)
	d.errCode = code
	d.errMsg = msg
	d.logger.Error("magnet sensor failed to start", "code", code, "message", msg)
	d.emit(ErrorEvent{Code: code, Message: msg})
}

func (d *Detector) setState(s State) {
	d.state = s
	if s != StateError {
		d.errCode = 0
		d.errMsg = ""
	}
}

func (d *Detector) emit(ev Event) {
	if d.sink == nil {
		return
	}
	d.sink.Emit(ev)
}

// armTimeout schedules the start timeout. Each arm gets a fresh generation so
// a callback that fired before being cancelled cannot act on a later start.
func (d *Detector) armTimeout() {
	d.timerGen++
	gen := d.timerGen
	d.timer = d.sched.ScheduleOnce(d.cfg.StartTimeout, func() {
		if gen != d.timerGen {
			return
		}
		d.OnTimeout()
	})
	d.timerArmed = true
}

func (d *Detector) cancelTimeout() {
	if !d.timerArmed {
		return
	}
	d.sched.Cancel(d.timer)
	d.timerArmed = false
	d.timerGen++
}
