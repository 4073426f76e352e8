package main

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"magnetswipe"
)

// ============================================================================
// Central Daemon Loop
// ============================================================================
//
// The daemon loop is the single owner of the detector. Sensor backends,
// scheduler timers, IPC/HTTP handlers and signal handlers all post inputs on
// one channel; the loop applies them in arrival order. Detector outcomes are
// stamped with an ID and fanned out to subscribers (WebSocket broadcaster,
// journal) with non-blocking sends.
//
// ============================================================================

var errDaemonStopped = errors.New("daemon stopped")

// outcome is one detector event as published to subscribers.
type outcome struct {
	ID    uuid.UUID
	At    time.Time
	Event magnetswipe.Event
}

type daemonOptions struct {
	Sensors   []sensorSlot
	Detector  magnetswipe.Config
	Autostart bool
	InputBuf  int
	Logger    *slog.Logger
}

// Daemon owns the detector and its event loop.
type Daemon struct {
	logger *slog.Logger
	inputs chan input
	done   chan struct{}

	provider  *sensorProvider
	sched     *magnetswipe.TimerScheduler
	det       *magnetswipe.Detector
	autostart bool

	subs []chan outcome
}

func newDaemon(opts daemonOptions) *Daemon {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	buf := opts.InputBuf
	if buf <= 0 {
		buf = 64
	}

	d := &Daemon{
		logger:    logger,
		inputs:    make(chan input, buf),
		done:      make(chan struct{}),
		autostart: opts.Autostart,
	}
	d.provider = newSensorProvider(opts.Sensors, d.inputs, logger.With("component", "sensors"))
	d.sched = magnetswipe.NewTimerScheduler(func(fn func()) { d.post(timerFired{Fn: fn}) })
	d.det = magnetswipe.NewDetector(d.provider, d.sched, d, logger.With("component", "detector"), opts.Detector)
	return d
}

// Subscribe returns a channel receiving every outcome. It must be called
// before Run. Outcomes are dropped for a subscriber whose buffer is full.
func (d *Daemon) Subscribe(buf int) <-chan outcome {
	ch := make(chan outcome, buf)
	d.subs = append(d.subs, ch)
	return ch
}

// Emit implements magnetswipe.EventSink. It runs on the loop goroutine.
func (d *Daemon) Emit(ev magnetswipe.Event) {
	o := outcome{ID: uuid.New(), At: time.Now().UTC(), Event: ev}
	typ, _ := magnetswipe.EventType(ev)
	d.logger.Info("detector event", "type", typ, "id", o.ID)

	for _, sub := range d.subs {
		select {
		case sub <- o:
		default:
			d.logger.Warn("outcome subscriber full, dropping event", "type", typ, "id", o.ID)
		}
	}
}

// Run processes inputs until ctx is canceled. On exit the detector is
// stopped, backends are shut down and subscriber channels are closed.
func (d *Daemon) Run(ctx context.Context) error {
	defer func() {
		for _, sub := range d.subs {
			close(sub)
		}
	}()
	defer close(d.done)

	d.provider.parent = ctx
	if d.autostart {
		d.logger.Info("autostarting detector")
		d.det.Start()
	}

	for {
		select {
		case <-ctx.Done():
			d.logger.Info("daemon stopping (context canceled)")
			d.det.Stop()
			d.provider.Close()
			return nil

		case in := <-d.inputs:
			d.handle(in)
		}
	}
}

func (d *Daemon) handle(in input) {
	switch in := in.(type) {
	case sensorReading, accuracyReading, backendStopped:
		d.provider.dispatch(in)

	case timerFired:
		in.Fn()

	case commandRequest:
		err := d.det.Execute(in.Action)
		if err != nil {
			d.logger.Warn("command rejected", "action", in.Action, "error", err)
		} else {
			d.logger.Info("command applied", "action", in.Action, "state", d.det.State())
		}
		in.Reply <- err

	case statusRequest:
		in.Reply <- d.det.Snapshot()

	case externalReset:
		d.logger.Info("external reset", "state", d.det.State())
		d.det.OnExternalReset()

	default:
		d.logger.Warn("unknown daemon input", "input", in)
	}
}

// post delivers an input from an internal goroutine, giving up once the loop
// has exited.
func (d *Daemon) post(in input) {
	select {
	case d.inputs <- in:
	case <-d.done:
	}
}

func (d *Daemon) send(ctx context.Context, in input) error {
	select {
	case d.inputs <- in:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-d.done:
		return errDaemonStopped
	}
}

// Command runs a bridge command on the loop and returns its result.
func (d *Daemon) Command(ctx context.Context, action string) error {
	reply := make(chan error, 1)
	if err := d.send(ctx, commandRequest{Action: action, Reply: reply}); err != nil {
		return err
	}
	select {
	case err := <-reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-d.done:
		return errDaemonStopped
	}
}

// Status returns a detector snapshot taken on the loop.
func (d *Daemon) Status(ctx context.Context) (magnetswipe.Snapshot, error) {
	reply := make(chan magnetswipe.Snapshot, 1)
	if err := d.send(ctx, statusRequest{Reply: reply}); err != nil {
		return magnetswipe.Snapshot{}, err
	}
	select {
	case snap := <-reply:
		return snap, nil
	case <-ctx.Done():
		return magnetswipe.Snapshot{}, ctx.Err()
	case <-d.done:
		return magnetswipe.Snapshot{}, errDaemonStopped
	}
}

// Reset posts an external reset.
func (d *Daemon) Reset() {
	d.post(externalReset{At: time.Now()})
}
