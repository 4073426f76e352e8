package main

import (
	"time"

	"magnetswipe"
)

// ============================================================================
// Daemon inputs
// ============================================================================
// Everything that can touch the detector arrives on the daemon's single
// inputs channel. Producers (sensor backends, timers, IPC, HTTP, signals)
// never call the detector directly.
// ============================================================================

// input is any value accepted by the daemon loop.
type input interface {
	isInput()
}

// sensorReading is one vector produced by a running sensor backend.
// gen identifies the registration that started the backend; readings from an
// older registration are dropped.
type sensorReading struct {
	Handle    magnetswipe.SensorHandle
	Vector    magnetswipe.Vector3
	Timestamp int64
	gen       uint64
}

// accuracyReading reports a change in backend accuracy.
type accuracyReading struct {
	Kind     magnetswipe.SensorKind
	Accuracy magnetswipe.Accuracy
	gen      uint64
}

// backendStopped reports that a backend goroutine exited.
type backendStopped struct {
	Handle magnetswipe.SensorHandle
	Err    error
	gen    uint64
}

// timerFired carries an expired scheduler callback onto the loop.
type timerFired struct {
	Fn func()
}

// commandRequest asks the loop to run a bridge command.
type commandRequest struct {
	Action string
	Reply  chan error
}

// statusRequest asks the loop for a detector snapshot.
type statusRequest struct {
	Reply chan magnetswipe.Snapshot
}

// externalReset mirrors the hosting surface going away (SIGHUP).
type externalReset struct {
	At time.Time
}

func (sensorReading) isInput()   {}
func (accuracyReading) isInput() {}
func (backendStopped) isInput()  {}
func (timerFired) isInput()      {}
func (commandRequest) isInput()  {}
func (statusRequest) isInput()   {}
func (externalReset) isInput()   {}
