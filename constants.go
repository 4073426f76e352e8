package magnetswipe

import "time"

// Window geometry. The classifier evaluates two contiguous 20-sample
// segments; the buffer holds one extra slot because eviction only happens
// once the length is already above WindowSize.
const (
	SegmentSize    = 20
	SegmentCount   = 2
	WindowSize     = SegmentSize * SegmentCount // 40
	BufferCapacity = WindowSize + 1             // 41
)

// Trigger thresholds, in raw magnetometer units (sensor dependent).
// These are empirical constants, not derived from physics.
const (
	// DefaultBaselineThreshold: the oldest segment must contain at least one
	// sample closer than this to the baseline.
	DefaultBaselineThreshold float32 = 30.0

	// DefaultSwipeThreshold: the newest segment must contain at least one
	// sample further than this from the baseline.
	DefaultSwipeThreshold float32 = 130.0
)

// DefaultStartTimeout is how long a started detector may sit in Starting
// before it reports ERROR_FAILED_TO_START.
const DefaultStartTimeout = 2000 * time.Millisecond

// Status codes carried by ErrorEvent and reported in snapshots.
// StatusStopped is informational only and never emitted as an event.
const (
	StatusStopped            = 0
	StatusStarting           = 1
	StatusRunning            = 2
	StatusErrorFailedToStart = 3
)

// Error messages reported with StatusErrorFailedToStart.
const (
	msgNoSensors    = "No sensors found to register magnet sensor listening to."
	msgStartTimeout = "Magnetometer could not be started."
)

// Command actions accepted by Detector.Execute.
const (
	ActionStart = "start"
	ActionStop  = "stop"
)
