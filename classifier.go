package magnetswipe

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Result is the outcome of classifying one window.
type Result int

const (
	NoTrigger Result = iota
	Trigger
)

func (r Result) String() string {
	if r == Trigger {
		return "trigger"
	}
	return "no_trigger"
}

// Thresholds are the tunable constants of the trigger rule.
type Thresholds struct {
	// Baseline: segment 0 must have a minimum offset strictly below this.
	Baseline float32
	// Swipe: segment 1 must have a maximum offset strictly above this.
	Swipe float32
}

// DefaultThresholds returns the empirically chosen 30/130 thresholds.
func DefaultThresholds() Thresholds {
	return Thresholds{
		Baseline: DefaultBaselineThreshold,
		Swipe:    DefaultSwipeThreshold,
	}
}

// WindowStats are the per-segment offset statistics of one evaluation.
// Mean is reported for diagnostics only; it never affects the decision.
type WindowStats struct {
	Baseline Vector3
	Mean     [SegmentCount]float32
	Min      [SegmentCount]float32
	Max      [SegmentCount]float32
}

// Classifier applies the dip-then-spike rule to a buffered window.
type Classifier struct {
	Thresholds Thresholds

	offsets OffsetComputer
	view    [SegmentSize]float64
}

// NewClassifier returns a classifier using th.
func NewClassifier(th Thresholds) *Classifier {
	return &Classifier{Thresholds: th}
}

// Classify evaluates the window held in buf. It expects buf.Len() >=
// WindowSize; shorter buffers yield NoTrigger and zero stats.
//
// The baseline is the newest buffered sample. Segment i covers buffer
// indices [SegmentSize*i, SegmentSize*(i+1)). Classify does not mutate buf,
// so calling it twice on the same contents gives the same answer.
func (c *Classifier) Classify(buf *SampleBuffer) (Result, WindowStats) {
	var st WindowStats
	if buf.Len() < WindowSize {
		return NoTrigger, st
	}

	last, _ := buf.Last()
	st.Baseline = last.Vector

	for i := 0; i < SegmentCount; i++ {
		offs := c.offsets.Offsets(buf, SegmentSize*i, st.Baseline)
		for j, o := range offs {
			c.view[j] = float64(o)
		}
		st.Mean[i] = float32(stat.Mean(c.view[:], nil))
		if floats.HasNaN(c.view[:]) {
			// A NaN offset poisons the extremes so the comparisons below fail.
			nan := float32(math.NaN())
			st.Min[i], st.Max[i] = nan, nan
			continue
		}
		st.Max[i] = float32(floats.Max(c.view[:]))
		st.Min[i] = float32(floats.Min(c.view[:]))
	}

	if st.Min[0] < c.Thresholds.Baseline && st.Max[1] > c.Thresholds.Swipe {
		return Trigger, st
	}
	return NoTrigger, st
}
