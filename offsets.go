package magnetswipe

import "math"

// OffsetComputer turns a segment of buffered samples into their distances
// from a baseline vector.
//
// It owns one scratch array; each call to Offsets overwrites all
// SegmentSize slots before returning, so reusing it between calls never
// exposes stale values.
type OffsetComputer struct {
	scratch [SegmentSize]float32
}

// Offsets computes, for the SegmentSize samples starting at segmentStart,
// the Euclidean norm of (sample - baseline). The caller must ensure
// segmentStart+SegmentSize <= buf.Len().
func (c *OffsetComputer) Offsets(buf *SampleBuffer, segmentStart int, baseline Vector3) [SegmentSize]float32 {
	for i := 0; i < SegmentSize; i++ {
		c.scratch[i] = Magnitude(buf.At(segmentStart + i).Vector.Sub(baseline))
	}
	return c.scratch
}

// Magnitude returns the Euclidean norm of v. Squares are summed in float32
// and the root is taken in float64, matching the reference sensor stack.
func Magnitude(v Vector3) float32 {
	sq := v.X*v.X + v.Y*v.Y + v.Z*v.Z
	return float32(math.Sqrt(float64(sq)))
}
