package magnetswipe

// Vector3 is one 3-axis magnetometer reading.
type Vector3 struct {
	X, Y, Z float32
}

// IsZero reports whether all three components are exactly zero. Sensors use
// the all-zero vector as a "no reading" sentinel.
func (v Vector3) IsZero() bool {
	return v.X == 0 && v.Y == 0 && v.Z == 0
}

// Sub returns the component-wise difference v - o.
func (v Vector3) Sub(o Vector3) Vector3 {
	return Vector3{v.X - o.X, v.Y - o.Y, v.Z - o.Z}
}

// Sample is a timestamped reading. Timestamp is in nanoseconds on the
// sensor's own clock.
type Sample struct {
	Vector    Vector3
	Timestamp int64
}
