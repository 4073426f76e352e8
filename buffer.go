package magnetswipe

// SampleBuffer is a bounded, chronologically ordered FIFO of samples.
//
// Push evicts the single oldest sample only when the buffer already holds
// more than WindowSize samples, so the length settles at BufferCapacity and
// never exceeds it.
type SampleBuffer struct {
	data  [BufferCapacity]Sample
	start int
	n     int
}

// NewSampleBuffer returns an empty buffer.
func NewSampleBuffer() *SampleBuffer {
	return &SampleBuffer{}
}

// Push appends s, evicting the oldest sample first if Len() > WindowSize.
func (b *SampleBuffer) Push(s Sample) {
	if b.n > WindowSize {
		b.start = (b.start + 1) % BufferCapacity
		b.n--
	}
	b.data[(b.start+b.n)%BufferCapacity] = s
	b.n++
}

// Len returns the number of buffered samples.
func (b *SampleBuffer) Len() int {
	return b.n
}

// At returns the i-th sample, 0 being the oldest. It panics if i is out of
// range, like a slice index.
func (b *SampleBuffer) At(i int) Sample {
	if i < 0 || i >= b.n {
		panic("magnetswipe: SampleBuffer index out of range")
	}
	return b.data[(b.start+i)%BufferCapacity]
}

// Last returns the newest sample and false if the buffer is empty.
func (b *SampleBuffer) Last() (Sample, bool) {
	if b.n == 0 {
		return Sample{}, false
	}
	return b.At(b.n - 1), true
}

// Clear drops every buffered sample.
func (b *SampleBuffer) Clear() {
	b.start = 0
	b.n = 0
}
