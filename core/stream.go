package core

import "github.com/signalsfoundry/interferometer-simulator/model"

// SampleStream is a read-only view over an intensity series plus an
// emission cursor. It is not safe for concurrent use; the transmitter that
// owns it is the single reader and writer of the cursor.
type SampleStream struct {
	series model.IntensitySeries
	cursor int
}

// NewSampleStream wraps series. The caller must not mutate series afterwards.
func NewSampleStream(series model.IntensitySeries) *SampleStream {
	return &SampleStream{series: series}
}

// Len returns the number of samples in the stream.
func (s *SampleStream) Len() int {
	if s == nil {
		return 0
	}
	return len(s.series)
}

// Cursor returns the index of the next sample to emit.
func (s *SampleStream) Cursor() int {
	if s == nil {
		return 0
	}
	return s.cursor
}

// Peek returns the sample at the cursor, or false once exhausted.
func (s *SampleStream) Peek() (float64, bool) {
	if s.Exhausted() {
		return 0, false
	}
	return s.series[s.cursor], true
}

// Advance moves the cursor forward by one. It is a no-op past the end.
func (s *SampleStream) Advance() {
	if s.cursor < len(s.series) {
		s.cursor++
	}
}

// Exhausted reports whether every sample has been emitted.
func (s *SampleStream) Exhausted() bool {
	return s == nil || s.cursor >= len(s.series)
}

// Reset rewinds the cursor to the first sample.
func (s *SampleStream) Reset() { s.cursor = 0 }

// At returns sample i without touching the cursor.
func (s *SampleStream) At(i int) (float64, bool) {
	if s == nil || i < 0 || i >= len(s.series) {
		return 0, false
	}
	return s.series[i], true
}
