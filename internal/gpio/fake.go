package gpio

import "errors"

// FakeReader is a test double that returns scripted sensor values.
type FakeReader struct {
	// Samples contains scripted readings to return.
	// Each ReadSlots call consumes the next sample; ReadDistance reads the
	// distance of the sample most recently consumed.
	Samples []Sample

	// index tracks current position in Samples
	index   int
	current Sample

	// Closed tracks if Close was called
	Closed bool

	// SlotError and DistanceError, if set, are returned by the reads.
	SlotError     error
	DistanceError error
}

// Sample represents one tick of sensor readings (already in logical form).
type Sample struct {
	Slots      []bool // true = blocked
	DistanceCM float64
}

// NewFakeReader creates a FakeReader with the given samples.
func NewFakeReader(samples []Sample) *FakeReader {
	return &FakeReader{Samples: samples}
}

// ReadSlots returns the slot readings of the next scripted sample.
// If samples are exhausted, returns the last sample repeatedly.
func (f *FakeReader) ReadSlots() ([]bool, error) {
	if len(f.Samples) == 0 {
		return nil, errors.New("no samples configured")
	}

	f.current = f.Samples[f.index]
	if f.index < len(f.Samples)-1 {
		f.index++
	}

	if f.SlotError != nil {
		return nil, f.SlotError
	}
	return append([]bool(nil), f.current.Slots...), nil
}

// ReadDistance returns the distance of the current sample.
func (f *FakeReader) ReadDistance() (float64, error) {
	if f.DistanceError != nil {
		return NoEcho, f.DistanceError
	}
	return f.current.DistanceCM, nil
}

// Close marks the reader as closed.
func (f *FakeReader) Close() error {
	f.Closed = true
	return nil
}

// Reset resets the reader to the beginning of samples.
func (f *FakeReader) Reset() {
	f.index = 0
	f.current = Sample{}
	f.Closed = false
}

// Indicators is one recorded SetIndicators call.
type Indicators struct {
	GateOpen bool
	Full     bool
}

// FakeActuator records actuator commands for test assertions.
type FakeActuator struct {
	Angles     []int
	Indicators []Indicators
	Closed     bool

	// AngleError, if set, is returned by SetAngle.
	AngleError error
}

// NewFakeActuator creates a FakeActuator.
func NewFakeActuator() *FakeActuator {
	return &FakeActuator{}
}

// SetAngle records the commanded angle.
func (f *FakeActuator) SetAngle(angle int) error {
	if f.AngleError != nil {
		return f.AngleError
	}
	f.Angles = append(f.Angles, angle)
	return nil
}

// SetIndicators records the indicator state.
func (f *FakeActuator) SetIndicators(gateOpen, full bool) error {
	f.Indicators = append(f.Indicators, Indicators{GateOpen: gateOpen, Full: full})
	return nil
}

// Close marks the actuator as closed.
func (f *FakeActuator) Close() error {
	f.Closed = true
	return nil
}

// LastAngle returns the most recent angle, or -1 if none was set.
func (f *FakeActuator) LastAngle() int {
	if len(f.Angles) == 0 {
		return -1
	}
	return f.Angles[len(f.Angles)-1]
}
