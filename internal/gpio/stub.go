//go:build !linux

package gpio

import "errors"

var errUnsupported = errors.New("gpio: not supported on this platform (requires Linux)")

// RealReader is not available on non-Linux platforms.
type RealReader struct{}

// NewRealReader returns an error on non-Linux platforms.
func NewRealReader(pins Pins) (*RealReader, error) {
	return nil, errUnsupported
}

// ReadSlots is not implemented on non-Linux platforms.
func (r *RealReader) ReadSlots() ([]bool, error) {
	return nil, errUnsupported
}

// ReadDistance is not implemented on non-Linux platforms.
func (r *RealReader) ReadDistance() (float64, error) {
	return NoEcho, errUnsupported
}

// Close is not implemented on non-Linux platforms.
func (r *RealReader) Close() error {
	return nil
}

// RealActuator is not available on non-Linux platforms.
type RealActuator struct{}

// NewRealActuator returns an error on non-Linux platforms.
func NewRealActuator(pins Pins) (*RealActuator, error) {
	return nil, errUnsupported
}

// SetAngle is not implemented on non-Linux platforms.
func (a *RealActuator) SetAngle(angle int) error {
	return errUnsupported
}

// SetIndicators is not implemented on non-Linux platforms.
func (a *RealActuator) SetIndicators(gateOpen, full bool) error {
	return errUnsupported
}

// Close is not implemented on non-Linux platforms.
func (a *RealActuator) Close() error {
	return nil
}
