// Package gpio provides sensor reading and actuator output with hardware abstraction.
// The real implementation uses the Linux GPIO character device and sysfs PWM.
// The fake implementation allows testing without hardware.
package gpio

import (
	"time"

	"github.com/sweeney/smart-parking/internal/logic"
)

// Reader reads the parking sensors.
type Reader interface {
	// ReadSlots returns one reading per slot, true = blocked.
	// The IR sensors are active-low: raw 0 = blocked.
	ReadSlots() ([]bool, error)

	// ReadDistance returns the proximity distance in cm, or NoEcho when the
	// echo timed out.
	ReadDistance() (float64, error)

	// Close releases GPIO resources.
	Close() error
}

// Actuator drives the gate servo and the indicator LEDs.
type Actuator interface {
	// SetAngle commands the servo to angle degrees (0-180).
	SetAngle(angle int) error

	// SetIndicators drives the "gate open" and "lot full" LEDs.
	SetIndicators(gateOpen, full bool) error

	// Close releases resources, leaving the LEDs off.
	Close() error
}

// NoEcho is returned by ReadDistance when no echo arrived in time.
const NoEcho = logic.NoEcho

// Pins holds the BCM line offsets and PWM channel used on the Pi.
type Pins struct {
	Slots      []int
	Trig       int
	Echo       int
	LEDGate    int
	LEDFull    int
	PWMChip    int
	PWMChannel int
}

// Default pin assignment (BCM numbering). The servo is on GPIO18 via pwmchip0/pwm0.
const (
	DefaultPinTrig    = 23
	DefaultPinEcho    = 24
	DefaultPinLEDGate = 5
	DefaultPinLEDFull = 6
)

// DefaultSlotPins are the IR sensor lines for S1, S2, S3.
var DefaultSlotPins = []int{17, 27, 22}

// DefaultPins returns the reference wiring.
func DefaultPins() Pins {
	return Pins{
		Slots:   append([]int(nil), DefaultSlotPins...),
		Trig:    DefaultPinTrig,
		Echo:    DefaultPinEcho,
		LEDGate: DefaultPinLEDGate,
		LEDFull: DefaultPinLEDFull,
	}
}

// Echo and servo timing.
const (
	EchoTimeout  = 30 * time.Millisecond
	ServoPeriod  = 20 * time.Millisecond
	servoMinPuls = 500 * time.Microsecond
	servoMaxPuls = 2500 * time.Microsecond
)

// EchoToCM converts an HC-SR04 echo pulse width to centimetres.
func EchoToCM(pulse time.Duration) float64 {
	if pulse <= 0 || pulse >= EchoTimeout {
		return NoEcho
	}
	return float64(pulse.Microseconds()) / 58.3
}

// ServoPulse returns the pulse width for a hobby servo at angle degrees.
// Angles outside 0-180 are clamped.
func ServoPulse(angle int) time.Duration {
	angle = max(0, min(angle, 180))
	span := servoMaxPuls - servoMinPuls
	return servoMinPuls + span*time.Duration(angle)/180
}
