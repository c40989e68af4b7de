//go:build linux

package gpio

import (
	"errors"
	"fmt"
	"time"

	"github.com/warthog618/go-gpiocdev"
)

// RealReader reads the IR slot sensors and the ultrasonic ranger using the
// Linux GPIO character device.
type RealReader struct {
	chip   *gpiocdev.Chip
	slots  *gpiocdev.Lines
	trig   *gpiocdev.Line
	echo   *gpiocdev.Line
	edges  chan gpiocdev.LineEvent
	values []int
}

// NewRealReader creates a sensor reader for actual Raspberry Pi hardware.
func NewRealReader(pins Pins) (*RealReader, error) {
	chip, err := gpiocdev.NewChip("gpiochip0")
	if err != nil {
		return nil, fmt.Errorf("open gpio chip: %w", err)
	}
	r := &RealReader{
		chip:   chip,
		edges:  make(chan gpiocdev.LineEvent, 8),
		values: make([]int, len(pins.Slots)),
	}

	// IR modules pull low when blocked; the pull-up keeps a disconnected
	// sensor reading as free.
	r.slots, err = chip.RequestLines(pins.Slots, gpiocdev.AsInput, gpiocdev.WithPullUp)
	if err != nil {
		r.Close()
		return nil, fmt.Errorf("request slot pins %v: %w", pins.Slots, err)
	}

	r.trig, err = chip.RequestLine(pins.Trig, gpiocdev.AsOutput(0))
	if err != nil {
		r.Close()
		return nil, fmt.Errorf("request trig pin %d: %w", pins.Trig, err)
	}

	r.echo, err = chip.RequestLine(pins.Echo,
		gpiocdev.WithBothEdges,
		gpiocdev.WithEventHandler(r.onEdge))
	if err != nil {
		r.Close()
		return nil, fmt.Errorf("request echo pin %d: %w", pins.Echo, err)
	}

	return r, nil
}

func (r *RealReader) onEdge(evt gpiocdev.LineEvent) {
	select {
	case r.edges <- evt:
	default:
	}
}

// ReadSlots returns the logical state of each slot sensor.
// Inverts raw GPIO: raw 0 = blocked.
func (r *RealReader) ReadSlots() ([]bool, error) {
	if err := r.slots.Values(r.values); err != nil {
		return nil, fmt.Errorf("read slot pins: %w", err)
	}
	out := make([]bool, len(r.values))
	for i, v := range r.values {
		out[i] = v == 0
	}
	return out, nil
}

// ReadDistance fires a 10µs trigger pulse and times the echo using kernel
// edge timestamps. Returns NoEcho if no complete pulse arrives in time.
func (r *RealReader) ReadDistance() (float64, error) {
	// Discard edges left over from a previous timed-out reading
	for len(r.edges) > 0 {
		<-r.edges
	}

	if err := r.trig.SetValue(1); err != nil {
		return NoEcho, fmt.Errorf("set trig: %w", err)
	}
	time.Sleep(10 * time.Microsecond)
	if err := r.trig.SetValue(0); err != nil {
		return NoEcho, fmt.Errorf("clear trig: %w", err)
	}

	deadline := time.NewTimer(EchoTimeout)
	defer deadline.Stop()

	var rise time.Duration
	seenRise := false
	for {
		select {
		case evt := <-r.edges:
			switch evt.Type {
			case gpiocdev.LineEventRisingEdge:
				rise, seenRise = evt.Timestamp, true
			case gpiocdev.LineEventFallingEdge:
				if seenRise {
					return EchoToCM(evt.Timestamp - rise), nil
				}
			}
		case <-deadline.C:
			return NoEcho, nil
		}
	}
}

// Close releases GPIO resources.
// Slot lines are left as plain inputs and the trigger line is driven low.
func (r *RealReader) Close() error {
	var errs []error

	if r.echo != nil {
		if err := r.echo.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close echo pin: %w", err))
		}
	}
	if r.trig != nil {
		if err := r.trig.SetValue(0); err != nil {
			errs = append(errs, fmt.Errorf("clear trig pin: %w", err))
		}
		if err := r.trig.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close trig pin: %w", err))
		}
	}
	if r.slots != nil {
		if err := r.slots.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close slot pins: %w", err))
		}
	}
	if r.chip != nil {
		if err := r.chip.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close chip: %w", err))
		}
	}

	return errors.Join(errs...)
}

// RealActuator drives the indicator LEDs through the GPIO character device
// and the gate servo through the kernel PWM sysfs interface.
type RealActuator struct {
	chip  *gpiocdev.Chip
	leds  *gpiocdev.Lines
	servo *PWM

	lastAngle int
}

// NewRealActuator requests the LED lines and exports the servo PWM channel.
func NewRealActuator(pins Pins) (*RealActuator, error) {
	chip, err := gpiocdev.NewChip("gpiochip0")
	if err != nil {
		return nil, fmt.Errorf("open gpio chip: %w", err)
	}
	a := &RealActuator{chip: chip, lastAngle: -1}

	a.leds, err = chip.RequestLines([]int{pins.LEDGate, pins.LEDFull}, gpiocdev.AsOutput(0, 0))
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("request led pins: %w", err)
	}

	a.servo, err = OpenPWM(DefaultPWMRoot, pins.PWMChip, pins.PWMChannel, ServoPeriod)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("open servo pwm: %w", err)
	}

	return a, nil
}

// SetAngle sets the servo duty cycle. Repeated angles are not rewritten.
func (a *RealActuator) SetAngle(angle int) error {
	if angle == a.lastAngle {
		return nil
	}
	if err := a.servo.SetDuty(ServoPulse(angle)); err != nil {
		return fmt.Errorf("servo angle %d: %w", angle, err)
	}
	a.lastAngle = angle
	return nil
}

// SetIndicators drives the gate and full LEDs.
func (a *RealActuator) SetIndicators(gateOpen, full bool) error {
	if err := a.leds.SetValues([]int{boolToInt(gateOpen), boolToInt(full)}); err != nil {
		return fmt.Errorf("set leds: %w", err)
	}
	return nil
}

// Close turns the LEDs off, disables the servo and releases resources.
func (a *RealActuator) Close() error {
	var errs []error

	if a.leds != nil {
		if err := a.leds.SetValues([]int{0, 0}); err != nil {
			errs = append(errs, fmt.Errorf("clear leds: %w", err))
		}
		if err := a.leds.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close led pins: %w", err))
		}
	}
	if a.servo != nil {
		if err := a.servo.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close servo: %w", err))
		}
	}
	if a.chip != nil {
		if err := a.chip.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close chip: %w", err))
		}
	}

	return errors.Join(errs...)
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
