package gpio

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// DefaultPWMRoot is where the kernel exposes PWM chips.
const DefaultPWMRoot = "/sys/class/pwm"

// PWM is one exported sysfs PWM channel.
type PWM struct {
	dir    string
	period time.Duration
}

// OpenPWM exports channel on pwmchip<chip> under root, sets the period and
// enables output. An already exported channel is reused.
func OpenPWM(root string, chip, channel int, period time.Duration) (*PWM, error) {
	chipDir := filepath.Join(root, fmt.Sprintf("pwmchip%d", chip))
	dir := filepath.Join(chipDir, fmt.Sprintf("pwm%d", channel))

	if _, err := os.Stat(dir); errors.Is(err, os.ErrNotExist) {
		if err := writeAttr(filepath.Join(chipDir, "export"), strconv.Itoa(channel)); err != nil {
			return nil, err
		}
	}

	p := &PWM{dir: dir, period: period}
	if err := p.write("period", period.Nanoseconds()); err != nil {
		return nil, err
	}
	if err := p.write("enable", 1); err != nil {
		return nil, err
	}
	return p, nil
}

// SetDuty sets the high time of each period.
func (p *PWM) SetDuty(d time.Duration) error {
	if d < 0 || d > p.period {
		return fmt.Errorf("pwm: duty %v outside period %v", d, p.period)
	}
	return p.write("duty_cycle", d.Nanoseconds())
}

// Close disables the channel. The channel stays exported.
func (p *PWM) Close() error {
	return p.write("enable", 0)
}

func (p *PWM) write(attr string, v int64) error {
	return writeAttr(filepath.Join(p.dir, attr), strconv.FormatInt(v, 10))
}

func writeAttr(path, value string) error {
	if err := os.WriteFile(path, []byte(value), 0o644); err != nil {
		return fmt.Errorf("pwm: write %s: %w", path, err)
	}
	return nil
}
