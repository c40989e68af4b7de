// Package config holds the daemon settings gathered from flags and the
// environment.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"github.com/sweeney/smart-parking/internal/gpio"
	"github.com/sweeney/smart-parking/internal/logic"
)

// DefaultEnvFile is where pi-helper and the installer write secrets and
// network state.
const DefaultEnvFile = "/run/smart-parking.env"

// Environment variable names.
const (
	EnvTelegramToken  = "TELEGRAM_BOT_TOKEN"
	EnvTelegramChatID = "TELEGRAM_CHAT_ID"
	EnvAMQPURL        = "AMQP_URL"
)

// Config is the full daemon configuration.
type Config struct {
	Poll          time.Duration
	EntryDebounce time.Duration
	ExitGrace     time.Duration
	OpenDwell     time.Duration
	Heartbeat     time.Duration
	ServoStep     int
	DetectCM      float64
	Slots         int
	Rate          string
	HistoryLimit  int
	Recent        int

	Broker   string
	HTTPAddr string
	WSBroker string

	SlotPins   []int
	PinTrig    int
	PinEcho    int
	PinLEDGate int
	PinLEDFull int
	PWMChip    int
	PWMChannel int

	EnvFile     string
	NotifyQueue int
	AMQPURL     string
	AMQPQueue   string
}

// Default returns the configuration for the reference three-bay lot.
func Default() Config {
	lc := logic.DefaultConfig()
	pins := gpio.DefaultPins()
	return Config{
		Poll:          50 * time.Millisecond,
		EntryDebounce: lc.EntryDebounce,
		ExitGrace:     lc.ExitGrace,
		OpenDwell:     lc.OpenDwell,
		Heartbeat:     15 * time.Minute,
		ServoStep:     lc.ServoStep,
		DetectCM:      lc.DetectCM,
		Slots:         lc.Slots,
		Rate:          lc.RatePerMinute.String(),
		HistoryLimit:  lc.HistoryLimit,
		Recent:        lc.Recent,
		Broker:        "tcp://localhost:1883",
		HTTPAddr:      ":80",
		WSBroker:      "=broker",
		SlotPins:      pins.Slots,
		PinTrig:       pins.Trig,
		PinEcho:       pins.Echo,
		PinLEDGate:    pins.LEDGate,
		PinLEDFull:    pins.LEDFull,
		PWMChip:       pins.PWMChip,
		PWMChannel:    pins.PWMChannel,
		EnvFile:       DefaultEnvFile,
		AMQPQueue:     "parking.receipts",
	}
}

// Validate reports every invalid field at once.
func (c Config) Validate() error {
	var errs []error
	positive := func(name string, d time.Duration) {
		if d <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive, got %v", name, d))
		}
	}
	positive("poll", c.Poll)
	positive("entry-debounce", c.EntryDebounce)
	positive("exit-grace", c.ExitGrace)
	positive("open-dwell", c.OpenDwell)

	if c.Heartbeat < 0 {
		errs = append(errs, fmt.Errorf("heartbeat must not be negative, got %v", c.Heartbeat))
	}
	if c.Poll > 0 && c.EntryDebounce > 0 && c.Poll > c.EntryDebounce {
		errs = append(errs, fmt.Errorf("poll %v is slower than entry-debounce %v", c.Poll, c.EntryDebounce))
	}
	if c.ServoStep <= 0 || c.ServoStep > logic.AngleOpen {
		errs = append(errs, fmt.Errorf("servo-step must be in 1..%d, got %d", logic.AngleOpen, c.ServoStep))
	}
	if c.DetectCM <= 0 || c.DetectCM >= logic.NoEcho {
		errs = append(errs, fmt.Errorf("detect-cm must be in (0, %v), got %v", logic.NoEcho, c.DetectCM))
	}
	if c.Slots < 1 {
		errs = append(errs, fmt.Errorf("slots must be at least 1, got %d", c.Slots))
	}
	if len(c.SlotPins) != c.Slots {
		errs = append(errs, fmt.Errorf("got %d slot pins for %d slots", len(c.SlotPins), c.Slots))
	}
	if rate, err := decimal.NewFromString(c.Rate); err != nil {
		errs = append(errs, fmt.Errorf("rate %q: %w", c.Rate, err))
	} else if rate.IsNegative() {
		errs = append(errs, fmt.Errorf("rate must not be negative, got %s", rate))
	}
	if c.HistoryLimit < 0 {
		errs = append(errs, fmt.Errorf("history-limit must not be negative, got %d", c.HistoryLimit))
	}
	if c.Recent < 0 {
		errs = append(errs, fmt.Errorf("recent must not be negative, got %d", c.Recent))
	}
	if c.NotifyQueue < 0 {
		errs = append(errs, fmt.Errorf("notify-queue must not be negative, got %d", c.NotifyQueue))
	}
	return errors.Join(errs...)
}

// Logic converts to the controller configuration. The config should be
// validated first; an unparsable rate is still reported.
func (c Config) Logic() (logic.Config, error) {
	rate, err := decimal.NewFromString(c.Rate)
	if err != nil {
		return logic.Config{}, fmt.Errorf("parse rate %q: %w", c.Rate, err)
	}
	return logic.Config{
		Slots:         c.Slots,
		EntryDebounce: c.EntryDebounce,
		ExitGrace:     c.ExitGrace,
		OpenDwell:     c.OpenDwell,
		ServoStep:     c.ServoStep,
		DetectCM:      c.DetectCM,
		RatePerMinute: rate,
		HistoryLimit:  c.HistoryLimit,
		Recent:        c.Recent,
	}, nil
}

// Pins returns the GPIO wiring.
func (c Config) Pins() gpio.Pins {
	return gpio.Pins{
		Slots:      append([]int(nil), c.SlotPins...),
		Trig:       c.PinTrig,
		Echo:       c.PinEcho,
		LEDGate:    c.PinLEDGate,
		LEDFull:    c.PinLEDFull,
		PWMChip:    c.PWMChip,
		PWMChannel: c.PWMChannel,
	}
}

// LoadEnv loads KEY=value pairs from path into the process environment.
// Variables already set are left alone. A missing file is not an error.
func LoadEnv(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load env file %s: %w", path, err)
	}
	return nil
}

// Secrets are credentials that never appear on the command line.
type Secrets struct {
	TelegramToken  string
	TelegramChatID string
	AMQPURL        string
}

// ReadSecrets reads secrets from the environment.
func ReadSecrets() Secrets {
	return Secrets{
		TelegramToken:  os.Getenv(EnvTelegramToken),
		TelegramChatID: os.Getenv(EnvTelegramChatID),
		AMQPURL:        os.Getenv(EnvAMQPURL),
	}
}

// Telegram reports whether both Telegram settings are present.
func (s Secrets) Telegram() bool {
	return s.TelegramToken != "" && s.TelegramChatID != ""
}
