// Command smart-parking runs the parking gate controller: it watches the bay
// sensors, bills tickets, drives the barrier, and publishes events to MQTT.
package main

import (
	"fmt"
	"log"
	"os"

	"github.com/spf13/cobra"
	"github.com/sweeney/smart-parking/internal/config"
	"github.com/sweeney/smart-parking/internal/gpio"
)

var cfg = config.Default()

var rootCmd = &cobra.Command{
	Use:   "smart-parking",
	Short: "Parking occupancy, billing and gate controller",
	Long: `smart-parking samples the slot and proximity sensors on every tick,
keeps the ticket ledger, opens the barrier only while a slot is free,
and publishes every change to MQTT and the HTTP dashboard.`,
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		if err := run(cfg); err != nil {
			log.Fatalf("fatal: %v", err)
		}
	},
}

var printStateCmd = &cobra.Command{
	Use:   "print-state",
	Short: "Print the current sensor readings and exit",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		if err := printState(cfg); err != nil {
			log.Fatalf("fatal: %v", err)
		}
	},
}

func init() {
	f := rootCmd.PersistentFlags()

	f.DurationVar(&cfg.Poll, "poll", cfg.Poll, "Sensor polling interval")
	f.DurationVar(&cfg.EntryDebounce, "entry-debounce", cfg.EntryDebounce, "How long a slot must read blocked before a car is counted")
	f.DurationVar(&cfg.ExitGrace, "exit-grace", cfg.ExitGrace, "How long a slot must read clear before a car is counted as gone")
	f.DurationVar(&cfg.OpenDwell, "open-dwell", cfg.OpenDwell, "How long the gate stays open")
	f.DurationVar(&cfg.Heartbeat, "heartbeat", cfg.Heartbeat, "Heartbeat interval (0 to disable)")
	f.IntVar(&cfg.ServoStep, "servo-step", cfg.ServoStep, "Maximum servo travel per tick, in degrees")
	f.Float64Var(&cfg.DetectCM, "detect-cm", cfg.DetectCM, "Proximity distance that counts as a car at the gate")
	f.IntVar(&cfg.Slots, "slots", cfg.Slots, "Number of parking slots")
	f.StringVar(&cfg.Rate, "rate", cfg.Rate, "Fee per started minute")
	f.IntVar(&cfg.HistoryLimit, "history-limit", cfg.HistoryLimit, "Closed tickets kept in memory (0 keeps all)")
	f.IntVar(&cfg.Recent, "recent", cfg.Recent, "Closed tickets shown on the dashboard (0 shows all)")

	f.StringVar(&cfg.Broker, "broker", cfg.Broker, "MQTT broker address")
	f.StringVar(&cfg.HTTPAddr, "http", cfg.HTTPAddr, "HTTP status address (empty to disable)")
	f.StringVar(&cfg.WSBroker, "ws-broker", cfg.WSBroker, `MQTT websocket URL for live UI ("=broker" derives from --broker, "off" disables)`)

	f.IntSliceVar(&cfg.SlotPins, "pin-slots", cfg.SlotPins, "BCM pin numbers of the slot IR sensors, in slot order")
	f.IntVar(&cfg.PinTrig, "pin-trig", cfg.PinTrig, "BCM pin number of the ultrasonic trigger")
	f.IntVar(&cfg.PinEcho, "pin-echo", cfg.PinEcho, "BCM pin number of the ultrasonic echo")
	f.IntVar(&cfg.PinLEDGate, "pin-led-gate", cfg.PinLEDGate, "BCM pin number of the gate-open LED")
	f.IntVar(&cfg.PinLEDFull, "pin-led-full", cfg.PinLEDFull, "BCM pin number of the lot-full LED")
	f.IntVar(&cfg.PWMChip, "pwm-chip", cfg.PWMChip, "PWM chip driving the gate servo")
	f.IntVar(&cfg.PWMChannel, "pwm-channel", cfg.PWMChannel, "PWM channel driving the gate servo")

	f.StringVar(&cfg.EnvFile, "env-file", cfg.EnvFile, "Environment file with secrets and network state")
	f.IntVar(&cfg.NotifyQueue, "notify-queue", cfg.NotifyQueue, "Receipts that may wait for delivery (0 uses the default)")
	f.StringVar(&cfg.AMQPURL, "amqp-url", cfg.AMQPURL, "AMQP broker for receipts (overrides AMQP_URL)")
	f.StringVar(&cfg.AMQPQueue, "amqp-queue", cfg.AMQPQueue, "AMQP queue for receipts")

	rootCmd.AddCommand(printStateCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func printState(c config.Config) error {
	if err := c.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	reader, err := gpio.NewRealReader(c.Pins())
	if err != nil {
		return fmt.Errorf("init gpio: %w", err)
	}
	defer reader.Close()

	slots, err := reader.ReadSlots()
	if err != nil {
		return fmt.Errorf("read slots: %w", err)
	}
	dist, err := reader.ReadDistance()
	if err != nil {
		return fmt.Errorf("read distance: %w", err)
	}
	fmt.Println(formatState(slots, dist))
	return nil
}

// formatState renders raw readings, e.g. "S1: FREE, S2: BLOCKED, Distance: 12.3 cm".
func formatState(slots []bool, dist float64) string {
	var s string
	for i, blocked := range slots {
		state := "FREE"
		if blocked {
			state = "BLOCKED"
		}
		s += fmt.Sprintf("S%d: %s, ", i+1, state)
	}
	if dist >= gpio.NoEcho {
		return s + "Distance: no echo"
	}
	return s + fmt.Sprintf("Distance: %.1f cm", dist)
}
