package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sweeney/smart-parking/internal/config"
	"github.com/sweeney/smart-parking/internal/gpio"
	"github.com/sweeney/smart-parking/internal/metrics"
	"github.com/sweeney/smart-parking/internal/mqtt"
	"github.com/sweeney/smart-parking/internal/notify"
	"github.com/sweeney/smart-parking/internal/status"
	"github.com/sweeney/smart-parking/internal/web"
)

func run(c config.Config) error {
	if err := config.LoadEnv(c.EnvFile); err != nil {
		return err
	}
	if err := c.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	lc, err := c.Logic()
	if err != nil {
		return err
	}
	secrets := config.ReadSecrets()

	reader, err := gpio.NewRealReader(c.Pins())
	if err != nil {
		return fmt.Errorf("init gpio: %w", err)
	}
	defer reader.Close()

	actuator, err := gpio.NewRealActuator(c.Pins())
	if err != nil {
		return fmt.Errorf("init actuators: %w", err)
	}
	defer actuator.Close()

	publisher, err := mqtt.NewRealPublisher(c.Broker, mqtt.Options{})
	if err != nil {
		return fmt.Errorf("init mqtt: %w", err)
	}
	defer publisher.Close()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(reg)

	// Initialize status tracker (before STARTUP so snapshot is available)
	ws := resolveWSBroker(c.WSBroker, c.Broker)
	tracker := status.NewTracker(time.Now(), statusConfig(c, ws))
	if net := readNetworkInfo(); net != nil {
		tracker.SetNetwork(net)
	}

	var receipts receiptSender
	if ns := buildNotifier(c, secrets); len(ns) > 0 {
		for _, n := range ns {
			if cl, ok := n.(io.Closer); ok {
				defer cl.Close()
			}
		}
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		d := notify.NewDispatcher(ns, c.NotifyQueue, notify.DefaultSendTimeout)
		d.OnDrop = func(notify.Receipt) { m.NotificationDropped() }
		d.Start(ctx)
		defer d.Close()
		receipts = d
	} else {
		log.Printf("notify: no receipt channel configured")
	}

	// Publish startup event with full status snapshot
	snap := tracker.Snapshot()
	startupEvent := mqtt.SystemEvent{
		Timestamp:  snap.Now,
		Event:      "STARTUP",
		Retained:   true,
		RawPayload: status.FormatStatusEvent(snap, "STARTUP", ""),
	}
	if err := publisher.PublishSystem(startupEvent); err != nil {
		log.Printf("failed to publish startup event: %v", err)
	} else {
		log.Printf("published startup event")
	}

	if c.HTTPAddr != "" {
		srv := web.New(c.HTTPAddr, tracker, reg)
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Printf("http server error: %v", err)
			}
		}()
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			srv.Shutdown(ctx)
		}()
		log.Printf("http status server listening on %s", c.HTTPAddr)
	}

	log.Printf("started: slots=%d poll=%v entry=%v exit=%v dwell=%v rate=%s broker=%s heartbeat=%v",
		c.Slots, c.Poll, c.EntryDebounce, c.ExitGrace, c.OpenDwell, c.Rate, c.Broker, c.Heartbeat)

	ticker := time.NewTicker(c.Poll)
	defer ticker.Stop()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	l := newLoop(lc, time.Now)
	l.reader = reader
	l.actuator = actuator
	l.publisher = publisher
	l.mqttStatus = publisher
	l.commands = publisher.Commands()
	l.tracker = tracker
	l.metrics = m
	l.receipts = receipts
	l.heartbeat = c.Heartbeat
	return runLoop(l, ticker.C, sigCh)
}

// buildNotifier returns every configured receipt channel.
func buildNotifier(c config.Config, s config.Secrets) notify.Multi {
	var ns notify.Multi
	if s.Telegram() {
		ns = append(ns, notify.NewTelegramNotifier(s.TelegramToken, s.TelegramChatID))
		log.Printf("notify: telegram receipts enabled")
	}
	amqpURL := c.AMQPURL
	if amqpURL == "" {
		amqpURL = s.AMQPURL
	}
	if amqpURL != "" {
		ns = append(ns, notify.NewAMQPNotifier(amqpURL, c.AMQPQueue))
		log.Printf("notify: amqp receipts enabled (queue %s)", c.AMQPQueue)
	}
	return ns
}

func statusConfig(c config.Config, ws string) status.Config {
	return status.Config{
		Slots:           c.Slots,
		PollMs:          c.Poll.Milliseconds(),
		EntryDebounceMs: c.EntryDebounce.Milliseconds(),
		ExitGraceMs:     c.ExitGrace.Milliseconds(),
		OpenDwellMs:     c.OpenDwell.Milliseconds(),
		HeartbeatMs:     c.Heartbeat.Milliseconds(),
		RatePerMinute:   c.Rate,
		Broker:          c.Broker,
		HTTPAddr:        c.HTTPAddr,
		WSBroker:        ws,
	}
}

// pi-helper env var names (written to the env file).
const (
	envNetworkType       = "NETWORK_TYPE"
	envNetworkIP         = "NETWORK_IP"
	envNetworkStatus     = "NETWORK_STATUS"
	envNetworkGateway    = "NETWORK_GATEWAY"
	envNetworkWifiStatus = "NETWORK_WIFI_STATUS"
	envNetworkWifiSSID   = "NETWORK_WIFI_SSID"
)

func readNetworkInfo() *status.NetworkInfo {
	s := os.Getenv(envNetworkStatus)
	if s == "" {
		return nil
	}
	return &status.NetworkInfo{
		Type:       os.Getenv(envNetworkType),
		IP:         os.Getenv(envNetworkIP),
		Status:     s,
		Gateway:    os.Getenv(envNetworkGateway),
		WifiStatus: os.Getenv(envNetworkWifiStatus),
		SSID:       os.Getenv(envNetworkWifiSSID),
	}
}

// resolveWSBroker converts the --ws-broker flag value into a concrete URL.
// "=broker" derives ws://host:9001 from the TCP broker address; "off" disables.
func resolveWSBroker(ws, broker string) string {
	if ws == "off" {
		return ""
	}
	if ws != "=broker" {
		return ws
	}
	u, err := url.Parse(broker)
	if err != nil {
		log.Printf("ws-broker: cannot parse --broker %q: %v", broker, err)
		return ""
	}
	u.Scheme = "ws"
	u.Host = u.Hostname() + ":9001"
	return u.String()
}
