// Command plant-waterer samples a soil moisture sensor and waters through a
// relay when the soil is dry, within a daily minimum and maximum.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/sweeney/plant-waterer/internal/adc"
	"github.com/sweeney/plant-waterer/internal/gpio"
	"github.com/sweeney/plant-waterer/internal/influx"
	"github.com/sweeney/plant-waterer/internal/logic"
	"github.com/sweeney/plant-waterer/internal/metrics"
	"github.com/sweeney/plant-waterer/internal/mqtt"
	"github.com/sweeney/plant-waterer/internal/pump"
	"github.com/sweeney/plant-waterer/internal/status"
	"github.com/sweeney/plant-waterer/internal/web"
)

type config struct {
	policy    logic.Config
	interval  time.Duration
	warmup    time.Duration
	dose      time.Duration
	sample    time.Duration
	heartbeat time.Duration
	debug     bool

	pinRelay       int
	pinLED         int
	relayActiveLow bool
	i2cBus         string
	adcAddr        uint
	adcChannel     int
	sensorInvert   bool

	broker       string
	httpAddr     string
	influx       influx.Config
	printReading bool
}

func main() {
	var cfg config
	threshold := flag.Uint("threshold", uint(logic.DefaultConfig.DryThreshold), "Dryness above which the soil is watered (0-4095)")
	flag.DurationVar(&cfg.interval, "interval", time.Hour, "Time between decisions")
	flag.DurationVar(&cfg.warmup, "warmup", time.Minute, "Sensor warm-up before the first decision")
	flag.DurationVar(&cfg.dose, "dose", 5*time.Second, "Relay open time per dose")
	period := flag.Int("period", logic.DefaultConfig.Period, "Window length in decisions")
	minDoses := flag.Int("min", logic.DefaultConfig.Min, "Doses guaranteed per window")
	maxDoses := flag.Int("max", logic.DefaultConfig.Max, "Dose cap per window")
	flag.DurationVar(&cfg.sample, "sample", 10*time.Second, "Diagnostic sampling interval (with -debug)")
	flag.BoolVar(&cfg.debug, "debug", false, "Log diagnostic readings between decisions")
	flag.IntVar(&cfg.pinRelay, "pin-relay", gpio.DefaultPinRelay, "BCM pin number for the pump relay")
	flag.IntVar(&cfg.pinLED, "pin-led", gpio.DefaultPinLED, "BCM pin number for the status LED (-1 to disable)")
	flag.BoolVar(&cfg.relayActiveLow, "relay-active-low", false, "Relay board switches on a low level")
	flag.StringVar(&cfg.i2cBus, "i2c-bus", "", "I2C bus name (empty for the first bus)")
	flag.UintVar(&cfg.adcAddr, "adc-addr", adc.DefaultAddress, "ADS1115 I2C address")
	flag.IntVar(&cfg.adcChannel, "adc-channel", 0, "ADS1115 input channel (0-3)")
	flag.BoolVar(&cfg.sensorInvert, "sensor-invert", false, "Sensor reads higher when wetter")
	flag.StringVar(&cfg.broker, "broker", "", "MQTT broker address (empty to disable)")
	flag.DurationVar(&cfg.heartbeat, "heartbeat", 15*time.Minute, "Heartbeat interval (0 to disable)")
	flag.StringVar(&cfg.httpAddr, "http", "", "HTTP status address (empty to disable)")
	flag.StringVar(&cfg.influx.URL, "influx-url", "", "InfluxDB URL (empty to disable)")
	flag.StringVar(&cfg.influx.Token, "influx-token", "", "InfluxDB token")
	flag.StringVar(&cfg.influx.Org, "influx-org", "", "InfluxDB organisation")
	flag.StringVar(&cfg.influx.Bucket, "influx-bucket", "", "InfluxDB bucket")
	flag.BoolVar(&cfg.printReading, "print-reading", false, "Print one sensor reading and exit")

	flag.Parse()

	if *threshold > adc.MaxReading {
		log.Fatalf("fatal: threshold %d above sensor range %d", *threshold, adc.MaxReading)
	}
	cfg.policy = logic.Config{
		DryThreshold: uint16(*threshold),
		Period:       *period,
		Min:          *minDoses,
		Max:          *maxDoses,
	}

	if err := run(cfg); err != nil {
		log.Fatalf("fatal: %v", err)
	}
}

// maxI2CAddress is the top of the 7-bit I2C address space.
const maxI2CAddress = 0x7f

func (c config) validate() error {
	if err := c.policy.Validate(); err != nil {
		return fmt.Errorf("invalid policy: %w", err)
	}
	switch {
	case c.interval <= 0:
		return fmt.Errorf("interval must be positive")
	case c.dose <= 0:
		return fmt.Errorf("dose must be positive")
	case c.warmup < 0:
		return fmt.Errorf("warmup must not be negative")
	case c.debug && c.sample <= 0:
		return fmt.Errorf("sample must be positive with -debug")
	case c.heartbeat < 0:
		return fmt.Errorf("heartbeat must not be negative")
	case c.adcAddr > maxI2CAddress:
		return fmt.Errorf("adc address %#x outside 7-bit I2C range", c.adcAddr)
	}
	return nil
}

func run(cfg config) error {
	if err := cfg.validate(); err != nil {
		return err
	}

	sensor, err := adc.NewADS1115(cfg.i2cBus, uint16(cfg.adcAddr), cfg.adcChannel, cfg.sensorInvert)
	if err != nil {
		return fmt.Errorf("init sensor: %w", err)
	}
	defer sensor.Close()

	// Print reading mode
	if cfg.printReading {
		v, err := sensor.Read()
		if err != nil {
			return fmt.Errorf("read sensor: %w", err)
		}
		fmt.Printf("dryness: %d (threshold %d, %s)\n", v, cfg.policy.DryThreshold, drynessString(v > cfg.policy.DryThreshold))
		return nil
	}

	relay, err := gpio.NewRealOutput(cfg.pinRelay, cfg.relayActiveLow)
	if err != nil {
		return fmt.Errorf("init relay: %w", err)
	}
	// Must stay an untyped nil when disabled so pump sees no LED.
	var led gpio.Output
	if cfg.pinLED >= 0 {
		l, err := gpio.NewRealOutput(cfg.pinLED, false)
		if err != nil {
			relay.Close()
			return fmt.Errorf("init led: %w", err)
		}
		led = l
	}

	bootID := uuid.NewString()
	tracker := status.NewTracker(bootID, time.Now(), status.Config{
		IntervalMs:  cfg.interval.Milliseconds(),
		WarmupMs:    cfg.warmup.Milliseconds(),
		DoseMs:      cfg.dose.Milliseconds(),
		SampleMs:    cfg.sample.Milliseconds(),
		HeartbeatMs: cfg.heartbeat.Milliseconds(),
		Threshold:   cfg.policy.DryThreshold,
		Period:      cfg.policy.Period,
		Min:         cfg.policy.Min,
		Max:         cfg.policy.Max,
		Debug:       cfg.debug,
		Broker:      cfg.broker,
		HTTPAddr:    cfg.httpAddr,
	})
	if net := readNetworkInfo(); net != nil {
		tracker.SetNetwork(net)
	}

	debug := log.New(io.Discard, "", 0)
	if cfg.debug {
		debug = log.New(log.Writer(), "debug: ", log.Flags())
	}

	m := metrics.New()
	l := &loop{
		tracker:     tracker,
		metrics:     m,
		debug:       debug,
		interval:    cfg.interval,
		warmup:      cfg.warmup,
		sample:      cfg.sample,
		heartbeat:   cfg.heartbeat,
		diagnostics: cfg.debug,
		now:         time.Now,
		sleep:       pump.Sleep,
	}
	valve := pump.New(relay, led, pump.Config{
		Dose:    cfg.dose,
		OnRelay: l.relayChanged,
	})
	defer func() {
		if err := valve.Close(); err != nil {
			log.Printf("pump: close: %v", err)
		}
	}()

	// Network sinks are optional; none of them can stop watering.
	var publisher mqtt.Publisher = noopPublisher{}
	var mqttStatus mqtt.ConnectionStatus
	if cfg.broker != "" {
		p, err := mqtt.NewRealPublisher(cfg.broker, "plant-waterer-"+bootID[:8], bootID)
		if err != nil {
			log.Printf("mqtt: %v, continuing without broker", err)
		} else {
			publisher = p
			mqttStatus = p
			defer publisher.Close()
		}
	}

	var hist historySink
	if cfg.influx.Enabled() {
		cfg.influx.BootID = bootID
		s, err := influx.New(cfg.influx)
		if err != nil {
			log.Printf("influx: %v, continuing without history", err)
		} else {
			hist = s
			defer s.Close()
		}
	}

	if mqttStatus != nil {
		tracker.SetMQTTConnected(mqttStatus.IsConnected())
	}

	// Publish startup event with full status snapshot
	snap := tracker.Snapshot()
	startupEvent := mqtt.SystemEvent{
		Timestamp:  snap.Now,
		Event:      "STARTUP",
		BootID:     bootID,
		Retained:   true,
		RawPayload: status.FormatStatusEvent(snap, "STARTUP", ""),
	}
	if err := publisher.PublishSystem(startupEvent); err != nil {
		log.Printf("mqtt: failed to publish startup event: %v", err)
	}

	// Start HTTP status server
	if cfg.httpAddr != "" {
		srv := web.New(cfg.httpAddr, tracker, m.Handler())
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Printf("http server error: %v", err)
			}
		}()
		defer srv.Shutdown(context.Background())
		log.Printf("http status server listening on %s", cfg.httpAddr)
	}

	ctx, cancel := context.WithCancelCause(context.Background())
	defer cancel(nil)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case s := <-sigCh:
			cancel(shutdownSignal{s})
		case <-ctx.Done():
		}
	}()

	if err := valve.Blink(ctx, 2); err != nil {
		log.Printf("led: startup blink: %v", err)
	}

	log.Printf("started: boot=%s threshold=%d interval=%v warmup=%v dose=%v window=%d min=%d max=%d debug=%v",
		bootID, cfg.policy.DryThreshold, cfg.interval, cfg.warmup, cfg.dose,
		cfg.policy.Period, cfg.policy.Min, cfg.policy.Max, cfg.debug)

	l.reader = sensor
	l.pump = valve
	l.policy = logic.NewPolicy(cfg.policy, valve)
	l.publisher = publisher
	l.mqttStatus = mqttStatus
	l.history = hist
	return runLoop(ctx, l)
}

// shutdownSignal is the cancellation cause recorded when a signal arrives.
type shutdownSignal struct {
	sig os.Signal
}

func (s shutdownSignal) Error() string {
	return "received " + s.sig.String()
}

func signalName(cause error) string {
	s, ok := cause.(shutdownSignal)
	if !ok {
		return "UNKNOWN"
	}
	switch s.sig {
	case syscall.SIGINT:
		return "SIGINT"
	case syscall.SIGTERM:
		return "SIGTERM"
	}
	return "UNKNOWN"
}

// noopPublisher stands in when no broker is configured or reachable.
type noopPublisher struct{}

func (noopPublisher) Publish(logic.Event) error             { return nil }
func (noopPublisher) PublishSystem(mqtt.SystemEvent) error { return nil }
func (noopPublisher) Close() error                          { return nil }

// pi-helper env var names (written to /run/pi-helper.env).
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

func drynessString(dry bool) string {
	if dry {
		return "dry"
	}
	return "moist"
}
